package handlers

import (
	"context"

	"evcharge/backend/services/ocpp-server/internal/ocpp"
	"evcharge/backend/services/ocpp-server/internal/ocpp/protocol"
	"evcharge/backend/services/ocpp-server/internal/station"
)

// NewAuthorizeHandler accepts every id tag.
func NewAuthorizeHandler(d *Deps) ocpp.HandlerFunc[*station.Session] {
	return ocpp.Handle(func(ctx context.Context, sess *station.Session, req protocol.AuthorizeRequest) (interface{}, error) {
		return protocol.AuthorizeResponse{IdTagInfo: accepted()}, nil
	})
}
