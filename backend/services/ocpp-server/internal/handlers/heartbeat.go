package handlers

import (
	"context"

	"evcharge/backend/services/ocpp-server/internal/ocpp"
	"evcharge/backend/services/ocpp-server/internal/ocpp/protocol"
	"evcharge/backend/services/ocpp-server/internal/station"
)

// NewHeartbeatHandler returns ack with current time.
func NewHeartbeatHandler(d *Deps) ocpp.HandlerFunc[*station.Session] {
	return ocpp.Handle(func(ctx context.Context, sess *station.Session, _ protocol.HeartbeatRequest) (interface{}, error) {
		now := d.now()
		sess.TouchHeartbeat(now)
		if d.Stations != nil {
			d.persist(ctx, sess, "touch heartbeat", func(ctx context.Context) error {
				return d.Stations.TouchHeartbeat(ctx, sess.StationID(), now)
			})
		}
		d.touchPresence(ctx, sess)
		return protocol.HeartbeatResponse{CurrentTime: now}, nil
	})
}
