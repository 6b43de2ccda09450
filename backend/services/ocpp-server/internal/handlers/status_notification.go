package handlers

import (
	"context"

	"evcharge/backend/services/ocpp-server/internal/models"
	"evcharge/backend/services/ocpp-server/internal/ocpp"
	"evcharge/backend/services/ocpp-server/internal/ocpp/protocol"
	"evcharge/backend/services/ocpp-server/internal/station"
)

// NewStatusNotificationHandler updates station/connector status.
func NewStatusNotificationHandler(d *Deps) ocpp.HandlerFunc[*station.Session] {
	return ocpp.Handle(func(ctx context.Context, sess *station.Session, req protocol.StatusNotificationRequest) (interface{}, error) {
		observed := d.now()
		if req.Timestamp != nil && !req.Timestamp.IsZero() {
			observed = req.Timestamp.UTC()
		}

		sess.UpdateConnector(req.ConnectorID, station.ConnectorStatus{
			Status:     req.Status,
			ErrorCode:  req.ErrorCode,
			Info:       req.Info,
			ObservedAt: observed,
		})

		if d.Stations != nil {
			d.persist(ctx, sess, "update status", func(ctx context.Context) error {
				return d.Stations.UpdateStatus(ctx, models.ConnectorStatus{
					StationID:   sess.StationID(),
					ConnectorID: req.ConnectorID,
					Status:      req.Status,
					ErrorCode:   req.ErrorCode,
					Info:        req.Info,
					UpdatedAt:   observed,
				})
			})
		}

		return protocol.StatusNotificationResponse{}, nil
	})
}
