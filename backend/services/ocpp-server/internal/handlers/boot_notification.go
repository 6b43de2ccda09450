package handlers

import (
	"context"

	"go.uber.org/zap"

	"evcharge/backend/services/ocpp-server/internal/models"
	"evcharge/backend/services/ocpp-server/internal/ocpp"
	"evcharge/backend/services/ocpp-server/internal/ocpp/protocol"
	"evcharge/backend/services/ocpp-server/internal/station"
)

// NewBootNotificationHandler registers the station's hardware details and accepts it.
func NewBootNotificationHandler(d *Deps) ocpp.HandlerFunc[*station.Session] {
	return ocpp.Handle(func(ctx context.Context, sess *station.Session, req protocol.BootNotificationRequest) (interface{}, error) {
		now := d.now()
		serial := req.ChargePointSerialNumber
		if serial == "" {
			serial = req.ChargeBoxSerialNumber
		}

		sess.MarkBooted(station.BootInfo{
			Vendor:          req.ChargePointVendor,
			Model:           req.ChargePointModel,
			SerialNumber:    serial,
			FirmwareVersion: req.FirmwareVersion,
		}, now)

		if d.Stations != nil {
			d.persist(ctx, sess, "upsert station", func(ctx context.Context) error {
				return d.Stations.Upsert(ctx, &models.Station{
					ID:              sess.StationID(),
					Vendor:          req.ChargePointVendor,
					Model:           req.ChargePointModel,
					SerialNumber:    serial,
					FirmwareVersion: req.FirmwareVersion,
					Online:          true,
					LastHeartbeat:   &now,
				})
			})
		}
		d.touchPresence(ctx, sess)

		sess.Logger().Info("station booted",
			zap.String("vendor", req.ChargePointVendor),
			zap.String("model", req.ChargePointModel),
			zap.String("firmware", req.FirmwareVersion),
		)

		return protocol.BootNotificationResponse{
			CurrentTime: now,
			Interval:    d.HeartbeatInterval,
			Status:      protocol.RegistrationAccepted,
		}, nil
	})
}
