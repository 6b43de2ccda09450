package handlers

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"evcharge/backend/services/ocpp-server/internal/clients"
	"evcharge/backend/services/ocpp-server/internal/ocpp"
	"evcharge/backend/services/ocpp-server/internal/ocpp/protocol"
	"evcharge/backend/services/ocpp-server/internal/service"
	"evcharge/backend/services/ocpp-server/internal/station"
)

// NewStopTransactionHandler completes the transaction and notifies dependent services.
// Transactions unknown to this process, e.g. started before a restart, are still
// completed in the store. Only transactions of the sending station are touched.
func NewStopTransactionHandler(d *Deps) ocpp.HandlerFunc[*station.Session] {
	return ocpp.Handle(func(ctx context.Context, sess *station.Session, req protocol.StopTransactionRequest) (interface{}, error) {
		ended := req.Timestamp.UTC()
		if req.Timestamp.IsZero() {
			ended = d.now()
		}

		ev := clients.TransactionEvent{
			Event:           clients.EventTransactionCompleted,
			TransactionID:   req.TransactionID,
			StationID:       sess.StationID(),
			MeterStop:       &req.MeterStop,
			EnergyDelivered: req.MeterStop,
			Reason:          req.Reason,
			EndTime:         &ended,
		}

		tx, err := d.Ledger.Complete(sess.StationID(), req.TransactionID, req.MeterStop, ended)
		switch {
		case err == nil:
			ev.ConnectorID = tx.ConnectorID
			ev.IDTag = tx.IDTag
			ev.MeterStart = tx.MeterStart
			ev.StartTime = tx.StartTime
			if tx.ConnectorID > 0 {
				sess.UpdateConnector(tx.ConnectorID, station.ConnectorStatus{
					Status:     protocol.ConnectorAvailable,
					ErrorCode:  protocol.ErrorNone,
					ObservedAt: ended,
				})
			}
			d.Ledger.Delete(tx.ID)
		case errors.Is(err, service.ErrUnknownTransaction):
			sess.Logger().Warn("stop for unknown transaction", zap.Int64("transaction_id", req.TransactionID), zap.Error(err))
		default:
			return nil, err
		}

		if d.Transactions != nil {
			d.persist(ctx, sess, "complete transaction", func(ctx context.Context) error {
				return d.Transactions.Complete(ctx, sess.StationID(), req.TransactionID, req.MeterStop, ended, req.Reason)
			})
		}
		d.notify(ctx, sess, ev)

		sess.Logger().Info("transaction completed",
			zap.Int64("transaction_id", req.TransactionID),
			zap.Int64("meter_stop", req.MeterStop),
			zap.String("reason", req.Reason),
		)

		resp := protocol.StopTransactionResponse{}
		if req.IdTag != "" {
			info := accepted()
			resp.IdTagInfo = &info
		}
		return resp, nil
	})
}
