package handlers

import (
	"context"

	"go.uber.org/zap"

	"evcharge/backend/services/ocpp-server/internal/clients"
	"evcharge/backend/services/ocpp-server/internal/models"
	"evcharge/backend/services/ocpp-server/internal/ocpp"
	"evcharge/backend/services/ocpp-server/internal/ocpp/protocol"
	"evcharge/backend/services/ocpp-server/internal/service"
	"evcharge/backend/services/ocpp-server/internal/station"
)

// NewStartTransactionHandler allocates a transaction id, records the transaction and
// notifies dependent services.
func NewStartTransactionHandler(d *Deps) ocpp.HandlerFunc[*station.Session] {
	return ocpp.Handle(func(ctx context.Context, sess *station.Session, req protocol.StartTransactionRequest) (interface{}, error) {
		started := req.Timestamp.UTC()
		if req.Timestamp.IsZero() {
			started = d.now()
		}

		tx := d.Ledger.Begin(sess.StationID(), req.ConnectorID, req.IdTag, req.MeterStart, started)

		if d.Transactions != nil {
			d.persist(ctx, sess, "create transaction", func(ctx context.Context) error {
				return d.Transactions.Create(ctx, &models.Transaction{
					ID:          tx.ID,
					StationID:   tx.StationID,
					ConnectorID: tx.ConnectorID,
					IDTag:       tx.IDTag,
					MeterStart:  tx.MeterStart,
					Status:      string(service.TransactionActive),
					StartTime:   tx.StartTime,
				})
			})
		}

		active, err := d.Ledger.Activate(tx.ID)
		if err != nil {
			if _, ferr := d.Ledger.Fail(tx.ID, err.Error(), d.now()); ferr != nil {
				sess.Logger().Warn("mark transaction failed", zap.Int64("transaction_id", tx.ID), zap.Error(ferr))
			}
			return nil, err
		}
		tx = active

		if req.ConnectorID > 0 {
			sess.UpdateConnector(req.ConnectorID, station.ConnectorStatus{
				Status:     protocol.ConnectorCharging,
				ErrorCode:  protocol.ErrorNone,
				ObservedAt: started,
			})
		}

		d.notify(ctx, sess, clients.TransactionEvent{
			Event:         clients.EventTransactionStarted,
			TransactionID: tx.ID,
			StationID:     tx.StationID,
			ConnectorID:   tx.ConnectorID,
			IDTag:         tx.IDTag,
			MeterStart:    tx.MeterStart,
			StartTime:     tx.StartTime,
		})

		sess.Logger().Info("transaction started",
			zap.Int64("transaction_id", tx.ID),
			zap.Int("connector_id", tx.ConnectorID),
		)

		return protocol.StartTransactionResponse{
			TransactionID: tx.ID,
			IdTagInfo:     accepted(),
		}, nil
	})
}
