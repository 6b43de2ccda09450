package handlers

import (
	"context"

	"go.uber.org/zap"

	"evcharge/backend/services/ocpp-server/internal/ocpp"
	"evcharge/backend/services/ocpp-server/internal/ocpp/protocol"
	"evcharge/backend/services/ocpp-server/internal/station"
)

const measurandEnergyImport = "Energy.Active.Import.Register"

// NewMeterValuesHandler records the latest energy reading on the running transaction.
func NewMeterValuesHandler(d *Deps) ocpp.HandlerFunc[*station.Session] {
	return ocpp.Handle(func(ctx context.Context, sess *station.Session, req protocol.MeterValuesRequest) (interface{}, error) {
		reading, ok := latestEnergyReading(req.MeterValue)
		if !ok {
			return protocol.MeterValuesResponse{}, nil
		}

		txID, ok := d.transactionFor(sess.StationID(), req)
		if !ok || !d.Ledger.RecordMeter(txID, reading) {
			sess.Logger().Debug("meter values without active transaction",
				zap.Int("connector_id", req.ConnectorID),
			)
		}
		return protocol.MeterValuesResponse{}, nil
	})
}

// transactionFor picks the explicit transaction id or the active transaction on the
// reporting connector.
func (d *Deps) transactionFor(stationID string, req protocol.MeterValuesRequest) (int64, bool) {
	if req.TransactionID != nil {
		return *req.TransactionID, true
	}
	for _, tx := range d.Ledger.Active(stationID) {
		if tx.ConnectorID == req.ConnectorID {
			return tx.ID, true
		}
	}
	return 0, false
}

// latestEnergyReading returns the last sampled energy register value. Samples without
// a measurand default to the energy register.
func latestEnergyReading(values []protocol.MeterValue) (string, bool) {
	for i := len(values) - 1; i >= 0; i-- {
		samples := values[i].SampledValue
		for j := len(samples) - 1; j >= 0; j-- {
			m := samples[j].Measurand
			if m == "" || m == measurandEnergyImport {
				return samples[j].Value, true
			}
		}
	}
	return "", false
}
