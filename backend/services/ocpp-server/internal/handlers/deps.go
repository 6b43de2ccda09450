// Package handlers implements the station initiated OCPP actions.
package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"evcharge/backend/services/ocpp-server/internal/clients"
	"evcharge/backend/services/ocpp-server/internal/models"
	"evcharge/backend/services/ocpp-server/internal/ocpp"
	"evcharge/backend/services/ocpp-server/internal/ocpp/protocol"
	"evcharge/backend/services/ocpp-server/internal/service"
	"evcharge/backend/services/ocpp-server/internal/station"
)

// DefaultHeartbeatInterval is the interval, in seconds, granted at boot.
const DefaultHeartbeatInterval = 300

const defaultPersistTimeout = 5 * time.Second

// StationStore persists station state.
type StationStore interface {
	Upsert(ctx context.Context, station *models.Station) error
	TouchHeartbeat(ctx context.Context, stationID string, at time.Time) error
	UpdateStatus(ctx context.Context, status models.ConnectorStatus) error
}

// TransactionStore persists transactions.
type TransactionStore interface {
	Create(ctx context.Context, tx *models.Transaction) error
	Complete(ctx context.Context, stationID string, id int64, meterStop int64, endTime time.Time, reason string) error
}

// PresenceToucher keeps a station's presence entry alive.
type PresenceToucher interface {
	Touch(ctx context.Context, stationID string) error
}

// EventNotifier forwards transaction lifecycle events downstream.
type EventNotifier interface {
	NotifyTransaction(ctx context.Context, ev clients.TransactionEvent) error
}

// Deps collects handler collaborators. Ledger is required; nil stores, presence and
// notifier are skipped.
type Deps struct {
	Stations          StationStore
	Transactions      TransactionStore
	Ledger            *service.TransactionStore
	Presence          PresenceToucher
	Events            EventNotifier
	HeartbeatInterval int
	PersistTimeout    time.Duration
	Now               func() time.Time
	Logger            *zap.Logger
}

// Routes builds the static action table.
func Routes(deps Deps) []ocpp.Route[*station.Session] {
	d := &deps
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.HeartbeatInterval <= 0 {
		d.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if d.PersistTimeout <= 0 {
		d.PersistTimeout = defaultPersistTimeout
	}
	if d.Ledger == nil {
		d.Ledger = service.NewTransactionStore()
	}

	return []ocpp.Route[*station.Session]{
		{Action: protocol.ActionAuthorize, Handler: NewAuthorizeHandler(d)},
		{Action: protocol.ActionBootNotification, Handler: NewBootNotificationHandler(d)},
		{Action: protocol.ActionHeartbeat, Handler: NewHeartbeatHandler(d)},
		{Action: protocol.ActionMeterValues, Handler: NewMeterValuesHandler(d)},
		{Action: protocol.ActionStartTransaction, Handler: NewStartTransactionHandler(d)},
		{Action: protocol.ActionStatusNotification, Handler: NewStatusNotificationHandler(d)},
		{Action: protocol.ActionStopTransaction, Handler: NewStopTransactionHandler(d)},
	}
}

func (d *Deps) now() time.Time {
	return d.Now().UTC()
}

// persist runs a store write with a bounded timeout. Failures are logged and swallowed
// so the station still gets its answer.
func (d *Deps) persist(ctx context.Context, sess *station.Session, op string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, d.PersistTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		sess.Logger().Error("persistence failed",
			zap.String("op", op),
			zap.String("code", string(ocpp.ErrorCodePersistenceFailure)),
			zap.Error(err),
		)
	}
}

func (d *Deps) touchPresence(ctx context.Context, sess *station.Session) {
	if d.Presence == nil {
		return
	}
	d.persist(ctx, sess, "touch presence", func(ctx context.Context) error {
		return d.Presence.Touch(ctx, sess.StationID())
	})
}

func (d *Deps) notify(ctx context.Context, sess *station.Session, ev clients.TransactionEvent) {
	if d.Events == nil {
		return
	}
	d.persist(ctx, sess, "notify "+ev.Event, func(ctx context.Context) error {
		return d.Events.NotifyTransaction(ctx, ev)
	})
}

func accepted() protocol.IdTagInfo {
	return protocol.IdTagInfo{Status: protocol.AuthorizationAccepted}
}
