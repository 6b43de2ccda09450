package station

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"evcharge/backend/libs/logging"
)

// MaxStationIDLength bounds the identity taken from the connection path.
const MaxStationIDLength = 48

const defaultLookupTimeout = 3 * time.Second

// AdmissionError is returned when a connection is refused. The transport has already
// been closed with CloseCode.
type AdmissionError struct {
	StationID string
	CloseCode int
	Reason    string
}

func (e *AdmissionError) Error() string {
	if e.StationID == "" {
		return fmt.Sprintf("station: admission refused (%d): %s", e.CloseCode, e.Reason)
	}
	return fmt.Sprintf("station: admission of %s refused (%d): %s", e.StationID, e.CloseCode, e.Reason)
}

// StationIDFromPath extracts the station identity from the final path segment.
func StationIDFromPath(path string) (string, error) {
	trimmed := strings.Trim(path, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	id, err := url.PathUnescape(trimmed)
	if err != nil {
		return "", fmt.Errorf("station id %q is not valid escaping: %w", trimmed, err)
	}
	if id == "" {
		return "", fmt.Errorf("station id is empty")
	}
	if len(id) > MaxStationIDLength {
		return "", fmt.Errorf("station id longer than %d characters", MaxStationIDLength)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", fmt.Errorf("station id %q contains whitespace or control characters", id)
		}
	}
	return id, nil
}

// Gatekeeper admits new connections: it resolves and checks the station identity,
// creates the session, registers it and starts its receive loop.
type Gatekeeper struct {
	lifetime      context.Context
	registry      *Registry
	store         Store
	sessionOpts   SessionOptions
	lookupTimeout time.Duration
	logger        *zap.Logger
}

// NewGatekeeper builds a Gatekeeper. opts.Registry and opts.Store must be set;
// lookupTimeout <= 0 uses a default. Sessions it admits run until lifetime is
// cancelled, which closes them with ReasonShutdown.
func NewGatekeeper(lifetime context.Context, opts SessionOptions, lookupTimeout time.Duration) *Gatekeeper {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if lookupTimeout <= 0 {
		lookupTimeout = defaultLookupTimeout
	}
	return &Gatekeeper{
		lifetime:      lifetime,
		registry:      opts.Registry,
		store:         opts.Store,
		sessionOpts:   opts,
		lookupTimeout: lookupTimeout,
		logger:        opts.Logger,
	}
}

// Admit decides whether the connection on t may become a session for the station
// named by path. On success the session is registered, visible in the registry, and
// its receive loop is running. On refusal t is closed and *AdmissionError returned.
func (g *Gatekeeper) Admit(ctx context.Context, path string, t Transport) (*Session, error) {
	id, err := StationIDFromPath(path)
	if err != nil {
		return nil, g.refuse(t, "", ClosePolicyViolation, err.Error(), "invalid_id")
	}

	lookupCtx, cancel := context.WithTimeout(ctx, g.lookupTimeout)
	provisioned, err := g.store.IsProvisioned(lookupCtx, id)
	cancel()
	if err != nil {
		g.logger.Error("station lookup failed", logging.StationID(id), zap.Error(err))
		return nil, g.refuse(t, id, CloseInternalError, "station lookup failed", "lookup_failed")
	}
	if !provisioned {
		return nil, g.refuse(t, id, ClosePolicyViolation, "unknown station", "unknown_station")
	}

	sess := NewSession(id, t, g.sessionOpts)
	if prev := g.registry.Register(sess); prev != nil {
		g.logger.Info("replacing existing station session", logging.StationID(id))
		prev.Close(ReasonReplaced)
	}
	g.sessionOpts.Metrics.SessionOpened()
	g.sessionOpts.Metrics.Admission("accepted")
	g.announce(ctx, sess)

	g.logger.Info("station connected", logging.StationID(id))
	go sess.Run(g.lifetime)
	return sess, nil
}

func (g *Gatekeeper) announce(ctx context.Context, sess *Session) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.sessionOpts.PersistTimeoutOrDefault())
	defer cancel()

	if err := g.store.SetOnline(ctx, sess.id, true); err != nil {
		g.logger.Error("mark station online failed", logging.StationID(sess.id), zap.Error(err))
	}
	if g.sessionOpts.Presence != nil {
		if err := g.sessionOpts.Presence.Publish(ctx, sess.id, sess.token); err != nil {
			g.logger.Warn("publish station presence failed", logging.StationID(sess.id), zap.Error(err))
		}
	}
}

func (g *Gatekeeper) refuse(t Transport, id string, code int, reason, outcome string) error {
	g.sessionOpts.Metrics.Admission(outcome)
	g.logger.Warn("station connection refused",
		logging.StationID(id),
		zap.Int("close_code", code),
		zap.String("reason", reason),
	)
	if err := t.Close(code, reason); err != nil {
		g.logger.Debug("transport close", zap.Error(err))
	}
	return &AdmissionError{StationID: id, CloseCode: code, Reason: reason}
}

// PersistTimeoutOrDefault returns the persistence timeout applied to session writes.
func (o SessionOptions) PersistTimeoutOrDefault() time.Duration {
	if o.PersistTimeout <= 0 {
		return defaultPersistTimeout
	}
	return o.PersistTimeout
}
