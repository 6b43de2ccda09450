package station

import (
	"context"
	"encoding/json"
	"time"

	"evcharge/backend/services/ocpp-server/internal/ocpp"
)

// Commander is the entry point for server initiated commands addressed by station id.
type Commander struct {
	registry *Registry
}

// NewCommander builds a Commander over registry.
func NewCommander(registry *Registry) *Commander {
	return &Commander{registry: registry}
}

func (c *Commander) session(stationID string) (*Session, error) {
	sess, ok := c.registry.Lookup(stationID)
	if !ok {
		return nil, ocpp.NewError(ocpp.ErrorCodeNotConnected, "station %s is not connected", stationID)
	}
	return sess, nil
}

// Call sends an arbitrary action to the station.
func (c *Commander) Call(ctx context.Context, stationID, action string, payload interface{}, timeout time.Duration) (json.RawMessage, error) {
	sess, err := c.session(stationID)
	if err != nil {
		return nil, err
	}
	return sess.Call(ctx, action, payload, timeout)
}

// RemoteStart asks stationID to start charging for idTag.
func (c *Commander) RemoteStart(ctx context.Context, stationID, idTag string, connectorID *int) (string, error) {
	sess, err := c.session(stationID)
	if err != nil {
		return "", err
	}
	return sess.RemoteStart(ctx, idTag, connectorID)
}

// RemoteStop asks stationID to stop transactionID.
func (c *Commander) RemoteStop(ctx context.Context, stationID string, transactionID int64) (string, error) {
	sess, err := c.session(stationID)
	if err != nil {
		return "", err
	}
	return sess.RemoteStop(ctx, transactionID)
}

// ChangeConfiguration sets key to value on stationID.
func (c *Commander) ChangeConfiguration(ctx context.Context, stationID, key, value string) (string, error) {
	sess, err := c.session(stationID)
	if err != nil {
		return "", err
	}
	return sess.ChangeConfiguration(ctx, key, value)
}
