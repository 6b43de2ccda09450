// Package station owns the live charge point sessions: admission, the per connection
// receive loop, outbound call correlation and the registry of connected stations.
package station

import (
	"context"
	"errors"
)

// WebSocket close codes used by the session layer.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
)

// Transport is a message oriented, bidirectional connection to one station.
// ReadMessage is only called from the session's receive loop; WriteMessage may be
// called concurrently and must serialize writes itself.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close(code int, reason string) error
}

// ErrTransportClosed is returned by transports used after Close.
var ErrTransportClosed = errors.New("station: transport closed")

// CloseReason is what a session reports to the peer when it ends.
type CloseReason struct {
	Code int
	Text string
}

var (
	ReasonReplaced     = CloseReason{Code: CloseNormal, Text: "replaced by a newer connection"}
	ReasonShutdown     = CloseReason{Code: CloseGoingAway, Text: "server shutting down"}
	ReasonPeerClosed   = CloseReason{Code: CloseNormal, Text: "connection closed"}
	ReasonWriteFailure = CloseReason{Code: CloseInternalError, Text: "write failed"}
)

// Store is the persistence the session layer needs directly.
type Store interface {
	IsProvisioned(ctx context.Context, stationID string) (bool, error)
	SetOnline(ctx context.Context, stationID string, online bool) error
}

// Presence publishes which stations hold a live session on this node. token identifies
// the session so a stale session never removes its successor's entry.
type Presence interface {
	Publish(ctx context.Context, stationID, token string) error
	Remove(ctx context.Context, stationID, token string) error
}
