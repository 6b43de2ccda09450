package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"evcharge/backend/libs/logging"
	"evcharge/backend/services/ocpp-server/internal/station"
	"evcharge/backend/services/ocpp-server/internal/stationauth"
)

// Subprotocol is the WebSocket subprotocol negotiated with OCPP 1.6-J stations.
const Subprotocol = "ocpp1.6"

// Admitter turns an upgraded connection into a running station session.
type Admitter interface {
	Admit(ctx context.Context, path string, t station.Transport) (*station.Session, error)
}

// Authenticator checks the Basic credentials a station presents.
type Authenticator interface {
	Authenticate(ctx context.Context, stationID, username, key string, present bool) error
}

// Options configures Server. AuthTimeout bounds the station key lookup.
type Options struct {
	Conn        ConnOptions
	AuthTimeout time.Duration
}

// Server upgrades HTTP connections to WebSockets for OCPP. The station identity is
// the last segment of the request path.
type Server struct {
	admitter Admitter
	auth     Authenticator
	opts     Options
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

type authOutcome int

const (
	authAllowed authOutcome = iota
	authRejected
	authUnavailable
)

// NewServer builds ws server. auth may be nil.
func NewServer(admitter Admitter, auth Authenticator, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 3 * time.Second
	}
	return &Server{
		admitter: admitter,
		auth:     auth,
		opts:     opts,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{Subprotocol},
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWS is HTTP handler for /ocpp/{stationId}.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	outcome := s.authenticate(w, r)
	if outcome == authRejected {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	transport := NewConn(conn, s.opts.Conn, s.logger)

	if outcome == authUnavailable {
		_ = transport.Close(station.CloseInternalError, "station lookup failed")
		return
	}

	path := r.URL.EscapedPath()
	if _, err := s.admitter.Admit(r.Context(), path, transport); err != nil {
		s.logger.Debug("connection not admitted", zap.String("path", path), zap.Error(err))
	}
}

// authenticate rejects bad credentials with a plain HTTP status before the upgrade.
// Requests with an invalid station id pass through so admission can refuse them. A
// failed key lookup is reported as authUnavailable and answered with close 1011.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) authOutcome {
	if s.auth == nil {
		return authAllowed
	}
	id, err := station.StationIDFromPath(r.URL.EscapedPath())
	if err != nil {
		return authAllowed
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.AuthTimeout)
	defer cancel()

	user, key, present := r.BasicAuth()
	err = s.auth.Authenticate(ctx, id, user, key, present)
	switch {
	case err == nil:
		return authAllowed
	case errors.Is(err, stationauth.ErrUnauthorized):
		s.logger.Warn("station authentication failed", logging.StationID(id))
		w.Header().Set("WWW-Authenticate", `Basic realm="ocpp"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return authRejected
	default:
		s.logger.Error("station authentication lookup failed", logging.StationID(id), zap.Error(err))
		return authUnavailable
	}
}
