package station

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"evcharge/backend/libs/logging"
	"evcharge/backend/services/ocpp-server/internal/metrics"
	"evcharge/backend/services/ocpp-server/internal/msglog"
	"evcharge/backend/services/ocpp-server/internal/ocpp"
)

// Dispatcher answers station initiated CALLs.
type Dispatcher interface {
	Dispatch(ctx context.Context, sess *Session, req *ocpp.Frame) *ocpp.Frame
}

// SessionOptions carries the collaborators shared by every session. Only Dispatcher is
// required to run the receive loop; nil Store, Presence, MessageLog and Metrics are
// skipped.
type SessionOptions struct {
	Registry       *Registry
	Dispatcher     Dispatcher
	Store          Store
	Presence       Presence
	MessageLog     ocpp.MessageLog
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	CallTimeout    time.Duration
	PersistTimeout time.Duration
}

const (
	defaultCallTimeout    = 30 * time.Second
	defaultPersistTimeout = 5 * time.Second
)

// ConnectorStatus is the last reported state of a connector.
type ConnectorStatus struct {
	Status     string    `json:"status"`
	ErrorCode  string    `json:"errorCode"`
	Info       string    `json:"info,omitempty"`
	ObservedAt time.Time `json:"observedAt"`
}

// BootInfo is what the station reported in BootNotification.
type BootInfo struct {
	Vendor          string `json:"vendor"`
	Model           string `json:"model"`
	SerialNumber    string `json:"serialNumber,omitempty"`
	FirmwareVersion string `json:"firmwareVersion,omitempty"`
}

// Summary is a point in time copy of a session's state.
type Summary struct {
	StationID     string                  `json:"stationId"`
	Online        bool                    `json:"online"`
	Booted        bool                    `json:"booted"`
	ConnectedAt   time.Time               `json:"connectedAt"`
	LastHeartbeat time.Time               `json:"lastHeartbeat"`
	Boot          BootInfo                `json:"boot"`
	Status        *ConnectorStatus        `json:"status,omitempty"`
	Connectors    map[int]ConnectorStatus `json:"connectors"`
	PendingCalls  int                     `json:"pendingCalls"`
}

// Session is the live state of one connected station.
type Session struct {
	id        string
	token     string
	transport Transport
	opts      SessionOptions
	logger    *zap.Logger

	mu            sync.RWMutex
	online        bool
	booted        bool
	connectedAt   time.Time
	lastHeartbeat time.Time
	boot          BootInfo
	stationStatus *ConnectorStatus
	connectors    map[int]ConnectorStatus

	pendingMu sync.Mutex
	pending   map[string]*pendingCall
	closed    bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession builds a session for stationID over t. The session is online until Close.
func NewSession(stationID string, t Transport, opts SessionOptions) *Session {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = defaultPersistTimeout
	}
	now := time.Now()
	return &Session{
		id:            stationID,
		token:         uuid.NewString(),
		transport:     t,
		opts:          opts,
		logger:        opts.Logger.With(logging.StationID(stationID)),
		online:        true,
		connectedAt:   now,
		lastHeartbeat: now,
		connectors:    make(map[int]ConnectorStatus),
		pending:       make(map[string]*pendingCall),
		done:          make(chan struct{}),
	}
}

// StationID returns the station identity.
func (s *Session) StationID() string {
	return s.id
}

// Token identifies this session instance.
func (s *Session) Token() string {
	return s.token
}

// Logger returns the session scoped logger.
func (s *Session) Logger() *zap.Logger {
	return s.logger
}

// Done is closed once teardown has finished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Online reports whether the session is still live.
func (s *Session) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// LastHeartbeat returns the latest heartbeat time seen.
func (s *Session) LastHeartbeat() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastHeartbeat
}

// MarkBooted records the BootNotification contents.
func (s *Session) MarkBooted(info BootInfo, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.booted = true
	s.boot = info
	s.touchLocked(at)
}

// TouchHeartbeat moves lastHeartbeat forward. Times older than the current value are
// ignored.
func (s *Session) TouchHeartbeat(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked(at)
}

func (s *Session) touchLocked(at time.Time) {
	if at.After(s.lastHeartbeat) {
		s.lastHeartbeat = at
	}
}

// UpdateConnector stores status for connectorID. Connector 0 addresses the station as a
// whole.
func (s *Session) UpdateConnector(connectorID int, status ConnectorStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if connectorID == 0 {
		st := status
		s.stationStatus = &st
		return
	}
	s.connectors[connectorID] = status
}

// Connector returns the last status of connectorID.
func (s *Session) Connector(connectorID int) (ConnectorStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if connectorID == 0 {
		if s.stationStatus == nil {
			return ConnectorStatus{}, false
		}
		return *s.stationStatus, true
	}
	st, ok := s.connectors[connectorID]
	return st, ok
}

// Summary copies the session state.
func (s *Session) Summary() Summary {
	s.mu.RLock()
	sum := Summary{
		StationID:     s.id,
		Online:        s.online,
		Booted:        s.booted,
		ConnectedAt:   s.connectedAt,
		LastHeartbeat: s.lastHeartbeat,
		Boot:          s.boot,
		Connectors:    make(map[int]ConnectorStatus, len(s.connectors)),
	}
	if s.stationStatus != nil {
		st := *s.stationStatus
		sum.Status = &st
	}
	for id, st := range s.connectors {
		sum.Connectors[id] = st
	}
	s.mu.RUnlock()

	s.pendingMu.Lock()
	sum.PendingCalls = len(s.pending)
	s.pendingMu.Unlock()
	return sum
}

// ConnectorIDs returns the connectors that have reported a status, sorted.
func (s *Session) ConnectorIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int, 0, len(s.connectors))
	for id := range s.connectors {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Run reads frames until the transport fails or ctx is cancelled, then tears the
// session down. Station initiated CALLs are handled one at a time in arrival order.
func (s *Session) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() {
		s.Close(ReasonShutdown)
	})
	defer stop()

	for {
		data, err := s.transport.ReadMessage()
		if err != nil {
			if !errors.Is(err, ErrTransportClosed) {
				s.logger.Info("station connection closed", zap.Error(err))
			}
			s.Close(ReasonPeerClosed)
			return
		}
		s.handle(ctx, data)
	}
}

func (s *Session) handle(ctx context.Context, data []byte) {
	frame, err := ocpp.Parse(data)
	if err != nil {
		var perr *ocpp.ParseError
		if errors.As(err, &perr) && perr.UniqueID != "" {
			s.logger.Warn("malformed frame", logging.MessageID(perr.UniqueID), zap.String("reason", perr.Reason))
			reply := ocpp.NewCallError(perr.UniqueID, ocpp.NewError(ocpp.ErrorCodeProtocolError, "%s", perr.Reason))
			if err := s.send(reply); err != nil {
				s.logger.Warn("send protocol error failed", zap.Error(err))
			}
			return
		}
		s.logger.Warn("dropping unparseable frame", zap.Error(err))
		return
	}

	switch frame.Type {
	case ocpp.TypeCall:
		var reply *ocpp.Frame
		if s.opts.Dispatcher == nil {
			reply = ocpp.NewCallError(frame.UniqueID, ocpp.NewError(ocpp.ErrorCodeNotImplemented, "action %s is not supported", frame.Action))
		} else {
			reply = s.opts.Dispatcher.Dispatch(ctx, s, frame)
		}
		if err := s.send(reply); err != nil {
			s.logger.Warn("send reply failed",
				logging.Action(frame.Action),
				logging.MessageID(frame.UniqueID),
				zap.Error(err),
			)
			s.Close(ReasonWriteFailure)
		}
	case ocpp.TypeCallResult, ocpp.TypeCallError:
		s.resolve(frame)
	}
}

func (s *Session) send(f *ocpp.Frame) error {
	data, err := ocpp.Encode(f)
	if err != nil {
		return err
	}
	return s.transport.WriteMessage(data)
}

// Close tears the session down exactly once: the session goes offline, leaves the
// registry if it is still the current one, fails every pending call with Disconnected
// and closes the transport. Offline persistence and presence removal only happen for
// the current session, so a replaced session never marks its successor offline.
func (s *Session) Close(reason CloseReason) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.online = false
		s.mu.Unlock()

		current := true
		if s.opts.Registry != nil {
			current = s.opts.Registry.Unregister(s.id, s)
		}

		s.failPending()

		if err := s.transport.Close(reason.Code, reason.Text); err != nil {
			s.logger.Debug("transport close", zap.Error(err))
		}

		if current {
			s.markOffline()
		}

		s.opts.Metrics.SessionClosed()
		s.logger.Info("station session closed",
			zap.Int("close_code", reason.Code),
			zap.String("reason", reason.Text),
			zap.Bool("current", current),
		)
		close(s.done)
	})
}

func (s *Session) markOffline() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.PersistTimeout)
	defer cancel()

	if s.opts.Store != nil {
		if err := s.opts.Store.SetOnline(ctx, s.id, false); err != nil {
			s.logger.Error("mark station offline failed", zap.Error(err))
		}
	}
	if s.opts.Presence != nil {
		if err := s.opts.Presence.Remove(ctx, s.id, s.token); err != nil {
			s.logger.Warn("remove station presence failed", zap.Error(err))
		}
	}
}

func (s *Session) appendLog(dir msglog.Direction, action string, f *ocpp.Frame) {
	if s.opts.MessageLog == nil {
		return
	}
	s.opts.MessageLog.Append(ocpp.LogEntry(s.id, dir, action, f))
}
