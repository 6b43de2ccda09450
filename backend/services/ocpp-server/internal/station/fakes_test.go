package station

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"evcharge/backend/services/ocpp-server/internal/ocpp"
)

type fakeTransport struct {
	inbound  chan []byte
	closedCh chan struct{}

	mu          sync.Mutex
	written     [][]byte
	writeErr    error
	closed      bool
	closeCode   int
	closeReason string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound:  make(chan []byte, 16),
		closedCh: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case msg := <-f.inbound:
		return msg, nil
	case <-f.closedCh:
		return nil, ErrTransportClosed
	}
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrTransportClosed
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Close(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrTransportClosed
	}
	f.closed = true
	f.closeCode = code
	f.closeReason = reason
	close(f.closedCh)
	return nil
}

func (f *fakeTransport) push(raw string) {
	f.inbound <- []byte(raw)
}

func (f *fakeTransport) setWriteErr(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

func (f *fakeTransport) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

func (f *fakeTransport) frameAt(t *testing.T, index int) *ocpp.Frame {
	t.Helper()
	f.mu.Lock()
	require.Greater(t, len(f.written), index)
	raw := f.written[index]
	f.mu.Unlock()
	frame, err := ocpp.Parse(raw)
	require.NoError(t, err)
	return frame
}

func (f *fakeTransport) closeInfo() (bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.closeCode
}

type fakeStore struct {
	mu          sync.Mutex
	provisioned map[string]bool
	lookupErr   error
	online      map[string][]bool
	onlineErr   error
}

func newFakeStore(ids ...string) *fakeStore {
	s := &fakeStore{provisioned: make(map[string]bool), online: make(map[string][]bool)}
	for _, id := range ids {
		s.provisioned[id] = true
	}
	return s
}

func (s *fakeStore) IsProvisioned(ctx context.Context, stationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return false, s.lookupErr
	}
	return s.provisioned[stationID], nil
}

func (s *fakeStore) SetOnline(ctx context.Context, stationID string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[stationID] = append(s.online[stationID], online)
	return s.onlineErr
}

func (s *fakeStore) onlineHistory(stationID string) []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.online[stationID]...)
}

type fakePresence struct {
	mu      sync.Mutex
	entries map[string]string
}

func newFakePresence() *fakePresence {
	return &fakePresence{entries: make(map[string]string)}
}

func (p *fakePresence) Publish(ctx context.Context, stationID, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[stationID] = token
	return nil
}

func (p *fakePresence) Remove(ctx context.Context, stationID, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.entries[stationID] == token {
		delete(p.entries, stationID)
	}
	return nil
}

func (p *fakePresence) token(stationID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tok, ok := p.entries[stationID]
	return tok, ok
}

// echoDispatcher answers every CALL with {"action": <action>}, or blocks on gate when set.
type echoDispatcher struct {
	mu    sync.Mutex
	seen  []string
	gate  chan struct{}
	fails map[string]*ocpp.Error
}

func (d *echoDispatcher) Dispatch(ctx context.Context, sess *Session, req *ocpp.Frame) *ocpp.Frame {
	if d.gate != nil {
		<-d.gate
	}
	d.mu.Lock()
	d.seen = append(d.seen, req.UniqueID)
	fail := d.fails[req.Action]
	d.mu.Unlock()
	if fail != nil {
		return ocpp.NewCallError(req.UniqueID, fail)
	}
	resp, _ := ocpp.NewCallResult(req.UniqueID, map[string]string{"action": req.Action})
	return resp
}

func (d *echoDispatcher) order() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.seen...)
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func withIDs(t *testing.T, ids ...string) {
	t.Helper()
	original := idGenerator
	var mu sync.Mutex
	idGenerator = func() string {
		mu.Lock()
		defer mu.Unlock()
		if len(ids) == 0 {
			return original()
		}
		id := ids[0]
		ids = ids[1:]
		return id
	}
	t.Cleanup(func() { idGenerator = original })
}

func runSession(t *testing.T, id string, opts SessionOptions) (*Session, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	if opts.Dispatcher == nil {
		opts.Dispatcher = &echoDispatcher{}
	}
	sess := NewSession(id, ft, opts)
	if opts.Registry != nil {
		opts.Registry.Register(sess)
	}
	go sess.Run(context.Background())
	t.Cleanup(func() { sess.Close(ReasonShutdown) })
	return sess, ft
}

func isCode(err error, code ocpp.ErrorCode) bool {
	var oerr *ocpp.Error
	return errors.As(err, &oerr) && oerr.Code == code
}

func callResultJSON(id string, payload string) string {
	raw, _ := json.Marshal([]interface{}{3, id, json.RawMessage(payload)})
	return string(raw)
}
