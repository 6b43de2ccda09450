package ocpp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcharge/backend/services/ocpp-server/internal/metrics"
	"evcharge/backend/services/ocpp-server/internal/msglog"
	"evcharge/backend/services/ocpp-server/internal/ocpp/protocol"
)

type fakeSession struct{ id string }

func (s fakeSession) StationID() string { return s.id }

type memoryLog struct {
	mu      sync.Mutex
	entries []msglog.Entry
}

func (l *memoryLog) Append(entry msglog.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func bootRoute(t *testing.T) Route[fakeSession] {
	t.Helper()
	return Route[fakeSession]{
		Action: protocol.ActionBootNotification,
		Handler: Handle(func(ctx context.Context, sess fakeSession, req protocol.BootNotificationRequest) (interface{}, error) {
			return protocol.BootNotificationResponse{
				Status:   protocol.RegistrationAccepted,
				Interval: 300,
			}, nil
		}),
	}
}

func TestNewRouterRejectsBadTables(t *testing.T) {
	noop := func(context.Context, fakeSession, json.RawMessage) (interface{}, error) { return nil, nil }

	_, err := NewRouter(Route[fakeSession]{Action: "Reset", Handler: noop})
	assert.Error(t, err, "outbound-only action")

	_, err = NewRouter(Route[fakeSession]{Action: protocol.ActionHeartbeat})
	assert.Error(t, err, "nil handler")

	_, err = NewRouter(
		Route[fakeSession]{Action: protocol.ActionHeartbeat, Handler: noop},
		Route[fakeSession]{Action: protocol.ActionHeartbeat, Handler: noop},
	)
	assert.Error(t, err, "duplicate")

	r, err := NewRouter(
		Route[fakeSession]{Action: protocol.ActionHeartbeat, Handler: noop},
		bootRoute(t),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{protocol.ActionBootNotification, protocol.ActionHeartbeat}, r.Actions())
}

func TestRouteOutcomes(t *testing.T) {
	r, err := NewRouter(
		bootRoute(t),
		Route[fakeSession]{
			Action: protocol.ActionHeartbeat,
			Handler: func(context.Context, fakeSession, json.RawMessage) (interface{}, error) {
				panic("boom")
			},
		},
		Route[fakeSession]{
			Action: protocol.ActionAuthorize,
			Handler: func(context.Context, fakeSession, json.RawMessage) (interface{}, error) {
				return nil, errors.New("store unavailable")
			},
		},
	)
	require.NoError(t, err)
	ctx := context.Background()
	sess := fakeSession{id: "CP-1"}

	resp, oerr := r.Route(ctx, sess, protocol.ActionBootNotification,
		json.RawMessage(`{"chargePointVendor":"V","chargePointModel":"M"}`))
	require.Nil(t, oerr)
	assert.Equal(t, protocol.RegistrationAccepted, resp.(protocol.BootNotificationResponse).Status)

	_, oerr = r.Route(ctx, sess, "DataTransfer", json.RawMessage(`{}`))
	require.NotNil(t, oerr)
	assert.Equal(t, ErrorCodeNotImplemented, oerr.Code)

	_, oerr = r.Route(ctx, sess, protocol.ActionBootNotification, json.RawMessage(`{"chargePointVendor":"V"}`))
	require.NotNil(t, oerr)
	assert.Equal(t, ErrorCodeValidationFailed, oerr.Code)
	assert.Contains(t, oerr.Description, "chargePointModel")

	_, oerr = r.Route(ctx, sess, protocol.ActionHeartbeat, json.RawMessage(`{}`))
	require.NotNil(t, oerr)
	assert.Equal(t, ErrorCodeInternalError, oerr.Code)

	_, oerr = r.Route(ctx, sess, protocol.ActionAuthorize, json.RawMessage(`{"idTag":"tag"}`))
	require.NotNil(t, oerr)
	assert.Equal(t, ErrorCodeInternalError, oerr.Code)
	assert.Contains(t, oerr.Description, "store unavailable")
}

func TestProcessorDispatch(t *testing.T) {
	r, err := NewRouter(bootRoute(t))
	require.NoError(t, err)

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	log := &memoryLog{}
	p := NewProcessor(r, log, m, nil)
	sess := fakeSession{id: "CP-7"}

	req := &Frame{
		Type:     TypeCall,
		UniqueID: "boot-1",
		Action:   protocol.ActionBootNotification,
		Payload:  json.RawMessage(`{"chargePointVendor":"V","chargePointModel":"M"}`),
	}
	resp := p.Dispatch(context.Background(), sess, req)
	require.Equal(t, TypeCallResult, resp.Type)
	assert.Equal(t, "boot-1", resp.UniqueID)

	var body protocol.BootNotificationResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &body))
	assert.Equal(t, protocol.RegistrationAccepted, body.Status)
	assert.Equal(t, 300, body.Interval)

	unknown := &Frame{Type: TypeCall, UniqueID: "x-9", Action: "FirmwareStatusNotification", Payload: json.RawMessage(`{}`)}
	resp = p.Dispatch(context.Background(), sess, unknown)
	require.Equal(t, TypeCallError, resp.Type)
	assert.Equal(t, "x-9", resp.UniqueID)
	assert.Equal(t, string(ErrorCodeNotImplemented), resp.ErrorCode)

	log.mu.Lock()
	defer log.mu.Unlock()
	require.Len(t, log.entries, 4)
	assert.Equal(t, msglog.DirectionIncoming, log.entries[0].Direction)
	assert.Equal(t, msglog.DirectionOutgoing, log.entries[1].Direction)
	assert.Equal(t, "CallResult", log.entries[1].MessageType)
	assert.Equal(t, "CP-7", log.entries[3].StationID)
	assert.Equal(t, "CallError", log.entries[3].MessageType)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(protocol.ActionBootNotification, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("FirmwareStatusNotification", string(ErrorCodeNotImplemented))))
}
