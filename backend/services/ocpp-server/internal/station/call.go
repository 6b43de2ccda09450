package station

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"evcharge/backend/libs/logging"
	"evcharge/backend/services/ocpp-server/internal/msglog"
	"evcharge/backend/services/ocpp-server/internal/ocpp"
	"evcharge/backend/services/ocpp-server/internal/ocpp/protocol"
)

var idGenerator = uuid.NewString

type callResult struct {
	payload json.RawMessage
	err     error
}

// pendingCall is a one shot slot. Whoever removes it from the pending map owns the
// single send on result.
type pendingCall struct {
	action string
	result chan callResult
}

// Call sends a server initiated CALL and waits for the station's answer. A CALLERROR
// reply is returned as *ocpp.Error carrying the station's code. timeout <= 0 uses the
// session default.
func (s *Session) Call(ctx context.Context, action string, payload interface{}, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = s.opts.CallTimeout
	}
	started := time.Now()

	res, err := s.call(ctx, action, payload, timeout)
	result := "ok"
	if err != nil {
		result = string(ocpp.AsError(err).Code)
	}
	s.opts.Metrics.ObserveCall(action, result, time.Since(started))
	return res, err
}

func (s *Session) call(ctx context.Context, action string, payload interface{}, timeout time.Duration) (json.RawMessage, error) {
	id, slot, err := s.register(action)
	if err != nil {
		return nil, err
	}

	frame, err := ocpp.NewCall(id, action, payload)
	if err != nil {
		s.takePending(id)
		return nil, fmt.Errorf("station: build %s call: %w", action, err)
	}
	s.appendLog(msglog.DirectionOutgoing, action, frame)
	if err := s.send(frame); err != nil {
		if _, ok := s.takePending(id); !ok {
			// teardown already failed the slot
			return s.await(slot)
		}
		s.logger.Warn("send call failed", logging.Action(action), logging.MessageID(id), zap.Error(err))
		return nil, ocpp.NewError(ocpp.ErrorCodeDisconnected, "send %s to %s: %v", action, s.id, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-slot:
		return res.payload, res.err
	case <-timer.C:
		if _, ok := s.takePending(id); !ok {
			return s.await(slot)
		}
		s.logger.Warn("call timed out", logging.Action(action), logging.MessageID(id), zap.Duration("timeout", timeout))
		return nil, ocpp.NewError(ocpp.ErrorCodeTimeout, "%s to %s got no answer within %s", action, s.id, timeout)
	case <-ctx.Done():
		if _, ok := s.takePending(id); !ok {
			return s.await(slot)
		}
		return nil, ctx.Err()
	}
}

// await receives a result whose slot was already claimed by a resolver.
func (s *Session) await(slot <-chan callResult) (json.RawMessage, error) {
	res := <-slot
	return res.payload, res.err
}

func (s *Session) register(action string) (string, <-chan callResult, error) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.closed {
		return "", nil, ocpp.NewError(ocpp.ErrorCodeDisconnected, "station %s disconnected", s.id)
	}

	id := idGenerator()
	for {
		if _, taken := s.pending[id]; !taken && id != "" {
			break
		}
		id = idGenerator()
	}
	call := &pendingCall{action: action, result: make(chan callResult, 1)}
	s.pending[id] = call
	return id, call.result, nil
}

func (s *Session) takePending(id string) (*pendingCall, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	call, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	return call, ok
}

func (s *Session) resolve(f *ocpp.Frame) {
	call, ok := s.takePending(f.UniqueID)
	if !ok {
		s.logger.Debug("discarding unmatched response",
			logging.MessageID(f.UniqueID),
			zap.String("type", f.Type.String()),
		)
		return
	}
	s.appendLog(msglog.DirectionIncoming, call.action, f)
	if oerr := f.Err(); oerr != nil {
		call.result <- callResult{err: oerr}
		return
	}
	call.result <- callResult{payload: f.Payload}
}

func (s *Session) failPending() {
	s.pendingMu.Lock()
	s.closed = true
	pending := s.pending
	s.pending = make(map[string]*pendingCall)
	s.pendingMu.Unlock()

	for id, call := range pending {
		call.result <- callResult{err: ocpp.NewError(ocpp.ErrorCodeDisconnected, "station %s disconnected before answering %s %s", s.id, call.action, id)}
	}
}

// RemoteStart asks the station to start a transaction and returns the reported status.
func (s *Session) RemoteStart(ctx context.Context, idTag string, connectorID *int) (string, error) {
	return s.statusCall(ctx, protocol.ActionRemoteStartTransaction, protocol.RemoteStartTransactionRequest{
		ConnectorID: connectorID,
		IdTag:       idTag,
	})
}

// RemoteStop asks the station to stop transactionID.
func (s *Session) RemoteStop(ctx context.Context, transactionID int64) (string, error) {
	return s.statusCall(ctx, protocol.ActionRemoteStopTransaction, protocol.RemoteStopTransactionRequest{
		TransactionID: transactionID,
	})
}

// ChangeConfiguration sets one configuration key on the station.
func (s *Session) ChangeConfiguration(ctx context.Context, key, value string) (string, error) {
	return s.statusCall(ctx, protocol.ActionChangeConfiguration, protocol.ChangeConfigurationRequest{
		Key:   key,
		Value: value,
	})
}

func (s *Session) statusCall(ctx context.Context, action string, req interface{}) (string, error) {
	raw, err := s.Call(ctx, action, req, 0)
	if err != nil {
		return "", err
	}
	resp, err := ocpp.Decode[protocol.StatusResponse](raw)
	if err != nil {
		return "", ocpp.NewError(ocpp.ErrorCodeProtocolError, "decode %s response: %v", action, err)
	}
	return resp.Status, nil
}
