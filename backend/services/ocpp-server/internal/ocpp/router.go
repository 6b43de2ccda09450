package ocpp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"evcharge/backend/libs/logging"
	"evcharge/backend/services/ocpp-server/internal/metrics"
	"evcharge/backend/services/ocpp-server/internal/msglog"
	"evcharge/backend/services/ocpp-server/internal/ocpp/protocol"
)

// Session is the minimum a handler target must expose.
type Session interface {
	StationID() string
}

// HandlerFunc processes message payload and returns response body.
type HandlerFunc[S Session] func(ctx context.Context, sess S, payload json.RawMessage) (interface{}, error)

// Route binds an action to its handler.
type Route[S Session] struct {
	Action  string
	Handler HandlerFunc[S]
}

// Handle adapts a typed handler: the payload is decoded into T before fn runs.
func Handle[S Session, T any](fn func(ctx context.Context, sess S, req T) (interface{}, error)) HandlerFunc[S] {
	return func(ctx context.Context, sess S, payload json.RawMessage) (interface{}, error) {
		req, err := Decode[T](payload)
		if err != nil {
			return nil, NewError(ErrorCodeValidationFailed, "decode payload: %v", err)
		}
		return fn(ctx, sess, req)
	}
}

// Router dispatches OCPP actions to handlers. The table is fixed at construction.
type Router[S Session] struct {
	handlers  map[string]HandlerFunc[S]
	validator *payloadValidator
}

// NewRouter builds the action table. Every route must name a known inbound action and
// no action may be registered twice.
func NewRouter[S Session](routes ...Route[S]) (*Router[S], error) {
	handlers := make(map[string]HandlerFunc[S], len(routes))
	actions := make([]string, 0, len(routes))
	for _, route := range routes {
		if !protocol.IsInbound(route.Action) {
			return nil, fmt.Errorf("ocpp: unknown action %q", route.Action)
		}
		if route.Handler == nil {
			return nil, fmt.Errorf("ocpp: nil handler for %s", route.Action)
		}
		if _, dup := handlers[route.Action]; dup {
			return nil, fmt.Errorf("ocpp: duplicate handler for %s", route.Action)
		}
		handlers[route.Action] = route.Handler
		actions = append(actions, route.Action)
	}

	validator, err := newPayloadValidator(actions)
	if err != nil {
		return nil, err
	}
	return &Router[S]{handlers: handlers, validator: validator}, nil
}

// Actions returns the registered actions, sorted.
func (r *Router[S]) Actions() []string {
	out := make([]string, 0, len(r.handlers))
	for action := range r.handlers {
		out = append(out, action)
	}
	sort.Strings(out)
	return out
}

// Route validates payload and executes the handler for action. Handler panics are
// recovered into InternalError.
func (r *Router[S]) Route(ctx context.Context, sess S, action string, payload json.RawMessage) (resp interface{}, oerr *Error) {
	handler, ok := r.handlers[action]
	if !ok {
		return nil, NewError(ErrorCodeNotImplemented, "action %s is not supported", action)
	}
	if verr := r.validator.validate(action, payload); verr != nil {
		return nil, verr
	}

	defer func() {
		if rec := recover(); rec != nil {
			resp = nil
			oerr = NewError(ErrorCodeInternalError, "handler panic: %v", rec)
		}
	}()

	result, err := handler(ctx, sess, payload)
	if err != nil {
		return nil, AsError(err)
	}
	return result, nil
}

// MessageLog receives every dispatched frame.
type MessageLog interface {
	Append(entry msglog.Entry)
}

// Processor ties together routing, response encoding and message logging.
type Processor[S Session] struct {
	router  *Router[S]
	log     MessageLog
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewProcessor builds Processor. log and m may be nil.
func NewProcessor[S Session](router *Router[S], log MessageLog, m *metrics.Metrics, logger *zap.Logger) *Processor[S] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor[S]{
		router:  router,
		log:     log,
		metrics: m,
		logger:  logger,
	}
}

// Dispatch handles an inbound CALL and returns the CALLRESULT or CALLERROR to send back.
// The reply always carries the request's unique id.
func (p *Processor[S]) Dispatch(ctx context.Context, sess S, req *Frame) *Frame {
	started := time.Now()
	stationID := sess.StationID()

	p.append(stationID, msglog.DirectionIncoming, req.Action, req)

	var resp *Frame
	payload, oerr := p.router.Route(ctx, sess, req.Action, req.Payload)
	if oerr == nil {
		var err error
		resp, err = NewCallResult(req.UniqueID, payload)
		if err != nil {
			p.logger.Error("encode ocpp response failed", logging.Action(req.Action), zap.Error(err))
			oerr = NewError(ErrorCodeInternalError, "encode response: %v", err)
		}
	}
	result := "ok"
	if oerr != nil {
		p.logger.Warn("ocpp request failed",
			logging.StationID(stationID),
			logging.Action(req.Action),
			logging.MessageID(req.UniqueID),
			zap.String("code", string(oerr.Code)),
			zap.String("description", oerr.Description),
		)
		resp = NewCallError(req.UniqueID, oerr)
		result = string(oerr.Code)
	}

	p.append(stationID, msglog.DirectionOutgoing, req.Action, resp)
	p.metrics.ObserveRequest(req.Action, result, time.Since(started))
	return resp
}

func (p *Processor[S]) append(stationID string, dir msglog.Direction, action string, f *Frame) {
	if p.log == nil {
		return
	}
	p.log.Append(LogEntry(stationID, dir, action, f))
}

// LogEntry converts f into a message log entry. CALLERROR frames are stored as an
// object holding the error triple.
func LogEntry(stationID string, dir msglog.Direction, action string, f *Frame) msglog.Entry {
	payload := []byte(f.Payload)
	if f.Type == TypeCallError {
		payload, _ = json.Marshal(map[string]interface{}{
			"errorCode":        f.ErrorCode,
			"errorDescription": f.ErrorDescription,
			"errorDetails":     orEmpty(f.ErrorDetails),
		})
	}
	return msglog.Entry{
		StationID:   stationID,
		Direction:   dir,
		MessageType: f.Type.String(),
		Action:      action,
		MessageID:   f.UniqueID,
		Payload:     payload,
		At:          time.Now().UTC(),
	}
}
