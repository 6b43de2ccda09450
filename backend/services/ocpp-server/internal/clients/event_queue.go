package clients

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"evcharge/backend/libs/logging"
)

// ErrQueueFull is returned when an event cannot be queued without blocking.
var ErrQueueFull = errors.New("clients: event queue full")

// TransactionNotifier delivers one event.
type TransactionNotifier interface {
	NotifyTransaction(ctx context.Context, ev TransactionEvent) error
}

const defaultQueueSize = 256

// EventQueue hands transaction events to a single background sender so station
// sessions never wait on the downstream endpoint. Events are sent in queue order.
type EventQueue struct {
	next   TransactionNotifier
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan TransactionEvent
	done   chan struct{}
}

// NewEventQueue starts the sender. size <= 0 uses a default buffer.
func NewEventQueue(next TransactionNotifier, size int, logger *zap.Logger) *EventQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = defaultQueueSize
	}
	q := &EventQueue{
		next:   next,
		logger: logger,
		queue:  make(chan TransactionEvent, size),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// NotifyTransaction queues ev. It never blocks; a full or closed queue drops the event.
func (q *EventQueue) NotifyTransaction(_ context.Context, ev TransactionEvent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueFull
	}
	select {
	case q.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events and waits until the queued ones are sent.
func (q *EventQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.queue)
	q.mu.Unlock()
	<-q.done
}

func (q *EventQueue) run() {
	defer close(q.done)
	for ev := range q.queue {
		if err := q.next.NotifyTransaction(context.Background(), ev); err != nil {
			q.logger.Warn("transaction event not delivered",
				logging.StationID(ev.StationID),
				zap.String("event", ev.Event),
				zap.Int64("transaction_id", ev.TransactionID),
				zap.Error(err),
			)
		}
	}
}
