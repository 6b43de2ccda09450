// Package msglog forwards OCPP traffic to the message log store without blocking the
// session that produced it.
package msglog

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"evcharge/backend/libs/logging"
	"evcharge/backend/services/ocpp-server/internal/metrics"
)

// Direction of a logged frame relative to the server.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Entry is one logged frame.
type Entry struct {
	StationID   string
	Direction   Direction
	MessageType string
	Action      string
	MessageID   string
	Payload     []byte
	At          time.Time
}

// Sink persists entries.
type Sink interface {
	Save(ctx context.Context, entry Entry) error
}

// Options tunes the writer. Zero values fall back to defaults.
type Options struct {
	Workers      int
	BufferSize   int
	WriteTimeout time.Duration
}

const (
	defaultWorkers      = 4
	defaultBufferSize   = 256
	defaultWriteTimeout = 5 * time.Second
)

// Writer fans entries out to a fixed set of workers. Entries of one station always land
// on the same worker, so they are stored in the order they were appended.
type Writer struct {
	sink         Sink
	logger       *zap.Logger
	metrics      *metrics.Metrics
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	shards []chan Entry
	wg     sync.WaitGroup
}

// NewWriter starts the workers.
func NewWriter(sink Sink, opts Options, logger *zap.Logger, m *metrics.Metrics) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	w := &Writer{
		sink:         sink,
		logger:       logger,
		metrics:      m,
		writeTimeout: opts.WriteTimeout,
		shards:       make([]chan Entry, opts.Workers),
	}
	for i := range w.shards {
		ch := make(chan Entry, opts.BufferSize)
		w.shards[i] = ch
		w.wg.Add(1)
		go w.run(ch)
	}
	return w
}

// Append enqueues entry. It never blocks: when the station's shard is full the entry is
// dropped and counted.
func (w *Writer) Append(entry Entry) {
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}

	shard := w.shards[xxhash.Sum64String(entry.StationID)%uint64(len(w.shards))]
	select {
	case shard <- entry:
	default:
		w.metrics.MessageLogDrop()
		w.logger.Warn("dropping message log entry, buffer full",
			logging.StationID(entry.StationID),
			logging.Action(entry.Action),
			logging.MessageID(entry.MessageID),
		)
	}
}

// Close stops accepting entries and waits until queued ones are written.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	for _, ch := range w.shards {
		close(ch)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Writer) run(ch <-chan Entry) {
	defer w.wg.Done()
	for entry := range ch {
		ctx, cancel := context.WithTimeout(context.Background(), w.writeTimeout)
		err := w.sink.Save(ctx, entry)
		cancel()
		if err != nil {
			w.logger.Warn("message log write failed",
				logging.StationID(entry.StationID),
				logging.Action(entry.Action),
				logging.MessageID(entry.MessageID),
				zap.Error(err),
			)
		}
	}
}
