package clients

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingNotifier struct {
	release chan struct{}

	mu   sync.Mutex
	sent []int64
}

func (n *blockingNotifier) NotifyTransaction(_ context.Context, ev TransactionEvent) error {
	<-n.release
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, ev.TransactionID)
	return nil
}

func TestEventQueueDoesNotWaitForDelivery(t *testing.T) {
	next := &blockingNotifier{release: make(chan struct{})}
	q := NewEventQueue(next, 4, nil)

	started := time.Now()
	for id := int64(1); id <= 3; id++ {
		require.NoError(t, q.NotifyTransaction(context.Background(), TransactionEvent{TransactionID: id}))
	}
	assert.Less(t, time.Since(started), 100*time.Millisecond)

	close(next.release)
	q.Close()
	assert.Equal(t, []int64{1, 2, 3}, next.sent)
}

func TestEventQueueFullAndClosed(t *testing.T) {
	next := &blockingNotifier{release: make(chan struct{})}
	q := NewEventQueue(next, 1, nil)

	// the sender holds one event while the buffer holds another
	require.NoError(t, q.NotifyTransaction(context.Background(), TransactionEvent{TransactionID: 1}))
	require.Eventually(t, func() bool { return len(q.queue) == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.NotifyTransaction(context.Background(), TransactionEvent{TransactionID: 2}))
	assert.ErrorIs(t, q.NotifyTransaction(context.Background(), TransactionEvent{TransactionID: 3}), ErrQueueFull)

	close(next.release)
	q.Close()
	assert.ErrorIs(t, q.NotifyTransaction(context.Background(), TransactionEvent{TransactionID: 4}), ErrQueueFull)
	assert.Equal(t, []int64{1, 2}, next.sent)
}
