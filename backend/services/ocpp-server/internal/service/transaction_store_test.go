package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionLifecycle(t *testing.T) {
	store := NewTransactionStore()
	store.Seed(41)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tx := store.Begin("CP-1", 1, "tag-1", 1000, start)
	assert.Equal(t, int64(42), tx.ID)
	assert.Equal(t, TransactionPending, tx.Status)

	tx, err := store.Activate(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, TransactionActive, tx.Status)
	assert.True(t, store.RecordMeter(tx.ID, "1500"))

	end := start.Add(time.Hour)
	tx, err = store.Complete("CP-1", tx.ID, 9000, end)
	require.NoError(t, err)
	assert.Equal(t, TransactionCompleted, tx.Status)
	assert.Equal(t, int64(9000), tx.MeterStop)
	assert.Equal(t, int64(9000), tx.EnergyDelivered)
	require.NotNil(t, tx.EndTime)
	assert.Equal(t, end, *tx.EndTime)
	assert.Equal(t, "1500", tx.LastMeter)

	assert.False(t, store.RecordMeter(tx.ID, "9100"), "completed transactions take no readings")
}

func TestTransactionCompleteScopedToStation(t *testing.T) {
	store := NewTransactionStore()
	now := time.Now()

	tx := store.Begin("CP-1", 2, "tag", 0, now)
	_, err := store.Activate(tx.ID)
	require.NoError(t, err)

	_, err = store.Complete("CP-2", tx.ID, 500, now)
	assert.ErrorIs(t, err, ErrUnknownTransaction)

	got, ok := store.Get(tx.ID)
	require.True(t, ok)
	assert.Equal(t, TransactionActive, got.Status)
	assert.Nil(t, got.EndTime)

	_, err = store.Complete("CP-1", tx.ID, 500, now)
	require.NoError(t, err)
}

func TestTransactionInvalidTransitions(t *testing.T) {
	store := NewTransactionStore()
	now := time.Now()

	tx := store.Begin("CP-1", 1, "tag", 0, now)
	_, err := store.Complete("CP-1", tx.ID, 10, now)
	assert.True(t, errors.Is(err, ErrInvalidTransition), "pending cannot complete")

	_, err = store.Fail(tx.ID, "rejected", now)
	require.NoError(t, err)
	_, err = store.Activate(tx.ID)
	assert.True(t, errors.Is(err, ErrInvalidTransition), "failed is terminal")

	got, ok := store.Get(tx.ID)
	require.True(t, ok)
	assert.Equal(t, TransactionFailed, got.Status)
	assert.Equal(t, "rejected", got.FailureReason)

	_, err = store.Activate(999)
	assert.True(t, errors.Is(err, ErrUnknownTransaction))
}

func TestTransactionIDsAreUniqueAndIncreasing(t *testing.T) {
	store := NewTransactionStore()
	store.Seed(100)
	store.Seed(50)

	const n = 200
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- store.Begin("CP-1", 1, "tag", 0, time.Now()).ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool, n)
	for id := range ids {
		assert.Greater(t, id, int64(100))
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestTransactionActiveFilter(t *testing.T) {
	store := NewTransactionStore()
	now := time.Now()
	a := store.Begin("CP-1", 1, "t", 0, now)
	b := store.Begin("CP-2", 1, "t", 0, now)
	store.Begin("CP-1", 2, "t", 0, now)
	_, _ = store.Activate(a.ID)
	_, _ = store.Activate(b.ID)

	assert.Len(t, store.Active(""), 2)
	active := store.Active("CP-1")
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)

	store.Delete(a.ID)
	_, ok := store.Get(a.ID)
	assert.False(t, ok)
}
