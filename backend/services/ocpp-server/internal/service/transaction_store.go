package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// TransactionStatus is the lifecycle state of a charging transaction.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionActive    TransactionStatus = "active"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

const (
	eventActivate = "activate"
	eventComplete = "complete"
	eventFail     = "fail"
)

var (
	ErrUnknownTransaction = errors.New("service: unknown transaction")
	ErrInvalidTransition  = errors.New("service: invalid transaction transition")
)

// Transaction is the runtime view of one charging transaction.
type Transaction struct {
	ID              int64             `json:"transactionId"`
	StationID       string            `json:"stationId"`
	ConnectorID     int               `json:"connectorId"`
	IDTag           string            `json:"idTag"`
	MeterStart      int64             `json:"meterStart"`
	MeterStop       int64             `json:"meterStop"`
	LastMeter       string            `json:"lastMeter,omitempty"`
	EnergyDelivered int64             `json:"energyDelivered"`
	Status          TransactionStatus `json:"status"`
	FailureReason   string            `json:"failureReason,omitempty"`
	StartTime       time.Time         `json:"startTime"`
	EndTime         *time.Time        `json:"endTime,omitempty"`
}

type transactionEntry struct {
	tx      Transaction
	machine *fsm.FSM
}

// TransactionStore keeps the transactions started through this process and hands out
// their ids. Ids are monotonic and never reused within the process.
type TransactionStore struct {
	mu     sync.Mutex
	lastID int64
	data   map[int64]*transactionEntry
}

// NewTransactionStore returns initialized store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		data: make(map[int64]*transactionEntry),
	}
}

// Seed makes sure ids handed out later are greater than maxID, typically the largest
// id already persisted.
func (s *TransactionStore) Seed(maxID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxID > s.lastID {
		s.lastID = maxID
	}
}

func newTransactionMachine() *fsm.FSM {
	return fsm.NewFSM(
		string(TransactionPending),
		fsm.Events{
			{Name: eventActivate, Src: []string{string(TransactionPending)}, Dst: string(TransactionActive)},
			{Name: eventComplete, Src: []string{string(TransactionActive)}, Dst: string(TransactionCompleted)},
			{Name: eventFail, Src: []string{string(TransactionPending), string(TransactionActive)}, Dst: string(TransactionFailed)},
		},
		fsm.Callbacks{},
	)
}

// Begin allocates an id and records a pending transaction.
func (s *TransactionStore) Begin(stationID string, connectorID int, idTag string, meterStart int64, at time.Time) Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	entry := &transactionEntry{
		tx: Transaction{
			ID:          s.lastID,
			StationID:   stationID,
			ConnectorID: connectorID,
			IDTag:       idTag,
			MeterStart:  meterStart,
			Status:      TransactionPending,
			StartTime:   at,
		},
		machine: newTransactionMachine(),
	}
	s.data[entry.tx.ID] = entry
	return entry.tx
}

// Activate moves a pending transaction to active.
func (s *TransactionStore) Activate(id int64) (Transaction, error) {
	return s.transition(id, "", eventActivate, nil)
}

// Complete finishes an active transaction of stationID. The delivered energy is
// recorded as the final meter value. A transaction owned by another station is
// reported as unknown and left untouched.
func (s *TransactionStore) Complete(stationID string, id int64, meterStop int64, at time.Time) (Transaction, error) {
	return s.transition(id, stationID, eventComplete, func(tx *Transaction) {
		end := at
		tx.MeterStop = meterStop
		tx.EnergyDelivered = meterStop
		tx.EndTime = &end
	})
}

// Fail marks a pending or active transaction as failed.
func (s *TransactionStore) Fail(id int64, reason string, at time.Time) (Transaction, error) {
	return s.transition(id, "", eventFail, func(tx *Transaction) {
		end := at
		tx.FailureReason = reason
		tx.EndTime = &end
	})
}

// transition fires event on transaction id. A non-empty owner must match the
// transaction's station.
func (s *TransactionStore) transition(id int64, owner, event string, apply func(*Transaction)) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[id]
	if !ok {
		return Transaction{}, fmt.Errorf("%w: %d", ErrUnknownTransaction, id)
	}
	if owner != "" && entry.tx.StationID != owner {
		return Transaction{}, fmt.Errorf("%w: %d does not belong to %s", ErrUnknownTransaction, id, owner)
	}
	if err := entry.machine.Event(context.Background(), event); err != nil {
		return entry.tx, fmt.Errorf("%w: %s from %s: %v", ErrInvalidTransition, event, entry.machine.Current(), err)
	}
	entry.tx.Status = TransactionStatus(entry.machine.Current())
	if apply != nil {
		apply(&entry.tx)
	}
	return entry.tx, nil
}

// RecordMeter stores the latest sampled value for an active transaction.
func (s *TransactionStore) RecordMeter(id int64, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.data[id]
	if !ok || entry.tx.Status != TransactionActive {
		return false
	}
	entry.tx.LastMeter = value
	return true
}

// Get returns transaction and bool.
func (s *TransactionStore) Get(id int64) (Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.data[id]
	if !ok {
		return Transaction{}, false
	}
	return entry.tx, true
}

// Active returns the active transactions of stationID, or of every station when
// stationID is empty, ordered by id.
func (s *TransactionStore) Active(stationID string) []Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Transaction, 0)
	for _, entry := range s.data {
		if entry.tx.Status != TransactionActive {
			continue
		}
		if stationID != "" && entry.tx.StationID != stationID {
			continue
		}
		out = append(out, entry.tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Delete removes transaction context.
func (s *TransactionStore) Delete(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
}
