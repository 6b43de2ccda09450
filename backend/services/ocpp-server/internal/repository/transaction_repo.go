package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"evcharge/backend/services/ocpp-server/internal/models"
)

// ErrTransactionNotFound indicates missing transaction.
var ErrTransactionNotFound = errors.New("transaction not found")

const defaultListLimit = 50

// TransactionRepository handles persistence of charging transactions.
type TransactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository returns repository.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a started transaction.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	const query = `
		INSERT INTO charging_transactions (id, station_id, connector_id, id_tag, meter_start, status, start_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		tx.ID,
		tx.StationID,
		tx.ConnectorID,
		tx.IDTag,
		tx.MeterStart,
		tx.Status,
		tx.StartTime,
	)
	return err
}

// Complete finalizes transaction id of stationID. A transaction of another station
// reports ErrTransactionNotFound.
func (r *TransactionRepository) Complete(ctx context.Context, stationID string, id int64, meterStop int64, endTime time.Time, reason string) error {
	const query = `
		UPDATE charging_transactions
		SET meter_stop = $2,
		    energy_delivered = $2,
		    end_time = $3,
		    stop_reason = $4,
		    status = 'completed',
		    updated_at = NOW()
		WHERE id = $1 AND station_id = $5
	`
	result, err := r.db.ExecContext(ctx, query, id, meterStop, endTime, reason, stationID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// MaxID returns the largest transaction id stored, or 0.
func (r *TransactionRepository) MaxID(ctx context.Context) (int64, error) {
	const query = `SELECT COALESCE(MAX(id), 0) FROM charging_transactions`
	var id int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// List returns the latest transactions of all stations.
func (r *TransactionRepository) List(ctx context.Context, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	const query = `
		SELECT id, station_id, connector_id, id_tag, meter_start, meter_stop, energy_delivered, status, stop_reason, start_time, end_time
		FROM charging_transactions
		ORDER BY start_time DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// ListByStation returns the latest transactions of stationID.
func (r *TransactionRepository) ListByStation(ctx context.Context, stationID string, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	const query = `
		SELECT id, station_id, connector_id, id_tag, meter_start, meter_stop, energy_delivered, status, stop_reason, start_time, end_time
		FROM charging_transactions
		WHERE station_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, stationID, limit)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	defer rows.Close()

	txs := make([]models.Transaction, 0)
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(
			&t.ID,
			&t.StationID,
			&t.ConnectorID,
			&t.IDTag,
			&t.MeterStart,
			&t.MeterStop,
			&t.EnergyDelivered,
			&t.Status,
			&t.StopReason,
			&t.StartTime,
			&t.EndTime,
		); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}
