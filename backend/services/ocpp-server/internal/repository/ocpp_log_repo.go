package repository

import (
	"context"
	"database/sql"

	"evcharge/backend/services/ocpp-server/internal/models"
	"evcharge/backend/services/ocpp-server/internal/msglog"
)

// OCPPLogRepository stores raw OCPP messages.
type OCPPLogRepository struct {
	db *sql.DB
}

// NewOCPPLogRepository ctor.
func NewOCPPLogRepository(db *sql.DB) *OCPPLogRepository {
	return &OCPPLogRepository{db: db}
}

// Save stores log entry.
func (r *OCPPLogRepository) Save(ctx context.Context, entry msglog.Entry) error {
	const query = `
		INSERT INTO ocpp_messages (station_id, direction, message_type, action, message_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.StationID,
		string(entry.Direction),
		entry.MessageType,
		entry.Action,
		entry.MessageID,
		string(entry.Payload),
		entry.At,
	)
	return err
}

// ListByStation returns the latest messages of stationID, newest first.
func (r *OCPPLogRepository) ListByStation(ctx context.Context, stationID string, limit int) ([]models.OCPPMessage, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	const query = `
		SELECT id, station_id, direction, message_type, action, message_id, payload, created_at
		FROM ocpp_messages
		WHERE station_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, stationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.OCPPMessage, 0)
	for rows.Next() {
		var m models.OCPPMessage
		if err := rows.Scan(&m.ID, &m.StationID, &m.Direction, &m.MessageType, &m.Action, &m.MessageID, &m.Payload, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}
