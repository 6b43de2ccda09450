package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"evcharge/backend/services/ocpp-server/internal/models"
)

// StationRepository manages charging station persistence.
type StationRepository struct {
	db *sql.DB
}

// NewStationRepository returns repository.
func NewStationRepository(db *sql.DB) *StationRepository {
	return &StationRepository{db: db}
}

// IsProvisioned reports whether stationID is known.
func (r *StationRepository) IsProvisioned(ctx context.Context, stationID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM charging_stations WHERE id = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, stationID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Upsert stores or updates station metadata reported at boot.
func (r *StationRepository) Upsert(ctx context.Context, station *models.Station) error {
	const query = `
		INSERT INTO charging_stations (id, name, vendor, model, serial_number, firmware_version, is_online, last_heartbeat, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			vendor = EXCLUDED.vendor,
			model = EXCLUDED.model,
			serial_number = EXCLUDED.serial_number,
			firmware_version = EXCLUDED.firmware_version,
			is_online = EXCLUDED.is_online,
			last_heartbeat = EXCLUDED.last_heartbeat,
			updated_at = NOW()
	`
	heartbeat := time.Now().UTC()
	if station.LastHeartbeat != nil {
		heartbeat = *station.LastHeartbeat
	}
	name := station.Name
	if name == "" {
		name = station.Vendor + " " + station.Model
	}
	_, err := r.db.ExecContext(ctx, query,
		station.ID,
		name,
		station.Vendor,
		station.Model,
		station.SerialNumber,
		station.FirmwareVersion,
		station.Online,
		heartbeat,
	)
	return err
}

// TouchHeartbeat records a heartbeat.
func (r *StationRepository) TouchHeartbeat(ctx context.Context, stationID string, at time.Time) error {
	const query = `
		UPDATE charging_stations
		SET last_heartbeat = $2,
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, stationID, at)
	return err
}

// UpdateStatus stores the last status of a connector.
func (r *StationRepository) UpdateStatus(ctx context.Context, status models.ConnectorStatus) error {
	const query = `
		INSERT INTO connector_statuses (station_id, connector_id, status, error_code, info, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (station_id, connector_id) DO UPDATE SET
			status = EXCLUDED.status,
			error_code = EXCLUDED.error_code,
			info = EXCLUDED.info,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		status.StationID,
		status.ConnectorID,
		status.Status,
		status.ErrorCode,
		status.Info,
		status.UpdatedAt,
	)
	return err
}

// SetOnline flips the online flag.
func (r *StationRepository) SetOnline(ctx context.Context, stationID string, online bool) error {
	const query = `
		UPDATE charging_stations
		SET is_online = $2,
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, stationID, online)
	return err
}

// ErrStationNotFound indicates missing station.
var ErrStationNotFound = errors.New("station not found")

// AuthKeyHash returns the stored authorization key hash of stationID. Unknown
// stations and stations without a key yield "".
func (r *StationRepository) AuthKeyHash(ctx context.Context, stationID string) (string, error) {
	const query = `SELECT auth_key_hash FROM charging_stations WHERE id = $1`
	var hash string
	err := r.db.QueryRowContext(ctx, query, stationID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// SetAuthKeyHash stores the authorization key hash of stationID.
func (r *StationRepository) SetAuthKeyHash(ctx context.Context, stationID, hash string) error {
	const query = `
		UPDATE charging_stations
		SET auth_key_hash = $2,
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, stationID, hash)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStationNotFound
	}
	return nil
}

// Get returns one station.
func (r *StationRepository) Get(ctx context.Context, stationID string) (*models.Station, error) {
	const query = `
		SELECT id, name, vendor, model, serial_number, firmware_version, is_online, last_heartbeat, created_at, updated_at
		FROM charging_stations
		WHERE id = $1
	`
	var s models.Station
	err := r.db.QueryRowContext(ctx, query, stationID).Scan(
		&s.ID, &s.Name, &s.Vendor, &s.Model, &s.SerialNumber, &s.FirmwareVersion,
		&s.Online, &s.LastHeartbeat, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns all stations ordered by id.
func (r *StationRepository) List(ctx context.Context) ([]models.Station, error) {
	const query = `
		SELECT id, name, vendor, model, serial_number, firmware_version, is_online, last_heartbeat, created_at, updated_at
		FROM charging_stations
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stations := make([]models.Station, 0)
	for rows.Next() {
		var s models.Station
		if err := rows.Scan(
			&s.ID,
			&s.Name,
			&s.Vendor,
			&s.Model,
			&s.SerialNumber,
			&s.FirmwareVersion,
			&s.Online,
			&s.LastHeartbeat,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		stations = append(stations, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stations, nil
}
