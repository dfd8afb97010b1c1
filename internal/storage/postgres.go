package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/radiusdt/vector-adplayer/internal/database"
	"github.com/radiusdt/vector-adplayer/internal/models"
)

// PostgresDeliveryLog stores beacon deliveries in the beacon_deliveries table.
//
//	CREATE TABLE beacon_deliveries (
//	    id          UUID PRIMARY KEY,
//	    cycle_id    UUID NOT NULL,
//	    event       TEXT NOT NULL,
//	    url         TEXT NOT NULL,
//	    status_code INT  NOT NULL DEFAULT 0,
//	    error       TEXT NOT NULL DEFAULT '',
//	    latency_ms  BIGINT NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL
//	);
type PostgresDeliveryLog struct {
	db database.DBTX
}

// NewPostgresDeliveryLog creates a PostgreSQL-backed delivery log.
func NewPostgresDeliveryLog(db database.DBTX) *PostgresDeliveryLog {
	return &PostgresDeliveryLog{db: db}
}

// SaveDelivery stores a beacon delivery. Re-saving the same ID is a no-op.
func (s *PostgresDeliveryLog) SaveDelivery(ctx context.Context, d *models.BeaconDelivery) error {
	if d == nil {
		return nil
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO beacon_deliveries (id, cycle_id, event, url, status_code, error, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, d.ID, d.CycleID, d.Event, d.URL, d.StatusCode, d.Error, d.Latency.Milliseconds(), d.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save beacon delivery: %w", err)
	}
	return nil
}

// ListByCycle returns the deliveries of one ad cycle, oldest first.
func (s *PostgresDeliveryLog) ListByCycle(ctx context.Context, cycleID string) ([]*models.BeaconDelivery, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, cycle_id, event, url, status_code, error, latency_ms, created_at
		FROM beacon_deliveries
		WHERE cycle_id = $1
		ORDER BY created_at ASC
	`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list beacon deliveries: %w", err)
	}
	defer rows.Close()

	var result []*models.BeaconDelivery
	for rows.Next() {
		var d models.BeaconDelivery
		var latencyMS int64
		if err := rows.Scan(&d.ID, &d.CycleID, &d.Event, &d.URL, &d.StatusCode, &d.Error, &latencyMS, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan beacon delivery: %w", err)
		}
		d.Latency = time.Duration(latencyMS) * time.Millisecond
		result = append(result, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate beacon deliveries: %w", err)
	}
	return result, nil
}
