package storage

import (
	"context"
	"fmt"

	"github.com/radiusdt/vector-adplayer/internal/models"
)

// clickHouseExecer is the part of clickhouse-go's driver.Conn used here.
type clickHouseExecer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// ClickHouseDeliveryLog appends beacon deliveries to a MergeTree table for
// analytics. It is write-only.
//
//	CREATE TABLE beacon_deliveries (
//	    id          UUID,
//	    cycle_id    UUID,
//	    event       LowCardinality(String),
//	    url         String,
//	    status_code UInt16,
//	    error       String,
//	    latency_ms  UInt32,
//	    created_at  DateTime64(3)
//	) ENGINE = MergeTree ORDER BY (created_at, cycle_id);
type ClickHouseDeliveryLog struct {
	conn clickHouseExecer
}

// NewClickHouseDeliveryLog creates a ClickHouse delivery recorder.
func NewClickHouseDeliveryLog(conn clickHouseExecer) *ClickHouseDeliveryLog {
	return &ClickHouseDeliveryLog{conn: conn}
}

func (s *ClickHouseDeliveryLog) SaveDelivery(ctx context.Context, d *models.BeaconDelivery) error {
	if d == nil {
		return nil
	}

	err := s.conn.Exec(ctx, `
		INSERT INTO beacon_deliveries (id, cycle_id, event, url, status_code, error, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.CycleID, d.Event, d.URL, uint16(d.StatusCode), d.Error, uint32(d.Latency.Milliseconds()), d.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert beacon delivery into ClickHouse: %w", err)
	}
	return nil
}
