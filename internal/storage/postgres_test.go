package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/radiusdt/vector-adplayer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDeliveryLog_SaveDelivery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d := &models.BeaconDelivery{
		ID:         "d1",
		CycleID:    "c1",
		Event:      "midpoint",
		URL:        "https://t.example/mid",
		StatusCode: 204,
		Latency:    42 * time.Millisecond,
		Timestamp:  ts,
	}

	mock.ExpectExec("INSERT INTO beacon_deliveries").
		WithArgs("d1", "c1", "midpoint", "https://t.example/mid", 204, "", int64(42), ts).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	log := NewPostgresDeliveryLog(mock)
	require.NoError(t, log.SaveDelivery(context.Background(), d))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeliveryLog_SaveDeliveryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO beacon_deliveries").
		WillReturnError(errors.New("connection reset"))

	log := NewPostgresDeliveryLog(mock)
	err = log.SaveDelivery(context.Background(), &models.BeaconDelivery{ID: "d1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeliveryLog_ListByCycle(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"id", "cycle_id", "event", "url", "status_code", "error", "latency_ms", "created_at"}).
		AddRow("d1", "c1", "start", "https://t/start", 200, "", int64(12), ts).
		AddRow("d2", "c1", "pause", "https://t/pause", 0, "timeout", int64(5000), ts.Add(time.Second))

	mock.ExpectQuery("SELECT (.+) FROM beacon_deliveries").
		WithArgs("c1").
		WillReturnRows(rows)

	log := NewPostgresDeliveryLog(mock)
	got, err := log.ListByCycle(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "start", got[0].Event)
	assert.Equal(t, 12*time.Millisecond, got[0].Latency)
	assert.True(t, got[0].Succeeded())
	assert.Equal(t, "timeout", got[1].Error)
	assert.Equal(t, 5*time.Second, got[1].Latency)
	assert.NoError(t, mock.ExpectationsWereMet())
}
