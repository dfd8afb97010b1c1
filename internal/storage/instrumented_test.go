package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/radiusdt/vector-adplayer/internal/metrics"
	"github.com/radiusdt/vector-adplayer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrument(t *testing.T) {
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	sinkErr := errors.New("timeout")

	ok := Instrument("postgres", &stubRecorder{}, m)
	bad := Instrument("clickhouse", &stubRecorder{err: sinkErr}, m)

	d := &models.BeaconDelivery{ID: "d1", CycleID: "c1"}
	require.NoError(t, ok.SaveDelivery(context.Background(), d))

	err := bad.SaveDelivery(context.Background(), d)
	assert.ErrorIs(t, err, sinkErr)
	assert.Contains(t, err.Error(), "clickhouse sink")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.DeliveryErrors.WithLabelValues("postgres")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryErrors.WithLabelValues("clickhouse")))
}
