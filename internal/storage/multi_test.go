package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/radiusdt/vector-adplayer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecorder struct {
	saved []*models.BeaconDelivery
	err   error
}

func (s *stubRecorder) SaveDelivery(ctx context.Context, d *models.BeaconDelivery) error {
	s.saved = append(s.saved, d)
	return s.err
}

func TestMultiLog_FansOutAndCollectsErrors(t *testing.T) {
	ctx := context.Background()
	primary := NewInMemoryDeliveryLog()
	failing := &stubRecorder{err: errors.New("sink down")}
	healthy := &stubRecorder{}

	m := NewMultiLog(primary, failing, healthy)

	err := m.SaveDelivery(ctx, &models.BeaconDelivery{ID: "d1", CycleID: "c1", Event: "start"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")

	assert.Len(t, failing.saved, 1)
	assert.Len(t, healthy.saved, 1)

	got, err := m.ListByCycle(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
