package storage

import (
	"context"

	"github.com/radiusdt/vector-adplayer/internal/models"
	"go.uber.org/multierr"
)

var _ DeliveryLog = (*MultiLog)(nil)

// MultiLog reads from a primary log and fans writes out to every recorder.
// A failing recorder does not stop the others.
type MultiLog struct {
	primary   DeliveryLog
	recorders []DeliveryRecorder
}

// NewMultiLog creates a fan-out log. The primary also receives writes.
func NewMultiLog(primary DeliveryLog, recorders ...DeliveryRecorder) *MultiLog {
	return &MultiLog{primary: primary, recorders: recorders}
}

func (m *MultiLog) SaveDelivery(ctx context.Context, d *models.BeaconDelivery) error {
	err := m.primary.SaveDelivery(ctx, d)
	for _, r := range m.recorders {
		err = multierr.Append(err, r.SaveDelivery(ctx, d))
	}
	return err
}

func (m *MultiLog) ListByCycle(ctx context.Context, cycleID string) ([]*models.BeaconDelivery, error) {
	return m.primary.ListByCycle(ctx, cycleID)
}
