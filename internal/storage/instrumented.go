package storage

import (
	"context"
	"fmt"

	"github.com/radiusdt/vector-adplayer/internal/metrics"
	"github.com/radiusdt/vector-adplayer/internal/models"
)

// namedRecorder counts write failures per sink and names the sink in errors.
type namedRecorder struct {
	name    string
	next    DeliveryRecorder
	metrics *metrics.Metrics
}

// Instrument wraps r so that failed writes are counted under name.
func Instrument(name string, r DeliveryRecorder, m *metrics.Metrics) DeliveryRecorder {
	return &namedRecorder{name: name, next: r, metrics: m}
}

func (n *namedRecorder) SaveDelivery(ctx context.Context, d *models.BeaconDelivery) error {
	if err := n.next.SaveDelivery(ctx, d); err != nil {
		if n.metrics != nil {
			n.metrics.RecordDeliveryError(n.name)
		}
		return fmt.Errorf("%s sink: %w", n.name, err)
	}
	return nil
}
