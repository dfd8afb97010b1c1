package storage

import (
	"context"

	"github.com/radiusdt/vector-adplayer/internal/models"
)

// =============================================
// BEACON DELIVERY LOG
// =============================================

// DeliveryRecorder persists beacon delivery outcomes.
type DeliveryRecorder interface {
	SaveDelivery(ctx context.Context, d *models.BeaconDelivery) error
}

// DeliveryLog is a DeliveryRecorder that can also be read back per ad cycle.
type DeliveryLog interface {
	DeliveryRecorder
	ListByCycle(ctx context.Context, cycleID string) ([]*models.BeaconDelivery, error)
}
