package storage

import (
	"context"
	"sync"
	"time"

	"github.com/radiusdt/vector-adplayer/internal/models"
)

// InMemoryDeliveryLog keeps beacon deliveries in memory, indexed by cycle.
type InMemoryDeliveryLog struct {
	mu         sync.RWMutex
	deliveries map[string]*models.BeaconDelivery

	// cycle_id -> []delivery_id, in insertion order
	byCycle map[string][]string
}

// NewInMemoryDeliveryLog creates an empty in-memory delivery log.
func NewInMemoryDeliveryLog() *InMemoryDeliveryLog {
	return &InMemoryDeliveryLog{
		deliveries: make(map[string]*models.BeaconDelivery),
		byCycle:    make(map[string][]string),
	}
}

func (s *InMemoryDeliveryLog) SaveDelivery(ctx context.Context, d *models.BeaconDelivery) error {
	if d == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.deliveries[d.ID]; !exists {
		s.byCycle[d.CycleID] = append(s.byCycle[d.CycleID], d.ID)
	}
	cp := *d
	s.deliveries[d.ID] = &cp
	return nil
}

func (s *InMemoryDeliveryLog) ListByCycle(ctx context.Context, cycleID string) ([]*models.BeaconDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, ok := s.byCycle[cycleID]
	if !ok {
		return nil, nil
	}

	result := make([]*models.BeaconDelivery, 0, len(ids))
	for _, id := range ids {
		if d, ok := s.deliveries[id]; ok {
			cp := *d
			result = append(result, &cp)
		}
	}
	return result, nil
}

// CleanupBefore removes deliveries older than before and returns how many
// were dropped.
func (s *InMemoryDeliveryLog) CleanupBefore(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for cycleID, ids := range s.byCycle {
		kept := ids[:0]
		for _, id := range ids {
			d := s.deliveries[id]
			if d != nil && d.Timestamp.Before(before) {
				delete(s.deliveries, id)
				count++
				continue
			}
			kept = append(kept, id)
		}
		if len(kept) > 0 {
			s.byCycle[cycleID] = kept
		} else {
			delete(s.byCycle, cycleID)
		}
	}
	return count, nil
}
