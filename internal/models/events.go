package models

import (
	"time"
)

// ===========================================
// BEACON DELIVERY
// ===========================================

// BeaconDelivery is the outcome of one tracking beacon GET.
type BeaconDelivery struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Ad cycle the beacon belongs to
	CycleID string `json:"cycle_id"`

	// Tracking event name (start, midpoint, pause, impression, click...)
	Event string `json:"event"`
	URL   string `json:"url"`

	// Zero when the request never got a response
	StatusCode int           `json:"status_code,omitempty"`
	Error      string        `json:"error,omitempty"`
	Latency    time.Duration `json:"latency_ns"`
}

// Succeeded reports whether the beacon got a 2xx response.
func (d *BeaconDelivery) Succeeded() bool {
	return d.Error == "" && d.StatusCode >= 200 && d.StatusCode < 300
}

// Outcome is a short label for metrics and logs.
func (d *BeaconDelivery) Outcome() string {
	switch {
	case d.Error != "":
		return "error"
	case d.Succeeded():
		return "ok"
	default:
		return "non_2xx"
	}
}

// ===========================================
// AD CYCLE OUTCOMES
// ===========================================

const (
	CycleOutcomeCompleted = "completed"
	CycleOutcomeFailed    = "failed"
	CycleOutcomeAbandoned = "abandoned"
)
