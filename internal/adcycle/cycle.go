package adcycle

import (
	"time"

	"github.com/radiusdt/vector-adplayer/internal/playback"
	"github.com/radiusdt/vector-adplayer/internal/tracking"
	"github.com/radiusdt/vector-adplayer/internal/vast"
)

// Cycle is one ad load. Everything it owns is created fresh for the cycle
// and dropped when the next cycle begins.
type Cycle struct {
	ID        string
	URL       string
	StartedAt time.Time

	Descriptor  *vast.AdDescriptor
	Fired       *tracking.FiredSet
	Tracker     *tracking.Tracker
	Coordinator *playback.Coordinator

	// Outcome is empty while the cycle is loading or playing.
	Outcome string
	Err     error
}

// Loaded reports whether the manifest was applied to the surfaces.
func (c *Cycle) Loaded() bool { return c.Coordinator != nil }

// Done reports whether the cycle reached a terminal outcome.
func (c *Cycle) Done() bool { return c.Outcome != "" }

func (c *Cycle) detach() {
	if c.Coordinator != nil {
		c.Coordinator.Detach()
	}
}
