package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/radiusdt/vector-adplayer/internal/adcycle"
	"github.com/radiusdt/vector-adplayer/internal/models"
	"github.com/radiusdt/vector-adplayer/internal/playback"
	"github.com/radiusdt/vector-adplayer/internal/storage"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrTooManySessions    = errors.New("too many sessions")
	ErrInvalidManifestURL = errors.New("manifest url must be absolute http(s)")
	ErrNoAd               = errors.New("no ad loaded")
)

// Session is one headless player: an event loop, two simulated surfaces,
// a visibility feed and a ticker that advances the live surface.
type Session struct {
	ID        string
	CreatedAt time.Time

	player    *adcycle.Player
	main      *playback.SimSurface
	floating  *playback.SimSurface
	vis       *playback.SimVisibility
	presenter *floatingPresenter
	log       storage.DeliveryLog

	// durationOverride wins over the manifest's Linear duration
	durationOverride float64

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu sync.Mutex
	// endedAt is set when the latest cycle completed or failed
	endedAt time.Time
}

type floatingPresenter struct {
	shown bool
}

func (p *floatingPresenter) ShowFloating() { p.shown = true }
func (p *floatingPresenter) HideFloating() { p.shown = false }

// SurfaceSnapshot is the transport state of one surface.
type SurfaceSnapshot struct {
	MediaURL string  `json:"media_url,omitempty"`
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
	Volume   float64 `json:"volume"`
	Muted    bool    `json:"muted"`
	Paused   bool    `json:"paused"`
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	CycleID     string    `json:"cycle_id,omitempty"`
	ManifestURL string    `json:"manifest_url,omitempty"`
	// Status is loading, playing, completed, failed or abandoned.
	Status        string          `json:"status"`
	Error         string          `json:"error,omitempty"`
	State         string          `json:"state,omitempty"`
	Visible       bool            `json:"visible"`
	FloatingShown bool            `json:"floating_shown"`
	Main          SurfaceSnapshot `json:"main"`
	Floating      SurfaceSnapshot `json:"floating"`
	Fired         []string        `json:"fired"`
	ClickThrough  string          `json:"click_through,omitempty"`

	Deliveries []*models.BeaconDelivery `json:"deliveries,omitempty"`
}

// Load starts a new ad cycle, abandoning the current one.
func (s *Session) Load(manifestURL string) (string, error) {
	if err := validateManifestURL(manifestURL); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.endedAt = time.Time{}
	s.mu.Unlock()
	return s.player.Load(manifestURL), nil
}

// SetVisible feeds the main surface's viewport visibility.
func (s *Session) SetVisible(ctx context.Context, visible bool) error {
	return s.player.Do(ctx, func() { s.vis.Set(visible) })
}

func (s *Session) CloseFloating(ctx context.Context) error {
	return s.withCycle(ctx, func(c *adcycle.Cycle) { c.Coordinator.CloseFloating() })
}

func (s *Session) Play(ctx context.Context) error {
	return s.withCycle(ctx, func(c *adcycle.Cycle) { c.Coordinator.Play() })
}

func (s *Session) Pause(ctx context.Context) error {
	return s.withCycle(ctx, func(c *adcycle.Cycle) { c.Coordinator.Pause() })
}

func (s *Session) SetVolume(ctx context.Context, v float64) error {
	return s.withCycle(ctx, func(c *adcycle.Cycle) { c.Coordinator.SetVolume(v) })
}

func (s *Session) SetMuted(ctx context.Context, muted bool) error {
	return s.withCycle(ctx, func(c *adcycle.Cycle) { c.Coordinator.SetMuted(muted) })
}

// Click fires click tracking and returns the landing URL.
func (s *Session) Click(ctx context.Context) (string, error) {
	var landing string
	err := s.withCycle(ctx, func(c *adcycle.Cycle) { landing = c.Tracker.ClickThrough() })
	return landing, err
}

// withCycle runs fn on the loop against the loaded, unfinished cycle.
func (s *Session) withCycle(ctx context.Context, fn func(*adcycle.Cycle)) error {
	var noAd bool
	err := s.player.Do(ctx, func() {
		c := s.player.Current()
		if c == nil || !c.Loaded() || c.Done() {
			noAd = true
			return
		}
		fn(c)
	})
	if err != nil {
		return err
	}
	if noAd {
		return ErrNoAd
	}
	return nil
}

// Snapshot reads session state on the loop, then the cycle's deliveries.
func (s *Session) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{ID: s.ID, CreatedAt: s.CreatedAt, Status: "idle", Fired: []string{}}

	err := s.player.Do(ctx, func() {
		snap.Visible = s.vis.Visible()
		snap.FloatingShown = s.presenter.shown
		snap.Main = surfaceSnapshot(s.main)
		snap.Floating = surfaceSnapshot(s.floating)

		c := s.player.Current()
		if c == nil {
			return
		}
		snap.CycleID = c.ID
		snap.ManifestURL = c.URL
		switch {
		case c.Outcome != "":
			snap.Status = c.Outcome
		case c.Loaded():
			snap.Status = "playing"
		default:
			snap.Status = "loading"
		}
		if c.Err != nil {
			snap.Error = c.Err.Error()
		}
		if c.Loaded() {
			snap.State = c.Coordinator.State().String()
			snap.Fired = c.Fired.Events()
			snap.ClickThrough = c.Descriptor.ClickThroughURL()
		}
	})
	if err != nil {
		return nil, err
	}

	if s.log != nil && snap.CycleID != "" {
		deliveries, err := s.log.ListByCycle(ctx, snap.CycleID)
		if err != nil {
			return nil, err
		}
		snap.Deliveries = deliveries
	}
	return snap, nil
}

// Close stops the session's loop and ticker and waits for them.
func (s *Session) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *Session) tick(dt float64) {
	s.player.Dispatch(func() {
		s.main.Tick(dt)
		s.floating.Tick(dt)
	})
}

func (s *Session) markEnded() {
	s.mu.Lock()
	s.endedAt = time.Now()
	s.mu.Unlock()
}

// idleSince returns when the latest cycle ended, or zero while one is live.
func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

func (s *Session) onLoaded(c *adcycle.Cycle) {
	d := s.durationOverride
	if d <= 0 {
		d = c.Descriptor.Duration().Seconds()
	}
	if d > 0 {
		s.main.SetDuration(d)
		s.floating.SetDuration(d)
	}
}

func surfaceSnapshot(s *playback.SimSurface) SurfaceSnapshot {
	d := s.Duration()
	if math.IsNaN(d) || math.IsInf(d, 0) {
		d = 0
	}
	return SurfaceSnapshot{
		MediaURL: s.MediaURL(),
		Position: s.CurrentTime(),
		Duration: d,
		Volume:   s.Volume(),
		Muted:    s.Muted(),
		Paused:   s.Paused(),
	}
}
