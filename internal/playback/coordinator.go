package playback

import (
	"math"

	"github.com/radiusdt/vector-adplayer/internal/metrics"
	"go.uber.org/zap"
)

// Options configures a Coordinator.
type Options struct {
	// HandoffSkewSeconds is added to the copied position on every handoff.
	HandoffSkewSeconds float64
	// SyncToleranceSeconds is the drift allowed before the inactive surface
	// is re-seeked. Zero or negative means 0.1.
	SyncToleranceSeconds float64

	Presenter  Presenter
	Observer   Observer
	OnFinished func()

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Coordinator keeps exactly one of the main and floating surfaces active and
// moves transport state between them.
//
// The active state is switched before any surface is touched during a
// handoff, so signals the handoff itself provokes on the deactivated surface
// are treated as inactive-surface noise and never reach the Observer.
type Coordinator struct {
	main     Surface
	floating Surface

	state    State
	finished bool

	skew      float64
	tolerance float64

	presenter  Presenter
	observer   Observer
	onFinished func()

	unsubs []func()

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewCoordinator wires the surfaces and the visibility signal. Both surfaces
// must already have media loaded; the coordinator starts in StateMainActive.
func NewCoordinator(main, floating Surface, visibility VisibilitySignal, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tolerance := opts.SyncToleranceSeconds
	if tolerance <= 0 {
		tolerance = 0.1
	}

	c := &Coordinator{
		main:       main,
		floating:   floating,
		state:      StateMainActive,
		skew:       opts.HandoffSkewSeconds,
		tolerance:  tolerance,
		presenter:  opts.Presenter,
		observer:   opts.Observer,
		onFinished: opts.OnFinished,
		logger:     logger,
		metrics:    opts.Metrics,
	}

	c.subscribe(SurfaceMain, main)
	c.subscribe(SurfaceFloating, floating)
	if visibility != nil {
		c.unsubs = append(c.unsubs, visibility.OnVisibilityChange(c.onVisibility))
	}
	return c
}

func (c *Coordinator) subscribe(id SurfaceID, s Surface) {
	c.unsubs = append(c.unsubs,
		s.Subscribe(EventPlay, func() { c.onPlay(id) }),
		s.Subscribe(EventPause, func() { c.onPause(id) }),
		s.Subscribe(EventTimeUpdate, func() { c.onTimeUpdate(id) }),
		s.Subscribe(EventEnded, func() { c.onEnded(id) }),
		s.Subscribe(EventVolumeChange, func() { c.onVolumeChange(id) }),
	)
}

// Detach removes every handler the coordinator registered.
func (c *Coordinator) Detach() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}

func (c *Coordinator) State() State    { return c.state }
func (c *Coordinator) Finished() bool  { return c.finished }
func (c *Coordinator) Active() Surface { return c.surface(c.activeID()) }

// Inactive returns the surface that is currently paused in the background.
func (c *Coordinator) Inactive() Surface { return c.surface(c.inactiveID()) }

// CloseFloating handles the user closing the floating surface.
func (c *Coordinator) CloseFloating() {
	if c.finished || c.state != StateFloatingActive {
		return
	}
	c.handoff(StateMainActive, TriggerClose)
}

// Play, Pause, SetVolume and SetMuted act on the active surface.
func (c *Coordinator) Play()               { c.Active().Play() }
func (c *Coordinator) Pause()              { c.Active().Pause() }
func (c *Coordinator) SetVolume(v float64) { c.Active().SetVolume(v) }
func (c *Coordinator) SetMuted(m bool)     { c.Active().SetMuted(m) }

// Sync pulls the inactive surface back within tolerance of the active one.
func (c *Coordinator) Sync() {
	if c.finished {
		return
	}
	active, inactive := c.Active(), c.Inactive()
	pos := active.CurrentTime()
	if math.Abs(inactive.CurrentTime()-pos) <= c.tolerance {
		return
	}
	inactive.SetCurrentTime(pos)
	if c.metrics != nil {
		c.metrics.RecordSyncCorrection()
	}
}

func (c *Coordinator) onVisibility(visible bool) {
	if c.finished {
		return
	}
	switch {
	case !visible && c.state == StateMainActive:
		if c.main.Paused() {
			c.logger.Debug("floating handoff suppressed, main is paused")
			if c.metrics != nil {
				c.metrics.RecordSuppressedHandoff()
			}
			return
		}
		c.handoff(StateFloatingActive, TriggerHidden)
	case visible && c.state == StateFloatingActive:
		c.handoff(StateMainActive, TriggerVisible)
	}
}

// handoff switches the live surface to target and copies transport state.
func (c *Coordinator) handoff(target State, trigger string) {
	from := c.Active()
	if from.Ended() {
		// its ended signal is still queued and would arrive on an inactive surface
		c.finish(c.activeID())
		return
	}
	wasPlaying := !from.Paused()

	c.state = target
	to := c.Active()

	to.SetCurrentTime(c.clamp(from.CurrentTime()+c.skew, to.Duration()))
	to.SetVolume(from.Volume())
	to.SetMuted(from.Muted())
	from.Pause()
	if wasPlaying {
		to.Play()
	}

	if c.presenter != nil {
		if target == StateFloatingActive {
			c.presenter.ShowFloating()
		} else {
			c.presenter.HideFloating()
		}
	}

	c.logger.Info("surface handoff",
		zap.String("to", string(c.activeID())),
		zap.String("trigger", trigger),
		zap.Float64("position", to.CurrentTime()),
		zap.Bool("resumed", wasPlaying),
	)
	if c.metrics != nil {
		c.metrics.RecordHandoff(string(c.activeID()), trigger)
	}
}

func (c *Coordinator) onPlay(id SurfaceID) {
	if c.finished {
		return
	}
	if id != c.activeID() {
		// only one surface may play
		c.surface(id).Pause()
		return
	}
	if c.observer != nil {
		c.observer.OnPlay()
	}
}

func (c *Coordinator) onPause(id SurfaceID) {
	if c.finished || id != c.activeID() {
		return
	}
	if c.observer != nil {
		c.observer.OnPause()
	}
}

func (c *Coordinator) onTimeUpdate(id SurfaceID) {
	if c.finished || id != c.activeID() {
		return
	}
	c.Sync()
	if c.observer != nil {
		s := c.surface(id)
		c.observer.OnTimeUpdate(s.CurrentTime(), s.Duration())
	}
}

func (c *Coordinator) onVolumeChange(id SurfaceID) {
	if c.finished || id != c.activeID() {
		return
	}
	active, inactive := c.Active(), c.Inactive()
	inactive.SetVolume(active.Volume())
	inactive.SetMuted(active.Muted())
	if c.observer != nil {
		c.observer.OnVolumeChange(active.Volume(), active.Muted())
	}
}

func (c *Coordinator) onEnded(id SurfaceID) {
	if c.finished || id != c.activeID() {
		return
	}
	c.finish(id)
}

// finish forces main active, hides the floating presentation and ends the
// cycle. endedOn is the surface whose media ran out.
func (c *Coordinator) finish(endedOn SurfaceID) {
	if c.state == StateFloatingActive {
		c.state = StateMainActive
		c.main.SetCurrentTime(c.floating.CurrentTime())
		c.floating.Pause()
		if c.metrics != nil {
			c.metrics.RecordHandoff(string(SurfaceMain), TriggerEnded)
		}
	}
	if c.presenter != nil {
		c.presenter.HideFloating()
	}

	if c.observer != nil {
		c.observer.OnEnded()
	}
	c.finished = true
	c.logger.Info("ad playback ended", zap.String("ended_on", string(endedOn)))

	if c.onFinished != nil {
		c.onFinished()
	}
}

func (c *Coordinator) activeID() SurfaceID {
	if c.state == StateFloatingActive {
		return SurfaceFloating
	}
	return SurfaceMain
}

func (c *Coordinator) inactiveID() SurfaceID {
	if c.state == StateFloatingActive {
		return SurfaceMain
	}
	return SurfaceFloating
}

func (c *Coordinator) surface(id SurfaceID) Surface {
	if id == SurfaceFloating {
		return c.floating
	}
	return c.main
}

func (c *Coordinator) clamp(pos, duration float64) float64 {
	if pos < 0 {
		return 0
	}
	if duration > 0 && !math.IsInf(duration, 0) && pos > duration {
		return duration
	}
	return pos
}
