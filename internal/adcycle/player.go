package adcycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/vector-adplayer/internal/config"
	"github.com/radiusdt/vector-adplayer/internal/metrics"
	"github.com/radiusdt/vector-adplayer/internal/models"
	"github.com/radiusdt/vector-adplayer/internal/playback"
	"github.com/radiusdt/vector-adplayer/internal/tracking"
	"github.com/radiusdt/vector-adplayer/internal/vast"
	"go.uber.org/zap"
)

// ErrStopped is returned by Do once the event loop has exited.
var ErrStopped = errors.New("player stopped")

// ManifestLoader fetches and parses a VAST manifest.
type ManifestLoader interface {
	Load(ctx context.Context, url string) (*vast.AdDescriptor, error)
}

// Surfaces are the host capabilities a Player drives.
type Surfaces struct {
	Main       playback.Surface
	Floating   playback.Surface
	Visibility playback.VisibilitySignal
	Presenter  playback.Presenter
}

// Options configures a Player.
type Options struct {
	Playback config.PlaybackConfig
	Loader   ManifestLoader
	Sender   tracking.Sender
	// Autoplay starts the main surface as soon as media is loaded.
	Autoplay bool

	OnLoaded   func(*Cycle)
	OnFinished func(*Cycle)
	OnFailed   func(*Cycle, error)

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Player runs ad cycles on a single event loop. Every signal handler, fetch
// completion and user action is executed by Run, one at a time, so cycle
// state needs no locking.
type Player struct {
	surfaces Surfaces
	opts     Options
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped chan struct{}

	fetches sync.WaitGroup

	// loop-confined
	runCtx      context.Context
	current     *Cycle
	pending     *Cycle
	cancelFetch context.CancelFunc
}

// NewPlayer creates a player. Run must be started for anything to happen.
func NewPlayer(surfaces Surfaces, opts Options) *Player {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Player{
		surfaces: surfaces,
		opts:     opts,
		logger:   logger,
		metrics:  opts.Metrics,
		wake:     make(chan struct{}, 1),
		stopped:  make(chan struct{}),
	}
}

// Dispatch queues fn for the event loop. Safe from any goroutine, including
// the loop itself.
func (p *Player) Dispatch(fn func()) {
	p.mu.Lock()
	p.queue = append(p.queue, fn)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the event loop and waits for it to finish.
func (p *Player) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	p.Dispatch(func() {
		fn()
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-p.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes queued work until ctx is cancelled.
func (p *Player) Run(ctx context.Context) error {
	p.runCtx = ctx
	defer close(p.stopped)

	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			return nil
		case <-p.wake:
		}

		for {
			fn := p.next()
			if fn == nil {
				break
			}
			fn()
			if ctx.Err() != nil {
				break
			}
		}
	}
}

func (p *Player) next() func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil
	}
	fn := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return fn
}

func (p *Player) shutdown() {
	if p.cancelFetch != nil {
		p.cancelFetch()
		p.cancelFetch = nil
	}
	p.abandon(p.pending)
	p.abandon(p.current)
	p.pending, p.current = nil, nil
	p.fetches.Wait()
}

// Load begins a new ad cycle for url and returns its ID. Any previous cycle
// is abandoned and the result of its in-flight fetch will be ignored.
func (p *Player) Load(url string) string {
	id := uuid.New().String()
	p.Dispatch(func() { p.begin(id, url) })
	return id
}

// Current returns the cycle in progress, or the last one if it ended.
// Must be called on the event loop.
func (p *Player) Current() *Cycle {
	if p.pending != nil {
		return p.pending
	}
	return p.current
}

func (p *Player) begin(id, url string) {
	if p.cancelFetch != nil {
		p.cancelFetch()
		p.cancelFetch = nil
	}
	p.abandon(p.pending)
	p.abandon(p.current)
	p.current = nil

	cycle := &Cycle{ID: id, URL: url, StartedAt: time.Now().UTC()}
	p.pending = cycle

	base := p.runCtx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	p.cancelFetch = cancel

	p.logger.Info("ad cycle started", zap.String("cycle_id", id), zap.String("url", url))

	p.fetches.Add(1)
	go func() {
		defer p.fetches.Done()
		d, err := p.opts.Loader.Load(ctx, url)
		p.Dispatch(func() { p.apply(id, d, err) })
	}()
}

// apply installs a fetched manifest if it still belongs to the pending cycle.
func (p *Player) apply(id string, d *vast.AdDescriptor, err error) {
	cycle := p.pending
	if cycle == nil || cycle.ID != id {
		p.logger.Debug("discarding stale manifest result", zap.String("cycle_id", id))
		if p.metrics != nil {
			p.metrics.RecordStaleManifest()
		}
		return
	}

	p.pending = nil
	if p.cancelFetch != nil {
		p.cancelFetch()
		p.cancelFetch = nil
	}

	if err != nil {
		p.fail(cycle, err)
		return
	}

	main, floating := p.surfaces.Main, p.surfaces.Floating
	main.Load(d.MediaURL())
	floating.Load(d.MediaURL())

	cycle.Descriptor = d
	cycle.Fired = tracking.NewFiredSet()
	cycle.Tracker = tracking.NewTracker(cycle.ID, d, cycle.Fired, p.opts.Sender, p.logger)
	cycle.Tracker.SetInitialMuted(main.Muted())
	cycle.Coordinator = playback.NewCoordinator(main, floating, p.surfaces.Visibility, playback.Options{
		HandoffSkewSeconds:   p.opts.Playback.HandoffSkewSeconds,
		SyncToleranceSeconds: p.opts.Playback.SyncToleranceSeconds,
		Presenter:            p.surfaces.Presenter,
		Observer:             cycle.Tracker,
		OnFinished:           func() { p.finish(cycle) },
		Logger:               p.logger.With(zap.String("cycle_id", cycle.ID)),
		Metrics:              p.metrics,
	})
	p.current = cycle

	p.logger.Info("ad cycle loaded",
		zap.String("cycle_id", cycle.ID),
		zap.String("media_url", d.MediaURL()),
	)
	if p.opts.OnLoaded != nil {
		p.opts.OnLoaded(cycle)
	}
	if p.opts.Autoplay {
		cycle.Coordinator.Play()
	}
}

func (p *Player) fail(cycle *Cycle, err error) {
	cycle.Outcome = models.CycleOutcomeFailed
	cycle.Err = err
	p.current = cycle

	// no ad is shown; operators see it in logs only
	p.logger.Warn("ad cycle aborted",
		zap.String("cycle_id", cycle.ID),
		zap.String("reason", vast.Outcome(err)),
		zap.Error(err),
	)
	if p.metrics != nil {
		p.metrics.RecordAdCycle(models.CycleOutcomeFailed)
	}
	if p.opts.OnFailed != nil {
		p.opts.OnFailed(cycle, err)
	}
}

func (p *Player) finish(cycle *Cycle) {
	if cycle.Done() {
		return
	}
	cycle.Outcome = models.CycleOutcomeCompleted
	cycle.detach()

	p.logger.Info("ad cycle finished",
		zap.String("cycle_id", cycle.ID),
		zap.Strings("fired", cycle.Fired.Events()),
		zap.Duration("elapsed", time.Since(cycle.StartedAt)),
	)
	if p.metrics != nil {
		p.metrics.RecordAdCycle(models.CycleOutcomeCompleted)
	}
	if p.opts.OnFinished != nil {
		p.opts.OnFinished(cycle)
	}
}

func (p *Player) abandon(cycle *Cycle) {
	if cycle == nil || cycle.Done() {
		return
	}
	cycle.Outcome = models.CycleOutcomeAbandoned
	cycle.detach()
	if cycle.Loaded() {
		p.surfaces.Main.Pause()
		p.surfaces.Floating.Pause()
		if p.surfaces.Presenter != nil {
			p.surfaces.Presenter.HideFloating()
		}
	}
	p.logger.Info("ad cycle abandoned", zap.String("cycle_id", cycle.ID))
	if p.metrics != nil {
		p.metrics.RecordAdCycle(models.CycleOutcomeAbandoned)
	}
}
