package session

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/vector-adplayer/internal/adcycle"
	"github.com/radiusdt/vector-adplayer/internal/config"
	"github.com/radiusdt/vector-adplayer/internal/metrics"
	"github.com/radiusdt/vector-adplayer/internal/playback"
	"github.com/radiusdt/vector-adplayer/internal/storage"
	"github.com/radiusdt/vector-adplayer/internal/tracking"
	"go.uber.org/zap"
)

// CreateRequest describes a new headless session.
type CreateRequest struct {
	ManifestURL string
	// DurationSeconds overrides the manifest's Linear duration when positive.
	DurationSeconds float64
	Autoplay        bool
	Muted           bool
	Volume          *float64
}

// Manager owns every live session.
type Manager struct {
	playback    config.PlaybackConfig
	maxSessions int

	loader     adcycle.ManifestLoader
	sender     tracking.Sender
	deliveries storage.DeliveryLog

	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager. deliveries may be nil.
func NewManager(
	cfg *config.Config,
	loader adcycle.ManifestLoader,
	sender tracking.Sender,
	deliveries storage.DeliveryLog,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		playback:    cfg.Playback,
		maxSessions: cfg.Server.MaxSessions,
		loader:      loader,
		sender:      sender,
		deliveries:  deliveries,
		logger:      logger,
		metrics:     m,
		sessions:    make(map[string]*Session),
	}
}

// Create starts a session and begins loading its first ad.
func (m *Manager) Create(req CreateRequest) (*Session, error) {
	if err := validateManifestURL(req.ManifestURL); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}
	s := m.newSession(req)
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetActiveSessions(count)
	}

	s.player.Load(req.ManifestURL)

	m.logger.Info("session created",
		zap.String("session_id", s.ID),
		zap.String("manifest_url", req.ManifestURL),
	)
	return s, nil
}

func (m *Manager) newSession(req CreateRequest) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:               uuid.New().String(),
		CreatedAt:        time.Now().UTC(),
		presenter:        &floatingPresenter{},
		log:              m.deliveries,
		durationOverride: req.DurationSeconds,
		cancel:           cancel,
		done:             make(chan struct{}),
	}

	dispatch := func(fn func()) { s.player.Dispatch(fn) }
	duration := m.playback.DefaultAdDuration.Seconds()
	s.main = playback.NewSimSurface(string(playback.SurfaceMain), duration, dispatch)
	s.floating = playback.NewSimSurface(string(playback.SurfaceFloating), duration, dispatch)
	s.vis = playback.NewSimVisibility(dispatch)

	logger := m.logger.With(zap.String("session_id", s.ID))
	s.player = adcycle.NewPlayer(adcycle.Surfaces{
		Main:       s.main,
		Floating:   s.floating,
		Visibility: s.vis,
		Presenter:  s.presenter,
	}, adcycle.Options{
		Playback:   m.playback,
		Loader:     m.loader,
		Sender:     m.sender,
		Autoplay:   req.Autoplay,
		OnLoaded:   s.onLoaded,
		OnFinished: func(*adcycle.Cycle) { s.markEnded() },
		OnFailed:   func(*adcycle.Cycle, error) { s.markEnded() },
		Logger:     logger,
		Metrics:    m.metrics,
	})

	// nothing is subscribed yet, so these signals reach no handler
	s.main.SetMuted(req.Muted)
	s.floating.SetMuted(req.Muted)
	if req.Volume != nil {
		s.main.SetVolume(*req.Volume)
		s.floating.SetVolume(*req.Volume)
	}

	go m.run(ctx, s)
	return s
}

func (m *Manager) run(ctx context.Context, s *Session) {
	defer close(s.done)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		interval := m.playback.TickInterval
		if interval <= 0 {
			interval = 250 * time.Millisecond
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(interval.Seconds())
			}
		}
	}()

	if err := s.player.Run(ctx); err != nil {
		m.logger.Error("session loop stopped", zap.String("session_id", s.ID), zap.Error(err))
	}
	wg.Wait()
}

// Get looks a session up by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close stops and removes a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	if m.metrics != nil {
		m.metrics.SetActiveSessions(count)
	}
	m.logger.Info("session closed", zap.String("session_id", id))
	return nil
}

// Reap closes sessions whose latest cycle completed or failed at least idle
// ago and returns how many were closed. A new Load keeps a session alive.
func (m *Manager) Reap(idle time.Duration) int {
	now := time.Now()

	m.mu.Lock()
	var reaped []*Session
	for id, s := range m.sessions {
		ended := s.idleSince()
		if ended.IsZero() || now.Sub(ended) < idle {
			continue
		}
		delete(m.sessions, id)
		reaped = append(reaped, s)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if len(reaped) == 0 {
		return 0
	}
	for _, s := range reaped {
		s.Close()
		m.logger.Info("session reaped", zap.String("session_id", s.ID))
	}
	if m.metrics != nil {
		m.metrics.SetActiveSessions(count)
	}
	return len(reaped)
}

// RunReaper calls Reap until ctx is cancelled. A non-positive idle disables
// reaping.
func (m *Manager) RunReaper(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}
	interval := idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reap(idle)
		}
	}
}

// CloseAll stops every session. Used at shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	if m.metrics != nil {
		m.metrics.SetActiveSessions(0)
	}
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func validateManifestURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidManifestURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidManifestURL
	}
	return nil
}
