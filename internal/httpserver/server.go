package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/radiusdt/vector-adplayer/internal/adcycle"
	"github.com/radiusdt/vector-adplayer/internal/config"
	"github.com/radiusdt/vector-adplayer/internal/metrics"
	"github.com/radiusdt/vector-adplayer/internal/middleware"
	"github.com/radiusdt/vector-adplayer/internal/models"
	"github.com/radiusdt/vector-adplayer/internal/session"
	"github.com/radiusdt/vector-adplayer/internal/storage"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// HealthChecker is a backing store that can report its health.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// BeaconCounter reports per-event beacon outcome counts for a cycle.
type BeaconCounter interface {
	Counts(ctx context.Context, cycleID string) (map[string]int64, error)
}

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	Sessions   *session.Manager
	Deliveries storage.DeliveryLog
	// Counter is optional; it is set when Redis counters are enabled.
	Counter BeaconCounter
	// RateLimiter is created from Config.RateLimit when nil.
	RateLimiter *middleware.RateLimitMiddleware
	Config      *config.Config
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	// Gatherer serves the metrics endpoint; nil means the default registry.
	Gatherer prometheus.Gatherer
	// Checks are reported by /health, keyed by store name.
	Checks map[string]HealthChecker
}

// Server wraps the HTTP handlers for headless ad sessions.
type Server struct {
	sessions   *session.Manager
	deliveries storage.DeliveryLog
	counter    BeaconCounter
	checks     map[string]HealthChecker
	logger     *zap.Logger
	config     *config.Config
	metrics    *metrics.Metrics
	upgrader   *websocket.Upgrader
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		sessions:   deps.Sessions,
		deliveries: deps.Deliveries,
		counter:    deps.Counter,
		checks:     deps.Checks,
		logger:     logger,
		config:     deps.Config,
		metrics:    deps.Metrics,
		upgrader:   newUpgrader(deps.Config.Server.AllowedOrigins),
	}

	limiter := deps.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimitMiddleware(deps.Config.RateLimit, logger, deps.Metrics)
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger).Handler)
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Config.Metrics.Path).Handler)
	r.Use(newCORS(deps.Config.Server.AllowedOrigins).Handler)
	r.Use(limiter.Handler)

	r.Get("/health", s.handleHealth)

	if deps.Config.Metrics.Enabled {
		if deps.Gatherer != nil {
			r.Handle(deps.Config.Metrics.Path, metrics.HandlerFor(deps.Gatherer))
		} else {
			r.Handle(deps.Config.Metrics.Path, metrics.Handler())
		}
	}

	r.Route("/sessions", func(r chi.Router) {
		r.With(limiter.HandlerPerIP).Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.With(limiter.HandlerPerIP).Post("/load", s.handleLoad)
			r.Post("/visibility", s.handleVisibility)
			r.Post("/close-floating", s.handleCloseFloating)
			r.Post("/play", s.handlePlay)
			r.Post("/pause", s.handlePause)
			r.Post("/volume", s.handleVolume)
			r.Post("/click", s.handleClick)
			r.Get("/stream", s.handleStream)
		})
	})

	if s.deliveries != nil {
		r.Get("/cycles/{id}/deliveries", s.handleCycleDeliveries)
	}

	return r
}

func newCORS(origins []string) *cors.Cors {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         600,
	})
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := map[string]interface{}{
		"status":   "ok",
		"sessions": s.sessions.Count(),
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	code := http.StatusOK
	for _, name := range names {
		if err := s.checks[name].Health(ctx); err != nil {
			s.logger.Warn("health check failed", zap.String("store", name), zap.Error(err))
			resp[name] = "down"
			resp["status"] = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// ---- Sessions ----

type createSessionRequest struct {
	ManifestURL     string   `json:"manifest_url"`
	DurationSeconds float64  `json:"duration_seconds"`
	Autoplay        *bool    `json:"autoplay"`
	Muted           bool     `json:"muted"`
	Volume          *float64 `json:"volume"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	autoplay := true
	if req.Autoplay != nil {
		autoplay = *req.Autoplay
	}

	sess, err := s.sessions.Create(session.CreateRequest{
		ManifestURL:     req.ManifestURL,
		DurationSeconds: req.DurationSeconds,
		Autoplay:        autoplay,
		Muted:           req.Muted,
		Volume:          req.Volume,
	})
	if err != nil {
		s.sessionError(w, err)
		return
	}

	snap, err := sess.Snapshot(r.Context())
	if err != nil {
		s.sessionError(w, err)
		return
	}
	w.Header().Set("Location", "/sessions/"+sess.ID)
	s.jsonResponseCode(w, snap, http.StatusCreated)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	snap, err := sess.Snapshot(r.Context())
	if err != nil {
		s.sessionError(w, err)
		return
	}
	s.jsonResponse(w, snap)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(chi.URLParam(r, "id")); err != nil {
		s.sessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		ManifestURL string `json:"manifest_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}
	cycleID, err := sess.Load(req.ManifestURL)
	if err != nil {
		s.sessionError(w, err)
		return
	}
	s.jsonResponseCode(w, map[string]string{"cycle_id": cycleID}, http.StatusAccepted)
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Visible *bool `json:"visible"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Visible == nil {
		s.errorResponse(w, "visible is required", http.StatusBadRequest)
		return
	}
	s.action(w, r, sess.SetVisible(r.Context(), *req.Visible), sess)
}

func (s *Server) handleCloseFloating(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.session(w, r); ok {
		s.action(w, r, sess.CloseFloating(r.Context()), sess)
	}
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.session(w, r); ok {
		s.action(w, r, sess.Play(r.Context()), sess)
	}
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.session(w, r); ok {
		s.action(w, r, sess.Pause(r.Context()), sess)
	}
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Volume *float64 `json:"volume"`
		Muted  *bool    `json:"muted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Volume == nil && req.Muted == nil {
		s.errorResponse(w, "volume or muted is required", http.StatusBadRequest)
		return
	}
	if req.Volume != nil && (*req.Volume < 0 || *req.Volume > 1) {
		s.errorResponse(w, "volume must be within [0,1]", http.StatusBadRequest)
		return
	}

	var err error
	if req.Volume != nil {
		err = sess.SetVolume(r.Context(), *req.Volume)
	}
	if err == nil && req.Muted != nil {
		err = sess.SetMuted(r.Context(), *req.Muted)
	}
	s.action(w, r, err, sess)
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	landing, err := sess.Click(r.Context())
	if err != nil {
		s.sessionError(w, err)
		return
	}
	s.jsonResponse(w, map[string]string{"click_through": landing})
}

// ---- Delivery log ----

func (s *Server) handleCycleDeliveries(w http.ResponseWriter, r *http.Request) {
	cycleID := chi.URLParam(r, "id")

	deliveries, err := s.deliveries.ListByCycle(r.Context(), cycleID)
	if err != nil {
		s.logger.Error("failed to list deliveries", zap.String("cycle_id", cycleID), zap.Error(err))
		s.errorResponse(w, "failed to list deliveries", http.StatusInternalServerError)
		return
	}
	if deliveries == nil {
		deliveries = []*models.BeaconDelivery{}
	}

	resp := map[string]interface{}{
		"cycle_id":   cycleID,
		"deliveries": deliveries,
	}
	if s.counter != nil {
		counts, err := s.counter.Counts(r.Context(), cycleID)
		if err != nil {
			// counters are advisory; the log above is authoritative
			s.logger.Warn("failed to read beacon counters", zap.String("cycle_id", cycleID), zap.Error(err))
		} else {
			resp["counts"] = counts
		}
	}
	s.jsonResponse(w, resp)
}

// action answers a user action with the session's fresh snapshot.
func (s *Server) action(w http.ResponseWriter, r *http.Request, err error, sess *session.Session) {
	if err != nil {
		s.sessionError(w, err)
		return
	}
	snap, err := sess.Snapshot(r.Context())
	if err != nil {
		s.sessionError(w, err)
		return
	}
	s.jsonResponse(w, snap)
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.sessionError(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) sessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		s.errorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, session.ErrInvalidManifestURL):
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, session.ErrTooManySessions):
		s.errorResponse(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, session.ErrNoAd):
		s.errorResponse(w, err.Error(), http.StatusConflict)
	case errors.Is(err, adcycle.ErrStopped):
		s.errorResponse(w, err.Error(), http.StatusGone)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.errorResponse(w, "request cancelled", http.StatusGatewayTimeout)
	default:
		s.logger.Error("session request failed", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
	}
}

// ---- Helpers ----

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	s.jsonResponseCode(w, data, http.StatusOK)
}

func (s *Server) jsonResponseCode(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
