package tracking

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/vector-adplayer/internal/config"
	"github.com/radiusdt/vector-adplayer/internal/metrics"
	"github.com/radiusdt/vector-adplayer/internal/models"
	"github.com/radiusdt/vector-adplayer/internal/storage"
	"go.uber.org/zap"
)

// Beacon is one tracking GET to issue.
type Beacon struct {
	CycleID string
	Event   string
	URL     string
}

// Sender issues beacons. Send must not block the caller and must never
// report failure back into playback.
type Sender interface {
	Send(b Beacon)
}

// SenderFunc adapts a plain function to Sender.
type SenderFunc func(b Beacon)

func (f SenderFunc) Send(b Beacon) { f(b) }

// HTTPBeaconSender fires beacons as asynchronous GETs and records the
// outcome of each one.
type HTTPBeaconSender struct {
	httpClient *http.Client
	timeout    time.Duration
	recorder   storage.DeliveryRecorder
	metrics    *metrics.Metrics
	logger     *zap.Logger

	wg sync.WaitGroup
}

// NewHTTPBeaconSender creates a beacon sender. recorder and m may be nil.
func NewHTTPBeaconSender(
	cfg config.BeaconConfig,
	recorder storage.DeliveryRecorder,
	m *metrics.Metrics,
	logger *zap.Logger,
) *HTTPBeaconSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPBeaconSender{
		httpClient: &http.Client{},
		timeout:    timeout,
		recorder:   recorder,
		metrics:    m,
		logger:     logger,
	}
}

// Send issues the beacon in the background (don't block playback).
func (s *HTTPBeaconSender) Send(b Beacon) {
	if b.URL == "" {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliver(b)
	}()
}

// Wait blocks until every beacon sent so far has finished.
func (s *HTTPBeaconSender) Wait() {
	s.wg.Wait()
}

func (s *HTTPBeaconSender) deliver(b Beacon) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	d := &models.BeaconDelivery{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		CycleID:   b.CycleID,
		Event:     b.Event,
		URL:       b.URL,
	}

	start := time.Now()
	d.StatusCode, d.Error = s.get(ctx, b.URL)
	d.Latency = time.Since(start)

	switch d.Outcome() {
	case "error":
		s.logger.Warn("beacon call failed",
			zap.String("cycle_id", b.CycleID),
			zap.String("event", b.Event),
			zap.String("error", d.Error),
		)
	case "non_2xx":
		s.logger.Warn("beacon non-2xx",
			zap.String("cycle_id", b.CycleID),
			zap.String("event", b.Event),
			zap.Int("status", d.StatusCode),
		)
	default:
		s.logger.Debug("beacon delivered",
			zap.String("cycle_id", b.CycleID),
			zap.String("event", b.Event),
		)
	}

	if s.metrics != nil {
		s.metrics.RecordBeacon(b.Event, d.Outcome(), d.Latency)
	}

	if s.recorder != nil {
		saveCtx, saveCancel := context.WithTimeout(context.Background(), s.timeout)
		defer saveCancel()
		if err := s.recorder.SaveDelivery(saveCtx, d); err != nil {
			s.logger.Error("failed to save beacon delivery", zap.Error(err), zap.String("delivery_id", d.ID))
		}
	}
}

func (s *HTTPBeaconSender) get(ctx context.Context, url string) (int, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err.Error()
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err.Error()
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode, ""
}
