package vast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/radiusdt/vector-adplayer/internal/config"
	"github.com/radiusdt/vector-adplayer/internal/metrics"
	"go.uber.org/zap"
)

// Loader fetches and parses VAST manifests. Every call re-fetches; there is
// no cache and no retry.
type Loader struct {
	httpClient *http.Client
	timeout    time.Duration
	maxBytes   int64
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewLoader creates a manifest loader.
func NewLoader(cfg config.ManifestConfig, logger *zap.Logger, m *metrics.Metrics) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		httpClient: &http.Client{},
		timeout:    cfg.FetchTimeout,
		maxBytes:   cfg.MaxBytes,
		logger:     logger,
		metrics:    m,
	}
}

// Load fetches url and parses it into an AdDescriptor.
// Errors wrap ErrNetwork, ErrParse or ErrMissingMedia.
func (l *Loader) Load(ctx context.Context, url string) (*AdDescriptor, error) {
	start := time.Now()

	d, err := l.load(ctx, url)

	outcome := Outcome(err)
	if l.metrics != nil {
		l.metrics.RecordManifestLoad(outcome, time.Since(start))
	}
	if err != nil {
		l.logger.Warn("VAST manifest load failed",
			zap.String("url", url),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		return nil, err
	}

	l.logger.Info("VAST manifest loaded",
		zap.String("url", url),
		zap.String("media_url", d.MediaURL()),
		zap.String("click_through", d.ClickThroughURL()),
		zap.Int("tracking_events", len(d.trackingURLs)),
		zap.Duration("latency", time.Since(start)),
	)
	return d, nil
}

func (l *Loader) load(ctx context.Context, url string) (*AdDescriptor, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	body, err := l.fetch(ctx, url)
	if err != nil {
		return nil, errors.Join(ErrNetwork, err)
	}
	return ParseManifest(body)
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create manifest request: %w", err)
	}
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("manifest returned status %d", resp.StatusCode)
	}

	var r io.Reader = resp.Body
	if l.maxBytes > 0 {
		r = io.LimitReader(resp.Body, l.maxBytes+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read manifest body: %w", err)
	}
	if l.maxBytes > 0 && int64(len(body)) > l.maxBytes {
		return nil, fmt.Errorf("manifest exceeds %d bytes", l.maxBytes)
	}
	return body, nil
}
