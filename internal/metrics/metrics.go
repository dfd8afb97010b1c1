package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the ad player.
type Metrics struct {
	// Manifest metrics
	ManifestLoads   *prometheus.CounterVec
	ManifestLatency *prometheus.HistogramVec
	StaleManifests  prometheus.Counter

	// Beacon metrics
	Beacons       *prometheus.CounterVec
	BeaconLatency *prometheus.HistogramVec

	// Playback metrics
	Handoffs           *prometheus.CounterVec
	SuppressedHandoffs prometheus.Counter
	SyncCorrections    prometheus.Counter
	AdCycles           *prometheus.CounterVec

	// System metrics
	ActiveSessions prometheus.Gauge
	DeliveryErrors *prometheus.CounterVec
	RateLimitHits  *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics on reg.
// A nil reg registers on the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		ManifestLoads: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "manifest_loads_total",
				Help:      "VAST manifest loads by outcome",
			},
			[]string{"outcome"},
		),
		ManifestLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "manifest_latency_seconds",
				Help:      "VAST manifest fetch and parse latency",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"outcome"},
		),
		StaleManifests: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_manifests_total",
				Help:      "Manifest results discarded because a newer ad cycle started",
			},
		),

		Beacons: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "beacons_total",
				Help:      "Tracking beacons by event and delivery outcome",
			},
			[]string{"event", "outcome"},
		),
		BeaconLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "beacon_latency_seconds",
				Help:      "Tracking beacon delivery latency",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 5},
			},
			[]string{"event"},
		),

		Handoffs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "surface_handoffs_total",
				Help:      "Main/floating surface handoffs by direction and trigger",
			},
			[]string{"to", "trigger"},
		),
		SuppressedHandoffs: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "surface_handoffs_suppressed_total",
				Help:      "Floating handoffs suppressed because the main surface was paused",
			},
		),
		SyncCorrections: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "surface_sync_corrections_total",
				Help:      "Inactive surface position corrections",
			},
		),
		AdCycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ad_cycles_total",
				Help:      "Ad cycles by terminal outcome",
			},
			[]string{"outcome"},
		),

		ActiveSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of live headless playback sessions",
			},
		),
		DeliveryErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delivery_log_errors_total",
				Help:      "Failures writing beacon deliveries to a sink",
			},
			[]string{"sink"},
		),
		RateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"endpoint"},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a metrics handler for a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordManifestLoad records a manifest load outcome.
func (m *Metrics) RecordManifestLoad(outcome string, latency time.Duration) {
	m.ManifestLoads.WithLabelValues(outcome).Inc()
	m.ManifestLatency.WithLabelValues(outcome).Observe(latency.Seconds())
}

// RecordStaleManifest records a discarded late manifest result.
func (m *Metrics) RecordStaleManifest() {
	m.StaleManifests.Inc()
}

// RecordBeacon records a beacon delivery.
func (m *Metrics) RecordBeacon(event, outcome string, latency time.Duration) {
	m.Beacons.WithLabelValues(event, outcome).Inc()
	m.BeaconLatency.WithLabelValues(event).Observe(latency.Seconds())
}

// RecordHandoff records a surface handoff.
func (m *Metrics) RecordHandoff(to, trigger string) {
	m.Handoffs.WithLabelValues(to, trigger).Inc()
}

// RecordSuppressedHandoff records a floating handoff refused while paused.
func (m *Metrics) RecordSuppressedHandoff() {
	m.SuppressedHandoffs.Inc()
}

// RecordSyncCorrection records a drift correction on the inactive surface.
func (m *Metrics) RecordSyncCorrection() {
	m.SyncCorrections.Inc()
}

// RecordAdCycle records a finished or aborted ad cycle.
func (m *Metrics) RecordAdCycle(outcome string) {
	m.AdCycles.WithLabelValues(outcome).Inc()
}

// RecordDeliveryError records a failed delivery log write.
func (m *Metrics) RecordDeliveryError(sink string) {
	m.DeliveryErrors.WithLabelValues(sink).Inc()
}

// SetActiveSessions updates the live session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.RateLimitHits.WithLabelValues(endpoint).Inc()
}
