package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/radiusdt/vector-adplayer/internal/adcycle"
	"github.com/radiusdt/vector-adplayer/internal/config"
	"github.com/radiusdt/vector-adplayer/internal/storage"
	"github.com/radiusdt/vector-adplayer/internal/tracking"
	"github.com/radiusdt/vector-adplayer/internal/vast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	eventually = 3 * time.Second
	poll       = 10 * time.Millisecond
)

type stubLoader struct {
	manifest string
	err      error
}

func (l stubLoader) Load(ctx context.Context, url string) (*vast.AdDescriptor, error) {
	if l.err != nil {
		return nil, l.err
	}
	return vast.ParseManifest([]byte(l.manifest))
}

func manifestWithBeacons(base string) string {
	return `<VAST version="4.0"><Ad><InLine><Creatives><Creative><Linear>
  <Duration>00:00:30</Duration>
  <TrackingEvents>
    <Tracking event="start">` + base + `/start</Tracking>
    <Tracking event="complete">` + base + `/complete</Tracking>
    <Tracking event="pause">` + base + `/pause</Tracking>
  </TrackingEvents>
  <VideoClicks><ClickThrough>https://landing.example/go</ClickThrough></VideoClicks>
  <MediaFiles><MediaFile>https://cdn.example/ad.mp4</MediaFile></MediaFiles>
</Linear></Creative></Creatives></InLine></Ad></VAST>`
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{MaxSessions: 2},
		Playback: config.PlaybackConfig{
			SyncToleranceSeconds: 0.1,
			TickInterval:         10 * time.Millisecond,
			DefaultAdDuration:    30 * time.Second,
		},
	}
}

func newTestManager(t *testing.T, loader adcycle.ManifestLoader, sender tracking.Sender, log storage.DeliveryLog) *Manager {
	t.Helper()
	m := NewManager(testConfig(), loader, sender, log, nil, nil)
	t.Cleanup(m.CloseAll)
	return m
}

func snapshot(t *testing.T, s *Session) *Snapshot {
	t.Helper()
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	return snap
}

func TestManager_CreateValidation(t *testing.T) {
	m := newTestManager(t, stubLoader{manifest: manifestWithBeacons("https://t")}, nil, nil)

	for _, raw := range []string{"", "not a url", "ftp://x/vast.xml", "/relative/vast.xml"} {
		_, err := m.Create(CreateRequest{ManifestURL: raw})
		assert.ErrorIs(t, err, ErrInvalidManifestURL, raw)
	}

	_, err := m.Create(CreateRequest{ManifestURL: "https://ads.example/vast.xml"})
	require.NoError(t, err)
	_, err = m.Create(CreateRequest{ManifestURL: "https://ads.example/vast.xml"})
	require.NoError(t, err)
	_, err = m.Create(CreateRequest{ManifestURL: "https://ads.example/vast.xml"})
	assert.ErrorIs(t, err, ErrTooManySessions)
	assert.Equal(t, 2, m.Count())
}

func TestSession_PlaysToCompletion(t *testing.T) {
	beacons := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer beacons.Close()

	log := storage.NewInMemoryDeliveryLog()
	sender := tracking.NewHTTPBeaconSender(config.BeaconConfig{Timeout: time.Second}, log, nil, nil)
	m := newTestManager(t, stubLoader{manifest: manifestWithBeacons(beacons.URL)}, sender, log)

	s, err := m.Create(CreateRequest{
		ManifestURL:     "https://ads.example/vast.xml",
		DurationSeconds: 0.2,
		Autoplay:        true,
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return snapshot(t, s).Status == "completed"
	}, eventually, poll)
	sender.Wait()

	snap := snapshot(t, s)
	assert.Contains(t, snap.Fired, vast.EventStart)
	assert.Contains(t, snap.Fired, vast.EventComplete)
	assert.Equal(t, "main_active", snap.State)
	assert.Equal(t, 0.2, snap.Main.Duration)

	var events []string
	for _, d := range snap.Deliveries {
		events = append(events, d.Event)
		assert.True(t, d.Succeeded())
	}
	assert.ElementsMatch(t, []string{vast.EventStart, vast.EventComplete}, events)
}

func TestSession_UserActions(t *testing.T) {
	m := newTestManager(t, stubLoader{manifest: manifestWithBeacons("https://t")}, nil, nil)
	ctx := context.Background()

	volume := 0.5
	s, err := m.Create(CreateRequest{ManifestURL: "https://ads.example/vast.xml", Volume: &volume})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return snapshot(t, s).Status == "playing"
	}, eventually, poll)

	// paused main never floats
	require.NoError(t, s.SetVisible(ctx, false))
	snap := snapshot(t, s)
	assert.Equal(t, "main_active", snap.State)
	assert.False(t, snap.FloatingShown)
	assert.Equal(t, 30.0, snap.Main.Duration)
	assert.Equal(t, 0.5, snap.Main.Volume)

	require.NoError(t, s.SetVisible(ctx, true))
	require.NoError(t, s.Play(ctx))
	require.NoError(t, s.SetVisible(ctx, false))
	assert.Eventually(t, func() bool {
		snap := snapshot(t, s)
		return snap.State == "floating_active" && snap.FloatingShown && !snap.Floating.Paused
	}, eventually, poll)

	require.NoError(t, s.SetMuted(ctx, true))
	require.NoError(t, s.Pause(ctx))
	require.NoError(t, s.CloseFloating(ctx))
	assert.Eventually(t, func() bool {
		snap := snapshot(t, s)
		return snap.State == "main_active" && !snap.FloatingShown && snap.Main.Paused && snap.Main.Muted
	}, eventually, poll)

	landing, err := s.Click(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://landing.example/go", landing)
}

func TestSession_FailedLoadRejectsActions(t *testing.T) {
	m := newTestManager(t, stubLoader{err: vast.ErrParse}, nil, nil)

	s, err := m.Create(CreateRequest{ManifestURL: "https://ads.example/vast.xml", Autoplay: true})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return snapshot(t, s).Status == "failed"
	}, eventually, poll)

	snap := snapshot(t, s)
	assert.Empty(t, snap.Main.MediaURL)
	assert.Equal(t, vast.ErrParse.Error(), snap.Error)
	assert.ErrorIs(t, s.Play(context.Background()), ErrNoAd)
	_, err = s.Click(context.Background())
	assert.ErrorIs(t, err, ErrNoAd)
}

func TestManager_Close(t *testing.T) {
	m := newTestManager(t, stubLoader{manifest: manifestWithBeacons("https://t")}, nil, nil)

	s, err := m.Create(CreateRequest{ManifestURL: "https://ads.example/vast.xml"})
	require.NoError(t, err)

	require.NoError(t, m.Close(s.ID))
	assert.ErrorIs(t, m.Close(s.ID), ErrSessionNotFound)

	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, s.Play(context.Background()), adcycle.ErrStopped)
}

func TestManager_ReapEndedSessions(t *testing.T) {
	m := newTestManager(t, stubLoader{err: vast.ErrParse}, nil, nil)

	failed, err := m.Create(CreateRequest{ManifestURL: "https://ads.example/vast.xml"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return snapshot(t, failed).Status == "failed"
	}, eventually, poll)

	assert.Equal(t, 0, m.Reap(time.Hour), "ended too recently")
	assert.Equal(t, 1, m.Reap(0))
	assert.Equal(t, 0, m.Count())

	_, err = m.Get(failed.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, failed.Play(context.Background()), adcycle.ErrStopped)

	// the slot is free again
	_, err = m.Create(CreateRequest{ManifestURL: "https://ads.example/vast.xml"})
	require.NoError(t, err)
	_, err = m.Create(CreateRequest{ManifestURL: "https://ads.example/vast.xml"})
	require.NoError(t, err)
}

func TestManager_ReapKeepsLiveSessions(t *testing.T) {
	m := newTestManager(t, stubLoader{manifest: manifestWithBeacons("https://t")}, nil, nil)

	s, err := m.Create(CreateRequest{ManifestURL: "https://ads.example/vast.xml", DurationSeconds: 0.05, Autoplay: true})
	require.NoError(t, err)
	live, err := m.Create(CreateRequest{ManifestURL: "https://ads.example/vast.xml"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return snapshot(t, s).Status == "completed"
	}, eventually, poll)

	assert.Equal(t, 1, m.Reap(0))
	_, err = m.Get(live.ID)
	assert.NoError(t, err)
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// heldLoader fails the first manifest and holds every other fetch open.
type heldLoader struct{}

func (heldLoader) Load(ctx context.Context, url string) (*vast.AdDescriptor, error) {
	if url == "https://ads.example/vast.xml" {
		return nil, vast.ErrParse
	}
	<-ctx.Done()
	return nil, vast.ErrNetwork
}

func TestSession_LoadClearsIdle(t *testing.T) {
	m := newTestManager(t, heldLoader{}, nil, nil)

	s, err := m.Create(CreateRequest{ManifestURL: "https://ads.example/vast.xml"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !s.idleSince().IsZero() }, eventually, poll)

	_, err = s.Load("https://ads.example/next.xml")
	require.NoError(t, err)
	assert.True(t, s.idleSince().IsZero())
	assert.Equal(t, 0, m.Reap(0))
}
