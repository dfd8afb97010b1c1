package tracking

import (
	"math"
	"testing"
	"time"

	"github.com/radiusdt/vector-adplayer/internal/vast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	beacons []Beacon
}

func (r *recordingSender) Send(b Beacon) { r.beacons = append(r.beacons, b) }

func (r *recordingSender) urls() []string {
	out := make([]string, 0, len(r.beacons))
	for _, b := range r.beacons {
		out = append(out, b.URL)
	}
	return out
}

func (r *recordingSender) events() []string {
	out := make([]string, 0, len(r.beacons))
	for _, b := range r.beacons {
		out = append(out, b.Event)
	}
	return out
}

func fullAd() *vast.AdDescriptor {
	return vast.NewAdDescriptor("https://x/a.mp4", "https://landing.example", map[string]string{
		vast.EventStart:         "https://t/start",
		vast.EventFirstQuartile: "https://t/q1",
		vast.EventMidpoint:      "https://t/mid",
		vast.EventThirdQuartile: "https://t/q3",
		vast.EventComplete:      "https://t/complete",
		vast.EventPause:         "https://t/pause",
		vast.EventMute:          "https://t/mute",
		vast.EventUnmute:        "https://t/unmute",
	})
}

func newTestTracker(ad *vast.AdDescriptor) (*Tracker, *recordingSender) {
	s := &recordingSender{}
	return NewTracker("cycle-1", ad, NewFiredSet(), s, nil), s
}

func TestTracker_StartAndCompleteOnly(t *testing.T) {
	ad := vast.NewAdDescriptor("https://x/a.mp4", "", map[string]string{
		vast.EventStart:    "u1",
		vast.EventComplete: "u2",
	})
	tr, s := newTestTracker(ad)

	for _, pos := range []float64{0, 2.5, 5, 7.5, 10} {
		tr.OnTimeUpdate(pos, 10)
	}
	tr.OnEnded()

	assert.Equal(t, []string{"u1", "u2"}, s.urls())
	assert.False(t, tr.Fired().Has(vast.EventFirstQuartile))
	assert.False(t, tr.Fired().Has(vast.EventMidpoint))
}

func TestTracker_QuartilesFireOnceInOrder(t *testing.T) {
	tr, s := newTestTracker(fullAd())

	for _, pos := range []float64{0, 0.5, 1, 2.5, 2.6, 4.9, 5, 6, 7.5, 7.6, 9.9, 10} {
		tr.OnTimeUpdate(pos, 10)
	}
	tr.OnEnded()
	tr.OnEnded()

	assert.Equal(t, []string{
		vast.EventStart,
		vast.EventFirstQuartile,
		vast.EventMidpoint,
		vast.EventThirdQuartile,
		vast.EventComplete,
	}, s.events())
}

func TestTracker_JumpFiresSkippedQuartilesInOrder(t *testing.T) {
	tr, s := newTestTracker(fullAd())

	tr.OnTimeUpdate(8, 10)

	assert.Equal(t, []string{
		vast.EventStart,
		vast.EventFirstQuartile,
		vast.EventMidpoint,
		vast.EventThirdQuartile,
	}, s.events())
}

func TestTracker_CompleteNeverFromRatio(t *testing.T) {
	tr, s := newTestTracker(fullAd())

	tr.OnTimeUpdate(10, 10)
	tr.OnTimeUpdate(12, 10)

	assert.NotContains(t, s.events(), vast.EventComplete)
	assert.False(t, tr.Fired().Has(vast.EventComplete))
}

func TestTracker_UnknownDurationSkipsRatios(t *testing.T) {
	tr, s := newTestTracker(fullAd())

	tr.OnTimeUpdate(3, 0)
	tr.OnTimeUpdate(3, math.NaN())
	tr.OnTimeUpdate(3, math.Inf(1))
	tr.OnTimeUpdate(3, -1)
	assert.Empty(t, s.beacons)

	tr.OnTimeUpdate(3, 10)
	assert.Equal(t, []string{vast.EventStart, vast.EventFirstQuartile}, s.events())
}

func TestTracker_PauseRecurs(t *testing.T) {
	tr, s := newTestTracker(fullAd())

	tr.OnPause()
	tr.OnPause()
	tr.OnPause()

	assert.Equal(t, []string{"https://t/pause", "https://t/pause", "https://t/pause"}, s.urls())
	assert.False(t, tr.Fired().Has(vast.EventPause))
}

func TestTracker_MuteUnmuteOnlyOnToggle(t *testing.T) {
	tr, s := newTestTracker(fullAd())
	tr.SetInitialMuted(false)

	tr.OnVolumeChange(0.5, false)
	tr.OnVolumeChange(0.5, true)
	tr.OnVolumeChange(0.2, true)
	tr.OnVolumeChange(0.2, false)
	tr.OnVolumeChange(0.8, false)
	tr.OnVolumeChange(0.8, true)

	assert.Equal(t, []string{vast.EventMute, vast.EventUnmute, vast.EventMute}, s.events())
}

func TestTracker_InitiallyMuted(t *testing.T) {
	tr, s := newTestTracker(fullAd())
	tr.SetInitialMuted(true)

	tr.OnVolumeChange(1, true)
	tr.OnVolumeChange(1, false)

	assert.Equal(t, []string{vast.EventUnmute}, s.events())
}

func TestTracker_NoURLIsNoop(t *testing.T) {
	tr, s := newTestTracker(vast.NewAdDescriptor("https://x/a.mp4", "", nil))

	assert.False(t, tr.Fire(vast.EventStart))
	tr.OnPause()
	tr.OnVolumeChange(0, true)
	tr.OnEnded()

	assert.Empty(t, s.beacons)
}

func TestTracker_FiredSetIsPerCycle(t *testing.T) {
	fired := NewFiredSet()
	fired.Add(vast.EventStart)

	s := &recordingSender{}
	tr := NewTracker("cycle-2", fullAd(), fired, s, nil)
	assert.False(t, tr.Fire(vast.EventStart))

	fresh, s2 := newTestTracker(fullAd())
	assert.True(t, fresh.Fire(vast.EventStart))
	assert.Empty(t, s.beacons)
	assert.Len(t, s2.beacons, 1)
}

const trackerManifest = `<VAST version="4.0"><Ad><InLine>
  <Impression>https://t/imp?cb=[CACHEBUSTING]</Impression>
  <Impression>https://t/imp2</Impression>
  <Creatives><Creative><Linear>
    <Duration>00:00:20</Duration>
    <TrackingEvents>
      <Tracking event="start">https://t/start?asset=[ASSETURI]</Tracking>
      <Tracking event="pause">https://t/pause?ph=[ADPLAYHEAD]</Tracking>
    </TrackingEvents>
    <VideoClicks>
      <ClickThrough>https://landing.example/go</ClickThrough>
      <ClickTracking>https://t/click</ClickTracking>
    </VideoClicks>
    <MediaFiles><MediaFile>https://cdn.example/ad.mp4</MediaFile></MediaFiles>
  </Linear></Creative></Creatives>
</InLine></Ad></VAST>`

func TestTracker_PlayFiresImpressionsAndStartOnce(t *testing.T) {
	ad, err := vast.ParseManifest([]byte(trackerManifest))
	require.NoError(t, err)
	tr, s := newTestTracker(ad)

	tr.OnPlay()
	tr.OnTimeUpdate(0.1, 20)
	tr.OnPlay()

	require.Len(t, s.beacons, 3)
	assert.Equal(t, EventImpression, s.beacons[0].Event)
	assert.Regexp(t, `^https://t/imp\?cb=\d{8}$`, s.beacons[0].URL)
	assert.Equal(t, "https://t/imp2", s.beacons[1].URL)
	assert.Equal(t, "https://t/start?asset=https%3A%2F%2Fcdn.example%2Fad.mp4", s.beacons[2].URL)
	for _, b := range s.beacons {
		assert.Equal(t, "cycle-1", b.CycleID)
	}
}

func TestTracker_PauseCarriesPlayhead(t *testing.T) {
	ad, err := vast.ParseManifest([]byte(trackerManifest))
	require.NoError(t, err)
	tr, s := newTestTracker(ad)

	tr.OnTimeUpdate(12.25, 20)
	tr.OnPause()

	last := s.beacons[len(s.beacons)-1]
	assert.Equal(t, vast.EventPause, last.Event)
	assert.Equal(t, "https://t/pause?ph=00%3A00%3A12.250", last.URL)
}

func TestTracker_ClickThrough(t *testing.T) {
	ad, err := vast.ParseManifest([]byte(trackerManifest))
	require.NoError(t, err)
	tr, s := newTestTracker(ad)
	tr.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	assert.Equal(t, "https://landing.example/go", tr.ClickThrough())
	assert.Equal(t, "https://landing.example/go", tr.ClickThrough())
	assert.Equal(t, []string{"https://t/click", "https://t/click"}, s.urls())
	assert.Equal(t, []string{EventClick, EventClick}, s.events())
}
