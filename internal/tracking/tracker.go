package tracking

import (
	"math"
	"time"

	"github.com/radiusdt/vector-adplayer/internal/vast"
	"go.uber.org/zap"
)

// Pseudo-events that share the fire-once ledger with the VAST quartiles.
const (
	EventImpression = "impression"
	EventClick      = "click"
)

type threshold struct {
	ratio float64
	event string
}

// complete is deliberately absent: it only fires on an ended signal.
var quartiles = []threshold{
	{0, vast.EventStart},
	{0.25, vast.EventFirstQuartile},
	{0.5, vast.EventMidpoint},
	{0.75, vast.EventThirdQuartile},
}

var fireOnce = map[string]bool{
	vast.EventStart:         true,
	vast.EventFirstQuartile: true,
	vast.EventMidpoint:      true,
	vast.EventThirdQuartile: true,
	vast.EventComplete:      true,
}

// Tracker turns playback signals of the live surface into tracking beacons
// for a single ad cycle.
type Tracker struct {
	cycleID string
	ad      *vast.AdDescriptor
	fired   *FiredSet
	sender  Sender
	logger  *zap.Logger
	now     func() time.Time

	playhead float64
	muted    bool
}

// NewTracker creates a tracker for one cycle. fired must be the cycle's own
// set; it is never shared between cycles.
func NewTracker(cycleID string, ad *vast.AdDescriptor, fired *FiredSet, sender Sender, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fired == nil {
		fired = NewFiredSet()
	}
	return &Tracker{
		cycleID: cycleID,
		ad:      ad,
		fired:   fired,
		sender:  sender,
		logger:  logger,
		now:     time.Now,
	}
}

// SetInitialMuted seeds the mute state a volume change is compared against.
func (t *Tracker) SetInitialMuted(muted bool) {
	t.muted = muted
}

// Fired returns the cycle's fired-event ledger.
func (t *Tracker) Fired() *FiredSet { return t.fired }

// Fire issues the beacon mapped to name. It is a no-op when no URL is mapped
// or when a fire-once event already fired in this cycle. It reports whether
// a beacon was issued.
func (t *Tracker) Fire(name string) bool {
	u, ok := t.ad.TrackingURL(name)
	if !ok || u == "" {
		return false
	}
	if fireOnce[name] && !t.fired.Add(name) {
		return false
	}
	t.send(name, u)
	return true
}

// OnPlay starts the ad if nothing else has.
func (t *Tracker) OnPlay() {
	t.begin()
}

// OnPause fires pause on every pause signal.
func (t *Tracker) OnPause() {
	t.Fire(vast.EventPause)
}

// OnTimeUpdate evaluates quartile thresholds. Ratios are skipped until the
// duration is a positive finite number.
func (t *Tracker) OnTimeUpdate(position, duration float64) {
	if !math.IsNaN(position) && !math.IsInf(position, 0) {
		t.playhead = position
	}
	if !knownDuration(duration) || math.IsNaN(position) {
		return
	}

	ratio := position / duration
	for _, q := range quartiles {
		if ratio < q.ratio {
			break
		}
		if q.event == vast.EventStart {
			t.begin()
			continue
		}
		t.Fire(q.event)
	}
}

// OnEnded fires complete.
func (t *Tracker) OnEnded() {
	t.Fire(vast.EventComplete)
}

// OnVolumeChange fires mute or unmute when muted toggles.
func (t *Tracker) OnVolumeChange(volume float64, muted bool) {
	if muted == t.muted {
		return
	}
	t.muted = muted
	if muted {
		t.Fire(vast.EventMute)
	} else {
		t.Fire(vast.EventUnmute)
	}
}

// ClickThrough fires the click-tracking URLs and returns the landing URL,
// which is empty when the manifest has no ClickThrough.
func (t *Tracker) ClickThrough() string {
	for _, u := range t.ad.ClickTrackingURLs() {
		t.send(EventClick, u)
	}
	t.logger.Info("ad clicked",
		zap.String("cycle_id", t.cycleID),
		zap.String("click_through", t.ad.ClickThroughURL()),
	)
	return t.ad.ClickThroughURL()
}

// begin fires start and the impressions, once per cycle.
func (t *Tracker) begin() {
	if t.fired.Add(EventImpression) {
		for _, u := range t.ad.ImpressionURLs() {
			t.send(EventImpression, u)
		}
	}
	t.Fire(vast.EventStart)
}

func (t *Tracker) send(event, rawURL string) {
	u := ExpandMacros(rawURL, MacroContext{
		Playhead: t.playhead,
		AssetURI: t.ad.MediaURL(),
		Now:      t.now(),
	})

	t.logger.Debug("firing beacon",
		zap.String("cycle_id", t.cycleID),
		zap.String("event", event),
		zap.String("url", u),
	)
	if t.sender != nil {
		t.sender.Send(Beacon{CycleID: t.cycleID, Event: event, URL: u})
	}
}

func knownDuration(d float64) bool {
	return d > 0 && !math.IsInf(d, 0) && !math.IsNaN(d)
}
