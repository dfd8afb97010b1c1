package vast

import "time"

// Tracking event names recognized in VAST <Tracking event="..."> elements.
const (
	EventStart         = "start"
	EventFirstQuartile = "firstQuartile"
	EventMidpoint      = "midpoint"
	EventThirdQuartile = "thirdQuartile"
	EventComplete      = "complete"
	EventPause         = "pause"
	EventMute          = "mute"
	EventUnmute        = "unmute"
)

// AdDescriptor is the parsed, immutable view of one VAST manifest.
// Accessors return copies so callers cannot mutate the descriptor.
type AdDescriptor struct {
	mediaURL          string
	clickThroughURL   string
	trackingURLs      map[string]string
	impressionURLs    []string
	clickTrackingURLs []string
	verificationURLs  []string
	duration          time.Duration
}

// NewAdDescriptor builds a descriptor from already-extracted values.
func NewAdDescriptor(mediaURL, clickThroughURL string, trackingURLs map[string]string) *AdDescriptor {
	d := &AdDescriptor{
		mediaURL:        mediaURL,
		clickThroughURL: clickThroughURL,
		trackingURLs:    make(map[string]string, len(trackingURLs)),
	}
	for k, v := range trackingURLs {
		d.trackingURLs[k] = v
	}
	return d
}

// MediaURL returns the URL of the first MediaFile.
func (d *AdDescriptor) MediaURL() string { return d.mediaURL }

// ClickThroughURL returns the ClickThrough URL, or "" when the manifest has none.
func (d *AdDescriptor) ClickThroughURL() string { return d.clickThroughURL }

// HasClickThrough reports whether the manifest carried a ClickThrough.
func (d *AdDescriptor) HasClickThrough() bool { return d.clickThroughURL != "" }

// Duration is the Linear duration declared in the manifest, zero if absent.
func (d *AdDescriptor) Duration() time.Duration { return d.duration }

// TrackingURL returns the beacon URL mapped to event.
func (d *AdDescriptor) TrackingURL(event string) (string, bool) {
	u, ok := d.trackingURLs[event]
	return u, ok
}

// TrackingURLs returns a copy of the event-name to URL mapping.
func (d *AdDescriptor) TrackingURLs() map[string]string {
	out := make(map[string]string, len(d.trackingURLs))
	for k, v := range d.trackingURLs {
		out[k] = v
	}
	return out
}

// ImpressionURLs returns every Impression URL in document order.
func (d *AdDescriptor) ImpressionURLs() []string { return copyStrings(d.impressionURLs) }

// ClickTrackingURLs returns every ClickTracking URL, fired on click-through.
func (d *AdDescriptor) ClickTrackingURLs() []string { return copyStrings(d.clickTrackingURLs) }

// VerificationURLs returns the AdVerifications JavaScriptResource URLs.
// They are exposed for hosts; the player does not load them.
func (d *AdDescriptor) VerificationURLs() []string { return copyStrings(d.verificationURLs) }

func copyStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
