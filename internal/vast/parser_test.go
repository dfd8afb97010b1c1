package vast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inlineManifest = `<?xml version="1.0" encoding="UTF-8"?>
<VAST version="4.0">
  <Ad id="20001">
    <InLine>
      <AdSystem>Metrike</AdSystem>
      <AdTitle>Sample</AdTitle>
      <Impression><![CDATA[https://t.example/imp?cb=[CACHEBUSTING]]]></Impression>
      <AdVerifications>
        <Verification vendor="omid">
          <JavaScriptResource apiFramework="omid"><![CDATA[https://v.example/omid.js]]></JavaScriptResource>
        </Verification>
      </AdVerifications>
      <Creatives>
        <Creative>
          <Linear>
            <Duration>00:00:10.500</Duration>
            <TrackingEvents>
              <Tracking event="start"><![CDATA[https://t.example/start]]></Tracking>
              <Tracking event="firstQuartile">https://t.example/q1</Tracking>
              <Tracking event="midpoint">
                https://t.example/mid
              </Tracking>
              <Tracking event="thirdQuartile">https://t.example/q3</Tracking>
              <Tracking event="complete">https://t.example/complete</Tracking>
              <Tracking event="pause">https://t.example/pause</Tracking>
              <Tracking event="mute">https://t.example/mute</Tracking>
              <Tracking event="unmute">https://t.example/unmute</Tracking>
            </TrackingEvents>
            <VideoClicks>
              <ClickThrough><![CDATA[https://advertiser.example/landing]]></ClickThrough>
              <ClickTracking><![CDATA[https://t.example/click]]></ClickTracking>
            </VideoClicks>
            <MediaFiles>
              <MediaFile delivery="progressive" type="video/mp4" width="640" height="360">
                <![CDATA[https://cdn.example/ad.mp4]]>
              </MediaFile>
              <MediaFile delivery="progressive" type="video/webm" width="640" height="360">
                https://cdn.example/ad.webm
              </MediaFile>
            </MediaFiles>
          </Linear>
        </Creative>
      </Creatives>
    </InLine>
  </Ad>
</VAST>`

func TestParseManifest_Inline(t *testing.T) {
	d, err := ParseManifest([]byte(inlineManifest))
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example/ad.mp4", d.MediaURL())
	assert.Equal(t, "https://advertiser.example/landing", d.ClickThroughURL())
	assert.True(t, d.HasClickThrough())
	assert.Equal(t, 10*time.Second+500*time.Millisecond, d.Duration())

	urls := d.TrackingURLs()
	assert.Len(t, urls, 8)
	assert.Equal(t, "https://t.example/start", urls[EventStart])
	assert.Equal(t, "https://t.example/mid", urls[EventMidpoint])

	assert.Equal(t, []string{"https://t.example/imp?cb=[CACHEBUSTING]"}, d.ImpressionURLs())
	assert.Equal(t, []string{"https://t.example/click"}, d.ClickTrackingURLs())
	assert.Equal(t, []string{"https://v.example/omid.js"}, d.VerificationURLs())
}

func TestParseManifest_DuplicateTrackingLastWins(t *testing.T) {
	doc := `<VAST><MediaFile>https://x/a.mp4</MediaFile>
		<Tracking event="start">https://t/first</Tracking>
		<Tracking event="pause">https://t/pause</Tracking>
		<Wrapper><Tracking event="start">https://t/second</Tracking></Wrapper>
		<Tracking event="start">https://t/third</Tracking>
	</VAST>`

	d, err := ParseManifest([]byte(doc))
	require.NoError(t, err)

	urls := d.TrackingURLs()
	assert.Len(t, urls, 2)
	assert.Equal(t, "https://t/third", urls[EventStart])
	assert.Equal(t, "https://t/pause", urls[EventPause])
}

func TestParseManifest_SkipsTrackingWithoutEvent(t *testing.T) {
	doc := `<VAST><MediaFile>https://x/a.mp4</MediaFile>
		<Tracking>https://t/orphan</Tracking>
		<Tracking event="  ">https://t/blank</Tracking>
	</VAST>`

	d, err := ParseManifest([]byte(doc))
	require.NoError(t, err)
	assert.Empty(t, d.TrackingURLs())
}

func TestParseManifest_NoClickThrough(t *testing.T) {
	d, err := ParseManifest([]byte(`<VAST><MediaFile>https://x/a.mp4</MediaFile></VAST>`))
	require.NoError(t, err)

	assert.Equal(t, "", d.ClickThroughURL())
	assert.False(t, d.HasClickThrough())
	assert.Zero(t, d.Duration())
	assert.Nil(t, d.ImpressionURLs())
}

func TestParseManifest_FirstMediaFileInDocumentOrder(t *testing.T) {
	doc := `<VAST>
		<Ad><InLine><Creatives><Creative><Linear><MediaFiles>
			<MediaFile>https://x/deep.mp4</MediaFile>
		</MediaFiles></Linear></Creative></Creatives></InLine></Ad>
		<MediaFile>https://x/shallow.mp4</MediaFile>
	</VAST>`

	d, err := ParseManifest([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "https://x/deep.mp4", d.MediaURL())
}

func TestParseManifest_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "plain text", input: "this is not xml", wantErr: ErrParse},
		{name: "empty", input: "", wantErr: ErrParse},
		{name: "json", input: `{"vast": true}`, wantErr: ErrParse},
		{name: "malformed markup", input: `<<VAST>><MediaFile>https://x/a.mp4</MediaFile>`, wantErr: ErrParse},
		{name: "no media file", input: `<VAST><Ad><InLine/></Ad></VAST>`, wantErr: ErrMissingMedia},
		{name: "empty media file", input: `<VAST><MediaFile>   </MediaFile></VAST>`, wantErr: ErrMissingMedia},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseManifest([]byte(tt.input))
			assert.Nil(t, d)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDescriptorIsImmutable(t *testing.T) {
	d := NewAdDescriptor("https://x/a.mp4", "", map[string]string{EventStart: "u1"})

	urls := d.TrackingURLs()
	urls[EventStart] = "tampered"
	urls[EventComplete] = "added"

	got, ok := d.TrackingURL(EventStart)
	assert.True(t, ok)
	assert.Equal(t, "u1", got)
	_, ok = d.TrackingURL(EventComplete)
	assert.False(t, ok)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"00:00:30", 30 * time.Second},
		{"00:01:05.250", time.Minute + 5*time.Second + 250*time.Millisecond},
		{"01:00:00", time.Hour},
		{"00:00:07.5", 7*time.Second + 500*time.Millisecond},
		{"", 0},
		{"30", 0},
		{"aa:bb:cc", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseDuration(tt.in), tt.in)
	}
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "parse_error", Outcome(ErrParse))
	assert.Equal(t, "missing_media", Outcome(ErrMissingMedia))
	assert.Equal(t, "network_error", Outcome(ErrNetwork))
}
