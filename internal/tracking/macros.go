package tracking

import (
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"strings"
	"time"
)

// MacroContext carries the values substituted into beacon URLs.
type MacroContext struct {
	Playhead float64 // seconds
	AssetURI string
	Now      time.Time
}

// ExpandMacros replaces the VAST macros this player knows about.
// Unknown macros are left untouched.
func ExpandMacros(rawURL string, mc MacroContext) string {
	if !strings.Contains(rawURL, "[") {
		return rawURL
	}

	now := mc.Now
	if now.IsZero() {
		now = time.Now()
	}
	playhead := formatPlayhead(mc.Playhead)

	replacements := map[string]string{
		"[TIMESTAMP]":       url.QueryEscape(now.UTC().Format("2006-01-02T15:04:05.000Z07:00")),
		"[CACHEBUSTING]":    fmt.Sprintf("%08d", rand.Intn(100000000)),
		"[ADPLAYHEAD]":      url.QueryEscape(playhead),
		"[CONTENTPLAYHEAD]": url.QueryEscape(playhead),
		"[MEDIAPLAYHEAD]":   url.QueryEscape(playhead),
		"[ASSETURI]":        url.QueryEscape(mc.AssetURI),
	}

	for macro, value := range replacements {
		rawURL = strings.ReplaceAll(rawURL, macro, value)
	}
	return rawURL
}

// formatPlayhead renders seconds as HH:MM:SS.mmm.
func formatPlayhead(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	total := int64(math.Round(seconds * 1000))
	ms := total % 1000
	s := (total / 1000) % 60
	m := (total / 60000) % 60
	h := total / 3600000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
