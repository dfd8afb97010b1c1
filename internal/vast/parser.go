package vast

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
)

// ParseManifest extracts an AdDescriptor from raw manifest text.
//
// Element lookup is by tag name anywhere in the document, in document order,
// so both InLine and loosely structured manifests are accepted.
func ParseManifest(data []byte) (*AdDescriptor, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = passthroughCharset
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, errors.Join(ErrParse, err)
	}

	root := doc.Root()
	if root == nil {
		return nil, ErrParse
	}

	media := firstElement(root, "MediaFile")
	if media == nil {
		return nil, ErrMissingMedia
	}
	mediaURL := textContent(media)
	if mediaURL == "" {
		return nil, ErrMissingMedia
	}

	d := &AdDescriptor{
		mediaURL:     mediaURL,
		trackingURLs: make(map[string]string),
	}

	if ct := firstElement(root, "ClickThrough"); ct != nil {
		d.clickThroughURL = textContent(ct)
	}

	for _, el := range allElements(root, "Tracking") {
		event := strings.TrimSpace(el.SelectAttrValue("event", ""))
		if event == "" {
			continue
		}
		// last occurrence wins
		d.trackingURLs[event] = textContent(el)
	}

	for _, el := range allElements(root, "Impression") {
		if u := textContent(el); u != "" {
			d.impressionURLs = append(d.impressionURLs, u)
		}
	}

	for _, el := range allElements(root, "ClickTracking") {
		if u := textContent(el); u != "" {
			d.clickTrackingURLs = append(d.clickTrackingURLs, u)
		}
	}

	for _, av := range allElements(root, "AdVerifications") {
		for _, el := range allElements(av, "JavaScriptResource") {
			if u := textContent(el); u != "" {
				d.verificationURLs = append(d.verificationURLs, u)
			}
		}
	}

	if linear := firstElement(root, "Linear"); linear != nil {
		if dur := firstElement(linear, "Duration"); dur != nil {
			d.duration = ParseDuration(textContent(dur))
		}
	}

	return d, nil
}

// ParseDuration parses a VAST duration (HH:MM:SS or HH:MM:SS.mmm).
// Returns 0 if the duration cannot be parsed.
func ParseDuration(s string) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	var millis time.Duration
	if idx := strings.Index(s, "."); idx != -1 {
		frac := s[idx+1:]
		s = s[:idx]
		if len(frac) > 3 {
			frac = frac[:3]
		}
		for len(frac) < 3 {
			frac += "0"
		}
		ms, err := strconv.Atoi(frac)
		if err != nil || ms < 0 {
			return 0
		}
		millis = time.Duration(ms) * time.Millisecond
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0
	}

	var fields [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0
		}
		fields[i] = n
	}

	return time.Duration(fields[0])*time.Hour +
		time.Duration(fields[1])*time.Minute +
		time.Duration(fields[2])*time.Second +
		millis
}

func firstElement(root *etree.Element, tag string) *etree.Element {
	var found *etree.Element
	walk(root, func(e *etree.Element) bool {
		if e.Tag == tag {
			found = e
			return false
		}
		return true
	})
	return found
}

func allElements(root *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	walk(root, func(e *etree.Element) bool {
		if e.Tag == tag {
			out = append(out, e)
		}
		return true
	})
	return out
}

// walk visits e and its descendants in document order until fn returns false.
func walk(e *etree.Element, fn func(*etree.Element) bool) bool {
	if !fn(e) {
		return false
	}
	for _, c := range e.ChildElements() {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

// textContent concatenates all character data under e, CDATA included.
func textContent(e *etree.Element) string {
	var sb strings.Builder
	var collect func(*etree.Element)
	collect = func(el *etree.Element) {
		for _, tok := range el.Child {
			switch t := tok.(type) {
			case *etree.CharData:
				sb.WriteString(t.Data)
			case *etree.Element:
				collect(t)
			}
		}
	}
	collect(e)
	return strings.TrimSpace(sb.String())
}

func passthroughCharset(_ string, input io.Reader) (io.Reader, error) {
	return input, nil
}
