package vast

import "errors"

var (
	// ErrNetwork indicates the manifest could not be fetched.
	ErrNetwork = errors.New("vast: manifest fetch failed")

	// ErrParse indicates the manifest is not a parseable XML document.
	ErrParse = errors.New("vast: manifest is not valid XML")

	// ErrMissingMedia indicates the manifest has no usable MediaFile.
	// It is terminal for the ad cycle.
	ErrMissingMedia = errors.New("vast: MediaFile not found")
)

// Outcome maps a Load error to a short label for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMissingMedia):
		return "missing_media"
	case errors.Is(err, ErrParse):
		return "parse_error"
	case errors.Is(err, ErrNetwork):
		return "network_error"
	default:
		return "error"
	}
}
