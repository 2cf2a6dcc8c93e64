// Package headers parses the standard X-RateLimit-* and Retry-After
// response headers a downstream service uses to signal its own
// admission decisions. This is the wire-level interpretation layer; it
// never makes an admission decision itself.
package headers

import (
	"net/http"
	"strconv"
	"time"
)

// Parsed is an immutable snapshot of the rate-limit headers present on
// an HTTP response.
type Parsed struct {
	Limit      *int64
	Remaining  *int64
	Reset      *time.Duration
	RetryAfter *time.Duration
	Policy     string
}

// AnyPresent reports whether at least one recognized field was parsed.
func (p Parsed) AnyPresent() bool {
	return p.Limit != nil || p.Remaining != nil || p.Reset != nil || p.RetryAfter != nil || p.Policy != ""
}

// Exhausted reports whether Remaining is present and zero.
func (p Parsed) Exhausted() bool {
	return p.Remaining != nil && *p.Remaining == 0
}

// Parse interprets the standard rate-limit response headers. Header
// lookup is case-insensitive (http.Header.Get canonicalizes keys), and
// every field degrades to "absent" rather than erroring on malformed
// input.
func Parse(h http.Header) Parsed {
	var parsed Parsed

	if v, ok := parseInt64(h.Get("X-RateLimit-Limit")); ok {
		parsed.Limit = &v
	}
	if v, ok := parseInt64(h.Get("X-RateLimit-Remaining")); ok {
		parsed.Remaining = &v
	}
	if v, ok := parseEpochSeconds(h.Get("X-RateLimit-Reset")); ok {
		parsed.Reset = &v
	}
	if v, ok := parseRetryAfter(h.Get("Retry-After")); ok {
		parsed.RetryAfter = &v
	}
	parsed.Policy = h.Get("X-RateLimit-Policy")

	return parsed
}

func parseInt64(raw string) (int64, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseEpochSeconds interprets raw as Unix epoch seconds and returns the
// duration until that instant, clamped to zero if it's already past.
func parseEpochSeconds(raw string) (time.Duration, bool) {
	epoch, ok := parseInt64(raw)
	if !ok {
		return 0, false
	}
	at := time.Unix(epoch, 0)
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	return d, true
}

// parseRetryAfter interprets raw as a non-negative integer seconds
// count. The HTTP-date form of Retry-After is not supported and yields
// absent.
func parseRetryAfter(raw string) (time.Duration, bool) {
	seconds, ok := parseInt64(raw)
	if !ok || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}
