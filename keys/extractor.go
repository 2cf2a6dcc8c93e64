// Package keys implements caller-identity key-extraction strategies:
// functions from request metadata to a stable, deterministic partition
// key for the per-key pool.
package keys

import (
	"net/http"
	"net/url"
	"strings"
)

// Extractor maps request metadata to a rate-limit key. Header lookup
// must be case-insensitive; http.Header's Get already canonicalizes
// keys, so every built-in below gets that for free.
type Extractor interface {
	Extract(headers http.Header, uri *url.URL) string
}

// ExtractorFunc adapts a plain function to the Extractor interface.
type ExtractorFunc func(headers http.Header, uri *url.URL) string

func (f ExtractorFunc) Extract(headers http.Header, uri *url.URL) string {
	return f(headers, uri)
}

const globalKey = "__global__"

// Global always returns the constant partition key "__global__".
func Global() Extractor {
	return ExtractorFunc(func(http.Header, *url.URL) string {
		return globalKey
	})
}

// IPConfig configures the IP extractor.
type IPConfig struct {
	// ForwardedForHeader defaults to "X-Forwarded-For".
	ForwardedForHeader string
	// RealIPHeader defaults to "X-Real-Ip".
	RealIPHeader string
	// FallbackKey defaults to "unknown".
	FallbackKey string
}

// IP reads the first entry of a comma-separated forwarded-for header,
// falling back to a real-ip header, then to a configurable literal.
func IP(cfg IPConfig) Extractor {
	forwardedHeader := cfg.ForwardedForHeader
	if forwardedHeader == "" {
		forwardedHeader = "X-Forwarded-For"
	}
	realIPHeader := cfg.RealIPHeader
	if realIPHeader == "" {
		realIPHeader = "X-Real-Ip"
	}
	fallback := cfg.FallbackKey
	if fallback == "" {
		fallback = "unknown"
	}

	return ExtractorFunc(func(headers http.Header, _ *url.URL) string {
		if v := headers.Get(forwardedHeader); v != "" {
			first, _, _ := strings.Cut(v, ",")
			if trimmed := strings.TrimSpace(first); trimmed != "" {
				return trimmed
			}
		}
		if v := strings.TrimSpace(headers.Get(realIPHeader)); v != "" {
			return v
		}
		return fallback
	})
}

// UserConfig configures the User extractor.
type UserConfig struct {
	// Header defaults to "X-User-Id".
	Header string
	// FallbackKey defaults to "anonymous".
	FallbackKey string
}

// User reads a configurable header identifying the caller, falling back
// to a configurable literal.
func User(cfg UserConfig) Extractor {
	header := cfg.Header
	if header == "" {
		header = "X-User-Id"
	}
	fallback := cfg.FallbackKey
	if fallback == "" {
		fallback = "anonymous"
	}

	return ExtractorFunc(func(headers http.Header, _ *url.URL) string {
		if v := headers.Get(header); v != "" {
			return v
		}
		return fallback
	})
}

// Route returns the request path as the key.
func Route() Extractor {
	return ExtractorFunc(func(_ http.Header, uri *url.URL) string {
		if uri == nil {
			return ""
		}
		return uri.Path
	})
}

// Custom delegates to a caller-supplied function.
func Custom(fn func(headers http.Header, uri *url.URL) string) Extractor {
	return ExtractorFunc(fn)
}

// Composite joins the output of two or more sub-extractors with a
// separator, in list order. Requires at least two sub-extractors.
func Composite(separator string, extractors ...Extractor) (Extractor, error) {
	if len(extractors) < 2 {
		return nil, &CompositeError{Count: len(extractors)}
	}
	if separator == "" {
		separator = ":"
	}
	return ExtractorFunc(func(headers http.Header, uri *url.URL) string {
		parts := make([]string, len(extractors))
		for i, e := range extractors {
			parts[i] = e.Extract(headers, uri)
		}
		return strings.Join(parts, separator)
	}), nil
}

// CompositeError is raised when Composite is given fewer than two
// sub-extractors.
type CompositeError struct {
	Count int
}

func (e *CompositeError) Error() string {
	return "composite extractor requires at least 2 sub-extractors"
}
