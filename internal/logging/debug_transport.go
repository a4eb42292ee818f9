package logging

import (
	"net/http"
	"time"
)

// DebugTransport logs every HTTP round trip at DEBUG level
type DebugTransport struct {
	base   http.RoundTripper
	logger Logger
}

// NewDebugTransport wraps base (http.DefaultTransport when nil)
func NewDebugTransport(base http.RoundTripper, logger Logger) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransport{base: base, logger: logger}
}

// Wrap returns a copy of the transport that delegates to base
func (t *DebugTransport) Wrap(base http.RoundTripper) *DebugTransport {
	return NewDebugTransport(base, t.logger)
}

func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	logger := t.logger.WithContext(req.Context())
	start := time.Now()

	// Query strings of upload targets carry signatures.
	target := req.URL.Scheme + "://" + req.URL.Host + req.URL.Path

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		logger.Debug("HTTP request failed",
			F("method", req.Method),
			F("url", target),
			F("duration_ms", time.Since(start).Milliseconds()),
			F("error", err.Error()),
		)
		return nil, err
	}

	logger.Debug("HTTP request",
		F("method", req.Method),
		F("url", target),
		F("status", resp.StatusCode),
		F("contentLength", req.ContentLength),
		F("duration_ms", time.Since(start).Milliseconds()),
	)
	return resp, nil
}
