package infrastructure

import (
	"net/http"
	"time"
)

// HeaderMapTransport sets fixed headers on every outgoing request
type HeaderMapTransport struct {
	Headers map[string]string
	Base    http.RoundTripper
}

// RoundTrip implements http.RoundTripper
func (t *HeaderMapTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if len(t.Headers) == 0 {
		return base.RoundTrip(req)
	}

	// RoundTrippers must not modify the caller's request
	req = req.Clone(req.Context())
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}
	return base.RoundTrip(req)
}

// NewHTTPClient builds a client that sends userAgent and headers with every request.
// timeout 0 means no overall deadline.
func NewHTTPClient(userAgent string, headers map[string]string, timeout time.Duration) *http.Client {
	all := make(map[string]string, len(headers)+1)
	if userAgent != "" {
		all["User-Agent"] = userAgent
	}
	for k, v := range headers {
		all[k] = v
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: &HeaderMapTransport{Headers: all, Base: http.DefaultTransport},
	}
}
