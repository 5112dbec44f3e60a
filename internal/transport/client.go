package transport

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/llmrelay/llmrelay/internal/registry"
)

// NewClient builds an *http.Client for backend b. When b.HTTP2 is set, the
// transport negotiates HTTP/2 via ALPN and is wrapped so that a request
// failing with a protocol-level HTTP/2 error is retried once over a fresh
// HTTP/1.1-only transport (spec.md §4.5 / §4.6). The fallback is per
// request: the next request through the same client tries HTTP/2 again.
func NewClient(b *registry.Backend, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	h1 := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     false,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}

	if !b.HTTP2 {
		return &http.Client{Transport: h1, Timeout: timeout}
	}

	h2, err := http2.ConfigureTransports(h1)
	if err != nil || h2 == nil {
		return &http.Client{Transport: h1, Timeout: timeout}
	}
	_ = h2

	return &http.Client{
		Transport: &fallbackTransport{primary: h1},
		Timeout:   timeout,
	}
}

// fallbackTransport wraps an HTTP/2-upgraded http.Transport; on a
// protocol-level HTTP/2 error it retries the same request once over a
// freshly built HTTP/1.1-only transport instead of surfacing the error.
type fallbackTransport struct {
	primary *http.Transport
}

func (f *fallbackTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := f.primary.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	if !isHTTP2ProtocolError(err) {
		return nil, err
	}
	h1only := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:     &tls.Config{NextProtos: []string{"http/1.1"}},
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   false,
	}
	return h1only.RoundTrip(req.Clone(req.Context()))
}

// isHTTP2ProtocolError reports whether err looks like an HTTP/2
// session-level failure (GOAWAY, stream reset, malformed frame) rather than
// an ordinary network or context error, which should not trigger a
// protocol downgrade.
func isHTTP2ProtocolError(err error) bool {
	if err == nil {
		return false
	}
	switch err.(type) {
	case http2.StreamError, *http2.StreamError:
		return true
	case http2.GoAwayError, *http2.GoAwayError:
		return true
	case http2.ConnectionError, *http2.ConnectionError:
		return true
	}
	return false
}
