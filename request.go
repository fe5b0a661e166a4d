package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"
)

// Structural request preconditions, surfaced to callers wrapped in
// ErrPolicyViolation.
var (
	errEmptyURL          = errors.New("empty URL")
	errUnsupportedScheme = errors.New("unsupported scheme")
	errMissingHost       = errors.New("missing host")
)

// Request describes one logical download. It is treated as immutable once
// submitted to Downloader.Download: the downloader builds a fresh
// http.Request for every attempt and never mutates the original.
type Request struct {
	// URL is the target URL. Required; only http and https schemes are
	// supported.
	URL string

	// Method is the HTTP method. Defaults to GET when empty.
	Method string

	// Header contains additional request headers. Keys are case-insensitive
	// per net/http.Header semantics; insertion order is irrelevant.
	Header http.Header

	// Body is the optional request body. It is replayed from this slice on
	// every attempt, so retries never consume a half-read reader.
	Body []byte

	// Timeout overrides the downloader's default per-attempt timeout when
	// positive. The timeout spans connect, TLS handshake, and body transfer
	// of a single attempt; it does not cover permit waits or backoff.
	Timeout time.Duration

	// Proxy routes this request through the given proxy endpoint instead of
	// the transport's default route. Supported schemes: http, https,
	// socks5, socks5h.
	Proxy *url.URL

	// MaxAttempts overrides the downloader's retry budget when positive.
	// It caps total attempts, so 1 means no retries.
	MaxAttempts int
}

// validate checks the structural preconditions and returns the parsed URL.
// Violations are caller bugs and map to ErrPolicyViolation upstream.
func (r Request) validate() (*url.URL, error) {
	if r.URL == "" {
		return nil, errEmptyURL
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errUnsupportedScheme
	}

	if u.Host == "" {
		return nil, errMissingHost
	}

	return u, nil
}

// build constructs the http.Request for one attempt. The returned request
// carries a fresh body reader, cloned headers, and the attempt context.
func (r Request) build(ctx context.Context, userAgent string) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body *bytes.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, r.URL, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, r.URL, nil)
	}
	if err != nil {
		return nil, err
	}

	for key, values := range r.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	if req.Header.Get("User-Agent") == "" && userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	return req, nil
}

// hostKey derives the per-host accounting key from a parsed URL.
// The key is the scheme+host+port tuple with default ports made explicit,
// so "https://example.com/" and "https://example.com:443/x" share a key
// while the http and https endpoints of the same host do not.
func hostKey(u *url.URL) string {
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		default:
			port = "80"
		}
	}
	return u.Scheme + "://" + host + ":" + port
}
