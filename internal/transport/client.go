package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/proxy"
)

// ErrProxyScheme is returned when a proxy URL uses a scheme the client
// cannot route through.
var ErrProxyScheme = errors.New("transport: unsupported proxy scheme")

// maxRedirects caps redirect chains to prevent loops while allowing
// normal redirects.
const maxRedirects = 10

// Options configures a Client.
type Options struct {
	// MaxIdleConnsPerHost bounds the idle connections kept per host.
	// Usually tied to the per-host concurrency ceiling so the pool never
	// outgrows what the limiter admits.
	MaxIdleConnsPerHost int

	// MaxIdleConns bounds the idle connections kept across all hosts.
	// Default: 100.
	MaxIdleConns int

	// IdleConnTimeout is how long an idle connection stays pooled.
	// Default: 90s.
	IdleConnTimeout time.Duration

	// TLSConfig is the TLS configuration for the built-in transport.
	TLSConfig *tls.Config

	// Proxy is the default proxy endpoint. Requests without an override
	// route through it. Supported schemes: http, https, socks5, socks5h.
	Proxy *url.URL

	// Base replaces the built-in pooled transport with a caller-supplied
	// HTTP engine. When set, proxy routing (default and per-request) is
	// unavailable.
	Base http.RoundTripper

	// MaxBodySize bounds the response body bytes read per attempt.
	// Bodies beyond the limit are truncated.
	MaxBodySize int64
}

// Result is the raw outcome of one executed attempt, before the retry
// policy interprets it.
type Result struct {
	// StatusCode is the HTTP status.
	StatusCode int

	// Header contains the response headers.
	Header http.Header

	// Body is the response body, truncated at the configured limit.
	Body []byte

	// FinalURL is the URL the response was served from after redirects.
	FinalURL *url.URL
}

// Client executes single HTTP attempts over a shared connection pool.
// It is safe for concurrent use; the pool supports concurrent checkout
// and return without external locking.
type Client struct {
	// def is the default client used for requests without a proxy override.
	def *http.Client

	// custom reports whether the client runs on a caller-supplied engine,
	// in which case proxy routing is rejected.
	custom bool

	// maxBodySize bounds body reads.
	maxBodySize int64

	// opts is kept to derive proxied clients with the same pool settings.
	opts Options

	// mu guards proxied.
	mu sync.Mutex

	// proxied caches per-proxy clients keyed by proxy URL, so repeated
	// requests through the same proxy reuse one connection pool.
	proxied map[string]*http.Client
}

// New creates a Client. The default proxy, when set, is validated here so
// misconfiguration fails at construction rather than on the first request.
func New(opts Options) (*Client, error) {
	if opts.MaxIdleConns == 0 {
		opts.MaxIdleConns = 100
	}
	if opts.IdleConnTimeout == 0 {
		opts.IdleConnTimeout = 90 * time.Second
	}

	c := &Client{
		custom:      opts.Base != nil,
		maxBodySize: opts.MaxBodySize,
		opts:        opts,
		proxied:     make(map[string]*http.Client),
	}

	if opts.Base != nil {
		if opts.Proxy != nil {
			return nil, ErrProxyUnsupported
		}
		c.def = newHTTPClient(opts.Base)
		return c, nil
	}

	rt, err := c.newRoundTripper(opts.Proxy)
	if err != nil {
		return nil, err
	}
	c.def = newHTTPClient(rt)
	return c, nil
}

// HTTPClient returns the underlying default client for advanced callers
// that need direct access to the engine.
func (c *Client) HTTPClient() *http.Client {
	return c.def
}

// Execute runs one attempt with a hard deadline spanning connect, TLS
// handshake, and body transfer. A non-nil proxyOverride routes the attempt
// through that endpoint instead of the default route.
//
// When the caller's context is cancelled, Execute returns ctx.Err()
// unwrapped so the downloader can distinguish cancellation from a
// transport failure. All other failures come back as *Error.
func (c *Client) Execute(ctx context.Context, req *http.Request, timeout time.Duration, proxyOverride *url.URL) (*Result, error) {
	client := c.def
	if proxyOverride != nil {
		var err error
		client, err = c.proxiedClient(proxyOverride)
		if err != nil {
			return nil, err
		}
	}

	attemptCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	resp, err := client.Do(req.Clone(attemptCtx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classify(err, attemptCtx.Err() != nil)
	}
	defer resp.Body.Close()

	// The body read stays under the attempt deadline: attemptCtx cancels
	// the connection if the transfer stalls past the timeout.
	var reader io.Reader = resp.Body
	if c.maxBodySize > 0 {
		reader = io.LimitReader(resp.Body, c.maxBodySize)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classify(err, attemptCtx.Err() != nil)
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FinalURL:   finalURL,
	}, nil
}

// proxiedClient returns the cached client for the given proxy endpoint,
// creating it on first use. Double-checked under the mutex so concurrent
// first requests through the same proxy build the pool once.
func (c *Client) proxiedClient(u *url.URL) (*http.Client, error) {
	if c.custom {
		return nil, ErrProxyUnsupported
	}

	key := u.String()

	c.mu.Lock()
	if client, ok := c.proxied[key]; ok {
		c.mu.Unlock()
		return client, nil
	}
	c.mu.Unlock()

	rt, err := c.newRoundTripper(u)
	if err != nil {
		return nil, err
	}
	client := newHTTPClient(rt)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.proxied[key]; ok {
		return existing, nil
	}
	c.proxied[key] = client
	return client, nil
}

// newRoundTripper builds the pooled transport, optionally routed through
// proxyURL. HTTP proxies use net/http's own CONNECT handling; SOCKS5
// proxies dial through golang.org/x/net/proxy.
func (c *Client) newRoundTripper(proxyURL *url.URL) (http.RoundTripper, error) {
	tr := &http.Transport{
		MaxIdleConns:        c.opts.MaxIdleConns,
		MaxIdleConnsPerHost: c.opts.MaxIdleConnsPerHost,
		IdleConnTimeout:     c.opts.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     c.opts.TLSConfig,
	}

	if proxyURL == nil {
		return tr, nil
	}

	switch proxyURL.Scheme {
	case "http", "https":
		tr.Proxy = http.ProxyURL(proxyURL)
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(proxyURL, proxy.Direct)
		if err != nil {
			return nil, &Error{Kind: KindConnection, Err: err}
		}
		tr.DialContext = contextDial(dialer)
	default:
		return nil, ErrProxyScheme
	}

	return tr, nil
}

// contextDial adapts a proxy.Dialer to the DialContext shape. Dialers that
// support contexts natively are used as-is; otherwise the dial runs in a
// goroutine so cancellation unblocks the caller even though the underlying
// attempt may continue briefly.
func contextDial(d proxy.Dialer) func(context.Context, string, string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}

	return func(ctx context.Context, network, address string) (net.Conn, error) {
		type dialResult struct {
			conn net.Conn
			err  error
		}
		resultCh := make(chan dialResult, 1)

		go func() {
			conn, err := d.Dial(network, address)
			if err == nil && ctx.Err() != nil {
				conn.Close()
				return
			}
			resultCh <- dialResult{conn, err}
		}()

		select {
		case result := <-resultCh:
			return result.conn, result.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// newHTTPClient assembles an http.Client around the given engine with the
// shared crawler policies: a cookie jar for session continuity across
// redirects, and a redirect cap.
func newHTTPClient(rt http.RoundTripper) *http.Client {
	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	return &http.Client{
		Transport: rt,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}
