package fetch

import (
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Configuration validation errors.
// Returned by New when an option produces a configuration that could not
// make progress. Package-level sentinels keep errors.Is usable while the
// messages stay human-readable.
var (
	// ErrInvalidConcurrency is returned when a concurrency ceiling is not
	// positive. A ceiling of zero would suspend every download forever.
	ErrInvalidConcurrency = errors.New("fetch: concurrency limit must be positive")

	// ErrInvalidAttempts is returned when the retry budget is not positive.
	// At least one attempt is required to produce an outcome.
	ErrInvalidAttempts = errors.New("fetch: max retry attempts must be positive")

	// ErrInvalidBackoff is returned when the backoff window is malformed:
	// non-positive base, or a ceiling below the base.
	ErrInvalidBackoff = errors.New("fetch: backoff base must be positive and not exceed the ceiling")

	// ErrInvalidTimeout is returned when the default timeout is not positive.
	// A zero timeout would let a stuck transfer stall the permit it holds.
	ErrInvalidTimeout = errors.New("fetch: default timeout must be positive")
)

// Defaults applied by New. All of them are tunable via options; none of
// them is a contract.
const (
	defaultMaxGlobalConcurrency  = 64
	defaultMaxPerHostConcurrency = 4
	defaultMaxRetryAttempts      = 3
	defaultBaseBackoff           = 500 * time.Millisecond
	defaultMaxBackoff            = 30 * time.Second
	defaultTimeout               = 30 * time.Second
	defaultMaxBodySize           = 10 * 1024 * 1024 // 10MB
	defaultUserAgent             = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"
)

// config holds the resolved downloader configuration.
type config struct {
	maxGlobalConcurrency  int
	maxPerHostConcurrency int
	maxRetryAttempts      int
	baseBackoff           time.Duration
	maxBackoff            time.Duration
	defaultTimeout        time.Duration
	proxy                 *url.URL
	perHostRPS            float64
	maxBodySize           int64
	userAgent             string
	tlsConfig             *tls.Config
	roundTripper          http.RoundTripper
	logger                *slog.Logger
	sink                  AttemptSink
}

// defaultConfig returns the baseline configuration.
func defaultConfig() *config {
	return &config{
		maxGlobalConcurrency:  defaultMaxGlobalConcurrency,
		maxPerHostConcurrency: defaultMaxPerHostConcurrency,
		maxRetryAttempts:      defaultMaxRetryAttempts,
		baseBackoff:           defaultBaseBackoff,
		maxBackoff:            defaultMaxBackoff,
		defaultTimeout:        defaultTimeout,
		maxBodySize:           defaultMaxBodySize,
		userAgent:             defaultUserAgent,
	}
}

// validate checks the resolved configuration for values that could not
// make progress.
func (c *config) validate() error {
	if c.maxGlobalConcurrency <= 0 || c.maxPerHostConcurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.maxRetryAttempts <= 0 {
		return ErrInvalidAttempts
	}
	if c.baseBackoff <= 0 || c.maxBackoff < c.baseBackoff {
		return ErrInvalidBackoff
	}
	if c.defaultTimeout <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// Option configures a Downloader.
type Option func(*config)

// WithMaxGlobalConcurrency sets the ceiling on in-flight requests across
// all hosts.
func WithMaxGlobalConcurrency(n int) Option {
	return func(c *config) {
		c.maxGlobalConcurrency = n
	}
}

// WithMaxPerHostConcurrency sets the ceiling on in-flight requests per
// host key (scheme+host+port).
func WithMaxPerHostConcurrency(n int) Option {
	return func(c *config) {
		c.maxPerHostConcurrency = n
	}
}

// WithMaxRetryAttempts sets the retry budget: the maximum total attempts
// per request. 1 disables retries.
func WithMaxRetryAttempts(n int) Option {
	return func(c *config) {
		c.maxRetryAttempts = n
	}
}

// WithBaseBackoff sets the backoff delay before the first retry. Later
// retries grow exponentially from this base.
func WithBaseBackoff(d time.Duration) Option {
	return func(c *config) {
		c.baseBackoff = d
	}
}

// WithMaxBackoff sets the ceiling on the backoff delay between attempts.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *config) {
		c.maxBackoff = d
	}
}

// WithDefaultTimeout sets the per-attempt transport deadline applied when
// a Request carries no override. The deadline spans connect, TLS
// handshake, and body transfer of one attempt.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *config) {
		c.defaultTimeout = d
	}
}

// WithProxy routes all requests through the given proxy endpoint unless a
// Request carries its own override. Supported schemes: http, https,
// socks5, socks5h.
func WithProxy(u *url.URL) Option {
	return func(c *config) {
		c.proxy = u
	}
}

// WithPerHostRPS adds a politeness rate limit: at most rps request starts
// per second per host, on top of the concurrency ceilings. 0 disables
// pacing (the default).
func WithPerHostRPS(rps float64) Option {
	return func(c *config) {
		c.perHostRPS = rps
	}
}

// WithMaxBodySize sets the maximum response body size read per attempt.
// Larger bodies are truncated at the limit.
func WithMaxBodySize(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// WithUserAgent sets the User-Agent header applied when a Request does not
// set one itself.
func WithUserAgent(ua string) Option {
	return func(c *config) {
		c.userAgent = ua
	}
}

// WithTLSConfig sets the TLS configuration used by the default transport.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *config) {
		c.tlsConfig = cfg
	}
}

// WithTransport swaps the underlying HTTP engine. The downloader routes
// every attempt through rt instead of building its own pooled transport.
// Per-request proxy overrides are rejected in this mode because the
// downloader cannot reroute an opaque engine.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *config) {
		c.roundTripper = rt
	}
}

// WithLogger sets the logger. The downloader wraps the handler so that
// credentials (proxy userinfo, Authorization and Cookie headers) never
// reach the log output. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithAttemptSink registers an observability sink that receives one
// Attempt record per execution try.
func WithAttemptSink(sink AttemptSink) Option {
	return func(c *config) {
		c.sink = sink
	}
}
