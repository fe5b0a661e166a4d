package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/spiderlib/fetch/internal/limiter"
	"github.com/spiderlib/fetch/internal/logging"
	"github.com/spiderlib/fetch/internal/retry"
	"github.com/spiderlib/fetch/internal/transport"
)

// Stats is a snapshot of downloader counters, suitable for export by an
// external metrics collector.
type Stats struct {
	// TotalDownloads is the number of Download calls that ran at least
	// one attempt.
	TotalDownloads uint64

	// TotalRetries is the number of re-attempts across all downloads.
	TotalRetries uint64

	// TotalFailures is the number of downloads that ended in an error.
	TotalFailures uint64

	// InFlight is the number of requests currently holding a permit.
	InFlight int64
}

// Downloader turns a Request into a Response under the engine's
// concurrency, retry, and timeout policies. It is safe for concurrent use;
// one Downloader is meant to be shared by all workers of a crawl.
//
// Independently submitted downloads run in parallel with no ordering
// guarantee between them. Within a single download, attempts are strictly
// sequential.
type Downloader struct {
	cfg     *config
	client  *transport.Client
	limiter *limiter.Limiter
	policy  *retry.Policy
	logger  *slog.Logger
	sink    AttemptSink

	totalDownloads atomic.Uint64
	totalRetries   atomic.Uint64
	totalFailures  atomic.Uint64
}

// New creates a Downloader with the given options.
func New(opts ...Option) (*Downloader, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client, err := transport.New(transport.Options{
		MaxIdleConnsPerHost: cfg.maxPerHostConcurrency,
		TLSConfig:           cfg.tlsConfig,
		Proxy:               cfg.proxy,
		Base:                cfg.roundTripper,
		MaxBodySize:         cfg.maxBodySize,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch: configure transport: %w", err)
	}

	base := cfg.logger
	if base == nil {
		base = slog.Default()
	}

	return &Downloader{
		cfg:     cfg,
		client:  client,
		limiter: limiter.New(cfg.maxGlobalConcurrency, cfg.maxPerHostConcurrency, cfg.perHostRPS),
		policy:  retry.New(cfg.maxRetryAttempts, cfg.baseBackoff, cfg.maxBackoff),
		logger:  slog.New(logging.NewRedactingHandler(base.Handler())),
		sink:    cfg.sink,
	}, nil
}

// HTTPClient exposes the underlying HTTP client for advanced callers that
// need direct access to the engine. Requests issued through it bypass the
// limiter and retry policy.
func (d *Downloader) HTTPClient() *http.Client {
	return d.client.HTTPClient()
}

// Stats returns a snapshot of the downloader's counters.
func (d *Downloader) Stats() Stats {
	return Stats{
		TotalDownloads: d.totalDownloads.Load(),
		TotalRetries:   d.totalRetries.Load(),
		TotalFailures:  d.totalFailures.Load(),
		InFlight:       d.limiter.InFlight(),
	}
}

// Download executes the request and returns its terminal outcome: exactly
// one Response or one error per submitted Request, never a partial or
// duplicate result.
//
// Each attempt acquires a limiter permit keyed by the request's host,
// executes the transport phase under the per-attempt timeout, and releases
// the permit before any backoff, so capacity is never pinned while a
// download sleeps. Cancellation of ctx unblocks permit waits, backoff
// delays, and transport I/O, and surfaces as ErrCancelled.
func (d *Downloader) Download(ctx context.Context, req Request) (*Response, error) {
	u, err := req.validate()
	if err != nil {
		return nil, newError(ErrPolicyViolation, "", 0, 0, err)
	}
	key := hostKey(u)

	// Build once up front so malformed methods or headers surface as a
	// caller bug before any capacity is spent.
	if _, err := req.build(ctx, d.cfg.userAgent); err != nil {
		return nil, newError(ErrPolicyViolation, key, 0, 0, err)
	}

	budget := d.policy.MaxAttempts()
	if req.MaxAttempts > 0 {
		budget = req.MaxAttempts
	}
	timeout := d.cfg.defaultTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	d.totalDownloads.Add(1)
	start := time.Now()

	var lastErr *Error
	for attempt := 1; attempt <= budget; attempt++ {
		if attempt > 1 {
			d.totalRetries.Add(1)
			delay := d.policy.NextDelay(attempt - 1)
			d.logger.Debug("backing off before retry",
				"host", key,
				"attempt", attempt,
				"delay", delay,
			)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				d.totalFailures.Add(1)
				return nil, newError(ErrCancelled, key, 0, attempt-1, ctx.Err())
			case <-timer.C:
			}
		}

		result, latency, err := d.attempt(ctx, req, key, timeout)

		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				d.record(key, attempt, latency, OutcomeCancelled, 0)
				d.totalFailures.Add(1)
				return nil, newError(ErrCancelled, key, 0, attempt, ctx.Err())
			}

			if errors.Is(err, transport.ErrProxyUnsupported) || errors.Is(err, transport.ErrProxyScheme) {
				d.totalFailures.Add(1)
				return nil, newError(ErrPolicyViolation, key, 0, attempt, err)
			}

			class, outcome := transportClass(err)
			d.record(key, attempt, latency, outcome, 0)
			lastErr = newError(class, key, 0, attempt, err)

			if d.policy.Classify(0, err) == retry.Terminal {
				d.totalFailures.Add(1)
				return nil, lastErr
			}
			d.logger.Debug("attempt failed",
				"host", key,
				"attempt", attempt,
				"outcome", string(outcome),
				"error", err,
			)
			continue
		}

		if result.StatusCode >= 400 {
			d.record(key, attempt, latency, OutcomeStatusRejected, result.StatusCode)
			lastErr = newError(ErrStatusRejected, key, result.StatusCode, attempt, nil)

			if d.policy.Classify(result.StatusCode, nil) == retry.Terminal {
				d.totalFailures.Add(1)
				return nil, lastErr
			}
			d.logger.Debug("attempt rejected",
				"host", key,
				"attempt", attempt,
				"status", result.StatusCode,
			)
			continue
		}

		d.record(key, attempt, latency, OutcomeSuccess, result.StatusCode)
		return &Response{
			StatusCode: result.StatusCode,
			Header:     result.Header,
			Body:       result.Body,
			FinalURL:   result.FinalURL,
			Elapsed:    time.Since(start),
			Attempts:   attempt,
		}, nil
	}

	d.totalFailures.Add(1)
	return nil, newError(ErrExhaustedRetries, key, lastStatus(lastErr), budget, lastErr)
}

// attempt runs one execution try: acquire a permit, execute the transport
// phase, release. The deferred release covers every exit path, including
// panics in the engine, preserving the limiter's counter invariant.
func (d *Downloader) attempt(ctx context.Context, req Request, key string, timeout time.Duration) (result *transport.Result, latency time.Duration, err error) {
	permit, err := d.limiter.Acquire(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	defer permit.Release()

	httpReq, err := req.build(ctx, d.cfg.userAgent)
	if err != nil {
		return nil, 0, err
	}

	begin := time.Now()
	result, err = d.client.Execute(ctx, httpReq, timeout, req.Proxy)
	return result, time.Since(begin), err
}

// record emits one Attempt to the sink, when one is registered.
func (d *Downloader) record(host string, number int, latency time.Duration, outcome Outcome, status int) {
	if d.sink == nil {
		return
	}
	d.sink.Record(Attempt{
		Host:       host,
		Number:     number,
		Start:      time.Now().Add(-latency),
		Latency:    latency,
		Outcome:    outcome,
		StatusCode: status,
	})
}

// transportClass maps a transport failure to the public failure class and
// attempt outcome.
func transportClass(err error) (error, Outcome) {
	var terr *transport.Error
	if errors.As(err, &terr) {
		switch terr.Kind {
		case transport.KindTimeout:
			return ErrTimeout, OutcomeTimeout
		case transport.KindTLS:
			return ErrTLSFailure, OutcomeTLSFailure
		}
	}
	return ErrConnectionFailed, OutcomeConnectionFailed
}

// lastStatus extracts the status code of the last failed attempt, 0 when
// the failure happened below the HTTP layer.
func lastStatus(err *Error) int {
	if err == nil {
		return 0
	}
	return err.StatusCode
}
