// Package fetch is the request-execution core of a web-crawling engine.
//
// It turns a logical crawl request into a delivered HTTP response under
// real-world network conditions: transient failures, rate limits, proxies,
// timeouts, and concurrent load. The package guarantees forward progress
// (every download terminates with exactly one outcome), bounded resource
// usage (per-host and global in-flight ceilings), and a consistent failure
// vocabulary that scheduling layers can act on deterministically.
//
// The package does not decide what to crawl, only how to fetch it reliably.
// URL frontier management, deduplication, content parsing, and persistence
// belong to the surrounding engine.
//
// # Key Components
//
//   - Downloader: the sole entry point. Drives a Request through the
//     concurrency limiter, the transport, and the retry policy, and returns
//     a Response or a classified error.
//   - SimpleHTTPClient: a reduced facade over Downloader for fire-and-forget
//     GET operations where only body bytes matter (robots.txt and similar).
//
// # Architecture
//
// The downloader is pluggable: the underlying HTTP engine is any
// http.RoundTripper selected at construction time via WithTransport, so the
// engine can be swapped without touching download logic. Retry counts,
// backoff constants, and concurrency ceilings are configuration, not
// contracts.
//
// Failures surface as sentinel errors (ErrTimeout, ErrStatusRejected,
// ErrExhaustedRetries, ...) wrapped in *Error, so callers distinguish
// retryable-exhausted failures from structurally invalid requests with
// errors.Is and decide whether to requeue.
//
// # Example
//
//	d, err := fetch.New(
//		fetch.WithMaxPerHostConcurrency(2),
//		fetch.WithMaxRetryAttempts(3),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	resp, err := d.Download(ctx, fetch.Request{URL: "https://example.com/"})
package fetch
