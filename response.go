package fetch

import (
	"net/http"
	"net/url"
	"time"
)

// Response is the terminal result of a successful download. It is owned
// exclusively by the caller once returned; the downloader keeps no
// reference to it.
type Response struct {
	// StatusCode is the HTTP status of the final attempt.
	StatusCode int

	// Header contains the response headers of the final attempt.
	Header http.Header

	// Body is the response body, bounded by the configured maximum body
	// size. Bodies larger than the limit are truncated.
	Body []byte

	// FinalURL is the URL the response was served from after redirects.
	FinalURL *url.URL

	// Elapsed is the wall-clock time of the whole download, including
	// permit waits and backoff delays across all attempts.
	Elapsed time.Duration

	// Attempts is the number of attempts it took to produce this response.
	Attempts int
}

// Outcome classifies how a single attempt ended. It is the vocabulary used
// by Attempt records and metrics labels.
type Outcome string

// Attempt outcomes.
const (
	OutcomeSuccess          Outcome = "success"
	OutcomeTimeout          Outcome = "timeout"
	OutcomeConnectionFailed Outcome = "connection_failed"
	OutcomeTLSFailure       Outcome = "tls_failure"
	OutcomeStatusRejected   Outcome = "status_rejected"
	OutcomeCancelled        Outcome = "cancelled"
)

// Attempt is the ephemeral record of one execution try. Records exist only
// to feed the optional observability sink; the downloader discards them
// once the terminal Response or error is produced.
type Attempt struct {
	// Host is the host key the attempt was accounted against.
	Host string

	// Number is the 1-based attempt number within the download.
	Number int

	// Start is when the transport phase of the attempt began.
	Start time.Time

	// Latency is the duration of the transport phase.
	Latency time.Duration

	// Outcome classifies how the attempt ended.
	Outcome Outcome

	// StatusCode is the HTTP status received, or 0 when the attempt failed
	// below the HTTP layer.
	StatusCode int
}

// AttemptSink receives one Attempt record per execution try.
//
// Delivery is best-effort: Record is called synchronously on the download
// path, so implementations must return quickly and drop work under
// backpressure rather than block. There is no contract on consumption rate.
type AttemptSink interface {
	Record(attempt Attempt)
}
