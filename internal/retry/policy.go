package retry

import (
	"errors"
	"math/rand"
	"net/http"
	"time"

	"github.com/spiderlib/fetch/internal/transport"
)

// Decision is the outcome classification: whether another attempt may
// succeed.
type Decision int

// Classification results.
const (
	// Terminal means retrying cannot help: client errors, certificate
	// failures, caller bugs.
	Terminal Decision = iota

	// Retryable means the failure is plausibly transient.
	Retryable
)

// Policy decides retry classification and backoff delays. The zero value
// is not usable; construct with New.
type Policy struct {
	// maxAttempts caps total attempts per request, retries included.
	maxAttempts int

	// base is the backoff before the first retry.
	base time.Duration

	// ceiling caps the backoff delay between any two attempts.
	ceiling time.Duration
}

// New creates a Policy. maxAttempts caps total attempts (1 disables
// retries); base and ceiling bound the exponential backoff window.
func New(maxAttempts int, base, ceiling time.Duration) *Policy {
	return &Policy{
		maxAttempts: maxAttempts,
		base:        base,
		ceiling:     ceiling,
	}
}

// MaxAttempts returns the total attempt cap.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// Classify maps one attempt's outcome to a retry decision. status is the
// HTTP status when a response arrived (0 otherwise); err is the transport
// failure when the attempt never produced a response.
//
// Transport failures are classified by their typed Kind, never by string
// inspection: timeouts and connection failures are transient, TLS
// certificate failures are not. Server pushback (429) and server errors
// (5xx) are retryable; every other 4xx is a terminal client error.
func (p *Policy) Classify(status int, err error) Decision {
	if err != nil {
		var terr *transport.Error
		if errors.As(err, &terr) {
			switch terr.Kind {
			case transport.KindTimeout, transport.KindConnection:
				return Retryable
			case transport.KindTLS:
				return Terminal
			}
		}
		// Unclassified transport failures are treated as transient; the
		// attempt cap still bounds the damage of a misjudgment.
		return Retryable
	}

	switch {
	case status == http.StatusTooManyRequests:
		return Retryable
	case status >= 500:
		return Retryable
	case status >= 400:
		return Terminal
	default:
		return Terminal
	}
}

// NextDelay computes the backoff before the retry following attempt n
// (1-based). The delay grows as base·2^(n-1), is capped at the ceiling,
// and is jittered over [d/2, d) so concurrently failing hosts do not
// synchronize their retry storms. The expected delay is monotonically
// non-decreasing in n and never exceeds the ceiling.
func (p *Policy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := p.base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.ceiling || d < 0 {
			d = p.ceiling
			break
		}
	}
	if d > p.ceiling {
		d = p.ceiling
	}

	half := d / 2
	if half <= 0 {
		return d
	}
	return half + time.Duration(rand.Int63n(int64(half))) //nolint:gosec // jitter does not need crypto randomness
}
