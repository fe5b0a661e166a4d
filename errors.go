package fetch

import (
	"errors"
	"fmt"
)

// Download failure classes.
// These errors are the stable failure vocabulary consumed by the crawl
// scheduler. Every error returned by Downloader.Download wraps exactly one
// of them, so callers use errors.Is for programmatic handling while *Error
// carries the details of the last attempt.
//
// Design decision: We use package-level sentinel errors combined with a
// wrapping *Error struct rather than an error-code enum. errors.Is gives
// callers a zero-boilerplate dispatch, and the struct still exposes the
// status code and attempt count that a scheduler needs to decide whether
// to requeue.
var (
	// ErrTimeout is returned when one attempt's transport phase exceeded its
	// deadline (connect, TLS handshake, and body transfer combined).
	ErrTimeout = errors.New("fetch: request timed out")

	// ErrConnectionFailed is returned when the connection could not be
	// established or was broken mid-transfer (refused, reset, DNS failure).
	ErrConnectionFailed = errors.New("fetch: connection failed")

	// ErrTLSFailure is returned when the TLS handshake or certificate
	// verification failed. TLS failures never retry: a bad certificate
	// will not fix itself between attempts.
	ErrTLSFailure = errors.New("fetch: TLS failure")

	// ErrStatusRejected is returned when the server answered with an error
	// status that terminated the download. The *Error carries the code.
	ErrStatusRejected = errors.New("fetch: status rejected")

	// ErrCancelled is returned when the caller's context was cancelled while
	// the download was waiting for a permit, backing off, or in transport I/O.
	ErrCancelled = errors.New("fetch: download cancelled")

	// ErrExhaustedRetries is returned when the retry budget was spent without
	// a successful response. The wrapped cause is the last attempt's failure.
	ErrExhaustedRetries = errors.New("fetch: retries exhausted")

	// ErrPolicyViolation is returned when the Request violates a structural
	// precondition (empty URL, unsupported scheme). It indicates a caller
	// bug and is never retried.
	ErrPolicyViolation = errors.New("fetch: request policy violation")
)

// Error is the concrete error type returned by Downloader.Download.
// It wraps one of the sentinel failure classes above together with the
// detail of the last attempt.
type Error struct {
	// class is the sentinel error identifying the failure class.
	class error

	// Host is the host key the request resolved to, empty when the
	// request never parsed.
	Host string

	// StatusCode is the HTTP status of the last attempt, or 0 when the
	// failure happened below the HTTP layer.
	StatusCode int

	// Attempts is the number of attempts executed before giving up.
	Attempts int

	// Err is the underlying cause, when one exists.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.class.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Host != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Host)
	}
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s after %d attempt(s)", msg, e.Attempts)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the failure class sentinel and the underlying cause,
// making both visible to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.class, e.Err}
	}
	return []error{e.class}
}

// newError builds an *Error for the given failure class.
func newError(class error, host string, status, attempts int, cause error) *Error {
	return &Error{
		class:      class,
		Host:       host,
		StatusCode: status,
		Attempts:   attempts,
		Err:        cause,
	}
}
