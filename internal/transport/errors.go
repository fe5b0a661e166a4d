package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a transport failure. The retry policy maps kinds to
// retry decisions, so classification happens here, next to the I/O, and
// never by string inspection upstream.
type Kind int

// Transport failure kinds.
const (
	// KindConnection covers failures to establish or keep a connection:
	// refused, reset, DNS resolution, broken transfer.
	KindConnection Kind = iota + 1

	// KindTimeout covers attempts that exceeded their transport deadline.
	KindTimeout

	// KindTLS covers TLS handshake and certificate verification failures.
	KindTLS
)

// String returns the kind's metrics-friendly name.
func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindTLS:
		return "tls"
	default:
		return "unknown"
	}
}

// ErrProxyUnsupported is returned when a per-request proxy override is
// given while the client runs on a caller-supplied RoundTripper. An opaque
// engine cannot be rerouted, so the request is structurally invalid.
var ErrProxyUnsupported = errors.New("transport: proxy override not supported with a custom round tripper")

// Error is a classified transport failure.
type Error struct {
	// Kind is the failure class.
	Kind Kind

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// classify wraps err in an *Error with the kind derived from the error
// chain. attemptTimedOut reports whether the attempt deadline (as opposed
// to the caller's context) expired.
func classify(err error, attemptTimedOut bool) *Error {
	if attemptTimedOut {
		return &Error{Kind: KindTimeout, Err: err}
	}

	if isTLSError(err) {
		return &Error{Kind: KindTLS, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}

	// Everything else below the HTTP layer is a connection-level failure:
	// refused, reset, DNS, proxy dial, truncated transfer.
	return &Error{Kind: KindConnection, Err: err}
}

// isTLSError reports whether the error chain contains a TLS handshake or
// certificate verification failure.
func isTLSError(err error) bool {
	var (
		certErr     *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	return errors.As(err, &certErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr)
}
