// Package transport wraps the HTTP connection machinery behind a stable
// interface: pooled connections keyed by host and scheme, TLS, hard
// per-attempt deadlines, and proxy routing (HTTP and SOCKS5).
//
// Failures surface as typed *Error values with a Kind (timeout, connection,
// TLS) so the retry policy classifies them without string inspection.
//
// The package is designed for dependency injection: construct a Client and
// pass it to the downloader rather than sharing global state. A custom
// http.RoundTripper can replace the built-in pooled transport to swap the
// HTTP engine entirely.
package transport
