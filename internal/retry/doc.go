// Package retry decides, per failure, whether and when a download is
// re-attempted.
//
// Classification maps transport-level failures (connection reset, timeout)
// and server pushback (5xx, 429) to Retryable, and client errors, TLS
// certificate failures, and malformed requests to Terminal. Backoff grows
// exponentially with equal jitter and is capped at a ceiling; a global
// attempt cap bounds total attempts per request regardless of
// classification, guaranteeing termination.
package retry
