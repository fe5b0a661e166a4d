// Package limiter bounds in-flight requests per host and globally, and
// optionally paces request starts per host.
//
// Concurrency ceilings use weighted semaphores from golang.org/x/sync,
// whose first-suspended first-resumed wakeup order gives waiting downloads
// a starvation-freedom guarantee. Pacing uses a token bucket per host from
// golang.org/x/time/rate. All waiting is expressed through these
// primitives; no mutex is held across a suspension point.
package limiter
