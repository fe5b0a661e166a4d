package limiter

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter bounds in-flight requests per host key and globally. It is safe
// for concurrent use and is meant to be shared by reference across all
// downloads of one engine.
//
// Invariant: for any admitted request, the per-host and global counters
// are incremented exactly once on acquisition and decremented exactly once
// on release, on every exit path. Permit.Release is idempotent to keep
// that guarantee cheap for callers using defer.
type Limiter struct {
	// global bounds total in-flight requests.
	global *semaphore.Weighted

	// perHost is the ceiling applied to each host's semaphore.
	perHost int64

	// rps is the per-host pacing rate; 0 disables pacing.
	rps float64

	// inFlight counts admitted requests across all hosts.
	inFlight atomic.Int64

	// mu guards hosts. It is only held for map bookkeeping, never while
	// waiting on a semaphore or token bucket.
	mu sync.Mutex

	// hosts maps host keys to their admission state. Entries are
	// reference-counted and removed when the last request referencing a
	// host leaves, so the map stays bounded by the active crawl front.
	hosts map[string]*hostState
}

// hostState is the per-host admission state.
type hostState struct {
	sem      *semaphore.Weighted
	pace     *rate.Limiter
	inFlight atomic.Int64

	// refs counts requests currently acquiring, holding, or releasing a
	// permit for this host. Guarded by Limiter.mu.
	refs int
}

// New creates a Limiter with the given global and per-host ceilings.
// rps > 0 additionally paces request starts per host with a token bucket
// of burst 1, the politeness setting for crawls against small origins.
func New(maxGlobal, maxPerHost int, rps float64) *Limiter {
	return &Limiter{
		global:  semaphore.NewWeighted(int64(maxGlobal)),
		perHost: int64(maxPerHost),
		rps:     rps,
		hosts:   make(map[string]*hostState),
	}
}

// Permit is a scoped right to perform one in-flight transport operation.
// Release returns the capacity on all exit paths; calling it more than
// once is a no-op.
type Permit struct {
	l    *Limiter
	hs   *hostState
	host string
	once sync.Once
}

// Acquire blocks until both host-level and global capacity are available,
// or ctx is cancelled. The host semaphore is taken first so a request
// waiting on a busy host never pins a global slot other hosts could use.
func (l *Limiter) Acquire(ctx context.Context, host string) (*Permit, error) {
	hs := l.retain(host)

	if err := hs.sem.Acquire(ctx, 1); err != nil {
		l.release(host)
		return nil, err
	}

	if err := l.global.Acquire(ctx, 1); err != nil {
		hs.sem.Release(1)
		l.release(host)
		return nil, err
	}

	// Pacing happens after admission so the token is spent on a request
	// that starts immediately.
	if hs.pace != nil {
		if err := hs.pace.Wait(ctx); err != nil {
			l.global.Release(1)
			hs.sem.Release(1)
			l.release(host)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
	}

	hs.inFlight.Add(1)
	l.inFlight.Add(1)

	return &Permit{l: l, hs: hs, host: host}, nil
}

// Release returns the permit's capacity. Safe to call multiple times.
func (p *Permit) Release() {
	p.once.Do(func() {
		p.hs.inFlight.Add(-1)
		p.l.inFlight.Add(-1)
		p.l.global.Release(1)
		p.hs.sem.Release(1)
		p.l.release(p.host)
	})
}

// InFlight returns the number of currently admitted requests.
func (l *Limiter) InFlight() int64 {
	return l.inFlight.Load()
}

// HostInFlight returns the number of admitted requests for one host key.
func (l *Limiter) HostInFlight(host string) int64 {
	l.mu.Lock()
	hs, ok := l.hosts[host]
	l.mu.Unlock()
	if !ok {
		return 0
	}
	return hs.inFlight.Load()
}

// retain returns the host's state, creating it on first use, and takes a
// reference that keeps the entry alive while the caller waits or holds a
// permit.
func (l *Limiter) retain(host string) *hostState {
	l.mu.Lock()
	defer l.mu.Unlock()

	hs, ok := l.hosts[host]
	if !ok {
		hs = &hostState{sem: semaphore.NewWeighted(l.perHost)}
		if l.rps > 0 {
			hs.pace = rate.NewLimiter(rate.Limit(l.rps), 1)
		}
		l.hosts[host] = hs
	}
	hs.refs++
	return hs
}

// release drops a reference and evicts the host entry once nothing uses
// it, bounding the map by the set of hosts with live requests.
func (l *Limiter) release(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	hs, ok := l.hosts[host]
	if !ok {
		return
	}
	hs.refs--
	if hs.refs <= 0 {
		delete(l.hosts, host)
	}
}
