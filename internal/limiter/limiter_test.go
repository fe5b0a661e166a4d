package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestAcquireRelease tests counter bookkeeping on the plain path.
func TestAcquireRelease(t *testing.T) {
	t.Parallel()

	t.Run("counters return to zero after release", func(t *testing.T) {
		t.Parallel()

		l := New(4, 2, 0)
		ctx := context.Background()

		p1, err := l.Acquire(ctx, "https://a.example:443")
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		p2, err := l.Acquire(ctx, "https://b.example:443")
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}

		if got := l.InFlight(); got != 2 {
			t.Errorf("InFlight() = %d, want 2", got)
		}
		if got := l.HostInFlight("https://a.example:443"); got != 1 {
			t.Errorf("HostInFlight(a) = %d, want 1", got)
		}

		p1.Release()
		p2.Release()

		if got := l.InFlight(); got != 0 {
			t.Errorf("InFlight() = %d after release, want 0", got)
		}
		if got := l.HostInFlight("https://a.example:443"); got != 0 {
			t.Errorf("HostInFlight(a) = %d after release, want 0", got)
		}
	})

	t.Run("release is idempotent", func(t *testing.T) {
		t.Parallel()

		l := New(2, 2, 0)
		p, err := l.Acquire(context.Background(), "http://h.example:80")
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}

		p.Release()
		p.Release()
		p.Release()

		if got := l.InFlight(); got != 0 {
			t.Errorf("InFlight() = %d, want 0", got)
		}

		// Capacity must not have been over-returned: exactly two permits
		// should still be grantable.
		for i := 0; i < 2; i++ {
			q, err := l.Acquire(context.Background(), "http://h.example:80")
			if err != nil {
				t.Fatalf("acquire after idempotent release: %v", err)
			}
			defer q.Release()
		}
	})

	t.Run("host entries are evicted when idle", func(t *testing.T) {
		t.Parallel()

		l := New(2, 2, 0)
		p, err := l.Acquire(context.Background(), "http://gone.example:80")
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		p.Release()

		l.mu.Lock()
		_, ok := l.hosts["http://gone.example:80"]
		l.mu.Unlock()
		if ok {
			t.Error("idle host entry was not evicted")
		}
	})
}

// TestPerHostCeiling tests that at most maxPerHost requests for one host
// hold permits at once.
func TestPerHostCeiling(t *testing.T) {
	t.Parallel()

	const (
		perHost = 2
		workers = 5
	)

	l := New(10, perHost, 0)

	var (
		current atomic.Int64
		peak    atomic.Int64
		wg      sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			p, err := l.Acquire(context.Background(), "https://same.example:443")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer p.Release()

			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
		}()
	}

	wg.Wait()

	if got := peak.Load(); got > perHost {
		t.Errorf("peak concurrent holders = %d, want <= %d", got, perHost)
	}
	if got := l.InFlight(); got != 0 {
		t.Errorf("InFlight() = %d after all releases, want 0", got)
	}
}

// TestGlobalCeiling tests the cross-host in-flight bound.
func TestGlobalCeiling(t *testing.T) {
	t.Parallel()

	l := New(2, 2, 0)
	ctx := context.Background()

	p1, err := l.Acquire(ctx, "https://a.example:443")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p2, err := l.Acquire(ctx, "https://b.example:443")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// A third host must wait until global capacity frees.
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(waitCtx, "https://c.example:443"); err == nil {
		t.Fatal("acquire succeeded beyond the global ceiling")
	}

	p1.Release()

	p3, err := l.Acquire(ctx, "https://c.example:443")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	p3.Release()
	p2.Release()

	if got := l.InFlight(); got != 0 {
		t.Errorf("InFlight() = %d, want 0", got)
	}
}

// TestAcquireCancellation tests that a cancelled wait leaves no residue.
func TestAcquireCancellation(t *testing.T) {
	t.Parallel()

	l := New(10, 1, 0)
	ctx := context.Background()

	held, err := l.Acquire(ctx, "https://busy.example:443")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	waitCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		_, err := l.Acquire(waitCtx, "https://busy.example:443")
		errCh <- err
	}()

	// Give the waiter time to suspend, then cancel it.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("cancelled acquire returned a permit")
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled acquire did not unblock")
	}

	held.Release()

	// The cancelled waiter must not have consumed capacity.
	p, err := l.Acquire(ctx, "https://busy.example:443")
	if err != nil {
		t.Fatalf("acquire after cancellation: %v", err)
	}
	p.Release()

	if got := l.InFlight(); got != 0 {
		t.Errorf("InFlight() = %d, want 0", got)
	}
}

// TestPacing tests the optional per-host token bucket.
func TestPacing(t *testing.T) {
	t.Parallel()

	// 20 rps: the second admission should wait roughly 50ms.
	l := New(4, 4, 20)
	ctx := context.Background()

	start := time.Now()
	p1, err := l.Acquire(ctx, "https://paced.example:443")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p2, err := l.Acquire(ctx, "https://paced.example:443")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	elapsed := time.Since(start)

	p1.Release()
	p2.Release()

	if elapsed < 30*time.Millisecond {
		t.Errorf("second admission took %v, want >= 30ms of pacing", elapsed)
	}
}
