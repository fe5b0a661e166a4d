package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func mustRequest(t *testing.T, method, rawURL string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, rawURL, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return req
}

// TestExecute tests the happy path and body handling.
func TestExecute(t *testing.T) {
	t.Parallel()

	t.Run("returns status, headers, and body", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("X-Probe", "yes")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("hello"))
		}))
		defer srv.Close()

		c, err := New(Options{})
		if err != nil {
			t.Fatalf("new client: %v", err)
		}

		res, err := c.Execute(context.Background(), mustRequest(t, http.MethodGet, srv.URL), time.Second, nil)
		if err != nil {
			t.Fatalf("execute: %v", err)
		}

		if res.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", res.StatusCode)
		}
		if got := res.Header.Get("X-Probe"); got != "yes" {
			t.Errorf("header X-Probe = %q, want %q", got, "yes")
		}
		if string(res.Body) != "hello" {
			t.Errorf("body = %q, want %q", res.Body, "hello")
		}
		if res.FinalURL == nil || res.FinalURL.String() != srv.URL+"/" && res.FinalURL.String() != srv.URL {
			t.Errorf("final URL = %v, want %q", res.FinalURL, srv.URL)
		}
	})

	t.Run("truncates bodies at the limit", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(strings.Repeat("x", 1024)))
		}))
		defer srv.Close()

		c, err := New(Options{MaxBodySize: 16})
		if err != nil {
			t.Fatalf("new client: %v", err)
		}

		res, err := c.Execute(context.Background(), mustRequest(t, http.MethodGet, srv.URL), time.Second, nil)
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if len(res.Body) != 16 {
			t.Errorf("body length = %d, want 16", len(res.Body))
		}
	})

	t.Run("reports the post-redirect URL", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/final", http.StatusFound)
		})
		mux.HandleFunc("/final", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("done"))
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		c, err := New(Options{})
		if err != nil {
			t.Fatalf("new client: %v", err)
		}

		res, err := c.Execute(context.Background(), mustRequest(t, http.MethodGet, srv.URL+"/start"), time.Second, nil)
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if !strings.HasSuffix(res.FinalURL.String(), "/final") {
			t.Errorf("final URL = %q, want suffix /final", res.FinalURL)
		}
	})
}

// TestExecuteFailures tests error classification at the transport boundary.
func TestExecuteFailures(t *testing.T) {
	t.Parallel()

	t.Run("deadline overrun is a timeout", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(500 * time.Millisecond)
			_, _ = w.Write([]byte("late"))
		}))
		defer srv.Close()

		c, err := New(Options{})
		if err != nil {
			t.Fatalf("new client: %v", err)
		}

		_, err = c.Execute(context.Background(), mustRequest(t, http.MethodGet, srv.URL), 50*time.Millisecond, nil)
		var terr *Error
		if !errors.As(err, &terr) {
			t.Fatalf("execute error = %v, want *transport.Error", err)
		}
		if terr.Kind != KindTimeout {
			t.Errorf("kind = %v, want KindTimeout", terr.Kind)
		}
	})

	t.Run("refused connection is a connection failure", func(t *testing.T) {
		t.Parallel()

		// Grab a port that is certainly closed.
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		target := srv.URL
		srv.Close()

		c, err := New(Options{})
		if err != nil {
			t.Fatalf("new client: %v", err)
		}

		_, err = c.Execute(context.Background(), mustRequest(t, http.MethodGet, target), time.Second, nil)
		var terr *Error
		if !errors.As(err, &terr) {
			t.Fatalf("execute error = %v, want *transport.Error", err)
		}
		if terr.Kind != KindConnection {
			t.Errorf("kind = %v, want KindConnection", terr.Kind)
		}
	})

	t.Run("untrusted certificate is a TLS failure", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("secret"))
		}))
		defer srv.Close()

		// Default TLS config does not trust the test server's cert.
		c, err := New(Options{})
		if err != nil {
			t.Fatalf("new client: %v", err)
		}

		_, err = c.Execute(context.Background(), mustRequest(t, http.MethodGet, srv.URL), time.Second, nil)
		var terr *Error
		if !errors.As(err, &terr) {
			t.Fatalf("execute error = %v, want *transport.Error", err)
		}
		if terr.Kind != KindTLS {
			t.Errorf("kind = %v, want KindTLS", terr.Kind)
		}
	})

	t.Run("caller cancellation surfaces the context error", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(time.Second)
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		c, err := New(Options{})
		if err != nil {
			t.Fatalf("new client: %v", err)
		}

		_, err = c.Execute(ctx, mustRequest(t, http.MethodGet, srv.URL), 10*time.Second, nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("execute error = %v, want context.Canceled", err)
		}
	})
}

// TestProxyRouting tests proxy selection and validation.
func TestProxyRouting(t *testing.T) {
	t.Parallel()

	t.Run("routes through an HTTP proxy override", func(t *testing.T) {
		t.Parallel()

		var proxied atomic.Bool
		proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			proxied.Store(true)
			_, _ = w.Write([]byte("via-proxy"))
		}))
		defer proxy.Close()

		c, err := New(Options{})
		if err != nil {
			t.Fatalf("new client: %v", err)
		}

		proxyURL, err := url.Parse(proxy.URL)
		if err != nil {
			t.Fatalf("parse proxy URL: %v", err)
		}

		res, err := c.Execute(context.Background(), mustRequest(t, http.MethodGet, "http://origin.invalid/page"), time.Second, proxyURL)
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if !proxied.Load() {
			t.Error("request did not pass through the proxy")
		}
		if string(res.Body) != "via-proxy" {
			t.Errorf("body = %q, want %q", res.Body, "via-proxy")
		}
	})

	t.Run("caches clients per proxy endpoint", func(t *testing.T) {
		t.Parallel()

		c, err := New(Options{})
		if err != nil {
			t.Fatalf("new client: %v", err)
		}

		u, _ := url.Parse("http://proxy.example:3128")
		first, err := c.proxiedClient(u)
		if err != nil {
			t.Fatalf("proxied client: %v", err)
		}
		second, err := c.proxiedClient(u)
		if err != nil {
			t.Fatalf("proxied client: %v", err)
		}
		if first != second {
			t.Error("same proxy endpoint produced distinct clients")
		}
	})

	t.Run("rejects unknown proxy schemes", func(t *testing.T) {
		t.Parallel()

		u, _ := url.Parse("ftp://proxy.example:21")
		if _, err := New(Options{Proxy: u}); !errors.Is(err, ErrProxyScheme) {
			t.Errorf("New with ftp proxy = %v, want ErrProxyScheme", err)
		}
	})

	t.Run("rejects overrides on a custom engine", func(t *testing.T) {
		t.Parallel()

		c, err := New(Options{Base: http.DefaultTransport})
		if err != nil {
			t.Fatalf("new client: %v", err)
		}

		u, _ := url.Parse("http://proxy.example:3128")
		if _, err := c.proxiedClient(u); !errors.Is(err, ErrProxyUnsupported) {
			t.Errorf("proxied client = %v, want ErrProxyUnsupported", err)
		}
	})
}
