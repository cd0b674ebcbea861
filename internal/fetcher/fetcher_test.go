package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingPause captures requested delays instead of sleeping.
type recordingPause struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPause) Pause(_ context.Context, delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delays = append(p.delays, delay)
}

func (p *recordingPause) recorded() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.delays...)
}

func newTestFetcher(t *testing.T, server *httptest.Server, maxAttempts int) (*Fetcher, *recordingPause) {
	t.Helper()
	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)

	pause := &recordingPause{}
	f := New(Config{
		AllowedDomains: []string{parsed.Hostname()},
		MaxAttempts:    maxAttempts,
		BackoffBase:    2,
		Timeout:        5 * time.Second,
	}, pause, zap.NewNop())
	return f, pause
}

func TestFetchSucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<rss/>"))
	}))
	defer server.Close()

	f, pause := newTestFetcher(t, server, 3)
	body, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("<rss/>"), body)
	assert.Empty(t, pause.recorded(), "no backoff on immediate success")
}

func TestFetchRetriesTransientStatusThenSucceeds(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("third time lucky"))
	}))
	defer server.Close()

	f, pause := newTestFetcher(t, server, 3)
	body, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("third time lucky"), body)

	mu.Lock()
	assert.Equal(t, 3, attempts)
	mu.Unlock()

	// base^1 then base^2 seconds.
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, pause.recorded())
}

func TestFetchNonRetryableStatusFailsImmediately(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f, pause := newTestFetcher(t, server, 3)
	body, err := f.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Nil(t, body)

	mu.Lock()
	assert.Equal(t, 1, attempts, "404 is not retried")
	mu.Unlock()
	assert.Empty(t, pause.recorded())
}

func TestFetchExhaustsAttempts(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	f, pause := newTestFetcher(t, server, 3)
	body, err := f.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Nil(t, body)

	mu.Lock()
	assert.Equal(t, 3, attempts)
	mu.Unlock()
	// Backoff between attempts only, not after the last one.
	assert.Len(t, pause.recorded(), 2)
}

func TestFetchUnauthorizedDomainMakesNoNetworkCall(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		_, _ = w.Write([]byte("should never be served"))
	}))
	defer server.Close()

	pause := &recordingPause{}
	f := New(Config{
		AllowedDomains: []string{"mshibanami.github.io"},
		MaxAttempts:    3,
		BackoffBase:    2,
	}, pause, zap.NewNop())

	body, err := f.Fetch(context.Background(), server.URL)
	require.ErrorIs(t, err, ErrUnauthorizedDomain)
	assert.Nil(t, body)

	mu.Lock()
	assert.Zero(t, requests)
	mu.Unlock()
	assert.Empty(t, pause.recorded())
}

func TestFetchTransportErrorRetries(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)
	server.Close() // connection refused from here on

	pause := &recordingPause{}
	f := New(Config{
		AllowedDomains: []string{parsed.Hostname()},
		MaxAttempts:    2,
		BackoffBase:    2,
		Timeout:        time.Second,
	}, pause, zap.NewNop())

	body, fetchErr := f.Fetch(context.Background(), server.URL)
	require.Error(t, fetchErr)
	assert.Nil(t, body)
	assert.Len(t, pause.recorded(), 1, "one backoff between the two attempts")
}

func TestFetchInvalidURL(t *testing.T) {
	t.Parallel()

	f := New(Config{AllowedDomains: []string{"example.com"}}, &recordingPause{}, zap.NewNop())
	_, err := f.Fetch(context.Background(), "http://bad url/%")
	assert.Error(t, err)
}
