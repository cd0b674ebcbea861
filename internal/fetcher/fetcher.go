// Package fetcher retrieves single URLs with a host allow-list, bounded
// retries, and exponential backoff, using the Colly collector.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/moruklabs/dev-archive/internal/metrics"
)

// ErrUnauthorizedDomain marks a URL whose host is outside the allow-list.
// No network call is made for these.
var ErrUnauthorizedDomain = errors.New("unauthorized domain")

// retryableStatuses are the transient HTTP statuses worth another attempt.
var retryableStatuses = map[int]struct{}{
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

// Config controls fetch behavior.
type Config struct {
	AllowedDomains []string
	UserAgent      string
	Timeout        time.Duration
	MaxAttempts    int
	// BackoffBase is the exponent base: the wait before attempt n+1 is
	// BackoffBase^n seconds.
	BackoffBase float64
}

// Fetcher performs allow-listed, retried HTTP GETs.
type Fetcher struct {
	cfg       Config
	allowlist *hostAllowlist
	pause     PauseController
	logger    *zap.Logger
	base      *colly.Collector
}

// New builds a Fetcher. A nil pause controller gets the timer default.
func New(cfg Config, pause PauseController, logger *zap.Logger) *Fetcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if pause == nil {
		pause = TimerPause{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:       cfg,
		allowlist: newHostAllowlist(cfg.AllowedDomains),
		pause:     pause,
		logger:    logger,
		base:      c,
	}
}

// Fetch retrieves url, retrying transient failures up to the attempt
// budget. A 2xx response returns its body. Statuses outside the
// retryable set fail immediately; transport errors and retryable
// statuses back off BackoffBase^attempt seconds between attempts.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	host := parsed.Hostname()
	if !f.allowlist.Allowed(host) {
		f.logger.Error("refusing to fetch from unauthorized domain",
			zap.String("url", rawURL),
			zap.String("host", host),
		)
		return nil, fmt.Errorf("%w: %s", ErrUnauthorizedDomain, host)
	}

	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		metrics.ObserveFetchAttempt(host)
		status, body, err := f.get(ctx, rawURL)

		switch {
		case err == nil && status >= 200 && status < 300:
			return body, nil
		case err == nil:
			if _, transient := retryableStatuses[status]; !transient {
				f.logger.Error("non-retryable status",
					zap.String("url", rawURL),
					zap.Int("status", status),
				)
				return nil, fmt.Errorf("fetch %s: non-retryable status %d", rawURL, status)
			}
			lastErr = fmt.Errorf("status %d", status)
			f.logger.Warn("retrying after transient status",
				zap.String("url", rawURL),
				zap.Int("status", status),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", f.cfg.MaxAttempts),
			)
		default:
			if ctx.Err() != nil {
				return nil, fmt.Errorf("fetch %s: %w", rawURL, ctx.Err())
			}
			lastErr = err
			f.logger.Warn("retrying after transport error",
				zap.String("url", rawURL),
				zap.Error(err),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", f.cfg.MaxAttempts),
			)
		}

		if attempt == f.cfg.MaxAttempts {
			break
		}
		metrics.ObserveFetchRetry(host)
		f.pause.Pause(ctx, f.backoff(attempt))
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s: %w", rawURL, ctx.Err())
		}
	}

	f.logger.Error("fetch attempts exhausted",
		zap.String("url", rawURL),
		zap.Int("attempts", f.cfg.MaxAttempts),
		zap.Error(lastErr),
	)
	return nil, fmt.Errorf("fetch %s after %d attempts: %w", rawURL, f.cfg.MaxAttempts, lastErr)
}

func (f *Fetcher) backoff(attempt int) time.Duration {
	seconds := math.Pow(f.cfg.BackoffBase, float64(attempt))
	return time.Duration(seconds * float64(time.Second))
}

// get executes one HTTP GET through a cloned collector and reports the
// status and body. Non-2xx statuses are returned, not treated as errors;
// the retry loop classifies them.
func (f *Fetcher) get(ctx context.Context, rawURL string) (int, []byte, error) {
	collector := f.base.Clone()
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		status   int
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return 0, nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return status, nil, fmt.Errorf("visit failed: %w", err)
		}
		if fetchErr != nil {
			return status, nil, fmt.Errorf("request failed: %w", fetchErr)
		}
		return status, body, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
