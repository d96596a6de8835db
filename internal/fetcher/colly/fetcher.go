// Package collyfetcher implements feed page fetching using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	Timeout        time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Response is the result of one page fetch.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// Fetcher executes single HTTP GETs against the upstream feed APIs. The
// feeds are plain JSON endpoints, so the collector runs without robots
// handling or link following; what it contributes is transport pooling,
// UA/timeout management, and uniform error reporting.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
	base      *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BackoffInitial == 0 {
		cfg.BackoffInitial = 250 * time.Millisecond
	}
	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = 2 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	transport := newHTTPTransport()
	c.WithTransport(transport)
	return &Fetcher{cfg: cfg, transport: transport, base: c}
}

// Fetch executes an HTTP GET with bounded retries for transport errors.
// Each call clones the base collector so repeated fetches of the same URL
// (idempotent adapter re-calls) are never suppressed by visit caching.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Response, error) {
	var lastErr error
	backoff := f.cfg.BackoffInitial

	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Response{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > f.cfg.BackoffMax {
				backoff = f.cfg.BackoffMax
			}
		}
		resp, err := f.fetchOnce(ctx, url)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return Response{}, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (Response, error) {
	var (
		result   Response
		fetchErr error
	)
	start := time.Now()

	collector := f.base.Clone()
	collector.IgnoreRobotsTxt = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(f.transport)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
	})
	collector.OnResponse(func(r *colly.Response) {
		result = Response{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        append([]byte(nil), r.Body...),
			Duration:    time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			err = fmt.Errorf("status %d: %w", r.StatusCode, err)
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return Response{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return Response{}, fmt.Errorf("visit %s: %w", url, err)
		}
		if fetchErr != nil {
			return Response{}, fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
		return result, nil
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
