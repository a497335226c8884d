// Package azlyrics fetches lyric pages from www.azlyrics.com.
package azlyrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"spotmylyrics/internal/lyrics"
	"spotmylyrics/internal/observability/metrics"
	logx "spotmylyrics/pkg/logx"

	"golang.org/x/time/rate"
)

const (
	DefaultURLTemplate  = "https://www.azlyrics.com/lyrics/%s/%s.html"
	DefaultUserAgent    = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultMaxPageBytes = 2 << 20
)

var (
	ErrHTTPStatus   = errors.New("unexpected http status")
	ErrPageTooLarge = errors.New("lyrics page too large")
)

// StatusError reports a non-2xx response. It matches ErrHTTPStatus.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

func (e *StatusError) Is(target error) bool { return target == ErrHTTPStatus }

type Config struct {
	URLTemplate  string
	UserAgent    string
	Timeout      time.Duration
	RatePerSec   float64
	Burst        int
	MaxPageBytes int64
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.URLTemplate) == "" {
		c.URLTemplate = DefaultURLTemplate
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 0.5
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.MaxPageBytes <= 0 {
		c.MaxPageBytes = DefaultMaxPageBytes
	}
	return c
}

// Client is a rate-limited page fetcher. AZLyrics blocks clients that
// request too often, so every request waits on the limiter first.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
	met     *metrics.Metrics
}

func New(cfg Config, log logx.Logger, met *metrics.Metrics) *Client {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		log:     log.With(logx.String("comp", "azlyrics")),
		met:     met,
	}
}

// URL builds the page address of key.
func (c *Client) URL(key lyrics.Key) string {
	return fmt.Sprintf(c.cfg.URLTemplate, url.PathEscape(key.Artist), url.PathEscape(key.Title))
}

// Fetch returns the page with line breaks removed, the way a line-by-line
// reader would concatenate it.
func (c *Client) Fetch(ctx context.Context, key lyrics.Key) (string, error) {
	if key.Artist == "" || key.Title == "" {
		return "", fmt.Errorf("incomplete key %q", key.String())
	}
	if err := c.limiter.Wait(ctx); err != nil {
		c.met.Fetch("rate_limited")
		return "", fmt.Errorf("wait for rate limiter: %w", err)
	}

	u := c.URL(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		c.met.Fetch("error")
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.met.Fetch("error")
		return "", fmt.Errorf("GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		c.met.Fetch("http_" + statusClass(resp.StatusCode))
		return "", &StatusError{Code: resp.StatusCode, URL: u}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxPageBytes+1))
	if err != nil {
		c.met.Fetch("error")
		return "", fmt.Errorf("read %s: %w", u, err)
	}
	if int64(len(b)) > c.cfg.MaxPageBytes {
		c.met.Fetch("too_large")
		return "", fmt.Errorf("%w: more than %d bytes", ErrPageTooLarge, c.cfg.MaxPageBytes)
	}
	c.met.Fetch("ok")
	c.log.Debug("page fetched", logx.String("url", u), logx.Int("bytes", len(b)), logx.Duration("took", time.Since(start)))
	return joinLines(string(b)), nil
}

var lineBreaks = strings.NewReplacer("\r\n", "", "\n", "", "\r", "")

func joinLines(s string) string { return strings.TrimSpace(lineBreaks.Replace(s)) }

func statusClass(code int) string {
	switch {
	case code == http.StatusNotFound:
		return "404"
	case code == http.StatusTooManyRequests, code == http.StatusForbidden:
		return "blocked"
	case code >= 500:
		return "5xx"
	default:
		return "other"
	}
}
