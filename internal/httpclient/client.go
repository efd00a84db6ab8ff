// Package httpclient provides the resilient HTTP client used for all
// creator-platform traffic: automatic retries with exponential backoff, a
// circuit breaker per client, transparent response decompression (gzip,
// deflate, brotli), and credential-safe request logging.
package httpclient

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// Errors returned by the client.
var (
	ErrCircuitOpen      = errors.New("circuit breaker is open")
	ErrMaxRetries       = errors.New("max retries exceeded")
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	defaultTimeout           = 30 * time.Second
	defaultRetryAttempts     = 3
	defaultRetryDelay        = time.Second
	defaultRetryMaxDelay     = 30 * time.Second
	defaultBackoffMultiplier = 2.0
	defaultBreakerThreshold  = 5
	defaultBreakerCooldown   = 30 * time.Second
	defaultAcceptEncoding    = "gzip, deflate, br"
)

// Config holds the client configuration.
type Config struct {
	// Timeout is the overall per-request timeout.
	Timeout time.Duration

	// RetryAttempts is the number of retries after the first failure.
	RetryAttempts int

	// RetryDelay is the initial delay between retries; it grows by
	// BackoffMultiplier up to RetryMaxDelay.
	RetryDelay        time.Duration
	RetryMaxDelay     time.Duration
	BackoffMultiplier float64

	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit; BreakerCooldown is how long it stays open before probing.
	BreakerThreshold int
	BreakerCooldown  time.Duration

	// UserAgent is sent when the request carries none.
	UserAgent string

	// DefaultHeaders are applied to every request that does not already
	// set them. Used for the platform session cookie and referer.
	DefaultHeaders map[string]string

	Logger *slog.Logger

	// BaseClient overrides the underlying http.Client, mainly for tests.
	BaseClient *http.Client
}

// Client is a resilient HTTP client.
type Client struct {
	cfg     Config
	client  *http.Client
	breaker *Breaker
	logger  *slog.Logger
}

// New creates a client, filling unset Config fields with defaults.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	} else if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = defaultRetryMaxDelay
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = defaultBackoffMultiplier
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = defaultBreakerThreshold
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = defaultBreakerCooldown
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	base := cfg.BaseClient
	if base == nil {
		base = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		cfg:     cfg,
		client:  base,
		breaker: NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		logger:  cfg.Logger,
	}
}

// Do executes a request with retries, circuit-breaker protection, and
// transparent decompression of the response body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	c.applyDefaultHeaders(req)

	var lastErr error
	delay := c.cfg.RetryDelay

	for attempt := 0; attempt <= c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.cfg.BackoffMultiplier)
			if delay > c.cfg.RetryMaxDelay {
				delay = c.cfg.RetryMaxDelay
			}
		}

		if !c.breaker.Allow() {
			lastErr = ErrCircuitOpen
			c.logger.Warn("circuit open, request skipped",
				slog.String("url", redactURL(req.URL)),
			)
			continue
		}

		start := time.Now()
		resp, err := c.client.Do(req)
		elapsed := time.Since(start)

		if err != nil {
			c.breaker.RecordFailure()
			lastErr = err
			c.logger.Warn("request failed",
				slog.String("method", req.Method),
				slog.String("url", redactURL(req.URL)),
				slog.Duration("duration", elapsed),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			continue
		}

		if retryableStatus(resp.StatusCode) {
			c.breaker.RecordFailure()
			lastErr = fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
			c.logger.Warn("retryable status",
				slog.String("method", req.Method),
				slog.String("url", redactURL(req.URL)),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt),
			)
			resp.Body.Close()
			continue
		}

		c.breaker.RecordSuccess()
		c.logger.Debug("request completed",
			slog.String("method", req.Method),
			slog.String("url", redactURL(req.URL)),
			slog.Int("status", resp.StatusCode),
			slog.Duration("duration", elapsed),
		)
		resp.Body = decompressBody(resp, c.logger)
		return resp, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMaxRetries, lastErr)
	}
	return nil, ErrMaxRetries
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return c.Do(req)
}

// GetJSON performs a GET request and decodes a JSON response body into out.
// Any non-2xx status is an error.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any) error {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, redactURL(resp.Request.URL))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", redactURL(resp.Request.URL), err)
	}
	return nil
}

// CircuitState returns the breaker state, mainly for health reporting.
func (c *Client) CircuitState() BreakerState {
	return c.breaker.State()
}

func (c *Client) applyDefaultHeaders(req *http.Request) {
	if req.Header.Get("User-Agent") == "" && c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", defaultAcceptEncoding)
	}
	for k, v := range c.cfg.DefaultHeaders {
		if v != "" && req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
}

// decompressBody wraps the response body according to Content-Encoding.
func decompressBody(resp *http.Response, logger *slog.Logger) io.ReadCloser {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "":
		return resp.Body
	case "gzip":
		reader, err := gzip.NewReader(resp.Body)
		if err != nil {
			logger.Warn("bad gzip stream, passing body through", slog.String("error", err.Error()))
			return resp.Body
		}
		return &decompressedBody{reader: reader, raw: resp.Body}
	case "deflate":
		return &decompressedBody{reader: flate.NewReader(resp.Body), raw: resp.Body}
	case "br":
		return &decompressedBody{reader: brotli.NewReader(resp.Body), raw: resp.Body}
	default:
		return resp.Body
	}
}

type decompressedBody struct {
	reader io.Reader
	raw    io.Closer
}

func (d *decompressedBody) Read(p []byte) (int, error) {
	return d.reader.Read(p)
}

func (d *decompressedBody) Close() error {
	if closer, ok := d.reader.(io.Closer); ok {
		closer.Close()
	}
	return d.raw.Close()
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// redactURL masks query parameters that can carry session credentials, so
// signed playlist URLs and auth keys never land in logs verbatim.
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	sanitized := *u
	query := sanitized.Query()
	for _, param := range []string{"sign", "token", "auth_key", "key", "secret", "csrf", "sessdata"} {
		if query.Has(param) {
			query.Set(param, "***")
		}
	}
	sanitized.RawQuery = query.Encode()
	return sanitized.String()
}
