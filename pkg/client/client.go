// Package client provides the HTTP transport used for every origin fetch:
// browser-like headers, per-request timeout, bounded retry with backoff,
// and error classification.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/sf-yuzifu/eh-api-server/pkg/logging"
)

// Prometheus metrics for origin fetch operations.
var (
	originRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eh_origin_requests_total",
		Help: "Total origin requests by status",
	}, []string{"status"})

	originRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eh_origin_request_duration_seconds",
		Help:    "Origin request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20},
	})

	originErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eh_origin_errors_total",
		Help: "Total origin errors by class",
	}, []string{"class"})
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"

const acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9," +
	"image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"

// Headers carries the per-request identity forwarded to the origin.
type Headers struct {
	// Cookie is the raw client-supplied cookie string, empty for anonymous.
	Cookie string

	// Referer is the origin base URL.
	Referer string
}

// Config holds the client configuration.
type Config struct {
	// UserAgent sent with every request.
	UserAgent string

	// Timeout per individual fetch attempt.
	Timeout time.Duration

	// Retry
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		UserAgent:      defaultUserAgent,
		Timeout:        20 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     10 * time.Second,
	}
}

// Client fetches origin pages and raw image bytes.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new origin client.
func New(cfg Config) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     logging.NewLogger("origin-client"),
	}
}

// FetchPage fetches one origin page and returns its HTML. A single attempt
// failure is retried with backoff for network and 5xx errors only.
func (c *Client) FetchPage(ctx context.Context, url string, hdr Headers) (string, error) {
	body, err := c.fetch(ctx, url, hdr, acceptHTML)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// FetchBytes fetches raw bytes, typically image data.
func (c *Client) FetchBytes(ctx context.Context, url string, hdr Headers) ([]byte, error) {
	return c.fetch(ctx, url, hdr, "*/*")
}

func (c *Client) fetch(ctx context.Context, url string, hdr Headers, accept string) ([]byte, error) {
	start := time.Now()
	defer func() {
		originRequestDuration.Observe(time.Since(start).Seconds())
	}()

	var body []byte
	err := c.retryWithBackoff(ctx, url, func() (ErrorClass, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return ErrorClassClient, &OriginError{URL: url, Class: ErrorClassClient, Err: err}
		}
		req.Header.Set("User-Agent", c.config.UserAgent)
		req.Header.Set("Accept", accept)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		if hdr.Referer != "" {
			req.Header.Set("Referer", hdr.Referer)
		}
		if hdr.Cookie != "" {
			req.Header.Set("Cookie", hdr.Cookie)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Error().Err(err).Str("url", url).Msg("Origin request failed")
			originErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			originRequestsTotal.WithLabelValues("network_error").Inc()
			return ErrorClassNetwork, &OriginError{URL: url, Class: ErrorClassNetwork, Err: err}
		}
		defer resp.Body.Close()

		originRequestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()

		if resp.StatusCode >= 400 {
			class := classifyStatus(resp.StatusCode)
			originErrorsTotal.WithLabelValues(string(class)).Inc()
			c.logger.Warn().
				Str("url", url).
				Int("status", resp.StatusCode).
				Str("error_class", string(class)).
				Msg("Origin request error")
			return class, &OriginError{URL: url, StatusCode: resp.StatusCode, Class: class}
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			originErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return ErrorClassNetwork, &OriginError{URL: url, Class: ErrorClassNetwork, Err: err}
		}
		return "", nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// classifyStatus categorizes a non-success status for retry and observability.
func classifyStatus(status int) ErrorClass {
	if status >= 500 {
		return ErrorClassServer
	}
	return ErrorClassClient
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
