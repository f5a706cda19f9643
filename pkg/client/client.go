// Package client provides the network fetcher used by the offline cache:
// a thin http.Client wrapper with metrics, error classification and an
// optional deadline.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for network fetches.
var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_cache_fetches_total",
		Help: "Total network fetches by HTTP status (or error)",
	}, []string{"status"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "offline_cache_fetch_duration_seconds",
		Help:    "Network fetch duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_cache_fetch_errors_total",
		Help: "Total network fetch failures by class",
	}, []string{"class"})
)

// Fetcher performs network requests. *Client implements it, as does
// *http.Client.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the client configuration.
type Config struct {
	// Transport is the underlying round tripper (default: http.DefaultTransport).
	// It must not route back through the offline cache interceptor.
	Transport http.RoundTripper

	// Timeout bounds a whole fetch including the body read.
	// Zero means no deadline: failures are only detected when the
	// transport itself gives up.
	Timeout time.Duration

	// FollowRedirects makes the client follow 3xx responses instead of
	// returning them to the caller.
	FollowRedirects bool

	// UserAgent is set on requests that carry none
	UserAgent string
}

// DefaultConfig returns the default configuration: no timeout, redirects
// returned to the caller.
func DefaultConfig() Config {
	return Config{
		Transport: http.DefaultTransport,
	}
}

// Client is the network fetcher.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}

	httpClient := &http.Client{
		Transport: cfg.Transport,
		Timeout:   cfg.Timeout,
	}
	if !cfg.FollowRedirects {
		httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
		logger:     log.With().Str("component", "network").Logger(),
	}, nil
}

// Do performs the request. HTTP error statuses are returned as responses;
// only transport failures produce an error, always a *NetworkError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	startTime := time.Now()
	defer func() {
		fetchDuration.Observe(time.Since(startTime).Seconds())
	}()

	if c.config.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		class := classifyError(err)
		fetchErrorsTotal.WithLabelValues(string(class)).Inc()
		fetchesTotal.WithLabelValues("error").Inc()

		c.logger.Debug().
			Err(err).
			Str("url", req.URL.String()).
			Str("error_class", string(class)).
			Msg("Network fetch failed")

		return nil, &NetworkError{
			URL:   req.URL.String(),
			Class: class,
			Err:   err,
		}
	}

	fetchesTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Debug().
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(startTime)).
		Msg("Network fetch complete")

	return resp, nil
}

// Get fetches rawURL with a GET request.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.Do(req)
}

// classifyError categorizes a transport failure.
func classifyError(err error) ErrorClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}
	return ErrorClassNetwork
}
