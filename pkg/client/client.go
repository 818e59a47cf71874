// Package client provides the HTTP transport shared by the retrieval service
// adapters: request execution with error classification, optional response
// caching, Retry-After cooldowns and Prometheus metrics.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/retrieval-services/pkg/cache"
	"github.com/Sternrassler/retrieval-services/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrieval_http_requests_total",
		Help: "Total upstream requests by service and status",
	}, []string{"service", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retrieval_http_request_duration_seconds",
		Help:    "Upstream request duration in seconds by service",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrieval_http_errors_total",
		Help: "Total upstream errors by service and class",
	}, []string{"service", "class"})
)

// maxErrorBody bounds how much of an error response is kept in HTTPError.
const maxErrorBody = 512

// Client executes requests against one upstream service.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	memory      *cache.MemoryLayer
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Service names the upstream in logs, metrics and cache keys (REQUIRED)
	Service string

	// User-Agent header (REQUIRED)
	UserAgent string

	// APIKey is sent in APIKeyHeader when set
	APIKey       string
	APIKeyHeader string

	// Headers are added to every request
	Headers map[string]string

	// Timeout per request (default 30s)
	Timeout time.Duration

	// Redis enables the shared response cache and cooldown tracking
	Redis *redis.Client

	// Caching of GET responses; 0 disables it
	CacheTTL        time.Duration
	MemoryCacheSize int
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(service, userAgent string) Config {
	return Config{
		Service:         service,
		UserAgent:       userAgent,
		Timeout:         30 * time.Second,
		MemoryCacheSize: cache.DefaultMemorySize,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.Service == "" {
		return nil, fmt.Errorf("service name is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.APIKey != "" && cfg.APIKeyHeader == "" {
		return nil, fmt.Errorf("api key header is required when an api key is set")
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	if cfg.CacheTTL < 0 {
		return nil, fmt.Errorf("cache ttl must be >= 0 (got %s)", cfg.CacheTTL)
	}

	logger := log.With().Str("component", "http-client").Str("service", cfg.Service).Logger()

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: logger,
	}

	if cfg.CacheTTL > 0 {
		c.memory = cache.NewMemoryLayer(cfg.MemoryCacheSize)
	}
	if cfg.Redis != nil {
		// The tracker tags each line with the service itself.
		c.rateLimiter = ratelimit.NewTracker(cfg.Redis, log.With().Str("component", "ratelimit").Logger())
		if cfg.CacheTTL > 0 {
			c.cache = cache.NewManager(cfg.Redis)
		}
	}

	return c, nil
}

// Service returns the configured service name.
func (c *Client) Service() string {
	return c.config.Service
}

// Do performs an HTTP request with cooldown gating and error classification.
// Any non-2xx response is returned as *HTTPError with the body closed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	service := c.config.Service

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(service).Observe(time.Since(startTime).Seconds())
	}()

	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx, service)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Cooldown check failed - sending request anyway")
		} else if !allowed {
			requestsTotal.WithLabelValues(service, "cooling_down").Inc()
			return nil, fmt.Errorf("%w: %s", ErrCoolingDown, service)
		}
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Msg("Executing request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(service, string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(service, "network_error").Inc()
		c.logger.Error().Err(err).Str("path", req.URL.Path).Msg("HTTP request failed")
		return nil, fmt.Errorf("%s request: %w", service, err)
	}

	requestsTotal.WithLabelValues(service, strconv.Itoa(resp.StatusCode)).Inc()

	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromResponse(ctx, service, resp.StatusCode, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record cooldown")
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		class := ClassifyStatus(resp.StatusCode)
		if class == "" {
			class = ErrorClassClient
		}
		errorsTotal.WithLabelValues(service, string(class)).Inc()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		c.logger.Warn().
			Str("path", req.URL.Path).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Request error")

		return nil, &HTTPError{
			Service:    service,
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Status:     resp.Status,
			URL:        req.URL.String(),
			Body:       string(bytes.TrimSpace(body)),
		}
	}

	return resp, nil
}

// Get performs a GET request and returns the response body. Successful
// responses are served from and stored in the cache when caching is enabled.
func (c *Client) Get(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	u.RawQuery = query.Encode()

	key := cache.Key{Service: c.config.Service, Endpoint: u.Path, Query: query}
	if entry := c.lookup(ctx, key); entry != nil {
		return entry.Data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Only 200 responses are cached.
	if c.memory == nil || resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		return body, nil
	}

	entry, err := cache.ResponseToEntry(resp, c.config.CacheTTL)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, entry)
	return entry.Data, nil
}

// GetJSON performs a GET request and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, out any) error {
	body, err := c.Get(ctx, rawURL, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.config.Service, err)
	}
	return nil
}

// PostJSON sends in as a JSON body and decodes the JSON response into out.
// POST responses are never cached.
func (c *Client) PostJSON(ctx context.Context, rawURL string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.config.Service, err)
	}
	return nil
}

// lookup checks the memory layer, then Redis. Cache failures are logged and
// treated as misses.
func (c *Client) lookup(ctx context.Context, key cache.Key) *cache.Entry {
	if c.memory == nil {
		return nil
	}

	if entry, err := c.memory.Get(key); err == nil {
		c.logger.Debug().Str("key", key.String()).Msg("Memory cache hit")
		return entry
	}

	if c.cache == nil {
		cache.CacheMisses.Inc()
		return nil
	}

	entry, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
		}
		return nil
	}

	c.logger.Debug().Str("key", key.String()).Msg("Redis cache hit")
	c.memory.Set(key, entry)
	return entry
}

func (c *Client) store(ctx context.Context, key cache.Key, entry *cache.Entry) {
	c.memory.Set(key, entry)
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, entry); err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache response")
		return
	}
	c.logger.Debug().
		Str("key", key.String()).
		Dur("ttl", entry.TTL()).
		Msg("Cached response")
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
