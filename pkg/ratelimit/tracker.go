package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for cooldown tracking.
var (
	rateLimitCooldownsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrieval_rate_limit_cooldowns_total",
		Help: "Total number of cooldowns started from Retry-After headers",
	}, []string{"service"})

	rateLimitBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrieval_rate_limit_blocks_total",
		Help: "Total number of requests blocked by an active cooldown",
	}, []string{"service"})
)

// Tracker records service cooldowns in Redis and gates requests.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a new cooldown tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState retrieves the cooldown state of a service from Redis.
// A service without a stored cooldown is returned with a zero BlockedUntil.
func (t *Tracker) GetState(ctx context.Context, service string) (*CooldownState, error) {
	state := &CooldownState{Service: service}

	ms, err := t.redis.Get(ctx, RedisKeyBlockedUntil(service)).Int64()
	if err == redis.Nil {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cooldown: %w", err)
	}

	state.BlockedUntil = time.UnixMilli(ms)
	return state, nil
}

// UpdateFromResponse starts a cooldown when the response is a 429 or 503
// carrying a Retry-After header. Other responses are ignored.
func (t *Tracker) UpdateFromResponse(ctx context.Context, service string, status int, headers http.Header) error {
	if !triggersCooldown(status) {
		return nil
	}

	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return nil
	}

	now := time.Now()
	wait, err := ParseRetryAfter(retryAfter, now)
	if err != nil {
		return err
	}
	if wait <= 0 {
		return nil
	}

	blockedUntil := now.Add(wait)
	key := RedisKeyBlockedUntil(service)
	if err := t.redis.Set(ctx, key, strconv.FormatInt(blockedUntil.UnixMilli(), 10), wait).Err(); err != nil {
		return fmt.Errorf("store cooldown in redis: %w", err)
	}

	rateLimitCooldownsTotal.WithLabelValues(service).Inc()
	t.logger.Warn().
		Str("service", service).
		Int("status", status).
		Dur("cooldown", wait).
		Time("blocked_until", blockedUntil).
		Msg("Service asked us to back off - cooldown started")

	return nil
}

// ShouldAllowRequest reports whether a request to service may go out now.
func (t *Tracker) ShouldAllowRequest(ctx context.Context, service string) (bool, error) {
	state, err := t.GetState(ctx, service)
	if err != nil {
		return false, fmt.Errorf("get cooldown state: %w", err)
	}

	if state.IsCoolingDown() {
		t.logger.Warn().
			Str("service", service).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Service cooling down - blocking request")

		rateLimitBlocksTotal.WithLabelValues(service).Inc()
		return false, nil
	}

	return true, nil
}
