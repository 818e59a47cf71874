// Package ratelimit implements Retry-After based cooldown tracking for the
// upstream services. When a service answers 429 (or 503) with a Retry-After
// header, the cooldown is stored in Redis so that every process sharing the
// key space stops calling that service until it expires.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// redisKeyPrefix namespaces cooldown keys: rs:rate_limit:<service>:blocked_until
const redisKeyPrefix = "rs:rate_limit:"

// MaxCooldown caps a single Retry-After value.
const MaxCooldown = 10 * time.Minute

// RedisKeyBlockedUntil returns the Redis key holding a service's cooldown.
func RedisKeyBlockedUntil(service string) string {
	return redisKeyPrefix + service + ":blocked_until"
}

// CooldownState represents the current cooldown of one service.
type CooldownState struct {
	// Service is the upstream service name.
	Service string `json:"service"`

	// BlockedUntil is when requests may resume. Zero when not cooling down.
	BlockedUntil time.Time `json:"blocked_until"`
}

// IsCoolingDown returns true while requests should be held back.
func (s *CooldownState) IsCoolingDown() bool {
	return time.Now().Before(s.BlockedUntil)
}

// TimeUntilReset returns the remaining cooldown.
// Returns 0 if the cooldown has already passed.
func (s *CooldownState) TimeUntilReset() time.Duration {
	d := time.Until(s.BlockedUntil)
	if d < 0 {
		return 0
	}
	return d
}

// triggersCooldown reports whether a status code may carry Retry-After.
func triggersCooldown(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// ParseRetryAfter parses a Retry-After value given either as delay seconds
// or as an HTTP date. The result is capped at MaxCooldown.
func ParseRetryAfter(value string, now time.Time) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty Retry-After")
	}

	var d time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative Retry-After: %d", secs)
		}
		d = time.Duration(secs) * time.Second
	} else {
		at, err := http.ParseTime(value)
		if err != nil {
			return 0, fmt.Errorf("parse Retry-After %q: %w", value, err)
		}
		d = at.Sub(now)
		if d < 0 {
			d = 0
		}
	}

	if d > MaxCooldown {
		d = MaxCooldown
	}
	return d, nil
}
