package pipeline

import (
	"context"

	"github.com/Sternrassler/retrieval-services/pkg/client"
	"github.com/Sternrassler/retrieval-services/pkg/frame"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrieval_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrieval_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// DefaultRetries is the default attempt budget, the initial call included.
const DefaultRetries = 3

// Page is one slice of a query's results.
type Page struct {
	// Results holds the rows of this page.
	Results *frame.Frame

	// Next is the offset of the following page; nil when exhausted.
	Next *int

	// Total is the service-reported number of matches, when known.
	Total *int
}

// SearchFunc fetches one page of results for a query.
type SearchFunc func(ctx context.Context, query string, offset, limit int) (Page, error)

type retryConfig struct {
	transientOnly bool
}

// RetryOption configures Retry.
type RetryOption func(*retryConfig)

// TransientOnly restricts retries to server and rate-limit errors; 4xx
// client errors are returned immediately.
func TransientOnly() RetryOption {
	return func(c *retryConfig) { c.transientOnly = true }
}

// Retry returns a SearchFunc that calls fn up to attempts times while it
// fails with an HTTP error (see client.IsHTTPError). There is no delay
// between attempts. Other errors are returned at once. When every attempt
// fails, or a cooldown started by a failed attempt blocks the next one, the
// last HTTP error is returned unchanged.
func Retry(fn SearchFunc, attempts int, opts ...RetryOption) SearchFunc {
	if attempts < 1 {
		attempts = 1
	}
	var cfg retryConfig
	for _, o := range opts {
		o(&cfg)
	}

	return func(ctx context.Context, query string, offset, limit int) (Page, error) {
		var (
			lastErr error
			class   client.ErrorClass
		)

		for attempt := 1; attempt <= attempts; attempt++ {
			page, err := fn(ctx, query, offset, limit)
			if err == nil {
				if attempt > 1 {
					log.Info().
						Str("error_class", string(class)).
						Int("attempt", attempt).
						Msg("Search succeeded after retry")
				}
				return page, nil
			}

			// A cooldown recorded from the previous response blocks every
			// further attempt; report the upstream error instead.
			if lastErr != nil && errors.Is(err, client.ErrCoolingDown) {
				log.Warn().
					Str("error_class", string(class)).
					Int("attempt", attempt).
					Msg("Service cooling down - giving up retries")
				break
			}

			httpErr, ok := client.AsHTTPError(err)
			if !ok || (cfg.transientOnly && !httpErr.Retryable()) {
				return Page{}, err
			}
			lastErr, class = err, httpErr.ErrorClass

			if attempt >= attempts {
				break
			}

			retriesTotal.WithLabelValues(string(class)).Inc()
			log.Warn().
				Err(err).
				Str("error_class", string(class)).
				Int("attempt", attempt).
				Int("offset", offset).
				Msg("Retrying search")
		}

		retryExhaustedTotal.WithLabelValues(string(class)).Inc()
		log.Warn().
			Str("error_class", string(class)).
			Int("max_attempts", attempts).
			Msg("Retry attempts exhausted")

		return Page{}, lastErr
	}
}
