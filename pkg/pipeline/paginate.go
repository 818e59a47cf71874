package pipeline

import (
	"context"

	"github.com/Sternrassler/retrieval-services/pkg/frame"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var pagesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "retrieval_pages_total",
	Help: "Total number of result pages fetched",
})

// DefaultPageSize caps the limit requested per page.
const DefaultPageSize = 100

// QueryFunc retrieves the results of one query.
type QueryFunc func(ctx context.Context, query string) (*frame.Frame, error)

type paginateConfig struct {
	pageSize int
}

// PaginateOption configures Paginate.
type PaginateOption func(*paginateConfig)

// WithPageSize sets the largest limit requested per call.
func WithPageSize(n int) PaginateOption {
	return func(c *paginateConfig) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// Paginate returns a QueryFunc that collects up to numResults rows by calling
// fn from offset 0, asking for min(remaining, page size) rows each time and
// continuing at the returned Next offset. It stops once numResults rows have
// arrived, Next is nil, or a page comes back empty. Pages are concatenated in
// order.
func Paginate(fn SearchFunc, numResults int, opts ...PaginateOption) QueryFunc {
	cfg := paginateConfig{pageSize: DefaultPageSize}
	for _, o := range opts {
		o(&cfg)
	}

	return func(ctx context.Context, query string) (*frame.Frame, error) {
		var (
			pages  []*frame.Frame
			count  int
			offset int
		)

		for count < numResults {
			limit := min(numResults-count, cfg.pageSize)

			page, err := fn(ctx, query, offset, limit)
			if err != nil {
				return nil, errors.Wrapf(err, "fetch page at offset %d", offset)
			}
			pagesTotal.Inc()

			n := page.Results.Len()
			pages = append(pages, page.Results)
			count += n

			log.Debug().
				Int("offset", offset).
				Int("limit", limit).
				Int("rows", n).
				Bool("exhausted", page.Next == nil).
				Msg("Fetched page")

			if page.Next == nil || n == 0 {
				break
			}
			offset = *page.Next
		}

		out := frame.Concat(pages...)
		if out.Len() > numResults {
			out.Rows = out.Rows[:numResults]
		}
		return out, nil
	}
}
