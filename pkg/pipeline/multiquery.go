package pipeline

import (
	"context"

	"github.com/Sternrassler/retrieval-services/pkg/frame"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "retrieval_queries_total",
	Help: "Total number of queries run by multi-query stages",
}, []string{"stage", "outcome"})

type multiQueryConfig struct {
	progress Progress
	desc     string
}

// MultiQueryOption configures MultiQuery.
type MultiQueryOption func(*multiQueryConfig)

// WithProgress sets the progress observer.
func WithProgress(p Progress) MultiQueryOption {
	return func(c *multiQueryConfig) {
		if p != nil {
			c.progress = p
		}
	}
}

// WithDescription names the stage in progress reports and metrics.
func WithDescription(desc string) MultiQueryOption {
	return func(c *multiQueryConfig) { c.desc = desc }
}

// MultiQuery returns a stage that calls fn once per input row, in row order,
// with the row's query text. Input columns missing from a row's results are
// copied onto every result row. Results are concatenated and the columns
// ordered qid, query, docno, score, rank (those present), then the rest in
// first-seen order.
func MultiQuery(fn QueryFunc, opts ...MultiQueryOption) TransformFunc {
	cfg := multiQueryConfig{progress: NopProgress{}, desc: "retrieving"}
	for _, o := range opts {
		o(&cfg)
	}

	return func(ctx context.Context, inp *frame.Frame) (*frame.Frame, error) {
		if err := RequireColumns(inp, frame.ColQuery); err != nil {
			return nil, err
		}

		cfg.progress.Start(cfg.desc, inp.Len())
		defer cfg.progress.Finish()

		results := make([]*frame.Frame, 0, inp.Len())
		for i, row := range inp.Rows {
			res, err := fn(ctx, inp.String(i, frame.ColQuery))
			if err != nil {
				queriesTotal.WithLabelValues(cfg.desc, "error").Inc()
				return nil, errors.Wrapf(err, "%s: qid %q", cfg.desc, inp.String(i, frame.ColQID))
			}
			if res == nil {
				res = frame.New()
			}

			for _, col := range inp.Columns {
				if !res.HasColumn(col) {
					res.Broadcast(col, row[col])
				}
			}

			results = append(results, res)
			queriesTotal.WithLabelValues(cfg.desc, "ok").Inc()
			cfg.progress.Step()
		}

		out := frame.Concat(results...)
		if len(results) == 0 {
			out = frame.New(inp.Columns...)
		}
		out.Reorder(frame.CanonicalOrder...)
		return out, nil
	}
}
