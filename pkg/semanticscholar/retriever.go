package semanticscholar

import (
	"context"

	"github.com/Sternrassler/retrieval-services/pkg/frame"
	"github.com/Sternrassler/retrieval-services/pkg/pipeline"
)

// Retriever runs paper searches for every row of a query frame.
type Retriever struct {
	service    *Service
	numResults int
	fields     []string
	retries    int
	progress   pipeline.Progress
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithNumResults sets the number of results per query.
func WithNumResults(n int) RetrieverOption {
	return func(r *Retriever) { r.numResults = n }
}

// WithFields sets the paper fields to request.
func WithFields(fields ...string) RetrieverOption {
	return func(r *Retriever) { r.fields = fields }
}

// WithRetries sets the attempt budget per page.
func WithRetries(n int) RetrieverOption {
	return func(r *Retriever) { r.retries = n }
}

// WithProgress sets the progress observer.
func WithProgress(p pipeline.Progress) RetrieverOption {
	return func(r *Retriever) { r.progress = p }
}

// Retriever creates a retrieval stage backed by s.
func (s *Service) Retriever(opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		service:    s,
		numResults: DefaultNumResults,
		fields:     DefaultFields,
		retries:    pipeline.DefaultRetries,
		progress:   pipeline.NopProgress{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Retriever) searchPage(ctx context.Context, query string, offset, limit int) (pipeline.Page, error) {
	return r.service.Search(ctx, query, SearchOptions{Offset: offset, Limit: limit, Fields: r.fields})
}

// Transform retrieves up to the configured number of papers for every
// query row. See pipeline.MultiQuery for the output shape.
func (r *Retriever) Transform(ctx context.Context, inp *frame.Frame) (*frame.Frame, error) {
	stage := pipeline.MultiQuery(
		pipeline.Paginate(
			pipeline.Retry(r.searchPage, r.retries),
			r.numResults,
			pipeline.WithPageSize(MaxLimit),
		),
		pipeline.WithProgress(r.progress),
		pipeline.WithDescription("semanticscholar.retriever"),
	)
	return stage.Transform(ctx, inp)
}

// Search runs a single query under qid "1".
func (r *Retriever) Search(ctx context.Context, query string) (*frame.Frame, error) {
	return r.Transform(ctx, frame.FromRows(
		[]string{frame.ColQID, frame.ColQuery},
		[]frame.Row{{frame.ColQID: "1", frame.ColQuery: query}},
	))
}

var _ pipeline.Transformer = (*Retriever)(nil)
