package pinecone

import (
	"context"

	"github.com/Sternrassler/retrieval-services/pkg/frame"
	"github.com/Sternrassler/retrieval-services/pkg/pipeline"
	"github.com/cockroachdb/errors"
)

var (
	// ErrMixedQueries is returned when rows sharing a qid carry different
	// query texts.
	ErrMixedQueries = errors.New("pinecone: rerank batch mixes queries")

	// ErrRerankResult is returned when rerank results do not cover every
	// document exactly once.
	ErrRerankResult = errors.New("pinecone: incomplete rerank result")
)

// Reranker rescores retrieved documents with a rerank model.
type Reranker struct {
	api   Inference
	model string
}

// NewReranker creates a rerank stage. An empty name selects
// DefaultRerankModel.
func NewReranker(api Inference, name string) *Reranker {
	if name == "" {
		name = DefaultRerankModel
	}
	return &Reranker{api: api, model: name}
}

// Name returns the model name.
func (r *Reranker) Name() string { return r.model }

// Transform reranks each query's documents. The rows of every qid are
// returned sorted by the new score with rank reassigned from 0. Queries
// keep their first-appearance order.
func (r *Reranker) Transform(ctx context.Context, inp *frame.Frame) (*frame.Frame, error) {
	if err := pipeline.RequireColumns(inp, frame.ColQID, frame.ColQuery, frame.ColDocNo, frame.ColText); err != nil {
		return nil, err
	}
	if inp.Len() == 0 {
		out := inp.Copy()
		out.Broadcast(frame.ColScore, nil)
		out.Broadcast(frame.ColRank, nil)
		return out, nil
	}

	var results []*frame.Frame
	for _, g := range inp.GroupBy(frame.ColQID) {
		res, err := r.rerankQuery(ctx, g.Copy())
		if err != nil {
			return nil, errors.Wrapf(err, "rerank qid %q", g.String(0, frame.ColQID))
		}
		results = append(results, res)
	}
	return frame.Concat(results...), nil
}

func (r *Reranker) rerankQuery(ctx context.Context, g *frame.Frame) (*frame.Frame, error) {
	query := g.String(0, frame.ColQuery)
	for i := 1; i < g.Len(); i++ {
		if q := g.String(i, frame.ColQuery); q != query {
			return nil, errors.Wrapf(ErrMixedQueries, "%q and %q", query, q)
		}
	}

	resp, err := r.api.Rerank(ctx, RerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: g.Strings(frame.ColText),
		Truncate:  TruncateEnd,
	})
	if err != nil {
		return nil, err
	}

	scores := make([]any, g.Len())
	for _, res := range resp.Data {
		if res.Index < 0 || res.Index >= len(scores) || scores[res.Index] != nil {
			return nil, errors.Wrapf(ErrRerankResult, "unexpected index %d for %d documents", res.Index, len(scores))
		}
		scores[res.Index] = res.Score
	}
	if len(resp.Data) != len(scores) {
		return nil, errors.Wrapf(ErrRerankResult, "%d scores for %d documents", len(resp.Data), len(scores))
	}

	if err := g.Assign(frame.ColScore, scores); err != nil {
		return nil, err
	}
	g.SortByScore()
	g.AssignRanks()
	return g, nil
}

var _ pipeline.Transformer = (*Reranker)(nil)
