package pinecone

import (
	"context"

	"github.com/Sternrassler/retrieval-services/pkg/frame"
	"github.com/Sternrassler/retrieval-services/pkg/pipeline"
	"github.com/cockroachdb/errors"
)

// Default model names.
const (
	DefaultSparseModel = "pinecone-sparse-english-v0"
	DefaultDenseModel  = "multilingual-e5-large"
	DefaultRerankModel = "pinecone-rerank-v0"
)

// MaxEmbedBatch is the largest number of inputs sent in one embed call.
const MaxEmbedBatch = 96

var (
	// ErrVectorType is returned when the model answers with the wrong kind
	// of vectors, e.g. a dense model used as a SparseModel.
	ErrVectorType = errors.New("pinecone: unexpected vector type")

	// ErrEmbeddingCount is returned when an embed call does not return one
	// embedding per input.
	ErrEmbeddingCount = errors.New("pinecone: embedding count mismatch")
)

func errEmbeddingCount(want, got int) error {
	return errors.Wrapf(ErrEmbeddingCount, "sent %d inputs, got %d embeddings", want, got)
}

// Input shapes accepted by SparseModel and DenseModel.
var (
	QueryEncoderMode = pipeline.Mode{
		Name:     "query_encoder",
		Required: []string{frame.ColQID, frame.ColQuery},
		Excluded: []string{frame.ColDocNo},
	}
	DocEncoderMode = pipeline.Mode{
		Name:     "doc_encoder",
		Required: []string{frame.ColDocNo, frame.ColText},
		Excluded: []string{frame.ColQID},
	}
	ScorerMode = pipeline.Mode{
		Name:     "scorer",
		Required: []string{frame.ColQID, frame.ColQuery, frame.ColDocNo, frame.ColText},
	}
)

// kind describes one family of embeddings.
type kind struct {
	vectorType   VectorType
	queryColumn  string
	docColumn    string
	returnTokens bool
	value        func(Embedding) any
	dot          func(q, d any) float64
}

var sparseKind = &kind{
	vectorType:   VectorSparse,
	queryColumn:  frame.ColQueryTok,
	docColumn:    frame.ColToks,
	returnTokens: true,
	value:        func(e Embedding) any { return e.Sparse() },
	dot: func(q, d any) float64 {
		qv, _ := q.(SparseVector)
		dv, _ := d.(SparseVector)
		return SparseDot(qv, dv)
	},
}

var denseKind = &kind{
	vectorType:  VectorDense,
	queryColumn: frame.ColQueryVec,
	docColumn:   frame.ColDocVec,
	value:       func(e Embedding) any { return e.Values },
	dot: func(q, d any) float64 {
		qv, _ := q.([]float64)
		dv, _ := d.([]float64)
		return DenseDot(qv, dv)
	},
}

// model holds what SparseModel and DenseModel share.
type model struct {
	name string
	api  Inference
	kind *kind
}

// Name returns the model name.
func (m *model) Name() string { return m.name }

// QueryEncoder returns a stage encoding the query column.
func (m *model) QueryEncoder() *Encoder {
	return &Encoder{model: m, inputType: InputQuery}
}

// DocEncoder returns a stage encoding the text column.
func (m *model) DocEncoder() *Encoder {
	return &Encoder{model: m, inputType: InputPassage}
}

// Scorer returns a stage scoring query/document pairs.
func (m *model) Scorer() *Scorer {
	return &Scorer{model: m}
}

// Transform encodes queries, encodes documents or scores pairs depending
// on the input columns. Inputs matching none of the shapes are rejected
// with pipeline.ErrNoMatchingMode.
func (m *model) Transform(ctx context.Context, inp *frame.Frame) (*frame.Frame, error) {
	mode, err := pipeline.SelectMode(inp, QueryEncoderMode, DocEncoderMode, ScorerMode)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", m.name)
	}

	switch mode.Name {
	case QueryEncoderMode.Name:
		return m.QueryEncoder().Transform(ctx, inp)
	case DocEncoderMode.Name:
		return m.DocEncoder().Transform(ctx, inp)
	default:
		return m.Scorer().Transform(ctx, inp)
	}
}

// embed encodes texts in batches of MaxEmbedBatch and returns one value per
// text. Duplicate texts are sent once.
func (m *model) embed(ctx context.Context, texts []string, inputType InputType) ([]any, error) {
	pos := make(map[string]int, len(texts))
	var unique []string
	for _, t := range texts {
		if _, ok := pos[t]; !ok {
			pos[t] = len(unique)
			unique = append(unique, t)
		}
	}

	values := make([]any, 0, len(unique))
	for start := 0; start < len(unique); start += MaxEmbedBatch {
		batch := unique[start:min(start+MaxEmbedBatch, len(unique))]

		resp, err := m.api.Embed(ctx, EmbedRequest{
			Model:        m.name,
			Inputs:       batch,
			InputType:    inputType,
			Truncate:     TruncateEnd,
			ReturnTokens: m.kind.returnTokens,
		})
		if err != nil {
			return nil, err
		}
		if resp.VectorType != m.kind.vectorType {
			return nil, errors.Wrapf(ErrVectorType, "%s returned %q vectors, want %q",
				m.name, resp.VectorType, m.kind.vectorType)
		}
		if len(resp.Data) != len(batch) {
			return nil, errEmbeddingCount(len(batch), len(resp.Data))
		}
		for _, e := range resp.Data {
			values = append(values, m.kind.value(e))
		}
	}

	out := make([]any, len(texts))
	for i, t := range texts {
		out[i] = values[pos[t]]
	}
	return out, nil
}

// Encoder adds an encoding column to a query or document frame.
type Encoder struct {
	model     *model
	inputType InputType
}

// Transform returns a copy of inp with the encoding column added.
func (e *Encoder) Transform(ctx context.Context, inp *frame.Frame) (*frame.Frame, error) {
	var textCol, outCol string
	var required []string
	if e.inputType == InputQuery {
		textCol, outCol = frame.ColQuery, e.model.kind.queryColumn
		required = []string{frame.ColQID, frame.ColQuery}
	} else {
		textCol, outCol = frame.ColText, e.model.kind.docColumn
		required = []string{frame.ColDocNo, frame.ColText}
	}
	if err := pipeline.RequireColumns(inp, required...); err != nil {
		return nil, err
	}

	values, err := e.model.embed(ctx, inp.Strings(textCol), e.inputType)
	if err != nil {
		return nil, err
	}

	out := inp.Copy()
	if err := out.Assign(outCol, values); err != nil {
		return nil, err
	}
	return out, nil
}

// Scorer scores (query, text) pairs by the dot product of their encodings
// and ranks documents per query.
type Scorer struct {
	model *model
}

// Transform returns the input rows with score and rank set, grouped by qid
// in first-appearance order and sorted by descending score within a query.
func (s *Scorer) Transform(ctx context.Context, inp *frame.Frame) (*frame.Frame, error) {
	if err := pipeline.RequireColumns(inp, ScorerMode.Required...); err != nil {
		return nil, err
	}

	queries, err := s.model.embed(ctx, inp.Strings(frame.ColQuery), InputQuery)
	if err != nil {
		return nil, err
	}
	docs, err := s.model.embed(ctx, inp.Strings(frame.ColText), InputPassage)
	if err != nil {
		return nil, err
	}

	scored := inp.Copy()
	scores := make([]any, scored.Len())
	for i := range scores {
		scores[i] = s.model.kind.dot(queries[i], docs[i])
	}
	if err := scored.Assign(frame.ColScore, scores); err != nil {
		return nil, err
	}

	groups := scored.GroupBy(frame.ColQID)
	for _, g := range groups {
		g.SortByScore()
		g.AssignRanks()
	}
	out := frame.Concat(groups...)
	if len(groups) == 0 {
		out = scored
		out.Broadcast(frame.ColRank, 0)
	}
	return out, nil
}

// SparseModel is a Pinecone sparse embedding model used as a stage.
type SparseModel struct {
	model
}

// NewSparseModel creates a sparse model stage. An empty name selects
// DefaultSparseModel.
func NewSparseModel(api Inference, name string) *SparseModel {
	if name == "" {
		name = DefaultSparseModel
	}
	return &SparseModel{model{name: name, api: api, kind: sparseKind}}
}

// DenseModel is a Pinecone dense embedding model used as a stage.
type DenseModel struct {
	model
}

// NewDenseModel creates a dense model stage. An empty name selects
// DefaultDenseModel.
func NewDenseModel(api Inference, name string) *DenseModel {
	if name == "" {
		name = DefaultDenseModel
	}
	return &DenseModel{model{name: name, api: api, kind: denseKind}}
}

var (
	_ pipeline.Transformer = (*SparseModel)(nil)
	_ pipeline.Transformer = (*DenseModel)(nil)
	_ pipeline.Transformer = (*Encoder)(nil)
	_ pipeline.Transformer = (*Scorer)(nil)
)
