package pinecone

import (
	"context"
	"strconv"
)

// InputType tells the embedding model what the text is.
type InputType string

const (
	InputQuery   InputType = "query"
	InputPassage InputType = "passage"
)

// VectorType is the kind of vectors a model produces.
type VectorType string

const (
	VectorSparse VectorType = "sparse"
	VectorDense  VectorType = "dense"
)

// TruncateEnd cuts inputs that exceed the model's limit at the end.
const TruncateEnd = "END"

// EmbedRequest asks for embeddings of Inputs.
type EmbedRequest struct {
	Model        string
	Inputs       []string
	InputType    InputType
	Truncate     string
	ReturnTokens bool
}

// Embedding is one embedded input. Dense embeddings fill Values, sparse
// ones the Sparse* fields.
type Embedding struct {
	VectorType    VectorType `json:"vector_type"`
	Values        []float64  `json:"values,omitempty"`
	SparseValues  []float64  `json:"sparse_values,omitempty"`
	SparseIndices []int      `json:"sparse_indices,omitempty"`
	SparseTokens  []string   `json:"sparse_tokens,omitempty"`
}

// Sparse returns the token to weight map. Without tokens the indices are
// used as keys.
func (e Embedding) Sparse() SparseVector {
	out := make(SparseVector, len(e.SparseValues))
	for i, v := range e.SparseValues {
		var key string
		switch {
		case i < len(e.SparseTokens):
			key = e.SparseTokens[i]
		case i < len(e.SparseIndices):
			key = strconv.Itoa(e.SparseIndices[i])
		default:
			continue
		}
		out[key] += v
	}
	return out
}

// EmbedResponse holds one embedding per input, in input order.
type EmbedResponse struct {
	Model      string      `json:"model"`
	VectorType VectorType  `json:"vector_type"`
	Data       []Embedding `json:"data"`
}

// RerankRequest asks for relevance scores of Documents against Query.
type RerankRequest struct {
	Model     string
	Query     string
	Documents []string
	Truncate  string
	// TopN limits the results; 0 returns all documents
	TopN int
}

// RerankResult scores the document at Index of the request.
type RerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// RerankResponse lists results by descending score.
type RerankResponse struct {
	Model string         `json:"model"`
	Data  []RerankResult `json:"data"`
}

// Inference is the subset of the Pinecone inference API used here.
type Inference interface {
	Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error)
	Rerank(ctx context.Context, req RerankRequest) (*RerankResponse, error)
}
