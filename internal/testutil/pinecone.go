package testutil

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"
)

// Pinecone endpoint paths below the mock URL.
const (
	PineconeEmbedPath  = "/embed"
	PineconeRerankPath = "/rerank"
)

// MockDenseDim is the dimension of dense vectors served by MockPinecone.
const MockDenseDim = 4

// MockPinecone serves deterministic embed and rerank endpoints.
//
// Sparse models return one token per distinct lower-cased word with its
// count as weight. Dense models (any model name not containing "sparse")
// return [words, letters, vowels, 1]. Rerank scores a document by the
// number of query words it contains.
type MockPinecone struct {
	*MockServer
}

// NewMockPinecone creates a mock inference server.
func NewMockPinecone() *MockPinecone {
	m := &MockPinecone{MockServer: NewMockServer()}
	m.SetHandler(PineconeEmbedPath, m.embed)
	m.SetHandler(PineconeRerankPath, m.rerank)
	return m
}

// Words splits text into lower-cased words the way the mock tokenizes.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

type mockEmbedRequest struct {
	Model      string         `json:"model"`
	Parameters map[string]any `json:"parameters"`
	Inputs     []struct {
		Text string `json:"text"`
	} `json:"inputs"`
}

func (m *MockPinecone) embed(w http.ResponseWriter, r *http.Request) {
	var req mockEmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, NewBadRequestResponse("invalid body"))
		return
	}

	sparse := strings.Contains(req.Model, "sparse")
	data := make([]map[string]any, len(req.Inputs))
	for i, in := range req.Inputs {
		if sparse {
			data[i] = sparseEmbedding(in.Text)
		} else {
			data[i] = map[string]any{"vector_type": "dense", "values": denseEmbedding(in.Text)}
		}
	}

	vectorType := "dense"
	if sparse {
		vectorType = "sparse"
	}
	writeJSON(w, map[string]any{
		"model":       req.Model,
		"vector_type": vectorType,
		"data":        data,
		"usage":       map[string]int{"total_tokens": len(req.Inputs)},
	})
}

func sparseEmbedding(text string) map[string]any {
	var (
		tokens  []string
		indices []int
		values  []float64
		pos     = make(map[string]int)
	)
	for _, w := range Words(text) {
		if i, ok := pos[w]; ok {
			values[i]++
			continue
		}
		pos[w] = len(tokens)
		tokens = append(tokens, w)
		indices = append(indices, len(indices))
		values = append(values, 1)
	}
	return map[string]any{
		"vector_type":    "sparse",
		"sparse_tokens":  tokens,
		"sparse_indices": indices,
		"sparse_values":  values,
	}
}

func denseEmbedding(text string) []float64 {
	vec := make([]float64, MockDenseDim)
	vec[0] = float64(len(Words(text)))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) {
			vec[1]++
		}
		if strings.ContainsRune("aeiou", r) {
			vec[2]++
		}
	}
	vec[3] = 1
	return vec
}

type mockRerankRequest struct {
	Model     string `json:"model"`
	Query     string `json:"query"`
	Documents []struct {
		Text string `json:"text"`
	} `json:"documents"`
}

func (m *MockPinecone) rerank(w http.ResponseWriter, r *http.Request) {
	var req mockRerankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, NewBadRequestResponse("invalid body"))
		return
	}

	terms := make(map[string]bool)
	for _, t := range Words(req.Query) {
		terms[t] = true
	}

	// served in reverse input order so callers must map by index
	data := make([]map[string]any, 0, len(req.Documents))
	for i := len(req.Documents) - 1; i >= 0; i-- {
		score := 0.0
		for _, t := range Words(req.Documents[i].Text) {
			if terms[t] {
				score++
			}
		}
		data = append(data, map[string]any{"index": i, "score": score})
	}

	writeJSON(w, map[string]any{
		"model": req.Model,
		"data":  data,
		"usage": map[string]int{"rerank_units": 1},
	})
}
