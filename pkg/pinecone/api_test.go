package pinecone

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"testing"

	"github.com/Sternrassler/retrieval-services/internal/testutil"
	"github.com/Sternrassler/retrieval-services/pkg/client"
)

func newTestAPI(t *testing.T, url string) *API {
	t.Helper()
	cfg := DefaultConfig("retrieval-services-test/1.0")
	cfg.BaseURL = url
	cfg.APIKey = "pc-test-key"

	api, err := NewAPI(cfg)
	if err != nil {
		t.Fatalf("NewAPI() error = %v", err)
	}
	t.Cleanup(func() { api.Close() })
	return api
}

func TestNewAPI_APIKey(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	if _, err := NewAPI(DefaultConfig("ua")); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Expected ErrMissingAPIKey, got %v", err)
	}

	mock := testutil.NewMockPinecone()
	defer mock.Close()

	t.Setenv(APIKeyEnv, "from-env")
	cfg := DefaultConfig("ua")
	cfg.BaseURL = mock.URL()
	api, err := NewAPI(cfg)
	if err != nil {
		t.Fatalf("NewAPI() error = %v", err)
	}
	defer api.Close()

	if _, err := api.Embed(context.Background(), EmbedRequest{Model: DefaultSparseModel, Inputs: []string{"x"}}); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if got := mock.LastRequestHeader.Get(APIKeyHeader); got != "from-env" {
		t.Errorf("%s = %q, want from-env", APIKeyHeader, got)
	}
}

// captureBody records the JSON body of each request and answers with reply.
func captureBody(t *testing.T, mock *testutil.MockServer, path, reply string) *map[string]any {
	t.Helper()
	var body map[string]any
	mock.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(reply))
	})
	return &body
}

func TestAPI_EmbedRequest(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	body := captureBody(t, mock, "/embed", `{
		"model": "pinecone-sparse-english-v0",
		"vector_type": "sparse",
		"data": [{"vector_type": "sparse", "sparse_values": [0.5, 1.5], "sparse_indices": [10, 20], "sparse_tokens": ["neural", "ranking"]}]
	}`)
	api := newTestAPI(t, mock.URL())

	resp, err := api.Embed(context.Background(), EmbedRequest{
		Model:        DefaultSparseModel,
		Inputs:       []string{"neural ranking"},
		InputType:    InputQuery,
		Truncate:     TruncateEnd,
		ReturnTokens: true,
	})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	want := map[string]any{
		"model": DefaultSparseModel,
		"parameters": map[string]any{
			"input_type":    "query",
			"truncate":      "END",
			"return_tokens": true,
		},
		"inputs": []any{map[string]any{"text": "neural ranking"}},
	}
	if !reflect.DeepEqual(*body, want) {
		t.Errorf("body = %v, want %v", *body, want)
	}

	h := mock.LastRequestHeader
	if h.Get(APIKeyHeader) != "pc-test-key" {
		t.Errorf("%s = %q", APIKeyHeader, h.Get(APIKeyHeader))
	}
	if h.Get(APIVersionHeader) != APIVersion {
		t.Errorf("%s = %q", APIVersionHeader, h.Get(APIVersionHeader))
	}
	if h.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", h.Get("Content-Type"))
	}

	if resp.VectorType != VectorSparse || len(resp.Data) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if got := resp.Data[0].Sparse(); !reflect.DeepEqual(got, SparseVector{"neural": 0.5, "ranking": 1.5}) {
		t.Errorf("Sparse() = %v", got)
	}
}

func TestAPI_RerankRequest(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	body := captureBody(t, mock, "/rerank", `{
		"model": "pinecone-rerank-v0",
		"data": [{"index": 1, "score": 0.9}, {"index": 0, "score": 0.2}]
	}`)
	api := newTestAPI(t, mock.URL())

	resp, err := api.Rerank(context.Background(), RerankRequest{
		Model:     DefaultRerankModel,
		Query:     "q",
		Documents: []string{"a", "b"},
		Truncate:  TruncateEnd,
	})
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}

	want := map[string]any{
		"model":            DefaultRerankModel,
		"query":            "q",
		"documents":        []any{map[string]any{"text": "a"}, map[string]any{"text": "b"}},
		"return_documents": false,
		"parameters":       map[string]any{"truncate": "END"},
	}
	if !reflect.DeepEqual(*body, want) {
		t.Errorf("body = %v, want %v", *body, want)
	}
	if want := []RerankResult{{1, 0.9}, {0, 0.2}}; !reflect.DeepEqual(resp.Data, want) {
		t.Errorf("Data = %v, want %v", resp.Data, want)
	}
}

func TestAPI_HTTPError(t *testing.T) {
	mock := testutil.NewMockPinecone()
	defer mock.Close()
	api := newTestAPI(t, mock.URL())

	mock.FailNext(testutil.NewRateLimitResponse(""))
	_, err := api.Rerank(context.Background(), RerankRequest{Model: DefaultRerankModel, Query: "q", Documents: []string{"a"}})

	httpErr, ok := client.AsHTTPError(err)
	if !ok {
		t.Fatalf("Expected HTTPError, got %v", err)
	}
	if httpErr.ErrorClass != client.ErrorClassRateLimit {
		t.Errorf("ErrorClass = %q, want rate_limit", httpErr.ErrorClass)
	}
}

func TestEmbedding_SparseWithoutTokens(t *testing.T) {
	e := Embedding{SparseValues: []float64{1, 2}, SparseIndices: []int{7, 9}}
	if got := e.Sparse(); !reflect.DeepEqual(got, SparseVector{"7": 1, "9": 2}) {
		t.Errorf("Sparse() = %v", got)
	}
}

func TestDots(t *testing.T) {
	if got := SparseDot(SparseVector{"a": 2, "b": 3}, SparseVector{"b": 4, "c": 5}); got != 12 {
		t.Errorf("SparseDot = %v, want 12", got)
	}
	if got := SparseDot(nil, SparseVector{"a": 1}); got != 0 {
		t.Errorf("SparseDot(nil) = %v, want 0", got)
	}
	if got := DenseDot([]float64{1, 2, 3}, []float64{4, 5, 6}); got != 32 {
		t.Errorf("DenseDot = %v, want 32", got)
	}
}
