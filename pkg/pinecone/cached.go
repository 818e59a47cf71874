package pinecone

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize is the default number of embeddings kept.
const DefaultEmbeddingCacheSize = 10000

type embedKey struct {
	model        string
	inputType    InputType
	truncate     string
	returnTokens bool
	text         string
}

// CachedInference wraps an Inference with an LRU cache of per-text
// embeddings. Only texts not in the cache are sent upstream. Rerank calls
// pass through.
type CachedInference struct {
	inner Inference
	cache *lru.Cache[embedKey, Embedding]
}

// NewCachedInference wraps inner. A size <= 0 uses DefaultEmbeddingCacheSize.
func NewCachedInference(inner Inference, size int) *CachedInference {
	if size <= 0 {
		size = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[embedKey, Embedding](size)
	return &CachedInference{inner: inner, cache: cache}
}

// Len returns the number of cached embeddings.
func (c *CachedInference) Len() int {
	return c.cache.Len()
}

// Embed implements Inference.
func (c *CachedInference) Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error) {
	key := func(text string) embedKey {
		return embedKey{req.Model, req.InputType, req.Truncate, req.ReturnTokens, text}
	}

	out := &EmbedResponse{Model: req.Model, Data: make([]Embedding, len(req.Inputs))}
	var (
		missIdx   []int
		missTexts []string
	)
	for i, text := range req.Inputs {
		if e, ok := c.cache.Get(key(text)); ok {
			out.Data[i] = e
			out.VectorType = e.VectorType
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	sub := req
	sub.Inputs = missTexts
	resp, err := c.inner.Embed(ctx, sub)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(missTexts) {
		return nil, errEmbeddingCount(len(missTexts), len(resp.Data))
	}

	out.VectorType = resp.VectorType
	for j, i := range missIdx {
		e := resp.Data[j]
		if e.VectorType == "" {
			e.VectorType = resp.VectorType
		}
		out.Data[i] = e
		c.cache.Add(key(missTexts[j]), e)
	}
	return out, nil
}

// Rerank implements Inference.
func (c *CachedInference) Rerank(ctx context.Context, req RerankRequest) (*RerankResponse, error) {
	return c.inner.Rerank(ctx, req)
}

var _ Inference = (*CachedInference)(nil)
