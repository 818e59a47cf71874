package pinecone

import (
	"context"
)

// fakeInference records calls and answers with the configured functions.
type fakeInference struct {
	embeds  []EmbedRequest
	reranks []RerankRequest

	embed  func(EmbedRequest) (*EmbedResponse, error)
	rerank func(RerankRequest) (*RerankResponse, error)
}

func (f *fakeInference) Embed(_ context.Context, req EmbedRequest) (*EmbedResponse, error) {
	f.embeds = append(f.embeds, req)
	if f.embed != nil {
		return f.embed(req)
	}
	resp := &EmbedResponse{Model: req.Model, VectorType: VectorDense}
	for _, in := range req.Inputs {
		resp.Data = append(resp.Data, Embedding{VectorType: VectorDense, Values: []float64{float64(len(in))}})
	}
	return resp, nil
}

func (f *fakeInference) Rerank(_ context.Context, req RerankRequest) (*RerankResponse, error) {
	f.reranks = append(f.reranks, req)
	if f.rerank != nil {
		return f.rerank(req)
	}
	resp := &RerankResponse{Model: req.Model}
	for i, d := range req.Documents {
		resp.Data = append(resp.Data, RerankResult{Index: i, Score: float64(len(d))})
	}
	return resp, nil
}
