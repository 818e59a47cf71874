package main

import (
	"context"
	"time"

	"github.com/Sternrassler/retrieval-services/pkg/client"
	"github.com/Sternrassler/retrieval-services/pkg/config"
	"github.com/Sternrassler/retrieval-services/pkg/pinecone"
	"github.com/Sternrassler/retrieval-services/pkg/semanticscholar"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// connectRedis returns nil when no Redis URL is configured.
func connectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.URL == "" {
		return nil, nil
	}
	opts, err := cfg.Redis.Options()
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrapf(err, "connect to redis at %s", opts.Addr)
	}
	return rdb, nil
}

func clientConfig(cfg *config.Config, base client.Config, rdb *redis.Client) client.Config {
	base.UserAgent = cfg.UserAgent
	base.Timeout = cfg.HTTP.Timeout
	base.Redis = rdb
	base.CacheTTL = cfg.Cache.TTL
	base.MemoryCacheSize = cfg.Cache.MemorySize
	return base
}

func newScholar(cfg *config.Config, rdb *redis.Client) (*semanticscholar.Service, error) {
	sc := semanticscholar.DefaultConfig(cfg.UserAgent)
	sc.BaseURL = cfg.SemanticScholar.BaseURL
	sc.Client = clientConfig(cfg, sc.Client, rdb)
	sc.Client.APIKey = cfg.SemanticScholar.APIKey
	return semanticscholar.New(sc)
}

func newRetriever(cfg *config.Config, s *semanticscholar.Service, numResults int, opts ...semanticscholar.RetrieverOption) *semanticscholar.Retriever {
	if numResults <= 0 {
		numResults = cfg.SemanticScholar.NumResults
	}
	opts = append([]semanticscholar.RetrieverOption{
		semanticscholar.WithNumResults(numResults),
		semanticscholar.WithFields(cfg.SemanticScholar.Fields...),
		semanticscholar.WithRetries(cfg.SemanticScholar.Retries),
	}, opts...)
	return s.Retriever(opts...)
}

// newInference returns the Pinecone API behind an embedding cache. Embed
// and rerank are POST calls, so the response cache stays off.
func newInference(cfg *config.Config, rdb *redis.Client) (*pinecone.API, pinecone.Inference, error) {
	pc := pinecone.DefaultConfig(cfg.UserAgent)
	pc.BaseURL = cfg.Pinecone.BaseURL
	pc.APIKey = cfg.Pinecone.APIKey
	pc.Client = clientConfig(cfg, pc.Client, rdb)
	pc.Client.CacheTTL = 0

	api, err := pinecone.NewAPI(pc)
	if err != nil {
		return nil, nil, err
	}
	return api, pinecone.NewCachedInference(api, cfg.Pinecone.EmbeddingCacheSize), nil
}
