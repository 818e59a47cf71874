// Package cache provides response caching for the retrieval service clients.
//
// Two layers are available and both are optional:
//
//   - MemoryLayer: a process-local LRU (hashicorp/golang-lru) with per-entry
//     expiry, checked first.
//   - Manager: a Redis-backed layer shared between processes.
//
// Only successful GET responses are cached. Entries expire after the
// response's Expires header, or after the configured TTL when the service
// does not send one (Semantic Scholar never does).
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{
//		Service:  "semanticscholar",
//		Endpoint: "/paper/search",
//		Query:    url.Values{"query": []string{"dense retrieval"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the service, then:
//		entry, _ = cache.ResponseToEntry(resp, 10*time.Minute)
//		_ = manager.Set(ctx, key, entry)
//	}
//
// # Metrics
//
//   - retrieval_cache_hits_total{layer} - hits by layer (memory, redis)
//   - retrieval_cache_misses_total - misses across all layers
//   - retrieval_cache_errors_total{operation} - Redis operation errors
package cache
