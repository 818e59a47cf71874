package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached response.
type Key struct {
	// Service is the upstream service name (e.g., "semanticscholar")
	Service string

	// Endpoint is the request path (e.g., "/paper/search")
	Endpoint string

	// Query holds the request query parameters
	Query url.Values
}

// String generates a deterministic cache key string.
// Format: rs:service:endpoint:param1=val1:param2=val2
//
// Example:
//
//	rs:semanticscholar:paper/search:fields=title,abstract:limit=10:offset=0:query=bm25
func (k Key) String() string {
	parts := []string{"rs"}

	if k.Service != "" {
		parts = append(parts, k.Service)
	}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.Query) > 0 {
		keys := make([]string, 0, len(k.Query))
		for key := range k.Query {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.Query[key], ",")))
		}
	}

	return strings.Join(parts, ":")
}
