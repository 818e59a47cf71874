package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/retrieval-services/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			config:      DefaultConfig("semanticscholar", "TestApp/1.0.0"),
			expectError: false,
		},
		{
			name:        "missing service",
			config:      Config{UserAgent: "TestApp/1.0.0"},
			expectError: true,
			errorMsg:    "service name is required",
		},
		{
			name:        "empty user agent",
			config:      Config{Service: "pinecone"},
			expectError: true,
			errorMsg:    "user-agent is required",
		},
		{
			name:        "api key without header",
			config:      Config{Service: "pinecone", UserAgent: "a", APIKey: "k"},
			expectError: true,
			errorMsg:    "api key header is required when an api key is set",
		},
		{
			name:        "negative timeout",
			config:      Config{Service: "s", UserAgent: "a", Timeout: -time.Second},
			expectError: true,
			errorMsg:    "timeout must be >= 0 (got -1s)",
		},
		{
			name:        "negative cache ttl",
			config:      Config{Service: "s", UserAgent: "a", CacheTTL: -time.Second},
			expectError: true,
			errorMsg:    "cache ttl must be >= 0 (got -1s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error, got nil")
				} else if err.Error() != tt.errorMsg {
					t.Errorf("Error = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client == nil {
				t.Fatal("Client is nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("semanticscholar", "TestApp/1.0.0")

	if cfg.Service != "semanticscholar" {
		t.Errorf("Service = %s, want semanticscholar", cfg.Service)
	}
	if cfg.UserAgent != "TestApp/1.0.0" {
		t.Errorf("UserAgent = %s, want TestApp/1.0.0", cfg.UserAgent)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.CacheTTL != 0 {
		t.Errorf("CacheTTL = %v, want caching disabled by default", cfg.CacheTTL)
	}
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

func TestDo_HeadersSet(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := DefaultConfig("pinecone", "TestApp/1.0.0")
	cfg.APIKey = "secret"
	cfg.APIKeyHeader = "Api-Key"
	cfg.Headers = map[string]string{"X-Pinecone-API-Version": "2025-04"}
	client := newTestClient(t, cfg)

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	resp.Body.Close()

	for header, want := range map[string]string{
		"User-Agent":             "TestApp/1.0.0",
		"Accept":                 "application/json",
		"Api-Key":                "secret",
		"X-Pinecone-API-Version": "2025-04",
	} {
		if got.Get(header) != want {
			t.Errorf("%s = %q, want %q", header, got.Get(header), want)
		}
	}
}

func TestDo_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		expectedClass ErrorClass
	}{
		{name: "400 Bad Request", statusCode: 400, expectedClass: ErrorClassClient},
		{name: "404 Not Found", statusCode: 404, expectedClass: ErrorClassClient},
		{name: "429 Too Many Requests", statusCode: 429, expectedClass: ErrorClassRateLimit},
		{name: "500 Internal Server Error", statusCode: 500, expectedClass: ErrorClassServer},
		{name: "504 Gateway Timeout", statusCode: 504, expectedClass: ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(`{"error":"nope"}`))
			}))
			defer server.Close()

			client := newTestClient(t, DefaultConfig("semanticscholar", "TestApp/1.0.0"))

			req, _ := http.NewRequest(http.MethodGet, server.URL+"/paper/search", nil)
			resp, err := client.Do(req)
			if resp != nil {
				t.Error("expected nil response on error")
			}

			httpErr, ok := AsHTTPError(err)
			if !ok {
				t.Fatalf("expected *HTTPError, got %v", err)
			}
			if httpErr.StatusCode != tt.statusCode {
				t.Errorf("StatusCode = %d, want %d", httpErr.StatusCode, tt.statusCode)
			}
			if httpErr.ErrorClass != tt.expectedClass {
				t.Errorf("ErrorClass = %s, want %s", httpErr.ErrorClass, tt.expectedClass)
			}
			if httpErr.Body != `{"error":"nope"}` {
				t.Errorf("Body = %q", httpErr.Body)
			}
		})
	}
}

func TestDo_NetworkErrorIsNotHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	client := newTestClient(t, DefaultConfig("semanticscholar", "TestApp/1.0.0"))

	req, _ := http.NewRequest(http.MethodGet, addr, nil)
	_, err := client.Do(req)
	if err == nil {
		t.Fatal("expected network error")
	}
	if IsHTTPError(err) {
		t.Errorf("network error must not be an HTTPError: %v", err)
	}
}

func TestGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/paper/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("query") != "bm25" {
			t.Errorf("query = %s", r.URL.Query().Get("query"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total": 3}`))
	}))
	defer server.Close()

	client := newTestClient(t, DefaultConfig("semanticscholar", "TestApp/1.0.0"))

	var out struct {
		Total int `json:"total"`
	}
	err := client.GetJSON(context.Background(), server.URL+"/paper/search", url.Values{"query": []string{"bm25"}}, &out)
	if err != nil {
		t.Fatalf("GetJSON() failed: %v", err)
	}
	if out.Total != 3 {
		t.Errorf("Total = %d, want 3", out.Total)
	}
}

func TestGetJSON_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	client := newTestClient(t, DefaultConfig("semanticscholar", "TestApp/1.0.0"))

	var out map[string]any
	err := client.GetJSON(context.Background(), server.URL, nil, &out)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if IsHTTPError(err) {
		t.Error("decode error must not be an HTTPError")
	}
}

func TestGet_MemoryCache(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"n": 1}`))
	}))
	defer server.Close()

	cfg := DefaultConfig("semanticscholar", "TestApp/1.0.0")
	cfg.CacheTTL = time.Minute
	client := newTestClient(t, cfg)

	q := url.Values{"query": []string{"x"}}
	for i := 0; i < 3; i++ {
		body, err := client.Get(context.Background(), server.URL+"/paper/search", q)
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if string(body) != `{"n": 1}` {
			t.Errorf("body = %s", body)
		}
	}

	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", calls.Load())
	}

	// A different query is a different key
	if _, err := client.Get(context.Background(), server.URL+"/paper/search", url.Values{"query": []string{"y"}}); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("upstream calls = %d, want 2", calls.Load())
	}
}

func TestGet_ErrorsNotCached(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := DefaultConfig("semanticscholar", "TestApp/1.0.0")
	cfg.CacheTTL = time.Minute
	client := newTestClient(t, cfg)

	for i := 0; i < 2; i++ {
		if _, err := client.Get(context.Background(), server.URL, nil); !IsHTTPError(err) {
			t.Fatalf("expected HTTPError, got %v", err)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("upstream calls = %d, want 2", calls.Load())
	}
}

func TestGet_OnlyOKCached(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNonAuthoritativeInfo)
		w.Write([]byte(`{"data": []}`))
	}))
	defer server.Close()

	cfg := DefaultConfig("semanticscholar", "TestApp/1.0.0")
	cfg.CacheTTL = time.Minute
	client := newTestClient(t, cfg)

	for i := 0; i < 2; i++ {
		body, err := client.Get(context.Background(), server.URL+"/paper/search", nil)
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if string(body) != `{"data": []}` {
			t.Errorf("body = %s", body)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("upstream calls = %d, want 2 (203 must not be cached)", calls.Load())
	}
	if client.memory.Len() != 0 {
		t.Errorf("memory entries = %d, want 0", client.memory.Len())
	}
}

func TestPostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %s", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		var in map[string]string
		if err := json.Unmarshal(body, &in); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"echo": in["model"]})
	}))
	defer server.Close()

	client := newTestClient(t, DefaultConfig("pinecone", "TestApp/1.0.0"))

	var out map[string]string
	if err := client.PostJSON(context.Background(), server.URL+"/embed", map[string]string{"model": "m"}, &out); err != nil {
		t.Fatalf("PostJSON() failed: %v", err)
	}
	if out["echo"] != "m" {
		t.Errorf("echo = %q, want m", out["echo"])
	}
}

func TestDo_CooldownBlocksRequests(t *testing.T) {
	redisClient := setupTestRedis(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := DefaultConfig("semanticscholar", "TestApp/1.0.0")
	cfg.Redis = redisClient
	client := newTestClient(t, cfg)

	_, err := client.Get(context.Background(), server.URL, nil)
	if !IsHTTPError(err) {
		t.Fatalf("first request: expected HTTPError, got %v", err)
	}

	_, err = client.Get(context.Background(), server.URL, nil)
	if !errors.Is(err, ErrCoolingDown) {
		t.Fatalf("second request: expected ErrCoolingDown, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", calls.Load())
	}
}

func TestDo_CooldownLogsServiceOnce(t *testing.T) {
	redisClient := setupTestRedis(t)
	redisClient.Del(context.Background(), ratelimit.RedisKeyBlockedUntil("semanticscholar-logs"))

	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := DefaultConfig("semanticscholar-logs", "TestApp/1.0.0")
	cfg.Redis = redisClient
	client := newTestClient(t, cfg)

	client.Get(context.Background(), server.URL, nil)
	client.Get(context.Background(), server.URL, nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) < 2 {
		t.Fatalf("expected cooldown log lines, got %q", buf.String())
	}
	for _, line := range lines {
		if n := strings.Count(line, `"service":`); n != 1 {
			t.Errorf("line has %d service keys: %s", n, line)
		}
	}
}

func TestGet_RedisCacheSharedBetweenClients(t *testing.T) {
	redisClient := setupTestRedis(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	cfg := DefaultConfig("semanticscholar", "TestApp/1.0.0")
	cfg.Redis = redisClient
	cfg.CacheTTL = time.Minute

	first := newTestClient(t, cfg)
	second := newTestClient(t, cfg)

	if _, err := first.Get(context.Background(), server.URL+"/p", nil); err != nil {
		t.Fatalf("first Get() failed: %v", err)
	}
	body, err := second.Get(context.Background(), server.URL+"/p", nil)
	if err != nil {
		t.Fatalf("second Get() failed: %v", err)
	}
	if string(body) != `{"ok": true}` {
		t.Errorf("body = %s", body)
	}
	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", calls.Load())
	}
}
