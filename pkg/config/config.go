// Package config loads the retrieval-services configuration from an
// optional YAML file and environment overrides.
//
// Precedence, lowest first:
//  1. Defaults (Default)
//  2. YAML file passed to Load
//  3. Environment variables (SEMANTIC_SCHOLAR_API_KEY, PINECONE_API_KEY,
//     REDIS_URL, LOG_LEVEL, USER_AGENT, PORT)
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/retrieval-services/pkg/logging"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration.
type Config struct {
	UserAgent       string         `yaml:"user_agent"`
	Log             LogConfig      `yaml:"log"`
	HTTP            HTTPConfig     `yaml:"http"`
	Redis           RedisConfig    `yaml:"redis"`
	Cache           CacheConfig    `yaml:"cache"`
	SemanticScholar ScholarConfig  `yaml:"semantic_scholar"`
	Pinecone        PineconeConfig `yaml:"pinecone"`
	Server          ServerConfig   `yaml:"server"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// HTTPConfig configures upstream requests.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// RedisConfig configures the optional shared cache and cooldown store.
// An empty URL disables Redis.
type RedisConfig struct {
	// URL is either redis://[user:pass@]host:port/db or host:port
	URL string `yaml:"url"`
}

// CacheConfig configures response caching. A zero TTL disables it.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MemorySize int           `yaml:"memory_size"`
}

// ScholarConfig configures the Semantic Scholar retriever.
type ScholarConfig struct {
	BaseURL    string   `yaml:"base_url"`
	APIKey     string   `yaml:"api_key"`
	NumResults int      `yaml:"num_results"`
	Fields     []string `yaml:"fields"`
	Retries    int      `yaml:"retries"`
}

// PineconeConfig configures the Pinecone models.
type PineconeConfig struct {
	BaseURL            string `yaml:"base_url"`
	APIKey             string `yaml:"api_key"`
	SparseModel        string `yaml:"sparse_model"`
	DenseModel         string `yaml:"dense_model"`
	RerankModel        string `yaml:"rerank_model"`
	EmbeddingCacheSize int    `yaml:"embedding_cache_size"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		UserAgent: "retrieval-services/0.1.0",
		Log:       LogConfig{Level: "info"},
		HTTP:      HTTPConfig{Timeout: 30 * time.Second},
		Cache:     CacheConfig{TTL: 0, MemorySize: 512},
		SemanticScholar: ScholarConfig{
			BaseURL:    "https://api.semanticscholar.org/graph/v1",
			NumResults: 100,
			Fields:     []string{"title", "abstract"},
			Retries:    3,
		},
		Pinecone: PineconeConfig{
			BaseURL:            "https://api.pinecone.io",
			SparseModel:        "pinecone-sparse-english-v0",
			DenseModel:         "multilingual-e5-large",
			RerankModel:        "pinecone-rerank-v0",
			EmbeddingCacheSize: 10000,
		},
		Server: ServerConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes the file over the current values; keys absent from the
// file keep them.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	c.SemanticScholar.APIKey = getEnv("SEMANTIC_SCHOLAR_API_KEY", c.SemanticScholar.APIKey)
	c.Pinecone.APIKey = getEnv("PINECONE_API_KEY", c.Pinecone.APIKey)
	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.UserAgent = getEnv("USER_AGENT", c.UserAgent)
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.UserAgent) == "" {
		errs = append(errs, errors.New("user_agent is required"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.HTTP.Timeout < 0 {
		errs = append(errs, fmt.Errorf("http.timeout must be non-negative, got %s", c.HTTP.Timeout))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be non-negative, got %s", c.Cache.TTL))
	}
	if c.Cache.MemorySize < 0 {
		errs = append(errs, fmt.Errorf("cache.memory_size must be non-negative, got %d", c.Cache.MemorySize))
	}
	if c.SemanticScholar.NumResults <= 0 {
		errs = append(errs, fmt.Errorf("semantic_scholar.num_results must be positive, got %d", c.SemanticScholar.NumResults))
	}
	if c.SemanticScholar.Retries < 1 {
		errs = append(errs, fmt.Errorf("semantic_scholar.retries must be at least 1, got %d", c.SemanticScholar.Retries))
	}
	if c.Pinecone.EmbeddingCacheSize < 0 {
		errs = append(errs, fmt.Errorf("pinecone.embedding_cache_size must be non-negative, got %d", c.Pinecone.EmbeddingCacheSize))
	}
	if c.Redis.URL != "" {
		if _, err := c.Redis.Options(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Options converts the URL into go-redis options.
func (r RedisConfig) Options() (*redis.Options, error) {
	if !strings.Contains(r.URL, "://") {
		return &redis.Options{Addr: r.URL}, nil
	}
	opts, err := redis.ParseURL(r.URL)
	if err != nil {
		return nil, fmt.Errorf("redis.url: %w", err)
	}
	return opts, nil
}

// LogLevel returns the validated log level.
func (c *Config) LogLevel() logging.LogLevel {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return logging.LevelInfo
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
