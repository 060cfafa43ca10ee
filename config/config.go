package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Crawler   CrawlerConfig   `yaml:"crawler"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Storage   StorageConfig   `yaml:"storage"`
	CORS      CORSConfig      `yaml:"cors"`
}

type AppConfig struct {
	Env      string `yaml:"env"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

type CrawlerConfig struct {
	MaxDepth       int    `yaml:"max_depth"`
	MaxPages       int    `yaml:"max_pages"`
	MaxTextPerPage int    `yaml:"max_text_per_page"` // runes, 0 = unlimited
	TimeoutSec     int    `yaml:"timeout_sec"`
	UserAgent      string `yaml:"user_agent"`
	ProxyURL       string `yaml:"proxy_url"`
}

// Timeout returns the per-fetch timeout.
func (c CrawlerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

type ChunkingConfig struct {
	Size      int `yaml:"size"`
	Overlap   int `yaml:"overlap"`
	MaxChunks int `yaml:"max_chunks"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // tei, openai
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	BatchSize int    `yaml:"batch_size"`
}

type LLMConfig struct {
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
}

type RetrievalConfig struct {
	Policy string  `yaml:"policy"` // similarity, mmr
	K      int     `yaml:"k"`
	FetchK int     `yaml:"fetch_k"`
	Lambda float64 `yaml:"lambda"`
}

type StorageConfig struct {
	Root      string       `yaml:"root"`
	Backend   string       `yaml:"backend"` // flat, qdrant
	CacheSize int          `yaml:"cache_size"`
	Qdrant    QdrantConfig `yaml:"qdrant"`
}

type QdrantConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads .env (if present) and then config/<env>.yaml, expanding ${VAR}
// references from the environment.
func Load(env string) (*Config, error) {
	_ = godotenv.Load()

	path := filepath.Join("config", env+".yaml")
	if p := os.Getenv("WEBRAG_CONFIG"); p != "" {
		path = p
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if cfg.App.Env == "" {
		cfg.App.Env = env
	}
	return cfg, nil
}

// Parse decodes YAML configuration, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := baseline()
	if err := yaml.Unmarshal(expandEnvVars(data), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) *Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := baseline()
	cfg.App.Env = "local"
	cfg.ApplyDefaults()
	return &cfg
}

// baseline holds defaults for fields where zero is a meaningful setting, so
// they are seeded before decoding instead of filled in afterwards.
func baseline() Config {
	return Config{
		Crawler:   CrawlerConfig{MaxDepth: 1},
		Chunking:  ChunkingConfig{Overlap: 100, MaxChunks: 2000},
		LLM:       LLMConfig{Temperature: 0.3},
		Retrieval: RetrievalConfig{Lambda: 0.5},
	}
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.App.Port == 0 {
		c.App.Port = 8000
	}

	if c.Crawler.MaxPages == 0 {
		c.Crawler.MaxPages = 10
	}
	if c.Crawler.TimeoutSec <= 0 {
		c.Crawler.TimeoutSec = 8
	}
	if c.Crawler.UserAgent == "" {
		c.Crawler.UserAgent = "Mozilla/5.0"
	}

	if c.Chunking.Size == 0 {
		c.Chunking.Size = 800
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "tei"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if c.Embedding.BaseURL == "" && c.Embedding.Provider == "tei" {
		c.Embedding.BaseURL = "http://localhost:8080"
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 32
	}

	if c.LLM.Model == "" {
		c.LLM.Model = "llama-3.1-8b-instant"
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.groq.com/openai/v1"
	}

	if c.Retrieval.Policy == "" {
		c.Retrieval.Policy = "similarity"
	}
	if c.Retrieval.K == 0 {
		c.Retrieval.K = 4
	}
	if c.Retrieval.FetchK == 0 {
		c.Retrieval.FetchK = 20
	}

	if c.Storage.Root == "" {
		c.Storage.Root = "./data"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "flat"
	}
	if c.Storage.Qdrant.Host == "" {
		c.Storage.Qdrant.Host = "localhost"
	}
	if c.Storage.Qdrant.Port == 0 {
		c.Storage.Qdrant.Port = 6334
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("app.port must be between 1 and 65535, got %d", c.App.Port)
	}
	if c.Crawler.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0, got %d", c.Crawler.MaxDepth)
	}
	if c.Crawler.MaxPages < 1 {
		return fmt.Errorf("crawler.max_pages must be >= 1, got %d", c.Crawler.MaxPages)
	}
	if c.Crawler.MaxTextPerPage < 0 {
		return fmt.Errorf("crawler.max_text_per_page must be >= 0, got %d", c.Crawler.MaxTextPerPage)
	}
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be > 0, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, %d), got %d", c.Chunking.Size, c.Chunking.Overlap)
	}
	if c.Chunking.MaxChunks < 0 {
		return fmt.Errorf("chunking.max_chunks must be >= 0, got %d", c.Chunking.MaxChunks)
	}
	switch c.Embedding.Provider {
	case "tei", "openai":
	default:
		return fmt.Errorf("embedding.provider must be \"tei\" or \"openai\", got %q", c.Embedding.Provider)
	}
	switch c.Retrieval.Policy {
	case "similarity", "mmr":
	default:
		return fmt.Errorf("retrieval.policy must be \"similarity\" or \"mmr\", got %q", c.Retrieval.Policy)
	}
	if c.Retrieval.K < 1 {
		return fmt.Errorf("retrieval.k must be >= 1, got %d", c.Retrieval.K)
	}
	if c.Retrieval.FetchK < c.Retrieval.K {
		return fmt.Errorf("retrieval.fetch_k (%d) must be >= retrieval.k (%d)", c.Retrieval.FetchK, c.Retrieval.K)
	}
	if c.Retrieval.Lambda < 0 || c.Retrieval.Lambda > 1 {
		return fmt.Errorf("retrieval.lambda must be in [0, 1], got %v", c.Retrieval.Lambda)
	}
	switch c.Storage.Backend {
	case "flat", "qdrant":
	default:
		return fmt.Errorf("storage.backend must be \"flat\" or \"qdrant\", got %q", c.Storage.Backend)
	}
	if c.Storage.CacheSize < 0 {
		return fmt.Errorf("storage.cache_size must be >= 0, got %d", c.Storage.CacheSize)
	}
	return nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		name, def, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(name)
		if val == "" && hasDefault {
			val = def
		}
		return []byte(val)
	})
}
