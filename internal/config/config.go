package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain"
)

// Config holds the cuspera retrieval service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Auth       AuthConfig       `yaml:"auth"`
	Dataset    DatasetConfig    `yaml:"dataset"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the dense-store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds the embedding provider settings. APIKey is the one
// required credential of the core.
type EmbeddingConfig struct {
	Provider            string `yaml:"provider"`
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
	CacheEnabled        bool   `yaml:"cache_enabled"`
}

// RetrievalConfig holds the hybrid fusion settings.
type RetrievalConfig struct {
	Collection          string   `yaml:"collection"`
	UseHybrid           *bool    `yaml:"use_hybrid"`
	SemanticWeight      *float64 `yaml:"semantic_weight"`
	KeywordWeight       *float64 `yaml:"keyword_weight"`
	DefaultTopK         int      `yaml:"default_top_k"`
	CandidateMultiplier int      `yaml:"candidate_multiplier"`
	CandidateCap        int      `yaml:"candidate_cap"`
	KeywordDivisor      float64  `yaml:"keyword_normalization_divisor"`
}

// ResilienceConfig holds embedding retry and circuit-breaker settings.
type ResilienceConfig struct {
	MaxAttempts           int     `yaml:"max_attempts"`
	InitialBackoffMs      int     `yaml:"initial_backoff_ms"`
	MaxBackoffMs          int     `yaml:"max_backoff_ms"`
	BreakerMinRequests    uint32  `yaml:"breaker_min_requests"`
	BreakerFailureRatio   float64 `yaml:"breaker_failure_ratio"`
	BreakerOpenTimeoutSec int     `yaml:"breaker_open_timeout_sec"`
}

// DatasetConfig points at an optional on-disk dataset to bulk-index at startup.
type DatasetConfig struct {
	Path string `yaml:"path"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
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

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = domain.DefaultVectorConfig().Model
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = domain.DefaultVectorConfig().Dimensions
	}
	if c.Retrieval.Collection == "" {
		c.Retrieval.Collection = "products"
	}
	if c.Retrieval.UseHybrid == nil {
		t := true
		c.Retrieval.UseHybrid = &t
	}
	if c.Retrieval.SemanticWeight == nil {
		w := 0.6
		c.Retrieval.SemanticWeight = &w
	}
	if c.Retrieval.KeywordWeight == nil {
		w := 0.4
		c.Retrieval.KeywordWeight = &w
	}
	if c.Retrieval.DefaultTopK <= 0 {
		c.Retrieval.DefaultTopK = 5
	}
	if c.Retrieval.CandidateMultiplier <= 0 {
		c.Retrieval.CandidateMultiplier = 2
	}
	if c.Retrieval.CandidateCap <= 0 {
		c.Retrieval.CandidateCap = 20
	}
	if c.Retrieval.KeywordDivisor <= 0 {
		c.Retrieval.KeywordDivisor = 10.0
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key is required")
	}
	if *c.Retrieval.SemanticWeight < 0 || *c.Retrieval.KeywordWeight < 0 {
		return fmt.Errorf("retrieval weights must be non-negative: %w", domain.ErrConfiguration)
	}
	if *c.Retrieval.SemanticWeight == 0 && *c.Retrieval.KeywordWeight == 0 {
		return fmt.Errorf("at least one retrieval weight must be positive: %w", domain.ErrConfiguration)
	}
	if c.Resilience.BreakerFailureRatio < 0 || c.Resilience.BreakerFailureRatio > 1 {
		return fmt.Errorf("resilience.breaker_failure_ratio must be in [0, 1], got %g",
			c.Resilience.BreakerFailureRatio)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
