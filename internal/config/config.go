// Package config provides configuration management for evermem.
// It loads settings from environment variables with the EVERMEM_ prefix,
// provides sensible defaults for all options, and optionally overlays a
// YAML config file on top of the environment values.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration settings for the evermem engine.
type Config struct {
	Storage       StorageConfig
	LLM           LLMConfig
	Retrieval     RetrievalConfig
	Fusion        FusionConfig
	Consolidation ConsolidationConfig
	Context       ContextConfig
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	Engine      string // Storage engine: sqlite, postgres (default: sqlite)
	SQLitePath  string // Path to the sqlite database file (default: ./data/evermem.db)
	PostgresDSN string // Postgres connection string
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	Provider          string  // ollama or openai (default: ollama)
	BaseURL           string  // provider base URL
	Model             string  // completion model
	EmbeddingModel    string  // embedding model
	APIKey            string  // API key for hosted providers
	RequestsPerSecond float64 // client-side rate limit, 0 disables (default: 0)
	EmbeddingCache    int     // LRU embedding cache size (default: 1024)
}

// RetrievalConfig controls the tiered retrieval orchestrator.
type RetrievalConfig struct {
	Mode                  string  // fast or accurate (default: accurate)
	SufficiencyConfidence float64 // minimum confidence to stop early (default: 0.7)
	EntityCoverage        float64 // named-entity coverage required at tier 2 (default: 0.7)
}

// FusionConfig controls hybrid retrieval weighting.
type FusionConfig struct {
	DirectWeight     float64 // default: 0.5
	VectorWeight     float64 // default: 0.2, only used when EnableVector is set
	GraphWeight      float64 // default: 0.5
	EnableVector     bool    // include the vector channel in fusion (default: false)
	VectorThreshold  float64 // minimum cosine similarity for vector hits (default: 0.4)
	GraphDepth       int     // maximum traversal depth (default: 2)
	GraphMinStrength float64 // minimum edge strength (default: 0.3)
}

// ConsolidationConfig controls batch near-duplicate merging.
type ConsolidationConfig struct {
	SimilarityThreshold float64 // cosine similarity to treat records as duplicates (default: 0.85)
	MaxMergesPerRun     int     // cap on merge operations per run (default: 20)
	MentionWeight       float64 // mention count weight in keeper scoring (default: 0.05)
	AgeWeight           float64 // age weight in keeper scoring (default: 0.01)
}

// ContextConfig controls assembled context documents.
type ContextConfig struct {
	TokenBudget      int     // total token budget (default: 2000)
	ProfileFraction  float64 // budget share for the profile section (default: 0.3)
	MemoryFraction   float64 // budget share for the memories section (default: 0.4)
	RelationFraction float64 // budget share for the relations section (default: 0.3)
}

// LoadConfig loads configuration from environment variables with defaults.
// If EVERMEM_CONFIG_FILE is set, that YAML file is overlaid on top.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()

	if path := os.Getenv("EVERMEM_CONFIG_FILE"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// buildBaseConfig constructs a Config from environment variables and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:      getEnv("EVERMEM_STORAGE_ENGINE", "sqlite"),
			SQLitePath:  getEnv("EVERMEM_SQLITE_PATH", "./data/evermem.db"),
			PostgresDSN: getEnv("EVERMEM_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			Provider:          getEnv("EVERMEM_LLM_PROVIDER", "ollama"),
			BaseURL:           getEnv("EVERMEM_LLM_BASE_URL", ""),
			Model:             getEnv("EVERMEM_LLM_MODEL", ""),
			EmbeddingModel:    getEnv("EVERMEM_EMBEDDING_MODEL", ""),
			APIKey:            getEnv("EVERMEM_LLM_API_KEY", ""),
			RequestsPerSecond: getEnvFloat("EVERMEM_LLM_RPS", 0),
			EmbeddingCache:    getEnvInt("EVERMEM_EMBEDDING_CACHE", 1024),
		},
		Retrieval: RetrievalConfig{
			Mode:                  getEnv("EVERMEM_RETRIEVAL_MODE", "accurate"),
			SufficiencyConfidence: getEnvFloat("EVERMEM_SUFFICIENCY_CONFIDENCE", 0.7),
			EntityCoverage:        getEnvFloat("EVERMEM_ENTITY_COVERAGE", 0.7),
		},
		Fusion: FusionConfig{
			DirectWeight:     getEnvFloat("EVERMEM_FUSION_DIRECT_WEIGHT", 0.5),
			VectorWeight:     getEnvFloat("EVERMEM_FUSION_VECTOR_WEIGHT", 0.2),
			GraphWeight:      getEnvFloat("EVERMEM_FUSION_GRAPH_WEIGHT", 0.5),
			EnableVector:     getEnvBool("EVERMEM_FUSION_ENABLE_VECTOR", false),
			VectorThreshold:  getEnvFloat("EVERMEM_FUSION_VECTOR_THRESHOLD", 0.4),
			GraphDepth:       getEnvInt("EVERMEM_FUSION_GRAPH_DEPTH", 2),
			GraphMinStrength: getEnvFloat("EVERMEM_FUSION_GRAPH_MIN_STRENGTH", 0.3),
		},
		Consolidation: ConsolidationConfig{
			SimilarityThreshold: getEnvFloat("EVERMEM_CONSOLIDATION_THRESHOLD", 0.85),
			MaxMergesPerRun:     getEnvInt("EVERMEM_CONSOLIDATION_MAX_MERGES", 20),
			MentionWeight:       getEnvFloat("EVERMEM_CONSOLIDATION_MENTION_WEIGHT", 0.05),
			AgeWeight:           getEnvFloat("EVERMEM_CONSOLIDATION_AGE_WEIGHT", 0.01),
		},
		Context: ContextConfig{
			TokenBudget:      getEnvInt("EVERMEM_CONTEXT_TOKEN_BUDGET", 2000),
			ProfileFraction:  getEnvFloat("EVERMEM_CONTEXT_PROFILE_FRACTION", 0.3),
			MemoryFraction:   getEnvFloat("EVERMEM_CONTEXT_MEMORY_FRACTION", 0.4),
			RelationFraction: getEnvFloat("EVERMEM_CONTEXT_RELATION_FRACTION", 0.3),
		},
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	switch c.Storage.Engine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}
	if c.Storage.Engine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: postgres engine requires EVERMEM_POSTGRES_DSN")
	}

	switch c.Retrieval.Mode {
	case "fast", "accurate":
	default:
		return fmt.Errorf("config: unknown retrieval mode %q", c.Retrieval.Mode)
	}

	if c.Context.TokenBudget < 1 {
		return fmt.Errorf("config: context token budget must be positive")
	}

	fractions := c.Context.ProfileFraction + c.Context.MemoryFraction + c.Context.RelationFraction
	if fractions > 1.0001 {
		return fmt.Errorf("config: context section fractions sum to %.2f, must not exceed 1", fractions)
	}

	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
