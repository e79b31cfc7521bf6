package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config with pointer fields so that only keys present
// in the YAML file override the environment values.
type fileConfig struct {
	Storage struct {
		Engine      *string `yaml:"engine"`
		SQLitePath  *string `yaml:"sqlite_path"`
		PostgresDSN *string `yaml:"postgres_dsn"`
	} `yaml:"storage"`
	LLM struct {
		Provider          *string  `yaml:"provider"`
		BaseURL           *string  `yaml:"base_url"`
		Model             *string  `yaml:"model"`
		EmbeddingModel    *string  `yaml:"embedding_model"`
		APIKey            *string  `yaml:"api_key"`
		RequestsPerSecond *float64 `yaml:"requests_per_second"`
		EmbeddingCache    *int     `yaml:"embedding_cache"`
	} `yaml:"llm"`
	Retrieval struct {
		Mode                  *string  `yaml:"mode"`
		SufficiencyConfidence *float64 `yaml:"sufficiency_confidence"`
		EntityCoverage        *float64 `yaml:"entity_coverage"`
	} `yaml:"retrieval"`
	Fusion struct {
		DirectWeight     *float64 `yaml:"direct_weight"`
		VectorWeight     *float64 `yaml:"vector_weight"`
		GraphWeight      *float64 `yaml:"graph_weight"`
		EnableVector     *bool    `yaml:"enable_vector"`
		VectorThreshold  *float64 `yaml:"vector_threshold"`
		GraphDepth       *int     `yaml:"graph_depth"`
		GraphMinStrength *float64 `yaml:"graph_min_strength"`
	} `yaml:"fusion"`
	Consolidation struct {
		SimilarityThreshold *float64 `yaml:"similarity_threshold"`
		MaxMergesPerRun     *int     `yaml:"max_merges_per_run"`
		MentionWeight       *float64 `yaml:"mention_weight"`
		AgeWeight           *float64 `yaml:"age_weight"`
	} `yaml:"consolidation"`
	Context struct {
		TokenBudget      *int     `yaml:"token_budget"`
		ProfileFraction  *float64 `yaml:"profile_fraction"`
		MemoryFraction   *float64 `yaml:"memory_fraction"`
		RelationFraction *float64 `yaml:"relation_fraction"`
	} `yaml:"context"`
}

// ApplyFile overlays a YAML config file on top of the current values.
// Keys missing from the file keep their existing values.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	overlayString(&c.Storage.Engine, fc.Storage.Engine)
	overlayString(&c.Storage.SQLitePath, fc.Storage.SQLitePath)
	overlayString(&c.Storage.PostgresDSN, fc.Storage.PostgresDSN)

	overlayString(&c.LLM.Provider, fc.LLM.Provider)
	overlayString(&c.LLM.BaseURL, fc.LLM.BaseURL)
	overlayString(&c.LLM.Model, fc.LLM.Model)
	overlayString(&c.LLM.EmbeddingModel, fc.LLM.EmbeddingModel)
	overlayString(&c.LLM.APIKey, fc.LLM.APIKey)
	overlayFloat(&c.LLM.RequestsPerSecond, fc.LLM.RequestsPerSecond)
	overlayInt(&c.LLM.EmbeddingCache, fc.LLM.EmbeddingCache)

	overlayString(&c.Retrieval.Mode, fc.Retrieval.Mode)
	overlayFloat(&c.Retrieval.SufficiencyConfidence, fc.Retrieval.SufficiencyConfidence)
	overlayFloat(&c.Retrieval.EntityCoverage, fc.Retrieval.EntityCoverage)

	overlayFloat(&c.Fusion.DirectWeight, fc.Fusion.DirectWeight)
	overlayFloat(&c.Fusion.VectorWeight, fc.Fusion.VectorWeight)
	overlayFloat(&c.Fusion.GraphWeight, fc.Fusion.GraphWeight)
	overlayBool(&c.Fusion.EnableVector, fc.Fusion.EnableVector)
	overlayFloat(&c.Fusion.VectorThreshold, fc.Fusion.VectorThreshold)
	overlayInt(&c.Fusion.GraphDepth, fc.Fusion.GraphDepth)
	overlayFloat(&c.Fusion.GraphMinStrength, fc.Fusion.GraphMinStrength)

	overlayFloat(&c.Consolidation.SimilarityThreshold, fc.Consolidation.SimilarityThreshold)
	overlayInt(&c.Consolidation.MaxMergesPerRun, fc.Consolidation.MaxMergesPerRun)
	overlayFloat(&c.Consolidation.MentionWeight, fc.Consolidation.MentionWeight)
	overlayFloat(&c.Consolidation.AgeWeight, fc.Consolidation.AgeWeight)

	overlayInt(&c.Context.TokenBudget, fc.Context.TokenBudget)
	overlayFloat(&c.Context.ProfileFraction, fc.Context.ProfileFraction)
	overlayFloat(&c.Context.MemoryFraction, fc.Context.MemoryFraction)
	overlayFloat(&c.Context.RelationFraction, fc.Context.RelationFraction)

	return nil
}

func overlayString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func overlayInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func overlayFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func overlayBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
