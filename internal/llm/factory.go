package llm

import "fmt"

// ProviderConfig describes which provider to use and how to reach it.
type ProviderConfig struct {
	Provider          string // ollama (default) or openai
	APIKey            string
	Model             string
	EmbeddingModel    string
	BaseURL           string
	RequestsPerSecond float64
	CacheSize         int
}

// NewTextGenerator creates the TextGenerator for the configured provider.
func NewTextGenerator(cfg ProviderConfig) (TextGenerator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			BaseURL:           cfg.BaseURL,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}), nil
	default:
		return nil, fmt.Errorf("llm: unsupported provider: %q", cfg.Provider)
	}
}

// NewEmbeddingGenerator creates the EmbeddingGenerator for the configured
// provider, wrapped with an LRU cache.
func NewEmbeddingGenerator(cfg ProviderConfig) (EmbeddingGenerator, error) {
	var inner EmbeddingGenerator
	switch cfg.Provider {
	case "openai":
		inner = NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{
			APIKey:            cfg.APIKey,
			Model:             cfg.EmbeddingModel,
			BaseURL:           cfg.BaseURL,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
	case "ollama", "":
		model := cfg.EmbeddingModel
		if model == "" {
			model = "nomic-embed-text"
		}
		inner = NewOllamaClient(OllamaConfig{
			BaseURL:           cfg.BaseURL,
			Model:             model,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
	default:
		return nil, fmt.Errorf("llm: unsupported provider: %q", cfg.Provider)
	}

	return NewCachedEmbedder(inner, cfg.CacheSize)
}
