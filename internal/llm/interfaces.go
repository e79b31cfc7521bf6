// Package llm provides the language-model clients used for memory
// decisions, summary merging, and embedding generation. All network
// calls are wrapped with circuit breaker protection and client-side
// rate limiting.
package llm

import (
	"context"
	"errors"
)

// ErrUpstream marks provider-side failures: transport errors, non-200
// responses, and malformed provider output. Engines degrade fail-soft on it.
var ErrUpstream = errors.New("upstream provider error")

// TextGenerator is the interface for single-string LLM completion.
// Decision, sufficiency, and merge prompts all use this style.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator generates vector embeddings for text.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}
