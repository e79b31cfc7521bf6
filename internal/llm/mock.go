package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockTextGenerator returns scripted responses in order. Used by engine tests.
type MockTextGenerator struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Prompts   []string
	next      int
}

// Complete records the prompt and returns the next scripted response.
func (m *MockTextGenerator) Complete(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	if m.next >= len(m.Responses) {
		return "", fmt.Errorf("mock: no response scripted for call %d", m.next+1)
	}
	resp := m.Responses[m.next]
	m.next++
	return resp, nil
}

// GetModel returns a fixed mock model name.
func (m *MockTextGenerator) GetModel() string { return "mock" }

// MockEmbedder returns fixed embeddings by input text, with a fallback
// default. Call counts are tracked so tests can assert cache behaviour.
type MockEmbedder struct {
	mu      sync.Mutex
	Vectors map[string][]float32
	Default []float32
	Err     error
	Calls   int
}

// Embed returns the vector registered for text, or Default.
func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if vec, ok := m.Vectors[text]; ok {
		return vec, nil
	}
	if m.Default != nil {
		return m.Default, nil
	}
	return []float32{0, 0, 0}, nil
}

// GetModel returns a fixed mock model name.
func (m *MockEmbedder) GetModel() string { return "mock-embed" }
