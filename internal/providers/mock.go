package providers

import (
	"context"
	"encoding/json"
	"sync"
)

// MockLLM is a scriptable LLMClient for tests.
type MockLLM struct {
	mu sync.Mutex

	// ClassifyFunc overrides Classify when set.
	ClassifyFunc func(ctx context.Context, text string, labels []string, hints []string) (*ClassifyResult, error)

	// ExtractFunc overrides ExtractFacts when set.
	ExtractFunc func(ctx context.Context, text string, schema json.RawMessage) ([]json.RawMessage, error)

	ClassifyCalls int
	ExtractCalls  int
}

func (m *MockLLM) Name() string { return "mock" }

func (m *MockLLM) Classify(ctx context.Context, text string, labels []string, hints []string) (*ClassifyResult, error) {
	m.mu.Lock()
	m.ClassifyCalls++
	fn := m.ClassifyFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, text, labels, hints)
	}
	return &ClassifyResult{Label: "Other", Confidence: 0.5}, nil
}

func (m *MockLLM) ExtractFacts(ctx context.Context, text string, schema json.RawMessage) ([]json.RawMessage, error) {
	m.mu.Lock()
	m.ExtractCalls++
	fn := m.ExtractFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, text, schema)
	}
	return nil, nil
}

// MockEmbedder returns deterministic unit vectors derived from text content.
// Identical texts embed identically, which the fact-dedup tests rely on.
type MockEmbedder struct {
	Dimension int

	// EmbedFunc overrides Embed when set.
	EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

	mu    sync.Mutex
	Calls int
}

func (m *MockEmbedder) Dim() int {
	if m.Dimension == 0 {
		return 8
	}
	return m.Dimension
}

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.Calls++
	fn := m.EmbedFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, texts)
	}

	dim := m.Dim()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, dim)
		// Simple rolling hash spread across the vector, then normalized.
		var h uint64 = 1469598103934665603
		for _, b := range []byte(t) {
			h = (h ^ uint64(b)) * 1099511628211
			vec[int(h%uint64(dim))] += 1
		}
		var norm float32
		for _, v := range vec {
			norm += v * v
		}
		if norm > 0 {
			inv := 1 / sqrt32(norm)
			for j := range vec {
				vec[j] *= inv
			}
		} else {
			vec[0] = 1
		}
		out[i] = vec
	}
	return out, nil
}

func sqrt32(v float32) float32 {
	// Newton iterations are plenty for test vectors.
	x := v
	for i := 0; i < 16; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}
