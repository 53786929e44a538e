// Package providers wraps external model APIs behind small interfaces the
// pipeline components depend on. Implementations must be idempotent from the
// caller's view; retries are safe.
package providers

import (
	"context"
	"encoding/json"
)

// ClassifyResult is the outcome of a label selection call.
type ClassifyResult struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// LLMClient is the interface for classification and fact extraction calls.
type LLMClient interface {
	// Classify asks the model to choose one label from the closed set.
	// Hints carry boundary indicators or other context. The returned label
	// is not guaranteed to be in the set; callers clamp.
	Classify(ctx context.Context, text string, labels []string, hints []string) (*ClassifyResult, error)

	// ExtractFacts asks for strict JSON objects matching the given schema.
	// Items failing schema validation are dropped before return.
	ExtractFacts(ctx context.Context, text string, schema json.RawMessage) ([]json.RawMessage, error)

	// Name returns the client identifier (e.g., "openai").
	Name() string
}

// Embedder produces dense vectors of a fixed dimensionality.
type Embedder interface {
	// Embed returns one vector per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dim returns the vector dimensionality D.
	Dim() int
}

// TokenCounter reports the token count of a string. The chunker depends on
// this and nothing vendor-specific.
type TokenCounter func(s string) int
