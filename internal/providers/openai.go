package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/caselight/caselight/internal/types"
)

const (
	OpenAIName             = "openai"
	openAIDefaultChatModel = "gpt-4o-mini"
	openAIDefaultEmbed     = "text-embedding-3-small"
)

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey     string
	ChatModel  string
	EmbedModel string
	EmbedDim   int           // Vector dimensionality D
	RateLimit  float64       // Requests per second
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // Optional (tests)
	HTTPClient *http.Client  // Optional (tests)
	Logger     *slog.Logger
}

// OpenAIClient implements LLMClient and Embedder using the official SDK.
// Structured outputs are requested via prompt and validated locally, so the
// same code path works regardless of which backend serves the model.
type OpenAIClient struct {
	chatModel  string
	embedModel string
	embedDim   int
	limiter    *RateLimiter
	client     openai.Client
	logger     *slog.Logger
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.ChatModel == "" {
		cfg.ChatModel = openAIDefaultChatModel
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = openAIDefaultEmbed
	}
	if cfg.EmbedDim <= 0 {
		cfg.EmbedDim = 1536
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
		embedDim:   cfg.EmbedDim,
		limiter:    NewRateLimiter(cfg.RateLimit),
		client:     openai.NewClient(opts...),
		logger:     cfg.Logger.With("provider", OpenAIName),
	}
}

// Name returns the provider identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// Dim returns the embedding dimensionality.
func (c *OpenAIClient) Dim() int {
	return c.embedDim
}

const classifySystemPrompt = `You classify legal documents produced in discovery.
Choose exactly one label from the provided list. Respond with a single JSON
object: {"label": "<one of the labels>", "confidence": <0..1>}. Output nothing
but the JSON object.`

// Classify asks the model to choose one label from the closed set.
func (c *OpenAIClient) Classify(ctx context.Context, text string, labels []string, hints []string) (*ClassifyResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Labels: %s\n", strings.Join(labels, ", "))
	if len(hints) > 0 {
		fmt.Fprintf(&user, "Boundary indicators: %s\n", strings.Join(hints, "; "))
	}
	fmt.Fprintf(&user, "\nDocument text (truncated):\n%s", truncate(text, 6000))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(classifySystemPrompt),
			openai.UserMessage(user.String()),
		},
	})
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, types.Errorf(types.ErrKindComponentFailure, "openai returned no choices")
	}

	var result ClassifyResult
	raw := extractJSON(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, types.Errorf(types.ErrKindComponentFailure, "unparseable classify response: %v", err)
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	return &result, nil
}

const extractSystemPrompt = `You extract discrete factual statements from legal
discovery documents. Respond with a JSON array of objects, each matching the
schema the user provides. Include only facts literally supported by the text;
quote the supporting passage in source_snippet. Output nothing but the array.`

// ExtractFacts asks for strict JSON matching the given schema and drops items
// that fail validation.
func (c *OpenAIClient) ExtractFacts(ctx context.Context, text string, schema json.RawMessage) ([]json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var user strings.Builder
	fmt.Fprintf(&user, "JSON schema for each item:\n%s\n\nText:\n%s", schema, truncate(text, 12000))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(extractSystemPrompt),
			openai.UserMessage(user.String()),
		},
	})
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, types.Errorf(types.ErrKindComponentFailure, "openai returned no choices")
	}

	var items []json.RawMessage
	raw := extractJSON(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, types.Errorf(types.ErrKindComponentFailure, "unparseable extraction response: %v", err)
	}

	valid, err := FilterBySchema(items, schema)
	if err != nil {
		return nil, err
	}
	if dropped := len(items) - len(valid); dropped > 0 {
		c.logger.Debug("dropped schema-invalid facts", "dropped", dropped, "kept", len(valid))
	}
	return valid, nil
}

// Embed returns one vector per input, in order.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, types.Errorf(types.ErrKindComponentFailure,
			"embedding count mismatch: got %d, want %d", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		if len(vec) != c.embedDim {
			return nil, types.Errorf(types.ErrKindComponentFailure,
				"embedding dim %d, want %d", len(vec), c.embedDim)
		}
		out[d.Index] = vec
	}
	return out, nil
}

// mapOpenAIError classifies SDK errors into the pipeline's error kinds.
func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return types.WrapKind(types.ErrKindTransient, err)
		case apiErr.StatusCode >= 500:
			return types.WrapKind(types.ErrKindTransient, err)
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return types.WrapKind(types.ErrKindBackendUnavailable, err)
		}
		return types.WrapKind(types.ErrKindComponentFailure, err)
	}
	// Transport-level failures (timeouts, resets) are retryable.
	return types.WrapKind(types.ErrKindTransient, err)
}

// extractJSON strips markdown fences and surrounding prose from a model
// response, returning the outermost JSON value.
func extractJSON(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	// Fall back to the first bracket/brace if prose leaked in.
	if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		if i := strings.IndexAny(s, "{["); i >= 0 {
			s = s[i:]
		}
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
