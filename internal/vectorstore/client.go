// Package vectorstore persists chunks and facts in Qdrant and performs
// case-isolated hybrid search.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/caselight/caselight/internal/types"
)

// Sentinel errors for the vectorstore package.
var (
	// ErrUnhealthy is returned when the Qdrant health check fails.
	ErrUnhealthy = errors.New("qdrant health check failed")
)

// Client is a thin Qdrant REST client. The Store is its only caller; the
// isolation guard lives there, not here.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a new Qdrant client.
func NewClient(url string) *Client {
	return &Client{
		url: strings.TrimSuffix(url, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiResponse is the envelope Qdrant wraps every result in.
type apiResponse struct {
	Status json.RawMessage `json:"status,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// statusError is the error form of the status field.
type statusError struct {
	Error string `json:"error"`
}

// HealthCheck checks if Qdrant is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.url+"/healthz", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnhealthy, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// do sends a JSON request and decodes the result envelope into out (which
// may be nil when the caller only cares about success).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.WrapKind(types.ErrKindTransient, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.WrapKind(types.ErrKindTransient, fmt.Errorf("failed to read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return types.WrapKind(types.ErrKindNotFound, fmt.Errorf("%s %s: %s", method, path, summarize(respBody)))
	case resp.StatusCode >= 500:
		return types.WrapKind(types.ErrKindTransient,
			fmt.Errorf("qdrant server error (status %d): %s", resp.StatusCode, summarize(respBody)))
	case resp.StatusCode >= 400:
		return types.Errorf(types.ErrKindComponentFailure,
			"qdrant error (status %d): %s", resp.StatusCode, summarize(respBody))
	}

	if out == nil {
		return nil
	}
	var env apiResponse
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w (body: %s)", err, summarize(respBody))
	}
	if len(env.Result) == 0 {
		return fmt.Errorf("qdrant returned no result (status %d)", resp.StatusCode)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return nil
}

func summarize(body []byte) string {
	var env struct {
		Status statusError `json:"status"`
	}
	if json.Unmarshal(body, &env) == nil && env.Status.Error != "" {
		return env.Status.Error
	}
	s := string(body)
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}

// CollectionExists reports whether a collection exists.
func (c *Client) CollectionExists(ctx context.Context, name string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	if err := c.do(ctx, "GET", "/collections/"+name+"/exists", nil, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// CreateCollection creates a collection with a named dense vector and,
// optionally, named sparse vectors. Idempotent callers should check
// CollectionExists first.
func (c *Client) CreateCollection(ctx context.Context, name string, dim int, sparseNames ...string) error {
	body := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     dim,
				"distance": "Cosine",
			},
		},
	}
	if len(sparseNames) > 0 {
		sparse := make(map[string]any, len(sparseNames))
		for _, n := range sparseNames {
			sparse[n] = map[string]any{}
		}
		body["sparse_vectors"] = sparse
	}
	return c.do(ctx, "PUT", "/collections/"+name, body, nil)
}

// CreatePayloadIndex creates a payload index. Qdrant treats repeated
// creation of the same index as a no-op.
func (c *Client) CreatePayloadIndex(ctx context.Context, collection, field, schema string) error {
	body := map[string]any{
		"field_name":   field,
		"field_schema": schema,
	}
	return c.do(ctx, "PUT", "/collections/"+collection+"/index?wait=true", body, nil)
}

// Point is one upsert row: a deterministic id, named vectors, and payload.
type Point struct {
	ID      string         `json:"id"`
	Vector  map[string]any `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

// SparseVector is Qdrant's wire form of an index→weight map.
type SparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

// UpsertPoints writes points with wait semantics so a successful return
// means the points are durable.
func (c *Client) UpsertPoints(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{"points": points}
	return c.do(ctx, "PUT", "/collections/"+collection+"/points?wait=true", body, nil)
}

// ScoredPoint is one search hit.
type ScoredPoint struct {
	ID      string          `json:"id"`
	Score   float64         `json:"score"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// QueryDense runs a dense similarity query against the named dense vector.
func (c *Client) QueryDense(ctx context.Context, collection string, vec []float32, filter map[string]any, limit int) ([]ScoredPoint, error) {
	body := map[string]any{
		"query":        vec,
		"using":        denseVectorName,
		"limit":        limit,
		"with_payload": true,
	}
	if filter != nil {
		body["filter"] = filter
	}
	return c.query(ctx, collection, body)
}

// QuerySparse runs a sparse similarity query against a named sparse vector.
func (c *Client) QuerySparse(ctx context.Context, collection, using string, vec SparseVector, filter map[string]any, limit int) ([]ScoredPoint, error) {
	body := map[string]any{
		"query":        vec,
		"using":        using,
		"limit":        limit,
		"with_payload": true,
	}
	if filter != nil {
		body["filter"] = filter
	}
	return c.query(ctx, collection, body)
}

func (c *Client) query(ctx context.Context, collection string, body map[string]any) ([]ScoredPoint, error) {
	var out struct {
		Points []ScoredPoint `json:"points"`
	}
	if err := c.do(ctx, "POST", "/collections/"+collection+"/points/query", body, &out); err != nil {
		return nil, err
	}
	return out.Points, nil
}

// Record is one scroll row.
type Record struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Scroll pages through points matching filter. offset is the opaque next
// cursor from the previous page, or nil for the first page.
func (c *Client) Scroll(ctx context.Context, collection string, filter map[string]any, limit int, offset any) ([]Record, any, error) {
	body := map[string]any{
		"limit":        limit,
		"with_payload": true,
	}
	if filter != nil {
		body["filter"] = filter
	}
	if offset != nil {
		body["offset"] = offset
	}
	var out struct {
		Points []Record `json:"points"`
		Next   any      `json:"next_page_offset"`
	}
	if err := c.do(ctx, "POST", "/collections/"+collection+"/points/scroll", body, &out); err != nil {
		return nil, nil, err
	}
	return out.Points, out.Next, nil
}

// CountPoints counts points matching filter exactly.
func (c *Client) CountPoints(ctx context.Context, collection string, filter map[string]any) (int, error) {
	body := map[string]any{"exact": true}
	if filter != nil {
		body["filter"] = filter
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, "POST", "/collections/"+collection+"/points/count", body, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// DeletePoints removes all points matching filter.
func (c *Client) DeletePoints(ctx context.Context, collection string, filter map[string]any) error {
	body := map[string]any{"filter": filter}
	return c.do(ctx, "POST", "/collections/"+collection+"/points/delete?wait=true", body, nil)
}

// SetPayload merges payload keys into all points matching filter or ids.
func (c *Client) SetPayload(ctx context.Context, collection string, ids []string, payload map[string]any) error {
	body := map[string]any{
		"points":  ids,
		"payload": payload,
	}
	return c.do(ctx, "POST", "/collections/"+collection+"/points/payload?wait=true", body, nil)
}

// GetPoints retrieves points by id with payload and vectors.
func (c *Client) GetPoints(ctx context.Context, collection string, ids []string) ([]RetrievedPoint, error) {
	body := map[string]any{
		"ids":          ids,
		"with_payload": true,
		"with_vector":  true,
	}
	var out []RetrievedPoint
	if err := c.do(ctx, "POST", "/collections/"+collection+"/points", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RetrievedPoint is one row from a point lookup, vectors included.
type RetrievedPoint struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Vector  json.RawMessage `json:"vector,omitempty"`
}

// DenseVector extracts the named dense vector from a retrieved point.
func (p *RetrievedPoint) DenseVector() []float32 {
	if len(p.Vector) == 0 {
		return nil
	}
	var named map[string]json.RawMessage
	if err := json.Unmarshal(p.Vector, &named); err == nil {
		if raw, ok := named[denseVectorName]; ok {
			var vec []float32
			if json.Unmarshal(raw, &vec) == nil {
				return vec
			}
		}
		return nil
	}
	var vec []float32
	if json.Unmarshal(p.Vector, &vec) == nil {
		return vec
	}
	return nil
}
