package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/caselight/caselight/internal/types"
)

// factPayload is the stored form of a fact. The vector next to it embeds
// Content; edits re-embed.
type factPayload struct {
	CaseName       string              `json:"caseName"`
	DocumentID     string              `json:"documentId"`
	ChunkIDs       []string            `json:"chunkIds"`
	Content        string              `json:"content"`
	Category       string              `json:"category"`
	Entities       map[string][]string `json:"entities,omitempty"`
	DateReferences []types.DateRef     `json:"dateReferences,omitempty"`
	Confidence     float64             `json:"confidence"`
	SourceSnippet  string              `json:"sourceSnippet,omitempty"`
	Page           int                 `json:"page"`
	BBox           []float64           `json:"bbox,omitempty"`
	IsEdited       bool                `json:"isEdited"`
	IsDeleted      bool                `json:"isDeleted"`
	EditHistory    []types.FactEdit    `json:"editHistory,omitempty"`
	ReviewStatus   string              `json:"reviewStatus,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
}

func toFactPayload(f *types.Fact) *factPayload {
	return &factPayload{
		CaseName:       f.CaseName,
		DocumentID:     f.DocumentID,
		ChunkIDs:       f.ChunkIDs,
		Content:        f.Content,
		Category:       string(f.Category),
		Entities:       f.Entities,
		DateReferences: f.DateReferences,
		Confidence:     f.Confidence,
		SourceSnippet:  f.SourceSnippet,
		Page:           f.Page,
		BBox:           f.BBox,
		IsEdited:       f.IsEdited,
		IsDeleted:      f.IsDeleted,
		EditHistory:    f.EditHistory,
		ReviewStatus:   f.ReviewStatus,
		CreatedAt:      f.CreatedAt,
	}
}

func (p *factPayload) toFact(id string) *types.Fact {
	return &types.Fact{
		ID:             id,
		CaseName:       p.CaseName,
		DocumentID:     p.DocumentID,
		ChunkIDs:       p.ChunkIDs,
		Content:        p.Content,
		Category:       types.FactCategory(p.Category),
		Entities:       p.Entities,
		DateReferences: p.DateReferences,
		Confidence:     p.Confidence,
		SourceSnippet:  p.SourceSnippet,
		Page:           p.Page,
		BBox:           p.BBox,
		IsEdited:       p.IsEdited,
		IsDeleted:      p.IsDeleted,
		EditHistory:    p.EditHistory,
		ReviewStatus:   p.ReviewStatus,
		CreatedAt:      p.CreatedAt,
	}
}

// UpsertFact writes a fact and its content embedding.
func (s *Store) UpsertFact(ctx context.Context, caseName string, fact *types.Fact, vec []float32) error {
	col := caseName + suffixFacts
	if err := s.guard(caseName, col); err != nil {
		return err
	}
	if fact.CaseName != caseName {
		return types.WrapKind(types.ErrKindAccessDenied,
			fmt.Errorf("%w: fact %s carries case %q, request is %q", types.ErrAccessDenied, fact.ID, fact.CaseName, caseName))
	}
	if len(vec) != s.cfg.VectorDim {
		return types.Errorf(types.ErrKindInputInvalid,
			"fact %s: vector dim %d, want %d", fact.ID, len(vec), s.cfg.VectorDim)
	}

	payload, err := payloadMap(toFactPayload(fact))
	if err != nil {
		return err
	}
	pt := Point{
		ID:      fact.ID,
		Vector:  map[string]any{denseVectorName: vec},
		Payload: payload,
	}
	return s.withRetry(ctx, func() error {
		return s.client.UpsertPoints(ctx, col, []Point{pt})
	})
}

// ScoredFact is a fact hit with its embedding, for similarity dedup.
type ScoredFact struct {
	Fact  *types.Fact
	Score float64
}

// SimilarFacts returns the most similar non-deleted facts for a document.
func (s *Store) SimilarFacts(ctx context.Context, caseName string, vec []float32, topK int) ([]ScoredFact, error) {
	col := caseName + suffixFacts
	if err := s.guard(caseName, col); err != nil {
		return nil, err
	}
	filter := map[string]any{
		"must": []map[string]any{
			{"key": "caseName", "match": map[string]any{"value": caseName}},
		},
		"must_not": []map[string]any{
			{"key": "isDeleted", "match": map[string]any{"value": true}},
		},
	}
	pts, err := s.client.QueryDense(ctx, col, vec, filter, topK)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredFact, 0, len(pts))
	for _, p := range pts {
		var payload factPayload
		if err := json.Unmarshal(p.Payload, &payload); err != nil {
			continue
		}
		out = append(out, ScoredFact{Fact: payload.toFact(p.ID), Score: p.Score})
	}
	return out, nil
}

// GetFact fetches one fact with its vector.
func (s *Store) GetFact(ctx context.Context, caseName, factID string) (*types.Fact, []float32, error) {
	col := caseName + suffixFacts
	if err := s.guard(caseName, col); err != nil {
		return nil, nil, err
	}
	pts, err := s.client.GetPoints(ctx, col, []string{factID})
	if err != nil {
		return nil, nil, err
	}
	if len(pts) == 0 {
		return nil, nil, types.WrapKind(types.ErrKindNotFound,
			fmt.Errorf("fact %s: %w", factID, types.ErrNotFound))
	}
	var payload factPayload
	if err := json.Unmarshal(pts[0].Payload, &payload); err != nil {
		return nil, nil, fmt.Errorf("decode fact payload: %w", err)
	}
	if payload.CaseName != caseName {
		return nil, nil, types.WrapKind(types.ErrKindAccessDenied,
			fmt.Errorf("%w: fact %s belongs to another case", types.ErrAccessDenied, factID))
	}
	return payload.toFact(pts[0].ID), pts[0].DenseVector(), nil
}

// UpdateFact replaces the stored fact record and its vector in one upsert.
func (s *Store) UpdateFact(ctx context.Context, caseName string, fact *types.Fact, vec []float32) error {
	return s.UpsertFact(ctx, caseName, fact, vec)
}

// SetFactPayload merges payload fields into an existing fact without
// touching its vector. Used for chunk-id merges and soft deletion.
func (s *Store) SetFactPayload(ctx context.Context, caseName, factID string, fields map[string]any) error {
	col := caseName + suffixFacts
	if err := s.guard(caseName, col); err != nil {
		return err
	}
	return s.withRetry(ctx, func() error {
		return s.client.SetPayload(ctx, col, []string{factID}, fields)
	})
}

// ListFacts returns all non-deleted facts, optionally filtered by document.
func (s *Store) ListFacts(ctx context.Context, caseName, documentID string) ([]*types.Fact, error) {
	col := caseName + suffixFacts
	if err := s.guard(caseName, col); err != nil {
		return nil, err
	}
	must := []map[string]any{
		{"key": "caseName", "match": map[string]any{"value": caseName}},
	}
	if documentID != "" {
		must = append(must, map[string]any{
			"key": "documentId", "match": map[string]any{"value": documentID},
		})
	}
	filter := map[string]any{
		"must": must,
		"must_not": []map[string]any{
			{"key": "isDeleted", "match": map[string]any{"value": true}},
		},
	}

	var (
		out    []*types.Fact
		offset any
	)
	for {
		records, next, err := s.client.Scroll(ctx, col, filter, 256, offset)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			var payload factPayload
			if err := json.Unmarshal(r.Payload, &payload); err != nil {
				continue
			}
			out = append(out, payload.toFact(r.ID))
		}
		if next == nil || len(records) == 0 {
			break
		}
		offset = next
	}
	return out, nil
}

// payloadMap round-trips a struct through JSON into the generic map the
// client sends.
func payloadMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return m, nil
}
