package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caselight/caselight/internal/encode"
	"github.com/caselight/caselight/internal/providers"
	"github.com/caselight/caselight/internal/types"
	"github.com/caselight/caselight/internal/vectorstore"
)

// Config tunes extraction and deduplication.
type Config struct {
	// DedupCosine is the embedding similarity floor for merging. Default 0.95.
	DedupCosine float64

	// DedupTextSim is the normalized text similarity floor. Both thresholds
	// must be met to merge. Default 0.9.
	DedupTextSim float64

	// SimilarTopK bounds the candidate set consulted per new fact.
	SimilarTopK int
}

// Extractor runs the per-segment fact pipeline: model call, schema
// filtering, embedding, dedup merge, upsert.
type Extractor struct {
	cfg      Config
	llm      providers.LLMClient
	embedder providers.Embedder
	store    *vectorstore.Store
	logger   *slog.Logger
}

// New creates an extractor.
func New(cfg Config, llm providers.LLMClient, embedder providers.Embedder, store *vectorstore.Store, logger *slog.Logger) *Extractor {
	if cfg.DedupCosine <= 0 {
		cfg.DedupCosine = 0.95
	}
	if cfg.DedupTextSim <= 0 {
		cfg.DedupTextSim = 0.9
	}
	if cfg.SimilarTopK <= 0 {
		cfg.SimilarTopK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{cfg: cfg, llm: llm, embedder: embedder, store: store, logger: logger}
}

// ExtractSegment extracts facts from a segment's chunks. It is a no-op
// unless the segment's document type allows extraction or force is set.
// Returns the facts newly stored (merged duplicates are not counted).
func (e *Extractor) ExtractSegment(ctx context.Context, caseName string, seg *types.Segment, chunks []*types.Chunk, force bool) ([]*types.Fact, error) {
	if !force && !seg.DocumentType.AllowsFactExtraction() {
		return nil, nil
	}

	var stored []*types.Fact
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return stored, types.WrapKind(types.ErrKindCancelled, err)
		}
		raw, err := e.llm.ExtractFacts(ctx, chunk.Text, Schema)
		if err != nil {
			return stored, fmt.Errorf("extract facts from chunk %s: %w", chunk.ID, err)
		}
		valid, err := providers.FilterBySchema(raw, Schema)
		if err != nil {
			return stored, err
		}
		if dropped := len(raw) - len(valid); dropped > 0 {
			e.logger.Debug("dropped schema-invalid facts",
				"chunk_id", chunk.ID, "dropped", dropped)
		}

		for _, item := range valid {
			var ef extractedFact
			if err := json.Unmarshal(item, &ef); err != nil {
				continue
			}
			fact := e.buildFact(caseName, seg, chunk, &ef)
			fresh, err := e.storeWithDedup(ctx, caseName, fact)
			if err != nil {
				return stored, err
			}
			if fresh {
				stored = append(stored, fact)
			}
		}
	}
	return stored, nil
}

func (e *Extractor) buildFact(caseName string, seg *types.Segment, chunk *types.Chunk, ef *extractedFact) *types.Fact {
	page := ef.Page
	if page < chunk.PageSpan.Start || page > chunk.PageSpan.End {
		page = chunk.PageSpan.Start
	}
	dates := make([]types.DateRef, len(ef.DateReferences))
	for i, d := range ef.DateReferences {
		dates[i] = types.DateRef{Date: d.Date, Verbatim: d.Verbatim}
	}
	return &types.Fact{
		ID:             vectorstore.FactID(caseName, seg.DocumentID, ef.Content),
		CaseName:       caseName,
		DocumentID:     seg.DocumentID,
		ChunkIDs:       []string{chunk.ID},
		Content:        ef.Content,
		Category:       parseCategory(ef.Category),
		Entities:       ef.Entities,
		DateReferences: dates,
		Confidence:     ef.Confidence,
		SourceSnippet:  ef.SourceSnippet,
		Page:           page,
		BBox:           ef.BBox,
		CreatedAt:      time.Now().UTC(),
	}
}

// storeWithDedup inserts the fact unless a near-identical one already
// exists, in which case the existing record absorbs the new chunk ids.
// Returns true when a new fact was stored.
func (e *Extractor) storeWithDedup(ctx context.Context, caseName string, fact *types.Fact) (bool, error) {
	vecs, err := e.embedder.Embed(ctx, []string{fact.Content})
	if err != nil {
		return false, fmt.Errorf("embed fact: %w", err)
	}
	vec := vecs[0]
	encode.Normalize(vec)

	similar, err := e.store.SimilarFacts(ctx, caseName, vec, e.cfg.SimilarTopK)
	if err != nil {
		return false, err
	}
	for _, cand := range similar {
		if cand.Score < e.cfg.DedupCosine {
			continue
		}
		if TextSimilarity(fact.Content, cand.Fact.Content) < e.cfg.DedupTextSim {
			continue
		}
		merged := unionIDs(cand.Fact.ChunkIDs, fact.ChunkIDs)
		if len(merged) == len(cand.Fact.ChunkIDs) {
			return false, nil
		}
		err := e.store.SetFactPayload(ctx, caseName, cand.Fact.ID, map[string]any{
			"chunkIds": merged,
		})
		if err != nil {
			return false, err
		}
		e.logger.Debug("merged duplicate fact",
			"fact_id", cand.Fact.ID, "score", cand.Score)
		return false, nil
	}

	if err := e.store.UpsertFact(ctx, caseName, fact, vec); err != nil {
		return false, err
	}
	return true, nil
}

// EditFact replaces a fact's content, appends to its edit history, and
// re-embeds so search follows the new wording.
func (e *Extractor) EditFact(ctx context.Context, caseName, factID, newContent, userID, reason string) (*types.Fact, error) {
	fact, _, err := e.store.GetFact(ctx, caseName, factID)
	if err != nil {
		return nil, err
	}
	if fact.IsDeleted {
		return nil, types.Errorf(types.ErrKindInputInvalid, "fact %s is deleted", factID)
	}

	fact.EditHistory = append(fact.EditHistory, types.FactEdit{
		UserID:   userID,
		Reason:   reason,
		Previous: fact.Content,
		EditedAt: time.Now().UTC(),
	})
	fact.Content = newContent
	fact.IsEdited = true

	vecs, err := e.embedder.Embed(ctx, []string{newContent})
	if err != nil {
		return nil, fmt.Errorf("re-embed fact: %w", err)
	}
	vec := vecs[0]
	encode.Normalize(vec)

	if err := e.store.UpdateFact(ctx, caseName, fact, vec); err != nil {
		return nil, err
	}
	return fact, nil
}

// DeleteFact soft-deletes a fact. The vector stays in place and is filtered
// on read.
func (e *Extractor) DeleteFact(ctx context.Context, caseName, factID, userID, reason string) error {
	fact, _, err := e.store.GetFact(ctx, caseName, factID)
	if err != nil {
		return err
	}
	if fact.IsDeleted {
		return nil
	}
	history := append(fact.EditHistory, types.FactEdit{
		UserID:   userID,
		Reason:   reason,
		Previous: fact.Content,
		EditedAt: time.Now().UTC(),
		Deletion: true,
	})
	return e.store.SetFactPayload(ctx, caseName, factID, map[string]any{
		"isDeleted":   true,
		"editHistory": history,
	})
}

// List returns the case's non-deleted facts, optionally for one document.
func (e *Extractor) List(ctx context.Context, caseName, documentID string) ([]*types.Fact, error) {
	return e.store.ListFacts(ctx, caseName, documentID)
}

func parseCategory(s string) types.FactCategory {
	switch types.FactCategory(s) {
	case types.FactCategoryEvent, types.FactCategoryAdmission, types.FactCategoryFinancial,
		types.FactCategoryMedical, types.FactCategoryCommunication, types.FactCategoryRegulatory:
		return types.FactCategory(s)
	}
	return types.FactCategoryOther
}

func unionIDs(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, id := range a {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range b {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// TextSimilarity is a normalized token-bigram Dice coefficient in [0,1].
// Two restatements of the same fact score high; unrelated text scores low.
func TextSimilarity(a, b string) float64 {
	ba := bigrams(normalizeText(a))
	bb := bigrams(normalizeText(b))
	if len(ba) == 0 || len(bb) == 0 {
		if normalizeText(a) == normalizeText(b) {
			return 1
		}
		return 0
	}
	overlap := 0
	for g, n := range ba {
		if m, ok := bb[g]; ok {
			if m < n {
				overlap += m
			} else {
				overlap += n
			}
		}
	}
	totalA, totalB := 0, 0
	for _, n := range ba {
		totalA += n
	}
	for _, n := range bb {
		totalB += n
	}
	return 2 * float64(overlap) / float64(totalA+totalB)
}

func normalizeText(s string) string {
	var sb strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				sb.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func bigrams(s string) map[string]int {
	words := strings.Fields(s)
	out := make(map[string]int)
	if len(words) == 1 {
		out[words[0]]++
		return out
	}
	for i := 0; i+1 < len(words); i++ {
		out[words[i]+" "+words[i+1]]++
	}
	return out
}
