package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/caselight/caselight/internal/types"
)

const denseVectorName = "dense"

// Named sparse vectors in the hybrid collection.
const (
	SparseKeywords  = "keywords"
	SparseCitations = "citations"
)

// Collection name suffixes. Every non-shared collection is
// "<caseName><suffix>".
const (
	suffixChunks      = "_chunks"
	suffixHybrid      = "_chunks_hybrid"
	suffixFacts       = "_facts"
	suffixDepositions = "_depositions"
	suffixExhibits    = "_exhibits"
	suffixTimeline    = "_timeline"
)

// chunkNamespace seeds the deterministic chunk ids so retried upserts land
// on the same point.
var chunkNamespace = uuid.MustParse("8a56e9c1-2f6d-4b43-9a0e-5d1c3b7f8e21")

// factNamespace seeds fact ids the same way.
var factNamespace = uuid.MustParse("c4d0a7b2-91e5-4f38-8c6a-0e2b5d9f1a37")

// Config tunes the store.
type Config struct {
	VectorDim       int
	UpsertBatchSize int
	Shared          []string // shared collection names, readable from any case
	MaxAttempts     uint
	MaxDelay        time.Duration
}

// Store is the vector store adapter. It is the sole writer of persisted
// chunks; callers never touch the underlying client. Every operation
// enforces the case-isolation invariant before any network call.
type Store struct {
	client *Client
	cfg    Config
	shared map[string]bool
	logger *slog.Logger
}

// New creates a store over an existing client.
func New(client *Client, cfg Config, logger *slog.Logger) *Store {
	if cfg.VectorDim <= 0 {
		cfg.VectorDim = 1536
	}
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = 64
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	shared := make(map[string]bool, len(cfg.Shared))
	for _, s := range cfg.Shared {
		shared[s] = true
	}
	return &Store{client: client, cfg: cfg, shared: shared, logger: logger}
}

// HealthCheck reports backend reachability.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

// guard enforces the isolation invariant: the target collection must start
// with the active caseName or be in the shared set. Violations are access
// denials, never degraded into partial success.
func (s *Store) guard(caseName, collection string) error {
	if caseName == "" {
		return types.WrapKind(types.ErrKindAccessDenied,
			fmt.Errorf("%w: empty case name", types.ErrAccessDenied))
	}
	if s.shared[collection] {
		return nil
	}
	if !strings.HasPrefix(collection, caseName+"_") {
		return types.WrapKind(types.ErrKindAccessDenied,
			fmt.Errorf("%w: case %q may not access collection %q", types.ErrAccessDenied, caseName, collection))
	}
	return nil
}

// CaseCollections returns every per-case collection name in creation order.
func CaseCollections(caseName string) []string {
	return []string{
		caseName + suffixChunks,
		caseName + suffixHybrid,
		caseName + suffixFacts,
		caseName + suffixDepositions,
		caseName + suffixExhibits,
		caseName + suffixTimeline,
	}
}

// ChunkID derives the deterministic id for a chunk so retried upserts are
// idempotent.
func ChunkID(caseName, documentID, segmentID string, ordinal int) string {
	key := fmt.Sprintf("%s/%s/%s/%d", caseName, documentID, segmentID, ordinal)
	return uuid.NewSHA1(chunkNamespace, []byte(key)).String()
}

// FactID derives a deterministic fact id from its case, document, and
// content.
func FactID(caseName, documentID, content string) string {
	key := fmt.Sprintf("%s/%s/%s", caseName, documentID, content)
	return uuid.NewSHA1(factNamespace, []byte(key)).String()
}

// EnsureCollections idempotently creates the per-case collections and their
// payload indexes. The returned map reports, per collection, whether it was
// created by this call.
func (s *Store) EnsureCollections(ctx context.Context, caseName string) (map[string]bool, error) {
	created := make(map[string]bool)
	for _, name := range CaseCollections(caseName) {
		if err := s.guard(caseName, name); err != nil {
			return nil, err
		}
		exists, err := s.client.CollectionExists(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("check collection %s: %w", name, err)
		}
		created[name] = !exists
		if exists {
			continue
		}

		var sparse []string
		if strings.HasSuffix(name, suffixHybrid) {
			sparse = []string{SparseKeywords, SparseCitations}
		}
		if err := s.client.CreateCollection(ctx, name, s.cfg.VectorDim, sparse...); err != nil {
			return nil, fmt.Errorf("create collection %s: %w", name, err)
		}
		if err := s.createIndexes(ctx, name); err != nil {
			return nil, err
		}
	}
	return created, nil
}

func (s *Store) createIndexes(ctx context.Context, collection string) error {
	indexes := []struct{ field, schema string }{
		{"documentId", "keyword"},
		{"caseName", "keyword"},
		{"productionBatch", "keyword"},
		{"documentType", "keyword"},
		{"pageSpan.start", "integer"},
		{"pageSpan.end", "integer"},
	}
	for _, ix := range indexes {
		if err := s.client.CreatePayloadIndex(ctx, collection, ix.field, ix.schema); err != nil {
			return fmt.Errorf("index %s on %s: %w", ix.field, collection, err)
		}
	}
	return nil
}

// UpsertChunks writes chunks to both the dense and hybrid collections in
// batches. Each chunk id is deterministic, so retries are idempotent and no
// rollback is needed on partial failure. Returns the number of chunks
// stored.
func (s *Store) UpsertChunks(ctx context.Context, caseName string, chunks []*types.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	dense := caseName + suffixChunks
	hybrid := caseName + suffixHybrid
	for _, col := range []string{dense, hybrid} {
		if err := s.guard(caseName, col); err != nil {
			return 0, err
		}
	}

	for _, c := range chunks {
		if c.CaseName != caseName {
			return 0, types.WrapKind(types.ErrKindAccessDenied,
				fmt.Errorf("%w: chunk %s carries case %q, job is %q", types.ErrAccessDenied, c.ID, c.CaseName, caseName))
		}
		if len(c.DenseVector) != s.cfg.VectorDim {
			return 0, types.Errorf(types.ErrKindInputInvalid,
				"chunk %s: vector dim %d, want %d", c.ID, len(c.DenseVector), s.cfg.VectorDim)
		}
	}

	stored := 0
	for start := 0; start < len(chunks); start += s.cfg.UpsertBatchSize {
		end := start + s.cfg.UpsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		densePts := make([]Point, len(batch))
		hybridPts := make([]Point, len(batch))
		for i, c := range batch {
			payload := chunkPayload(c)
			densePts[i] = Point{
				ID:      c.ID,
				Vector:  map[string]any{denseVectorName: c.DenseVector},
				Payload: payload,
			}
			hybridPts[i] = Point{
				ID: c.ID,
				Vector: map[string]any{
					denseVectorName: c.DenseVector,
					SparseKeywords:  toSparse(c.SparseKeywords),
					SparseCitations: toSparse(c.SparseCitations),
				},
				Payload: payload,
			}
		}

		err := s.withRetry(ctx, func() error {
			if err := s.client.UpsertPoints(ctx, dense, densePts); err != nil {
				return err
			}
			return s.client.UpsertPoints(ctx, hybrid, hybridPts)
		})
		if err != nil {
			return stored, fmt.Errorf("upsert batch [%d:%d]: %w", start, end, err)
		}
		stored += len(batch)
	}
	return stored, nil
}

func (s *Store) withRetry(ctx context.Context, op func() error) error {
	err := retry.Do(op,
		retry.Context(ctx),
		retry.Attempts(s.cfg.MaxAttempts),
		retry.MaxDelay(s.cfg.MaxDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return types.KindOf(err).IsRetryable()
		}),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("vector store retry", "attempt", n+1, "error", err)
		}),
	)
	// A transient error that survived the whole retry budget means the
	// backend is down, not flaky.
	if err != nil && types.KindOf(err) == types.ErrKindTransient {
		return types.WrapKind(types.ErrKindBackendUnavailable, err)
	}
	return err
}

func toSparse(m map[uint32]float32) SparseVector {
	sv := SparseVector{
		Indices: make([]uint32, 0, len(m)),
		Values:  make([]float32, 0, len(m)),
	}
	for idx, w := range m {
		sv.Indices = append(sv.Indices, idx)
		sv.Values = append(sv.Values, w)
	}
	return sv
}

func chunkPayload(c *types.Chunk) map[string]any {
	return map[string]any{
		"caseName":   c.CaseName,
		"documentId": c.DocumentID,
		"segmentId":  c.SegmentID,
		"ordinal":    c.Ordinal,
		"text":       c.Text,
		"tokenCount": c.TokenCount,
		"pageSpan": map[string]any{
			"start": c.PageSpan.Start,
			"end":   c.PageSpan.End,
		},
		"documentType":    string(c.Metadata.DocumentType),
		"batesStart":      c.Metadata.BatesStart,
		"batesEnd":        c.Metadata.BatesEnd,
		"productionBatch": c.Metadata.ProductionBatch,
		"producingParty":  c.Metadata.ProducingParty,
		"hasCitations":    c.Metadata.HasCitations,
		"citationCount":   c.Metadata.CitationCount,
		"hasMonetary":     c.Metadata.HasMonetary,
		"hasDates":        c.Metadata.HasDates,
	}
}

// Weights are the per-signal RRF weights. Zero values fall back to the
// defaults (dense 1.0, keyword 0.5, citation 0.5).
type Weights struct {
	Dense    float64 `json:"dense"`
	Keyword  float64 `json:"keyword"`
	Citation float64 `json:"citation"`
}

func (w Weights) orDefaults() Weights {
	if w.Dense == 0 && w.Keyword == 0 && w.Citation == 0 {
		return Weights{Dense: 1.0, Keyword: 0.5, Citation: 0.5}
	}
	return w
}

// Query is one hybrid search request.
type Query struct {
	DenseVec        []float32
	SparseKeywords  map[uint32]float32
	SparseCitations map[uint32]float32
	TopK            int
	Filters         map[string]string
	Weights         Weights
}

// Hit is one fused search result.
type Hit struct {
	ID      string          `json:"id"`
	Score   float64         `json:"score"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Search performs hybrid retrieval over the case's chunks: three ranked
// lookups fused with weighted reciprocal-rank fusion. If the hybrid
// collection is absent it silently degrades to dense-only.
func (s *Store) Search(ctx context.Context, caseName string, q Query) ([]Hit, error) {
	dense := caseName + suffixChunks
	hybrid := caseName + suffixHybrid
	for _, col := range []string{dense, hybrid} {
		if err := s.guard(caseName, col); err != nil {
			return nil, err
		}
	}
	if q.TopK <= 0 {
		q.TopK = 10
	}
	filter := s.buildFilter(caseName, q.Filters)
	// Over-fetch each ranked list so fusion has material to reorder.
	fetchK := q.TopK * 3

	hybridOK, err := s.client.CollectionExists(ctx, hybrid)
	if err != nil {
		return nil, err
	}

	if !hybridOK || (len(q.SparseKeywords) == 0 && len(q.SparseCitations) == 0) {
		pts, err := s.client.QueryDense(ctx, dense, q.DenseVec, filter, q.TopK)
		if err != nil {
			return nil, err
		}
		hits := make([]Hit, len(pts))
		for i, p := range pts {
			hits[i] = Hit{ID: p.ID, Score: p.Score, Payload: p.Payload}
		}
		return hits, nil
	}

	w := q.Weights.orDefaults()
	var lists []rankedList

	densePts, err := s.client.QueryDense(ctx, hybrid, q.DenseVec, filter, fetchK)
	if err != nil {
		return nil, err
	}
	lists = append(lists, rankedList{points: densePts, weight: w.Dense})

	if len(q.SparseKeywords) > 0 {
		pts, err := s.client.QuerySparse(ctx, hybrid, SparseKeywords, toSparse(q.SparseKeywords), filter, fetchK)
		if err != nil {
			return nil, err
		}
		lists = append(lists, rankedList{points: pts, weight: w.Keyword})
	}
	if len(q.SparseCitations) > 0 {
		pts, err := s.client.QuerySparse(ctx, hybrid, SparseCitations, toSparse(q.SparseCitations), filter, fetchK)
		if err != nil {
			return nil, err
		}
		lists = append(lists, rankedList{points: pts, weight: w.Citation})
	}

	return fuseRRF(lists, q.TopK), nil
}

// buildFilter composes the mandatory caseName condition with caller
// filters. pageSpan filters are passed through as nested keys.
func (s *Store) buildFilter(caseName string, extra map[string]string) map[string]any {
	must := []map[string]any{
		{"key": "caseName", "match": map[string]any{"value": caseName}},
	}
	for k, v := range extra {
		must = append(must, map[string]any{
			"key": k, "match": map[string]any{"value": v},
		})
	}
	return map[string]any{"must": must}
}

// Delete removes every chunk of a document from both chunk collections and
// returns the count removed.
func (s *Store) Delete(ctx context.Context, caseName, documentID string) (int, error) {
	dense := caseName + suffixChunks
	hybrid := caseName + suffixHybrid
	for _, col := range []string{dense, hybrid} {
		if err := s.guard(caseName, col); err != nil {
			return 0, err
		}
	}

	filter := map[string]any{
		"must": []map[string]any{
			{"key": "caseName", "match": map[string]any{"value": caseName}},
			{"key": "documentId", "match": map[string]any{"value": documentID}},
		},
	}
	count, err := s.client.CountPoints(ctx, dense, filter)
	if err != nil {
		return 0, err
	}
	for _, col := range []string{dense, hybrid} {
		if err := s.client.DeletePoints(ctx, col, filter); err != nil {
			return 0, fmt.Errorf("delete from %s: %w", col, err)
		}
	}
	return count, nil
}
