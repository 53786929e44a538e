package facts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/caselight/caselight/internal/providers"
	"github.com/caselight/caselight/internal/types"
	"github.com/caselight/caselight/internal/vectorstore"
)

// fakeBackend is a minimal Qdrant stand-in covering the fact endpoints.
type fakeBackend struct {
	mu       sync.Mutex
	upserted map[string]map[string]any   // point id → payload
	payloads map[string][]map[string]any // point id → payload merges
	queryPts []map[string]any            // scripted similarity hits
	getPts   []map[string]any            // scripted point lookups
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		upserted: make(map[string]map[string]any),
		payloads: make(map[string][]map[string]any),
	}
}

func (f *fakeBackend) client(t *testing.T) *vectorstore.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		write := func(result any) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "result": result})
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/points/query"):
			write(map[string]any{"points": f.queryPts})
		case strings.HasSuffix(r.URL.Path, "/points/scroll"):
			pts := make([]map[string]any, 0, len(f.upserted))
			for id, payload := range f.upserted {
				pts = append(pts, map[string]any{"id": id, "payload": payload})
			}
			write(map[string]any{"points": pts, "next_page_offset": nil})
		case strings.HasSuffix(r.URL.Path, "/points/payload"):
			var body struct {
				Points  []string       `json:"points"`
				Payload map[string]any `json:"payload"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			for _, id := range body.Points {
				f.payloads[id] = append(f.payloads[id], body.Payload)
			}
			write(map[string]any{})
		case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/points"):
			var body struct {
				Points []struct {
					ID      string         `json:"id"`
					Payload map[string]any `json:"payload"`
				} `json:"points"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			for _, p := range body.Points {
				f.upserted[p.ID] = p.Payload
			}
			write(map[string]any{})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/points"):
			write(f.getPts)
		default:
			write(map[string]any{})
		}
	}))
	t.Cleanup(srv.Close)
	return vectorstore.NewClient(srv.URL)
}

func newTestExtractor(t *testing.T, fake *fakeBackend, llm providers.LLMClient) *Extractor {
	t.Helper()
	store := vectorstore.New(fake.client(t), vectorstore.Config{VectorDim: 8}, nil)
	return New(Config{}, llm, &providers.MockEmbedder{}, store, nil)
}

func extractReturning(items ...string) *providers.MockLLM {
	raw := make([]json.RawMessage, len(items))
	for i, s := range items {
		raw[i] = json.RawMessage(s)
	}
	return &providers.MockLLM{
		ExtractFunc: func(ctx context.Context, text string, schema json.RawMessage) ([]json.RawMessage, error) {
			return raw, nil
		},
	}
}

func TestExtractSegment(t *testing.T) {
	ctx := context.Background()
	chunk := &types.Chunk{
		ID:       "chunk-1",
		Text:     "The driver admitted he was texting at the time of the crash.",
		PageSpan: types.PageSpan{Start: 2, End: 4},
	}

	t.Run("skips types that do not carry evidence", func(t *testing.T) {
		llm := &providers.MockLLM{}
		e := newTestExtractor(t, newFakeBackend(), llm)
		seg := &types.Segment{DocumentID: "doc-1", DocumentType: types.DocTypeMotion}
		stored, err := e.ExtractSegment(ctx, "smith_v_jones", seg, []*types.Chunk{chunk}, false)
		if err != nil {
			t.Fatalf("ExtractSegment: %v", err)
		}
		if stored != nil || llm.ExtractCalls != 0 {
			t.Errorf("extraction ran on a motion: stored=%d calls=%d", len(stored), llm.ExtractCalls)
		}
	})

	t.Run("force overrides the type gate", func(t *testing.T) {
		llm := extractReturning()
		e := newTestExtractor(t, newFakeBackend(), llm)
		seg := &types.Segment{DocumentID: "doc-1", DocumentType: types.DocTypeMotion}
		if _, err := e.ExtractSegment(ctx, "smith_v_jones", seg, []*types.Chunk{chunk}, true); err != nil {
			t.Fatalf("ExtractSegment: %v", err)
		}
		if llm.ExtractCalls != 1 {
			t.Errorf("llm calls = %d, want 1", llm.ExtractCalls)
		}
	})

	t.Run("schema-valid facts are stored, invalid dropped", func(t *testing.T) {
		fake := newFakeBackend()
		llm := extractReturning(
			`{"content":"Driver admitted texting while driving on I-75.","category":"admission","confidence":0.9,"page":3}`,
			`{"content":"short","category":"event","confidence":0.5}`,
			`{"content":"The tractor's brakes were last serviced in March 2019.","category":"event","confidence":0.8,"page":10}`,
		)
		e := newTestExtractor(t, fake, llm)
		seg := &types.Segment{DocumentID: "doc-1", DocumentType: types.DocTypeDeposition}

		stored, err := e.ExtractSegment(ctx, "smith_v_jones", seg, []*types.Chunk{chunk}, false)
		if err != nil {
			t.Fatalf("ExtractSegment: %v", err)
		}
		if len(stored) != 2 {
			t.Fatalf("stored %d facts, want 2", len(stored))
		}
		if stored[0].Category != types.FactCategoryAdmission {
			t.Errorf("category = %v", stored[0].Category)
		}
		if stored[0].Page != 3 {
			t.Errorf("in-span page = %d, want 3", stored[0].Page)
		}
		if stored[1].Page != chunk.PageSpan.Start {
			t.Errorf("out-of-span page = %d, want clamped to %d", stored[1].Page, chunk.PageSpan.Start)
		}
		if len(stored[0].ChunkIDs) != 1 || stored[0].ChunkIDs[0] != "chunk-1" {
			t.Errorf("chunk ids = %v", stored[0].ChunkIDs)
		}

		wantID := vectorstore.FactID("smith_v_jones", "doc-1", "Driver admitted texting while driving on I-75.")
		if stored[0].ID != wantID {
			t.Errorf("id = %s, want deterministic %s", stored[0].ID, wantID)
		}
		if _, ok := fake.upserted[wantID]; !ok {
			t.Error("fact not upserted to the backend")
		}
	})

	t.Run("unknown category clamps to other", func(t *testing.T) {
		fake := newFakeBackend()
		llm := extractReturning(
			`{"content":"Weather at the crash site was clear and dry.","category":"other","confidence":0.7}`,
		)
		e := newTestExtractor(t, fake, llm)
		seg := &types.Segment{DocumentID: "doc-1", DocumentType: types.DocTypePoliceReport}
		stored, err := e.ExtractSegment(ctx, "smith_v_jones", seg, []*types.Chunk{chunk}, false)
		if err != nil {
			t.Fatalf("ExtractSegment: %v", err)
		}
		if len(stored) != 1 || stored[0].Category != types.FactCategoryOther {
			t.Errorf("stored = %+v", stored)
		}
	})
}

func TestExtractSegmentDedup(t *testing.T) {
	ctx := context.Background()
	content := "Driver admitted texting while driving on I-75."
	chunk := &types.Chunk{ID: "chunk-1", Text: content, PageSpan: types.PageSpan{Start: 0, End: 0}}
	seg := &types.Segment{DocumentID: "doc-1", DocumentType: types.DocTypeDeposition}
	raw := `{"content":"` + content + `","category":"admission","confidence":0.9}`

	hit := func(score float64, factContent string, chunkIDs ...string) map[string]any {
		return map[string]any{
			"id":    "existing-fact",
			"score": score,
			"payload": map[string]any{
				"caseName":   "smith_v_jones",
				"documentId": "doc-1",
				"chunkIds":   chunkIDs,
				"content":    factContent,
				"category":   "admission",
				"confidence": 0.9,
			},
		}
	}

	t.Run("near-identical fact merges chunk ids", func(t *testing.T) {
		fake := newFakeBackend()
		fake.queryPts = []map[string]any{hit(0.99, content, "chunk-0")}
		e := newTestExtractor(t, fake, extractReturning(raw))

		stored, err := e.ExtractSegment(ctx, "smith_v_jones", seg, []*types.Chunk{chunk}, false)
		if err != nil {
			t.Fatalf("ExtractSegment: %v", err)
		}
		if len(stored) != 0 {
			t.Errorf("duplicate stored as new fact")
		}
		if len(fake.upserted) != 0 {
			t.Errorf("duplicate upserted: %v", fake.upserted)
		}
		merges := fake.payloads["existing-fact"]
		if len(merges) != 1 {
			t.Fatalf("payload merges = %d, want 1", len(merges))
		}
		ids, _ := merges[0]["chunkIds"].([]any)
		if len(ids) != 2 || ids[0] != "chunk-0" || ids[1] != "chunk-1" {
			t.Errorf("merged chunk ids = %v", merges[0]["chunkIds"])
		}
	})

	t.Run("already-seen chunk id is a silent no-op", func(t *testing.T) {
		fake := newFakeBackend()
		fake.queryPts = []map[string]any{hit(0.99, content, "chunk-1")}
		e := newTestExtractor(t, fake, extractReturning(raw))

		stored, err := e.ExtractSegment(ctx, "smith_v_jones", seg, []*types.Chunk{chunk}, false)
		if err != nil {
			t.Fatalf("ExtractSegment: %v", err)
		}
		if len(stored) != 0 || len(fake.upserted) != 0 || len(fake.payloads) != 0 {
			t.Error("exact re-extraction should change nothing")
		}
	})

	t.Run("high cosine but different wording stays separate", func(t *testing.T) {
		fake := newFakeBackend()
		fake.queryPts = []map[string]any{hit(0.99, "Invoice total for the brake repair was $2,300.", "chunk-0")}
		e := newTestExtractor(t, fake, extractReturning(raw))

		stored, err := e.ExtractSegment(ctx, "smith_v_jones", seg, []*types.Chunk{chunk}, false)
		if err != nil {
			t.Fatalf("ExtractSegment: %v", err)
		}
		if len(stored) != 1 || len(fake.upserted) != 1 {
			t.Errorf("stored=%d upserted=%d, want 1/1", len(stored), len(fake.upserted))
		}
	})

	t.Run("low cosine stays separate despite identical text", func(t *testing.T) {
		fake := newFakeBackend()
		fake.queryPts = []map[string]any{hit(0.5, content, "chunk-0")}
		e := newTestExtractor(t, fake, extractReturning(raw))

		stored, err := e.ExtractSegment(ctx, "smith_v_jones", seg, []*types.Chunk{chunk}, false)
		if err != nil {
			t.Fatalf("ExtractSegment: %v", err)
		}
		if len(stored) != 1 {
			t.Errorf("stored = %d, want 1", len(stored))
		}
	})
}

func TestEditFact(t *testing.T) {
	ctx := context.Background()

	point := func(deleted bool) []map[string]any {
		return []map[string]any{{
			"id": "fact-1",
			"payload": map[string]any{
				"caseName":   "smith_v_jones",
				"documentId": "doc-1",
				"chunkIds":   []string{"chunk-0"},
				"content":    "Old wording of the admission.",
				"category":   "admission",
				"confidence": 0.9,
				"isDeleted":  deleted,
			},
			"vector": map[string]any{"dense": []float32{1, 0, 0, 0, 0, 0, 0, 0}},
		}}
	}

	t.Run("edit rewrites content and keeps history", func(t *testing.T) {
		fake := newFakeBackend()
		fake.getPts = point(false)
		e := newTestExtractor(t, fake, &providers.MockLLM{})

		fact, err := e.EditFact(ctx, "smith_v_jones", "fact-1",
			"Corrected wording of the admission.", "reviewer-9", "transcription error")
		if err != nil {
			t.Fatalf("EditFact: %v", err)
		}
		if fact.Content != "Corrected wording of the admission." || !fact.IsEdited {
			t.Errorf("fact = %+v", fact)
		}
		if len(fact.EditHistory) != 1 {
			t.Fatalf("history entries = %d, want 1", len(fact.EditHistory))
		}
		edit := fact.EditHistory[0]
		if edit.Previous != "Old wording of the admission." || edit.UserID != "reviewer-9" || edit.Deletion {
			t.Errorf("edit = %+v", edit)
		}

		payload, ok := fake.upserted["fact-1"]
		if !ok {
			t.Fatal("edited fact not re-upserted")
		}
		if payload["content"] != "Corrected wording of the admission." {
			t.Errorf("stored content = %v", payload["content"])
		}
	})

	t.Run("deleted facts cannot be edited", func(t *testing.T) {
		fake := newFakeBackend()
		fake.getPts = point(true)
		e := newTestExtractor(t, fake, &providers.MockLLM{})

		_, err := e.EditFact(ctx, "smith_v_jones", "fact-1", "new", "u", "r")
		if types.KindOf(err) != types.ErrKindInputInvalid {
			t.Errorf("kind = %v, want input_invalid", types.KindOf(err))
		}
	})

	t.Run("unknown fact", func(t *testing.T) {
		fake := newFakeBackend()
		fake.getPts = []map[string]any{}
		e := newTestExtractor(t, fake, &providers.MockLLM{})

		_, err := e.EditFact(ctx, "smith_v_jones", "ghost", "new", "u", "r")
		if types.KindOf(err) != types.ErrKindNotFound {
			t.Errorf("kind = %v, want not_found", types.KindOf(err))
		}
	})
}

func TestDeleteFact(t *testing.T) {
	ctx := context.Background()

	t.Run("soft delete records a tombstone edit", func(t *testing.T) {
		fake := newFakeBackend()
		fake.getPts = []map[string]any{{
			"id": "fact-1",
			"payload": map[string]any{
				"caseName": "smith_v_jones",
				"content":  "Fact to remove.",
			},
		}}
		e := newTestExtractor(t, fake, &providers.MockLLM{})

		if err := e.DeleteFact(ctx, "smith_v_jones", "fact-1", "reviewer-9", "duplicative"); err != nil {
			t.Fatalf("DeleteFact: %v", err)
		}
		sets := fake.payloads["fact-1"]
		if len(sets) != 1 {
			t.Fatalf("payload sets = %d, want 1", len(sets))
		}
		if deleted, _ := sets[0]["isDeleted"].(bool); !deleted {
			t.Errorf("isDeleted not set: %v", sets[0])
		}
		history, _ := sets[0]["editHistory"].([]any)
		if len(history) != 1 {
			t.Fatalf("history = %+v", sets[0]["editHistory"])
		}
		entry, _ := history[0].(map[string]any)
		if deletion, _ := entry["deletion"].(bool); !deletion {
			t.Errorf("tombstone edit = %v", entry)
		}
	})

	t.Run("deleting twice is idempotent", func(t *testing.T) {
		fake := newFakeBackend()
		fake.getPts = []map[string]any{{
			"id": "fact-1",
			"payload": map[string]any{
				"caseName":  "smith_v_jones",
				"content":   "Already gone.",
				"isDeleted": true,
			},
		}}
		e := newTestExtractor(t, fake, &providers.MockLLM{})

		if err := e.DeleteFact(ctx, "smith_v_jones", "fact-1", "u", "r"); err != nil {
			t.Fatalf("DeleteFact: %v", err)
		}
		if len(fake.payloads) != 0 {
			t.Error("second delete wrote a payload")
		}
	})
}

func TestTextSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "The driver was texting while driving", "The driver was texting while driving", 1, 1},
		{"punctuation insensitive", "Driver admitted fault.", "driver admitted fault", 1, 1},
		{"restatement", "the driver admitted he was texting at the time of the crash",
			"the driver admitted he was texting at the moment of the crash", 0.7, 0.99},
		{"unrelated", "the driver admitted texting", "invoice total was two thousand dollars", 0, 0.1},
		{"single word match", "hello", "hello", 1, 1},
		{"single word mismatch", "hello", "world", 0, 0},
		{"both empty", "", "", 1, 1},
		{"one empty", "", "something", 0, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := TextSimilarity(c.a, c.b)
			if got < c.min || got > c.max {
				t.Errorf("TextSimilarity = %f, want in [%f, %f]", got, c.min, c.max)
			}
		})
	}
}

func TestUnionIDs(t *testing.T) {
	got := unionIDs([]string{"a", "b"}, []string{"b", "c", "a"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestParseCategory(t *testing.T) {
	if parseCategory("admission") != types.FactCategoryAdmission {
		t.Error("admission not parsed")
	}
	if parseCategory("memo") != types.FactCategoryOther {
		t.Error("unknown category should clamp to other")
	}
	if parseCategory("") != types.FactCategoryOther {
		t.Error("empty category should clamp to other")
	}
}
