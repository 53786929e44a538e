package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/caselight/caselight/internal/boundary"
	"github.com/caselight/caselight/internal/chunker"
	"github.com/caselight/caselight/internal/classify"
	"github.com/caselight/caselight/internal/dedupe"
	"github.com/caselight/caselight/internal/encode"
	"github.com/caselight/caselight/internal/facts"
	"github.com/caselight/caselight/internal/filesource"
	"github.com/caselight/caselight/internal/progress"
	"github.com/caselight/caselight/internal/providers"
	"github.com/caselight/caselight/internal/types"
	"github.com/caselight/caselight/internal/vectorstore"
)

// fakeQdrant accepts every store call, counts upserted points per
// collection, and keeps their payloads.
type fakeQdrant struct {
	mu            sync.Mutex
	upserts       map[string]int
	payloads      map[string][]map[string]any
	failExists    bool
	failUpserts   bool // 503: the store is down
	rejectUpserts bool // 400: the store rejects the write
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{
		upserts:  make(map[string]int),
		payloads: make(map[string][]map[string]any),
	}
}

func (f *fakeQdrant) points(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts[collection]
}

func (f *fakeQdrant) pointPayloads(collection string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.payloads[collection]...)
}

func (f *fakeQdrant) client(t *testing.T) *vectorstore.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		write := func(result any) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "result": result})
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/exists"):
			if f.failExists {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			write(map[string]any{"exists": true})
		case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/points"):
			if f.failUpserts {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			if f.rejectUpserts {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			var body struct {
				Points []struct {
					Payload map[string]any `json:"payload"`
				} `json:"points"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			parts := strings.Split(r.URL.Path, "/")
			collection := parts[len(parts)-2]
			f.upserts[collection] += len(body.Points)
			for _, pt := range body.Points {
				f.payloads[collection] = append(f.payloads[collection], pt.Payload)
			}
			write(map[string]any{})
		case strings.HasSuffix(r.URL.Path, "/points/query"):
			write(map[string]any{"points": []any{}})
		default:
			write(map[string]any{})
		}
	}))
	t.Cleanup(srv.Close)
	return vectorstore.NewClient(srv.URL)
}

// fakePages turns submitted bytes into uniform page features, one page per
// "\n===\n" separated block. block makes the call hang until cancellation.
type fakePages struct {
	block bool
}

func (p *fakePages) Pages(ctx context.Context, data []byte) ([]types.PageFeatures, error) {
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	var pages []types.PageFeatures
	for i, text := range strings.Split(string(data), "\n===\n") {
		pages = append(pages, types.PageFeatures{
			PageNum:        i,
			Text:           text,
			DominantFont:   "Times-Roman",
			FontSizes:      []float64{12},
			StructuralHash: 7,
			TextDensity:    0.5,
		})
	}
	return pages, nil
}

// gatedFiles delays resolution until the gate opens, so tests can subscribe
// to the progress topic before the first event.
type gatedFiles struct {
	inner filesource.Source
	gate  chan struct{}
}

func (g *gatedFiles) Resolve(ctx context.Context, req *types.JobRequest) ([]filesource.File, error) {
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, types.WrapKind(types.ErrKindCancelled, ctx.Err())
		}
	}
	return g.inner.Resolve(ctx, req)
}

type testEnv struct {
	orch *Orchestrator
	bus  *progress.Bus
	fake *fakeQdrant
}

func newTestEnv(t *testing.T, pages *fakePages, files filesource.Source) *testEnv {
	t.Helper()
	fake := newFakeQdrant()
	store := vectorstore.New(fake.client(t), vectorstore.Config{
		VectorDim:   8,
		MaxAttempts: 1,
		MaxDelay:    time.Millisecond,
	}, nil)
	bus := progress.NewBus(256, nil)

	extractLLM := &providers.MockLLM{
		ExtractFunc: func(ctx context.Context, text string, schema json.RawMessage) ([]json.RawMessage, error) {
			return []json.RawMessage{
				json.RawMessage(`{"content":"Witness admitted texting at the time of the crash.","category":"admission","confidence":0.9}`),
			}, nil
		},
	}

	deps := Deps{
		Pages:      pages,
		Boundary:   boundary.New(boundary.Config{}, nil),
		Classifier: classify.New(classify.Config{}, nil, nil, nil),
		Chunker:    chunker.New(chunker.Config{TargetTokens: 200}, nil),
		Dense:      encode.NewDense(encode.DenseConfig{}, &providers.MockEmbedder{}, nil),
		Keywords:   encode.NewSparse(encode.SparseConfig{}),
		Citations:  encode.NewCitations(encode.SparseConfig{}),
		Store:      store,
		Registry:   dedupe.NewRegistry(t.TempDir()),
		Facts:      facts.New(facts.Config{}, extractLLM, &providers.MockEmbedder{}, store, nil),
		Files:      files,
		Bus:        bus,
	}
	return &testEnv{
		orch: New(Config{FileConcurrency: 2, SegmentConcurrency: 2}, deps),
		bus:  bus,
		fake: fake,
	}
}

// collectEvents drains the subscription until a terminal event or timeout.
func collectEvents(t *testing.T, sub *progress.Subscription) []types.Event {
	t.Helper()
	var out []types.Event
	deadline := time.After(15 * time.Second)
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				t.Fatal("subscription closed before a terminal event")
			}
			out = append(out, ev)
			if ev.Type.Terminal() {
				return out
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a terminal event; got %d events", len(out))
		}
	}
}

func waitForTerminal(t *testing.T, o *Orchestrator, id string) *types.ProcessingJob {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		job, err := o.Status(id)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if job.State.Terminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return nil
}

const depoText = "DEPOSITION OF JOHN SMITH\n" +
	"Q. Please state your name for the record.\n" +
	"A. John Smith. I was driving the tractor-trailer that morning.\n" +
	"Q. Were you using your phone?\n" +
	"A. I admit I was texting at the time of the crash."

func TestProcessHappyPath(t *testing.T) {
	gate := make(chan struct{})
	env := newTestEnv(t, &fakePages{}, &gatedFiles{inner: &filesource.Local{}, gate: gate})

	req := &types.JobRequest{
		CaseName:             "smith_v_jones",
		Files:                []types.InputFile{{Name: "depo.pdf", Bytes: []byte(depoText)}},
		EnableFactExtraction: true,
	}
	id, topic, err := env.orch.Submit(req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	sub := env.bus.Subscribe(topic)
	defer env.bus.Unsubscribe(sub)
	close(gate)

	events := collectEvents(t, sub)

	if events[0].Type != types.EventJobStarted {
		t.Errorf("first event = %s, want job.started", events[0].Type)
	}
	last := events[len(events)-1]
	if last.Type != types.EventJobCompleted {
		t.Fatalf("terminal event = %s, want job.completed", last.Type)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Errorf("seq not increasing: %d then %d", events[i-1].Seq, events[i].Seq)
		}
	}

	seen := map[types.EventType]int{}
	for _, ev := range events {
		seen[ev.Type]++
	}
	for _, want := range []types.EventType{
		types.EventDocumentFound, types.EventSegmentChunking,
		types.EventSegmentEmbedding, types.EventSegmentStored,
		types.EventFactExtracted,
	} {
		if seen[want] == 0 {
			t.Errorf("missing %s event", want)
		}
	}
	for _, ev := range events {
		if ev.Type == types.EventDocumentFound {
			if dt, _ := ev.Payload["documentType"].(string); dt != "Deposition" {
				t.Errorf("documentType = %q, want Deposition", dt)
			}
		}
	}

	job := waitForTerminal(t, env.orch, id)
	if job.State != types.JobCompleted {
		t.Errorf("state = %s, want completed", job.State)
	}
	tt := job.Totals
	if tt.FilesFound != 1 || tt.DocsProcessed != 1 || tt.ChunksStored < 1 || tt.FactsExtracted != 1 || tt.Errors != 0 {
		t.Errorf("totals = %+v", tt)
	}

	if n := env.fake.points("smith_v_jones_chunks"); n < 1 {
		t.Errorf("chunks collection points = %d", n)
	}
	if n := env.fake.points("smith_v_jones_chunks_hybrid"); n < 1 {
		t.Errorf("hybrid collection points = %d", n)
	}
	if n := env.fake.points("smith_v_jones_facts"); n != 1 {
		t.Errorf("facts collection points = %d, want 1", n)
	}
}

func TestProcessDuplicateFile(t *testing.T) {
	gate := make(chan struct{})
	env := newTestEnv(t, &fakePages{}, &gatedFiles{inner: &filesource.Local{}, gate: gate})

	data := []byte(depoText)
	req := &types.JobRequest{
		CaseName: "smith_v_jones",
		Files: []types.InputFile{
			{Name: "production_a.pdf", Bytes: data},
			{Name: "production_b.pdf", Bytes: data},
		},
	}
	id, topic, err := env.orch.Submit(req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	sub := env.bus.Subscribe(topic)
	defer env.bus.Unsubscribe(sub)
	close(gate)

	events := collectEvents(t, sub)
	duplicates := 0
	for _, ev := range events {
		if ev.Type == types.EventDocumentDuplicate {
			duplicates++
			if s, _ := ev.Payload["originalId"].(string); s == "" {
				t.Error("duplicate event missing originalId")
			}
		}
	}
	if duplicates != 1 {
		t.Errorf("duplicate events = %d, want 1", duplicates)
	}

	job := waitForTerminal(t, env.orch, id)
	if job.State != types.JobCompleted {
		t.Errorf("state = %s, want completed", job.State)
	}
	if job.Totals.DocsProcessed != 1 || job.Totals.DocsDuplicate != 1 {
		t.Errorf("totals = %+v", job.Totals)
	}
}

func TestCancelJob(t *testing.T) {
	gate := make(chan struct{})
	env := newTestEnv(t, &fakePages{block: true}, &gatedFiles{inner: &filesource.Local{}, gate: gate})

	req := &types.JobRequest{
		CaseName: "smith_v_jones",
		Files:    []types.InputFile{{Name: "depo.pdf", Bytes: []byte(depoText)}},
	}
	id, topic, err := env.orch.Submit(req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	sub := env.bus.Subscribe(topic)
	defer env.bus.Unsubscribe(sub)
	close(gate)

	// Wait for the job to start, then cancel while page extraction hangs.
	select {
	case ev := <-sub.C:
		if ev.Type != types.EventJobStarted {
			t.Fatalf("first event = %s", ev.Type)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("job.started never arrived")
	}
	if err := env.orch.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	events := collectEvents(t, sub)
	if events[len(events)-1].Type != types.EventJobCancelled {
		t.Errorf("terminal event = %s, want job.cancelled", events[len(events)-1].Type)
	}

	job := waitForTerminal(t, env.orch, id)
	if job.State != types.JobCancelled {
		t.Errorf("state = %s, want cancelled", job.State)
	}
	if job.CompletedAt == nil {
		t.Error("cancelled job has no completion time")
	}
}

func TestInfrastructureFailureFailsJob(t *testing.T) {
	env := newTestEnv(t, &fakePages{}, &filesource.Local{})
	env.fake.failExists = true

	req := &types.JobRequest{
		CaseName: "smith_v_jones",
		Files:    []types.InputFile{{Name: "depo.pdf", Bytes: []byte(depoText)}},
	}
	id, _, err := env.orch.Submit(req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	job := waitForTerminal(t, env.orch, id)
	if job.State != types.JobFailed {
		t.Errorf("state = %s, want failed", job.State)
	}
	if job.LastError == "" {
		t.Error("failed job carries no error")
	}
}

func TestChunkPageSpansAreAbsolute(t *testing.T) {
	gate := make(chan struct{})
	env := newTestEnv(t, &fakePages{}, &gatedFiles{inner: &filesource.Local{}, gate: gate})

	// Pages 0-1 are a motion, pages 2-3 a deposition; the second segment
	// starts at page 2, so its chunk spans must not shift past page 3.
	data := "MOTION FOR SUMMARY JUDGMENT\nDefendant moves for summary judgment on all counts." +
		"\n===\n" +
		"The argument addresses the duty element and causation at length." +
		"\n===\n" +
		"DEPOSITION OF JOHN SMITH\nQ. Were you on the phone?" +
		"\n===\n" +
		"A. I admit I was texting at the time of the crash."

	req := &types.JobRequest{
		CaseName: "smith_v_jones",
		Files:    []types.InputFile{{Name: "combined.pdf", Bytes: []byte(data)}},
	}
	id, topic, err := env.orch.Submit(req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	sub := env.bus.Subscribe(topic)
	defer env.bus.Unsubscribe(sub)
	close(gate)

	events := collectEvents(t, sub)
	if last := events[len(events)-1]; last.Type != types.EventJobCompleted {
		t.Fatalf("terminal event = %s, want job.completed", last.Type)
	}
	waitForTerminal(t, env.orch, id)

	payloads := env.fake.pointPayloads("smith_v_jones_chunks")
	if len(payloads) < 2 {
		t.Fatalf("got %d chunk payloads, want one per segment", len(payloads))
	}
	sawDeposition := false
	for _, p := range payloads {
		span, ok := p["pageSpan"].(map[string]any)
		if !ok {
			t.Fatalf("payload missing pageSpan: %v", p)
		}
		start := int(span["start"].(float64))
		end := int(span["end"].(float64))
		if start < 0 || end > 3 || start > end {
			t.Errorf("pageSpan [%d,%d] outside document pages [0,3]", start, end)
		}
		if p["documentType"] == "Deposition" {
			sawDeposition = true
			if start < 2 {
				t.Errorf("deposition chunk starts at page %d, segment begins at 2", start)
			}
		}
	}
	if !sawDeposition {
		t.Error("no deposition chunk stored")
	}
}

func TestStoreOutageFailsJob(t *testing.T) {
	gate := make(chan struct{})
	env := newTestEnv(t, &fakePages{}, &gatedFiles{inner: &filesource.Local{}, gate: gate})
	env.fake.failUpserts = true

	req := &types.JobRequest{
		CaseName: "smith_v_jones",
		Files:    []types.InputFile{{Name: "depo.pdf", Bytes: []byte(depoText)}},
	}
	id, topic, err := env.orch.Submit(req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	sub := env.bus.Subscribe(topic)
	defer env.bus.Unsubscribe(sub)
	close(gate)

	events := collectEvents(t, sub)
	if last := events[len(events)-1]; last.Type != types.EventJobFailed {
		t.Errorf("terminal event = %s, want job.failed", last.Type)
	}

	job := waitForTerminal(t, env.orch, id)
	if job.State != types.JobFailed {
		t.Errorf("state = %s, want failed (store unreachable past retry budget)", job.State)
	}
	if job.LastError == "" {
		t.Error("failed job carries no error")
	}
	tt := job.Totals
	if tt.Errors+tt.DocsProcessed > tt.FilesFound {
		t.Errorf("errors(%d) + docsProcessed(%d) > filesFound(%d)", tt.Errors, tt.DocsProcessed, tt.FilesFound)
	}
}

func TestSegmentFailuresCountOncePerFile(t *testing.T) {
	gate := make(chan struct{})
	env := newTestEnv(t, &fakePages{}, &gatedFiles{inner: &filesource.Local{}, gate: gate})
	env.fake.rejectUpserts = true

	req := &types.JobRequest{
		CaseName: "smith_v_jones",
		Files:    []types.InputFile{{Name: "depo.pdf", Bytes: []byte(depoText)}},
	}
	id, topic, err := env.orch.Submit(req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	sub := env.bus.Subscribe(topic)
	defer env.bus.Unsubscribe(sub)
	close(gate)

	events := collectEvents(t, sub)
	if last := events[len(events)-1]; last.Type != types.EventJobCompleted {
		t.Errorf("terminal event = %s, want job.completed for a rejected write", last.Type)
	}

	job := waitForTerminal(t, env.orch, id)
	tt := job.Totals
	if tt.Errors != 1 {
		t.Errorf("errors = %d, want 1 (one per failed file)", tt.Errors)
	}
	if tt.DocsProcessed != 0 || tt.FilesFound != 1 {
		t.Errorf("totals = %+v", tt)
	}
	if tt.Errors+tt.DocsProcessed > tt.FilesFound {
		t.Errorf("errors(%d) + docsProcessed(%d) > filesFound(%d)", tt.Errors, tt.DocsProcessed, tt.FilesFound)
	}
	// The detail list keeps both the segment failure and the document abort.
	if len(job.Errors) < 2 {
		t.Errorf("error details = %d, want segment and document entries", len(job.Errors))
	}
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t, &fakePages{}, &filesource.Local{})

	t.Run("missing case name", func(t *testing.T) {
		_, _, err := env.orch.Submit(&types.JobRequest{
			Files: []types.InputFile{{Name: "a.pdf", Bytes: []byte("x")}},
		})
		if types.KindOf(err) != types.ErrKindInputInvalid {
			t.Errorf("kind = %v, want input_invalid", types.KindOf(err))
		}
	})

	t.Run("no inputs", func(t *testing.T) {
		_, _, err := env.orch.Submit(&types.JobRequest{CaseName: "smith_v_jones"})
		if types.KindOf(err) != types.ErrKindInputInvalid {
			t.Errorf("kind = %v, want input_invalid", types.KindOf(err))
		}
	})
}

func TestStatusAndCancelUnknownJob(t *testing.T) {
	env := newTestEnv(t, &fakePages{}, &filesource.Local{})

	if _, err := env.orch.Status("no-such-job"); types.KindOf(err) != types.ErrKindNotFound {
		t.Errorf("Status kind = %v, want not_found", types.KindOf(err))
	}
	if err := env.orch.Cancel("no-such-job"); types.KindOf(err) != types.ErrKindNotFound {
		t.Errorf("Cancel kind = %v, want not_found", types.KindOf(err))
	}
}
