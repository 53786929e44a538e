// Package orchestrator drives the discovery processing pipeline: file
// fan-out, boundary detection, per-segment classification, chunking,
// encoding, storage, and fact extraction, with progress events on a
// per-job topic.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caselight/caselight/internal/boundary"
	"github.com/caselight/caselight/internal/chunker"
	"github.com/caselight/caselight/internal/classify"
	"github.com/caselight/caselight/internal/dedupe"
	"github.com/caselight/caselight/internal/encode"
	"github.com/caselight/caselight/internal/facts"
	"github.com/caselight/caselight/internal/filesource"
	"github.com/caselight/caselight/internal/home"
	"github.com/caselight/caselight/internal/pagefeat"
	"github.com/caselight/caselight/internal/progress"
	"github.com/caselight/caselight/internal/types"
	"github.com/caselight/caselight/internal/vectorstore"
)

// Config holds the concurrency knobs and per-stage timeouts.
type Config struct {
	FileConcurrency    int // N: files per job
	SegmentConcurrency int // M: segments per document
	EmbedInflight      int // B: embedding batches in flight per job
	UpsertInflight     int // U: upsert batches in flight per case

	// SegmentFailureAbort is the per-document segment failure rate above
	// which the document is aborted. Default 0.25.
	SegmentFailureAbort float64

	BoundaryTimeout    time.Duration
	ClassifyTimeout    time.Duration
	EmbedBatchTimeout  time.Duration
	UpsertBatchTimeout time.Duration
	FactExtractTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.FileConcurrency <= 0 {
		c.FileConcurrency = 4
	}
	if c.SegmentConcurrency <= 0 {
		c.SegmentConcurrency = 8
	}
	if c.EmbedInflight <= 0 {
		c.EmbedInflight = 2
	}
	if c.UpsertInflight <= 0 {
		c.UpsertInflight = 4
	}
	if c.SegmentFailureAbort <= 0 {
		c.SegmentFailureAbort = 0.25
	}
	if c.BoundaryTimeout <= 0 {
		c.BoundaryTimeout = 120 * time.Second
	}
	if c.ClassifyTimeout <= 0 {
		c.ClassifyTimeout = 30 * time.Second
	}
	if c.EmbedBatchTimeout <= 0 {
		c.EmbedBatchTimeout = 60 * time.Second
	}
	if c.UpsertBatchTimeout <= 0 {
		c.UpsertBatchTimeout = 30 * time.Second
	}
	if c.FactExtractTimeout <= 0 {
		c.FactExtractTimeout = 60 * time.Second
	}
}

// Deps are the pipeline collaborators. All are required except Facts and
// Home.
type Deps struct {
	Pages      pagefeat.Source
	Boundary   *boundary.Detector
	Classifier *classify.Classifier
	Chunker    *chunker.Chunker
	Dense      *encode.DenseEncoder
	Keywords   *encode.SparseEncoder
	Citations  *encode.CitationEncoder
	Store      *vectorstore.Store
	Registry   *dedupe.Registry
	Facts      *facts.Extractor
	Files      filesource.Source
	Bus        *progress.Bus
	Home       *home.Dir
	Logger     *slog.Logger
}

// jobHandle is the orchestrator's live view of one job.
type jobHandle struct {
	mu      sync.Mutex
	job     types.ProcessingJob
	cancel  context.CancelFunc
	topic   string
	scratch *home.JobScratch

	upsertSem chan struct{}
	embedSem  chan struct{}
}

// Orchestrator accepts jobs and runs them to a terminal state. It is the
// single publisher on each job's progress topic.
type Orchestrator struct {
	cfg  Config
	deps Deps

	mu   sync.RWMutex
	jobs map[string]*jobHandle
}

// New creates an orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	cfg.applyDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{
		cfg:  cfg,
		deps: deps,
		jobs: make(map[string]*jobHandle),
	}
}

// Submit validates the request, registers a queued job, and starts it in
// the background. Returns the processing id and the progress topic.
func (o *Orchestrator) Submit(req *types.JobRequest) (string, string, error) {
	if req.CaseName == "" {
		return "", "", types.Errorf(types.ErrKindInputInvalid, "caseName is required")
	}
	if len(req.Files) == 0 && req.RemoteFolderRef == "" {
		return "", "", types.Errorf(types.ErrKindInputInvalid, "no files and no folder ref")
	}

	processingID := uuid.New().String()
	topic := types.TopicKey(req.CaseName, processingID)
	ctx, cancel := context.WithCancel(context.Background())

	h := &jobHandle{
		job: types.ProcessingJob{
			ID:       processingID,
			CaseName: req.CaseName,
			State:    types.JobQueued,
		},
		cancel:    cancel,
		topic:     topic,
		embedSem:  make(chan struct{}, o.cfg.EmbedInflight),
		upsertSem: make(chan struct{}, o.cfg.UpsertInflight),
	}
	if o.deps.Home != nil {
		scratch, err := o.deps.Home.NewJobScratch(processingID)
		if err != nil {
			cancel()
			return "", "", fmt.Errorf("create job scratch: %w", err)
		}
		h.scratch = scratch
	}

	o.mu.Lock()
	o.jobs[processingID] = h
	o.mu.Unlock()

	go o.run(ctx, h, req)
	return processingID, topic, nil
}

// Status returns a snapshot of the job record.
func (o *Orchestrator) Status(processingID string) (*types.ProcessingJob, error) {
	o.mu.RLock()
	h, ok := o.jobs[processingID]
	o.mu.RUnlock()
	if !ok {
		return nil, types.WrapKind(types.ErrKindNotFound,
			fmt.Errorf("job %s: %w", processingID, types.ErrNotFound))
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	snapshot := h.job
	snapshot.Errors = append([]types.JobError(nil), h.job.Errors...)
	return &snapshot, nil
}

// Cancel requests cancellation of a running job. Terminal jobs are a no-op.
func (o *Orchestrator) Cancel(processingID string) error {
	o.mu.RLock()
	h, ok := o.jobs[processingID]
	o.mu.RUnlock()
	if !ok {
		return types.WrapKind(types.ErrKindNotFound,
			fmt.Errorf("job %s: %w", processingID, types.ErrNotFound))
	}
	h.cancel()
	return nil
}

// run drives a job to a terminal state.
func (o *Orchestrator) run(ctx context.Context, h *jobHandle, req *types.JobRequest) {
	started := time.Now()
	h.update(func(j *types.ProcessingJob) {
		j.State = types.JobRunning
		j.StartedAt = started.UTC()
	})
	logger := o.deps.Logger.With("processing_id", h.job.ID, "case", req.CaseName)

	defer func() {
		if h.scratch != nil {
			if err := h.scratch.Release(); err != nil {
				logger.Warn("failed to release job scratch", "error", err)
			}
		}
	}()

	if _, err := o.deps.Store.EnsureCollections(ctx, req.CaseName); err != nil {
		o.fail(h, "ensure_collections", "", err)
		return
	}

	files, err := o.deps.Files.Resolve(ctx, req)
	if err != nil {
		o.fail(h, "resolve_files", "", err)
		return
	}
	h.update(func(j *types.ProcessingJob) {
		j.Totals.FilesFound = len(files)
	})
	o.deps.Bus.Publish(h.topic, types.EventJobStarted, map[string]any{
		"totalFiles": len(files),
	})
	logger.Info("job started", "total_files", len(files))

	var (
		wg       sync.WaitGroup
		fileSem  = make(chan struct{}, o.cfg.FileConcurrency)
		fatalMu  sync.Mutex
		fatalErr error
	)
	setFatal := func(err error) {
		fatalMu.Lock()
		if fatalErr == nil {
			fatalErr = err
			h.cancel()
		}
		fatalMu.Unlock()
	}

	for i := range files {
		if ctx.Err() != nil {
			break
		}
		file := files[i]
		wg.Add(1)
		fileSem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-fileSem }()
			if err := o.processFile(ctx, h, req, file); err != nil {
				if isInfrastructure(err) {
					setFatal(err)
					return
				}
				if errors.Is(err, context.Canceled) {
					return
				}
				h.recordError(types.JobError{Stage: "document", Message: err.Error()})
				logger.Warn("document failed", "file", file.Name, "error", err)
			}
		}()
	}
	wg.Wait()

	elapsed := time.Since(started)
	switch {
	case fatalErr != nil:
		o.fail(h, "infrastructure", "", fatalErr)
	case ctx.Err() != nil:
		now := time.Now().UTC()
		h.update(func(j *types.ProcessingJob) {
			j.State = types.JobCancelled
			j.CompletedAt = &now
		})
		o.deps.Bus.Publish(h.topic, types.EventJobCancelled, map[string]any{
			"reason": "cancelled by caller",
		})
		logger.Info("job cancelled", "elapsed", elapsed)
	default:
		now := time.Now().UTC()
		var totals types.JobTotals
		h.update(func(j *types.ProcessingJob) {
			j.State = types.JobCompleted
			j.CompletedAt = &now
			totals = j.Totals
		})
		o.deps.Bus.Publish(h.topic, types.EventJobCompleted, map[string]any{
			"totals":         totals,
			"elapsedSeconds": elapsed.Seconds(),
		})
		logger.Info("job completed",
			"docs_processed", totals.DocsProcessed,
			"chunks_stored", totals.ChunksStored,
			"elapsed", elapsed)
	}
}

func (o *Orchestrator) fail(h *jobHandle, stage, documentID string, err error) {
	now := time.Now().UTC()
	h.update(func(j *types.ProcessingJob) {
		j.State = types.JobFailed
		j.CompletedAt = &now
		j.LastError = err.Error()
	})
	payload := map[string]any{
		"stage": stage,
		"error": err.Error(),
	}
	if documentID != "" {
		payload["documentId"] = documentID
	}
	o.deps.Bus.Publish(h.topic, types.EventJobFailed, payload)
	o.deps.Logger.Error("job failed",
		"processing_id", h.job.ID, "stage", stage, "error", err)
}

// processFile runs one input file through the pipeline.
func (o *Orchestrator) processFile(ctx context.Context, h *jobHandle, req *types.JobRequest, file filesource.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := &types.Document{
		ID:             uuid.New().String(),
		CaseName:       req.CaseName,
		ContentHash:    dedupe.ContentHash(file.Data),
		FileName:       file.Name,
		SizeBytes:      int64(len(file.Data)),
		MimeType:       "application/pdf",
		IngestedAt:     time.Now().UTC(),
		SourceMetadata: req.ProductionMetadata,
	}

	reg, err := o.deps.Registry.Register(doc, file.Path)
	if err != nil {
		return fmt.Errorf("register document: %w", err)
	}
	if reg.Duplicate {
		h.update(func(j *types.ProcessingJob) {
			j.Totals.DocsDuplicate++
		})
		o.deps.Bus.Publish(h.topic, types.EventDocumentDuplicate, map[string]any{
			"documentId": doc.ID,
			"originalId": reg.Primary.ID,
		})
		return nil
	}

	boundaryCtx, cancel := context.WithTimeout(ctx, o.cfg.BoundaryTimeout)
	defer cancel()
	pages, err := o.deps.Pages.Pages(boundaryCtx, file.Data)
	if err != nil {
		return fmt.Errorf("page features for %s: %w", file.Name, err)
	}
	doc.PageCount = len(pages)

	segments, err := o.deps.Boundary.Detect(boundaryCtx, pages)
	if err != nil {
		return fmt.Errorf("boundary detection for %s: %w", file.Name, err)
	}
	for i := range segments {
		segments[i].ID = uuid.New().String()
		segments[i].DocumentID = doc.ID
		segments[i].CaseName = req.CaseName
	}

	if len(segments) == 0 {
		// Zero-page document: recorded, nothing to index.
		doc.MetadataHash = dedupe.MetadataHash(doc.FileName, doc.SizeBytes, 0, types.DocTypeUnknown)
		if err := o.deps.Registry.UpdateDocument(doc); err != nil {
			return err
		}
		h.update(func(j *types.ProcessingJob) {
			j.Totals.DocsProcessed++
		})
		return nil
	}

	// Classification runs before announcement so document.found carries the
	// final type and title.
	texts := make([]chunker.Extract, len(segments))
	for i := range segments {
		texts[i] = chunker.ExtractText(pages, &segments[i])
		if texts[i].NeedsOCR {
			segments[i].NeedsOCR = true
		}
		classifyCtx, cancelClassify := context.WithTimeout(ctx, o.cfg.ClassifyTimeout)
		err := o.deps.Classifier.Classify(classifyCtx, &segments[i], texts[i].Text)
		cancelClassify()
		if err != nil {
			// Classification failure downgrades to Unknown rather than losing
			// the segment.
			o.deps.Logger.Warn("classification failed",
				"document_id", doc.ID, "segment_id", segments[i].ID, "error", err)
			if segments[i].DocumentType == types.DocTypeUnknown {
				segments[i].DocumentType = types.DocTypeOther
				segments[i].Confidence = 0.3
			}
		}
	}

	doc.MetadataHash = dedupe.MetadataHash(doc.FileName, doc.SizeBytes, len(segments), segments[0].DocumentType)
	if err := o.deps.Registry.UpdateDocument(doc); err != nil {
		return err
	}

	for i := range segments {
		seg := &segments[i]
		payload := map[string]any{
			"documentId":   doc.ID,
			"segmentId":    seg.ID,
			"title":        seg.Title,
			"documentType": string(seg.DocumentType),
			"pageCount":    seg.PageCount(),
			"confidence":   seg.Confidence,
		}
		if seg.BatesRange != nil {
			payload["batesRange"] = seg.BatesRange
		}
		o.deps.Bus.Publish(h.topic, types.EventDocumentFound, payload)
	}

	var (
		wg       sync.WaitGroup
		segSem   = make(chan struct{}, o.cfg.SegmentConcurrency)
		failMu   sync.Mutex
		failures int
		aborted  bool
		infraErr error
	)
	for i := range segments {
		failMu.Lock()
		stop := aborted
		failMu.Unlock()
		if stop || ctx.Err() != nil {
			break
		}

		seg := &segments[i]
		ext := &texts[i]
		wg.Add(1)
		segSem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-segSem }()
			if err := o.processSegment(ctx, h, req, doc, seg, ext); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				if isInfrastructure(err) {
					// The store or an upstream service is down; stop the
					// document and surface the kinded error to the job.
					failMu.Lock()
					if infraErr == nil {
						infraErr = err
					}
					aborted = true
					failMu.Unlock()
					return
				}
				h.appendError(types.JobError{
					DocumentID: doc.ID,
					SegmentID:  seg.ID,
					Stage:      "segment",
					Message:    err.Error(),
				})
				failMu.Lock()
				failures++
				if float64(failures)/float64(len(segments)) > o.cfg.SegmentFailureAbort {
					aborted = true
				}
				failMu.Unlock()
				o.deps.Logger.Warn("segment failed",
					"document_id", doc.ID, "segment_id", seg.ID, "error", err)
			}
		}()
	}
	wg.Wait()

	if infraErr != nil {
		return fmt.Errorf("document %s: %w", doc.ID, infraErr)
	}
	if aborted {
		return fmt.Errorf("document %s aborted: %d of %d segments failed", doc.ID, failures, len(segments))
	}
	h.update(func(j *types.ProcessingJob) {
		j.Totals.DocsProcessed++
	})
	return nil
}

// processSegment chunks, encodes, stores, and (optionally) extracts facts
// for one segment.
func (o *Orchestrator) processSegment(ctx context.Context, h *jobHandle, req *types.JobRequest, doc *types.Document, seg *types.Segment, ext *chunker.Extract) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	parts := o.deps.Chunker.Chunk(ext)
	if len(parts) == 0 {
		return nil
	}

	chunks := make([]*types.Chunk, len(parts))
	for i, part := range parts {
		c := &types.Chunk{
			ID:         vectorstore.ChunkID(req.CaseName, doc.ID, seg.ID, part.Ordinal),
			CaseName:   req.CaseName,
			DocumentID: doc.ID,
			SegmentID:  seg.ID,
			Ordinal:    part.Ordinal,
			Text:       part.Text,
			TokenCount: part.TokenCount,
			// Chunker spans are already absolute page numbers.
			PageSpan: part.PageSpan,
			Metadata: types.ChunkMetadata{
				DocumentType:    seg.DocumentType,
				ProductionBatch: req.ProductionMetadata["productionBatch"],
				ProducingParty:  req.ProductionMetadata["producingParty"],
			},
		}
		if seg.BatesRange != nil {
			c.Metadata.BatesStart = seg.BatesRange.Start
			c.Metadata.BatesEnd = seg.BatesRange.End
		}
		c.SparseKeywords = o.deps.Keywords.Encode(part.Text)
		c.SparseCitations = o.deps.Citations.Encode(part.Text)
		o.deps.Citations.Flags(part.Text, &c.Metadata)
		chunks[i] = c
	}
	o.deps.Bus.Publish(h.topic, types.EventSegmentChunking, map[string]any{
		"documentId":    doc.ID,
		"segmentId":     seg.ID,
		"chunksCreated": len(chunks),
		"progress":      100,
	})

	if err := o.withSem(ctx, h.embedSem, func() error {
		embedCtx, cancel := context.WithTimeout(ctx, o.cfg.EmbedBatchTimeout)
		defer cancel()
		return o.deps.Dense.EncodeChunks(embedCtx, chunks)
	}); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	o.deps.Bus.Publish(h.topic, types.EventSegmentEmbedding, map[string]any{
		"documentId": doc.ID,
		"segmentId":  seg.ID,
		"progress":   100,
	})

	var stored int
	if err := o.withSem(ctx, h.upsertSem, func() error {
		upsertCtx, cancel := context.WithTimeout(ctx, o.cfg.UpsertBatchTimeout)
		defer cancel()
		var err error
		stored, err = o.deps.Store.UpsertChunks(upsertCtx, req.CaseName, chunks)
		return err
	}); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	h.update(func(j *types.ProcessingJob) {
		j.Totals.ChunksStored += stored
	})
	o.deps.Bus.Publish(h.topic, types.EventSegmentStored, map[string]any{
		"documentId":    doc.ID,
		"segmentId":     seg.ID,
		"vectorsStored": stored,
	})

	if req.EnableFactExtraction && o.deps.Facts != nil {
		factCtx, cancel := context.WithTimeout(ctx, o.cfg.FactExtractTimeout)
		defer cancel()
		extracted, err := o.deps.Facts.ExtractSegment(factCtx, req.CaseName, seg, chunks, false)
		for _, fact := range extracted {
			h.update(func(j *types.ProcessingJob) {
				j.Totals.FactsExtracted++
			})
			o.deps.Bus.Publish(h.topic, types.EventFactExtracted, map[string]any{
				"documentId": doc.ID,
				"factId":     fact.ID,
				"category":   string(fact.Category),
				"confidence": fact.Confidence,
			})
		}
		if err != nil {
			return fmt.Errorf("fact extraction: %w", err)
		}
	}
	return nil
}

// withSem runs fn while holding a slot on sem, respecting cancellation.
func (o *Orchestrator) withSem(ctx context.Context, sem chan struct{}, fn func() error) error {
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-sem }()
	return fn()
}

// isInfrastructure reports whether an error means the backing services are
// down and the whole job must fail.
func isInfrastructure(err error) bool {
	switch types.KindOf(err) {
	case types.ErrKindBackendUnavailable, types.ErrKindTransient:
		return true
	}
	return false
}

func (h *jobHandle) update(fn func(*types.ProcessingJob)) {
	h.mu.Lock()
	fn(&h.job)
	h.mu.Unlock()
}

// recordError adds an error detail and counts it against the file-level
// total. At most one counted error per failed file keeps
// errors + docsProcessed bounded by filesFound.
func (h *jobHandle) recordError(e types.JobError) {
	h.mu.Lock()
	h.job.Errors = append(h.job.Errors, e)
	h.job.Totals.Errors++
	h.mu.Unlock()
}

// appendError adds an error detail without touching the file-level counter.
// Segment failures land here; their file fails once, via recordError.
func (h *jobHandle) appendError(e types.JobError) {
	h.mu.Lock()
	h.job.Errors = append(h.job.Errors, e)
	h.mu.Unlock()
}
