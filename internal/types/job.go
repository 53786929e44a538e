package types

import "time"

// JobState is the lifecycle state of a processing job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// JobTotals aggregates per-job counters. errors + docsProcessed never
// exceeds filesFound on a terminated job.
type JobTotals struct {
	FilesFound     int `json:"files_found"`
	DocsProcessed  int `json:"docs_processed"`
	DocsDuplicate  int `json:"docs_duplicate"`
	ChunksStored   int `json:"chunks_stored"`
	FactsExtracted int `json:"facts_extracted"`
	Errors         int `json:"errors"`
}

// JobError records one recovered per-segment or per-document failure.
type JobError struct {
	DocumentID string `json:"document_id,omitempty"`
	SegmentID  string `json:"segment_id,omitempty"`
	Stage      string `json:"stage"`
	Message    string `json:"message"`
}

// ProcessingJob is the orchestrator's job record. Snapshots of it are served
// by the status endpoint; the orchestrator is the only writer.
type ProcessingJob struct {
	ID          string     `json:"id"`
	CaseName    string     `json:"case_name"`
	State       JobState   `json:"state"`
	Totals      JobTotals  `json:"totals"`
	Errors      []JobError `json:"errors,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// InputFile is one file submitted for processing.
type InputFile struct {
	Name  string
	Bytes []byte
}

// JobRequest describes one submission to the orchestrator.
// Exactly one of Files or RemoteFolderRef should be set.
type JobRequest struct {
	CaseName                 string
	Files                    []InputFile
	RemoteFolderRef          string
	ProductionMetadata       map[string]string
	EnableFactExtraction     bool
	EnableDeficiencyAnalysis bool

	// Carried through for downstream deficiency analysis; unused here.
	RTPDocumentID        string
	OCResponseDocumentID string
}
