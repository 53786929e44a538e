// Package types defines the core entities of the discovery pipeline.
// Every persisted record carries a CaseName; nothing in this package may be
// read or written across cases except records in a shared collection.
package types

import (
	"time"
)

// BatesRange is an inclusive range of Bates stamps on consecutive pages.
type BatesRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Document is an ingested file. Immutable after creation except for the
// SupersededBy back-reference.
type Document struct {
	ID             string            `json:"id"`
	CaseName       string            `json:"case_name"`
	ContentHash    string            `json:"content_hash"` // SHA-256 of raw bytes
	MetadataHash   string            `json:"metadata_hash"`
	FileName       string            `json:"file_name"`
	SizeBytes      int64             `json:"size_bytes"`
	PageCount      int               `json:"page_count"`
	MimeType       string            `json:"mime_type"`
	IngestedAt     time.Time         `json:"ingested_at"`
	SourceMetadata map[string]string `json:"source_metadata,omitempty"`
	SupersededBy   string            `json:"superseded_by,omitempty"`
}

// Segment is a contiguous page range of a document treated as one logical
// document. StartPage <= EndPage; the segments of a document partition its
// page range.
type Segment struct {
	ID                 string       `json:"id"`
	DocumentID         string       `json:"document_id"`
	CaseName           string       `json:"case_name"`
	StartPage          int          `json:"start_page"`
	EndPage            int          `json:"end_page"` // inclusive
	DocumentType       DocumentType `json:"document_type"`
	Title              string       `json:"title,omitempty"`
	Confidence         float64      `json:"confidence"`
	BatesRange         *BatesRange  `json:"bates_range,omitempty"`
	BoundaryIndicators []string     `json:"boundary_indicators"`
	NeedsOCR           bool         `json:"needs_ocr,omitempty"`
}

// PageCount returns the number of pages the segment spans.
func (s *Segment) PageCount() int {
	return s.EndPage - s.StartPage + 1
}

// PageSpan is the min/max page range a chunk draws text from.
type PageSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Chunk is the unit of storage and retrieval. Ordinal is dense per segment.
type Chunk struct {
	ID              string             `json:"id"`
	CaseName        string             `json:"case_name"`
	DocumentID      string             `json:"document_id"`
	SegmentID       string             `json:"segment_id"`
	Ordinal         int                `json:"ordinal"`
	Text            string             `json:"text"`
	DenseVector     []float32          `json:"dense_vector,omitempty"`
	SparseKeywords  map[uint32]float32 `json:"sparse_keywords,omitempty"`
	SparseCitations map[uint32]float32 `json:"sparse_citations,omitempty"`
	TokenCount      int                `json:"token_count"`
	PageSpan        PageSpan           `json:"page_span"`
	Metadata        ChunkMetadata      `json:"metadata"`
}

// ChunkMetadata is the filterable payload stored alongside each vector.
// ProductionBatch stays top-level in the store payload so it remains
// indexable.
type ChunkMetadata struct {
	DocumentType    DocumentType `json:"document_type"`
	BatesStart      string       `json:"bates_start,omitempty"`
	BatesEnd        string       `json:"bates_end,omitempty"`
	ProductionBatch string       `json:"production_batch,omitempty"`
	ProducingParty  string       `json:"producing_party,omitempty"`
	HasCitations    bool         `json:"has_citations"`
	CitationCount   int          `json:"citation_count"`
	HasMonetary     bool         `json:"has_monetary"`
	HasDates        bool         `json:"has_dates"`
}

// FactCategory buckets extracted facts.
type FactCategory string

const (
	FactCategoryEvent         FactCategory = "event"
	FactCategoryAdmission     FactCategory = "admission"
	FactCategoryFinancial     FactCategory = "financial"
	FactCategoryMedical       FactCategory = "medical"
	FactCategoryCommunication FactCategory = "communication"
	FactCategoryRegulatory    FactCategory = "regulatory"
	FactCategoryOther         FactCategory = "other"
)

// DateRef is a date mentioned in a fact, with the verbatim text it came from.
type DateRef struct {
	Date     string `json:"date"` // ISO 8601 where resolvable
	Verbatim string `json:"verbatim"`
}

// FactEdit is one entry in a fact's edit history.
type FactEdit struct {
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason,omitempty"`
	Previous  string    `json:"previous"`
	EditedAt  time.Time `json:"edited_at"`
	Deletion  bool      `json:"deletion,omitempty"`
}

// Fact is a schema-validated statement extracted from chunks.
// Mutated only via edit/delete operations that append to EditHistory;
// deletion is soft.
type Fact struct {
	ID             string              `json:"id"`
	CaseName       string              `json:"case_name"`
	DocumentID     string              `json:"document_id"`
	ChunkIDs       []string            `json:"chunk_ids"`
	Content        string              `json:"content"`
	Category       FactCategory        `json:"category"`
	Entities       map[string][]string `json:"entities,omitempty"`
	DateReferences []DateRef           `json:"date_references,omitempty"`
	Confidence     float64             `json:"confidence"`
	SourceSnippet  string              `json:"source_snippet,omitempty"`
	Page           int                 `json:"page"`
	BBox           []float64           `json:"bbox,omitempty"` // [x1,y1,x2,y2]
	IsEdited       bool                `json:"is_edited"`
	IsDeleted      bool                `json:"is_deleted"`
	EditHistory    []FactEdit          `json:"edit_history,omitempty"`
	ReviewStatus   string              `json:"review_status,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// DuplicateLocation records one additional sighting of identical bytes.
type DuplicateLocation struct {
	CaseName string    `json:"case_name"`
	Path     string    `json:"path"`
	SeenAt   time.Time `json:"seen_at"`
}

// DuplicateRecord maps a content hash to its primary document within a case.
// Cross-case deduplication is prohibited: identical bytes in two cases are
// two independent documents.
type DuplicateRecord struct {
	ContentHash         string              `json:"content_hash"`
	PrimaryDocumentID   string              `json:"primary_document_id"`
	AdditionalLocations []DuplicateLocation `json:"additional_locations,omitempty"`
}

// PageFeatures is the per-page feature vector the boundary detector consumes.
type PageFeatures struct {
	PageNum           int       `json:"page_num"`
	Text              string    `json:"text"`
	DominantFont      string    `json:"dominant_font,omitempty"`
	FontSizes         []float64 `json:"font_sizes,omitempty"`
	HasHeader         bool      `json:"has_header"`
	HasFooter         bool      `json:"has_footer"`
	HasPageNumber     bool      `json:"has_page_number"`
	TextDensity       float64   `json:"text_density"`
	HasSignatureBlock bool      `json:"has_signature_block"`
	BatesNumber       string    `json:"bates_number,omitempty"`
	StructuralHash    uint64    `json:"structural_hash"`
	LayoutDictBlocks  int       `json:"layout_dict_blocks,omitempty"`
}
