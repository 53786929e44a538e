// Package dedupe maintains the per-case document registry used to detect
// identical re-ingestions.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/caselight/caselight/internal/types"
)

// Registry maps contentHash to the primary document per case. Read-then-
// write of a content hash is serialized per case by a case-keyed mutex;
// cross-case deduplication never happens because each case owns its own
// file and hash space.
type Registry struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	cases map[string]*caseRegistry
}

// caseRegistry is the on-disk unit: one JSON file per case.
type caseRegistry struct {
	CaseName  string                            `json:"case_name"`
	Documents map[string]*types.Document        `json:"documents"`  // by document id
	ByHash    map[string]*types.DuplicateRecord `json:"by_hash"`    // contentHash → record
	UpdatedAt time.Time                         `json:"updated_at"`
}

// NewRegistry creates a registry rooted at dir (the home registry path).
func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
		cases: make(map[string]*caseRegistry),
	}
}

// caseLock returns the mutex serializing one case's registry operations.
func (r *Registry) caseLock(caseName string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.locks[caseName]; ok {
		return l
	}
	l := &sync.Mutex{}
	r.locks[caseName] = l
	return l
}

var caseFileRe = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func (r *Registry) casePath(caseName string) string {
	safe := caseFileRe.ReplaceAllString(caseName, "_")
	return filepath.Join(r.dir, safe+".json")
}

// loadCase reads (or initializes) a case registry. Caller holds the case
// lock.
func (r *Registry) loadCase(caseName string) (*caseRegistry, error) {
	r.mu.Lock()
	cached, ok := r.cases[caseName]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	cr := &caseRegistry{
		CaseName:  caseName,
		Documents: make(map[string]*types.Document),
		ByHash:    make(map[string]*types.DuplicateRecord),
	}
	data, err := os.ReadFile(r.casePath(caseName))
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cr); err != nil {
			return nil, fmt.Errorf("corrupt registry for case %s: %w", caseName, err)
		}
	case os.IsNotExist(err):
		// first ingestion for this case
	default:
		return nil, fmt.Errorf("read registry: %w", err)
	}

	r.mu.Lock()
	r.cases[caseName] = cr
	r.mu.Unlock()
	return cr, nil
}

// saveCase persists a case registry atomically. Caller holds the case lock.
func (r *Registry) saveCase(cr *caseRegistry) error {
	cr.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(cr, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	path := r.casePath(cr.CaseName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return os.Rename(tmp, path)
}

// RegisterResult is the outcome of a Register call.
type RegisterResult struct {
	// Duplicate is true when identical bytes were already ingested into this
	// case; Primary then names the original document.
	Duplicate bool
	Primary   *types.Document
}

// ContentHash computes the dedup key for raw file bytes.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MetadataHash computes the secondary same-file-new-production hash. It is
// surfaced to callers but never used to dedupe.
func MetadataHash(fileName string, size int64, segmentCount int, documentType types.DocumentType) string {
	normalized := strings.ToLower(strings.TrimSpace(fileName))
	key := fmt.Sprintf("%s|%d|%d|%s", normalized, size, segmentCount, documentType)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Register records a document. If its contentHash is already present in the
// case, the sighting is appended to the primary record's additional
// locations, no new registration happens, and the primary is returned.
func (r *Registry) Register(doc *types.Document, sourcePath string) (*RegisterResult, error) {
	lock := r.caseLock(doc.CaseName)
	lock.Lock()
	defer lock.Unlock()

	cr, err := r.loadCase(doc.CaseName)
	if err != nil {
		return nil, err
	}

	if rec, ok := cr.ByHash[doc.ContentHash]; ok {
		primary := cr.Documents[rec.PrimaryDocumentID]
		rec.AdditionalLocations = append(rec.AdditionalLocations, types.DuplicateLocation{
			CaseName: doc.CaseName,
			Path:     sourcePath,
			SeenAt:   time.Now().UTC(),
		})
		if err := r.saveCase(cr); err != nil {
			return nil, err
		}
		return &RegisterResult{Duplicate: true, Primary: primary}, nil
	}

	cr.Documents[doc.ID] = doc
	cr.ByHash[doc.ContentHash] = &types.DuplicateRecord{
		ContentHash:       doc.ContentHash,
		PrimaryDocumentID: doc.ID,
	}
	if err := r.saveCase(cr); err != nil {
		return nil, err
	}
	return &RegisterResult{Duplicate: false, Primary: doc}, nil
}

// UpdateDocument rewrites a stored document record, typically after the
// pipeline fills in page count or metadata hash.
func (r *Registry) UpdateDocument(doc *types.Document) error {
	lock := r.caseLock(doc.CaseName)
	lock.Lock()
	defer lock.Unlock()

	cr, err := r.loadCase(doc.CaseName)
	if err != nil {
		return err
	}
	if _, ok := cr.Documents[doc.ID]; !ok {
		return types.WrapKind(types.ErrKindNotFound,
			fmt.Errorf("document %s: %w", doc.ID, types.ErrNotFound))
	}
	cr.Documents[doc.ID] = doc
	return r.saveCase(cr)
}

// GetDocument fetches one document record.
func (r *Registry) GetDocument(caseName, documentID string) (*types.Document, error) {
	lock := r.caseLock(caseName)
	lock.Lock()
	defer lock.Unlock()

	cr, err := r.loadCase(caseName)
	if err != nil {
		return nil, err
	}
	doc, ok := cr.Documents[documentID]
	if !ok {
		return nil, types.WrapKind(types.ErrKindNotFound,
			fmt.Errorf("document %s: %w", documentID, types.ErrNotFound))
	}
	return doc, nil
}

// ListDocuments returns all registered documents for a case, newest first.
func (r *Registry) ListDocuments(caseName string) ([]*types.Document, error) {
	lock := r.caseLock(caseName)
	lock.Lock()
	defer lock.Unlock()

	cr, err := r.loadCase(caseName)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Document, 0, len(cr.Documents))
	for _, doc := range cr.Documents {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IngestedAt.Equal(out[j].IngestedAt) {
			return out[i].IngestedAt.After(out[j].IngestedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DuplicateRecordFor returns the duplicate record for a content hash, or
// nil when the hash is unknown to the case.
func (r *Registry) DuplicateRecordFor(caseName, contentHash string) (*types.DuplicateRecord, error) {
	lock := r.caseLock(caseName)
	lock.Lock()
	defer lock.Unlock()

	cr, err := r.loadCase(caseName)
	if err != nil {
		return nil, err
	}
	return cr.ByHash[contentHash], nil
}
