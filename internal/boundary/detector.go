// Package boundary partitions a PDF's page range into logical document
// segments. Two passes run over the per-page feature stream: a rule-based
// hard pass (headers, Bates discontinuities, letterhead transitions) and a
// soft feature-delta pass. Candidates are reconciled into a sorted,
// non-overlapping, contiguous segment list covering every page.
package boundary

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/caselight/caselight/internal/pagefeat"
	"github.com/caselight/caselight/internal/types"
)

// Config tunes the detector.
type Config struct {
	// SoftThreshold is τ: the minimum feature-delta score that opens a soft
	// boundary. Default 0.55.
	SoftThreshold float64

	// OCRRelaxFactor scales τ down for OCR-only documents, where font and
	// structural features are degraded. Default 0.75.
	OCRRelaxFactor float64
}

// Detector finds logical document boundaries in page feature streams.
type Detector struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a boundary detector.
func New(cfg Config, logger *slog.Logger) *Detector {
	if cfg.SoftThreshold <= 0 {
		cfg.SoftThreshold = 0.55
	}
	if cfg.OCRRelaxFactor <= 0 {
		cfg.OCRRelaxFactor = 0.75
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{cfg: cfg, logger: logger}
}

// candidate is a proposed boundary start.
type candidate struct {
	page       int
	docType    types.DocumentType
	title      string
	confidence float64
	indicators []string
	hard       bool
}

// Detect partitions pages into segments. An empty feature stream returns nil
// (zero-page document). Output invariants: segments are sorted,
// non-overlapping, contiguous, cover [0, len(pages)-1], and each carries at
// least one indicator.
func (d *Detector) Detect(ctx context.Context, pages []types.PageFeatures) ([]types.Segment, error) {
	if len(pages) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	threshold := d.cfg.SoftThreshold
	if ocrDegraded(pages) {
		threshold *= d.cfg.OCRRelaxFactor
		d.logger.Debug("ocr-degraded features, relaxing soft threshold",
			"threshold", threshold)
	}

	cands := d.hardPass(pages)
	cands = append(cands, d.softPass(pages, threshold)...)

	segs := reconcile(pages, cands)
	if err := validate(segs, len(pages)); err != nil {
		return nil, err
	}
	return segs, nil
}

// hardPass emits high-precision candidates: document-kind headers,
// non-sequential Bates numbers, and letterhead transitions.
func (d *Detector) hardPass(pages []types.PageFeatures) []candidate {
	var out []candidate

	for i, pg := range pages {
		if ind, dt, title, conf, ok := matchHeader(pg.Text); ok {
			out = append(out, candidate{
				page: i, docType: dt, title: title,
				confidence: conf, indicators: []string{ind}, hard: true,
			})
		}
		if i == 0 {
			continue
		}

		prev := pages[i-1]
		if ind, ok := batesBreak(prev.BatesNumber, pg.BatesNumber); ok {
			out = append(out, candidate{
				page: i, docType: types.DocTypeUnknown,
				confidence: 0.85, indicators: []string{ind}, hard: true,
			})
		}
		if ind, ok := letterheadBreak(prev, pg); ok {
			out = append(out, candidate{
				page: i, docType: types.DocTypeUnknown,
				confidence: 0.8, indicators: []string{ind}, hard: true,
			})
		}
	}
	return out
}

// batesBreak reports a prefix change or numeric gap > 1 between consecutive
// stamped pages.
func batesBreak(prevStamp, curStamp string) (string, bool) {
	if prevStamp == "" || curStamp == "" {
		return "", false
	}
	pPrefix, pNum, pOK := pagefeat.SplitBates(prevStamp)
	cPrefix, cNum, cOK := pagefeat.SplitBates(curStamp)
	if !pOK || !cOK {
		return "", false
	}
	if pPrefix != cPrefix {
		return fmt.Sprintf("bates-prefix-change %s->%s", pPrefix, cPrefix), true
	}
	if cNum-pNum > 1 {
		return fmt.Sprintf("bates-gap %d->%d", pNum, cNum), true
	}
	return "", false
}

// letterheadBreak flags a sharp font plus structural-hash discontinuity,
// the signature of a new letterhead.
func letterheadBreak(prev, cur types.PageFeatures) (string, bool) {
	if prev.DominantFont == "" || cur.DominantFont == "" {
		return "", false
	}
	if prev.DominantFont != cur.DominantFont &&
		prev.StructuralHash != cur.StructuralHash &&
		cur.HasHeader && avgFontDelta(prev, cur) > 0.25 {
		return "letterhead-transition", true
	}
	return "", false
}

// softPass scores every consecutive page pair on normalized feature deltas
// and emits a candidate where the score exceeds the threshold.
func (d *Detector) softPass(pages []types.PageFeatures, threshold float64) []candidate {
	var out []candidate
	for i := 1; i < len(pages); i++ {
		score := changeScore(pages[i-1], pages[i])
		if score <= threshold {
			continue
		}
		// Confidence proportional to the excess over τ, capped below the
		// hard-candidate floor.
		conf := math.Min(0.79, 0.4+(score-threshold))
		out = append(out, candidate{
			page: i, docType: types.DocTypeUnknown, confidence: conf,
			indicators: []string{fmt.Sprintf("feature-delta %.2f", score)},
		})
	}
	return out
}

// changeScore computes the weighted page-pair change score in [0,1].
func changeScore(a, b types.PageFeatures) float64 {
	score := 0.0
	score += 0.25 * math.Abs(a.TextDensity-b.TextDensity)
	score += 0.2 * avgFontDelta(a, b)
	if a.DominantFont != b.DominantFont {
		score += 0.25
	}
	if a.StructuralHash != b.StructuralHash {
		score += 0.15
	}
	if a.HasHeader != b.HasHeader {
		score += 0.075
	}
	if a.HasFooter != b.HasFooter {
		score += 0.075
	}
	return score
}

// avgFontDelta is the normalized difference of mean font sizes.
func avgFontDelta(a, b types.PageFeatures) float64 {
	am, bm := meanFloat(a.FontSizes), meanFloat(b.FontSizes)
	if am == 0 && bm == 0 {
		return 0
	}
	return math.Abs(am-bm) / math.Max(math.Max(am, bm), 1)
}

func meanFloat(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// ocrDegraded reports whether the stream looks like scanned images: most
// pages carry no font information or no text at all.
func ocrDegraded(pages []types.PageFeatures) bool {
	degraded := 0
	for _, pg := range pages {
		if pg.DominantFont == "" || pg.Text == "" {
			degraded++
		}
	}
	return degraded*2 > len(pages)
}

// reconcile merges candidates into the final segment list.
func reconcile(pages []types.PageFeatures, cands []candidate) []types.Segment {
	// First page always opens segment #0. If nothing claimed it, synthesize
	// a gap-fill start.
	byPage := map[int]candidate{}
	for _, c := range cands {
		existing, ok := byPage[c.page]
		if !ok {
			byPage[c.page] = c
			continue
		}
		byPage[c.page] = mergeCandidates(existing, c)
	}
	if _, ok := byPage[0]; !ok {
		byPage[0] = candidate{
			page: 0, docType: types.DocTypeUnknown,
			confidence: 0.3, indicators: []string{"gap-fill"},
		}
	}

	starts := make([]int, 0, len(byPage))
	for p := range byPage {
		starts = append(starts, p)
	}
	sort.Ints(starts)

	segs := make([]types.Segment, 0, len(starts))
	for i, start := range starts {
		end := len(pages) - 1
		if i+1 < len(starts) {
			end = starts[i+1] - 1
		}
		c := byPage[start]
		seg := types.Segment{
			StartPage:          start,
			EndPage:            end,
			DocumentType:       c.docType,
			Title:              c.title,
			Confidence:         c.confidence,
			BoundaryIndicators: c.indicators,
		}
		if br := batesRangeFor(pages, start, end); br != nil {
			seg.BatesRange = br
		}
		seg.NeedsOCR = segmentNeedsOCR(pages, start, end)
		segs = append(segs, seg)
	}
	return segs
}

// mergeCandidates combines two candidates claiming the same boundary.
// Identical inferred types take the max confidence and concatenate
// indicators; otherwise a typed hard candidate wins over an untyped one.
func mergeCandidates(a, b candidate) candidate {
	if a.docType == b.docType {
		if b.confidence > a.confidence {
			a.confidence = b.confidence
		}
		a.indicators = append(a.indicators, b.indicators...)
		a.hard = a.hard || b.hard
		if a.title == "" {
			a.title = b.title
		}
		return a
	}
	// Prefer the typed candidate; a header match beats a bates gap or
	// feature delta at the same page.
	winner, loser := a, b
	if (b.docType != types.DocTypeUnknown && a.docType == types.DocTypeUnknown) ||
		(b.hard && !a.hard) {
		winner, loser = b, a
	}
	winner.indicators = append(winner.indicators, loser.indicators...)
	if loser.confidence > winner.confidence {
		winner.confidence = loser.confidence
	}
	return winner
}

// batesRangeFor reads the first and last stamped pages of the span.
func batesRangeFor(pages []types.PageFeatures, start, end int) *types.BatesRange {
	first, last := "", ""
	for i := start; i <= end; i++ {
		if pages[i].BatesNumber == "" {
			continue
		}
		if first == "" {
			first = pages[i].BatesNumber
		}
		last = pages[i].BatesNumber
	}
	if first == "" {
		return nil
	}
	return &types.BatesRange{Start: first, End: last}
}

// segmentNeedsOCR reports whether any page in the span yielded no text.
func segmentNeedsOCR(pages []types.PageFeatures, start, end int) bool {
	for i := start; i <= end; i++ {
		if pages[i].Text == "" {
			return true
		}
	}
	return false
}

// validate checks the partition invariants before segments leave the
// detector.
func validate(segs []types.Segment, pageCount int) error {
	if len(segs) == 0 {
		return fmt.Errorf("no segments for %d pages", pageCount)
	}
	if segs[0].StartPage != 0 {
		return fmt.Errorf("first segment starts at %d", segs[0].StartPage)
	}
	for i, s := range segs {
		if s.StartPage > s.EndPage {
			return fmt.Errorf("segment %d inverted: [%d,%d]", i, s.StartPage, s.EndPage)
		}
		if len(s.BoundaryIndicators) == 0 {
			return fmt.Errorf("segment %d has no indicators", i)
		}
		if i > 0 && s.StartPage != segs[i-1].EndPage+1 {
			return fmt.Errorf("gap or overlap at segment %d", i)
		}
	}
	if segs[len(segs)-1].EndPage != pageCount-1 {
		return fmt.Errorf("segments end at %d, want %d", segs[len(segs)-1].EndPage, pageCount-1)
	}
	return nil
}
