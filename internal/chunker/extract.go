// Package chunker assembles segment text from page features and splits it
// into token-bounded, paragraph-aware chunks.
package chunker

import (
	"regexp"
	"strings"

	"github.com/caselight/caselight/internal/types"
)

// PageOffset maps a character index in the assembled text to the page it
// came from. Offsets are sorted by CharStart.
type PageOffset struct {
	CharStart int
	Page      int
}

// Extract is the assembled text of a segment plus its page-offset table.
type Extract struct {
	Text     string
	Offsets  []PageOffset
	NeedsOCR bool
}

// PageAt returns the page number containing character index idx.
func (e *Extract) PageAt(idx int) int {
	page := 0
	for _, off := range e.Offsets {
		if off.CharStart > idx {
			break
		}
		page = off.Page
	}
	return page
}

var collapseSpaces = regexp.MustCompile(`[ \t]+`)
var collapseBlank = regexp.MustCompile(`\n{3,}`)

// ExtractText converts the pages in [seg.StartPage, seg.EndPage] to text
// with paragraph breaks preserved and repeated whitespace collapsed. A page
// yielding no text marks the segment as needing OCR; extraction itself
// continues.
func ExtractText(pages []types.PageFeatures, seg *types.Segment) Extract {
	var (
		sb      strings.Builder
		offsets []PageOffset
		needOCR bool
	)

	for p := seg.StartPage; p <= seg.EndPage && p < len(pages); p++ {
		raw := pages[p].Text
		if strings.TrimSpace(raw) == "" {
			needOCR = true
			continue
		}
		offsets = append(offsets, PageOffset{CharStart: sb.Len(), Page: p})

		cleaned := collapseSpaces.ReplaceAllString(raw, " ")
		cleaned = strings.TrimSpace(cleaned)
		sb.WriteString(cleaned)
		sb.WriteString("\n\n")
	}

	text := collapseBlank.ReplaceAllString(sb.String(), "\n\n")
	return Extract{
		Text:     strings.TrimSpace(text),
		Offsets:  offsets,
		NeedsOCR: needOCR,
	}
}
