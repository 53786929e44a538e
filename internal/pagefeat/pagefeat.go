// Package pagefeat extracts per-page layout features from PDF bytes.
// The boundary detector consumes the feature stream; nothing here looks at
// more than one page at a time.
package pagefeat

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"sort"
	"strings"

	pdf "github.com/Geek0x0/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/caselight/caselight/internal/types"
)

// Source provides page features for a PDF. Implementations must be pure:
// the same bytes always yield the same features.
type Source interface {
	Pages(ctx context.Context, pdfBytes []byte) ([]types.PageFeatures, error)
}

// Provider is the production Source. pdfcpu validates the file and reports
// the page count; text runs come from the pdf reader.
type Provider struct {
	conf *model.Configuration
}

// NewProvider creates a page feature provider.
func NewProvider() *Provider {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Provider{conf: conf}
}

// Pages extracts features for every page of the PDF, in order.
// A zero-page or empty PDF yields an empty slice. Malformed input returns
// an input_invalid error.
func (p *Provider) Pages(ctx context.Context, pdfBytes []byte) ([]types.PageFeatures, error) {
	if len(pdfBytes) == 0 {
		return nil, nil
	}
	if !bytes.HasPrefix(pdfBytes, []byte("%PDF-")) {
		return nil, types.Errorf(types.ErrKindInputInvalid, "not a PDF: missing %%PDF header")
	}

	// Validate structure with pdfcpu before handing bytes to the text reader.
	rs := bytes.NewReader(pdfBytes)
	pdfCtx, err := api.ReadValidateAndOptimize(rs, p.conf)
	if err != nil {
		return nil, types.Errorf(types.ErrKindInputInvalid, "unparseable PDF: %v", err)
	}
	pageCount := pdfCtx.PageCount
	if pageCount == 0 {
		return nil, nil
	}

	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return nil, types.Errorf(types.ErrKindInputInvalid, "failed to open PDF: %v", err)
	}

	features := make([]types.PageFeatures, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			features = append(features, types.PageFeatures{PageNum: i - 1})
			continue
		}
		pf := extractPage(page)
		pf.PageNum = i - 1
		features = append(features, pf)
	}
	return features, nil
}

// extractPage derives the feature vector for a single page.
func extractPage(page pdf.Page) types.PageFeatures {
	content := page.Content()
	texts := content.Text

	var pf types.PageFeatures
	if len(texts) == 0 {
		return pf
	}

	mediaTop, mediaBottom := pageBounds(page, texts)
	height := mediaTop - mediaBottom
	if height <= 0 {
		height = 792 // US Letter fallback
	}
	headerCut := mediaTop - 0.08*height
	footerCut := mediaBottom + 0.08*height

	var (
		sb         strings.Builder
		headerText strings.Builder
		footerText strings.Builder
		fontWidth  = map[string]float64{}
		sizeSet    = map[float64]bool{}
		lines      = groupLines(texts)
	)

	for _, line := range lines {
		for _, t := range line {
			sb.WriteString(t.S)
			fontWidth[t.Font] += t.W
			sizeSet[roundHalf(t.FontSize)] = true
			if t.Y >= headerCut {
				headerText.WriteString(t.S)
			}
			if t.Y <= footerCut {
				footerText.WriteString(t.S)
			}
		}
		sb.WriteByte('\n')
	}

	pf.Text = sb.String()
	pf.HasHeader = strings.TrimSpace(headerText.String()) != ""
	pf.HasFooter = strings.TrimSpace(footerText.String()) != ""
	pf.HasPageNumber = pageNumberRe.MatchString(strings.TrimSpace(footerText.String())) ||
		pageNumberRe.MatchString(strings.TrimSpace(headerText.String()))
	pf.HasSignatureBlock = signatureRe.MatchString(pf.Text)
	pf.BatesNumber = findBates(footerText.String())
	pf.LayoutDictBlocks = len(lines)

	// Dominant font by drawn width.
	var best string
	var bestW float64
	for f, w := range fontWidth {
		if w > bestW {
			best, bestW = f, w
		}
	}
	pf.DominantFont = best

	pf.FontSizes = make([]float64, 0, len(sizeSet))
	for s := range sizeSet {
		pf.FontSizes = append(pf.FontSizes, s)
	}
	sort.Float64s(pf.FontSizes)

	// Characters per unit of page height, normalized to roughly [0,1] for a
	// dense page of body text.
	chars := len(pf.Text)
	pf.TextDensity = math.Min(1.0, float64(chars)/3500.0)

	pf.StructuralHash = structuralHash(lines)
	return pf
}

// pageBounds returns the top and bottom Y of the page, preferring MediaBox.
func pageBounds(page pdf.Page, texts []pdf.Text) (top, bottom float64) {
	mb := page.V.Key("MediaBox")
	if !mb.IsNull() && mb.Len() == 4 {
		return mb.Index(3).Float64(), mb.Index(1).Float64()
	}
	top, bottom = math.Inf(-1), math.Inf(1)
	for _, t := range texts {
		top = math.Max(top, t.Y)
		bottom = math.Min(bottom, t.Y)
	}
	return top, bottom
}

// groupLines buckets text runs into visual lines by Y coordinate and orders
// them top-to-bottom, left-to-right.
func groupLines(texts []pdf.Text) [][]pdf.Text {
	byY := map[float64][]pdf.Text{}
	for _, t := range texts {
		y := roundHalf(t.Y)
		byY[y] = append(byY[y], t)
	}
	ys := make([]float64, 0, len(byY))
	for y := range byY {
		ys = append(ys, y)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ys)))

	lines := make([][]pdf.Text, 0, len(ys))
	for _, y := range ys {
		line := byY[y]
		sort.Slice(line, func(i, j int) bool { return line[i].X < line[j].X })
		lines = append(lines, line)
	}
	return lines
}

// structuralHash fingerprints the page layout: the sequence of
// (font, size, indent) per line. Letterhead transitions flip this hash even
// when the prose is similar.
func structuralHash(lines [][]pdf.Text) uint64 {
	h := fnv.New64a()
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		first := line[0]
		fmt.Fprintf(h, "%s|%.1f|%d;", first.Font, roundHalf(first.FontSize), int(first.X/10))
	}
	return h.Sum64()
}

func roundHalf(v float64) float64 {
	return math.Round(v*2) / 2
}

var (
	pageNumberRe = regexp.MustCompile(`(?i)^(?:page\s+)?\d{1,4}(?:\s+of\s+\d{1,4})?$`)
	signatureRe  = regexp.MustCompile(`(?i)(?:_{5,}|/s/\s*\w)[\s\S]{0,80}(?:signature|signed|dated|notary)`)
	batesRe      = regexp.MustCompile(`\b([A-Z]{2,8})[-_ ]?(\d{4,10})\b`)
)

// findBates locates a Bates stamp in footer text. Returns the raw stamp
// (prefix + digits) or empty.
func findBates(footer string) string {
	m := batesRe.FindStringSubmatch(footer)
	if m == nil {
		return ""
	}
	return m[1] + m[2]
}

// SplitBates separates a Bates stamp into its alpha prefix and numeric part.
// Returns ok=false for malformed stamps.
func SplitBates(stamp string) (prefix string, num int64, ok bool) {
	m := batesRe.FindStringSubmatch(stamp)
	if m == nil {
		return "", 0, false
	}
	var n int64
	for _, r := range m[2] {
		n = n*10 + int64(r-'0')
	}
	return m[1], n, true
}
