package encode

import (
	"math"
	"regexp"
	"strings"

	"github.com/caselight/caselight/internal/types"
)

// Citation-bearing token classes. Matched spans are normalized and hashed
// into the same id space as keyword tokens so both sparse vectors can share
// one index.
var (
	caseCiteRe = regexp.MustCompile(`\b\d{1,4}\s+(?:U\.?S\.?|S\.?\s?Ct\.?|F\.?\s?(?:2d|3d|4th)?|So\.?\s?(?:2d|3d)?|F\.?\s?Supp\.?\s?(?:2d|3d)?)\s+\d{1,5}\b`)
	statuteRe  = regexp.MustCompile(`\b(?:Fla\.?\s?Stat\.?|F\.?S\.?A\.?|U\.?S\.?C\.?|C\.?F\.?R\.?)\s?(?:ch\.?|§{1,2}|[Ss]ection)?\s?\d+(?:\.\d+)*(?:\([a-z0-9]+\))*\b|§{1,2}\s?\d+(?:\.\d+)*(?:\([a-z0-9]+\))*`)
	fmcsrRe    = regexp.MustCompile(`\b3[0-9]{2}\.\d+(?:\([a-z0-9]+\))*\b`)
	ruleRe     = regexp.MustCompile(`\b(?:Fed\.?\s?R\.?\s?(?:Civ|Evid|App)\.?\s?P\.?|Fla\.?\s?R\.?\s?Civ\.?\s?P\.?)\s?\d+(?:\.\d+)?(?:\([a-z0-9]+\))*\b`)
	batesCite  = regexp.MustCompile(`\b[A-Z]{2,8}[-_ ]?\d{4,10}\b`)
	monetaryRe = regexp.MustCompile(`\$\s?\d{1,3}(?:,\d{3})*(?:\.\d{2})?\b|\b\d+(?:\.\d+)?\s?(?:dollars|USD)\b`)
	dateRe     = regexp.MustCompile(`\b(?:\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}-\d{2}-\d{2}|(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4})\b`)
)

var spaceRe = regexp.MustCompile(`\s+`)

// CitationEncoder builds the citation sparse vector and the entity flags.
type CitationEncoder struct {
	maxEntries int
}

// NewCitations creates a citation encoder.
func NewCitations(cfg SparseConfig) *CitationEncoder {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 4096
	}
	return &CitationEncoder{maxEntries: cfg.MaxEntries}
}

// Encode returns the citation sparse vector for text. Each distinct
// citation span is weighted 1+log(1+occurrences).
func (c *CitationEncoder) Encode(text string) map[uint32]float32 {
	counts := make(map[uint32]int)
	collect := func(re *regexp.Regexp) {
		for _, m := range re.FindAllString(text, -1) {
			counts[TokenID(normalizeCitation(m))]++
		}
	}
	collect(caseCiteRe)
	collect(statuteRe)
	collect(fmcsrRe)
	collect(ruleRe)
	collect(batesCite)
	collect(monetaryRe)
	collect(dateRe)

	if len(counts) == 0 {
		return nil
	}
	vec := make(map[uint32]float32, len(counts))
	for id, n := range counts {
		vec[id] = float32(1 + math.Log(1+float64(n)))
	}
	return capEntries(vec, c.maxEntries)
}

// Flags fills the entity-presence metadata for text.
func (c *CitationEncoder) Flags(text string, md *types.ChunkMetadata) {
	n := len(caseCiteRe.FindAllStringIndex(text, -1)) +
		len(statuteRe.FindAllStringIndex(text, -1)) +
		len(fmcsrRe.FindAllStringIndex(text, -1)) +
		len(ruleRe.FindAllStringIndex(text, -1))
	md.CitationCount = n
	md.HasCitations = n > 0
	md.HasMonetary = monetaryRe.MatchString(text)
	md.HasDates = dateRe.MatchString(text)
}

// normalizeCitation canonicalizes a matched span: no periods, lowercase,
// section marks space-separated, runs of whitespace collapsed.
// "Fla. Stat. § 316.192" and "Fla Stat §316.192" hash to the same id.
func normalizeCitation(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r == '.':
		case r == '§':
			out = append(out, ' ', '§', ' ')
		case r >= 'A' && r <= 'Z':
			out = append(out, r+'a'-'A')
		default:
			out = append(out, r)
		}
	}
	return spaceRe.ReplaceAllString(strings.TrimSpace(string(out)), " ")
}
