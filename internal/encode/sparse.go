package encode

import (
	"hash/fnv"
	"sort"
	"strings"
	"unicode"
)

// SparseConfig tunes the sparse encoders.
type SparseConfig struct {
	// MaxEntries caps each sparse vector; the highest-weight entries win.
	// Default 4096.
	MaxEntries int
}

// SparseEncoder builds keyword term-frequency vectors over hashed tokens.
type SparseEncoder struct {
	maxEntries int
}

// NewSparse creates a sparse keyword encoder.
func NewSparse(cfg SparseConfig) *SparseEncoder {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 4096
	}
	return &SparseEncoder{maxEntries: cfg.MaxEntries}
}

// Encode returns the keyword sparse vector for text: lowercased, stemmed
// tokens mapped to stable uint32 ids with term-frequency weights.
func (s *SparseEncoder) Encode(text string) map[uint32]float32 {
	counts := make(map[uint32]int)
	for _, tok := range tokenize(text) {
		if stopwords[tok] {
			continue
		}
		counts[TokenID(stem(tok))]++
	}
	if len(counts) == 0 {
		return nil
	}

	vec := make(map[uint32]float32, len(counts))
	for id, n := range counts {
		vec[id] = float32(n)
	}
	return capEntries(vec, s.maxEntries)
}

// TokenID maps a token to a stable 32-bit id.
func TokenID(token string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(token))
	return h.Sum32()
}

// capEntries keeps the maxEntries highest-weight entries of vec.
func capEntries(vec map[uint32]float32, maxEntries int) map[uint32]float32 {
	if len(vec) <= maxEntries {
		return vec
	}
	type entry struct {
		id uint32
		w  float32
	}
	entries := make([]entry, 0, len(vec))
	for id, w := range vec {
		entries = append(entries, entry{id, w})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].w != entries[j].w {
			return entries[i].w > entries[j].w
		}
		return entries[i].id < entries[j].id
	})
	out := make(map[uint32]float32, maxEntries)
	for _, e := range entries[:maxEntries] {
		out[e.id] = e.w
	}
	return out
}

// tokenize lowercases and splits text into alphanumeric runs, dropping
// tokens shorter than 2 characters.
func tokenize(text string) []string {
	var (
		out []string
		sb  strings.Builder
	)
	flush := func() {
		if sb.Len() >= 2 {
			out = append(out, sb.String())
		}
		sb.Reset()
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return out
}

// stem applies light suffix stripping. Deliberately conservative; the goal
// is matching plural/singular and -ing/-ed variants, not linguistic
// correctness.
func stem(tok string) string {
	switch {
	case len(tok) > 5 && strings.HasSuffix(tok, "ing"):
		return tok[:len(tok)-3]
	case len(tok) > 4 && strings.HasSuffix(tok, "ies"):
		return tok[:len(tok)-3] + "y"
	case len(tok) > 4 && strings.HasSuffix(tok, "ed"):
		return tok[:len(tok)-2]
	case len(tok) > 3 && strings.HasSuffix(tok, "es"):
		return tok[:len(tok)-2]
	case len(tok) > 3 && strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss"):
		return tok[:len(tok)-1]
	}
	return tok
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"had": true, "has": true, "have": true, "he": true, "her": true,
	"his": true, "if": true, "in": true, "is": true, "it": true,
	"its": true, "not": true, "of": true, "on": true, "or": true,
	"she": true, "that": true, "the": true, "their": true, "there": true,
	"they": true, "this": true, "to": true, "was": true, "were": true,
	"which": true, "will": true, "with": true, "would": true, "you": true,
}
