package chunker

import (
	"strings"
	"unicode"

	"github.com/caselight/caselight/internal/providers"
	"github.com/caselight/caselight/internal/types"
)

// Config tunes the chunker.
type Config struct {
	// TargetTokens is T: the target chunk size. Default 1400.
	TargetTokens int

	// OverlapTokens is O: the token overlap carried into the next chunk.
	// Default 200.
	OverlapTokens int
}

// Chunker splits segment text into token-bounded chunks. It never breaks
// across a paragraph boundary unless a paragraph exceeds 2·T tokens, in
// which case it breaks on the nearest sentence boundary and, failing that,
// a hard cut.
type Chunker struct {
	cfg    Config
	tokens providers.TokenCounter
}

// New creates a chunker. counter may be nil for the default approximate
// counter.
func New(cfg Config, counter providers.TokenCounter) *Chunker {
	if cfg.TargetTokens <= 0 {
		cfg.TargetTokens = 1400
	}
	if cfg.OverlapTokens < 0 || cfg.OverlapTokens >= cfg.TargetTokens {
		cfg.OverlapTokens = cfg.TargetTokens / 7
	}
	if counter == nil {
		counter = ApproxTokens
	}
	return &Chunker{cfg: cfg, tokens: counter}
}

// piece is a chunk-assembly unit: a paragraph, or a sentence/hard slice of
// an oversized paragraph.
type piece struct {
	text   string
	tokens int
	start  int // char offset in the segment text
}

// Chunk splits the extract into ordered chunks. Ordinals are dense from 0.
// Empty text yields no chunks.
func (c *Chunker) Chunk(ext *Extract) []ChunkText {
	if strings.TrimSpace(ext.Text) == "" {
		return nil
	}

	pieces := c.split(ext.Text)
	if len(pieces) == 0 {
		return nil
	}

	var (
		out     []ChunkText
		current []piece
		total   int
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		texts := make([]string, len(current))
		for i, p := range current {
			texts[i] = p.text
		}
		body := strings.Join(texts, "\n\n")
		out = append(out, ChunkText{
			Ordinal:    len(out),
			Text:       body,
			TokenCount: c.tokens(body),
			PageSpan: types.PageSpan{
				Start: ext.PageAt(current[0].start),
				End:   ext.PageAt(current[len(current)-1].start + len(current[len(current)-1].text) - 1),
			},
		})

		// Seed the next chunk with the overlap tail.
		var tail []piece
		tailTokens := 0
		for i := len(current) - 1; i >= 0 && tailTokens < c.cfg.OverlapTokens; i-- {
			tail = append([]piece{current[i]}, tail...)
			tailTokens += current[i].tokens
		}
		// Never carry the whole chunk forward; that would stall progress.
		if tailTokens >= total {
			tail = nil
			tailTokens = 0
		}
		current = tail
		total = tailTokens
	}

	for _, p := range pieces {
		if total+p.tokens > c.cfg.TargetTokens && len(current) > 0 {
			flush()
		}
		current = append(current, p)
		total += p.tokens
	}
	// Final flush without seeding overlap.
	if len(current) > 0 {
		texts := make([]string, len(current))
		for i, p := range current {
			texts[i] = p.text
		}
		body := strings.Join(texts, "\n\n")
		// The overlap seed alone does not justify a trailing chunk; emit it
		// only if it adds new material or is the only chunk.
		if len(out) == 0 || current[len(current)-1].start > lastStart(out, pieces) {
			out = append(out, ChunkText{
				Ordinal:    len(out),
				Text:       body,
				TokenCount: c.tokens(body),
				PageSpan: types.PageSpan{
					Start: ext.PageAt(current[0].start),
					End:   ext.PageAt(current[len(current)-1].start + len(current[len(current)-1].text) - 1),
				},
			})
		}
	}
	return out
}

// lastStart returns the start offset of the final piece already emitted.
func lastStart(out []ChunkText, pieces []piece) int {
	if len(out) == 0 || len(pieces) == 0 {
		return -1
	}
	// The last emitted chunk ends with some piece; find the greatest piece
	// start at or before the end of the emitted text. Conservative: use the
	// start of the last piece minus one so a new trailing piece always
	// qualifies.
	return pieces[len(pieces)-1].start - 1
}

// ChunkText is a chunk before encoding: text, ordinal, token count, pages.
type ChunkText struct {
	Ordinal    int
	Text       string
	TokenCount int
	PageSpan   types.PageSpan
}

// split breaks text into pieces: paragraphs, with oversized paragraphs
// subdivided on sentence boundaries or hard cuts.
func (c *Chunker) split(text string) []piece {
	var pieces []piece
	offset := 0
	for _, para := range strings.Split(text, "\n\n") {
		start := strings.Index(text[offset:], para)
		if start >= 0 {
			start += offset
			offset = start + len(para)
		} else {
			start = offset
		}
		trimmed := strings.TrimSpace(para)
		if trimmed == "" {
			continue
		}

		n := c.tokens(trimmed)
		if n <= 2*c.cfg.TargetTokens {
			pieces = append(pieces, piece{text: trimmed, tokens: n, start: start})
			continue
		}
		pieces = append(pieces, c.splitOversized(trimmed, start)...)
	}
	return pieces
}

// splitOversized subdivides a paragraph exceeding 2·T tokens. Sentences are
// grouped up to the target; a single sentence longer than 2·T is hard-cut.
func (c *Chunker) splitOversized(para string, base int) []piece {
	var pieces []piece
	var group []string
	groupStart := base
	groupTokens := 0
	cursor := base

	flushGroup := func() {
		if len(group) == 0 {
			return
		}
		body := strings.Join(group, " ")
		pieces = append(pieces, piece{text: body, tokens: c.tokens(body), start: groupStart})
		group = nil
		groupTokens = 0
	}

	for _, sent := range splitSentences(para) {
		n := c.tokens(sent)
		if n > 2*c.cfg.TargetTokens {
			flushGroup()
			for _, cut := range hardCut(sent, c.cfg.TargetTokens, c.tokens) {
				pieces = append(pieces, piece{text: cut, tokens: c.tokens(cut), start: cursor})
				cursor += len(cut)
			}
			groupStart = cursor
			continue
		}
		if groupTokens+n > c.cfg.TargetTokens {
			flushGroup()
			groupStart = cursor
		}
		group = append(group, sent)
		groupTokens += n
		cursor += len(sent) + 1
	}
	flushGroup()
	return pieces
}

// splitSentences breaks a paragraph on sentence-ending punctuation followed
// by whitespace and an upper-case or numeric start.
func splitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes)-1; i++ {
		r := runes[i]
		if r != '.' && r != '?' && r != '!' {
			continue
		}
		// Look ahead: whitespace then a plausible sentence start.
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 || j >= len(runes) {
			continue
		}
		if unicode.IsUpper(runes[j]) || unicode.IsDigit(runes[j]) {
			out = append(out, strings.TrimSpace(string(runes[start:i+1])))
			start = j
			i = j - 1
		}
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		out = append(out, rest)
	}
	return out
}

// hardCut slices text into pieces of at most target tokens, on word
// boundaries where possible.
func hardCut(text string, target int, tokens providers.TokenCounter) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var out []string
	var cur []string
	curTokens := 0
	for _, w := range words {
		n := tokens(w)
		if curTokens+n > target && len(cur) > 0 {
			out = append(out, strings.Join(cur, " "))
			cur, curTokens = nil, 0
		}
		cur = append(cur, w)
		curTokens += n
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}

// ApproxTokens is the default token counter: one token per word plus one
// per standalone punctuation cluster, roughly matching BPE counts on legal
// prose.
func ApproxTokens(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if !inWord {
				n++
				inWord = true
			}
		case unicode.IsSpace(r):
			inWord = false
		default:
			n++
			inWord = false
		}
	}
	// Long words split into multiple BPE tokens; approximate by character
	// load.
	if extra := len(s)/6 - n; extra > 0 {
		n += extra / 2
	}
	return n
}
