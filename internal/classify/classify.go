// Package classify assigns a DocumentType to each segment. A deterministic
// keyword/regex pass runs first; only segments it cannot place confidently
// fall back to the LLM, whose output is clamped to the closed enum.
package classify

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/caselight/caselight/internal/providers"
	"github.com/caselight/caselight/internal/types"
)

// scanLines is how many leading lines of segment text the deterministic
// pass examines.
const scanLines = 40

// Config tunes the classifier.
type Config struct {
	// LLMFloor is the deterministic confidence below which the LLM fallback
	// runs. Default 0.6.
	LLMFloor float64
}

// Classifier assigns document types to segments.
type Classifier struct {
	rules  *RuleSet
	llm    providers.LLMClient
	floor  float64
	logger *slog.Logger

	// sorted rule view, by priority descending
	ordered []*Rule
}

// New creates a classifier. rules may be nil for the builtin set; llm may be
// nil to disable the fallback entirely (deterministic-only mode).
func New(cfg Config, rules *RuleSet, llm providers.LLMClient, logger *slog.Logger) *Classifier {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	if cfg.LLMFloor <= 0 {
		cfg.LLMFloor = 0.6
	}
	if logger == nil {
		logger = slog.Default()
	}

	ordered := make([]*Rule, 0, len(rules.Rules))
	for i := range rules.Rules {
		ordered = append(ordered, &rules.Rules[i])
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	return &Classifier{
		rules:   rules,
		llm:     llm,
		floor:   cfg.LLMFloor,
		logger:  logger,
		ordered: ordered,
	}
}

// RuleVersion returns the active rule-set version.
func (c *Classifier) RuleVersion() string {
	return c.rules.Version
}

// Classify sets seg.DocumentType, adjusts confidence, and populates the
// title when a rule provides one. Side-effect-free apart from the segment
// mutation; deterministic given the same text and rule-set version.
func (c *Classifier) Classify(ctx context.Context, seg *types.Segment, text string) error {
	head := headText(text, scanLines)

	if dt, conf, rule := c.deterministic(head); dt != types.DocTypeUnknown {
		// Boundary detection may already have typed this segment with higher
		// confidence; keep the stronger signal.
		if seg.DocumentType == types.DocTypeUnknown || conf >= seg.Confidence {
			seg.DocumentType = dt
			seg.Confidence = conf
		}
		if seg.Title == "" {
			seg.Title = titleLine(head)
		}
		seg.BoundaryIndicators = append(seg.BoundaryIndicators, "rule:"+rule)
		if conf >= c.floor {
			return nil
		}
	}

	if seg.DocumentType != types.DocTypeUnknown && seg.Confidence >= c.floor {
		return nil
	}

	if c.llm == nil {
		if seg.DocumentType == types.DocTypeUnknown {
			seg.DocumentType = types.DocTypeOther
			if seg.Confidence == 0 {
				seg.Confidence = 0.3
			}
		}
		return nil
	}

	labels := make([]string, len(types.AllDocumentTypes))
	for i, dt := range types.AllDocumentTypes {
		labels[i] = string(dt)
	}
	result, err := c.llm.Classify(ctx, head, labels, seg.BoundaryIndicators)
	if err != nil {
		return err
	}

	dt, exact := types.ParseDocumentType(result.Label)
	if !exact {
		c.logger.Debug("llm returned out-of-enum label, clamping",
			"label", result.Label)
	}
	if result.Confidence > seg.Confidence || seg.DocumentType == types.DocTypeUnknown {
		seg.DocumentType = dt
		seg.Confidence = result.Confidence
	}
	if seg.Title == "" {
		seg.Title = titleLine(head)
	}
	return nil
}

// deterministic runs the priority-ordered rules over the segment head.
func (c *Classifier) deterministic(head string) (types.DocumentType, float64, string) {
	for _, r := range c.ordered {
		if r.re.MatchString(head) {
			return r.docType, r.Confidence, r.Name
		}
	}
	return types.DocTypeUnknown, 0, ""
}

// headText returns the first n non-blank lines of text.
func headText(text string, n int) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return strings.Join(out, "\n")
}

// titleLine picks the first substantial line as a display title.
func titleLine(head string) string {
	for _, line := range strings.Split(head, "\n") {
		t := strings.TrimSpace(line)
		if len(t) >= 8 && len(t) <= 120 {
			return t
		}
	}
	return ""
}
