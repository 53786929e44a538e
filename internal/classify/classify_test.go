package classify

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/caselight/caselight/internal/providers"
	"github.com/caselight/caselight/internal/types"
)

func TestClassifyDeterministic(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		text string
		want types.DocumentType
	}{
		{"deposition", "VIDEOTAPED DEPOSITION OF JANE DOE\nTaken March 14, 2022", types.DocTypeDeposition},
		{"motion", "DEFENDANT'S MOTION TO COMPEL DISCOVERY", types.DocTypeMotion},
		{"affidavit sworn clause", "Before me personally appeared the affiant, being first duly sworn.", types.DocTypeAffidavit},
		{"bill of lading", "STRAIGHT BILL OF LADING\nShipper: Acme Produce", types.DocTypeBillOfLading},
		{"hours of service", "DRIVER'S DAILY LOG\nDate: 01/02/2022", types.DocTypeHoursOfServiceLog},
		{"driver qualification", "Contents of driver qualification file per company policy", types.DocTypeDriverQualificationFile},
		{"medical record", "Patient Name: John Smith\nDischarge Summary", types.DocTypeMedicalRecord},
		{"invoice", "INVOICE #4471\nRemit to: Smith Trucking", types.DocTypeInvoice},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			llm := &providers.MockLLM{}
			cl := New(Config{}, nil, llm, nil)
			seg := &types.Segment{DocumentType: types.DocTypeUnknown}
			if err := cl.Classify(ctx, seg, c.text); err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if seg.DocumentType != c.want {
				t.Errorf("type = %v, want %v", seg.DocumentType, c.want)
			}
			if seg.Confidence <= 0 {
				t.Errorf("confidence = %f", seg.Confidence)
			}
			if llm.ClassifyCalls != 0 {
				t.Errorf("confident rule hit still called the LLM %d times", llm.ClassifyCalls)
			}
		})
	}

	t.Run("higher priority rule wins", func(t *testing.T) {
		cl := New(Config{}, nil, nil, nil)
		seg := &types.Segment{DocumentType: types.DocTypeUnknown}
		text := "BILL OF LADING\nINVOICE # 9921"
		if err := cl.Classify(ctx, seg, text); err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if seg.DocumentType != types.DocTypeBillOfLading {
			t.Errorf("type = %v, want bill of lading", seg.DocumentType)
		}
	})

	t.Run("rule name recorded as indicator", func(t *testing.T) {
		cl := New(Config{}, nil, nil, nil)
		seg := &types.Segment{DocumentType: types.DocTypeUnknown}
		if err := cl.Classify(ctx, seg, "DEPOSITION OF JOHN SMITH"); err != nil {
			t.Fatalf("Classify: %v", err)
		}
		found := false
		for _, ind := range seg.BoundaryIndicators {
			if ind == "rule:deposition" {
				found = true
			}
		}
		if !found {
			t.Errorf("indicators = %v", seg.BoundaryIndicators)
		}
	})

	t.Run("title taken from first substantial line", func(t *testing.T) {
		cl := New(Config{}, nil, nil, nil)
		seg := &types.Segment{DocumentType: types.DocTypeUnknown}
		if err := cl.Classify(ctx, seg, "DEPOSITION OF JANE DOE\nVolume I"); err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if seg.Title != "DEPOSITION OF JANE DOE" {
			t.Errorf("title = %q", seg.Title)
		}
	})

	t.Run("stronger boundary type survives a weaker rule hit", func(t *testing.T) {
		cl := New(Config{}, nil, nil, nil)
		seg := &types.Segment{
			DocumentType:       types.DocTypeDeposition,
			Confidence:         0.95,
			BoundaryIndicators: []string{"deposition-header"},
		}
		if err := cl.Classify(ctx, seg, "INVOICE # 300 for court reporting services"); err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if seg.DocumentType != types.DocTypeDeposition {
			t.Errorf("type = %v, want deposition retained", seg.DocumentType)
		}
		if seg.Confidence != 0.95 {
			t.Errorf("confidence = %f, want 0.95 retained", seg.Confidence)
		}
	})
}

func TestClassifyLLMFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("no rule match falls back to the llm", func(t *testing.T) {
		llm := &providers.MockLLM{
			ClassifyFunc: func(ctx context.Context, text string, labels []string, hints []string) (*providers.ClassifyResult, error) {
				hasDeposition, hasUnknown := false, false
				for _, l := range labels {
					if l == "Deposition" {
						hasDeposition = true
					}
					if l == "Unknown" {
						hasUnknown = true
					}
				}
				if !hasDeposition || hasUnknown {
					t.Errorf("labels = %v", labels)
				}
				return &providers.ClassifyResult{Label: "WitnessStatement", Confidence: 0.85}, nil
			},
		}
		cl := New(Config{}, nil, llm, nil)
		seg := &types.Segment{DocumentType: types.DocTypeUnknown}
		if err := cl.Classify(ctx, seg, "Quarterly figures look fine overall."); err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if seg.DocumentType != types.DocTypeWitnessStatement {
			t.Errorf("type = %v, want witness statement", seg.DocumentType)
		}
		if seg.Confidence != 0.85 {
			t.Errorf("confidence = %f, want 0.85", seg.Confidence)
		}
		if llm.ClassifyCalls != 1 {
			t.Errorf("llm calls = %d, want 1", llm.ClassifyCalls)
		}
	})

	t.Run("rule below the floor still consults the llm", func(t *testing.T) {
		llm := &providers.MockLLM{
			ClassifyFunc: func(ctx context.Context, text string, labels []string, hints []string) (*providers.ClassifyResult, error) {
				found := false
				for _, h := range hints {
					if h == "rule:correspondence" {
						found = true
					}
				}
				if !found {
					t.Errorf("hints = %v, want rule name passed through", hints)
				}
				return &providers.ClassifyResult{Label: "MedicalRecord", Confidence: 0.8}, nil
			},
		}
		cl := New(Config{LLMFloor: 0.75}, nil, llm, nil)
		seg := &types.Segment{DocumentType: types.DocTypeUnknown}
		if err := cl.Classify(ctx, seg, "Dear Counsel\nWe write regarding the records request."); err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if seg.DocumentType != types.DocTypeMedicalRecord {
			t.Errorf("type = %v, want llm override", seg.DocumentType)
		}
	})

	t.Run("out-of-enum label clamps to Other", func(t *testing.T) {
		llm := &providers.MockLLM{
			ClassifyFunc: func(ctx context.Context, text string, labels []string, hints []string) (*providers.ClassifyResult, error) {
				return &providers.ClassifyResult{Label: "memo", Confidence: 0.7}, nil
			},
		}
		cl := New(Config{}, nil, llm, nil)
		seg := &types.Segment{DocumentType: types.DocTypeUnknown}
		if err := cl.Classify(ctx, seg, "Quarterly figures look fine overall."); err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if seg.DocumentType != types.DocTypeOther {
			t.Errorf("type = %v, want Other", seg.DocumentType)
		}
	})

	t.Run("llm error propagates", func(t *testing.T) {
		llm := &providers.MockLLM{
			ClassifyFunc: func(ctx context.Context, text string, labels []string, hints []string) (*providers.ClassifyResult, error) {
				return nil, types.Errorf(types.ErrKindBackendUnavailable, "provider down")
			},
		}
		cl := New(Config{}, nil, llm, nil)
		seg := &types.Segment{DocumentType: types.DocTypeUnknown}
		err := cl.Classify(ctx, seg, "Quarterly figures look fine overall.")
		if types.KindOf(err) != types.ErrKindBackendUnavailable {
			t.Errorf("kind = %v, want backend_unavailable", types.KindOf(err))
		}
	})

	t.Run("nil llm defaults untyped segments to Other", func(t *testing.T) {
		cl := New(Config{}, nil, nil, nil)
		seg := &types.Segment{DocumentType: types.DocTypeUnknown}
		if err := cl.Classify(ctx, seg, "Quarterly figures look fine overall."); err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if seg.DocumentType != types.DocTypeOther {
			t.Errorf("type = %v, want Other", seg.DocumentType)
		}
		if seg.Confidence != 0.3 {
			t.Errorf("confidence = %f, want 0.3", seg.Confidence)
		}
	})
}

func TestRuleSet(t *testing.T) {
	t.Run("builtin set compiles and is versioned", func(t *testing.T) {
		rs := DefaultRuleSet()
		if rs.Version == "" {
			t.Error("builtin rule set has no version")
		}
		if len(rs.Rules) == 0 {
			t.Fatal("builtin rule set is empty")
		}
		for _, r := range rs.Rules {
			if r.re == nil || r.docType == "" {
				t.Errorf("rule %q not compiled", r.Name)
			}
		}
	})

	t.Run("load from yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		data := `version: test-1
rules:
  - name: tow-receipt
    type: Invoice
    pattern: '(?i)towing\s+(?:service\s+)?receipt'
    priority: 50
    confidence: 0.8
`
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
		rs, err := LoadRuleSet(path)
		if err != nil {
			t.Fatalf("LoadRuleSet: %v", err)
		}
		if rs.Version != "test-1" || len(rs.Rules) != 1 {
			t.Errorf("loaded %+v", rs)
		}

		cl := New(Config{}, rs, nil, nil)
		seg := &types.Segment{DocumentType: types.DocTypeUnknown}
		if err := cl.Classify(context.Background(), seg, "TOWING SERVICE RECEIPT #88"); err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if seg.DocumentType != types.DocTypeInvoice {
			t.Errorf("type = %v, want invoice via custom rule", seg.DocumentType)
		}
		if cl.RuleVersion() != "test-1" {
			t.Errorf("version = %q", cl.RuleVersion())
		}
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		rs := &RuleSet{Rules: []Rule{{Name: "bad", Type: "Memo", Pattern: "x", Confidence: 0.5}}}
		if err := rs.compile(); err == nil {
			t.Error("expected error for unknown document type")
		}
	})

	t.Run("bad pattern rejected", func(t *testing.T) {
		rs := &RuleSet{Rules: []Rule{{Name: "bad", Type: "Invoice", Pattern: "(", Confidence: 0.5}}}
		if err := rs.compile(); err == nil {
			t.Error("expected error for invalid regex")
		}
	})

	t.Run("confidence range enforced", func(t *testing.T) {
		rs := &RuleSet{Rules: []Rule{{Name: "bad", Type: "Invoice", Pattern: "x", Confidence: 1.5}}}
		if err := rs.compile(); err == nil {
			t.Error("expected error for out-of-range confidence")
		}
	})
}
