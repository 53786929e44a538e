package classify

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/caselight/caselight/internal/types"
)

// Rule is one deterministic trigger. Higher priority wins; within a
// priority, earlier rules win.
type Rule struct {
	Name       string  `yaml:"name"`
	Type       string  `yaml:"type"`
	Pattern    string  `yaml:"pattern"`
	Priority   int     `yaml:"priority"`
	Confidence float64 `yaml:"confidence"`

	docType types.DocumentType
	re      *regexp.Regexp
}

// RuleSet is a versioned collection of classification rules. Classification
// is deterministic given the same inputs and rule-set version.
type RuleSet struct {
	Version string `yaml:"version"`
	Rules   []Rule `yaml:"rules"`
}

// compile validates every rule, resolving types and regexes.
func (rs *RuleSet) compile() error {
	for i := range rs.Rules {
		r := &rs.Rules[i]
		dt, ok := types.ParseDocumentType(r.Type)
		if !ok {
			return fmt.Errorf("rule %q: unknown document type %q", r.Name, r.Type)
		}
		r.docType = dt
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
		r.re = re
		if r.Confidence <= 0 || r.Confidence > 1 {
			return fmt.Errorf("rule %q: confidence %v out of range", r.Name, r.Confidence)
		}
	}
	return nil
}

// LoadRuleSet reads a rule set from a YAML file.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule set: %w", err)
	}
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse rule set: %w", err)
	}
	if err := rs.compile(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// DefaultRuleSet returns the built-in rules.
func DefaultRuleSet() *RuleSet {
	rs := &RuleSet{
		Version: "builtin-1",
		Rules: []Rule{
			{Name: "deposition", Type: "Deposition", Priority: 100, Confidence: 0.95,
				Pattern: `(?im)^\s*(?:videotaped\s+)?deposition\s+of\b`},
			{Name: "motion", Type: "Motion", Priority: 95, Confidence: 0.92,
				Pattern: `(?im)^\s*(?:\S+\s+){0,4}motion\s+(?:to|for|in)\b`},
			{Name: "expert-report", Type: "ExpertReport", Priority: 95, Confidence: 0.9,
				Pattern: `(?im)^\s*expert\s+(?:witness\s+)?report\b|rule\s+26\(a\)\(2\)`},
			{Name: "affidavit", Type: "Affidavit", Priority: 95, Confidence: 0.92,
				Pattern: `(?im)^\s*affidavit\s+of\b|being\s+first\s+duly\s+sworn`},
			{Name: "interrogatory", Type: "InterrogatoryResponse", Priority: 92, Confidence: 0.9,
				Pattern: `(?i)(?:answers?|responses?)\s+to\s+(?:\S+\s+)?interrogatories`},
			{Name: "admission", Type: "AdmissionResponse", Priority: 92, Confidence: 0.9,
				Pattern: `(?i)responses?\s+to\s+(?:\S+\s+)?requests?\s+for\s+admissions?`},
			{Name: "email", Type: "Email", Priority: 90, Confidence: 0.9,
				Pattern: `(?im)^\s*from:\s*\S[\s\S]{0,400}^\s*(?:to|subject):`},
			{Name: "bill-of-lading", Type: "BillOfLading", Priority: 88, Confidence: 0.9,
				Pattern: `(?i)\bbill\s+of\s+lading\b`},
			{Name: "hours-of-service", Type: "HoursOfServiceLog", Priority: 88, Confidence: 0.88,
				Pattern: `(?i)driver'?s\s+(?:daily\s+)?log|hours\s+of\s+service|\b14[- ]hour\b.*\bduty\b`},
			{Name: "driver-qualification", Type: "DriverQualificationFile", Priority: 88, Confidence: 0.88,
				Pattern: `(?i)driver\s+qualification\s+file|\b391\.51\b`},
			{Name: "inspection", Type: "InspectionReport", Priority: 86, Confidence: 0.87,
				Pattern: `(?i)(?:vehicle|annual|dot|roadside)\s+inspection\s+report`},
			{Name: "maintenance", Type: "MaintenanceRecord", Priority: 85, Confidence: 0.85,
				Pattern: `(?i)(?:maintenance|repair)\s+(?:record|order|invoice|history)|work\s+order\s*#`},
			{Name: "police-report", Type: "PoliceReport", Priority: 85, Confidence: 0.88,
				Pattern: `(?i)(?:traffic\s+crash|police|offense)\s+report|florida\s+traffic\s+crash`},
			{Name: "incident-report", Type: "IncidentReport", Priority: 84, Confidence: 0.85,
				Pattern: `(?i)incident\s+report|first\s+report\s+of\s+injury`},
			{Name: "medical", Type: "MedicalRecord", Priority: 82, Confidence: 0.85,
				Pattern: `(?i)patient\s+name|date\s+of\s+birth.*\b(?:diagnosis|chief\s+complaint)\b|discharge\s+summary|operative\s+report`},
			{Name: "insurance-policy", Type: "InsurancePolicy", Priority: 82, Confidence: 0.85,
				Pattern: `(?i)insurance\s+policy|declarations?\s+page|policy\s+(?:number|period)`},
			{Name: "invoice", Type: "Invoice", Priority: 80, Confidence: 0.85,
				Pattern: `(?i)\binvoice\s*(?:#|no\.?|number)?\s*[:#]?\s*\d|remit\s+to\b`},
			{Name: "financial", Type: "FinancialRecord", Priority: 78, Confidence: 0.8,
				Pattern: `(?i)balance\s+sheet|profit\s+and\s+loss|account\s+statement|general\s+ledger`},
			{Name: "employment", Type: "EmploymentRecord", Priority: 78, Confidence: 0.8,
				Pattern: `(?i)personnel\s+file|employment\s+application|w-?2\s+wage|payroll\s+register`},
			{Name: "contract", Type: "Contract", Priority: 75, Confidence: 0.8,
				Pattern: `(?i)\bthis\s+agreement\b.*\bbetween\b|witnesseth|in\s+witness\s+whereof`},
			{Name: "witness-statement", Type: "WitnessStatement", Priority: 74, Confidence: 0.8,
				Pattern: `(?i)witness\s+statement|statement\s+of\s+\S+\s+\S+\s*$`},
			{Name: "exhibit", Type: "Exhibit", Priority: 70, Confidence: 0.8,
				Pattern: `(?im)^\s*exhibit\s+(?:no\.?\s*)?["']?[a-z0-9]{1,6}["']?\s*$`},
			{Name: "correspondence", Type: "Correspondence", Priority: 60, Confidence: 0.7,
				Pattern: `(?im)^\s*dear\s+(?:mr|ms|mrs|dr|sir|madam|counsel)\b|(?i)\bre:\s+\S[\s\S]{0,200}(?i)sincerely`},
		},
	}
	if err := rs.compile(); err != nil {
		// The builtin set is covered by tests; a compile failure here is a
		// programming error.
		panic(err)
	}
	return rs
}
