package boundary

import (
	"regexp"
	"strings"

	"github.com/caselight/caselight/internal/types"
)

// headerRule is a high-precision document-kind header trigger. Rules are
// evaluated against the first lines of a page in priority order; the first
// match wins.
type headerRule struct {
	name       string
	docType    types.DocumentType
	re         *regexp.Regexp
	confidence float64
}

// headerScanLines bounds how far into a page the hard pass looks for a
// document-kind header.
const headerScanLines = 12

var headerRules = []headerRule{
	{"deposition-header", types.DocTypeDeposition,
		regexp.MustCompile(`(?im)^\s*(?:VIDEOTAPED\s+)?DEPOSITION\s+OF\s+\S`), 0.95},
	{"motion-header", types.DocTypeMotion,
		regexp.MustCompile(`(?im)^\s*(?:\S+\s+){0,4}MOTION\s+(?:TO|FOR|IN)\b`), 0.9},
	{"expert-report-header", types.DocTypeExpertReport,
		regexp.MustCompile(`(?im)^\s*EXPERT\s+(?:WITNESS\s+)?REPORT\b`), 0.9},
	{"bill-of-lading-header", types.DocTypeBillOfLading,
		regexp.MustCompile(`(?im)^\s*(?:STRAIGHT\s+)?BILL\s+OF\s+LADING\b`), 0.9},
	{"exhibit-header", types.DocTypeExhibit,
		regexp.MustCompile(`(?im)^\s*EXHIBIT\s+(?:NO\.?\s*)?["']?[A-Z0-9]{1,6}["']?\s*$`), 0.85},
	{"affidavit-header", types.DocTypeAffidavit,
		regexp.MustCompile(`(?im)^\s*AFFIDAVIT\s+OF\s+\S`), 0.9},
	{"interrogatory-header", types.DocTypeInterrogatoryResponse,
		regexp.MustCompile(`(?im)^\s*(?:PLAINTIFF'?S?|DEFENDANT'?S?)?\s*(?:ANSWERS?|RESPONSES?)\s+TO\s+(?:\S+\s+)?INTERROGATORIES\b`), 0.9},
	{"admission-header", types.DocTypeAdmissionResponse,
		regexp.MustCompile(`(?im)^\s*RESPONSES?\s+TO\s+(?:\S+\s+)?REQUESTS?\s+FOR\s+ADMISSIONS?\b`), 0.9},
	{"invoice-header", types.DocTypeInvoice,
		regexp.MustCompile(`(?im)^\s*INVOICE\s*(?:#|NO\.?|NUMBER)?\s*[:#]?\s*\d*`), 0.85},
	{"police-report-header", types.DocTypePoliceReport,
		regexp.MustCompile(`(?im)^\s*(?:TRAFFIC\s+CRASH|POLICE|OFFENSE|ACCIDENT)\s+REPORT\b`), 0.88},
	{"insurance-policy-header", types.DocTypeInsurancePolicy,
		regexp.MustCompile(`(?im)^\s*(?:COMMERCIAL\s+)?(?:AUTO(?:MOBILE)?\s+)?INSURANCE\s+POLICY\b|^\s*DECLARATIONS?\s+PAGE\b`), 0.85},
	{"hos-log-header", types.DocTypeHoursOfServiceLog,
		regexp.MustCompile(`(?im)^\s*DRIVER'?S\s+(?:DAILY\s+)?LOG\b|^\s*HOURS\s+OF\s+SERVICE\b`), 0.88},
	{"inspection-header", types.DocTypeInspectionReport,
		regexp.MustCompile(`(?im)^\s*(?:VEHICLE|ANNUAL|DOT|ROADSIDE)\s+INSPECTION\s+REPORT\b`), 0.88},
	{"contract-header", types.DocTypeContract,
		regexp.MustCompile(`(?im)^\s*(?:\S+\s+){0,3}(?:AGREEMENT|CONTRACT)\s*$`), 0.8},
}

// emailHeaderRe matches the From:/To:/Subject:/Date: block that opens a
// produced email. Requires at least From: plus two of the others within the
// scanned lines.
var (
	emailFromRe    = regexp.MustCompile(`(?im)^\s*From:\s*\S`)
	emailToRe      = regexp.MustCompile(`(?im)^\s*To:\s*\S`)
	emailSubjectRe = regexp.MustCompile(`(?im)^\s*Subject:\s*\S`)
	emailDateRe    = regexp.MustCompile(`(?im)^\s*(?:Date|Sent):\s*\S`)
)

// matchHeader runs the hard header rules over the top of a page.
// Returns the matched rule name, inferred type, title line, and confidence.
func matchHeader(pageText string) (indicator string, docType types.DocumentType, title string, confidence float64, ok bool) {
	head := topLines(pageText, headerScanLines)

	if emailFromRe.MatchString(head) {
		n := 0
		for _, re := range []*regexp.Regexp{emailToRe, emailSubjectRe, emailDateRe} {
			if re.MatchString(head) {
				n++
			}
		}
		if n >= 2 {
			title := ""
			if loc := emailSubjectRe.FindStringIndex(head); loc != nil {
				line := strings.TrimSpace(lineAt(head, loc[0]))
				title = strings.TrimSpace(strings.TrimPrefix(line, "Subject:"))
			}
			return "email-header-block", types.DocTypeEmail, title, 0.9, true
		}
	}

	for _, rule := range headerRules {
		if loc := rule.re.FindStringIndex(head); loc != nil {
			line := strings.TrimSpace(lineAt(head, loc[0]))
			return rule.name, rule.docType, line, rule.confidence, true
		}
	}
	return "", types.DocTypeUnknown, "", 0, false
}

// topLines returns the first n non-blank lines of text.
func topLines(text string, n int) string {
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

// lineAt returns the full line containing byte offset off.
func lineAt(text string, off int) string {
	start := strings.LastIndexByte(text[:off], '\n') + 1
	end := strings.IndexByte(text[off:], '\n')
	if end < 0 {
		return text[start:]
	}
	return text[start : off+end]
}
