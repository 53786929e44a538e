package encode

import (
	"testing"

	"github.com/caselight/caselight/internal/types"
)

func TestCitationEncode(t *testing.T) {
	enc := NewCitations(SparseConfig{})

	t.Run("statute citations match", func(t *testing.T) {
		vec := enc.Encode("Defendant violated Fla. Stat. § 316.192 by reckless driving.")
		if len(vec) == 0 {
			t.Error("statute citation not captured")
		}
	})

	t.Run("equivalent forms share an id", func(t *testing.T) {
		a := enc.Encode("Fla. Stat. § 768.81")
		b := enc.Encode("Fla Stat §768.81")
		if len(a) != 1 || len(b) != 1 {
			t.Fatalf("expected single entries: %v %v", a, b)
		}
		for id := range a {
			if _, ok := b[id]; !ok {
				t.Error("normalized forms hashed to different ids")
			}
		}
	})

	t.Run("monetary amounts and dates match", func(t *testing.T) {
		vec := enc.Encode("Invoice dated 03/14/2022 totaling $1,250.00.")
		if len(vec) != 2 {
			t.Fatalf("expected 2 entries (date, amount), got %d", len(vec))
		}
		if _, ok := vec[TokenID(normalizeCitation("03/14/2022"))]; !ok {
			t.Error("date span missing from vector")
		}
		if _, ok := vec[TokenID(normalizeCitation("$1,250.00"))]; !ok {
			t.Error("monetary span missing from vector")
		}
	})

	t.Run("fmcsr citations match", func(t *testing.T) {
		vec := enc.Encode("Driver exceeded limits under 395.8(a) of the FMCSRs.")
		if len(vec) == 0 {
			t.Error("FMCSR part citation not captured")
		}
	})

	t.Run("case reporter citations match", func(t *testing.T) {
		vec := enc.Encode("See 123 So. 2d 456 and 45 F. Supp. 3d 789.")
		if len(vec) != 2 {
			t.Errorf("expected 2 citations, got %d", len(vec))
		}
	})

	t.Run("bates stamps match", func(t *testing.T) {
		vec := enc.Encode("Produced as ACME-001234 through ACME-001240.")
		if len(vec) != 2 {
			t.Errorf("expected 2 bates ids, got %d", len(vec))
		}
	})

	t.Run("plain prose yields nil", func(t *testing.T) {
		if vec := enc.Encode("The witness described the weather that morning."); vec != nil {
			t.Errorf("expected nil, got %v", vec)
		}
	})
}

func TestCitationFlags(t *testing.T) {
	enc := NewCitations(SparseConfig{})

	t.Run("citations and dates", func(t *testing.T) {
		var md types.ChunkMetadata
		enc.Flags("On 03/14/2022, per Fla. Stat. § 316.192, the truck crashed.", &md)
		if !md.HasCitations || md.CitationCount == 0 {
			t.Error("citation flags not set")
		}
		if !md.HasDates {
			t.Error("date flag not set")
		}
		if md.HasMonetary {
			t.Error("monetary flag set without amounts")
		}
	})

	t.Run("monetary amounts", func(t *testing.T) {
		var md types.ChunkMetadata
		enc.Flags("Plaintiff seeks $1,250,000.00 in damages.", &md)
		if !md.HasMonetary {
			t.Error("monetary flag not set")
		}
		if md.HasCitations {
			t.Error("citation flag set without citations")
		}
	})

	t.Run("bates stamps are not citations", func(t *testing.T) {
		var md types.ChunkMetadata
		enc.Flags("See ACME-001234.", &md)
		if md.HasCitations {
			t.Error("bates stamp should not count as a legal citation")
		}
	})
}
