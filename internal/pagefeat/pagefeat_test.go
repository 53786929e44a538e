package pagefeat

import (
	"testing"

	pdf "github.com/Geek0x0/pdf"
)

func TestPageBounds(t *testing.T) {
	t.Run("falls back to text extents without a MediaBox", func(t *testing.T) {
		// A zero page dictionary carries no MediaBox entry.
		texts := []pdf.Text{{Y: 700}, {Y: 412}, {Y: 96}}
		top, bottom := pageBounds(pdf.Page{}, texts)
		if top != 700 || bottom != 96 {
			t.Errorf("bounds = (%v, %v), want (700, 96)", top, bottom)
		}
	})
}

func TestFindBates(t *testing.T) {
	cases := []struct{ footer, want string }{
		{"ACME-001234", "ACME001234"},
		{"Produced by counsel  SMITH_004410", "SMITH004410"},
		{"CONFIDENTIAL  BETA 99120045", "BETA99120045"},
		{"Page 3 of 12", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := findBates(c.footer); got != c.want {
			t.Errorf("findBates(%q) = %q, want %q", c.footer, got, c.want)
		}
	}
}

func TestSplitBates(t *testing.T) {
	prefix, num, ok := SplitBates("ACME001234")
	if !ok || prefix != "ACME" || num != 1234 {
		t.Errorf("SplitBates = (%q, %d, %v)", prefix, num, ok)
	}
	if _, _, ok := SplitBates("1234"); ok {
		t.Error("numeric-only stamp should not split")
	}
	if _, _, ok := SplitBates(""); ok {
		t.Error("empty stamp should not split")
	}
}
