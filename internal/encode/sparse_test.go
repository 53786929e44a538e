package encode

import (
	"fmt"
	"testing"
)

func TestSparseEncode(t *testing.T) {
	enc := NewSparse(SparseConfig{})

	t.Run("stopwords dropped", func(t *testing.T) {
		vec := enc.Encode("the driver and the truck")
		if len(vec) != 2 {
			t.Errorf("expected 2 entries (driver, truck), got %d", len(vec))
		}
	})

	t.Run("empty text yields nil", func(t *testing.T) {
		if vec := enc.Encode("the a an of"); vec != nil {
			t.Errorf("expected nil, got %v", vec)
		}
		if vec := enc.Encode(""); vec != nil {
			t.Errorf("expected nil, got %v", vec)
		}
	})

	t.Run("stemmed variants share an id", func(t *testing.T) {
		a := enc.Encode("driving")
		b := enc.Encode("driv")
		if len(a) != 1 || len(b) != 1 {
			t.Fatalf("expected single entries: %v %v", a, b)
		}
		for id := range a {
			if _, ok := b[id]; !ok {
				t.Error("driving and driv hashed to different ids")
			}
		}
	})

	t.Run("weights are raw term frequency", func(t *testing.T) {
		vec := enc.Encode("brake brake brake lights")
		brakeID := TokenID(stem("brake"))
		lightsID := TokenID(stem("lights"))
		if vec[brakeID] != 3 {
			t.Errorf("brake weight = %f, want 3", vec[brakeID])
		}
		if vec[lightsID] != 1 {
			t.Errorf("lights weight = %f, want 1", vec[lightsID])
		}
	})

	t.Run("short tokens dropped", func(t *testing.T) {
		if vec := enc.Encode("I x 7"); vec != nil {
			t.Errorf("single-char tokens should be dropped, got %v", vec)
		}
	})
}

func TestStem(t *testing.T) {
	cases := []struct{ in, want string }{
		{"trucks", "truck"},
		{"injuries", "injury"},
		{"braking", "brak"},
		{"crashed", "crash"},
		{"witness", "witness"}, // -ss is not a plural
		{"bus", "bus"},         // too short to strip
	}
	for _, c := range cases {
		if got := stem(c.in); got != c.want {
			t.Errorf("stem(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCapEntries(t *testing.T) {
	vec := make(map[uint32]float32)
	for i := 0; i < 10; i++ {
		vec[uint32(i)] = float32(i)
	}
	capped := capEntries(vec, 3)
	if len(capped) != 3 {
		t.Fatalf("len = %d, want 3", len(capped))
	}
	for _, id := range []uint32{9, 8, 7} {
		if _, ok := capped[id]; !ok {
			t.Errorf("highest-weight entry %d missing", id)
		}
	}
}

func TestEncodeRespectsMaxEntries(t *testing.T) {
	enc := NewSparse(SparseConfig{MaxEntries: 5})
	var text string
	for i := 0; i < 50; i++ {
		text += fmt.Sprintf(" token%d", i)
	}
	vec := enc.Encode(text)
	if len(vec) != 5 {
		t.Errorf("len = %d, want 5", len(vec))
	}
}

func TestTokenIDStable(t *testing.T) {
	if TokenID("deposition") != TokenID("deposition") {
		t.Error("TokenID not deterministic")
	}
	if TokenID("deposition") == TokenID("exhibit") {
		t.Error("distinct tokens collided (astronomically unlikely)")
	}
}
