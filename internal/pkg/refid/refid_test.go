package refid

import (
	"strings"
	"testing"
)

func TestNewDecisionReferenceFormat(t *testing.T) {
	ref := NewDecisionReference()

	if !strings.HasPrefix(ref, "PD_") {
		t.Errorf("reference %q missing PD_ prefix", ref)
	}
	// PD_ + 6 timestamp chars + 12 random chars
	if len(ref) != 3+6+randomLength {
		t.Errorf("reference %q has length %d, want %d", ref, len(ref), 3+6+randomLength)
	}
	for _, c := range ref[3:] {
		if !strings.ContainsRune(base62Alphabet, c) {
			t.Errorf("reference %q contains non-base62 char %q", ref, c)
		}
	}
}

func TestNewDecisionReferenceUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10000; i++ {
		ref := NewDecisionReference()
		if seen[ref] {
			t.Fatalf("duplicate reference generated: %s", ref)
		}
		seen[ref] = true
	}
}

func TestRandomBase62ExhaustsBuffer(t *testing.T) {
	// Long outputs force buffer refills, including refills hit with
	// a partial character buffered. Every emitted char must still
	// come from the alphabet and the length must be exact.
	for i := 0; i < 50; i++ {
		s := randomBase62(500)
		if len(s) != 500 {
			t.Fatalf("randomBase62(500) returned %d chars", len(s))
		}
		for _, c := range s {
			if !strings.ContainsRune(base62Alphabet, c) {
				t.Fatalf("output contains non-base62 char %q", c)
			}
		}
	}
}

func TestEncodeTimestampBase62Sortable(t *testing.T) {
	earlier := encodeTimestampBase62(1700000000)
	later := encodeTimestampBase62(1700000001)
	if !(earlier < later) {
		t.Errorf("timestamps not lexicographically sortable: %s >= %s", earlier, later)
	}
}
