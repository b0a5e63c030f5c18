package checksum

import "testing"

func TestComputeDeterministic(t *testing.T) {
	a := Compute("one", "two")
	b := Compute("one", "two")
	if a != b {
		t.Error("expected identical checksums for identical input")
	}
	if len(a) != 64 {
		t.Errorf("checksum length = %d, want 64 hex chars", len(a))
	}
}

func TestComputeFieldBoundaries(t *testing.T) {
	if Compute("ab", "c") == Compute("a", "bc") {
		t.Error("field boundaries must affect the checksum")
	}
}

func TestNoteChecksumSensitivity(t *testing.T) {
	base := Note("id", "title", "content", "cat", []string{"a", "b"}, 1)

	variants := []string{
		Note("id2", "title", "content", "cat", []string{"a", "b"}, 1),
		Note("id", "title!", "content", "cat", []string{"a", "b"}, 1),
		Note("id", "title", "content.", "cat", []string{"a", "b"}, 1),
		Note("id", "title", "content", "cat2", []string{"a", "b"}, 1),
		Note("id", "title", "content", "cat", []string{"a"}, 1),
		Note("id", "title", "content", "cat", []string{"a", "b"}, 2),
	}

	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d produced the same checksum as the base", i)
		}
	}

	if Note("id", "title", "content", "cat", []string{"a", "b"}, 1) != base {
		t.Error("expected a stable checksum")
	}
}
