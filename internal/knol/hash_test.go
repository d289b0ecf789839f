package knol

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	got := Normalize("  What is HTMX? \r\n", "A library for AJAX.", "Web Development")
	expected := "what is htmx?\na library for ajax.\nweb development"

	if got != expected {
		t.Errorf("Expected normalized string to be '%s', but got '%s'", expected, got)
	}
}

func TestHash(t *testing.T) {
	t.Run("generates correct hash", func(t *testing.T) {
		// Hash for "q\na\nc"
		expectedHash := "eb2456c1ee4f36305069dd0f63a30e92d5443129f5e8fd9a5ec490fbc4d4d8a2"
		if hash := Hash("Q", "A", "C"); hash != expectedHash {
			t.Errorf("Expected hash '%s', but got '%s'", expectedHash, hash)
		}
	})

	t.Run("normalization produces same hash", func(t *testing.T) {
		if Hash("  what is go? ", "A programming language.") != Hash("What Is Go?", "A programming language.") {
			t.Error("Expected hashes to be the same after normalization, but they were different.")
		}
	})

	t.Run("part boundaries matter", func(t *testing.T) {
		if Hash("ab", "c") == Hash("a", "bc") {
			t.Error("Expected different hashes for different part boundaries")
		}
	})
}

func TestName(t *testing.T) {
	name := Name("Q", "A", "C")
	if len(name) != NameLength {
		t.Fatalf("len(Name) = %d, want %d", len(name), NameLength)
	}
	if !strings.HasPrefix(Hash("Q", "A", "C"), name) {
		t.Errorf("Name %q is not a prefix of the hash", name)
	}
	if strings.Contains(name, "/") {
		t.Errorf("Name %q contains a separator", name)
	}
}
