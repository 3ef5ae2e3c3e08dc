package knol

import (
	"testing"

	"github.com/conorfennell/knolsched/internal/domain"
)

func TestNormalize(t *testing.T) {
	note := domain.Note{
		Question: "  What is HTMX? \r\n",
		Answer:   "A library for AJAX.",
		Context:  "Web Development",
	}
	expected := "what is htmx?\na library for ajax.\nweb development"
	normalized := Normalize(note)

	if normalized != expected {
		t.Errorf("Expected normalized string to be '%s', but got '%s'", expected, normalized)
	}
}

func TestHash(t *testing.T) {
	t.Run("generates correct hash", func(t *testing.T) {
		note := domain.Note{
			Question: "Q",
			Answer:   "A",
			Context:  "C",
		}
		// Hash for "q\na\nc"
		expectedHash := "eb2456c1ee4f36305069dd0f63a30e92d5443129f5e8fd9a5ec490fbc4d4d8a2"
		hash := Hash(note)

		if hash != expectedHash {
			t.Errorf("Expected hash '%s', but got '%s'", expectedHash, hash)
		}
	})

	t.Run("normalization produces same hash", func(t *testing.T) {
		note1 := domain.Note{
			Question: "  what is go? ",
			Answer:   "A programming language.",
		}
		note2 := domain.Note{
			Question: "What Is Go?",
			Answer:   "A programming language.",
		}
		if Hash(note1) != Hash(note2) {
			t.Error("Expected hashes to be the same after normalization, but they were different.")
		}
	})

	t.Run("deck and tags do not change the hash", func(t *testing.T) {
		note1 := domain.Note{Question: "Test", Deck: "A", Tags: []string{"x"}}
		note2 := domain.Note{Question: "Test", Deck: "B::C"}
		if Hash(note1) != Hash(note2) {
			t.Error("Expected deck and tags to be ignored by the hash")
		}
	})

	t.Run("different notes have different hashes", func(t *testing.T) {
		note1 := domain.Note{Question: "Note 1"}
		note2 := domain.Note{Question: "Note 2"}
		if Hash(note1) == Hash(note2) {
			t.Error("Expected hashes for different notes to be different")
		}
	})
}
