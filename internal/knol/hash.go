package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/knolsched/internal/domain"
)

// Normalize concatenates the note's content after cleaning each part.
// It trims whitespace, lowercases, and normalizes line endings for each field
// before joining them. Deck and tags are not content and are left out, so
// moving a note between decks keeps its checksum.
func Normalize(note domain.Note) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	q := normalizePart(note.Question)
	a := normalizePart(note.Answer)
	c := normalizePart(note.Context)

	// Joined with a newline so "question" and "answer" can never run
	// together into "questionanswer".
	return strings.Join([]string{q, a, c}, "\n")
}

// Hash takes a note, normalizes it, and returns its SHA-256 hash as a hex string.
func Hash(note domain.Note) string {
	normalized := Normalize(note)
	hashBytes := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hashBytes)
}
