package parser

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name          string
		input         string
		expectedNotes int
		expectedQ     string
		expectedA     string
		expectedC     string
	}{
		{
			name:          "Simple Q&A",
			input:         "Q: What is the capital of France?\nA: Paris",
			expectedNotes: 1,
			expectedQ:     "What is the capital of France?",
			expectedA:     "Paris",
			expectedC:     "",
		},
		{
			name:          "Simple Q, A, and C",
			input:         "Q: What is 1+1?\nA: 2\nC: Basic arithmetic",
			expectedNotes: 1,
			expectedQ:     "What is 1+1?",
			expectedA:     "2",
			expectedC:     "Basic arithmetic",
		},
		{
			name: "Multiline Answer",
			input: `
Q: What are the primary colors?
A: Red
Blue
Yellow
`,
			expectedNotes: 1,
			expectedQ:     "What are the primary colors?",
			expectedA:     "Red\nBlue\nYellow",
			expectedC:     "",
		},
		{
			name: "Two Notes",
			input: `
Q: First question
A: First answer

Q: Second question
A: Second answer
`,
			expectedNotes: 2,
		},
		{
			name: "Separator ends a note",
			input: `
Q: First question
A: First answer
---
Trailing text is ignored
`,
			expectedNotes: 1,
			expectedQ:     "First question",
			expectedA:     "First answer",
		},
		{
			name:          "No notes, just text",
			input:         "This is a file with no questions.",
			expectedNotes: 0,
		},
		{
			name:          "Prefixes with no space",
			input:         "Q:Question\nA:Answer",
			expectedNotes: 1,
			expectedQ:     "Question",
			expectedA:     "Answer",
		},
		{
			name:          "Answer without question is dropped",
			input:         "A: Orphan answer",
			expectedNotes: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			notes, err := Parse(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("Parse() returned an unexpected error: %v", err)
			}

			if len(notes) != tc.expectedNotes {
				t.Fatalf("Expected %d notes, but got %d", tc.expectedNotes, len(notes))
			}

			if tc.expectedNotes == 1 {
				note := notes[0]
				if note.Question != tc.expectedQ {
					t.Errorf("Expected Question to be '%s', but got '%s'", tc.expectedQ, note.Question)
				}
				if note.Answer != tc.expectedA {
					t.Errorf("Expected Answer to be '%s', but got '%s'", tc.expectedA, note.Answer)
				}
				if note.Context != tc.expectedC {
					t.Errorf("Expected Context to be '%s', but got '%s'", tc.expectedC, note.Context)
				}
			}
		})
	}
}

func TestParseDirectives(t *testing.T) {
	input := `
Q: Loose question
A: Loose answer

Deck: Languages::French
Tags: vocab  verbs

Q: to eat
A: manger

Q: to drink
A: boire
Tags:
Q: to sleep
A: dormir
`
	notes, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() returned an unexpected error: %v", err)
	}
	if len(notes) != 4 {
		t.Fatalf("Expected 4 notes, but got %d", len(notes))
	}

	if notes[0].Deck != "" || len(notes[0].Tags) != 0 {
		t.Errorf("Expected the first note to have no deck or tags, got %q %v", notes[0].Deck, notes[0].Tags)
	}
	if notes[0].Answer != "Loose answer\n" {
		t.Errorf("Expected the directive to end the first answer, got %q", notes[0].Answer)
	}
	for _, n := range notes[1:3] {
		if n.Deck != "Languages::French" {
			t.Errorf("Expected deck 'Languages::French', but got '%s'", n.Deck)
		}
		if !slices.Equal(n.Tags, []string{"vocab", "verbs"}) {
			t.Errorf("Expected tags [vocab verbs], but got %v", n.Tags)
		}
	}
	if notes[2].Answer != "boire" {
		t.Errorf("Expected answer 'boire', but got %q", notes[2].Answer)
	}
	if notes[3].Deck != "Languages::French" || len(notes[3].Tags) != 0 {
		t.Errorf("Expected an empty Tags line to clear tags only, got %q %v", notes[3].Deck, notes[3].Tags)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.md")
	if err := os.WriteFile(path, []byte("Q: Question\nA: Answer\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	notes, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() returned an unexpected error: %v", err)
	}
	if len(notes) != 1 || notes[0].Question != "Question" {
		t.Errorf("Expected one note with question 'Question', got %+v", notes)
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}
