package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/knolsched/internal/domain"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	contextPrefix  = "C:"
	deckPrefix     = "Deck:"
	tagsPrefix     = "Tags:"
)

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingContext
)

// ParseFile reads a file from the given path and extracts all notes.
func ParseFile(path string) ([]domain.Note, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all notes.
//
// A "Deck:" line sets the deck of every following note and a "Tags:" line
// sets their space separated tags, until the next such line. Either line
// ends the note being read.
func Parse(r io.Reader) ([]domain.Note, error) {
	scanner := bufio.NewScanner(r)
	var notes []domain.Note
	var current domain.Note
	var currentBlock []string
	currentState := seeking
	deck := ""
	var tags []string

	flushBlock := func() {
		if len(currentBlock) == 0 {
			return
		}
		content := strings.Join(currentBlock, "\n")
		switch currentState {
		case readingQuestion:
			current.Question = content
		case readingAnswer:
			current.Answer = content
		case readingContext:
			current.Context = content
		}
		currentBlock = nil
	}

	finishNote := func() {
		flushBlock()
		if current.Question != "" {
			current.Deck = deck
			current.Tags = append([]string(nil), tags...)
			notes = append(notes, current)
		}
		current = domain.Note{}
		currentState = seeking
	}

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "---":
			finishNote()
		case strings.HasPrefix(line, deckPrefix):
			finishNote()
			deck = strings.TrimSpace(line[len(deckPrefix):])
		case strings.HasPrefix(line, tagsPrefix):
			finishNote()
			tags = strings.Fields(line[len(tagsPrefix):])
		case strings.HasPrefix(line, questionPrefix):
			// a new question always starts a new note
			finishNote()
			currentState = readingQuestion
			currentBlock = append(currentBlock, stripPrefix(line, questionPrefix))
		case strings.HasPrefix(line, answerPrefix):
			flushBlock()
			currentState = readingAnswer
			currentBlock = append(currentBlock, stripPrefix(line, answerPrefix))
		case strings.HasPrefix(line, contextPrefix):
			flushBlock()
			currentState = readingContext
			currentBlock = append(currentBlock, stripPrefix(line, contextPrefix))
		case currentState != seeking:
			currentBlock = append(currentBlock, line)
		}
	}

	finishNote() // Finish the very last note in the file

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return notes, nil
}

func stripPrefix(line, prefix string) string {
	return strings.TrimPrefix(line[len(prefix):], " ")
}
