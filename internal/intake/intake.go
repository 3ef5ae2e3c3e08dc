// Package intake turns a directory of markdown Q/A files into notes and new
// cards.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/knol"
	"github.com/conorfennell/knolsched/internal/parser"
	"github.com/conorfennell/knolsched/internal/storage"
)

// Store is the part of the record store intake writes to.
type Store interface {
	NoteByChecksum(ctx context.Context, checksum string) (*domain.Note, error)
	InsertNote(ctx context.Context, n *domain.Note) error
	EnsureDeck(ctx context.Context, name string) (int64, error)
	NextPosition(ctx context.Context) (int64, error)
	InsertCard(ctx context.Context, card *domain.Card) error
}

// Result summarises one import.
type Result struct {
	Files   int
	Parsed  int
	Added   int
	Skipped int
	// Decks lists the decks that received new cards, in the order they were
	// first written to. Callers apply each deck's new-card order to them.
	Decks []int64
	// Errors holds the per-file and per-note failures that did not stop the
	// import.
	Errors []error
}

type parsedFile struct {
	path  string
	notes []domain.Note
	err   error
}

// Import adds every note found in the markdown files under dir that is not
// in the store yet. Notes without a Deck: line go to defaultDeck. Each new
// note gets one new card at the end of the new queue.
func Import(ctx context.Context, store Store, dir, defaultDeck string, logger *slog.Logger) (Result, error) {
	var paths []string
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if walkErr != nil {
		return Result{}, fmt.Errorf("failed to walk directory %s: %w", dir, walkErr)
	}

	files, err := parseAll(ctx, paths)
	if err != nil {
		return Result{}, err
	}

	res := Result{Files: len(files)}
	for _, f := range files {
		if f.err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("parsing %s: %w", f.path, f.err))
		}
		for _, note := range f.notes {
			res.Parsed++
			did, added, err := addNote(ctx, store, note, defaultDeck)
			switch {
			case err != nil:
				res.Errors = append(res.Errors, fmt.Errorf("%s: %w", f.path, err))
			case added:
				logger.Debug("note added", "path", f.path, "deck", note.Deck)
				res.Added++
				if !slices.Contains(res.Decks, did) {
					res.Decks = append(res.Decks, did)
				}
			default:
				res.Skipped++
			}
		}
	}

	logger.Info("import complete",
		"path", dir,
		"files", res.Files,
		"parsed_notes", res.Parsed,
		"added", res.Added,
		"skipped", res.Skipped,
		"errors", len(res.Errors),
	)
	return res, nil
}

// parseAll parses the files concurrently, keeping their order.
func parseAll(ctx context.Context, paths []string) ([]parsedFile, error) {
	files := make([]parsedFile, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			notes, err := parser.ParseFile(path)
			files[i] = parsedFile{path: path, notes: notes, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// addNote stores note and its card unless a note with the same content
// already exists. It reports the card's deck and whether anything was added.
func addNote(ctx context.Context, store Store, note domain.Note, defaultDeck string) (int64, bool, error) {
	note.Checksum = knol.Hash(note)
	_, err := store.NoteByChecksum(ctx, note.Checksum)
	if err == nil {
		return 0, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, false, fmt.Errorf("db check for %s: %w", note.Checksum, err)
	}

	if note.Deck == "" {
		note.Deck = defaultDeck
	}
	did, err := store.EnsureDeck(ctx, note.Deck)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create deck %q: %w", note.Deck, err)
	}
	if err := store.InsertNote(ctx, &note); err != nil {
		return 0, false, err
	}
	pos, err := store.NextPosition(ctx)
	if err != nil {
		return 0, false, err
	}
	card := &domain.Card{
		NoteID: note.ID,
		DeckID: did,
		Type:   domain.TypeNew,
		Queue:  domain.QueueNew,
		Due:    pos,
	}
	if err := store.InsertCard(ctx, card); err != nil {
		return 0, false, fmt.Errorf("db insert for %s: %w", note.Checksum, err)
	}
	return did, true, nil
}
