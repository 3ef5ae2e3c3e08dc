package intake

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/storage"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func openStore(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitCollection(context.Background(), time.Now(), domain.DefaultDeckConfig()))
	return db
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "geo.md"), "Q: Capital of France?\nA: Paris\n\nQ: Capital of Spain?\nA: Madrid\n")
	writeFile(t, filepath.Join(dir, "lang", "french.md"), "Deck: Languages::French\nTags: vocab\nQ: to eat\nA: manger\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "Q: Not markdown\nA: ignored\n")
	// same content as geo.md, differently cased
	writeFile(t, filepath.Join(dir, "dup.md"), "Q: capital of france?\nA: PARIS\n")

	res, err := Import(ctx, db, dir, "Default", logger)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Files)
	assert.Equal(t, 4, res.Parsed)
	assert.Equal(t, 3, res.Added)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, res.Errors)

	french, err := db.DeckByName(ctx, "Languages::French")
	require.NoError(t, err)
	_, err = db.DeckByName(ctx, "Languages")
	require.NoError(t, err)
	// dup.md sorts first, so Default receives the first card
	assert.Equal(t, []int64{1, french.ID}, res.Decks)

	ids, err := db.CardIDs(ctx, domain.CardQuery{DeckIDs: []int64{french.ID}})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	card, err := db.Card(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.QueueNew, card.Queue)
	note, err := db.Note(ctx, card.NoteID)
	require.NoError(t, err)
	assert.Equal(t, []string{"vocab"}, note.Tags)
	assert.NotEmpty(t, note.GUID)

	defaults, err := db.CardIDs(ctx, domain.CardQuery{DeckIDs: []int64{1}, Order: domain.OrderByPosition})
	require.NoError(t, err)
	assert.Len(t, defaults, 2)

	again, err := Import(ctx, db, dir, "Default", logger)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Added)
	assert.Equal(t, 4, again.Skipped)
	assert.Empty(t, again.Decks)
}

func TestImportMissingDirectory(t *testing.T) {
	db := openStore(t)
	_, err := Import(context.Background(), db, filepath.Join(t.TempDir(), "missing"), "Default", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestImportCancelled(t *testing.T) {
	db := openStore(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "Q: one\nA: two\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Import(ctx, db, dir, "Default", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, context.Canceled)
}
