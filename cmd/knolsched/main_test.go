package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/storage"
)

type cli struct {
	t  *testing.T
	db string
}

func newCLI(t *testing.T) *cli {
	return &cli{t: t, db: filepath.Join(t.TempDir(), "test.db")}
}

func (c *cli) run(input string, args ...string) (string, error) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	args = append([]string{"--db", c.db, "--log.level", "error"}, args...)
	err := run(context.Background(), args, strings.NewReader(input), &out, &errOut)
	return out.String(), err
}

// cardIDs returns the ids of every card, formatted for the command line.
func (c *cli) cardIDs() []string {
	c.t.Helper()
	db, err := storage.Open(c.db)
	require.NoError(c.t, err)
	defer db.Close()
	ids, err := db.CardIDs(context.Background(), domain.CardQuery{})
	require.NoError(c.t, err)
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatInt(id, 10)
	}
	return out
}

func writeNotes(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte(content), 0o644))
	return dir
}

func TestImportAndStudy(t *testing.T) {
	c := newCLI(t)
	dir := writeNotes(t, "Q: What is the capital of France?\nA: Paris\n")

	out, err := c.run("", "import", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 added")

	out, err = c.run("", "counts")
	require.NoError(t, err)
	assert.Equal(t, "new 1  learning 0  review 0\n", out)

	// Good twice: the first moves to the second step, which is shown early
	// because nothing else is due, and the second graduates the card.
	out, err = c.run("\n2\n\n2\n", "study")
	require.NoError(t, err)
	assert.Contains(t, out, "Q: What is the capital of France?")
	assert.Contains(t, out, "A: Paris")
	assert.Contains(t, out, "2) good 10m")
	assert.Contains(t, out, "2 cards studied")

	out, err = c.run("", "counts")
	require.NoError(t, err)
	assert.Equal(t, "new 0  learning 0  review 0\n", out)
}

func TestStudyQuit(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("", "import", writeNotes(t, "Q: one\nA: 1\n"))
	require.NoError(t, err)

	out, err := c.run("q\n", "study")
	require.NoError(t, err)
	assert.Contains(t, out, "0 cards studied")

	out, err = c.run("", "counts")
	require.NoError(t, err)
	assert.Equal(t, "new 1  learning 0  review 0\n", out)
}

func TestSelectAndDecks(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("", "import", writeNotes(t, "Deck: Lang::French\nQ: to eat\nA: manger\n"))
	require.NoError(t, err)

	out, err := c.run("", "select", "Lang")
	require.NoError(t, err)
	assert.Contains(t, out, "Selected Lang.")
	assert.Contains(t, out, "new 1")

	out, err = c.run("", "decks")
	require.NoError(t, err)
	assert.Contains(t, out, "Default")
	assert.Contains(t, out, "    French")
	assert.Regexp(t, `\*\s+\d+  Lang`, out)

	_, err = c.run("", "select", "Nope")
	assert.Error(t, err)
}

func TestSuspendCommands(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("", "import", writeNotes(t, "Q: one\nA: 1\n---\nQ: two\nA: 2\n"))
	require.NoError(t, err)

	ids := c.cardIDs()
	require.Len(t, ids, 2)

	_, err = c.run("", "suspend", strings.Join(ids, ","))
	require.NoError(t, err)
	out, err := c.run("", "counts")
	require.NoError(t, err)
	assert.Equal(t, "new 0  learning 0  review 0\n", out)

	_, err = c.run("", "unsuspend", ids[0], ids[1])
	require.NoError(t, err)
	out, err = c.run("", "counts")
	require.NoError(t, err)
	assert.Equal(t, "new 2  learning 0  review 0\n", out)

	_, err = c.run("", "reschedule", "1", "1", ids[0])
	require.NoError(t, err)
	out, err = c.run("", "counts")
	require.NoError(t, err)
	assert.Equal(t, "new 1  learning 0  review 0\n", out)
}

func TestCommandErrors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{name: "no command", args: nil},
		{name: "unknown command", args: []string{"launch"}},
		{name: "missing argument", args: []string{"import"}},
		{name: "extra argument", args: []string{"counts", "now"}},
		{name: "bad id", args: []string{"suspend", "x"}},
		{name: "bad range", args: []string{"reschedule", "5", "1", "1"}},
		{name: "short reschedule", args: []string{"reschedule", "1", "2"}},
		{name: "rebuild regular deck", args: []string{"rebuild", "1"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newCLI(t).run("", tc.args...)
			assert.Error(t, err)
		})
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"1,2", "3", ","})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	_, err = parseIDs([]string{","})
	assert.Error(t, err)
}

func TestFormatInterval(t *testing.T) {
	testCases := []struct {
		secs int64
		want string
	}{
		{0, "end"},
		{30, "30s"},
		{600, "10m"},
		{7200, "2h"},
		{4 * 86400, "4d"},
		{60 * 86400, "2.0mo"},
		{730 * 86400, "2.0y"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, formatInterval(tc.secs))
	}
}

func TestCollectionStart(t *testing.T) {
	loc := time.UTC
	assert.Equal(t, time.Date(2024, 3, 5, 4, 0, 0, 0, loc), collectionStart(time.Date(2024, 3, 5, 13, 0, 0, 0, loc)))
	assert.Equal(t, time.Date(2024, 3, 4, 4, 0, 0, 0, loc), collectionStart(time.Date(2024, 3, 5, 2, 0, 0, 0, loc)))
}
