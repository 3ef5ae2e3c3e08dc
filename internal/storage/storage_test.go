package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/search"
)

var created = time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC)

func openTest(t *testing.T) (*DB, context.Context) {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	require.NoError(t, db.InitCollection(ctx, created, domain.DefaultDeckConfig()))
	return db, ctx
}

func addNote(t *testing.T, db *DB, checksum string, tags ...string) *domain.Note {
	t.Helper()
	n := &domain.Note{Checksum: checksum, Question: "question " + checksum, Answer: "answer", Tags: tags}
	require.NoError(t, db.InsertNote(context.Background(), n))
	return n
}

func addCard(t *testing.T, db *DB, nid, did int64, queue domain.Queue, due int64) *domain.Card {
	t.Helper()
	c := &domain.Card{NoteID: nid, DeckID: did, Queue: queue, Due: due, Factor: domain.StartingFactor}
	switch queue {
	case domain.QueueReview:
		c.Type = domain.TypeReview
		c.Interval = 5
	case domain.QueueLearning:
		c.Type = domain.TypeLearning
	}
	require.NoError(t, db.InsertCard(context.Background(), c))
	return c
}

func TestInitCollection(t *testing.T) {
	db, ctx := openTest(t)

	// a second call keeps the existing collection
	other := domain.DefaultDeckConfig()
	other.New.PerDay = 99
	require.NoError(t, db.InitCollection(ctx, created.AddDate(1, 0, 0), other))

	col, err := db.Collection(ctx)
	require.NoError(t, err)
	assert.Equal(t, created.Unix(), col.Created)
	assert.Equal(t, int64(1), col.CurrentDeck)
	assert.Equal(t, []int64{1}, col.ActiveDecks)

	conf, err := db.DeckConfig(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 20, conf.New.PerDay)

	decks, err := db.Decks(ctx)
	require.NoError(t, err)
	require.Len(t, decks, 1)
	assert.Equal(t, "Default", decks[0].Name)

	bad := domain.DefaultDeckConfig()
	bad.New.Ints = []int{1}
	assert.Error(t, db.InitCollection(ctx, created, bad))
}

func TestSaveCollection(t *testing.T) {
	db, ctx := openTest(t)
	col, err := db.Collection(ctx)
	require.NoError(t, err)

	col.CurrentDeck = 7
	col.ActiveDecks = []int64{7, 8}
	col.LastUnburied = 12
	require.NoError(t, db.SaveCollection(ctx, col))

	got, err := db.Collection(ctx)
	require.NoError(t, err)
	assert.Equal(t, col, got)
}

func TestNotes(t *testing.T) {
	db, ctx := openTest(t)

	a := addNote(t, db, "aaa", "vocab")
	b := addNote(t, db, "bbb")
	assert.NotEmpty(t, a.GUID)
	assert.NotEqual(t, a.GUID, b.GUID)
	assert.NotEqual(t, a.ID, b.ID)

	got, err := db.NoteByChecksum(ctx, "aaa")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, a.GUID, got.GUID)
	assert.Equal(t, []string{"vocab"}, got.Tags)

	_, err = db.NoteByChecksum(ctx, "zzz")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.Note(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	// checksums are unique
	assert.Error(t, db.InsertNote(ctx, &domain.Note{Checksum: "aaa", Question: "again"}))

	// a caller supplied GUID is kept
	n := &domain.Note{GUID: "fixed", Checksum: "ccc", Question: "q"}
	require.NoError(t, db.InsertNote(ctx, n))
	assert.Equal(t, "fixed", n.GUID)
}

func TestAddNoteTag(t *testing.T) {
	db, ctx := openTest(t)
	n := addNote(t, db, "aaa", "vocab")

	require.NoError(t, db.AddNoteTag(ctx, n.ID, "leech"))
	require.NoError(t, db.AddNoteTag(ctx, n.ID, "leech"))

	got, err := db.Note(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"vocab", "leech"}, got.Tags)

	assert.ErrorIs(t, db.AddNoteTag(ctx, 42, "x"), ErrNotFound)
}

func TestEnsureDeck(t *testing.T) {
	db, ctx := openTest(t)

	id, err := db.EnsureDeck(ctx, "Lang::French::Verbs")
	require.NoError(t, err)
	again, err := db.EnsureDeck(ctx, "Lang::French::Verbs")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	decks, err := db.Decks(ctx)
	require.NoError(t, err)
	var names []string
	for _, d := range decks {
		names = append(names, d.Name)
	}
	assert.ElementsMatch(t, []string{"Default", "Lang", "Lang::French", "Lang::French::Verbs"}, names)

	d, err := db.Deck(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Lang::French::Verbs", d.Name)
	assert.Equal(t, int64(1), d.ConfigID)

	_, err = db.Deck(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveDeckAndCounters(t *testing.T) {
	db, ctx := openTest(t)
	d, err := db.Deck(ctx, 1)
	require.NoError(t, err)

	d.NewToday = domain.DayCount{Day: 3, Count: 4}
	d.ReviewToday = domain.DayCount{Day: 5, Count: 6}
	require.NoError(t, db.SaveDeck(ctx, d))
	require.NoError(t, db.ResetDailyCounters(ctx, 5))

	got, err := db.Deck(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, got.NewToday.On(3))
	assert.Equal(t, 6, got.ReviewToday.On(5))
}

func TestFilteredDeckRoundTrip(t *testing.T) {
	db, ctx := openTest(t)
	spec := &domain.FilterSpec{Query: "tag:vocab", Limit: 10, Order: domain.OrderDue, Reschedule: true, Delays: []float64{1, 5}}
	id, err := db.InsertDeck(ctx, &domain.Deck{Name: "Cram", Filtered: true, Filter: spec})
	require.NoError(t, err)

	got, err := db.Deck(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Filtered)
	assert.Equal(t, spec, got.Filter)
}

func TestDeckConfigRoundTrip(t *testing.T) {
	db, ctx := openTest(t)
	conf := domain.DefaultDeckConfig()
	conf.ID = 2
	conf.Name = "Slow"
	conf.Rev.PerDay = 5
	require.NoError(t, db.SaveDeckConfig(ctx, &conf))

	got, err := db.DeckConfig(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, &conf, got)

	_, err = db.DeckConfig(ctx, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCardQueries(t *testing.T) {
	db, ctx := openTest(t)
	n := addNote(t, db, "aaa")
	newer := addCard(t, db, n.ID, 1, domain.QueueNew, 2)
	older := addCard(t, db, n.ID, 1, domain.QueueNew, 1)
	due := addCard(t, db, n.ID, 1, domain.QueueReview, 4)
	later := addCard(t, db, n.ID, 1, domain.QueueReview, 9)

	testCases := []struct {
		name string
		q    domain.CardQuery
		want []int64
	}{
		{name: "all", q: domain.CardQuery{}, want: []int64{newer.ID, older.ID, due.ID, later.ID}},
		{name: "new by position", q: domain.CardQuery{Queues: []domain.Queue{domain.QueueNew}, Order: domain.OrderByPosition}, want: []int64{older.ID, newer.ID}},
		{name: "due reviews", q: domain.CardQuery{Queues: []domain.Queue{domain.QueueReview}, MaxDue: 5, HasMaxDue: true}, want: []int64{due.ID}},
		{name: "limit", q: domain.CardQuery{Order: domain.OrderByDue, Limit: 2}, want: []int64{older.ID, newer.ID}},
		{name: "other deck", q: domain.CardQuery{DeckIDs: []int64{2}}, want: nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ids, err := db.CardIDs(ctx, tc.q)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids)

			count, err := db.CountCards(ctx, tc.q)
			require.NoError(t, err)
			assert.Equal(t, len(tc.want), count)
		})
	}

	siblings, err := db.Siblings(ctx, n.ID, newer.ID, 5)
	require.NoError(t, err)
	require.Len(t, siblings, 2)
	assert.Equal(t, older.ID, siblings[0].ID)
	assert.Equal(t, due.ID, siblings[1].ID)

	forecast, err := db.DueForecast(ctx, []int64{1}, 4, 10)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{4: 1, 9: 1}, forecast)
}

func TestUpdateCards(t *testing.T) {
	db, ctx := openTest(t)
	n := addNote(t, db, "aaa")
	c := addCard(t, db, n.ID, 1, domain.QueueNew, 1)

	c.Type = domain.TypeLearning
	c.Queue = domain.QueueLearning
	c.Due = 1_700_000_000
	c.Left = domain.Left{Today: 1, Total: 2}
	c.Reps = 1
	require.NoError(t, db.UpdateCard(ctx, c))

	got, err := db.Card(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	learning, err := db.LearningDue(ctx, []int64{1}, 1_700_000_001, 10)
	require.NoError(t, err)
	assert.Equal(t, []domain.LearningEntry{{Due: 1_700_000_000, CardID: c.ID, LeftToday: 1}}, learning)

	_, err = db.Card(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewPositions(t *testing.T) {
	db, ctx := openTest(t)

	first, err := db.NextPosition(ctx)
	require.NoError(t, err)
	second, err := db.NextPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)

	require.NoError(t, db.ReserveThrough(ctx, 10))
	require.NoError(t, db.ReserveThrough(ctx, 5))
	next, err := db.NextPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11), next)

	n := addNote(t, db, "aaa")
	a := addCard(t, db, n.ID, 1, domain.QueueNew, 3)
	b := addCard(t, db, n.ID, 1, domain.QueueNew, 6)
	require.NoError(t, db.ShiftNewPositions(ctx, 4, 10, 0, 0, nil))

	low, ok, err := db.MinNewDueFrom(ctx, 4, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(16), low)

	_, ok, err = db.MinNewDueFrom(ctx, 4, []int64{b.ID})
	require.NoError(t, err)
	assert.False(t, ok)

	top, err := db.MaxNewDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(16), top)

	got, err := db.Card(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Due)
}

func TestReviewLogDuplicateKey(t *testing.T) {
	db, ctx := openTest(t)
	l := domain.ReviewLog{ID: 1000, CardID: 7, Grade: domain.Good, Interval: -600, Factor: 2500, TimeTaken: 3000, Kind: domain.ReviewLearn}

	require.NoError(t, db.AddReviewLog(ctx, l))
	assert.ErrorIs(t, db.AddReviewLog(ctx, l), ErrDuplicateLog)

	// the same instant for another card is a different key
	other := l
	other.CardID = 8
	require.NoError(t, db.AddReviewLog(ctx, other))

	l.ID = 1001
	l.Grade = domain.Again
	require.NoError(t, db.AddReviewLog(ctx, l))
	logs, err := db.ReviewLogs(ctx, 7)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, domain.Good, logs[0].Grade)
	assert.Equal(t, domain.Again, logs[1].Grade)
}

func TestSearchCards(t *testing.T) {
	db, ctx := openTest(t)
	vocab := addNote(t, db, "aaa", "vocab")
	plain := addNote(t, db, "bbb")

	a := addCard(t, db, vocab.ID, 1, domain.QueueReview, 2)
	b := addCard(t, db, vocab.ID, 1, domain.QueueNew, 1)
	suspended := addCard(t, db, vocab.ID, 1, domain.QueueSuspended, 1)
	addCard(t, db, vocab.ID, 1, domain.QueueLearning, 1)
	c := addCard(t, db, plain.ID, 1, domain.QueueReview, 1)

	cram, err := db.InsertDeck(ctx, &domain.Deck{Name: "Cram", Filtered: true, Filter: &domain.FilterSpec{Limit: 10}})
	require.NoError(t, err)
	parked := addCard(t, db, vocab.ID, cram, domain.QueueReview, 1)

	env := search.Env{Today: 5}
	testCases := []struct {
		query string
		order domain.FilterOrder
		limit int
		want  []int64
	}{
		{query: "tag:vocab", order: domain.OrderDue, want: []int64{b.ID, a.ID}},
		{query: "", order: domain.OrderDue, want: []int64{b.ID, c.ID, a.ID}},
		{query: "", order: domain.OrderDue, limit: 1, want: []int64{b.ID}},
		{query: "-tag:vocab", order: domain.OrderDue, want: []int64{c.ID}},
		{query: "is:review", order: domain.OrderIntervalAsc, want: []int64{a.ID, c.ID}},
	}
	for _, tc := range testCases {
		t.Run(tc.query, func(t *testing.T) {
			node, err := search.Parse(tc.query)
			require.NoError(t, err)
			ids, err := db.SearchCards(ctx, node, tc.order, tc.limit, env)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids)
			assert.NotContains(t, ids, suspended.ID)
			assert.NotContains(t, ids, parked.ID)
		})
	}
}
