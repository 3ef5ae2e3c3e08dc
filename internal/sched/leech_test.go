package sched

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolsched/internal/domain"
)

func TestIsLeech(t *testing.T) {
	testCases := []struct {
		lapses    int
		threshold int
		want      bool
	}{
		{lapses: 7, threshold: 8, want: false},
		{lapses: 8, threshold: 8, want: true},
		{lapses: 9, threshold: 8, want: false},
		{lapses: 12, threshold: 8, want: true},
		{lapses: 16, threshold: 8, want: true},
		{lapses: 1, threshold: 1, want: true},
		{lapses: 2, threshold: 1, want: true},
		{lapses: 3, threshold: 3, want: true},
		{lapses: 4, threshold: 3, want: true},
		{lapses: 5, threshold: 0, want: false},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d of %d", tc.lapses, tc.threshold), func(t *testing.T) {
			assert.Equal(t, tc.want, IsLeech(tc.lapses, tc.threshold))
		})
	}
}

func TestLeechIsSuspended(t *testing.T) {
	f := newFixture(t)
	today := f.today()
	added := f.addCard(defaultDeck, func(c *domain.Card) {
		review(10, today)(c)
		c.Lapses = 7
	})

	f.answer(f.next(), domain.Again)

	c := f.card(added.ID)
	assert.Equal(t, 8, c.Lapses)
	assert.Equal(t, domain.QueueSuspended, c.Queue)
	assert.Equal(t, today+1, c.Due)
	assert.Equal(t, int64(0), c.OriginalDue)

	note, err := f.db.Note(f.ctx, added.NoteID)
	require.NoError(t, err)
	assert.True(t, note.HasTag(LeechTag))

	var leeches []LeechDetected
	for _, e := range f.events {
		if l, ok := e.(LeechDetected); ok {
			leeches = append(leeches, l)
		}
	}
	require.Len(t, leeches, 1)
	assert.True(t, leeches[0].Suspended)
	assert.Equal(t, added.ID, leeches[0].Card.ID)

	// the leech event is delivered before the answer event
	_, last := f.events[len(f.events)-1].(CardAnswered)
	assert.True(t, last)

	assert.Nil(t, f.next())
}

func TestLeechTagOnly(t *testing.T) {
	f := newFixture(t)
	f.editConfig(func(c *domain.DeckConfig) { c.Lapse.LeechAction = domain.LeechTagOnly })
	today := f.today()
	added := f.addCard(defaultDeck, func(c *domain.Card) {
		review(10, today)(c)
		c.Lapses = 7
	})

	f.answer(f.next(), domain.Again)

	c := f.card(added.ID)
	assert.Equal(t, domain.QueueLearning, c.Queue)
	note, err := f.db.Note(f.ctx, added.NoteID)
	require.NoError(t, err)
	assert.Equal(t, []string{LeechTag}, note.Tags)
}

func TestLeechTaggedOnce(t *testing.T) {
	f := newFixture(t)
	f.editConfig(func(c *domain.DeckConfig) {
		c.Lapse.LeechAction = domain.LeechTagOnly
		c.Lapse.LeechFails = 2
		c.Lapse.Delays = nil
	})
	today := f.today()
	added := f.addCard(defaultDeck, func(c *domain.Card) {
		review(10, today)(c)
		c.Lapses = 1
	})

	f.answer(f.next(), domain.Again)
	f.clock.Advance(24 * time.Hour)
	f.answer(f.next(), domain.Again)

	assert.Equal(t, 3, f.card(added.ID).Lapses)
	note, err := f.db.Note(f.ctx, added.NoteID)
	require.NoError(t, err)
	assert.Equal(t, []string{LeechTag}, note.Tags)
}
