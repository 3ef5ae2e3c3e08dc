package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolsched/internal/domain"
)

func TestFilteredWithoutRescheduleReturnsCardToNew(t *testing.T) {
	f := newFixture(t)
	added := f.addCard(defaultDeck, nil)

	did, ids, err := f.sched.CreateFiltered(f.ctx, "Cram", domain.FilterSpec{
		Query: "deck:Default",
		Limit: 10,
		Order: domain.OrderDue,
	})
	require.NoError(t, err)
	require.Equal(t, []int64{added.ID}, ids)

	parked := f.card(added.ID)
	assert.Equal(t, did, parked.DeckID)
	assert.Equal(t, defaultDeck, parked.OriginalDeckID)
	assert.Equal(t, added.Due, parked.OriginalDue)
	assert.Equal(t, domain.QueueNew, parked.Queue)
	assert.Less(t, parked.Due, int64(0))

	c := f.next()
	require.NotNil(t, c)
	require.Equal(t, added.ID, c.ID)
	f.answer(c, domain.Easy)

	c = f.card(added.ID)
	assert.Equal(t, domain.TypeNew, c.Type)
	assert.Equal(t, domain.QueueNew, c.Queue)
	assert.Equal(t, defaultDeck, c.DeckID)
	assert.Equal(t, int64(0), c.OriginalDeckID)
	assert.Equal(t, int64(0), c.OriginalDue)
	assert.Greater(t, c.Due, added.Due)
}

func TestFilteredReviewIsRescheduledHome(t *testing.T) {
	f := newFixture(t)
	today := f.today()
	added := f.addCard(defaultDeck, review(10, today-2))

	did, ids, err := f.sched.CreateFiltered(f.ctx, "Due", domain.FilterSpec{
		Query:      "is:due",
		Limit:      10,
		Order:      domain.OrderDue,
		Reschedule: true,
	})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, domain.QueueReview, f.card(added.ID).Queue)

	c := f.next()
	require.NotNil(t, c)
	assert.Equal(t, did, c.DeckID)
	f.answer(c, domain.Good)

	c = f.card(added.ID)
	assert.Equal(t, defaultDeck, c.DeckID)
	assert.Equal(t, int64(0), c.OriginalDeckID)
	assert.Greater(t, c.Interval, 10)
	assert.Equal(t, today+int64(c.Interval), c.Due)
}

func TestRebuildFilteredIsIdempotent(t *testing.T) {
	testCases := []struct {
		name  string
		order domain.FilterOrder
	}{
		{name: "random", order: domain.OrderRandom},
		{name: "due", order: domain.OrderDue},
		{name: "interval descending", order: domain.OrderIntervalDesc},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			today := f.today()
			for i := range 6 {
				f.addCard(defaultDeck, review(i+1, today-int64(i)))
			}

			did, first, err := f.sched.CreateFiltered(f.ctx, "Cram", domain.FilterSpec{
				Query: "is:due",
				Limit: 3,
				Order: tc.order,
			})
			require.NoError(t, err)
			require.Len(t, first, 3)

			second, err := f.sched.RebuildFiltered(f.ctx, did)
			require.NoError(t, err)
			assert.ElementsMatch(t, first, second)

			for _, id := range second {
				c := f.card(id)
				assert.Equal(t, did, c.DeckID)
				assert.Equal(t, defaultDeck, c.OriginalDeckID)
				assert.Equal(t, domain.QueueReview, c.Queue)
				assert.LessOrEqual(t, c.OriginalDue, today)
			}
		})
	}
}

func TestFilteredOrderDue(t *testing.T) {
	f := newFixture(t)
	today := f.today()
	late := f.addCard(defaultDeck, review(4, today-2))
	f.addCard(defaultDeck, review(4, today))
	mid := f.addCard(defaultDeck, review(4, today-1))

	_, ids, err := f.sched.CreateFiltered(f.ctx, "Late", domain.FilterSpec{
		Query: "is:due",
		Limit: 2,
		Order: domain.OrderDue,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{late.ID, mid.ID}, ids)
	assert.Less(t, f.card(late.ID).Due, f.card(mid.ID).Due)
}

func TestEmptyFilteredRestoresCards(t *testing.T) {
	f := newFixture(t)
	today := f.today()
	due := f.addCard(defaultDeck, review(5, today-1))
	fresh := f.addCard(defaultDeck, nil)

	did, ids, err := f.sched.CreateFiltered(f.ctx, "All", domain.FilterSpec{
		Query: "deck:Default",
		Limit: 10,
		Order: domain.OrderAdded,
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	require.NoError(t, f.sched.EmptyFiltered(f.ctx, did))

	c := f.card(due.ID)
	assert.Equal(t, defaultDeck, c.DeckID)
	assert.Equal(t, today-1, c.Due)
	assert.Equal(t, domain.QueueReview, c.Queue)
	assert.Equal(t, int64(0), c.OriginalDeckID)

	c = f.card(fresh.ID)
	assert.Equal(t, defaultDeck, c.DeckID)
	assert.Equal(t, fresh.Due, c.Due)
	assert.Equal(t, domain.QueueNew, c.Queue)
}

func TestRemoveFromFilteredLearningBecomesNew(t *testing.T) {
	f := newFixture(t)
	added := f.addCard(defaultDeck, nil)

	_, _, err := f.sched.CreateFiltered(f.ctx, "Cram", domain.FilterSpec{
		Query: "deck:Default",
		Limit: 10,
	})
	require.NoError(t, err)
	f.answer(f.next(), domain.Good)
	require.Equal(t, domain.QueueLearning, f.card(added.ID).Queue)

	require.NoError(t, f.sched.RemoveFromFiltered(f.ctx, []int64{added.ID}))

	c := f.card(added.ID)
	assert.Equal(t, domain.TypeNew, c.Type)
	assert.Equal(t, domain.QueueNew, c.Queue)
	assert.Equal(t, added.Due, c.Due)
	assert.Equal(t, defaultDeck, c.DeckID)
}

func TestRebuildFilteredMalformedQuery(t *testing.T) {
	f := newFixture(t)
	added := f.addCard(defaultDeck, nil)

	did, ids, err := f.sched.CreateFiltered(f.ctx, "Broken", domain.FilterSpec{
		Query: "deck:Default (",
		Limit: 10,
	})
	require.NoError(t, err)
	assert.NotZero(t, did)
	assert.Empty(t, ids)

	c := f.card(added.ID)
	assert.Equal(t, defaultDeck, c.DeckID)
	assert.Equal(t, int64(0), c.OriginalDeckID)
}

func TestRebuildRegularDeck(t *testing.T) {
	f := newFixture(t)
	_, err := f.sched.RebuildFiltered(f.ctx, defaultDeck)
	assert.ErrorIs(t, err, ErrNotFiltered)
}

func TestFilteredDoesNotPullFilteredCards(t *testing.T) {
	f := newFixture(t)
	f.addCard(defaultDeck, nil)

	_, first, err := f.sched.CreateFiltered(f.ctx, "One", domain.FilterSpec{Query: "deck:Default", Limit: 10})
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, second, err := f.sched.CreateFiltered(f.ctx, "Two", domain.FilterSpec{Query: "deck:Default", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, second)
}
