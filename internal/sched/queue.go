package sched

import (
	"container/heap"
	"context"
	"math"
	"math/rand"
	"slices"

	"github.com/conorfennell/knolsched/internal/decks"
	"github.com/conorfennell/knolsched/internal/domain"
)

type learningItem struct {
	due int64
	id  int64
}

// learningQueue is a min-heap of sub-day learning cards ordered by due time.
type learningQueue []learningItem

func (q learningQueue) Len() int { return len(q) }

func (q learningQueue) Less(i, j int) bool {
	if q[i].due != q[j].due {
		return q[i].due < q[j].due
	}
	return q[i].id < q[j].id
}

func (q learningQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *learningQueue) Push(x any) { *q = append(*q, x.(learningItem)) }

func (q *learningQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

func (q *learningQueue) remove(id int64) {
	for i, item := range *q {
		if item.id == id {
			heap.Remove(q, i)
			return
		}
	}
}

// nextCard picks the next card in priority order: due learning cards, a new
// card when it is time for one, reviews, day learning, remaining new cards
// and finally learning cards that are not quite due yet.
func (s *Scheduler) nextCard(ctx context.Context) (*domain.Card, error) {
	steps := []func(context.Context) (*domain.Card, error){
		func(ctx context.Context) (*domain.Card, error) { return s.learnCard(ctx, false) },
		func(ctx context.Context) (*domain.Card, error) {
			if !s.timeForNewCard() {
				return nil, nil
			}
			return s.newCard(ctx)
		},
		s.reviewCard,
		s.learnDayCard,
		s.newCard,
		func(ctx context.Context) (*domain.Card, error) { return s.learnCard(ctx, true) },
	}
	for _, step := range steps {
		card, err := step(ctx)
		if err != nil || card != nil {
			return card, err
		}
	}
	return nil, nil
}

// New cards

func (s *Scheduler) resetNew(ctx context.Context) error {
	tree, err := s.tree(ctx)
	if err != nil {
		return err
	}
	s.newCount, err = s.walkingCount(ctx, tree, s.newLimitSingle,
		func(ctx context.Context, did int64, lim int) (int, error) {
			return s.store.CountCards(ctx, domain.CardQuery{
				DeckIDs: []int64{did},
				Queues:  []domain.Queue{domain.QueueNew},
				Limit:   lim,
			})
		})
	if err != nil {
		return err
	}
	s.newDecks = slices.Clone(s.col.ActiveDecks)
	s.newQueue = nil
	s.updateNewCardRatio()
	return nil
}

func (s *Scheduler) fillNew(ctx context.Context, retried bool) (bool, error) {
	if len(s.newQueue) > 0 {
		return true, nil
	}
	if s.newCount == 0 {
		return false, nil
	}
	tree, err := s.tree(ctx)
	if err != nil {
		return false, err
	}
	for len(s.newDecks) > 0 {
		did := s.newDecks[0]
		lim, err := s.deckLimit(ctx, tree, did, s.newLimitSingle)
		if err != nil {
			return false, err
		}
		lim = min(lim, s.opts.QueueLimit)
		if lim > 0 {
			ids, err := s.store.CardIDs(ctx, domain.CardQuery{
				DeckIDs: []int64{did},
				Queues:  []domain.Queue{domain.QueueNew},
				Order:   domain.OrderByPosition,
				Limit:   lim,
			})
			if err != nil {
				return false, err
			}
			if len(ids) > 0 {
				slices.Reverse(ids)
				s.newQueue = ids
				return true, nil
			}
		}
		s.newDecks = s.newDecks[1:]
	}
	if s.newCount > 0 && !retried {
		// The count is stale, most likely after cards were buried or moved
		// behind the queue's back.
		s.logger.Debug("new queue empty with cards outstanding, recounting", "count", s.newCount)
		if err := s.resetNew(ctx); err != nil {
			return false, err
		}
		return s.fillNew(ctx, true)
	}
	return false, nil
}

func (s *Scheduler) newCard(ctx context.Context) (*domain.Card, error) {
	ok, err := s.fillNew(ctx, false)
	if err != nil || !ok {
		return nil, err
	}
	s.newCount--
	id := s.newQueue[len(s.newQueue)-1]
	s.newQueue = s.newQueue[:len(s.newQueue)-1]
	return s.store.Card(ctx, id)
}

// updateNewCardRatio sets how often new cards are mixed into reviews when
// distributing them.
func (s *Scheduler) updateNewCardRatio() {
	s.newCardModulus = 0
	if s.opts.NewSpread != SpreadDistribute || s.newCount == 0 {
		return
	}
	s.newCardModulus = int(math.Round(float64(s.newCount+s.reviewCount) / float64(s.newCount)))
	if s.reviewCount > 0 {
		s.newCardModulus = max(2, s.newCardModulus)
	}
}

func (s *Scheduler) timeForNewCard() bool {
	if s.newCount == 0 {
		return false
	}
	switch s.opts.NewSpread {
	case SpreadLast:
		return false
	case SpreadFirst:
		return true
	}
	return s.newCardModulus > 0 && s.reps > 0 && s.reps%s.newCardModulus == 0
}

// Learning cards

func (s *Scheduler) resetLearn(ctx context.Context) error {
	entries, err := s.store.LearningDue(ctx, s.col.ActiveDecks, s.day.Cutoff, s.opts.ReportLimit)
	if err != nil {
		return err
	}
	s.learnCount = 0
	for _, e := range entries {
		s.learnCount += e.LeftToday
	}
	dayCount, err := s.store.CountCards(ctx, domain.CardQuery{
		DeckIDs:   s.col.ActiveDecks,
		Queues:    []domain.Queue{domain.QueueDayLearning},
		MaxDue:    s.day.Today,
		HasMaxDue: true,
		Limit:     s.opts.ReportLimit,
	})
	if err != nil {
		return err
	}
	s.learnCount += dayCount
	s.learnQueue = nil
	s.learnDayQueue = nil
	s.learnDayDecks = slices.Clone(s.col.ActiveDecks)
	return nil
}

func (s *Scheduler) fillLearn(ctx context.Context) (bool, error) {
	if s.learnCount == 0 {
		return false, nil
	}
	if len(s.learnQueue) > 0 {
		return true, nil
	}
	entries, err := s.store.LearningDue(ctx, s.col.ActiveDecks, s.day.Cutoff, s.opts.ReportLimit)
	if err != nil {
		return false, err
	}
	s.learnQueue = make(learningQueue, 0, len(entries))
	for _, e := range entries {
		s.learnQueue = append(s.learnQueue, learningItem{due: e.Due, id: e.CardID})
	}
	heap.Init(&s.learnQueue)
	return len(s.learnQueue) > 0, nil
}

// learnCard pops the first learning card due now. With collapse set it also
// accepts cards due within the collapse window.
func (s *Scheduler) learnCard(ctx context.Context, collapse bool) (*domain.Card, error) {
	ok, err := s.fillLearn(ctx)
	if err != nil || !ok {
		return nil, err
	}
	cutoff := s.now()
	if collapse {
		cutoff += int64(s.opts.CollapseTime.Seconds())
	}
	if s.learnQueue[0].due >= cutoff {
		return nil, nil
	}
	item := heap.Pop(&s.learnQueue).(learningItem)
	card, err := s.store.Card(ctx, item.id)
	if err != nil {
		return nil, err
	}
	s.learnCount = max(0, s.learnCount-card.Left.Today)
	return card, nil
}

func (s *Scheduler) fillLearnDay(ctx context.Context) (bool, error) {
	if s.learnCount == 0 {
		return false, nil
	}
	if len(s.learnDayQueue) > 0 {
		return true, nil
	}
	for len(s.learnDayDecks) > 0 {
		did := s.learnDayDecks[0]
		ids, err := s.store.CardIDs(ctx, domain.CardQuery{
			DeckIDs:   []int64{did},
			Queues:    []domain.Queue{domain.QueueDayLearning},
			MaxDue:    s.day.Today,
			HasMaxDue: true,
			Limit:     s.opts.QueueLimit,
		})
		if err != nil {
			return false, err
		}
		if len(ids) > 0 {
			s.shuffleForToday(ids)
			s.learnDayQueue = ids
			if len(ids) < s.opts.QueueLimit {
				s.learnDayDecks = s.learnDayDecks[1:]
			}
			return true, nil
		}
		s.learnDayDecks = s.learnDayDecks[1:]
	}
	return false, nil
}

func (s *Scheduler) learnDayCard(ctx context.Context) (*domain.Card, error) {
	ok, err := s.fillLearnDay(ctx)
	if err != nil || !ok {
		return nil, err
	}
	s.learnCount = max(0, s.learnCount-1)
	id := s.learnDayQueue[len(s.learnDayQueue)-1]
	s.learnDayQueue = s.learnDayQueue[:len(s.learnDayQueue)-1]
	return s.store.Card(ctx, id)
}

// Reviews

func (s *Scheduler) resetReview(ctx context.Context) error {
	tree, err := s.tree(ctx)
	if err != nil {
		return err
	}
	s.reviewCount, err = s.walkingCount(ctx, tree, s.reviewLimitSingle,
		func(ctx context.Context, did int64, lim int) (int, error) {
			return s.store.CountCards(ctx, domain.CardQuery{
				DeckIDs:   []int64{did},
				Queues:    []domain.Queue{domain.QueueReview},
				MaxDue:    s.day.Today,
				HasMaxDue: true,
				Limit:     lim,
			})
		})
	if err != nil {
		return err
	}
	s.reviewQueue = nil
	s.reviewDecks = slices.Clone(s.col.ActiveDecks)
	return nil
}

func (s *Scheduler) fillReview(ctx context.Context, retried bool) (bool, error) {
	if len(s.reviewQueue) > 0 {
		return true, nil
	}
	if s.reviewCount == 0 {
		return false, nil
	}
	tree, err := s.tree(ctx)
	if err != nil {
		return false, err
	}
	for len(s.reviewDecks) > 0 {
		did := s.reviewDecks[0]
		lim, err := s.deckLimit(ctx, tree, did, s.reviewLimitSingle)
		if err != nil {
			return false, err
		}
		lim = min(lim, s.opts.QueueLimit)
		if lim > 0 {
			ok, err := s.pageReviews(ctx, tree, did, lim)
			if err != nil || ok {
				return ok, err
			}
		}
		s.reviewDecks = s.reviewDecks[1:]
	}
	if s.reviewCount > 0 && !retried {
		s.logger.Debug("review queue empty with cards outstanding, recounting", "count", s.reviewCount)
		if err := s.resetReview(ctx); err != nil {
			return false, err
		}
		return s.fillReview(ctx, true)
	}
	return false, nil
}

func (s *Scheduler) pageReviews(ctx context.Context, tree *decks.Tree, did int64, lim int) (bool, error) {
	ids, err := s.store.CardIDs(ctx, domain.CardQuery{
		DeckIDs:   []int64{did},
		Queues:    []domain.Queue{domain.QueueReview},
		MaxDue:    s.day.Today,
		HasMaxDue: true,
		Order:     domain.OrderByDue,
		Limit:     lim,
	})
	if err != nil || len(ids) == 0 {
		return false, err
	}
	if d := tree.Get(did); d != nil && d.Filtered {
		// filtered decks keep the order they were built in
		slices.Reverse(ids)
	} else {
		s.shuffleForToday(ids)
	}
	s.reviewQueue = ids
	if len(ids) < lim {
		s.reviewDecks = s.reviewDecks[1:]
	}
	return true, nil
}

func (s *Scheduler) reviewCard(ctx context.Context) (*domain.Card, error) {
	ok, err := s.fillReview(ctx, false)
	if err != nil || !ok {
		return nil, err
	}
	s.reviewCount--
	id := s.reviewQueue[len(s.reviewQueue)-1]
	s.reviewQueue = s.reviewQueue[:len(s.reviewQueue)-1]
	return s.store.Card(ctx, id)
}

// shuffleForToday shuffles ids the same way for the whole day.
func (s *Scheduler) shuffleForToday(ids []int64) {
	r := rand.New(rand.NewSource(s.day.Today))
	r.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}

func removeID(ids []int64, id int64) []int64 {
	return slices.DeleteFunc(ids, func(v int64) bool { return v == id })
}
