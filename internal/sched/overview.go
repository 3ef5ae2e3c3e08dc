package sched

import (
	"context"

	"github.com/conorfennell/knolsched/internal/domain"
)

// DeckDue holds the cards due today in a single deck, not counting its
// subdecks but limited by its ancestors' quotas.
type DeckDue struct {
	Name   string
	ID     int64
	Review int
	Learn  int
	New    int
}

// DeckDueList returns the due counts of every deck, sorted by name.
func (s *Scheduler) DeckDueList(ctx context.Context) ([]DeckDue, error) {
	if err := s.checkDay(ctx); err != nil {
		return nil, err
	}
	tree, err := s.tree(ctx)
	if err != nil {
		return nil, err
	}
	type limits struct{ newCards, reviews int }
	byName := make(map[string]limits)
	var out []DeckDue
	for _, d := range tree.All() {
		newLim, err := s.newLimitSingle(ctx, d)
		if err != nil {
			return nil, err
		}
		revLim, err := s.reviewLimitSingle(ctx, d)
		if err != nil {
			return nil, err
		}
		if p, ok := byName[domain.ParentName(d.Name)]; ok {
			newLim = min(newLim, p.newCards)
			revLim = min(revLim, p.reviews)
		}
		byName[d.Name] = limits{newCards: newLim, reviews: revLim}

		due := DeckDue{Name: d.Name, ID: d.ID}
		if due.New, err = s.countCapped(ctx, d.ID, domain.QueueNew, newLim); err != nil {
			return nil, err
		}
		if due.Review, err = s.countCapped(ctx, d.ID, domain.QueueReview, revLim); err != nil {
			return nil, err
		}
		if due.Learn, err = s.learnForDeck(ctx, d.ID); err != nil {
			return nil, err
		}
		out = append(out, due)
	}
	return out, nil
}

// countCapped counts cards of one deck in queue, capped by lim and the
// report limit. Review cards only count once due.
func (s *Scheduler) countCapped(ctx context.Context, did int64, queue domain.Queue, lim int) (int, error) {
	lim = min(lim, s.opts.ReportLimit)
	if lim <= 0 {
		return 0, nil
	}
	q := domain.CardQuery{
		DeckIDs: []int64{did},
		Queues:  []domain.Queue{queue},
		Limit:   lim,
	}
	if queue == domain.QueueReview {
		q.MaxDue = s.day.Today
		q.HasMaxDue = true
	}
	return s.store.CountCards(ctx, q)
}

// learnForDeck counts the learning steps due in one deck, including those
// within the collapse window, plus its day learning cards due today.
func (s *Scheduler) learnForDeck(ctx context.Context, did int64) (int, error) {
	horizon := s.now() + int64(s.opts.CollapseTime.Seconds())
	entries, err := s.store.LearningDue(ctx, []int64{did}, horizon, s.opts.ReportLimit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		n += e.LeftToday
	}
	days, err := s.store.CountCards(ctx, domain.CardQuery{
		DeckIDs:   []int64{did},
		Queues:    []domain.Queue{domain.QueueDayLearning},
		MaxDue:    s.day.Today,
		HasMaxDue: true,
		Limit:     s.opts.ReportLimit,
	})
	if err != nil {
		return 0, err
	}
	return n + days, nil
}

// DueForecast returns how many reviews fall due in the active decks on each
// of the next days days, starting with today.
func (s *Scheduler) DueForecast(ctx context.Context, days int) ([]int, error) {
	if err := s.checkDay(ctx); err != nil {
		return nil, err
	}
	if days <= 0 {
		return nil, nil
	}
	from := s.day.Today
	to := from + int64(days) - 1
	counts, err := s.store.DueForecast(ctx, s.col.ActiveDecks, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]int, days)
	for i := range out {
		out[i] = counts[from+int64(i)]
	}
	return out, nil
}
