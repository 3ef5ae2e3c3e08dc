package sched

import (
	"context"

	"github.com/conorfennell/knolsched/internal/decks"
	"github.com/conorfennell/knolsched/internal/domain"
)

// limitFunc returns a deck's own remaining daily quota, ignoring ancestors.
type limitFunc func(ctx context.Context, d *domain.Deck) (int, error)

// countFunc counts the cards of one deck, never more than lim.
type countFunc func(ctx context.Context, did int64, lim int) (int, error)

func (s *Scheduler) newLimitSingle(ctx context.Context, d *domain.Deck) (int, error) {
	if d.Filtered {
		return s.opts.ReportLimit, nil
	}
	conf, err := s.config(ctx, d.ConfigID)
	if err != nil {
		return 0, err
	}
	return max(0, conf.New.PerDay-d.NewToday.On(s.day.Today)), nil
}

func (s *Scheduler) reviewLimitSingle(ctx context.Context, d *domain.Deck) (int, error) {
	if d.Filtered {
		return s.opts.ReportLimit, nil
	}
	conf, err := s.config(ctx, d.ConfigID)
	if err != nil {
		return 0, err
	}
	return max(0, conf.Rev.PerDay-d.ReviewToday.On(s.day.Today)), nil
}

// deckLimit is the remaining quota of did: the minimum of its own quota and
// that of every ancestor.
func (s *Scheduler) deckLimit(ctx context.Context, tree *decks.Tree, did int64, fn limitFunc) (int, error) {
	lim := -1
	for _, d := range tree.WithParents(did) {
		rem, err := fn(ctx, d)
		if err != nil {
			return 0, err
		}
		if lim == -1 || rem < lim {
			lim = rem
		}
	}
	return max(lim, 0), nil
}

// walkingCount sums count over the active decks. Each deck is capped by its
// own quota and by what its ancestors have left after earlier siblings
// consumed their share.
func (s *Scheduler) walkingCount(ctx context.Context, tree *decks.Tree, limit limitFunc, count countFunc) (int, error) {
	total := 0
	remaining := make(map[int64]int)
	for _, did := range s.col.ActiveDecks {
		d := tree.Get(did)
		if d == nil {
			continue
		}
		lim, err := limit(ctx, d)
		if err != nil {
			return 0, err
		}
		if lim == 0 {
			continue
		}
		parents := tree.Parents(did)
		for _, p := range parents {
			if _, ok := remaining[p.ID]; !ok {
				plim, err := limit(ctx, p)
				if err != nil {
					return 0, err
				}
				remaining[p.ID] = plim
			}
			lim = min(lim, remaining[p.ID])
		}
		n := 0
		if lim > 0 {
			if n, err = count(ctx, did, lim); err != nil {
				return 0, err
			}
		}
		for _, p := range parents {
			remaining[p.ID] -= n
		}
		remaining[did] = lim - n
		total += n
	}
	return total, nil
}

// ExtendLimits raises today's new and review quotas of the current deck, its
// ancestors and its descendants.
func (s *Scheduler) ExtendLimits(ctx context.Context, newCards, reviews int) error {
	if err := s.checkDay(ctx); err != nil {
		return err
	}
	tree, err := s.tree(ctx)
	if err != nil {
		return err
	}
	cur := s.col.CurrentDeck
	affected := append(tree.WithParents(cur), tree.Children(cur)...)
	for _, d := range affected {
		d.NewToday.Add(s.day.Today, -newCards)
		d.ReviewToday.Add(s.day.Today, -reviews)
		if err := s.store.SaveDeck(ctx, d); err != nil {
			return err
		}
	}
	s.invalidate()
	return nil
}

// updateStats bumps a daily counter on the card's deck and all its ancestors.
func (s *Scheduler) updateStats(ctx context.Context, card *domain.Card, kind domain.CounterKind, n int) error {
	tree, err := s.tree(ctx)
	if err != nil {
		return err
	}
	for _, d := range tree.WithParents(card.DeckID) {
		d.Counter(kind).Add(s.day.Today, n)
		if err := s.store.SaveDeck(ctx, d); err != nil {
			return err
		}
	}
	return nil
}
