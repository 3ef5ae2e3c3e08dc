package sched

import (
	"context"
	"fmt"

	"github.com/conorfennell/knolsched/internal/domain"
)

// loadCards fetches the cards for ids keeping the order of ids.
func (s *Scheduler) loadCards(ctx context.Context, ids []int64) ([]*domain.Card, error) {
	cards, err := s.store.Cards(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*domain.Card, len(cards))
	for _, c := range cards {
		byID[c.ID] = c
	}
	ordered := make([]*domain.Card, 0, len(cards))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok && !seen[id] {
			ordered = append(ordered, c)
			seen[id] = true
		}
	}
	return ordered, nil
}

// mutate applies fn to every card in ids and persists the ones it changed.
func (s *Scheduler) mutate(ctx context.Context, ids []int64, fn func(c *domain.Card) bool) error {
	cards, err := s.loadCards(ctx, ids)
	if err != nil {
		return err
	}
	var changed []*domain.Card
	for _, c := range cards {
		if fn(c) {
			s.stamp(c)
			changed = append(changed, c)
		}
	}
	return s.store.UpdateCards(ctx, changed)
}

// begin prepares a bulk operation: the day is checked and the queues are
// dropped so the next GetCard sees the change.
func (s *Scheduler) begin(ctx context.Context) error {
	if err := s.checkDay(ctx); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// Suspend hides cards until they are unsuspended. Cards leave any filtered
// deck and any learning steps first.
func (s *Scheduler) Suspend(ctx context.Context, ids []int64) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	if err := s.prepareHold(ctx, ids); err != nil {
		return err
	}
	err := s.mutate(ctx, ids, func(c *domain.Card) bool {
		c.Queue = domain.QueueSuspended
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to suspend cards: %w", err)
	}
	s.logger.Info("suspended cards", "count", len(ids))
	return nil
}

// Unsuspend returns suspended cards to the queue their type implies.
func (s *Scheduler) Unsuspend(ctx context.Context, ids []int64) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	err := s.mutate(ctx, ids, func(c *domain.Card) bool {
		if c.Queue != domain.QueueSuspended {
			return false
		}
		c.Queue = c.Type.DefaultQueue()
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to unsuspend cards: %w", err)
	}
	return nil
}

// Bury hides cards until the next day or an explicit unbury.
func (s *Scheduler) Bury(ctx context.Context, ids []int64) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	if err := s.prepareHold(ctx, ids); err != nil {
		return err
	}
	err := s.mutate(ctx, ids, func(c *domain.Card) bool {
		c.Queue = domain.QueueUserBuried
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to bury cards: %w", err)
	}
	return nil
}

// BuryNote buries every card of a note that is not suspended or buried.
func (s *Scheduler) BuryNote(ctx context.Context, noteID int64) error {
	ids, err := s.store.NoteCards(ctx, noteID)
	if err != nil {
		return err
	}
	cards, err := s.store.Cards(ctx, ids)
	if err != nil {
		return err
	}
	var visible []int64
	for _, c := range cards {
		if c.Queue >= domain.QueueNew {
			visible = append(visible, c.ID)
		}
	}
	return s.Bury(ctx, visible)
}

// prepareHold takes cards out of filtered decks and learning before they are
// suspended or buried.
func (s *Scheduler) prepareHold(ctx context.Context, ids []int64) error {
	if err := s.removeFromFiltered(ctx, ids); err != nil {
		return err
	}
	return s.removeLearning(ctx, ids)
}

// removeLearning drops cards out of the learning queues: relearning review
// cards return to review on their saved due day, other cards are forgotten.
func (s *Scheduler) removeLearning(ctx context.Context, ids []int64) error {
	cards, err := s.loadCards(ctx, ids)
	if err != nil {
		return err
	}
	var relearning []*domain.Card
	var learning []int64
	for _, c := range cards {
		if c.Queue != domain.QueueLearning && c.Queue != domain.QueueDayLearning {
			continue
		}
		if c.Type == domain.TypeReview {
			c.Due = c.OriginalDue
			c.OriginalDue = 0
			c.Queue = domain.QueueReview
			s.stamp(c)
			relearning = append(relearning, c)
			continue
		}
		learning = append(learning, c.ID)
	}
	if err := s.store.UpdateCards(ctx, relearning); err != nil {
		return fmt.Errorf("failed to move relearning cards back to review: %w", err)
	}
	return s.forget(ctx, learning)
}

// Forget resets cards to new and puts them at the end of the new queue.
func (s *Scheduler) Forget(ctx context.Context, ids []int64) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	return s.forget(ctx, ids)
}

func (s *Scheduler) forget(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.removeFromFiltered(ctx, ids); err != nil {
		return err
	}
	err := s.mutate(ctx, ids, func(c *domain.Card) bool {
		c.Type = domain.TypeNew
		c.Queue = domain.QueueNew
		c.Interval = 0
		c.Due = 0
		c.OriginalDue = 0
		c.Factor = domain.StartingFactor
		c.Left = domain.Left{}
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to forget cards: %w", err)
	}
	last, err := s.store.MaxNewDue(ctx)
	if err != nil {
		return err
	}
	return s.reposition(ctx, ids, last+1, 1, false, false)
}

// Reschedule moves cards into review due in a random number of days between
// minDays and maxDays inclusive.
func (s *Scheduler) Reschedule(ctx context.Context, ids []int64, minDays, maxDays int) error {
	if minDays < 0 || maxDays < minDays {
		return fmt.Errorf("failed to reschedule cards: %w: [%d, %d]", ErrInvalidRange, minDays, maxDays)
	}
	if err := s.begin(ctx); err != nil {
		return err
	}
	if err := s.removeFromFiltered(ctx, ids); err != nil {
		return err
	}
	err := s.mutate(ctx, ids, func(c *domain.Card) bool {
		r := minDays + s.rng.Intn(maxDays-minDays+1)
		c.Type = domain.TypeReview
		c.Queue = domain.QueueReview
		c.Interval = max(1, r)
		c.Due = s.day.Today + int64(r)
		c.OriginalDue = 0
		c.Factor = domain.StartingFactor
		c.Left = domain.Left{}
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to reschedule cards: %w", err)
	}
	return nil
}

// ResetCards clears the history of cards and forgets those that are not
// plain new cards.
func (s *Scheduler) ResetCards(ctx context.Context, ids []int64) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	var nonNew []int64
	err := s.mutate(ctx, ids, func(c *domain.Card) bool {
		if c.Queue != domain.QueueNew || c.Type != domain.TypeNew {
			nonNew = append(nonNew, c.ID)
		}
		c.Reps = 0
		c.Lapses = 0
		c.DeckID = c.HomeDeckID()
		c.OriginalDeckID = 0
		c.OriginalDue = 0
		c.Queue = domain.QueueNew
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to reset cards: %w", err)
	}
	return s.forget(ctx, nonNew)
}

// Reposition renumbers the new cards among ids. Cards of the same note share
// a position; positions start at start and grow by step in the order notes
// first appear in ids, or in random order when shuffle is set. With shift,
// new cards already at or after start move back to make room.
func (s *Scheduler) Reposition(ctx context.Context, ids []int64, start, step int64, shuffle, shift bool) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	return s.reposition(ctx, ids, start, step, shuffle, shift)
}

func (s *Scheduler) reposition(ctx context.Context, ids []int64, start, step int64, shuffle, shift bool) error {
	loaded, err := s.loadCards(ctx, ids)
	if err != nil {
		return err
	}
	// only new cards hold positions
	var cards []*domain.Card
	var notes []int64
	seen := make(map[int64]bool)
	for _, c := range loaded {
		if c.Type != domain.TypeNew {
			continue
		}
		cards = append(cards, c)
		if !seen[c.NoteID] {
			seen[c.NoteID] = true
			notes = append(notes, c.NoteID)
		}
	}
	if len(notes) == 0 {
		return nil
	}
	if shuffle {
		s.rng.Shuffle(len(notes), func(i, j int) { notes[i], notes[j] = notes[j], notes[i] })
	}
	due := make(map[int64]int64, len(notes))
	for i, nid := range notes {
		due[nid] = start + int64(i)*step
	}
	high := start + int64(len(notes)-1)*step

	if shift {
		low, ok, err := s.store.MinNewDueFrom(ctx, start, ids)
		if err != nil {
			return err
		}
		if ok && low <= high {
			if err := s.store.ShiftNewPositions(ctx, low, high-low+1, s.now(), s.col.USN, ids); err != nil {
				return err
			}
		}
	}

	for _, c := range cards {
		c.Due = due[c.NoteID]
		s.stamp(c)
	}
	if err := s.store.UpdateCards(ctx, cards); err != nil {
		return fmt.Errorf("failed to reposition cards: %w", err)
	}
	return s.store.ReserveThrough(ctx, high)
}

// RandomizeCards gives the new cards of a deck shuffled positions starting
// at 1. Cards of the same note keep sharing a position.
func (s *Scheduler) RandomizeCards(ctx context.Context, did int64) error {
	return s.sortDeck(ctx, did, true)
}

// OrderCards gives the new cards of a deck positions starting at 1 in the
// order they were added.
func (s *Scheduler) OrderCards(ctx context.Context, did int64) error {
	return s.sortDeck(ctx, did, false)
}

func (s *Scheduler) sortDeck(ctx context.Context, did int64, shuffle bool) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	ids, err := s.store.CardIDs(ctx, domain.CardQuery{DeckIDs: []int64{did}, Order: domain.OrderByID})
	if err != nil {
		return err
	}
	if err := s.reposition(ctx, ids, 1, 1, shuffle, false); err != nil {
		return fmt.Errorf("failed to sort deck %d: %w", did, err)
	}
	return nil
}

// MaybeRandomizeDeck shuffles a deck's new cards when its options ask for
// random order. Filtered decks are left alone.
func (s *Scheduler) MaybeRandomizeDeck(ctx context.Context, did int64) error {
	deck, err := s.store.Deck(ctx, did)
	if err != nil {
		return err
	}
	if deck.Filtered {
		return nil
	}
	conf, err := s.store.DeckConfig(ctx, deck.ConfigID)
	if err != nil {
		return err
	}
	if conf.New.Order != domain.NewRandom {
		return nil
	}
	return s.RandomizeCards(ctx, did)
}

// ResortConfig reapplies the new-card order of an options group to every
// deck using it, after the order option changed.
func (s *Scheduler) ResortConfig(ctx context.Context, confID int64) error {
	conf, err := s.store.DeckConfig(ctx, confID)
	if err != nil {
		return err
	}
	list, err := s.store.Decks(ctx)
	if err != nil {
		return fmt.Errorf("failed to load decks: %w", err)
	}
	for _, d := range list {
		if d.Filtered || d.ConfigID != confID {
			continue
		}
		if err := s.sortDeck(ctx, d.ID, conf.New.Order == domain.NewRandom); err != nil {
			return err
		}
	}
	return nil
}
