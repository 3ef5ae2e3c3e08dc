package sched

import (
	"context"
	"fmt"

	"github.com/conorfennell/knolsched/internal/domain"
)

// burySiblings hides the other new and due review cards of the card's note
// until tomorrow. Siblings are always dropped from the in-memory queues for
// same-day spacing, but only persisted as buried when the options ask for it.
func (s *Scheduler) burySiblings(ctx context.Context, card *domain.Card, cc cardConf) error {
	buryNew := cc.newConf().Bury
	buryReview := cc.revConf().Bury
	siblings, err := s.store.Siblings(ctx, card.NoteID, card.ID, s.day.Today)
	if err != nil {
		return err
	}
	var bury []*domain.Card
	for _, sib := range siblings {
		if sib.Queue == domain.QueueReview {
			if buryReview {
				bury = append(bury, sib)
			}
			s.reviewQueue = removeID(s.reviewQueue, sib.ID)
			continue
		}
		if buryNew {
			bury = append(bury, sib)
		}
		s.newQueue = removeID(s.newQueue, sib.ID)
	}
	if len(bury) == 0 {
		return nil
	}
	for _, c := range bury {
		c.Queue = domain.QueueSchedulerBuried
		s.stamp(c)
	}
	if err := s.store.UpdateCards(ctx, bury); err != nil {
		return fmt.Errorf("failed to bury siblings of card %d: %w", card.ID, err)
	}
	s.logger.Debug("buried siblings", "card", card.ID, "count", len(bury))
	return nil
}

// unbury returns every buried card to the queue its type implies and records
// that today's unbury has happened.
func (s *Scheduler) unbury(ctx context.Context) error {
	n, err := s.restoreBuried(ctx, nil)
	if err != nil {
		return err
	}
	s.col.LastUnburied = s.day.Today
	if err := s.store.SaveCollection(ctx, s.col); err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("unburied cards", "count", n, "today", s.day.Today)
	}
	return nil
}

// restoreBuried unburies the buried cards in deckIDs, or in every deck when
// deckIDs is empty, and reports how many it changed.
func (s *Scheduler) restoreBuried(ctx context.Context, deckIDs []int64) (int, error) {
	ids, err := s.store.CardIDs(ctx, domain.CardQuery{
		DeckIDs: deckIDs,
		Queues:  []domain.Queue{domain.QueueSchedulerBuried, domain.QueueUserBuried},
	})
	if err != nil {
		return 0, err
	}
	cards, err := s.store.Cards(ctx, ids)
	if err != nil {
		return 0, err
	}
	for _, c := range cards {
		c.Queue = c.Type.DefaultQueue()
		s.stamp(c)
	}
	if err := s.store.UpdateCards(ctx, cards); err != nil {
		return 0, fmt.Errorf("failed to unbury cards: %w", err)
	}
	return len(cards), nil
}

// UnburyAll returns every buried card to its queue.
func (s *Scheduler) UnburyAll(ctx context.Context) error {
	if err := s.checkDay(ctx); err != nil {
		return err
	}
	if err := s.unbury(ctx); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// UnburyActiveDecks returns the buried cards of the selected decks to their
// queues. Cards buried elsewhere stay buried.
func (s *Scheduler) UnburyActiveDecks(ctx context.Context) error {
	if err := s.checkDay(ctx); err != nil {
		return err
	}
	if len(s.col.ActiveDecks) == 0 {
		return nil
	}
	n, err := s.restoreBuried(ctx, s.col.ActiveDecks)
	if err != nil {
		return err
	}
	s.logger.Info("unburied cards", "count", n, "decks", s.col.ActiveDecks)
	s.invalidate()
	return nil
}
