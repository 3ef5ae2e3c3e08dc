package sched

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/search"
)

// filteredDueBase is the first due value handed to cards pulled into a
// filtered deck, so they sort ahead of anything due normally.
const filteredDueBase = -100000

// CreateFiltered creates a filtered deck and fills it.
func (s *Scheduler) CreateFiltered(ctx context.Context, name string, spec domain.FilterSpec) (int64, []int64, error) {
	if err := spec.Validate(); err != nil {
		return 0, nil, err
	}
	deck := &domain.Deck{Name: name, Filtered: true, ConfigID: 1, Filter: &spec}
	did, err := s.store.InsertDeck(ctx, deck)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create filtered deck %q: %w", name, err)
	}
	ids, err := s.RebuildFiltered(ctx, did)
	if err != nil {
		return did, nil, err
	}
	return did, ids, nil
}

func (s *Scheduler) filteredDeck(ctx context.Context, did int64) (*domain.Deck, error) {
	deck, err := s.store.Deck(ctx, did)
	if err != nil {
		return nil, err
	}
	if !deck.Filtered || deck.Filter == nil {
		return nil, fmt.Errorf("deck %d: %w", did, ErrNotFiltered)
	}
	return deck, nil
}

// RebuildFiltered empties a filtered deck and refills it from its search.
// A search that cannot be parsed leaves the deck as it is and yields no
// cards. When cards were found the deck becomes the current deck.
func (s *Scheduler) RebuildFiltered(ctx context.Context, did int64) ([]int64, error) {
	if err := s.checkDay(ctx); err != nil {
		return nil, err
	}
	deck, err := s.filteredDeck(ctx, did)
	if err != nil {
		return nil, err
	}
	query, err := search.Parse(deck.Filter.Query)
	if err != nil {
		if errors.Is(err, search.ErrSyntax) {
			s.logger.Warn("filtered deck search is malformed", "deck", deck.Name, "query", deck.Filter.Query, "error", err)
			return nil, nil
		}
		return nil, err
	}
	if err := s.EmptyFiltered(ctx, did); err != nil {
		return nil, err
	}
	ids, err := s.findFilteredCards(ctx, deck, query)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		s.logger.Info("filtered deck matched no cards", "deck", deck.Name)
		return nil, nil
	}
	if err := s.moveToFiltered(ctx, did, ids); err != nil {
		return nil, err
	}
	s.logger.Info("rebuilt filtered deck", "deck", deck.Name, "cards", len(ids))
	if err := s.SelectDeck(ctx, did); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Scheduler) findFilteredCards(ctx context.Context, deck *domain.Deck, query search.Node) ([]int64, error) {
	env := search.Env{Today: s.day.Today, Cutoff: s.day.Cutoff}
	spec := deck.Filter
	if spec.Order != domain.OrderRandom {
		return s.store.SearchCards(ctx, query, spec.Order, spec.Limit, env)
	}
	ids, err := s.store.SearchCards(ctx, query, spec.Order, 0, env)
	if err != nil {
		return nil, err
	}
	// the same day and pool always give the same selection
	r := rand.New(rand.NewSource(s.day.Today*31 + deck.ID))
	r.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if len(ids) > spec.Limit {
		ids = ids[:spec.Limit]
	}
	return ids, nil
}

// moveToFiltered parks cards in the filtered deck did, keeping their home
// deck and due so they can be restored. Cards already due for review stay in
// the review queue; everything else is studied as new.
func (s *Scheduler) moveToFiltered(ctx context.Context, did int64, ids []int64) error {
	cards, err := s.loadCards(ctx, ids)
	if err != nil {
		return err
	}
	for i, c := range cards {
		if c.OriginalDeckID == 0 {
			c.OriginalDeckID = c.DeckID
		}
		if c.OriginalDue == 0 {
			c.OriginalDue = c.Due
		}
		c.DeckID = did
		if c.Type == domain.TypeReview && c.OriginalDue <= s.day.Today {
			c.Queue = domain.QueueReview
		} else {
			c.Queue = domain.QueueNew
		}
		c.Due = int64(filteredDueBase + i)
		s.stamp(c)
	}
	if err := s.store.UpdateCards(ctx, cards); err != nil {
		return fmt.Errorf("failed to move cards into filtered deck %d: %w", did, err)
	}
	return nil
}

// EmptyFiltered returns every card of a filtered deck to its home deck.
func (s *Scheduler) EmptyFiltered(ctx context.Context, did int64) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	if _, err := s.filteredDeck(ctx, did); err != nil {
		return err
	}
	ids, err := s.store.CardIDs(ctx, domain.CardQuery{DeckIDs: []int64{did}})
	if err != nil {
		return err
	}
	return s.removeFromFiltered(ctx, ids)
}

// RemoveFromFiltered returns the given cards to their home decks.
func (s *Scheduler) RemoveFromFiltered(ctx context.Context, ids []int64) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	return s.removeFromFiltered(ctx, ids)
}

// removeFromFiltered un-parks the parked cards among ids. Cards part way through
// learning become new again; the rest take back their type's queue and
// their saved due.
func (s *Scheduler) removeFromFiltered(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.mutate(ctx, ids, func(c *domain.Card) bool {
		if !c.Parked() {
			return false
		}
		c.DeckID = c.OriginalDeckID
		switch c.Type {
		case domain.TypeLearning:
			c.Type = domain.TypeNew
			c.Queue = domain.QueueNew
		case domain.TypeRelearning, domain.TypeReview:
			c.Type = domain.TypeReview
			c.Queue = domain.QueueReview
		default:
			c.Queue = domain.QueueNew
		}
		c.Due = c.OriginalDue
		c.OriginalDue = 0
		c.OriginalDeckID = 0
		c.Left = domain.Left{}
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to restore filtered cards: %w", err)
	}
	return nil
}
