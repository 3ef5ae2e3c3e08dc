package sched

import (
	"context"
	"fmt"

	"github.com/conorfennell/knolsched/internal/domain"
)

// cardConf is the effective configuration for one card. Cards parked in a
// filtered deck use their home deck's options, with the filtered deck's
// step and reschedule overrides applied.
type cardConf struct {
	home        *domain.DeckConfig
	filter      *domain.FilterSpec
	reportLimit int
}

func (s *Scheduler) cardConf(ctx context.Context, card *domain.Card) (cardConf, error) {
	deck, err := s.store.Deck(ctx, card.DeckID)
	if err != nil {
		return cardConf{}, err
	}
	cc := cardConf{reportLimit: s.opts.ReportLimit}
	confID := deck.ConfigID
	if deck.Filtered {
		cc.filter = deck.Filter
		confID = 1
		if card.OriginalDeckID != 0 {
			home, err := s.store.Deck(ctx, card.OriginalDeckID)
			if err != nil {
				return cardConf{}, err
			}
			confID = home.ConfigID
		}
	}
	cc.home, err = s.config(ctx, confID)
	if err != nil {
		return cardConf{}, err
	}
	return cc, nil
}

func (s *Scheduler) config(ctx context.Context, id int64) (*domain.DeckConfig, error) {
	if conf, ok := s.configs[id]; ok {
		return conf, nil
	}
	conf, err := s.store.DeckConfig(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load deck config %d: %w", id, err)
	}
	s.configs[id] = conf
	return conf, nil
}

func (c cardConf) newConf() domain.NewConfig {
	n := c.home.New
	if c.filter != nil {
		if len(c.filter.Delays) > 0 {
			n.Delays = c.filter.Delays
		}
		n.Order = domain.NewDue
		n.PerDay = c.reportLimit
	}
	return n
}

func (c cardConf) lapseConf() domain.LapseConfig {
	l := c.home.Lapse
	if c.filter != nil && len(c.filter.Delays) > 0 {
		l.Delays = c.filter.Delays
	}
	return l
}

func (c cardConf) revConf() domain.ReviewConfig {
	return c.home.Rev
}

// resched reports whether answers change the card's long-term schedule.
func (c cardConf) resched() bool {
	return c.filter == nil || c.filter.Reschedule
}

// steps returns the learning steps for the card: relearning steps for
// lapsed review cards, new-card steps otherwise.
func (c cardConf) steps(card *domain.Card) []float64 {
	if card.Type == domain.TypeReview {
		return c.lapseConf().Delays
	}
	return c.newConf().Delays
}
