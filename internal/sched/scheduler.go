// Package sched decides which card to show next and reschedules cards when
// they are answered.
//
// The scheduler keeps new, review and learning queues in memory as a cache
// over the record store. It is not safe for concurrent use; a host with
// several goroutines must serialise calls.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/conorfennell/knolsched/internal/clock"
	"github.com/conorfennell/knolsched/internal/decks"
	"github.com/conorfennell/knolsched/internal/domain"
)

// NewSpread controls how new cards are mixed with reviews.
type NewSpread int

const (
	SpreadDistribute NewSpread = iota
	SpreadLast
	SpreadFirst
)

// Options tunes queue sizes and presentation order.
type Options struct {
	// QueueLimit caps how many ids a single queue fill pages in.
	QueueLimit int
	// ReportLimit caps counts and the learning queue.
	ReportLimit int
	NewSpread   NewSpread
	// CollapseTime is how far ahead a learning card may be shown when
	// nothing else is left.
	CollapseTime time.Duration
	// BuryOnAnswer buries siblings when a card is answered rather than
	// when it is shown.
	BuryOnAnswer bool
}

// DefaultOptions returns the stock queue settings.
func DefaultOptions() Options {
	return Options{
		QueueLimit:   50,
		ReportLimit:  1000,
		NewSpread:    SpreadDistribute,
		CollapseTime: 20 * time.Minute,
		BuryOnAnswer: true,
	}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithRand replaces the random source used for fuzz, jitter and rescheduling.
func WithRand(r *rand.Rand) Option {
	return func(s *Scheduler) { s.rng = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithHandlers registers event handlers.
func WithHandlers(h ...Handler) Option {
	return func(s *Scheduler) { s.handlers = append(s.handlers, h...) }
}

// WithOptions replaces the queue settings.
func WithOptions(o Options) Option {
	return func(s *Scheduler) { s.opts = o }
}

// Counts are the three numbers shown for the active decks.
type Counts struct {
	New    int
	Learn  int
	Review int
}

// Scheduler is a single study session over a collection.
type Scheduler struct {
	store    Store
	clock    clock.Clock
	rng      *rand.Rand
	logger   *slog.Logger
	handlers []Handler
	pending  []Event
	opts     Options

	col       *domain.Collection
	day       clock.Day
	dayLoaded bool
	configs   map[int64]*domain.DeckConfig

	haveQueues bool
	reps       int
	current    int64

	newCount       int
	learnCount     int
	reviewCount    int
	newCardModulus int

	newQueue      []int64
	reviewQueue   []int64
	learnQueue    learningQueue
	learnDayQueue []int64

	newDecks      []int64
	reviewDecks   []int64
	learnDayDecks []int64
}

// New returns a scheduler over store.
func New(store Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:   store,
		clock:   clock.System{},
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:  slog.Default(),
		opts:    DefaultOptions(),
		configs: make(map[int64]*domain.DeckConfig),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current day index, refreshing it if the day rolled over.
func (s *Scheduler) Today(ctx context.Context) (int64, error) {
	if err := s.checkDay(ctx); err != nil {
		return 0, err
	}
	return s.day.Today, nil
}

// DayCutoff returns the unix time at which the current day ends.
func (s *Scheduler) DayCutoff(ctx context.Context) (int64, error) {
	if err := s.checkDay(ctx); err != nil {
		return 0, err
	}
	return s.day.Cutoff, nil
}

// Reset recomputes counts and empties the queues, as after any change made
// outside the scheduler.
func (s *Scheduler) Reset(ctx context.Context) error {
	return s.reset(ctx)
}

func (s *Scheduler) reset(ctx context.Context) error {
	if err := s.updateCutoff(ctx); err != nil {
		return err
	}
	s.configs = make(map[int64]*domain.DeckConfig)
	if err := s.resetLearn(ctx); err != nil {
		return err
	}
	if err := s.resetReview(ctx); err != nil {
		return err
	}
	if err := s.resetNew(ctx); err != nil {
		return err
	}
	s.haveQueues = true
	return nil
}

// invalidate forces the queues to be rebuilt before the next card is chosen.
func (s *Scheduler) invalidate() {
	s.haveQueues = false
}

// checkDay resets the session when the day cutoff has passed.
func (s *Scheduler) checkDay(ctx context.Context) error {
	if !s.dayLoaded || s.day.Passed(s.clock.Now()) {
		return s.reset(ctx)
	}
	return nil
}

// updateCutoff recomputes today, restarts stale deck counters and unburies
// cards once per day.
func (s *Scheduler) updateCutoff(ctx context.Context) error {
	col, err := s.store.Collection(ctx)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	s.col = col

	previous, hadDay := s.day, s.dayLoaded
	s.day = clock.DayAt(col.Created, s.clock.Now())
	s.dayLoaded = true
	if hadDay && previous.Today != s.day.Today {
		s.logger.Info("day rolled over", "today", s.day.Today, "cutoff", s.day.Cutoff)
		s.emit(DayRolledOver{Today: s.day.Today, Cutoff: s.day.Cutoff})
	}

	if err := s.store.ResetDailyCounters(ctx, s.day.Today); err != nil {
		return err
	}
	if col.LastUnburied < s.day.Today {
		if err := s.unbury(ctx); err != nil {
			return err
		}
	}
	return nil
}

// GetCard pops the next card to study, or returns nil when the session is
// finished.
func (s *Scheduler) GetCard(ctx context.Context) (*domain.Card, error) {
	if err := s.checkDay(ctx); err != nil {
		return nil, err
	}
	if !s.haveQueues {
		if err := s.reset(ctx); err != nil {
			return nil, err
		}
	}
	card, err := s.nextCard(ctx)
	if err != nil || card == nil {
		return nil, err
	}
	if !s.opts.BuryOnAnswer {
		cc, err := s.cardConf(ctx, card)
		if err != nil {
			return nil, err
		}
		if err := s.burySiblings(ctx, card, cc); err != nil {
			return nil, err
		}
	}
	s.reps++
	s.current = card.ID
	card.ShownAt = s.clock.Now()
	return card, nil
}

// Counts returns the number of new, learning and review cards left today in
// the active decks.
func (s *Scheduler) Counts(ctx context.Context) (Counts, error) {
	if err := s.checkDay(ctx); err != nil {
		return Counts{}, err
	}
	if !s.haveQueues {
		if err := s.reset(ctx); err != nil {
			return Counts{}, err
		}
	}
	return Counts{New: s.newCount, Learn: s.learnCount, Review: s.reviewCount}, nil
}

// SelectDeck makes did the current deck; it and its descendants become the
// active decks.
func (s *Scheduler) SelectDeck(ctx context.Context, did int64) error {
	if err := s.checkDay(ctx); err != nil {
		return err
	}
	tree, err := s.tree(ctx)
	if err != nil {
		return err
	}
	active := tree.Active(did)
	if active == nil {
		return fmt.Errorf("failed to select deck %d: %w", did, ErrDeckNotFound)
	}
	s.col.CurrentDeck = did
	s.col.ActiveDecks = active
	if err := s.store.SaveCollection(ctx, s.col); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// ActiveDecks returns the ids of the decks the session studies.
func (s *Scheduler) ActiveDecks(ctx context.Context) ([]int64, error) {
	if err := s.checkDay(ctx); err != nil {
		return nil, err
	}
	return append([]int64(nil), s.col.ActiveDecks...), nil
}

func (s *Scheduler) tree(ctx context.Context) (*decks.Tree, error) {
	list, err := s.store.Decks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load decks: %w", err)
	}
	return decks.NewTree(list), nil
}

func (s *Scheduler) now() int64 {
	return s.clock.Now().Unix()
}

// stamp marks a card as modified now.
func (s *Scheduler) stamp(c *domain.Card) {
	c.Mod = s.now()
	c.USN = s.col.USN
}
