package sched

import (
	"context"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/search"
)

// Store is the record store the scheduler reads and writes. It is the single
// source of truth; the scheduler's queues are only a cache over it.
type Store interface {
	Collection(ctx context.Context) (*domain.Collection, error)
	SaveCollection(ctx context.Context, col *domain.Collection) error
	NextPosition(ctx context.Context) (int64, error)
	ReserveThrough(ctx context.Context, pos int64) error

	Decks(ctx context.Context) ([]domain.Deck, error)
	Deck(ctx context.Context, id int64) (*domain.Deck, error)
	InsertDeck(ctx context.Context, d *domain.Deck) (int64, error)
	SaveDeck(ctx context.Context, d *domain.Deck) error
	ResetDailyCounters(ctx context.Context, today int64) error
	DeckConfig(ctx context.Context, id int64) (*domain.DeckConfig, error)

	Card(ctx context.Context, id int64) (*domain.Card, error)
	Cards(ctx context.Context, ids []int64) ([]*domain.Card, error)
	CardIDs(ctx context.Context, q domain.CardQuery) ([]int64, error)
	CountCards(ctx context.Context, q domain.CardQuery) (int, error)
	LearningDue(ctx context.Context, deckIDs []int64, cutoff int64, limit int) ([]domain.LearningEntry, error)
	Siblings(ctx context.Context, noteID, cardID, today int64) ([]*domain.Card, error)
	NoteCards(ctx context.Context, noteID int64) ([]int64, error)
	UpdateCard(ctx context.Context, c *domain.Card) error
	UpdateCards(ctx context.Context, cards []*domain.Card) error
	MaxNewDue(ctx context.Context) (int64, error)
	MinNewDueFrom(ctx context.Context, start int64, excluded []int64) (int64, bool, error)
	ShiftNewPositions(ctx context.Context, low, shift, mod int64, usn int, excluded []int64) error
	DueForecast(ctx context.Context, deckIDs []int64, from, to int64) (map[int64]int, error)

	AddReviewLog(ctx context.Context, l domain.ReviewLog) error
	AddNoteTag(ctx context.Context, noteID int64, tag string) error
	SearchCards(ctx context.Context, q search.Node, order domain.FilterOrder, limit int, env search.Env) ([]int64, error)
}
