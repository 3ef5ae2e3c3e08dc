package domain

// CardOrder is the row order of a CardQuery.
type CardOrder int

const (
	OrderByID CardOrder = iota
	// OrderByPosition sorts by (due, ord), the new-card order.
	OrderByPosition
	OrderByDue
)

// CardQuery selects cards by deck, queue and due bound.
type CardQuery struct {
	DeckIDs []int64
	Queues  []Queue
	// MaxDue bounds due inclusively when HasMaxDue is set.
	MaxDue    int64
	HasMaxDue bool
	Order     CardOrder
	// Limit caps the rows returned; zero means no cap.
	Limit int
}

// LearningEntry is a sub-day learning card waiting in the learning queue.
type LearningEntry struct {
	Due       int64
	CardID    int64
	LeftToday int
}

// Collection holds the collection-wide scheduling state.
type Collection struct {
	// Created is the unix time day indexes are counted from.
	Created      int64
	LastUnburied int64
	USN          int
	CurrentDeck  int64
	ActiveDecks  []int64
}
