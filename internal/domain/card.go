package domain

import "time"

// CardType is the coarse lifecycle stage of a card.
type CardType int

const (
	TypeNew CardType = iota
	TypeLearning
	TypeReview
	TypeRelearning
)

// Queue is the scheduling visibility of a card. It is decoupled from CardType:
// a Review card can sit in the learning queue while it is being relearnt.
type Queue int

const (
	QueueSchedulerBuried Queue = -3
	QueueUserBuried      Queue = -2
	QueueSuspended       Queue = -1
	QueueNew             Queue = 0
	QueueLearning        Queue = 1
	QueueReview          Queue = 2
	QueueDayLearning     Queue = 3
	QueuePreview         Queue = 4
)

// Buried reports whether the queue value hides the card until unburied.
func (q Queue) Buried() bool {
	return q == QueueUserBuried || q == QueueSchedulerBuried
}

// DefaultQueue is the queue a card of this type returns to when a hold
// (suspension, burying, filtered parking) is lifted.
func (t CardType) DefaultQueue() Queue {
	switch t {
	case TypeLearning, TypeRelearning:
		return QueueLearning
	case TypeReview:
		return QueueReview
	default:
		return QueueNew
	}
}

// StartingFactor is the ease given to forgotten and rescheduled cards.
const StartingFactor = 2500

// MinFactor is the ease floor.
const MinFactor = 1300

// Left holds the remaining learning steps of a card: how many can still be
// done before the day cutoff and how many remain in total.
type Left struct {
	Today int
	Total int
}

// Packed encodes the pair as Today*1000 + Total, the on-disk representation.
func (l Left) Packed() int {
	return l.Today*1000 + l.Total
}

// UnpackLeft is the inverse of Left.Packed.
func UnpackLeft(v int) Left {
	if v < 0 {
		return Left{}
	}
	return Left{Today: v / 1000, Total: v % 1000}
}

// Card is one reviewable unit of a note.
type Card struct {
	ID             int64
	NoteID         int64
	DeckID         int64
	OriginalDeckID int64
	Ord            int
	Type           CardType
	Queue          Queue
	// Due is a position for new cards, a day index for review and
	// day-learning cards, and a unix timestamp for learning cards.
	Due         int64
	OriginalDue int64
	// Interval is in days once graduated.
	Interval int
	Factor   int
	Reps     int
	Lapses   int
	Left     Left
	Flags    int
	Mod      int64
	USN      int

	// LastInterval is the interval before the answer being processed.
	LastInterval int
	// ShownAt is when the scheduler handed the card out; not persisted.
	ShownAt time.Time
}

// Parked reports whether the card currently lives in a filtered deck.
func (c *Card) Parked() bool {
	return c.OriginalDeckID != 0
}

// HomeDeckID is the deck the card belongs to outside any filtered deck.
func (c *Card) HomeDeckID() int64 {
	if c.OriginalDeckID != 0 {
		return c.OriginalDeckID
	}
	return c.DeckID
}

// Grade is the user's answer to a card.
type Grade int

const (
	Again Grade = 1
	Hard  Grade = 2
	Good  Grade = 3
	Easy  Grade = 4
)

// Valid reports whether g is one of the four answer buttons.
func (g Grade) Valid() bool {
	return g >= Again && g <= Easy
}

func (g Grade) String() string {
	switch g {
	case Again:
		return "again"
	case Hard:
		return "hard"
	case Good:
		return "good"
	case Easy:
		return "easy"
	}
	return "invalid"
}
