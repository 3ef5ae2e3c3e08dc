package domain

import "strings"

// Separator splits deck names into hierarchy levels.
const Separator = "::"

// DayCount is a per-day counter. It only applies while Day equals the
// current day index.
type DayCount struct {
	Day   int64
	Count int
}

// On returns the count for day, zero when the counter belongs to another day.
func (d DayCount) On(day int64) int {
	if d.Day != day {
		return 0
	}
	return d.Count
}

// Add bumps the counter for day, restarting it first if it is stale.
func (d *DayCount) Add(day int64, n int) {
	if d.Day != day {
		d.Day = day
		d.Count = 0
	}
	d.Count += n
}

// FilterOrder selects how a filtered deck orders its candidates.
type FilterOrder int

const (
	OrderOldestReviewed FilterOrder = iota
	OrderRandom
	OrderIntervalAsc
	OrderIntervalDesc
	OrderLapsesDesc
	OrderAdded
	OrderAddedDesc
	OrderDue
	OrderDuePriority
)

// FilterSpec is the configuration a filtered deck carries instead of a
// shared DeckConfig.
type FilterSpec struct {
	Query      string      `json:"query"`
	Limit      int         `json:"limit" validate:"min=1"`
	Order      FilterOrder `json:"order" validate:"min=0,max=8"`
	Reschedule bool        `json:"reschedule"`
	// Delays overrides the home deck's learning steps when non-empty.
	Delays []float64 `json:"delays" validate:"dive,gt=0"`
}

// Deck is a named node in the :: hierarchy.
type Deck struct {
	ID       int64
	Name     string
	Filtered bool
	ConfigID int64
	Filter   *FilterSpec

	NewToday    DayCount
	ReviewToday DayCount
	LearnToday  DayCount
	TimeToday   DayCount
}

// ParentName returns the name of the deck's direct parent, or "" at top level.
func ParentName(name string) string {
	i := strings.LastIndex(name, Separator)
	if i < 0 {
		return ""
	}
	return name[:i]
}

// AncestorNames lists every ancestor name, top level first.
func AncestorNames(name string) []string {
	parts := strings.Split(name, Separator)
	names := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		names = append(names, strings.Join(parts[:i], Separator))
	}
	return names
}

// Counter returns the daily counter of the given kind.
func (d *Deck) Counter(kind CounterKind) *DayCount {
	switch kind {
	case CountNew:
		return &d.NewToday
	case CountReview:
		return &d.ReviewToday
	case CountLearn:
		return &d.LearnToday
	default:
		return &d.TimeToday
	}
}

// CounterKind names one of a deck's daily counters.
type CounterKind int

const (
	CountNew CounterKind = iota
	CountReview
	CountLearn
	CountTime
)
