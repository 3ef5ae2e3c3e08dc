// Package clock provides the time source and day boundary arithmetic used by
// the scheduler.
package clock

import (
	"sync"
	"time"
)

// SecondsPerDay is the length of a scheduling day.
const SecondsPerDay = 86400

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Manual is a clock that only moves when told to.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a Manual clock set to t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Day is a position on the collection's day axis.
type Day struct {
	// Today is the number of whole days elapsed since the collection was created.
	Today int64
	// Cutoff is the unix time at which Today ends.
	Cutoff int64
}

// DayAt computes the day index and rollover instant for now, counting from
// the collection creation time created (unix seconds).
func DayAt(created int64, now time.Time) Day {
	elapsed := now.Unix() - created
	today := elapsed / SecondsPerDay
	if elapsed < 0 && elapsed%SecondsPerDay != 0 {
		today--
	}
	return Day{
		Today:  today,
		Cutoff: created + SecondsPerDay*(today+1),
	}
}

// Passed reports whether now has reached the day's cutoff. The cutoff second
// itself belongs to the next day, as DayAt computes it.
func (d Day) Passed(now time.Time) bool {
	return now.Unix() >= d.Cutoff
}
