package sched

import "github.com/conorfennell/knolsched/internal/domain"

// Event is emitted to the handlers registered with WithHandlers.
type Event interface {
	event()
}

// LeechDetected is emitted when a card's lapse count crosses the leech
// threshold. Suspended reports whether the card was suspended as a result.
type LeechDetected struct {
	Card      domain.Card
	Suspended bool
}

// CardAnswered is emitted after an answer has been persisted.
type CardAnswered struct {
	Card  domain.Card
	Grade domain.Grade
	Log   domain.ReviewLog
}

// DayRolledOver is emitted when the scheduler notices a new day.
type DayRolledOver struct {
	Today  int64
	Cutoff int64
}

func (LeechDetected) event() {}
func (CardAnswered) event()  {}
func (DayRolledOver) event() {}

// Handler receives scheduler events. Handlers run synchronously.
type Handler func(Event)

func (s *Scheduler) emit(e Event) {
	for _, h := range s.handlers {
		h(e)
	}
}

// deferEvent holds e until the change that caused it has been persisted.
func (s *Scheduler) deferEvent(e Event) {
	s.pending = append(s.pending, e)
}

func (s *Scheduler) flushEvents() {
	pending := s.pending
	s.pending = nil
	for _, e := range pending {
		s.emit(e)
	}
}
