package sched

import "errors"

// Precondition violations. They signal a caller error and are never retried.
// Use errors.Is to check: errors.Is(err, sched.ErrInvalidGrade)
var (
	ErrInvalidGrade = errors.New("sched: invalid grade")
	ErrInvalidQueue = errors.New("sched: card is not in an answerable queue")
	ErrNotFetched   = errors.New("sched: card was not handed out by GetCard")
	ErrNotFiltered  = errors.New("sched: deck is not a filtered deck")
	ErrDeckNotFound = errors.New("sched: deck not found")
	ErrInvalidRange = errors.New("sched: invalid interval range")
)
