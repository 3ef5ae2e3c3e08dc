package sched

import (
	"context"
	"math/rand"

	"github.com/conorfennell/knolsched/internal/clock"
	"github.com/conorfennell/knolsched/internal/domain"
)

// ReviewIntervals computes the ideal next intervals of a review card for
// Hard, Good and Easy. daysLate is how many days past due the card is shown.
// Each interval is at least one day longer than the previous one and none
// exceeds the configured maximum.
func ReviewIntervals(ivl, daysLate, factor int, rc domain.ReviewConfig) (hard, good, easy int) {
	fct := float64(factor) / 1000
	hard = constrainedInterval(float64(ivl+daysLate/4)*rc.HardFactor, rc, ivl)
	good = constrainedInterval(float64(ivl+daysLate/2)*fct, rc, hard)
	easy = constrainedInterval(float64(ivl+daysLate)*fct*rc.Ease4, rc, good)
	return min(hard, rc.MaxIvl), min(good, rc.MaxIvl), min(easy, rc.MaxIvl)
}

// ReviewInterval is the ideal interval for grade, which must not be Again.
func ReviewInterval(ivl, daysLate, factor int, rc domain.ReviewConfig, grade domain.Grade) int {
	hard, good, easy := ReviewIntervals(ivl, daysLate, factor, rc)
	switch grade {
	case domain.Hard:
		return hard
	case domain.Easy:
		return easy
	}
	return good
}

func constrainedInterval(ivl float64, rc domain.ReviewConfig, prev int) int {
	return int(max(ivl*rc.IvlFct, float64(prev+1)))
}

// FuzzRange returns the inclusive window a fuzzed interval is drawn from.
// The lower bound is never below one.
func FuzzRange(ivl int) (lo, hi int) {
	var fuzz int
	switch {
	case ivl < 2:
		return 1, 1
	case ivl == 2:
		return 2, 3
	case ivl < 7:
		fuzz = int(float64(ivl) * 0.25)
	case ivl < 30:
		fuzz = max(2, int(float64(ivl)*0.15))
	default:
		fuzz = max(4, int(float64(ivl)*0.05))
	}
	fuzz = max(fuzz, 1)
	return max(1, ivl-fuzz), ivl + fuzz
}

// Fuzz picks an interval uniformly from FuzzRange(ivl).
func Fuzz(r *rand.Rand, ivl int) int {
	lo, hi := FuzzRange(ivl)
	return lo + r.Intn(hi-lo+1)
}

// lapseInterval is the interval a review card keeps after being forgotten.
func lapseInterval(ivl int, lc domain.LapseConfig) int {
	return max(lc.MinInt, int(float64(ivl)*lc.Mult))
}

func (s *Scheduler) daysLate(card *domain.Card) int {
	due := card.Due
	if card.Parked() {
		due = card.OriginalDue
	}
	return int(max(0, s.day.Today-due))
}

func (s *Scheduler) adjustInterval(cc cardConf, ivl int) int {
	if !cc.revConf().Fuzz {
		return ivl
	}
	return Fuzz(s.rng, ivl)
}

// updateReviewInterval sets the card's next interval for a successful review.
func (s *Scheduler) updateReviewInterval(cc cardConf, card *domain.Card, grade domain.Grade) {
	rc := cc.revConf()
	ideal := ReviewInterval(card.Interval, s.daysLate(card), card.Factor, rc, grade)
	fuzzed := s.adjustInterval(cc, ideal)
	card.Interval = min(max(fuzzed, card.Interval+1), rc.MaxIvl)
}

// graduatingInterval is the first interval of a card leaving learning.
func (s *Scheduler) graduatingInterval(cc cardConf, card *domain.Card, early, fuzz bool) int {
	if card.Type == domain.TypeReview {
		if card.Parked() && cc.resched() {
			return s.dynamicIntervalBoost(cc, card)
		}
		return card.Interval
	}
	ints := cc.newConf().Ints
	ideal := ints[0]
	if early {
		ideal = ints[1]
	}
	if fuzz {
		return s.adjustInterval(cc, ideal)
	}
	return ideal
}

// dynamicIntervalBoost credits a review card studied early in a filtered
// deck with the time that has already passed since its last review.
func (s *Scheduler) dynamicIntervalBoost(cc cardConf, card *domain.Card) int {
	lastReview := card.OriginalDue - int64(card.Interval)
	elapsed := float64(s.day.Today - lastReview)
	factor := (float64(card.Factor)/1000 + 1.2) / 2
	ivl := int(max(float64(card.Interval), elapsed*factor, 1))
	return min(cc.revConf().MaxIvl, ivl)
}

// NextInterval reports, in seconds, how far away the card would be due if
// answered with grade now. Zero means the card leaves a filtered deck
// without being rescheduled.
func (s *Scheduler) NextInterval(ctx context.Context, card *domain.Card, grade domain.Grade) (int64, error) {
	if !grade.Valid() {
		return 0, ErrInvalidGrade
	}
	if err := s.checkDay(ctx); err != nil {
		return 0, err
	}
	cc, err := s.cardConf(ctx, card)
	if err != nil {
		return 0, err
	}
	const day = clock.SecondsPerDay
	switch card.Queue {
	case domain.QueueNew, domain.QueueLearning, domain.QueueDayLearning:
		return s.nextLearningInterval(cc, card, grade), nil
	}
	if grade == domain.Again {
		lc := cc.lapseConf()
		if len(lc.Delays) > 0 {
			return int64(lc.Delays[0] * 60), nil
		}
		return int64(lapseInterval(card.Interval, lc)) * day, nil
	}
	ivl := ReviewInterval(card.Interval, s.daysLate(card), card.Factor, cc.revConf(), grade)
	return int64(ivl) * day, nil
}

func (s *Scheduler) nextLearningInterval(cc cardConf, card *domain.Card, grade domain.Grade) int64 {
	const day = clock.SecondsPerDay
	left := card.Left
	if card.Queue == domain.QueueNew {
		left = s.startingLeft(cc, card)
	}
	steps := cc.steps(card)
	switch {
	case grade == domain.Again:
		return int64(delayForGrade(steps, len(steps)))
	case grade == domain.Easy:
		if !cc.resched() {
			return 0
		}
		return int64(s.graduatingInterval(cc, card, true, false)) * day
	}
	total := left.Total - 1
	if total <= 0 {
		if !cc.resched() {
			return 0
		}
		return int64(s.graduatingInterval(cc, card, false, false)) * day
	}
	return int64(delayForGrade(steps, total))
}

// AnswerButtons reports how many answer buttons are meaningful for the card:
// four for reviews, three while learning, two for relearning with a single
// step.
func (s *Scheduler) AnswerButtons(ctx context.Context, card *domain.Card) (int, error) {
	if card.OriginalDue != 0 {
		if card.Parked() && card.Queue == domain.QueueReview {
			return 4, nil
		}
		cc, err := s.cardConf(ctx, card)
		if err != nil {
			return 0, err
		}
		if card.Type == domain.TypeNew || card.Type == domain.TypeLearning || len(cc.steps(card)) > 1 {
			return 3, nil
		}
		return 2, nil
	}
	if card.Queue == domain.QueueReview {
		return 4, nil
	}
	return 3, nil
}
