package sched

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/knolsched/internal/clock"
	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/storage"
)

// logRetryDelay is how long to wait before retrying a review log insert that
// collided with an existing key.
const logRetryDelay = 10 * time.Millisecond

// Answer records the user's grade for the card most recently handed out by
// GetCard and reschedules it.
func (s *Scheduler) Answer(ctx context.Context, card *domain.Card, grade domain.Grade) error {
	if !grade.Valid() {
		return fmt.Errorf("failed to answer card: %w: %d", ErrInvalidGrade, grade)
	}
	if card == nil || card.ID != s.current {
		return ErrNotFetched
	}
	switch card.Queue {
	case domain.QueueNew, domain.QueueLearning, domain.QueueDayLearning, domain.QueueReview:
	default:
		return fmt.Errorf("failed to answer card %d: %w: %d", card.ID, ErrInvalidQueue, card.Queue)
	}
	if err := s.checkDay(ctx); err != nil {
		return err
	}
	cc, err := s.cardConf(ctx, card)
	if err != nil {
		return err
	}
	if s.opts.BuryOnAnswer {
		if err := s.burySiblings(ctx, card, cc); err != nil {
			return err
		}
	}

	card.Reps++
	wasNew := card.Type == domain.TypeNew
	wasNewQueue := card.Queue == domain.QueueNew
	if wasNewQueue {
		card.Queue = domain.QueueLearning
		if card.Type == domain.TypeNew {
			card.Type = domain.TypeLearning
		}
		card.Left = s.startingLeft(cc, card)
		// reviews pulled into a filtered deck get their interval boosted on first sight
		if card.Parked() && card.Type == domain.TypeReview && cc.resched() {
			card.Interval = s.dynamicIntervalBoost(cc, card)
			card.OriginalDue = s.day.Today + int64(card.Interval)
		}
		if err := s.updateStats(ctx, card, domain.CountNew, 1); err != nil {
			return err
		}
	}

	var log domain.ReviewLog
	switch card.Queue {
	case domain.QueueLearning, domain.QueueDayLearning:
		if log, err = s.answerLearning(ctx, cc, card, grade, wasNew); err != nil {
			return err
		}
		if !wasNewQueue {
			if err := s.updateStats(ctx, card, domain.CountLearn, 1); err != nil {
				return err
			}
		}
	default:
		if log, err = s.answerReview(ctx, cc, card, grade); err != nil {
			return err
		}
		if err := s.updateStats(ctx, card, domain.CountReview, 1); err != nil {
			return err
		}
	}

	taken := s.timeTaken(cc, card)
	if err := s.updateStats(ctx, card, domain.CountTime, taken); err != nil {
		return err
	}
	s.stamp(card)
	if err := s.store.UpdateCard(ctx, card); err != nil {
		return fmt.Errorf("failed to save answered card %d: %w", card.ID, err)
	}

	log.CardID = card.ID
	log.USN = s.col.USN
	log.Grade = grade
	log.Factor = card.Factor
	log.TimeTaken = taken
	if log, err = s.writeLog(ctx, log); err != nil {
		return err
	}

	s.current = 0
	s.logger.Debug("card answered",
		"card", card.ID, "grade", grade.String(), "queue", int(card.Queue), "due", card.Due, "interval", card.Interval)
	s.flushEvents()
	s.emit(CardAnswered{Card: *card, Grade: grade, Log: log})
	return nil
}

// timeTaken is the time since the card was shown in milliseconds, capped by
// the deck's limit.
func (s *Scheduler) timeTaken(cc cardConf, card *domain.Card) int {
	if card.ShownAt.IsZero() {
		return 0
	}
	limit := time.Duration(cc.home.MaxTaken) * time.Second
	elapsed := min(s.clock.Now().Sub(card.ShownAt), limit)
	return int(max(elapsed, 0).Milliseconds())
}

// writeLog appends the review log row. A key collision from two answers in
// the same millisecond is retried once.
func (s *Scheduler) writeLog(ctx context.Context, log domain.ReviewLog) (domain.ReviewLog, error) {
	log.ID = s.clock.Now().UnixMilli()
	err := s.store.AddReviewLog(ctx, log)
	if errors.Is(err, storage.ErrDuplicateLog) {
		s.logger.Warn("review log key collision, retrying", "card", log.CardID, "id", log.ID)
		time.Sleep(logRetryDelay)
		next := s.clock.Now().UnixMilli()
		if next <= log.ID {
			next = log.ID + 1
		}
		log.ID = next
		err = s.store.AddReviewLog(ctx, log)
	}
	if err != nil {
		return log, fmt.Errorf("failed to log review of card %d: %w", log.CardID, err)
	}
	return log, nil
}

// answerLearning runs the learning step machine. Hard counts as Good.
func (s *Scheduler) answerLearning(ctx context.Context, cc cardConf, card *domain.Card, grade domain.Grade, wasNew bool) (domain.ReviewLog, error) {
	steps := cc.steps(card)
	kind := domain.ReviewLearn
	switch {
	case card.Parked() && !wasNew:
		kind = domain.ReviewCram
	case card.Type == domain.TypeReview:
		kind = domain.ReviewRelearn
	}
	lastLeft := card.Left
	leaving := false

	switch {
	case grade == domain.Easy:
		if err := s.rescheduleAsReview(ctx, cc, card, true); err != nil {
			return domain.ReviewLog{}, err
		}
		leaving = true
	case grade != domain.Again && card.Left.Total-1 <= 0:
		if err := s.rescheduleAsReview(ctx, cc, card, false); err != nil {
			return domain.ReviewLog{}, err
		}
		leaving = true
	default:
		if grade == domain.Again {
			card.Left = s.startingLeft(cc, card)
			if card.Type == domain.TypeReview && cc.resched() {
				lc := cc.lapseConf()
				card.Interval = max(1, lc.MinInt, int(float64(card.Interval)*lc.Mult))
			}
			if cc.resched() && card.Parked() {
				card.OriginalDue = s.day.Today + 1
			}
		} else {
			total := card.Left.Total - 1
			card.Left = domain.Left{Today: s.leftToday(steps, total), Total: total}
		}
		delay := delayForGrade(steps, card.Left.Total)
		if card.Due < s.now() {
			// not collapsed; add some randomness
			delay *= 1 + s.rng.Float64()*0.25
		}
		s.queueLearning(card, delay, true)
	}

	log := domain.ReviewLog{
		Kind:         kind,
		LastInterval: -int(delayForGrade(steps, lastLeft.Total)),
	}
	if leaving {
		log.Interval = card.Interval
	} else {
		log.Interval = -int(delayForGrade(steps, card.Left.Total))
	}
	return log, nil
}

// queueLearning schedules a learning step delay seconds from now, in the
// sub-day queue when it falls before the cutoff and the day learning queue
// otherwise.
func (s *Scheduler) queueLearning(card *domain.Card, delay float64, spread bool) {
	card.Due = s.now() + int64(delay)
	if card.Due >= s.day.Cutoff {
		ahead := (card.Due-s.day.Cutoff)/clock.SecondsPerDay + 1
		card.Due = s.day.Today + ahead
		card.Queue = domain.QueueDayLearning
		return
	}
	s.learnCount += card.Left.Today
	card.Queue = domain.QueueLearning
	// with nothing else to study, keep the card from coming straight back
	// ahead of the queue head
	if spread && len(s.learnQueue) > 0 && s.reviewCount == 0 && s.newCount == 0 {
		card.Due = max(card.Due, s.learnQueue[0].due+1)
	}
	s.learnQueue.remove(card.ID)
	heap.Push(&s.learnQueue, learningItem{due: card.Due, id: card.ID})
}

// rescheduleAsReview graduates a card from learning.
func (s *Scheduler) rescheduleAsReview(ctx context.Context, cc cardConf, card *domain.Card, early bool) error {
	lapse := card.Type == domain.TypeReview
	if lapse {
		if cc.resched() {
			card.Due = max(s.day.Today+1, card.OriginalDue)
		} else {
			card.Due = card.OriginalDue
		}
		card.OriginalDue = 0
	} else {
		card.Interval = s.graduatingInterval(cc, card, early, true)
		card.Due = s.day.Today + int64(card.Interval)
		card.Factor = cc.newConf().InitialFactor
	}
	card.Queue = domain.QueueReview
	card.Type = domain.TypeReview
	card.Left = domain.Left{}

	if card.Parked() {
		card.DeckID = card.OriginalDeckID
		card.OriginalDeckID = 0
		card.OriginalDue = 0
		if !cc.resched() && !lapse {
			// without rescheduling the card goes back to being new
			pos, err := s.store.NextPosition(ctx)
			if err != nil {
				return err
			}
			card.Queue = domain.QueueNew
			card.Type = domain.TypeNew
			card.Due = pos
		}
	}
	return nil
}

// startingLeft is the full step count for the card together with how many
// of those steps fit before the day cutoff.
func (s *Scheduler) startingLeft(cc cardConf, card *domain.Card) domain.Left {
	steps := cc.steps(card)
	return domain.Left{Today: s.leftToday(steps, len(steps)), Total: len(steps)}
}

// leftToday counts how many of the last left steps can be completed before
// the day cutoff when the first one is taken now. It is at least one.
func (s *Scheduler) leftToday(steps []float64, left int) int {
	if left > 0 && left < len(steps) {
		steps = steps[len(steps)-left:]
	}
	now := float64(s.now())
	ok := 0
	for i, d := range steps {
		now += d * 60
		if now > float64(s.day.Cutoff) {
			break
		}
		ok = i
	}
	return ok + 1
}

// delayForGrade is the delay in seconds of the step left steps from the end.
func delayForGrade(steps []float64, left int) float64 {
	switch {
	case left >= 1 && left <= len(steps):
		return steps[len(steps)-left] * 60
	case len(steps) > 0:
		return steps[0] * 60
	}
	// no steps configured; use a dummy minute
	return 60
}

// answerReview handles a graduated card in the review queue.
func (s *Scheduler) answerReview(ctx context.Context, cc cardConf, card *domain.Card, grade domain.Grade) (domain.ReviewLog, error) {
	var delay float64
	if grade == domain.Again {
		var err error
		if delay, err = s.rescheduleLapse(ctx, cc, card); err != nil {
			return domain.ReviewLog{}, err
		}
	} else {
		s.rescheduleReview(cc, card, grade)
	}
	log := domain.ReviewLog{
		Kind:         domain.ReviewReview,
		Interval:     card.Interval,
		LastInterval: card.LastInterval,
	}
	if delay > 0 {
		log.Interval = -int(delay)
	}
	return log, nil
}

// rescheduleLapse handles Again on a review card. It returns the relearning
// delay in seconds, or zero when the card does not enter relearning.
func (s *Scheduler) rescheduleLapse(ctx context.Context, cc cardConf, card *domain.Card) (float64, error) {
	lc := cc.lapseConf()
	card.LastInterval = card.Interval
	card.Lapses++
	if cc.resched() {
		card.Interval = lapseInterval(card.Interval, lc)
		card.Factor = max(domain.MinFactor, card.Factor-200)
		card.Due = s.day.Today + int64(card.Interval)
		if card.Parked() {
			card.OriginalDue = card.Due
		}
	}
	suspended, err := s.checkLeech(ctx, cc, card)
	if err != nil {
		return 0, err
	}
	if suspended || len(lc.Delays) == 0 {
		return 0, nil
	}
	if card.OriginalDue == 0 {
		card.OriginalDue = card.Due
	}
	delay := delayForGrade(lc.Delays, 0)
	card.Left = s.startingLeft(cc, card)
	s.queueLearning(card, delay, false)
	return delay, nil
}

// rescheduleReview handles Hard, Good and Easy on a review card.
func (s *Scheduler) rescheduleReview(cc cardConf, card *domain.Card, grade domain.Grade) {
	card.LastInterval = card.Interval
	if cc.resched() {
		s.updateReviewInterval(cc, card, grade)
		card.Factor = max(domain.MinFactor, card.Factor+factorDelta(grade))
		card.Due = s.day.Today + int64(card.Interval)
	} else {
		card.Due = card.OriginalDue
	}
	if card.Parked() {
		card.DeckID = card.OriginalDeckID
		card.OriginalDeckID = 0
		card.OriginalDue = 0
	}
}

func factorDelta(grade domain.Grade) int {
	switch grade {
	case domain.Hard:
		return -150
	case domain.Easy:
		return 150
	}
	return 0
}
