package sched

import (
	"context"
	"fmt"

	"github.com/conorfennell/knolsched/internal/domain"
)

// LeechTag is added to the note of every card detected as a leech.
const LeechTag = "leech"

// IsLeech reports whether a card with the given lapse count is flagged as a
// leech: once at the threshold and again every half threshold after it.
func IsLeech(lapses, threshold int) bool {
	if threshold <= 0 || lapses < threshold {
		return false
	}
	return (lapses-threshold)%max(threshold/2, 1) == 0
}

// checkLeech tags and possibly suspends a lapsed card. It reports whether
// the card was suspended.
func (s *Scheduler) checkLeech(ctx context.Context, cc cardConf, card *domain.Card) (bool, error) {
	lc := cc.lapseConf()
	if !IsLeech(card.Lapses, lc.LeechFails) {
		return false, nil
	}
	if err := s.store.AddNoteTag(ctx, card.NoteID, LeechTag); err != nil {
		return false, fmt.Errorf("failed to tag leech card %d: %w", card.ID, err)
	}
	suspend := lc.LeechAction == domain.LeechSuspend
	if suspend {
		// leave any filtered deck or relearning state behind
		if card.OriginalDue != 0 {
			card.Due = card.OriginalDue
		}
		if card.Parked() {
			card.DeckID = card.OriginalDeckID
		}
		card.OriginalDue = 0
		card.OriginalDeckID = 0
		card.Queue = domain.QueueSuspended
	}
	s.logger.Info("leech detected", "card", card.ID, "note", card.NoteID, "lapses", card.Lapses, "suspended", suspend)
	s.deferEvent(LeechDetected{Card: *card, Suspended: suspend})
	return suspend, nil
}
