package storage

import (
	"context"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/conorfennell/knolsched/internal/domain"
)

// AddReviewLog appends a review log row. A key collision is reported as
// ErrDuplicateLog so the caller can retry with a later timestamp.
func (db *DB) AddReviewLog(ctx context.Context, l domain.ReviewLog) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO revlog (id, cid, usn, ease, ivl, last_ivl, factor, time, type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.CardID, l.USN, l.Grade, l.Interval, l.LastInterval, l.Factor, l.TimeTaken, l.Kind)
	if err != nil {
		var serr *sqlite.Error
		if errors.As(err, &serr) && serr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			return fmt.Errorf("review log %d for card %d: %w", l.ID, l.CardID, ErrDuplicateLog)
		}
		return fmt.Errorf("failed to insert review log for card %d: %w", l.CardID, err)
	}
	return nil
}

// ReviewLogs retrieves the review history of a card, oldest first.
func (db *DB) ReviewLogs(ctx context.Context, cardID int64) ([]domain.ReviewLog, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, cid, usn, ease, ivl, last_ivl, factor, time, type
		FROM revlog WHERE cid = ? ORDER BY id
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to get review logs for card %d: %w", cardID, err)
	}
	defer rows.Close()

	var logs []domain.ReviewLog
	for rows.Next() {
		var l domain.ReviewLog
		if err := rows.Scan(&l.ID, &l.CardID, &l.USN, &l.Grade, &l.Interval, &l.LastInterval, &l.Factor, &l.TimeTaken, &l.Kind); err != nil {
			return nil, fmt.Errorf("failed to scan review log row: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
