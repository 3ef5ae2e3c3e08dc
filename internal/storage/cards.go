package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/conorfennell/knolsched/internal/domain"
)

const cardColumns = `id, nid, did, odid, ord, type, queue, due, odue, ivl, factor, reps, lapses, left, flags, mod, usn`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*domain.Card, error) {
	var (
		c    domain.Card
		left int
	)
	err := row.Scan(
		&c.ID,
		&c.NoteID,
		&c.DeckID,
		&c.OriginalDeckID,
		&c.Ord,
		&c.Type,
		&c.Queue,
		&c.Due,
		&c.OriginalDue,
		&c.Interval,
		&c.Factor,
		&c.Reps,
		&c.Lapses,
		&left,
		&c.Flags,
		&c.Mod,
		&c.USN,
	)
	if err != nil {
		return nil, err
	}
	c.Left = domain.UnpackLeft(left)
	return &c, nil
}

// InsertCard stores a new card and assigns it a creation-time id.
func (db *DB) InsertCard(ctx context.Context, card *domain.Card) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := db.idFromTime(ctx, tx, "cards")
	if err != nil {
		return err
	}
	card.ID = id
	if _, err := tx.ExecContext(ctx, `INSERT INTO cards (`+cardColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cardArgs(card)...); err != nil {
		return fmt.Errorf("failed to insert card for note %d: %w", card.NoteID, err)
	}
	return tx.Commit()
}

func cardArgs(c *domain.Card) []any {
	return []any{
		c.ID, c.NoteID, c.DeckID, c.OriginalDeckID, c.Ord, c.Type, c.Queue,
		c.Due, c.OriginalDue, c.Interval, c.Factor, c.Reps, c.Lapses,
		c.Left.Packed(), c.Flags, c.Mod, c.USN,
	}
}

// Card retrieves a card by id.
func (db *DB) Card(ctx context.Context, id int64) (*domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("card %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find card %d: %w", id, err)
	}
	return c, nil
}

// Cards retrieves the cards with the given ids in id order. Unknown ids are
// skipped.
func (db *DB) Cards(ctx context.Context, ids []int64) ([]*domain.Card, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE id IN (`+placeholders(len(ids))+`) ORDER BY id`,
		int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards: %w", err)
	}
	defer rows.Close()
	return collectCards(rows)
}

func collectCards(rows *sql.Rows) ([]*domain.Card, error) {
	var cards []*domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// UpdateCard writes back every scheduling field of a card.
func (db *DB) UpdateCard(ctx context.Context, c *domain.Card) error {
	return db.UpdateCards(ctx, []*domain.Card{c})
}

// UpdateCards writes back the scheduling fields of several cards in one
// transaction.
func (db *DB) UpdateCards(ctx context.Context, cards []*domain.Card) error {
	if len(cards) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE cards
		SET did = ?, odid = ?, type = ?, queue = ?, due = ?, odue = ?, ivl = ?,
		    factor = ?, reps = ?, lapses = ?, left = ?, flags = ?, mod = ?, usn = ?
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare card update: %w", err)
	}
	defer stmt.Close()

	for _, c := range cards {
		if _, err := stmt.ExecContext(ctx,
			c.DeckID, c.OriginalDeckID, c.Type, c.Queue, c.Due, c.OriginalDue, c.Interval,
			c.Factor, c.Reps, c.Lapses, c.Left.Packed(), c.Flags, c.Mod, c.USN,
			c.ID,
		); err != nil {
			return fmt.Errorf("failed to update card %d: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func buildCardQuery(q domain.CardQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	if len(q.DeckIDs) > 0 {
		where = append(where, "did IN ("+placeholders(len(q.DeckIDs))+")")
		args = append(args, int64Args(q.DeckIDs)...)
	}
	if len(q.Queues) > 0 {
		where = append(where, "queue IN ("+placeholders(len(q.Queues))+")")
		for _, queue := range q.Queues {
			args = append(args, int(queue))
		}
	}
	if q.HasMaxDue {
		where = append(where, "due <= ?")
		args = append(args, q.MaxDue)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	switch q.Order {
	case domain.OrderByPosition:
		clause += " ORDER BY due, ord, id"
	case domain.OrderByDue:
		clause += " ORDER BY due, id"
	default:
		clause += " ORDER BY id"
	}
	if q.Limit > 0 {
		clause += " LIMIT ?"
		args = append(args, q.Limit)
	}
	return clause, args
}

// CardIDs lists the ids of cards matching q.
func (db *DB) CardIDs(ctx context.Context, q domain.CardQuery) ([]int64, error) {
	clause, args := buildCardQuery(q)
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM cards`+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list card ids: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

// CountCards counts the cards matching q, never more than q.Limit when set.
func (db *DB) CountCards(ctx context.Context, q domain.CardQuery) (int, error) {
	clause, args := buildCardQuery(q)
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count() FROM (SELECT 1 FROM cards`+clause+`)`, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", err)
	}
	return n, nil
}

// LearningDue lists sub-day learning cards in the given decks that fall due
// before cutoff, soonest first.
func (db *DB) LearningDue(ctx context.Context, deckIDs []int64, cutoff int64, limit int) ([]domain.LearningEntry, error) {
	if len(deckIDs) == 0 {
		return nil, nil
	}
	args := append(int64Args(deckIDs), int(domain.QueueLearning), cutoff, limit)
	rows, err := db.conn.QueryContext(ctx, `
		SELECT due, id, left FROM cards
		WHERE did IN (`+placeholders(len(deckIDs))+`) AND queue = ? AND due < ?
		ORDER BY due, id
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list learning cards: %w", err)
	}
	defer rows.Close()

	var entries []domain.LearningEntry
	for rows.Next() {
		var (
			e    domain.LearningEntry
			left int
		)
		if err := rows.Scan(&e.Due, &e.CardID, &left); err != nil {
			return nil, fmt.Errorf("failed to scan learning row: %w", err)
		}
		e.LeftToday = domain.UnpackLeft(left).Today
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Siblings lists the other cards of a note that are new or review cards due
// by today.
func (db *DB) Siblings(ctx context.Context, noteID, cardID, today int64) ([]*domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+cardColumns+` FROM cards
		WHERE nid = ? AND id != ? AND (queue = ? OR (queue = ? AND due <= ?))
		ORDER BY id
	`, noteID, cardID, int(domain.QueueNew), int(domain.QueueReview), today)
	if err != nil {
		return nil, fmt.Errorf("failed to list siblings of card %d: %w", cardID, err)
	}
	defer rows.Close()
	return collectCards(rows)
}

// NoteCards lists the ids of every card of a note.
func (db *DB) NoteCards(ctx context.Context, noteID int64) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM cards WHERE nid = ? ORDER BY id`, noteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards of note %d: %w", noteID, err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

// MaxNewDue returns the highest position held by a new card.
func (db *DB) MaxNewDue(ctx context.Context) (int64, error) {
	var maxDue sql.NullInt64
	if err := db.conn.QueryRowContext(ctx, `SELECT max(due) FROM cards WHERE type = ?`, int(domain.TypeNew)).Scan(&maxDue); err != nil {
		return 0, fmt.Errorf("failed to read max new position: %w", err)
	}
	return maxDue.Int64, nil
}

// MinNewDueFrom returns the lowest position at or above start held by a new
// card outside excluded, and whether one exists.
func (db *DB) MinNewDueFrom(ctx context.Context, start int64, excluded []int64) (int64, bool, error) {
	query := `SELECT min(due) FROM cards WHERE due >= ? AND type = ?`
	args := []any{start, int(domain.TypeNew)}
	if len(excluded) > 0 {
		query += ` AND id NOT IN (` + placeholders(len(excluded)) + `)`
		args = append(args, int64Args(excluded)...)
	}
	var low sql.NullInt64
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&low); err != nil {
		return 0, false, fmt.Errorf("failed to read min new position: %w", err)
	}
	return low.Int64, low.Valid, nil
}

// ShiftNewPositions moves every new-queue card at or above low, except
// excluded, down the queue by shift.
func (db *DB) ShiftNewPositions(ctx context.Context, low, shift, mod int64, usn int, excluded []int64) error {
	query := `UPDATE cards SET mod = ?, usn = ?, due = due + ? WHERE due >= ? AND queue = ?`
	args := []any{mod, usn, shift, low, int(domain.QueueNew)}
	if len(excluded) > 0 {
		query += ` AND id NOT IN (` + placeholders(len(excluded)) + `)`
		args = append(args, int64Args(excluded)...)
	}
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to shift new positions: %w", err)
	}
	return nil
}

// DueForecast counts review cards per day in [from, to] for the given decks.
func (db *DB) DueForecast(ctx context.Context, deckIDs []int64, from, to int64) (map[int64]int, error) {
	out := make(map[int64]int)
	if len(deckIDs) == 0 {
		return out, nil
	}
	args := append(int64Args(deckIDs), int(domain.QueueReview), from, to)
	rows, err := db.conn.QueryContext(ctx, `
		SELECT due, count() FROM cards
		WHERE did IN (`+placeholders(len(deckIDs))+`) AND queue = ? AND due BETWEEN ? AND ?
		GROUP BY due
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to forecast reviews: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var day int64
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, fmt.Errorf("failed to scan forecast row: %w", err)
		}
		out[day] = n
	}
	return out, rows.Err()
}

func collectIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
