package storage

import (
	"context"
	"fmt"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/search"
)

// filterOrderClause maps a filtered deck order to an ORDER BY expression.
// Random order is applied by the caller; here it falls back to id order.
func filterOrderClause(order domain.FilterOrder) (string, bool) {
	switch order {
	case domain.OrderOldestReviewed:
		return "(SELECT max(id) FROM revlog WHERE cid = c.id), c.id", true
	case domain.OrderIntervalAsc:
		return "c.ivl, c.id", true
	case domain.OrderIntervalDesc:
		return "c.ivl DESC, c.id", true
	case domain.OrderLapsesDesc:
		return "c.lapses DESC, c.id", true
	case domain.OrderAdded:
		return "n.id, c.ord", true
	case domain.OrderAddedDesc:
		return "n.id DESC, c.ord", true
	case domain.OrderDuePriority:
		return "", false
	case domain.OrderRandom:
		return "c.id", true
	default:
		return "c.due, c.id", true
	}
}

// SearchCards evaluates a parsed query against candidate cards, excluding
// suspended, buried, learning and already filtered cards, and returns at most
// limit ids in the requested order. A limit of zero returns every match.
func (db *DB) SearchCards(ctx context.Context, q search.Node, order domain.FilterOrder, limit int, env search.Env) ([]int64, error) {
	where, args := search.Compile(q, env)
	orderBy, ok := filterOrderClause(order)
	var orderArgs []any
	if !ok {
		// overdue reviews first, weighted by how late they are relative to their interval
		orderBy = `(CASE WHEN c.queue = ? AND c.due <= ? THEN (c.ivl / CAST(? - c.due + 0.001 AS REAL)) ELSE 100000 + c.due END), c.id`
		orderArgs = []any{int(domain.QueueReview), env.Today, env.Today}
	}
	query := `
		SELECT c.id FROM cards c JOIN notes n ON n.id = c.nid
		WHERE (` + where + `)
		  AND c.queue NOT IN (?, ?, ?, ?, ?)
		  AND c.did NOT IN (SELECT id FROM decks WHERE filtered = 1)
		ORDER BY ` + orderBy
	args = append(args,
		int(domain.QueueSuspended), int(domain.QueueUserBuried), int(domain.QueueSchedulerBuried),
		int(domain.QueueLearning), int(domain.QueueDayLearning))
	args = append(args, orderArgs...)
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search cards: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}
