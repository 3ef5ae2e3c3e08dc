package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/conorfennell/knolsched/internal/domain"
)

const deckColumns = `id, name, filtered, conf_id, filter,
	new_day, new_count, rev_day, rev_count, lrn_day, lrn_count, time_day, time_count`

func scanDeck(row rowScanner) (*domain.Deck, error) {
	var (
		d      domain.Deck
		filter sql.NullString
	)
	err := row.Scan(
		&d.ID, &d.Name, &d.Filtered, &d.ConfigID, &filter,
		&d.NewToday.Day, &d.NewToday.Count,
		&d.ReviewToday.Day, &d.ReviewToday.Count,
		&d.LearnToday.Day, &d.LearnToday.Count,
		&d.TimeToday.Day, &d.TimeToday.Count,
	)
	if err != nil {
		return nil, err
	}
	if filter.Valid && filter.String != "" {
		var spec domain.FilterSpec
		if err := json.Unmarshal([]byte(filter.String), &spec); err != nil {
			return nil, fmt.Errorf("failed to decode filter of deck %d: %w", d.ID, err)
		}
		d.Filter = &spec
	}
	return &d, nil
}

// Decks retrieves every deck.
func (db *DB) Decks(ctx context.Context) ([]domain.Deck, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+deckColumns+` FROM decks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all decks: %w", err)
	}
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		d, err := scanDeck(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		decks = append(decks, *d)
	}
	return decks, rows.Err()
}

// Deck retrieves a deck by id.
func (db *DB) Deck(ctx context.Context, id int64) (*domain.Deck, error) {
	d, err := scanDeck(db.conn.QueryRowContext(ctx, `SELECT `+deckColumns+` FROM decks WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("deck %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find deck %d: %w", id, err)
	}
	return d, nil
}

// DeckByName retrieves a deck by name, ignoring case.
func (db *DB) DeckByName(ctx context.Context, name string) (*domain.Deck, error) {
	d, err := scanDeck(db.conn.QueryRowContext(ctx, `SELECT `+deckColumns+` FROM decks WHERE name = ?`, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("deck %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find deck %q: %w", name, err)
	}
	return d, nil
}

// EnsureDeck returns the id of the named normal deck, creating it and any
// missing parents with the default options group.
func (db *DB) EnsureDeck(ctx context.Context, name string) (int64, error) {
	var id int64
	for _, n := range append(domain.AncestorNames(name), name) {
		d, err := db.DeckByName(ctx, n)
		if err == nil {
			id = d.ID
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return 0, err
		}
		id, err = db.InsertDeck(ctx, &domain.Deck{Name: n, ConfigID: 1})
		if err != nil {
			return 0, err
		}
	}
	return id, nil
}

// InsertDeck stores a new deck and assigns it a creation-time id.
func (db *DB) InsertDeck(ctx context.Context, d *domain.Deck) (int64, error) {
	filter, err := encodeFilter(d.Filter)
	if err != nil {
		return 0, err
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := db.idFromTime(ctx, tx, "decks")
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO decks (id, name, filtered, conf_id, filter) VALUES (?, ?, ?, ?, ?)
	`, id, d.Name, d.Filtered, d.ConfigID, filter); err != nil {
		return 0, fmt.Errorf("failed to insert deck %q: %w", d.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit deck %q: %w", d.Name, err)
	}
	d.ID = id
	return id, nil
}

// SaveDeck writes back a deck's settings and daily counters.
func (db *DB) SaveDeck(ctx context.Context, d *domain.Deck) error {
	filter, err := encodeFilter(d.Filter)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, `
		UPDATE decks
		SET name = ?, filtered = ?, conf_id = ?, filter = ?,
		    new_day = ?, new_count = ?, rev_day = ?, rev_count = ?,
		    lrn_day = ?, lrn_count = ?, time_day = ?, time_count = ?
		WHERE id = ?
	`,
		d.Name, d.Filtered, d.ConfigID, filter,
		d.NewToday.Day, d.NewToday.Count, d.ReviewToday.Day, d.ReviewToday.Count,
		d.LearnToday.Day, d.LearnToday.Count, d.TimeToday.Day, d.TimeToday.Count,
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save deck %d: %w", d.ID, err)
	}
	return nil
}

// ResetDailyCounters restarts every deck counter that belongs to another day.
func (db *DB) ResetDailyCounters(ctx context.Context, today int64) error {
	for _, kind := range []string{"new", "rev", "lrn", "time"} {
		_, err := db.conn.ExecContext(ctx,
			fmt.Sprintf(`UPDATE decks SET %[1]s_day = ?, %[1]s_count = 0 WHERE %[1]s_day != ?`, kind),
			today, today)
		if err != nil {
			return fmt.Errorf("failed to reset %s counters: %w", kind, err)
		}
	}
	return nil
}

func encodeFilter(f *domain.FilterSpec) (any, error) {
	if f == nil {
		return nil, nil
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter: %w", err)
	}
	return string(data), nil
}

// DeckConfig retrieves and validates an options group.
func (db *DB) DeckConfig(ctx context.Context, id int64) (*domain.DeckConfig, error) {
	var data string
	err := db.conn.QueryRowContext(ctx, `SELECT data FROM deck_configs WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("deck config %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find deck config %d: %w", id, err)
	}
	var conf domain.DeckConfig
	if err := json.Unmarshal([]byte(data), &conf); err != nil {
		return nil, fmt.Errorf("failed to decode deck config %d: %w", id, err)
	}
	conf.ID = id
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// SaveDeckConfig inserts or replaces an options group.
func (db *DB) SaveDeckConfig(ctx context.Context, conf *domain.DeckConfig) error {
	if err := conf.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(conf)
	if err != nil {
		return fmt.Errorf("failed to encode deck config %d: %w", conf.ID, err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO deck_configs (id, name, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, data = excluded.data
	`, conf.ID, conf.Name, string(data))
	if err != nil {
		return fmt.Errorf("failed to save deck config %d: %w", conf.ID, err)
	}
	return nil
}
