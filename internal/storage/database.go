package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicateLog is returned when a review log row collides with an
	// existing (timestamp, card) key.
	ErrDuplicateLog = errors.New("storage: duplicate review log key")
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The scheduler is single writer; one connection also keeps ":memory:"
	// databases from splitting per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// InitCollection creates the collection row, the default options group and
// the default deck if they do not exist yet. created is the instant day
// indexes are counted from.
func (db *DB) InitCollection(ctx context.Context, created time.Time, defaults domain.DeckConfig) error {
	if err := defaults.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("failed to encode default deck config: %w", err)
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO col (id, crt, active_decks, cur_deck)
		VALUES (1, ?, '[1]', 1)
	`, created.Unix()); err != nil {
		return fmt.Errorf("failed to insert collection: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO deck_configs (id, name, data) VALUES (1, ?, ?)
	`, defaults.Name, string(data)); err != nil {
		return fmt.Errorf("failed to insert default deck config: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO decks (id, name, conf_id) VALUES (1, 'Default', 1)
	`); err != nil {
		return fmt.Errorf("failed to insert default deck: %w", err)
	}
	return tx.Commit()
}

// Collection loads the collection-wide scheduling state.
func (db *DB) Collection(ctx context.Context) (*domain.Collection, error) {
	var (
		col    domain.Collection
		active string
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT crt, last_unburied, usn, cur_deck, active_decks FROM col WHERE id = 1
	`).Scan(&col.Created, &col.LastUnburied, &col.USN, &col.CurrentDeck, &active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("collection not initialised: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}
	if err := json.Unmarshal([]byte(active), &col.ActiveDecks); err != nil {
		return nil, fmt.Errorf("failed to decode active decks: %w", err)
	}
	return &col, nil
}

// SaveCollection persists the collection-wide scheduling state.
func (db *DB) SaveCollection(ctx context.Context, col *domain.Collection) error {
	active, err := json.Marshal(col.ActiveDecks)
	if err != nil {
		return fmt.Errorf("failed to encode active decks: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		UPDATE col
		SET last_unburied = ?, usn = ?, cur_deck = ?, active_decks = ?
		WHERE id = 1
	`, col.LastUnburied, col.USN, col.CurrentDeck, string(active))
	if err != nil {
		return fmt.Errorf("failed to save collection: %w", err)
	}
	return nil
}

// NextPosition hands out the next new-card position.
func (db *DB) NextPosition(ctx context.Context) (int64, error) {
	var pos int64
	err := db.conn.QueryRowContext(ctx, `
		UPDATE col SET next_pos = next_pos + 1 WHERE id = 1 RETURNING next_pos - 1
	`).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate position: %w", err)
	}
	return pos, nil
}

// ReserveThrough ensures positions up to and including pos are never handed
// out again by NextPosition.
func (db *DB) ReserveThrough(ctx context.Context, pos int64) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE col SET next_pos = max(next_pos, ?) WHERE id = 1
	`, pos+1)
	if err != nil {
		return fmt.Errorf("failed to reserve positions: %w", err)
	}
	return nil
}

// idFromTime returns a millisecond id for table that is not used yet.
func (db *DB) idFromTime(ctx context.Context, tx *sql.Tx, table string) (int64, error) {
	id := time.Now().UnixMilli()
	var maxID sql.NullInt64
	if err := tx.QueryRowContext(ctx, "SELECT max(id) FROM "+table).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("failed to read max id of %s: %w", table, err)
	}
	if maxID.Valid && maxID.Int64 >= id {
		id = maxID.Int64 + 1
	}
	return id, nil
}
