package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/knolsched/internal/domain"
)

// InsertNote stores a new note and assigns it a creation-time id. A note
// without a GUID is given a random one.
func (db *DB) InsertNote(ctx context.Context, n *domain.Note) error {
	if n.GUID == "" {
		n.GUID = uuid.NewString()
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := db.idFromTime(ctx, tx, "notes")
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO notes (id, guid, checksum, question, answer, context, tags, mod)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, n.GUID, n.Checksum, n.Question, n.Answer, n.Context, domain.JoinTags(n.Tags), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to insert note %s: %w", n.Checksum, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit note %s: %w", n.Checksum, err)
	}
	n.ID = id
	return nil
}

const noteColumns = `id, guid, checksum, question, answer, context, tags`

func scanNote(row rowScanner) (*domain.Note, error) {
	var (
		n    domain.Note
		tags string
	)
	if err := row.Scan(&n.ID, &n.GUID, &n.Checksum, &n.Question, &n.Answer, &n.Context, &tags); err != nil {
		return nil, err
	}
	n.Tags = domain.SplitTags(tags)
	return &n, nil
}

// Note retrieves a note by id.
func (db *DB) Note(ctx context.Context, id int64) (*domain.Note, error) {
	n, err := scanNote(db.conn.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("note %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find note %d: %w", id, err)
	}
	return n, nil
}

// NoteByChecksum retrieves a note by its content checksum.
func (db *DB) NoteByChecksum(ctx context.Context, checksum string) (*domain.Note, error) {
	n, err := scanNote(db.conn.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE checksum = ?`, checksum))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("note %s: %w", checksum, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find note %s: %w", checksum, err)
	}
	return n, nil
}

// AddNoteTag adds tag to a note's tag set. Adding a tag twice is a no-op.
func (db *DB) AddNoteTag(ctx context.Context, noteID int64, tag string) error {
	n, err := db.Note(ctx, noteID)
	if err != nil {
		return err
	}
	if !n.AddTag(tag) {
		return nil
	}
	_, err = db.conn.ExecContext(ctx, `UPDATE notes SET tags = ?, mod = ? WHERE id = ?`,
		domain.JoinTags(n.Tags), time.Now().Unix(), noteID)
	if err != nil {
		return fmt.Errorf("failed to tag note %d: %w", noteID, err)
	}
	return nil
}
