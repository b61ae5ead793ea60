package notestore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/tangle/internal/apperr"
	"github.com/starford/tangle/internal/models"
)

// Store is the remote note store contract used by the HTTP API.
type Store interface {
	Upsert(req models.UpsertRequest) (models.RemoteNote, error)
	List(after int64, includeDeleted bool) ([]models.RemoteNote, error)
	Get(id string) (models.RemoteNote, error)
}

var _ Store = (*DB)(nil)

const noteColumns = `id, title, content, tags, links, created_at, updated_at, deleted`

// Upsert inserts or replaces a note. The store stamps updated_at itself,
// strictly greater than every stamp it has handed out before, and keeps the
// original created_at of an existing note.
func (db *DB) Upsert(req models.UpsertRequest) (models.RemoteNote, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return models.RemoteNote{}, fmt.Errorf("notestore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var last int64
	if err := tx.QueryRow(`SELECT COALESCE(MAX(updated_at), 0) FROM notes`).Scan(&last); err != nil {
		return models.RemoteNote{}, fmt.Errorf("notestore: last stamp: %w", err)
	}
	stamp := db.now().UnixMilli()
	if stamp <= last {
		stamp = last + 1
	}

	deleted := 0
	if req.Deleted {
		deleted = 1
	}
	_, err = tx.Exec(`
		INSERT INTO notes (`+noteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title      = excluded.title,
			content    = excluded.content,
			tags       = excluded.tags,
			links      = excluded.links,
			updated_at = excluded.updated_at,
			deleted    = excluded.deleted
	`, req.ID, req.Title, req.Content, req.Tags, req.Links, stamp, stamp, deleted)
	if err != nil {
		return models.RemoteNote{}, fmt.Errorf("notestore: upsert note: %w", err)
	}

	n, err := scanNote(tx.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE id = ?`, req.ID))
	if err != nil {
		return models.RemoteNote{}, fmt.Errorf("notestore: read back: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.RemoteNote{}, fmt.Errorf("notestore: commit: %w", err)
	}
	return n, nil
}

// List returns notes updated strictly after the watermark, oldest first.
// Tombstones are included only on request.
func (db *DB) List(after int64, includeDeleted bool) ([]models.RemoteNote, error) {
	q := `SELECT ` + noteColumns + ` FROM notes WHERE updated_at > ?`
	if !includeDeleted {
		q += ` AND deleted = 0`
	}
	q += ` ORDER BY updated_at ASC, id ASC`

	rows, err := db.conn.Query(q, after)
	if err != nil {
		return nil, fmt.Errorf("notestore: list: %w", err)
	}
	defer rows.Close()

	out := []models.RemoteNote{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("notestore: scan: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Get returns one note, tombstones included.
func (db *DB) Get(id string) (models.RemoteNote, error) {
	n, err := scanNote(db.conn.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.RemoteNote{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.RemoteNote{}, fmt.Errorf("notestore: get: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (models.RemoteNote, error) {
	var n models.RemoteNote
	err := s.Scan(&n.ID, &n.Title, &n.Content, &n.Tags, &n.Links, &n.CreatedAt, &n.UpdatedAt, &n.Deleted)
	return n, err
}
