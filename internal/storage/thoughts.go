package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const thoughtColumns = `t.id, t.content, t.source, t.summary, t.audio_file, t.document_file, t.metadata_json, t.created_at, t.updated_at`

// CreateThought inserts t, assigning an id and timestamps when unset.
func (s *Store) CreateThought(t Thought) (Thought, error) {
	err := s.writeTx(func(tx *sql.Tx) error {
		var err error
		t, err = s.insertThought(tx, t)
		return err
	})
	return t, err
}

func (s *Store) insertThought(q querier, t Thought) (Thought, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Source == "" {
		t.Source = SourceTextNote
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	meta, err := encodeMetadata(t.Metadata)
	if err != nil {
		return Thought{}, err
	}
	_, err = q.Exec(`
		INSERT INTO thoughts (id, content, source, summary, audio_file, document_file, metadata_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Content, t.Source, t.Summary, t.AudioFile, t.DocumentFile, meta,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		return Thought{}, fmt.Errorf("inserting thought: %w", err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func (s *Store) GetThought(id string) (Thought, error) {
	row := s.db.QueryRow(`SELECT `+thoughtColumns+` FROM thoughts t WHERE t.id = ?`, id)
	t, err := scanThought(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Thought{}, ErrNotFound
	}
	return t, err
}

// DeleteThought removes a thought with its actions, links and association
// rows. Tags and reflections stay.
func (s *Store) DeleteThought(id string) error {
	return s.writeTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM thoughts WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// RecentThoughts returns the newest thoughts first.
func (s *Store) RecentThoughts(limit int) ([]Thought, error) {
	rows, err := s.db.Query(`SELECT `+thoughtColumns+` FROM thoughts t
		ORDER BY t.created_at DESC, t.rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return collectThoughts(rows)
}

// ThoughtsByTag returns the newest thoughts carrying the named tag. The
// name is matched case-insensitively.
func (s *Store) ThoughtsByTag(name string, limit int) ([]Thought, error) {
	var tagID string
	err := s.db.QueryRow(`SELECT id FROM tags WHERE name = ?`, name).Scan(&tagID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT `+thoughtColumns+` FROM thoughts t
		JOIN thought_tags tt ON tt.thought_id = t.id
		WHERE tt.tag_id = ?
		ORDER BY t.created_at DESC, t.rowid DESC LIMIT ?`, tagID, limit)
	if err != nil {
		return nil, err
	}
	return collectThoughts(rows)
}

// CountThoughts returns the number of stored thoughts.
func (s *Store) CountThoughts() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM thoughts`).Scan(&n)
	return n, err
}

func (s *Store) updateSummary(q querier, thoughtID, summary string) error {
	res, err := q.Exec(`UPDATE thoughts SET summary = ?, updated_at = ? WHERE id = ?`, summary, s.timestamp(), thoughtID)
	if err != nil {
		return fmt.Errorf("updating summary: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func thoughtExists(q querier, id string) (bool, error) {
	var n int
	if err := q.QueryRow(`SELECT COUNT(*) FROM thoughts WHERE id = ?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanThought(row scanner) (Thought, error) {
	var t Thought
	var meta, createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.Content, &t.Source, &t.Summary, &t.AudioFile, &t.DocumentFile, &meta, &createdAt, &updatedAt); err != nil {
		return Thought{}, err
	}
	var err error
	if t.Metadata, err = decodeMetadata(meta); err != nil {
		return Thought{}, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return Thought{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Thought{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return t, nil
}

func collectThoughts(rows *sql.Rows) ([]Thought, error) {
	defer rows.Close()
	var out []Thought
	for rows.Next() {
		t, err := scanThought(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
