package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kalambet/mirror/internal/actions"
	"github.com/kalambet/mirror/internal/linker"
)

// --- Links ---

func (s *Store) CreateLink(l Link) (Link, error) {
	err := s.writeTx(func(tx *sql.Tx) error {
		var err error
		l, err = s.insertLink(tx, l)
		return err
	})
	return l, err
}

func (s *Store) insertLink(q querier, l Link) (Link, error) {
	if l.SourceThoughtID == l.TargetThoughtID {
		return Link{}, ErrSelfLink
	}
	if l.Relationship == "" {
		l.Relationship = linker.RelSimilar
	}
	if !linker.ValidRelationship(l.Relationship) {
		return Link{}, fmt.Errorf("%w: relationship %q", ErrInvalidLink, l.Relationship)
	}
	if l.Strength < 0 || l.Strength > 1 {
		return Link{}, fmt.Errorf("%w: strength %v", ErrInvalidLink, l.Strength)
	}
	for _, id := range []string{l.SourceThoughtID, l.TargetThoughtID} {
		ok, err := thoughtExists(q, id)
		if err != nil {
			return Link{}, err
		}
		if !ok {
			return Link{}, fmt.Errorf("%w: thought %s does not exist", ErrInvalidLink, id)
		}
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now().UTC()
	}
	_, err := q.Exec(`INSERT INTO links (id, source_thought_id, target_thought_id, relationship, strength, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.SourceThoughtID, l.TargetThoughtID, l.Relationship, l.Strength, formatTime(l.CreatedAt))
	if err != nil {
		return Link{}, fmt.Errorf("inserting link: %w", err)
	}
	return l, nil
}

const linkColumns = `id, source_thought_id, target_thought_id, relationship, strength, created_at`

func (s *Store) GetLink(id string) (Link, error) {
	l, err := scanLink(s.db.QueryRow(`SELECT `+linkColumns+` FROM links WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Link{}, ErrNotFound
	}
	return l, err
}

// LinksFor returns links where the thought is either source or target,
// strongest first.
func (s *Store) LinksFor(thoughtID string) ([]Link, error) {
	rows, err := s.db.Query(`SELECT `+linkColumns+` FROM links
		WHERE source_thought_id = ? OR target_thought_id = ?
		ORDER BY strength DESC, created_at ASC, rowid ASC`, thoughtID, thoughtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLink(row scanner) (Link, error) {
	var l Link
	var createdAt string
	if err := row.Scan(&l.ID, &l.SourceThoughtID, &l.TargetThoughtID, &l.Relationship, &l.Strength, &createdAt); err != nil {
		return Link{}, err
	}
	var err error
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return Link{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return l, nil
}

// --- Actions ---

func (s *Store) CreateAction(a Action) (Action, error) {
	err := s.writeTx(func(tx *sql.Tx) error {
		ok, err := thoughtExists(tx, a.ThoughtID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		a, err = s.insertAction(tx, a)
		return err
	})
	return a, err
}

func (s *Store) insertAction(q querier, a Action) (Action, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Priority == "" {
		a.Priority = actions.PriorityMedium
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	now := s.now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = a.CreatedAt
	_, err := q.Exec(`INSERT INTO actions (id, thought_id, content, priority, due_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ThoughtID, a.Content, a.Priority, a.DueDate, a.Status,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	if err != nil {
		return Action{}, fmt.Errorf("inserting action: %w", err)
	}
	return a, nil
}

const actionColumns = `id, thought_id, content, priority, due_date, status, created_at, updated_at`

func (s *Store) GetAction(id string) (Action, error) {
	a, err := scanAction(s.db.QueryRow(`SELECT `+actionColumns+` FROM actions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Action{}, ErrNotFound
	}
	return a, err
}

// ActionsFor returns the actions owned by a thought in creation order.
func (s *Store) ActionsFor(thoughtID string) ([]Action, error) {
	rows, err := s.db.Query(`SELECT `+actionColumns+` FROM actions WHERE thought_id = ? ORDER BY created_at, rowid`, thoughtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateActionStatus sets an action to pending, completed or dismissed.
func (s *Store) UpdateActionStatus(id, status string) (Action, error) {
	switch status {
	case StatusPending, StatusCompleted, StatusDismissed:
	default:
		return Action{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	res, err := s.db.Exec(`UPDATE actions SET status = ?, updated_at = ? WHERE id = ?`, status, s.timestamp(), id)
	if err != nil {
		return Action{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Action{}, err
	}
	if n == 0 {
		return Action{}, ErrNotFound
	}
	return s.GetAction(id)
}

func scanAction(row scanner) (Action, error) {
	var a Action
	var due sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&a.ID, &a.ThoughtID, &a.Content, &a.Priority, &due, &a.Status, &createdAt, &updatedAt); err != nil {
		return Action{}, err
	}
	if due.Valid {
		a.DueDate = &due.String
	}
	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return Action{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Action{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return a, nil
}

// --- Reflections ---

// CreateReflection stores a reflection and associates it with thoughtIDs.
func (s *Store) CreateReflection(r Reflection, thoughtIDs []string) (Reflection, error) {
	err := s.writeTx(func(tx *sql.Tx) error {
		var err error
		r, err = s.insertReflection(tx, r, thoughtIDs)
		return err
	})
	return r, err
}

func (s *Store) insertReflection(q querier, r Reflection, thoughtIDs []string) (Reflection, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	if _, err := q.Exec(`INSERT INTO reflections (id, type, content, created_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.Type, r.Content, formatTime(r.CreatedAt)); err != nil {
		return Reflection{}, fmt.Errorf("inserting reflection: %w", err)
	}
	for _, id := range thoughtIDs {
		if _, err := q.Exec(`INSERT INTO reflection_thoughts (reflection_id, thought_id) VALUES (?, ?)
			ON CONFLICT DO NOTHING`, r.ID, id); err != nil {
			return Reflection{}, fmt.Errorf("associating reflection with %s: %w", id, err)
		}
	}
	return r, nil
}

func (s *Store) GetReflection(id string) (Reflection, error) {
	var r Reflection
	var createdAt string
	err := s.db.QueryRow(`SELECT id, type, content, created_at FROM reflections WHERE id = ?`, id).
		Scan(&r.ID, &r.Type, &r.Content, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Reflection{}, ErrNotFound
	}
	if err != nil {
		return Reflection{}, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return Reflection{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return r, nil
}

// ReflectionsFor returns the reflections associated with a thought.
func (s *Store) ReflectionsFor(thoughtID string) ([]Reflection, error) {
	rows, err := s.db.Query(`SELECT r.id, r.type, r.content, r.created_at FROM reflections r
		JOIN reflection_thoughts rt ON rt.reflection_id = r.id
		WHERE rt.thought_id = ? ORDER BY r.created_at, r.rowid`, thoughtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reflection
	for rows.Next() {
		var r Reflection
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Type, &r.Content, &createdAt); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
