package storage

import (
	"database/sql"
	"fmt"
)

// Enriched is a thought together with everything written for it.
type Enriched struct {
	Thought     Thought      `json:"thought"`
	Tags        []string     `json:"tags"`
	Actions     []Action     `json:"actions"`
	Links       []Link       `json:"links"`
	Reflections []Reflection `json:"reflections,omitempty"`
}

// SaveEnriched creates a thought and writes its enrichment in one
// transaction. Nothing is persisted if any part fails.
func (s *Store) SaveEnriched(t Thought, e Enrichment) (Enriched, error) {
	var out Enriched
	err := s.writeTx(func(tx *sql.Tx) error {
		if e.Summary != "" {
			t.Summary = e.Summary
		}
		var err error
		if t, err = s.insertThought(tx, t); err != nil {
			return err
		}
		out, err = s.applyEnrichment(tx, t, e)
		return err
	})
	if err != nil {
		return Enriched{}, err
	}
	return out, nil
}

// ApplyEnrichment writes an enrichment for an existing thought in one
// transaction. A thought is enriched at most once; a second call returns
// ErrAlreadyEnriched and writes nothing.
func (s *Store) ApplyEnrichment(thoughtID string, e Enrichment) (Enriched, error) {
	var out Enriched
	err := s.writeTx(func(tx *sql.Tx) error {
		t, err := scanThought(tx.QueryRow(`SELECT `+thoughtColumns+` FROM thoughts t WHERE t.id = ?`, thoughtID))
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var enrichedAt sql.NullString
		if err := tx.QueryRow(`SELECT enriched_at FROM thoughts WHERE id = ?`, thoughtID).Scan(&enrichedAt); err != nil {
			return err
		}
		if enrichedAt.Valid {
			return ErrAlreadyEnriched
		}
		if e.Summary != "" {
			if err := s.updateSummary(tx, thoughtID, e.Summary); err != nil {
				return err
			}
			t.Summary = e.Summary
		}
		out, err = s.applyEnrichment(tx, t, e)
		return err
	})
	if err != nil {
		return Enriched{}, err
	}
	return out, nil
}

// applyEnrichment writes e for t and marks t enriched. Link drafts whose
// target no longer exists are dropped.
func (s *Store) applyEnrichment(tx *sql.Tx, t Thought, e Enrichment) (Enriched, error) {
	out := Enriched{Thought: t}

	if _, err := tx.Exec(`UPDATE thoughts SET enriched_at = ? WHERE id = ?`, s.timestamp(), t.ID); err != nil {
		return Enriched{}, fmt.Errorf("marking thought enriched: %w", err)
	}

	if _, err := s.attachTags(tx, t.ID, e.Tags); err != nil {
		return Enriched{}, err
	}
	names, err := tagNames(tx, t.ID)
	if err != nil {
		return Enriched{}, err
	}
	out.Tags = names

	for _, a := range e.Actions {
		a.ThoughtID = t.ID
		saved, err := s.insertAction(tx, a)
		if err != nil {
			return Enriched{}, err
		}
		out.Actions = append(out.Actions, saved)
	}

	for _, l := range e.Links {
		l.SourceThoughtID = t.ID
		exists, err := thoughtExists(tx, l.TargetThoughtID)
		if err != nil {
			return Enriched{}, err
		}
		if !exists {
			// Deleted after it was offered as a candidate.
			continue
		}
		saved, err := s.insertLink(tx, l)
		if err != nil {
			return Enriched{}, fmt.Errorf("link to %s: %w", l.TargetThoughtID, err)
		}
		out.Links = append(out.Links, saved)
	}

	for _, r := range e.Reflections {
		saved, err := s.insertReflection(tx, r, []string{t.ID})
		if err != nil {
			return Enriched{}, err
		}
		out.Reflections = append(out.Reflections, saved)
	}
	return out, nil
}
