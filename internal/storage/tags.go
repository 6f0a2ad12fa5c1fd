package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kalambet/mirror/internal/tagger"
)

// AttachTags upserts tags by name and attaches them to a thought. It
// returns the names newly attached by this call and every tag name the
// thought carries afterwards. Re-attaching a tag is a no-op.
func (s *Store) AttachTags(thoughtID string, tags []TagInput) (added, all []string, err error) {
	err = s.writeTx(func(tx *sql.Tx) error {
		ok, err := thoughtExists(tx, thoughtID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		if added, err = s.attachTags(tx, thoughtID, tags); err != nil {
			return err
		}
		all, err = tagNames(tx, thoughtID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return added, all, nil
}

func (s *Store) attachTags(q querier, thoughtID string, tags []TagInput) ([]string, error) {
	added := []string{}
	now := s.timestamp()
	for _, in := range tags {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			continue
		}
		typ := in.Type
		if typ == "" {
			typ = tagger.TypeCustom
		}
		conf := in.Confidence
		if conf == 0 {
			conf = 1.0
		}

		tag, err := upsertTag(q, name, typ, now)
		if err != nil {
			return nil, err
		}
		res, err := q.Exec(`INSERT INTO thought_tags (thought_id, tag_id, confidence, created_at)
			VALUES (?, ?, ?, ?) ON CONFLICT (thought_id, tag_id) DO NOTHING`,
			thoughtID, tag.ID, conf, now)
		if err != nil {
			return nil, fmt.Errorf("attaching tag %q: %w", name, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return nil, err
		} else if n == 1 {
			added = append(added, tag.Name)
		}
	}
	return added, nil
}

// upsertTag returns the tag with the given name, creating it if needed.
// The unique NOCASE index makes the first stored spelling canonical.
func upsertTag(q querier, name, typ, now string) (Tag, error) {
	if _, err := q.Exec(`INSERT INTO tags (id, name, type, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO NOTHING`, uuid.NewString(), name, typ, now); err != nil {
		return Tag{}, fmt.Errorf("upserting tag %q: %w", name, err)
	}
	var t Tag
	if err := q.QueryRow(`SELECT id, name, type FROM tags WHERE name = ?`, name).Scan(&t.ID, &t.Name, &t.Type); err != nil {
		return Tag{}, fmt.Errorf("loading tag %q: %w", name, err)
	}
	return t, nil
}

func tagNames(q querier, thoughtID string) ([]string, error) {
	rows, err := q.Query(`SELECT g.name FROM thought_tags tt JOIN tags g ON g.id = tt.tag_id
		WHERE tt.thought_id = ? ORDER BY tt.rowid`, thoughtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// TagsFor returns the tags attached to a thought in attachment order.
func (s *Store) TagsFor(thoughtID string) ([]ThoughtTag, error) {
	rows, err := s.db.Query(`SELECT g.id, g.name, g.type, tt.confidence
		FROM thought_tags tt JOIN tags g ON g.id = tt.tag_id
		WHERE tt.thought_id = ? ORDER BY tt.rowid`, thoughtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ThoughtTag
	for rows.Next() {
		var t ThoughtTag
		if err := rows.Scan(&t.ID, &t.Name, &t.Type, &t.Confidence); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetTag(name string) (Tag, error) {
	var t Tag
	err := s.db.QueryRow(`SELECT id, name, type FROM tags WHERE name = ?`, strings.TrimSpace(name)).Scan(&t.ID, &t.Name, &t.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return Tag{}, ErrNotFound
	}
	return t, err
}

// ListTags returns every tag with the number of thoughts carrying it.
func (s *Store) ListTags() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT g.name, COUNT(tt.thought_id) FROM tags g
		LEFT JOIN thought_tags tt ON tt.tag_id = g.id GROUP BY g.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, rows.Err()
}
