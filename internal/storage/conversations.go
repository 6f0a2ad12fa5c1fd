package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CreateConversation stores an imported conversation, one thought per
// segment, and an enrichment job per thought, all in one transaction.
func (s *Store) CreateConversation(c Conversation, segments []Segment) (Conversation, []Thought, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.ImportedAt.IsZero() {
		c.ImportedAt = s.now().UTC()
	}
	meta, err := encodeMetadata(c.Metadata)
	if err != nil {
		return Conversation{}, nil, err
	}

	var thoughts []Thought
	err = s.writeTx(func(tx *sql.Tx) error {
		thoughts = thoughts[:0]
		if _, err := tx.Exec(`INSERT INTO conversations (id, provider, format, original_file, metadata_json, imported_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.Provider, c.Format, c.OriginalFile, meta, formatTime(c.ImportedAt)); err != nil {
			return fmt.Errorf("inserting conversation: %w", err)
		}

		source := ImportSource(c.Provider)
		for i, seg := range segments {
			t, err := s.insertThought(tx, Thought{
				Content:   seg.Content,
				Source:    source,
				CreatedAt: seg.Timestamp,
				Metadata: map[string]any{
					"role":            seg.Role,
					"source":          c.Provider,
					"format":          c.Format,
					"conversation_id": c.ID,
				},
			})
			if err != nil {
				return fmt.Errorf("segment %d: %w", i, err)
			}
			if _, err := tx.Exec(`INSERT INTO conversation_thoughts (conversation_id, thought_id, segment_index, role)
				VALUES (?, ?, ?, ?)`, c.ID, t.ID, i, seg.Role); err != nil {
				return fmt.Errorf("segment %d: %w", i, err)
			}

			payload, err := json.Marshal(EnrichThoughtPayload{ThoughtID: t.ID})
			if err != nil {
				return err
			}
			if err := s.enqueueJob(tx, Job{Type: JobEnrichThought, PayloadJSON: string(payload)}); err != nil {
				return fmt.Errorf("segment %d: %w", i, err)
			}
			thoughts = append(thoughts, t)
		}
		return nil
	})
	if err != nil {
		return Conversation{}, nil, err
	}
	return c, thoughts, nil
}

func (s *Store) GetConversation(id string) (Conversation, error) {
	var c Conversation
	var meta, importedAt string
	err := s.db.QueryRow(`SELECT id, provider, format, original_file, metadata_json, imported_at
		FROM conversations WHERE id = ?`, id).Scan(&c.ID, &c.Provider, &c.Format, &c.OriginalFile, &meta, &importedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	if c.Metadata, err = decodeMetadata(meta); err != nil {
		return Conversation{}, err
	}
	if c.ImportedAt, err = parseTime(importedAt); err != nil {
		return Conversation{}, fmt.Errorf("parsing imported_at: %w", err)
	}
	return c, nil
}

// ConversationThoughts returns the member thoughts in segment order.
func (s *Store) ConversationThoughts(conversationID string) ([]ConversationThought, error) {
	rows, err := s.db.Query(`SELECT `+thoughtColumns+`, ct.segment_index, ct.role
		FROM conversation_thoughts ct JOIN thoughts t ON t.id = ct.thought_id
		WHERE ct.conversation_id = ? ORDER BY ct.segment_index`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ConversationThought
	for rows.Next() {
		var ct ConversationThought
		var meta, createdAt, updatedAt string
		if err := rows.Scan(&ct.ID, &ct.Content, &ct.Source, &ct.Summary, &ct.AudioFile, &ct.DocumentFile,
			&meta, &createdAt, &updatedAt, &ct.SegmentIndex, &ct.Role); err != nil {
			return nil, err
		}
		if ct.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, err
		}
		if ct.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if ct.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

// DeleteConversation removes a conversation and its member thoughts, which
// cascades to their actions, links and associations. It returns the ids of
// the deleted thoughts.
func (s *Store) DeleteConversation(id string) ([]string, error) {
	var ids []string
	err := s.writeTx(func(tx *sql.Tx) error {
		ids = ids[:0]
		rows, err := tx.Query(`SELECT thought_id FROM conversation_thoughts WHERE conversation_id = ? ORDER BY segment_index`, id)
		if err != nil {
			return err
		}
		for rows.Next() {
			var tid string
			if err := rows.Scan(&tid); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, tid)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if len(ids) > 0 {
			args := make([]any, len(ids))
			for i, tid := range ids {
				args[i] = tid
			}
			if _, err := tx.Exec(`DELETE FROM thoughts WHERE id IN (`+placeholders(len(ids))+`)`, args...); err != nil {
				return fmt.Errorf("deleting conversation thoughts: %w", err)
			}
		}

		res, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id)
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
	if err != nil {
		return nil, err
	}
	return ids, nil
}
