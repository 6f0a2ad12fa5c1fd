// Package memory is the indexed memory service: content is embedded and kept
// in the memory_vectors table, and searched by cosine similarity.
package memory

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/mirror/internal/llm"
)

// DefaultLimit is used when Search is called with a non-positive limit.
const DefaultLimit = 5

// DefaultUserID scopes memories when no user is given.
const DefaultUserID = "default_user"

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Hit is a memory returned by Search.
type Hit struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Score     float32        `json:"score"`
	CreatedAt time.Time      `json:"created_at"`
}

// Index stores and searches memories for one default user.
type Index struct {
	db       *sql.DB
	embedder llm.Embedder
	userID   string
}

// NewIndex wraps db, which must already carry the memory_vectors table.
func NewIndex(db *sql.DB, embedder llm.Embedder, userID string) *Index {
	if userID == "" {
		userID = DefaultUserID
	}
	return &Index{db: db, embedder: embedder, userID: userID}
}

// Add embeds content and stores it under a new id.
func (x *Index) Add(ctx context.Context, content string, metadata map[string]any) (string, error) {
	id := uuid.New().String()
	if err := x.Put(ctx, id, content, metadata); err != nil {
		return "", err
	}
	return id, nil
}

// Put embeds content and stores it under id, replacing any previous entry.
func (x *Index) Put(ctx context.Context, id, content string, metadata map[string]any) error {
	vec, err := x.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embedding memory: %w", err)
	}
	meta := "{}"
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		meta = string(b)
	}

	_, err = x.db.ExecContext(ctx, `
		INSERT INTO memory_vectors (id, user_id, content, metadata_json, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			metadata_json = excluded.metadata_json,
			embedding = excluded.embedding`,
		id, x.userID, content, meta, encodeFloat32s(vec), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("inserting memory %s: %w", id, err)
	}
	return nil
}

// Search returns up to limit memories of userID (the index default when
// empty) most similar to query, best first.
func (x *Index) Search(ctx context.Context, query, userID string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if userID == "" {
		userID = x.userID
	}

	vec, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	queryNorm := norm(vec)
	if queryNorm == 0 {
		return nil, nil
	}

	rows, err := x.db.QueryContext(ctx, `SELECT id, embedding FROM memory_vectors WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	h := &scoreHeap{}
	var buf []float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}
		score := cosine(vec, buf, queryNorm)
		if h.Len() < limit {
			heap.Push(h, idScore{id: id, score: score})
		} else if score > (*h)[0].score {
			(*h)[0] = idScore{id: id, score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	rows.Close()

	hits := make([]Hit, 0, h.Len())
	for _, c := range *h {
		hit, err := x.load(ctx, c.id)
		if err != nil {
			return nil, err
		}
		hit.Score = c.score
		hits = append(hits, hit)
	}
	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return hits, nil
}

func (x *Index) load(ctx context.Context, id string) (Hit, error) {
	var hit Hit
	var meta, createdAt string
	err := x.db.QueryRowContext(ctx,
		`SELECT id, content, metadata_json, created_at FROM memory_vectors WHERE id = ?`, id,
	).Scan(&hit.ID, &hit.Content, &meta, &createdAt)
	if err != nil {
		return Hit{}, fmt.Errorf("loading memory %s: %w", id, err)
	}
	if meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &hit.Metadata); err != nil {
			return Hit{}, fmt.Errorf("decoding metadata for %s: %w", id, err)
		}
	}
	hit.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return Hit{}, fmt.Errorf("parsing created_at for %s: %w", id, err)
	}
	return hit, nil
}

// Delete removes a memory. It reports false when id was not stored.
func (x *Index) Delete(ctx context.Context, id string) (bool, error) {
	res, err := x.db.ExecContext(ctx, `DELETE FROM memory_vectors WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting memory %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Count returns the number of stored memories across users.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_vectors`).Scan(&n)
	return n, err
}
