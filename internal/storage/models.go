package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidLink is returned for links with unknown endpoints, an unknown
	// relationship or a strength outside [0, 1].
	ErrInvalidLink = errors.New("invalid link")
	// ErrSelfLink is returned when a link's source and target are the same thought.
	ErrSelfLink = errors.New("thought cannot link to itself")
	// ErrAlreadyEnriched is returned by ApplyEnrichment for a thought whose
	// enrichment was already written.
	ErrAlreadyEnriched = errors.New("thought already enriched")
	// ErrInvalidStatus is returned for an unknown action status.
	ErrInvalidStatus = errors.New("invalid action status")
)

// Thought sources.
const (
	SourceTextNote  = "text_note"
	SourceVoiceNote = "voice_note"
	SourceDocument  = "document"
)

// ImportSource returns the thought source for a conversation provider.
func ImportSource(provider string) string { return "import_" + provider }

// Action statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusDismissed = "dismissed"
)

type Thought struct {
	ID           string         `json:"id"`
	Content      string         `json:"content"`
	Source       string         `json:"source"`
	Summary      string         `json:"summary,omitempty"`
	AudioFile    string         `json:"audio_file,omitempty"`
	DocumentFile string         `json:"document_file,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// ThoughtTag is a tag as attached to one thought.
type ThoughtTag struct {
	Tag
	Confidence float64 `json:"confidence"`
}

// TagInput is a tag to attach by name.
type TagInput struct {
	Name       string
	Type       string
	Confidence float64
}

type Link struct {
	ID              string    `json:"id"`
	SourceThoughtID string    `json:"source_thought_id"`
	TargetThoughtID string    `json:"target_thought_id"`
	Relationship    string    `json:"relationship"`
	Strength        float64   `json:"strength"`
	CreatedAt       time.Time `json:"created_at"`
}

type Action struct {
	ID        string    `json:"id"`
	ThoughtID string    `json:"thought_id"`
	Content   string    `json:"content"`
	Priority  string    `json:"priority"`
	DueDate   *string   `json:"due_date"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Reflection struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Enrichment is everything derived for one thought. It is written in a
// single transaction.
type Enrichment struct {
	Summary     string
	Tags        []TagInput
	Actions     []Action
	Links       []Link
	Reflections []Reflection
}

type Conversation struct {
	ID           string         `json:"id"`
	Provider     string         `json:"provider"`
	Format       string         `json:"format"`
	OriginalFile string         `json:"original_file,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ImportedAt   time.Time      `json:"imported_at"`
}

// Segment is one message of an imported conversation.
type Segment struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// ConversationThought is a member thought with its position in the conversation.
type ConversationThought struct {
	Thought
	SegmentIndex int    `json:"segment_index"`
	Role         string `json:"role"`
}

// Job types.
const (
	JobEnrichThought = "enrich_thought"
)

// EnrichThoughtPayload is the payload of a JobEnrichThought job.
type EnrichThoughtPayload struct {
	ThoughtID string `json:"thought_id"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
