// Package capture is the write path: it turns raw input into persisted,
// enriched thoughts.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/mirror/internal/extract"
	"github.com/kalambet/mirror/internal/importer"
	"github.com/kalambet/mirror/internal/linker"
	"github.com/kalambet/mirror/internal/memory"
	"github.com/kalambet/mirror/internal/pipeline"
	"github.com/kalambet/mirror/internal/storage"
	"github.com/kalambet/mirror/internal/tagger"
)

var (
	// ErrEmptyContent is returned when there is nothing to capture.
	ErrEmptyContent = errors.New("content is empty")
	// ErrInvalidSource is returned for an unknown thought source.
	ErrInvalidSource = errors.New("invalid thought source")
	// ErrExtraction wraps document extraction and transcription failures.
	// The caller should discard the uploaded artifact.
	ErrExtraction = errors.New("extraction failed")
	// ErrNoTranscriber is returned for voice input when no transcriber is set.
	ErrNoTranscriber = errors.New("no transcriber configured")
	// ErrSearchUnavailable is returned by Search when no memory index is set.
	ErrSearchUnavailable = errors.New("memory search is not configured")
)

// Enricher runs the enrichment stages over content.
type Enricher interface {
	Process(ctx context.Context, content string, existing []linker.Candidate) (pipeline.Result, error)
}

// Memory is the subset of the memory index used by the write path.
type Memory interface {
	Put(ctx context.Context, id, content string, metadata map[string]any) error
	Search(ctx context.Context, query, userID string, limit int) ([]memory.Hit, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Config tunes candidate selection.
type Config struct {
	// LinkCandidates caps the existing thoughts offered to the linker.
	LinkCandidates int
	// MemoryTopK is how many memory hits are merged into the candidates.
	MemoryTopK int
}

// Deps are the collaborators of a Service. Memory and Transcriber are optional.
type Deps struct {
	Store       *storage.Store
	Enricher    Enricher
	Memory      Memory
	Extractor   *extract.Extractor
	Transcriber extract.Transcriber
	Logger      *slog.Logger
}

// Service captures thoughts, documents and conversation imports.
type Service struct {
	cfg  Config
	deps Deps
	log  *slog.Logger
}

// New creates a Service. Zero config values get defaults of 20 candidates
// and 5 memory hits.
func New(cfg Config, deps Deps) *Service {
	if cfg.LinkCandidates <= 0 {
		cfg.LinkCandidates = 20
	}
	if cfg.MemoryTopK <= 0 {
		cfg.MemoryTopK = memory.DefaultLimit
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.New()
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{cfg: cfg, deps: deps, log: log}
}

// Input is a thought to capture.
type Input struct {
	Content      string
	Source       string
	AudioFile    string
	DocumentFile string
	Metadata     map[string]any
}

var validSources = map[string]bool{
	storage.SourceTextNote:  true,
	storage.SourceVoiceNote: true,
	storage.SourceDocument:  true,
}

// CaptureText enriches in.Content against existing thoughts and persists
// the thought with its tags, actions, links and reflections in one
// transaction.
func (s *Service) CaptureText(ctx context.Context, in Input) (storage.Enriched, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return storage.Enriched{}, ErrEmptyContent
	}
	if in.Source == "" {
		in.Source = storage.SourceTextNote
	}
	if !validSources[in.Source] {
		return storage.Enriched{}, fmt.Errorf("%w: %q", ErrInvalidSource, in.Source)
	}

	meta := make(map[string]any, len(in.Metadata)+1)
	for k, v := range in.Metadata {
		meta[k] = v
	}
	meta["source_type"] = in.Source

	candidates, err := s.candidates(ctx, content, "")
	if err != nil {
		return storage.Enriched{}, err
	}
	res, err := s.deps.Enricher.Process(ctx, content, candidates)
	if err != nil {
		return storage.Enriched{}, fmt.Errorf("enriching thought: %w", err)
	}

	out, err := s.deps.Store.SaveEnriched(storage.Thought{
		Content:      content,
		Source:       in.Source,
		AudioFile:    in.AudioFile,
		DocumentFile: in.DocumentFile,
		Metadata:     meta,
	}, EnrichmentFrom(res))
	if err != nil {
		return storage.Enriched{}, fmt.Errorf("saving thought: %w", err)
	}

	s.remember(ctx, out.Thought)
	s.log.Info("thought captured",
		"id", out.Thought.ID,
		"source", out.Thought.Source,
		"tags", len(out.Tags),
		"links", len(out.Links),
		"actions", len(out.Actions),
	)
	return out, nil
}

// CaptureVoice transcribes audio and captures it as a voice note.
func (s *Service) CaptureVoice(ctx context.Context, filename string, audio []byte) (storage.Enriched, error) {
	if s.deps.Transcriber == nil {
		return storage.Enriched{}, ErrNoTranscriber
	}
	text, err := s.deps.Transcriber.Transcribe(ctx, filename, audio)
	if err != nil {
		return storage.Enriched{}, fmt.Errorf("%w: transcribing %s: %w", ErrExtraction, filename, err)
	}
	return s.CaptureText(ctx, Input{
		Content:   text,
		Source:    storage.SourceVoiceNote,
		AudioFile: filename,
		Metadata:  map[string]any{"audio_file": filename},
	})
}

// CaptureDocument extracts text from an uploaded document and captures it.
func (s *Service) CaptureDocument(ctx context.Context, filename string, data []byte) (storage.Enriched, error) {
	res := s.deps.Extractor.Extract(ctx, filename, data)
	if res.Failed() {
		return storage.Enriched{}, fmt.Errorf("%w: %s: %s", ErrExtraction, filename, res.Error)
	}

	meta := map[string]any{"format": res.Metadata.Format}
	if res.Metadata.Title != "" {
		meta["title"] = res.Metadata.Title
	}
	if res.Metadata.Language != "" {
		meta["language"] = res.Metadata.Language
	}
	if res.Metadata.PageCount > 0 {
		meta["page_count"] = res.Metadata.PageCount
	}
	return s.CaptureText(ctx, Input{
		Content:      res.Text,
		Source:       storage.SourceDocument,
		DocumentFile: filename,
		Metadata:     meta,
	})
}

// ImportConversation parses an exported conversation and stores one thought
// per message. Enrichment of those thoughts is queued as jobs.
func (s *Service) ImportConversation(ctx context.Context, provider, format, filename string, data []byte) (storage.Conversation, []storage.Thought, error) {
	conv, err := importer.Parse(provider, format, data)
	if err != nil {
		return storage.Conversation{}, nil, err
	}
	if len(conv.Segments) == 0 {
		return storage.Conversation{}, nil, fmt.Errorf("%w: no messages found", importer.ErrMalformed)
	}

	segs := make([]storage.Segment, len(conv.Segments))
	for i, seg := range conv.Segments {
		segs[i] = storage.Segment{Role: seg.Role, Content: seg.Content, Timestamp: seg.Timestamp}
	}
	saved, thoughts, err := s.deps.Store.CreateConversation(storage.Conversation{
		Provider:     conv.Provider,
		Format:       conv.Format,
		OriginalFile: filename,
		Metadata:     conv.Metadata,
	}, segs)
	if err != nil {
		return storage.Conversation{}, nil, fmt.Errorf("saving conversation: %w", err)
	}

	s.log.Info("conversation imported", "id", saved.ID, "provider", saved.Provider, "messages", len(thoughts))
	return saved, thoughts, nil
}

// EnrichThought enriches an already stored thought, as queued by imports.
func (s *Service) EnrichThought(ctx context.Context, thoughtID string) (storage.Enriched, error) {
	t, err := s.deps.Store.GetThought(thoughtID)
	if err != nil {
		return storage.Enriched{}, fmt.Errorf("loading thought %s: %w", thoughtID, err)
	}

	candidates, err := s.candidates(ctx, t.Content, t.ID)
	if err != nil {
		return storage.Enriched{}, err
	}
	res, err := s.deps.Enricher.Process(ctx, t.Content, candidates)
	if err != nil {
		return storage.Enriched{}, fmt.Errorf("enriching thought %s: %w", thoughtID, err)
	}

	out, err := s.deps.Store.ApplyEnrichment(thoughtID, EnrichmentFrom(res))
	if err != nil {
		return storage.Enriched{}, fmt.Errorf("applying enrichment to %s: %w", thoughtID, err)
	}
	s.remember(ctx, out.Thought)
	return out, nil
}

// AddTags attaches custom tags by name. added holds only the names that
// were not already attached.
func (s *Service) AddTags(ctx context.Context, thoughtID string, names []string) (added, all []string, err error) {
	tags := make([]storage.TagInput, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			tags = append(tags, storage.TagInput{Name: n, Type: tagger.TypeCustom, Confidence: 1.0})
		}
	}
	return s.deps.Store.AttachTags(thoughtID, tags)
}

// DeleteThought removes a thought, its owned rows and its memory entry.
func (s *Service) DeleteThought(ctx context.Context, thoughtID string) error {
	if err := s.deps.Store.DeleteThought(thoughtID); err != nil {
		return err
	}
	s.forget(ctx, thoughtID)
	return nil
}

// DeleteConversation removes an import and every thought created from it.
func (s *Service) DeleteConversation(ctx context.Context, id string) ([]string, error) {
	ids, err := s.deps.Store.DeleteConversation(id)
	if err != nil {
		return nil, err
	}
	for _, tid := range ids {
		s.forget(ctx, tid)
	}
	return ids, nil
}

// Search returns the stored thoughts whose memories best match query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]storage.Thought, error) {
	if s.deps.Memory == nil {
		return nil, ErrSearchUnavailable
	}
	hits, err := s.deps.Memory.Search(ctx, query, "", limit)
	if err != nil {
		return nil, fmt.Errorf("searching memory: %w", err)
	}
	out := make([]storage.Thought, 0, len(hits))
	for _, h := range hits {
		t, err := s.deps.Store.GetThought(h.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// remember indexes a thought in memory. Failures are logged only.
func (s *Service) remember(ctx context.Context, t storage.Thought) {
	if s.deps.Memory == nil {
		return
	}
	meta := map[string]any{"thought_id": t.ID, "source": t.Source}
	if err := s.deps.Memory.Put(ctx, t.ID, t.Content, meta); err != nil {
		s.log.Warn("memory indexing failed", "thought_id", t.ID, "error", err)
	}
}

func (s *Service) forget(ctx context.Context, thoughtID string) {
	if s.deps.Memory == nil {
		return
	}
	if _, err := s.deps.Memory.Delete(ctx, thoughtID); err != nil {
		s.log.Warn("memory delete failed", "thought_id", thoughtID, "error", err)
	}
}
