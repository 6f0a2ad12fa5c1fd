package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/mirror/internal/linker"
	"github.com/kalambet/mirror/internal/pipeline"
	"github.com/kalambet/mirror/internal/reflection"
	"github.com/kalambet/mirror/internal/storage"
)

// candidates returns recent thoughts followed by memory hits, without
// duplicates or exclude, capped at LinkCandidates.
func (s *Service) candidates(ctx context.Context, content, exclude string) ([]linker.Candidate, error) {
	recent, err := s.deps.Store.RecentThoughts(s.cfg.LinkCandidates + 1)
	if err != nil {
		return nil, fmt.Errorf("loading recent thoughts: %w", err)
	}

	seen := map[string]struct{}{exclude: {}}
	var out []linker.Candidate
	add := func(id, text string) {
		if _, ok := seen[id]; ok || len(out) >= s.cfg.LinkCandidates {
			return
		}
		seen[id] = struct{}{}
		out = append(out, linker.Candidate{ID: id, Content: text})
	}
	for _, t := range recent {
		add(t.ID, t.Content)
	}

	if s.deps.Memory == nil {
		return out, nil
	}
	hits, err := s.deps.Memory.Search(ctx, content, "", s.cfg.MemoryTopK)
	if err != nil {
		s.log.Warn("memory search failed, using recent thoughts only", "error", err)
		return out, nil
	}
	for _, h := range hits {
		if _, ok := seen[h.ID]; ok {
			continue
		}
		// Stale memories would fail the link insert.
		t, err := s.deps.Store.GetThought(h.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		add(t.ID, t.Content)
	}
	return out, nil
}

// EnrichmentFrom converts a pipeline result into the store's write model.
// The heuristic reflection is kept as an insight and the narrative one, when
// present, as a pattern.
func EnrichmentFrom(res pipeline.Result) storage.Enrichment {
	e := storage.Enrichment{Summary: res.Summary}

	for _, t := range res.Tags {
		e.Tags = append(e.Tags, storage.TagInput{Name: t.Name, Type: t.Type, Confidence: t.Confidence})
	}
	for _, a := range res.Actions {
		e.Actions = append(e.Actions, storage.Action{Content: a.Content, Priority: a.Priority, DueDate: a.DueDate})
	}
	for _, l := range res.Links {
		e.Links = append(e.Links, storage.Link{TargetThoughtID: l.ThoughtID, Relationship: l.Relationship, Strength: l.Strength})
	}
	if res.Reflection != "" {
		e.Reflections = append(e.Reflections, storage.Reflection{Type: reflection.TypeInsight, Content: res.Reflection})
	}
	if res.Insight != "" {
		e.Reflections = append(e.Reflections, storage.Reflection{Type: reflection.TypePattern, Content: res.Insight})
	}
	return e
}
