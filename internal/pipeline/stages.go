package pipeline

import (
	"context"
	"slices"

	"github.com/kalambet/mirror/internal/actions"
	"github.com/kalambet/mirror/internal/linker"
	"github.com/kalambet/mirror/internal/reflection"
	"github.com/kalambet/mirror/internal/tagger"
)

func (e *Enricher) tagStage(ctx context.Context, in input) (func(*Result), error, error) {
	tags := tagger.Extract(in.content)

	var degraded error
	if e.narrativeEnabled() {
		text, err := e.narrate(ctx, tagSystemPrompt, tagger.Prompt(in.content))
		if err != nil {
			degraded = err
		} else {
			tags = mergeTags(tags, tagger.ExtractFromAgentText(text))
		}
	}
	return func(r *Result) { r.Tags = tags }, degraded, nil
}

func (e *Enricher) linkStage(ctx context.Context, in input) (func(*Result), error, error) {
	links := linker.Resolve(in.content, in.existing)

	var degraded error
	if e.narrativeEnabled() {
		text, err := e.narrate(ctx, linkSystemPrompt, linker.Prompt(in.content, in.existing))
		if err != nil {
			degraded = err
		} else {
			links = mergeLinks(links, linker.ExtractFromAgentText(text, in.existing))
		}
	}
	return func(r *Result) { r.Links = links }, degraded, nil
}

func (e *Enricher) reflectionStage(ctx context.Context, in input) (func(*Result), error, error) {
	out := reflection.Reflect(in.content)

	var insight string
	var degraded error
	if e.narrativeEnabled() {
		related := make([]string, len(in.existing))
		for i, c := range in.existing {
			related[i] = c.Content
		}
		text, err := e.narrate(ctx, reflectionSystemPrompt, reflection.NarrativePrompt(in.content, related))
		if err != nil {
			degraded = err
		} else {
			insight = reflection.ParseNarrative(text).Reflection
		}
	}
	return func(r *Result) {
		r.Reflection = out.Reflection
		r.Summary = out.Summary
		r.Insight = insight
	}, degraded, nil
}

func (e *Enricher) actionStage(ctx context.Context, in input) (func(*Result), error, error) {
	found := actions.Extract(in.content)

	var degraded error
	if e.narrativeEnabled() {
		text, err := e.narrate(ctx, actionSystemPrompt, actions.Prompt(in.content))
		if err != nil {
			degraded = err
		} else {
			found = append(found, actions.ExtractFromAgentText(text)...)
		}
	}
	return func(r *Result) { r.Actions = found }, degraded, nil
}

// mergeTags adds narrative tags whose names are not already present.
func mergeTags(base, extra []tagger.Draft) []tagger.Draft {
	seen := make(map[string]struct{}, len(base))
	for _, t := range base {
		seen[t.Name] = struct{}{}
	}
	for _, t := range extra {
		if _, ok := seen[t.Name]; ok || t.Name == "" {
			continue
		}
		seen[t.Name] = struct{}{}
		base = append(base, t)
	}
	return base
}

// mergeLinks adds narrative links to thoughts not already linked, then
// keeps the strongest linker.MaxLinks.
func mergeLinks(base, extra []linker.Draft) []linker.Draft {
	seen := make(map[string]struct{}, len(base))
	for _, l := range base {
		seen[l.ThoughtID] = struct{}{}
	}
	for _, l := range extra {
		if _, ok := seen[l.ThoughtID]; ok {
			continue
		}
		seen[l.ThoughtID] = struct{}{}
		base = append(base, l)
	}
	slices.SortStableFunc(base, func(a, b linker.Draft) int {
		switch {
		case a.Strength > b.Strength:
			return -1
		case a.Strength < b.Strength:
			return 1
		}
		return 0
	})
	if len(base) > linker.MaxLinks {
		base = base[:linker.MaxLinks]
	}
	return base
}
