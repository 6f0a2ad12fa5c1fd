package pipeline

import (
	"context"
	"fmt"
)

const (
	tagSystemPrompt = `You tag thoughts in a personal thought journal.
Identify topics, emotions, projects, people, places, temporal references and priority indicators.
Answer with one line per tag in the form: Tag: <name>, Confidence: <0.xx>`

	linkSystemPrompt = `You find relationships between a new thought and existing thoughts.
Relationship is one of similar, continuation, contradiction, inspiration.
Answer with one line per related thought in the form: - Thought <n>: <id>, <relationship>, <0.xx>`

	reflectionSystemPrompt = `You reflect on thoughts in a personal thought journal.
Recognize patterns, emotional shifts, blind spots and links to broader goals.
Answer with a one-sentence summary, a blank line, then a short reflection.`

	actionSystemPrompt = `You extract actionable items from a thought.
Find explicit and implicit tasks, deadlines and priorities (high, medium, low).
Answer with one line per action in the form: Action: <task>, Priority: <priority>, Due Date: <date or none>`
)

func (e *Enricher) narrativeEnabled() bool {
	return e.cfg.Narrative && e.gen != nil
}

// narrate calls the generator under the configured timeout.
func (e *Enricher) narrate(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.NarrativeTimeout)
	defer cancel()

	text, err := e.gen.Generate(ctx, system, prompt)
	if err != nil {
		return "", fmt.Errorf("narrative generation: %w", err)
	}
	return text, nil
}
