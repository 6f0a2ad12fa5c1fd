package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/mirror/internal/actions"
	"github.com/kalambet/mirror/internal/linker"
	"github.com/kalambet/mirror/internal/llm"
	"github.com/kalambet/mirror/internal/reflection"
	"github.com/kalambet/mirror/internal/tagger"
)

func TestProcess_CallJohnTomorrow(t *testing.T) {
	e := NewEnricher(Config{})

	res, err := e.Process(context.Background(), "I need to call John tomorrow. #urgent", nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"urgent", "John"}, tagger.Names(res.Tags))
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "call John tomorrow", res.Actions[0].Content)
	assert.Equal(t, actions.PriorityMedium, res.Actions[0].Priority)
	require.NotNil(t, res.Actions[0].DueDate)
	assert.Equal(t, "tomorrow", *res.Actions[0].DueDate)
	assert.Equal(t, reflection.ActionMessage, res.Reflection)
	assert.Equal(t, "I need to call John tomorrow.", res.Summary)
	assert.Empty(t, res.Links)
	assert.Empty(t, res.Insight)
}

func TestProcess_LinksOnlyWithCandidates(t *testing.T) {
	e := NewEnricher(Config{})

	res, err := e.Process(context.Background(), "happy beach vacation plan", nil)
	require.NoError(t, err)
	assert.Len(t, res.Outcomes, 3)
	for _, o := range res.Outcomes {
		assert.NotEqual(t, StageLinks, o.Stage)
	}

	res, err = e.Process(context.Background(), "happy beach vacation plan", []linker.Candidate{
		{ID: "t1", Content: "Planning a beach vacation this summer"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Outcomes, 4)
	require.Len(t, res.Links, 1)
	assert.Equal(t, "t1", res.Links[0].ThoughtID)
	assert.Equal(t, linker.RelSimilar, res.Links[0].Relationship)
	assert.InDelta(t, 0.75, res.Links[0].Strength, 1e-9)
}

func TestProcess_StageFailureIsIsolated(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		e := NewEnricher(Config{Parallel: parallel})
		e.stages[StageTags] = func(context.Context, input) (func(*Result), error, error) {
			return nil, nil, errors.New("boom")
		}
		e.stages[StageActions] = func(context.Context, input) (func(*Result), error, error) {
			panic("unexpected")
		}

		res, err := e.Process(context.Background(), "Am I worried about this?", nil)
		require.NoError(t, err)

		assert.Empty(t, res.Tags)
		assert.Empty(t, res.Actions)
		assert.Equal(t, reflection.QuestionMessage, res.Reflection)

		statuses := map[string]Status{}
		for _, o := range res.Outcomes {
			statuses[o.Stage] = o.Status
		}
		assert.Equal(t, StatusHard, statuses[StageTags])
		assert.Equal(t, StatusHard, statuses[StageActions])
		assert.Equal(t, StatusOK, statuses[StageReflection])
	}
}

func TestProcess_AllStagesFailed(t *testing.T) {
	e := NewEnricher(Config{})
	for name := range e.stages {
		e.stages[name] = func(context.Context, input) (func(*Result), error, error) {
			return nil, nil, errors.New(name + " broke")
		}
	}

	_, err := e.Process(context.Background(), "anything", []linker.Candidate{{ID: "x", Content: "anything"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllStagesFailed)
	for _, name := range []string{StageTags, StageLinks, StageReflection, StageActions} {
		assert.Contains(t, err.Error(), name+" broke")
	}
}

func TestProcess_ParallelMatchesSequential(t *testing.T) {
	content := "We should finish the Project report. Feeling anxious but proud. TODO: email Alice."
	existing := []linker.Candidate{
		{ID: "a", Content: "The project report draft"},
		{ID: "b", Content: "Email from Alice, however nothing urgent"},
	}

	seq, err := NewEnricher(Config{}).Process(context.Background(), content, existing)
	require.NoError(t, err)
	par, err := NewEnricher(Config{Parallel: true}).Process(context.Background(), content, existing)
	require.NoError(t, err)

	assert.Equal(t, seq.Tags, par.Tags)
	assert.Equal(t, seq.Links, par.Links)
	assert.Equal(t, seq.Actions, par.Actions)
	assert.Equal(t, seq.Reflection, par.Reflection)
	assert.Equal(t, seq.Summary, par.Summary)
}

func TestProcess_Deterministic(t *testing.T) {
	e := NewEnricher(Config{Parallel: true})
	content := "Worried about the goal. I must call Bob today!"

	first, err := e.Process(context.Background(), content, nil)
	require.NoError(t, err)
	for range 5 {
		again, err := e.Process(context.Background(), content, nil)
		require.NoError(t, err)
		assert.Equal(t, first.Tags, again.Tags)
		assert.Equal(t, first.Actions, again.Actions)
		assert.Equal(t, first.Reflection, again.Reflection)
	}
}

func narrativeGenerator() llm.Generator {
	return llm.GeneratorFunc(func(_ context.Context, system, _ string) (string, error) {
		switch system {
		case tagSystemPrompt:
			return "Tag: urgent, Confidence: 0.95\nTag: phone, Confidence: 0.6", nil
		case linkSystemPrompt:
			return "- Thought 2: b, inspiration, 0.85\n- Thought 9: ghost, similar, 0.9", nil
		case reflectionSystemPrompt:
			return "A reminder to reach out.\n\nYou keep postponing calls to friends.", nil
		case actionSystemPrompt:
			return "Action: Charge phone, Priority: low, Due Date: tonight", nil
		}
		return "", errors.New("unexpected system prompt")
	})
}

func TestProcess_NarrativeMerge(t *testing.T) {
	e := NewEnricher(Config{Narrative: true}, WithGenerator(narrativeGenerator()))
	existing := []linker.Candidate{
		{ID: "a", Content: "call John about the trip"},
		{ID: "b", Content: "unrelated gardening notes"},
	}

	res, err := e.Process(context.Background(), "I need to call John tomorrow. #urgent", existing)
	require.NoError(t, err)

	assert.Equal(t, []string{"urgent", "John", "phone"}, tagger.Names(res.Tags))
	assert.Equal(t, tagger.DefaultConfidence, res.Tags[0].Confidence)

	require.Len(t, res.Links, 2)
	assert.Equal(t, "b", res.Links[0].ThoughtID)
	assert.Equal(t, linker.RelInspiration, res.Links[0].Relationship)
	assert.Equal(t, "a", res.Links[1].ThoughtID)

	require.Len(t, res.Actions, 2)
	assert.Equal(t, "call John tomorrow", res.Actions[0].Content)
	assert.Equal(t, "Charge phone", res.Actions[1].Content)

	assert.Equal(t, reflection.ActionMessage, res.Reflection)
	assert.Equal(t, "You keep postponing calls to friends.", res.Insight)
	for _, o := range res.Outcomes {
		assert.Equal(t, StatusOK, o.Status, o.Stage)
	}
}

func TestProcess_NarrativeFailureDegradesSoftly(t *testing.T) {
	slow := llm.GeneratorFunc(func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	e := NewEnricher(Config{Narrative: true, Parallel: true, NarrativeTimeout: 10 * time.Millisecond}, WithGenerator(slow))

	base, err := NewEnricher(Config{}).Process(context.Background(), "I need to call John tomorrow. #urgent", nil)
	require.NoError(t, err)
	res, err := e.Process(context.Background(), "I need to call John tomorrow. #urgent", nil)
	require.NoError(t, err)

	assert.Equal(t, base.Tags, res.Tags)
	assert.Equal(t, base.Actions, res.Actions)
	assert.Equal(t, base.Reflection, res.Reflection)
	assert.Empty(t, res.Insight)
	for _, o := range res.Outcomes {
		assert.Equal(t, StatusSoft, o.Status, o.Stage)
		assert.ErrorIs(t, o.Err, context.DeadlineExceeded)
	}
}

func TestProcess_NarrativeIgnoredWithoutFlag(t *testing.T) {
	called := false
	gen := llm.GeneratorFunc(func(context.Context, string, string) (string, error) {
		called = true
		return "", nil
	})
	_, err := NewEnricher(Config{}, WithGenerator(gen)).Process(context.Background(), "plain note", nil)
	require.NoError(t, err)
	assert.False(t, called)
}

func TestMetrics_RecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	e := NewEnricher(Config{}, WithMetrics(m))
	e.stages[StageActions] = func(context.Context, input) (func(*Result), error, error) {
		return nil, nil, errors.New("down")
	}

	_, err := e.Process(context.Background(), "Just a note", nil)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.stages.WithLabelValues(StageTags, string(StatusOK))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stages.WithLabelValues(StageActions, string(StatusHard))))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, strings.Join(names, ","), "mirror_enrichment_stage_total")
}

func TestMergeLinks_CapsAndKeepsHeuristic(t *testing.T) {
	var base, extra []linker.Draft
	for i := range 4 {
		base = append(base, linker.Draft{ThoughtID: string(rune('a' + i)), Relationship: linker.RelSimilar, Strength: 0.5})
	}
	extra = append(extra,
		linker.Draft{ThoughtID: "a", Relationship: linker.RelContinuation, Strength: 0.9},
		linker.Draft{ThoughtID: "x", Relationship: linker.RelSimilar, Strength: 0.8},
		linker.Draft{ThoughtID: "y", Relationship: linker.RelSimilar, Strength: 0.7},
	)

	got := mergeLinks(base, extra)

	require.Len(t, got, linker.MaxLinks)
	assert.Equal(t, "x", got[0].ThoughtID)
	assert.Equal(t, "y", got[1].ThoughtID)
	for _, l := range got {
		if l.ThoughtID == "a" {
			assert.Equal(t, linker.RelSimilar, l.Relationship)
		}
	}
}
