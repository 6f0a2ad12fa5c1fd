// Package pipeline runs the enrichment stages (tags, links, reflection,
// actions) over a captured thought and combines their output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/mirror/internal/actions"
	"github.com/kalambet/mirror/internal/linker"
	"github.com/kalambet/mirror/internal/llm"
	"github.com/kalambet/mirror/internal/tagger"
)

// ErrAllStagesFailed is returned when every invoked stage failed. The
// per-stage errors are joined into the returned error.
var ErrAllStagesFailed = errors.New("all enrichment stages failed")

// Stage names.
const (
	StageTags       = "tags"
	StageLinks      = "links"
	StageReflection = "reflection"
	StageActions    = "actions"
)

// Status of a stage run.
type Status string

const (
	// StatusOK means the stage produced its full output.
	StatusOK Status = "ok"
	// StatusSoft means the heuristic output is present but the narrative
	// supplement failed.
	StatusSoft Status = "soft"
	// StatusHard means the stage failed and its field holds the empty value.
	StatusHard Status = "hard"
)

// StageOutcome records how one stage ended.
type StageOutcome struct {
	Stage  string
	Status Status
	Err    error
}

// Result is the combined enrichment of one thought. It has no side effects
// attached; persisting it is the caller's job.
type Result struct {
	Tags       []tagger.Draft  `json:"tags"`
	Links      []linker.Draft  `json:"links"`
	Reflection string          `json:"reflection"`
	Summary    string          `json:"summary"`
	Actions    []actions.Draft `json:"actions"`
	// Insight is the narrative reflection, set only when the narrative path ran.
	Insight string `json:"insight,omitempty"`

	Outcomes []StageOutcome `json:"-"`
}

// Config tunes an Enricher.
type Config struct {
	// Parallel runs the stages concurrently.
	Parallel bool
	// Narrative enables the text-generation supplement when a generator is set.
	Narrative bool
	// NarrativeTimeout bounds each generator call. Defaults to 5s.
	NarrativeTimeout time.Duration
}

// Enricher orchestrates the enrichment stages.
type Enricher struct {
	cfg     Config
	gen     llm.Generator
	logger  *slog.Logger
	metrics *Metrics
	stages  map[string]stageFunc
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Enricher) { e.logger = l }
}

// WithMetrics records stage outcomes and durations.
func WithMetrics(m *Metrics) Option {
	return func(e *Enricher) { e.metrics = m }
}

// WithGenerator sets the text-generation backend used by the narrative path.
func WithGenerator(g llm.Generator) Option {
	return func(e *Enricher) { e.gen = g }
}

// NewEnricher creates an Enricher with the heuristic stages.
func NewEnricher(cfg Config, opts ...Option) *Enricher {
	if cfg.NarrativeTimeout <= 0 {
		cfg.NarrativeTimeout = 5 * time.Second
	}
	e := &Enricher{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	e.stages = map[string]stageFunc{
		StageTags:       e.tagStage,
		StageLinks:      e.linkStage,
		StageReflection: e.reflectionStage,
		StageActions:    e.actionStage,
	}
	return e
}

// input is what every stage sees.
type input struct {
	content  string
	existing []linker.Candidate
}

// stageFunc computes a stage's contribution. The returned apply func writes
// it into the result; degraded is non-nil when the narrative supplement
// failed.
type stageFunc func(ctx context.Context, in input) (apply func(*Result), degraded error, err error)

// Process enriches content. Links are resolved only when existing is
// non-empty. A failing stage leaves its field empty; ErrAllStagesFailed is
// returned only when every invoked stage failed.
func (e *Enricher) Process(ctx context.Context, content string, existing []linker.Candidate) (Result, error) {
	start := time.Now()
	defer func() { e.metrics.observeDuration(time.Since(start)) }()

	names := []string{StageTags}
	if len(existing) > 0 {
		names = append(names, StageLinks)
	}
	names = append(names, StageReflection, StageActions)

	in := input{content: content, existing: existing}
	outcomes := make([]StageOutcome, len(names))
	applies := make([]func(*Result), len(names))

	run := func(i int) {
		applies[i], outcomes[i] = e.runStage(ctx, names[i], in)
	}
	if e.cfg.Parallel {
		var g errgroup.Group
		for i := range names {
			g.Go(func() error {
				run(i)
				return nil
			})
		}
		g.Wait()
	} else {
		for i := range names {
			run(i)
		}
	}

	var res Result
	var errs []error
	for i, o := range outcomes {
		e.metrics.recordStage(o.Stage, o.Status)
		switch o.Status {
		case StatusHard:
			e.logger.Warn("enrichment stage failed", "stage", o.Stage, "error", o.Err)
			errs = append(errs, fmt.Errorf("%s: %w", o.Stage, o.Err))
			continue
		case StatusSoft:
			e.logger.Warn("narrative enrichment degraded", "stage", o.Stage, "error", o.Err)
		}
		applies[i](&res)
	}
	res.Outcomes = outcomes

	if len(errs) == len(outcomes) {
		err := fmt.Errorf("%w: %w", ErrAllStagesFailed, errors.Join(errs...))
		e.logger.Error("enrichment failed", "error", err)
		return res, err
	}

	e.logger.Debug("enrichment complete",
		"tags", len(res.Tags),
		"links", len(res.Links),
		"actions", len(res.Actions),
		"narrative", res.Insight != "",
	)
	return res, nil
}

// runStage executes one stage, converting panics into hard failures.
func (e *Enricher) runStage(ctx context.Context, name string, in input) (apply func(*Result), out StageOutcome) {
	out.Stage = name
	defer func() {
		if r := recover(); r != nil {
			apply = nil
			out.Status = StatusHard
			out.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	apply, degraded, err := e.stages[name](ctx, in)
	switch {
	case err != nil:
		return nil, StageOutcome{Stage: name, Status: StatusHard, Err: err}
	case degraded != nil:
		return apply, StageOutcome{Stage: name, Status: StatusSoft, Err: degraded}
	}
	return apply, StageOutcome{Stage: name, Status: StatusOK}
}
