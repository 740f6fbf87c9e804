// Package batch runs task pipelines over many inputs with bounded
// parallelism, recording a session and a history entry for every input.
package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"videobatch.dev/internal/config"
	"videobatch.dev/internal/logs"
	"videobatch.dev/internal/store"
	"videobatch.dev/internal/task"
)

// ErrNoInputs is returned when a job's input patterns match nothing
var ErrNoInputs = errors.New("no inputs matched")

// OutputDirProperty is the property tasks read their output directory from
const OutputDirProperty = "output_directory"

// StepSpec names a task and the properties of one pipeline step
type StepSpec struct {
	Task              string
	Properties        map[string]interface{}
	ContinueOnFailure bool
}

// Job is a pipeline applied to a set of inputs
type Job struct {
	Name        string
	Kind        string
	Inputs      []string // files or glob patterns
	Steps       []StepSpec
	Properties  map[string]interface{}
	OutputDir   string
	Timeout     time.Duration // per input
	Parallelism int
}

// FromConfig converts a configured job
func FromConfig(name string, j config.Job) Job {
	steps := make([]StepSpec, len(j.Steps))
	for i, s := range j.Steps {
		steps[i] = StepSpec{Task: s.Task, Properties: s.Properties, ContinueOnFailure: s.ContinueOnFailure}
	}
	return Job{
		Name:        name,
		Kind:        logs.KindJob,
		Inputs:      j.Inputs,
		Steps:       steps,
		Properties:  j.Properties,
		OutputDir:   j.OutputDir,
		Timeout:     j.JobTimeout(),
		Parallelism: j.Parallelism,
	}
}

// SingleTask wraps one task as a job with a single step
func SingleTask(ref string, input string, props map[string]interface{}) Job {
	var inputs []string
	if input != "" {
		inputs = []string{input}
	}
	return Job{
		Name:       ref,
		Kind:       logs.KindTask,
		Inputs:     inputs,
		Steps:      []StepSpec{{Task: ref}},
		Properties: props,
	}
}

// Recorder stores finished runs. *store.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, run *store.Run) error
}

// Outcome is the result of one input
type Outcome struct {
	Input     string               `json:"input"`
	RunID     string               `json:"run_id,omitempty"`
	SessionID string               `json:"session_id,omitempty"`
	Skipped   bool                 `json:"skipped,omitempty"`
	Result    *task.PipelineResult `json:"result,omitempty"`
	Err       error                `json:"-"`
}

// Success reports whether the input went through every step cleanly
func (o Outcome) Success() bool {
	return !o.Skipped && o.Err == nil && o.Result != nil && o.Result.Success
}

// Report aggregates the outcomes of a job
type Report struct {
	Job       string        `json:"job"`
	Outcomes  []Outcome     `json:"outcomes"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
	Cancelled bool          `json:"cancelled"`
}

// Success reports whether every input succeeded
func (r *Report) Success() bool {
	return r.Failed == 0 && r.Skipped == 0 && !r.Cancelled
}

// Runner executes jobs
type Runner struct {
	registry    *task.Registry
	sessions    *logs.Manager
	history     Recorder
	retention   logs.SessionRetention
	parallelism int
	logger      zerolog.Logger
}

// Option configures a Runner
type Option func(*Runner)

// WithSessions records a session directory per input
func WithSessions(m *logs.Manager) Option {
	return func(r *Runner) { r.sessions = m }
}

// WithHistory records every input's run
func WithHistory(h Recorder) Option {
	return func(r *Runner) { r.history = h }
}

// WithRetention prunes old sessions of a job after it ran
func WithRetention(ret logs.SessionRetention) Option {
	return func(r *Runner) { r.retention = ret }
}

// WithParallelism sets the default number of inputs processed at once
func WithParallelism(n int) Option {
	return func(r *Runner) { r.parallelism = n }
}

// WithLogger sets the logger used for per-input outcomes
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New returns a Runner resolving tasks from reg
func New(reg *task.Registry, opts ...Option) *Runner {
	r := &Runner{
		registry:    reg,
		parallelism: 1,
		logger:      log.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.parallelism < 1 {
		r.parallelism = 1
	}
	return r
}

// Pipeline resolves steps into a pipeline of fresh task instances
func (r *Runner) Pipeline(steps []StepSpec, timeout time.Duration) (*task.Pipeline, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("pipeline has no steps")
	}
	p := &task.Pipeline{Timeout: timeout}
	for i, s := range steps {
		t, err := r.registry.Lookup(s.Task)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		p.Steps = append(p.Steps, task.Step{
			Task:              t,
			Properties:        s.Properties,
			ContinueOnFailure: s.ContinueOnFailure,
		})
	}
	return p, nil
}

// ExpandInputs expands glob patterns into a sorted, de-duplicated list of
// files. Patterns without glob characters are kept as-is so a missing file
// is reported by the task that reads it.
func ExpandInputs(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[") {
			add(pattern)
			continue
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid input pattern '%s': %w", pattern, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			add(m)
		}
	}

	if len(patterns) > 0 && len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoInputs, strings.Join(patterns, ", "))
	}
	return out, nil
}

// RunJob runs job over each of its inputs. A job without inputs runs once
// with an empty input path. One failing input never stops the others; a
// cancelled ctx stops inputs that have not started yet.
func (r *Runner) RunJob(ctx context.Context, job Job) (*Report, error) {
	if _, err := r.Pipeline(job.Steps, job.Timeout); err != nil {
		return nil, fmt.Errorf("job %s: %w", job.Name, err)
	}

	inputs, err := ExpandInputs(job.Inputs)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.Name, err)
	}
	if len(inputs) == 0 {
		inputs = []string{""}
	}

	limit := job.Parallelism
	if limit < 1 {
		limit = r.parallelism
	}

	start := time.Now()
	report := &Report{Job: job.Name, Outcomes: make([]Outcome, len(inputs))}

	r.logger.Info().Str("job", job.Name).Int("inputs", len(inputs)).Int("parallelism", limit).Msg("job started")

	var g errgroup.Group
	g.SetLimit(limit)
	var mu sync.Mutex

	for i, input := range inputs {
		if ctx.Err() != nil {
			report.Outcomes[i] = Outcome{Input: input, Skipped: true}
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				report.Outcomes[i] = Outcome{Input: input, Skipped: true}
				mu.Unlock()
				return nil
			}
			outcome := r.RunInput(ctx, job, input)
			mu.Lock()
			report.Outcomes[i] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range report.Outcomes {
		switch {
		case o.Skipped:
			report.Skipped++
		case o.Success():
			report.Succeeded++
		default:
			report.Failed++
		}
	}
	report.Cancelled = ctx.Err() != nil
	report.Duration = time.Since(start)

	if r.sessions != nil && (r.retention.MaxSessions > 0 || r.retention.MaxAge > 0) {
		if _, err := r.sessions.CleanupOldSessions(job.Name, r.retention); err != nil {
			r.logger.Warn().Err(err).Str("job", job.Name).Msg("session cleanup failed")
		}
	}

	r.logger.Info().Str("job", job.Name).
		Int("succeeded", report.Succeeded).Int("failed", report.Failed).Int("skipped", report.Skipped).
		Dur("duration", report.Duration).Msg("job finished")

	return report, nil
}

// RunInput runs job's pipeline over one input with its own
// ExecutionContext, session and history record.
func (r *Runner) RunInput(ctx context.Context, job Job, input string) Outcome {
	outcome := Outcome{Input: input}
	logger := r.logger.With().Str("job", job.Name).Str("input", input).Logger()

	pipeline, err := r.Pipeline(job.Steps, job.Timeout)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	props := make(map[string]interface{}, len(job.Properties)+1)
	for k, v := range job.Properties {
		props[k] = v
	}
	if job.OutputDir != "" {
		if _, ok := props[OutputDirProperty]; !ok {
			props[OutputDirProperty] = job.OutputDir
		}
	}
	ec := task.NewExecutionContext(input, props)

	if r.sessions != nil {
		meta := &logs.SessionMetadata{
			Name:       job.Name,
			Kind:       job.Kind,
			Input:      input,
			Properties: props,
		}
		dir, err := r.sessions.Start(meta)
		if err != nil {
			logger.Warn().Err(err).Msg("could not create session, tool output will not be kept")
		} else {
			ec.SessionDir = dir
			outcome.SessionID = meta.SessionID
		}
	}

	started := time.Now()
	result := pipeline.Run(ctx, ec)
	ended := time.Now()
	outcome.Result = result

	final := result.Context
	messages := final.Messages()

	if outcome.SessionID != "" {
		if err := r.sessions.Finish(outcome.SessionID, result.Success, final.OutputFilePath, messages); err != nil {
			logger.Warn().Err(err).Msg("could not finish session")
		}
	}

	if r.history != nil {
		run := &store.Run{
			SessionID:   outcome.SessionID,
			Name:        job.Name,
			Kind:        job.Kind,
			Input:       input,
			Output:      final.OutputFilePath,
			Success:     result.Success,
			HasError:    final.HasError(),
			StepsRun:    result.StepsRun,
			StepsFailed: result.StepsFailed,
			Error:       result.Error,
			Messages:    messages,
			StartedAt:   started,
			EndedAt:     ended,
		}
		// recorded even when ctx is already cancelled
		if err := r.history.Record(context.WithoutCancel(ctx), run); err != nil {
			logger.Warn().Err(err).Msg("could not record run")
		} else {
			outcome.RunID = run.ID
		}
	}

	if result.Success {
		logger.Info().Str("output", final.OutputFilePath).Dur("duration", result.Duration).Msg("input succeeded")
	} else {
		logger.Warn().Str("error", result.Error).Int("steps_failed", result.StepsFailed).Msg("input failed")
	}
	return outcome
}
