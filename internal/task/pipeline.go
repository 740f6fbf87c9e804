package task

import (
	"context"
	"fmt"
	"time"
)

// Step is one task in a pipeline
type Step struct {
	Task              Task
	Properties        map[string]interface{}
	ContinueOnFailure bool
}

// Pipeline runs steps in order against a single ExecutionContext. Each
// step's output file becomes the next step's input file.
type Pipeline struct {
	Steps   []Step
	Timeout time.Duration
}

// Run executes the pipeline. The returned result always carries the final
// context; a nil ec starts from an empty one.
func (p *Pipeline) Run(ctx context.Context, ec *ExecutionContext) *PipelineResult {
	if ec == nil {
		ec = NewExecutionContext("", nil)
	}
	if ec.Properties == nil {
		ec.Properties = make(map[string]interface{})
	}

	startTime := time.Now()

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	result := &PipelineResult{
		Steps: make([]StepResult, len(p.Steps)),
	}

	allSuccess := !ec.HasError()

	for i, step := range p.Steps {
		desc := step.Task.Descriptor()

		if ctx.Err() != nil {
			markSkipped(result, p.Steps, i)
			ec.Failf("[CANCELLED] Pipeline stopped before step %d (%s).", i, desc.Name)
			result.Error = fmt.Sprintf("pipeline stopped at step %d (%s): %v", i, desc.Name, ctx.Err())
			allSuccess = false
			result.StepsRun = i
			break
		}

		if i > 0 && ec.OutputFilePath != "" {
			ec.InputFilePath = ec.OutputFilePath
		}
		ec.OutputFilePath = ""

		stepStart := time.Now()
		firstMessage := ec.MessageCount()
		failuresBefore := ec.failureCount()

		restore := overlay(ec.Properties, step.Properties, step.Task.PropertyDefinitions())
		out := Execute(ctx, step.Task, ec)
		if out != ec {
			// The task handed back a different context; carry on with it.
			out.SessionDir = ec.SessionDir
			if out.Properties == nil {
				out.Properties = ec.Properties
			}
			if ec.HasError() {
				out.markFailed()
			}
			ec = out
		}
		restore(ec.Properties)

		failed := ec.failureCount() > failuresBefore
		result.Steps[i] = StepResult{
			StepIndex:    i,
			TaskName:     desc.Name,
			TaskID:       desc.ID.String(),
			Failed:       failed,
			OutputFile:   ec.OutputFilePath,
			Duration:     time.Since(stepStart),
			FirstMessage: firstMessage,
			LastMessage:  ec.MessageCount(),
		}
		result.StepsRun = i + 1

		if failed {
			allSuccess = false
			if !step.ContinueOnFailure {
				markSkipped(result, p.Steps, i+1)
				result.Error = fmt.Sprintf("step %d (%s) failed", i, desc.Name)
				break
			}
		}
	}

	result.Success = allSuccess && !ec.HasError()
	result.Duration = time.Since(startTime)
	result.StepsFailed = countFailed(result.Steps)
	result.Context = ec
	return result
}

// overlay applies step properties over the shared bag and returns a function
// that undoes them, together with any defaults the step's task filled in.
// Keys a task writes on its own (probe results, for example) survive.
func overlay(props, stepProps map[string]interface{}, defs []PropertyDefinition) func(map[string]interface{}) {
	type saved struct {
		value  interface{}
		exists bool
	}
	prior := make(map[string]saved)
	remember := func(key string) {
		if _, done := prior[key]; done {
			return
		}
		v, ok := props[key]
		prior[key] = saved{value: v, exists: ok}
	}

	for key, value := range stepProps {
		remember(key)
		props[key] = value
	}
	for _, def := range defs {
		remember(def.Name)
	}

	return func(current map[string]interface{}) {
		for key, s := range prior {
			if s.exists {
				current[key] = s.value
			} else {
				delete(current, key)
			}
		}
	}
}

// markSkipped marks steps[from:] as skipped
func markSkipped(result *PipelineResult, steps []Step, from int) {
	for j := from; j < len(steps); j++ {
		result.Steps[j] = StepResult{
			StepIndex: j,
			TaskName:  steps[j].Task.Descriptor().Name,
			TaskID:    steps[j].Task.Descriptor().ID.String(),
			Skipped:   true,
		}
	}
}

// countFailed counts the number of failed (non-skipped) steps
func countFailed(steps []StepResult) int {
	count := 0
	for _, step := range steps {
		if !step.Skipped && step.Failed {
			count++
		}
	}
	return count
}
