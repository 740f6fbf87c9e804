package task

import "context"

// Execute runs t against ec and is the entry point orchestrators use instead
// of calling Task.Execute directly.
//
// It applies property defaults, rejects missing required properties,
// refuses to start on a done context, turns a panic into a [FATAL ERROR]
// diagnostic, and keeps an error flag that was set before the call.
func Execute(ctx context.Context, t Task, ec *ExecutionContext) (out *ExecutionContext) {
	if ec == nil {
		ec = NewExecutionContext("", nil)
	}
	desc := t.Descriptor()
	hadError := ec.HasError()

	defs := t.PropertyDefinitions()
	ec.Properties = ApplyDefaults(defs, ec.Properties)
	if err := ValidateRequired(defs, ec.Properties); err != nil {
		ec.Failf("[ERROR] [%s] %v", desc.Name, err)
		return ec
	}

	if ctx.Err() != nil {
		ec.Failf("[CANCELLED] [%s] Task cancelled before execution started.", desc.Name)
		return ec
	}

	defer func() {
		if r := recover(); r != nil {
			ec.Failf("[FATAL ERROR] [%s] An unexpected error occurred during task execution: %v", desc.Name, r)
			out = ec
		}
		if hadError && !out.HasError() {
			out.markFailed()
		}
	}()

	out = t.Execute(ctx, ec)
	if out == nil {
		out = ec
	}
	return out
}
