package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// ToolOutcome is the result of one tool invocation. Outcome i always answers
// call i of the batch that produced it.
type ToolOutcome struct {
	Name   string
	Result string // textual result; structured results are serialized
	Err    string // non-empty when resolution or invocation failed
}

// executeAll runs a batch of parsed tool calls against the catalog and
// returns index-aligned outcomes. Resolution failures and invocation errors
// are captured per call, never propagated, so one failing tool cannot abort
// the rest of the batch.
//
// Calls run sequentially in the given order. The one exception: a run of
// consecutive calls whose tools are marked Parallelizable executes as a
// bounded-concurrency batch, since those tools declare themselves free of
// ordering-sensitive side effects. Outcome order is preserved either way.
func (a *Adapter) executeAll(ctx context.Context, calls []RawToolCall) []ToolOutcome {
	outcomes := make([]ToolOutcome, len(calls))

	i := 0
	for i < len(calls) {
		j := i
		for j < len(calls) && a.parallelizable(calls[j].Name) {
			j++
		}
		if j-i > 1 {
			g := new(errgroup.Group)
			g.SetLimit(a.maxParallelTools)
			for k := i; k < j; k++ {
				g.Go(func() error {
					outcomes[k] = a.executeOne(ctx, calls[k])
					return nil
				})
			}
			_ = g.Wait() // executeOne never returns an error through the group
			i = j
			continue
		}

		outcomes[i] = a.executeOne(ctx, calls[i])
		i++
	}

	return outcomes
}

// executeOne resolves and invokes a single call. Panics inside a tool are
// captured as an error outcome so a misbehaving tool cannot take down the
// turn.
func (a *Adapter) executeOne(ctx context.Context, call RawToolCall) (outcome ToolOutcome) {
	outcome.Name = call.Name

	tool, ok := a.catalog.Lookup(call.Name)
	if !ok {
		outcome.Err = fmt.Sprintf("Tool '%s' not found", call.Name)
		a.logger.Warn("Tool call names an unknown tool", "tool", call.Name)
		return outcome
	}

	select {
	case <-ctx.Done():
		outcome.Err = fmt.Sprintf("tool invocation aborted: %v", ctx.Err())
		return outcome
	default:
	}

	defer func() {
		if r := recover(); r != nil {
			outcome.Err = fmt.Sprintf("tool panicked: %v", r)
			a.logger.Error("Tool invocation panicked", "tool", call.Name, "panic", r)
		}
	}()

	start := time.Now()
	result, err := tool.Execute(ctx, call.Parameters)
	duration := time.Since(start)

	if err != nil {
		outcome.Err = err.Error()
		a.logger.Info("Tool invocation failed",
			"tool", call.Name,
			"error", err,
			"duration", duration)
	} else {
		outcome.Result = coerceResult(result)
		a.logger.Debug("Tool invocation succeeded",
			"tool", call.Name,
			"result_length", len(outcome.Result),
			"duration", duration)
	}

	a.emitMetric(ToolExecutionData{
		ToolName:  call.Name,
		Succeeded: err == nil,
		Performance: PerformanceMetrics{
			ProcessingDuration: duration,
		},
	})
	return outcome
}

func (a *Adapter) parallelizable(name string) bool {
	tool, ok := a.catalog.Lookup(name)
	return ok && tool.Descriptor().Parallelizable
}

// coerceResult turns a tool result into the textual representation carried to
// the model: strings pass through, everything else is JSON-serialized.
func coerceResult(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
