package ollama

import (
	"io"
	"log/slog"
	"net/http"
)

// Option configures an Adapter at construction time.
type Option func(*Adapter)

// WithLogger sets a structured logger for the adapter. Passing nil restores
// the default no-op logger.
//
// Logging levels in use:
//   - INFO: operational events (detected tool calls, failed invocations)
//   - DEBUG: per-exchange detail (prompt and response sizes)
//   - WARN: recoverable situations (skipped blocks, unknown tool names)
//   - ERROR: turn-level faults
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger == nil {
			a.logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
				Level: slog.LevelError + 1,
			}))
			return
		}
		a.logger = logger
	}
}

// WithHTTPClient replaces the transport's HTTP client, e.g. to control
// timeouts or inject a test server's client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		if client == nil {
			return
		}
		a.transport = &transportClient{httpClient: client, logger: a.logger}
	}
}

// WithMaxToolRounds sets how many rounds of tool execution a turn may run
// before the model must answer in plain text. The bound is an explicit loop
// counter, not an emergent property of the pipeline.
//
// Default: 1 (one round of execution, one follow-up reply).
func WithMaxToolRounds(rounds int) Option {
	return func(a *Adapter) {
		if rounds < 1 {
			a.logger.Warn("Tool round count below 1 is not allowed, keeping default",
				"supplied_rounds", rounds)
			return
		}
		a.maxToolRounds = rounds
	}
}

// WithMaxToolCalls caps how many tool calls of a single reply are honored.
// Extra calls are dropped with a warning.
//
// Default: 8.
func WithMaxToolCalls(maxCalls int) Option {
	return func(a *Adapter) {
		if maxCalls < 1 {
			a.logger.Warn("Tool call cap below 1 is not allowed, keeping default",
				"supplied_maxCalls", maxCalls)
			return
		}
		a.maxToolCalls = maxCalls
	}
}

// WithParallelToolLimit bounds the concurrency used for a batch of
// consecutive parallelizable tool calls.
//
// Default: 4.
func WithParallelToolLimit(limit int) Option {
	return func(a *Adapter) {
		if limit < 1 {
			a.logger.Warn("Parallel tool limit below 1 is not allowed, keeping default",
				"supplied_limit", limit)
			return
		}
		a.maxParallelTools = limit
	}
}

// WithMetricsCallback registers a callback that receives typed metric events.
// The callback runs synchronously during turn processing, so it should be
// fast; panics inside it are caught and logged, never propagated.
func WithMetricsCallback(callback func(MetricEventData)) Option {
	return func(a *Adapter) {
		a.metricsCallback = callback
	}
}
