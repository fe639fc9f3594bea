package ollama

import "time"

// MetricEvent identifies the kind of metric event being emitted.
type MetricEvent string

const (
	// MetricEventPromptGeneration fires when a tool-teaching or follow-up
	// prompt has been built.
	MetricEventPromptGeneration MetricEvent = "prompt_generation"

	// MetricEventFunctionCallDetection fires when a model reply has been
	// parsed for embedded tool calls.
	MetricEventFunctionCallDetection MetricEvent = "function_call_detection"

	// MetricEventToolExecution fires once per tool invocation.
	MetricEventToolExecution MetricEvent = "tool_execution"

	// MetricEventTransport fires after each exchange with the inference
	// endpoint, successful or not.
	MetricEventTransport MetricEvent = "transport_round_trip"

	// MetricEventTurnCompleted fires when a turn yields its terminal reply.
	MetricEventTurnCompleted MetricEvent = "turn_completed"
)

// MetricEventData is implemented by all metric event payloads. The interface
// enables type-safe handling in callbacks while keeping a single callback
// signature.
type MetricEventData interface {
	EventType() MetricEvent
}

// PerformanceMetrics carries timing information for an operation. Instances
// are immutable after creation and safe for concurrent reads.
type PerformanceMetrics struct {
	// ProcessingDuration is the total time spent on the operation.
	ProcessingDuration time.Duration `json:"processing_duration"`
}

// PromptGenerationData describes a built prompt.
type PromptGenerationData struct {
	// ToolCount is the number of tools enumerated in the prompt. Zero for
	// follow-up prompts.
	ToolCount int `json:"tool_count"`

	// PromptLength is the prompt length in bytes.
	PromptLength int `json:"prompt_length"`

	// FollowUp marks the tool-outcome summary prompt of a turn's second
	// round, as opposed to the initial tool-teaching prompt.
	FollowUp bool `json:"follow_up"`

	Performance PerformanceMetrics `json:"performance"`
}

func (d PromptGenerationData) EventType() MetricEvent { return MetricEventPromptGeneration }

// FunctionCallDetectionData describes the outcome of parsing one model reply.
type FunctionCallDetectionData struct {
	// FunctionCount is the number of well-formed tool calls extracted.
	FunctionCount int `json:"function_count"`

	// FunctionNames lists the extracted call names in appearance order.
	FunctionNames []string `json:"function_names"`

	// ContentLength is the length of the raw model reply in bytes.
	ContentLength int `json:"content_length"`

	// SkippedBlocks counts delimited blocks dropped as malformed.
	SkippedBlocks int `json:"skipped_blocks"`

	// Round is the 1-based round of the turn this reply belongs to.
	Round int `json:"round"`

	Performance PerformanceMetrics `json:"performance"`
}

func (d FunctionCallDetectionData) EventType() MetricEvent { return MetricEventFunctionCallDetection }

// ToolExecutionData describes one tool invocation.
type ToolExecutionData struct {
	ToolName  string `json:"tool_name"`
	Succeeded bool   `json:"succeeded"`

	Performance PerformanceMetrics `json:"performance"`
}

func (d ToolExecutionData) EventType() MetricEvent { return MetricEventToolExecution }

// TransportData describes one exchange with the inference endpoint.
type TransportData struct {
	Model          string `json:"model"`
	PromptLength   int    `json:"prompt_length"`
	ResponseLength int    `json:"response_length"`

	// Succeeded is false for any transport fault, including non-2xx status
	// and malformed bodies.
	Succeeded bool `json:"succeeded"`

	Performance PerformanceMetrics `json:"performance"`
}

func (d TransportData) EventType() MetricEvent { return MetricEventTransport }

// TurnCompletedData describes a finished turn.
type TurnCompletedData struct {
	// Rounds is the number of generate/parse passes the turn took.
	Rounds int `json:"rounds"`

	// ToolCalls is the total number of tool invocations executed.
	ToolCalls int `json:"tool_calls"`

	// Status is the terminal status tag: "STOP" or "OTHER".
	Status string `json:"status"`

	Performance PerformanceMetrics `json:"performance"`
}

func (d TurnCompletedData) EventType() MetricEvent { return MetricEventTurnCompleted }

// emitMetric invokes the configured callback, if any. Callbacks run
// synchronously, so they should be fast; panics inside a callback are caught
// and logged so metrics collection can never take down a turn.
func (a *Adapter) emitMetric(data MetricEventData) {
	if a.metricsCallback == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Metrics callback panicked; event dropped",
				"panic", r,
				"event_type", data.EventType())
		}
	}()

	a.metricsCallback(data)
}
