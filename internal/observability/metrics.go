package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/OzasaHiro/gemini-cli/internal/ollama"
)

// MetricsRecorder exposes adapter metric events as Prometheus series.
type MetricsRecorder struct {
	turns            *prometheus.CounterVec
	turnDuration     prometheus.Histogram
	toolExecutions   *prometheus.CounterVec
	transportLatency prometheus.Histogram
	skippedBlocks    prometheus.Counter
	functionCalls    prometheus.Counter
}

// NewMetricsRecorder registers the collectors with reg.
func NewMetricsRecorder(reg prometheus.Registerer) *MetricsRecorder {
	factory := promauto.With(reg)
	return &MetricsRecorder{
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gemini_cli_ollama_turns_total",
			Help: "Completed turns by terminal status",
		}, []string{"status"}),
		turnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gemini_cli_ollama_turn_duration_seconds",
			Help:    "End-to-end turn duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		toolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gemini_cli_ollama_tool_executions_total",
			Help: "Tool invocations by outcome",
		}, []string{"tool", "status"}),
		transportLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gemini_cli_ollama_transport_latency_seconds",
			Help:    "Latency of generate calls to the inference endpoint",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		skippedBlocks: factory.NewCounter(prometheus.CounterOpts{
			Name: "gemini_cli_ollama_skipped_blocks_total",
			Help: "Malformed tool_code blocks skipped during parsing",
		}),
		functionCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "gemini_cli_ollama_function_calls_total",
			Help: "Well-formed tool calls extracted from model replies",
		}),
	}
}

// Callback returns the function to pass to ollama.WithMetricsCallback.
func (m *MetricsRecorder) Callback() func(ollama.MetricEventData) {
	return func(data ollama.MetricEventData) {
		switch event := data.(type) {
		case ollama.TurnCompletedData:
			m.turns.WithLabelValues(event.Status).Inc()
			m.turnDuration.Observe(event.Performance.ProcessingDuration.Seconds())
		case ollama.ToolExecutionData:
			status := "success"
			if !event.Succeeded {
				status = "error"
			}
			m.toolExecutions.WithLabelValues(event.ToolName, status).Inc()
		case ollama.TransportData:
			m.transportLatency.Observe(event.Performance.ProcessingDuration.Seconds())
		case ollama.FunctionCallDetectionData:
			m.skippedBlocks.Add(float64(event.SkippedBlocks))
			m.functionCalls.Add(float64(event.FunctionCount))
		}
	}
}
