// Package ollama implements the gemini-cli generation contract on top of a
// plain text-completion endpoint. Models served this way have no native
// function calling, so the adapter teaches a textual tool-call convention in
// the prompt, parses the reply for embedded call blocks, drives the catalog's
// tools, and re-prompts the model with the outcomes to obtain a final answer.
//
// CONCURRENCY SUMMARY:
//   - Adapter: thread-safe; all fields are immutable after New.
//   - A single turn is one sequential pipeline; the adapter never issues two
//     network calls concurrently within a turn. Runs of parallelizable tool
//     calls are the only intra-turn concurrency.
//   - ParseModelReply: stateless, safe for concurrent use.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/OzasaHiro/gemini-cli/internal/tools"
)

// Conversation roles, as used by the generation contract.
const (
	roleUser  = "user"
	roleModel = "model"
)

// Adapter is the pseudo function-calling backend. It satisfies the same
// generation contract as the native Gemini backend, so callers never need to
// know which one they are talking to.
type Adapter struct {
	transport       *transportClient
	catalog         tools.Catalog
	logger          *slog.Logger
	metricsCallback func(MetricEventData)

	// maxToolRounds bounds how many times a turn may execute tools before
	// the model must answer in plain text. Tool-call-shaped text in the
	// reply after the last round is treated as ordinary text.
	maxToolRounds int

	// maxToolCalls caps how many calls of a single reply are honored.
	maxToolCalls int

	// maxParallelTools bounds the concurrency of a parallelizable batch.
	maxParallelTools int

	bufferPool          sync.Pool
	bufferPoolThreshold int
}

// New creates an adapter for the given endpoint and tool catalog.
func New(endpoint Endpoint, catalog tools.Catalog, opts ...Option) *Adapter {
	a := &Adapter{
		catalog: catalog,
		logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.LevelError + 1, // silent unless a logger is supplied
		})),
		maxToolRounds:       1,
		maxToolCalls:        8,
		maxParallelTools:    4,
		bufferPoolThreshold: 64 * 1024,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.transport == nil {
		a.transport = newTransportClient(endpoint, nil, a.logger)
	} else {
		// An injected HTTP client still talks to the configured endpoint.
		a.transport.endpoint = endpoint
		a.transport.logger = a.logger
	}

	a.bufferPool = sync.Pool{
		New: func() interface{} {
			return bytes.NewBuffer(make([]byte, 0, 1024))
		},
	}

	return a
}

// putBufferToPool returns a prompt-building buffer to the pool unless it has
// grown past the reuse threshold, in which case it is left for the GC.
func (a *Adapter) putBufferToPool(buf *bytes.Buffer) {
	buf.Reset()
	if buf.Cap() <= a.bufferPoolThreshold {
		a.bufferPool.Put(buf)
	}
}

// GenerateContent runs one full turn and returns its single terminal reply.
//
// Turn-level faults (no user prompt, transport failure) do not surface as Go
// errors: they yield a reply whose text explains the failure plainly and
// whose finish reason is OTHER, so the caller always has something to show.
func (a *Adapter) GenerateContent(ctx context.Context, history []*genai.Content) (*genai.GenerateContentResponse, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return a.runTurn(ctx, history), nil
}

// GenerateContentStream exposes the turn as the contract's reply sequence.
// This backend operates in full-response mode, so the sequence has exactly
// one element: the same terminal reply GenerateContent would produce.
func (a *Adapter) GenerateContentStream(ctx context.Context, history []*genai.Content) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		yield(a.GenerateContent(ctx, history))
	}
}

// CountTokens approximates the token count of a request from its serialized
// length. It is an estimate for budgeting, not true tokenization.
func (a *Adapter) CountTokens(_ context.Context, history []*genai.Content) (*genai.CountTokensResponse, error) {
	serialized, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("serializing request for token estimate: %w", err)
	}
	total := int32(len(serialized) / 4)
	if total == 0 && len(serialized) > 0 {
		total = 1
	}
	return &genai.CountTokensResponse{TotalTokens: total}, nil
}

// EmbedContent always fails: the completion endpoint behind this adapter has
// no embedding surface.
func (a *Adapter) EmbedContent(_ context.Context, _ []string) (*genai.EmbedContentResponse, error) {
	return nil, ErrEmbeddingUnsupported
}

// runTurn is the turn state machine: prompt, call, parse, then either finish
// or execute tools and go around once more, up to maxToolRounds rounds of
// execution. Every path ends in exactly one terminal reply.
func (a *Adapter) runTurn(ctx context.Context, history []*genai.Content) *genai.GenerateContentResponse {
	turnStart := time.Now()

	userPrompt, err := latestUserPrompt(history)
	if err != nil {
		a.logger.Error("Turn aborted before the first prompt", "error", err)
		a.emitTurnCompleted(0, 0, "OTHER", turnStart)
		return a.errorReply("No user prompt was found in the conversation, so nothing could be sent to the model.")
	}

	prompt := a.buildInitialPrompt(userPrompt)

	var executedCalls []*genai.FunctionCall
	totalToolCalls := 0
	round := 0

	for {
		round++

		raw, err := a.generate(ctx, prompt)
		if err != nil {
			a.logger.Error("Transport fault ended the turn", "round", round, "error", err)
			a.emitTurnCompleted(round, totalToolCalls, "OTHER", turnStart)
			return a.errorReply(fmt.Sprintf("The model endpoint could not be reached or returned an invalid response: %v", err))
		}

		parsed := a.parseReply(raw, round)

		if len(parsed.Calls) == 0 || round > a.maxToolRounds {
			text := raw // fall back to the raw model text when parsing left nothing
			if parsed.Text != nil {
				text = *parsed.Text
			}
			a.emitTurnCompleted(round, totalToolCalls, "STOP", turnStart)
			return a.stopReply(text, executedCalls)
		}

		if len(parsed.RawCalls) > a.maxToolCalls {
			a.logger.Warn("Reply exceeded the per-reply tool call cap; extra calls dropped",
				"requested", len(parsed.RawCalls),
				"cap", a.maxToolCalls)
			parsed.RawCalls = parsed.RawCalls[:a.maxToolCalls]
			parsed.Calls = parsed.Calls[:a.maxToolCalls]
		}

		for _, call := range parsed.Calls {
			call.ID = a.newToolCallID()
		}

		outcomes := a.executeAll(ctx, parsed.RawCalls)
		executedCalls = append(executedCalls, parsed.Calls...)
		totalToolCalls += len(parsed.RawCalls)

		prompt = a.buildSecondPrompt(userPrompt, parsed.RawCalls, outcomes)
	}
}

// generate performs one transport exchange and emits its metric event.
func (a *Adapter) generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	raw, err := a.transport.Generate(ctx, prompt)
	a.emitMetric(TransportData{
		Model:          a.transport.endpoint.Model,
		PromptLength:   len(prompt),
		ResponseLength: len(raw),
		Succeeded:      err == nil,
		Performance:    PerformanceMetrics{ProcessingDuration: time.Since(start)},
	})
	return raw, err
}

// parseReply parses one model reply, logging each skipped block and emitting
// the detection metric.
func (a *Adapter) parseReply(raw string, round int) ParsedReply {
	start := time.Now()
	parsed := ParseModelReply(raw)

	for _, diag := range parsed.Diagnostics {
		a.logger.Warn("Skipped malformed tool_code block",
			"round", round,
			"offset", diag.Offset,
			"reason", diag.Reason)
	}

	names := make([]string, len(parsed.Calls))
	for i, c := range parsed.Calls {
		names[i] = c.Name
	}
	a.emitMetric(FunctionCallDetectionData{
		FunctionCount: len(parsed.Calls),
		FunctionNames: names,
		ContentLength: len(raw),
		SkippedBlocks: len(parsed.Diagnostics),
		Round:         round,
		Performance:   PerformanceMetrics{ProcessingDuration: time.Since(start)},
	})

	if len(parsed.Calls) > 0 {
		a.logger.Info("Detected tool calls in model reply",
			"round", round,
			"call_count", len(parsed.Calls),
			"call_names", names)
	}
	return parsed
}

func (a *Adapter) buildInitialPrompt(userPrompt string) string {
	start := time.Now()
	catalog := a.catalog.Tools()
	prompt := a.buildToolPrompt(userPrompt, catalog)
	a.emitMetric(PromptGenerationData{
		ToolCount:    len(catalog),
		PromptLength: len(prompt),
		Performance:  PerformanceMetrics{ProcessingDuration: time.Since(start)},
	})
	return prompt
}

func (a *Adapter) buildSecondPrompt(userPrompt string, calls []RawToolCall, outcomes []ToolOutcome) string {
	start := time.Now()
	prompt := a.buildFollowUpPrompt(userPrompt, calls, outcomes)
	a.emitMetric(PromptGenerationData{
		PromptLength: len(prompt),
		FollowUp:     true,
		Performance:  PerformanceMetrics{ProcessingDuration: time.Since(start)},
	})
	return prompt
}

func (a *Adapter) emitTurnCompleted(rounds, toolCalls int, status string, start time.Time) {
	a.emitMetric(TurnCompletedData{
		Rounds:      rounds,
		ToolCalls:   toolCalls,
		Status:      status,
		Performance: PerformanceMetrics{ProcessingDuration: time.Since(start)},
	})
}

// stopReply builds the terminal STOP reply: the final text plus one function
// call part per tool invocation the turn executed.
func (a *Adapter) stopReply(text string, calls []*genai.FunctionCall) *genai.GenerateContentResponse {
	parts := make([]*genai.Part, 0, len(calls)+1)
	if text != "" {
		parts = append(parts, &genai.Part{Text: text})
	}
	for _, call := range calls {
		parts = append(parts, &genai.Part{FunctionCall: call})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: roleModel, Parts: parts},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

// errorReply builds the terminal OTHER reply for a turn-level fault.
func (a *Adapter) errorReply(message string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: roleModel, Parts: []*genai.Part{{Text: message}}},
			FinishReason: genai.FinishReasonOther,
		}},
	}
}

// newToolCallID returns a unique call identifier. UUIDv7 keeps IDs sortable
// by creation time; the v4 fallback only fires on entropy or clock trouble.
func (a *Adapter) newToolCallID() string {
	id, err := uuid.NewV7()
	if err != nil {
		a.logger.Error("UUIDv7 generation failed, falling back to UUIDv4", "error", err)
		id = uuid.New()
	}
	return "call_" + id.String()
}

// latestUserPrompt extracts the most recent user-authored text from the
// history: it scans backward for the first user-role entry and concatenates
// that entry's text parts in their original order. The history itself is
// never mutated.
func latestUserPrompt(history []*genai.Content) (string, error) {
	for i := len(history) - 1; i >= 0; i-- {
		content := history[i]
		if content == nil || content.Role != roleUser {
			continue
		}
		var sb strings.Builder
		for _, part := range content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(part.Text)
		}
		if sb.Len() > 0 {
			return sb.String(), nil
		}
	}
	return "", ErrNoUserPrompt
}
