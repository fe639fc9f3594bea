// Package llm defines the generation contract every backend implements.
// Callers hold a Generator and stay agnostic of whether replies come from the
// Gemini API natively or from a local model through the ollama adapter.
package llm

import (
	"context"
	"iter"

	"google.golang.org/genai"
)

// Generator is the caller-facing generation contract.
//
// Every reply carries text and/or function-call parts and a terminal finish
// reason on its candidate: genai.FinishReasonStop for a completed turn,
// genai.FinishReasonOther for a turn-level fault explained in the text.
type Generator interface {
	// GenerateContent runs one turn against the supplied conversation
	// history and returns its final reply. The history is read-only to the
	// backend.
	GenerateContent(ctx context.Context, history []*genai.Content) (*genai.GenerateContentResponse, error)

	// GenerateContentStream runs one turn and yields its reply sequence.
	// Backends operating in full-response mode yield a single element.
	GenerateContentStream(ctx context.Context, history []*genai.Content) iter.Seq2[*genai.GenerateContentResponse, error]

	// CountTokens reports the token count of a request. Backends without a
	// real tokenizer return a documented approximation.
	CountTokens(ctx context.Context, history []*genai.Content) (*genai.CountTokensResponse, error)

	// EmbedContent embeds the given texts. Backends without an embedding
	// surface fail explicitly rather than returning an empty result.
	EmbedContent(ctx context.Context, texts []string) (*genai.EmbedContentResponse, error)
}
