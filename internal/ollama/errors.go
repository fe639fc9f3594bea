package ollama

import (
	"errors"
	"fmt"
)

// ErrNoUserPrompt is reported when a turn's conversation history contains no
// user-authored text to build a prompt from. It is fatal to the turn.
var ErrNoUserPrompt = errors.New("conversation history contains no user prompt")

// ErrEmbeddingUnsupported is returned by EmbedContent: the Ollama backend
// implements text generation only. This is a hard, documented gap, never a
// silent no-op.
var ErrEmbeddingUnsupported = errors.New("embedding is not implemented by the ollama backend")

// TransportError reports a failed exchange with the inference endpoint:
// unreachable server, non-2xx status, or a response body that does not have
// the expected shape. Transport failures are fatal to the turn and are never
// retried by the client.
type TransportError struct {
	// Op names the step that failed ("send request", "read response", ...).
	Op string

	// StatusCode is the HTTP status when the server answered, 0 otherwise.
	StatusCode int

	// Err is the underlying cause, if any.
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("ollama transport: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("ollama transport: %s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("ollama transport: %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("ollama transport: %s", e.Op)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }
