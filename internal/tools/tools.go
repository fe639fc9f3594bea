// Package tools defines the tool catalog consumed by the generation backends:
// the Tool interface, its descriptor types, and a Registry implementation.
// Backends only ever see the read-only catalog view; tool implementations own
// their side effects.
package tools

import (
	"context"
	"errors"
	"fmt"
)

// MaxToolNameLength is the longest invocation name a tool may register with.
const MaxToolNameLength = 64

// Parameter describes one named argument of a tool.
type Parameter struct {
	Name        string
	Type        string // JSON schema primitive: "string", "integer", "number", "boolean", "object", "array"
	Description string
	Required    bool
}

// Descriptor is the read-only view of a tool exposed to prompt building and
// call resolution.
type Descriptor struct {
	// Name is the unique literal invocation name the model must emit.
	Name string

	// DisplayName is the human-readable name shown in prompts and UIs.
	DisplayName string

	// Description tells the model when and how to use the tool.
	Description string

	// Parameters enumerates the tool's named arguments.
	Parameters []Parameter

	// Parallelizable marks the tool as free of ordering-sensitive side
	// effects. Consecutive calls to parallelizable tools may be executed
	// as a bounded-concurrency batch; everything else runs sequentially.
	Parallelizable bool
}

// Tool is implemented by every callable tool.
type Tool interface {
	// Descriptor returns the tool's read-only description.
	Descriptor() Descriptor

	// Execute runs the tool with the given named parameters. The result may
	// be a string or any JSON-serializable value; errors are reported to the
	// model, not to the end caller.
	Execute(ctx context.Context, params map[string]any) (any, error)
}

// Catalog is the read-only lookup view backends resolve tool calls against.
type Catalog interface {
	// Tools returns all registered tools in registration order.
	Tools() []Tool

	// Lookup resolves an invocation name by exact match.
	Lookup(name string) (Tool, bool)
}

// ValidateName checks that an invocation name is usable in the textual
// tool-call convention: non-empty, at most MaxToolNameLength characters,
// containing only letters, digits, underscores, and hyphens.
func ValidateName(name string) error {
	if name == "" {
		return errors.New("tool name cannot be empty")
	}
	if len(name) > MaxToolNameLength {
		return fmt.Errorf("tool name %q is %d characters long but the maximum is %d", name, len(name), MaxToolNameLength)
	}
	for _, r := range name {
		if !isNameChar(r) {
			return fmt.Errorf("tool name %q contains invalid characters, must match ^[a-zA-Z0-9_-]+$", name)
		}
	}
	return nil
}

func isNameChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
}
