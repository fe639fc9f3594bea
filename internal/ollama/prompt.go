package ollama

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/OzasaHiro/gemini-cli/internal/tools"
)

// promptPreamble teaches the textual tool-call convention. Models reached
// through this backend have no native function calling, so the convention is
// the whole protocol: one JSON object per block, wrapped in the delimiter
// pair, nothing else inside.
const promptPreamble = `You are an assistant with access to external tools. You cannot call tools natively; instead, you request a tool invocation by writing it into your reply using this exact convention:

<tool_code>
{"tool_name": "<invocation name>", "parameters": {<named arguments>}}
</tool_code>

Rules:
- "tool_name" must be the literal invocation name of one of the tools listed below.
- "parameters" is a JSON object of named arguments. Omit it or pass {} when the tool takes none.
- Emit one block per invocation. You may emit several blocks in a single reply; they are executed in order.
- Write any explanation for the user as plain text outside the blocks.`

// promptExamples shows the convention in use: one single-parameter call, and
// a multi-call sequence.
const promptExamples = `Examples:

A single invocation with one parameter:
<tool_code>
{"tool_name": "read_file", "parameters": {"path": "notes.txt"}}
</tool_code>

Two invocations in one reply, executed in order:
<tool_code>
{"tool_name": "list_directory", "parameters": {"path": "."}}
</tool_code>
<tool_code>
{"tool_name": "current_time", "parameters": {}}
</tool_code>`

// noToolsNotice replaces the tool enumeration when the catalog is empty.
const noToolsNotice = `No tools are available for this request. Answer directly and do not emit any tool_code blocks.`

// buildToolPrompt builds the instruction-augmented first prompt of a turn.
// Deterministic for a given catalog order; the verbatim user request goes
// last so model attention favors the actual task.
func (a *Adapter) buildToolPrompt(userPrompt string, catalog []tools.Tool) string {
	buf := a.bufferPool.Get().(*bytes.Buffer)
	defer a.putBufferToPool(buf)

	buf.WriteString(promptPreamble)
	buf.WriteString("\n\n")

	if len(catalog) == 0 {
		buf.WriteString(noToolsNotice)
	} else {
		buf.WriteString("Available tools:\n")
		for _, tool := range catalog {
			writeToolBlock(buf, tool.Descriptor())
		}
	}

	buf.WriteString("\n\n")
	buf.WriteString(promptExamples)
	buf.WriteString("\n\nUser request:\n")
	buf.WriteString(userPrompt)

	return buf.String()
}

// writeToolBlock emits one natural-language tool description: display name,
// the literal invocation name, free-text description, and the enumerated
// parameter list.
func writeToolBlock(buf *bytes.Buffer, desc tools.Descriptor) {
	fmt.Fprintf(buf, "\n### %s (%s)\n", desc.DisplayName, desc.Name)
	if desc.Description != "" {
		buf.WriteString(desc.Description)
		buf.WriteString("\n")
	}
	if len(desc.Parameters) == 0 {
		buf.WriteString("Parameters: none.\n")
		return
	}
	buf.WriteString("Parameters:\n")
	for _, p := range desc.Parameters {
		requirement := "optional"
		if p.Required {
			requirement = "required"
		}
		fmt.Fprintf(buf, "  - %s (%s, %s): %s\n", p.Name, p.Type, requirement, p.Description)
	}
}

// buildFollowUpPrompt builds the second prompt of a turn: every executed call
// with its parameters and a SUCCESS/ERROR outcome, followed by an instruction
// to synthesize the final answer. calls and outcomes are index-aligned, as
// produced by executeAll.
func (a *Adapter) buildFollowUpPrompt(originalRequest string, calls []RawToolCall, outcomes []ToolOutcome) string {
	buf := a.bufferPool.Get().(*bytes.Buffer)
	defer a.putBufferToPool(buf)

	buf.WriteString("You previously requested tool invocations while answering this user request:\n\n")
	buf.WriteString(originalRequest)
	buf.WriteString("\n\nThe invocations have been executed. Results follow, in the order the calls were made.\n")

	for i, call := range calls {
		outcome := outcomes[i]
		fmt.Fprintf(buf, "\nTool call %d: %s\n", i+1, call.Name)
		fmt.Fprintf(buf, "Parameters: %s\n", serializeParameters(call.Parameters))
		if outcome.Err != "" {
			buf.WriteString("Status: ERROR\n")
			fmt.Fprintf(buf, "Error: %s\n", outcome.Err)
		} else {
			buf.WriteString("Status: SUCCESS\n")
			fmt.Fprintf(buf, "Output:\n%s\n", outcome.Result)
		}
	}

	buf.WriteString("\nUsing these results, write the final answer to the user's request. ")
	buf.WriteString("If some calls failed, answer from the successful results and briefly say what could not be done. ")
	buf.WriteString("Do not emit any further tool_code blocks.")

	return buf.String()
}

func serializeParameters(params map[string]any) string {
	if len(params) == 0 {
		return "{}"
	}
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%v", params)
	}
	return string(b)
}
