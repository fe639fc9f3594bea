package ollama

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"google.golang.org/genai"
)

// Delimiter tokens of the textual tool-call convention. A call is a single
// JSON object {"tool_name": string, "parameters": object} wrapped in this
// exact pair.
const (
	toolCodeOpen  = "<tool_code>"
	toolCodeClose = "</tool_code>"
)

// RawToolCall is a tool call exactly as extracted from model text, before any
// resolution against the catalog.
type RawToolCall struct {
	Name       string
	Parameters map[string]any
}

// ParseDiagnostic records a delimited block that was skipped during parsing.
// Skipped blocks contribute no calls and their literal text stays in the
// cleaned output, so callers and tests can assert on them instead of relying
// on side-channel logging.
type ParseDiagnostic struct {
	// Offset is the byte offset of the block's opening delimiter.
	Offset int

	// Block is the matched text, delimiters included.
	Block string

	// Reason explains why the block was skipped.
	Reason string
}

// ParsedReply is the structured view of one model reply.
//
// Invariant: len(Calls) == len(RawCalls); element i of each describes the
// same matched block, in left-to-right appearance order. Calls carry no IDs;
// the orchestrator assigns them.
type ParsedReply struct {
	// Text is the reply with every well-formed tool-call block removed and
	// whitespace normalized. nil when nothing remains, as distinct from an
	// empty string.
	Text *string

	// Calls are the validated tool calls, in appearance order.
	Calls []*genai.FunctionCall

	// RawCalls are the as-extracted counterparts of Calls.
	RawCalls []RawToolCall

	// Diagnostics lists every skipped block.
	Diagnostics []ParseDiagnostic
}

// blockMatch is one delimited region located by the scanner.
type blockMatch struct {
	start int    // offset of the opening delimiter
	end   int    // offset one past the closing delimiter
	body  string // interior between the delimiters
}

// multiNewline matches runs of three or more newlines, which are collapsed to
// exactly two after block removal.
var multiNewline = regexp.MustCompile(`\n{3,}`)

// ParseModelReply scans model text for every delimiter-wrapped tool-call
// block, in left-to-right order, non-overlapping. Each matched block gets its
// own error boundary: a malformed block yields a diagnostic and is left in
// the cleaned text, while subsequent blocks are still extracted. It is a
// pure, single-pass function with no side effects.
func ParseModelReply(modelText string) ParsedReply {
	var reply ParsedReply
	var clean strings.Builder
	pos := 0

	for pos < len(modelText) {
		rel := strings.Index(modelText[pos:], toolCodeOpen)
		if rel < 0 {
			break
		}
		start := pos + rel

		match, ok := scanBlock(modelText, start)
		if !ok {
			// Opening delimiter with no usable closing delimiter. The
			// remainder cannot contain a complete block.
			reply.Diagnostics = append(reply.Diagnostics, ParseDiagnostic{
				Offset: start,
				Block:  modelText[start:],
				Reason: "unterminated tool_code block",
			})
			break
		}

		call, reason := decodeToolCall(match.body)
		if reason != "" {
			// Skipped blocks keep their literal text in the output. Known
			// fidelity gap: the user sees the raw protocol syntax.
			reply.Diagnostics = append(reply.Diagnostics, ParseDiagnostic{
				Offset: start,
				Block:  modelText[match.start:match.end],
				Reason: reason,
			})
			clean.WriteString(modelText[pos:match.end])
			pos = match.end
			continue
		}

		reply.RawCalls = append(reply.RawCalls, call)
		reply.Calls = append(reply.Calls, &genai.FunctionCall{
			Name: call.Name,
			Args: call.Parameters,
		})
		clean.WriteString(modelText[pos:match.start])
		pos = match.end
	}
	clean.WriteString(modelText[pos:])

	text := multiNewline.ReplaceAllString(clean.String(), "\n\n")
	text = strings.TrimSpace(text)
	if text != "" {
		reply.Text = &text
	}
	return reply
}

// scanBlock delimits one block starting at the opening token at start.
//
// The interior is located by balanced scanning of the JSON object (brace
// stack with string and escape states) so that braces and even delimiter
// tokens inside JSON strings do not end the block early. When the interior is
// not a well-formed JSON structure, the scan falls back to the nearest
// literal closing token so the malformed block can still be diagnosed.
func scanBlock(text string, start int) (blockMatch, bool) {
	innerStart := start + len(toolCodeOpen)

	if jsonEnd, ok := scanBalancedJSON(text, innerStart); ok {
		// The closing delimiter must follow the JSON, whitespace aside.
		tail := jsonEnd
		for tail < len(text) && isSpace(text[tail]) {
			tail++
		}
		if strings.HasPrefix(text[tail:], toolCodeClose) {
			return blockMatch{
				start: start,
				end:   tail + len(toolCodeClose),
				body:  text[innerStart:jsonEnd],
			}, true
		}
	}

	// Fallback: delimit by the literal closing token.
	rel := strings.Index(text[innerStart:], toolCodeClose)
	if rel < 0 {
		return blockMatch{}, false
	}
	innerEnd := innerStart + rel
	return blockMatch{
		start: start,
		end:   innerEnd + len(toolCodeClose),
		body:  text[innerStart:innerEnd],
	}, true
}

// scanBalancedJSON skips leading whitespace at from and, if an object opens
// there, returns the offset one past its balanced closing brace.
func scanBalancedJSON(text string, from int) (int, bool) {
	i := from
	for i < len(text) && isSpace(text[i]) {
		i++
	}
	if i >= len(text) || text[i] != '{' {
		return 0, false
	}

	depth := 0
	inString := false
	escaped := false
	for ; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
			if depth < 0 {
				return 0, false
			}
		}
	}
	return 0, false // ran out of input before the object closed
}

// decodeToolCall validates one block interior and builds the raw call.
// A non-empty reason means the block must be skipped.
func decodeToolCall(body string) (RawToolCall, string) {
	body = strings.TrimSpace(body)
	if !gjson.Valid(body) {
		return RawToolCall{}, "block interior is not valid JSON"
	}

	obj := gjson.Parse(body)
	name := obj.Get("tool_name")
	if !name.Exists() || name.Type != gjson.String || strings.TrimSpace(name.Str) == "" {
		return RawToolCall{}, `missing or invalid "tool_name"`
	}

	params := map[string]any{}
	if p := obj.Get("parameters"); p.Exists() {
		if !p.IsObject() {
			return RawToolCall{}, `"parameters" is not a JSON object`
		}
		if m, ok := p.Value().(map[string]any); ok {
			params = m
		}
	}

	return RawToolCall{Name: name.Str, Parameters: params}, ""
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
