package ollama

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// replyText flattens the text parts of a terminal reply.
func replyText(t *testing.T, resp *genai.GenerateContentResponse) string {
	t.Helper()
	require.NotNil(t, resp)
	require.Len(t, resp.Candidates, 1)
	require.NotNil(t, resp.Candidates[0].Content)
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// replyCalls collects the function call parts of a terminal reply.
func replyCalls(t *testing.T, resp *genai.GenerateContentResponse) []*genai.FunctionCall {
	t.Helper()
	require.NotNil(t, resp)
	require.Len(t, resp.Candidates, 1)
	var calls []*genai.FunctionCall
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.FunctionCall != nil {
			calls = append(calls, part.FunctionCall)
		}
	}
	return calls
}

func TestGenerateContent_PlainTextTurn(t *testing.T) {
	server := newScriptedServer(t, "The capital of France is Paris.")
	adapter := newScriptedAdapter(t, server, newTestCatalog(t, &stubTool{name: "ls"}))

	resp, err := adapter.GenerateContent(context.Background(), userHistory("capital of France?"))
	require.NoError(t, err)

	assert.Equal(t, genai.FinishReasonStop, resp.Candidates[0].FinishReason)
	assert.Equal(t, "The capital of France is Paris.", replyText(t, resp))
	assert.Empty(t, replyCalls(t, resp))

	prompts := server.receivedPrompts()
	require.Len(t, prompts, 1, "a plain text reply ends the turn after one exchange")
	assert.Contains(t, prompts[0], toolCodeOpen, "the first prompt teaches the convention")
	assert.Contains(t, prompts[0], "capital of France?")
}

func TestGenerateContent_ToolCallTurn(t *testing.T) {
	executed := 0
	catalog := newTestCatalog(t, &stubTool{
		name:        "read_file",
		description: "Reads a file.",
		execute: func(_ context.Context, params map[string]any) (any, error) {
			executed++
			assert.Equal(t, map[string]any{"path": "notes.txt"}, params)
			return "buy milk", nil
		},
	})

	server := newScriptedServer(t,
		`I'll check your notes. <tool_code>{"tool_name":"read_file","parameters":{"path":"notes.txt"}}</tool_code>`,
		"Your notes say: buy milk.",
	)
	adapter := newScriptedAdapter(t, server, catalog)

	resp, err := adapter.GenerateContent(context.Background(), userHistory("what do my notes say?"))
	require.NoError(t, err)

	assert.Equal(t, 1, executed)
	assert.Equal(t, genai.FinishReasonStop, resp.Candidates[0].FinishReason)
	assert.Equal(t, "Your notes say: buy milk.", replyText(t, resp))

	calls := replyCalls(t, resp)
	require.Len(t, calls, 1)
	assert.Equal(t, "read_file", calls[0].Name)
	assert.Equal(t, map[string]any{"path": "notes.txt"}, calls[0].Args)
	assert.True(t, strings.HasPrefix(calls[0].ID, "call_"), "call ID %q must carry the call_ prefix", calls[0].ID)

	prompts := server.receivedPrompts()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1], "Tool call 1: read_file")
	assert.Contains(t, prompts[1], "Status: SUCCESS")
	assert.Contains(t, prompts[1], "buy milk")
	assert.Contains(t, prompts[1], "what do my notes say?", "the follow-up restates the original request")
}

func TestGenerateContent_UnknownToolReportedToModel(t *testing.T) {
	server := newScriptedServer(t,
		`<tool_code>{"tool_name":"bogus_tool","parameters":{}}</tool_code>`,
		"I could not use that tool, sorry.",
	)
	adapter := newScriptedAdapter(t, server, newTestCatalog(t))

	resp, err := adapter.GenerateContent(context.Background(), userHistory("do the thing"))
	require.NoError(t, err)

	assert.Equal(t, genai.FinishReasonStop, resp.Candidates[0].FinishReason)
	assert.Equal(t, "I could not use that tool, sorry.", replyText(t, resp))

	prompts := server.receivedPrompts()
	require.Len(t, prompts, 2, "resolution failure still produces a follow-up round")
	assert.Contains(t, prompts[1], "Status: ERROR")
	assert.Contains(t, prompts[1], "Tool 'bogus_tool' not found")
}

func TestGenerateContent_TransportFaultEndsTurn(t *testing.T) {
	invoked := false
	catalog := newTestCatalog(t, &stubTool{
		name: "ls",
		execute: func(context.Context, map[string]any) (any, error) {
			invoked = true
			return "", nil
		},
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter := New(endpointFromURL(t, server.URL, "test-model"), catalog, WithHTTPClient(server.Client()))

	resp, err := adapter.GenerateContent(context.Background(), userHistory("list files"))
	require.NoError(t, err, "transport faults surface in the reply, not as Go errors")

	assert.Equal(t, genai.FinishReasonOther, resp.Candidates[0].FinishReason)
	assert.Contains(t, replyText(t, resp), "could not be reached or returned an invalid response")
	assert.False(t, invoked, "no tool runs when the model was never reached")
}

func TestGenerateContent_NoUserPrompt(t *testing.T) {
	server := newScriptedServer(t)
	adapter := newScriptedAdapter(t, server, newTestCatalog(t))

	testCases := []struct {
		name    string
		history []*genai.Content
	}{
		{name: "EmptyHistory", history: nil},
		{
			name: "ModelEntriesOnly",
			history: []*genai.Content{
				{Role: roleModel, Parts: []*genai.Part{{Text: "hello, how can I help?"}}},
			},
		},
		{
			name: "UserEntryWithoutText",
			history: []*genai.Content{
				{Role: roleUser, Parts: []*genai.Part{{Text: ""}}},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := adapter.GenerateContent(context.Background(), tc.history)
			require.NoError(t, err)

			assert.Equal(t, genai.FinishReasonOther, resp.Candidates[0].FinishReason)
			assert.Contains(t, replyText(t, resp), "No user prompt was found")
		})
	}

	assert.Empty(t, server.receivedPrompts(), "nothing is sent to the model without a user prompt")
}

func TestGenerateContent_SecondReplyToolBlocksNotExecuted(t *testing.T) {
	executed := 0
	catalog := newTestCatalog(t, &stubTool{
		name: "current_time",
		execute: func(context.Context, map[string]any) (any, error) {
			executed++
			return "10:00", nil
		},
	})

	server := newScriptedServer(t,
		`<tool_code>{"tool_name":"current_time"}</tool_code>`,
		`It is 10:00. <tool_code>{"tool_name":"current_time"}</tool_code>`,
	)
	adapter := newScriptedAdapter(t, server, catalog)

	resp, err := adapter.GenerateContent(context.Background(), userHistory("time?"))
	require.NoError(t, err)

	assert.Equal(t, 1, executed, "the default round bound allows exactly one round of execution")
	assert.Equal(t, genai.FinishReasonStop, resp.Candidates[0].FinishReason)
	assert.Equal(t, "It is 10:00.", replyText(t, resp), "leftover call syntax is stripped from the final text")
	assert.Len(t, replyCalls(t, resp), 1)
	require.Len(t, server.receivedPrompts(), 2)
}

func TestGenerateContent_ConfiguredExtraRound(t *testing.T) {
	executed := 0
	catalog := newTestCatalog(t, &stubTool{
		name: "step",
		execute: func(context.Context, map[string]any) (any, error) {
			executed++
			return "ok", nil
		},
	})

	server := newScriptedServer(t,
		`<tool_code>{"tool_name":"step","parameters":{"n":1}}</tool_code>`,
		`<tool_code>{"tool_name":"step","parameters":{"n":2}}</tool_code>`,
		"All steps done.",
	)
	adapter := newScriptedAdapter(t, server, catalog, WithMaxToolRounds(2))

	resp, err := adapter.GenerateContent(context.Background(), userHistory("run both steps"))
	require.NoError(t, err)

	assert.Equal(t, 2, executed)
	assert.Equal(t, "All steps done.", replyText(t, resp))
	assert.Len(t, replyCalls(t, resp), 2, "calls from every round appear on the terminal reply")
	require.Len(t, server.receivedPrompts(), 3)
}

func TestGenerateContent_CallCapTruncatesBatch(t *testing.T) {
	executed := 0
	catalog := newTestCatalog(t, &stubTool{
		name: "tick",
		execute: func(context.Context, map[string]any) (any, error) {
			executed++
			return "t", nil
		},
	})

	block := `<tool_code>{"tool_name":"tick"}</tool_code>`
	server := newScriptedServer(t,
		block+block+block,
		"done",
	)
	adapter := newScriptedAdapter(t, server, catalog, WithMaxToolCalls(2))

	resp, err := adapter.GenerateContent(context.Background(), userHistory("tick thrice"))
	require.NoError(t, err)

	assert.Equal(t, 2, executed, "calls beyond the cap are dropped")
	assert.Len(t, replyCalls(t, resp), 2)
}

func TestGenerateContent_RawTextFallback(t *testing.T) {
	// The final reply consists solely of a tool block that is past the round
	// bound. Stripping it would leave nothing, so the raw text is preserved.
	catalog := newTestCatalog(t, &stubTool{name: "step"})
	server := newScriptedServer(t,
		`<tool_code>{"tool_name":"step"}</tool_code>`,
		`<tool_code>{"tool_name":"step"}</tool_code>`,
	)
	adapter := newScriptedAdapter(t, server, catalog)

	resp, err := adapter.GenerateContent(context.Background(), userHistory("go"))
	require.NoError(t, err)

	assert.Equal(t, genai.FinishReasonStop, resp.Candidates[0].FinishReason)
	assert.Contains(t, replyText(t, resp), toolCodeOpen)
}

func TestGenerateContent_CancelledContext(t *testing.T) {
	server := newScriptedServer(t)
	adapter := newScriptedAdapter(t, server, newTestCatalog(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := adapter.GenerateContent(ctx, userHistory("hello"))
	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGenerateContentStream_YieldsSingleReply(t *testing.T) {
	server := newScriptedServer(t, "streamed answer")
	adapter := newScriptedAdapter(t, server, newTestCatalog(t))

	var replies []*genai.GenerateContentResponse
	for resp, err := range adapter.GenerateContentStream(context.Background(), userHistory("hi")) {
		require.NoError(t, err)
		replies = append(replies, resp)
	}

	require.Len(t, replies, 1, "full-response mode yields exactly one element")
	assert.Equal(t, "streamed answer", replyText(t, replies[0]))
	assert.Equal(t, genai.FinishReasonStop, replies[0].Candidates[0].FinishReason)
}

func TestCountTokens(t *testing.T) {
	adapter := New(Endpoint{Host: "localhost", Port: 11434, Model: "test-model"}, newTestCatalog(t))

	short, err := adapter.CountTokens(context.Background(), userHistory("hi"))
	require.NoError(t, err)
	assert.Positive(t, short.TotalTokens)

	long, err := adapter.CountTokens(context.Background(), userHistory(strings.Repeat("a longer prompt ", 50)))
	require.NoError(t, err)
	assert.Greater(t, long.TotalTokens, short.TotalTokens, "the estimate grows with the serialized request")
}

func TestEmbedContent_Unsupported(t *testing.T) {
	adapter := New(Endpoint{Host: "localhost", Port: 11434, Model: "test-model"}, newTestCatalog(t))

	resp, err := adapter.EmbedContent(context.Background(), []string{"embed me"})
	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, ErrEmbeddingUnsupported))
}

func TestLatestUserPrompt(t *testing.T) {
	testCases := []struct {
		name     string
		history  []*genai.Content
		expected string
		wantErr  bool
	}{
		{
			name:     "SingleUserEntry",
			history:  userHistory("hello"),
			expected: "hello",
		},
		{
			name: "MostRecentUserEntryWins",
			history: []*genai.Content{
				{Role: roleUser, Parts: []*genai.Part{{Text: "first question"}}},
				{Role: roleModel, Parts: []*genai.Part{{Text: "first answer"}}},
				{Role: roleUser, Parts: []*genai.Part{{Text: "second question"}}},
			},
			expected: "second question",
		},
		{
			name: "TextPartsJoined",
			history: []*genai.Content{
				{Role: roleUser, Parts: []*genai.Part{{Text: "part one"}, {Text: "part two"}}},
			},
			expected: "part one\npart two",
		},
		{
			name: "NilAndEmptyPartsSkipped",
			history: []*genai.Content{
				{Role: roleUser, Parts: []*genai.Part{nil, {Text: ""}, {Text: "real text"}}},
			},
			expected: "real text",
		},
		{
			name: "EmptyUserEntrySkippedForEarlierOne",
			history: []*genai.Content{
				{Role: roleUser, Parts: []*genai.Part{{Text: "usable"}}},
				{Role: roleUser, Parts: []*genai.Part{{Text: ""}}},
			},
			expected: "usable",
		},
		{
			name:    "NoUserEntries",
			history: []*genai.Content{{Role: roleModel, Parts: []*genai.Part{{Text: "hi"}}}},
			wantErr: true,
		},
		{
			name:    "EmptyHistory",
			history: nil,
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			prompt, err := latestUserPrompt(tc.history)
			if tc.wantErr {
				assert.True(t, errors.Is(err, ErrNoUserPrompt))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, prompt)
		})
	}
}

func TestNewToolCallID_UniqueAndPrefixed(t *testing.T) {
	adapter := New(Endpoint{Host: "localhost", Port: 11434, Model: "test-model"}, newTestCatalog(t))

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := adapter.newToolCallID()
		assert.True(t, strings.HasPrefix(id, "call_"))
		assert.False(t, seen[id], "duplicate ID %q", id)
		seen[id] = true
	}
}
