package ollama

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/OzasaHiro/gemini-cli/internal/tools"
)

// stubTool is a configurable tools.Tool for tests.
type stubTool struct {
	name        string
	description string
	parameters  []tools.Parameter
	parallel    bool
	execute     func(ctx context.Context, params map[string]any) (any, error)
}

func (s *stubTool) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:           s.name,
		DisplayName:    s.name,
		Description:    s.description,
		Parameters:     s.parameters,
		Parallelizable: s.parallel,
	}
}

func (s *stubTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	if s.execute == nil {
		return "", nil
	}
	return s.execute(ctx, params)
}

func newTestCatalog(t *testing.T, stubs ...*stubTool) *tools.Registry {
	t.Helper()
	registry := tools.NewRegistry()
	for _, s := range stubs {
		require.NoError(t, registry.Register(s))
	}
	return registry
}

// endpointFromURL converts an httptest server URL into an Endpoint.
func endpointFromURL(t *testing.T, rawURL, model string) Endpoint {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return Endpoint{Host: host, Port: port, Model: model}
}

// scriptedServer plays back one canned model reply per generate request and
// records the prompts it received, in order.
type scriptedServer struct {
	*httptest.Server

	mu      sync.Mutex
	replies []string
	prompts []string
}

func newScriptedServer(t *testing.T, replies ...string) *scriptedServer {
	t.Helper()
	s := &scriptedServer{replies: replies}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var req generateRequest
		require.NoError(t, json.Unmarshal(body, &req))
		require.False(t, req.Stream, "the adapter must request full-response mode")

		s.mu.Lock()
		s.prompts = append(s.prompts, req.Prompt)
		require.Less(t, len(s.prompts)-1, len(s.replies), "more generate requests than scripted replies")
		reply := s.replies[len(s.prompts)-1]
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"response": reply,
			"done":     true,
		}))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *scriptedServer) receivedPrompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// newScriptedAdapter wires an adapter to a scripted server with the given
// catalog and extra options.
func newScriptedAdapter(t *testing.T, server *scriptedServer, catalog tools.Catalog, opts ...Option) *Adapter {
	t.Helper()
	opts = append([]Option{WithHTTPClient(server.Client())}, opts...)
	return New(endpointFromURL(t, server.URL, "test-model"), catalog, opts...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// userHistory builds a single-user-turn conversation.
func userHistory(text string) []*genai.Content {
	return []*genai.Content{
		{Role: roleUser, Parts: []*genai.Part{{Text: text}}},
	}
}
