package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// generatePath is the completion endpoint exposed by an Ollama server.
	generatePath = "/api/generate"

	// maxResponseBytes caps how much of a response body is read. Prevents
	// memory exhaustion from a misbehaving endpoint.
	maxResponseBytes = 10 * 1024 * 1024
)

// Endpoint identifies the inference server and model a turn is sent to.
// Configuration discovery lives elsewhere; this is the resolved record.
type Endpoint struct {
	Host  string
	Port  int
	Model string
}

// URL returns the full generate-endpoint URL.
func (e Endpoint) URL() string {
	return fmt.Sprintf("http://%s:%d%s", e.Host, e.Port, generatePath)
}

// generateRequest is the wire shape of a non-streaming completion request.
// The caller waits for the full generated text rather than incremental tokens.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// transportClient sends prompts to the inference endpoint. It keeps no state
// between calls; retry policy, if any, belongs to the orchestrator (currently:
// none).
type transportClient struct {
	httpClient *http.Client
	endpoint   Endpoint
	logger     *slog.Logger
}

func newTransportClient(endpoint Endpoint, httpClient *http.Client, logger *slog.Logger) *transportClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &transportClient{
		httpClient: httpClient,
		endpoint:   endpoint,
		logger:     logger,
	}
}

// Generate sends one prompt and returns the generated text. Cancellation is
// honored through ctx for the whole network wait.
func (c *transportClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.endpoint.Model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", &TransportError{Op: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.URL(), bytes.NewReader(body))
	if err != nil {
		return "", &TransportError{Op: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Sending generate request",
		"url", c.endpoint.URL(),
		"model", c.endpoint.Model,
		"prompt_length", len(prompt))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Op: "send request", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &TransportError{Op: "read response", StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &TransportError{
			Op:         "generate",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("server returned %s", resp.Status),
		}
	}

	if !gjson.ValidBytes(data) {
		return "", &TransportError{Op: "decode response", StatusCode: resp.StatusCode,
			Err: fmt.Errorf("body is not valid JSON")}
	}
	field := gjson.GetBytes(data, "response")
	if !field.Exists() || field.Type != gjson.String {
		return "", &TransportError{Op: "decode response", StatusCode: resp.StatusCode,
			Err: fmt.Errorf("body has no string %q field", "response")}
	}

	c.logger.Debug("Received generate response",
		"status", resp.StatusCode,
		"response_length", len(field.Str),
		"done", gjson.GetBytes(data, "done").Bool())

	return field.Str, nil
}
