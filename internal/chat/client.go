// Package chat forwards conversation turns to the configured upstream
// LLM proxy.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	apiKeyHeader = "x-litellm-api-key"
	maxTokens    = 1000

	// maxResponseSize caps how much of an upstream reply is read (4MB).
	maxResponseSize = 4 << 20
)

// ErrTimeout reports that the upstream call exceeded its bound. The
// in-flight request is abandoned; there is no further cancellation
// propagation.
var ErrTimeout = errors.New("upstream request timed out")

// UpstreamError is a non-2xx reply from the proxy. Body holds the decoded
// JSON body when the proxy sent JSON, otherwise the raw text.
type UpstreamError struct {
	Status int
	Body   any
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Status)
}

// Message is one turn in the conversation sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config holds upstream connection settings.
type Config struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls one OpenAI-compatible chat completions endpoint.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	timeout  time.Duration
	http     *http.Client
}

// NewClient resolves the endpoint from the configured base URL and
// returns a ready client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		endpoint: resolveEndpoint(cfg.URL),
		apiKey:   cfg.APIKey,
		model:    model,
		timeout:  timeout,
		http:     &http.Client{},
	}
}

// Endpoint returns the resolved chat completions URL.
func (c *Client) Endpoint() string { return c.endpoint }

// ModelFor returns the model to use for a request, falling back to the
// configured default when the caller did not pick one.
func (c *Client) ModelFor(requested string) string {
	if requested != "" {
		return requested
	}
	return c.model
}

// resolveEndpoint appends the chat completions path unless the configured
// URL already targets it.
func resolveEndpoint(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "chat/completions" || strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

type completionRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

// Result is a successful upstream reply.
type Result struct {
	Assistant string
	Raw       json.RawMessage
}

// Complete forwards the message list upstream and extracts the assistant
// reply. The call is bounded by the configured timeout, after which it
// fails with ErrTimeout.
func (c *Client) Complete(ctx context.Context, model string, messages []Message) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(completionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("encode upstream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("call upstream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: decodeErrorBody(resp.Header.Get("Content-Type"), raw)}
	}

	return &Result{Assistant: extractAssistant(raw), Raw: raw}, nil
}

func decodeErrorBody(contentType string, raw []byte) any {
	if strings.Contains(contentType, "application/json") {
		var body any
		if err := json.Unmarshal(raw, &body); err == nil {
			return body
		}
	}
	return string(raw)
}

// extractAssistant pulls the reply text out of the known upstream shapes:
// OpenAI choices, a bare message object, a raw string, or an assistant
// field.
func extractAssistant(raw []byte) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	var data struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
		Assistant string `json:"assistant"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return ""
	}
	if len(data.Choices) > 0 && data.Choices[0].Message.Content != "" {
		return data.Choices[0].Message.Content
	}
	if data.Message != nil && data.Message.Content != "" {
		return data.Message.Content
	}
	return data.Assistant
}
