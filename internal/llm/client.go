// Package llm wraps the chat-completion HTTP API used for quote suggestions.
// The rest of the app only sees the Generator interface, so everything above
// this package is testable with a stub.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// FallbackText is returned when a successful response carries no message
// content in the expected field.
const FallbackText = "AI response unavailable."

// DefaultModel applies when settings carry no model name.
const DefaultModel = "gpt-4.1"

const defaultBaseURL = "https://api.openai.com/v1"

// RemoteError wraps any failure talking to the remote service: network,
// non-2xx status, or an unparseable body.
type RemoteError struct {
	Op     string
	Status int
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("llm %s: remote status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// GenerateRequest is one one-shot completion request.
type GenerateRequest struct {
	System    string
	Prompt    string
	Model     string
	MaxTokens int
}

// Generator is the injected text-generation capability.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Client talks to an OpenAI-style /chat/completions endpoint with bearer auth.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient builds a client for the given key. baseURL may be empty for the
// public endpoint.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate performs one chat completion and returns the assistant text.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	msgs := make([]message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, message{Role: "user", Content: req.Prompt})
	resp, err := c.post(ctx, chatRequest{Model: model, Messages: msgs, MaxTokens: req.MaxTokens})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return FallbackText, nil
	}
	return resp.Choices[0].Message.Content, nil
}

// TestConnection sends a minimal ping and reports "success" or "error".
// Only OpenAI-style providers are supported; anything else is an error status
// without a network call.
func (c *Client) TestConnection(ctx context.Context, provider, model string) (string, error) {
	if provider != "openai" {
		return "error", &RemoteError{Op: "test_connection", Err: fmt.Errorf("unsupported provider %q", provider)}
	}
	if model == "" {
		model = DefaultModel
	}
	_, err := c.post(ctx, chatRequest{Model: model, Messages: []message{{Role: "system", Content: "ping"}}, MaxTokens: 1})
	if err != nil {
		return "error", err
	}
	return "success", nil
}

func (c *Client) post(ctx context.Context, body chatRequest) (*chatResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &RemoteError{Op: "encode", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &RemoteError{Op: "request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpResp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, &RemoteError{Op: "send", Err: err}
	}
	defer httpResp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, &RemoteError{Op: "read", Status: httpResp.StatusCode, Err: err}
	}
	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
			return nil, &RemoteError{Op: "chat_completions", Status: httpResp.StatusCode, Err: fmt.Errorf("unexpected response")}
		}
		return nil, &RemoteError{Op: "decode", Status: httpResp.StatusCode, Err: err}
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		msg := "request failed"
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return nil, &RemoteError{Op: "chat_completions", Status: httpResp.StatusCode, Err: fmt.Errorf("%s", msg)}
	}
	return &parsed, nil
}
