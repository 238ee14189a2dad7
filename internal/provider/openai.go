// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cascadeflow/cascadeflow-go/internal/chat"
)

// Configuration constants for the OpenAI-compatible API client.
const (
	// DefaultBaseURL targets any OpenAI-compatible gateway; override for
	// OpenRouter, vLLM, Ollama's compat endpoint, and friends.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultTimeout is the default timeout for blocking requests.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the retry budget for transient errors.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay caps the backoff delay.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize bounds response bodies to prevent memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024
)

// ErrNotConfigured is returned when the client has no API key or base URL.
var ErrNotConfigured = errors.New("provider client not configured")

var (
	// Shared HTTP clients with connection pooling. The streaming client has
	// no overall timeout; streams are bounded by the request context.
	sharedHTTPClient = &http.Client{
		Transport: sharedTransport(),
		Timeout:   DefaultTimeout,
	}

	sharedStreamingClient = &http.Client{
		Transport: sharedTransport(),
	}
)

func sharedTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client calls one model behind an OpenAI-compatible chat completions API.
// Client implements Model and is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a different compatible gateway.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = url }
}

// WithMaxRetries overrides the transient-error retry budget.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) { c.maxRetries = n }
}

// WithRateLimit installs a client-side request rate limit (requests/sec
// with the given burst). No limiter is installed by default.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithLogger attaches a logger; the default is a nop logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a client for one model.
func NewClient(apiKey, model string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		model:      model,
		maxRetries: DefaultMaxRetries,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ModelName returns the model this client targets.
func (c *Client) ModelName() string {
	return c.model
}

// IsConfigured reports whether the client can make requests.
func (c *Client) IsConfigured() bool {
	return c.apiKey != "" && c.baseURL != "" && c.model != ""
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	LogProbs    bool          `json:"logprobs,omitempty"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message  wireMessage `json:"message"`
		LogProbs *struct {
			Content []struct {
				LogProb float64 `json:"logprob"`
			} `json:"content"`
		} `json:"logprobs"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func encodeMessages(messages []chat.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			var wtc wireToolCall
			wtc.ID = tc.ID
			wtc.Type = "function"
			wtc.Function.Name = tc.Name
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			wtc.Function.Arguments = string(args)
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out = append(out, wm)
	}
	return out
}

func encodeTools(tools []chat.ToolDefinition) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		var wt wireTool
		wt.Type = "function"
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Parameters
		out = append(out, wt)
	}
	return out
}

// decodeAssistant converts the first choice of a response into a Message.
// Tool-call extraction never fails the turn: undecodable argument payloads
// degrade to a {"raw": ...} map.
func decodeAssistant(resp *wireResponse) chat.Message {
	msg := chat.Message{Role: chat.RoleAssistant}
	if len(resp.Choices) == 0 {
		return msg
	}
	choice := resp.Choices[0]
	msg.Content = choice.Message.Content

	for _, wtc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, chat.ToolCall{
			ID:        wtc.ID,
			Name:      wtc.Function.Name,
			Arguments: chat.DecodeArguments(wtc.Function.Arguments),
		})
	}

	if choice.LogProbs != nil {
		for _, lp := range choice.LogProbs.Content {
			msg.LogProbs = append(msg.LogProbs, lp.LogProb)
		}
	}

	if resp.Usage != nil {
		msg.Usage = &chat.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return msg
}

// =============================================================================
// BLOCKING INVOKE
// =============================================================================

// Invoke performs one chat completion call with transient-error retries.
func (c *Client) Invoke(ctx context.Context, messages []chat.Message, tools []chat.ToolDefinition, opts *CallOptions) (chat.Message, error) {
	if !c.IsConfigured() {
		return chat.Message{}, &TransportError{Model: c.model, Op: "invoke", Err: ErrNotConfigured}
	}

	ctx, cancel := c.callContext(ctx, opts)
	defer cancel()

	if err := c.wait(ctx); err != nil {
		return chat.Message{}, &TransportError{Model: c.model, Op: "invoke", Err: err}
	}

	body, err := json.Marshal(c.buildRequest(messages, tools, opts, false))
	if err != nil {
		return chat.Message{}, &TransportError{Model: c.model, Op: "invoke", Err: err}
	}

	var lastErr error
	var lastStatus int
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return chat.Message{}, &TransportError{Model: c.model, Op: "invoke", Err: ctx.Err()}
			case <-time.After(backoffDelay(attempt)):
			}
		}

		resp, status, err := c.send(ctx, sharedHTTPClient, body, false)
		if err == nil {
			return decodeAssistant(resp), nil
		}
		lastErr, lastStatus = err, status

		if !retryableStatus(status) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		c.logger.Debug("provider call retry",
			zap.String("model", c.model),
			zap.Int("attempt", attempt+1),
			zap.Int("status", status),
			zap.Error(err))
	}

	return chat.Message{}, &TransportError{Model: c.model, Op: "invoke", Status: lastStatus, Err: lastErr}
}

func (c *Client) buildRequest(messages []chat.Message, tools []chat.ToolDefinition, opts *CallOptions, stream bool) wireRequest {
	req := wireRequest{
		Model:    c.model,
		Messages: encodeMessages(messages),
		Tools:    encodeTools(tools),
		Stream:   stream,
	}
	if opts != nil {
		req.Temperature = opts.Temperature
		req.MaxTokens = opts.MaxTokens
		req.LogProbs = opts.LogProbs
	}
	return req
}

// callContext applies the per-call timeout from the options, if any.
func (c *Client) callContext(ctx context.Context, opts *CallOptions) (context.Context, context.CancelFunc) {
	if opts != nil && opts.Timeout > 0 {
		return context.WithTimeout(ctx, opts.Timeout)
	}
	return context.WithCancel(ctx)
}

// wait blocks on the client-side rate limiter, when one is installed.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// send performs one HTTP round trip and decodes the response envelope.
// Returns the parsed response, the HTTP status, and an error.
func (c *Client) send(ctx context.Context, client *http.Client, body []byte, stream bool) (*wireResponse, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	c.setHeaders(req, stream)

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, apiError(resp.StatusCode, raw)
	}

	var parsed wireResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, resp.StatusCode, fmt.Errorf("api error: %s", parsed.Error.Message)
	}
	return &parsed, resp.StatusCode, nil
}

func (c *Client) setHeaders(req *http.Request, stream bool) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")
	}
}

// apiError parses an error body into a readable error.
func apiError(status int, body []byte) error {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return fmt.Errorf("api error (status %d): %s", status, envelope.Error.Message)
	}
	return fmt.Errorf("api error (status %d)", status)
}

// retryableStatus reports whether a status is worth retrying. Client errors
// (4xx) are not, except 429; network failures report status 0 and are.
func retryableStatus(status int) bool {
	if status == 0 || status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500
}

// backoffDelay computes the exponential backoff for a retry attempt.
func backoffDelay(attempt int) time.Duration {
	delay := retryBaseDelay << uint(attempt-1)
	if delay > retryMaxDelay {
		return retryMaxDelay
	}
	return delay
}
