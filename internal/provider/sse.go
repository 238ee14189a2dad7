// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/cascadeflow/cascadeflow-go/internal/chat"
)

// MaxChunkSize is the maximum allowed size for a single SSE event (64KB).
const MaxChunkSize = 64 * 1024

// =============================================================================
// SSE READER
// =============================================================================

// sseReader parses Server-Sent Events from a response body.
type sseReader struct {
	reader *bufio.Reader
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{reader: bufio.NewReader(r)}
}

// readEvent returns the data of the next SSE event, or io.EOF at stream end.
// Non-data fields (event:, id:, retry:, comments) are ignored.
func (s *sseReader) readEvent() ([]byte, error) {
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line terminates an event.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			data := bytes.TrimSpace(line[5:])
			if len(data) > MaxChunkSize {
				return nil, io.ErrShortBuffer
			}
			dataLines = append(dataLines, data)
		}
	}
}

// =============================================================================
// STREAM WIRE TYPES
// =============================================================================

type wireStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// toolCallAccumulator rebuilds tool calls from streamed fragments.
type toolCallAccumulator struct {
	order []int
	calls map[int]*partialCall
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{calls: make(map[int]*partialCall)}
}

func (a *toolCallAccumulator) add(index int, id, name, argsFragment string) {
	pc, ok := a.calls[index]
	if !ok {
		pc = &partialCall{}
		a.calls[index] = pc
		a.order = append(a.order, index)
	}
	if id != "" {
		pc.id = id
	}
	if name != "" {
		pc.name = name
	}
	pc.args.WriteString(argsFragment)
}

// finish decodes the accumulated calls in arrival order.
func (a *toolCallAccumulator) finish() []chat.ToolCall {
	if len(a.order) == 0 {
		return nil
	}
	out := make([]chat.ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		pc := a.calls[idx]
		out = append(out, chat.ToolCall{
			ID:        pc.id,
			Name:      pc.name,
			Arguments: chat.DecodeArguments(pc.args.String()),
		})
	}
	return out
}

// =============================================================================
// STREAMING INVOKE
// =============================================================================

// StreamInvoke performs one streaming chat completion, forwarding content
// chunks to fn as they arrive, and returns the accumulated assistant
// message. Streaming transport failures surface as *TransportError; the
// stream is not retried because the caller may already have seen chunks.
func (c *Client) StreamInvoke(ctx context.Context, messages []chat.Message, tools []chat.ToolDefinition, opts *CallOptions, fn StreamFunc) (chat.Message, error) {
	if !c.IsConfigured() {
		return chat.Message{}, &TransportError{Model: c.model, Op: "stream", Err: ErrNotConfigured}
	}

	ctx, cancel := c.callContext(ctx, opts)
	defer cancel()

	if err := c.wait(ctx); err != nil {
		return chat.Message{}, &TransportError{Model: c.model, Op: "stream", Err: err}
	}

	body, err := json.Marshal(c.buildRequest(messages, tools, opts, true))
	if err != nil {
		return chat.Message{}, &TransportError{Model: c.model, Op: "stream", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return chat.Message{}, &TransportError{Model: c.model, Op: "stream", Err: err}
	}
	c.setHeaders(req, true)

	resp, err := sharedStreamingClient.Do(req)
	if err != nil {
		return chat.Message{}, &TransportError{Model: c.model, Op: "stream", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		return chat.Message{}, &TransportError{
			Model: c.model, Op: "stream", Status: resp.StatusCode,
			Err: apiError(resp.StatusCode, raw),
		}
	}

	msg, err := c.consumeStream(ctx, resp.Body, fn)
	if err != nil {
		return chat.Message{}, &TransportError{Model: c.model, Op: "stream", Err: err}
	}
	return msg, nil
}

// consumeStream reads SSE events until [DONE], forwarding content and
// accumulating the final message.
func (c *Client) consumeStream(ctx context.Context, body io.Reader, fn StreamFunc) (chat.Message, error) {
	reader := newSSEReader(body)
	var content strings.Builder
	acc := newToolCallAccumulator()
	msg := chat.Message{Role: chat.RoleAssistant}

	for {
		select {
		case <-ctx.Done():
			return chat.Message{}, ctx.Err()
		default:
		}

		data, err := reader.readEvent()
		if err != nil {
			if err == io.EOF {
				break
			}
			return chat.Message{}, err
		}

		if bytes.Equal(data, []byte("[DONE]")) {
			break
		}

		var wc wireStreamChunk
		if err := json.Unmarshal(data, &wc); err != nil {
			// A single malformed event is skipped, not fatal.
			c.logger.Debug("skipping malformed stream event", zap.Error(err))
			continue
		}

		if wc.Usage != nil {
			msg.Usage = &chat.TokenUsage{
				InputTokens:  wc.Usage.PromptTokens,
				OutputTokens: wc.Usage.CompletionTokens,
			}
		}

		if len(wc.Choices) == 0 {
			continue
		}
		delta := wc.Choices[0].Delta

		for _, tc := range delta.ToolCalls {
			acc.add(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments)
		}

		if delta.Content != "" {
			content.WriteString(delta.Content)
			if fn != nil {
				fn(Chunk{Content: delta.Content, Model: wc.Model})
			}
		}

		if wc.Choices[0].FinishReason != "" {
			break
		}
	}

	if fn != nil {
		fn(Chunk{Done: true})
	}

	msg.Content = content.String()
	msg.ToolCalls = acc.finish()
	return msg, nil
}
