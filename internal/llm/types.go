// Package llm is a client for OpenAI-compatible chat completion backends with
// function calling.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tbourn/retail-assistant/internal/domain"
)

// ChatModel is the backend the agent talks to. *Client implements it; tests
// substitute scripted fakes.
type ChatModel interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
}

// Message is one chat message. ImageURLs turn the content into a multi-part
// (text + image) message for vision-capable models.
type Message struct {
	Role       string
	Content    string
	ImageURLs  []string
	ToolCalls  []domain.ToolCall
	ToolCallID string
	Name       string
}

// FromTurn converts a stored conversation turn.
func FromTurn(t domain.ConversationTurn) Message {
	return Message{
		Role:       t.Role,
		Content:    t.Content,
		ToolCalls:  t.ToolCalls,
		ToolCallID: t.ToolCallID,
		Name:       t.Name,
	}
}

// Tool declares a callable function. Parameters is a JSON schema object.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatRequest is a single completion request. Tools are offered with
// tool_choice "auto" when non-empty.
type ChatRequest struct {
	Messages    []Message
	Tools       []Tool
	Temperature *float64
	MaxTokens   int
}

// Usage reports token accounting when the backend provides it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the first choice of a completion.
type ChatResponse struct {
	Content      string
	ToolCalls    []domain.ToolCall
	Model        string
	FinishReason string
	Usage        Usage
}

// UpstreamError wraps any failure talking to the backend. Status is zero for
// transport errors and timeouts.
type UpstreamError struct {
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("llm: upstream status %d: %v", e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("llm: upstream status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("llm: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ---- wire format ----

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string          `json:"type"`
	Function wireFunctionDef `json:"function"`
}

type wireFunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type wirePart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
}

type wireImageURL struct {
	URL string `json:"url"`
}

type wireRequest struct {
	Model       string     `json:"model"`
	Messages    []Message  `json:"messages"`
	Tools       []wireTool `json:"tools,omitempty"`
	ToolChoice  string     `json:"tool_choice,omitempty"`
	Temperature *float64   `json:"temperature,omitempty"`
	MaxTokens   int        `json:"max_tokens,omitempty"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Role      string         `json:"role"`
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// MarshalJSON renders the OpenAI message shape.
func (m Message) MarshalJSON() ([]byte, error) {
	out := map[string]any{"role": m.Role}
	if len(m.ImageURLs) > 0 {
		parts := make([]wirePart, 0, 1+len(m.ImageURLs))
		if m.Content != "" {
			parts = append(parts, wirePart{Type: "text", Text: m.Content})
		}
		for _, u := range m.ImageURLs {
			parts = append(parts, wirePart{Type: "image_url", ImageURL: &wireImageURL{URL: u}})
		}
		out["content"] = parts
	} else {
		// Assistant tool-call messages may have empty content; null is accepted.
		if m.Content != "" || len(m.ToolCalls) == 0 {
			out["content"] = m.Content
		} else {
			out["content"] = nil
		}
	}
	if len(m.ToolCalls) > 0 {
		calls := make([]wireToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			calls[i] = wireToolCall{ID: tc.ID, Type: "function", Function: wireFunction{Name: tc.Name, Arguments: tc.Arguments}}
		}
		out["tool_calls"] = calls
	}
	if m.ToolCallID != "" {
		out["tool_call_id"] = m.ToolCallID
	}
	if m.Name != "" {
		out["name"] = m.Name
	}
	return json.Marshal(out)
}
