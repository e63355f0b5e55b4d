package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbourn/retail-assistant/internal/domain"
)

func TestComplete_SendsToolsAndParsesToolCalls(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer")
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_, _ = w.Write([]byte(`{"model":"m1","choices":[{"finish_reason":"tool_calls","message":{"role":"assistant","content":"","tool_calls":[{"id":"c1","type":"function","function":{"name":"get_price","arguments":"{\"product_id\":\"ps5\"}"}}]}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "sk-test", Model: "m1", Timeout: time.Second})
	resp, err := c.Complete(context.Background(), ChatRequest{
		Messages: []Message{{Role: domain.RoleUser, Content: "hi"}},
		Tools:    []Tool{{Name: "get_price", Description: "price", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "get_price" || resp.ToolCalls[0].ID != "c1" {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	if got["tool_choice"] != "auto" {
		t.Fatalf("tool_choice = %v", got["tool_choice"])
	}
	tools, _ := got["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("tools not sent: %v", got["tools"])
	}
}

func TestComplete_NoToolsOmitsToolChoice(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Model: "m1"})
	resp, err := c.Complete(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}})
	if err != nil || resp.Content != "hello" || resp.Model != "m1" {
		t.Fatalf("resp = %+v, err = %v", resp, err)
	}
	if _, ok := got["tool_choice"]; ok {
		t.Fatalf("tool_choice must be omitted without tools")
	}
}

func TestComplete_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MaxRetries: 2, Timeout: 5 * time.Second})
	resp, err := c.Complete(context.Background(), ChatRequest{})
	if err != nil || resp.Content != "ok" {
		t.Fatalf("resp = %+v, err = %v", resp, err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls = %d; want 2", calls)
	}
}

func TestComplete_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MaxRetries: 3})
	_, err := c.Complete(context.Background(), ChatRequest{})
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 UpstreamError, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls = %d; want 1", calls)
	}
}

func TestComplete_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.Complete(context.Background(), ChatRequest{})
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %T %v", err, err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestMessage_MarshalJSON(t *testing.T) {
	b, _ := json.Marshal(Message{Role: "user", Content: "what is this?", ImageURLs: []string{"https://x/y.jpg"}})
	s := string(b)
	if !strings.Contains(s, `"type":"image_url"`) || !strings.Contains(s, `"url":"https://x/y.jpg"`) || !strings.Contains(s, `"type":"text"`) {
		t.Fatalf("image message = %s", s)
	}

	b, _ = json.Marshal(Message{Role: "assistant", ToolCalls: []domain.ToolCall{{ID: "1", Name: "n", Arguments: "{}"}}})
	s = string(b)
	if !strings.Contains(s, `"content":null`) || !strings.Contains(s, `"type":"function"`) {
		t.Fatalf("tool-call message = %s", s)
	}

	b, _ = json.Marshal(Message{Role: "tool", Content: "r", ToolCallID: "1", Name: "n"})
	s = string(b)
	if !strings.Contains(s, `"tool_call_id":"1"`) || !strings.Contains(s, `"name":"n"`) {
		t.Fatalf("tool message = %s", s)
	}
}
