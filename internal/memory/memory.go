// Package memory is the client side of the long-term memory service: facts
// recalled for a session before a model call and exchanges remembered after a
// successful turn. The storage format is the service's concern.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tbourn/retail-assistant/internal/resilience"
)

// Store recalls and records long-term facts about a customer session.
type Store interface {
	Recall(ctx context.Context, sessionID, query string, limit int) ([]string, error)
	Remember(ctx context.Context, sessionID, userText, reply string) error
}

// Nop is a Store that remembers nothing.
type Nop struct{}

func (Nop) Recall(context.Context, string, string, int) ([]string, error) { return nil, nil }
func (Nop) Remember(context.Context, string, string, string) error { return nil }

// HTTPStore talks JSON to a memory service:
//
//	POST {base}/recall   {"session_id","query","limit"} -> {"facts":[...]}
//	POST {base}/remember {"session_id","user","assistant"}
type HTTPStore struct {
	base    string
	timeout time.Duration
	client  *http.Client
	guard   *resilience.Guard
}

// NewHTTPStore returns a client for the service at baseURL.
func NewHTTPStore(baseURL string, timeout time.Duration) *HTTPStore {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPStore{
		base:    strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{},
		guard:   resilience.NewGuard("memory", resilience.Config{MaxRetries: 1, InitialBackoff: 100 * time.Millisecond}),
	}
}

type recallRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	Limit     int    `json:"limit"`
}

type recallResponse struct {
	Facts []string `json:"facts"`
}

type rememberRequest struct {
	SessionID string `json:"session_id"`
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

func (s *HTTPStore) Recall(ctx context.Context, sessionID, query string, limit int) ([]string, error) {
	var out recallResponse
	if err := s.post(ctx, "/recall", recallRequest{SessionID: sessionID, Query: query, Limit: limit}, &out); err != nil {
		return nil, err
	}
	facts := out.Facts[:0]
	for _, f := range out.Facts {
		if f = strings.TrimSpace(f); f != "" {
			facts = append(facts, f)
		}
	}
	if limit > 0 && len(facts) > limit {
		facts = facts[:limit]
	}
	return facts, nil
}

func (s *HTTPStore) Remember(ctx context.Context, sessionID, userText, reply string) error {
	return s.post(ctx, "/remember", rememberRequest{SessionID: sessionID, User: userText, Assistant: reply}, nil)
}

func (s *HTTPStore) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	err = s.guard.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+path, bytes.NewReader(body))
		if err != nil {
			return resilience.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("status %d", resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return resilience.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
			return resilience.Permanent(fmt.Errorf("decode: %w", err))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("memory %s: %w", path, err)
	}
	return nil
}
