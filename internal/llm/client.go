package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/tbourn/retail-assistant/internal/domain"
	"github.com/tbourn/retail-assistant/internal/observability"
	"github.com/tbourn/retail-assistant/internal/resilience"
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration // per call, including retries
	RPS        float64       // 0 disables throttling
	MaxRetries int
}

// Client calls POST {BaseURL}/chat/completions.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	guard   *resilience.Guard
}

// NewClient returns a Client with defaults applied.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RPS), max(1, int(cfg.RPS)))
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{},
		limiter: lim,
		guard: resilience.NewGuard("model-backend", resilience.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: 250 * time.Millisecond,
		}),
	}
}

// Name returns the configured model name.
func (c *Client) Name() string { return c.cfg.Model }

// Complete sends one completion request. Every failure, including the
// configured timeout, is returned as *UpstreamError.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, "llm.complete",
		attribute.String("llm.model", c.cfg.Model),
		attribute.Int("llm.tools", len(req.Tools)),
		attribute.Int("llm.messages", len(req.Messages)),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.complete(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
	}
	observability.ModelLatency.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return resp, err
}

func (c *Client) complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &UpstreamError{Err: err}
	}

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}

	var out *ChatResponse
	err = c.guard.Do(ctx, func(ctx context.Context) error {
		r, err := c.post(ctx, body)
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		var ue *UpstreamError
		if errors.As(err, &ue) {
			return nil, ue
		}
		return nil, &UpstreamError{Err: err}
	}
	return out, nil
}

func (c *Client) buildRequest(req ChatRequest) wireRequest {
	w := wireRequest{
		Model:       c.cfg.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if len(req.Tools) > 0 {
		w.Tools = make([]wireTool, len(req.Tools))
		for i, t := range req.Tools {
			w.Tools[i] = wireTool{Type: "function", Function: wireFunctionDef{
				Name: t.Name, Description: t.Description, Parameters: t.Parameters,
			}}
		}
		w.ToolChoice = "auto"
	}
	return w
}

func (c *Client) post(ctx context.Context, body []byte) (*ChatResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, resilience.Permanent(&UpstreamError{Err: err})
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		ue := &UpstreamError{Status: resp.StatusCode, Body: truncate(string(raw), 512)}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, ue
		}
		return nil, resilience.Permanent(ue)
	}

	var wr wireResponse
	if err := json.Unmarshal(raw, &wr); err != nil {
		return nil, resilience.Permanent(&UpstreamError{Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)})
	}
	if len(wr.Choices) == 0 {
		return nil, resilience.Permanent(&UpstreamError{Status: resp.StatusCode, Err: errors.New("empty choices")})
	}

	choice := wr.Choices[0]
	out := &ChatResponse{
		Content:      choice.Message.Content,
		Model:        wr.Model,
		FinishReason: choice.FinishReason,
		Usage:        wr.Usage,
	}
	if out.Model == "" {
		out.Model = c.cfg.Model
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
