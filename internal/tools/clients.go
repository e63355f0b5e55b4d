package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tbourn/retail-assistant/internal/resilience"
)

// WebResult is one hit of a web search.
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearcher answers questions the catalog cannot.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]WebResult, error)
}

// OrderRequest is a purchase handed to the order desk.
type OrderRequest struct {
	SessionID    string `json:"session_id"`
	LeadID       string `json:"lead_id,omitempty"`
	ProductID    string `json:"product_id"`
	Condition    string `json:"condition,omitempty"`
	Quantity     int    `json:"quantity"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// OrderReceipt is the order desk's acknowledgement.
type OrderReceipt struct {
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

// OrderDesk creates draft orders in the storefront.
type OrderDesk interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*OrderReceipt, error)
}

const maxClientBody = 1 << 20

// HTTPWebSearcher queries a search endpoint: GET <url>?q=...&limit=... returning
// {"results":[{title,url,snippet}]}.
type HTTPWebSearcher struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
	guard   *resilience.Guard
}

func NewHTTPWebSearcher(endpoint string, timeout time.Duration) *HTTPWebSearcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPWebSearcher{
		URL:     endpoint,
		Timeout: timeout,
		Client:  &http.Client{},
		guard:   resilience.NewGuard("web-search", resilience.DefaultConfig),
	}
}

func (s *HTTPWebSearcher) Search(ctx context.Context, query string, limit int) ([]WebResult, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	var body struct {
		Results []WebResult `json:"results"`
	}
	err = s.guard.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.Timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return resilience.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		return doJSON(s.Client, req, &body)
	})
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	if limit > 0 && len(body.Results) > limit {
		body.Results = body.Results[:limit]
	}
	return body.Results, nil
}

// HTTPOrderDesk posts OrderRequest JSON to a webhook and decodes an OrderReceipt.
type HTTPOrderDesk struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
	guard   *resilience.Guard
}

func NewHTTPOrderDesk(endpoint string, timeout time.Duration) *HTTPOrderDesk {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPOrderDesk{
		URL:     endpoint,
		Timeout: timeout,
		Client:  &http.Client{},
		// Order creation is not idempotent upstream; never retry.
		guard: resilience.NewGuard("order-desk", resilience.Config{MaxRetries: 0}),
	}
}

func (d *HTTPOrderDesk) CreateOrder(ctx context.Context, in OrderRequest) (*OrderReceipt, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	var out OrderReceipt
	err = d.guard.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d.Timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(payload))
		if err != nil {
			return resilience.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		return doJSON(d.Client, req, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("order desk: %w", err)
	}
	if out.OrderID == "" {
		return nil, fmt.Errorf("order desk: empty order id")
	}
	return &out, nil
}

// doJSON executes req and decodes a 2xx JSON body into v. 5xx and 429 are
// retryable; other failures are permanent.
func doJSON(c *http.Client, req *http.Request, v any) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("upstream status %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return resilience.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxClientBody)).Decode(v); err != nil {
		return resilience.Permanent(fmt.Errorf("decode: %w", err))
	}
	return nil
}
