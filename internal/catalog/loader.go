package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tbourn/retail-assistant/internal/domain"
	"github.com/tbourn/retail-assistant/internal/resilience"
)

// maxSnapshotBytes caps how much of a remote snapshot is read.
const maxSnapshotBytes = 32 << 20

// ErrEmptySource is returned by NewLoader for a blank source.
var ErrEmptySource = errors.New("catalog: empty source")

// Loader fetches a full catalog snapshot.
type Loader interface {
	Load(ctx context.Context) (*domain.CatalogSnapshot, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (*domain.CatalogSnapshot, error)

// Load calls f(ctx).
func (f LoaderFunc) Load(ctx context.Context) (*domain.CatalogSnapshot, error) { return f(ctx) }

// NewLoader picks an HTTPLoader for http(s) sources and a FileLoader otherwise.
func NewLoader(source string, timeout time.Duration) (Loader, error) {
	source = strings.TrimSpace(source)
	switch {
	case source == "":
		return nil, ErrEmptySource
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return NewHTTPLoader(source, timeout), nil
	default:
		return FileLoader{Path: source}, nil
	}
}

// FileLoader reads a snapshot from the local filesystem.
type FileLoader struct {
	Path string
}

// Load reads and decodes the file at Path.
func (l FileLoader) Load(ctx context.Context) (*domain.CatalogSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", l.Path, err)
	}
	return Decode(bytes.NewReader(b))
}

// HTTPLoader downloads a snapshot through a circuit breaker with retries.
type HTTPLoader struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
	guard   *resilience.Guard
}

// NewHTTPLoader returns an HTTPLoader with a per-attempt timeout.
func NewHTTPLoader(url string, timeout time.Duration) *HTTPLoader {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPLoader{
		URL:     url,
		Timeout: timeout,
		Client:  &http.Client{},
		guard:   resilience.NewGuard("catalog-fetch", resilience.DefaultConfig),
	}
}

// Load fetches and decodes the remote snapshot.
func (l *HTTPLoader) Load(ctx context.Context) (*domain.CatalogSnapshot, error) {
	var snap *domain.CatalogSnapshot
	err := l.guard.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, l.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
		if err != nil {
			return resilience.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := l.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("catalog: upstream status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return resilience.Permanent(fmt.Errorf("catalog: unexpected status %d", resp.StatusCode))
		}

		s, err := Decode(io.LimitReader(resp.Body, maxSnapshotBytes))
		if err != nil {
			return resilience.Permanent(err)
		}
		snap = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Decode parses a snapshot, links family back-references and rejects
// duplicate model ids.
func Decode(r io.Reader) (*domain.CatalogSnapshot, error) {
	var snap domain.CatalogSnapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	snap.Link()

	seen := make(map[string]struct{}, snap.ModelCount())
	for _, f := range snap.Families {
		for _, m := range f.Models {
			if m.ID == "" {
				return nil, fmt.Errorf("catalog: model without id in family %q", f.ID)
			}
			if _, dup := seen[m.ID]; dup {
				return nil, fmt.Errorf("catalog: duplicate model id %q", m.ID)
			}
			seen[m.ID] = struct{}{}
		}
	}
	return &snap, nil
}
