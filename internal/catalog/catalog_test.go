package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/retail-assistant/internal/domain"
)

func f64(v float64) *float64 { return &v }

func fixture() *domain.CatalogSnapshot {
	s := &domain.CatalogSnapshot{
		Version: "2025-01-01",
		Families: []domain.CatalogFamily{
			{
				ID:    "galaxy-tab",
				Title: "Samsung Galaxy Tab",
				Models: []domain.CatalogModel{
					{
						ID:          "tab-s9",
						Title:       "Galaxy Tab S9",
						Aliases:     []string{"tab s9"},
						Description: "11-inch Android tablet with S Pen",
						Permalink:   "/product/galaxy-tab-s9",
						Conditions: []domain.CatalogCondition{
							{Code: "brand_new", Label: "Brand New", BasePrice: f64(1098)},
							{Code: "preowned", Label: "Preowned", BasePrice: f64(799), TradeIn: &domain.PriceRange{Min: f64(350), Max: f64(450)}},
						},
					},
					{
						ID:    "tab-a9",
						Title: "Galaxy Tab A9",
						Tags:  []string{"budget"},
					},
				},
			},
			{
				ID:    "switch",
				Title: "Nintendo Switch",
				Models: []domain.CatalogModel{
					{ID: "switch-oled", Title: "Switch OLED", Categories: []string{"console"}},
					{ID: "switch-lite", Title: "Switch Lite", Categories: []string{"console"}},
				},
			},
		},
	}
	s.Link()
	return s
}

func staticStore(s *domain.CatalogSnapshot) *Store {
	return NewStore(LoaderFunc(func(context.Context) (*domain.CatalogSnapshot, error) { return s, nil }),
		WithLogger(zerolog.Nop()))
}

// ---- Matcher ----

func TestMatch_AliasScenario(t *testing.T) {
	m := NewMatcher(staticStore(fixture()))
	got := m.Match(context.Background(), "tab s9 price", 5)
	if len(got) == 0 {
		t.Fatal("expected matches")
	}
	if got[0].ModelID != "tab-s9" || got[0].FamilyID != "galaxy-tab" {
		t.Fatalf("first match = %+v; want tab-s9", got[0])
	}
	if got[0].Confidence != 1.0 {
		t.Fatalf("first confidence = %v; want 1.0", got[0].Confidence)
	}
	if *got[0].PriceMin != 799 || *got[0].PriceMax != 1098 {
		t.Fatalf("price range = %v..%v", *got[0].PriceMin, *got[0].PriceMax)
	}
}

func TestMatch_EmptyQueryOrLimit(t *testing.T) {
	var calls int32
	src := LoaderFunc(func(context.Context) (*domain.CatalogSnapshot, error) {
		atomic.AddInt32(&calls, 1)
		return fixture(), nil
	})
	m := NewMatcher(NewStore(src, WithLogger(zerolog.Nop())))
	for _, tc := range []struct {
		q     string
		limit int
	}{{"", 5}, {"   \t", 5}, {"galaxy", 0}, {"galaxy", -1}} {
		got := m.Match(context.Background(), tc.q, tc.limit)
		if got == nil || len(got) != 0 {
			t.Fatalf("Match(%q,%d) = %v; want empty non-nil", tc.q, tc.limit, got)
		}
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("catalog should not be loaded for empty queries")
	}
}

func TestMatch_SortedConfidenceAndLimit(t *testing.T) {
	m := NewMatcher(staticStore(fixture()))
	for _, q := range []string{"galaxy", "switch console", "tab", "s9", "switch oled"} {
		got := m.Match(context.Background(), q, 10)
		for i := range got {
			if got[i].Confidence < 0 || got[i].Confidence > 1 {
				t.Fatalf("%q: confidence out of range: %v", q, got[i].Confidence)
			}
			if i > 0 && got[i].Confidence > got[i-1].Confidence {
				t.Fatalf("%q: confidences not non-increasing: %+v", q, got)
			}
			if i > 0 && got[i].Score > got[i-1].Score {
				t.Fatalf("%q: scores not sorted: %+v", q, got)
			}
		}
	}
	if got := m.Match(context.Background(), "galaxy", 1); len(got) != 1 {
		t.Fatalf("limit not applied: %d", len(got))
	}
}

func TestMatch_TiesKeepCatalogOrder(t *testing.T) {
	m := NewMatcher(staticStore(fixture()))
	got := m.Match(context.Background(), "console", 5)
	if len(got) != 2 || got[0].ModelID != "switch-oled" || got[1].ModelID != "switch-lite" {
		t.Fatalf("tie order = %+v", got)
	}
	if got[1].Confidence != 0.9 {
		t.Fatalf("second confidence = %v; want 0.9", got[1].Confidence)
	}
}

func TestMatch_ExactTitleWins(t *testing.T) {
	m := NewMatcher(staticStore(fixture()))
	got := m.Match(context.Background(), "Switch Lite", 5)
	if len(got) == 0 || got[0].ModelID != "switch-lite" {
		t.Fatalf("exact title should rank first: %+v", got)
	}
}

func TestMatch_PhraseInShortDescription(t *testing.T) {
	snap := &domain.CatalogSnapshot{Families: []domain.CatalogFamily{{
		ID:    "audio",
		Title: "Audio",
		Models: []domain.CatalogModel{
			{ID: "xm5", Title: "WH-1000XM5", Description: "wireless noise cancelling headphones"},
			{ID: "qc", Title: "QC Ultra", ShortDescription: "Noise cancelling headphones"},
		},
	}}}
	snap.Link()
	m := NewMatcher(staticStore(snap))

	got := m.Match(context.Background(), "noise cancelling headphones", 5)
	if len(got) != 2 {
		t.Fatalf("expected both models, got %+v", got)
	}
	if got[0].Score != got[1].Score {
		t.Fatalf("phrase in short description should score like description: %+v", got)
	}
	want := 3*DefaultWeights.TokenDescription + DefaultWeights.PhraseDescription
	if got[1].ModelID != "qc" || got[1].Score != want {
		t.Fatalf("short description score = %d; want %d (%+v)", got[1].Score, want, got)
	}
}

func TestMatch_NoHits(t *testing.T) {
	m := NewMatcher(staticStore(fixture()))
	if got := m.Match(context.Background(), "toaster", 5); len(got) != 0 {
		t.Fatalf("expected no matches, got %+v", got)
	}
}

func TestConfidence_Floor(t *testing.T) {
	m := NewMatcher(nil)
	if m.confidence(0) != 1 || m.confidence(3) != 0.7 || m.confidence(15) != 0 {
		t.Fatalf("unexpected confidence curve")
	}
}

// ---- Store ----

func TestStore_SingleflightSharesLoad(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	loader := LoaderFunc(func(context.Context) (*domain.CatalogSnapshot, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return fixture(), nil
	})
	s := NewStore(loader, WithLogger(zerolog.Nop()))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if n := s.Snapshot(context.Background()).ModelCount(); n != 4 {
				t.Errorf("ModelCount() = %d; want 4", n)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if c := atomic.LoadInt32(&calls); c != 1 {
		t.Fatalf("loader called %d times; want 1", c)
	}
}

func TestStore_TTLAndFailSoft(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	fail := false
	var calls int
	loader := LoaderFunc(func(context.Context) (*domain.CatalogSnapshot, error) {
		calls++
		if fail {
			return nil, errors.New("boom")
		}
		return fixture(), nil
	})
	s := NewStore(loader, WithClock(clock), WithTTL(time.Hour), WithRetryBackoff(time.Minute), WithLogger(zerolog.Nop()))

	ctx := context.Background()
	if s.Snapshot(ctx).ModelCount() != 4 || calls != 1 {
		t.Fatalf("initial load failed")
	}
	now = now.Add(30 * time.Minute)
	s.Snapshot(ctx)
	if calls != 1 {
		t.Fatalf("reloaded before TTL")
	}

	// Expired + failing: last good snapshot is served.
	now = now.Add(time.Hour)
	fail = true
	if s.Snapshot(ctx).ModelCount() != 4 || calls != 2 {
		t.Fatalf("expected stale snapshot after failed reload (calls=%d)", calls)
	}
	// Within backoff: no new attempt.
	now = now.Add(30 * time.Second)
	s.Snapshot(ctx)
	if calls != 2 {
		t.Fatalf("retried inside backoff")
	}
	// After backoff: retried and recovered.
	now = now.Add(time.Minute)
	fail = false
	s.Snapshot(ctx)
	if calls != 3 {
		t.Fatalf("expected retry after backoff, calls=%d", calls)
	}
}

func TestStore_FailureWithoutSnapshotIsEmpty(t *testing.T) {
	s := NewStore(LoaderFunc(func(context.Context) (*domain.CatalogSnapshot, error) {
		return nil, errors.New("down")
	}), WithLogger(zerolog.Nop()))
	snap := s.Snapshot(context.Background())
	if snap == nil || snap.ModelCount() != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
	if _, ok := s.Lookup(context.Background(), "tab-s9"); ok {
		t.Fatalf("lookup on empty catalog should miss")
	}
	if err := s.Reload(context.Background()); err == nil {
		t.Fatalf("Reload should surface the loader error")
	}
}

func TestStore_Lookup(t *testing.T) {
	s := staticStore(fixture())
	m, ok := s.Lookup(context.Background(), "switch-lite")
	if !ok || m.FamilyID != "switch" {
		t.Fatalf("Lookup = %+v, %v", m, ok)
	}
}

// ---- Loaders ----

const fixtureJSON = `{"version":"v1","families":[{"id":"f","title":"F","models":[{"id":"m","title":"M","conditions":[{"code":"brand_new","label":"Brand New","base_price":10}]}]}]}`

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "catalog.json")
	if err := os.WriteFile(p, []byte(fixtureJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	l, err := NewLoader(p, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Families[0].Models[0].FamilyID != "f" {
		t.Fatalf("family back-reference not linked")
	}
	if _, err := (FileLoader{Path: filepath.Join(dir, "missing.json")}).Load(context.Background()); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestHTTPLoader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(fixtureJSON))
		case "/missing":
			http.NotFound(w, r)
		default:
			_, _ = w.Write([]byte("{not json"))
		}
	}))
	defer srv.Close()

	l, err := NewLoader(srv.URL+"/ok", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := l.(*HTTPLoader); !ok {
		t.Fatalf("expected HTTPLoader for URL source, got %T", l)
	}
	snap, err := l.Load(context.Background())
	if err != nil || snap.ModelCount() != 1 {
		t.Fatalf("Load = %v, %v", snap, err)
	}

	if _, err := NewHTTPLoader(srv.URL+"/missing", time.Second).Load(context.Background()); err == nil {
		t.Fatalf("expected error on 404")
	}
	if _, err := NewHTTPLoader(srv.URL+"/bad", time.Second).Load(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestNewLoader_Empty(t *testing.T) {
	if _, err := NewLoader("  ", time.Second); !errors.Is(err, ErrEmptySource) {
		t.Fatalf("expected ErrEmptySource, got %v", err)
	}
}

func TestDecode_DuplicateIDs(t *testing.T) {
	dup := `{"families":[{"id":"f","models":[{"id":"m"},{"id":"m"}]}]}`
	if _, err := Decode(strings.NewReader(dup)); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}
