// Package catalog loads the versioned product catalog, caches it in memory
// and ranks its models against free-text queries.
//
// The Store holds one immutable snapshot at a time behind an atomic pointer,
// so readers never see a half-built catalog. Expired or missing snapshots are
// reloaded through a singleflight group: concurrent callers during a miss all
// wait on the same load. Load failures are logged and degrade to the last
// good snapshot, or to an empty catalog when none exists; a failed load is
// not retried until the retry backoff has elapsed.
package catalog

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/tbourn/retail-assistant/internal/domain"
	"github.com/tbourn/retail-assistant/internal/observability"
)

const (
	defaultTTL          = time.Hour
	defaultRetryBackoff = time.Minute
	flightKey           = "catalog"
)

// view is an indexed, read-only snapshot.
type view struct {
	snap     *domain.CatalogSnapshot
	models   []*domain.CatalogModel // catalog order
	byID     map[string]*domain.CatalogModel
	loadedAt time.Time
}

var emptyView = newView(&domain.CatalogSnapshot{}, time.Time{})

func newView(s *domain.CatalogSnapshot, at time.Time) *view {
	v := &view{
		snap:     s,
		models:   make([]*domain.CatalogModel, 0, s.ModelCount()),
		byID:     make(map[string]*domain.CatalogModel, s.ModelCount()),
		loadedAt: at,
	}
	for fi := range s.Families {
		for mi := range s.Families[fi].Models {
			m := &s.Families[fi].Models[mi]
			v.models = append(v.models, m)
			v.byID[m.ID] = m
		}
	}
	return v
}

// Store is the process-wide catalog cache. Create one per process and inject
// it; it is safe for concurrent use.
type Store struct {
	loader  Loader
	ttl     time.Duration
	backoff time.Duration
	now     func() time.Time
	log     zerolog.Logger

	cur      atomic.Pointer[view]
	failedAt atomic.Int64 // unix nanos of the last failed load; 0 = none
	sf       singleflight.Group
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithTTL sets how long a snapshot is served before a reload.
func WithTTL(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithRetryBackoff sets the minimum gap between a failed load and the next attempt.
func WithRetryBackoff(d time.Duration) StoreOption {
	return func(s *Store) {
		if d >= 0 {
			s.backoff = d
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for load failures.
func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) { s.log = l }
}

// NewStore returns a Store that loads lazily on first use.
func NewStore(loader Loader, opts ...StoreOption) *Store {
	s := &Store{
		loader:  loader,
		ttl:     defaultTTL,
		backoff: defaultRetryBackoff,
		now:     time.Now,
		log:     log.Logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Snapshot returns the current snapshot, loading it if missing or expired.
// It never returns nil.
func (s *Store) Snapshot(ctx context.Context) *domain.CatalogSnapshot {
	return s.view(ctx).snap
}

// Models returns every model in catalog order.
func (s *Store) Models(ctx context.Context) []*domain.CatalogModel {
	return s.view(ctx).models
}

// Lookup finds a model by id.
func (s *Store) Lookup(ctx context.Context, id string) (*domain.CatalogModel, bool) {
	m, ok := s.view(ctx).byID[id]
	return m, ok
}

// Reload forces a load regardless of TTL and backoff. Concurrent callers
// share the in-flight load.
func (s *Store) Reload(ctx context.Context) error {
	ch := s.sf.DoChan(flightKey, func() (any, error) {
		return s.load(context.WithoutCancel(ctx))
	})
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) view(ctx context.Context) *view {
	now := s.now()
	v := s.cur.Load()
	if v != nil && now.Sub(v.loadedAt) < s.ttl {
		return v
	}
	if f := s.failedAt.Load(); f != 0 && now.Sub(time.Unix(0, f)) < s.backoff {
		return orEmpty(v)
	}

	ch := s.sf.DoChan(flightKey, func() (any, error) {
		return s.load(context.WithoutCancel(ctx))
	})
	select {
	case r := <-ch:
		return r.Val.(*view)
	case <-ctx.Done():
		return orEmpty(v)
	}
}

// load always returns a usable view; err reports whether the loader failed.
func (s *Store) load(ctx context.Context) (*view, error) {
	snap, err := s.loader.Load(ctx)
	if err != nil {
		s.failedAt.Store(s.now().UnixNano())
		observability.CatalogLoads.WithLabelValues("error").Inc()
		prev := s.cur.Load()
		s.log.Error().Err(err).Bool("stale", prev != nil).Msg("catalog load failed")
		return orEmpty(prev), err
	}

	v := newView(snap, s.now())
	s.cur.Store(v)
	s.failedAt.Store(0)
	observability.CatalogLoads.WithLabelValues("ok").Inc()
	observability.CatalogModels.Set(float64(len(v.models)))
	s.log.Info().Str("version", snap.Version).Int("models", len(v.models)).Msg("catalog loaded")
	return v, nil
}

func orEmpty(v *view) *view {
	if v == nil {
		return emptyView
	}
	return v
}
