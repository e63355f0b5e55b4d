// Package sessionstore keeps recent conversation turns per chat session in
// Redis, so clients that do not send their own history still get context.
package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/retail-assistant/internal/domain"
)

const keyPrefix = "session:history:"

// Store is a capped, expiring Redis list of JSON-encoded turns per session.
type Store struct {
	rdb      redis.UniversalClient
	maxTurns int64
	ttl      time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithMaxTurns caps the stored turns per session (default 50).
func WithMaxTurns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxTurns = int64(n)
		}
	}
}

// WithTTL sets how long an idle session is kept (default 24h).
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// New wraps an existing client.
func New(rdb redis.UniversalClient, opts ...Option) *Store {
	s := &Store{rdb: rdb, maxTurns: 50, ttl: 24 * time.Hour}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: parse url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("sessionstore: ping: %w", err)
	}
	return rdb, nil
}

func key(sessionID string) string { return keyPrefix + sessionID }

// Load returns the stored turns of a session, oldest first. An unknown
// session yields an empty slice.
func (s *Store) Load(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	raw, err := s.rdb.LRange(ctx, key(sessionID), -s.maxTurns, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.ConversationTurn, 0, len(raw))
	for _, r := range raw {
		var t domain.ConversationTurn
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			// Skip entries written by an incompatible version.
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Append pushes turns, trims the list to the cap and refreshes the TTL in a
// single round trip.
func (s *Store) Append(ctx context.Context, sessionID string, turns ...domain.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}
	vals := make([]any, 0, len(turns))
	for _, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		vals = append(vals, b)
	}
	k := key(sessionID)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, k, vals...)
		p.LTrim(ctx, k, -s.maxTurns, -1)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	return err
}
