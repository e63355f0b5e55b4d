package handlers

import (
	"context"
	"time"

	"github.com/tbourn/retail-assistant/internal/ratelimit"
	"github.com/tbourn/retail-assistant/internal/services"
)

// Agent answers one chat turn.
type Agent interface {
	Respond(ctx context.Context, req services.AgentRequest) (*services.AgentReply, error)
}

// Sweeper runs the trade-in auto-submit sweep.
type Sweeper interface {
	AutoSubmit(ctx context.Context, now time.Time) (services.SweepSummary, error)
}

// Handlers groups the endpoint implementations and their collaborators.
type Handlers struct {
	agent   Agent
	sweeper Sweeper

	sessions     *ratelimit.FixedWindow
	sessionLimit int
	window       time.Duration

	now func() time.Time
}

// Option customizes Handlers.
type Option func(*Handlers)

// WithSessionLimit caps /agent at max turns per window for each session id.
func WithSessionLimit(l *ratelimit.FixedWindow, max int, window time.Duration) Option {
	return func(h *Handlers) {
		h.sessions, h.sessionLimit, h.window = l, max, window
	}
}

// WithClock overrides the time passed to the sweep (tests).
func WithClock(now func() time.Time) Option {
	return func(h *Handlers) { h.now = now }
}

// New wires handlers to their services.
func New(agent Agent, sweeper Sweeper, opts ...Option) *Handlers {
	h := &Handlers{agent: agent, sweeper: sweeper, now: time.Now}
	for _, o := range opts {
		o(h)
	}
	return h
}
