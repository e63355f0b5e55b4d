// Package services – AgentService
//
// This file implements AgentService, which runs one conversational turn:
// it builds the model context (system prompt, recalled facts, bounded
// history, user message), lets the model pick tools, dispatches every
// requested tool concurrently and issues a follow-up call once all results
// are in. Tool failures never fail the turn; they are fed back to the model
// as text.
//
// After a successful turn the exchange is written to the conversation log,
// the session history and long-term memory. Each write is best-effort.

package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/retail-assistant/internal/domain"
	"github.com/tbourn/retail-assistant/internal/llm"
	"github.com/tbourn/retail-assistant/internal/memory"
	"github.com/tbourn/retail-assistant/internal/repo"
	"github.com/tbourn/retail-assistant/internal/tools"
)

const (
	agentTracer = "services/AgentService"

	defaultMemoryFacts = 5
	persistTimeout     = 5 * time.Second

	// FallbackReply is returned when the model produces no text.
	FallbackReply = "Sorry, I couldn't put together an answer just now. Could you rephrase that?"
)

// DefaultSystemPrompt frames the assistant for the store.
const DefaultSystemPrompt = `You are the customer support assistant of a consumer-electronics reseller in Singapore.
Answer product questions using search_catalog and get_price; use web_search only for facts the catalog lacks.
Quote prices in SGD. Never invent prices; if a tool returns no value, say a staff member will confirm.
For trade-ins, collect brand and model, condition, accessories (or "none"), contact email, phone and payout preference
(or the target device for a trade-up) with update_trade_in, and tell the customer what is still missing.
Ask for photos; without them the final quote is subject to physical inspection.
Escalate to staff when the customer asks for a human or you cannot help.`

// HistoryStore keeps recent turns per session. *sessionstore.Store implements it.
type HistoryStore interface {
	Load(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error)
	Append(ctx context.Context, sessionID string, turns ...domain.ConversationTurn) error
}

// AgentRequest is one inbound chat turn. History, when non-nil, replaces the
// server-side session history.
type AgentRequest struct {
	Message   string
	SessionID string
	History   []domain.ConversationTurn
}

// AgentReply is the outcome of a turn.
type AgentReply struct {
	Response  string
	SessionID string
	Model     string
	ToolCalls int
}

// AgentService drives the tool-calling loop.
type AgentService struct {
	Model llm.ChatModel
	Tools *tools.Registry

	// Optional collaborators.
	DB      *gorm.DB
	History HistoryStore
	Memory  memory.Store

	Policy          HistoryPolicy
	SystemPrompt    string
	MaxMessageRunes int
	MemoryFacts     int
}

// Respond runs one turn and returns the final reply.
func (s *AgentService) Respond(ctx context.Context, req AgentRequest) (*AgentReply, error) {
	ctx, span := otel.Tracer(agentTracer).Start(ctx, "Respond",
		trace.WithAttributes(attribute.String("session.id", req.SessionID)),
	)
	defer span.End()

	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(msg) > s.MaxMessageRunes {
		return nil, ErrTooLong
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, ErrMissingSession
	}
	ctx = tools.WithSession(ctx, sessionID)

	history := s.history(ctx, sessionID, req.History)
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: domain.RoleSystem, Content: s.systemPrompt(ctx, sessionID, msg)})
	for _, t := range history {
		messages = append(messages, llm.FromTurn(t))
	}
	messages = append(messages, llm.Message{Role: domain.RoleUser, Content: msg})

	first, err := s.Model.Complete(ctx, llm.ChatRequest{Messages: messages, Tools: s.Tools.Declarations()})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	turns := []domain.ConversationTurn{{Role: domain.RoleUser, Content: msg}}
	final := first
	var results []tools.Result

	if len(first.ToolCalls) > 0 {
		calls := withCallIDs(first.ToolCalls)
		span.SetAttributes(attribute.Int("agent.tool_calls", len(calls)))

		results = s.Tools.DispatchAll(ctx, calls)

		callTurn := domain.ConversationTurn{Role: domain.RoleAssistant, Content: first.Content, ToolCalls: calls}
		messages = append(messages, llm.FromTurn(callTurn))
		turns = append(turns, callTurn)
		for _, r := range results {
			if r.Err != nil {
				log.Warn().Err(r.Err).Str("session_id", sessionID).Str("tool", r.Name).Msg("tool call failed")
			}
			tt := domain.ConversationTurn{Role: domain.RoleTool, Content: r.Content, ToolCallID: r.CallID, Name: r.Name}
			messages = append(messages, llm.FromTurn(tt))
			turns = append(turns, tt)
		}

		final, err = s.Model.Complete(ctx, llm.ChatRequest{Messages: messages})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
		}
	}

	reply := strings.TrimSpace(final.Content)
	if reply == "" {
		reply = FallbackReply
	}
	model := final.Model
	if model == "" {
		model = s.Model.Name()
	}
	turns = append(turns, domain.ConversationTurn{Role: domain.RoleAssistant, Content: reply})

	s.persist(ctx, sessionID, model, turns)

	return &AgentReply{Response: reply, SessionID: sessionID, Model: model, ToolCalls: len(results)}, nil
}

// history returns the bounded prior turns for the model. Client-supplied
// history wins over the session store; system turns are never accepted from
// either source.
func (s *AgentService) history(ctx context.Context, sessionID string, supplied []domain.ConversationTurn) []domain.ConversationTurn {
	turns := supplied
	if turns == nil && s.History != nil {
		stored, err := s.History.Load(ctx, sessionID)
		if err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("load session history")
		}
		turns = stored
	}
	kept := make([]domain.ConversationTurn, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case domain.RoleUser, domain.RoleAssistant, domain.RoleTool:
			kept = append(kept, t)
		}
	}
	return TruncateHistory(kept, s.Policy)
}

func (s *AgentService) systemPrompt(ctx context.Context, sessionID, msg string) string {
	prompt := s.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	if s.Memory == nil {
		return prompt
	}
	n := s.MemoryFacts
	if n <= 0 {
		n = defaultMemoryFacts
	}
	facts, err := s.Memory.Recall(ctx, sessionID, msg, n)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("recall long-term memory")
		return prompt
	}
	if len(facts) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nWhat you already know about this customer:")
	for _, f := range facts {
		b.WriteString("\n- " + f)
	}
	return b.String()
}

// persist writes the exchange to every configured sink. Failures are logged
// and do not affect the reply.
func (s *AgentService) persist(ctx context.Context, sessionID, model string, turns []domain.ConversationTurn) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if s.DB != nil {
		logs := make([]domain.ConversationLog, 0, len(turns))
		for _, t := range turns {
			if t.Role == domain.RoleAssistant && len(t.ToolCalls) > 0 {
				continue
			}
			row := domain.ConversationLog{SessionID: sessionID, Role: t.Role, Content: t.Content, ToolName: t.Name}
			if t.Role == domain.RoleAssistant {
				row.Model = model
			}
			logs = append(logs, row)
		}
		if err := repo.AppendConversation(ctx, s.DB, logs); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("append conversation log")
		}
	}
	if s.History != nil {
		if err := s.History.Append(ctx, sessionID, turns...); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("append session history")
		}
	}
	if s.Memory != nil {
		user, reply := turns[0].Content, turns[len(turns)-1].Content
		if err := s.Memory.Remember(ctx, sessionID, user, reply); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("remember exchange")
		}
	}
}

// withCallIDs fills in ids some backends omit, so each tool result can be
// matched to its call.
func withCallIDs(calls []domain.ToolCall) []domain.ToolCall {
	out := make([]domain.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = fmt.Sprintf("call_%d", i)
		}
		out[i] = c
	}
	return out
}
