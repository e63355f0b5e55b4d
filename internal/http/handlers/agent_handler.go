package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/retail-assistant/internal/domain"
	"github.com/tbourn/retail-assistant/internal/http/middleware"
	"github.com/tbourn/retail-assistant/internal/services"
)

// HistoryTurn is one prior message supplied by the chat client.
type HistoryTurn struct {
	Role    string `json:"role" binding:"required,oneof=user assistant system" example:"user"`
	Content string `json:"content" example:"Do you take trade-ins?"`
}

// AgentRequest is the JSON payload of POST /agent.
type AgentRequest struct {
	Message   string        `json:"message" binding:"required" example:"How much is my iPhone 13 128GB worth?"`
	SessionID string        `json:"sessionId" binding:"required,max=128" example:"web-5f0c1e"`
	History   []HistoryTurn `json:"history,omitempty" binding:"omitempty,max=200,dive"`
}

// AgentResponse is the assistant's reply.
type AgentResponse struct {
	Response  string `json:"response" example:"An iPhone 13 128GB in good condition trades in for up to S$420."`
	SessionID string `json:"sessionId" example:"web-5f0c1e"`
	Model     string `json:"model" example:"gpt-4o-mini"`
}

// PostAgent godoc
// @ID          postAgent
// @Summary     Send a chat turn to the assistant
// @Description Runs one assistant turn. The assistant may call catalog, pricing and trade-in tools
// @Description before replying. When history is omitted the server-side session history is used.
// @Tags        Agent
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       body  body      handlers.AgentRequest   true  "Chat turn"
// @Success     200   {object}  handlers.AgentResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Validation error"
// @Failure     401   {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     413   {object}  handlers.ErrorResponse  "Body too large"
// @Failure     429   {object}  handlers.ErrorResponse  "Rate limited (see Retry-After)"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /agent [post]
func (h *Handlers) PostAgent(c *gin.Context) {
	var req AgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message and sessionId are required")
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if strings.TrimSpace(req.Message) == "" || sessionID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message and sessionId are required")
		return
	}

	if h.sessions != nil {
		d := h.sessions.Check("session:"+sessionID, h.sessionLimit, h.window)
		middleware.SetRateHeaders(c, h.sessionLimit, d)
		if !d.Allowed {
			fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, "too many messages in this session")
			return
		}
	}

	reply, err := h.agent.Respond(c.Request.Context(), services.AgentRequest{
		Message:   req.Message,
		SessionID: sessionID,
		History:   toTurns(req.History),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyMessage), errors.Is(err, services.ErrMissingSession):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message and sessionId are required")
		case errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message too long")
		default:
			_ = c.Error(err)
			fail(c, http.StatusInternalServerError, ErrCodeAgentFailed, "the assistant is unavailable, please try again")
		}
		return
	}

	ok(c, http.StatusOK, AgentResponse{
		Response:  reply.Response,
		SessionID: reply.SessionID,
		Model:     reply.Model,
	})
}

// toTurns keeps nil distinct from empty: an explicit empty history means the
// client is starting over.
func toTurns(in []HistoryTurn) []domain.ConversationTurn {
	if in == nil {
		return nil
	}
	out := make([]domain.ConversationTurn, 0, len(in))
	for _, t := range in {
		out = append(out, domain.ConversationTurn{Role: t.Role, Content: t.Content})
	}
	return out
}
