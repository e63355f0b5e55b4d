package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tbourn/retail-assistant/internal/domain"
)

// LogNotifier writes notifications to the log. Used when SMTP is not configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) LeadSubmitted(_ context.Context, lead *domain.TradeInLead) error {
	n.log.Info().
		Str("lead_id", lead.ID).
		Str("subject", LeadSubject(lead)).
		Str("body", LeadSummary(lead)).
		Msg("trade-in lead submitted")
	return nil
}

func (n *LogNotifier) Escalated(_ context.Context, e Escalation) error {
	n.log.Warn().
		Str("session_id", e.SessionID).
		Str("lead_id", e.LeadID).
		Str("urgency", e.Urgency).
		Str("body", EscalationSummary(e)).
		Msg("customer escalation")
	return nil
}
