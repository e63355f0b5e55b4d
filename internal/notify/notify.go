// Package notify delivers staff notifications for submitted trade-in leads
// and customer escalations. Email goes out over SMTP; without SMTP settings the
// notifications are written to the structured log instead.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tbourn/retail-assistant/internal/config"
	"github.com/tbourn/retail-assistant/internal/domain"
)

// Escalation is a request for a human to take over a conversation.
type Escalation struct {
	SessionID    string `json:"session_id"`
	LeadID       string `json:"lead_id,omitempty"`
	Reason       string `json:"reason"`
	Summary      string `json:"summary,omitempty"`
	Urgency      string `json:"urgency,omitempty"`
	ContactName  string `json:"contact_name,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
}

// StaffNotifier tells staff about events that need a human.
type StaffNotifier interface {
	LeadSubmitted(ctx context.Context, lead *domain.TradeInLead) error
	Escalated(ctx context.Context, e Escalation) error
}

// New returns an SMTP notifier when host, sender and recipient are configured
// and a log-only notifier otherwise.
func New(cfg config.SMTPConfig, log zerolog.Logger) StaffNotifier {
	if cfg.Host == "" || cfg.From == "" || cfg.To == "" {
		return NewLogNotifier(log)
	}
	return NewSMTPNotifier(cfg)
}

// LeadSubject is the email subject for a submitted lead.
func LeadSubject(l *domain.TradeInLead) string {
	device := strings.TrimSpace(l.Brand + " " + l.Model)
	if l.IsTradeUp() {
		return fmt.Sprintf("Trade-up lead: %s -> %s", device, strings.TrimSpace(l.TargetBrand+" "+l.TargetModel))
	}
	return "Trade-in lead: " + device
}

// LeadSummary renders a plain-text summary of a lead for staff.
func LeadSummary(l *domain.TradeInLead) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	line := func(label, v string) {
		if strings.TrimSpace(v) != "" {
			b.WriteString(label + ": " + v + "\n")
		}
	}
	money := func(label string, v *float64) {
		if v != nil {
			b.WriteString(p.Sprintf("%s: S$%.0f\n", label, *v))
		}
	}

	line("Lead", l.ID)
	line("Status", string(l.Status))
	line("Device", strings.TrimSpace(strings.Join([]string{l.Brand, l.Model, l.Storage}, " ")))
	line("Condition", l.Condition)
	line("Accessories", l.Accessories)
	money("Trade-in quote", l.SourcePriceQuoted)

	if l.HasTargetDevice() {
		line("Target", strings.TrimSpace(strings.Join([]string{l.TargetBrand, l.TargetModel, l.TargetStorage}, " ")))
		money("Target price", l.TargetPriceQuoted)
		money("Top-up", l.TopUpAmount)
	} else {
		line("Payout", l.PayoutPreference)
	}

	line("Name", l.ContactName)
	line("Phone", l.ContactPhone)
	line("Email", l.ContactEmail)
	b.WriteString(fmt.Sprintf("Photos: %d\n", len(l.Media)))
	for _, m := range l.Media {
		b.WriteString("  " + m.URL + "\n")
	}
	if n := strings.TrimSpace(l.Notes); n != "" {
		b.WriteString("\n" + n + "\n")
	}
	return b.String()
}

// EscalationSummary renders a plain-text summary of an escalation.
func EscalationSummary(e Escalation) string {
	var b strings.Builder
	for _, kv := range [][2]string{
		{"Session", e.SessionID},
		{"Lead", e.LeadID},
		{"Urgency", e.Urgency},
		{"Reason", e.Reason},
		{"Name", e.ContactName},
		{"Phone", e.ContactPhone},
		{"Email", e.ContactEmail},
	} {
		if kv[1] != "" {
			b.WriteString(kv[0] + ": " + kv[1] + "\n")
		}
	}
	if e.Summary != "" {
		b.WriteString("\n" + e.Summary + "\n")
	}
	return b.String()
}
