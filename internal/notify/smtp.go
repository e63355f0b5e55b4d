package notify

import (
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/tbourn/retail-assistant/internal/config"
	"github.com/tbourn/retail-assistant/internal/domain"
)

// SMTPNotifier emails the staff inbox through go-mail.
type SMTPNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       string
	timeout  time.Duration
}

// NewSMTPNotifier creates an SMTPNotifier from SMTP settings.
func NewSMTPNotifier(cfg config.SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		to:       cfg.To,
		timeout:  15 * time.Second,
	}
}

func (n *SMTPNotifier) LeadSubmitted(ctx context.Context, lead *domain.TradeInLead) error {
	return n.send(ctx, LeadSubject(lead), LeadSummary(lead))
}

func (n *SMTPNotifier) Escalated(ctx context.Context, e Escalation) error {
	subject := "Customer escalation"
	if e.Urgency != "" {
		subject += " [" + e.Urgency + "]"
	}
	return n.send(ctx, subject, EscalationSummary(e))
}

func (n *SMTPNotifier) message(subject, body string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(n.from); err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(n.to); err != nil {
		return nil, fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)
	return msg, nil
}

func (n *SMTPNotifier) send(ctx context.Context, subject, body string) error {
	msg, err := n.message(subject, body)
	if err != nil {
		return err
	}

	opts := []gomail.Option{
		gomail.WithPort(n.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(n.timeout),
	}
	if n.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(n.username),
			gomail.WithPassword(n.password),
		)
	}
	client, err := gomail.NewClient(n.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
