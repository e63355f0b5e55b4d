// Package services – TradeInService
//
// This file implements TradeInService, which owns the trade-in lead lifecycle:
// conversational mutations driven by tools (Upsert, AttachMedia, RecordAction,
// Submit), explicit status changes (Advance) and the idempotent auto-submit
// sweep that hands complete, idle leads to staff.
//
// Staff notification is claimed before it is sent: an email_sent action with a
// unique dedupe key is inserted first, so two concurrent sweeps can never both
// notify. If sending fails the claim is removed and a later sweep retries.

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/retail-assistant/internal/domain"
	"github.com/tbourn/retail-assistant/internal/notify"
	"github.com/tbourn/retail-assistant/internal/observability"
	"github.com/tbourn/retail-assistant/internal/repo"
)

const (
	tradeInTracer = "services/TradeInService"

	defaultSweepDelay = 2 * time.Minute
	defaultSweepBatch = 100
)

// Sweep result statuses.
const (
	SweepSubmitted = "submitted"
	SweepSkipped   = "skipped"
	SweepFailed    = "failed"
)

// TradeInService coordinates lead persistence and staff notification.
type TradeInService struct {
	DB       *gorm.DB
	Notifier notify.StaffNotifier

	// Sweep tuning; zero values fall back to 2m and 100.
	Delay     time.Duration
	BatchSize int

	// PhoneRegion for numbers without a country code (default SG).
	PhoneRegion string
}

// SweepResult is the outcome for one lead visited by AutoSubmit.
type SweepResult struct {
	LeadID string `json:"leadId"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// SweepSummary reports one AutoSubmit run.
type SweepSummary struct {
	Checked      int           `json:"checked"`
	Submitted    int           `json:"submitted"`
	Failed       int           `json:"failed"`
	DelayMinutes float64       `json:"delayMinutes"`
	Results      []SweepResult `json:"results"`
}

func (s *TradeInService) delay() time.Duration {
	if s.Delay > 0 {
		return s.Delay
	}
	return defaultSweepDelay
}

func (s *TradeInService) batch() int {
	if s.BatchSize > 0 {
		return s.BatchSize
	}
	return defaultSweepBatch
}

// Upsert applies customer disclosures. Without a lead id it patches the
// session's open lead, creating one on first disclosure. Empty patch fields
// leave stored values alone; notes are appended.
func (s *TradeInService) Upsert(ctx context.Context, p domain.LeadPatch) (*domain.TradeInLead, error) {
	ctx, span := otel.Tracer(tradeInTracer).Start(ctx, "Upsert", trace.WithAttributes(
		attribute.String("lead.id", p.LeadID),
		attribute.String("session.id", p.SessionID),
	))
	defer span.End()

	if p.Empty() {
		return nil, ErrEmptyPatch
	}
	phone, err := NormalizePhone(p.ContactPhone, s.PhoneRegion)
	if err != nil {
		return nil, err
	}
	email, err := NormalizeEmail(p.ContactEmail)
	if err != nil {
		return nil, err
	}
	p.ContactPhone, p.ContactEmail = phone, email

	var lead *domain.TradeInLead
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.findForPatch(ctx, tx, p)
		if err != nil {
			return err
		}
		if existing == nil {
			lead = &domain.TradeInLead{SessionID: p.SessionID}
			applyPatch(lead, p)
			return repo.CreateLead(ctx, tx, lead)
		}
		if existing.Status.Terminal() {
			return ErrLeadClosed
		}
		lead = existing
		applyPatch(lead, p)
		return repo.SaveLead(ctx, tx, lead)
	})
	if err != nil {
		return nil, err
	}
	return lead, nil
}

func (s *TradeInService) findForPatch(ctx context.Context, tx *gorm.DB, p domain.LeadPatch) (*domain.TradeInLead, error) {
	if p.LeadID != "" {
		l, err := repo.GetLead(ctx, tx, p.LeadID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrLeadNotFound
		}
		return l, err
	}
	if p.SessionID == "" {
		return nil, nil
	}
	l, err := repo.FindOpenLeadBySession(ctx, tx, p.SessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return l, err
}

func applyPatch(l *domain.TradeInLead, p domain.LeadPatch) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&l.Brand, p.Brand)
	set(&l.Model, p.Model)
	set(&l.Storage, p.Storage)
	set(&l.Condition, p.Condition)
	set(&l.Accessories, normalizeAccessories(p.Accessories))
	set(&l.ContactName, p.ContactName)
	set(&l.ContactPhone, p.ContactPhone)
	set(&l.ContactEmail, p.ContactEmail)
	set(&l.PayoutPreference, p.PayoutPreference)
	set(&l.TargetBrand, p.TargetBrand)
	set(&l.TargetModel, p.TargetModel)
	set(&l.TargetStorage, p.TargetStorage)
	if p.SourcePriceQuoted != nil {
		l.SourcePriceQuoted = p.SourcePriceQuoted
	}
	if p.TargetPriceQuoted != nil {
		l.TargetPriceQuoted = p.TargetPriceQuoted
	}
	if p.TopUpAmount != nil {
		l.TopUpAmount = p.TopUpAmount
	}
	if n := strings.TrimSpace(p.Notes); n != "" {
		if l.Notes == "" {
			l.Notes = n
		} else {
			l.Notes += "\n" + n
		}
	}
	if l.SessionID == "" {
		l.SessionID = p.SessionID
	}
}

// normalizeAccessories maps the ways customers say "nothing" onto the
// explicit AccessoriesNone disclosure.
func normalizeAccessories(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "none", "no", "nothing", "n/a", "na", "device only":
		return domain.AccessoriesNone
	}
	return v
}

// Advance moves a lead along one allowed status edge and records the change.
func (s *TradeInService) Advance(ctx context.Context, leadID string, to domain.LeadStatus) (*domain.TradeInLead, error) {
	ctx, span := otel.Tracer(tradeInTracer).Start(ctx, "Advance", trace.WithAttributes(
		attribute.String("lead.id", leadID),
		attribute.String("lead.to", string(to)),
	))
	defer span.End()

	var lead *domain.TradeInLead
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := repo.GetLead(ctx, tx, leadID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrLeadNotFound
		}
		if err != nil {
			return err
		}
		if !domain.CanTransition(l.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.Status, to)
		}
		if err := repo.UpdateLeadStatus(ctx, tx, l.ID, l.Status, to); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				// Lost a race with another writer.
				return fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, l.ID)
			}
			return err
		}
		payload, _ := json.Marshal(map[string]domain.LeadStatus{"from": l.Status, "to": to})
		if err := repo.InsertAction(ctx, tx, &domain.TradeInAction{
			LeadID: l.ID, Type: domain.ActionStatusChanged, Payload: string(payload),
		}); err != nil {
			return err
		}
		l.Status = to
		lead = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lead, nil
}

// AttachMedia stores photo evidence for an open lead.
func (s *TradeInService) AttachMedia(ctx context.Context, leadID string, m domain.TradeInMedia) (*domain.TradeInMedia, error) {
	if _, err := s.openLead(ctx, leadID); err != nil {
		return nil, err
	}
	m.ID = ""
	m.LeadID = leadID
	if err := repo.AddMedia(ctx, s.DB, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordAction appends an audit action with a JSON payload.
func (s *TradeInService) RecordAction(ctx context.Context, leadID, typ string, payload any) error {
	if _, err := s.openLead(ctx, leadID); err != nil {
		return err
	}
	var body string
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = string(b)
	}
	return repo.InsertAction(ctx, s.DB, &domain.TradeInAction{LeadID: leadID, Type: typ, Payload: body})
}

func (s *TradeInService) openLead(ctx context.Context, leadID string) (*domain.TradeInLead, error) {
	l, err := repo.GetLead(ctx, s.DB, leadID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrLeadNotFound
	}
	if err != nil {
		return nil, err
	}
	if l.Status.Terminal() {
		return nil, ErrLeadClosed
	}
	return l, nil
}

// Submit hands a complete lead to staff immediately, the same way the sweep
// would.
func (s *TradeInService) Submit(ctx context.Context, leadID string) (*domain.TradeInLead, error) {
	ctx, span := otel.Tracer(tradeInTracer).Start(ctx, "Submit", trace.WithAttributes(attribute.String("lead.id", leadID)))
	defer span.End()

	l, err := s.openLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if missing := l.MissingFields(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrIncompleteLead, strings.Join(missing, ", "))
	}
	if err := s.submit(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// AutoSubmit submits every open, complete lead idle for longer than the sweep
// delay and not yet notified, up to the batch size. Failures are recorded per
// lead and never stop the batch; the returned error covers only the initial
// query.
func (s *TradeInService) AutoSubmit(ctx context.Context, now time.Time) (SweepSummary, error) {
	ctx, span := otel.Tracer(tradeInTracer).Start(ctx, "AutoSubmit")
	defer span.End()

	sum := SweepSummary{DelayMinutes: s.delay().Minutes(), Results: []SweepResult{}}
	leads, err := repo.ListSweepCandidates(ctx, s.DB, now.Add(-s.delay()), s.batch())
	if err != nil {
		return sum, err
	}
	span.SetAttributes(attribute.Int("sweep.candidates", len(leads)))

	for i := range leads {
		l := &leads[i]
		sum.Checked++
		if l.Status.Terminal() || len(l.MissingFields()) > 0 {
			sum.Results = append(sum.Results, SweepResult{LeadID: l.ID, Status: SweepSkipped})
			observability.SweepLeads.WithLabelValues(SweepSkipped).Inc()
			continue
		}

		err := s.submit(ctx, l)
		switch {
		case err == nil:
			sum.Submitted++
			sum.Results = append(sum.Results, SweepResult{LeadID: l.ID, Status: SweepSubmitted})
			observability.SweepLeads.WithLabelValues(SweepSubmitted).Inc()
		case errors.Is(err, ErrAlreadySubmitted):
			// Another sweep claimed it between our read and our write.
			sum.Results = append(sum.Results, SweepResult{LeadID: l.ID, Status: SweepSkipped})
			observability.SweepLeads.WithLabelValues(SweepSkipped).Inc()
		default:
			sum.Failed++
			sum.Results = append(sum.Results, SweepResult{LeadID: l.ID, Status: SweepFailed, Error: err.Error()})
			observability.SweepLeads.WithLabelValues(SweepFailed).Inc()
			log.Warn().Err(err).Str("lead_id", l.ID).Msg("auto-submit failed")
		}
	}
	return sum, nil
}

// submit runs the notification side effects for one lead, in order: photo
// note, claim, notify. A failed notification releases the claim.
func (s *TradeInService) submit(ctx context.Context, l *domain.TradeInLead) error {
	if len(l.Media) == 0 && !strings.Contains(l.Notes, domain.PhotosNotProvidedNote) {
		notes := domain.PhotosNotProvidedNote
		if strings.TrimSpace(l.Notes) != "" {
			notes += "\n" + l.Notes
		}
		if err := s.DB.WithContext(ctx).Model(&domain.TradeInLead{}).
			Where("id = ?", l.ID).Update("notes", notes).Error; err != nil {
			return fmt.Errorf("photo note: %w", err)
		}
		l.Notes = notes
	}

	key := domain.EmailSentKey(l.ID)
	claim := &domain.TradeInAction{LeadID: l.ID, Type: domain.ActionEmailSent, DedupeKey: &key}
	prev := l.Status
	at := s.DB.NowFunc()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.InsertAction(ctx, tx, claim); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrAlreadySubmitted
			}
			return err
		}
		updates := map[string]any{"notified_at": at}
		if l.Status == domain.StatusNew {
			updates["status"] = domain.StatusInReview
		}
		return tx.Model(&domain.TradeInLead{}).Where("id = ?", l.ID).Updates(updates).Error
	})
	if err != nil {
		return err
	}
	l.NotifiedAt = &at
	if l.Status == domain.StatusNew {
		l.Status = domain.StatusInReview
	}

	if s.Notifier != nil {
		if nerr := s.Notifier.LeadSubmitted(ctx, l); nerr != nil {
			if rerr := s.release(ctx, l.ID, claim.ID); rerr != nil {
				log.Error().Err(rerr).Str("lead_id", l.ID).Msg("release notification claim")
			}
			l.NotifiedAt = nil
			return fmt.Errorf("notify staff: %w", nerr)
		}
	}
	if prev != l.Status {
		log.Info().Str("lead_id", l.ID).Str("from", string(prev)).Str("to", string(l.Status)).Msg("lead submitted")
	}
	return nil
}

// release undoes a claim so the lead becomes eligible again.
func (s *TradeInService) release(ctx context.Context, leadID, actionID string) error {
	ctx = context.WithoutCancel(ctx)
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DeleteAction(ctx, tx, actionID); err != nil {
			return err
		}
		return tx.Model(&domain.TradeInLead{}).Where("id = ?", leadID).Update("notified_at", nil).Error
	})
}
