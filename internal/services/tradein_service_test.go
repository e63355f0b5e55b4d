package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/retail-assistant/internal/domain"
	"github.com/tbourn/retail-assistant/internal/notify"
	"github.com/tbourn/retail-assistant/internal/repo"
)

// ---------- test helpers ----------

func newLeadDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "leads.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type fakeNotifier struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]bool
	failAll bool
}

func (f *fakeNotifier) LeadSubmitted(_ context.Context, l *domain.TradeInLead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll || f.failFor[l.ID] {
		return errors.New("smtp down")
	}
	f.sent = append(f.sent, l.ID)
	return nil
}

func (f *fakeNotifier) Escalated(context.Context, notify.Escalation) error { return nil }

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func completePatch(session string) domain.LeadPatch {
	return domain.LeadPatch{
		SessionID:        session,
		Brand:            "Apple",
		Model:            "iPhone 13",
		Condition:        "good",
		Accessories:      "none",
		ContactEmail:     "Tan@Example.com",
		ContactPhone:     "9123 4567",
		PayoutPreference: "paynow",
	}
}

func newTradeIn(t *testing.T) (*TradeInService, *fakeNotifier) {
	t.Helper()
	n := &fakeNotifier{failFor: map[string]bool{}}
	return &TradeInService{DB: newLeadDB(t), Notifier: n, Delay: 2 * time.Minute, BatchSize: 100}, n
}

// ---------- Upsert ----------

func TestUpsert_CreatesThenPatchesSessionLead(t *testing.T) {
	s, _ := newTradeIn(t)
	ctx := context.Background()

	l1, err := s.Upsert(ctx, domain.LeadPatch{SessionID: "s1", Brand: "Apple", Model: "iPhone 13", Notes: "cracked case"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if l1.Status != domain.StatusNew || l1.SessionID != "s1" {
		t.Fatalf("unexpected lead: %+v", l1)
	}

	l2, err := s.Upsert(ctx, domain.LeadPatch{SessionID: "s1", ContactPhone: "9123 4567", Accessories: "No", Notes: "box included"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if l2.ID != l1.ID {
		t.Fatalf("expected the session's open lead to be patched, got new lead %s", l2.ID)
	}
	if l2.Brand != "Apple" || l2.ContactPhone != "+6591234567" || l2.Accessories != domain.AccessoriesNone {
		t.Fatalf("unexpected patch result: %+v", l2)
	}
	if l2.Notes != "cracked case\nbox included" {
		t.Fatalf("notes not appended: %q", l2.Notes)
	}

	other, _ := s.Upsert(ctx, domain.LeadPatch{SessionID: "s2", Brand: "Sony"})
	if other.ID == l1.ID {
		t.Fatalf("sessions must not share leads")
	}
}

func TestUpsert_RejectsBadInput(t *testing.T) {
	s, _ := newTradeIn(t)
	ctx := context.Background()

	if _, err := s.Upsert(ctx, domain.LeadPatch{SessionID: "s1"}); !errors.Is(err, ErrEmptyPatch) {
		t.Fatalf("expected ErrEmptyPatch, got %v", err)
	}
	if _, err := s.Upsert(ctx, domain.LeadPatch{SessionID: "s1", ContactPhone: "123"}); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone, got %v", err)
	}
	if _, err := s.Upsert(ctx, domain.LeadPatch{SessionID: "s1", ContactEmail: "tan@"}); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if _, err := s.Upsert(ctx, domain.LeadPatch{LeadID: "missing", Brand: "Apple"}); !errors.Is(err, ErrLeadNotFound) {
		t.Fatalf("expected ErrLeadNotFound, got %v", err)
	}
}

// ---------- Advance ----------

func TestAdvance_AllowedEdgesOnly(t *testing.T) {
	s, _ := newTradeIn(t)
	ctx := context.Background()
	l, _ := s.Upsert(ctx, completePatch("s1"))

	if _, err := s.Advance(ctx, l.ID, domain.StatusQuoted); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("new -> quoted should fail, got %v", err)
	}
	for _, to := range []domain.LeadStatus{domain.StatusInReview, domain.StatusAwaitingCustomer, domain.StatusQuoted, domain.StatusAbandoned} {
		got, err := s.Advance(ctx, l.ID, to)
		if err != nil {
			t.Fatalf("advance to %s: %v", to, err)
		}
		if got.Status != to {
			t.Fatalf("status = %s; want %s", got.Status, to)
		}
	}
	if _, err := s.Advance(ctx, l.ID, domain.StatusSubmitted); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("abandoned is terminal, got %v", err)
	}
	if _, err := s.Upsert(ctx, domain.LeadPatch{LeadID: l.ID, Notes: "late"}); !errors.Is(err, ErrLeadClosed) {
		t.Fatalf("expected ErrLeadClosed, got %v", err)
	}

	acts, _ := repo.ListActions(ctx, s.DB, l.ID)
	if len(acts) != 4 || acts[0].Type != domain.ActionStatusChanged {
		t.Fatalf("expected 4 status_changed actions, got %+v", acts)
	}
}

// ---------- AutoSubmit ----------

func TestAutoSubmit_SubmitsAfterDelayExactlyOnce(t *testing.T) {
	s, n := newTradeIn(t)
	ctx := context.Background()
	l, err := s.Upsert(ctx, completePatch("s1"))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	now := time.Now()
	sum, err := s.AutoSubmit(ctx, now)
	if err != nil {
		t.Fatalf("AutoSubmit: %v", err)
	}
	if sum.Checked != 0 || sum.Submitted != 0 || sum.DelayMinutes != 2 {
		t.Fatalf("fresh lead must wait for the delay: %+v", sum)
	}

	sum, err = s.AutoSubmit(ctx, now.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("AutoSubmit: %v", err)
	}
	if sum.Checked != 1 || sum.Submitted != 1 || sum.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if len(sum.Results) != 1 || sum.Results[0].LeadID != l.ID || sum.Results[0].Status != SweepSubmitted {
		t.Fatalf("unexpected results: %+v", sum.Results)
	}

	got, _ := repo.GetLead(ctx, s.DB, l.ID)
	if got.Status != domain.StatusInReview || got.NotifiedAt == nil {
		t.Fatalf("lead not submitted: %+v", got)
	}
	if !strings.HasPrefix(got.Notes, domain.PhotosNotProvidedNote) {
		t.Fatalf("photo note missing: %q", got.Notes)
	}
	if got.ContactEmail != "tan@example.com" {
		t.Fatalf("email not normalized: %q", got.ContactEmail)
	}

	sum, err = s.AutoSubmit(ctx, now.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("AutoSubmit: %v", err)
	}
	if sum.Checked != 0 || sum.Submitted != 0 {
		t.Fatalf("second sweep must not resubmit: %+v", sum)
	}
	if n.count() != 1 {
		t.Fatalf("notifications = %d; want 1", n.count())
	}
	if ok, _ := repo.HasAction(ctx, s.DB, l.ID, domain.ActionEmailSent); !ok {
		t.Fatalf("email_sent action missing")
	}
}

func TestAutoSubmit_StatusChangeRestartsDelay(t *testing.T) {
	orig := time.Local
	time.Local = time.FixedZone("SGT", 8*60*60)
	t.Cleanup(func() { time.Local = orig })

	s, n := newTradeIn(t)
	ctx := context.Background()
	l, err := s.Upsert(ctx, completePatch("s1"))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := s.Advance(ctx, l.ID, domain.StatusInReview); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	now := time.Now()
	sum, err := s.AutoSubmit(ctx, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("AutoSubmit: %v", err)
	}
	if sum.Checked != 0 || sum.Submitted != 0 || n.count() != 0 {
		t.Fatalf("lead changed a minute ago must wait for the 2m delay: %+v", sum)
	}

	sum, err = s.AutoSubmit(ctx, now.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("AutoSubmit: %v", err)
	}
	if sum.Submitted != 1 || n.count() != 1 {
		t.Fatalf("lead should be submitted after the delay: %+v", sum)
	}
	got, _ := repo.GetLead(ctx, s.DB, l.ID)
	if got.Status != domain.StatusInReview || got.NotifiedAt == nil {
		t.Fatalf("unexpected lead after sweep: %+v", got)
	}
	if _, off := got.NotifiedAt.Zone(); off != 0 {
		t.Fatalf("notified_at not stored in UTC: %v", got.NotifiedAt)
	}

	sum, _ = s.AutoSubmit(ctx, now.Add(10*time.Minute))
	if sum.Submitted != 0 || n.count() != 1 {
		t.Fatalf("second sweep must not resubmit: %+v", sum)
	}
}

func TestAutoSubmit_SkipsIncompleteAndKeepsNonNewStatus(t *testing.T) {
	s, n := newTradeIn(t)
	ctx := context.Background()

	incomplete, _ := s.Upsert(ctx, domain.LeadPatch{SessionID: "s1", Brand: "Apple", Model: "iPhone 13"})
	quoted, _ := s.Upsert(ctx, completePatch("s2"))
	for _, to := range []domain.LeadStatus{domain.StatusInReview, domain.StatusAwaitingCustomer, domain.StatusQuoted} {
		if _, err := s.Advance(ctx, quoted.ID, to); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}
	if _, err := s.AttachMedia(ctx, quoted.ID, domain.TradeInMedia{URL: "https://cdn.example/1.jpg"}); err != nil {
		t.Fatalf("AttachMedia: %v", err)
	}

	sum, err := s.AutoSubmit(ctx, time.Now().Add(5*time.Minute))
	if err != nil {
		t.Fatalf("AutoSubmit: %v", err)
	}
	if sum.Submitted != 1 || n.count() != 1 || n.sent[0] != quoted.ID {
		t.Fatalf("unexpected sweep: %+v sent=%v", sum, n.sent)
	}

	got, _ := repo.GetLead(ctx, s.DB, quoted.ID)
	if got.Status != domain.StatusQuoted {
		t.Fatalf("non-new status must be kept, got %s", got.Status)
	}
	if strings.Contains(got.Notes, domain.PhotosNotProvidedNote) {
		t.Fatalf("lead with photos must not get the note: %q", got.Notes)
	}
	if ok, _ := repo.HasAction(ctx, s.DB, incomplete.ID, domain.ActionEmailSent); ok {
		t.Fatalf("incomplete lead must not be submitted")
	}
}

func TestAutoSubmit_BlankFieldReportedAsSkipped(t *testing.T) {
	s, n := newTradeIn(t)
	ctx := context.Background()

	// A whitespace-only phone passes the candidate query but not MissingFields.
	l := &domain.TradeInLead{
		SessionID: "s1", Brand: "Apple", Model: "iPhone 13", Condition: "good",
		Accessories: domain.AccessoriesNone, ContactEmail: "a@b.co", ContactPhone: "   ",
		PayoutPreference: "paynow",
	}
	if err := repo.CreateLead(ctx, s.DB, l); err != nil {
		t.Fatalf("CreateLead: %v", err)
	}

	sum, err := s.AutoSubmit(ctx, time.Now().Add(5*time.Minute))
	if err != nil {
		t.Fatalf("AutoSubmit: %v", err)
	}
	if sum.Checked != 1 || sum.Submitted != 0 || sum.Failed != 0 || n.count() != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if len(sum.Results) != 1 || sum.Results[0].LeadID != l.ID || sum.Results[0].Status != SweepSkipped {
		t.Fatalf("skipped lead must be reported: %+v", sum.Results)
	}
}

func TestAutoSubmit_TradeUpNeedsNoPayout(t *testing.T) {
	s, _ := newTradeIn(t)
	ctx := context.Background()
	p := completePatch("s1")
	p.PayoutPreference = ""
	p.TargetBrand, p.TargetModel = "Apple", "iPhone 16 Pro"
	if _, err := s.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	sum, _ := s.AutoSubmit(ctx, time.Now().Add(3*time.Minute))
	if sum.Submitted != 1 {
		t.Fatalf("trade-up lead should be submitted: %+v", sum)
	}
}

func TestAutoSubmit_NotifyFailureReleasesClaim(t *testing.T) {
	s, n := newTradeIn(t)
	ctx := context.Background()
	l, _ := s.Upsert(ctx, completePatch("s1"))

	n.failAll = true
	sum, err := s.AutoSubmit(ctx, time.Now().Add(3*time.Minute))
	if err != nil {
		t.Fatalf("AutoSubmit: %v", err)
	}
	if sum.Failed != 1 || sum.Submitted != 0 || !strings.Contains(sum.Results[0].Error, "smtp down") {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if ok, _ := repo.HasAction(ctx, s.DB, l.ID, domain.ActionEmailSent); ok {
		t.Fatalf("claim must be released after a failed notification")
	}
	got, _ := repo.GetLead(ctx, s.DB, l.ID)
	if got.NotifiedAt != nil {
		t.Fatalf("notified_at must be cleared")
	}

	n.failAll = false
	sum, _ = s.AutoSubmit(ctx, time.Now().Add(10*time.Minute))
	if sum.Submitted != 1 || n.count() != 1 {
		t.Fatalf("later sweep should retry: %+v", sum)
	}
}

func TestAutoSubmit_PartialFailureDoesNotStopBatch(t *testing.T) {
	s, n := newTradeIn(t)
	ctx := context.Background()
	a, _ := s.Upsert(ctx, completePatch("s1"))
	b, _ := s.Upsert(ctx, completePatch("s2"))
	n.failFor[a.ID] = true

	sum, err := s.AutoSubmit(ctx, time.Now().Add(3*time.Minute))
	if err != nil {
		t.Fatalf("AutoSubmit: %v", err)
	}
	if sum.Checked != 2 || sum.Submitted != 1 || sum.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if n.count() != 1 || n.sent[0] != b.ID {
		t.Fatalf("expected only %s notified, got %v", b.ID, n.sent)
	}
}

func TestAutoSubmit_BatchCap(t *testing.T) {
	s, _ := newTradeIn(t)
	s.BatchSize = 2
	ctx := context.Background()
	for _, sess := range []string{"a", "b", "c"} {
		if _, err := s.Upsert(ctx, completePatch(sess)); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	sum, _ := s.AutoSubmit(ctx, time.Now().Add(3*time.Minute))
	if sum.Checked != 2 || sum.Submitted != 2 {
		t.Fatalf("batch cap not applied: %+v", sum)
	}
	sum, _ = s.AutoSubmit(ctx, time.Now().Add(3*time.Minute))
	if sum.Submitted != 1 {
		t.Fatalf("remaining lead should go in the next sweep: %+v", sum)
	}
}

func TestAutoSubmit_ConcurrentSweepsNotifyOnce(t *testing.T) {
	s, n := newTradeIn(t)
	ctx := context.Background()
	if _, err := s.Upsert(ctx, completePatch("s1")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	at := time.Now().Add(3 * time.Minute)
	var wg sync.WaitGroup
	sums := make([]SweepSummary, 2)
	for i := range sums {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sums[i], _ = s.AutoSubmit(ctx, at)
		}(i)
	}
	wg.Wait()

	if n.count() != 1 {
		t.Fatalf("notifications = %d; want exactly 1", n.count())
	}
	if sums[0].Submitted+sums[1].Submitted != 1 {
		t.Fatalf("exactly one sweep should submit: %+v", sums)
	}
}

// ---------- Submit / media / actions ----------

func TestSubmit(t *testing.T) {
	s, n := newTradeIn(t)
	ctx := context.Background()

	partial, _ := s.Upsert(ctx, domain.LeadPatch{SessionID: "s1", Brand: "Apple", Model: "iPhone 13"})
	_, err := s.Submit(ctx, partial.ID)
	if !errors.Is(err, ErrIncompleteLead) || !strings.Contains(err.Error(), "contact_phone") {
		t.Fatalf("expected ErrIncompleteLead listing fields, got %v", err)
	}

	full, _ := s.Upsert(ctx, completePatch("s2"))
	got, err := s.Submit(ctx, full.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.Status != domain.StatusInReview || got.NotifiedAt == nil || n.count() != 1 {
		t.Fatalf("unexpected submit: %+v", got)
	}
	if _, err := s.Submit(ctx, full.ID); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	if n.count() != 1 {
		t.Fatalf("resubmit must not notify again")
	}
}

func TestAttachMediaAndRecordAction(t *testing.T) {
	s, _ := newTradeIn(t)
	ctx := context.Background()

	if _, err := s.AttachMedia(ctx, "missing", domain.TradeInMedia{URL: "https://x"}); !errors.Is(err, ErrLeadNotFound) {
		t.Fatalf("expected ErrLeadNotFound, got %v", err)
	}
	l, _ := s.Upsert(ctx, completePatch("s1"))
	m, err := s.AttachMedia(ctx, l.ID, domain.TradeInMedia{URL: "https://cdn.example/1.jpg", Analysis: "clean"})
	if err != nil || m.ID == "" || m.LeadID != l.ID {
		t.Fatalf("AttachMedia: %+v %v", m, err)
	}
	if err := s.RecordAction(ctx, l.ID, domain.ActionInspectionRequested, map[string]string{"date": "2026-10-20"}); err != nil {
		t.Fatalf("RecordAction: %v", err)
	}
	acts, _ := repo.ListActions(ctx, s.DB, l.ID)
	if len(acts) != 1 || acts[0].Payload != `{"date":"2026-10-20"}` {
		t.Fatalf("unexpected actions: %+v", acts)
	}
}
