// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for trade-in leads,
// their audit actions and media.
//
// All functions are context-aware and accept a *gorm.DB handle, so they can
// run inside a transaction. They are thin: no business rules, only queries.
//
// Error semantics:
//   - missing rows return ErrNotFound (gorm.ErrRecordNotFound)
//   - unique violations on insert return ErrDuplicate
//   - anything else is the raw gorm error
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/retail-assistant/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate is returned when an insert violates a unique index.
var ErrDuplicate = errors.New("duplicate record")

// CreateLead inserts lead, assigning an id and status when missing.
func CreateLead(ctx context.Context, db *gorm.DB, lead *domain.TradeInLead) error {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.Status == "" {
		lead.Status = domain.StatusNew
	}
	return db.WithContext(ctx).Create(lead).Error
}

// GetLead loads a lead with its media and actions.
func GetLead(ctx context.Context, db *gorm.DB, id string) (*domain.TradeInLead, error) {
	var l domain.TradeInLead
	err := db.WithContext(ctx).
		Preload("Media", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC") }).
		Preload("Actions", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC") }).
		First(&l, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// FindOpenLeadBySession returns the most recently updated non-terminal lead of
// a chat session.
func FindOpenLeadBySession(ctx context.Context, db *gorm.DB, sessionID string) (*domain.TradeInLead, error) {
	var l domain.TradeInLead
	err := db.WithContext(ctx).
		Where("session_id = ? AND status IN ?", sessionID, openStatuses()).
		Order("updated_at DESC").
		First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// SaveLead writes every column of lead and bumps updated_at.
func SaveLead(ctx context.Context, db *gorm.DB, lead *domain.TradeInLead) error {
	return db.WithContext(ctx).Omit("Actions", "Media").Save(lead).Error
}

// UpdateLeadStatus moves a lead from one status to another. It returns
// ErrNotFound when the lead is not in from (compare-and-set).
func UpdateLeadStatus(ctx context.Context, db *gorm.DB, id string, from, to domain.LeadStatus) error {
	res := db.WithContext(ctx).Model(&domain.TradeInLead{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": db.NowFunc()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSweepCandidates returns up to limit open leads last updated at or before
// cutoff that have no email_sent action, oldest first, with media preloaded.
// Leads with an empty required column are filtered out here so they cannot
// fill the batch; callers still apply TradeInLead.MissingFields.
func ListSweepCandidates(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.TradeInLead, error) {
	var out []domain.TradeInLead
	cutoff = cutoff.In(db.NowFunc().Location())
	sent := db.Model(&domain.TradeInAction{}).
		Select("1").
		Where("tradein_actions.lead_id = tradein_leads.id AND tradein_actions.type = ?", domain.ActionEmailSent)
	err := db.WithContext(ctx).
		Preload("Media").
		Where("status IN ?", openStatuses()).
		Where("updated_at <= ?", cutoff).
		Where("NOT EXISTS (?)", sent).
		Where("brand <> '' AND model <> '' AND condition <> '' AND accessories <> ''").
		Where("contact_email <> '' AND contact_phone <> ''").
		Where("(payout_preference <> '' OR target_model <> '')").
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// HasAction reports whether lead has at least one action of type.
func HasAction(ctx context.Context, db *gorm.DB, leadID, typ string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.TradeInAction{}).
		Where("lead_id = ? AND type = ?", leadID, typ).
		Count(&n).Error
	return n > 0, err
}

// InsertAction appends an audit action. A dedupe-key collision returns ErrDuplicate.
func InsertAction(ctx context.Context, db *gorm.DB, a *domain.TradeInAction) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = db.NowFunc()
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// DeleteAction removes an action by id.
func DeleteAction(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Delete(&domain.TradeInAction{}, "id = ?", id).Error
}

// ListActions returns a lead's actions, oldest first.
func ListActions(ctx context.Context, db *gorm.DB, leadID string) ([]domain.TradeInAction, error) {
	var out []domain.TradeInAction
	err := db.WithContext(ctx).Where("lead_id = ?", leadID).Order("created_at ASC").Find(&out).Error
	return out, err
}

// AddMedia attaches photo evidence to a lead.
func AddMedia(ctx context.Context, db *gorm.DB, m *domain.TradeInMedia) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = db.NowFunc()
	}
	return db.WithContext(ctx).Create(m).Error
}

func openStatuses() []string {
	out := make([]string, len(domain.OpenStatuses))
	for i, s := range domain.OpenStatuses {
		out[i] = string(s)
	}
	return out
}

// isDuplicate detects unique-constraint violations across drivers that may
// not map to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLite: "UNIQUE constraint failed"; Postgres: "duplicate key value violates unique constraint".
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}
