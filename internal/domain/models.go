package domain

import (
	"strings"
	"time"
)

// LeadStatus is the workflow state of a TradeInLead.
type LeadStatus string

const (
	StatusNew              LeadStatus = "new"
	StatusInReview         LeadStatus = "in_review"
	StatusAwaitingCustomer LeadStatus = "awaiting_customer"
	StatusQuoted           LeadStatus = "quoted"
	StatusSubmitted        LeadStatus = "submitted"
	StatusAbandoned        LeadStatus = "abandoned"
)

// leadEdges lists every allowed status transition.
var leadEdges = map[LeadStatus][]LeadStatus{
	StatusNew:              {StatusInReview},
	StatusInReview:         {StatusAwaitingCustomer},
	StatusAwaitingCustomer: {StatusQuoted},
	StatusQuoted:           {StatusSubmitted, StatusAbandoned},
}

// OpenStatuses are the states the auto-submit sweep considers.
var OpenStatuses = []LeadStatus{StatusNew, StatusInReview, StatusAwaitingCustomer, StatusQuoted}

// Valid reports whether s is a known status.
func (s LeadStatus) Valid() bool {
	switch s {
	case StatusNew, StatusInReview, StatusAwaitingCustomer, StatusQuoted, StatusSubmitted, StatusAbandoned:
		return true
	}
	return false
}

// Terminal reports whether the automated sweep must leave the lead alone.
func (s LeadStatus) Terminal() bool {
	return s == StatusSubmitted || s == StatusAbandoned
}

// CanTransition reports whether from → to is an allowed edge.
func CanTransition(from, to LeadStatus) bool {
	for _, next := range leadEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Action types recorded in the trade-in audit trail.
const (
	ActionEmailSent           = "email_sent"
	ActionInspectionRequested = "inspection_requested"
	ActionEscalated           = "escalated"
	ActionOrderCreated        = "order_created"
	ActionStatusChanged       = "status_changed"
)

// AccessoriesNone is the explicit "no accessories" disclosure.
const AccessoriesNone = "none"

// TradeInLead is a customer's in-progress trade or trade-up request. Leads are
// never deleted, only advanced along the allowed status edges.
type TradeInLead struct {
	ID     string     `json:"id"     gorm:"type:char(36);primaryKey"`
	Status LeadStatus `json:"status" gorm:"type:varchar(32);not null;default:'new';index:idx_lead_sweep,priority:1"`

	// Source device.
	Brand       string `json:"brand"       gorm:"type:varchar(64)"`
	Model       string `json:"model"       gorm:"type:varchar(128)"`
	Storage     string `json:"storage"     gorm:"type:varchar(32)"`
	Condition   string `json:"condition"   gorm:"type:varchar(64)"`
	Accessories string `json:"accessories" gorm:"type:text"`

	// Contact.
	ContactName  string `json:"contact_name"  gorm:"type:varchar(128)"`
	ContactPhone string `json:"contact_phone" gorm:"type:varchar(32)"`
	ContactEmail string `json:"contact_email" gorm:"type:varchar(255)"`

	PayoutPreference string `json:"payout_preference" gorm:"type:varchar(32)"`

	// Trade-up target device (optional).
	TargetBrand   string `json:"target_brand"   gorm:"type:varchar(64)"`
	TargetModel   string `json:"target_model"   gorm:"type:varchar(128)"`
	TargetStorage string `json:"target_storage" gorm:"type:varchar(32)"`

	SourcePriceQuoted *float64 `json:"source_price_quoted,omitempty"`
	TargetPriceQuoted *float64 `json:"target_price_quoted,omitempty"`
	TopUpAmount       *float64 `json:"top_up_amount,omitempty"`

	Notes      string     `json:"notes"       gorm:"type:text"`
	SessionID  string     `json:"session_id"  gorm:"type:varchar(128);index"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"  gorm:"index:idx_lead_sweep,priority:2"`

	Actions []TradeInAction `json:"actions,omitempty" gorm:"foreignKey:LeadID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Media   []TradeInMedia  `json:"media,omitempty"   gorm:"foreignKey:LeadID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for TradeInLead.
func (TradeInLead) TableName() string { return "tradein_leads" }

// HasSourceDevice reports whether a source device has been disclosed.
func (l *TradeInLead) HasSourceDevice() bool {
	return strings.TrimSpace(l.Brand) != "" && strings.TrimSpace(l.Model) != ""
}

// HasTargetDevice reports whether a trade-up target has been disclosed.
func (l *TradeInLead) HasTargetDevice() bool {
	return strings.TrimSpace(l.TargetModel) != ""
}

// IsTradeUp reports whether both a source and a target device are present,
// in which case the payout preference is implied.
func (l *TradeInLead) IsTradeUp() bool {
	return l.HasSourceDevice() && l.HasTargetDevice()
}

// MissingFields lists the required fields that are still empty, in a stable
// order suitable for prompting the customer.
func (l *TradeInLead) MissingFields() []string {
	var out []string
	if !l.HasSourceDevice() {
		out = append(out, "device_brand_model")
	}
	if strings.TrimSpace(l.Condition) == "" {
		out = append(out, "condition")
	}
	if strings.TrimSpace(l.Accessories) == "" {
		out = append(out, "accessories")
	}
	if strings.TrimSpace(l.ContactEmail) == "" {
		out = append(out, "contact_email")
	}
	if strings.TrimSpace(l.ContactPhone) == "" {
		out = append(out, "contact_phone")
	}
	if !l.IsTradeUp() && strings.TrimSpace(l.PayoutPreference) == "" {
		out = append(out, "payout_preference")
	}
	return out
}

// TradeInAction is an audit record of a side effect performed for a lead.
// DedupeKey is unique when set; the email_sent action uses it to guarantee at
// most one staff notification per lead.
type TradeInAction struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	LeadID    string    `json:"lead_id"    gorm:"type:char(36);not null;index"`
	Type      string    `json:"type"       gorm:"type:varchar(64);not null"`
	Payload   string    `json:"payload"    gorm:"type:text"`
	DedupeKey *string   `json:"-"          gorm:"type:varchar(128);uniqueIndex:ux_tradein_action_dedupe"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for TradeInAction.
func (TradeInAction) TableName() string { return "tradein_actions" }

// EmailSentKey returns the dedupe key of a lead's email_sent action.
func EmailSentKey(leadID string) string { return leadID + ":" + ActionEmailSent }

// TradeInMedia is photo evidence attached to a lead.
type TradeInMedia struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	LeadID    string    `json:"lead_id"    gorm:"type:char(36);not null;index"`
	URL       string    `json:"url"        gorm:"type:text;not null"`
	Kind      string    `json:"kind"       gorm:"type:varchar(32)"`
	Analysis  string    `json:"analysis"   gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for TradeInMedia.
func (TradeInMedia) TableName() string { return "tradein_media" }

// PhotosNotProvidedNote is prepended to a lead submitted without photos.
const PhotosNotProvidedNote = "Photos: Not provided. Final quote subject to physical inspection."

// LeadPatch carries customer disclosures for a lead. Empty fields leave the
// stored value unchanged; Notes are appended.
type LeadPatch struct {
	LeadID    string
	SessionID string

	Brand       string
	Model       string
	Storage     string
	Condition   string
	Accessories string

	ContactName  string
	ContactPhone string
	ContactEmail string

	PayoutPreference string

	TargetBrand   string
	TargetModel   string
	TargetStorage string

	SourcePriceQuoted *float64
	TargetPriceQuoted *float64
	TopUpAmount       *float64

	Notes string
}

// Empty reports whether the patch discloses nothing.
func (p LeadPatch) Empty() bool {
	for _, s := range []string{
		p.Brand, p.Model, p.Storage, p.Condition, p.Accessories,
		p.ContactName, p.ContactPhone, p.ContactEmail, p.PayoutPreference,
		p.TargetBrand, p.TargetModel, p.TargetStorage, p.Notes,
	} {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return p.SourcePriceQuoted == nil && p.TargetPriceQuoted == nil && p.TopUpAmount == nil
}
