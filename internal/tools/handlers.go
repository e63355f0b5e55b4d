package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tbourn/retail-assistant/internal/catalog"
	"github.com/tbourn/retail-assistant/internal/domain"
	"github.com/tbourn/retail-assistant/internal/llm"
	"github.com/tbourn/retail-assistant/internal/notify"
	"github.com/tbourn/retail-assistant/internal/pricing"
)

// CatalogSearcher ranks catalog models for a query. *catalog.Matcher implements it.
type CatalogSearcher interface {
	Match(ctx context.Context, query string, limit int) []catalog.Match
}

// PriceResolver quotes catalog prices. *pricing.Resolver implements it.
type PriceResolver interface {
	ResolvePrice(ctx context.Context, productID, condition string, priceType domain.PriceType) domain.PriceQuote
}

// LeadMutator is the slice of the trade-in service the tools drive.
type LeadMutator interface {
	Upsert(ctx context.Context, patch domain.LeadPatch) (*domain.TradeInLead, error)
	Submit(ctx context.Context, leadID string) (*domain.TradeInLead, error)
	AttachMedia(ctx context.Context, leadID string, m domain.TradeInMedia) (*domain.TradeInMedia, error)
	RecordAction(ctx context.Context, leadID, typ string, payload any) error
}

// Escalator hands a conversation to staff.
type Escalator interface {
	Escalated(ctx context.Context, e notify.Escalation) error
}

// Deps are the collaborators behind the tools. Web, Orders and Vision are
// optional; their tools report "not configured" when nil.
type Deps struct {
	Catalog CatalogSearcher
	Prices  PriceResolver
	Leads   LeadMutator
	Web     WebSearcher
	Orders  OrderDesk
	Staff   Escalator
	Vision  llm.ChatModel
}

var errNotConfigured = errors.New("not configured")

const visionPrompt = "You inspect photos of consumer electronics for a trade-in desk. " +
	"Describe the device, visible damage (screen, body, camera), and anything that affects resale value. Be concise."

// New builds the registry with every tool wired to d.
func New(d Deps) (*Registry, error) {
	return NewRegistry(map[Name]Definition{
		SearchCatalog: {
			Description: "Search the store catalog for products matching a free-text query. Returns model ids, titles and retail price ranges.",
			Parameters: object(props{
				"query": str("What the customer is looking for, e.g. \"galaxy tab s9\"."),
				"limit": integer("Maximum results (1-10, default 5)."),
			}, "query"),
			Handler: Typed(d.searchCatalog),
		},
		WebSearch: {
			Description: "Search the web for product information not in the catalog (specs, release dates, compatibility).",
			Parameters: object(props{
				"query": str("Search query."),
				"limit": integer("Maximum results (1-8, default 5)."),
			}, "query"),
			Handler: Typed(d.webSearch),
		},
		GetPrice: {
			Description: "Get the retail price or trade-in value of a catalog model in a given condition.",
			Parameters: object(props{
				"product_id": str("Catalog model id from search_catalog."),
				"condition":  str("Condition code or label, e.g. \"brand_new\", \"good\". Optional."),
				"price_type": enum("Which price to return.", string(domain.PriceRetail), string(domain.PriceTradeIn)),
			}, "product_id"),
			Handler: Typed(d.getPrice),
		},
		CalculateTopUp: {
			Description: "Compute the top-up a customer pays when trading a device in towards a new one.",
			Parameters: object(props{
				"target_price":   number("Price of the device being bought, in SGD."),
				"trade_in_value": number("Trade-in value of the customer's device, in SGD."),
				"discount":       number("Any additional discount, in SGD. Optional."),
				"lead_id":        str("Trade-in lead to record the amounts on. Optional."),
			}, "target_price", "trade_in_value"),
			Handler: Typed(d.calculateTopUp),
		},
		UpdateTradeIn: {
			Description: "Create or update the customer's trade-in lead with details they have disclosed. Returns the fields still missing.",
			Parameters: object(props{
				"lead_id":             str("Existing lead id. Omit to use the session's open lead."),
				"brand":               str("Device brand."),
				"model":               str("Device model."),
				"storage":             str("Storage capacity."),
				"condition":           str("Device condition as described by the customer."),
				"accessories":         str("Included accessories, or \"none\"."),
				"contact_name":        str("Customer name."),
				"contact_phone":       str("Customer phone number."),
				"contact_email":       str("Customer email."),
				"payout_preference":   str("How the customer wants to be paid, e.g. cash, PayNow."),
				"target_brand":        str("Brand of the device being traded up to."),
				"target_model":        str("Model of the device being traded up to."),
				"target_storage":      str("Storage of the device being traded up to."),
				"source_price_quoted": number("Trade-in value quoted, in SGD."),
				"target_price_quoted": number("Target device price quoted, in SGD."),
				"top_up_amount":       number("Top-up quoted, in SGD."),
				"notes":               str("Anything else staff should know."),
			}),
			Handler: Typed(d.updateTradeIn),
		},
		SubmitTradeIn: {
			Description: "Submit a complete trade-in lead to staff for review. Fails if required details are missing.",
			Parameters: object(props{
				"lead_id": str("Lead id returned by update_trade_in."),
			}, "lead_id"),
			Handler: Typed(d.submitTradeIn),
		},
		CreateOrder: {
			Description: "Create a draft order for a catalog product and return a checkout link.",
			Parameters: object(props{
				"product_id":    str("Catalog model id."),
				"condition":     str("Condition code. Optional."),
				"quantity":      integer("Quantity (1-5, default 1)."),
				"contact_name":  str("Customer name."),
				"contact_email": str("Customer email."),
				"contact_phone": str("Customer phone. Optional."),
				"lead_id":       str("Related trade-in lead. Optional."),
				"notes":         str("Order notes. Optional."),
			}, "product_id", "contact_name", "contact_email"),
			Handler: Typed(d.createOrder),
		},
		ScheduleInspection: {
			Description: "Request a physical inspection appointment for a trade-in device.",
			Parameters: object(props{
				"lead_id":        str("Trade-in lead id."),
				"preferred_date": str("Preferred date, YYYY-MM-DD."),
				"preferred_time": str("Preferred time slot. Optional."),
				"location":       str("Store or address. Optional."),
				"notes":          str("Notes. Optional."),
			}, "lead_id", "preferred_date"),
			Handler: Typed(d.scheduleInspection),
		},
		EscalateToStaff: {
			Description: "Hand the conversation to a human staff member.",
			Parameters: object(props{
				"reason":        str("Why a human is needed."),
				"summary":       str("Short summary of the conversation so far."),
				"urgency":       enum("How urgent.", "low", "normal", "high"),
				"lead_id":       str("Related trade-in lead. Optional."),
				"contact_name":  str("Customer name. Optional."),
				"contact_email": str("Customer email. Optional."),
				"contact_phone": str("Customer phone. Optional."),
			}, "reason"),
			Handler: Typed(d.escalate),
		},
		AnalyzeImage: {
			Description: "Inspect a customer photo of their device and describe its condition. Attaches the photo to the lead when lead_id is given.",
			Parameters: object(props{
				"image_url": str("Public URL of the photo."),
				"question":  str("What to look for. Optional."),
				"lead_id":   str("Trade-in lead to attach the photo to. Optional."),
			}, "image_url"),
			Handler: Typed(d.analyzeImage),
		},
	})
}

type searchCatalogArgs struct {
	Query string `json:"query" validate:"required,max=200"`
	Limit int    `json:"limit" validate:"omitempty,min=1,max=10"`
}

func (d Deps) searchCatalog(ctx context.Context, in searchCatalogArgs) (string, error) {
	if d.Catalog == nil {
		return "", fmt.Errorf("catalog search %w", errNotConfigured)
	}
	if in.Limit == 0 {
		in.Limit = 5
	}
	matches := d.Catalog.Match(ctx, in.Query, in.Limit)
	if len(matches) == 0 {
		return fmt.Sprintf("No catalog matches for %q.", in.Query), nil
	}
	return jsonResult(map[string]any{"matches": matches})
}

type webSearchArgs struct {
	Query string `json:"query" validate:"required,max=300"`
	Limit int    `json:"limit" validate:"omitempty,min=1,max=8"`
}

func (d Deps) webSearch(ctx context.Context, in webSearchArgs) (string, error) {
	if d.Web == nil {
		return "", fmt.Errorf("web search %w", errNotConfigured)
	}
	if in.Limit == 0 {
		in.Limit = 5
	}
	results, err := d.Web.Search(ctx, in.Query, in.Limit)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("No web results for %q.", in.Query), nil
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. [%s](%s)", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			b.WriteString(" - " + r.Snippet)
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

type getPriceArgs struct {
	ProductID string `json:"product_id" validate:"required"`
	Condition string `json:"condition"`
	PriceType string `json:"price_type" validate:"omitempty,oneof=retail trade_in"`
}

func (d Deps) getPrice(ctx context.Context, in getPriceArgs) (string, error) {
	if d.Prices == nil {
		return "", fmt.Errorf("pricing %w", errNotConfigured)
	}
	pt := domain.PriceRetail
	if in.PriceType != "" {
		pt = domain.PriceType(in.PriceType)
	}
	return jsonResult(d.Prices.ResolvePrice(ctx, in.ProductID, in.Condition, pt))
}

type topUpArgs struct {
	TargetPrice  float64 `json:"target_price"   validate:"gte=0"`
	TradeInValue float64 `json:"trade_in_value" validate:"gte=0"`
	Discount     float64 `json:"discount"       validate:"gte=0"`
	LeadID       string  `json:"lead_id"`
}

func (d Deps) calculateTopUp(ctx context.Context, in topUpArgs) (string, error) {
	res := pricing.ComputeTopUp(in.TargetPrice, in.TradeInValue, in.Discount)
	if in.LeadID != "" && d.Leads != nil {
		target, value, amount := res.Target, res.TradeIn, res.Amount
		if _, err := d.Leads.Upsert(ctx, domain.LeadPatch{
			LeadID:            in.LeadID,
			SessionID:         SessionFrom(ctx),
			TargetPriceQuoted: &target,
			SourcePriceQuoted: &value,
			TopUpAmount:       &amount,
		}); err != nil {
			return "", err
		}
	}
	return jsonResult(res)
}

type updateTradeInArgs struct {
	LeadID            string   `json:"lead_id"`
	Brand             string   `json:"brand"             validate:"max=64"`
	Model             string   `json:"model"             validate:"max=128"`
	Storage           string   `json:"storage"           validate:"max=32"`
	Condition         string   `json:"condition"         validate:"max=64"`
	Accessories       string   `json:"accessories"       validate:"max=500"`
	ContactName       string   `json:"contact_name"      validate:"max=128"`
	ContactPhone      string   `json:"contact_phone"     validate:"max=32"`
	ContactEmail      string   `json:"contact_email"     validate:"omitempty,email"`
	PayoutPreference  string   `json:"payout_preference" validate:"max=32"`
	TargetBrand       string   `json:"target_brand"      validate:"max=64"`
	TargetModel       string   `json:"target_model"      validate:"max=128"`
	TargetStorage     string   `json:"target_storage"    validate:"max=32"`
	SourcePriceQuoted *float64 `json:"source_price_quoted" validate:"omitempty,gte=0"`
	TargetPriceQuoted *float64 `json:"target_price_quoted" validate:"omitempty,gte=0"`
	TopUpAmount       *float64 `json:"top_up_amount"       validate:"omitempty,gte=0"`
	Notes             string   `json:"notes"             validate:"max=2000"`
}

type leadState struct {
	LeadID        string            `json:"lead_id"`
	Status        domain.LeadStatus `json:"status"`
	TradeUp       bool              `json:"trade_up"`
	MissingFields []string          `json:"missing_fields"`
}

func stateOf(l *domain.TradeInLead) leadState {
	missing := l.MissingFields()
	if missing == nil {
		missing = []string{}
	}
	return leadState{LeadID: l.ID, Status: l.Status, TradeUp: l.IsTradeUp(), MissingFields: missing}
}

func (d Deps) updateTradeIn(ctx context.Context, in updateTradeInArgs) (string, error) {
	if d.Leads == nil {
		return "", fmt.Errorf("trade-in %w", errNotConfigured)
	}
	lead, err := d.Leads.Upsert(ctx, domain.LeadPatch{
		LeadID:            in.LeadID,
		SessionID:         SessionFrom(ctx),
		Brand:             in.Brand,
		Model:             in.Model,
		Storage:           in.Storage,
		Condition:         in.Condition,
		Accessories:       in.Accessories,
		ContactName:       in.ContactName,
		ContactPhone:      in.ContactPhone,
		ContactEmail:      in.ContactEmail,
		PayoutPreference:  in.PayoutPreference,
		TargetBrand:       in.TargetBrand,
		TargetModel:       in.TargetModel,
		TargetStorage:     in.TargetStorage,
		SourcePriceQuoted: in.SourcePriceQuoted,
		TargetPriceQuoted: in.TargetPriceQuoted,
		TopUpAmount:       in.TopUpAmount,
		Notes:             in.Notes,
	})
	if err != nil {
		return "", err
	}
	return jsonResult(stateOf(lead))
}

type submitTradeInArgs struct {
	LeadID string `json:"lead_id" validate:"required"`
}

func (d Deps) submitTradeIn(ctx context.Context, in submitTradeInArgs) (string, error) {
	if d.Leads == nil {
		return "", fmt.Errorf("trade-in %w", errNotConfigured)
	}
	lead, err := d.Leads.Submit(ctx, in.LeadID)
	if err != nil {
		return "", err
	}
	return jsonResult(map[string]any{
		"lead_id":   lead.ID,
		"status":    lead.Status,
		"submitted": true,
	})
}

type createOrderArgs struct {
	ProductID    string `json:"product_id"    validate:"required"`
	Condition    string `json:"condition"`
	Quantity     int    `json:"quantity"      validate:"omitempty,min=1,max=5"`
	ContactName  string `json:"contact_name"  validate:"required,max=128"`
	ContactEmail string `json:"contact_email" validate:"required,email"`
	ContactPhone string `json:"contact_phone" validate:"max=32"`
	LeadID       string `json:"lead_id"`
	Notes        string `json:"notes"         validate:"max=1000"`
}

func (d Deps) createOrder(ctx context.Context, in createOrderArgs) (string, error) {
	if d.Orders == nil {
		return "", fmt.Errorf("order desk %w", errNotConfigured)
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	receipt, err := d.Orders.CreateOrder(ctx, OrderRequest{
		SessionID:    SessionFrom(ctx),
		LeadID:       in.LeadID,
		ProductID:    in.ProductID,
		Condition:    in.Condition,
		Quantity:     in.Quantity,
		ContactName:  in.ContactName,
		ContactEmail: in.ContactEmail,
		ContactPhone: in.ContactPhone,
		Notes:        in.Notes,
	})
	if err != nil {
		return "", err
	}
	if in.LeadID != "" && d.Leads != nil {
		if err := d.Leads.RecordAction(ctx, in.LeadID, domain.ActionOrderCreated, receipt); err != nil {
			return "", err
		}
	}
	return jsonResult(receipt)
}

type scheduleInspectionArgs struct {
	LeadID        string `json:"lead_id"        validate:"required"`
	PreferredDate string `json:"preferred_date" validate:"required,datetime=2006-01-02"`
	PreferredTime string `json:"preferred_time" validate:"max=32"`
	Location      string `json:"location"       validate:"max=200"`
	Notes         string `json:"notes"          validate:"max=1000"`
}

func (d Deps) scheduleInspection(ctx context.Context, in scheduleInspectionArgs) (string, error) {
	if d.Leads == nil {
		return "", fmt.Errorf("trade-in %w", errNotConfigured)
	}
	if err := d.Leads.RecordAction(ctx, in.LeadID, domain.ActionInspectionRequested, in); err != nil {
		return "", err
	}
	when := in.PreferredDate
	if in.PreferredTime != "" {
		when += " " + in.PreferredTime
	}
	return fmt.Sprintf("Inspection requested for lead %s on %s. Staff will confirm the slot.", in.LeadID, when), nil
}

type escalateArgs struct {
	Reason       string `json:"reason"        validate:"required,max=500"`
	Summary      string `json:"summary"       validate:"max=2000"`
	Urgency      string `json:"urgency"       validate:"omitempty,oneof=low normal high"`
	LeadID       string `json:"lead_id"`
	ContactName  string `json:"contact_name"  validate:"max=128"`
	ContactEmail string `json:"contact_email" validate:"omitempty,email"`
	ContactPhone string `json:"contact_phone" validate:"max=32"`
}

func (d Deps) escalate(ctx context.Context, in escalateArgs) (string, error) {
	if d.Staff == nil {
		return "", fmt.Errorf("staff notification %w", errNotConfigured)
	}
	if in.Urgency == "" {
		in.Urgency = "normal"
	}
	e := notify.Escalation{
		SessionID:    SessionFrom(ctx),
		LeadID:       in.LeadID,
		Reason:       in.Reason,
		Summary:      in.Summary,
		Urgency:      in.Urgency,
		ContactName:  in.ContactName,
		ContactEmail: in.ContactEmail,
		ContactPhone: in.ContactPhone,
	}
	if err := d.Staff.Escalated(ctx, e); err != nil {
		return "", err
	}
	if in.LeadID != "" && d.Leads != nil {
		if err := d.Leads.RecordAction(ctx, in.LeadID, domain.ActionEscalated, e); err != nil {
			return "", err
		}
	}
	return "Escalated to staff. A team member will follow up shortly.", nil
}

type analyzeImageArgs struct {
	ImageURL string `json:"image_url" validate:"required,url"`
	Question string `json:"question"  validate:"max=500"`
	LeadID   string `json:"lead_id"`
}

func (d Deps) analyzeImage(ctx context.Context, in analyzeImageArgs) (string, error) {
	if d.Vision == nil {
		return "", fmt.Errorf("image analysis %w", errNotConfigured)
	}
	q := in.Question
	if q == "" {
		q = "Assess this device's condition for trade-in."
	}
	resp, err := d.Vision.Complete(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: domain.RoleSystem, Content: visionPrompt},
			{Role: domain.RoleUser, Content: q, ImageURLs: []string{in.ImageURL}},
		},
	})
	if err != nil {
		return "", err
	}
	analysis := strings.TrimSpace(resp.Content)
	if in.LeadID != "" && d.Leads != nil {
		if _, err := d.Leads.AttachMedia(ctx, in.LeadID, domain.TradeInMedia{
			URL:      in.ImageURL,
			Kind:     "photo",
			Analysis: analysis,
		}); err != nil {
			return "", err
		}
	}
	return analysis, nil
}

func jsonResult(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
