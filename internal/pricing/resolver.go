// Package pricing resolves retail and trade-in figures from the catalog and
// computes trade-up top-ups.
package pricing

import (
	"context"
	"strings"

	"golang.org/x/text/cases"

	"github.com/tbourn/retail-assistant/internal/domain"
)

// Confidence levels attached to quotes.
const (
	ConfidenceValue    = 0.9 // a usable figure was found
	ConfidenceNoValue  = 0.4 // the model exists but has no figure for the request
	ConfidenceNotFound = 0.2 // unknown model
)

// DefaultFlagshipCondition is used when a model does not name its own.
const DefaultFlagshipCondition = "brand_new"

// SourceNotFound tags quotes for unknown models.
const SourceNotFound = "catalog:not_found"

// ModelLookup finds catalog models by id. *catalog.Store implements it.
type ModelLookup interface {
	Lookup(ctx context.Context, id string) (*domain.CatalogModel, bool)
}

// Resolver turns a catalog model and condition into a PriceQuote.
type Resolver struct {
	models ModelLookup
}

// NewResolver returns a Resolver reading from models.
func NewResolver(models ModelLookup) *Resolver {
	return &Resolver{models: models}
}

// ResolvePrice never fails: unknown models and missing figures produce a
// quote with nil values and a low confidence so the caller can hedge.
//
// Condition selection order: a case-insensitive match on code or label, then
// the model's flagship condition, then the first listed condition.
func (r *Resolver) ResolvePrice(ctx context.Context, productID, condition string, priceType domain.PriceType) domain.PriceQuote {
	if priceType != domain.PriceTradeIn {
		priceType = domain.PriceRetail
	}
	q := domain.PriceQuote{
		ProductID: productID,
		PriceType: priceType,
		Currency:  domain.CurrencySGD,
	}

	m, ok := r.models.Lookup(ctx, productID)
	if !ok {
		q.Source = SourceNotFound
		q.Confidence = ConfidenceNotFound
		return q
	}

	c := r.selectCondition(m, condition)
	if c == nil {
		q.Source = "catalog:" + m.ID
		q.Confidence = ConfidenceNoValue
		return q
	}
	q.Condition = c.Code
	q.Source = "catalog:" + m.ID + ":" + c.Code

	switch priceType {
	case domain.PriceRetail:
		q.Value = copyF(c.BasePrice)
	case domain.PriceTradeIn:
		if c.TradeIn != nil {
			q.Min, q.Max = copyF(c.TradeIn.Min), copyF(c.TradeIn.Max)
			switch {
			case q.Min != nil && q.Max != nil:
				mid := (*q.Min + *q.Max) / 2
				q.Value = &mid
			case q.Min != nil:
				q.Value = copyF(q.Min)
			case q.Max != nil:
				q.Value = copyF(q.Max)
			}
		}
	}

	if q.Value != nil {
		q.Confidence = ConfidenceValue
	} else {
		q.Confidence = ConfidenceNoValue
	}
	return q
}

func (r *Resolver) selectCondition(m *domain.CatalogModel, requested string) *domain.CatalogCondition {
	if len(m.Conditions) == 0 {
		return nil
	}
	if want := conditionKey(requested); want != "" {
		for i := range m.Conditions {
			c := &m.Conditions[i]
			if conditionKey(c.Code) == want || conditionKey(c.Label) == want {
				return c
			}
		}
	}
	flagship := m.FlagshipCondition
	if flagship == "" {
		flagship = DefaultFlagshipCondition
	}
	for i := range m.Conditions {
		if conditionKey(m.Conditions[i].Code) == conditionKey(flagship) {
			return &m.Conditions[i]
		}
	}
	return &m.Conditions[0]
}

// conditionKey folds case and treats "_", "-" and runs of spaces as one separator, so
// "Brand New", "brand_new" and "BRAND-NEW" compare equal.
func conditionKey(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	// Casers are stateful; never share one across goroutines.
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

func copyF(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
