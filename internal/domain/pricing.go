package domain

// PriceType selects which figure a PriceQuote carries.
type PriceType string

const (
	PriceRetail  PriceType = "retail"
	PriceTradeIn PriceType = "trade_in"
)

// CurrencySGD is the only currency the store quotes in.
const CurrencySGD = "SGD"

// PriceQuote is the result of resolving a price for a catalog model.
//
// Value, Min and Max are nil when no usable figure was found. Confidence is
// in [0,1]; callers should hedge their phrasing for low-confidence quotes.
type PriceQuote struct {
	ProductID  string    `json:"product_id"`
	Condition  string    `json:"condition,omitempty"`
	PriceType  PriceType `json:"price_type"`
	Currency   string    `json:"currency"`
	Value      *float64  `json:"value"`
	Min        *float64  `json:"min"`
	Max        *float64  `json:"max"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
}
