package pricing

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// TopUp is the cash a customer pays when trading toward a pricier device.
type TopUp struct {
	Target      float64 `json:"target"`
	TradeIn     float64 `json:"trade_in"`
	Discount    float64 `json:"discount"`
	Amount      float64 `json:"amount"`
	Explanation string  `json:"explanation"`
}

var money = message.NewPrinter(language.English)

// ComputeTopUp rounds each operand to the nearest dollar and returns
// max(0, target - tradeIn - discount). The store never owes a negative top-up.
func ComputeTopUp(target, tradeIn, discount float64) TopUp {
	t, v, d := math.Round(target), math.Round(tradeIn), math.Round(discount)
	amt := t - v - d
	if amt <= 0 { // also normalizes -0
		amt = 0
	}
	return TopUp{
		Target:   t,
		TradeIn:  v,
		Discount: d,
		Amount:   amt,
		Explanation: money.Sprintf("S$%d - S$%d - S$%d = S$%d",
			int64(t), int64(v), int64(d), int64(amt)),
	}
}
