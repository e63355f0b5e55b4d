package tools

// Name identifies a tool the model may call. The set is closed: AllNames is
// the source of truth for registry exhaustiveness.
type Name string

const (
	SearchCatalog      Name = "search_catalog"
	WebSearch          Name = "web_search"
	GetPrice           Name = "get_price"
	CalculateTopUp     Name = "calculate_top_up"
	UpdateTradeIn      Name = "update_trade_in"
	SubmitTradeIn      Name = "submit_trade_in"
	CreateOrder        Name = "create_order"
	ScheduleInspection Name = "schedule_inspection"
	EscalateToStaff    Name = "escalate_to_staff"
	AnalyzeImage       Name = "analyze_image"
)

// AllNames lists every tool in declaration order.
var AllNames = []Name{
	SearchCatalog,
	WebSearch,
	GetPrice,
	CalculateTopUp,
	UpdateTradeIn,
	SubmitTradeIn,
	CreateOrder,
	ScheduleInspection,
	EscalateToStaff,
	AnalyzeImage,
}

// ParseName maps a model-emitted name onto the enum.
func ParseName(s string) (Name, bool) {
	for _, n := range AllNames {
		if string(n) == s {
			return n, true
		}
	}
	return "", false
}

func (n Name) String() string { return string(n) }
