package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// CatalogLoads counts catalog snapshot loads by result (ok|error).
	CatalogLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_loads_total",
			Help: "Catalog snapshot loads by result.",
		},
		[]string{"result"},
	)

	// CatalogModels reports the number of models in the published snapshot.
	CatalogModels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_models",
			Help: "Number of catalog models in the current snapshot.",
		},
	)

	// ToolCalls counts tool invocations by tool name and outcome
	// (ok|error|unavailable).
	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_tool_calls_total",
			Help: "Tool invocations requested by the model.",
		},
		[]string{"tool", "outcome"},
	)

	// ModelLatency records chat completion latency by outcome.
	ModelLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "model_request_duration_seconds",
			Help:    "Duration of model backend calls in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"outcome"},
	)

	// SweepLeads counts leads visited by the auto-submit sweep by outcome
	// (submitted|skipped|failed).
	SweepLeads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradein_sweep_leads_total",
			Help: "Leads processed by the trade-in auto-submit sweep.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(CatalogLoads, CatalogModels, ToolCalls, ModelLatency, SweepLeads)
}
