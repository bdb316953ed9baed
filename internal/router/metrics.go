package router

import "github.com/prometheus/client_golang/prometheus"

var (
	routingDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelrouter_routing_decisions_total",
			Help: "Total number of routing decisions by selected backend.",
		},
		[]string{"backend"},
	)

	ensembleExclusionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelrouter_ensemble_exclusions_total",
			Help: "Total number of ensemble members skipped because they were not trained.",
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(routingDecisionsTotal)
	prometheus.MustRegister(ensembleExclusionsTotal)
}
