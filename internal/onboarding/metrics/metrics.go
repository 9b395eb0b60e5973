package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the onboarding module.
type Metrics struct {
	RequestsSubmitted prometheus.Counter
	Decisions         *prometheus.CounterVec
}

// New registers and returns the onboarding module metrics.
func New() *Metrics {
	return &Metrics{
		RequestsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certledger_onboarding_requests_submitted_total",
			Help: "Total number of onboarding requests submitted",
		}),
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_onboarding_decisions_total",
			Help: "Total number of onboarding decisions, by outcome",
		}, []string{"outcome"}),
	}
}
