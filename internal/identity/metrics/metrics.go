package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity module.
type Metrics struct {
	AccountsCreated *prometheus.CounterVec
	AuthFailures    prometheus.Counter
}

// New registers and returns the identity module metrics.
func New() *Metrics {
	return &Metrics{
		AccountsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_accounts_created_total",
			Help: "Total number of accounts created, by role",
		}, []string{"role"}),
		AuthFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certledger_auth_failures_total",
			Help: "Total number of failed authentication attempts",
		}),
	}
}
