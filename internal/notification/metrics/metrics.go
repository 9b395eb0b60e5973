package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the notification module.
type Metrics struct {
	Created   prometheus.Counter
	ReadMarks *prometheus.CounterVec
	CacheHits *prometheus.CounterVec
}

// New registers and returns the notification module metrics.
func New() *Metrics {
	return &Metrics{
		Created: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certledger_notifications_created_total",
			Help: "Total number of notifications created",
		}),
		ReadMarks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_notification_read_marks_total",
			Help: "Total number of read-state transitions, by kind (single or bulk)",
		}, []string{"kind"}),
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_notification_unread_cache_total",
			Help: "Unread-count cache lookups, by result (hit or miss)",
		}, []string{"result"}),
	}
}
