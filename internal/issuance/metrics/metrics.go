package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the issuance module.
type Metrics struct {
	// CertificatesIssued counts issued certificates by attestation outcome
	// ("attested" or "unattested").
	CertificatesIssued *prometheus.CounterVec
	AttestationSeconds prometheus.Histogram
	NotificationErrors prometheus.Counter
}

// New registers and returns the issuance module metrics.
func New() *Metrics {
	return &Metrics{
		CertificatesIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_certificates_issued_total",
			Help: "Total number of certificates issued, by attestation outcome",
		}, []string{"outcome"}),
		AttestationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "certledger_attestation_duration_seconds",
			Help:    "Latency of external attestation calls",
			Buckets: prometheus.DefBuckets,
		}),
		NotificationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certledger_issuance_notification_errors_total",
			Help: "Total number of notification creation failures during issuance",
		}),
	}
}
