package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the service's Prometheus collectors.
type Metrics struct {
	Logins            *prometheus.CounterVec
	OAuthCallbacks    *prometheus.CounterVec
	HandoffIssued     prometheus.Counter
	HandoffExchanged  *prometheus.CounterVec
	ImpersonationUsed *prometheus.CounterVec
}

// New registers collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mobileshop_auth",
			Name:      "logins_total",
			Help:      "Credential logins by flow and result.",
		}, []string{"flow", "result"}),
		OAuthCallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mobileshop_auth",
			Name:      "oauth_callbacks_total",
			Help:      "OAuth provider callbacks by result.",
		}, []string{"result"}),
		HandoffIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mobileshop_auth",
			Name:      "handoff_codes_issued_total",
			Help:      "One-time handoff codes issued.",
		}),
		HandoffExchanged: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mobileshop_auth",
			Name:      "handoff_exchanges_total",
			Help:      "Handoff code exchanges by result.",
		}, []string{"result"}),
		ImpersonationUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mobileshop_auth",
			Name:      "impersonation_exchanges_total",
			Help:      "Impersonation handoff exchanges by result.",
		}, []string{"result"}),
	}
}
