package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the session layer
type Metrics struct {
	RefreshRequests     prometheus.Counter
	RefreshJoined       prometheus.Counter
	RefreshFailures     prometheus.Counter
	RequestRetries      prometheus.Counter
	ForbiddenResponses  prometheus.Counter
	Revalidations       *prometheus.CounterVec
	NavigationRedirects prometheus.Counter
}

// New creates the collectors and registers them with reg.
// A nil registerer leaves them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RefreshRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_client_refresh_requests_total",
			Help: "Refresh network calls issued against the refresh endpoint",
		}),
		RefreshJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_client_refresh_joined_total",
			Help: "Refresh callers that joined an in-flight refresh instead of issuing one",
		}),
		RefreshFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_client_refresh_failures_total",
			Help: "Refresh network calls that ended in a forced logout",
		}),
		RequestRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_client_request_retries_total",
			Help: "Requests re-issued once after a 401 and a successful refresh",
		}),
		ForbiddenResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_client_forbidden_responses_total",
			Help: "403 responses that triggered a login redirect",
		}),
		Revalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_client_revalidations_total",
			Help: "Current user lookups by outcome",
		}, []string{"outcome"}),
		NavigationRedirects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_client_navigation_redirects_total",
			Help: "Route transitions replaced by the login route",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.RefreshRequests,
			m.RefreshJoined,
			m.RefreshFailures,
			m.RequestRetries,
			m.ForbiddenResponses,
			m.Revalidations,
			m.NavigationRedirects,
		)
	}
	return m
}

// Revalidation outcomes
const (
	OutcomeValidated = "validated"
	OutcomeDegraded  = "degraded"
	OutcomeError     = "error"
)
