package navigation

import (
	"context"

	"github.com/jrsteele09/go-auth-client/internal/metrics"
	"github.com/rs/zerolog"
)

// Refresher produces a new access credential from the session cookie.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// UserEnsurer confirms the cached user against the server.
type UserEnsurer interface {
	EnsureCurrentUser(ctx context.Context) error
}

// CredentialReader reports whether an access credential is held.
type CredentialReader interface {
	Get() (string, bool)
}

// Decision is the outcome of a guard. When Allow is false, Redirect names
// the path to go to instead; an empty Redirect cancels the transition.
type Decision struct {
	Allow    bool
	Redirect string
}

// BeforeEacher runs before every route transition.
type BeforeEacher interface {
	BeforeEach(ctx context.Context, to Route) Decision
}

// Guard lets public routes through and makes sure a session exists for
// every other route. Identity is best effort: a failed user lookup never
// blocks a transition.
type Guard struct {
	creds      CredentialReader
	refresher  Refresher
	users      UserEnsurer
	loginRoute string

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

type GuardOption func(*Guard)

func WithGuardLogger(logger zerolog.Logger) GuardOption {
	return func(g *Guard) {
		g.logger = logger
	}
}

func WithGuardMetrics(m *metrics.Metrics) GuardOption {
	return func(g *Guard) {
		if m != nil {
			g.metrics = m
		}
	}
}

func WithLoginRoute(path string) GuardOption {
	return func(g *Guard) {
		if path != "" {
			g.loginRoute = path
		}
	}
}

func NewGuard(creds CredentialReader, refresher Refresher, users UserEnsurer, opts ...GuardOption) *Guard {
	g := &Guard{
		creds:      creds,
		refresher:  refresher,
		users:      users,
		loginRoute: "/auth",
		metrics:    metrics.New(nil),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) LoginRoute() string {
	return g.loginRoute
}

func (g *Guard) BeforeEach(ctx context.Context, to Route) Decision {
	if to.Public {
		return Decision{Allow: true}
	}

	if _, ok := g.creds.Get(); !ok {
		if _, err := g.refresher.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return Decision{}
			}
			g.metrics.NavigationRedirects.Inc()
			g.logger.Debug().Err(err).Str("route", to.Name).Msg("no session, redirecting to login")
			return Decision{Redirect: g.loginRoute}
		}
	}

	if err := g.users.EnsureCurrentUser(ctx); err != nil {
		g.logger.Debug().Err(err).Str("route", to.Name).Msg("current user lookup failed, continuing")
	}
	return Decision{Allow: true}
}
