package navigation

import (
	"context"
	"sync/atomic"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/internal/observable"
	"github.com/rs/zerolog"
)

// Location is the committed state of the router.
type Location struct {
	Route Route
	Path  string
}

// Router resolves paths against its table, runs the guard and commits the
// result. The guard runs without any router lock held, so it may itself
// trigger navigations; the newest navigation always wins.
type Router struct {
	routes  Routes
	guard   BeforeEacher
	seq     atomic.Uint64
	current *observable.Value[Location]
	logger  zerolog.Logger
}

type RouterOption func(*Router)

func WithRouterLogger(logger zerolog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

func NewRouter(routes Routes, guard BeforeEacher, opts ...RouterOption) *Router {
	r := &Router{
		routes:  routes,
		guard:   guard,
		current: observable.New(Location{}),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Current returns the route entered last. It is the zero Route before the
// first successful Push.
func (r *Router) Current() Route {
	return r.current.Get().Route
}

// Location returns the committed route and the concrete path entered.
func (r *Router) Location() Location {
	return r.current.Get()
}

func (r *Router) Routes() Routes {
	return r.routes
}

// Subscribe calls fn with every newly entered route.
func (r *Router) Subscribe(fn func(Route)) (unsubscribe func()) {
	return r.current.Subscribe(func(loc Location) {
		fn(loc.Route)
	})
}

// Push navigates to path. Static route redirects are followed, and at most
// one guard redirect is followed. A Push superseded by a newer one while its
// guard was running returns ErrNavigationAborted and commits nothing.
func (r *Router) Push(ctx context.Context, path string) error {
	seq := r.seq.Add(1)
	return r.navigate(ctx, path, seq, false)
}

func (r *Router) navigate(ctx context.Context, path string, seq uint64, redirected bool) error {
	route, target, err := r.resolve(path)
	if err != nil {
		return err
	}

	decision := r.guard.BeforeEach(ctx, route)
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.seq.Load() != seq {
		r.logger.Debug().Str("path", target).Msg("navigation superseded")
		return autherrors.ErrNavigationAborted
	}

	if !decision.Allow {
		if decision.Redirect == "" {
			return autherrors.Wrapf(autherrors.ErrNavigationAborted, "[navigation Push] %s cancelled by guard", target)
		}
		if redirected {
			return autherrors.Wrapf(autherrors.ErrNavigationAborted, "[navigation Push] redirect loop at %s", decision.Redirect)
		}
		r.logger.Debug().Str("from", target).Str("to", decision.Redirect).Msg("guard redirect")
		return r.navigate(ctx, decision.Redirect, seq, true)
	}

	aborted := false
	r.current.Update(func(cur Location) (Location, bool) {
		if r.seq.Load() != seq {
			aborted = true
			return cur, false
		}
		return Location{Route: route, Path: target}, true
	})
	if aborted {
		return autherrors.ErrNavigationAborted
	}
	return nil
}

func (r *Router) resolve(path string) (Route, string, error) {
	return r.routes.Resolve(path)
}
