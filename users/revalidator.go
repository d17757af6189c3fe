package users

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-auth-client/api"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const revalidateKey = "me"

// Fetcher issues authenticated GET requests.
type Fetcher interface {
	Get(ctx context.Context, path string) (*http.Response, error)
}

// CredentialReader reports whether an access credential is held.
type CredentialReader interface {
	Get() (string, bool)
}

// Revalidator confirms the cached user against the server at most once per
// process lifetime, unless Invalidate is called.
type Revalidator struct {
	fetcher Fetcher
	creds   CredentialReader
	cache   *Cache
	path    string
	timeout time.Duration

	group     singleflight.Group
	validated atomic.Bool
	degraded  atomic.Bool

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

type RevalidatorOption func(*Revalidator)

func WithRevalidatorLogger(logger zerolog.Logger) RevalidatorOption {
	return func(r *Revalidator) {
		r.logger = logger
	}
}

func WithRevalidatorMetrics(m *metrics.Metrics) RevalidatorOption {
	return func(r *Revalidator) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithLookupTimeout bounds the shared lookup, which runs detached from the
// contexts of individual callers.
func WithLookupTimeout(timeout time.Duration) RevalidatorOption {
	return func(r *Revalidator) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

func WithMePath(path string) RevalidatorOption {
	return func(r *Revalidator) {
		r.path = path
	}
}

func NewRevalidator(fetcher Fetcher, creds CredentialReader, cache *Cache, opts ...RevalidatorOption) *Revalidator {
	r := &Revalidator{
		fetcher: fetcher,
		creds:   creds,
		cache:   cache,
		path:    api.EndpointMe,
		timeout: 30 * time.Second,
		metrics: metrics.New(nil),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Validated reports whether the cached user was confirmed since start or the
// last Invalidate.
func (r *Revalidator) Validated() bool {
	return r.validated.Load()
}

// Revalidated returns ErrRevalidationDegraded when the last lookup fell back
// to the cached user, nil otherwise.
func (r *Revalidator) Revalidated() error {
	if r.degraded.Load() {
		return autherrors.ErrRevalidationDegraded
	}
	return nil
}

// Invalidate forces the next EnsureCurrentUser to ask the server again.
func (r *Revalidator) Invalidate() {
	r.validated.Store(false)
	r.degraded.Store(false)
}

// EnsureCurrentUser makes sure the cached user has been confirmed. It does
// nothing without a credential, joins a lookup already in flight and skips
// the lookup when the cached user is already validated.
func (r *Revalidator) EnsureCurrentUser(ctx context.Context) error {
	if _, ok := r.creds.Get(); !ok {
		return nil
	}
	if r.cache.Get() != nil && r.validated.Load() {
		return nil
	}

	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(revalidateKey, func() (any, error) {
		if r.cache.Get() != nil && r.validated.Load() {
			return nil, nil
		}
		lookupCtx, cancel := context.WithTimeout(detached, r.timeout)
		defer cancel()
		if _, err := r.FetchCurrentUser(lookupCtx); err != nil {
			return nil, err
		}
		r.validated.Store(true)
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

// FetchCurrentUser asks the server who is logged in. Any non-2xx answer,
// including 404 from a backend without the endpoint, keeps and returns the
// cached user. Transport and session errors leave the cache untouched.
func (r *Revalidator) FetchCurrentUser(ctx context.Context) (*CurrentUser, error) {
	resp, err := r.fetcher.Get(ctx, r.path)
	if err != nil {
		r.metrics.Revalidations.WithLabelValues(metrics.OutcomeError).Inc()
		r.logger.Debug().Err(err).Msg("current user lookup failed")
		return nil, autherrors.Wrapf(err, "[users FetchCurrentUser] lookup")
	}

	if !api.IsSuccess(resp) {
		status := resp.StatusCode
		_ = resp.Body.Close()
		r.degraded.Store(true)
		r.metrics.Revalidations.WithLabelValues(metrics.OutcomeDegraded).Inc()
		r.logger.Debug().Int("status", status).Msg("current user lookup degraded, keeping cached user")
		return r.cache.Get(), nil
	}

	data, err := api.DecodeData[api.UserResponse](resp)
	if err != nil {
		r.degraded.Store(true)
		r.metrics.Revalidations.WithLabelValues(metrics.OutcomeDegraded).Inc()
		r.logger.Debug().Err(err).Msg("unreadable current user response, keeping cached user")
		return r.cache.Get(), nil
	}

	user := userFromName(data.Username)
	if user == nil {
		r.degraded.Store(true)
		r.metrics.Revalidations.WithLabelValues(metrics.OutcomeDegraded).Inc()
		r.logger.Debug().Msg("current user response without username, keeping cached user")
		return r.cache.Get(), nil
	}
	r.cache.Set(ctx, user)
	r.degraded.Store(false)
	r.metrics.Revalidations.WithLabelValues(metrics.OutcomeValidated).Inc()
	return user, nil
}
