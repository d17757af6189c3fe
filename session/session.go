// Package session wires the credential store, refresh coordinator,
// authenticated client, user cache and router into one client session.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-client/api"
	"github.com/jrsteele09/go-auth-client/credential"
	"github.com/jrsteele09/go-auth-client/internal/config"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/internal/metrics"
	"github.com/jrsteele09/go-auth-client/navigation"
	"github.com/jrsteele09/go-auth-client/refresh"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/jrsteele09/go-auth-client/users/filestore"
	"github.com/jrsteele09/go-auth-client/users/redisstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type Session struct {
	cfg     config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics

	creds       *credential.Store
	plain       *http.Client // cookie jar only, never carries the bearer
	refresher   *refresh.Coordinator
	client      *api.Client
	storage     users.Storage
	cache       *users.Cache
	revalidator *users.Revalidator
	router      *navigation.Router

	stopWatch context.CancelFunc

	adminMu  sync.Mutex
	admin    *bool
	adminGen uint64
}

type options struct {
	logger     zerolog.Logger
	storage    users.Storage
	transport  http.RoundTripper
	registerer prometheus.Registerer
	routes     navigation.Routes
}

type Option func(*options)

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStorage replaces the configured user cache storage.
func WithStorage(storage users.Storage) Option {
	return func(o *options) {
		o.storage = storage
	}
}

// WithTransport sets the round tripper under every request the session sends.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithRegisterer registers the session metrics. Without it they stay unregistered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

func WithRoutes(routes navigation.Routes) Option {
	return func(o *options) {
		o.routes = routes
	}
}

// New builds a session from cfg. The user cache is seeded from storage and,
// when the storage supports it, kept in sync with other processes until Close.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Session, error) {
	o := &options{
		logger: zerolog.Nop(),
		routes: navigation.DefaultRoutes(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.routes.CheckLoginRoute(cfg.GetLoginRoute()); err != nil {
		return nil, fmt.Errorf("[session New] %w", err)
	}

	jar, err := api.NewCookieJar()
	if err != nil {
		return nil, fmt.Errorf("[session New] %w", err)
	}

	storage := o.storage
	if storage == nil {
		storage, err = newStorage(ctx, cfg, o.logger)
		if err != nil {
			return nil, err
		}
	}

	s := &Session{
		cfg:     cfg,
		logger:  o.logger,
		metrics: metrics.New(o.registerer),
		creds:   credential.NewStore(),
		plain:   &http.Client{Jar: jar, Transport: o.transport, Timeout: cfg.GetRequestTimeout()},
		storage: storage,
	}

	s.refresher = refresh.New(cfg.GetBaseURL(), s.creds,
		refresh.WithHTTPClient(&http.Client{Jar: jar, Transport: o.transport}),
		refresh.WithTimeout(cfg.GetRefreshTimeout()),
		refresh.WithLogger(o.logger.With().Str("component", "refresh").Logger()),
		refresh.WithMetrics(s.metrics),
	)

	s.client, err = api.NewClient(cfg.GetBaseURL(), s.creds, s.refresher,
		api.WithHTTPClient(&http.Client{Jar: jar, Transport: o.transport, Timeout: cfg.GetRequestTimeout()}),
		api.WithLoginRoute(cfg.GetLoginRoute()),
		api.WithLogger(o.logger.With().Str("component", "api").Logger()),
		api.WithMetrics(s.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("[session New] %w", err)
	}

	s.cache = users.NewCache(ctx, storage, users.WithCacheLogger(o.logger.With().Str("component", "users").Logger()))
	s.revalidator = users.NewRevalidator(s.client, s.creds, s.cache,
		users.WithRevalidatorLogger(o.logger.With().Str("component", "users").Logger()),
		users.WithRevalidatorMetrics(s.metrics),
		users.WithLookupTimeout(cfg.GetRequestTimeout()),
	)

	guard := navigation.NewGuard(s.creds, s.refresher, s.revalidator,
		navigation.WithGuardLogger(o.logger.With().Str("component", "navigation").Logger()),
		navigation.WithGuardMetrics(s.metrics),
		navigation.WithLoginRoute(cfg.GetLoginRoute()),
	)
	s.router = navigation.NewRouter(o.routes, guard,
		navigation.WithRouterLogger(o.logger.With().Str("component", "navigation").Logger()),
	)
	s.client.SetNavigator(s.router)

	s.refresher.OnFailure(func(ctx context.Context) {
		s.cache.Clear(ctx)
		s.revalidator.Invalidate()
		s.resetAdmin()
	})

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopWatch = cancel
	if err := s.cache.Watch(watchCtx); err != nil && !errors.Is(err, users.ErrWatchUnsupported) {
		s.logger.Warn().Err(err).Msg("failed to watch user cache storage")
	}

	return s, nil
}

func newStorage(ctx context.Context, cfg config.Config, logger zerolog.Logger) (users.Storage, error) {
	if url := cfg.GetUserCacheRedisURL(); url != "" {
		store, err := redisstore.New(ctx, url, cfg.GetUserCacheKey(), redisstore.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("[session New] %w", err)
		}
		return store, nil
	}
	return filestore.New(cfg.GetUserCachePath(), cfg.GetUserCacheKey(), filestore.WithLogger(logger)), nil
}

// Close stops watching the user cache storage and releases it.
func (s *Session) Close() error {
	s.stopWatch()
	if closer, ok := s.storage.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Bootstrap restores the session from the session cookie. When that fails
// the router is sent to the login route and false is returned.
func (s *Session) Bootstrap(ctx context.Context) bool {
	if _, err := s.refresher.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.logger.Debug().Err(err).Msg("no session to restore")
		if err := s.router.Push(ctx, s.cfg.GetLoginRoute()); err != nil {
			s.logger.Debug().Err(err).Msg("navigation to login failed")
		}
		return false
	}
	return true
}

// Login exchanges credentials for an access credential. The server sets the
// session cookie on the shared jar.
func (s *Session) Login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(api.LoginRequest{Username: username, Password: password})
	if err != nil {
		return fmt.Errorf("[session Login] encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GetBaseURL()+api.EndpointLogin, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("[session Login] %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.plain.Do(req)
	if err != nil {
		return fmt.Errorf("[session Login] %w", err)
	}
	data, err := api.DecodeData[api.AccessResponse](resp)
	if err != nil {
		return fmt.Errorf("[session Login] %w", err)
	}
	if data.Access == "" {
		return fmt.Errorf("[session Login] response carried no access credential")
	}

	s.creds.Set(data.Access)
	s.revalidator.Invalidate()
	s.resetAdmin()
	s.cache.Set(ctx, &users.CurrentUser{Username: username})
	s.logger.Info().Str("username", username).Msg("logged in")
	return nil
}

// Logout clears all local session state first, so navigation is blocked at
// once, then asks the server to expire the session cookie. Server errors are
// logged and dropped.
func (s *Session) Logout(ctx context.Context) {
	s.creds.Clear()
	s.cache.Clear(ctx)
	s.revalidator.Invalidate()
	s.resetAdmin()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GetBaseURL()+api.EndpointLogout, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("logout request")
		return
	}
	resp, err := s.plain.Do(req)
	if err != nil {
		s.logger.Debug().Err(err).Msg("server logout failed")
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// ChangeUsername updates the cached username after a simulated round trip.
// The account endpoints are not served yet.
func (s *Session) ChangeUsername(ctx context.Context, username string) error {
	name, err := users.ValidateUsername(username)
	if err != nil {
		return err
	}
	if err := s.stubDelay(ctx); err != nil {
		return err
	}
	s.cache.Set(ctx, &users.CurrentUser{Username: name})
	return nil
}

// ChangePassword only simulates the round trip.
func (s *Session) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return fmt.Errorf("[session ChangePassword] new password must not be blank")
	}
	return s.stubDelay(ctx)
}

func (s *Session) stubDelay(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.GetAccountStubDelay())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsAdmin asks the server once and caches the answer until logout. A
// transport failure caches false. A forbidden answer goes through the
// client's 403 handling like any other request.
func (s *Session) IsAdmin(ctx context.Context) bool {
	s.adminMu.Lock()
	if s.admin != nil {
		isAdmin := *s.admin
		s.adminMu.Unlock()
		return isAdmin
	}
	gen := s.adminGen
	s.adminMu.Unlock()

	isAdmin := false
	resp, err := s.client.Get(ctx, api.EndpointHasAdmin)
	if err == nil {
		isAdmin = api.IsSuccess(resp)
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	} else if ctx.Err() != nil {
		return false
	} else {
		s.logger.Debug().Err(err).Msg("admin check failed")
	}

	s.adminMu.Lock()
	if s.adminGen == gen {
		s.admin = &isAdmin
	}
	s.adminMu.Unlock()
	return isAdmin
}

func (s *Session) resetAdmin() {
	s.adminMu.Lock()
	defer s.adminMu.Unlock()
	s.admin = nil
	s.adminGen++
}

// CurrentUser returns the cached user, nil when none is known.
func (s *Session) CurrentUser() *users.CurrentUser {
	return s.cache.Get()
}

// RequireLogin returns ErrNotLoggedIn when no access credential is held.
func (s *Session) RequireLogin() error {
	if _, ok := s.creds.Get(); !ok {
		return autherrors.ErrNotLoggedIn
	}
	return nil
}

func (s *Session) Client() *api.Client { return s.client }
func (s *Session) Router() *navigation.Router { return s.router }
func (s *Session) Users() *users.Cache { return s.cache }
func (s *Session) Revalidator() *users.Revalidator { return s.revalidator }
func (s *Session) Credentials() *credential.Store { return s.creds }
func (s *Session) Refresher() *refresh.Coordinator { return s.refresher }
func (s *Session) Metrics() *metrics.Metrics { return s.metrics }
func (s *Session) Config() config.Config { return s.cfg }
