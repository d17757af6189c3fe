// Package refresh exchanges the durable session cookie for a new access
// credential, sharing one network call between all concurrent callers.
package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-auth-client/credential"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/internal/metrics"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultEndpoint = "/api/v1/auth/refresh"
	DefaultTimeout  = 10 * time.Second

	flightKey = "refresh"
)

// Error is a failed refresh. Status is the HTTP status of the refresh
// response, 0 when the call never got one.
type Error struct {
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("refresh failed: %v", e.Err)
	}
	return fmt.Sprintf("refresh failed (%d): %v", e.Status, e.Err)
}

// Unwrap exposes both ErrRefreshFailed and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{autherrors.ErrRefreshFailed}
	}
	return []error{autherrors.ErrRefreshFailed, e.Err}
}

// FailureHook runs once per failed refresh network call, after the
// credential has been cleared.
type FailureHook func(ctx context.Context)

// Coordinator is the single writer of refreshed credentials.
type Coordinator struct {
	client   *http.Client
	endpoint string
	creds    *credential.Store
	timeout  time.Duration

	group    singleflight.Group
	inflight atomic.Bool

	hooksMu sync.RWMutex
	hooks   []FailureHook

	metrics *metrics.Metrics
	tracer  trace.Tracer
	logger  zerolog.Logger
}

type Option func(*Coordinator)

// WithHTTPClient sets the client used for the refresh call. It must carry the
// cookie jar holding the session cookie and must not be an authenticated
// client, or a rejected refresh would try to refresh itself.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Coordinator) {
		c.client = client
	}
}

func WithEndpoint(path string) Option {
	return func(c *Coordinator) {
		c.endpoint = path
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = tracer
	}
}

func New(baseURL string, creds *credential.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		client:   &http.Client{},
		endpoint: DefaultEndpoint,
		creds:    creds,
		timeout:  DefaultTimeout,
		metrics:  metrics.New(nil),
		tracer:   otel.Tracer("github.com/jrsteele09/go-auth-client/refresh"),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if !strings.HasPrefix(c.endpoint, "http://") && !strings.HasPrefix(c.endpoint, "https://") {
		c.endpoint = strings.TrimSuffix(baseURL, "/") + c.endpoint
	}
	return c
}

// OnFailure registers a hook for the forced-logout path.
func (c *Coordinator) OnFailure(hook FailureHook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// InFlight reports whether a refresh network call is outstanding.
func (c *Coordinator) InFlight() bool {
	return c.inflight.Load()
}

// Refresh returns a fresh access credential. Concurrent callers share one
// network call and all observe the same credential or the same error.
//
// The network call is detached from ctx: a caller that gives up gets
// ctx.Err() while the call completes for everyone else, and no forced logout
// is attributed to the cancelled caller.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.inflight.Load() {
		c.metrics.RefreshJoined.Inc()
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		c.inflight.Store(true)
		defer c.inflight.Store(false)
		return c.exchange(detached)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

type refreshEnvelope struct {
	Code  int    `json:"code"`
	Error string `json:"error,omitempty"`
	Data  struct {
		Access string `json:"access"`
	} `json:"data"`
}

func (c *Coordinator) exchange(parent context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "refresh.exchange")
	defer span.End()

	epoch := c.creds.Epoch()
	c.metrics.RefreshRequests.Inc()
	c.logger.Debug().Str("endpoint", c.endpoint).Msg("refreshing access credential")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, nil)
	if err != nil {
		return "", c.fail(ctx, span, &Error{Err: err})
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", c.fail(ctx, span, &Error{Err: err})
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	var body refreshEnvelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := body.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", c.fail(ctx, span, &Error{Status: resp.StatusCode, Err: fmt.Errorf("%s", msg)})
	}
	if decodeErr != nil {
		return "", c.fail(ctx, span, &Error{Status: resp.StatusCode, Err: fmt.Errorf("decode refresh response: %w", decodeErr)})
	}
	if body.Data.Access == "" {
		return "", c.fail(ctx, span, &Error{Status: resp.StatusCode, Err: fmt.Errorf("refresh response carried no access credential")})
	}

	if !c.creds.SetIfEpoch(body.Data.Access, epoch) {
		c.logger.Info().Msg("discarding refreshed credential, session was logged out meanwhile")
		span.SetStatus(codes.Error, "logged out")
		return "", &Error{Status: resp.StatusCode, Err: autherrors.ErrLoggedOut}
	}

	c.logger.Debug().Msg("access credential refreshed")
	return body.Data.Access, nil
}

// fail performs the forced logout for this network call.
func (c *Coordinator) fail(ctx context.Context, span trace.Span, err *Error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.metrics.RefreshFailures.Inc()
	c.logger.Warn().Err(err).Int("status", err.Status).Msg("refresh failed, clearing session")

	c.creds.Clear()

	c.hooksMu.RLock()
	hooks := make([]FailureHook, len(c.hooks))
	copy(hooks, c.hooks)
	c.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(ctx)
	}
	return err
}
