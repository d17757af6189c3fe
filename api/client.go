// Package api is the single entry point for protected network calls. It
// injects the access credential, refreshes it once on 401 and sends the user
// to the login route on 403 or unrecoverable session loss.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/internal/metrics"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks . Navigator

const (
	HeaderRequestID  = "X-Request-ID"
	DefaultLoginPath = "/auth"
)

// Navigator moves the application to another route.
type Navigator interface {
	Push(ctx context.Context, path string) error
}

// Refresher produces a new access credential.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Credentials is the part of the credential store the client needs.
type Credentials interface {
	Get() (string, bool)
	Clear()
}

// Client wraps outgoing requests with the session's credential.
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	creds      Credentials
	refresher  Refresher
	loginRoute string

	navMu     sync.RWMutex
	navigator Navigator

	metrics *metrics.Metrics
	tracer  trace.Tracer
	logger  zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient sets the underlying client. It should carry the cookie jar
// shared with the refresh coordinator.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

func WithNavigator(n Navigator) Option {
	return func(c *Client) {
		c.navigator = n
	}
}

func WithLoginRoute(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.loginRoute = path
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// NewCookieJar returns the jar that holds the server's session cookie.
func NewCookieJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("[api NewCookieJar] %w", err)
	}
	return jar, nil
}

func NewClient(baseURL string, creds Credentials, refresher Refresher, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("[api NewClient] invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("[api NewClient] base URL %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL:    u,
		creds:      creds,
		refresher:  refresher,
		loginRoute: DefaultLoginPath,
		metrics:    metrics.New(nil),
		tracer:     otel.Tracer("github.com/jrsteele09/go-auth-client/api"),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		jar, err := NewCookieJar()
		if err != nil {
			return nil, err
		}
		c.http = &http.Client{Jar: jar}
	}
	return c, nil
}

// SetNavigator replaces the navigator. The router is usually built after the
// client, since its guard issues requests through the client.
func (c *Client) SetNavigator(n Navigator) {
	c.navMu.Lock()
	defer c.navMu.Unlock()
	c.navigator = n
}

// BaseURL returns the URL relative request paths are resolved against.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Jar returns the cookie jar of the underlying client.
func (c *Client) Jar() http.CookieJar {
	return c.http.Jar
}

// Do sends req with the current credential.
//
// 403 responses are returned unchanged after a best-effort redirect to the
// login route. A 401 triggers one shared refresh and a single retry with the
// new credential; the retried response is returned whatever its status. A
// 401 for a credential that has since been replaced is retried with the
// current one without refreshing again. When the refresh fails the credential is cleared and the error matches both
// ErrSessionExpired and ErrRefreshFailed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx, span := c.tracer.Start(req.Context(), "api.Do", trace.WithAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.path", req.URL.Path),
	))
	defer span.End()

	req, err := c.prepare(req.WithContext(ctx))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	token, _ := c.creds.Get()
	resp, err := c.send(req, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	switch resp.StatusCode {
	case http.StatusForbidden:
		c.metrics.ForbiddenResponses.Inc()
		c.logger.Info().Str("path", req.URL.Path).Msg("forbidden, redirecting to login")
		c.navigateToLogin(ctx)
		return resp, nil
	case http.StatusUnauthorized:
	default:
		return resp, nil
	}

	drain(resp)

	// a refresh that finished while this request was in flight already
	// replaced the rejected credential
	if current, ok := c.creds.Get(); ok && current != token {
		c.logger.Debug().Str("path", req.URL.Path).Msg("credential rejected, retrying with newer credential")
		return c.retry(span, req, current)
	}

	c.logger.Debug().Str("path", req.URL.Path).Msg("credential rejected, refreshing")
	fresh, err := c.refresher.Refresh(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.creds.Clear()
		c.navigateToLogin(ctx)
		span.SetStatus(codes.Error, "session expired")
		return nil, fmt.Errorf("%w: %w", autherrors.ErrSessionExpired, err)
	}
	return c.retry(span, req, fresh)
}

func (c *Client) retry(span trace.Span, req *http.Request, token string) (*http.Response, error) {
	c.metrics.RequestRetries.Inc()
	span.AddEvent("retry")
	retry, err := c.send(req, token)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.retry.status_code", retry.StatusCode))
	return retry, nil
}

// RoundTrip lets the client serve as the transport of an *http.Client.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.Do(req)
}

// HTTPClient returns an *http.Client whose requests go through Do.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{Transport: c}
}

// NewRequest builds a request for a path relative to the base URL.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, path, body)
	if err != nil {
		return nil, fmt.Errorf("[api NewRequest] %w", err)
	}
	req.URL = c.resolve(req.URL)
	req.Host = req.URL.Host
	return req, nil
}

func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Post sends a request without a body.
func (c *Client) Post(ctx context.Context, path string) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodPost, path, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

func (c *Client) PostJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.sendJSON(ctx, http.MethodPost, path, body)
}

func (c *Client) PatchJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.sendJSON(ctx, http.MethodPatch, path, body)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("[api %s] encode body: %w", method, err)
	}
	req, err := c.NewRequest(ctx, method, path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(req)
}

func (c *Client) resolve(u *url.URL) *url.URL {
	if u.IsAbs() {
		return u
	}
	ref := *u
	ref.Path = strings.TrimPrefix(ref.Path, "/")
	ref.RawPath = ""
	return c.baseURL.ResolveReference(&ref)
}

// prepare resolves the URL and makes the body replayable for the retry.
func (c *Client) prepare(req *http.Request) (*http.Request, error) {
	req = req.Clone(req.Context())
	req.URL = c.resolve(req.URL)
	req.Host = req.URL.Host

	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("[api Do] read request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.ContentLength = int64(len(data))
	return req, nil
}

func (c *Client) send(req *http.Request, token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("[api Do] replay request body: %w", err)
		}
		out.Body = body
	}
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	if out.Header.Get(HeaderRequestID) == "" {
		out.Header.Set(HeaderRequestID, uuid.NewString())
	}
	return c.http.Do(out)
}

// navigateToLogin is best effort: its failure never reaches the caller.
func (c *Client) navigateToLogin(ctx context.Context) {
	c.navMu.RLock()
	n := c.navigator
	c.navMu.RUnlock()
	if n == nil {
		return
	}
	if err := n.Push(context.WithoutCancel(ctx), c.loginRoute); err != nil {
		c.logger.Debug().Err(err).Str("route", c.loginRoute).Msg("login redirect failed")
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
}
