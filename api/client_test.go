package api_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/api"
	"github.com/jrsteele09/go-auth-client/api/mocks"
	"github.com/jrsteele09/go-auth-client/credential"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/internal/metrics"
	"github.com/jrsteele09/go-auth-client/refresh"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// backend is a scripted server: /data accepts only the "valid" token and
// /api/v1/auth/refresh hands out refreshStatus/refreshToken.
type backend struct {
	*httptest.Server

	mu            sync.Mutex
	valid         string
	refreshStatus int
	refreshToken  string
	refreshGate   chan struct{}
	slowGate      chan struct{}
	dataStatus    int
	authHeaders   []string
	bodies        []string

	refreshCalls atomic.Int32
	dataCalls    atomic.Int32
	slowCalls    atomic.Int32
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{
		valid:         "T2",
		refreshStatus: http.StatusOK,
		refreshToken:  "T2",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+api.EndpointRefresh, func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		b.mu.Lock()
		gate := b.refreshGate
		b.mu.Unlock()
		if gate != nil {
			<-gate
		}
		b.mu.Lock()
		status, token := b.refreshStatus, b.refreshToken
		b.mu.Unlock()
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(`{"code":200,"data":{"access":"` + token + `"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":401,"error":"refresh token expired"}`))
	})
	data := func(w http.ResponseWriter, r *http.Request) {
		b.dataCalls.Add(1)
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.authHeaders = append(b.authHeaders, r.Header.Get("Authorization"))
		b.bodies = append(b.bodies, string(body))
		valid, forced := b.valid, b.dataStatus
		b.mu.Unlock()

		if forced != 0 {
			w.WriteHeader(forced)
			_, _ = w.Write([]byte(`{"code":403,"error":"admin only"}`))
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"code":200,"data":{"request_id":"` + r.Header.Get(api.HeaderRequestID) + `"}}`))
	}
	mux.HandleFunc("/data", data)
	// /slow holds each request until slowGate is closed
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		b.slowCalls.Add(1)
		b.mu.Lock()
		gate := b.slowGate
		b.mu.Unlock()
		if gate != nil {
			<-gate
		}
		data(w, r)
	})
	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

func (b *backend) set(fn func(b *backend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *backend) headers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.authHeaders...)
}

type fixture struct {
	backend *backend
	creds   *credential.Store
	client  *api.Client
	metrics *metrics.Metrics
	nav     *mocks.MockNavigator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := newBackend(t)
	creds := credential.NewStore()
	m := metrics.New(nil)

	jar, err := api.NewCookieJar()
	require.NoError(t, err)
	coordinator := refresh.New(b.URL, creds,
		refresh.WithHTTPClient(&http.Client{Jar: jar}),
		refresh.WithMetrics(m),
	)

	nav := mocks.NewMockNavigator(gomock.NewController(t))
	client, err := api.NewClient(b.URL, creds, coordinator,
		api.WithHTTPClient(&http.Client{Jar: jar}),
		api.WithNavigator(nav),
		api.WithMetrics(m),
	)
	require.NoError(t, err)

	return &fixture{backend: b, creds: creds, client: client, metrics: m, nav: nav}
}

func TestClient_InjectsCredential(t *testing.T) {
	f := newFixture(t)
	f.creds.Set("T2")

	resp, err := f.client.Get(context.Background(), "/data")
	require.NoError(t, err)
	data, err := api.DecodeData[map[string]string](resp)
	require.NoError(t, err)
	require.NotEmpty(t, data["request_id"])

	require.Equal(t, []string{"Bearer T2"}, f.backend.headers())
	require.Zero(t, f.backend.refreshCalls.Load())
}

func TestClient_NoBearerWithoutCredential(t *testing.T) {
	f := newFixture(t)
	f.backend.set(func(b *backend) { b.refreshStatus = http.StatusUnauthorized })
	f.nav.EXPECT().Push(gomock.Any(), "/auth").Return(nil)

	_, err := f.client.Get(context.Background(), "/data")
	require.ErrorIs(t, err, autherrors.ErrSessionExpired)
	require.Equal(t, []string{""}, f.backend.headers())
}

func TestClient_RetriesOnceWithRefreshedCredential(t *testing.T) {
	f := newFixture(t)
	f.creds.Set("T1")

	resp, err := f.client.Get(context.Background(), "/data")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	require.Equal(t, []string{"Bearer T1", "Bearer T2"}, f.backend.headers())
	require.EqualValues(t, 1, f.backend.refreshCalls.Load())
	require.Equal(t, "T2", f.creds.Token())
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RequestRetries))
}

func TestClient_NoSecondRetry(t *testing.T) {
	f := newFixture(t)
	f.creds.Set("T1")
	f.backend.set(func(b *backend) { b.valid = "never" })

	resp, err := f.client.Get(context.Background(), "/data")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	require.Equal(t, []string{"Bearer T1", "Bearer T2"}, f.backend.headers())
	require.EqualValues(t, 2, f.backend.dataCalls.Load())
	require.EqualValues(t, 1, f.backend.refreshCalls.Load())
}

func TestClient_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	f := newFixture(t)
	f.creds.Set("T1")
	gate := make(chan struct{})
	f.backend.set(func(b *backend) { b.refreshGate = gate })

	const n = 10
	var wg sync.WaitGroup
	statuses := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := f.client.Get(context.Background(), "/data")
			errs[i] = err
			if err == nil {
				statuses[i] = resp.StatusCode
				resp.Body.Close()
			}
		}(i)
	}

	require.Eventually(t, func() bool { return f.backend.refreshCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.backend.dataCalls.Load() == n }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, http.StatusOK, statuses[i])
	}
	require.EqualValues(t, 1, f.backend.refreshCalls.Load())

	retried := 0
	for _, h := range f.backend.headers() {
		if h == "Bearer T2" {
			retried++
		}
	}
	require.Equal(t, n, retried)
}

func TestClient_ConcurrentUnauthorizedFailIdentically(t *testing.T) {
	f := newFixture(t)
	f.creds.Set("T1")
	f.backend.set(func(b *backend) { b.refreshStatus = http.StatusUnauthorized })
	gate := make(chan struct{})
	f.backend.set(func(b *backend) { b.refreshGate = gate })

	const n = 5
	f.nav.EXPECT().Push(gomock.Any(), "/auth").Return(nil).Times(n)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.client.Get(context.Background(), "/data")
		}(i)
	}
	require.Eventually(t, func() bool { return f.backend.dataCalls.Load() == n }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for _, err := range errs {
		require.ErrorIs(t, err, autherrors.ErrSessionExpired)
		require.ErrorIs(t, err, autherrors.ErrRefreshFailed)
	}
	require.EqualValues(t, 1, f.backend.refreshCalls.Load())
	_, ok := f.creds.Get()
	require.False(t, ok)
}

func TestClient_LateUnauthorizedReusesCompletedRefresh(t *testing.T) {
	f := newFixture(t)
	f.creds.Set("T1")
	gate := make(chan struct{})
	f.backend.set(func(b *backend) { b.slowGate = gate })

	type result struct {
		status int
		err    error
	}
	slow := make(chan result, 1)
	go func() {
		resp, err := f.client.Get(context.Background(), "/slow")
		if err != nil {
			slow <- result{err: err}
			return
		}
		resp.Body.Close()
		slow <- result{status: resp.StatusCode}
	}()
	require.Eventually(t, func() bool { return f.backend.slowCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	resp, err := f.client.Get(context.Background(), "/data")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	require.Equal(t, "T2", f.creds.Token())

	close(gate)
	res := <-slow
	require.NoError(t, res.err)
	require.Equal(t, http.StatusOK, res.status)

	require.EqualValues(t, 1, f.backend.refreshCalls.Load())
	require.EqualValues(t, 2, f.backend.slowCalls.Load())
	require.Equal(t, 2.0, testutil.ToFloat64(f.metrics.RequestRetries))
}

func TestClient_ForbiddenRedirectsWithoutRefresh(t *testing.T) {
	f := newFixture(t)
	f.creds.Set("T2")
	f.backend.set(func(b *backend) { b.dataStatus = http.StatusForbidden })
	f.nav.EXPECT().Push(gomock.Any(), "/auth").Return(errors.New("router busy"))

	resp, err := f.client.Get(context.Background(), "/data")
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "admin only", api.ErrorMessage(resp))

	require.Zero(t, f.backend.refreshCalls.Load())
	require.Equal(t, "T2", f.creds.Token())
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ForbiddenResponses))
}

func TestClient_ReplaysBodyOnRetry(t *testing.T) {
	f := newFixture(t)
	f.creds.Set("T1")

	resp, err := f.client.PostJSON(context.Background(), "/data", map[string]string{"q": "search"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	f.backend.mu.Lock()
	bodies := append([]string(nil), f.backend.bodies...)
	f.backend.mu.Unlock()
	require.Len(t, bodies, 2)
	require.JSONEq(t, `{"q":"search"}`, bodies[0])
	require.Equal(t, bodies[0], bodies[1])
}

func TestClient_ReplaysStreamedBody(t *testing.T) {
	f := newFixture(t)
	f.creds.Set("T1")

	req, err := f.client.NewRequest(context.Background(), http.MethodPut, "/data", io.NopCloser(strings.NewReader("payload")))
	require.NoError(t, err)
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	require.Equal(t, []string{"payload", "payload"}, f.backend.bodies)
}

func TestClient_CancelledWaiterDoesNotLogOut(t *testing.T) {
	f := newFixture(t)
	f.creds.Set("T1")
	gate := make(chan struct{})
	f.backend.set(func(b *backend) { b.refreshGate = gate })
	defer close(gate)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.client.Get(ctx, "/data")
		done <- err
	}()
	require.Eventually(t, func() bool { return f.backend.refreshCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.Equal(t, "T1", f.creds.Token())
}

func TestClient_HTTPClientTransport(t *testing.T) {
	f := newFixture(t)
	f.creds.Set("T1")

	resp, err := f.client.HTTPClient().Get(f.backend.URL + "/data")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	require.Equal(t, []string{"Bearer T1", "Bearer T2"}, f.backend.headers())
}

func TestNewClient_RejectsRelativeBase(t *testing.T) {
	_, err := api.NewClient("/relative", credential.NewStore(), nil)
	require.Error(t, err)
}
