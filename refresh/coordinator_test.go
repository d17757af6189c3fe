package refresh_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/credential"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/internal/metrics"
	"github.com/jrsteele09/go-auth-client/refresh"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type refreshServer struct {
	*httptest.Server
	calls   atomic.Int32
	release chan struct{}
	status  int
	body    string
}

func newRefreshServer(t *testing.T, status int, body string) *refreshServer {
	t.Helper()
	rs := &refreshServer{status: status, body: body}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != refresh.DefaultEndpoint {
			http.NotFound(w, r)
			return
		}
		rs.calls.Add(1)
		if rs.release != nil {
			<-rs.release
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rs.status)
		_, _ = w.Write([]byte(rs.body))
	}))
	t.Cleanup(rs.Close)
	return rs
}

func TestRefresh_Success(t *testing.T) {
	srv := newRefreshServer(t, http.StatusOK, `{"code":200,"data":{"access":"T2"}}`)
	creds := credential.NewStore()
	c := refresh.New(srv.URL, creds)

	tok, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "T2", tok)
	require.Equal(t, "T2", creds.Token())
	require.EqualValues(t, 1, srv.calls.Load())
}

func TestRefresh_ConcurrentCallersShareOneCall(t *testing.T) {
	srv := newRefreshServer(t, http.StatusOK, `{"code":200,"data":{"access":"T2"}}`)
	srv.release = make(chan struct{})

	creds := credential.NewStore()
	var updates atomic.Int32
	creds.Subscribe(func(string) { updates.Add(1) })

	m := metrics.New(nil)
	c := refresh.New(srv.URL, creds, refresh.WithMetrics(m))

	const n = 20
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Refresh(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return srv.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.True(t, c.InFlight())
	time.Sleep(50 * time.Millisecond)
	close(srv.release)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "T2", results[i])
	}
	require.EqualValues(t, 1, srv.calls.Load())
	require.EqualValues(t, 1, updates.Load())
	require.Equal(t, 1.0, testutil.ToFloat64(m.RefreshRequests))
}

func TestRefresh_FailureForcesLogoutOnce(t *testing.T) {
	srv := newRefreshServer(t, http.StatusUnauthorized, `{"code":401,"error":"missing refresh token"}`)
	srv.release = make(chan struct{})

	creds := credential.NewStore()
	creds.Set("T1")
	m := metrics.New(nil)
	c := refresh.New(srv.URL, creds, refresh.WithMetrics(m))

	var hookCalls atomic.Int32
	c.OnFailure(func(context.Context) { hookCalls.Add(1) })

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Refresh(context.Background())
		}(i)
	}
	require.Eventually(t, func() bool { return srv.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(srv.release)
	wg.Wait()

	for _, err := range errs {
		require.ErrorIs(t, err, autherrors.ErrRefreshFailed)
		var refreshErr *refresh.Error
		require.True(t, errors.As(err, &refreshErr))
		require.Equal(t, http.StatusUnauthorized, refreshErr.Status)
		require.Contains(t, err.Error(), "missing refresh token")
	}
	_, ok := creds.Get()
	require.False(t, ok)
	require.EqualValues(t, 1, hookCalls.Load())
	require.Equal(t, 1.0, testutil.ToFloat64(m.RefreshFailures))
}

func TestRefresh_MalformedSuccessIsFailure(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "oops"},
		{name: "empty access", body: `{"code":200,"data":{"access":""}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newRefreshServer(t, http.StatusOK, tt.body)
			creds := credential.NewStore()
			creds.Set("T1")
			c := refresh.New(srv.URL, creds)

			_, err := c.Refresh(context.Background())
			require.ErrorIs(t, err, autherrors.ErrRefreshFailed)
			require.Empty(t, creds.Token())
		})
	}
}

func TestRefresh_NetworkError(t *testing.T) {
	srv := newRefreshServer(t, http.StatusOK, "")
	url := srv.URL
	srv.Close()

	creds := credential.NewStore()
	creds.Set("T1")
	c := refresh.New(url, creds)

	_, err := c.Refresh(context.Background())
	require.ErrorIs(t, err, autherrors.ErrRefreshFailed)
	var refreshErr *refresh.Error
	require.True(t, errors.As(err, &refreshErr))
	require.Zero(t, refreshErr.Status)
	require.Empty(t, creds.Token())
}

func TestRefresh_LogoutWinsOverLateResult(t *testing.T) {
	srv := newRefreshServer(t, http.StatusOK, `{"code":200,"data":{"access":"T2"}}`)
	srv.release = make(chan struct{})

	creds := credential.NewStore()
	c := refresh.New(srv.URL, creds)

	done := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return srv.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	creds.Clear()
	close(srv.release)

	err := <-done
	require.ErrorIs(t, err, autherrors.ErrRefreshFailed)
	require.ErrorIs(t, err, autherrors.ErrLoggedOut)
	require.Empty(t, creds.Token())
}

func TestRefresh_CancelledCallerDoesNotLogOut(t *testing.T) {
	srv := newRefreshServer(t, http.StatusOK, `{"code":200,"data":{"access":"T2"}}`)
	srv.release = make(chan struct{})

	creds := credential.NewStore()
	creds.Set("T1")
	c := refresh.New(srv.URL, creds)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Refresh(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return srv.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.Equal(t, "T1", creds.Token())

	close(srv.release)
	require.Eventually(t, func() bool { return creds.Token() == "T2" }, 2*time.Second, 5*time.Millisecond)
}

func TestRefresh_CustomEndpointAndTimeout(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/custom/refresh" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"code":200,"data":{"access":"late"}}`))
	}))
	defer srv.Close()

	creds := credential.NewStore()
	c := refresh.New(srv.URL+"/", creds,
		refresh.WithEndpoint("/custom/refresh"),
		refresh.WithTimeout(20*time.Millisecond),
	)

	_, err := c.Refresh(context.Background())
	require.ErrorIs(t, err, autherrors.ErrRefreshFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.EqualValues(t, 1, hits.Load())
}
