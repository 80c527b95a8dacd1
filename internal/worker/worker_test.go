package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/sarathi/internal/domain"
	"github.com/mmcdole/sarathi/internal/offline"
	"github.com/mmcdole/sarathi/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type originFetcher struct {
	mu      sync.Mutex
	bodies  map[string]string
	offline bool
	gate    chan struct{} // when set, fetches block until closed
}

func (f *originFetcher) Fetch(ctx context.Context, req *http.Request) (*domain.CachedResponse, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, fmt.Errorf("%w: no route", domain.ErrNetworkUnavailable)
	}
	body, ok := f.bodies[offline.RequestKey(req)]
	if !ok {
		return &domain.CachedResponse{Status: http.StatusNotFound}, nil
	}
	return &domain.CachedResponse{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/javascript"}},
		Body:   []byte(body),
	}, nil
}

func (f *originFetcher) setOffline(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = v
}

func newInterceptor(f *originFetcher, cfg Config) (*Interceptor, *offline.Cache) {
	c := offline.New(store.NewMemoryGenerationStore(), f, nil)
	return New(c, cfg, nil), c
}

func TestDispatch_WaitsForExtendedWork(t *testing.T) {
	var done atomic.Bool
	err := dispatch(context.Background(), "install", func(ev *Event) {
		ev.WaitUntil(func(ctx context.Context) error {
			time.Sleep(20 * time.Millisecond)
			done.Store(true)
			return nil
		})
	})
	require.NoError(t, err)
	assert.True(t, done.Load())
}

func TestDispatch_FirstFailureCancelsOthers(t *testing.T) {
	boom := errors.New("boom")
	err := dispatch(context.Background(), "install", func(ev *Event) {
		ev.WaitUntil(func(ctx context.Context) error { return boom })
		ev.WaitUntil(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
	})
	assert.ErrorIs(t, err, boom)
}

func TestInterceptor_Lifecycle(t *testing.T) {
	f := &originFetcher{bodies: map[string]string{"/": "home", "/a.js": "a"}}
	i, c := newInterceptor(f, Config{Version: "v1", Assets: []string{"/", "/a.js"}})

	assert.Equal(t, StateIdle, i.State())

	err := i.Activate(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, i.Install(context.Background(), nil))
	assert.Equal(t, StateReady, i.State())
	assert.Equal(t, "v1", i.Status().Ready)

	_, live := c.Live()
	assert.False(t, live, "install alone never makes a generation live")

	require.NoError(t, i.Activate(context.Background()))
	assert.Equal(t, StateActive, i.State())

	tag, _ := c.Live()
	assert.Equal(t, "v1", tag)
}

func TestInterceptor_ResumesReadyGeneration(t *testing.T) {
	f := &originFetcher{bodies: map[string]string{"/": "home"}}
	c := offline.New(store.NewMemoryGenerationStore(), f, nil)
	cfg := Config{Version: "v1", Assets: []string{"/"}}

	require.NoError(t, New(c, cfg, nil).Install(context.Background(), nil))

	// A later process picks up the installed generation without refetching.
	f.setOffline(true)
	i := New(c, cfg, nil)
	assert.Equal(t, StateReady, i.State())
	assert.Equal(t, "v1", i.Status().Ready)

	require.NoError(t, i.Activate(context.Background()))
	assert.Equal(t, StateActive, i.State())
	tag, _ := c.Live()
	assert.Equal(t, "v1", tag)

	assert.Equal(t, StateActive, New(c, cfg, nil).State())
}

func TestInterceptor_SkipWaiting(t *testing.T) {
	f := &originFetcher{bodies: map[string]string{"/": "home"}}
	i, c := newInterceptor(f, Config{Version: "v2", Assets: []string{"/"}, SkipWaiting: true})

	require.NoError(t, i.Install(context.Background(), nil))
	assert.Equal(t, StateActive, i.State())
	tag, _ := c.Live()
	assert.Equal(t, "v2", tag)
}

func TestInterceptor_FailedInstallRestoresState(t *testing.T) {
	f := &originFetcher{bodies: map[string]string{"/": "home"}}
	i, c := newInterceptor(f, Config{Version: "v1", Assets: []string{"/"}, SkipWaiting: true})
	require.NoError(t, i.Install(context.Background(), nil))

	broken := New(c, Config{Version: "v2", Assets: []string{"/", "/missing.js"}}, nil)
	assert.Equal(t, StateActive, broken.State())

	err := broken.Install(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrAssetFetch)
	assert.Equal(t, StateActive, broken.State())

	tag, _ := c.Live()
	assert.Equal(t, "v1", tag)
}

func TestInterceptor_InstallInProgress(t *testing.T) {
	f := &originFetcher{bodies: map[string]string{"/": "home"}, gate: make(chan struct{})}
	i, _ := newInterceptor(f, Config{Version: "v1", Assets: []string{"/"}})

	errc := make(chan error, 1)
	go func() { errc <- i.Install(context.Background(), nil) }()

	require.Eventually(t, func() bool { return i.State() == StateInstalling }, time.Second, time.Millisecond)

	err := i.Install(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInstallInProgress)
	assert.ErrorIs(t, i.Activate(context.Background()), domain.ErrInstallInProgress)

	close(f.gate)
	require.NoError(t, <-errc)
	assert.Equal(t, StateReady, i.State())
}

func TestInterceptor_TeardownCancelsInstall(t *testing.T) {
	f := &originFetcher{bodies: map[string]string{"/": "home"}, gate: make(chan struct{})}
	i, _ := newInterceptor(f, Config{Version: "v1", Assets: []string{"/"}})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- i.Install(ctx, nil) }()

	require.Eventually(t, func() bool { return i.State() == StateInstalling }, time.Second, time.Millisecond)
	cancel()

	err := <-errc
	assert.Error(t, err)
	assert.Equal(t, StateIdle, i.State())
}

func TestInterceptor_FetchInEveryState(t *testing.T) {
	f := &originFetcher{bodies: map[string]string{"/a.js": "a"}}
	i, _ := newInterceptor(f, Config{Version: "v4", Assets: []string{"/a.js"}})

	res := i.Fetch(context.Background(), httptest.NewRequest(http.MethodGet, "/a.js", nil))
	assert.Equal(t, domain.SourceNetwork, res.Source)

	require.NoError(t, i.Install(context.Background(), nil))
	require.NoError(t, i.Activate(context.Background()))

	f.setOffline(true)
	res = i.Fetch(context.Background(), httptest.NewRequest(http.MethodGet, "/a.js", nil))
	assert.Equal(t, domain.SourceCache, res.Source)
	assert.Equal(t, "a", string(res.Response.Body))
}

func TestHandler(t *testing.T) {
	f := &originFetcher{bodies: map[string]string{"/": "home", "/a.js": "a"}}
	i, _ := newInterceptor(f, Config{Version: "v1", Assets: []string{"/", "/a.js"}})

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "sarathi_test_total", Help: "test"}))

	srv := httptest.NewServer(NewHandler(i, nil, HandlerOptions{Gatherer: reg}))
	defer srv.Close()

	post := func(path string) *http.Response {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		require.NoError(t, err)
		return resp
	}

	resp := post("/_worker/activate")
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = post("/_worker/install")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = post("/_worker/activate")
	var status Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, "active", status.State)
	assert.Equal(t, "v1", status.Live)
	assert.Equal(t, offline.StrategyNetworkFirst, status.Strategy)

	f.setOffline(true)

	resp, err := http.Get(srv.URL + "/a.js")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "a", string(body))
	assert.Equal(t, "cache", resp.Header.Get(SourceHeader))
	assert.Equal(t, "text/javascript", resp.Header.Get("Content-Type"))

	resp, err = http.Get(srv.URL + "/unknown")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "offline", resp.Header.Get(SourceHeader))
	assert.Contains(t, string(body), offline.DefaultOfflineMessage)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.Contains(string(body), "sarathi_test_total"))
}
