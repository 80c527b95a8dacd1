package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mmcdole/sarathi/internal/domain"
	"github.com/mmcdole/sarathi/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves bodies by request key and can be switched offline.
type fakeFetcher struct {
	mu      sync.Mutex
	bodies  map[string]string
	status  map[string]int
	offline bool
	calls   int
}

func newFakeFetcher(bodies map[string]string) *fakeFetcher {
	return &fakeFetcher{bodies: bodies, status: map[string]int{}}
}

func (f *fakeFetcher) setOffline(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = v
}

func (f *fakeFetcher) set(key, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[key] = body
}

func (f *fakeFetcher) Fetch(_ context.Context, req *http.Request) (*domain.CachedResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.offline {
		return nil, fmt.Errorf("%w: dial tcp: connection refused", domain.ErrNetworkUnavailable)
	}
	key := RequestKey(req)
	body, ok := f.bodies[key]
	if !ok {
		return &domain.CachedResponse{Status: http.StatusNotFound, Body: []byte("not found")}, nil
	}
	status := http.StatusOK
	if s, ok := f.status[key]; ok {
		status = s
	}
	return &domain.CachedResponse{Status: status, Body: []byte(body)}, nil
}

func get(path string) *http.Request {
	return httptest.NewRequest(http.MethodGet, path, nil)
}

func installed(t *testing.T, f *fakeFetcher, tag string, assets []string, opts ...Option) *Cache {
	t.Helper()
	c := New(store.NewMemoryGenerationStore(), f, nil, opts...)
	require.NoError(t, c.Populate(context.Background(), tag, assets, nil))
	require.NoError(t, c.Activate(context.Background(), tag))
	return c
}

func TestPopulate_AllOrNothing(t *testing.T) {
	f := newFakeFetcher(map[string]string{"/": "home", "/app.js": "js"})
	c := New(store.NewMemoryGenerationStore(), f, nil)

	err := c.Populate(context.Background(), "v1", []string{"/", "/app.js", "/missing.css"}, nil)
	require.ErrorIs(t, err, domain.ErrAssetFetch)

	gens, err := c.Generations()
	require.NoError(t, err)
	assert.Empty(t, gens)

	err = c.Activate(context.Background(), "v1")
	assert.ErrorIs(t, err, domain.ErrGenerationNotReady)

	_, live := c.Live()
	assert.False(t, live)
}

func TestPopulate_ReportsProgress(t *testing.T) {
	assets := []string{"/", "/a", "/b", "/c"}
	f := newFakeFetcher(map[string]string{"/": "0", "/a": "1", "/b": "2", "/c": "3"})
	c := New(store.NewMemoryGenerationStore(), f, nil, WithFetchConcurrency(2))

	var (
		mu   sync.Mutex
		seen []int
	)
	err := c.Populate(context.Background(), "v1", assets, func(loaded, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, len(assets), total)
		seen = append(seen, loaded)
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2, 3, 4}, seen)
}

func TestActivate_EvictsOtherGenerations(t *testing.T) {
	f := newFakeFetcher(map[string]string{"/": "home v1"})
	c := installed(t, f, "v1", []string{"/"})

	f.set("/", "home v2")
	require.NoError(t, c.Populate(context.Background(), "v2", []string{"/"}, nil))

	// v1 still serves until v2 is activated.
	f.setOffline(true)
	res := c.Resolve(context.Background(), get("/"))
	assert.Equal(t, "home v1", string(res.Response.Body))

	require.NoError(t, c.Activate(context.Background(), "v2"))

	gens, err := c.Generations()
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, gens)

	res = c.Resolve(context.Background(), get("/"))
	assert.Equal(t, domain.SourceCache, res.Source)
	assert.Equal(t, "home v2", string(res.Response.Body))
}

func TestResolve_NetworkFirst(t *testing.T) {
	f := newFakeFetcher(map[string]string{"/": "home", "/ask?q=dharma": "answer"})
	c := installed(t, f, "v1", []string{"/"})

	t.Run("online serves network and writes through", func(t *testing.T) {
		f.set("/", "fresh home")
		res := c.Resolve(context.Background(), get("/"))
		assert.Equal(t, domain.SourceNetwork, res.Source)
		assert.Equal(t, NetworkFirst, res.Mode)
		assert.Equal(t, "fresh home", string(res.Response.Body))
	})

	t.Run("query responses are cached by full key", func(t *testing.T) {
		res := c.Resolve(context.Background(), get("/ask?q=dharma"))
		assert.Equal(t, domain.SourceNetwork, res.Source)
	})

	t.Run("offline serves the last good copy", func(t *testing.T) {
		f.setOffline(true)
		defer f.setOffline(false)

		res := c.Resolve(context.Background(), get("/"))
		assert.Equal(t, domain.SourceCache, res.Source)
		assert.Equal(t, "fresh home", string(res.Response.Body))

		res = c.Resolve(context.Background(), get("/ask?q=dharma"))
		assert.Equal(t, domain.SourceCache, res.Source)
		assert.Equal(t, "answer", string(res.Response.Body))
	})

	t.Run("offline miss yields offline payload", func(t *testing.T) {
		f.setOffline(true)
		defer f.setOffline(false)

		res := c.Resolve(context.Background(), get("/never-seen"))
		assert.Equal(t, domain.SourceOffline, res.Source)
		assert.Equal(t, http.StatusServiceUnavailable, res.Response.Status)

		var payload map[string]string
		require.NoError(t, json.Unmarshal(res.Response.Body, &payload))
		assert.Equal(t, DefaultOfflineMessage, payload["error"])
	})

	t.Run("non-2xx is served but never stored", func(t *testing.T) {
		f.set("/flaky", "boom")
		f.status["/flaky"] = http.StatusInternalServerError

		res := c.Resolve(context.Background(), get("/flaky"))
		assert.Equal(t, http.StatusInternalServerError, res.Response.Status)

		keys, err := c.Entries()
		require.NoError(t, err)
		assert.NotContains(t, keys, "/flaky")
	})
}

func TestResolve_EscapedPathIsOwnKey(t *testing.T) {
	assert.Equal(t, "/x%3Fy", RequestKey(get("/x%3Fy")))
	assert.Equal(t, "/x?y", RequestKey(get("/x?y")))
	assert.Equal(t, "/a%2Fb", RequestKey(get("/a%2Fb")))

	f := newFakeFetcher(map[string]string{"/": "home", "/x?y": "query response"})
	c := installed(t, f, "v1", []string{"/"})

	res := c.Resolve(context.Background(), get("/x?y"))
	require.Equal(t, domain.SourceNetwork, res.Source)

	f.setOffline(true)
	res = c.Resolve(context.Background(), get("/x%3Fy"))
	assert.Equal(t, domain.SourceOffline, res.Source)

	res = c.Resolve(context.Background(), get("/x?y"))
	assert.Equal(t, domain.SourceCache, res.Source)
	assert.Equal(t, "query response", string(res.Response.Body))
}

func TestResolve_NonGETNeverCached(t *testing.T) {
	f := newFakeFetcher(map[string]string{"/api/auth/sync": "ok"})
	c := installed(t, f, "v1", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/sync", strings.NewReader(`{}`))
	res := c.Resolve(context.Background(), req)
	assert.Equal(t, domain.SourceNetwork, res.Source)

	keys, err := c.Entries()
	require.NoError(t, err)
	assert.Empty(t, keys)

	f.setOffline(true)
	req = httptest.NewRequest(http.MethodPost, "/api/auth/sync", strings.NewReader(`{}`))
	res = c.Resolve(context.Background(), req)
	assert.Equal(t, domain.SourceOffline, res.Source)
}

func TestResolve_CacheFirst(t *testing.T) {
	f := newFakeFetcher(map[string]string{"/": "home", "/extra": "extra"})
	c := installed(t, f, "v1", []string{"/"}, WithStrategy(Uniform(CacheFirst)))

	calls := f.calls
	res := c.Resolve(context.Background(), get("/"))
	assert.Equal(t, domain.SourceCache, res.Source)
	assert.Equal(t, calls, f.calls, "hit must not touch the network")

	res = c.Resolve(context.Background(), get("/extra"))
	assert.Equal(t, domain.SourceNetwork, res.Source)

	keys, err := c.Entries()
	require.NoError(t, err)
	assert.NotContains(t, keys, "/extra", "cache-first never writes back")

	f.setOffline(true)
	res = c.Resolve(context.Background(), get("/extra"))
	assert.Equal(t, domain.SourceOffline, res.Source)
}

func TestResolve_HybridRule(t *testing.T) {
	strategy, err := ParseStrategy(StrategyHybrid, nil)
	require.NoError(t, err)

	f := newFakeFetcher(map[string]string{"/": "home", "/shloka/2/47": "karmanye"})
	c := installed(t, f, "v1", []string{"/", "/shloka/2/47"}, WithStrategy(strategy))

	f.set("/", "new home")
	f.set("/shloka/2/47", "karmanye v2")

	res := c.Resolve(context.Background(), get("/"))
	assert.Equal(t, CacheFirst, res.Mode)
	assert.Equal(t, "home", string(res.Response.Body))

	res = c.Resolve(context.Background(), get("/shloka/2/47"))
	assert.Equal(t, NetworkFirst, res.Mode)
	assert.Equal(t, "karmanye v2", string(res.Response.Body))
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "", want: StrategyNetworkFirst},
		{name: "Network-First", want: StrategyNetworkFirst},
		{name: "cache-first", want: StrategyCacheFirst},
		{name: "hybrid", want: StrategyHybrid},
		{name: "stale-while-revalidate", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseStrategy(tt.name, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Name())
		})
	}
}

func TestResolve_ConcurrentWithActivate(t *testing.T) {
	f := newFakeFetcher(map[string]string{"/": "v1"})
	c := installed(t, f, "v1", []string{"/"})
	f.setOffline(true)

	for i := 2; i <= 5; i++ {
		f.setOffline(false)
		f.set("/", fmt.Sprintf("v%d", i))
		require.NoError(t, c.Populate(context.Background(), fmt.Sprintf("v%d", i), []string{"/"}, nil))
		f.setOffline(true)

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res := c.Resolve(context.Background(), get("/"))
				assert.Equal(t, domain.SourceCache, res.Source)
			}()
		}
		require.NoError(t, c.Activate(context.Background(), fmt.Sprintf("v%d", i)))
		wg.Wait()
	}

	res := c.Resolve(context.Background(), get("/"))
	assert.Equal(t, "v5", string(res.Response.Body))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	f := newFakeFetcher(map[string]string{"/": "home"})
	c := installed(t, f, "v1", []string{"/"}, WithMetrics(m))
	require.NoError(t, c.Populate(context.Background(), "v2", []string{"/"}, nil))
	require.NoError(t, c.Activate(context.Background(), "v2"))

	c.Resolve(context.Background(), get("/"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.activations))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.evictions))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.populates.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.resolves.WithLabelValues("network-first", "network")))
}

func TestHTTPFetcher(t *testing.T) {
	var gotMethod, gotPath, gotQuery, gotBody string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotQuery = r.Method, r.URL.Path, r.URL.RawQuery
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("hello " + r.Header.Get("X-Test")))
	}))
	defer origin.Close()

	f, err := NewHTTPFetcher(origin.URL+"/", 0, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/ask?q=1", strings.NewReader("body"))
	req.Header.Set("X-Test", "header")

	resp, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/ask", gotPath)
	assert.Equal(t, "q=1", gotQuery)
	assert.Equal(t, "body", gotBody)
	assert.Equal(t, http.StatusTeapot, resp.Status)
	assert.Equal(t, "hello header", string(resp.Body))
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.False(t, resp.StoredAt.IsZero())
}

func TestHTTPFetcher_KeepsEscapedPath(t *testing.T) {
	var gotRawPath, gotQuery string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRawPath, gotQuery = r.URL.EscapedPath(), r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer origin.Close()

	f, err := NewHTTPFetcher(origin.URL+"/base", 0, nil)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), get("/shloka/2%2F47?lang=hi"))
	require.NoError(t, err)
	assert.Equal(t, "/base/shloka/2%2F47", gotRawPath)
	assert.Equal(t, "lang=hi", gotQuery)

	_, err = f.Fetch(context.Background(), get("/x%3Fy"))
	require.NoError(t, err)
	assert.Equal(t, "/base/x%3Fy", gotRawPath)
	assert.Empty(t, gotQuery)
}

func TestHTTPFetcher_Unreachable(t *testing.T) {
	origin := httptest.NewServer(http.NotFoundHandler())
	url := origin.URL
	origin.Close()

	f, err := NewHTTPFetcher(url, 0, nil)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), get("/"))
	assert.ErrorIs(t, err, domain.ErrNetworkUnavailable)
}

func TestNewHTTPFetcher_RequiresAbsoluteURL(t *testing.T) {
	_, err := NewHTTPFetcher("localhost/path", 0, nil)
	assert.Error(t, err)
}
