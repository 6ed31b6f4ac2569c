package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/reload"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/source"
)

func readFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "docs", "testdata", "search_index.js"))
	require.NoError(t, err)
	return data
}

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memBackend) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

type server struct {
	mux       *http.ServeMux
	store     *indexer.IndexStore
	path      string
	agg       *analytics.Aggregator
	collector *analytics.Collector
	cache     *cache.QueryCache
}

func newServer(t *testing.T, withCache bool) *server {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "search_index.js")
	require.NoError(t, os.WriteFile(path, readFixture(t), 0o644))

	store := indexer.New()
	var qc *cache.QueryCache
	if withCache {
		qc = cache.New(&memBackend{data: map[string][]byte{}}, time.Minute, nil)
	}
	agg := analytics.NewAggregator()
	collector := analytics.NewCollector(agg, analytics.CollectorConfig{BatchSize: 1}, nil)
	go collector.Run(context.Background())
	t.Cleanup(collector.Close)

	var inv reload.Invalidator
	if qc != nil {
		inv = qc
	}
	rl := reload.New(store, source.NewFile(path), reload.Options{Cache: inv})
	_, err := rl.Reload(context.Background(), "test")
	require.NoError(t, err)

	h := New(Deps{
		Executor:  executor.New(store, nil),
		Index:     store,
		Reloader:  rl,
		Cache:     qc,
		Collector: collector,
	}, Config{DefaultLimit: 3, MaxResults: 5})
	mux := http.NewServeMux()
	h.Register(mux)
	return &server{mux: mux, store: store, path: path, agg: agg, collector: collector, cache: qc}
}

func (s *server) do(method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestSearchEnvelope(t *testing.T) {
	s := newServer(t, false)
	rec := s.do(http.MethodGet, "/api/v1/search?q=tuples")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	for _, k := range []string{"query", "total_hits", "generation", "results"} {
		assert.Contains(t, body, k)
	}

	res := decode[executor.SearchResult](t, rec)
	assert.Equal(t, "tuples", res.Query)
	assert.Equal(t, 1, res.TotalHits)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "method", res.Results[0].Category)
	assert.Contains(t, res.Results[0].Title, "subtuples")
}

func TestSearchEikonalCaseInsensitive(t *testing.T) {
	s := newServer(t, false)
	res := decode[executor.SearchResult](t, s.do(http.MethodGet, "/api/v1/search?q=EIKONAL&limit=5"))
	require.NotEmpty(t, res.Results)
	var sawSection bool
	for _, r := range res.Results {
		if r.Category == "section" {
			sawSection = true
		}
	}
	assert.True(t, sawSection)
}

func TestSearchValidation(t *testing.T) {
	s := newServer(t, false)
	for _, target := range []string{
		"/api/v1/search",
		"/api/v1/search?q=",
		"/api/v1/search?q=%20%20",
		"/api/v1/search?q=brgc&limit=0",
		"/api/v1/search?q=brgc&limit=-2",
		"/api/v1/search?q=brgc&limit=abc",
	} {
		rec := s.do(http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Contains(t, decode[map[string]string](t, rec)["error"], "invalid query", target)
	}
}

func TestSearchLimitDefaultsAndCap(t *testing.T) {
	s := newServer(t, false)
	res := decode[executor.SearchResult](t, s.do(http.MethodGet, "/api/v1/search?q=home"))
	assert.LessOrEqual(t, len(res.Results), 3)

	res = decode[executor.SearchResult](t, s.do(http.MethodGet, "/api/v1/search?q=home&limit=1000"))
	assert.LessOrEqual(t, len(res.Results), 5)
}

func TestSearchCategoryFilter(t *testing.T) {
	s := newServer(t, false)
	res := decode[executor.SearchResult](t, s.do(http.MethodGet, "/api/v1/search?q=eikonal&limit=5&category=Method"))
	require.NotEmpty(t, res.Results)
	for _, r := range res.Results {
		assert.Equal(t, "method", r.Category)
	}
}

func TestSearchUsesCache(t *testing.T) {
	s := newServer(t, true)
	first := decode[executor.SearchResult](t, s.do(http.MethodGet, "/api/v1/search?q=brgc"))
	second := decode[executor.SearchResult](t, s.do(http.MethodGet, "/api/v1/search?q=BRGC"))
	assert.Equal(t, "BRGC", second.Query)
	assert.Equal(t, first.Results, second.Results)

	stats := decode[cache.Stats](t, s.do(http.MethodGet, "/api/v1/cache/stats"))
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)

	rec := s.do(http.MethodPost, "/api/v1/cache/invalidate")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decode[map[string]any](t, rec)["keys_deleted"])
}

func TestCacheEndpointsDisabled(t *testing.T) {
	s := newServer(t, false)
	assert.Equal(t, "disabled", decode[map[string]string](t, s.do(http.MethodGet, "/api/v1/cache/stats"))["status"])
	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodPost, "/api/v1/cache/invalidate").Code)
	assert.Equal(t, "disabled", decode[map[string]string](t, s.do(http.MethodGet, "/api/v1/index/history"))["status"])
}

func TestIndexStats(t *testing.T) {
	s := newServer(t, false)
	stats := decode[indexer.Stats](t, s.do(http.MethodGet, "/api/v1/index/stats"))
	assert.Equal(t, "ready", stats.State)
	assert.Equal(t, 7, stats.Records)
	assert.Equal(t, uint64(1), stats.Generation)
}

func TestReloadEndpoint(t *testing.T) {
	s := newServer(t, false)
	rec := s.do(http.MethodPost, "/api/v1/index/reload?reason=deploy")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[reload.Outcome](t, rec)
	assert.Equal(t, "deploy", out.Reason)
	assert.Equal(t, uint64(2), out.Generation)

	require.NoError(t, os.WriteFile(s.path, []byte(`{"docs":[{"location":"","title":"x","category":"page"}]}`), 0o644))
	rec = s.do(http.MethodPost, "/api/v1/index/reload")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `\"page\"`)
	assert.Equal(t, uint64(2), s.store.Generation())

	require.NoError(t, os.Remove(s.path))
	assert.Equal(t, http.StatusBadGateway, s.do(http.MethodPost, "/api/v1/index/reload").Code)

	assert.Equal(t, http.StatusMethodNotAllowed, s.do(http.MethodGet, "/api/v1/index/reload").Code)
}

func TestSearchTracksAnalytics(t *testing.T) {
	s := newServer(t, false)
	s.do(http.MethodGet, "/api/v1/search?q=brgc")
	s.do(http.MethodGet, "/api/v1/search?q=zzzz")
	assert.Eventually(t, func() bool { return s.agg.Stats().TotalQueries == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), s.agg.Stats().ZeroResultCount)
}

type fakeHistory struct{ err error }

func (f fakeHistory) Recent(_ context.Context, n int) ([]reload.Outcome, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []reload.Outcome{{Source: "file://x", Status: analytics.ReloadSuccess, Records: n}}, nil
}

func TestIndexHistory(t *testing.T) {
	store := indexer.New()
	h := New(Deps{Executor: executor.New(store, nil), Index: store, History: fakeHistory{}}, Config{DefaultLimit: 1, MaxResults: 1})
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/index/history?limit=3", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string][]reload.Outcome](t, rec)
	require.Len(t, body["loads"], 1)
	assert.Equal(t, 3, body["loads"][0].Records)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/index/history?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h = New(Deps{Executor: executor.New(store, nil), Index: store, History: fakeHistory{err: errors.New("db down")}}, Config{DefaultLimit: 1, MaxResults: 1})
	rec = httptest.NewRecorder()
	h.IndexHistory(rec, httptest.NewRequest(http.MethodGet, "/api/v1/index/history", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode[map[string]string](t, rec)["error"])
}

func TestSearchEmptyIndex(t *testing.T) {
	store := indexer.New()
	h := New(Deps{Executor: executor.New(store, nil), Index: store}, Config{DefaultLimit: 5, MaxResults: 5})
	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=brgc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[executor.SearchResult](t, rec)
	assert.Empty(t, res.Results)
	assert.Equal(t, uint64(0), res.Generation)
}
