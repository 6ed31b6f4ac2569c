package main

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchURLRotatesQueriesAndCategories(t *testing.T) {
	cfg := Config{
		BaseURL:    "http://svc",
		Limit:      5,
		Queries:    []string{"brgc", "gray code"},
		Categories: []string{"", "method"},
	}

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		u, err := url.Parse(cfg.searchURL(i))
		require.NoError(t, err)
		assert.Equal(t, "/api/v1/search", u.Path)
		assert.Equal(t, "5", u.Query().Get("limit"))
		seen[u.Query().Get("q")+"|"+u.Query().Get("category")] = true
	}
	assert.Len(t, seen, 4)
}

func TestPercentile(t *testing.T) {
	lat := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(lat, 50))
	assert.Equal(t, time.Duration(10), percentile(lat, 99))
	assert.Equal(t, time.Duration(1), percentile(lat, 0))
	assert.Equal(t, time.Duration(0), percentile(nil, 50))
}

func TestStatsRecord(t *testing.T) {
	s := NewStats()
	s.Record(time.Millisecond, http.StatusOK, &searchResponse{TotalHits: 0, Generation: 1}, nil)
	s.Record(time.Millisecond, http.StatusOK, &searchResponse{TotalHits: 3, Generation: 2}, nil)
	s.Record(time.Millisecond, http.StatusTooManyRequests, nil, nil)
	s.Record(0, 0, nil, assert.AnError)

	assert.Equal(t, int64(4), s.totalRequests.Load())
	assert.Equal(t, int64(2), s.successCount.Load())
	assert.Equal(t, int64(2), s.errorCount.Load())
	assert.Equal(t, int64(1), s.rateLimited.Load())
	assert.Equal(t, int64(1), s.zeroResults.Load())
	assert.Len(t, s.latencies, 3)
	assert.Len(t, s.generations, 2)
}

func TestReadQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.txt")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nbrgc\n\n  eikonal  \n"), 0o644))
	qs, err := readQueries(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"brgc", "eikonal"}, qs)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing\n"), 0o644))
	_, err = readQueries(empty)
	assert.Error(t, err)
}
