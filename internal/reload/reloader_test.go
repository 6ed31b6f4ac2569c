package reload

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/source"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

const (
	goodPayload = `var documenterSearchIndex = {"docs":[
{"location":"","page":"Home","title":"Home","text":"gray code","category":"page"},
{"location":"#brgc","page":"Home","title":"Eikonal.brgc","text":"Binary reflected gray code","category":"method"}]}`
	otherPayload     = `{"docs":[{"location":"","page":"Other","title":"Other","text":"tuples","category":"page"}]}`
	malformedPayload = `{"docs":[{"location":"","page":"Home","text":"no title","category":"page"}]}`
)

type fakeHistory struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (h *fakeHistory) Record(_ context.Context, o Outcome) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outcomes = append(h.outcomes, o)
	return nil
}

type fakeCache struct {
	mu    sync.Mutex
	calls int
}

func (c *fakeCache) Invalidate(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 0, nil
}

type fixture struct {
	dir      string
	path     string
	store    *indexer.IndexStore
	history  *fakeHistory
	cache    *fakeCache
	events   *analytics.Aggregator
	lastGood *source.LastGood
	metrics  *metrics.Metrics
	reloader *Reloader
}

func newFixture(t *testing.T, payload string) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:      dir,
		path:     filepath.Join(dir, "search_index.js"),
		store:    indexer.New(),
		history:  &fakeHistory{},
		cache:    &fakeCache{},
		events:   analytics.NewAggregator(),
		lastGood: source.NewLastGood(filepath.Join(dir, "cache")),
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	f.write(t, payload)
	f.reloader = New(f.store, source.NewFile(f.path), Options{
		LastGood: f.lastGood,
		History:  f.history,
		Events:   f.events,
		Cache:    f.cache,
		Metrics:  f.metrics,
		Open: func(uri string) (source.Source, error) {
			return source.NewFile(uri), nil
		},
	})
	return f
}

func (f *fixture) write(t *testing.T, payload string) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.path, []byte(payload), 0o644))
}

func TestReloadSuccess(t *testing.T) {
	f := newFixture(t, goodPayload)
	out, err := f.reloader.Reload(context.Background(), "manual")
	require.NoError(t, err)

	assert.Equal(t, analytics.ReloadSuccess, out.Status)
	assert.Equal(t, "manual", out.Reason)
	assert.Equal(t, 2, out.Records)
	assert.Equal(t, uint64(1), out.Generation)
	assert.Equal(t, indexer.StateReady, f.store.State())
	for _, phase := range []string{"fetch", "decode", "load"} {
		assert.Contains(t, out.Phases, phase)
	}

	recs, err := f.store.Query("eikonal")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "#brgc", recs[0].Location)

	require.Len(t, f.history.outcomes, 1)
	assert.Equal(t, 1, f.cache.calls)
	assert.Equal(t, int64(1), f.events.Stats().Reloads)
	assert.FileExists(t, f.lastGood.Path())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.IndexRecords))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IndexLoadsTotal.WithLabelValues(analytics.ReloadSuccess)))
}

func TestReloadMalformedKeepsPreviousIndex(t *testing.T) {
	f := newFixture(t, goodPayload)
	_, err := f.reloader.Reload(context.Background(), "manual")
	require.NoError(t, err)

	f.write(t, malformedPayload)
	out, err := f.reloader.Reload(context.Background(), "manual")
	var malformed *apperrors.MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 0, malformed.Position)
	assert.Equal(t, "title", malformed.Field)
	assert.Equal(t, analytics.ReloadFailed, out.Status)
	assert.Contains(t, out.Error, "title")

	assert.Equal(t, uint64(1), f.store.Generation())
	recs, err := f.store.Query("brgc")
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	assert.Equal(t, 1, f.cache.calls)
	require.Len(t, f.history.outcomes, 2)
	assert.Equal(t, int64(1), f.events.Stats().FailedReloads)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IndexLoadsTotal.WithLabelValues(analytics.ReloadFailed)))
}

func TestLoadInitialFallsBackToLastGood(t *testing.T) {
	f := newFixture(t, goodPayload)
	_, err := f.reloader.Reload(context.Background(), "manual")
	require.NoError(t, err)
	require.NoError(t, os.Remove(f.path))

	fresh := indexer.New()
	r := New(fresh, source.NewFile(f.path), Options{LastGood: f.lastGood})
	out, err := r.LoadInitial(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "startup-fallback", out.Reason)
	assert.Equal(t, 2, out.Records)
	assert.Equal(t, indexer.StateReady, fresh.State())
}

func TestLoadInitialDoesNotMaskMalformedPayload(t *testing.T) {
	f := newFixture(t, goodPayload)
	_, err := f.reloader.Reload(context.Background(), "manual")
	require.NoError(t, err)
	f.write(t, malformedPayload)

	fresh := indexer.New()
	r := New(fresh, source.NewFile(f.path), Options{LastGood: f.lastGood})
	_, err = r.LoadInitial(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrMalformedRecord)
	assert.Equal(t, indexer.StateEmpty, fresh.State())
}

func TestLoadInitialWithoutLastGood(t *testing.T) {
	dir := t.TempDir()
	fresh := indexer.New()
	r := New(fresh, source.NewFile(filepath.Join(dir, "missing.js")), Options{
		LastGood: source.NewLastGood(filepath.Join(dir, "cache")),
	})
	_, err := r.LoadInitial(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrSourceUnavailable)
	assert.Equal(t, indexer.StateEmpty, fresh.State())
}

func TestHandleTrigger(t *testing.T) {
	f := newFixture(t, goodPayload)
	handler := f.reloader.HandleTrigger()

	require.NoError(t, handler(context.Background(), nil, nil))
	assert.Equal(t, uint64(1), f.store.Generation())

	other := filepath.Join(f.dir, "other.json")
	require.NoError(t, os.WriteFile(other, []byte(otherPayload), 0o644))
	body, _ := json.Marshal(Trigger{Source: other, Reason: "docs deployed"})
	require.NoError(t, handler(context.Background(), []byte("k"), body))
	assert.Equal(t, uint64(2), f.store.Generation())
	recs, err := f.store.Query("tuples")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Other", recs[0].Page)
	assert.Equal(t, "docs deployed", f.history.outcomes[1].Reason)

	require.NoError(t, handler(context.Background(), nil, []byte("garbage")))
	assert.Equal(t, uint64(3), f.store.Generation())
}

func TestStartLoop(t *testing.T) {
	f := newFixture(t, goodPayload)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.reloader.StartLoop(ctx, 10*time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool { return f.store.Generation() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	f.reloader.StartLoop(context.Background(), 0)
}

func TestEventsPublishedToKafkaShape(t *testing.T) {
	var got []kafka.Event
	pub := publisherFunc(func(_ context.Context, events ...kafka.Event) error {
		got = append(got, events...)
		return nil
	})
	f := newFixture(t, goodPayload)
	r := New(f.store, source.NewFile(f.path), Options{Events: pub})
	_, err := r.Reload(context.Background(), "manual")
	require.NoError(t, err)

	require.Len(t, got, 1)
	ev, ok := got[0].Value.(analytics.ReloadEvent)
	require.True(t, ok)
	assert.Equal(t, analytics.EventReload, ev.Type)
	assert.Equal(t, "file://"+f.path, got[0].Key)
	assert.Equal(t, 2, ev.Records)
}

type publisherFunc func(ctx context.Context, events ...kafka.Event) error

func (f publisherFunc) Publish(ctx context.Context, events ...kafka.Event) error {
	return f(ctx, events...)
}
