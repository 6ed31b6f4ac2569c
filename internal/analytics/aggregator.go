package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

const latencyWindow = 10000

type AggregatedStats struct {
	TotalQueries      int64        `json:"total_queries"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      float64      `json:"p50_latency_ms"`
	P95LatencyMs      float64      `json:"p95_latency_ms"`
	P99LatencyMs      float64      `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	TopCategories     []QueryCount `json:"top_categories"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	Reloads           int64        `json:"reloads"`
	FailedReloads     int64        `json:"failed_reloads"`
	LastReload        *ReloadEvent `json:"last_reload,omitempty"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds events into in-memory counters. Latency percentiles
// cover the most recent queries only.
type Aggregator struct {
	mu                sync.RWMutex
	totalQueries      int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	latencies         []float64
	latencyNext       int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	categoryCounts    map[string]int64
	reloads           int64
	failedReloads     int64
	lastReload        *ReloadEvent
	startTime         time.Time
	now               func() time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]float64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		categoryCounts:    make(map[string]int64),
		startTime:         time.Now(),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Publish records events handed over in-process, without Kafka.
func (a *Aggregator) Publish(_ context.Context, events ...kafka.Event) error {
	for _, ev := range events {
		switch v := ev.Value.(type) {
		case QueryEvent:
			a.RecordQuery(v)
		case ReloadEvent:
			a.RecordReload(v)
		default:
			return fmt.Errorf("unsupported analytics event %T", ev.Value)
		}
	}
	return nil
}

// HandleMessage decodes a Kafka message from the analytics or reload
// topic. Undecodable messages are logged and skipped so they do not block
// the partition.
func (a *Aggregator) HandleMessage(_ context.Context, _, value []byte) error {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		a.logger.Warn("skipping undecodable analytics message", "error", err)
		return nil
	}
	switch env.Type {
	case EventQuery:
		ev, err := kafka.DecodeJSON[QueryEvent](value)
		if err != nil {
			a.logger.Warn("skipping query event", "error", err)
			return nil
		}
		a.RecordQuery(ev)
	case EventReload:
		ev, err := kafka.DecodeJSON[ReloadEvent](value)
		if err != nil {
			a.logger.Warn("skipping reload event", "error", err)
			return nil
		}
		a.RecordReload(ev)
	default:
		a.logger.Debug("ignoring analytics message", "type", env.Type)
	}
	return nil
}

func (a *Aggregator) RecordQuery(ev QueryEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalQueries++
	if ev.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, ev.LatencyMs)
	} else {
		a.latencies[a.latencyNext] = ev.LatencyMs
		a.latencyNext = (a.latencyNext + 1) % latencyWindow
	}
	a.queryCounts[ev.Query]++
	if ev.TotalHits == 0 {
		a.zeroResults++
		a.zeroResultQueries[ev.Query]++
	}
	if ev.Category != "" {
		a.categoryCounts[ev.Category]++
	}
}

func (a *Aggregator) RecordReload(ev ReloadEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reloads++
	if ev.Status != ReloadSuccess {
		a.failedReloads++
	}
	a.lastReload = &ev
}

// Seed restores counters from a persisted snapshot so totals survive a
// restart. Only the top-N query lists were persisted, so the long tail of
// query counts starts from zero.
func (a *Aggregator) Seed(s AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalQueries += s.TotalQueries
	a.cacheHits += s.CacheHits
	a.cacheMisses += s.CacheMisses
	a.zeroResults += s.ZeroResultCount
	a.reloads += s.Reloads
	a.failedReloads += s.FailedReloads
	for _, q := range s.TopQueries {
		a.queryCounts[q.Query] += q.Count
	}
	for _, q := range s.ZeroResultQueries {
		a.zeroResultQueries[q.Query] += q.Count
	}
	for _, q := range s.TopCategories {
		a.categoryCounts[q.Query] += q.Count
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalQueries:      a.totalQueries,
		CacheHits:         a.cacheHits,
		CacheMisses:       a.cacheMisses,
		ZeroResultCount:   a.zeroResults,
		TopQueries:        topN(a.queryCounts, 10),
		ZeroResultQueries: topN(a.zeroResultQueries, 10),
		TopCategories:     topN(a.categoryCounts, 10),
		Reloads:           a.reloads,
		FailedReloads:     a.failedReloads,
	}
	if a.lastReload != nil {
		last := *a.lastReload
		stats.LastReload = &last
	}
	if len(a.latencies) > 0 {
		sorted := make([]float64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Float64s(sorted)
		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}
	return stats
}

func percentile(sorted []float64, pct int) float64 {
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then alphabetically so equal counts are stable.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
