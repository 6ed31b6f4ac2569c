// Package analytics tracks how the search index is used. The searcher
// emits a QueryEvent per request through a Collector, which batches them to
// Kafka (or straight into a local Aggregator when Kafka is off). The
// Aggregator folds query and reload events into the stats served at
// /api/v1/analytics.
package analytics

import "time"

type EventType string

const (
	EventQuery  EventType = "query"
	EventReload EventType = "index_reloaded"
)

// Reload statuses, shared with the index_loads history table.
const (
	ReloadSuccess = "SUCCESS"
	ReloadFailed  = "FAILED"
)

// QueryEvent describes one answered search.
type QueryEvent struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query"`
	Terms      []string  `json:"terms"`
	Category   string    `json:"category,omitempty"`
	TotalHits  int       `json:"total_hits"`
	Returned   int       `json:"returned"`
	LatencyMs  float64   `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	Generation uint64    `json:"generation"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

// ReloadEvent is published after every reload attempt.
type ReloadEvent struct {
	Type       EventType `json:"type"`
	Source     string    `json:"source"`
	Reason     string    `json:"reason"`
	Status     string    `json:"status"`
	Records    int       `json:"records"`
	Tokens     int       `json:"tokens"`
	Generation uint64    `json:"generation"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// envelope peeks at the type field before decoding the full event.
type envelope struct {
	Type EventType `json:"type"`
}
