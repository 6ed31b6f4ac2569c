// Package reload drives the fetch, decode and load pipeline that keeps the
// IndexStore current. Reloads run on startup, on a timer, on demand from
// the HTTP API and when a payload-updated message arrives on Kafka. All of
// them funnel through IndexStore.Load, which serializes writers.
package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/docs"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/source"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

// Store is the part of IndexStore the reloader drives.
type Store interface {
	Load(records []docs.Record) error
	Stats() indexer.Stats
}

// History records every reload attempt.
type History interface {
	Record(ctx context.Context, o Outcome) error
}

// Invalidator drops cached query results.
type Invalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

// Outcome describes one reload attempt.
type Outcome struct {
	Source     string        `json:"source"`
	Reason     string        `json:"reason"`
	Status     string        `json:"status"`
	Records    int           `json:"records"`
	Tokens     int           `json:"tokens"`
	Generation uint64        `json:"generation"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	// Phases times fetch, decode and load. Not persisted in history.
	Phases map[string]time.Duration `json:"phases,omitempty"`
}

// Options wires the optional collaborators. Nil fields are skipped.
type Options struct {
	LastGood *source.LastGood
	History  History
	Events   analytics.Publisher
	Cache    Invalidator
	Metrics  *metrics.Metrics
	// Open resolves a source URI named in a trigger message. Without it,
	// triggers always reload from the configured source.
	Open func(uri string) (source.Source, error)
}

type Reloader struct {
	store  Store
	src    source.Source
	opts   Options
	logger *slog.Logger
}

func New(store Store, src source.Source, opts Options) *Reloader {
	return &Reloader{
		store:  store,
		src:    src,
		opts:   opts,
		logger: slog.Default().With("component", "reloader"),
	}
}

// Reload loads the configured source.
func (r *Reloader) Reload(ctx context.Context, reason string) (Outcome, error) {
	return r.ReloadFrom(ctx, r.src, reason)
}

// ReloadFrom fetches, decodes and loads src. On failure the index keeps
// serving the previous generation; the attempt is still recorded.
func (r *Reloader) ReloadFrom(ctx context.Context, src source.Source, reason string) (Outcome, error) {
	out := Outcome{Source: src.String(), Reason: reason, StartedAt: time.Now().UTC()}
	ctx, span := tracing.StartSpan(ctx, "reload", logger.RequestID(ctx))
	span.SetAttr("source", out.Source)
	span.SetAttr("reason", reason)

	records, err := r.fetch(ctx, src)
	if err == nil {
		_, loadSpan := tracing.StartChildSpan(ctx, "load")
		err = r.store.Load(records)
		loadSpan.End()
	}
	span.End()
	out.Duration = time.Since(out.StartedAt)
	out.Phases = span.Phases()
	span.Log(r.logger)

	if err != nil {
		out.Status = analytics.ReloadFailed
		out.Error = err.Error()
		r.logger.Error("reload failed", "source", out.Source, "reason", reason, "error", err)
	} else {
		stats := r.store.Stats()
		out.Status = analytics.ReloadSuccess
		out.Records = stats.Records
		out.Tokens = stats.Terms
		out.Generation = stats.Generation
		r.logger.Info("reload succeeded",
			"source", out.Source,
			"reason", reason,
			"records", out.Records,
			"generation", out.Generation,
			"took", out.Duration,
		)
		r.afterSuccess(ctx, records, stats)
	}
	r.observe(ctx, out)
	return out, err
}

// LoadInitial loads the configured source and, if it cannot be fetched,
// falls back to the last-good copy. A malformed primary payload does not
// fall back: it is reported so the operator sees it.
func (r *Reloader) LoadInitial(ctx context.Context) (Outcome, error) {
	out, err := r.Reload(ctx, "startup")
	if err == nil || r.opts.LastGood == nil || !errors.Is(err, apperrors.ErrSourceUnavailable) {
		return out, err
	}
	r.logger.Warn("primary source unavailable, using last-good payload", "path", r.opts.LastGood.Path(), "error", err)
	fallback, fbErr := r.ReloadFrom(ctx, r.opts.LastGood, "startup-fallback")
	if fbErr != nil {
		return fallback, errors.Join(err, fbErr)
	}
	return fallback, nil
}

// StartLoop reloads every interval until ctx is done. A non-positive
// interval disables the loop.
func (r *Reloader) StartLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	r.logger.Info("periodic reload started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = r.Reload(ctx, "interval")
		}
	}
}

// Trigger is the optional body of a payload-updated message.
type Trigger struct {
	Source string `json:"source,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// HandleTrigger returns the consumer callback for the payload-updated
// topic. Any message reloads; an empty or undecodable body uses the
// configured source. Load failures are not returned, so a bad payload is
// committed instead of redelivered forever.
func (r *Reloader) HandleTrigger() kafka.MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		var t Trigger
		if len(value) > 0 {
			decoded, err := kafka.DecodeJSON[Trigger](value)
			if err != nil {
				r.logger.Warn("trigger body ignored", "error", err)
			} else {
				t = decoded
			}
		}
		reason := t.Reason
		if reason == "" {
			reason = "kafka"
		}
		src := r.src
		if t.Source != "" && r.opts.Open != nil {
			s, err := r.opts.Open(t.Source)
			if err != nil {
				r.logger.Error("trigger source rejected", "source", t.Source, "error", err)
				return nil
			}
			src = s
		}
		_, _ = r.ReloadFrom(ctx, src, reason)
		return nil
	}
}

func (r *Reloader) fetch(ctx context.Context, src source.Source) ([]docs.Record, error) {
	_, fetchSpan := tracing.StartChildSpan(ctx, "fetch")
	rc, err := src.Fetch(ctx)
	fetchSpan.End()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	_, decodeSpan := tracing.StartChildSpan(ctx, "decode")
	records, err := docs.Decode(rc)
	decodeSpan.SetAttr("records", len(records))
	decodeSpan.End()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", src, err)
	}
	return records, nil
}

func (r *Reloader) afterSuccess(ctx context.Context, records []docs.Record, stats indexer.Stats) {
	if m := r.opts.Metrics; m != nil {
		m.IndexRecords.Set(float64(stats.Records))
		m.IndexTokens.Set(float64(stats.Terms))
		m.IndexGeneration.Set(float64(stats.Generation))
	}
	if r.opts.LastGood != nil {
		if err := r.opts.LastGood.Save(ctx, records); err != nil {
			r.logger.Warn("saving last-good payload failed", "error", err)
		}
	}
	if r.opts.Cache != nil {
		if _, err := r.opts.Cache.Invalidate(ctx); err != nil {
			r.logger.Warn("cache invalidation after reload failed", "error", err)
		}
	}
}

func (r *Reloader) observe(ctx context.Context, o Outcome) {
	if m := r.opts.Metrics; m != nil {
		m.IndexLoadsTotal.WithLabelValues(o.Status).Inc()
		m.IndexLoadDuration.Observe(o.Duration.Seconds())
	}
	if r.opts.History != nil {
		if err := r.opts.History.Record(ctx, o); err != nil {
			r.logger.Warn("recording reload history failed", "error", err)
		}
	}
	if r.opts.Events != nil {
		ev := analytics.ReloadEvent{
			Type:       analytics.EventReload,
			Source:     o.Source,
			Reason:     o.Reason,
			Status:     o.Status,
			Records:    o.Records,
			Tokens:     o.Tokens,
			Generation: o.Generation,
			Error:      o.Error,
			DurationMs: o.Duration.Milliseconds(),
			Timestamp:  o.StartedAt,
		}
		if err := r.opts.Events.Publish(ctx, kafka.Event{Key: o.Source, Value: ev}); err != nil {
			r.logger.Warn("publishing reload event failed", "error", err)
		}
	}
}
