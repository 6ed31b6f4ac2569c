package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

// Publisher receives batches of events. *kafka.Producer and *Aggregator
// implement it.
type Publisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

type CollectorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

func (c CollectorConfig) withDefaults() CollectorConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 10000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 2 * time.Second
	}
	return c
}

// Collector buffers events without blocking the request path and
// publishes them in batches of up to BatchSize, at least every
// FlushInterval.
type Collector struct {
	publisher Publisher
	cfg       CollectorConfig
	eventCh   chan kafka.Event
	metrics   *metrics.Metrics
	logger    *slog.Logger
	done      chan struct{}
	closeOnce sync.Once
}

// NewCollector returns a stopped collector. m may be nil.
func NewCollector(publisher Publisher, cfg CollectorConfig, m *metrics.Metrics) *Collector {
	cfg = cfg.withDefaults()
	return &Collector{
		publisher: publisher,
		cfg:       cfg,
		eventCh:   make(chan kafka.Event, cfg.BufferSize),
		metrics:   m,
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

// Run publishes until ctx is done or Close is called, then flushes what is
// buffered with a short deadline.
func (c *Collector) Run(ctx context.Context) {
	defer close(c.done)
	c.logger.Info("analytics collector started",
		"buffer_size", c.cfg.BufferSize,
		"batch_size", c.cfg.BatchSize,
		"flush_interval", c.cfg.FlushInterval,
	)
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.cfg.BatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := c.publisher.Publish(ctx, batch...); err != nil {
			c.logger.Error("analytics flush failed", "events", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-c.eventCh:
			if !ok {
				c.finalFlush(batch)
				return
			}
			batch = append(batch, ev)
			if len(batch) >= c.cfg.BatchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			c.drain(&batch)
			c.finalFlush(batch)
			return
		}
	}
}

// Track enqueues a query event. A full buffer drops the event.
func (c *Collector) Track(ev QueryEvent) {
	ev.Type = EventQuery
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case c.eventCh <- kafka.Event{Key: ev.Query, Value: ev}:
	default:
		if c.metrics != nil {
			c.metrics.AnalyticsEventsDropped.Inc()
		}
		c.logger.Warn("analytics event dropped, buffer full")
	}
}

// Close stops accepting events and waits for Run to flush. Track must not
// be called after Close.
func (c *Collector) Close() {
	c.closeOnce.Do(func() { close(c.eventCh) })
	<-c.done
}

func (c *Collector) drain(batch *[]kafka.Event) {
	for {
		select {
		case ev, ok := <-c.eventCh:
			if !ok {
				return
			}
			*batch = append(*batch, ev)
		default:
			return
		}
	}
}

func (c *Collector) finalFlush(batch []kafka.Event) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.publisher.Publish(ctx, batch...); err != nil {
		c.logger.Error("final analytics flush failed", "events", len(batch), "error", err)
	}
}
