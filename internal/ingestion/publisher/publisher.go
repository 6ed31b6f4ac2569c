// Package publisher uploads validated payloads to object storage and
// announces them on Kafka. An upload whose checksum matches the stored
// object is skipped, so republishing the same build is a no-op.
package publisher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/docs"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/reload"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// ObjectStore is where published payloads live. *source.S3 implements it.
type ObjectStore interface {
	Checksum(ctx context.Context) (sum string, found bool, err error)
	Upload(ctx context.Context, data []byte, checksum string) error
	String() string
}

// Announcer sends payload-updated messages. *kafka.Producer implements it.
type Announcer interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// Publisher coordinates validation, upload and announcement.
type Publisher struct {
	store     ObjectStore
	announcer Announcer
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Publisher. announcer may be nil to upload without
// announcing.
func New(store ObjectStore, announcer Announcer) *Publisher {
	return &Publisher{
		store:     store,
		announcer: announcer,
		now:       time.Now,
		logger:    slog.Default().With("component", "payload-publisher"),
	}
}

// Publish validates req.Data, uploads it unless the stored object already
// has the same checksum, and announces the upload. A failed announcement
// is logged and reported in the result; the upload still stands.
func (p *Publisher) Publish(ctx context.Context, req ingestion.PublishRequest) (*ingestion.PublishResult, error) {
	records, err := docs.Decode(bytes.NewReader(req.Data))
	if err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	if err := validator.ValidatePayload(records); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(req.Data)
	res := &ingestion.PublishResult{
		Target:      p.store.String(),
		Checksum:    hex.EncodeToString(sum[:]),
		Records:     len(records),
		PublishedAt: p.now().UTC(),
	}

	existing, found, err := p.store.Checksum(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking stored payload: %w", err)
	}
	if found && existing == res.Checksum && !req.Force {
		p.logger.Info("payload unchanged, skipping publish",
			"target", res.Target,
			"checksum", res.Checksum,
		)
		return res, nil
	}

	if err := p.store.Upload(ctx, req.Data, res.Checksum); err != nil {
		return nil, err
	}
	res.Uploaded = true
	p.logger.Info("payload uploaded", "target", res.Target, "records", res.Records, "checksum", res.Checksum)

	if p.announcer == nil {
		return res, nil
	}
	reason := req.Reason
	if reason == "" {
		reason = "published sha256:" + res.Checksum[:12]
	}
	event := kafka.Event{
		Key:   res.Target,
		Value: reload.Trigger{Source: res.Target, Reason: reason},
	}
	if err := p.announcer.Publish(ctx, event); err != nil {
		p.logger.Error("failed to announce payload, replicas will pick it up on their next interval reload",
			"target", res.Target,
			"error", err,
		)
		return res, nil
	}
	res.Announced = true
	return res, nil
}
