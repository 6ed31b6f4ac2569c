// Package source fetches search-index payloads from local files, HTTP(S)
// endpoints and S3-compatible object storage, and keeps a last-good copy of
// the most recent payload that loaded cleanly.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// Source yields the raw bytes of a payload. Callers close the reader.
type Source interface {
	Fetch(ctx context.Context) (io.ReadCloser, error)
	String() string
}

// Open returns the Source for uri. Remote sources are wrapped with retry
// and a circuit breaker; onBreaker may be nil.
func Open(uri string, cfg config.SourceConfig, onBreaker func(name string, state resilience.State)) (Source, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, fmt.Errorf("%w: empty source uri", apperrors.ErrInvalidInput)
	}
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// bare paths, including Windows drive letters
		return NewFile(uri), nil
	}

	var src Source
	switch u.Scheme {
	case "file":
		return NewFile(u.Path), nil
	case "http", "https":
		src = NewHTTP(uri, cfg.FetchTimeout)
	case "s3":
		bucket, key, err := ParseS3URI(uri)
		if err != nil {
			return nil, err
		}
		src, err = NewS3(cfg.S3, bucket, key)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unsupported source scheme %q", apperrors.ErrInvalidInput, u.Scheme)
	}
	return withResilience(src, cfg, onBreaker), nil
}

// File reads a payload from the local filesystem.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Fetch(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err)
	}
	return fh, nil
}

func (f *File) String() string {
	return "file://" + f.path
}

// resilient buffers the whole payload inside each attempt so that read
// errors are retried along with connection errors.
type resilient struct {
	inner   Source
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

func withResilience(src Source, cfg config.SourceConfig, onBreaker func(string, resilience.State)) Source {
	return &resilient{
		inner: src,
		retry: resilience.RetryConfig{
			MaxAttempts:    cfg.MaxAttempts,
			AttemptTimeout: cfg.FetchTimeout,
		},
		breaker: resilience.NewCircuitBreaker("source:"+src.String(), resilience.CircuitBreakerConfig{
			OnStateChange: onBreaker,
		}),
		logger: slog.Default().With("component", "payload-source", "source", src.String()),
	}
}

func (r *resilient) Fetch(ctx context.Context) (io.ReadCloser, error) {
	var data []byte
	err := r.breaker.Execute(func() error {
		return resilience.Retry(ctx, "fetch "+r.inner.String(), r.retry, func(ctx context.Context) error {
			rc, err := r.inner.Fetch(ctx)
			if err != nil {
				return err
			}
			defer rc.Close()
			b, err := io.ReadAll(rc)
			if err != nil {
				return fmt.Errorf("%w: reading body: %v", apperrors.ErrSourceUnavailable, err)
			}
			data = b
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err)
		}
		return nil, err
	}
	r.logger.Debug("payload fetched", "bytes", len(data))
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (r *resilient) String() string {
	return r.inner.String()
}
