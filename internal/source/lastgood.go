package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/docs"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

const (
	lastGoodFile = "last-good.json"
	lockFile     = "last-good.lock"
	lockRetry    = 50 * time.Millisecond
)

// LastGood persists the records of the latest successful load so a restart
// can serve them when the configured source is unreachable. It is itself a
// Source. The lock file coordinates processes sharing the same directory.
type LastGood struct {
	dir  string
	lock *flock.Flock
}

func NewLastGood(dir string) *LastGood {
	return &LastGood{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, lockFile)),
	}
}

func (l *LastGood) Path() string {
	return filepath.Join(l.dir, lastGoodFile)
}

// Save writes records atomically under an exclusive lock.
func (l *LastGood) Save(ctx context.Context, records []docs.Record) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	locked, err := l.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("locking %s: %w", l.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("locking %s: not acquired", l.lock.Path())
	}
	defer l.lock.Unlock()

	tmp, err := os.CreateTemp(l.dir, lastGoodFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if err := docs.Encode(tmp, records); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("encoding last-good payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, l.Path()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing last-good payload: %w", err)
	}
	return nil
}

// Fetch returns the saved payload, read fully under a shared lock.
func (l *LastGood) Fetch(ctx context.Context) (io.ReadCloser, error) {
	if _, err := os.Stat(l.Path()); err != nil {
		return nil, fmt.Errorf("%w: no last-good payload: %v", apperrors.ErrSourceUnavailable, err)
	}
	locked, err := l.lock.TryRLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", l.lock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("locking %s: not acquired", l.lock.Path())
	}
	defer l.lock.Unlock()

	data, err := os.ReadFile(l.Path())
	if err != nil {
		return nil, fmt.Errorf("%w: reading last-good payload: %v", apperrors.ErrSourceUnavailable, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (l *LastGood) String() string {
	return "file://" + l.Path()
}
