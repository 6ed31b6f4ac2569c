package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// S3 reads a payload object from S3-compatible storage.
type S3 struct {
	client *minio.Client
	bucket string
	key    string
}

// NewS3 creates a client for the configured endpoint. No request is made
// until Fetch.
func NewS3(cfg config.S3Config, bucket, key string) (*S3, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client for %s: %w", cfg.Endpoint, err)
	}
	return &S3{client: client, bucket: bucket, key: key}, nil
}

func (s *S3) Fetch(ctx context.Context) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", apperrors.ErrSourceUnavailable, s, err)
	}
	// GetObject is lazy; Stat surfaces missing objects before the caller reads.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		wrapped := fmt.Errorf("%w: stat %s: %v", apperrors.ErrSourceUnavailable, s, err)
		switch minio.ToErrorResponse(err).Code {
		case "NoSuchKey", "NoSuchBucket", "NotFound", "AccessDenied":
			return nil, resilience.Permanent(wrapped)
		}
		return nil, wrapped
	}
	return obj, nil
}

// checksumMeta is the user-metadata key holding the payload's sha256.
const checksumMeta = "Sha256"

// Checksum returns the sha256 recorded when the object was uploaded.
// found is false when the object does not exist.
func (s *S3) Checksum(ctx context.Context) (sum string, found bool, err error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.key, minio.StatObjectOptions{})
	if err != nil {
		switch minio.ToErrorResponse(err).Code {
		case "NoSuchKey", "NotFound":
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: stat %s: %v", apperrors.ErrSourceUnavailable, s, err)
	}
	for k, v := range info.UserMetadata {
		if strings.EqualFold(k, checksumMeta) || strings.EqualFold(k, "X-Amz-Meta-"+checksumMeta) {
			return v, true, nil
		}
	}
	return "", true, nil
}

// Upload replaces the object with data and records its checksum.
func (s *S3) Upload(ctx context.Context, data []byte, checksum string) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  "application/octet-stream",
		UserMetadata: map[string]string{checksumMeta: checksum},
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", apperrors.ErrSourceUnavailable, s, err)
	}
	return nil
}

// ParseS3URI splits s3://bucket/key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil || u.Scheme != "s3" {
		return "", "", fmt.Errorf("%w: not an s3 uri: %q", apperrors.ErrInvalidInput, uri)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("%w: s3 uri must be s3://bucket/key, got %q", apperrors.ErrInvalidInput, uri)
	}
	return u.Host, key, nil
}

func (s *S3) String() string {
	return "s3://" + s.bucket + "/" + s.key
}
