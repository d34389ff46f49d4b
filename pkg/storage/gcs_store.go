package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
)

// GCSStore implements Store against Google Cloud Storage, the alternative
// backend to S3Store when config.StorageBackend is "gcs".
type GCSStore struct {
	client     *storage.Client
	bucket     string
	signerSA   string // service account email used to sign presigned URLs
}

// GCSStoreConfig configures a GCSStore.
type GCSStoreConfig struct {
	Bucket          string
	ProjectID       string
	SignerAccountSA string
}

// NewGCSStore creates a new GCS-backed store using application default
// credentials.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: new gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, signerSA: cfg.SignerAccountSA}, nil
}

func (s *GCSStore) object(key string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(key)
}

func (s *GCSStore) Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("storage: read upload body: %w", err)
	}
	sum := sha256.Sum256(buf)
	checksum := hex.EncodeToString(sum[:])

	w := s.object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(buf)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage: gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: gcs commit %s: %w", key, err)
	}
	return checksum, nil
}

func (s *GCSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: gcs read %s: %w", key, err)
	}
	return r, nil
}

func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.object(key).Attrs(ctx)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := s.object(key).Delete(ctx); err != nil && err != storage.ErrObjectNotExist {
		return fmt.Errorf("storage: gcs delete %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) PresignUpload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Method:         "PUT",
		Expires:        time.Now().Add(ttl),
		GoogleAccessID: s.signerSA,
		Scheme:         storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("storage: presign gcs upload %s: %w", key, err)
	}
	return url, nil
}

func (s *GCSStore) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Method:         "GET",
		Expires:        time.Now().Add(ttl),
		GoogleAccessID: s.signerSA,
		Scheme:         storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("storage: presign gcs download %s: %w", key, err)
	}
	return url, nil
}
