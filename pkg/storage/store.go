// Package storage abstracts object storage behind one Store interface so
// pkg/evidence and internal/export can run against S3-compatible or
// GCS-compatible backends interchangeably, selected by
// config.Config.StorageBackend.
package storage

import (
	"context"
	"io"
	"time"
)

// Store is the object-storage contract used for evidence uploads and export
// artifacts. Keys are caller-chosen (e.g. "evidence/<org>/<yyyy>/<mm>/<id>.<ext>",
// "exports/<org>/<system>/<version>/<export-id>.zip"); nothing is content-addressed, since
// two evidence uploads with identical bytes are still distinct business
// records (spec §4.2 duplicate detection runs at the metadata layer, not the
// blob layer).
type Store interface {
	// Put uploads data and returns its SHA-256 checksum, hex-encoded.
	Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) (checksum string, err error)
	// Open streams an object back for download or ZIP assembly.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes an object; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// PresignUpload returns a time-limited URL a client can PUT directly to,
	// so large evidence files never transit the application server.
	PresignUpload(ctx context.Context, key string, ttl time.Duration) (url string, err error)
	// PresignDownload returns a time-limited URL a client can GET directly,
	// used for export artifact downloads.
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (url string, err error)
}
