package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
)

// GCSStore uploads blobs to a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore connects with application default credentials.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is not configured")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) Upload(ctx context.Context, localPath, logicalPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return &UploadError{LogicalPath: logicalPath, Err: err}
	}
	defer f.Close()

	w := s.client.Bucket(s.bucket).Object(logicalPath).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return &UploadError{LogicalPath: logicalPath, Err: err}
	}
	// Close commits the object; errors from the upload surface here.
	if err := w.Close(); err != nil {
		return &UploadError{LogicalPath: logicalPath, Err: err}
	}
	return nil
}

func (s *GCSStore) URI(logicalPath string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, logicalPath)
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
