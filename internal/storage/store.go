package storage

import (
	"context"
	"fmt"
	"path"
	"time"
)

// Storage layout of the daily snapshots.
const (
	RawPrefix      = "raw_daily_data"
	SucceededDir   = RawPrefix + "/succeeded"
	FailedDir      = RawPrefix + "/failed"
	DateLayout     = "2006-01-02"
	ParquetExt     = "parquet"
	FailedBatchExt = "csv"
)

// BlobStore durably stores a local file under a logical, slash-separated path.
type BlobStore interface {
	Upload(ctx context.Context, localPath, logicalPath string) error
	// URI is the fully qualified location of logicalPath, e.g. gs://bucket/path.
	URI(logicalPath string) string
}

// UploadError is a failed hand-off of a local artifact to a BlobStore.
type UploadError struct {
	LogicalPath string
	Err         error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.LogicalPath, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// SucceededPath is where the accepted snapshot of runDate lands.
func SucceededPath(runDate time.Time) string {
	return path.Join(SucceededDir, runDate.Format(DateLayout)+"."+ParquetExt)
}

// FailedPath is where a rejected batch of runDate is preserved.
func FailedPath(runDate time.Time) string {
	return path.Join(FailedDir, runDate.Format(DateLayout)+"."+FailedBatchExt)
}

// SucceededPattern matches every accepted snapshot, for external table definitions.
func SucceededPattern(store BlobStore) string {
	return store.URI(SucceededDir + "/*." + ParquetExt)
}
