package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/Phil-Grim/london-properties-analysis/config"
	"github.com/Phil-Grim/london-properties-analysis/internal/artifact"
	"github.com/Phil-Grim/london-properties-analysis/internal/database"
	"github.com/Phil-Grim/london-properties-analysis/internal/fetch"
	"github.com/Phil-Grim/london-properties-analysis/internal/models"
	"github.com/Phil-Grim/london-properties-analysis/internal/storage"
)

// ErrBatchRejected means the batch failed schema coercion and was routed
// to the failed storage path instead of the snapshot path.
var ErrBatchRejected = errors.New("batch rejected")

// maxReportedProblems bounds how many row problems a rejection lists.
const maxReportedProblems = 10

// IngestorConfig holds the sink settings
type IngestorConfig struct {
	TableName  string
	TempDir    string
	MaxRetries int
	RetryDelay time.Duration
}

// Ingestor lands one crawl's rows as a single artifact and registers the
// external table over the snapshot prefix.
type Ingestor struct {
	store    storage.BlobStore
	catalog  database.Catalog
	schema   *config.Schema
	config   IngestorConfig
	validate *validator.Validate
	logger   *logrus.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// IngestResult describes where a batch landed.
type IngestResult struct {
	Rows        int    `json:"rows"`
	LogicalPath string `json:"logical_path"`
	URI         string `json:"uri"`
	Rejected    bool   `json:"rejected"`
}

func NewIngestor(store storage.BlobStore, catalog database.Catalog, schema *config.Schema, cfg IngestorConfig, logger *logrus.Logger) *Ingestor {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Ingestor{
		store:    store,
		catalog:  catalog,
		schema:   schema,
		config:   cfg,
		validate: validator.New(),
		logger:   logger,
		sleep:    fetch.Sleep,
	}
}

// Ingest writes rows as the snapshot of runDate. A batch that fails
// validation or serialization is written whole as CSV to the failed path
// and ErrBatchRejected is returned; no part of it reaches the snapshot path.
func (i *Ingestor) Ingest(ctx context.Context, runDate time.Time, rows []*models.Listing) (*IngestResult, error) {
	log := i.logger.WithFields(logrus.Fields{
		"run_date": runDate.Format(storage.DateLayout),
		"rows":     len(rows),
	})

	if err := i.check(rows); err != nil {
		log.WithError(err).Error("Batch failed schema validation")
		return i.reject(ctx, runDate, rows, err)
	}

	local, err := i.writeParquet(rows)
	if err != nil {
		log.WithError(err).Error("Batch failed serialization")
		return i.reject(ctx, runDate, rows, err)
	}

	logical := storage.SucceededPath(runDate)
	if err := i.upload(ctx, local, logical); err != nil {
		// keep the local artifact so the batch can be re-uploaded by hand
		log.WithError(err).WithField("local_path", local).Error("Snapshot upload failed")
		return nil, err
	}
	_ = os.Remove(local)

	pattern := storage.SucceededPattern(i.store)
	err = i.retry(ctx, "catalog", func() error {
		return i.catalog.EnsureExternalTable(ctx, i.config.TableName, i.schema.Format, pattern)
	})
	if err != nil {
		return nil, err
	}

	result := &IngestResult{Rows: len(rows), LogicalPath: logical, URI: i.store.URI(logical)}
	log.WithFields(logrus.Fields{
		"uri":   result.URI,
		"table": i.config.TableName,
	}).Info("Snapshot landed")
	return result, nil
}

// check verifies the writer layout against the declared schema and every
// row against its validation tags.
func (i *Ingestor) check(rows []*models.Listing) error {
	if err := artifact.CheckSchema(i.schema); err != nil {
		return err
	}

	var problems []string
	invalid := 0
	for _, row := range rows {
		if row == nil {
			invalid++
			continue
		}
		if err := i.validate.Struct(row); err != nil {
			invalid++
			if len(problems) < maxReportedProblems {
				problems = append(problems, fmt.Sprintf("listing %d: %v", row.ID, err))
			}
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d invalid rows: %s", invalid, strings.Join(problems, "; "))
	}
	return nil
}

func (i *Ingestor) writeParquet(rows []*models.Listing) (string, error) {
	f, err := os.CreateTemp(i.config.TempDir, "snapshot-*.parquet")
	if err != nil {
		return "", fmt.Errorf("failed to create temp artifact: %w", err)
	}
	path := f.Name()
	_ = f.Close()

	converted := make([]artifact.Row, len(rows))
	for n, row := range rows {
		converted[n] = artifact.FromListing(row)
	}
	if err := artifact.WriteParquetFile(path, converted); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func (i *Ingestor) reject(ctx context.Context, runDate time.Time, rows []*models.Listing, cause error) (*IngestResult, error) {
	f, err := os.CreateTemp(i.config.TempDir, "rejected-*.csv")
	if err != nil {
		return nil, fmt.Errorf("failed to preserve rejected batch: %w", err)
	}
	local := f.Name()
	_ = f.Close()

	kept := make([]*models.Listing, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			kept = append(kept, row)
		}
	}
	if err := artifact.WriteCSVFile(local, i.schema, kept); err != nil {
		_ = os.Remove(local)
		return nil, fmt.Errorf("failed to preserve rejected batch: %w", err)
	}

	logical := storage.FailedPath(runDate)
	if err := i.upload(ctx, local, logical); err != nil {
		i.logger.WithError(err).WithField("local_path", local).Error("Rejected batch upload failed")
		return nil, fmt.Errorf("%w: %w", ErrBatchRejected, err)
	}
	_ = os.Remove(local)

	result := &IngestResult{Rows: len(kept), LogicalPath: logical, URI: i.store.URI(logical), Rejected: true}
	i.logger.WithField("uri", result.URI).Warn("Rejected batch preserved")
	return result, fmt.Errorf("%w: %w", ErrBatchRejected, cause)
}

func (i *Ingestor) upload(ctx context.Context, local, logical string) error {
	return i.retry(ctx, "upload", func() error {
		return i.store.Upload(ctx, local, logical)
	})
}

// retry runs fn up to MaxRetries+1 times with RetryDelay between attempts.
func (i *Ingestor) retry(ctx context.Context, operation string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= i.config.MaxRetries; attempt++ {
		if attempt > 0 {
			i.logger.Infof("Retrying %s, attempt %d of %d", operation, attempt, i.config.MaxRetries)
			if serr := i.sleep(ctx, i.config.RetryDelay); serr != nil {
				return fmt.Errorf("%s cancelled: %w", operation, serr)
			}
		}

		if err = fn(); err == nil {
			return nil
		}
		i.logger.WithError(err).Errorf("%s failed", operation)
	}
	return fmt.Errorf("failed to %s after %d attempts: %w", operation, i.config.MaxRetries+1, err)
}
