package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Phil-Grim/london-properties-analysis/config"
	"github.com/Phil-Grim/london-properties-analysis/internal/artifact"
	"github.com/Phil-Grim/london-properties-analysis/internal/models"
)

// MockStore is a mock implementation of storage.BlobStore. Uploaded files
// are copied into dir so assertions can read them after the temp file is gone.
type MockStore struct {
	mock.Mock
	dir string
}

func (m *MockStore) Upload(ctx context.Context, localPath, logicalPath string) error {
	args := m.Called(localPath, logicalPath)
	if err := args.Error(0); err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	dst := filepath.Join(m.dir, filepath.FromSlash(logicalPath))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

func (m *MockStore) URI(logicalPath string) string {
	return "gs://bucket/" + logicalPath
}

// MockCatalog is a mock implementation of database.Catalog
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) EnsureExternalTable(ctx context.Context, name, format, sourceURIPattern string) error {
	args := m.Called(name, format, sourceURIPattern)
	return args.Error(0)
}

var runDate = time.Date(2024, 3, 20, 19, 50, 0, 0, time.UTC)

func newTestIngestor(t *testing.T, store *MockStore, catalog *MockCatalog) *Ingestor {
	t.Helper()
	schema, err := config.LoadSchema()
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	i := NewIngestor(store, catalog, schema, IngestorConfig{
		TableName:  "properties_dataset.raw_london_properties",
		TempDir:    t.TempDir(),
		MaxRetries: 2,
		RetryDelay: time.Second,
	}, logger)
	i.sleep = func(context.Context, time.Duration) error { return nil }
	return i
}

func validRows() []*models.Listing {
	price := int64(450000)
	return []*models.Listing{
		{ID: 1000001, PropertyLink: "https://www.rightmove.co.uk/properties/1000001", Price: &price, PropertyType: "Flat", Bedrooms: 2, Description: "one"},
		{ID: 1000002, PropertyLink: "https://www.rightmove.co.uk/properties/1000002", PropertyType: models.DefaultPropertyType, Description: "two"},
	}
}

func TestIngestLandsSnapshot(t *testing.T) {
	store := &MockStore{dir: t.TempDir()}
	catalog := &MockCatalog{}
	store.On("Upload", mock.Anything, "raw_daily_data/succeeded/2024-03-20.parquet").Return(nil).Once()
	catalog.On("EnsureExternalTable",
		"properties_dataset.raw_london_properties",
		"PARQUET",
		"gs://bucket/raw_daily_data/succeeded/*.parquet",
	).Return(nil).Once()

	result, err := newTestIngestor(t, store, catalog).Ingest(context.Background(), runDate, validRows())
	require.NoError(t, err)
	assert.False(t, result.Rejected)
	assert.Equal(t, 2, result.Rows)
	assert.Equal(t, "gs://bucket/raw_daily_data/succeeded/2024-03-20.parquet", result.URI)

	rows, err := artifact.ReadParquetFile(filepath.Join(store.dir, "raw_daily_data", "succeeded", "2024-03-20.parquet"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1000001), rows[0].ID)

	store.AssertExpectations(t)
	catalog.AssertExpectations(t)
}

func TestIngestEmptyBatch(t *testing.T) {
	store := &MockStore{dir: t.TempDir()}
	catalog := &MockCatalog{}
	store.On("Upload", mock.Anything, "raw_daily_data/succeeded/2024-03-20.parquet").Return(nil).Once()
	catalog.On("EnsureExternalTable", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	result, err := newTestIngestor(t, store, catalog).Ingest(context.Background(), runDate, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Rows)
}

func TestIngestRejectsInvalidBatch(t *testing.T) {
	store := &MockStore{dir: t.TempDir()}
	catalog := &MockCatalog{}
	store.On("Upload", mock.Anything, "raw_daily_data/failed/2024-03-20.csv").Return(nil).Once()

	rows := validRows()
	rows[1].PropertyLink = "not a url"

	result, err := newTestIngestor(t, store, catalog).Ingest(context.Background(), runDate, rows)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBatchRejected))
	assert.Contains(t, err.Error(), "listing 1000002")
	require.NotNil(t, result)
	assert.True(t, result.Rejected)
	assert.Equal(t, 2, result.Rows)

	// whole batch preserved, nothing written to the snapshot path
	data, err := os.ReadFile(filepath.Join(store.dir, "raw_daily_data", "failed", "2024-03-20.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "1000001")
	assert.Contains(t, string(data), "not a url")
	assert.NoFileExists(t, filepath.Join(store.dir, "raw_daily_data", "succeeded", "2024-03-20.parquet"))

	store.AssertExpectations(t)
	catalog.AssertNotCalled(t, "EnsureExternalTable", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestRejectsSchemaDrift(t *testing.T) {
	store := &MockStore{dir: t.TempDir()}
	catalog := &MockCatalog{}
	store.On("Upload", mock.Anything, "raw_daily_data/failed/2024-03-20.csv").Return(nil).Once()

	i := newTestIngestor(t, store, catalog)
	i.schema = &config.Schema{Format: "PARQUET", Columns: append([]config.Column{
		{Name: "council_tax_band", Type: config.ColumnString},
	}, i.schema.Columns...)}

	result, err := i.Ingest(context.Background(), runDate, validRows())
	assert.ErrorIs(t, err, ErrBatchRejected)
	assert.Contains(t, err.Error(), "council_tax_band")
	require.NotNil(t, result)
	assert.True(t, result.Rejected)
}

func TestIngestRetriesUpload(t *testing.T) {
	store := &MockStore{dir: t.TempDir()}
	catalog := &MockCatalog{}
	store.On("Upload", mock.Anything, mock.Anything).Return(errors.New("503 from storage")).Twice()
	store.On("Upload", mock.Anything, mock.Anything).Return(nil).Once()
	catalog.On("EnsureExternalTable", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	_, err := newTestIngestor(t, store, catalog).Ingest(context.Background(), runDate, validRows())
	require.NoError(t, err)
	store.AssertNumberOfCalls(t, "Upload", 3)
}

func TestIngestUploadGivesUp(t *testing.T) {
	store := &MockStore{dir: t.TempDir()}
	catalog := &MockCatalog{}
	store.On("Upload", mock.Anything, mock.Anything).Return(errors.New("bucket unavailable"))

	_, err := newTestIngestor(t, store, catalog).Ingest(context.Background(), runDate, validRows())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBatchRejected))
	assert.Contains(t, err.Error(), "failed to upload after 3 attempts")
	store.AssertNumberOfCalls(t, "Upload", 3)
	catalog.AssertNotCalled(t, "EnsureExternalTable", mock.Anything, mock.Anything, mock.Anything)
}
