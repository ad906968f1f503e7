package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Phil-Grim/london-properties-analysis/internal/database"
	"github.com/Phil-Grim/london-properties-analysis/internal/models"
)

// MockTrigger is a mock implementation of Trigger
type MockTrigger struct {
	mock.Mock
}

func (m *MockTrigger) Run(ctx context.Context, testMode bool) (*models.ScrapeRun, error) {
	args := m.Called(testMode)
	run, _ := args.Get(0).(*models.ScrapeRun)
	return run, args.Error(1)
}

func (m *MockTrigger) InFlight() bool {
	return m.Called().Bool(0)
}

func setupTestRouter(t *testing.T, trigger Trigger) (*gin.Engine, *database.Database, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	handler := NewHandler(context.Background(), db, trigger, logger)
	return NewRouter(handler), db, handler
}

func seedRuns(t *testing.T, db *database.Database) {
	t.Helper()
	base := time.Date(2024, 3, 18, 19, 50, 0, 0, time.UTC)
	for i, status := range []models.RunStatus{models.RunStatusSucceeded, models.RunStatusFailed, models.RunStatusSucceeded} {
		run := &models.ScrapeRun{
			ID:        []string{"run-a", "run-b", "run-c"}[i],
			RunDate:   base.AddDate(0, 0, i).Format("2006-01-02"),
			Status:    status,
			StartedAt: base.AddDate(0, 0, i),
		}
		require.NoError(t, db.SaveRun(context.Background(), run))
	}
}

func TestListRuns(t *testing.T) {
	router, db, _ := setupTestRouter(t, new(MockTrigger))
	seedRuns(t, db)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var runs []models.ScrapeRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, "run-c", runs[0].ID)
	assert.Equal(t, "run-b", runs[1].ID)
}

func TestGetRun(t *testing.T) {
	router, db, _ := setupTestRouter(t, new(MockTrigger))
	seedRuns(t, db)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/run-b", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var run models.ScrapeRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, models.RunStatusFailed, run.Status)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	trigger := new(MockTrigger)
	trigger.On("InFlight").Return(false)
	router, db, _ := setupTestRouter(t, trigger)
	seedRuns(t, db)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status        string            `json:"status"`
		RunInFlight   bool              `json:"run_in_flight"`
		LastSucceeded *models.ScrapeRun `json:"last_succeeded"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.False(t, body.RunInFlight)
	require.NotNil(t, body.LastSucceeded)
	assert.Equal(t, "run-c", body.LastSucceeded.ID)
}

func TestTriggerRun(t *testing.T) {
	trigger := new(MockTrigger)
	trigger.On("InFlight").Return(false)
	trigger.On("Run", true).Return(&models.ScrapeRun{ID: "new"}, nil).Once()
	router, _, handler := setupTestRouter(t, trigger)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/runs?test=true", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)

	handler.Wait()
	trigger.AssertExpectations(t)
}

func TestTriggerRunConflict(t *testing.T) {
	trigger := new(MockTrigger)
	trigger.On("InFlight").Return(true)
	router, _, handler := setupTestRouter(t, trigger)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/runs", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	handler.Wait()
	trigger.AssertNotCalled(t, "Run", mock.Anything)
}

func TestTriggerRunBadQuery(t *testing.T) {
	router, _, _ := setupTestRouter(t, new(MockTrigger))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/runs?test=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListTables(t *testing.T) {
	router, db, _ := setupTestRouter(t, new(MockTrigger))
	require.NoError(t, db.EnsureExternalTable(context.Background(), "ds.raw", "PARQUET", "gs://b/raw_daily_data/succeeded/*.parquet"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var tables []models.ExternalTable
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tables))
	require.Len(t, tables, 1)
	assert.Equal(t, "ds.raw", tables[0].Name)
}
