// Package api serves run history and a manual trigger over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Phil-Grim/london-properties-analysis/internal/database"
	"github.com/Phil-Grim/london-properties-analysis/internal/lock"
	"github.com/Phil-Grim/london-properties-analysis/internal/models"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// History is the read side of the run and catalog store.
type History interface {
	ListRuns(ctx context.Context, limit int) ([]models.ScrapeRun, error)
	GetRun(ctx context.Context, id string) (*models.ScrapeRun, error)
	LatestSucceededRun(ctx context.Context) (*models.ScrapeRun, error)
	ListTables(ctx context.Context) ([]models.ExternalTable, error)
}

// Trigger starts pipeline runs.
type Trigger interface {
	Run(ctx context.Context, testMode bool) (*models.ScrapeRun, error)
	InFlight() bool
}

type Handler struct {
	history History
	trigger Trigger
	logger  *logrus.Logger

	// runs started from the API use baseCtx so shutdown cancels them
	baseCtx context.Context
	wg      sync.WaitGroup
}

type RunRequest struct {
	TestMode bool `form:"test"`
}

func NewHandler(ctx context.Context, history History, trigger Trigger, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Handler{
		history: history,
		trigger: trigger,
		logger:  logger,
		baseCtx: ctx,
	}
}

func (h *Handler) Health(c *gin.Context) {
	latest, err := h.history.LatestSucceededRun(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to get latest run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get latest run"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"run_in_flight":  h.trigger.InFlight(),
		"last_succeeded": latest,
	})
}

func (h *Handler) ListRuns(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", strconv.Itoa(defaultRunsLimit))
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = defaultRunsLimit
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}

	runs, err := h.history.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs"})
		return
	}

	c.JSON(http.StatusOK, runs)
}

func (h *Handler) GetRun(c *gin.Context) {
	id := c.Param("id")
	run, err := h.history.GetRun(c.Request.Context(), id)
	if errors.Is(err, database.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("run_id", id).Error("Failed to get run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get run"})
		return
	}

	c.JSON(http.StatusOK, run)
}

// TriggerRun starts a run in the background. Only one run is accepted at a time.
func (h *Handler) TriggerRun(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.WithError(err).Error("Failed to parse run request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters"})
		return
	}

	if h.trigger.InFlight() {
		c.JSON(http.StatusConflict, gin.H{"error": "A run is already in progress"})
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		_, err := h.trigger.Run(h.baseCtx, req.TestMode)
		switch {
		case errors.Is(err, lock.ErrLocked):
			h.logger.Warn("Manual run skipped, another run holds the lock")
		case err != nil:
			h.logger.WithError(err).Error("Manual run failed")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"status":    "accepted",
		"test_mode": req.TestMode,
	})
}

func (h *Handler) ListTables(c *gin.Context) {
	tables, err := h.history.ListTables(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list tables")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tables"})
		return
	}

	c.JSON(http.StatusOK, tables)
}

// Wait blocks until runs started through the API have returned.
func (h *Handler) Wait() {
	h.wg.Wait()
}
