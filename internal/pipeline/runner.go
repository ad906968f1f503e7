// Package pipeline runs one daily ingest end to end: crawl, land the
// snapshot, record the run and tell whoever is listening.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Phil-Grim/london-properties-analysis/internal/lock"
	"github.com/Phil-Grim/london-properties-analysis/internal/models"
	"github.com/Phil-Grim/london-properties-analysis/internal/notify"
	"github.com/Phil-Grim/london-properties-analysis/internal/processor"
	"github.com/Phil-Grim/london-properties-analysis/internal/scraping"
	"github.com/Phil-Grim/london-properties-analysis/internal/search"
	"github.com/Phil-Grim/london-properties-analysis/internal/storage"
)

// testModePages is how many pages after page 0 a test run crawls.
const testModePages = 1

type Crawler interface {
	Crawl(ctx context.Context, params scraping.CrawlParams) (*scraping.CrawlResult, error)
}

type Ingester interface {
	Ingest(ctx context.Context, runDate time.Time, rows []*models.Listing) (*processor.IngestResult, error)
}

type RunStore interface {
	SaveRun(ctx context.Context, run *models.ScrapeRun) error
}

// Runner executes pipeline runs. Runs for the same date never overlap.
type Runner struct {
	crawler    Crawler
	ingester   Ingester
	runs       RunStore
	locker     lock.Locker
	notifier   notify.Notifier
	criteria   search.Criteria
	runTimeout time.Duration
	logger     *logrus.Logger

	inFlight atomic.Int32
	now      func() time.Time
}

// Options holds the collaborators of a Runner. Notifier may be nil.
type Options struct {
	Crawler    Crawler
	Ingester   Ingester
	Runs       RunStore
	Locker     lock.Locker
	Notifier   notify.Notifier
	Criteria   search.Criteria
	RunTimeout time.Duration
}

func NewRunner(opts Options, logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	locker := opts.Locker
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &Runner{
		crawler:    opts.Crawler,
		ingester:   opts.Ingester,
		runs:       opts.Runs,
		locker:     locker,
		notifier:   opts.Notifier,
		criteria:   opts.Criteria,
		runTimeout: opts.RunTimeout,
		logger:     logger,
		now:        time.Now,
	}
}

// InFlight reports whether this Runner is executing a run.
func (r *Runner) InFlight() bool {
	return r.inFlight.Load() > 0
}

// RunDate is the snapshot date for a run started at t: the local calendar
// day, as UTC midnight.
func RunDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Run crawls, ingests and records one run. The returned run is non-nil
// whenever it was recorded, including failed runs. lock.ErrLocked is
// returned without a run when another run for the same date holds the lock.
func (r *Runner) Run(ctx context.Context, testMode bool) (*models.ScrapeRun, error) {
	started := r.now()
	runDate := RunDate(started)
	dateKey := runDate.Format(storage.DateLayout)

	release, err := r.locker.Acquire(ctx, dateKey)
	if err != nil {
		return nil, err
	}
	r.inFlight.Add(1)
	defer func() {
		r.inFlight.Add(-1)
		if err := release(context.WithoutCancel(ctx)); err != nil {
			r.logger.WithError(err).WithField("run_date", dateKey).Warn("Failed to release run lock")
		}
	}()

	if r.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.runTimeout)
		defer cancel()
	}

	run := &models.ScrapeRun{
		ID:        uuid.NewString(),
		RunDate:   dateKey,
		TestMode:  testMode,
		Status:    models.RunStatusRunning,
		StartedAt: started,
	}
	log := r.logger.WithFields(logrus.Fields{
		"run_id":    run.ID,
		"run_date":  dateKey,
		"test_mode": testMode,
	})
	if err := r.runs.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	log.Info("Run started")

	runErr := r.execute(ctx, run, runDate, testMode)
	r.finish(ctx, run, runErr)

	if runErr != nil {
		log.WithError(runErr).Error("Run failed")
		return run, runErr
	}
	log.WithFields(logrus.Fields{
		"extracted": run.Extracted,
		"uri":       run.ArtifactPath,
	}).Info("Run succeeded")
	return run, nil
}

func (r *Runner) execute(ctx context.Context, run *models.ScrapeRun, runDate time.Time, testMode bool) error {
	params := scraping.CrawlParams{Criteria: r.criteria, RunDate: runDate}
	if testMode {
		pages := testModePages
		params.MaxPages = &pages
	}

	result, err := r.crawler.Crawl(ctx, params)
	if result != nil {
		applyStats(run, result.Stats)
	}
	if err != nil {
		// a partial crawl is not a snapshot
		return fmt.Errorf("crawl: %w", err)
	}

	landed, err := r.ingester.Ingest(ctx, runDate, result.Rows)
	if landed != nil {
		run.ArtifactPath = landed.URI
	}
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	return nil
}

// finish records the outcome and notifies. Both outlive a cancelled run.
func (r *Runner) finish(ctx context.Context, run *models.ScrapeRun, runErr error) {
	ctx = context.WithoutCancel(ctx)

	finished := r.now()
	run.FinishedAt = &finished
	run.Status = models.RunStatusSucceeded
	if runErr != nil {
		run.Status = models.RunStatusFailed
		run.Error = runErr.Error()
	}

	if err := r.runs.SaveRun(ctx, run); err != nil {
		r.logger.WithError(err).WithField("run_id", run.ID).Error("Failed to record run outcome")
	}
	if r.notifier == nil {
		return
	}
	if err := r.notifier.NotifyRun(ctx, run); err != nil {
		r.logger.WithError(err).WithField("run_id", run.ID).Warn("Run notification failed")
	}
}

func applyStats(run *models.ScrapeRun, s models.CrawlStats) {
	run.ResultCount = s.ResultCount
	run.PagesPlanned = s.PagesPlanned
	run.PagesFailed = s.PagesFailed
	run.Discovered = s.Discovered
	run.Extracted = s.Extracted
	run.Failed = s.Failed
	run.FailuresByKind = s.FailuresByKind
}
