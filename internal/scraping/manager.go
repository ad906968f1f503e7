package scraping

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Phil-Grim/london-properties-analysis/internal/models"
	"github.com/Phil-Grim/london-properties-analysis/internal/normalize"
	"github.com/Phil-Grim/london-properties-analysis/internal/queue"
	"github.com/Phil-Grim/london-properties-analysis/internal/search"
)

func newDefaultLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	return logger
}

// Crawler runs one crawl: sequential discovery feeding a bounded pool of
// extraction workers.
type Crawler struct {
	paginator *Paginator
	extractor *Extractor
	workers   int
	limiter   *rate.Limiter
	logger    *logrus.Logger
}

// CrawlParams contains parameters for one crawl
type CrawlParams struct {
	Criteria search.Criteria `json:"criteria"`
	MaxPages *int            `json:"max_pages"` // optional cap on pages after page 0
	RunDate  time.Time       `json:"run_date"`
}

// CrawlResult holds the normalized rows of a crawl and its counters.
type CrawlResult struct {
	Rows  []*models.Listing
	Stats models.CrawlStats
}

// NewCrawler creates a crawler with the given pool size. requestsPerSecond
// paces listing fetches across all workers; zero or less disables pacing.
func NewCrawler(p *Paginator, e *Extractor, workers int, requestsPerSecond float64, logger *logrus.Logger) *Crawler {
	if logger == nil {
		logger = newDefaultLogger()
	}
	if workers < 1 {
		workers = 1
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Crawler{
		paginator: p,
		extractor: e,
		workers:   workers,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
	}
}

// Crawl discovers listing references and extracts them in parallel. A
// per-listing failure is logged, counted and skipped. A *PlanError or
// context cancellation ends the crawl with an error; the partial result is
// still returned alongside it.
func (c *Crawler) Crawl(ctx context.Context, params CrawlParams) (*CrawlResult, error) {
	c.logger.WithFields(logrus.Fields{
		"location":  params.Criteria.LocationIdentifier,
		"max_pages": params.MaxPages,
		"workers":   c.workers,
	}).Info("Starting crawl")

	result := &CrawlResult{Stats: models.CrawlStats{FailuresByKind: make(map[string]int)}}
	var statsMu sync.Mutex

	q := queue.NewListingQueue(c.workers*2, c.logger)
	q.Subscribe(func(l *models.Listing) error {
		result.Rows = append(result.Rows, l)
		return nil
	})
	q.Start()

	normalizer := normalize.New(params.RunDate)
	refs := make(chan models.ListingReference)

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range refs {
				listing, err := c.process(ctx, normalizer, ref)
				if err != nil {
					if ctx.Err() != nil {
						continue
					}
					c.logger.WithError(err).WithFields(logrus.Fields{
						"path": ref.Path,
						"kind": models.ErrorKind(err),
					}).Warn("Skipping listing")
					statsMu.Lock()
					result.Stats.RecordFailure(err)
					statsMu.Unlock()
					continue
				}
				if err := q.Push(ctx, listing); err != nil {
					continue
				}
				statsMu.Lock()
				result.Stats.Extracted++
				statsMu.Unlock()
			}
		}()
	}

	discovery := c.paginator.Discover(ctx, params.Criteria, params.MaxPages)
	crawlErr := c.dispatch(ctx, discovery, refs, &result.Stats, &statsMu)

	close(refs)
	wg.Wait()
	_ = q.Close()

	result.Stats.ResultCount = discovery.ResultCount()
	result.Stats.PagesPlanned = discovery.PageCount()

	fields := logrus.Fields{
		"result_count": result.Stats.ResultCount,
		"discovered":   result.Stats.Discovered,
		"extracted":    result.Stats.Extracted,
		"failed":       result.Stats.Failed,
		"pages_failed": result.Stats.PagesFailed,
	}
	if crawlErr != nil {
		c.logger.WithError(crawlErr).WithFields(fields).Error("Crawl aborted")
		return result, crawlErr
	}
	c.logger.WithFields(fields).Info("Crawl completed")
	return result, nil
}

// dispatch feeds references to the workers, checking for cancellation
// between dispatches.
func (c *Crawler) dispatch(ctx context.Context, d *Discovery, refs chan<- models.ListingReference, stats *models.CrawlStats, mu *sync.Mutex) error {
	for ref, err := range d.References() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("crawl cancelled: %w", ctxErr)
		}
		if err != nil {
			var planErr *PlanError
			if errors.As(err, &planErr) {
				return err
			}
			c.logger.WithError(err).WithField("kind", models.ErrorKind(err)).Warn("Skipping result page")
			mu.Lock()
			stats.PagesFailed++
			mu.Unlock()
			continue
		}

		mu.Lock()
		stats.Discovered++
		mu.Unlock()

		select {
		case refs <- ref:
		case <-ctx.Done():
			return fmt.Errorf("crawl cancelled: %w", ctx.Err())
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("crawl cancelled: %w", ctxErr)
	}
	return nil
}

func (c *Crawler) process(ctx context.Context, n *normalize.Normalizer, ref models.ListingReference) (*models.Listing, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	raw, err := c.extractor.Extract(ctx, ref)
	if err != nil {
		return nil, err
	}
	return n.Normalize(raw)
}
