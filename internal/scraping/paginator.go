package scraping

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Phil-Grim/london-properties-analysis/internal/fetch"
	"github.com/Phil-Grim/london-properties-analysis/internal/models"
	"github.com/Phil-Grim/london-properties-analysis/internal/search"
)

// Selectors of the search results page.
const (
	resultCountSelector = "span.searchHeader-resultCount"
	resultCardSelector  = "div.l-searchResult.is-list"
	cardLinkSelector    = "a.propertyCard-priceLink.propertyCard-salePrice"
)

// ErrDiscoveryConsumed is yielded when a Discovery is ranged over a second time.
var ErrDiscoveryConsumed = errors.New("discovery already consumed")

// Fetcher retrieves a page body.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// PlanError wraps a failure to plan the crawl from page 0. No listing
// can be discovered after it.
type PlanError struct {
	Err error
}

func (e *PlanError) Error() string { return "failed to plan crawl: " + e.Err.Error() }

func (e *PlanError) Unwrap() error { return e.Err }

// Paginator walks the result pages of a search, sequentially and with a
// politeness delay between page requests.
type Paginator struct {
	fetcher   Fetcher
	retrier   *fetch.Retrier
	searchURL string
	delayMin  time.Duration
	delayMax  time.Duration
	logger    *logrus.Logger

	// sleep waits between pages; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// PaginatorOptions configures a Paginator.
type PaginatorOptions struct {
	SearchURL string
	DelayMin  time.Duration
	DelayMax  time.Duration
}

func NewPaginator(fetcher Fetcher, retrier *fetch.Retrier, opts PaginatorOptions, logger *logrus.Logger) *Paginator {
	if logger == nil {
		logger = newDefaultLogger()
	}
	if retrier == nil {
		retrier = &fetch.Retrier{Attempts: 1}
	}
	searchURL := opts.SearchURL
	if searchURL == "" {
		searchURL = search.DefaultSearchURL
	}
	return &Paginator{
		fetcher:   fetcher,
		retrier:   retrier,
		searchURL: searchURL,
		delayMin:  opts.DelayMin,
		delayMax:  opts.DelayMax,
		logger:    logger,
		sleep:     fetch.Sleep,
	}
}

// Discovery is a single forward-only pass over the references of a search.
type Discovery struct {
	p        *Paginator
	ctx      context.Context
	criteria search.Criteria
	maxPages *int

	resultCount atomic.Int64
	pageCount   atomic.Int64
	consumed    atomic.Bool
}

// Discover prepares a crawl of c. Nothing is fetched until the returned
// Discovery is ranged over. maxPages, when set, caps how many pages after
// page 0 are fetched.
func (p *Paginator) Discover(ctx context.Context, c search.Criteria, maxPages *int) *Discovery {
	return &Discovery{p: p, ctx: ctx, criteria: c, maxPages: maxPages}
}

// ResultCount is the advertised total, known once page 0 has been read.
func (d *Discovery) ResultCount() int { return int(d.resultCount.Load()) }

// PageCount is the planned number of pages including page 0.
func (d *Discovery) PageCount() int { return int(d.pageCount.Load()) }

// References yields listing references page by page. Page 0 only
// supplies the result count; its cards are not yielded. The first card of
// every later page is a featured listing and is skipped.
//
// A *PlanError ends the sequence. Errors on later pages are yielded and
// the walk continues with the next page.
func (d *Discovery) References() iter.Seq2[models.ListingReference, error] {
	return func(yield func(models.ListingReference, error) bool) {
		if !d.consumed.CompareAndSwap(false, true) {
			yield(models.ListingReference{}, ErrDiscoveryConsumed)
			return
		}
		d.walk(yield)
	}
}

func (d *Discovery) walk(yield func(models.ListingReference, error) bool) {
	p := d.p
	ctx := d.ctx

	firstURL, err := search.BuildURL(p.searchURL, d.criteria.WithPage(0))
	if err != nil {
		yield(models.ListingReference{}, &PlanError{Err: err})
		return
	}

	body, err := p.fetchPage(ctx, firstURL)
	if err != nil {
		yield(models.ListingReference{}, &PlanError{Err: err})
		return
	}

	total, err := ParseResultCount(body)
	if err != nil {
		yield(models.ListingReference{}, &PlanError{Err: &models.SourceSchemaError{URL: firstURL, What: "result count", Err: err}})
		return
	}
	pages := search.PageCount(total)
	d.resultCount.Store(int64(total))
	d.pageCount.Store(int64(pages))

	last := pages - 1
	if d.maxPages != nil && *d.maxPages < last {
		last = *d.maxPages
	}

	p.logger.WithFields(logrus.Fields{
		"result_count":   total,
		"page_count":     pages,
		"pages_to_crawl": last,
	}).Info("Planned result pages")

	for page := 1; page <= last; page++ {
		if err := p.sleep(ctx, fetch.Jitter(p.delayMin, p.delayMax)); err != nil {
			return
		}

		pageURL, err := search.BuildURL(p.searchURL, d.criteria.WithPage(page))
		if err != nil {
			yield(models.ListingReference{}, err)
			return
		}

		body, err := p.fetchPage(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !yield(models.ListingReference{}, fmt.Errorf("result page %d: %w", page, err)) {
				return
			}
			continue
		}

		refs, skipped, err := ParseResultPage(body)
		if err != nil {
			if !yield(models.ListingReference{}, &models.SourceSchemaError{URL: pageURL, What: "result cards", Err: err}) {
				return
			}
			continue
		}
		p.logger.WithFields(logrus.Fields{
			"page":       page,
			"references": len(refs),
			"skipped":    skipped,
		}).Debug("Parsed result page")

		for _, ref := range refs {
			if !yield(ref, nil) {
				return
			}
		}
	}
}

func (p *Paginator) fetchPage(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := p.retrier.Do(ctx, "result-page", func(ctx context.Context) error {
		b, err := p.fetcher.Get(ctx, url)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	return body, err
}

// ParseResultCount reads the advertised number of results, e.g. "1,234".
func ParseResultCount(body []byte) (int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, err
	}

	sel := doc.Find(resultCountSelector).First()
	if sel.Length() == 0 {
		return 0, fmt.Errorf("%s not found", resultCountSelector)
	}

	text := strings.ReplaceAll(strings.TrimSpace(sel.Text()), ",", "")
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("result count %q: %w", text, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative result count %d", n)
	}
	return n, nil
}

// ParseResultPage returns one reference per result card after the first.
// Cards without a link are counted in skipped.
func ParseResultPage(body []byte) (refs []models.ListingReference, skipped int, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}

	doc.Find(resultCardSelector).Each(func(i int, card *goquery.Selection) {
		if i == 0 {
			return
		}
		href, _ := card.Find(cardLinkSelector).First().Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			skipped++
			return
		}
		refs = append(refs, models.ListingReference{Path: href})
	})
	return refs, skipped, nil
}
