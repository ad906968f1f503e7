package scraping

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Phil-Grim/london-properties-analysis/internal/fetch"
)

func resultPageHTML(count string, hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	if count != "" {
		fmt.Fprintf(&b, `<span class="searchHeader-resultCount">%s</span>`, count)
	}
	for _, href := range hrefs {
		fmt.Fprintf(&b, `<div class="l-searchResult is-list"><a class="propertyCard-priceLink propertyCard-salePrice" href="%s">price</a></div>`, href)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func listingPageHTML(description, propertyData string) string {
	var b strings.Builder
	b.WriteString("<html><head>")
	b.WriteString(`<script>window.analytics = {};</script>`)
	if propertyData != "" {
		fmt.Fprintf(&b, `<script>window.PAGE_MODEL = {"propertyData":%s,"metadata":{}}
window.adInfo = {"x": 1};</script>`, propertyData)
	}
	b.WriteString("</head><body>")
	if description != "" {
		fmt.Fprintf(&b, `<div class="STw8udCxUaBUMfOOZu0iL _3nPVwR0HZYQah5tkVJHFh5">%s</div>`, description)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func listingData(price string) string {
	return fmt.Sprintf(`{
		"listingHistory": {"listingUpdateReason": "Added on 15/03/2024"},
		"prices": {"primaryPrice": %q},
		"address": {"displayAddress": "Acre Lane, London", "outcode": "SW2", "incode": "5SP"},
		"customer": {"companyName": "Foxtons"},
		"nearestStations": [{"name": "Brixton", "distance": 0.4}, {"name": "Clapham North", "distance": 0.7}],
		"bedrooms": 2,
		"bathrooms": 1,
		"sizings": [{"unit": "sqft", "minimumSize": 700}, {"unit": "sqm", "minimumSize": 65}],
		"tenure": {"tenureType": "LEASEHOLD", "yearsRemainingOnLease": 99},
		"livingCosts": {"annualGroundRent": 250, "annualServiceCharge": null},
		"infoReelItems": [{"type": "PRICE", "primaryText": "x"}, {"type": "PROPERTY_TYPE", "primaryText": "Flat"}]
	}`, price)
}

// fixtureSite serves search result pages keyed by the index parameter and
// listing pages keyed by path.
type fixtureSite struct {
	mu        sync.Mutex
	results   map[string]string
	listings  map[string]string
	failIndex map[string]int
	requested []string
}

func (s *fixtureSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.URL.Path == "/property-for-sale/find.html" {
		index := r.URL.Query().Get("index")
		s.requested = append(s.requested, index)
		if code, ok := s.failIndex[index]; ok {
			w.WriteHeader(code)
			return
		}
		body, ok := s.results[index]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
		return
	}

	body, ok := s.listings[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write([]byte(body))
}

func (s *fixtureSite) requestedIndexes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requested...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestPaginator(t *testing.T, srv *httptest.Server) *Paginator {
	t.Helper()
	retrier := &fetch.Retrier{Attempts: 1, Sleep: noSleep}
	p := NewPaginator(fetch.NewClient(time.Second, "test"), retrier, PaginatorOptions{
		SearchURL: srv.URL + "/property-for-sale/find.html",
	}, quietLogger())
	p.sleep = noSleep
	return p
}

func newTestExtractor(t *testing.T, srv *httptest.Server) *Extractor {
	t.Helper()
	retrier := &fetch.Retrier{Attempts: 2, Sleep: noSleep}
	e, err := NewExtractor(fetch.NewClient(time.Second, "test"), retrier, ExtractorOptions{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	return e
}
