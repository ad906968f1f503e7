package scraping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Phil-Grim/london-properties-analysis/internal/fetch"
	"github.com/Phil-Grim/london-properties-analysis/internal/models"
)

// pageModelMarker precedes the JSON page model in a listing page script.
const pageModelMarker = "PAGE_MODEL = "

// DefaultDescriptionSelector locates the free-text description block.
const DefaultDescriptionSelector = "div.STw8udCxUaBUMfOOZu0iL._3nPVwR0HZYQah5tkVJHFh5"

// Extractor fetches listing detail pages and lifts their fields into a RawListing.
type Extractor struct {
	fetcher             Fetcher
	retrier             *fetch.Retrier
	base                *url.URL
	descriptionSelector string
	now                 func() time.Time
}

// ExtractorOptions configures an Extractor.
type ExtractorOptions struct {
	BaseURL             string
	DescriptionSelector string
}

func NewExtractor(fetcher Fetcher, retrier *fetch.Retrier, opts ExtractorOptions) (*Extractor, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", opts.BaseURL)
	}
	if retrier == nil {
		retrier = &fetch.Retrier{Attempts: 1}
	}
	selector := opts.DescriptionSelector
	if selector == "" {
		selector = DefaultDescriptionSelector
	}
	return &Extractor{
		fetcher:             fetcher,
		retrier:             retrier,
		base:                base,
		descriptionSelector: selector,
		now:                 time.Now,
	}, nil
}

// ResolveURL turns a listing reference into an absolute URL.
func (e *Extractor) ResolveURL(ref models.ListingReference) (string, error) {
	rel, err := url.Parse(strings.TrimSpace(ref.Path))
	if err != nil {
		return "", fmt.Errorf("invalid listing path %q: %w", ref.Path, err)
	}
	return e.base.ResolveReference(rel).String(), nil
}

// Extract fetches and parses one listing. Transient fetch failures are
// retried by the Extractor's retrier before a *models.FetchError is returned.
func (e *Extractor) Extract(ctx context.Context, ref models.ListingReference) (*models.RawListing, error) {
	if strings.TrimSpace(ref.Path) == "" {
		return nil, errors.New("empty listing reference")
	}
	pageURL, err := e.ResolveURL(ref)
	if err != nil {
		return nil, err
	}

	var body []byte
	err = e.retrier.Do(ctx, "listing", func(ctx context.Context) error {
		b, err := e.fetcher.Get(ctx, pageURL)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	return e.Parse(pageURL, body)
}

// Parse lifts the raw fields out of a listing page body.
func (e *Extractor) Parse(pageURL string, body []byte) (*models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &models.SourceSchemaError{URL: pageURL, What: "html", Err: err}
	}

	desc := doc.Find(e.descriptionSelector).First()
	if desc.Length() == 0 {
		return nil, &models.MissingFieldError{URL: pageURL, Field: "description"}
	}

	model, err := pageModel(doc)
	if err != nil {
		return nil, &models.SourceSchemaError{URL: pageURL, What: "page model", Err: err}
	}
	data, ok := model["propertyData"].(map[string]any)
	if !ok {
		return nil, &models.SourceSchemaError{URL: pageURL, What: "page model", Err: errors.New("propertyData missing")}
	}

	raw := &models.RawListing{
		URL:         pageURL,
		Description: strings.TrimSpace(desc.Text()),
		ScrapedAt:   e.now(),

		ListingHistory: lookupString(data, "listingHistory", "listingUpdateReason"),
		PriceText:      lookupString(data, "prices", "primaryPrice"),

		DisplayAddress: lookupString(data, "address", "displayAddress"),
		Outcode:        lookupString(data, "address", "outcode"),
		Incode:         lookupString(data, "address", "incode"),
		CompanyName:    lookupString(data, "customer", "companyName"),

		Stations: stations(data),

		Bedrooms:  lookupValue(data, "bedrooms"),
		Bathrooms: lookupValue(data, "bathrooms"),
		SizeSqm:   sqmSize(data),

		TenureType:    lookupString(data, "tenure", "tenureType"),
		LeaseLength:   lookupValue(data, "tenure", "yearsRemainingOnLease"),
		GroundRent:    lookupValue(data, "livingCosts", "annualGroundRent"),
		ServiceCharge: lookupValue(data, "livingCosts", "annualServiceCharge"),

		PropertyType: propertyTypeLabel(data),
	}
	return raw, nil
}

// pageModel decodes the first JSON value following the PAGE_MODEL marker.
func pageModel(doc *goquery.Document) (map[string]any, error) {
	var script string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if strings.Contains(text, pageModelMarker) {
			script = text
			return false
		}
		return true
	})
	if script == "" {
		return nil, errors.New("no script assigns PAGE_MODEL")
	}

	_, payload, _ := strings.Cut(script, pageModelMarker)
	var model map[string]any
	if err := json.NewDecoder(strings.NewReader(strings.TrimSpace(payload))).Decode(&model); err != nil {
		return nil, fmt.Errorf("malformed PAGE_MODEL: %w", err)
	}
	if model == nil {
		return nil, errors.New("PAGE_MODEL is null")
	}
	return model, nil
}

// stations keeps up to MaxStations nearest-station entries. A missing
// entry at index n leaves earlier entries intact.
func stations(data map[string]any) []models.RawStation {
	list := lookupList(data, "nearestStations")
	out := make([]models.RawStation, 0, models.MaxStations)
	for i := 0; i < models.MaxStations && i < len(list); i++ {
		obj, ok := listObject(list, i)
		if !ok {
			out = append(out, models.RawStation{})
			continue
		}
		st := models.RawStation{Name: lookupString(obj, "name")}
		if d, ok := obj["distance"].(float64); ok {
			st.Distance = &d
		}
		out = append(out, st)
	}
	return out
}

// sqmSize returns minimumSize of the first sizing in square metres.
func sqmSize(data map[string]any) any {
	obj, ok := findObject(lookupList(data, "sizings"), "unit", "sqm")
	if !ok {
		return nil
	}
	return obj["minimumSize"]
}

// propertyTypeLabel returns the info reel entry tagged property_type.
func propertyTypeLabel(data map[string]any) *string {
	obj, ok := findObject(lookupList(data, "infoReelItems"), "type", "property_type")
	if !ok {
		return nil
	}
	return lookupString(obj, "primaryText")
}
