package scraping

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Phil-Grim/london-properties-analysis/internal/models"
)

func TestExtractFullListing(t *testing.T) {
	site := &fixtureSite{listings: map[string]string{
		"/properties/145123456": listingPageHTML("  Two bed flat near the park. ", listingData("£450,000")),
	}}
	srv := httptest.NewServer(site)
	defer srv.Close()

	raw, err := newTestExtractor(t, srv).Extract(context.Background(), models.ListingReference{Path: "/properties/145123456#/?channel=RES_BUY"})
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/properties/145123456#/?channel=RES_BUY", raw.URL)
	assert.Equal(t, "Two bed flat near the park.", raw.Description)
	assert.Equal(t, "Added on 15/03/2024", *raw.ListingHistory)
	assert.Equal(t, "£450,000", *raw.PriceText)
	assert.Equal(t, "Acre Lane, London", *raw.DisplayAddress)
	assert.Equal(t, "SW2", *raw.Outcode)
	assert.Equal(t, "5SP", *raw.Incode)
	assert.Equal(t, "Foxtons", *raw.CompanyName)
	assert.Equal(t, 2.0, raw.Bedrooms)
	assert.Equal(t, 1.0, raw.Bathrooms)
	assert.Equal(t, 65.0, raw.SizeSqm)
	assert.Equal(t, "LEASEHOLD", *raw.TenureType)
	assert.Equal(t, 99.0, raw.LeaseLength)
	assert.Equal(t, 250.0, raw.GroundRent)
	assert.Nil(t, raw.ServiceCharge)
	assert.Equal(t, "Flat", *raw.PropertyType)

	require.Len(t, raw.Stations, 2)
	assert.Equal(t, "Brixton", *raw.Stations[0].Name)
	assert.Equal(t, 0.4, *raw.Stations[0].Distance)
	assert.Equal(t, "Clapham North", *raw.Stations[1].Name)
	assert.False(t, raw.ScrapedAt.IsZero())
}

func TestParseListingErrors(t *testing.T) {
	e, err := NewExtractor(nil, nil, ExtractorOptions{BaseURL: "https://www.rightmove.co.uk"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		body     string
		wantKind string
	}{
		{
			name:     "Missing description",
			body:     listingPageHTML("", listingData("£1")),
			wantKind: "missing_field",
		},
		{
			name:     "Missing page model",
			body:     listingPageHTML("desc", ""),
			wantKind: "source_schema",
		},
		{
			name:     "Malformed page model",
			body:     `<html><script>window.PAGE_MODEL = {"propertyData": {</script><div class="STw8udCxUaBUMfOOZu0iL _3nPVwR0HZYQah5tkVJHFh5">d</div></html>`,
			wantKind: "source_schema",
		},
		{
			name:     "No propertyData key",
			body:     `<html><script>window.PAGE_MODEL = {"other": {}}</script><div class="STw8udCxUaBUMfOOZu0iL _3nPVwR0HZYQah5tkVJHFh5">d</div></html>`,
			wantKind: "source_schema",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Parse("https://www.rightmove.co.uk/properties/1234567", []byte(tt.body))
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, models.ErrorKind(err))
		})
	}
}

func TestParseListingOptionalFields(t *testing.T) {
	e, err := NewExtractor(nil, nil, ExtractorOptions{BaseURL: "https://www.rightmove.co.uk"})
	require.NoError(t, err)

	data := `{
		"nearestStations": [{"name": "Oval"}, "bogus", {"name": "Kennington", "distance": 0.9}, {"name": "Fourth", "distance": 2}],
		"sizings": [{"unit": "sqft", "minimumSize": 700}],
		"infoReelItems": [{"type": "PRICE", "primaryText": "x"}]
	}`
	raw, err := e.Parse("https://www.rightmove.co.uk/properties/1234567", []byte(listingPageHTML("d", data)))
	require.NoError(t, err)

	require.Len(t, raw.Stations, 3)
	assert.Equal(t, "Oval", *raw.Stations[0].Name)
	assert.Nil(t, raw.Stations[0].Distance)
	assert.Nil(t, raw.Stations[1].Name)
	assert.Equal(t, "Kennington", *raw.Stations[2].Name)

	assert.Nil(t, raw.SizeSqm)
	assert.Nil(t, raw.PropertyType)
	assert.Nil(t, raw.PriceText)
	assert.Nil(t, raw.Bedrooms)
	assert.Nil(t, raw.TenureType)
	assert.Nil(t, raw.ListingHistory)
}

func TestExtractRetriesTemporaryFailureOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(listingPageHTML("d", listingData("£1"))))
	}))
	defer srv.Close()

	_, err := newTestExtractor(t, srv).Extract(context.Background(), models.ListingReference{Path: "/properties/1234567"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExtractNotFoundIsNotRetried(t *testing.T) {
	site := &fixtureSite{listings: map[string]string{}}
	srv := httptest.NewServer(site)
	defer srv.Close()

	_, err := newTestExtractor(t, srv).Extract(context.Background(), models.ListingReference{Path: "/properties/1234567"})
	var fetchErr *models.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
}

func TestNewExtractorRejectsRelativeBase(t *testing.T) {
	_, err := NewExtractor(nil, nil, ExtractorOptions{BaseURL: "/relative"})
	assert.Error(t, err)
}
