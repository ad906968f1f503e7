// Package normalize maps as-scraped listings into the strict snapshot row.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Phil-Grim/london-properties-analysis/internal/models"
)

// HistoryDateLayout is the DD/MM/YYYY form used in listing-history text.
const HistoryDateLayout = "02/01/2006"

var idPattern = regexp.MustCompile(`[0-9]{7,15}`)

var errNotNumeric = errors.New("not numeric")

// Normalizer is a pure transform from RawListing to Listing. RunDate anchors
// the relative words "today" and "yesterday".
type Normalizer struct {
	RunDate time.Time
}

func New(runDate time.Time) *Normalizer {
	return &Normalizer{RunDate: runDate}
}

// Normalize applies the per-field rules. Only an unparseable id or price
// fails the row; every other field degrades to nil or its default.
func (n *Normalizer) Normalize(raw *models.RawListing) (*models.Listing, error) {
	id, err := ParseID(raw.URL)
	if err != nil {
		return nil, &models.FieldParseError{URL: raw.URL, Field: "id", Value: raw.URL, Err: err}
	}

	price, err := ParsePrice(raw.PriceText)
	if err != nil {
		return nil, &models.FieldParseError{URL: raw.URL, Field: "price", Value: *raw.PriceText, Err: err}
	}

	l := &models.Listing{
		ID:           id,
		PropertyLink: raw.URL,
		Address:      raw.DisplayAddress,
		Outcode:      raw.Outcode,
		Incode:       raw.Incode,
		Price:        price,
		ListingType:  ListingType(raw.ListingHistory),
		ListingDate:  ResolveDate(raw.ListingHistory, n.RunDate),
		PropertyType: models.DefaultPropertyType,
		SizeSqm:      toFloat(raw.SizeSqm),
		Bedrooms:     bedrooms(raw.Bedrooms),
		Bathrooms:    toFloat(raw.Bathrooms),

		GroundRent:       toFloat(raw.GroundRent),
		ServiceCharge:    toFloat(raw.ServiceCharge),
		TenureType:       raw.TenureType,
		LeaseLengthYears: leaseLength(raw.LeaseLength),
		EstateAgent:      raw.CompanyName,

		Description: raw.Description,
	}
	if raw.PropertyType != nil && strings.TrimSpace(*raw.PropertyType) != "" {
		l.PropertyType = strings.TrimSpace(*raw.PropertyType)
	}

	names := []**string{&l.NearestStation, &l.SecondNearestStation, &l.ThirdNearestStation}
	dists := []**float64{&l.DistanceNearestStation, &l.DistanceSecondNearestStation, &l.DistanceThirdNearestStation}
	for i, st := range raw.Stations {
		if i >= models.MaxStations {
			break
		}
		*names[i] = st.Name
		if st.Distance != nil {
			d := round2(*st.Distance)
			*dists[i] = &d
		}
	}

	return l, nil
}

// ParseID takes the first 7-15 digit run of a listing URL.
func ParseID(rawURL string) (int64, error) {
	digits := idPattern.FindString(rawURL)
	if digits == "" {
		return 0, errors.New("no listing id in url")
	}
	return strconv.ParseInt(digits, 10, 64)
}

// ParsePrice strips the currency symbol and thousands separators. A nil
// text is an absent price, not an error.
func ParsePrice(text *string) (*int64, error) {
	if text == nil {
		return nil, nil
	}
	clean := strings.NewReplacer("£", "", ",", "").Replace(strings.TrimSpace(*text))
	v, err := strconv.ParseInt(strings.TrimSpace(clean), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", errNotNumeric, *text)
	}
	return &v, nil
}

// ListingType is the lower-cased first word of the history text when it is
// "added" or "reduced".
func ListingType(history *string) *string {
	if history == nil {
		return nil
	}
	fields := strings.Fields(*history)
	if len(fields) == 0 {
		return nil
	}
	switch t := strings.ToLower(fields[0]); t {
	case models.ListingTypeAdded, models.ListingTypeReduced:
		return &t
	}
	return nil
}

// ResolveDate reads the last word of the history text as today, yesterday
// or a DD/MM/YYYY date. Anything else resolves to nil.
func ResolveDate(history *string, runDate time.Time) *time.Time {
	if history == nil {
		return nil
	}
	fields := strings.Fields(*history)
	if len(fields) == 0 {
		return nil
	}
	day := time.Date(runDate.Year(), runDate.Month(), runDate.Day(), 0, 0, 0, 0, time.UTC)

	var d time.Time
	switch token := strings.ToLower(fields[len(fields)-1]); token {
	case "today":
		d = day
	case "yesterday":
		d = day.AddDate(0, 0, -1)
	default:
		parsed, err := time.ParseInLocation(HistoryDateLayout, token, time.UTC)
		if err != nil {
			return nil
		}
		d = parsed
	}
	return &d
}

func bedrooms(v any) int {
	f := toFloat(v)
	if f == nil || *f < 0 {
		return 0
	}
	return int(*f)
}

func leaseLength(v any) *float64 {
	f := toFloat(v)
	if f == nil || *f == 0 {
		return nil
	}
	return f
}

// toFloat coerces a JSON scalar to float64. nil, NaN and unparseable
// values give nil.
func toFloat(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(x), ",", ""), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
