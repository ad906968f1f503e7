package search

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Phil-Grim/london-properties-analysis/internal/models"
)

// PageSize is the number of results the source returns per page.
const PageSize = 48

// DefaultSearchURL is the property-for-sale search endpoint.
const DefaultSearchURL = "https://www.rightmove.co.uk/property-for-sale/find.html"

// Property types accepted by the search endpoint.
const (
	Bungalow     = "bungalow"
	Detached     = "detached"
	Flat         = "flat"
	ParkHome     = "park-home"
	SemiDetached = "semi-detached"
	Terraced     = "terraced"
)

// AllPropertyTypes is the default property type filter.
var AllPropertyTypes = []string{Bungalow, Detached, Flat, ParkHome, SemiDetached, Terraced}

var validate = validator.New()

// Criteria are the filters of one search. Build with NewCriteria; a zero
// MaxDaysSinceAdded means the filter is unset.
type Criteria struct {
	LocationIdentifier string   `validate:"required"`
	PropertyTypes      []string `validate:"dive,oneof=bungalow detached flat park-home semi-detached terraced"`
	MaxDaysSinceAdded  int      `validate:"oneof=0 1 3 7 14"`
	Keywords           string
	PageIndex          int `validate:"gte=0"`
}

// NewCriteria validates the filters and returns criteria for page 0.
// Property types are de-duplicated and sorted.
func NewCriteria(location string, propertyTypes []string, maxDaysSinceAdded int, keywords string) (Criteria, error) {
	types := slices.Clone(propertyTypes)
	slices.Sort(types)
	types = slices.Compact(types)

	c := Criteria{
		LocationIdentifier: strings.TrimSpace(location),
		PropertyTypes:      types,
		MaxDaysSinceAdded:  maxDaysSinceAdded,
		Keywords:           keywords,
	}
	if err := c.Validate(); err != nil {
		return Criteria{}, err
	}
	return c, nil
}

// Validate returns an *models.InvalidCriteriaError for the first failing field.
func (c Criteria) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := fe.Tag()
		if fe.Param() != "" {
			reason = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
		}
		return &models.InvalidCriteriaError{Field: fe.Field(), Value: fe.Value(), Reason: reason}
	}
	return &models.InvalidCriteriaError{Field: "criteria", Reason: err.Error()}
}

// WithPage returns a copy of c positioned at the given zero-based page.
func (c Criteria) WithPage(page int) Criteria {
	c.PropertyTypes = slices.Clone(c.PropertyTypes)
	c.PageIndex = page
	return c
}

// BuildURL renders the search URL for c against the endpoint at base.
// The index parameter is the result offset of the page.
func BuildURL(base string, c Criteria) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid search endpoint %q: %w", base, err)
	}

	maxDays := ""
	if c.MaxDaysSinceAdded != 0 {
		maxDays = strconv.Itoa(c.MaxDaysSinceAdded)
	}

	params := url.Values{
		"locationIdentifier":        []string{c.LocationIdentifier},
		"index":                     []string{strconv.Itoa(c.PageIndex * PageSize)},
		"propertyTypes":             []string{strings.Join(c.PropertyTypes, ",")},
		"maxDaysSinceAdded":         []string{maxDays},
		"numberOfPropertiesPerPage": []string{strconv.Itoa(PageSize)},
		"keywords":                  []string{c.Keywords},
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// PageCount is the number of result pages needed for total results.
func PageCount(total int) int {
	if total <= 0 {
		return 0
	}
	return (total + PageSize - 1) / PageSize
}
