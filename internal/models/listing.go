package models

import "time"

// Listing types recognised in the listing-history text.
const (
	ListingTypeAdded   = "added"
	ListingTypeReduced = "reduced"
)

// DefaultPropertyType is used when the info reel carries no property_type entry.
const DefaultPropertyType = "N/A"

// MaxStations is the number of nearest stations kept per listing.
const MaxStations = 3

// ListingReference locates a listing detail page relative to the site base URL.
type ListingReference struct {
	Path string `json:"path"`
}

// RawStation is one nearest-station entry as found in the page model.
type RawStation struct {
	Name     *string
	Distance *float64
}

// RawListing holds the as-scraped fields of one listing before any
// defaulting or type coercion. Loosely typed values keep whatever JSON
// type the page model carried.
type RawListing struct {
	URL         string
	Description string

	ListingHistory *string
	PriceText      *string

	DisplayAddress *string
	Outcode        *string
	Incode         *string
	CompanyName    *string

	Stations []RawStation

	Bedrooms  any
	Bathrooms any
	SizeSqm   any

	TenureType    *string
	LeaseLength   any
	GroundRent    any
	ServiceCharge any

	PropertyType *string

	ScrapedAt time.Time
}

// Listing is the normalized row landed in the daily snapshot.
type Listing struct {
	ID           int64   `json:"id" validate:"required,gt=0"`
	PropertyLink string  `json:"property_link" validate:"required,url"`
	Address      *string `json:"address"`
	Outcode      *string `json:"outcode"`
	Incode       *string `json:"incode"`
	Price        *int64  `json:"price" validate:"omitempty,gte=0"`
	ListingType  *string `json:"listing_type" validate:"omitempty,oneof=added reduced"`

	ListingDate  *time.Time `json:"listing_date"`
	PropertyType string     `json:"property_type" validate:"required"`
	SizeSqm      *float64   `json:"size_sqm"`
	Bedrooms     int        `json:"bedrooms" validate:"gte=0"`
	Bathrooms    *float64   `json:"bathrooms"`

	GroundRent       *float64 `json:"ground_rent"`
	ServiceCharge    *float64 `json:"service_charge"`
	TenureType       *string  `json:"tenure_type"`
	LeaseLengthYears *float64 `json:"lease_length_years"`
	EstateAgent      *string  `json:"estate_agent"`

	NearestStation               *string  `json:"nearest_station"`
	DistanceNearestStation       *float64 `json:"distance_from_nearest_station_miles"`
	SecondNearestStation         *string  `json:"second_nearest_station"`
	DistanceSecondNearestStation *float64 `json:"distance_from_second_nearest_station_miles"`
	ThirdNearestStation          *string  `json:"third_nearest_station"`
	DistanceThirdNearestStation  *float64 `json:"distance_from_third_nearest_station_miles"`

	Description string `json:"description"`
}
