// Package artifact serializes a day's listings into the snapshot file
// formats: Parquet for accepted batches, CSV for rejected ones.
package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/Phil-Grim/london-properties-analysis/internal/models"
)

const secondsPerDay = 24 * 60 * 60

// Row is the Parquet layout of one listing. Pointer fields are optional
// columns. Column names and nullability must match config/schema.yaml;
// CheckSchema enforces it.
type Row struct {
	ID           int64   `parquet:"id"`
	PropertyLink string  `parquet:"property_link"`
	Address      *string `parquet:"address"`
	Outcode      *string `parquet:"outcode"`
	Incode       *string `parquet:"incode"`
	Price        *int64  `parquet:"price"`
	ListingType  *string `parquet:"listing_type"`

	// Days since the Unix epoch; zero is written as null
	ListingDate  int32    `parquet:"listing_date,optional,date"`
	PropertyType string   `parquet:"property_type"`
	SizeSqm      *float64 `parquet:"size_sqm"`
	Bedrooms     int64    `parquet:"bedrooms"`
	Bathrooms    *float64 `parquet:"bathrooms"`

	GroundRent       *float64 `parquet:"ground_rent"`
	ServiceCharge    *float64 `parquet:"service_charge"`
	TenureType       *string  `parquet:"tenure_type"`
	LeaseLengthYears *float64 `parquet:"lease_length_years"`
	EstateAgent      *string  `parquet:"estate_agent"`

	NearestStation               *string  `parquet:"nearest_station"`
	DistanceNearestStation       *float64 `parquet:"distance_from_nearest_station_miles"`
	SecondNearestStation         *string  `parquet:"second_nearest_station"`
	DistanceSecondNearestStation *float64 `parquet:"distance_from_second_nearest_station_miles"`
	ThirdNearestStation          *string  `parquet:"third_nearest_station"`
	DistanceThirdNearestStation  *float64 `parquet:"distance_from_third_nearest_station_miles"`

	Description string `parquet:"description"`
}

// FromListing converts a normalized listing to its Parquet row.
func FromListing(l *models.Listing) Row {
	r := Row{
		ID:           l.ID,
		PropertyLink: l.PropertyLink,
		Address:      l.Address,
		Outcode:      l.Outcode,
		Incode:       l.Incode,
		Price:        l.Price,
		ListingType:  l.ListingType,
		PropertyType: l.PropertyType,
		SizeSqm:      l.SizeSqm,
		Bedrooms:     int64(l.Bedrooms),
		Bathrooms:    l.Bathrooms,

		GroundRent:       l.GroundRent,
		ServiceCharge:    l.ServiceCharge,
		TenureType:       l.TenureType,
		LeaseLengthYears: l.LeaseLengthYears,
		EstateAgent:      l.EstateAgent,

		NearestStation:               l.NearestStation,
		DistanceNearestStation:       l.DistanceNearestStation,
		SecondNearestStation:         l.SecondNearestStation,
		DistanceSecondNearestStation: l.DistanceSecondNearestStation,
		ThirdNearestStation:          l.ThirdNearestStation,
		DistanceThirdNearestStation:  l.DistanceThirdNearestStation,

		Description: l.Description,
	}
	if l.ListingDate != nil {
		r.ListingDate = EpochDays(*l.ListingDate)
	}
	return r
}

// Listing converts a Parquet row back to a normalized listing.
func (r Row) Listing() *models.Listing {
	l := &models.Listing{
		ID:           r.ID,
		PropertyLink: r.PropertyLink,
		Address:      r.Address,
		Outcode:      r.Outcode,
		Incode:       r.Incode,
		Price:        r.Price,
		ListingType:  r.ListingType,
		PropertyType: r.PropertyType,
		SizeSqm:      r.SizeSqm,
		Bedrooms:     int(r.Bedrooms),
		Bathrooms:    r.Bathrooms,

		GroundRent:       r.GroundRent,
		ServiceCharge:    r.ServiceCharge,
		TenureType:       r.TenureType,
		LeaseLengthYears: r.LeaseLengthYears,
		EstateAgent:      r.EstateAgent,

		NearestStation:               r.NearestStation,
		DistanceNearestStation:       r.DistanceNearestStation,
		SecondNearestStation:         r.SecondNearestStation,
		DistanceSecondNearestStation: r.DistanceSecondNearestStation,
		ThirdNearestStation:          r.ThirdNearestStation,
		DistanceThirdNearestStation:  r.DistanceThirdNearestStation,

		Description: r.Description,
	}
	if r.ListingDate != 0 {
		d := FromEpochDays(r.ListingDate)
		l.ListingDate = &d
	}
	return l
}

// EpochDays is the calendar date of t as days since 1970-01-01.
func EpochDays(t time.Time) int32 {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int32(day.Unix() / secondsPerDay)
}

// FromEpochDays returns UTC midnight of the given day number.
func FromEpochDays(days int32) time.Time {
	return time.Unix(int64(days)*secondsPerDay, 0).UTC()
}

// WriteParquet writes rows as a single Parquet file to w.
func WriteParquet(w io.Writer, rows []Row) error {
	pw := parquet.NewGenericWriter[Row](w)
	if _, err := pw.Write(rows); err != nil {
		_ = pw.Close()
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// WriteParquetFile creates path, with parent directories, and writes rows to it.
func WriteParquetFile(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("parquet: create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("parquet: create file %q: %w", path, err)
	}
	if err := WriteParquet(f, rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadParquetFile reads back every row of a Parquet artifact.
func ReadParquetFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	rows, err := parquet.Read[Row](f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet file %q: %w", path, err)
	}
	return rows, nil
}
