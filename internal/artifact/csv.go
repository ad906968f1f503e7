package artifact

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Phil-Grim/london-properties-analysis/config"
	"github.com/Phil-Grim/london-properties-analysis/internal/models"
)

// WriteCSVFile writes listings as CSV with one column per declared schema
// column, in declaration order. Nulls are written as empty cells. Rejected
// batches land here so they can be inspected without a Parquet reader.
func WriteCSVFile(path string, declared *config.Schema, listings []*models.Listing) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)

	header := make([]string, len(declared.Columns))
	for i, c := range declared.Columns {
		header[i] = c.Name
	}
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return fmt.Errorf("csv: write header: %w", err)
	}

	for _, l := range listings {
		cells := csvCells(l)
		record := make([]string, len(declared.Columns))
		for i, c := range declared.Columns {
			record[i] = cells[c.Name]
		}
		if err := w.Write(record); err != nil {
			_ = f.Close()
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("csv: flush: %w", err)
	}
	return f.Close()
}

func csvCells(l *models.Listing) map[string]string {
	date := ""
	if l.ListingDate != nil {
		date = l.ListingDate.Format("2006-01-02")
	}
	return map[string]string{
		"id":                     strconv.FormatInt(l.ID, 10),
		"property_link":          l.PropertyLink,
		"address":                str(l.Address),
		"outcode":                str(l.Outcode),
		"incode":                 str(l.Incode),
		"price":                  int64Str(l.Price),
		"listing_type":           str(l.ListingType),
		"listing_date":           date,
		"property_type":          l.PropertyType,
		"size_sqm":               floatStr(l.SizeSqm),
		"bedrooms":               strconv.Itoa(l.Bedrooms),
		"bathrooms":              floatStr(l.Bathrooms),
		"ground_rent":            floatStr(l.GroundRent),
		"service_charge":         floatStr(l.ServiceCharge),
		"tenure_type":            str(l.TenureType),
		"lease_length_years":     floatStr(l.LeaseLengthYears),
		"estate_agent":           str(l.EstateAgent),
		"nearest_station":        str(l.NearestStation),
		"second_nearest_station": str(l.SecondNearestStation),
		"third_nearest_station":  str(l.ThirdNearestStation),

		"distance_from_nearest_station_miles":        floatStr(l.DistanceNearestStation),
		"distance_from_second_nearest_station_miles": floatStr(l.DistanceSecondNearestStation),
		"distance_from_third_nearest_station_miles":  floatStr(l.DistanceThirdNearestStation),

		"description": l.Description,
	}
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func int64Str(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func floatStr(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
