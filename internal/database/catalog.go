package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Phil-Grim/london-properties-analysis/internal/models"
)

// Catalog registers query-engine table definitions over storage prefixes.
type Catalog interface {
	// EnsureExternalTable creates the definition if absent. Calling it
	// again with the same name is a no-op.
	EnsureExternalTable(ctx context.Context, name, format, sourceURIPattern string) error
}

// CatalogError is a failed catalog registration.
type CatalogError struct {
	Table string
	Err   error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog table %s: %v", e.Table, e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }

func (d *Database) EnsureExternalTable(ctx context.Context, name, format, sourceURIPattern string) error {
	if name == "" || format == "" || sourceURIPattern == "" {
		return &CatalogError{Table: name, Err: errors.New("name, format and source pattern are required")}
	}

	table := models.ExternalTable{Name: name, Format: format, SourceURIPattern: sourceURIPattern}
	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&table).Error
	if err != nil {
		return &CatalogError{Table: name, Err: err}
	}
	return nil
}

// GetTable returns the definition registered under name.
func (d *Database) GetTable(ctx context.Context, name string) (*models.ExternalTable, error) {
	var table models.ExternalTable
	err := d.db.WithContext(ctx).First(&table, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query table %s: %w", name, err)
	}
	return &table, nil
}

// ListTables returns every registered definition ordered by name.
func (d *Database) ListTables(ctx context.Context) ([]models.ExternalTable, error) {
	tables := []models.ExternalTable{}
	if err := d.db.WithContext(ctx).Order("name").Find(&tables).Error; err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}
