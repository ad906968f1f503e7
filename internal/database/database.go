package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Phil-Grim/london-properties-analysis/internal/models"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// Database stores run history and external table definitions in SQLite.
type Database struct {
	db *gorm.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return open(dbPath)
}

// NewTestDB opens a private in-memory database with the schema applied.
func NewTestDB() (*Database, error) {
	d, err := open(":memory:")
	if err != nil {
		return nil, err
	}
	// every new connection would see a fresh empty :memory: database
	sqlDB, err := d.db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := d.RunMigrations(); err != nil {
		return nil, err
	}
	return d, nil
}

func open(dsn string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *Database) GetDB() *gorm.DB {
	return d.db
}

// SaveRun inserts or updates a run record.
func (d *Database) SaveRun(ctx context.Context, run *models.ScrapeRun) error {
	if err := d.db.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun returns the run with the given id.
func (d *Database) GetRun(ctx context.Context, id string) (*models.ScrapeRun, error) {
	var run models.ScrapeRun
	err := d.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (d *Database) ListRuns(ctx context.Context, limit int) ([]models.ScrapeRun, error) {
	q := d.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	runs := []models.ScrapeRun{}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// LatestSucceededRun returns the newest succeeded run, or nil when none exists.
func (d *Database) LatestSucceededRun(ctx context.Context) (*models.ScrapeRun, error) {
	var runs []models.ScrapeRun
	err := d.db.WithContext(ctx).
		Where("status = ?", models.RunStatusSucceeded).
		Order("started_at DESC").
		Limit(1).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}
