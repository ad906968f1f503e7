package database

import (
	"fmt"

	"github.com/Phil-Grim/london-properties-analysis/internal/models"
)

func (d *Database) RunMigrations() error {
	if err := d.db.AutoMigrate(&models.ScrapeRun{}, &models.ExternalTable{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	// Run history is listed newest first
	if err := d.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_scrape_runs_started_at
		ON scrape_runs(started_at);
	`).Error; err != nil {
		return fmt.Errorf("failed to create run index: %w", err)
	}

	return nil
}
