package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// ScrapeRun is the persisted history of one pipeline run.
type ScrapeRun struct {
	ID             string         `json:"id" gorm:"primaryKey;size:36"`
	RunDate        string         `json:"run_date" gorm:"index;size:10"`
	TestMode       bool           `json:"test_mode"`
	Status         RunStatus      `json:"status" gorm:"index;size:16"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     *time.Time     `json:"finished_at"`
	ResultCount    int            `json:"result_count"`
	PagesPlanned   int            `json:"pages_planned"`
	PagesFailed    int            `json:"pages_failed"`
	Discovered     int            `json:"discovered"`
	Extracted      int            `json:"extracted"`
	Failed         int            `json:"failed"`
	FailuresByKind map[string]int `json:"failures_by_kind" gorm:"serializer:json"`
	ArtifactPath   string         `json:"artifact_path"`
	Error          string         `json:"error,omitempty"`
}

// ExternalTable is a query-engine table definition over a storage prefix.
type ExternalTable struct {
	ID               int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Name             string    `json:"name" gorm:"uniqueIndex;not null"`
	Format           string    `json:"format" gorm:"not null"`
	SourceURIPattern string    `json:"source_uri_pattern" gorm:"not null"`
	CreatedAt        time.Time `json:"created_at"`
}

// CrawlStats summarises one crawl.
type CrawlStats struct {
	ResultCount    int            `json:"result_count"`
	PagesPlanned   int            `json:"pages_planned"`
	PagesFailed    int            `json:"pages_failed"`
	Discovered     int            `json:"discovered"`
	Extracted      int            `json:"extracted"`
	Failed         int            `json:"failed"`
	FailuresByKind map[string]int `json:"failures_by_kind"`
}

// RecordFailure counts a per-listing failure under its error kind.
func (s *CrawlStats) RecordFailure(err error) {
	if s.FailuresByKind == nil {
		s.FailuresByKind = make(map[string]int)
	}
	s.Failed++
	s.FailuresByKind[ErrorKind(err)]++
}
