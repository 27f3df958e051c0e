// Package model defines the core data types shared across the pipeline.
package model

import "time"

// CounterRecord is one raw row from the Paris bike-counter feed: one site,
// one hour. Records are immutable once loaded; the pipeline reads them only.
type CounterRecord struct {
	SiteID        string    `json:"site_id"`
	Timestamp     time.Time `json:"timestamp"`      // hour resolution, timezone-naive after normalization
	HourlyCount   float64   `json:"hourly_count"`   // non-negative
	RawCoordinate string    `json:"raw_coordinate"` // "<lat>,<lon>" as published by the feed

	// Identifier/media columns carried through ingestion. They hold no
	// predictive signal and are dropped by the preprocessor, but the schema
	// check requires their presence in the input.
	CounterID   string `json:"counter_id"`
	CounterName string `json:"counter_name"`
	SiteName    string `json:"site_name"`
	TechnicalID string `json:"technical_id"`
	InstallDate string `json:"install_date"`
	MonthYear   string `json:"month_year"`
	PhotoURL    string `json:"photo_url"`
	PhotoID     string `json:"photo_id"`
}

// SiteStatistics holds per-site aggregates of the historical hourly counts.
// Computed over the entire table, before any temporal split.
type SiteStatistics struct {
	SiteID string  `json:"site_id"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Max    float64 `json:"max"`
	Min    float64 `json:"min"`
}
