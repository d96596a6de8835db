// Package tender defines core types shared across subsystems.
package tender

import (
	"encoding/json"
	"time"
)

// Sector is the closed set of infrastructure sectors served outward.
type Sector string

// Sector values assigned by the classifier.
const (
	SectorRail         Sector = "Rail"
	SectorAviation     Sector = "Aviation"
	SectorHighways     Sector = "Highways"
	SectorUtilities    Sector = "Utilities"
	SectorMaritime     Sector = "Maritime"
	SectorUnclassified Sector = ""
)

// Opportunity is one canonical procurement notice after normalization
// and classification. Deadline and value bounds are nil when the provider
// did not supply a usable field; they are never fabricated.
type Opportunity struct {
	ID           string     `json:"id"`
	Source       string     `json:"source"`
	Title        string     `json:"title"`
	Organisation string     `json:"organisation"`
	Region       string     `json:"region,omitempty"`
	Deadline     *time.Time `json:"deadline"`
	ValueLow     *float64   `json:"valueLow"`
	ValueHigh    *float64   `json:"valueHigh"`
	Sector       Sector     `json:"sector,omitempty"`
	URL          string     `json:"url,omitempty"`
	DiscoveredAt time.Time  `json:"discoveredAt"`

	// Codes carries any structured classification codes (CPV) found on the
	// raw record. Used by the classifier, stripped from the snapshot.
	Codes []string `json:"-"`
}

// RawRecord is an opaque provider-shaped payload. It never travels past
// the adapter / normalizer boundary.
type RawRecord = json.RawMessage

// FetchState is the persisted continuation token for one source. The zero
// value (aside from SourceID) means "start from the beginning". Page covers
// page-numbered feeds, Cursor covers opaque-cursor feeds; a source uses one
// of the two.
type FetchState struct {
	SourceID  string    `json:"sourceId"`
	Page      int       `json:"page,omitempty"`
	Cursor    string    `json:"cursor,omitempty"`
	LastRunAt time.Time `json:"lastRunAt"`
}

// Page is one batch of raw records returned by an adapter, plus the
// continuation state for the following call.
type Page struct {
	Records   []RawRecord
	Next      FetchState
	Exhausted bool
}

// CycleStats summarizes one refresh cycle for the trigger caller.
type CycleStats struct {
	PerSourceCounts map[string]int `json:"per_source_counts"`
	FinalCount      int            `json:"final_count"`
	UpdatedAt       *time.Time     `json:"updated_at"`
	DurationMs      int64          `json:"duration_ms"`
}
