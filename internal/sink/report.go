package sink

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
)

// SourceReport aggregates one source's per-stage counters and the
// cities its transformation excluded.
type SourceReport struct {
	File            string           `json:"file"`
	Normalize       map[string]int64 `json:"normalize"`
	Clean           map[string]int64 `json:"clean"`
	Transform       map[string]int64 `json:"transform"`
	ExcludedCities  []string         `json:"excluded_cities,omitempty"`
	EmptyAfterClean bool             `json:"empty_after_clean,omitempty"`
}

// IntegrationReport records the merge outcome.
type IntegrationReport struct {
	CommonCities  []string            `json:"common_cities"`
	DroppedCities map[string][]string `json:"dropped_cities"`
	RowsPerSource map[string]int64    `json:"rows_per_source"`
	RowsUnified   int64               `json:"rows_unified"`
}

// QualityReport is the per-run data quality artifact, written next to
// the dataset outputs.
type QualityReport struct {
	RunID       string                  `json:"run_id"`
	GeneratedAt time.Time               `json:"generated_at"`
	WindowStart time.Time               `json:"window_start"`
	WindowEnd   time.Time               `json:"window_end"`
	Timezone    string                  `json:"timezone"`
	Sources     map[string]SourceReport `json:"sources"`
	Integration IntegrationReport       `json:"integration"`
	FeatureCols []string                `json:"feature_columns"`
	DurationSec float64                 `json:"duration_seconds"`
}

// NewQualityReport starts a report with a fresh run ID.
func NewQualityReport() *QualityReport {
	return &QualityReport{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Sources:     make(map[string]SourceReport),
	}
}

// WriteQualityReport writes the report as indented JSON.
func WriteQualityReport(path string, r *QualityReport) error {
	return atomicWrite(path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	})
}
