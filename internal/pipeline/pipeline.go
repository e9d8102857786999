// Package pipeline wires the stages together: per-source
// normalize/clean/transform fan-out, the integration barrier, feature
// engineering and artifact writes.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/youngleee/DataAnalyticsHAW/internal/clean"
	"github.com/youngleee/DataAnalyticsHAW/internal/dataset"
	"github.com/youngleee/DataAnalyticsHAW/internal/feature"
	"github.com/youngleee/DataAnalyticsHAW/internal/integrate"
	"github.com/youngleee/DataAnalyticsHAW/internal/sink"
	"github.com/youngleee/DataAnalyticsHAW/internal/transform"
)

// Config is one pipeline run's full configuration.
type Config struct {
	DataDir string

	// Artifact paths. Empty paths skip that artifact.
	UnifiedCSVPath     string
	FeatureCSVPath     string
	FeatureParquetPath string
	PerCityDir         string
	ReportPath         string

	Manifests dataset.Manifests
	Registry  *dataset.Registry

	Start     time.Time
	End       time.Time
	Location  *time.Location
	RushHours transform.RushHours

	Features feature.Spec

	// Workers bounds feature-engineering concurrency. Sources always
	// run one goroutine each.
	Workers int
}

// sourceResult carries one source's output across the integration
// barrier.
type sourceResult struct {
	name   string
	table  dataset.Table
	report sink.SourceReport
	err    error
}

// Run executes one full pipeline pass and returns the quality report.
// Configuration errors and unreadable inputs are fatal; an empty
// source or an excluded city degrades the output and is recorded in
// the report instead.
func Run(ctx context.Context, cfg Config) (*sink.QualityReport, error) {
	started := time.Now()
	if err := cfg.Manifests.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Features.Validate(); err != nil {
		return nil, err
	}
	for _, col := range cfg.Features.InputColumns() {
		if !cfg.Manifests.HasColumn(col) {
			return nil, fmt.Errorf("%w: feature spec reads column %q, which no source declares",
				dataset.ErrInvalidRangeConfig, col)
		}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	report := sink.NewQualityReport()
	report.WindowStart = cfg.Start
	report.WindowEnd = cfg.End
	report.Timezone = loc.String()
	log.Printf("run %s: %d sources, window %s .. %s (%s)",
		report.RunID, len(cfg.Manifests),
		cfg.Start.Format("2006-01-02"), cfg.End.Format("2006-01-02"), loc)

	// Sources are independent until integration; one goroutine each.
	names := cfg.Manifests.SourceNames()
	results := make(chan sourceResult, len(names))
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			results <- runSource(ctx, cfg, loc, name)
		}(name)
	}
	wg.Wait()
	close(results)

	tables := make(map[string]dataset.Table, len(names))
	var errs *multierror.Error
	for res := range results {
		if res.err != nil {
			errs = multierror.Append(errs, fmt.Errorf("source %s: %w", res.name, res.err))
			continue
		}
		tables[res.name] = res.table
		report.Sources[res.name] = res.report
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unified, im, err := integrate.Integrate(cfg.Manifests, integrate.Config{
		Registry:  cfg.Registry,
		RushHours: cfg.RushHours,
	}, tables)
	if err != nil {
		return nil, err
	}
	report.Integration = sink.IntegrationReport{
		CommonCities:  im.CommonCities,
		DroppedCities: im.DroppedCities,
		RowsPerSource: im.RowsPerSource,
		RowsUnified:   im.RowsUnified,
	}
	log.Printf("integrated: %d rows, %d common cities", im.RowsUnified, len(im.CommonCities))

	if err := feature.Engineer(cfg.Features, &unified, cfg.Workers); err != nil {
		return nil, err
	}
	report.FeatureCols = cfg.Features.Columns()
	log.Printf("features: %d derived columns", len(report.FeatureCols))

	if err := writeArtifacts(cfg, unified, report, started); err != nil {
		return nil, err
	}
	return report, nil
}

// runSource takes one source from raw file to its hourly-grid table.
func runSource(ctx context.Context, cfg Config, loc *time.Location, name string) sourceResult {
	if err := ctx.Err(); err != nil {
		return sourceResult{name: name, err: err}
	}
	m := cfg.Manifests[name]

	path, err := sink.FindSourceFile(cfg.DataDir, name)
	if err != nil {
		return sourceResult{name: name, err: err}
	}
	header, records, err := sink.ReadCSV(path)
	if err != nil {
		return sourceResult{name: name, err: err}
	}

	table, nstats, err := dataset.Normalize(m, cfg.Registry, header, records)
	if err != nil {
		return sourceResult{name: name, err: err}
	}
	cleaned, cstats, err := clean.Clean(m, table)
	if err != nil {
		return sourceResult{name: name, err: err}
	}
	gridded, excluded, tstats, err := transform.Transform(m, transform.Config{
		Start:    cfg.Start,
		End:      cfg.End,
		Location: loc,
	}, cleaned)
	if err != nil {
		return sourceResult{name: name, err: err}
	}

	log.Printf("[%s] %s: %d raw -> %d clean -> %d on grid",
		name, path, nstats.RowsRead, cstats.RowsAfter, tstats.RowsOut)
	return sourceResult{
		name:  name,
		table: gridded,
		report: sink.SourceReport{
			File: path,
			Normalize: map[string]int64{
				"rows_read":   nstats.RowsRead,
				"rows_parsed": nstats.Parsed,
				"rows_failed": nstats.Failed,
				"rows_empty":  nstats.SkippedEmpty,
			},
			Clean:           cstats.Map(),
			Transform:       tstats.Map(),
			ExcludedCities:  excluded,
			EmptyAfterClean: cstats.Empty(),
		},
	}
}

// writeArtifacts writes the configured outputs. The unified CSV
// carries only measurement columns; the feature CSV and Parquet carry
// everything.
func writeArtifacts(cfg Config, d integrate.Dataset, report *sink.QualityReport, started time.Time) error {
	if cfg.UnifiedCSVPath != "" {
		base := d
		base.Columns = d.Columns[:len(d.Columns)-len(cfg.Features.Columns())]
		if err := sink.WriteDatasetCSV(cfg.UnifiedCSVPath, base); err != nil {
			return err
		}
		log.Printf("wrote %s", cfg.UnifiedCSVPath)
	}
	if cfg.FeatureCSVPath != "" {
		if err := sink.WriteDatasetCSV(cfg.FeatureCSVPath, d); err != nil {
			return err
		}
		log.Printf("wrote %s", cfg.FeatureCSVPath)
	}
	if cfg.FeatureParquetPath != "" {
		if err := sink.WriteFeatureParquet(cfg.FeatureParquetPath, d); err != nil {
			return err
		}
		log.Printf("wrote %s", cfg.FeatureParquetPath)
	}
	if cfg.PerCityDir != "" {
		if err := sink.WritePerCityCSVs(cfg.PerCityDir, d); err != nil {
			return err
		}
		log.Printf("wrote %d city tables to %s", len(d.Cities()), cfg.PerCityDir)
	}
	if cfg.ReportPath != "" {
		report.DurationSec = time.Since(started).Seconds()
		if err := sink.WriteQualityReport(cfg.ReportPath, report); err != nil {
			return err
		}
		log.Printf("wrote %s", cfg.ReportPath)
	}
	return nil
}
