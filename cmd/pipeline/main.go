// pipeline - multi-source city dataset builder
//
// Normalizes, cleans and transforms the collector CSV drops, merges
// them into one hourly city dataset, derives the model features and
// writes the CSV/Parquet artifacts plus a JSON quality report.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/pipeline ./cmd/pipeline
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron"

	"github.com/youngleee/DataAnalyticsHAW/internal/common"
	"github.com/youngleee/DataAnalyticsHAW/internal/dataset"
	"github.com/youngleee/DataAnalyticsHAW/internal/feature"
	"github.com/youngleee/DataAnalyticsHAW/internal/pipeline"
	"github.com/youngleee/DataAnalyticsHAW/internal/transform"
)

var Version = "1.2.0"

const dateLayout = "2006-01-02"

func main() {
	env := common.LoadConfig()

	dataDir := flag.String("data-dir", env.DataDir, "Directory with the collector CSV drops")
	outDir := flag.String("out-dir", env.OutDir, "Artifact output directory")
	startStr := flag.String("start", env.StartDate, "Window start date (YYYY-MM-DD)")
	endStr := flag.String("end", env.EndDate, "Window end date (YYYY-MM-DD)")
	tzName := flag.String("timezone", env.Timezone, "Civil timezone for the hourly grid")
	manifestPath := flag.String("manifest", "", "Source manifest YAML (built-in defaults if empty)")
	registryPath := flag.String("registry", "", "City registry YAML (built-in defaults if empty)")
	workers := flag.Int("workers", runtime.NumCPU(), "Feature-engineering workers")
	every := flag.Duration("every", 0, "Re-run on a fixed interval (e.g. 6h); 0 runs once")
	watch := flag.Bool("watch", false, "Re-run whenever a drop file in -data-dir changes")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "pipeline v%s - City Dataset Builder\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Stages:\n")
		fmt.Fprintf(os.Stderr, "  - Normalize: city keys, timestamps, manifest columns\n")
		fmt.Fprintf(os.Stderr, "  - Clean: fills, range checks, dedup per manifest\n")
		fmt.Fprintf(os.Stderr, "  - Transform: units, timezone, hourly grid\n")
		fmt.Fprintf(os.Stderr, "  - Integrate: city intersection, inner join\n")
		fmt.Fprintf(os.Stderr, "  - Features: rolling windows, lags, interactions\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := buildConfig(env, *dataDir, *outDir, *startStr, *endStr, *tzName, *manifestPath, *registryPath, *workers)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	log.Println("=========================================================")
	log.Printf("City Dataset Pipeline v%s", Version)
	log.Println("=========================================================")
	log.Printf("Data: %s | Out: %s", *dataDir, *outDir)
	log.Printf("Window: %s .. %s (%s)", *startStr, *endStr, *tzName)
	log.Printf("Sources: %s", strings.Join(cfg.Manifests.SourceNames(), ", "))
	log.Printf("Cities: %s", strings.Join(cfg.Registry.Keys(), ", "))
	log.Printf("Workers: %d | CPUs: %d", *workers, runtime.NumCPU())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutdown requested...")
		cancel()
	}()

	runOnce := func() {
		started := time.Now()
		report, err := pipeline.Run(ctx, cfg)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Run failed: %v", err)
			return
		}
		log.Printf("Run %s finished in %v: %d unified rows",
			report.RunID, time.Since(started).Round(time.Millisecond), report.Integration.RowsUnified)
	}

	switch {
	case *every > 0:
		runOnce()
		c := cron.New()
		if err := c.AddFunc(fmt.Sprintf("@every %s", *every), runOnce); err != nil {
			log.Fatalf("Schedule error: %v", err)
		}
		c.Start()
		defer c.Stop()
		<-ctx.Done()
	case *watch:
		runOnce()
		if err := watchAndRun(ctx, *dataDir, runOnce); err != nil {
			log.Fatalf("Watch error: %v", err)
		}
	default:
		started := time.Now()
		report, err := pipeline.Run(ctx, cfg)
		if err != nil {
			log.Fatalf("Run failed: %v", err)
		}
		log.Println("=========================================================")
		log.Println("Run Summary")
		log.Println("=========================================================")
		log.Printf("Run ID:       %s", report.RunID)
		log.Printf("Unified Rows: %d", report.Integration.RowsUnified)
		log.Printf("Cities:       %s", strings.Join(report.Integration.CommonCities, ", "))
		log.Printf("Features:     %d columns", len(report.FeatureCols))
		log.Printf("Elapsed:      %v", time.Since(started).Round(time.Millisecond))
		log.Println("=========================================================")
	}
}

// buildConfig resolves flags, env and the optional manifest/registry
// files into a run configuration.
func buildConfig(env *common.Config, dataDir, outDir, startStr, endStr, tzName, manifestPath, registryPath string, workers int) (pipeline.Config, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("unknown timezone %q: %w", tzName, err)
	}
	start, err := time.ParseInLocation(dateLayout, startStr, loc)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("bad start date %q: %w", startStr, err)
	}
	end, err := time.ParseInLocation(dateLayout, endStr, loc)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("bad end date %q: %w", endStr, err)
	}
	// End date is inclusive through its last civil hour. Built from
	// calendar fields, not by adding 23 absolute hours, so the 25-hour
	// fall-back day still ends at 23:00 local.
	end = time.Date(end.Year(), end.Month(), end.Day(), 23, 0, 0, 0, loc)
	if end.Before(start) {
		return pipeline.Config{}, fmt.Errorf("window end %s before start %s", endStr, startStr)
	}

	manifests := dataset.DefaultManifests()
	if manifestPath != "" {
		if manifests, err = dataset.LoadManifests(manifestPath); err != nil {
			return pipeline.Config{}, err
		}
	}
	registry := dataset.DefaultRegistry()
	if registryPath != "" {
		if registry, err = dataset.LoadRegistry(registryPath); err != nil {
			return pipeline.Config{}, err
		}
	}

	envCopy := *env
	envCopy.OutDir = outDir
	return pipeline.Config{
		DataDir:            dataDir,
		UnifiedCSVPath:     envCopy.UnifiedCSVPath(),
		FeatureCSVPath:     envCopy.FeatureCSVPath(),
		FeatureParquetPath: envCopy.FeatureParquetPath(),
		PerCityDir:         envCopy.PerCityDir(),
		ReportPath:         envCopy.QualityReportPath(),
		Manifests:          manifests,
		Registry:           registry,
		Start:              start,
		End:                end,
		Location:           loc,
		RushHours:          transform.DefaultRushHours(),
		Features:           feature.DefaultSpec(),
		Workers:            workers,
	}, nil
}

// watchAndRun re-runs the pipeline when a data file changes, debounced
// so a multi-file sync triggers one run.
func watchAndRun(ctx context.Context, dir string, run func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return err
	}
	log.Printf("Watching %s for changes", dir)

	var timer *time.Timer
	const settle = 2 * time.Second
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !strings.Contains(event.Name, ".csv") {
				continue
			}
			log.Printf("Change detected: %s", event.Name)
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(settle, run)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Watcher error: %v", err)
		}
	}
}
