// Package common provides shared configuration and telemetry for the
// data pipeline applications.
package common

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings shared by the pipeline and
// ingest binaries. Flags override these per invocation.
type Config struct {
	DataDir  string
	OutDir   string
	Timezone string

	StartDate string
	EndDate   string

	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseTable    string
	ClickHouseUser     string
	ClickHousePassword string
}

// LoadConfig reads an optional .env file and resolves configuration
// with defaults. A missing .env is fine; a malformed one is logged
// and ignored.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: .env not loaded: %v", err)
	}
	return &Config{
		DataDir:            getEnv("PIPELINE_DATA_DIR", "data/bronze"),
		OutDir:             getEnv("PIPELINE_OUT_DIR", "data/gold"),
		Timezone:           getEnv("PIPELINE_TIMEZONE", "Europe/Berlin"),
		StartDate:          getEnv("START_DATE", "2023-01-01"),
		EndDate:            getEnv("END_DATE", "2024-12-31"),
		ClickHouseHost:     getEnv("CLICKHOUSE_HOST", "localhost"),
		ClickHousePort:     getEnvInt("CLICKHOUSE_PORT", 9000),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "cityfusion"),
		ClickHouseTable:    getEnv("CLICKHOUSE_TABLE", "city_features"),
		ClickHouseUser:     getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),
	}
}

// UnifiedCSVPath returns the unified dataset artifact path.
func (c *Config) UnifiedCSVPath() string {
	return filepath.Join(c.OutDir, "unified_dataset.csv")
}

// FeatureCSVPath returns the feature dataset CSV artifact path.
func (c *Config) FeatureCSVPath() string {
	return filepath.Join(c.OutDir, "feature_dataset.csv")
}

// FeatureParquetPath returns the feature dataset Parquet artifact path.
func (c *Config) FeatureParquetPath() string {
	return filepath.Join(c.OutDir, "feature_dataset.parquet")
}

// PerCityDir returns the directory for the per-city dataset artifacts.
func (c *Config) PerCityDir() string {
	return filepath.Join(c.OutDir, "per_city")
}

// QualityReportPath returns the quality report artifact path.
func (c *Config) QualityReportPath() string {
	return filepath.Join(c.OutDir, "quality_report.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("warning: %s=%q is not an integer, using %d", key, value, defaultValue)
	}
	return defaultValue
}
