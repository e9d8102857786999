// dataset-ingest - feature dataset to ClickHouse loader
//
// Reads the feature Parquet artifact written by the pipeline and
// inserts the analysis columns into ClickHouse over the native
// protocol. Missing measurements are stored as NaN, which ClickHouse
// aggregate functions skip.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/dataset-ingest ./cmd/dataset-ingest
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/proto"
	"github.com/parquet-go/parquet-go"

	"github.com/youngleee/DataAnalyticsHAW/internal/common"
	"github.com/youngleee/DataAnalyticsHAW/internal/sink"
)

var Version = "1.1.0"

const BatchSize = 10_000

// measurementColumns are the Float64 analysis columns of the serving
// table, in insert order. Rolling, lag and interaction columns stay
// in the Parquet/CSV training artifacts.
var measurementColumns = []string{
	"temperature", "humidity", "precipitation", "snow", "wind_speed", "pressure",
	"no2", "pm10", "o3",
	"traffic_index", "congestion_level", "current_speed", "free_flow_speed",
	"heat_index", "wind_chill", "aqi_avg",
}

// Batch accumulates native-protocol column data for one insert.
type Batch struct {
	CityKey    *proto.ColStr
	City       *proto.ColStr
	Lat        *proto.ColFloat64
	Lon        *proto.ColFloat64
	Timestamp  *proto.ColDateTime
	Season     *proto.ColStr
	TimePeriod *proto.ColStr
	IsWeekday  *proto.ColBool
	IsNight    *proto.ColBool
	IsRushHour *proto.ColBool

	Measurements []*proto.ColFloat64
}

func NewBatch() *Batch {
	b := &Batch{
		CityKey:    new(proto.ColStr),
		City:       new(proto.ColStr),
		Lat:        new(proto.ColFloat64),
		Lon:        new(proto.ColFloat64),
		Timestamp:  new(proto.ColDateTime),
		Season:     new(proto.ColStr),
		TimePeriod: new(proto.ColStr),
		IsWeekday:  new(proto.ColBool),
		IsNight:    new(proto.ColBool),
		IsRushHour: new(proto.ColBool),
	}
	for range measurementColumns {
		b.Measurements = append(b.Measurements, new(proto.ColFloat64))
	}
	return b
}

func (b *Batch) Reset() {
	b.CityKey.Reset()
	b.City.Reset()
	b.Lat.Reset()
	b.Lon.Reset()
	b.Timestamp.Reset()
	b.Season.Reset()
	b.TimePeriod.Reset()
	b.IsWeekday.Reset()
	b.IsNight.Reset()
	b.IsRushHour.Reset()
	for _, c := range b.Measurements {
		c.Reset()
	}
}

func (b *Batch) Len() int {
	return b.CityKey.Rows()
}

func (b *Batch) Input() proto.Input {
	in := proto.Input{
		{Name: "city_key", Data: b.CityKey},
		{Name: "city", Data: b.City},
		{Name: "lat", Data: b.Lat},
		{Name: "lon", Data: b.Lon},
		{Name: "timestamp", Data: b.Timestamp},
		{Name: "season", Data: b.Season},
		{Name: "time_period", Data: b.TimePeriod},
		{Name: "is_weekday", Data: b.IsWeekday},
		{Name: "is_night", Data: b.IsNight},
		{Name: "is_rush_hour", Data: b.IsRushHour},
	}
	for i, name := range measurementColumns {
		in = append(in, proto.InputColumn{Name: name, Data: b.Measurements[i]})
	}
	return in
}

// optValue maps a missing measurement to NaN.
func optValue(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

func (b *Batch) AddRecord(rec sink.FeatureRecord) {
	b.CityKey.Append(rec.CityKey)
	b.City.Append(rec.City)
	b.Lat.Append(rec.Lat)
	b.Lon.Append(rec.Lon)
	b.Timestamp.Append(time.Unix(rec.Timestamp, 0).UTC())
	b.Season.Append(rec.Season)
	b.TimePeriod.Append(rec.TimePeriod)
	b.IsWeekday.Append(rec.IsWeekday)
	b.IsNight.Append(rec.IsNight)
	b.IsRushHour.Append(rec.IsRushHour)

	values := []*float64{
		rec.Temperature, rec.Humidity, rec.Precipitation, rec.Snow, rec.WindSpeed, rec.Pressure,
		rec.NO2, rec.PM10, rec.O3,
		rec.TrafficIndex, rec.CongestionLevel, rec.CurrentSpeed, rec.FreeFlowSpeed,
		rec.HeatIndex, rec.WindChill, rec.AqiAvg,
	}
	for i, v := range values {
		b.Measurements[i].Append(optValue(v))
	}
}

// createTable creates the serving table if it does not exist.
func createTable(ctx context.Context, conn *ch.Client, tableFQN string) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		city_key LowCardinality(String),
		city LowCardinality(String),
		lat Float64,
		lon Float64,
		timestamp DateTime,
		season LowCardinality(String),
		time_period LowCardinality(String),
		is_weekday Bool,
		is_night Bool,
		is_rush_hour Bool,
		temperature Float64, humidity Float64, precipitation Float64, snow Float64,
		wind_speed Float64, pressure Float64,
		no2 Float64, pm10 Float64, o3 Float64,
		traffic_index Float64, congestion_level Float64, current_speed Float64, free_flow_speed Float64,
		heat_index Float64, wind_chill Float64, aqi_avg Float64
	) ENGINE = ReplacingMergeTree
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY (city_key, timestamp)`, tableFQN)
	return conn.Do(ctx, ch.Query{Body: ddl})
}

func flushBatch(ctx context.Context, conn *ch.Client, tableFQN string, batch *Batch, stats *common.Stats) error {
	if batch.Len() == 0 {
		return nil
	}
	input := batch.Input()
	cols := make([]string, len(input))
	for i, in := range input {
		cols[i] = in.Name
	}
	started := time.Now()
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES", tableFQN, strings.Join(cols, ", "))
	if err := conn.Do(ctx, ch.Query{Body: query, Input: input}); err != nil {
		return err
	}
	stats.AddRows(uint64(batch.Len()))
	stats.AddBatch()
	stats.SetBatchLatency(time.Since(started))
	return nil
}

func ingestFile(ctx context.Context, path, chHost, chDB, chTable string, create bool, stats *common.Stats) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return fmt.Errorf("parquet open: %w", err)
	}

	conn, err := ch.Dial(ctx, ch.Options{
		Address:     chHost,
		Database:    chDB,
		Compression: ch.CompressionLZ4,
	})
	if err != nil {
		return fmt.Errorf("clickhouse connect: %w", err)
	}
	defer conn.Close()

	tableFQN := fmt.Sprintf("%s.%s", chDB, chTable)
	if create {
		if err := createTable(ctx, conn, tableFQN); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	batch := NewBatch()
	reader := parquet.NewGenericReader[sink.FeatureRecord](pf)
	defer reader.Close()
	records := make([]sink.FeatureRecord, 1000)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := reader.Read(records)
		for i := 0; i < n; i++ {
			batch.AddRecord(records[i])
			if batch.Len() >= BatchSize {
				if err := flushBatch(ctx, conn, tableFQN, batch, stats); err != nil {
					return fmt.Errorf("flush: %w", err)
				}
				batch.Reset()
			}
		}
		if n == 0 || err != nil {
			break
		}
	}
	return flushBatch(ctx, conn, tableFQN, batch, stats)
}

func main() {
	env := common.LoadConfig()

	chHost := flag.String("ch-host", fmt.Sprintf("%s:%d", env.ClickHouseHost, env.ClickHousePort), "ClickHouse address")
	chDB := flag.String("ch-db", env.ClickHouseDatabase, "ClickHouse database")
	chTable := flag.String("ch-table", env.ClickHouseTable, "ClickHouse table")
	create := flag.Bool("create-table", false, "Create the serving table if missing")
	silent := flag.Bool("silent", false, "Suppress progress output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "dataset-ingest v%s - Feature Dataset ClickHouse Loader\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] [parquet-file]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Defaults to the pipeline's feature Parquet artifact.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	inputPath := env.FeatureParquetPath()
	if flag.NArg() > 0 {
		inputPath = flag.Arg(0)
	}

	log.Println("=========================================================")
	log.Printf("Dataset Ingest v%s", Version)
	log.Println("=========================================================")
	log.Printf("Input: %s", inputPath)
	log.Printf("Target: %s/%s.%s", *chHost, *chDB, *chTable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutdown requested...")
		cancel()
	}()

	stats := common.NewStats()
	stats.SetSilent(*silent)
	stats.StartReporter()

	started := time.Now()
	err := ingestFile(ctx, inputPath, *chHost, *chDB, *chTable, *create, stats)
	stats.StopReporter()
	if err != nil {
		log.Fatalf("Ingest failed: %v", err)
	}

	elapsed := time.Since(started)
	log.Println("=========================================================")
	log.Println("Final Statistics")
	log.Println("=========================================================")
	log.Printf("Total Rows: %d in %d batches", stats.TotalRows(), stats.TotalBatches())
	log.Printf("Elapsed:    %v", elapsed.Round(time.Millisecond))
	log.Println("=========================================================")
}
