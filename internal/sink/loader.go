// Package sink handles the pipeline's file edges: reading collector
// CSV drops (plain, gzip or zstd), and writing the unified and
// feature artifacts as CSV, Parquet and the JSON quality report.
// Artifact writes are atomic: a temp file in the target directory,
// renamed into place only after a clean close.
package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// dataExtensions are probed in order by FindSourceFile.
var dataExtensions = []string{".csv", ".csv.gz", ".csv.zst"}

// FindSourceFile locates a source's drop file in dir, probing the
// supported extensions in a fixed order.
func FindSourceFile(dir, source string) (string, error) {
	for _, ext := range dataExtensions {
		path := filepath.Join(dir, source+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no data file for source %q in %s (tried %s)",
		source, dir, strings.Join(dataExtensions, ", "))
}

// ReadCSV reads a collector drop file into a header and records,
// transparently decompressing by extension. Gzip is decompressed in
// parallel across cores; records may have varying field counts, the
// normalizer deals with short rows.
func ReadCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var reader io.Reader = f
	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := pgzip.NewReaderN(f, 256*1024, runtime.NumCPU())
		if err != nil {
			return nil, nil, fmt.Errorf("open gzip %s: %w", path, err)
		}
		defer gz.Close()
		reader = gz
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("open zstd %s: %w", path, err)
		}
		defer zr.Close()
		reader = zr
	}

	cr := csv.NewReader(reader)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%s: empty file", path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: read header: %w", path, err)
	}
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: read records: %w", path, err)
	}
	return header, records, nil
}
