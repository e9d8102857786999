package dataset

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrInvalidRangeConfig marks a manifest that fails startup
// validation (inverted range, policy on an undeclared column).
// Nothing is processed once this is returned.
var ErrInvalidRangeConfig = errors.New("invalid range configuration")

// Fill strategies for missing values. Applied per column, row-by-row
// in timestamp order within each city, after drop-column checks.
const (
	FillNone     = ""             // leave missing values alone
	FillConstant = "fill_constant"
	FillForward  = "forward_fill"
	DropColumn   = "drop_column"
)

// DefaultDropThreshold is the missing fraction above which a
// drop_column policy removes the whole column.
const DefaultDropThreshold = 0.5

// Range is a closed valid interval for a numeric column.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// ColumnPolicy declares how one numeric column is cleaned and
// transformed. The manifest is the collectors' documented contract;
// nothing about a column is inferred at runtime.
type ColumnPolicy struct {
	Name string `yaml:"name"`
	Unit string `yaml:"unit"`

	// Valid range. Values outside are clipped to the nearest bound,
	// unless DiscardOnViolation marks the whole row invalid instead.
	Range              *Range `yaml:"range"`
	DiscardOnViolation bool   `yaml:"discard_on_violation"`

	// Missing-value policy.
	Fill          string  `yaml:"fill"`
	FillValue     float64 `yaml:"fill_value"`
	DropThreshold float64 `yaml:"drop_threshold"`

	// Declarative unit conversion applied by the Transformer before
	// resampling. Empty means the column is already in standard units.
	Convert string `yaml:"convert"`
}

// Resolution of a source's native series.
const (
	ResolutionHourly = "hourly"
	ResolutionDaily  = "daily"
)

// Timestamp interpretation for naive (offset-less) inputs.
const (
	TimestampsUTC   = "utc"
	TimestampsLocal = "local"
)

// SourceManifest is the per-source column manifest: the contract a
// collector's output must satisfy, and the configuration input for
// the Cleaner and Transformer.
type SourceManifest struct {
	Name string `yaml:"-"`

	// Prefix disambiguates column names that collide with another
	// source at merge time. Without a declared prefix a collision is
	// a fatal integration error.
	Prefix string `yaml:"prefix"`

	// NativeResolution declares the series granularity. Daily sources
	// are broadcast to all 24 hourly slots of the day, not
	// interpolated.
	NativeResolution string `yaml:"native_resolution"`

	// Timestamps declares how naive timestamps are interpreted.
	Timestamps string `yaml:"timestamps"`

	// MaxGapHours excludes a city from this source when its series
	// has a gap exceeding the limit, instead of silently filling it.
	MaxGapHours int `yaml:"max_gap_hours"`

	Columns []ColumnPolicy `yaml:"columns"`
}

// Column returns the policy for a named column.
func (m SourceManifest) Column(name string) (ColumnPolicy, bool) {
	for _, c := range m.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnPolicy{}, false
}

// ColumnNames returns declared column names in manifest order.
func (m SourceManifest) ColumnNames() []string {
	out := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		out[i] = c.Name
	}
	return out
}

// Validate fails fast on configuration errors so no data is touched
// with a broken manifest.
func (m SourceManifest) Validate() error {
	if len(m.Columns) == 0 {
		return fmt.Errorf("%w: source %q declares no columns", ErrInvalidRangeConfig, m.Name)
	}
	seen := make(map[string]struct{}, len(m.Columns))
	for _, c := range m.Columns {
		if c.Name == "" {
			return fmt.Errorf("%w: source %q has an unnamed column", ErrInvalidRangeConfig, m.Name)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: source %q declares column %q twice", ErrInvalidRangeConfig, m.Name, c.Name)
		}
		seen[c.Name] = struct{}{}
		if c.Range != nil && c.Range.Min > c.Range.Max {
			return fmt.Errorf("%w: source %q column %q has min %g > max %g",
				ErrInvalidRangeConfig, m.Name, c.Name, c.Range.Min, c.Range.Max)
		}
		switch c.Fill {
		case FillNone, FillConstant, FillForward, DropColumn:
		default:
			return fmt.Errorf("%w: source %q column %q has unknown fill policy %q",
				ErrInvalidRangeConfig, m.Name, c.Name, c.Fill)
		}
		if c.DropThreshold < 0 || c.DropThreshold > 1 {
			return fmt.Errorf("%w: source %q column %q has drop threshold %g outside [0,1]",
				ErrInvalidRangeConfig, m.Name, c.Name, c.DropThreshold)
		}
	}
	switch m.NativeResolution {
	case "", ResolutionHourly, ResolutionDaily:
	default:
		return fmt.Errorf("%w: source %q has unknown resolution %q", ErrInvalidRangeConfig, m.Name, m.NativeResolution)
	}
	switch m.Timestamps {
	case "", TimestampsUTC, TimestampsLocal:
	default:
		return fmt.Errorf("%w: source %q has unknown timestamp mode %q", ErrInvalidRangeConfig, m.Name, m.Timestamps)
	}
	return nil
}

// Manifests maps source name to its manifest.
type Manifests map[string]SourceManifest

// SourceNames returns the manifest's source names, sorted.
func (ms Manifests) SourceNames() []string {
	out := make([]string, 0, len(ms))
	for name := range ms {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// HasColumn reports whether any source declares the column, by its
// plain or merged (prefixed) name.
func (ms Manifests) HasColumn(name string) bool {
	for _, m := range ms {
		for _, col := range m.ColumnNames() {
			if col == name {
				return true
			}
			if m.Prefix != "" && m.Prefix+"_"+col == name {
				return true
			}
		}
	}
	return false
}

// Validate validates every source manifest.
func (ms Manifests) Validate() error {
	for _, name := range ms.SourceNames() {
		if err := ms[name].Validate(); err != nil {
			return err
		}
	}
	return nil
}

type manifestFile struct {
	Sources map[string]SourceManifest `yaml:"sources"`
}

// LoadManifests reads a manifest YAML file and validates it.
func LoadManifests(path string) (Manifests, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var f manifestFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	ms := make(Manifests, len(f.Sources))
	for name, m := range f.Sources {
		m.Name = name
		applyManifestDefaults(&m)
		ms[name] = m
	}
	if err := ms.Validate(); err != nil {
		return nil, err
	}
	return ms, nil
}

func applyManifestDefaults(m *SourceManifest) {
	if m.NativeResolution == "" {
		m.NativeResolution = ResolutionHourly
	}
	if m.Timestamps == "" {
		m.Timestamps = TimestampsUTC
	}
	if m.MaxGapHours == 0 {
		m.MaxGapHours = 72
	}
	for i := range m.Columns {
		if m.Columns[i].Fill == DropColumn && m.Columns[i].DropThreshold == 0 {
			m.Columns[i].DropThreshold = DefaultDropThreshold
		}
	}
}

// DefaultManifests returns the built-in manifests for the three
// collector sources. A manifest file overrides these wholesale.
func DefaultManifests() Manifests {
	ms := Manifests{
		"weather": {
			Name:             "weather",
			NativeResolution: ResolutionHourly,
			Timestamps:       TimestampsUTC,
			MaxGapHours:      72,
			Columns: []ColumnPolicy{
				{Name: "temperature", Unit: "celsius", Range: &Range{Min: -40, Max: 50}, Fill: FillForward},
				{Name: "humidity", Unit: "percent", Range: &Range{Min: 0, Max: 100}, Fill: FillForward},
				{Name: "precipitation", Unit: "mm", Range: &Range{Min: 0, Max: 300}, Fill: FillConstant, FillValue: 0},
				{Name: "snow", Unit: "mm", Range: &Range{Min: 0, Max: 500}, Fill: FillConstant, FillValue: 0},
				{Name: "wind_speed", Unit: "km/h", Range: &Range{Min: 0, Max: 180}, Fill: FillForward, Convert: "kmh_to_ms"},
				{Name: "pressure", Unit: "hPa", Range: &Range{Min: 870, Max: 1085}, Fill: FillForward},
				{Name: "dwpt", Unit: "celsius", Range: &Range{Min: -60, Max: 40}, Fill: DropColumn, DropThreshold: DefaultDropThreshold},
			},
		},
		"air_quality": {
			Name:             "air_quality",
			NativeResolution: ResolutionHourly,
			Timestamps:       TimestampsUTC,
			MaxGapHours:      72,
			Columns: []ColumnPolicy{
				{Name: "no2", Unit: "ug/m3", Range: &Range{Min: 0, Max: 500}, Fill: FillForward},
				{Name: "pm10", Unit: "ug/m3", Range: &Range{Min: 0, Max: 500}, Fill: FillForward},
				{Name: "o3", Unit: "ug/m3", Range: &Range{Min: 0, Max: 500}, Fill: FillForward},
			},
		},
		"traffic": {
			Name:             "traffic",
			NativeResolution: ResolutionHourly,
			Timestamps:       TimestampsUTC,
			MaxGapHours:      72,
			Columns: []ColumnPolicy{
				{Name: "traffic_index", Unit: "index", Range: &Range{Min: 0, Max: 100}, Fill: FillForward},
				{Name: "congestion_level", Unit: "fraction", Range: &Range{Min: 0, Max: 1}, Fill: FillForward},
				{Name: "current_speed", Unit: "km/h", Range: &Range{Min: 0, Max: 200}, Fill: FillForward, DiscardOnViolation: true},
				{Name: "free_flow_speed", Unit: "km/h", Range: &Range{Min: 0, Max: 200}, Fill: FillForward},
			},
		},
	}
	return ms
}
