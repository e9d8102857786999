// Package feature derives the model-ready feature set from the
// unified dataset: cyclical time encodings, per-city rolling windows
// and lags, interaction terms and a handful of composite indicators.
//
// All window and lag features look strictly backward. A feature value
// at time t is a function of rows at t and earlier only, so the
// dataset can be split chronologically for training without leakage.
package feature

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/youngleee/DataAnalyticsHAW/internal/integrate"
)

// Interaction operators.
const (
	OpMultiply = "multiply"
	OpRatio    = "ratio"
)

// ratioEpsilon guards ratio interactions against division by values
// indistinguishable from zero.
const ratioEpsilon = 1e-9

// RollingSpec derives <col>_roll_mean_<w>h and <col>_roll_std_<w>h
// over a trailing row-count window that includes the current row.
type RollingSpec struct {
	Column string `yaml:"column"`
	Window int    `yaml:"window"`
}

// LagSpec derives <col>_lag_<n>h: the column's value n rows earlier
// in the same city's series.
type LagSpec struct {
	Column  string `yaml:"column"`
	Periods int    `yaml:"periods"`
}

// InteractionSpec derives a named product or ratio of two columns.
type InteractionSpec struct {
	A    string `yaml:"a"`
	B    string `yaml:"b"`
	Op   string `yaml:"op"`
	Name string `yaml:"name"`
}

// Spec declares the full derived feature set.
type Spec struct {
	Rolling      []RollingSpec     `yaml:"rolling"`
	Lags         []LagSpec         `yaml:"lags"`
	Interactions []InteractionSpec `yaml:"interactions"`
}

// Validate fails fast on nonsensical window or lag sizes.
func (s Spec) Validate() error {
	for _, r := range s.Rolling {
		if r.Window < 1 {
			return fmt.Errorf("rolling window for %q must be >= 1, got %d", r.Column, r.Window)
		}
	}
	for _, l := range s.Lags {
		if l.Periods < 1 {
			return fmt.Errorf("lag for %q must be >= 1, got %d", l.Column, l.Periods)
		}
	}
	for _, ix := range s.Interactions {
		switch ix.Op {
		case OpMultiply, OpRatio:
		default:
			return fmt.Errorf("interaction %q has unknown op %q", ix.Name, ix.Op)
		}
		if ix.Name == "" {
			return fmt.Errorf("interaction of %q and %q has no name", ix.A, ix.B)
		}
	}
	return nil
}

// Columns returns the derived column names in deterministic order:
// time features, composites, then rolling, lag and interaction
// columns in spec order.
func (s Spec) Columns() []string {
	out := append([]string{}, timeColumns...)
	out = append(out, compositeColumns...)
	for _, r := range s.Rolling {
		out = append(out, rollMeanName(r), rollStdName(r))
	}
	for _, l := range s.Lags {
		out = append(out, lagName(l))
	}
	for _, ix := range s.Interactions {
		out = append(out, ix.Name)
	}
	return out
}

// InputColumns returns the sorted distinct source columns the spec
// reads: rolling and lag columns plus interaction operands. Callers
// check these against the declared schema before any data is touched.
func (s Spec) InputColumns() []string {
	seen := make(map[string]struct{})
	for _, r := range s.Rolling {
		seen[r.Column] = struct{}{}
	}
	for _, l := range s.Lags {
		seen[l.Column] = struct{}{}
	}
	for _, ix := range s.Interactions {
		seen[ix.A] = struct{}{}
		seen[ix.B] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for col := range seen {
		out = append(out, col)
	}
	sort.Strings(out)
	return out
}

// DefaultSpec mirrors the analysis notebooks: daily and weekly windows
// over the headline column of each source, short lags for the same
// columns, and the two cross-source interaction terms.
func DefaultSpec() Spec {
	var s Spec
	for _, col := range []string{"temperature", "no2", "traffic_index"} {
		for _, w := range []int{24, 168} {
			s.Rolling = append(s.Rolling, RollingSpec{Column: col, Window: w})
		}
		for _, n := range []int{1, 6, 24} {
			s.Lags = append(s.Lags, LagSpec{Column: col, Periods: n})
		}
	}
	s.Interactions = []InteractionSpec{
		{A: "wind_speed", B: "no2", Op: OpMultiply, Name: "wind_no2_interaction"},
		{A: "humidity", B: "temperature", Op: OpMultiply, Name: "humidity_temp_interaction"},
	}
	return s
}

func rollMeanName(r RollingSpec) string { return fmt.Sprintf("%s_roll_mean_%dh", r.Column, r.Window) }
func rollStdName(r RollingSpec) string  { return fmt.Sprintf("%s_roll_std_%dh", r.Column, r.Window) }
func lagName(l LagSpec) string          { return fmt.Sprintf("%s_lag_%dh", l.Column, l.Periods) }

// Engineer derives the declared features in place on the unified
// dataset. Cities are independent, so each city's series is handled
// by one worker; workers bounds the concurrency (values < 1 mean
// sequential).
func Engineer(spec Spec, d *integrate.Dataset, workers int) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if workers < 1 {
		workers = 1
	}

	byCity := make(map[string][]int)
	for i, r := range d.Rows {
		byCity[r.CityKey] = append(byCity[r.CityKey], i)
	}
	cities := make([]string, 0, len(byCity))
	for c := range byCity {
		cities = append(cities, c)
	}
	sort.Strings(cities)

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for _, city := range cities {
		idx := byCity[city]
		wg.Add(1)
		sem <- struct{}{}
		go func(idx []int) {
			defer wg.Done()
			defer func() { <-sem }()
			deriveCity(spec, d, idx)
		}(idx)
	}
	wg.Wait()

	d.Columns = append(d.Columns, spec.Columns()...)
	return nil
}

// deriveCity computes every feature for one city's rows, which are
// already in timestamp order.
func deriveCity(spec Spec, d *integrate.Dataset, idx []int) {
	for _, i := range idx {
		r := &d.Rows[i]
		deriveTime(r)
		deriveComposites(r)
		for _, ix := range spec.Interactions {
			deriveInteraction(ix, r)
		}
	}
	for _, rs := range spec.Rolling {
		deriveRolling(rs, d, idx)
	}
	for _, ls := range spec.Lags {
		deriveLag(ls, d, idx)
	}
}

// deriveRolling fills <col>_roll_mean_<w>h and <col>_roll_std_<w>h.
// The window counts rows, includes the current row, and the first
// window-1 rows of a series stay missing so every emitted value saw a
// full window. Missing inputs inside a full window are skipped, not
// imputed.
func deriveRolling(rs RollingSpec, d *integrate.Dataset, idx []int) {
	meanCol, stdCol := rollMeanName(rs), rollStdName(rs)
	window := make([]float64, 0, rs.Window)
	for pos, i := range idx {
		if pos < rs.Window-1 {
			continue
		}
		window = window[:0]
		for _, j := range idx[pos-rs.Window+1 : pos+1] {
			if v, ok := d.Rows[j].Value(rs.Column); ok {
				window = append(window, v)
			}
		}
		if len(window) == 0 {
			continue
		}
		mean, std := stat.MeanStdDev(window, nil)
		d.Rows[i].Set(meanCol, mean)
		if len(window) > 1 && !math.IsNaN(std) {
			d.Rows[i].Set(stdCol, std)
		}
	}
}

// deriveLag fills <col>_lag_<n>h from the value n rows back. The
// first n rows of a series stay missing.
func deriveLag(ls LagSpec, d *integrate.Dataset, idx []int) {
	col := lagName(ls)
	for pos, i := range idx {
		if pos < ls.Periods {
			continue
		}
		if v, ok := d.Rows[idx[pos-ls.Periods]].Value(ls.Column); ok {
			d.Rows[i].Set(col, v)
		}
	}
}

// deriveInteraction fills a product or epsilon-guarded ratio; missing
// operands leave the feature missing.
func deriveInteraction(ix InteractionSpec, r *integrate.Row) {
	a, okA := r.Value(ix.A)
	b, okB := r.Value(ix.B)
	if !okA || !okB {
		return
	}
	switch ix.Op {
	case OpMultiply:
		r.Set(ix.Name, a*b)
	case OpRatio:
		if math.Abs(b) < ratioEpsilon {
			return
		}
		r.Set(ix.Name, a/b)
	}
}
