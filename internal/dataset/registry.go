package dataset

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// City is one entry of the city registry: the stable key all sources
// share, a display name, the name variations collectors are known to
// emit, and coordinates.
type City struct {
	Key        string   `yaml:"-"`
	Name       string   `yaml:"name"`
	Variations []string `yaml:"variations"`
	Lat        float64  `yaml:"lat"`
	Lon        float64  `yaml:"lon"`
}

// Registry is the immutable city reference data. It is loaded once at
// startup and shared read-only by every component; no method mutates
// it after NewRegistry returns.
type Registry struct {
	cities map[string]City
	lookup map[string]string // folded variation -> key
}

// NewRegistry builds a registry from city entries.
func NewRegistry(cities []City) *Registry {
	r := &Registry{
		cities: make(map[string]City, len(cities)),
		lookup: make(map[string]string),
	}
	for _, c := range cities {
		r.cities[c.Key] = c
		r.lookup[foldCityName(c.Key)] = c.Key
		r.lookup[foldCityName(c.Name)] = c.Key
		for _, v := range c.Variations {
			r.lookup[foldCityName(v)] = c.Key
		}
	}
	return r
}

// City returns the registry entry for a key.
func (r *Registry) City(key string) (City, bool) {
	c, ok := r.cities[key]
	return c, ok
}

// Keys returns all registered city keys, sorted.
func (r *Registry) Keys() []string {
	out := make([]string, 0, len(r.cities))
	for k := range r.cities {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NormalizeCityKey maps a raw city name onto its stable key.
// Matching is case-insensitive and diacritic-insensitive, so
// "München", "MUNICH" and "muenchen"-style variations all resolve via
// the registered variations. Unknown names fold to a lowercase key so
// the same unknown spelling always yields the same key.
func (r *Registry) NormalizeCityKey(raw string) string {
	folded := foldCityName(raw)
	if key, ok := r.lookup[folded]; ok {
		return key
	}
	return folded
}

// foldCityName lowercases, trims and strips diacritics: "München" ->
// "munchen". NFD decomposition followed by removal of combining marks.
func foldCityName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

type registryFile struct {
	Cities map[string]City `yaml:"cities"`
}

// LoadRegistry reads a city registry YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	cities := make([]City, 0, len(f.Cities))
	for key, c := range f.Cities {
		c.Key = key
		cities = append(cities, c)
	}
	return NewRegistry(cities), nil
}

// DefaultRegistry returns the built-in registry for the German study
// cities. A registry file overrides it wholesale.
func DefaultRegistry() *Registry {
	return NewRegistry([]City{
		{Key: "berlin", Name: "Berlin", Variations: []string{"Berlin", "BERLIN"}, Lat: 52.5200, Lon: 13.4050},
		{Key: "munich", Name: "Munich", Variations: []string{"Munich", "München", "MUNICH", "MÜNCHEN"}, Lat: 48.1351, Lon: 11.5820},
		{Key: "hamburg", Name: "Hamburg", Variations: []string{"Hamburg", "HAMBURG"}, Lat: 53.5511, Lon: 10.0000},
		{Key: "cologne", Name: "Cologne", Variations: []string{"Cologne", "Köln", "COLOGNE", "KÖLN"}, Lat: 50.9375, Lon: 6.9603},
		{Key: "frankfurt", Name: "Frankfurt am Main", Variations: []string{"Frankfurt", "Frankfurt am Main", "FRANKFURT"}, Lat: 50.1109, Lon: 8.6821},
	})
}
