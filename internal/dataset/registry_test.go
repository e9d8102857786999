package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCityKeyVariations(t *testing.T) {
	reg := DefaultRegistry()

	tests := []struct {
		raw  string
		want string
	}{
		{"Berlin", "berlin"},
		{"BERLIN", "berlin"},
		{"  berlin  ", "berlin"},
		{"München", "munich"},
		{"MÜNCHEN", "munich"},
		{"Munich", "munich"},
		{"Köln", "cologne"},
		{"Cologne", "cologne"},
		{"Frankfurt am Main", "frankfurt"},
		{"Frankfurt", "frankfurt"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reg.NormalizeCityKey(tt.raw), "raw=%q", tt.raw)
	}
}

func TestNormalizeCityKeyUnknownIsStable(t *testing.T) {
	reg := DefaultRegistry()

	// Unknown names still fold deterministically so dedup and joins
	// see one key per spelling family.
	assert.Equal(t, reg.NormalizeCityKey("Würzburg"), reg.NormalizeCityKey("WURZBURG"))
	assert.Equal(t, "wurzburg", reg.NormalizeCityKey("Würzburg"))
}

func TestRegistryKeysAreSorted(t *testing.T) {
	reg := DefaultRegistry()
	assert.Equal(t,
		[]string{"berlin", "cologne", "frankfurt", "hamburg", "munich"},
		reg.Keys())
}

func TestRegistryCityLookup(t *testing.T) {
	reg := DefaultRegistry()

	c, ok := reg.City("munich")
	require.True(t, ok)
	assert.Equal(t, "Munich", c.Name)
	assert.InDelta(t, 48.1351, c.Lat, 1e-9)

	_, ok = reg.City("atlantis")
	assert.False(t, ok)
}
