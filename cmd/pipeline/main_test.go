package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youngleee/DataAnalyticsHAW/internal/common"
)

func buildTestConfig(t *testing.T, start, end string) (time.Time, time.Time) {
	t.Helper()
	cfg, err := buildConfig(&common.Config{}, "data", "out", start, end, "Europe/Berlin", "", "", 1)
	require.NoError(t, err)
	return cfg.Start, cfg.End
}

func TestBuildConfigWindowEndsAtLastCivilHour(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// Plain day: midnight through 23:00 spans 23 absolute hours.
	start, end := buildTestConfig(t, "2023-06-01", "2023-06-01")
	assert.True(t, end.Equal(time.Date(2023, 6, 1, 23, 0, 0, 0, berlin)))
	assert.Equal(t, 23*time.Hour, end.Sub(start))

	// Fall-back day has 25 local hours; the window still ends at
	// 23:00 local, 24 absolute hours after midnight.
	start, end = buildTestConfig(t, "2023-10-29", "2023-10-29")
	assert.True(t, end.Equal(time.Date(2023, 10, 29, 23, 0, 0, 0, berlin)))
	assert.Equal(t, 24*time.Hour, end.Sub(start))

	// Spring-forward day has 23 local hours.
	start, end = buildTestConfig(t, "2023-03-26", "2023-03-26")
	assert.True(t, end.Equal(time.Date(2023, 3, 26, 23, 0, 0, 0, berlin)))
	assert.Equal(t, 22*time.Hour, end.Sub(start))
}

func TestBuildConfigRejectsInvertedWindow(t *testing.T) {
	_, err := buildConfig(&common.Config{}, "data", "out", "2023-06-02", "2023-06-01", "Europe/Berlin", "", "", 1)
	assert.Error(t, err)
}
