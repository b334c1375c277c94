package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSettings(t *testing.T) {
	t.Run("v1: initial defaults", func(t *testing.T) {
		s, changed, err := MigrateSettings(Settings{}, 0)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 9.0, s.EffectiveHours)
		assert.Equal(t, -1.256, s.Latitude)
		assert.Equal(t, 116.822, s.Longitude)
		assert.Equal(t, "Asia/Bangkok", s.Timezone)
		assert.Equal(t, 14, s.ForecastDays)
	})

	t.Run("v1 to v2: keeps existing location", func(t *testing.T) {
		s, changed, err := MigrateSettings(Settings{EffectiveHours: 6, Latitude: 51.5, Longitude: -0.12}, 1)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 6.0, s.EffectiveHours)
		assert.Equal(t, 51.5, s.Latitude)
		assert.Equal(t, -0.12, s.Longitude)
		assert.Equal(t, "Asia/Bangkok", s.Timezone)
	})

	t.Run("v2 to v3: forecast days", func(t *testing.T) {
		s, changed, err := MigrateSettings(Settings{ForecastDays: 7}, 2)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, 7, s.ForecastDays)
	})

	t.Run("no change: current version", func(t *testing.T) {
		current := Settings{EffectiveHours: 5, Timezone: "UTC"}
		s, changed, err := MigrateSettings(current, CurrentSettingsVersion)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, current, s)
	})
}

func TestSettingsLocation(t *testing.T) {
	assert.Equal(t, time.UTC, Settings{}.Location())
	assert.Equal(t, time.UTC, Settings{Timezone: "Not/AZone"}.Location())
	assert.Equal(t, "Asia/Bangkok", Settings{Timezone: "Asia/Bangkok"}.Location().String())
}
