package types

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// CurrentSettingsVersion is the current version of the settings struct.
// Increment this value when adding new fields that require default values.
const CurrentSettingsVersion = 3

const (
	DefaultEffectiveHours = 9.0
	DefaultLatitude       = -1.256
	DefaultLongitude      = 116.822
	DefaultTimezone       = "Asia/Bangkok"
	DefaultForecastDays   = 14
)

// Settings are per-user knobs that can be changed without redeploying.
type Settings struct {
	// Hours per day a power plant is assumed to produce at its rated output
	EffectiveHours float64 `json:"effectiveHours"`

	// Site location used for weather forecasts
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`

	// How many days past today to request forecasts for
	ForecastDays int `json:"forecastDays"`
}

// Location returns the settings' timezone, falling back to UTC when the name
// is unknown.
func (s Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil || s.Timezone == "" {
		return time.UTC
	}
	return loc
}

// MigrateSettings migrates the settings to the current version.
// It returns the migrated settings and a boolean indicating if any changes were made.
func MigrateSettings(s Settings, currentVersion int) (Settings, bool, error) {
	if currentVersion >= CurrentSettingsVersion {
		return s, false, nil
	}

	migrated := false
	for version := currentVersion + 1; version <= CurrentSettingsVersion; version++ {
		switch version {
		case 1:
			// version 1: initial
			if s.EffectiveHours == 0 {
				s.EffectiveHours = DefaultEffectiveHours
				migrated = true
			}
		case 2:
			// version 2: site location for forecasts
			if s.Latitude == 0 && s.Longitude == 0 {
				s.Latitude = DefaultLatitude
				s.Longitude = DefaultLongitude
				migrated = true
			}
			if s.Timezone == "" {
				s.Timezone = DefaultTimezone
				migrated = true
			}
		case 3:
			if s.ForecastDays == 0 {
				s.ForecastDays = DefaultForecastDays
				migrated = true
			}
		default:
			return s, migrated, fmt.Errorf("unknown settings version: %d", version)
		}
	}
	return s, migrated, nil
}
