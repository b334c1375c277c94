package server

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/acepenergy/acep/pkg/log"
	"github.com/acepenergy/acep/pkg/weather"
)

type weatherResponse struct {
	Latitude  float64                 `json:"latitude"`
	Longitude float64                 `json:"longitude"`
	Timezone  string                  `json:"timezone"`
	Forecasts []weather.DailyForecast `json:"forecasts"`
}

// parseCoordinate reads a float query parameter, returning def when absent.
func parseCoordinate(r *http.Request, name string, def float64) (float64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := s.getUser(r)
	settings, err := s.getSettingsWithMigration(ctx, user.ID)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get settings", slog.Any("error", err))
		writeJSONError(w, "failed to get settings", http.StatusInternalServerError)
		return
	}

	lat, okLat := parseCoordinate(r, "latitude", settings.Latitude)
	lon, okLon := parseCoordinate(r, "longitude", settings.Longitude)
	if !okLat || !okLon || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		writeJSONError(w, "invalid latitude or longitude", http.StatusBadRequest)
		return
	}

	loc := weather.Location{
		Latitude:  lat,
		Longitude: lon,
		Timezone:  settings.Location().String(),
	}
	forecasts, err := s.weather.Forecast(ctx, loc, settings.ForecastDays)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch weather", slog.Any("error", err))
		writeJSONError(w, "failed to fetch weather data", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, weatherResponse{
		Latitude:  lat,
		Longitude: lon,
		Timezone:  loc.Timezone,
		Forecasts: forecasts,
	})
}
