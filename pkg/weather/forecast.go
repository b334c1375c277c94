// Package weather turns open-meteo hourly weather codes into daily
// generation outlooks for display.
package weather

import (
	"math"
	"sort"
	"strings"

	"github.com/acepenergy/acep/pkg/types"
)

// Condition is a coarse rating of a day's weather for solar generation.
type Condition string

const (
	ConditionExcellent Condition = "excellent"
	ConditionGood      Condition = "good"
	ConditionFair      Condition = "fair"
	ConditionPoor      Condition = "poor"
)

// ConditionOf rates a WMO weather code.
func ConditionOf(code int) Condition {
	switch {
	case code == 0:
		return ConditionExcellent
	case code >= 1 && code <= 3:
		return ConditionGood
	case code >= 45 && code <= 67:
		return ConditionFair
	default:
		return ConditionPoor
	}
}

// PredictedKWH is the rough generation expected on a day with condition c.
func PredictedKWH(c Condition) float64 {
	switch c {
	case ConditionExcellent:
		return 50
	case ConditionGood:
		return 35
	case ConditionFair:
		return 20
	default:
		return 10
	}
}

var descriptions = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Fog",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	56: "Light freezing drizzle",
	57: "Dense freezing drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	66: "Light freezing rain",
	67: "Heavy freezing rain",
	71: "Slight snow fall",
	73: "Moderate snow fall",
	75: "Heavy snow fall",
	77: "Snow grains",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	85: "Slight snow showers",
	86: "Heavy snow showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

// Describe returns the English description of a WMO weather code.
func Describe(code int) string {
	if d, ok := descriptions[code]; ok {
		return d
	}
	return "Unknown"
}

// Hourly is the raw hourly series behind a daily forecast.
type Hourly struct {
	Time        []string `json:"time"`
	WeatherCode []int    `json:"weatherCode"`
}

// DailyForecast summarizes one day of hourly weather codes.
type DailyForecast struct {
	Date         types.Day `json:"date"`
	WeatherCode  int       `json:"weatherCode"`
	Condition    Condition `json:"weatherCondition"`
	Description  string    `json:"description"`
	PredictedKWH float64   `json:"predictedKWH"`
	Hourly       Hourly    `json:"hourly"`
}

// openMeteoResponse is the subset of the forecast API response we read.
// Codes are pointers because the API sends null for hours it has no data for.
type openMeteoResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	Hourly    struct {
		Time        []string `json:"time"`
		WeatherCode []*int   `json:"weather_code"`
	} `json:"hourly"`
}

// dailyForecasts groups hourly codes by the date prefix of their timestamp
// and averages each day, rounding half up. Days come back in date order.
func dailyForecasts(resp openMeteoResponse) []DailyForecast {
	byDay := map[types.Day]*Hourly{}
	for i, ts := range resp.Hourly.Time {
		if i >= len(resp.Hourly.WeatherCode) || resp.Hourly.WeatherCode[i] == nil {
			continue
		}
		datePart, _, _ := strings.Cut(ts, "T")
		day, err := types.ParseDay(datePart)
		if err != nil {
			continue
		}
		h, ok := byDay[day]
		if !ok {
			h = &Hourly{}
			byDay[day] = h
		}
		h.Time = append(h.Time, ts)
		h.WeatherCode = append(h.WeatherCode, *resp.Hourly.WeatherCode[i])
	}

	out := make([]DailyForecast, 0, len(byDay))
	for day, h := range byDay {
		sum := 0
		for _, c := range h.WeatherCode {
			sum += c
		}
		avg := int(math.Floor(float64(sum)/float64(len(h.WeatherCode)) + 0.5))
		cond := ConditionOf(avg)
		out = append(out, DailyForecast{
			Date:         day,
			WeatherCode:  avg,
			Condition:    cond,
			Description:  Describe(avg),
			PredictedKWH: PredictedKWH(cond),
			Hourly:       *h,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
