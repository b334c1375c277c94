package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acepenergy/acep/pkg/types"
)

func TestConditionOf(t *testing.T) {
	tests := []struct {
		code int
		want Condition
		kwh  float64
	}{
		{0, ConditionExcellent, 50},
		{1, ConditionGood, 35},
		{3, ConditionGood, 35},
		{4, ConditionPoor, 10},
		{45, ConditionFair, 20},
		{67, ConditionFair, 20},
		{71, ConditionPoor, 10},
		{95, ConditionPoor, 10},
	}
	for _, tt := range tests {
		got := ConditionOf(tt.code)
		assert.Equal(t, tt.want, got, "code %d", tt.code)
		assert.Equal(t, tt.kwh, PredictedKWH(got), "code %d", tt.code)
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Clear sky", Describe(0))
	assert.Equal(t, "Thunderstorm with heavy hail", Describe(99))
	assert.Equal(t, "Unknown", Describe(42))
}

func intp(v int) *int { return &v }

func TestDailyForecasts(t *testing.T) {
	var resp openMeteoResponse
	resp.Hourly.Time = []string{
		"2025-03-02T00:00", "2025-03-02T01:00",
		"2025-03-01T00:00", "2025-03-01T01:00", "2025-03-01T02:00",
		"bad",
	}
	resp.Hourly.WeatherCode = []*int{
		intp(2), intp(3),
		intp(0), intp(1), nil,
		intp(0),
	}

	got := dailyForecasts(resp)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, types.NewDay(2025, time.March, 1), first.Date)
	// (0+1)/2 = 0.5 rounds up
	assert.Equal(t, 1, first.WeatherCode)
	assert.Equal(t, ConditionGood, first.Condition)
	assert.Equal(t, "Mainly clear", first.Description)
	assert.Equal(t, []string{"2025-03-01T00:00", "2025-03-01T01:00"}, first.Hourly.Time)

	second := got[1]
	assert.Equal(t, types.NewDay(2025, time.March, 2), second.Date)
	assert.Equal(t, 3, second.WeatherCode)
	assert.Equal(t, 35.0, second.PredictedKWH)
}

func TestClientForecast(t *testing.T) {
	var calls atomic.Int32
	var failing atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		q := r.URL.Query()
		assert.Equal(t, "weather_code", q.Get("hourly"))
		if q.Get("latitude") == "-1.256" {
			assert.Equal(t, "116.822", q.Get("longitude"))
			assert.Equal(t, "Asia/Bangkok", q.Get("timezone"))
			assert.Equal(t, "2025-03-01", q.Get("start_date"))
			assert.Equal(t, "2025-03-03", q.Get("end_date"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hourly":{"time":["2025-03-01T00:00","2025-03-02T00:00"],"weather_code":[0,61]}}`))
	}))
	defer server.Close()

	now := time.Date(2025, 2, 28, 20, 0, 0, 0, time.UTC) // 03:00 on Mar 1 in Bangkok
	c := New(server.URL, time.Hour)
	c.now = func() time.Time { return now }
	loc := Location{Latitude: -1.256, Longitude: 116.822, Timezone: "Asia/Bangkok"}

	t.Run("Fetch", func(t *testing.T) {
		got, err := c.Forecast(context.Background(), loc, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, ConditionExcellent, got[0].Condition)
		assert.Equal(t, ConditionFair, got[1].Condition)
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("Cached", func(t *testing.T) {
		got, err := c.Forecast(context.Background(), loc, 0)
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("Stale On Error", func(t *testing.T) {
		failing.Store(true)
		defer failing.Store(false)
		now = now.Add(2 * time.Hour)
		got, err := c.Forecast(context.Background(), loc, 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.EqualValues(t, 2, calls.Load())
	})

	t.Run("Error Without Cache", func(t *testing.T) {
		failing.Store(true)
		defer failing.Store(false)
		_, err := c.Forecast(context.Background(), Location{Latitude: 1, Longitude: 2, Timezone: "UTC"}, 2)
		assert.Error(t, err)
	})

	t.Run("Refresh", func(t *testing.T) {
		before := calls.Load()
		c.Refresh(context.Background())
		// both locations that were requested are refetched
		assert.Equal(t, before+2, calls.Load())
	})
}

func TestClientStart(t *testing.T) {
	c := New("http://127.0.0.1:0", time.Minute)
	require.NoError(t, c.Start(context.Background()))
	c.Stop()

	c.schedule = "not a schedule"
	assert.Error(t, c.Start(context.Background()))

	c.schedule = "@every 1h"
	require.NoError(t, c.Start(context.Background()))
	c.Stop()
}
