package server

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acepenergy/acep/pkg/weather"
)

func TestHandleWeather(t *testing.T) {
	var mu sync.Mutex
	var lastQuery map[string]string
	fail := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		q := r.URL.Query()
		lastQuery = map[string]string{
			"latitude":  q.Get("latitude"),
			"longitude": q.Get("longitude"),
			"timezone":  q.Get("timezone"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"latitude": 1, "longitude": 2, "timezone": "Asia/Bangkok",
			"hourly": {
				"time": ["2025-03-01T00:00", "2025-03-01T01:00", "2025-03-02T00:00"],
				"weather_code": [0, 1, 63]
			}
		}`))
	}))
	defer upstream.Close()

	s, db := newTestServer(t)
	s.weather = weather.New(upstream.URL, time.Minute)
	user := createTestUser(t, db, "weather")

	query := func(name string) string {
		mu.Lock()
		defer mu.Unlock()
		return lastQuery[name]
	}
	setFail := func(v bool) {
		mu.Lock()
		defer mu.Unlock()
		fail = v
	}
	get := func(target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		s.handleWeather(w, withUser(httptest.NewRequest("GET", target, nil), user))
		return w
	}

	t.Run("Settings Location", func(t *testing.T) {
		w := get("/api/weather")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeBody[weatherResponse](t, w)

		assert.Equal(t, "-1.256", query("latitude"))
		assert.Equal(t, "116.822", query("longitude"))
		assert.Equal(t, "Asia/Bangkok", resp.Timezone)
		require.Len(t, resp.Forecasts, 2)
		assert.Equal(t, 0, resp.Forecasts[0].WeatherCode)
		assert.Equal(t, weather.ConditionExcellent, resp.Forecasts[0].Condition)
		assert.Equal(t, 63, resp.Forecasts[1].WeatherCode)
	})

	t.Run("Query Location", func(t *testing.T) {
		w := get("/api/weather?latitude=13.75&longitude=100.5")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "13.75", query("latitude"))
		assert.Equal(t, "100.5", query("longitude"))
		resp := decodeBody[weatherResponse](t, w)
		assert.Equal(t, 13.75, resp.Latitude)
	})

	t.Run("Invalid Location", func(t *testing.T) {
		for _, q := range []string{"latitude=91", "longitude=-181", "latitude=abc", "latitude=NaN"} {
			w := get("/api/weather?" + q)
			assert.Equal(t, http.StatusBadRequest, w.Code, q)
		}
	})

	t.Run("Upstream Error", func(t *testing.T) {
		setFail(true)
		defer setFail(false)

		// cached locations are still served
		w := get("/api/weather")
		assert.Equal(t, http.StatusOK, w.Code)

		w = get("/api/weather?latitude=10&longitude=10")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"failed to fetch weather data"}`, w.Body.String())
	})
}
