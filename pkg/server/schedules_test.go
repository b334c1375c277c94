package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acepenergy/acep/pkg/projection"
	"github.com/acepenergy/acep/pkg/storage"
	"github.com/acepenergy/acep/pkg/types"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		required bool
		start    types.Day
		end      types.Day
		wantErr  bool
	}{
		{name: "Both", query: "start=2025-03-01&end=2025-03-31", start: types.NewDay(2025, time.March, 1), end: types.NewDay(2025, time.March, 31)},
		{name: "Same Day", query: "start=2025-03-01&end=2025-03-01", start: types.NewDay(2025, time.March, 1), end: types.NewDay(2025, time.March, 1)},
		{name: "Open Ended", query: "start=2025-03-01", start: types.NewDay(2025, time.March, 1)},
		{name: "Empty", query: ""},
		{name: "Required Missing", query: "start=2025-03-01", required: true, wantErr: true},
		{name: "Invalid Date", query: "start=2025-02-30&end=2025-03-01", wantErr: true},
		{name: "Reversed", query: "start=2025-03-02&end=2025-03-01", wantErr: true},
		{name: "Full Leap Year", query: "start=2024-01-01&end=2024-12-31", start: types.NewDay(2024, time.January, 1), end: types.NewDay(2024, time.December, 31)},
		{name: "Too Long", query: "start=2024-01-01&end=2025-01-01", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := parseRange(httptest.NewRequest("GET", "/api/projection?"+tt.query, nil), tt.required)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

// seedDevices stores a 1 kW lamp, two 2 kW solar panels and a 10 kWh battery
// holding 5 kWh for user.
func seedDevices(t *testing.T, db storage.Database, user types.User) {
	t.Helper()
	err := storage.SavePlan(context.Background(), db, user.ID, types.Plan{
		Tools:  []types.ConsumptionTool{{ID: "lamp", Name: "Lamp", KWPerHour: 1, CreatedAt: testNow}},
		Plants: []types.PowerPlant{{ID: "solar", Name: "Solar", KWPerHour: 2, Quantity: 2, CreatedAt: testNow}},
		Units:  []types.StorageUnit{{ID: "bat", Name: "Battery", CapacityKWH: 10, CurrentKWH: 5, CreatedAt: testNow}},
	})
	require.NoError(t, err)
}

func saveDay(s *Server, user types.User, date string, body any) *httptest.ResponseRecorder {
	req := withUser(jsonRequest("PUT", "/api/days/"+date, body), user)
	req.SetPathValue("date", date)
	w := httptest.NewRecorder()
	s.handleSaveDay(w, req)
	return w
}

func TestHandleSaveDay(t *testing.T) {
	ctx := context.Background()
	s, db := newTestServer(t)
	user := createTestUser(t, db, "days")
	seedDevices(t, db, user)

	mar := func(d int) types.Day { return types.NewDay(2025, time.March, d) }

	// an existing day that a repeat should merge into
	existing := []map[string]any{
		{"deviceID": "lamp", "deviceType": "consumption_tool", "hours": 1},
		{"deviceID": "solar", "deviceType": "power_plant", "hours": 1},
	}
	require.Equal(t, http.StatusOK, saveDay(s, user, "2025-03-11", map[string]any{"assignments": existing}).Code)

	w := saveDay(s, user, "2025-03-10", map[string]any{
		"assignments": []map[string]any{
			{"deviceID": "lamp", "deviceType": "consumption_tool", "hours": 3, "isRecurring": true},
			{"deviceID": "solar", "deviceType": "power_plant", "hours": 2},
			{"deviceID": "lamp", "deviceType": "consumption_tool", "hours": 0},
		},
		"repeatThrough": "2025-03-12",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[saveDayResponse](t, w)
	assert.Equal(t, mar(10), resp.Date)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, 2, resp.Repeated)
	assert.InDelta(t, 3, resp.Entries[0].EnergyConsumption, 1e-9)
	assert.InDelta(t, 8, resp.Entries[1].EnergyGeneration, 1e-9)

	t.Run("Repeat Replaces Same Device", func(t *testing.T) {
		entries, err := db.GetSchedules(ctx, user.ID, mar(11), mar(11))
		require.NoError(t, err)
		require.Len(t, entries, 2)
		byDevice := map[string]types.ScheduleEntry{}
		for _, e := range entries {
			byDevice[e.DeviceID] = e
		}
		assert.Equal(t, 3.0, byDevice["lamp"].HoursUsed)
		assert.False(t, byDevice["lamp"].IsRecurring)
		assert.Equal(t, 1.0, byDevice["solar"].HoursUsed)

		entries, err = db.GetSchedules(ctx, user.ID, mar(12), mar(12))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "lamp", entries[0].DeviceID)
	})

	t.Run("Replaces Day", func(t *testing.T) {
		w := saveDay(s, user, "2025-03-12", map[string]any{"assignments": []map[string]any{}})
		require.Equal(t, http.StatusOK, w.Code)
		entries, err := db.GetSchedules(ctx, user.ID, mar(12), mar(12))
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("Hours Clamped", func(t *testing.T) {
		w := saveDay(s, user, "2025-03-20", map[string]any{
			"assignments": []map[string]any{{"deviceID": "lamp", "deviceType": "consumption_tool", "hours": 30}},
		})
		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[saveDayResponse](t, w)
		require.Len(t, resp.Entries, 1)
		assert.Equal(t, 24.0, resp.Entries[0].HoursUsed)
	})

	t.Run("Unknown Device", func(t *testing.T) {
		w := saveDay(s, user, "2025-03-20", map[string]any{
			"assignments": []map[string]any{{"deviceID": "nope", "deviceType": "consumption_tool", "hours": 1}},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Unknown Kind", func(t *testing.T) {
		w := saveDay(s, user, "2025-03-20", map[string]any{
			"assignments": []map[string]any{{"deviceID": "lamp", "deviceType": "heater", "hours": 1}},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Repeat Not After", func(t *testing.T) {
		w := saveDay(s, user, "2025-03-20", map[string]any{"repeatThrough": "2025-03-20"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Repeat Too Far", func(t *testing.T) {
		w := saveDay(s, user, "2025-03-20", map[string]any{"repeatThrough": "2026-04-01"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Invalid Date", func(t *testing.T) {
		w := saveDay(s, user, "2025-13-01", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleGetDay(t *testing.T) {
	s, db := newTestServer(t)
	user := createTestUser(t, db, "getday")
	seedDevices(t, db, user)

	require.Equal(t, http.StatusOK, saveDay(s, user, "2025-03-10", map[string]any{
		"assignments": []map[string]any{
			{"deviceID": "lamp", "deviceType": "consumption_tool", "hours": 3},
			{"deviceID": "solar", "deviceType": "power_plant", "hours": 2},
		},
	}).Code)
	require.Equal(t, http.StatusOK, saveDay(s, user, "2025-03-11", map[string]any{
		"assignments": []map[string]any{
			{"deviceID": "lamp", "deviceType": "consumption_tool", "hours": 12},
		},
	}).Code)

	get := func(date string) *httptest.ResponseRecorder {
		req := withUser(httptest.NewRequest("GET", "/api/days/"+date, nil), user)
		req.SetPathValue("date", date)
		w := httptest.NewRecorder()
		s.handleGetDay(w, req)
		return w
	}

	w := get("2025-03-11")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[dayResponse](t, w)
	require.Len(t, resp.Entries, 1)
	// 03-10 opens at 5 and closes at min(5+8-3, 10)
	assert.Equal(t, 10.0, resp.Result.StorageBefore)
	assert.Equal(t, 12.0, resp.Result.TotalConsumption)
	assert.Equal(t, projection.StatusInsufficient, resp.Result.Status)
	assert.Equal(t, 0.0, resp.Result.StorageAfter)
	assert.Equal(t, types.StoragePool{TotalCapacityKWH: 10, CurrentKWH: 5}, resp.Pool)

	t.Run("First Of Month", func(t *testing.T) {
		w := get("2025-04-01")
		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[dayResponse](t, w)
		assert.Empty(t, resp.Entries)
		assert.Equal(t, 5.0, resp.Result.StorageBefore)
		assert.Equal(t, projection.StatusSafe, resp.Result.Status)
	})

	t.Run("Invalid", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, get("yesterday").Code)
	})
}

func TestScheduleEntries(t *testing.T) {
	ctx := context.Background()
	s, db := newTestServer(t)
	user := createTestUser(t, db, "entries")
	seedDevices(t, db, user)

	w := saveDay(s, user, "2025-03-10", map[string]any{
		"assignments": []map[string]any{{"deviceID": "lamp", "deviceType": "consumption_tool", "hours": 3}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	id := decodeBody[saveDayResponse](t, w).Entries[0].ID

	update := func(id string, body any) *httptest.ResponseRecorder {
		req := withUser(jsonRequest("PUT", "/api/schedules/"+id, body), user)
		req.SetPathValue("id", id)
		w := httptest.NewRecorder()
		s.handleUpdateSchedule(w, req)
		return w
	}

	t.Run("List", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.handleListSchedules(w, withUser(httptest.NewRequest("GET", "/api/schedules?start=2025-03-01&end=2025-03-31", nil), user))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decodeBody[[]types.ScheduleEntry](t, w), 1)

		w = httptest.NewRecorder()
		s.handleListSchedules(w, withUser(httptest.NewRequest("GET", "/api/schedules?start=2025-04-01", nil), user))
		assert.JSONEq(t, `[]`, w.Body.String())

		w = httptest.NewRecorder()
		s.handleListSchedules(w, withUser(httptest.NewRequest("GET", "/api/schedules?start=bad", nil), user))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Update", func(t *testing.T) {
		w := update(id, map[string]any{
			"date":       "2025-03-12",
			"deviceID":   "solar",
			"deviceType": "power_plant",
			"hours":      5,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		got := decodeBody[types.ScheduleEntry](t, w)
		assert.Equal(t, id, got.ID)
		assert.InDelta(t, 20, got.EnergyGeneration, 1e-9)
		assert.Zero(t, got.EnergyConsumption)

		entries, err := db.GetSchedules(ctx, user.ID, types.NewDay(2025, time.March, 12), types.NewDay(2025, time.March, 12))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "Solar", entries[0].DeviceName)
	})

	t.Run("Update Missing Date", func(t *testing.T) {
		w := update(id, map[string]any{"deviceID": "lamp", "deviceType": "consumption_tool", "hours": 1})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Update Not Found", func(t *testing.T) {
		w := update("missing", map[string]any{"date": "2025-03-12", "deviceID": "lamp", "deviceType": "consumption_tool", "hours": 1})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Delete", func(t *testing.T) {
		del := func() int {
			req := withUser(httptest.NewRequest("DELETE", "/api/schedules/"+id, nil), user)
			req.SetPathValue("id", id)
			w := httptest.NewRecorder()
			s.handleDeleteSchedule(w, req)
			return w.Code
		}
		assert.Equal(t, http.StatusNoContent, del())
		assert.Equal(t, http.StatusNotFound, del())
	})
}
