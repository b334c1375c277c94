package storage

import (
	"context"
	"testing"
	"time"

	"github.com/acepenergy/acep/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLProvider {
	t.Helper()
	p, err := NewSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestSQLRebind(t *testing.T) {
	p := &SQLProvider{dialect: dialectPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", p.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	p = &SQLProvider{dialect: dialectSQLite}
	assert.Equal(t, "SELECT ?", p.rebind("SELECT ?"))
}

func TestSQLValidate(t *testing.T) {
	assert.Error(t, (&SQLProvider{dialect: dialectPostgres}).Validate())
	assert.Error(t, (&SQLProvider{dialect: dialectSQLite}).Validate())
	assert.Error(t, (&SQLProvider{dialect: "mysql"}).Validate())
	assert.NoError(t, (&SQLProvider{dialect: dialectPostgres, postgresDSN: "postgres://localhost/acep"}).Validate())
}

func TestSQLProvider(t *testing.T) {
	ctx := context.Background()
	p := newTestSQLite(t)
	created := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	t.Run("Settings", func(t *testing.T) {
		s, version, err := p.GetSettings(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 0, version)
		assert.Equal(t, types.Settings{}, s)

		want := types.Settings{EffectiveHours: 7.5, Timezone: "UTC", ForecastDays: 3}
		require.NoError(t, p.SetSettings(ctx, "u1", want, 2))
		require.NoError(t, p.SetSettings(ctx, "u1", want, types.CurrentSettingsVersion))

		s, version, err = p.GetSettings(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, types.CurrentSettingsVersion, version)
		assert.Equal(t, want, s)
	})

	t.Run("Users", func(t *testing.T) {
		_, err := p.GetUser(ctx, "missing")
		assert.ErrorIs(t, err, ErrUserNotFound)

		user := types.User{ID: "u1", Email: "demo@acep.app", FullName: "Demo", Role: types.RoleDemo, Latitude: -1.256, Longitude: 116.822, CreatedAt: created}
		require.NoError(t, p.CreateUser(ctx, user))
		assert.Error(t, p.CreateUser(ctx, types.User{ID: "u2", Email: "demo@acep.app"}), "email is unique")

		got, err := p.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, user.Email, got.Email)
		assert.True(t, user.CreatedAt.Equal(got.CreatedAt))

		got, err = p.GetUserByEmail(ctx, "demo@acep.app")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.ID)

		_, err = p.GetUserByEmail(ctx, "nobody@acep.app")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("Devices", func(t *testing.T) {
		require.NoError(t, p.UpsertConsumptionTool(ctx, types.ConsumptionTool{ID: "t1", UserID: "u1", Name: "Pump", KWPerHour: 2, CreatedAt: created}))
		require.NoError(t, p.UpsertConsumptionTool(ctx, types.ConsumptionTool{ID: "t2", UserID: "u1", Name: "Fridge", KWPerHour: 0.5, CreatedAt: created.Add(time.Hour)}))
		require.NoError(t, p.UpsertConsumptionTool(ctx, types.ConsumptionTool{ID: "t1", UserID: "u1", Name: "Big Pump", KWPerHour: 3, CreatedAt: created}))

		tools, err := p.ListConsumptionTools(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, tools, 2)
		assert.Equal(t, "t2", tools[0].ID, "newest first")
		assert.Equal(t, "Big Pump", tools[1].Name)
		assert.Equal(t, 3.0, tools[1].KWPerHour)

		tool, err := p.GetConsumptionTool(ctx, "u1", "t1")
		require.NoError(t, err)
		assert.Equal(t, "Big Pump", tool.Name)
		_, err = p.GetConsumptionTool(ctx, "u2", "t1")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, p.DeleteConsumptionTool(ctx, "u1", "t2"))
		assert.ErrorIs(t, p.DeleteConsumptionTool(ctx, "u1", "t2"), ErrNotFound)

		require.NoError(t, p.UpsertPowerPlant(ctx, types.PowerPlant{ID: "p1", UserID: "u1", Name: "Solar", KWPerHour: 5, Quantity: 4, CreatedAt: created}))
		plants, err := p.ListPowerPlants(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, plants, 1)
		assert.Equal(t, 4, plants[0].Quantity)
		plant, err := p.GetPowerPlant(ctx, "u1", "p1")
		require.NoError(t, err)
		assert.Equal(t, "Solar", plant.Name)
		require.NoError(t, p.DeletePowerPlant(ctx, "u1", "p1"))
		_, err = p.GetPowerPlant(ctx, "u1", "p1")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, p.UpsertStorageUnit(ctx, types.StorageUnit{ID: "s1", UserID: "u1", Name: "Bank A", CapacityKWH: 600, CurrentKWH: 300, CreatedAt: created}))
		require.NoError(t, p.UpsertStorageUnit(ctx, types.StorageUnit{ID: "s2", UserID: "u1", Name: "Bank B", CapacityKWH: 400, CurrentKWH: 200, CreatedAt: created}))
		units, err := p.ListStorageUnits(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, types.StoragePool{TotalCapacityKWH: 1000, CurrentKWH: 500}, types.PoolOf(units))
		unit, err := p.GetStorageUnit(ctx, "u1", "s2")
		require.NoError(t, err)
		assert.Equal(t, "Bank B", unit.Name)
		require.NoError(t, p.DeleteStorageUnit(ctx, "u1", "s2"))
		assert.ErrorIs(t, p.DeleteStorageUnit(ctx, "u1", "s2"), ErrNotFound)
	})

	t.Run("Schedules", func(t *testing.T) {
		d := func(s string) types.Day {
			day, err := types.ParseDay(s)
			require.NoError(t, err)
			return day
		}
		entries := []types.ScheduleEntry{
			{ID: "e3", UserID: "u1", Date: d("2025-06-03"), DeviceID: "t1", DeviceName: "Pump", DeviceKind: types.DeviceKindConsumptionTool, HoursUsed: 2, EnergyConsumption: 6, CreatedAt: created},
			{ID: "e1", UserID: "u1", Date: d("2025-06-01"), DeviceID: "t1", DeviceName: "Pump", DeviceKind: types.DeviceKindConsumptionTool, HoursUsed: 1, EnergyConsumption: 3, IsRecurring: true, CreatedAt: created},
			{ID: "e2", UserID: "u1", Date: d("2025-06-01"), DeviceID: "p1", DeviceName: "Solar", DeviceKind: types.DeviceKindPowerPlant, HoursUsed: 9, EnergyGeneration: 180, CreatedAt: created.Add(time.Minute)},
			{ID: "x1", UserID: "u2", Date: d("2025-06-01"), DeviceID: "t9", DeviceName: "Other", DeviceKind: types.DeviceKindConsumptionTool, EnergyConsumption: 1, CreatedAt: created},
		}
		require.NoError(t, p.InsertSchedules(ctx, entries))

		all, err := p.GetSchedules(ctx, "u1", types.Day{}, types.Day{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"e1", "e2", "e3"}, []string{all[0].ID, all[1].ID, all[2].ID})
		assert.True(t, all[0].IsRecurring)
		assert.Equal(t, types.DeviceKindPowerPlant, all[1].DeviceKind)
		assert.Equal(t, 180.0, all[1].EnergyGeneration)

		ranged, err := p.GetSchedules(ctx, "u1", d("2025-06-02"), d("2025-06-03"))
		require.NoError(t, err)
		require.Len(t, ranged, 1)
		assert.Equal(t, "e3", ranged[0].ID)

		upd := all[2]
		upd.HoursUsed = 4
		upd.EnergyConsumption = 12
		require.NoError(t, p.UpdateSchedule(ctx, upd))
		assert.ErrorIs(t, p.UpdateSchedule(ctx, types.ScheduleEntry{ID: "nope", UserID: "u1", Date: d("2025-06-01")}), ErrNotFound)

		require.NoError(t, p.DeleteSchedulesByDate(ctx, "u1", d("2025-06-01")))
		all, err = p.GetSchedules(ctx, "u1", types.Day{}, types.Day{})
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, 12.0, all[0].EnergyConsumption)

		other, err := p.GetSchedules(ctx, "u2", types.Day{}, types.Day{})
		require.NoError(t, err)
		assert.Len(t, other, 1, "other users untouched")

		require.NoError(t, p.DeleteSchedule(ctx, "u1", "e3"))
		assert.ErrorIs(t, p.DeleteSchedule(ctx, "u1", "e3"), ErrNotFound)
	})

	t.Run("Chat History", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.NoError(t, p.InsertChatHistory(ctx, types.ChatHistory{
				SessionID: "s1",
				UserID:    "u1",
				FullName:  "Demo",
				Chat:      "hello",
				Output:    "hi",
				CreatedAt: created.Add(time.Duration(i) * time.Minute),
			}))
		}
		history, err := p.GetChatHistory(ctx, "u1", 2)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.True(t, history[0].CreatedAt.After(history[1].CreatedAt))
		assert.NotEmpty(t, history[0].ID)
	})
}

func TestPlan(t *testing.T) {
	ctx := context.Background()
	p := newTestSQLite(t)
	day := types.NewDay(2025, time.June, 1)

	plan := types.Plan{
		Tools:  []types.ConsumptionTool{{ID: "t1", Name: "Pump", KWPerHour: 2}},
		Plants: []types.PowerPlant{{ID: "p1", Name: "Solar", KWPerHour: 5, Quantity: 2}},
		Units:  []types.StorageUnit{{ID: "s1", Name: "Bank", CapacityKWH: 100, CurrentKWH: 40}},
		Schedules: []types.ScheduleEntry{
			{ID: "e1", Date: day, DeviceID: "t1", DeviceKind: types.DeviceKindConsumptionTool, EnergyConsumption: 10},
			{ID: "e2", Date: day.AddDays(1), DeviceID: "p1", DeviceKind: types.DeviceKindPowerPlant, EnergyGeneration: 90},
		},
	}
	require.NoError(t, SavePlan(ctx, p, "u1", plan))

	loaded, err := LoadPlan(ctx, p, "u1", day, day.AddDays(1))
	require.NoError(t, err)
	assert.Len(t, loaded.Tools, 1)
	assert.Len(t, loaded.Plants, 1)
	assert.Equal(t, types.StoragePool{TotalCapacityKWH: 100, CurrentKWH: 40}, loaded.Pool())
	require.Len(t, loaded.Schedules, 2)
	assert.Equal(t, "u1", loaded.Schedules[0].UserID)

	t.Run("Replace Day", func(t *testing.T) {
		require.NoError(t, ReplaceDay(ctx, p, "u1", day, []types.ScheduleEntry{
			{ID: "e3", UserID: "u1", Date: day, DeviceID: "t1", DeviceKind: types.DeviceKindConsumptionTool, EnergyConsumption: 4},
		}))
		entries, err := p.GetSchedules(ctx, "u1", day, day)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "e3", entries[0].ID)

		require.NoError(t, ReplaceDay(ctx, p, "u1", day, nil))
		entries, err = p.GetSchedules(ctx, "u1", day, day)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}
