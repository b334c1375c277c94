package storagemock

import (
	"context"

	"github.com/acepenergy/acep/pkg/storage"
	"github.com/acepenergy/acep/pkg/types"
	"github.com/stretchr/testify/mock"
)

// MockDatabase is a testify mock of storage.Database.
type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetSettings(ctx context.Context, userID string) (types.Settings, int, error) {
	args := m.Called(ctx, userID)
	// return empty if not specified
	if len(args) > 0 {
		return args.Get(0).(types.Settings), args.Int(1), args.Error(2)
	}
	return types.Settings{}, 0, nil
}

func (m *MockDatabase) SetSettings(ctx context.Context, userID string, settings types.Settings, version int) error {
	args := m.Called(ctx, userID, settings, version)
	return args.Error(0)
}

func (m *MockDatabase) GetUser(ctx context.Context, userID string) (types.User, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(types.User), args.Error(1)
}

func (m *MockDatabase) GetUserByEmail(ctx context.Context, email string) (types.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(types.User), args.Error(1)
}

func (m *MockDatabase) CreateUser(ctx context.Context, user types.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockDatabase) ListConsumptionTools(ctx context.Context, userID string) ([]types.ConsumptionTool, error) {
	args := m.Called(ctx, userID)
	if v, ok := args.Get(0).([]types.ConsumptionTool); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) GetConsumptionTool(ctx context.Context, userID, id string) (types.ConsumptionTool, error) {
	args := m.Called(ctx, userID, id)
	return args.Get(0).(types.ConsumptionTool), args.Error(1)
}

func (m *MockDatabase) UpsertConsumptionTool(ctx context.Context, tool types.ConsumptionTool) error {
	args := m.Called(ctx, tool)
	return args.Error(0)
}

func (m *MockDatabase) DeleteConsumptionTool(ctx context.Context, userID, id string) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *MockDatabase) ListPowerPlants(ctx context.Context, userID string) ([]types.PowerPlant, error) {
	args := m.Called(ctx, userID)
	if v, ok := args.Get(0).([]types.PowerPlant); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) GetPowerPlant(ctx context.Context, userID, id string) (types.PowerPlant, error) {
	args := m.Called(ctx, userID, id)
	return args.Get(0).(types.PowerPlant), args.Error(1)
}

func (m *MockDatabase) UpsertPowerPlant(ctx context.Context, plant types.PowerPlant) error {
	args := m.Called(ctx, plant)
	return args.Error(0)
}

func (m *MockDatabase) DeletePowerPlant(ctx context.Context, userID, id string) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *MockDatabase) ListStorageUnits(ctx context.Context, userID string) ([]types.StorageUnit, error) {
	args := m.Called(ctx, userID)
	if v, ok := args.Get(0).([]types.StorageUnit); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) GetStorageUnit(ctx context.Context, userID, id string) (types.StorageUnit, error) {
	args := m.Called(ctx, userID, id)
	return args.Get(0).(types.StorageUnit), args.Error(1)
}

func (m *MockDatabase) UpsertStorageUnit(ctx context.Context, unit types.StorageUnit) error {
	args := m.Called(ctx, unit)
	return args.Error(0)
}

func (m *MockDatabase) DeleteStorageUnit(ctx context.Context, userID, id string) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *MockDatabase) GetSchedules(ctx context.Context, userID string, start, end types.Day) ([]types.ScheduleEntry, error) {
	args := m.Called(ctx, userID, start, end)
	if v, ok := args.Get(0).([]types.ScheduleEntry); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) InsertSchedules(ctx context.Context, entries []types.ScheduleEntry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

func (m *MockDatabase) UpdateSchedule(ctx context.Context, entry types.ScheduleEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockDatabase) DeleteSchedule(ctx context.Context, userID, id string) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *MockDatabase) DeleteSchedulesByDate(ctx context.Context, userID string, day types.Day) error {
	args := m.Called(ctx, userID, day)
	return args.Error(0)
}

func (m *MockDatabase) InsertChatHistory(ctx context.Context, chat types.ChatHistory) error {
	args := m.Called(ctx, chat)
	return args.Error(0)
}

func (m *MockDatabase) GetChatHistory(ctx context.Context, userID string, limit int) ([]types.ChatHistory, error) {
	args := m.Called(ctx, userID, limit)
	if v, ok := args.Get(0).([]types.ChatHistory); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	if len(args) > 0 {
		return args.Error(0)
	}
	return nil
}
