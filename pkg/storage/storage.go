package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/acepenergy/acep/pkg/types"
	"github.com/levenlabs/go-lflag"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrNotFound     = errors.New("not found")
)

// Database defines the interface for persisting a user's devices, storage
// units, schedules and settings.
type Database interface {
	// Settings
	GetSettings(ctx context.Context, userID string) (types.Settings, int, error)
	SetSettings(ctx context.Context, userID string, settings types.Settings, version int) error

	// Users
	GetUser(ctx context.Context, userID string) (types.User, error)
	GetUserByEmail(ctx context.Context, email string) (types.User, error)
	CreateUser(ctx context.Context, user types.User) error

	// Devices
	// List calls return newest first.
	ListConsumptionTools(ctx context.Context, userID string) ([]types.ConsumptionTool, error)
	GetConsumptionTool(ctx context.Context, userID, id string) (types.ConsumptionTool, error)
	UpsertConsumptionTool(ctx context.Context, tool types.ConsumptionTool) error
	DeleteConsumptionTool(ctx context.Context, userID, id string) error

	ListPowerPlants(ctx context.Context, userID string) ([]types.PowerPlant, error)
	GetPowerPlant(ctx context.Context, userID, id string) (types.PowerPlant, error)
	UpsertPowerPlant(ctx context.Context, plant types.PowerPlant) error
	DeletePowerPlant(ctx context.Context, userID, id string) error

	ListStorageUnits(ctx context.Context, userID string) ([]types.StorageUnit, error)
	GetStorageUnit(ctx context.Context, userID, id string) (types.StorageUnit, error)
	UpsertStorageUnit(ctx context.Context, unit types.StorageUnit) error
	DeleteStorageUnit(ctx context.Context, userID, id string) error

	// Schedules
	// GetSchedules returns entries ordered by date. A zero start or end leaves
	// that side of the range open; both bounds are inclusive.
	GetSchedules(ctx context.Context, userID string, start, end types.Day) ([]types.ScheduleEntry, error)
	InsertSchedules(ctx context.Context, entries []types.ScheduleEntry) error
	UpdateSchedule(ctx context.Context, entry types.ScheduleEntry) error
	DeleteSchedule(ctx context.Context, userID, id string) error
	DeleteSchedulesByDate(ctx context.Context, userID string, day types.Day) error

	// Chat
	InsertChatHistory(ctx context.Context, chat types.ChatHistory) error
	// GetChatHistory returns up to limit turns, newest first.
	GetChatHistory(ctx context.Context, userID string, limit int) ([]types.ChatHistory, error)

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore, sqlite, postgres)")

	var p struct{ Database }

	fs := configuredFirestore()
	sq := configuredSQL()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case dialectSQLite, dialectPostgres:
			sq.dialect = *provider
			if err := sq.Validate(); err != nil {
				panic(fmt.Sprintf("%s validation failed: %v", *provider, err))
			}
			p.Database = sq
			if err := sq.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("%s init failed: %v", *provider, err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
