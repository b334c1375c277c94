package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"
	"gopkg.in/yaml.v3"

	"github.com/acepenergy/acep/pkg/log"
	"github.com/acepenergy/acep/pkg/schedule"
	"github.com/acepenergy/acep/pkg/storage"
	"github.com/acepenergy/acep/pkg/types"
)

//go:embed demo.yaml
var demoFixture []byte

type fixture struct {
	User struct {
		Email     string  `yaml:"email"`
		FullName  string  `yaml:"fullName"`
		Role      string  `yaml:"role"`
		Latitude  float64 `yaml:"latitude"`
		Longitude float64 `yaml:"longitude"`
	} `yaml:"user"`
	Settings *struct {
		EffectiveHours float64 `yaml:"effectiveHours"`
		Latitude       float64 `yaml:"latitude"`
		Longitude      float64 `yaml:"longitude"`
		Timezone       string  `yaml:"timezone"`
		ForecastDays   int     `yaml:"forecastDays"`
	} `yaml:"settings"`
	Tools []struct {
		ID        string  `yaml:"id"`
		Name      string  `yaml:"name"`
		KWPerHour float64 `yaml:"kwPerHour"`
	} `yaml:"tools"`
	Plants []struct {
		ID        string  `yaml:"id"`
		Name      string  `yaml:"name"`
		KWPerHour float64 `yaml:"kwPerHour"`
		Quantity  int     `yaml:"quantity"`
	} `yaml:"plants"`
	Storage []struct {
		ID          string  `yaml:"id"`
		Name        string  `yaml:"name"`
		CapacityKWH float64 `yaml:"capacityKWH"`
		CurrentKWH  float64 `yaml:"currentKWH"`
	} `yaml:"storage"`
	// RepeatDays materializes recurring entries this many days past today.
	RepeatDays int               `yaml:"repeatDays"`
	Schedules  []fixtureSchedule `yaml:"schedules"`
}

type fixtureSchedule struct {
	// Either Date or Offset (days from today) places the entry.
	Date       types.Day        `yaml:"date"`
	Offset     int              `yaml:"offset"`
	DeviceID   string           `yaml:"deviceID"`
	DeviceKind types.DeviceKind `yaml:"deviceType"`
	Hours      float64          `yaml:"hours"`
	Recurring  bool             `yaml:"recurring"`
}

func parseFixture(b []byte) (fixture, error) {
	var f fixture
	if err := yaml.Unmarshal(b, &f); err != nil {
		return fixture{}, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if f.User.Email == "" {
		return fixture{}, errors.New("fixture user.email is required")
	}
	return f, nil
}

// plan turns the fixture into the records to store for userID, placing
// offsets relative to today.
func (f fixture) plan(userID string, today types.Day, now time.Time) (types.Plan, error) {
	var p types.Plan
	for _, t := range f.Tools {
		p.Tools = append(p.Tools, types.ConsumptionTool{
			ID: t.ID, UserID: userID, Name: t.Name, KWPerHour: t.KWPerHour, CreatedAt: now,
		})
	}
	for _, pl := range f.Plants {
		p.Plants = append(p.Plants, types.PowerPlant{
			ID: pl.ID, UserID: userID, Name: pl.Name, KWPerHour: pl.KWPerHour, Quantity: pl.Quantity, CreatedAt: now,
		})
	}
	for _, u := range f.Storage {
		p.Units = append(p.Units, types.StorageUnit{
			ID: u.ID, UserID: userID, Name: u.Name, CapacityKWH: u.CapacityKWH, CurrentKWH: u.CurrentKWH, CreatedAt: now,
		})
	}

	devices := schedule.NewDevices(p.Tools, p.Plants)
	for _, s := range f.Schedules {
		day := s.Date
		if day.IsZero() {
			day = today.AddDays(s.Offset)
		}
		e, err := devices.Entry(userID, day, schedule.Assignment{
			DeviceID:   s.DeviceID,
			DeviceKind: s.DeviceKind,
			Hours:      s.Hours,
			Recurring:  s.Recurring,
		}, now)
		if err != nil {
			return types.Plan{}, err
		}
		p.Schedules = append(p.Schedules, e)
	}
	if f.RepeatDays > 0 {
		p.Schedules = append(p.Schedules, schedule.Materialize(p.Schedules, today.AddDays(f.RepeatDays))...)
	}
	return p, nil
}

func (f fixture) user() types.User {
	return types.User{
		Email:     f.User.Email,
		FullName:  f.User.FullName,
		Role:      f.User.Role,
		Latitude:  f.User.Latitude,
		Longitude: f.User.Longitude,
	}
}

func (f fixture) settings() (types.Settings, bool) {
	if f.Settings == nil {
		return types.Settings{}, false
	}
	return types.Settings{
		EffectiveHours: f.Settings.EffectiveHours,
		Latitude:       f.Settings.Latitude,
		Longitude:      f.Settings.Longitude,
		Timezone:       f.Settings.Timezone,
		ForecastDays:   f.Settings.ForecastDays,
	}, true
}

func seed(ctx context.Context, db storage.Database, f fixture, now time.Time) (types.User, types.Plan, error) {
	user, err := db.GetUserByEmail(ctx, f.User.Email)
	if errors.Is(err, storage.ErrUserNotFound) {
		user = f.user()
		user.ID = uuid.NewString()
		user.CreatedAt = now
		if user.Role == "" {
			user.Role = types.RoleUser
		}
		if err := db.CreateUser(ctx, user); err != nil {
			return types.User{}, types.Plan{}, fmt.Errorf("failed to create user: %w", err)
		}
	} else if err != nil {
		return types.User{}, types.Plan{}, fmt.Errorf("failed to look up user: %w", err)
	}

	settings, ok := f.settings()
	if ok {
		if err := db.SetSettings(ctx, user.ID, settings, types.CurrentSettingsVersion); err != nil {
			return types.User{}, types.Plan{}, fmt.Errorf("failed to save settings: %w", err)
		}
	} else {
		settings, _, _ = types.MigrateSettings(types.Settings{}, 0)
	}

	plan, err := f.plan(user.ID, types.DayOf(now.In(settings.Location())), now)
	if err != nil {
		return types.User{}, types.Plan{}, err
	}
	if err := storage.SavePlan(ctx, db, user.ID, plan); err != nil {
		return types.User{}, types.Plan{}, err
	}
	return user, plan, nil
}

func main() {
	s := storage.Configured()
	seedFile := lflag.String("seed-file", "", "YAML fixture to load (defaults to the built-in demo account)")
	lflag.Configure()

	ctx := context.Background()
	defer s.Close()

	b := demoFixture
	if *seedFile != "" {
		var err error
		b, err = os.ReadFile(*seedFile)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to read seed file", slog.Any("error", err))
			os.Exit(1)
		}
	}
	f, err := parseFixture(b)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid seed file", slog.Any("error", err))
		os.Exit(1)
	}

	log.Ctx(ctx).InfoContext(ctx, "seeding data", slog.String("email", f.User.Email))
	user, plan, err := seed(ctx, s, f, time.Now().UTC())
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(
		ctx,
		"seeded data",
		slog.String("userID", user.ID),
		slog.Int("tools", len(plan.Tools)),
		slog.Int("plants", len(plan.Plants)),
		slog.Int("storageUnits", len(plan.Units)),
		slog.Int("schedules", len(plan.Schedules)),
	)
}
