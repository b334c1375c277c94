package storage

import (
	"context"
	"fmt"

	"github.com/acepenergy/acep/pkg/types"
)

// LoadPlan reads the devices, storage units and schedules of userID that a
// projection over [start, end] needs.
func LoadPlan(ctx context.Context, db Database, userID string, start, end types.Day) (types.Plan, error) {
	var plan types.Plan
	var err error
	if plan.Tools, err = db.ListConsumptionTools(ctx, userID); err != nil {
		return types.Plan{}, fmt.Errorf("failed to list consumption tools: %w", err)
	}
	if plan.Plants, err = db.ListPowerPlants(ctx, userID); err != nil {
		return types.Plan{}, fmt.Errorf("failed to list power plants: %w", err)
	}
	if plan.Units, err = db.ListStorageUnits(ctx, userID); err != nil {
		return types.Plan{}, fmt.Errorf("failed to list storage units: %w", err)
	}
	if plan.Schedules, err = db.GetSchedules(ctx, userID, start, end); err != nil {
		return types.Plan{}, fmt.Errorf("failed to get schedules: %w", err)
	}
	return plan, nil
}

// SavePlan writes every record of plan. Schedules on a date present in the
// plan replace whatever was stored for that date.
func SavePlan(ctx context.Context, db Database, userID string, plan types.Plan) error {
	for _, t := range plan.Tools {
		t.UserID = userID
		if err := db.UpsertConsumptionTool(ctx, t); err != nil {
			return fmt.Errorf("failed to save consumption tool %s: %w", t.ID, err)
		}
	}
	for _, p := range plan.Plants {
		p.UserID = userID
		if err := db.UpsertPowerPlant(ctx, p); err != nil {
			return fmt.Errorf("failed to save power plant %s: %w", p.ID, err)
		}
	}
	for _, u := range plan.Units {
		u.UserID = userID
		if err := db.UpsertStorageUnit(ctx, u); err != nil {
			return fmt.Errorf("failed to save storage unit %s: %w", u.ID, err)
		}
	}

	byDay := map[types.Day][]types.ScheduleEntry{}
	var days []types.Day
	for _, e := range plan.Schedules {
		e.UserID = userID
		if _, ok := byDay[e.Date]; !ok {
			days = append(days, e.Date)
		}
		byDay[e.Date] = append(byDay[e.Date], e)
	}
	for _, d := range days {
		if err := ReplaceDay(ctx, db, userID, d, byDay[d]); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceDay deletes every schedule entry of userID on day and inserts entries.
func ReplaceDay(ctx context.Context, db Database, userID string, day types.Day, entries []types.ScheduleEntry) error {
	if err := db.DeleteSchedulesByDate(ctx, userID, day); err != nil {
		return fmt.Errorf("failed to clear schedules on %s: %w", day, err)
	}
	if len(entries) == 0 {
		return nil
	}
	if err := db.InsertSchedules(ctx, entries); err != nil {
		return fmt.Errorf("failed to insert schedules on %s: %w", day, err)
	}
	return nil
}
