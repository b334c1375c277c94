// Package schedule builds schedule entries from device assignments.
package schedule

import (
	"fmt"
	"time"

	"github.com/acepenergy/acep/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MaxHours = 24
	// MaxEnergyKWH is the largest energy figure a single entry may carry.
	MaxEnergyKWH = 999999999.99
)

var maxEnergy = decimal.RequireFromString("999999999.99")

// ClampHours bounds hours to [0, MaxHours].
func ClampHours(hours float64) float64 {
	if hours < 0 {
		return 0
	}
	if hours > MaxHours {
		return MaxHours
	}
	return hours
}

// Energy returns rate × hours × quantity rounded to two decimals and capped
// at MaxEnergyKWH. Negative results are floored at zero.
func Energy(kwPerHour float64, quantity int, hours float64) float64 {
	e := decimal.NewFromFloat(kwPerHour).
		Mul(decimal.NewFromInt(int64(quantity))).
		Mul(decimal.NewFromFloat(hours)).
		Round(2)
	if e.GreaterThan(maxEnergy) {
		e = maxEnergy
	}
	if e.IsNegative() {
		return 0
	}
	return e.InexactFloat64()
}

// Assignment says a device runs for Hours on a day.
type Assignment struct {
	DeviceID   string           `json:"deviceID"`
	DeviceKind types.DeviceKind `json:"deviceType"`
	Hours      float64          `json:"hours"`
	Recurring  bool             `json:"isRecurring"`
}

// Devices indexes a user's tools and plants for building entries.
type Devices struct {
	tools  map[string]types.ConsumptionTool
	plants map[string]types.PowerPlant
}

// NewDevices returns Devices over tools and plants.
func NewDevices(tools []types.ConsumptionTool, plants []types.PowerPlant) Devices {
	d := Devices{
		tools:  make(map[string]types.ConsumptionTool, len(tools)),
		plants: make(map[string]types.PowerPlant, len(plants)),
	}
	for _, t := range tools {
		d.tools[t.ID] = t
	}
	for _, p := range plants {
		d.plants[p.ID] = p
	}
	return d
}

// Entry builds the schedule entry for a on day. Hours are clamped and energy
// is computed from the device's rating.
func (d Devices) Entry(userID string, day types.Day, a Assignment, now time.Time) (types.ScheduleEntry, error) {
	hours := ClampHours(a.Hours)
	e := types.ScheduleEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Date:        day,
		DeviceID:    a.DeviceID,
		DeviceKind:  a.DeviceKind,
		HoursUsed:   hours,
		IsRecurring: a.Recurring,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	switch a.DeviceKind {
	case types.DeviceKindConsumptionTool:
		tool, ok := d.tools[a.DeviceID]
		if !ok {
			return types.ScheduleEntry{}, fmt.Errorf("unknown consumption tool: %s", a.DeviceID)
		}
		e.DeviceName = tool.Name
		e.EnergyConsumption = Energy(tool.KWPerHour, 1, hours)
	case types.DeviceKindPowerPlant:
		plant, ok := d.plants[a.DeviceID]
		if !ok {
			return types.ScheduleEntry{}, fmt.Errorf("unknown power plant: %s", a.DeviceID)
		}
		e.DeviceName = plant.Name
		e.EnergyGeneration = Energy(plant.KWPerHour, plant.Quantity, hours)
	default:
		return types.ScheduleEntry{}, fmt.Errorf("unknown device type: %q", a.DeviceKind)
	}
	return e, nil
}

// Day builds entries for every assignment with positive hours. Assignments
// with zero hours are dropped, matching how a cleared device is saved.
func (d Devices) Day(userID string, day types.Day, assignments []Assignment, now time.Time) ([]types.ScheduleEntry, error) {
	entries := make([]types.ScheduleEntry, 0, len(assignments))
	for _, a := range assignments {
		if ClampHours(a.Hours) == 0 {
			continue
		}
		e, err := d.Entry(userID, day, a, now)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DailyGeneration estimates what plants produce in a day running for
// effectiveHours.
func DailyGeneration(plants []types.PowerPlant, effectiveHours float64) float64 {
	total := decimal.Zero
	for _, p := range plants {
		total = total.Add(decimal.NewFromFloat(Energy(p.KWPerHour, p.Quantity, effectiveHours)))
	}
	return total.InexactFloat64()
}

// Materialize copies every recurring entry onto each later day through the
// given day inclusive. The copies get fresh IDs and are not marked recurring
// themselves, so materializing again does not multiply them.
func Materialize(entries []types.ScheduleEntry, through types.Day) []types.ScheduleEntry {
	var out []types.ScheduleEntry
	for _, e := range entries {
		if !e.IsRecurring {
			continue
		}
		for d := e.Date.AddDays(1); !d.After(through); d = d.AddDays(1) {
			c := e
			c.ID = uuid.NewString()
			c.Date = d
			c.IsRecurring = false
			out = append(out, c)
		}
	}
	return out
}
