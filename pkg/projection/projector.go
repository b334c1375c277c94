package projection

import (
	"math"

	"github.com/acepenergy/acep/pkg/types"
)

// Status classifies whether a day's load is covered.
type Status string

const (
	// StatusSafe means stored energy alone covers the day's load.
	StatusSafe Status = "safe"
	// StatusWarning means the day's generation is needed to cover the load.
	StatusWarning Status = "warning"
	// StatusInsufficient means storage plus generation falls short.
	StatusInsufficient Status = "insufficient"
)

// DailyResult is the projected energy state for one day.
type DailyResult struct {
	Date             types.Day `json:"date"`
	Status           Status    `json:"status"`
	StorageBefore    float64   `json:"storageBefore"`
	StorageAfter     float64   `json:"storageAfter"`
	TotalConsumption float64   `json:"totalConsumption"`
	TotalGeneration  float64   `json:"totalGeneration"`
	NetEnergy        float64   `json:"netEnergy"`
}

// Classify returns the status for a day that opens with storageBefore and
// schedules the given consumption and generation. Meeting a threshold exactly
// counts as covered.
func Classify(storageBefore, consumption, generation float64) Status {
	switch {
	case storageBefore >= consumption:
		return StatusSafe
	case storageBefore+generation >= consumption:
		return StatusWarning
	default:
		return StatusInsufficient
	}
}

// Step projects a single day. The day opens with prev's StorageAfter, or with
// the pool's current charge when prev is nil. The closing balance is clamped
// to [0, pool.TotalCapacityKWH].
func Step(day types.Day, entries []types.ScheduleEntry, pool types.StoragePool, prev *DailyResult) DailyResult {
	before := pool.CurrentKWH
	if prev != nil {
		before = prev.StorageAfter
	}
	consumption, generation := Aggregate(day, entries)
	return DailyResult{
		Date:             day,
		Status:           Classify(before, consumption, generation),
		StorageBefore:    before,
		StorageAfter:     clamp(before+generation-consumption, 0, pool.TotalCapacityKWH),
		TotalConsumption: consumption,
		TotalGeneration:  generation,
		NetEnergy:        generation - consumption,
	}
}

// Project walks every day from start through end inclusive, carrying the
// storage balance from each day into the next. It returns an empty slice when
// end is before start.
func Project(start, end types.Day, entries []types.ScheduleEntry, pool types.StoragePool) []DailyResult {
	return ProjectDays(types.DayRange(start, end), entries, pool)
}

// ProjectDays is Project over an explicit list of days, walked in the order
// given. Callers wanting calendar carry-over should pass ascending days.
func ProjectDays(days []types.Day, entries []types.ScheduleEntry, pool types.StoragePool) []DailyResult {
	results := make([]DailyResult, 0, len(days))
	var prev *DailyResult
	for _, day := range days {
		results = append(results, Step(day, entries, pool, prev))
		prev = &results[len(results)-1]
	}
	return results
}

// StatusMap indexes results by day.
func StatusMap(results []DailyResult) map[types.Day]Status {
	m := make(map[types.Day]Status, len(results))
	for _, r := range results {
		m[r.Date] = r.Status
	}
	return m
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
