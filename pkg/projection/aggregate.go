package projection

import (
	"github.com/acepenergy/acep/pkg/types"
)

// Aggregate sums the consumption and generation scheduled on day. Entries on
// other days and entries of an unknown kind are ignored. Values are summed as
// given, so a negative figure reduces its total.
func Aggregate(day types.Day, entries []types.ScheduleEntry) (consumption, generation float64) {
	for _, e := range entries {
		if e.Date != day {
			continue
		}
		switch e.DeviceKind {
		case types.DeviceKindConsumptionTool:
			consumption += e.EnergyConsumption
		case types.DeviceKindPowerPlant:
			generation += e.EnergyGeneration
		}
	}
	return consumption, generation
}
