package projection

import (
	"time"

	"github.com/acepenergy/acep/pkg/types"
)

// Summary counts statuses and totals energy over a set of results.
type Summary struct {
	TotalDays        int     `json:"totalDays"`
	SafeDays         int     `json:"safe"`
	WarningDays      int     `json:"warning"`
	InsufficientDays int     `json:"insufficient"`
	TotalConsumption float64 `json:"totalConsumption"`
	TotalGeneration  float64 `json:"totalGeneration"`
	// MinStorageAfter is the lowest closing balance, zero when there are no days.
	MinStorageAfter float64 `json:"minStorageAfter"`
	// FirstInsufficient is the earliest insufficient day, zero when none.
	FirstInsufficient types.Day `json:"firstInsufficient,omitzero"`
}

// Summarize builds a Summary from results.
func Summarize(results []DailyResult) Summary {
	var s Summary
	for i, r := range results {
		s.TotalDays++
		switch r.Status {
		case StatusSafe:
			s.SafeDays++
		case StatusWarning:
			s.WarningDays++
		case StatusInsufficient:
			s.InsufficientDays++
			if s.FirstInsufficient.IsZero() || r.Date.Before(s.FirstInsufficient) {
				s.FirstInsufficient = r.Date
			}
		}
		s.TotalConsumption += r.TotalConsumption
		s.TotalGeneration += r.TotalGeneration
		if i == 0 || r.StorageAfter < s.MinStorageAfter {
			s.MinStorageAfter = r.StorageAfter
		}
	}
	return s
}

// MonthRollup is a Summary for one calendar month.
type MonthRollup struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Summary
}

// ByMonth groups results by calendar month, ordered by first appearance.
func ByMonth(results []DailyResult) []MonthRollup {
	var rollups []MonthRollup
	index := map[[2]int]int{}
	grouped := [][]DailyResult{}
	for _, r := range results {
		key := [2]int{r.Date.Year(), int(r.Date.Month())}
		i, ok := index[key]
		if !ok {
			i = len(grouped)
			index[key] = i
			grouped = append(grouped, nil)
			rollups = append(rollups, MonthRollup{Year: key[0], Month: time.Month(key[1])})
		}
		grouped[i] = append(grouped[i], r)
	}
	for i := range rollups {
		rollups[i].Summary = Summarize(grouped[i])
	}
	return rollups
}
