package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/acepenergy/acep/pkg/log"
	"github.com/acepenergy/acep/pkg/projection"
	"github.com/acepenergy/acep/pkg/schedule"
	"github.com/acepenergy/acep/pkg/storage"
	"github.com/acepenergy/acep/pkg/types"
)

// maxRangeDays bounds how many days a single request may cover.
const maxRangeDays = 366

// parseRange reads the start and end query parameters. When required is false
// either may be omitted and is returned as the zero Day.
func parseRange(r *http.Request, required bool) (types.Day, types.Day, error) {
	var start, end types.Day
	for _, p := range []struct {
		name string
		dst  *types.Day
	}{{"start", &start}, {"end", &end}} {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			if required {
				return start, end, fmt.Errorf("%s is required", p.name)
			}
			continue
		}
		d, err := types.ParseDay(raw)
		if err != nil {
			return start, end, fmt.Errorf("invalid %s date", p.name)
		}
		*p.dst = d
	}
	if start.IsZero() || end.IsZero() {
		return start, end, nil
	}
	if end.Before(start) {
		return start, end, errors.New("end must not be before start")
	}
	if types.DaysBetween(start, end)+1 > maxRangeDays {
		return start, end, fmt.Errorf("range cannot exceed %d days", maxRangeDays)
	}
	return start, end, nil
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := s.getUser(r)
	start, end, err := parseRange(r, false)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries, err := s.storage.GetSchedules(ctx, user.ID, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get schedules", slog.Any("error", err))
		writeJSONError(w, "failed to get schedules", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []types.ScheduleEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// devices loads the user's tools and plants for building schedule entries.
func (s *Server) devices(r *http.Request, userID string) (schedule.Devices, error) {
	tools, err := s.storage.ListConsumptionTools(r.Context(), userID)
	if err != nil {
		return schedule.Devices{}, fmt.Errorf("failed to list consumption tools: %w", err)
	}
	plants, err := s.storage.ListPowerPlants(r.Context(), userID)
	if err != nil {
		return schedule.Devices{}, fmt.Errorf("failed to list power plants: %w", err)
	}
	return schedule.NewDevices(tools, plants), nil
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := s.getUser(r)
	id := r.PathValue("id")

	var req struct {
		schedule.Assignment
		Date types.Day `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode schedule", slog.Any("error", err))
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Date.IsZero() {
		writeJSONError(w, "date is required", http.StatusBadRequest)
		return
	}

	devices, err := s.devices(r, user.ID)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load devices", slog.Any("error", err))
		writeJSONError(w, "failed to load devices", http.StatusInternalServerError)
		return
	}
	entry, err := devices.Entry(user.ID, req.Date, req.Assignment, s.now().UTC())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	entry.ID = id
	if err := s.storage.UpdateSchedule(ctx, entry); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSONError(w, "schedule not found", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to update schedule", slog.String("id", id), slog.Any("error", err))
		writeJSONError(w, "failed to update schedule", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := s.getUser(r)
	id := r.PathValue("id")
	if err := s.storage.DeleteSchedule(ctx, user.ID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSONError(w, "schedule not found", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to delete schedule", slog.String("id", id), slog.Any("error", err))
		writeJSONError(w, "failed to delete schedule", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type dayResponse struct {
	Date    types.Day              `json:"date"`
	Entries []types.ScheduleEntry  `json:"entries"`
	Result  projection.DailyResult `json:"result"`
	Pool    types.StoragePool      `json:"pool"`
}

func (s *Server) handleGetDay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := s.getUser(r)
	day, err := types.ParseDay(r.PathValue("date"))
	if err != nil {
		writeJSONError(w, "invalid date", http.StatusBadRequest)
		return
	}

	// the day's storage depends on every earlier day of the month
	monthStart, _ := types.MonthBounds(day.Year(), day.Month())
	plan, err := storage.LoadPlan(ctx, s.storage, user.ID, monthStart, day)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load plan", slog.Any("error", err))
		writeJSONError(w, "failed to load schedules", http.StatusInternalServerError)
		return
	}
	pool := plan.Pool()
	results := projection.Project(monthStart, day, plan.Schedules, pool)

	resp := dayResponse{
		Date:    day,
		Entries: []types.ScheduleEntry{},
		Result:  results[len(results)-1],
		Pool:    pool,
	}
	for _, e := range plan.Schedules {
		if e.Date == day {
			resp.Entries = append(resp.Entries, e)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type saveDayRequest struct {
	Assignments []schedule.Assignment `json:"assignments"`
	// RepeatThrough copies the day's recurring entries onto every later day
	// up to and including it.
	RepeatThrough types.Day `json:"repeatThrough"`
}

type saveDayResponse struct {
	Date     types.Day             `json:"date"`
	Entries  []types.ScheduleEntry `json:"entries"`
	Repeated int                   `json:"repeated"`
}

func (s *Server) handleSaveDay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := s.getUser(r)
	day, err := types.ParseDay(r.PathValue("date"))
	if err != nil {
		writeJSONError(w, "invalid date", http.StatusBadRequest)
		return
	}

	var req saveDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode day", slog.Any("error", err))
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.RepeatThrough.IsZero() {
		if !req.RepeatThrough.After(day) {
			writeJSONError(w, "repeatThrough must be after the date", http.StatusBadRequest)
			return
		}
		if types.DaysBetween(day, req.RepeatThrough) > maxRangeDays {
			writeJSONError(w, fmt.Sprintf("repeatThrough cannot be more than %d days out", maxRangeDays), http.StatusBadRequest)
			return
		}
	}

	devices, err := s.devices(r, user.ID)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load devices", slog.Any("error", err))
		writeJSONError(w, "failed to load devices", http.StatusInternalServerError)
		return
	}
	entries, err := devices.Day(user.ID, day, req.Assignments, s.now().UTC())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := storage.ReplaceDay(ctx, s.storage, user.ID, day, entries); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to save day", slog.Any("error", err))
		writeJSONError(w, "failed to save schedules", http.StatusInternalServerError)
		return
	}

	resp := saveDayResponse{Date: day, Entries: entries}
	if !req.RepeatThrough.IsZero() {
		n, err := s.repeatDay(r, user.ID, entries, req.RepeatThrough)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to repeat day", slog.Any("error", err))
			writeJSONError(w, "failed to repeat schedules", http.StatusInternalServerError)
			return
		}
		resp.Repeated = n
	}
	log.Ctx(ctx).InfoContext(ctx, "saved day", slog.String("date", day.String()), slog.Int("entries", len(entries)), slog.Int("repeated", resp.Repeated))
	writeJSON(w, http.StatusOK, resp)
}

// repeatDay materializes the recurring entries through the given day. On each
// later day, a copy replaces any entry for the same device and leaves other
// entries alone.
func (s *Server) repeatDay(r *http.Request, userID string, entries []types.ScheduleEntry, through types.Day) (int, error) {
	ctx := r.Context()
	copies := schedule.Materialize(entries, through)
	if len(copies) == 0 {
		return 0, nil
	}
	existing, err := s.storage.GetSchedules(ctx, userID, copies[0].Date, through)
	if err != nil {
		return 0, fmt.Errorf("failed to get schedules: %w", err)
	}

	byDay := map[types.Day][]types.ScheduleEntry{}
	replaced := map[types.Day]map[string]bool{}
	for _, c := range copies {
		byDay[c.Date] = append(byDay[c.Date], c)
		if replaced[c.Date] == nil {
			replaced[c.Date] = map[string]bool{}
		}
		replaced[c.Date][c.DeviceID] = true
	}
	for _, e := range existing {
		if _, ok := byDay[e.Date]; ok && !replaced[e.Date][e.DeviceID] {
			byDay[e.Date] = append(byDay[e.Date], e)
		}
	}
	for _, d := range types.DayRange(copies[0].Date, through) {
		if _, ok := byDay[d]; !ok {
			continue
		}
		if err := storage.ReplaceDay(ctx, s.storage, userID, d, byDay[d]); err != nil {
			return 0, err
		}
	}
	return len(copies), nil
}
