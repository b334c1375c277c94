package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/acepenergy/acep/pkg/log"
	"github.com/acepenergy/acep/pkg/metrics"
	"github.com/acepenergy/acep/pkg/projection"
	"github.com/acepenergy/acep/pkg/report"
	"github.com/acepenergy/acep/pkg/storage"
	"github.com/acepenergy/acep/pkg/types"
)

// project loads the user's plan and projects it over [start, end].
func (s *Server) project(ctx context.Context, userID string, start, end types.Day) ([]projection.DailyResult, types.Plan, error) {
	began := time.Now()
	plan, err := storage.LoadPlan(ctx, s.storage, userID, start, end)
	if err != nil {
		return nil, types.Plan{}, err
	}
	results := projection.Project(start, end, plan.Schedules, plan.Pool())

	statuses := make([]string, len(results))
	for i, r := range results {
		statuses[i] = string(r.Status)
	}
	metrics.ObserveProjection(statuses, time.Since(began))
	return results, plan, nil
}

type projectionResponse struct {
	Start   types.Day                `json:"start"`
	End     types.Day                `json:"end"`
	Pool    types.StoragePool        `json:"pool"`
	Results []projection.DailyResult `json:"results"`
	Summary projection.Summary       `json:"summary"`
	Months  []projection.MonthRollup `json:"months"`
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := s.getUser(r)
	start, end, err := parseRange(r, true)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	results, plan, err := s.project(ctx, user.ID, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to project", slog.Any("error", err))
		writeJSONError(w, "failed to project", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, projectionResponse{
		Start:   start,
		End:     end,
		Pool:    plan.Pool(),
		Results: results,
		Summary: projection.Summarize(results),
		Months:  projection.ByMonth(results),
	})
}

type calendarDay struct {
	Date         types.Day         `json:"date"`
	Status       projection.Status `json:"status"`
	Entries      int               `json:"entries"`
	StorageAfter float64           `json:"storageAfter"`
}

type calendarResponse struct {
	Year    int                `json:"year"`
	Month   time.Month         `json:"month"`
	Days    []calendarDay      `json:"days"`
	Summary projection.Summary `json:"summary"`
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := s.getUser(r)

	var month time.Time
	if raw := r.URL.Query().Get("month"); raw != "" {
		var err error
		month, err = time.Parse("2006-01", raw)
		if err != nil {
			writeJSONError(w, "invalid month, expected YYYY-MM", http.StatusBadRequest)
			return
		}
	} else {
		settings, err := s.getSettingsWithMigration(ctx, user.ID)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to get settings", slog.Any("error", err))
			writeJSONError(w, "failed to get settings", http.StatusInternalServerError)
			return
		}
		month = types.Today(settings.Location()).Time()
	}

	start, end := types.MonthBounds(month.Year(), month.Month())
	results, plan, err := s.project(ctx, user.ID, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to project", slog.Any("error", err))
		writeJSONError(w, "failed to project", http.StatusInternalServerError)
		return
	}

	counts := map[types.Day]int{}
	for _, e := range plan.Schedules {
		counts[e.Date]++
	}
	resp := calendarResponse{
		Year:    start.Year(),
		Month:   start.Month(),
		Days:    make([]calendarDay, 0, len(results)),
		Summary: projection.Summarize(results),
	}
	for _, res := range results {
		resp.Days = append(resp.Days, calendarDay{
			Date:         res.Date,
			Status:       res.Status,
			Entries:      counts[res.Date],
			StorageAfter: res.StorageAfter,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProjectionExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := s.getUser(r)
	start, end, err := parseRange(r, true)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	format := report.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = report.FormatXLSX
	}
	if format != report.FormatXLSX && format != report.FormatPDF {
		writeJSONError(w, "format must be xlsx or pdf", http.StatusBadRequest)
		return
	}

	results, _, err := s.project(ctx, user.ID, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to project", slog.Any("error", err))
		writeJSONError(w, "failed to project", http.StatusInternalServerError)
		return
	}
	body, err := report.Build(format, report.Projection{
		Title:     fmt.Sprintf("Energy Projection %s to %s", start, end),
		Generated: s.now().UTC(),
		Results:   results,
		Summary:   projection.Summarize(results),
	})
	metrics.Export(string(format), err == nil)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to build export", slog.String("format", string(format)), slog.Any("error", err))
		writeJSONError(w, "failed to build export", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="acep-projection-%s-%s.%s"`, start, end, format))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleProjectionChart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := s.getUser(r)
	start, end, err := parseRange(r, true)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	results, _, err := s.project(ctx, user.ID, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to project", slog.Any("error", err))
		writeJSONError(w, "failed to project", http.StatusInternalServerError)
		return
	}
	body, err := report.RenderProjectionChart(results)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to render chart", slog.Any("error", err))
		writeJSONError(w, "failed to render chart", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		panic(http.ErrAbortHandler)
	}
}
