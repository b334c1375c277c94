package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/acepenergy/acep/pkg/log"
	"github.com/acepenergy/acep/pkg/schedule"
	"github.com/acepenergy/acep/pkg/storage"
	"github.com/acepenergy/acep/pkg/types"
)

// deviceAPI serves list/create/update/delete for one kind of per-user record.
type deviceAPI[T any] struct {
	s    *Server
	noun string

	list   func(ctx context.Context, userID string) ([]T, error)
	get    func(ctx context.Context, userID, id string) (T, error)
	upsert func(ctx context.Context, v T) error
	remove func(ctx context.Context, userID, id string) error

	validate func(v T) error
	// identify sets the owner, ID and creation time of v
	identify  func(v *T, userID, id string, createdAt time.Time)
	createdAt func(v T) time.Time
}

func (a deviceAPI[T]) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := a.s.getUser(r)
	items, err := a.list(ctx, user.ID)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list "+a.noun, slog.Any("error", err))
		writeJSONError(w, "failed to list "+a.noun, http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (a deviceAPI[T]) decode(w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		log.Ctx(r.Context()).WarnContext(r.Context(), "failed to decode "+a.noun, slog.Any("error", err))
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return v, false
	}
	if err := a.validate(v); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return v, false
	}
	return v, true
}

func (a deviceAPI[T]) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := a.s.getUser(r)
	v, ok := a.decode(w, r)
	if !ok {
		return
	}
	a.identify(&v, user.ID, uuid.NewString(), a.s.now().UTC())
	if err := a.upsert(ctx, v); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to create "+a.noun, slog.Any("error", err))
		writeJSONError(w, "failed to save "+a.noun, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (a deviceAPI[T]) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := a.s.getUser(r)
	id := r.PathValue("id")
	existing, err := a.get(ctx, user.ID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSONError(w, a.noun+" not found", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to get "+a.noun, slog.String("id", id), slog.Any("error", err))
		writeJSONError(w, "failed to get "+a.noun, http.StatusInternalServerError)
		return
	}
	v, ok := a.decode(w, r)
	if !ok {
		return
	}
	a.identify(&v, user.ID, id, a.createdAt(existing))
	if err := a.upsert(ctx, v); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to update "+a.noun, slog.String("id", id), slog.Any("error", err))
		writeJSONError(w, "failed to save "+a.noun, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a deviceAPI[T]) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := a.s.getUser(r)
	id := r.PathValue("id")
	if err := a.remove(ctx, user.ID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSONError(w, a.noun+" not found", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to delete "+a.noun, slog.String("id", id), slog.Any("error", err))
		writeJSONError(w, "failed to delete "+a.noun, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requireName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name is required")
	}
	return nil
}

func (s *Server) tools() deviceAPI[types.ConsumptionTool] {
	return deviceAPI[types.ConsumptionTool]{
		s:      s,
		noun:   "consumption tool",
		list:   s.storage.ListConsumptionTools,
		get:    s.storage.GetConsumptionTool,
		upsert: s.storage.UpsertConsumptionTool,
		remove: s.storage.DeleteConsumptionTool,
		validate: func(t types.ConsumptionTool) error {
			if err := requireName(t.Name); err != nil {
				return err
			}
			if t.KWPerHour < 0 {
				return errors.New("kw per hour cannot be negative")
			}
			return nil
		},
		identify: func(t *types.ConsumptionTool, userID, id string, createdAt time.Time) {
			t.UserID, t.ID, t.CreatedAt = userID, id, createdAt
			t.Name = strings.TrimSpace(t.Name)
		},
		createdAt: func(t types.ConsumptionTool) time.Time { return t.CreatedAt },
	}
}

func (s *Server) plants() deviceAPI[types.PowerPlant] {
	return deviceAPI[types.PowerPlant]{
		s:      s,
		noun:   "power plant",
		list:   s.storage.ListPowerPlants,
		get:    s.storage.GetPowerPlant,
		upsert: s.storage.UpsertPowerPlant,
		remove: s.storage.DeletePowerPlant,
		validate: func(p types.PowerPlant) error {
			if err := requireName(p.Name); err != nil {
				return err
			}
			if p.KWPerHour < 0 {
				return errors.New("kw per hour cannot be negative")
			}
			if p.Quantity < 1 {
				return errors.New("quantity must be at least 1")
			}
			return nil
		},
		identify: func(p *types.PowerPlant, userID, id string, createdAt time.Time) {
			p.UserID, p.ID, p.CreatedAt = userID, id, createdAt
			p.Name = strings.TrimSpace(p.Name)
		},
		createdAt: func(p types.PowerPlant) time.Time { return p.CreatedAt },
	}
}

func (s *Server) storageUnits() deviceAPI[types.StorageUnit] {
	return deviceAPI[types.StorageUnit]{
		s:      s,
		noun:   "storage unit",
		list:   s.storage.ListStorageUnits,
		get:    s.storage.GetStorageUnit,
		upsert: s.storage.UpsertStorageUnit,
		remove: s.storage.DeleteStorageUnit,
		validate: func(u types.StorageUnit) error {
			if err := requireName(u.Name); err != nil {
				return err
			}
			if u.CapacityKWH < 0 {
				return errors.New("capacity cannot be negative")
			}
			if u.CurrentKWH < 0 || u.CurrentKWH > u.CapacityKWH {
				return errors.New("current charge must be between 0 and capacity")
			}
			return nil
		},
		identify: func(u *types.StorageUnit, userID, id string, createdAt time.Time) {
			u.UserID, u.ID, u.CreatedAt = userID, id, createdAt
			u.Name = strings.TrimSpace(u.Name)
		},
		createdAt: func(u types.StorageUnit) time.Time { return u.CreatedAt },
	}
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	s.tools().handleList(w, r)
}

func (s *Server) handleCreateTool(w http.ResponseWriter, r *http.Request) {
	s.tools().handleCreate(w, r)
}

func (s *Server) handleUpdateTool(w http.ResponseWriter, r *http.Request) {
	s.tools().handleUpdate(w, r)
}

func (s *Server) handleDeleteTool(w http.ResponseWriter, r *http.Request) {
	s.tools().handleDelete(w, r)
}

func (s *Server) handleListPlants(w http.ResponseWriter, r *http.Request) {
	s.plants().handleList(w, r)
}

func (s *Server) handleCreatePlant(w http.ResponseWriter, r *http.Request) {
	s.plants().handleCreate(w, r)
}

func (s *Server) handleUpdatePlant(w http.ResponseWriter, r *http.Request) {
	s.plants().handleUpdate(w, r)
}

func (s *Server) handleDeletePlant(w http.ResponseWriter, r *http.Request) {
	s.plants().handleDelete(w, r)
}

func (s *Server) handleCreateStorage(w http.ResponseWriter, r *http.Request) {
	s.storageUnits().handleCreate(w, r)
}

func (s *Server) handleUpdateStorage(w http.ResponseWriter, r *http.Request) {
	s.storageUnits().handleUpdate(w, r)
}

func (s *Server) handleDeleteStorage(w http.ResponseWriter, r *http.Request) {
	s.storageUnits().handleDelete(w, r)
}

type storageListResponse struct {
	Units []types.StorageUnit `json:"units"`
	Pool  types.StoragePool   `json:"pool"`
}

// handleListStorage returns the units together with their pooled view.
func (s *Server) handleListStorage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := s.getUser(r)
	units, err := s.storage.ListStorageUnits(ctx, user.ID)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list storage units", slog.Any("error", err))
		writeJSONError(w, "failed to list storage units", http.StatusInternalServerError)
		return
	}
	if units == nil {
		units = []types.StorageUnit{}
	}
	writeJSON(w, http.StatusOK, storageListResponse{
		Units: units,
		Pool:  types.PoolOf(units),
	})
}

type plantGeneration struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	DailyKWH float64 `json:"dailyKWH"`
}

type generationResponse struct {
	EffectiveHours float64           `json:"effectiveHours"`
	DailyKWH       float64           `json:"dailyKWH"`
	Plants         []plantGeneration `json:"plants"`
}

func (s *Server) handlePlantGeneration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := s.getUser(r)
	settings, err := s.getSettingsWithMigration(ctx, user.ID)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get settings", slog.Any("error", err))
		writeJSONError(w, "failed to get settings", http.StatusInternalServerError)
		return
	}
	plants, err := s.storage.ListPowerPlants(ctx, user.ID)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list power plants", slog.Any("error", err))
		writeJSONError(w, "failed to list power plants", http.StatusInternalServerError)
		return
	}

	resp := generationResponse{
		EffectiveHours: settings.EffectiveHours,
		DailyKWH:       schedule.DailyGeneration(plants, settings.EffectiveHours),
		Plants:         make([]plantGeneration, 0, len(plants)),
	}
	for _, p := range plants {
		resp.Plants = append(resp.Plants, plantGeneration{
			ID:       p.ID,
			Name:     p.Name,
			DailyKWH: schedule.Energy(p.KWPerHour, p.Quantity, settings.EffectiveHours),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
