package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/acepenergy/acep/pkg/log"
	"github.com/acepenergy/acep/pkg/types"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collUsers            = "users"
	collConfig           = "config"
	collConsumptionTools = "consumption_tools"
	collPowerPlants      = "power_plants"
	collStorageUnits     = "storage_units"
	collSchedules        = "schedules"
	collChatHistory      = "chat_history"
)

// FirestoreProvider implements Database using Google Cloud Firestore.
// Every record is stored as a JSON blob in a "json" field, next to the few
// fields that queries filter or order on.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// project ID may be empty and inferred from the environment
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) getCollection(userID, name string) (*firestore.CollectionRef, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID cannot be empty")
	}
	return f.client.Collection(collUsers).Doc(userID).Collection(name), nil
}

// decodeDoc unmarshals the "json" field of doc into v.
func decodeDoc(ctx context.Context, doc *firestore.DocumentSnapshot, v any) error {
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "doc missing json", slog.String("path", doc.Ref.Path))
		return fmt.Errorf("document %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "doc json not string", slog.String("path", doc.Ref.Path))
		return fmt.Errorf("document %s 'json' field is not a string", doc.Ref.ID)
	}
	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		return fmt.Errorf("failed to unmarshal document %s: %w", doc.Ref.ID, err)
	}
	return nil
}

// setDoc stores v as JSON in ref along with any extra indexed fields.
func setDoc(ctx context.Context, ref *firestore.DocumentRef, v any, fields map[string]interface{}) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", ref.ID, err)
	}
	data := map[string]interface{}{
		"json": string(jsonBytes),
	}
	for k, fv := range fields {
		data[k] = fv
	}
	if _, err := ref.Set(ctx, data); err != nil {
		return fmt.Errorf("failed to save %s: %w", ref.Path, err)
	}
	return nil
}

func getDoc[T any](ctx context.Context, ref *firestore.DocumentRef) (T, error) {
	var v T
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return v, fmt.Errorf("%w: %s", ErrNotFound, ref.ID)
		}
		return v, fmt.Errorf("failed to get %s: %w", ref.Path, err)
	}
	if err := decodeDoc(ctx, doc, &v); err != nil {
		return v, err
	}
	return v, nil
}

func listDocs[T any](ctx context.Context, iter *firestore.DocumentIterator) ([]T, error) {
	defer iter.Stop()
	var out []T
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate documents: %w", err)
		}
		var v T
		if err := decodeDoc(ctx, doc, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func deleteDoc(ctx context.Context, ref *firestore.DocumentRef) error {
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, ref.ID)
		}
		return fmt.Errorf("failed to delete %s: %w", ref.Path, err)
	}
	return nil
}

// GetSettings retrieves the user's settings from the "config/settings" document.
func (f *FirestoreProvider) GetSettings(ctx context.Context, userID string) (types.Settings, int, error) {
	coll, err := f.getCollection(userID, collConfig)
	if err != nil {
		return types.Settings{}, 0, err
	}
	doc, err := coll.Doc("settings").Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			// version 0 lets the caller migrate to defaults
			return types.Settings{}, 0, nil
		}
		return types.Settings{}, 0, fmt.Errorf("failed to fetch settings doc: %w", err)
	}

	var version int
	if v, err := doc.DataAt("version"); err == nil {
		if vInt, ok := v.(int64); ok {
			version = int(vInt)
		}
	}

	var s types.Settings
	if err := decodeDoc(ctx, doc, &s); err != nil {
		return types.Settings{}, 0, err
	}
	return s, version, nil
}

// SetSettings saves the user's settings to the "config/settings" document.
func (f *FirestoreProvider) SetSettings(ctx context.Context, userID string, settings types.Settings, version int) error {
	coll, err := f.getCollection(userID, collConfig)
	if err != nil {
		return err
	}
	return setDoc(ctx, coll.Doc("settings"), settings, map[string]interface{}{
		"version": version,
	})
}

// GetUser retrieves a user from the top level "users" collection.
func (f *FirestoreProvider) GetUser(ctx context.Context, userID string) (types.User, error) {
	if userID == "" {
		return types.User{}, fmt.Errorf("%w: empty id", ErrUserNotFound)
	}
	user, err := getDoc[types.User](ctx, f.client.Collection(collUsers).Doc(userID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return types.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return types.User{}, err
	}
	return user, nil
}

// GetUserByEmail looks a user up by the indexed "email" field.
func (f *FirestoreProvider) GetUserByEmail(ctx context.Context, email string) (types.User, error) {
	iter := f.client.Collection(collUsers).Where("email", "==", email).Limit(1).Documents(ctx)
	users, err := listDocs[types.User](ctx, iter)
	if err != nil {
		return types.User{}, fmt.Errorf("failed to query user by email: %w", err)
	}
	if len(users) == 0 {
		return types.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	return users[0], nil
}

// CreateUser stores a new user document.
func (f *FirestoreProvider) CreateUser(ctx context.Context, user types.User) error {
	if user.ID == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	return setDoc(ctx, f.client.Collection(collUsers).Doc(user.ID), user, map[string]interface{}{
		"email":      user.Email,
		"created_at": user.CreatedAt,
	})
}

// ListConsumptionTools returns the user's tools, newest first.
func (f *FirestoreProvider) ListConsumptionTools(ctx context.Context, userID string) ([]types.ConsumptionTool, error) {
	coll, err := f.getCollection(userID, collConsumptionTools)
	if err != nil {
		return nil, err
	}
	return listDocs[types.ConsumptionTool](ctx, coll.OrderBy("created_at", firestore.Desc).Documents(ctx))
}

func (f *FirestoreProvider) GetConsumptionTool(ctx context.Context, userID, id string) (types.ConsumptionTool, error) {
	coll, err := f.getCollection(userID, collConsumptionTools)
	if err != nil {
		return types.ConsumptionTool{}, err
	}
	return getDoc[types.ConsumptionTool](ctx, coll.Doc(id))
}

func (f *FirestoreProvider) UpsertConsumptionTool(ctx context.Context, tool types.ConsumptionTool) error {
	coll, err := f.getCollection(tool.UserID, collConsumptionTools)
	if err != nil {
		return err
	}
	return setDoc(ctx, coll.Doc(tool.ID), tool, map[string]interface{}{
		"created_at": tool.CreatedAt,
	})
}

func (f *FirestoreProvider) DeleteConsumptionTool(ctx context.Context, userID, id string) error {
	coll, err := f.getCollection(userID, collConsumptionTools)
	if err != nil {
		return err
	}
	return deleteDoc(ctx, coll.Doc(id))
}

// ListPowerPlants returns the user's plants, newest first.
func (f *FirestoreProvider) ListPowerPlants(ctx context.Context, userID string) ([]types.PowerPlant, error) {
	coll, err := f.getCollection(userID, collPowerPlants)
	if err != nil {
		return nil, err
	}
	return listDocs[types.PowerPlant](ctx, coll.OrderBy("created_at", firestore.Desc).Documents(ctx))
}

func (f *FirestoreProvider) GetPowerPlant(ctx context.Context, userID, id string) (types.PowerPlant, error) {
	coll, err := f.getCollection(userID, collPowerPlants)
	if err != nil {
		return types.PowerPlant{}, err
	}
	return getDoc[types.PowerPlant](ctx, coll.Doc(id))
}

func (f *FirestoreProvider) UpsertPowerPlant(ctx context.Context, plant types.PowerPlant) error {
	coll, err := f.getCollection(plant.UserID, collPowerPlants)
	if err != nil {
		return err
	}
	return setDoc(ctx, coll.Doc(plant.ID), plant, map[string]interface{}{
		"created_at": plant.CreatedAt,
	})
}

func (f *FirestoreProvider) DeletePowerPlant(ctx context.Context, userID, id string) error {
	coll, err := f.getCollection(userID, collPowerPlants)
	if err != nil {
		return err
	}
	return deleteDoc(ctx, coll.Doc(id))
}

// ListStorageUnits returns the user's storage units, newest first.
func (f *FirestoreProvider) ListStorageUnits(ctx context.Context, userID string) ([]types.StorageUnit, error) {
	coll, err := f.getCollection(userID, collStorageUnits)
	if err != nil {
		return nil, err
	}
	return listDocs[types.StorageUnit](ctx, coll.OrderBy("created_at", firestore.Desc).Documents(ctx))
}

func (f *FirestoreProvider) GetStorageUnit(ctx context.Context, userID, id string) (types.StorageUnit, error) {
	coll, err := f.getCollection(userID, collStorageUnits)
	if err != nil {
		return types.StorageUnit{}, err
	}
	return getDoc[types.StorageUnit](ctx, coll.Doc(id))
}

func (f *FirestoreProvider) UpsertStorageUnit(ctx context.Context, unit types.StorageUnit) error {
	coll, err := f.getCollection(unit.UserID, collStorageUnits)
	if err != nil {
		return err
	}
	return setDoc(ctx, coll.Doc(unit.ID), unit, map[string]interface{}{
		"created_at": unit.CreatedAt,
	})
}

func (f *FirestoreProvider) DeleteStorageUnit(ctx context.Context, userID, id string) error {
	coll, err := f.getCollection(userID, collStorageUnits)
	if err != nil {
		return err
	}
	return deleteDoc(ctx, coll.Doc(id))
}

// GetSchedules retrieves schedule entries within [start, end]. The "date"
// field holds the YYYY-MM-DD key so string comparison orders by date.
func (f *FirestoreProvider) GetSchedules(ctx context.Context, userID string, start, end types.Day) ([]types.ScheduleEntry, error) {
	coll, err := f.getCollection(userID, collSchedules)
	if err != nil {
		return nil, err
	}
	q := coll.Query
	if !start.IsZero() {
		q = q.Where("date", ">=", start.String())
	}
	if !end.IsZero() {
		q = q.Where("date", "<=", end.String())
	}
	return listDocs[types.ScheduleEntry](ctx, q.OrderBy("date", firestore.Asc).Documents(ctx))
}

// InsertSchedules stores each entry under its ID.
func (f *FirestoreProvider) InsertSchedules(ctx context.Context, entries []types.ScheduleEntry) error {
	for _, e := range entries {
		if err := f.setSchedule(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (f *FirestoreProvider) setSchedule(ctx context.Context, e types.ScheduleEntry) error {
	coll, err := f.getCollection(e.UserID, collSchedules)
	if err != nil {
		return err
	}
	if e.ID == "" {
		return fmt.Errorf("schedule ID cannot be empty")
	}
	return setDoc(ctx, coll.Doc(e.ID), e, map[string]interface{}{
		"date":       e.Date.String(),
		"created_at": e.CreatedAt,
	})
}

// UpdateSchedule overwrites an existing entry.
func (f *FirestoreProvider) UpdateSchedule(ctx context.Context, entry types.ScheduleEntry) error {
	coll, err := f.getCollection(entry.UserID, collSchedules)
	if err != nil {
		return err
	}
	if _, err := coll.Doc(entry.ID).Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, entry.ID)
		}
		return fmt.Errorf("failed to get schedule %s: %w", entry.ID, err)
	}
	return f.setSchedule(ctx, entry)
}

func (f *FirestoreProvider) DeleteSchedule(ctx context.Context, userID, id string) error {
	coll, err := f.getCollection(userID, collSchedules)
	if err != nil {
		return err
	}
	return deleteDoc(ctx, coll.Doc(id))
}

// DeleteSchedulesByDate removes every entry on day.
func (f *FirestoreProvider) DeleteSchedulesByDate(ctx context.Context, userID string, day types.Day) error {
	coll, err := f.getCollection(userID, collSchedules)
	if err != nil {
		return err
	}
	iter := coll.Where("date", "==", day.String()).Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to iterate schedules: %w", err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return fmt.Errorf("failed to delete schedule %s: %w", doc.Ref.ID, err)
		}
	}
	return nil
}

// InsertChatHistory adds a chat turn to the "chat_history" collection.
func (f *FirestoreProvider) InsertChatHistory(ctx context.Context, chat types.ChatHistory) error {
	coll, err := f.getCollection(chat.UserID, collChatHistory)
	if err != nil {
		return err
	}
	ref := coll.NewDoc()
	if chat.ID != "" {
		ref = coll.Doc(chat.ID)
	} else {
		chat.ID = ref.ID
	}
	return setDoc(ctx, ref, chat, map[string]interface{}{
		"session_id": chat.SessionID,
		"created_at": chat.CreatedAt,
	})
}

// GetChatHistory returns up to limit turns, newest first.
func (f *FirestoreProvider) GetChatHistory(ctx context.Context, userID string, limit int) ([]types.ChatHistory, error) {
	coll, err := f.getCollection(userID, collChatHistory)
	if err != nil {
		return nil, err
	}
	q := coll.OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return listDocs[types.ChatHistory](ctx, q.Documents(ctx))
}
