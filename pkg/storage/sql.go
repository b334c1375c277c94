package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/acepenergy/acep/pkg/types"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/levenlabs/go-lflag"
	_ "github.com/mattn/go-sqlite3"
)

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
)

// schema is shared by both dialects. Dates are YYYY-MM-DD text and
// timestamps are unix nanoseconds so both sort the same everywhere.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		role TEXT NOT NULL,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		user_id TEXT PRIMARY KEY,
		json TEXT NOT NULL,
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS consumption_tools (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		kw_per_hour DOUBLE PRECISION NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS power_plants (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		kw_per_hour DOUBLE PRECISION NOT NULL,
		quantity INTEGER NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS storage_units (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		capacity_kwh DOUBLE PRECISION NOT NULL,
		current_kwh DOUBLE PRECISION NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		device_id TEXT NOT NULL,
		device_name TEXT NOT NULL,
		device_type TEXT NOT NULL,
		hours_used DOUBLE PRECISION NOT NULL,
		energy_consumption DOUBLE PRECISION NOT NULL,
		energy_generation DOUBLE PRECISION NOT NULL,
		is_recurring BOOLEAN NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_user_date ON schedules (user_id, date)`,
	`CREATE TABLE IF NOT EXISTS chat_history (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		full_name TEXT NOT NULL,
		chat TEXT NOT NULL,
		output TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_history_user ON chat_history (user_id, created_at)`,
}

// SQLProvider implements Database on database/sql, backed by sqlite or
// postgres. Queries are written with ? placeholders and rebound for postgres.
type SQLProvider struct {
	db          *sql.DB
	dialect     string
	sqlitePath  string
	postgresDSN string
}

func configuredSQL() *SQLProvider {
	sqlitePath := lflag.String("sqlite-path", "acep.db", "Path of the sqlite database file when storage-provider is sqlite")
	postgresDSN := lflag.String("postgres-dsn", "", "Connection string when storage-provider is postgres")

	p := &SQLProvider{}
	lflag.Do(func() {
		p.sqlitePath = *sqlitePath
		p.postgresDSN = *postgresDSN
	})
	return p
}

// NewSQLite returns an initialized provider on the sqlite database at path.
// Use ":memory:" for a throwaway database.
func NewSQLite(ctx context.Context, path string) (*SQLProvider, error) {
	p := &SQLProvider{dialect: dialectSQLite, sqlitePath: path}
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks if the provider is properly configured.
func (p *SQLProvider) Validate() error {
	switch p.dialect {
	case dialectSQLite:
		if p.sqlitePath == "" {
			return errors.New("sqlite-path is required")
		}
	case dialectPostgres:
		if p.postgresDSN == "" {
			return errors.New("postgres-dsn is required")
		}
	default:
		return fmt.Errorf("unknown sql dialect: %s", p.dialect)
	}
	return nil
}

// Init opens the database and creates missing tables.
func (p *SQLProvider) Init(ctx context.Context) error {
	var db *sql.DB
	var err error
	switch p.dialect {
	case dialectSQLite:
		db, err = sql.Open("sqlite3", p.sqlitePath)
		if err == nil {
			// each sqlite connection to :memory: is its own database
			db.SetMaxOpenConns(1)
		}
	case dialectPostgres:
		db, err = sql.Open("pgx", p.postgresDSN)
	default:
		err = fmt.Errorf("unknown sql dialect: %s", p.dialect)
	}
	if err != nil {
		return fmt.Errorf("failed to open %s database: %w", p.dialect, err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return fmt.Errorf("failed to migrate %s database: %w", p.dialect, err)
		}
	}
	p.db = db
	return nil
}

// Close closes the database.
func (p *SQLProvider) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (p *SQLProvider) rebind(query string) string {
	if p.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (p *SQLProvider) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return p.db.ExecContext(ctx, p.rebind(query), args...)
}

func (p *SQLProvider) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return p.db.QueryContext(ctx, p.rebind(query), args...)
}

func (p *SQLProvider) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return p.db.QueryRowContext(ctx, p.rebind(query), args...)
}

// mustAffect turns a statement that touched no rows into ErrNotFound.
func mustAffect(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func (p *SQLProvider) GetSettings(ctx context.Context, userID string) (types.Settings, int, error) {
	var raw string
	var version int
	err := p.queryRow(ctx, `SELECT json, version FROM settings WHERE user_id = ?`, userID).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Settings{}, 0, nil
	}
	if err != nil {
		return types.Settings{}, 0, fmt.Errorf("failed to fetch settings: %w", err)
	}
	var s types.Settings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return types.Settings{}, 0, fmt.Errorf("failed to unmarshal settings json: %w", err)
	}
	return s, version, nil
}

func (p *SQLProvider) SetSettings(ctx context.Context, userID string, settings types.Settings, version int) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	_, err = p.exec(ctx, `INSERT INTO settings (user_id, json, version) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET json = excluded.json, version = excluded.version`,
		userID, string(raw), version)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

const userColumns = `id, email, full_name, role, latitude, longitude, created_at`

func scanUser(row interface{ Scan(...any) error }) (types.User, error) {
	var u types.User
	var created int64
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.Latitude, &u.Longitude, &created); err != nil {
		return types.User{}, err
	}
	u.CreatedAt = fromNanos(created)
	return u, nil
}

func (p *SQLProvider) GetUser(ctx context.Context, userID string) (types.User, error) {
	u, err := scanUser(p.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if err != nil {
		return types.User{}, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	return u, nil
}

func (p *SQLProvider) GetUserByEmail(ctx context.Context, email string) (types.User, error) {
	u, err := scanUser(p.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return types.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	if err != nil {
		return types.User{}, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

func (p *SQLProvider) CreateUser(ctx context.Context, u types.User) error {
	if u.ID == "" {
		return errors.New("user ID cannot be empty")
	}
	_, err := p.exec(ctx, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.FullName, u.Role, u.Latitude, u.Longitude, toNanos(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (p *SQLProvider) ListConsumptionTools(ctx context.Context, userID string) ([]types.ConsumptionTool, error) {
	rows, err := p.query(ctx, `SELECT id, user_id, name, kw_per_hour, created_at FROM consumption_tools
		WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list consumption tools: %w", err)
	}
	defer rows.Close()
	var out []types.ConsumptionTool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consumption tool: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTool(row interface{ Scan(...any) error }) (types.ConsumptionTool, error) {
	var t types.ConsumptionTool
	var created int64
	if err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.KWPerHour, &created); err != nil {
		return types.ConsumptionTool{}, err
	}
	t.CreatedAt = fromNanos(created)
	return t, nil
}

func (p *SQLProvider) GetConsumptionTool(ctx context.Context, userID, id string) (types.ConsumptionTool, error) {
	t, err := scanTool(p.queryRow(ctx, `SELECT id, user_id, name, kw_per_hour, created_at FROM consumption_tools
		WHERE user_id = ? AND id = ?`, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.ConsumptionTool{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return types.ConsumptionTool{}, fmt.Errorf("failed to get consumption tool %s: %w", id, err)
	}
	return t, nil
}

func (p *SQLProvider) UpsertConsumptionTool(ctx context.Context, t types.ConsumptionTool) error {
	_, err := p.exec(ctx, `INSERT INTO consumption_tools (id, user_id, name, kw_per_hour, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, kw_per_hour = excluded.kw_per_hour`,
		t.ID, t.UserID, t.Name, t.KWPerHour, toNanos(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save consumption tool: %w", err)
	}
	return nil
}

func (p *SQLProvider) DeleteConsumptionTool(ctx context.Context, userID, id string) error {
	res, err := p.exec(ctx, `DELETE FROM consumption_tools WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete consumption tool: %w", err)
	}
	return mustAffect(res, id)
}

func scanPlant(row interface{ Scan(...any) error }) (types.PowerPlant, error) {
	var pl types.PowerPlant
	var created int64
	if err := row.Scan(&pl.ID, &pl.UserID, &pl.Name, &pl.KWPerHour, &pl.Quantity, &created); err != nil {
		return types.PowerPlant{}, err
	}
	pl.CreatedAt = fromNanos(created)
	return pl, nil
}

func (p *SQLProvider) ListPowerPlants(ctx context.Context, userID string) ([]types.PowerPlant, error) {
	rows, err := p.query(ctx, `SELECT id, user_id, name, kw_per_hour, quantity, created_at FROM power_plants
		WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list power plants: %w", err)
	}
	defer rows.Close()
	var out []types.PowerPlant
	for rows.Next() {
		pl, err := scanPlant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan power plant: %w", err)
		}
		out = append(out, pl)
	}
	return out, rows.Err()
}

func (p *SQLProvider) GetPowerPlant(ctx context.Context, userID, id string) (types.PowerPlant, error) {
	pl, err := scanPlant(p.queryRow(ctx, `SELECT id, user_id, name, kw_per_hour, quantity, created_at FROM power_plants
		WHERE user_id = ? AND id = ?`, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.PowerPlant{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return types.PowerPlant{}, fmt.Errorf("failed to get power plant %s: %w", id, err)
	}
	return pl, nil
}

func (p *SQLProvider) UpsertPowerPlant(ctx context.Context, pl types.PowerPlant) error {
	_, err := p.exec(ctx, `INSERT INTO power_plants (id, user_id, name, kw_per_hour, quantity, created_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, kw_per_hour = excluded.kw_per_hour, quantity = excluded.quantity`,
		pl.ID, pl.UserID, pl.Name, pl.KWPerHour, pl.Quantity, toNanos(pl.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save power plant: %w", err)
	}
	return nil
}

func (p *SQLProvider) DeletePowerPlant(ctx context.Context, userID, id string) error {
	res, err := p.exec(ctx, `DELETE FROM power_plants WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete power plant: %w", err)
	}
	return mustAffect(res, id)
}

func scanUnit(row interface{ Scan(...any) error }) (types.StorageUnit, error) {
	var u types.StorageUnit
	var created int64
	if err := row.Scan(&u.ID, &u.UserID, &u.Name, &u.CapacityKWH, &u.CurrentKWH, &created); err != nil {
		return types.StorageUnit{}, err
	}
	u.CreatedAt = fromNanos(created)
	return u, nil
}

func (p *SQLProvider) ListStorageUnits(ctx context.Context, userID string) ([]types.StorageUnit, error) {
	rows, err := p.query(ctx, `SELECT id, user_id, name, capacity_kwh, current_kwh, created_at FROM storage_units
		WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage units: %w", err)
	}
	defer rows.Close()
	var out []types.StorageUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan storage unit: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *SQLProvider) GetStorageUnit(ctx context.Context, userID, id string) (types.StorageUnit, error) {
	u, err := scanUnit(p.queryRow(ctx, `SELECT id, user_id, name, capacity_kwh, current_kwh, created_at FROM storage_units
		WHERE user_id = ? AND id = ?`, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.StorageUnit{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return types.StorageUnit{}, fmt.Errorf("failed to get storage unit %s: %w", id, err)
	}
	return u, nil
}

func (p *SQLProvider) UpsertStorageUnit(ctx context.Context, u types.StorageUnit) error {
	_, err := p.exec(ctx, `INSERT INTO storage_units (id, user_id, name, capacity_kwh, current_kwh, created_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, capacity_kwh = excluded.capacity_kwh, current_kwh = excluded.current_kwh`,
		u.ID, u.UserID, u.Name, u.CapacityKWH, u.CurrentKWH, toNanos(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save storage unit: %w", err)
	}
	return nil
}

func (p *SQLProvider) DeleteStorageUnit(ctx context.Context, userID, id string) error {
	res, err := p.exec(ctx, `DELETE FROM storage_units WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete storage unit: %w", err)
	}
	return mustAffect(res, id)
}

const scheduleColumns = `id, user_id, date, device_id, device_name, device_type, hours_used,
	energy_consumption, energy_generation, is_recurring, created_at, updated_at`

func scanSchedule(row interface{ Scan(...any) error }) (types.ScheduleEntry, error) {
	var e types.ScheduleEntry
	var date, kind string
	var created, updated int64
	err := row.Scan(&e.ID, &e.UserID, &date, &e.DeviceID, &e.DeviceName, &kind, &e.HoursUsed,
		&e.EnergyConsumption, &e.EnergyGeneration, &e.IsRecurring, &created, &updated)
	if err != nil {
		return types.ScheduleEntry{}, err
	}
	if e.Date, err = types.ParseDay(date); err != nil {
		return types.ScheduleEntry{}, err
	}
	e.DeviceKind = types.DeviceKind(kind)
	e.CreatedAt = fromNanos(created)
	e.UpdatedAt = fromNanos(updated)
	return e, nil
}

func (p *SQLProvider) GetSchedules(ctx context.Context, userID string, start, end types.Day) ([]types.ScheduleEntry, error) {
	q := `SELECT ` + scheduleColumns + ` FROM schedules WHERE user_id = ?`
	args := []any{userID}
	if !start.IsZero() {
		q += ` AND date >= ?`
		args = append(args, start.String())
	}
	if !end.IsZero() {
		q += ` AND date <= ?`
		args = append(args, end.String())
	}
	q += ` ORDER BY date ASC, created_at ASC, id`

	rows, err := p.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get schedules: %w", err)
	}
	defer rows.Close()
	var out []types.ScheduleEntry
	for rows.Next() {
		e, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *SQLProvider) InsertSchedules(ctx context.Context, entries []types.ScheduleEntry) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt := p.rebind(`INSERT INTO schedules (` + scheduleColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, e := range entries {
		if e.ID == "" {
			return errors.New("schedule ID cannot be empty")
		}
		_, err := tx.ExecContext(ctx, stmt,
			e.ID, e.UserID, e.Date.String(), e.DeviceID, e.DeviceName, string(e.DeviceKind), e.HoursUsed,
			e.EnergyConsumption, e.EnergyGeneration, e.IsRecurring, toNanos(e.CreatedAt), toNanos(e.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert schedule %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func (p *SQLProvider) UpdateSchedule(ctx context.Context, e types.ScheduleEntry) error {
	res, err := p.exec(ctx, `UPDATE schedules SET date = ?, device_id = ?, device_name = ?, device_type = ?,
		hours_used = ?, energy_consumption = ?, energy_generation = ?, is_recurring = ?, updated_at = ?
		WHERE user_id = ? AND id = ?`,
		e.Date.String(), e.DeviceID, e.DeviceName, string(e.DeviceKind),
		e.HoursUsed, e.EnergyConsumption, e.EnergyGeneration, e.IsRecurring, toNanos(e.UpdatedAt),
		e.UserID, e.ID)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	return mustAffect(res, e.ID)
}

func (p *SQLProvider) DeleteSchedule(ctx context.Context, userID, id string) error {
	res, err := p.exec(ctx, `DELETE FROM schedules WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return mustAffect(res, id)
}

func (p *SQLProvider) DeleteSchedulesByDate(ctx context.Context, userID string, day types.Day) error {
	if _, err := p.exec(ctx, `DELETE FROM schedules WHERE user_id = ? AND date = ?`, userID, day.String()); err != nil {
		return fmt.Errorf("failed to delete schedules on %s: %w", day, err)
	}
	return nil
}

func (p *SQLProvider) InsertChatHistory(ctx context.Context, c types.ChatHistory) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := p.exec(ctx, `INSERT INTO chat_history (id, session_id, user_id, full_name, chat, output, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SessionID, c.UserID, c.FullName, c.Chat, c.Output, toNanos(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert chat history: %w", err)
	}
	return nil
}

func (p *SQLProvider) GetChatHistory(ctx context.Context, userID string, limit int) ([]types.ChatHistory, error) {
	q := `SELECT id, session_id, user_id, full_name, chat, output, created_at FROM chat_history
		WHERE user_id = ? ORDER BY created_at DESC, id`
	args := []any{userID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := p.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history: %w", err)
	}
	defer rows.Close()
	var out []types.ChatHistory
	for rows.Next() {
		var c types.ChatHistory
		var created int64
		if err := rows.Scan(&c.ID, &c.SessionID, &c.UserID, &c.FullName, &c.Chat, &c.Output, &created); err != nil {
			return nil, fmt.Errorf("failed to scan chat history: %w", err)
		}
		c.CreatedAt = fromNanos(created)
		out = append(out, c)
	}
	return out, rows.Err()
}
