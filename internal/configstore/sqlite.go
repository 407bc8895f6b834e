package configstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/craftdeck/craftdeck/internal/observability"
	"github.com/craftdeck/craftdeck/pkg/models"
)

// SqliteConfig holds connection settings for the sqlite-backed stores.
type SqliteConfig struct {
	// Path to the database file; ":memory:" for an ephemeral store.
	Path string

	BusyTimeout time.Duration

	// Metrics, when set, feeds the store query duration histogram.
	Metrics *observability.Metrics
}

// DefaultSqliteConfig returns default settings.
func DefaultSqliteConfig() SqliteConfig {
	return SqliteConfig{
		Path:        ":memory:",
		BusyTimeout: 5 * time.Second,
	}
}

// OpenSqlite opens the database, bootstraps the schema and returns a
// wired StoreSet backed by it.
func OpenSqlite(cfg SqliteConfig) (StoreSet, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open database: %w", err)
	}
	// modernc's driver is not safe for concurrent writers over multiple
	// connections on one file.
	db.SetMaxOpenConns(1)

	if cfg.BusyTimeout > 0 {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds())); err != nil {
			_ = db.Close()
			return StoreSet{}, fmt.Errorf("set busy timeout: %w", err)
		}
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return StoreSet{}, err
	}
	return NewSqliteStoreSet(db, cfg.Metrics), nil
}

// NewSqliteStoreSet wires sqlite stores over an existing database handle.
// The caller keeps ownership of schema bootstrap when using this directly
// (tests inject sqlmock handles here). A nil metrics disables query
// timing.
func NewSqliteStoreSet(db *sql.DB, metrics *observability.Metrics) StoreSet {
	return NewStoreSet(
		&SqliteEntryStore{db: db, metrics: metrics},
		&SqliteTemplateStore{db: db, metrics: metrics},
		&SqliteServerStore{db: db, metrics: metrics},
		db.Close,
	)
}

// observeQuery feeds the store query histogram. Safe with nil metrics.
func observeQuery(m *observability.Metrics, operation, table string, start time.Time) {
	if m == nil {
		return
	}
	m.StoreQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS config_entries (
			id TEXT PRIMARY KEY,
			server_id TEXT NOT NULL,
			file_id TEXT NOT NULL,
			key TEXT NOT NULL,
			raw_value TEXT NOT NULL,
			kind TEXT NOT NULL,
			control TEXT NOT NULL,
			min_value REAL,
			max_value REAL,
			options TEXT,
			hot_applicable INTEGER NOT NULL DEFAULT 0,
			dirty INTEGER NOT NULL DEFAULT 0,
			revision INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE(server_id, file_id, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_config_entries_server ON config_entries(server_id)`,
		`CREATE TABLE IF NOT EXISTS config_templates (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			modpack_id INTEGER NOT NULL,
			items TEXT NOT NULL,
			is_default INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			UNIQUE(modpack_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS servers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			modpack_id INTEGER NOT NULL,
			modpack_version TEXT NOT NULL,
			container_id TEXT,
			status TEXT NOT NULL,
			port INTEGER NOT NULL UNIQUE,
			rcon_port INTEGER NOT NULL UNIQUE,
			rcon_password TEXT NOT NULL,
			template_id TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}

// SqliteEntryStore implements EntryStore on sqlite.
type SqliteEntryStore struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func marshalOptions(options []string) (sql.NullString, error) {
	if len(options) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(options)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal options: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func (s *SqliteEntryStore) Create(ctx context.Context, entry *models.ConfigEntry) error {
	defer observeQuery(s.metrics, "insert", "config_entries", time.Now())
	if entry == nil {
		return fmt.Errorf("entry is required")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	options, err := marshalOptions(entry.Options)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO config_entries
			(id, server_id, file_id, key, raw_value, kind, control, min_value, max_value, options, hot_applicable, dirty, revision, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		entry.ID, entry.ServerID, entry.FileID, entry.Key, entry.RawValue,
		string(entry.Kind), string(entry.Control),
		nullFloat(entry.Min), nullFloat(entry.Max), options,
		entry.HotApplicable, entry.Dirty, entry.Revision,
		entry.CreatedAt, entry.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create entry: %w", err)
	}
	return nil
}

const entryColumns = `id, server_id, file_id, key, raw_value, kind, control, min_value, max_value, options, hot_applicable, dirty, revision, created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (*models.ConfigEntry, error) {
	var (
		entry    models.ConfigEntry
		kind     string
		control  string
		min, max sql.NullFloat64
		options  sql.NullString
	)
	err := row.Scan(
		&entry.ID, &entry.ServerID, &entry.FileID, &entry.Key, &entry.RawValue,
		&kind, &control, &min, &max, &options,
		&entry.HotApplicable, &entry.Dirty, &entry.Revision,
		&entry.CreatedAt, &entry.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	entry.Kind = models.ValueKind(kind)
	entry.Control = models.ControlKind(control)
	if min.Valid {
		entry.Min = &min.Float64
	}
	if max.Valid {
		entry.Max = &max.Float64
	}
	if options.Valid && options.String != "" {
		if err := json.Unmarshal([]byte(options.String), &entry.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	return &entry, nil
}

func (s *SqliteEntryStore) Get(ctx context.Context, id string) (*models.ConfigEntry, error) {
	defer observeQuery(s.metrics, "select", "config_entries", time.Now())
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM config_entries WHERE id = ?`, id)
	return scanEntry(row)
}

func (s *SqliteEntryStore) Find(ctx context.Context, serverID, fileID, key string) (*models.ConfigEntry, error) {
	defer observeQuery(s.metrics, "select", "config_entries", time.Now())
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM config_entries
		WHERE server_id = ? AND file_id = ? AND key = ?
	`, serverID, fileID, key)
	return scanEntry(row)
}

func (s *SqliteEntryStore) ListByServer(ctx context.Context, serverID string) ([]*models.ConfigEntry, error) {
	defer observeQuery(s.metrics, "select", "config_entries", time.Now())
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM config_entries
		WHERE server_id = ?
		ORDER BY file_id, key
	`, serverID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []*models.ConfigEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *SqliteEntryStore) Update(ctx context.Context, entry *models.ConfigEntry, expectedRevision int64) error {
	defer observeQuery(s.metrics, "update", "config_entries", time.Now())
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("entry is required")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	options, err := marshalOptions(entry.Options)
	if err != nil {
		return err
	}
	entry.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE config_entries
		SET raw_value = ?, kind = ?, control = ?, min_value = ?, max_value = ?,
			options = ?, hot_applicable = ?, dirty = ?, revision = ?, updated_at = ?
		WHERE id = ? AND revision = ?
	`,
		entry.RawValue, string(entry.Kind), string(entry.Control),
		nullFloat(entry.Min), nullFloat(entry.Max), options,
		entry.HotApplicable, entry.Dirty, entry.Revision, entry.UpdatedAt,
		entry.ID, expectedRevision,
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing row from a stale revision.
		if _, getErr := s.Get(ctx, entry.ID); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrRevisionMismatch
	}
	return nil
}

func (s *SqliteEntryStore) Delete(ctx context.Context, id string) error {
	defer observeQuery(s.metrics, "delete", "config_entries", time.Now())
	res, err := s.db.ExecContext(ctx, `DELETE FROM config_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SqliteEntryStore) DeleteServer(ctx context.Context, serverID string) (int, error) {
	defer observeQuery(s.metrics, "delete", "config_entries", time.Now())
	res, err := s.db.ExecContext(ctx, `DELETE FROM config_entries WHERE server_id = ?`, serverID)
	if err != nil {
		return 0, fmt.Errorf("delete server entries: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete server entries: %w", err)
	}
	return int(affected), nil
}

func (s *SqliteEntryStore) ServerState(ctx context.Context, serverID string) (*models.ServerConfigState, error) {
	defer observeQuery(s.metrics, "select", "config_entries", time.Now())
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(dirty), 0),
			COALESCE(SUM(CASE WHEN dirty = 1 AND hot_applicable = 0 THEN 1 ELSE 0 END), 0)
		FROM config_entries WHERE server_id = ?
	`, serverID)
	state := &models.ServerConfigState{ServerID: serverID}
	var restartPending int
	if err := row.Scan(&state.Entries, &state.DirtyEntries, &restartPending); err != nil {
		return nil, fmt.Errorf("server state: %w", err)
	}
	state.PendingRestart = restartPending > 0
	return state, nil
}

func (s *SqliteEntryStore) ClearDirty(ctx context.Context, serverID string) (int, error) {
	defer observeQuery(s.metrics, "update", "config_entries", time.Now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE config_entries SET dirty = 0, updated_at = ? WHERE server_id = ? AND dirty = 1
	`, time.Now().UTC(), serverID)
	if err != nil {
		return 0, fmt.Errorf("clear dirty: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear dirty: %w", err)
	}
	return int(affected), nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// SqliteTemplateStore implements TemplateStore on sqlite.
type SqliteTemplateStore struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func (s *SqliteTemplateStore) Create(ctx context.Context, tmpl *models.ConfigTemplate) error {
	defer observeQuery(s.metrics, "insert", "config_templates", time.Now())
	if tmpl == nil {
		return fmt.Errorf("template is required")
	}
	if err := tmpl.Validate(); err != nil {
		return err
	}
	if tmpl.ID == "" {
		tmpl.ID = uuid.New().String()
	}
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = time.Now().UTC()
	}
	items, err := json.Marshal(tmpl.Items)
	if err != nil {
		return fmt.Errorf("marshal template items: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO config_templates (id, name, description, modpack_id, items, is_default, created_at)
		VALUES (?,?,?,?,?,?,?)
	`, tmpl.ID, tmpl.Name, tmpl.Description, tmpl.ModpackID, string(items), tmpl.Default, tmpl.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func scanTemplate(row interface{ Scan(...any) error }) (*models.ConfigTemplate, error) {
	var (
		tmpl  models.ConfigTemplate
		items string
		desc  sql.NullString
	)
	err := row.Scan(&tmpl.ID, &tmpl.Name, &desc, &tmpl.ModpackID, &items, &tmpl.Default, &tmpl.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan template: %w", err)
	}
	tmpl.Description = desc.String
	if err := json.Unmarshal([]byte(items), &tmpl.Items); err != nil {
		return nil, fmt.Errorf("unmarshal template items: %w", err)
	}
	return &tmpl, nil
}

func (s *SqliteTemplateStore) Get(ctx context.Context, id string) (*models.ConfigTemplate, error) {
	defer observeQuery(s.metrics, "select", "config_templates", time.Now())
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, modpack_id, items, is_default, created_at
		FROM config_templates WHERE id = ?
	`, id)
	return scanTemplate(row)
}

func (s *SqliteTemplateStore) ListByModpack(ctx context.Context, modpackID int) ([]*models.ConfigTemplate, error) {
	defer observeQuery(s.metrics, "select", "config_templates", time.Now())
	query := `
		SELECT id, name, description, modpack_id, items, is_default, created_at
		FROM config_templates`
	args := []any{}
	if modpackID != 0 {
		query += ` WHERE modpack_id = ?`
		args = append(args, modpackID)
	}
	query += ` ORDER BY name`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []*models.ConfigTemplate
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tmpl)
	}
	return out, rows.Err()
}

func (s *SqliteTemplateStore) Delete(ctx context.Context, id string) error {
	defer observeQuery(s.metrics, "delete", "config_templates", time.Now())
	res, err := s.db.ExecContext(ctx, `DELETE FROM config_templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SqliteServerStore implements ServerStore on sqlite.
type SqliteServerStore struct {
	db      *sql.DB
	metrics *observability.Metrics
}

const serverColumns = `id, name, modpack_id, modpack_version, container_id, status, port, rcon_port, rcon_password, template_id, created_at, updated_at`

func (s *SqliteServerStore) Create(ctx context.Context, server *models.Server) error {
	defer observeQuery(s.metrics, "insert", "servers", time.Now())
	if server == nil {
		return fmt.Errorf("server is required")
	}
	if err := server.Validate(); err != nil {
		return err
	}
	if server.ID == "" {
		server.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if server.CreatedAt.IsZero() {
		server.CreatedAt = now
	}
	server.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (`+serverColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		server.ID, server.Name, server.ModpackID, server.ModpackVersion,
		server.ContainerID, string(server.Status), server.Port, server.RconPort,
		server.RconPassword, server.TemplateID, server.CreatedAt, server.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	return nil
}

func scanServer(row interface{ Scan(...any) error }) (*models.Server, error) {
	var (
		server      models.Server
		status      string
		containerID sql.NullString
		templateID  sql.NullString
	)
	err := row.Scan(
		&server.ID, &server.Name, &server.ModpackID, &server.ModpackVersion,
		&containerID, &status, &server.Port, &server.RconPort,
		&server.RconPassword, &templateID, &server.CreatedAt, &server.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan server: %w", err)
	}
	server.ContainerID = containerID.String
	server.TemplateID = templateID.String
	server.Status = models.ServerStatus(status)
	return &server, nil
}

func (s *SqliteServerStore) Get(ctx context.Context, id string) (*models.Server, error) {
	defer observeQuery(s.metrics, "select", "servers", time.Now())
	row := s.db.QueryRowContext(ctx, `SELECT `+serverColumns+` FROM servers WHERE id = ?`, id)
	return scanServer(row)
}

func (s *SqliteServerStore) GetByName(ctx context.Context, name string) (*models.Server, error) {
	defer observeQuery(s.metrics, "select", "servers", time.Now())
	row := s.db.QueryRowContext(ctx, `SELECT `+serverColumns+` FROM servers WHERE name = ?`, name)
	return scanServer(row)
}

func (s *SqliteServerStore) List(ctx context.Context) ([]*models.Server, error) {
	defer observeQuery(s.metrics, "select", "servers", time.Now())
	rows, err := s.db.QueryContext(ctx, `SELECT `+serverColumns+` FROM servers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	defer rows.Close()

	var out []*models.Server
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, server)
	}
	return out, rows.Err()
}

func (s *SqliteServerStore) Update(ctx context.Context, server *models.Server) error {
	defer observeQuery(s.metrics, "update", "servers", time.Now())
	if server == nil || server.ID == "" {
		return fmt.Errorf("server is required")
	}
	if err := server.Validate(); err != nil {
		return err
	}
	server.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE servers
		SET name = ?, modpack_id = ?, modpack_version = ?, container_id = ?,
			status = ?, port = ?, rcon_port = ?, rcon_password = ?, template_id = ?, updated_at = ?
		WHERE id = ?
	`,
		server.Name, server.ModpackID, server.ModpackVersion, server.ContainerID,
		string(server.Status), server.Port, server.RconPort, server.RconPassword,
		server.TemplateID, server.UpdatedAt, server.ID,
	)
	if err != nil {
		return fmt.Errorf("update server: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update server: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SqliteServerStore) Delete(ctx context.Context, id string) error {
	defer observeQuery(s.metrics, "delete", "servers", time.Now())
	res, err := s.db.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete server: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete server: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
