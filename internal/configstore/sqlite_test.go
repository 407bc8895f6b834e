package configstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/craftdeck/craftdeck/internal/observability"
	"github.com/craftdeck/craftdeck/pkg/models"
)

// setupMockDB creates a mock database and a store set wired over it.
func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, StoreSet) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	return db, mock, NewSqliteStoreSet(db, nil)
}

func entryRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "server_id", "file_id", "key", "raw_value", "kind", "control",
		"min_value", "max_value", "options", "hot_applicable", "dirty",
		"revision", "created_at", "updated_at",
	})
}

func TestSqliteEntryStore_Create(t *testing.T) {
	tests := []struct {
		name      string
		entry     *models.ConfigEntry
		setupMock func(sqlmock.Sqlmock)
		wantErr   error
	}{
		{
			name: "successful create",
			entry: &models.ConfigEntry{
				ServerID: "srv-1",
				FileID:   "server.properties",
				Key:      "motd",
				RawValue: "hello",
				Kind:     models.KindString,
				Control:  models.ControlTextInput,
			},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO config_entries").
					WithArgs(
						sqlmock.AnyArg(), // id
						"srv-1",
						"server.properties",
						"motd",
						"hello",
						"string",
						"text-input",
						sqlmock.AnyArg(), // min
						sqlmock.AnyArg(), // max
						sqlmock.AnyArg(), // options
						false,
						false,
						int64(0),
						sqlmock.AnyArg(), // created_at
						sqlmock.AnyArg(), // updated_at
					).
					WillReturnResult(sqlmock.NewResult(1, 1))
			},
		},
		{
			name: "unique violation maps to already exists",
			entry: &models.ConfigEntry{
				ServerID: "srv-1",
				FileID:   "server.properties",
				Key:      "motd",
				RawValue: "hello",
				Kind:     models.KindString,
				Control:  models.ControlTextInput,
			},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO config_entries").
					WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: config_entries.server_id, config_entries.file_id, config_entries.key"))
			},
			wantErr: ErrAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, stores := setupMockDB(t)
			defer db.Close()
			tt.setupMock(mock)

			err := stores.Entries.Create(context.Background(), tt.entry)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.entry.ID == "" {
				t.Error("Create should assign an id")
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestSqliteEntryStore_Get(t *testing.T) {
	db, mock, stores := setupMockDB(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM config_entries WHERE id").
		WithArgs("ent-1").
		WillReturnRows(entryRows().AddRow(
			"ent-1", "srv-1", "server.properties", "max-players", "20",
			"integer", "slider", 1.0, 200.0, nil, false, false, int64(3), now, now,
		))

	entry, err := stores.Entries.Get(context.Background(), "ent-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Control != models.ControlSlider {
		t.Errorf("control = %v, want slider", entry.Control)
	}
	if entry.Min == nil || *entry.Min != 1 || entry.Max == nil || *entry.Max != 200 {
		t.Errorf("bounds = %v..%v, want 1..200", entry.Min, entry.Max)
	}
	if entry.Revision != 3 {
		t.Errorf("revision = %d, want 3", entry.Revision)
	}

	mock.ExpectQuery("SELECT (.+) FROM config_entries WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := stores.Entries.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing: err = %v, want ErrNotFound", err)
	}
}

func TestSqliteEntryStore_GetDecodesOptions(t *testing.T) {
	db, mock, stores := setupMockDB(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM config_entries WHERE id").
		WithArgs("ent-1").
		WillReturnRows(entryRows().AddRow(
			"ent-1", "srv-1", "server.properties", "difficulty", "hard",
			"enumeration", "dropdown", nil, nil, `["peaceful","easy","normal","hard"]`,
			true, false, int64(0), now, now,
		))

	entry, err := stores.Entries.Get(context.Background(), "ent-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(entry.Options) != 4 || entry.Options[3] != "hard" {
		t.Errorf("options = %v", entry.Options)
	}
	if !entry.HotApplicable {
		t.Error("hot_applicable not decoded")
	}
}

func TestSqliteEntryStore_Update(t *testing.T) {
	entry := &models.ConfigEntry{
		ID:       "ent-1",
		ServerID: "srv-1",
		FileID:   "server.properties",
		Key:      "motd",
		RawValue: "updated",
		Kind:     models.KindString,
		Control:  models.ControlTextInput,
		Revision: 4,
	}

	t.Run("successful update", func(t *testing.T) {
		db, mock, stores := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec("UPDATE config_entries").
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := stores.Entries.Update(context.Background(), entry, 3); err != nil {
			t.Fatalf("Update: %v", err)
		}
	})

	t.Run("stale revision", func(t *testing.T) {
		db, mock, stores := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec("UPDATE config_entries").
			WillReturnResult(sqlmock.NewResult(0, 0))
		// The follow-up read distinguishes stale from missing.
		now := time.Now().UTC()
		mock.ExpectQuery("SELECT (.+) FROM config_entries WHERE id").
			WillReturnRows(entryRows().AddRow(
				"ent-1", "srv-1", "server.properties", "motd", "old",
				"string", "text-input", nil, nil, nil, false, false, int64(5), now, now,
			))

		if err := stores.Entries.Update(context.Background(), entry, 3); !errors.Is(err, ErrRevisionMismatch) {
			t.Fatalf("err = %v, want ErrRevisionMismatch", err)
		}
	})

	t.Run("missing row", func(t *testing.T) {
		db, mock, stores := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec("UPDATE config_entries").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT (.+) FROM config_entries WHERE id").
			WillReturnError(sql.ErrNoRows)

		if err := stores.Entries.Update(context.Background(), entry, 3); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestSqliteEntryStore_ServerState(t *testing.T) {
	db, mock, stores := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("srv-1").
		WillReturnRows(sqlmock.NewRows([]string{"count", "dirty", "pending"}).AddRow(10, 3, 1))

	state, err := stores.Entries.ServerState(context.Background(), "srv-1")
	if err != nil {
		t.Fatalf("ServerState: %v", err)
	}
	if state.Entries != 10 || state.DirtyEntries != 3 || !state.PendingRestart {
		t.Errorf("state = %+v", state)
	}
}

func TestSqliteStores_QueryDurationObserved(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	stores := NewSqliteStoreSet(db, metrics)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM config_entries WHERE id").
		WithArgs("ent-1").
		WillReturnRows(entryRows().AddRow(
			"ent-1", "srv-1", "server.properties", "motd", "hello",
			"string", "text-input", nil, nil, nil, false, false, int64(0), now, now,
		))
	mock.ExpectExec("DELETE FROM servers").
		WithArgs("srv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if _, err := stores.Entries.Get(context.Background(), "ent-1"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := stores.Servers.Delete(context.Background(), "srv-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// One series per (operation, table) pair touched.
	if got := testutil.CollectAndCount(metrics.StoreQueryDuration); got != 2 {
		t.Errorf("store query series = %d, want 2", got)
	}
}

func TestSqliteEntryStore_DeleteServer(t *testing.T) {
	db, mock, stores := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec("DELETE FROM config_entries WHERE server_id").
		WithArgs("srv-1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	removed, err := stores.Entries.DeleteServer(context.Background(), "srv-1")
	if err != nil {
		t.Fatalf("DeleteServer: %v", err)
	}
	if removed != 4 {
		t.Errorf("removed = %d, want 4", removed)
	}
}

func TestSqliteTemplateStore_ListByModpack(t *testing.T) {
	now := time.Now().UTC()
	rows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "name", "description", "modpack_id", "items", "is_default", "created_at"}).
			AddRow("tpl-1", "base", "starter values", 42, `[{"file_id":"f","key":"k","raw_value":"v"}]`, true, now)
	}

	t.Run("filtered by modpack", func(t *testing.T) {
		db, mock, stores := setupMockDB(t)
		defer db.Close()

		mock.ExpectQuery("SELECT (.+) FROM config_templates WHERE modpack_id").
			WithArgs(42).
			WillReturnRows(rows())

		list, err := stores.Templates.ListByModpack(context.Background(), 42)
		if err != nil {
			t.Fatalf("ListByModpack: %v", err)
		}
		if len(list) != 1 || list[0].Name != "base" || len(list[0].Items) != 1 {
			t.Errorf("list = %+v", list)
		}
	})

	t.Run("zero lists all", func(t *testing.T) {
		db, mock, stores := setupMockDB(t)
		defer db.Close()

		mock.ExpectQuery("SELECT (.+) FROM config_templates ORDER BY name").
			WillReturnRows(rows())

		list, err := stores.Templates.ListByModpack(context.Background(), 0)
		if err != nil {
			t.Fatalf("ListByModpack: %v", err)
		}
		if len(list) != 1 {
			t.Errorf("got %d templates, want 1", len(list))
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
	})
}

func TestSqliteServerStore_Delete(t *testing.T) {
	db, mock, stores := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec("DELETE FROM servers").
		WithArgs("srv-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := stores.Servers.Delete(context.Background(), "srv-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSqliteServerStore_GetByName(t *testing.T) {
	db, mock, stores := setupMockDB(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM servers WHERE name").
		WithArgs("alpha").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "modpack_id", "modpack_version", "container_id", "status",
			"port", "rcon_port", "rcon_password", "template_id", "created_at", "updated_at",
		}).AddRow("srv-1", "alpha", 42, "1.2.0", nil, "running", 25565, 25575, "secret", nil, now, now))

	server, err := stores.Servers.GetByName(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if server.ID != "srv-1" || !server.IsRunning() {
		t.Errorf("server = %+v", server)
	}
	if server.ContainerID != "" {
		t.Errorf("container id = %q, want empty", server.ContainerID)
	}
}
