// Package configstore is the persistence boundary for configuration
// entries, templates and server records. Identity and uniqueness
// invariants live here, not in the callers.
package configstore

import (
	"context"
	"errors"

	"github.com/craftdeck/craftdeck/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// ErrRevisionMismatch is returned by optimistic updates when the
	// stored revision no longer matches the caller's expectation.
	ErrRevisionMismatch = errors.New("revision mismatch")
)

// EntryStore persists classified configuration entries.
//
// The (server, file, key) triple is unique per server; Create enforces it.
// Update is optimistic: it succeeds only when the stored revision equals
// expectedRevision, so concurrent editors cannot silently clobber each
// other.
type EntryStore interface {
	Create(ctx context.Context, entry *models.ConfigEntry) error
	Get(ctx context.Context, id string) (*models.ConfigEntry, error)
	Find(ctx context.Context, serverID, fileID, key string) (*models.ConfigEntry, error)
	ListByServer(ctx context.Context, serverID string) ([]*models.ConfigEntry, error)
	Update(ctx context.Context, entry *models.ConfigEntry, expectedRevision int64) error
	Delete(ctx context.Context, id string) error
	// DeleteServer removes every entry of a decommissioned server and
	// returns the number removed.
	DeleteServer(ctx context.Context, serverID string) (int, error)
	// ServerState aggregates dirty and pending-restart status.
	ServerState(ctx context.Context, serverID string) (*models.ServerConfigState, error)
	// ClearDirty clears the dirty flag on all of a server's entries after
	// a confirmed restart. Returns the number of entries cleared.
	ClearDirty(ctx context.Context, serverID string) (int, error)
}

// TemplateStore persists immutable configuration templates. Template
// names are unique within a modpack.
type TemplateStore interface {
	Create(ctx context.Context, tmpl *models.ConfigTemplate) error
	Get(ctx context.Context, id string) (*models.ConfigTemplate, error)
	ListByModpack(ctx context.Context, modpackID int) ([]*models.ConfigTemplate, error)
	Delete(ctx context.Context, id string) error
}

// ServerStore persists server instance records. Names and ports are
// unique across servers.
type ServerStore interface {
	Create(ctx context.Context, server *models.Server) error
	Get(ctx context.Context, id string) (*models.Server, error)
	GetByName(ctx context.Context, name string) (*models.Server, error)
	List(ctx context.Context) ([]*models.Server, error)
	Update(ctx context.Context, server *models.Server) error
	Delete(ctx context.Context, id string) error
}

// StoreSet groups storage dependencies.
type StoreSet struct {
	Entries   EntryStore
	Templates TemplateStore
	Servers   ServerStore

	closer func() error
}

// NewStoreSet builds a StoreSet with an optional closer for shared
// underlying resources.
func NewStoreSet(entries EntryStore, templates TemplateStore, servers ServerStore, closer func() error) StoreSet {
	return StoreSet{Entries: entries, Templates: templates, Servers: servers, closer: closer}
}

// Close closes any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
