package configstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/craftdeck/craftdeck/pkg/models"
)

// MemoryEntryStore provides an in-memory EntryStore, used by tests and
// by ephemeral single-run commands.
type MemoryEntryStore struct {
	mu      sync.RWMutex
	entries map[string]*models.ConfigEntry
	byKey   map[string]string // serverID/fileID/key -> id
}

// NewMemoryEntryStore creates an in-memory entry store.
func NewMemoryEntryStore() *MemoryEntryStore {
	return &MemoryEntryStore{
		entries: make(map[string]*models.ConfigEntry),
		byKey:   make(map[string]string),
	}
}

func entryKey(serverID, fileID, key string) string {
	return serverID + "\x00" + fileID + "\x00" + key
}

func (s *MemoryEntryStore) Create(ctx context.Context, entry *models.ConfigEntry) error {
	if entry == nil {
		return fmt.Errorf("entry is required")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := entryKey(entry.ServerID, entry.FileID, entry.Key)
	if _, exists := s.byKey[k]; exists {
		return ErrAlreadyExists
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	s.entries[entry.ID] = cloneEntry(entry)
	s.byKey[k] = entry.ID
	return nil
}

func (s *MemoryEntryStore) Get(ctx context.Context, id string) (*models.ConfigEntry, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEntry(entry), nil
}

func (s *MemoryEntryStore) Find(ctx context.Context, serverID, fileID, key string) (*models.ConfigEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[entryKey(serverID, fileID, key)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEntry(s.entries[id]), nil
}

func (s *MemoryEntryStore) ListByServer(ctx context.Context, serverID string) ([]*models.ConfigEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ConfigEntry, 0)
	for _, entry := range s.entries {
		if entry.ServerID == serverID {
			out = append(out, cloneEntry(entry))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FileID != out[j].FileID {
			return out[i].FileID < out[j].FileID
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (s *MemoryEntryStore) Update(ctx context.Context, entry *models.ConfigEntry, expectedRevision int64) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("entry is required")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.entries[entry.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Revision != expectedRevision {
		return ErrRevisionMismatch
	}
	entry.UpdatedAt = time.Now().UTC()
	entry.CreatedAt = stored.CreatedAt
	s.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (s *MemoryEntryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byKey, entryKey(entry.ServerID, entry.FileID, entry.Key))
	delete(s.entries, id)
	return nil
}

func (s *MemoryEntryStore) DeleteServer(ctx context.Context, serverID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.entries {
		if entry.ServerID != serverID {
			continue
		}
		delete(s.byKey, entryKey(entry.ServerID, entry.FileID, entry.Key))
		delete(s.entries, id)
		removed++
	}
	return removed, nil
}

func (s *MemoryEntryStore) ServerState(ctx context.Context, serverID string) (*models.ServerConfigState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := &models.ServerConfigState{ServerID: serverID}
	for _, entry := range s.entries {
		if entry.ServerID != serverID {
			continue
		}
		state.Entries++
		if entry.Dirty {
			state.DirtyEntries++
			if !entry.HotApplicable {
				state.PendingRestart = true
			}
		}
	}
	return state, nil
}

func (s *MemoryEntryStore) ClearDirty(ctx context.Context, serverID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cleared := 0
	for _, entry := range s.entries {
		if entry.ServerID == serverID && entry.Dirty {
			entry.Dirty = false
			entry.UpdatedAt = time.Now().UTC()
			cleared++
		}
	}
	return cleared, nil
}

func cloneEntry(e *models.ConfigEntry) *models.ConfigEntry {
	if e == nil {
		return nil
	}
	copied := *e
	if e.Min != nil {
		v := *e.Min
		copied.Min = &v
	}
	if e.Max != nil {
		v := *e.Max
		copied.Max = &v
	}
	copied.Options = append([]string(nil), e.Options...)
	return &copied
}

// MemoryTemplateStore provides an in-memory TemplateStore.
type MemoryTemplateStore struct {
	mu        sync.RWMutex
	templates map[string]*models.ConfigTemplate
}

// NewMemoryTemplateStore creates an in-memory template store.
func NewMemoryTemplateStore() *MemoryTemplateStore {
	return &MemoryTemplateStore{templates: make(map[string]*models.ConfigTemplate)}
}

func (s *MemoryTemplateStore) Create(ctx context.Context, tmpl *models.ConfigTemplate) error {
	if tmpl == nil {
		return fmt.Errorf("template is required")
	}
	if err := tmpl.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.templates {
		if existing.ModpackID == tmpl.ModpackID && existing.Name == tmpl.Name {
			return ErrAlreadyExists
		}
	}
	if tmpl.ID == "" {
		tmpl.ID = uuid.New().String()
	}
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = time.Now().UTC()
	}
	s.templates[tmpl.ID] = cloneTemplate(tmpl)
	return nil
}

func (s *MemoryTemplateStore) Get(ctx context.Context, id string) (*models.ConfigTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tmpl, ok := s.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTemplate(tmpl), nil
}

func (s *MemoryTemplateStore) ListByModpack(ctx context.Context, modpackID int) ([]*models.ConfigTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ConfigTemplate, 0)
	for _, tmpl := range s.templates {
		if modpackID == 0 || tmpl.ModpackID == modpackID {
			out = append(out, cloneTemplate(tmpl))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryTemplateStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[id]; !ok {
		return ErrNotFound
	}
	delete(s.templates, id)
	return nil
}

func cloneTemplate(t *models.ConfigTemplate) *models.ConfigTemplate {
	if t == nil {
		return nil
	}
	copied := *t
	copied.Items = append([]models.TemplateItem(nil), t.Items...)
	return &copied
}

// MemoryServerStore provides an in-memory ServerStore.
type MemoryServerStore struct {
	mu      sync.RWMutex
	servers map[string]*models.Server
}

// NewMemoryServerStore creates an in-memory server store.
func NewMemoryServerStore() *MemoryServerStore {
	return &MemoryServerStore{servers: make(map[string]*models.Server)}
}

func (s *MemoryServerStore) Create(ctx context.Context, server *models.Server) error {
	if server == nil {
		return fmt.Errorf("server is required")
	}
	if err := server.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.servers {
		if existing.Name == server.Name {
			return ErrAlreadyExists
		}
		if existing.Port == server.Port || existing.RconPort == server.RconPort {
			return ErrAlreadyExists
		}
	}
	if server.ID == "" {
		server.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if server.CreatedAt.IsZero() {
		server.CreatedAt = now
	}
	server.UpdatedAt = now
	copied := *server
	s.servers[server.ID] = &copied
	return nil
}

func (s *MemoryServerStore) Get(ctx context.Context, id string) (*models.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	server, ok := s.servers[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *server
	return &copied, nil
}

func (s *MemoryServerStore) GetByName(ctx context.Context, name string) (*models.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, server := range s.servers {
		if server.Name == name {
			copied := *server
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryServerStore) List(ctx context.Context) ([]*models.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Server, 0, len(s.servers))
	for _, server := range s.servers {
		copied := *server
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryServerStore) Update(ctx context.Context, server *models.Server) error {
	if server == nil || server.ID == "" {
		return fmt.Errorf("server is required")
	}
	if err := server.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.servers[server.ID]
	if !ok {
		return ErrNotFound
	}
	server.CreatedAt = stored.CreatedAt
	server.UpdatedAt = time.Now().UTC()
	copied := *server
	s.servers[server.ID] = &copied
	return nil
}

func (s *MemoryServerStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.servers[id]; !ok {
		return ErrNotFound
	}
	delete(s.servers, id)
	return nil
}

// NewMemoryStoreSet wires all three memory stores together.
func NewMemoryStoreSet() StoreSet {
	return NewStoreSet(NewMemoryEntryStore(), NewMemoryTemplateStore(), NewMemoryServerStore(), nil)
}
