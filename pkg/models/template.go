package models

import (
	"fmt"
	"time"
)

// TemplateItem is one (file, key, value) triple inside a template snapshot.
// Order within the snapshot is significant: templates apply in order.
type TemplateItem struct {
	FileID   string `json:"file_id"`
	Key      string `json:"key"`
	RawValue string `json:"raw_value"`
}

// ConfigTemplate is a named, immutable snapshot of configuration entries
// usable to seed a new server's configuration. Templates never mutate in
// place; editing is modeled as create-plus-delete by the surrounding API.
type ConfigTemplate struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// ModpackID is the catalog entry this template belongs to. Template
	// names are unique within a modpack.
	ModpackID int `json:"modpack_id"`

	Items []TemplateItem `json:"items"`

	// Default marks the template applied to new servers of this modpack
	// when no explicit template is chosen.
	Default bool `json:"default"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks template fields ahead of persistence.
func (t *ConfigTemplate) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("template: name is required")
	}
	if len(t.Name) > 255 {
		return fmt.Errorf("template %s: name exceeds 255 characters", t.Name)
	}
	if t.ModpackID <= 0 {
		return fmt.Errorf("template %s: modpack id must be positive", t.Name)
	}
	if len(t.Description) > 1000 {
		return fmt.Errorf("template %s: description exceeds 1000 characters", t.Name)
	}
	for i, item := range t.Items {
		if item.FileID == "" || item.Key == "" {
			return fmt.Errorf("template %s: item %d missing file or key", t.Name, i)
		}
	}
	return nil
}
