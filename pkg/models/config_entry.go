// Package models provides domain types for the Craftdeck server panel.
package models

import (
	"fmt"
	"time"
)

// ValueKind classifies the primitive type of a configuration value.
type ValueKind string

const (
	KindBoolean     ValueKind = "boolean"
	KindInteger     ValueKind = "integer"
	KindFloat       ValueKind = "float"
	KindString      ValueKind = "string"
	KindEnumeration ValueKind = "enumeration"
)

// ControlKind identifies the UI control used to render and edit a value.
type ControlKind string

const (
	ControlToggle    ControlKind = "toggle"
	ControlSlider    ControlKind = "slider"
	ControlDropdown  ControlKind = "dropdown"
	ControlTextInput ControlKind = "text-input"
)

// ConfigEntry is one classified configuration key/value pair tied to a
// server and the source file it was read from.
//
// Identity is the (ServerID, FileID, Key) triple, unique per server. The
// raw string value is authoritative; Kind and Control describe how it is
// interpreted and rendered, never how it is stored.
type ConfigEntry struct {
	// ID is the store-assigned identifier.
	ID string `json:"id"`

	// ServerID identifies the owning server instance.
	ServerID string `json:"server_id"`

	// FileID identifies the source configuration file, relative to the
	// server's config root (e.g. "server.properties", "config/jei.json5").
	FileID string `json:"file_id"`

	// Key is the configuration key exactly as it appears in the file.
	Key string `json:"key"`

	// RawValue is the value string exactly as read or last edited. It is
	// preserved verbatim even when it lies outside slider bounds.
	RawValue string `json:"raw_value"`

	// Kind is the classified value kind.
	Kind ValueKind `json:"kind"`

	// Control is the inferred UI control.
	Control ControlKind `json:"control"`

	// Min and Max are set if and only if Control is slider.
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`

	// Options is the ordered option set, present if and only if Control is
	// dropdown. Insertion order is preserved.
	Options []string `json:"options,omitempty"`

	// HotApplicable reports whether an edit can be pushed to the live
	// process without a restart. Keys with no rule default to false.
	HotApplicable bool `json:"hot_applicable"`

	// Dirty is true when the entry has been written to the store but not
	// yet confirmed applied to the file and live process.
	Dirty bool `json:"dirty"`

	// Revision increases monotonically on every accepted edit.
	Revision int64 `json:"revision"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the cross-field invariants between kind, control,
// bounds and options.
func (e *ConfigEntry) Validate() error {
	if e.ServerID == "" || e.FileID == "" || e.Key == "" {
		return fmt.Errorf("config entry: server, file and key are required")
	}
	hasBounds := e.Min != nil && e.Max != nil
	if (e.Control == ControlSlider) != hasBounds {
		return fmt.Errorf("config entry %s: bounds present iff control is slider", e.Key)
	}
	if hasBounds && *e.Min >= *e.Max {
		return fmt.Errorf("config entry %s: min must be less than max", e.Key)
	}
	if (e.Control == ControlDropdown) != (len(e.Options) > 0) {
		return fmt.Errorf("config entry %s: options present iff control is dropdown", e.Key)
	}
	switch e.Kind {
	case KindBoolean:
		if e.Control != ControlToggle {
			return fmt.Errorf("config entry %s: boolean values render as toggles", e.Key)
		}
	case KindEnumeration:
		if e.Control != ControlDropdown {
			return fmt.Errorf("config entry %s: enumerations render as dropdowns", e.Key)
		}
	case KindInteger, KindFloat:
		if e.Control != ControlSlider && e.Control != ControlTextInput {
			return fmt.Errorf("config entry %s: numeric values render as sliders or text inputs", e.Key)
		}
	}
	return nil
}

// DisplayValue returns the value as shown in the UI: for sliders the raw
// value clamped into [Min,Max], otherwise the raw value unchanged. The
// stored raw value is never modified by clamping.
func (e *ConfigEntry) DisplayValue() string {
	if e.Control != ControlSlider || e.Min == nil || e.Max == nil {
		return e.RawValue
	}
	v, ok := parseNumeric(e.RawValue)
	if !ok {
		return e.RawValue
	}
	if v < *e.Min {
		return formatNumeric(*e.Min, e.Kind)
	}
	if v > *e.Max {
		return formatNumeric(*e.Max, e.Kind)
	}
	return e.RawValue
}

// ServerConfigState summarizes a server's configuration sync status.
type ServerConfigState struct {
	ServerID string `json:"server_id"`

	// Entries is the total number of tracked entries.
	Entries int `json:"entries"`

	// DirtyEntries counts entries written to the store but not yet applied.
	DirtyEntries int `json:"dirty_entries"`

	// PendingRestart is true iff any entry is dirty and not hot-applicable.
	PendingRestart bool `json:"pending_restart"`
}
