// Package rules provides the static metadata table that drives
// configuration value classification: known numeric ranges, known
// enumerations and hot-applicability of keys.
//
// A Table is built once at startup and is immutable afterwards, so it may
// be shared across goroutines without locking. Per-modpack overlays shadow
// global entries by exact key match; there is no fuzzy matching here.
package rules

import (
	"fmt"
)

// NumericType declares which numeric kind a range rule produces.
type NumericType string

const (
	NumericInteger NumericType = "integer"
	NumericFloat   NumericType = "float"
)

// Rule is the classification metadata attached to a single key.
type Rule struct {
	// Numeric range. Present (both non-nil) for slider classification.
	Min *float64
	Max *float64

	// Numeric declares whether a ranged value is an integer or a float.
	// Ignored unless a range is present.
	Numeric NumericType

	// Options is the ordered closed value set for dropdown classification.
	Options []string

	// HotApply reports whether edits to this key reach a live server
	// without a restart. Nil means unknown, which callers must treat as
	// "restart required".
	HotApply *bool
}

// HasRange reports whether the rule carries a complete numeric range.
func (r Rule) HasRange() bool {
	return r.Min != nil && r.Max != nil
}

// HasOptions reports whether the rule carries an enumeration set.
func (r Rule) HasOptions() bool {
	return len(r.Options) > 0
}

// Table maps keys to rules, with per-modpack overlays shadowing the
// global set. Zero value is an empty, usable table.
type Table struct {
	global   map[string]Rule
	overlays map[int]map[string]Rule
}

// NewTable builds an immutable table from a global rule set and
// per-modpack overlays. The input maps are copied.
func NewTable(global map[string]Rule, overlays map[int]map[string]Rule) *Table {
	t := &Table{
		global:   make(map[string]Rule, len(global)),
		overlays: make(map[int]map[string]Rule, len(overlays)),
	}
	for k, r := range global {
		t.global[k] = r
	}
	for id, set := range overlays {
		copied := make(map[string]Rule, len(set))
		for k, r := range set {
			copied[k] = r
		}
		t.overlays[id] = copied
	}
	return t
}

// Lookup resolves the rule for a key, consulting the modpack overlay first
// and falling back to the global set. modpackID 0 skips overlays.
func (t *Table) Lookup(modpackID int, key string) (Rule, bool) {
	if t == nil {
		return Rule{}, false
	}
	if modpackID != 0 {
		if set, ok := t.overlays[modpackID]; ok {
			if r, ok := set[key]; ok {
				return r, true
			}
		}
	}
	r, ok := t.global[key]
	return r, ok
}

// HotApplicable reports whether edits to the key may be pushed to a live
// process. Keys without a rule, or with an unset hot-apply flag, default
// to false: applying a restart-required setting live is unsafe, while the
// reverse merely costs a restart.
func (t *Table) HotApplicable(modpackID int, key string) bool {
	r, ok := t.Lookup(modpackID, key)
	if !ok || r.HotApply == nil {
		return false
	}
	return *r.HotApply
}

// Len returns the number of global rules.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.global)
}

func validateRule(key string, r Rule) error {
	if (r.Min == nil) != (r.Max == nil) {
		return fmt.Errorf("rule %s: range requires both min and max", key)
	}
	if r.HasRange() {
		if *r.Min >= *r.Max {
			return fmt.Errorf("rule %s: min %v must be less than max %v", key, *r.Min, *r.Max)
		}
		switch r.Numeric {
		case NumericInteger, NumericFloat:
		default:
			return fmt.Errorf("rule %s: ranged rules need a numeric type", key)
		}
	}
	if r.HasRange() && r.HasOptions() {
		return fmt.Errorf("rule %s: range and options are mutually exclusive", key)
	}
	seen := make(map[string]bool, len(r.Options))
	for _, opt := range r.Options {
		if seen[opt] {
			return fmt.Errorf("rule %s: duplicate option %q", key, opt)
		}
		seen[opt] = true
	}
	return nil
}
