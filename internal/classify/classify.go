// Package classify infers typed values and UI controls from raw
// configuration strings.
//
// Classification is pure computation: no I/O, no state beyond the
// immutable rule table handed in at construction. Input that matches
// nothing degrades to a plain text value rather than failing, so a
// broken config file can never poison a scan.
package classify

import (
	"strconv"
	"strings"

	"github.com/craftdeck/craftdeck/internal/rules"
	"github.com/craftdeck/craftdeck/pkg/models"
)

// maxHeuristicOptions bounds how large a co-occurring value set may be
// before it stops looking like a closed enumeration.
const maxHeuristicOptions = 8

// Result is the outcome of classifying one raw value.
type Result struct {
	Kind    models.ValueKind
	Control models.ControlKind

	// Min and Max are set iff Control is slider.
	Min *float64
	Max *float64

	// Options is set iff Control is dropdown; order follows the rule or
	// the observation order, deduplicated.
	Options []string

	// HotApplicable is resolved from the rule table; keys without a rule
	// default to false.
	HotApplicable bool
}

// Classifier applies the decision ladder against a rule table.
type Classifier struct {
	table *rules.Table
}

// New creates a classifier over an immutable rule table.
func New(table *rules.Table) *Classifier {
	return &Classifier{table: table}
}

// Classify infers the value kind and UI control for one key/value pair.
//
// observed carries the values seen for this key across the server's file
// family during the current scan; it feeds the closed-set heuristic and
// may be nil.
//
// Decision order, first match wins:
//  1. boolean literal -> toggle
//  2. known range rule + numeric value -> slider
//  3. known enumeration rule, or closed observed set containing the
//     value -> dropdown
//  4. anything else -> text input
func (c *Classifier) Classify(modpackID int, key, raw string, observed []string) Result {
	res := Result{
		Kind:          models.KindString,
		Control:       models.ControlTextInput,
		HotApplicable: c.table.HotApplicable(modpackID, key),
	}

	if isBooleanLiteral(raw) {
		res.Kind = models.KindBoolean
		res.Control = models.ControlToggle
		return res
	}

	rule, haveRule := c.table.Lookup(modpackID, key)

	if haveRule && rule.HasRange() {
		if _, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			if rule.Numeric == rules.NumericInteger {
				res.Kind = models.KindInteger
			} else {
				res.Kind = models.KindFloat
			}
			res.Control = models.ControlSlider
			min, max := *rule.Min, *rule.Max
			res.Min, res.Max = &min, &max
			return res
		}
	}

	if haveRule && rule.HasOptions() && contains(rule.Options, raw) {
		res.Kind = models.KindEnumeration
		res.Control = models.ControlDropdown
		res.Options = append([]string(nil), rule.Options...)
		return res
	}

	if opts, ok := closedSet(raw, observed); ok {
		res.Kind = models.KindEnumeration
		res.Control = models.ControlDropdown
		res.Options = opts
		return res
	}

	// Bare numbers with no known range stay text inputs; a slider needs
	// declared bounds.
	return res
}

func isBooleanLiteral(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "false":
		return true
	}
	return false
}

// closedSet applies the enumeration heuristic: the raw value sits inside
// a small, closed set of short symbolic values that co-occur for this key
// across the file family.
func closedSet(raw string, observed []string) ([]string, bool) {
	if len(observed) < 2 {
		return nil, false
	}
	opts := make([]string, 0, len(observed))
	seen := make(map[string]bool, len(observed))
	for _, v := range observed {
		if seen[v] {
			continue
		}
		seen[v] = true
		if !looksSymbolic(v) {
			return nil, false
		}
		opts = append(opts, v)
	}
	if len(opts) < 2 || len(opts) > maxHeuristicOptions {
		return nil, false
	}
	if !seen[raw] {
		return nil, false
	}
	return opts, true
}

// looksSymbolic reports whether a value reads like an enum member rather
// than free text or a number.
func looksSymbolic(v string) bool {
	if v == "" || len(v) > 32 {
		return false
	}
	if isBooleanLiteral(v) {
		return false
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return false
	}
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Entry builds a ConfigEntry skeleton for a freshly observed tuple. The
// caller fills in identity and store bookkeeping.
func (c *Classifier) Entry(modpackID int, serverID, fileID, key, raw string, observed []string) *models.ConfigEntry {
	res := c.Classify(modpackID, key, raw, observed)
	return &models.ConfigEntry{
		ServerID:      serverID,
		FileID:        fileID,
		Key:           key,
		RawValue:      raw,
		Kind:          res.Kind,
		Control:       res.Control,
		Min:           res.Min,
		Max:           res.Max,
		Options:       res.Options,
		HotApplicable: res.HotApplicable,
	}
}
