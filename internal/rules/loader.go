package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Document is the on-disk YAML form of a rule set. A single document can
// carry the global set plus any number of modpack overlays.
//
// Example:
//
//	rules:
//	  max-players:
//	    type: integer
//	    min: 1
//	    max: 200
//	  difficulty:
//	    options: [peaceful, easy, normal, hard]
//	    hot_apply: true
//	overlays:
//	  - modpack_id: 432
//	    rules:
//	      spawn-protection:
//	        type: integer
//	        min: 0
//	        max: 64
type Document struct {
	Rules    map[string]RuleSpec `yaml:"rules" json:"rules"`
	Overlays []OverlaySpec       `yaml:"overlays,omitempty" json:"overlays,omitempty"`
}

// OverlaySpec scopes a rule set to one modpack.
type OverlaySpec struct {
	ModpackID int                 `yaml:"modpack_id" json:"modpack_id"`
	Rules     map[string]RuleSpec `yaml:"rules" json:"rules"`
}

// RuleSpec is the serialized form of a single rule.
type RuleSpec struct {
	Type     string   `yaml:"type,omitempty" json:"type,omitempty"`
	Min      *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max      *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Options  []string `yaml:"options,omitempty" json:"options,omitempty"`
	HotApply *bool    `yaml:"hot_apply,omitempty" json:"hot_apply,omitempty"`
}

func (s RuleSpec) toRule(key string) (Rule, error) {
	r := Rule{
		Min:      s.Min,
		Max:      s.Max,
		Options:  append([]string(nil), s.Options...),
		HotApply: s.HotApply,
	}
	switch s.Type {
	case "":
	case "integer":
		r.Numeric = NumericInteger
	case "float":
		r.Numeric = NumericFloat
	default:
		return Rule{}, fmt.Errorf("rule %s: unknown type %q", key, s.Type)
	}
	if err := validateRule(key, r); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Builder accumulates documents and produces an immutable Table.
type Builder struct {
	global   map[string]Rule
	overlays map[int]map[string]Rule
}

// NewBuilder returns an empty rule table builder.
func NewBuilder() *Builder {
	return &Builder{
		global:   make(map[string]Rule),
		overlays: make(map[int]map[string]Rule),
	}
}

// AddDocument merges a parsed document. Later documents shadow earlier
// ones key by key, so catalog-supplied documents should be added after
// the built-in defaults.
func (b *Builder) AddDocument(doc *Document) error {
	if doc == nil {
		return nil
	}
	for key, spec := range doc.Rules {
		r, err := spec.toRule(key)
		if err != nil {
			return err
		}
		b.global[key] = r
	}
	for _, overlay := range doc.Overlays {
		if overlay.ModpackID <= 0 {
			return fmt.Errorf("overlay: modpack id must be positive")
		}
		set := b.overlays[overlay.ModpackID]
		if set == nil {
			set = make(map[string]Rule, len(overlay.Rules))
			b.overlays[overlay.ModpackID] = set
		}
		for key, spec := range overlay.Rules {
			r, err := spec.toRule(key)
			if err != nil {
				return fmt.Errorf("overlay %d: %w", overlay.ModpackID, err)
			}
			set[key] = r
		}
	}
	return nil
}

// AddOverlay merges a rule set scoped to one modpack, used for documents
// fetched from the catalog at runtime startup.
func (b *Builder) AddOverlay(modpackID int, specs map[string]RuleSpec) error {
	return b.AddDocument(&Document{Overlays: []OverlaySpec{{ModpackID: modpackID, Rules: specs}}})
}

// Build produces the immutable table. The builder may be reused; the
// table does not alias its maps.
func (b *Builder) Build() *Table {
	return NewTable(b.global, b.overlays)
}

// LoadFile parses one YAML rule document from disk.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule document: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rule document %s: %w", path, err)
	}
	return &doc, nil
}

// LoadFiles parses and merges YAML rule documents in argument order.
func LoadFiles(paths ...string) (*Table, error) {
	b := NewBuilder()
	for _, path := range paths {
		doc, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if err := b.AddDocument(doc); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return b.Build(), nil
}
