package classify

import (
	"testing"

	"github.com/craftdeck/craftdeck/internal/rules"
	"github.com/craftdeck/craftdeck/pkg/models"
)

func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func testTable() *rules.Table {
	return rules.NewTable(map[string]rules.Rule{
		"max-players": {
			Min: floatPtr(1), Max: floatPtr(200),
			Numeric: rules.NumericInteger,
		},
		"mob-spawn-rate": {
			Min: floatPtr(0), Max: floatPtr(4),
			Numeric: rules.NumericFloat,
		},
		"difficulty": {
			Options:  []string{"peaceful", "easy", "normal", "hard"},
			HotApply: boolPtr(true),
		},
		"pvp": {HotApply: boolPtr(true)},
	}, map[int]map[string]rules.Rule{
		432: {
			"max-players": {
				Min: floatPtr(1), Max: floatPtr(500),
				Numeric: rules.NumericInteger,
			},
		},
	})
}

func TestClassify_BooleanLiteral(t *testing.T) {
	c := New(testTable())

	for _, raw := range []string{"true", "false", "TRUE", "False", "  true  "} {
		res := c.Classify(0, "pvp", raw, nil)
		if res.Kind != models.KindBoolean {
			t.Errorf("%q: kind = %v, want boolean", raw, res.Kind)
		}
		if res.Control != models.ControlToggle {
			t.Errorf("%q: control = %v, want toggle", raw, res.Control)
		}
	}
}

func TestClassify_BooleanBeatsRules(t *testing.T) {
	c := New(testTable())

	// A boolean literal wins even for a key carrying a range rule.
	res := c.Classify(0, "max-players", "true", nil)
	if res.Control != models.ControlToggle {
		t.Errorf("control = %v, want toggle", res.Control)
	}
}

func TestClassify_SliderFromRangeRule(t *testing.T) {
	c := New(testTable())

	res := c.Classify(0, "max-players", "20", nil)
	if res.Kind != models.KindInteger {
		t.Errorf("kind = %v, want integer", res.Kind)
	}
	if res.Control != models.ControlSlider {
		t.Errorf("control = %v, want slider", res.Control)
	}
	if res.Min == nil || res.Max == nil || *res.Min != 1 || *res.Max != 200 {
		t.Errorf("bounds = %v..%v, want 1..200", res.Min, res.Max)
	}

	res = c.Classify(0, "mob-spawn-rate", "1.5", nil)
	if res.Kind != models.KindFloat || res.Control != models.ControlSlider {
		t.Errorf("float range rule: got %v/%v", res.Kind, res.Control)
	}
}

func TestClassify_SliderUsesOverlayBounds(t *testing.T) {
	c := New(testTable())

	res := c.Classify(432, "max-players", "20", nil)
	if res.Max == nil || *res.Max != 500 {
		t.Errorf("overlay bounds not applied, max = %v", res.Max)
	}
}

func TestClassify_OutOfRangeValueStillSlider(t *testing.T) {
	c := New(testTable())

	// Values outside the rule's bounds keep the slider; clamping is a
	// display concern, the raw value is preserved.
	res := c.Classify(0, "max-players", "9999", nil)
	if res.Control != models.ControlSlider {
		t.Errorf("control = %v, want slider", res.Control)
	}
}

func TestClassify_NonNumericWithRangeRule(t *testing.T) {
	c := New(testTable())

	res := c.Classify(0, "max-players", "lots", nil)
	if res.Control != models.ControlTextInput {
		t.Errorf("control = %v, want text input", res.Control)
	}
	if res.Kind != models.KindString {
		t.Errorf("kind = %v, want string", res.Kind)
	}
}

func TestClassify_DropdownFromEnumRule(t *testing.T) {
	c := New(testTable())

	res := c.Classify(0, "difficulty", "normal", nil)
	if res.Kind != models.KindEnumeration {
		t.Errorf("kind = %v, want enumeration", res.Kind)
	}
	if res.Control != models.ControlDropdown {
		t.Errorf("control = %v, want dropdown", res.Control)
	}
	if len(res.Options) != 4 || res.Options[0] != "peaceful" {
		t.Errorf("options = %v, want rule order preserved", res.Options)
	}
	if !res.HotApplicable {
		t.Error("difficulty should be hot applicable")
	}
}

func TestClassify_EnumRuleValueNotMember(t *testing.T) {
	c := New(testTable())

	res := c.Classify(0, "difficulty", "nightmare", nil)
	if res.Control != models.ControlTextInput {
		t.Errorf("control = %v, want text input for a non-member value", res.Control)
	}
}

func TestClassify_ClosedSetHeuristic(t *testing.T) {
	c := New(testTable())
	observed := []string{"overworld", "nether", "end", "overworld"}

	res := c.Classify(0, "starting-dimension", "nether", observed)
	if res.Control != models.ControlDropdown {
		t.Fatalf("control = %v, want dropdown", res.Control)
	}
	if len(res.Options) != 3 {
		t.Errorf("options = %v, want deduplicated set of 3", res.Options)
	}
	if res.HotApplicable {
		t.Error("heuristic dropdown has no rule, hot must default false")
	}
}

func TestClassify_ClosedSetRejections(t *testing.T) {
	c := New(testTable())

	tests := []struct {
		name     string
		raw      string
		observed []string
	}{
		{"single observation", "solo", []string{"solo"}},
		{"value not in set", "other", []string{"alpha", "beta"}},
		{"numeric member breaks the set", "alpha", []string{"alpha", "42"}},
		{"boolean member breaks the set", "alpha", []string{"alpha", "true"}},
		{"free text member", "alpha", []string{"alpha", "hello world"}},
		{
			"set too large",
			"v0",
			[]string{"v0", "v1", "v2", "v3", "v4", "v5", "v6", "v7", "v8"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Classify(0, "key", tt.raw, tt.observed)
			if res.Control != models.ControlTextInput {
				t.Errorf("control = %v, want text input", res.Control)
			}
		})
	}
}

func TestClassify_NumberWithoutRule(t *testing.T) {
	c := New(testTable())

	res := c.Classify(0, "some-unknown-count", "30", nil)
	if res.Control != models.ControlTextInput {
		t.Errorf("bare number without a range rule must stay text input, got %v", res.Control)
	}
}

func TestEntry(t *testing.T) {
	c := New(testTable())

	entry := c.Entry(0, "srv-1", "server.properties", "max-players", "20", nil)
	if entry.ServerID != "srv-1" || entry.FileID != "server.properties" {
		t.Errorf("identity fields not carried: %+v", entry)
	}
	if entry.Control != models.ControlSlider {
		t.Errorf("control = %v, want slider", entry.Control)
	}
	if entry.RawValue != "20" {
		t.Errorf("raw value = %q, want preserved", entry.RawValue)
	}
	if err := entry.Validate(); err != nil {
		t.Errorf("classifier-built entry should validate: %v", err)
	}
}
