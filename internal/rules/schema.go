package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ruleDocumentSchema validates rule documents supplied as JSON by the
// modpack catalog. YAML documents shipped with the daemon are trusted;
// catalog documents are third-party input and are checked before merging.
const ruleDocumentSchema = `{
  "type": "object",
  "properties": {
    "rules": {"$ref": "#/$defs/ruleSet"},
    "overlays": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "modpack_id": {"type": "integer", "minimum": 1},
          "rules": {"$ref": "#/$defs/ruleSet"}
        },
        "required": ["modpack_id", "rules"],
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "ruleSet": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "type": {"enum": ["integer", "float"]},
          "min": {"type": "number"},
          "max": {"type": "number"},
          "options": {
            "type": "array",
            "items": {"type": "string"},
            "minItems": 1
          },
          "hot_apply": {"type": "boolean"}
        },
        "additionalProperties": false,
        "dependentRequired": {
          "min": ["max", "type"],
          "max": ["min", "type"]
        }
      }
    }
  }
}`

var ruleSchema struct {
	once     sync.Once
	compiled *jsonschema.Schema
	initErr  error
}

func compiledRuleSchema() (*jsonschema.Schema, error) {
	ruleSchema.once.Do(func() {
		ruleSchema.compiled, ruleSchema.initErr = jsonschema.CompileString("rule_document", ruleDocumentSchema)
	})
	return ruleSchema.compiled, ruleSchema.initErr
}

// ParseJSON validates raw JSON against the rule document schema and
// decodes it. Used for documents fetched from the catalog.
func ParseJSON(raw []byte) (*Document, error) {
	schema, err := compiledRuleSchema()
	if err != nil {
		return nil, err
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse rule document: %w", err)
	}
	if err := schema.Validate(payload); err != nil {
		return nil, fmt.Errorf("rule document rejected: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode rule document: %w", err)
	}
	return &doc, nil
}
