package reader

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

// json5Parse flattens a JSON5 document into dotted-path tuples. Nested
// objects become "outer.inner" keys; arrays and nulls are carried as their
// JSON text so round-trips stay lossless at the value level.
func json5Parse(data []byte) ([]Tuple, error) {
	var doc map[string]any
	if err := json5.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("json5: %w", err)
	}
	var out []Tuple
	flattenJSON5("", doc, &out)
	return out, nil
}

func flattenJSON5(prefix string, node map[string]any, out *[]Tuple) {
	// json5 decodes objects into unordered maps; sort keys so scans are
	// deterministic across runs.
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch v := node[k].(type) {
		case map[string]any:
			flattenJSON5(path, v, out)
		default:
			*out = append(*out, Tuple{Key: path, RawValue: json5Scalar(v)})
		}
	}
}

func json5Scalar(v any) string {
	switch typed := v.(type) {
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case nil:
		return "null"
	default:
		data, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}
		return string(data)
	}
}

// json5Set rewrites one dotted-path key. When the key already exists
// and its declaration sits alone on a line, only that line's value text
// changes; comments and every other line survive byte for byte, the
// same fidelity propertiesSet gives. Documents the line rewrite cannot
// handle (new keys, ambiguous names, multi-line values) are re-encoded
// as plain JSON, which every JSON5 consumer accepts.
func json5Set(data []byte, key, rawValue string) ([]byte, error) {
	var doc map[string]any
	if len(data) > 0 {
		if err := json5.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("json5: %w", err)
		}
	}
	if doc == nil {
		doc = make(map[string]any)
	}

	parts := strings.Split(key, ".")
	if pathExists(doc, parts) {
		if updated, ok := json5Rewrite(data, parts[len(parts)-1], rawValue); ok {
			return updated, nil
		}
	}

	node := doc
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[part] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = json5Value(rawValue)

	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("json5: encode: %w", err)
	}
	return append(encoded, '\n'), nil
}

func pathExists(doc map[string]any, parts []string) bool {
	node := doc
	for i, part := range parts {
		v, ok := node[part]
		if !ok {
			return false
		}
		if i == len(parts)-1 {
			return true
		}
		child, ok := v.(map[string]any)
		if !ok {
			return false
		}
		node = child
	}
	return false
}

// json5Rewrite swaps the value text on the single line declaring name.
// It reports ok=false when the name is missing, appears on several
// lines, or the value is not a one-line scalar; the caller re-encodes
// in that case.
func json5Rewrite(data []byte, name, rawValue string) ([]byte, bool) {
	lines := strings.Split(string(data), "\n")
	match := -1
	for i, line := range lines {
		if !json5KeyOnLine(line, name) {
			continue
		}
		if match >= 0 {
			return nil, false
		}
		match = i
	}
	if match < 0 {
		return nil, false
	}

	line := lines[match]
	idx := strings.Index(line, ":")
	if idx < 0 {
		return nil, false
	}
	head := line[:idx+1]
	rest := line[idx+1:]
	trimmed := strings.TrimLeft(rest, " \t")
	pad := rest[:len(rest)-len(trimmed)]
	suffix, ok := afterValueToken(trimmed)
	if !ok {
		return nil, false
	}
	lines[match] = head + pad + json5Text(rawValue) + suffix
	return []byte(strings.Join(lines, "\n")), true
}

// json5KeyOnLine reports whether the line opens with name as a key, in
// bare, double-quoted or single-quoted form.
func json5KeyOnLine(line, name string) bool {
	trimmed := strings.TrimSpace(line)
	for _, form := range []string{name + ":", `"` + name + `":`, "'" + name + "':"} {
		if strings.HasPrefix(trimmed, form) {
			return true
		}
	}
	return false
}

// afterValueToken locates the end of a one-line scalar value and returns
// the text after it (trailing comma, spaces, line comment).
func afterValueToken(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	switch s[0] {
	case '[', '{':
		return "", false
	case '"', '\'':
		quote := s[0]
		for i := 1; i < len(s); i++ {
			if s[i] == '\\' {
				i++
				continue
			}
			if s[i] == quote {
				return s[i+1:], true
			}
		}
		return "", false
	default:
		end := len(s)
		if i := strings.Index(s, ","); i >= 0 {
			end = i
		}
		if i := strings.Index(s, "//"); i >= 0 && i < end {
			end = i
		}
		value := strings.TrimRight(s[:end], " \t")
		if value == "" {
			return "", false
		}
		return s[len(value):], true
	}
}

// json5Text renders a raw string as JSON5 value text.
func json5Text(raw string) string {
	switch v := json5Value(raw).(type) {
	case string:
		data, err := json.Marshal(v)
		if err != nil {
			return strconv.Quote(v)
		}
		return string(data)
	case nil:
		return "null"
	default:
		return raw
	}
}

// json5Value converts a raw string back into the scalar it encodes, so a
// toggle edit writes `true`, not `"true"`.
func json5Value(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if strings.HasPrefix(raw, "[") || strings.HasPrefix(raw, "{") {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return v
		}
	}
	return raw
}
