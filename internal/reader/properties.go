package reader

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// propertiesParse extracts key=value pairs from a Java properties-style
// file (the server.properties dialect: '#' comments, no line
// continuations, '=' separator). Order follows the file.
func propertiesParse(data []byte) []Tuple {
	var out []Tuple
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "!") {
			continue
		}
		idx := strings.Index(trimmed, "=")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(trimmed[:idx])
		value := strings.TrimSpace(trimmed[idx+1:])
		if key == "" {
			continue
		}
		out = append(out, Tuple{Key: key, RawValue: value})
	}
	return out
}

// propertiesSet rewrites a single key's value in place, preserving
// comments, blank lines and the order of every other line. A key not yet
// present is appended at the end of the file.
func propertiesSet(data []byte, key, rawValue string) ([]byte, error) {
	if strings.ContainsAny(key, "=\n") {
		return nil, fmt.Errorf("properties: invalid key %q", key)
	}
	if strings.Contains(rawValue, "\n") {
		return nil, fmt.Errorf("properties: value for %s must be a single line", key)
	}

	var buf bytes.Buffer
	replaced := false
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if !replaced && trimmed != "" && !strings.HasPrefix(trimmed, "#") && !strings.HasPrefix(trimmed, "!") {
			if idx := strings.Index(trimmed, "="); idx >= 0 {
				if strings.TrimSpace(trimmed[:idx]) == key {
					buf.WriteString(key + "=" + rawValue + "\n")
					replaced = true
					continue
				}
			}
		}
		buf.WriteString(line + "\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("properties: %w", err)
	}
	if !replaced {
		buf.WriteString(key + "=" + rawValue + "\n")
	}
	return buf.Bytes(), nil
}
