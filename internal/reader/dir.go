package reader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DirReader reads a server's configuration from a directory tree on
// disk, routing each file to its format codec by extension. The tree is
// typically a bind mount shared with the server's container.
type DirReader struct {
	// Root resolves a server ID to its config root directory.
	Root func(serverID string) string
}

// NewDirReader creates a DirReader with servers laid out as
// <baseDir>/<serverID>.
func NewDirReader(baseDir string) *DirReader {
	return &DirReader{
		Root: func(serverID string) string {
			return filepath.Join(baseDir, serverID)
		},
	}
}

func formatFor(fileID string) string {
	switch strings.ToLower(filepath.Ext(fileID)) {
	case ".properties":
		return "properties"
	case ".json5", ".json":
		return "json5"
	default:
		return ""
	}
}

// Read walks the server's config root and flattens every recognized file
// into tuples, in lexical file order. Unrecognized files are skipped; a
// single unreadable file fails only its own entries, reported as an error
// for the whole scan so the coordinator can debounce pruning.
func (r *DirReader) Read(ctx context.Context, serverID string) ([]Tuple, error) {
	root := r.Root(serverID)
	var out []Tuple
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		fileID := filepath.ToSlash(rel)
		format := formatFor(fileID)
		if format == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", fileID, err)
		}
		tuples, err := parseFile(format, data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", fileID, err)
		}
		for i := range tuples {
			tuples[i].FileID = fileID
		}
		out = append(out, tuples...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseFile(format string, data []byte) ([]Tuple, error) {
	switch format {
	case "properties":
		return propertiesParse(data), nil
	case "json5":
		return json5Parse(data)
	default:
		return nil, ErrFileUnknown
	}
}

// Write updates a single key in the identified file, preserving unrelated
// content. The write is atomic at the file level: the new content lands
// in a temp file first and is renamed over the original.
func (r *DirReader) Write(ctx context.Context, serverID, fileID, key, rawValue string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	format := formatFor(fileID)
	if format == "" {
		return fmt.Errorf("%w: %s", ErrFileUnknown, fileID)
	}
	path := filepath.Join(r.Root(serverID), filepath.FromSlash(fileID))

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", fileID, err)
	}

	var updated []byte
	switch format {
	case "properties":
		updated, err = propertiesSet(data, key, rawValue)
	case "json5":
		updated, err = json5Set(data, key, rawValue)
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", fileID, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", fileID, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, updated, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", fileID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", fileID, err)
	}
	return nil
}
