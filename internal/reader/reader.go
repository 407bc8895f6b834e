// Package reader abstracts the configuration file formats a server's mods
// produce. Every format yields a flat sequence of (file, key, raw value)
// tuples on read and accepts single-key writes that leave the rest of the
// file alone; everything downstream of that is format-agnostic.
package reader

import (
	"context"
	"errors"
)

// ErrFileUnknown is returned when a write targets a file the reader does
// not manage.
var ErrFileUnknown = errors.New("reader: unknown file")

// Tuple is one raw configuration pair sourced from a file.
type Tuple struct {
	// FileID identifies the source file relative to the server's config
	// root, e.g. "server.properties" or "config/jei.json5".
	FileID string

	Key      string
	RawValue string
}

// Reader walks a server's configuration file set.
//
// Read returns tuples in file order; Write updates a single key while
// preserving unrelated keys and, where the format allows, comments and
// layout.
type Reader interface {
	Read(ctx context.Context, serverID string) ([]Tuple, error)
	Write(ctx context.Context, serverID, fileID, key, rawValue string) error
}
