// Package store defines the persistent fingerprint index. The index maps a
// file's identity to its stored hashes and metadata so repeated scans only
// rehash files that changed.
package store

import (
	"context"

	"github.com/imgdedup/imgdedup/internal/store/sqlite"
	"github.com/imgdedup/imgdedup/internal/types"
)

// Store is the interface for fingerprint index backends.
//
// Writes are durable before Upsert returns and atomic per record: a reader
// never observes a partially written record. Reads may run concurrently with
// other reads; writes are serialized per key by the backend. Lookup reports
// types.ErrNotFound for missing records, distinct from I/O or corruption
// errors.
type Store interface {
	// Lookup returns the record stored for the given absolute path.
	Lookup(ctx context.Context, path string) (*types.FingerprintRecord, error)

	// Upsert stores a record, replacing any previous record for the same
	// identity path.
	Upsert(ctx context.Context, rec *types.FingerprintRecord) error

	// Delete removes the record for the given path. Deleting a missing
	// record is not an error.
	Delete(ctx context.Context, path string) error

	// IterateAll streams every stored record to fn in path order. The scan
	// is finite and restartable; returning an error from fn stops it.
	IterateAll(ctx context.Context, fn func(*types.FingerprintRecord) error) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// SchemaVersion returns the store's schema version.
	SchemaVersion(ctx context.Context) (int, error)

	// Close releases the underlying database.
	Close() error
}

// Config holds index configuration
type Config struct {
	// Path is the SQLite database file path.
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
}

// New opens the SQLite-backed fingerprint index, applying any pending schema
// migrations. A database written by a newer build yields a
// types.MigrationError without touching the data.
func New(ctx context.Context, cfg Config) (Store, error) {
	path := cfg.Path
	if path == "" {
		path = ".imgdedup/index.db"
	}
	return sqlite.New(ctx, path)
}
