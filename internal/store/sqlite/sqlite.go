// Package sqlite implements the fingerprint index on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/imgdedup/imgdedup/internal/store/migrations"
	"github.com/imgdedup/imgdedup/internal/types"
)

// Index implements the store.Store interface using SQLite
type Index struct {
	db *sql.DB
}

// New opens (or creates) the index at path and applies pending migrations.
// The special path ":memory:" creates a throwaway in-memory index.
func New(ctx context.Context, path string) (*Index, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// WAL keeps readers concurrent with the writer; synchronous=FULL makes
	// each committed upsert durable before the call returns.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := manager().Apply(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Index{db: db}, nil
}

// manager returns the migration set for the images schema
func manager() *migrations.Manager {
	m := migrations.NewManager()
	m.Register(migrations.Migration{
		Version:     1,
		Description: "create images table",
		Up: `
			CREATE TABLE IF NOT EXISTS images (
				path TEXT PRIMARY KEY,
				size INTEGER NOT NULL,
				mod_time INTEGER NOT NULL,
				inode INTEGER NOT NULL DEFAULT 0,
				device INTEGER NOT NULL DEFAULT 0,
				format TEXT NOT NULL,
				sha256 TEXT NOT NULL,
				phash INTEGER,
				width INTEGER NOT NULL DEFAULT 0,
				height INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_images_sha256 ON images(sha256);
			CREATE INDEX IF NOT EXISTS idx_images_phash ON images(phash);
		`,
		Down: `DROP TABLE images;`,
	})
	m.Register(migrations.Migration{
		Version:     2,
		Description: "add capture timestamp",
		Up:          `ALTER TABLE images ADD COLUMN taken_at INTEGER;`,
		Down:        `ALTER TABLE images DROP COLUMN taken_at;`,
	})
	return m
}

// Lookup retrieves the record stored for path
func (s *Index) Lookup(ctx context.Context, path string) (*types.FingerprintRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT path, size, mod_time, inode, device, format, sha256, phash, width, height, taken_at
		FROM images
		WHERE path = ?
	`, path)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", path, err)
	}
	return rec, nil
}

// Upsert stores rec, replacing any previous record for the same path. The
// write is a single statement, so a reader sees either the old record or the
// new one, never a mix.
func (s *Index) Upsert(ctx context.Context, rec *types.FingerprintRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	var phash sql.NullInt64
	if rec.HasPHash {
		phash = sql.NullInt64{Int64: int64(rec.PHash), Valid: true}
	}
	var takenAt sql.NullInt64
	if rec.TakenAt != nil {
		takenAt = sql.NullInt64{Int64: rec.TakenAt.Unix(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO images (path, size, mod_time, inode, device, format, sha256, phash, width, height, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mod_time = excluded.mod_time,
			inode = excluded.inode,
			device = excluded.device,
			format = excluded.format,
			sha256 = excluded.sha256,
			phash = excluded.phash,
			width = excluded.width,
			height = excluded.height,
			taken_at = excluded.taken_at
	`,
		rec.Identity.Path, rec.Identity.Size, rec.Identity.ModTime.UnixNano(),
		int64(rec.Identity.Inode), int64(rec.Identity.Device),
		string(rec.Format), rec.SHA256, phash, rec.Width, rec.Height, takenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", rec.Identity.Path, err)
	}
	return nil
}

// Delete removes the record for path; missing records are not an error
func (s *Index) Delete(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// IterateAll streams every record to fn in path order
func (s *Index) IterateAll(ctx context.Context, fn func(*types.FingerprintRecord) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, size, mod_time, inode, device, format, sha256, phash, width, height, taken_at
		FROM images
		ORDER BY path
	`)
	if err != nil {
		return fmt.Errorf("failed to scan index: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return fmt.Errorf("failed to scan record: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of stored records
func (s *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// SchemaVersion returns the database's recorded schema version
func (s *Index) SchemaVersion(ctx context.Context) (int, error) {
	return migrations.Current(s.db)
}

// Close closes the database connection
func (s *Index) Close() error {
	return s.db.Close()
}

// scanner covers both sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*types.FingerprintRecord, error) {
	var rec types.FingerprintRecord
	var modTime, inode, device int64
	var phash, takenAt sql.NullInt64
	var format string

	err := row.Scan(
		&rec.Identity.Path, &rec.Identity.Size, &modTime, &inode, &device,
		&format, &rec.SHA256, &phash, &rec.Width, &rec.Height, &takenAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Identity.ModTime = time.Unix(0, modTime)
	rec.Identity.Inode = uint64(inode)
	rec.Identity.Device = uint64(device)
	rec.Format = types.ImageFormat(format)
	if phash.Valid {
		rec.PHash = uint64(phash.Int64)
		rec.HasPHash = true
	}
	if takenAt.Valid {
		t := time.Unix(takenAt.Int64, 0)
		rec.TakenAt = &t
	}
	return &rec, nil
}
