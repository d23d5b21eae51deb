// Package hashgen produces and caches fingerprint records for image files.
// Every file gets an exact content hash; files in decodable formats also get
// a perceptual fingerprint, pixel dimensions, and a capture timestamp when
// EXIF metadata carries one.
package hashgen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/imgdedup/imgdedup/internal/config"
	"github.com/imgdedup/imgdedup/internal/decoder"
	"github.com/imgdedup/imgdedup/internal/store"
	"github.com/imgdedup/imgdedup/internal/types"
)

// Generator turns files into fingerprint records, consulting the index so
// unchanged files are never re-read.
type Generator struct {
	store       store.Store
	dec         decoder.Decoder
	forceRescan bool
}

// New returns a Generator backed by the given index and decoder.
func New(st store.Store, dec decoder.Decoder, cfg *config.Config) *Generator {
	return &Generator{
		store:       st,
		dec:         dec,
		forceRescan: cfg.ForceRescan,
	}
}

// Record returns the fingerprint record for the file at identity. When the
// index already holds a record whose size, modification time, and filesystem
// identity all match, that record is returned without touching the file
// contents, unless force rescan is in effect. The cached boolean reports
// whether the record came from the index.
//
// A read or decode failure is returned as a *types.DecodeError so callers
// can isolate the file without aborting the run; files vanish and lose read
// permission between enumeration and hashing. Index read and write failures
// are returned as-is and should be treated as fatal.
func (g *Generator) Record(ctx context.Context, id types.FileIdentity, format types.ImageFormat) (*types.FingerprintRecord, bool, error) {
	if err := id.Validate(); err != nil {
		return nil, false, err
	}

	if !g.forceRescan {
		stored, err := g.store.Lookup(ctx, id.Path)
		switch {
		case err == nil && stored.Identity.Matches(id):
			return stored, true, nil
		case err != nil && !errors.Is(err, types.ErrNotFound):
			return nil, false, fmt.Errorf("failed to look up %s: %w", id.Path, err)
		}
	}

	rec, err := g.generate(ctx, id, format)
	if err != nil {
		return nil, false, err
	}
	if err := g.store.Upsert(ctx, rec); err != nil {
		return nil, false, fmt.Errorf("failed to index %s: %w", id.Path, err)
	}
	return rec, false, nil
}

func (g *Generator) generate(ctx context.Context, id types.FileIdentity, format types.ImageFormat) (*types.FingerprintRecord, error) {
	sum, err := HashFile(id.Path)
	if err != nil {
		// The file went away or became unreadable after enumeration.
		// That is a per-file failure, same as a corrupt image.
		return nil, &types.DecodeError{Path: id.Path, Err: err}
	}

	rec := &types.FingerprintRecord{
		Identity: id,
		Format:   format,
		SHA256:   sum,
	}
	if !format.Decodable() {
		return rec, nil
	}

	img, err := g.dec.Decode(ctx, id.Path, format)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	rec.PHash = Fingerprint(img)
	rec.HasPHash = true
	rec.Width = bounds.Dx()
	rec.Height = bounds.Dy()
	rec.TakenAt = decoder.CaptureTime(id.Path)
	return rec, nil
}

// HashFile streams the file contents through SHA-256 and returns the digest
// as a lowercase hex string.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
