// Package discovery enumerates candidate image files under the configured
// roots, applying depth, exclusion, and format rules before anything is
// hashed.
package discovery

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/imgdedup/imgdedup/internal/config"
	"github.com/imgdedup/imgdedup/internal/types"
)

// File is one discovered candidate.
type File struct {
	Identity types.FileIdentity
	Format   types.ImageFormat
}

// Walker traverses the configured roots.
type Walker struct {
	cfg *config.Config
}

func NewWalker(cfg *config.Config) *Walker {
	return &Walker{cfg: cfg}
}

// Walk calls emit for every candidate file under every root, in traversal
// order. Hidden entries and excluded directories are skipped, symlinks are
// never followed, and files of unrecognized formats are included only when
// unsupported-format processing is enabled. An error from emit stops the
// walk.
func (w *Walker) Walk(ctx context.Context, emit func(File) error) error {
	for _, root := range w.cfg.Roots {
		if err := w.walkRoot(ctx, root, emit); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) walkRoot(ctx context.Context, root string, emit func(File) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to walk %s: %w", path, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if w.excluded(path) {
				return filepath.SkipDir
			}
			if w.cfg.MaxDepth > 0 && w.depth(root, path) >= w.cfg.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") || !d.Type().IsRegular() {
			return nil
		}

		format := types.FormatFromPath(path)
		if format == types.FormatOther && !w.cfg.ProcessUnsupported {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		inode, device := fileID(info)

		return emit(File{
			Identity: types.FileIdentity{
				Path:    path,
				Size:    info.Size(),
				ModTime: info.ModTime(),
				Inode:   inode,
				Device:  device,
			},
			Format: format,
		})
	})
}

func (w *Walker) excluded(path string) bool {
	for _, dir := range w.cfg.ExcludedDirs {
		if path == dir {
			return true
		}
	}
	return false
}

// depth counts directory levels below the root.
func (w *Walker) depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}
