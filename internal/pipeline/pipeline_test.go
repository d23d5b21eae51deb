package pipeline

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imgdedup/imgdedup/internal/action"
	"github.com/imgdedup/imgdedup/internal/config"
	"github.com/imgdedup/imgdedup/internal/store"
	"github.com/imgdedup/imgdedup/internal/types"
)

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Roots = []string{filepath.Join(dir, "photos")}
	cfg.DuplicatesDir = filepath.Join(dir, "duplicates")
	cfg.DatabasePath = ":memory:"
	cfg.AuditPath = filepath.Join(dir, "audit.jsonl")
	cfg.Threads = 2
	require.NoError(t, os.MkdirAll(cfg.Roots[0], 0o755))
	return &cfg, cfg.Roots[0]
}

func testRunner(t *testing.T, cfg *config.Config) (*Runner, store.Store) {
	t.Helper()
	st, err := store.New(context.Background(), store.Config{Path: cfg.DatabasePath})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	r, err := New(cfg, st, nil)
	require.NoError(t, err)
	return r, st
}

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(255 * x / w)
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func checkerboard(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(0)
			if (x/8+y/8)%2 == 0 {
				v = 255
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func writeImage(t *testing.T, path string, img image.Image) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func copyBytes(t *testing.T, src, dest string) {
	t.Helper()
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dest, data, 0o644))
}

func TestScanHashesAndCaches(t *testing.T) {
	cfg, root := testConfig(t)
	writeImage(t, filepath.Join(root, "a.png"), gradient(64, 64))
	writeImage(t, filepath.Join(root, "b.png"), checkerboard(64, 64))

	r, _ := testRunner(t, cfg)
	first, err := r.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Found)
	assert.Equal(t, 2, first.Hashed)
	assert.Equal(t, 0, first.Cached)

	second, err := r.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, second.Cached)
	assert.Equal(t, 0, second.Hashed)
}

func TestScanIsolatesCorruptFiles(t *testing.T) {
	cfg, root := testConfig(t)
	writeImage(t, filepath.Join(root, "ok.png"), gradient(64, 64))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.png"), []byte("junk"), 0o644))

	r, _ := testRunner(t, cfg)
	result, err := r.Scan(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Records, 1)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, filepath.Join(root, "bad.png"), result.Failures[0].Path)
}

func TestPlanGroupsExactCopies(t *testing.T) {
	cfg, root := testConfig(t)
	orig := filepath.Join(root, "a.png")
	writeImage(t, orig, gradient(64, 64))
	copyBytes(t, orig, filepath.Join(root, "b.png"))
	writeImage(t, filepath.Join(root, "other.png"), checkerboard(64, 64))

	r, _ := testRunner(t, cfg)
	plan, err := r.Plan(context.Background())
	require.NoError(t, err)

	require.Len(t, plan.Groups, 1)
	assert.Equal(t, []string{orig, filepath.Join(root, "b.png")}, plan.Groups[0].Paths())
	require.Len(t, plan.Decisions, 1)
	// Identical files fall through to the path tiebreak.
	assert.Equal(t, orig, plan.Decisions[0].Keeper.Identity.Path)
	assert.Equal(t, 1, plan.Duplicates())
}

func TestPlanGroupsResizedCopyAndKeepsLarger(t *testing.T) {
	cfg, root := testConfig(t)
	big := gradient(400, 300)
	writeImage(t, filepath.Join(root, "big.png"), big)
	writeImage(t, filepath.Join(root, "small.png"), imaging.Resize(big, 200, 150, imaging.Lanczos))

	r, _ := testRunner(t, cfg)
	plan, err := r.Plan(context.Background())
	require.NoError(t, err)

	require.Len(t, plan.Decisions, 1)
	assert.Equal(t, filepath.Join(root, "big.png"), plan.Decisions[0].Keeper.Identity.Path)
	require.Len(t, plan.Decisions[0].Actions, 1)
	assert.Equal(t, filepath.Join(root, "small.png"), plan.Decisions[0].Actions[0].Target.Identity.Path)
}

func TestPlanLeavesDistinctImagesAlone(t *testing.T) {
	cfg, root := testConfig(t)
	writeImage(t, filepath.Join(root, "a.png"), gradient(64, 64))
	writeImage(t, filepath.Join(root, "b.png"), checkerboard(64, 64))

	r, _ := testRunner(t, cfg)
	plan, err := r.Plan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plan.Groups)
	assert.Empty(t, plan.Decisions)
}

func TestApplyDryRunTouchesNothing(t *testing.T) {
	cfg, root := testConfig(t)
	orig := filepath.Join(root, "a.png")
	dup := filepath.Join(root, "b.png")
	writeImage(t, orig, gradient(64, 64))
	copyBytes(t, orig, dup)

	r, st := testRunner(t, cfg)
	audit, err := action.OpenAudit(cfg.AuditPath)
	require.NoError(t, err)
	defer audit.Close()

	result, err := r.Apply(context.Background(), action.NewManager(cfg, st, audit))
	require.NoError(t, err)

	require.Len(t, result.Batch.Records, 1)
	assert.Equal(t, types.StateStaged, result.Batch.Records[0].State)
	assert.FileExists(t, dup)
	assert.NoFileExists(t, result.Batch.Records[0].DestPath)
}

func TestApplyMovesDuplicate(t *testing.T) {
	cfg, root := testConfig(t)
	cfg.DryRun = false
	orig := filepath.Join(root, "a.png")
	dup := filepath.Join(root, "b.png")
	writeImage(t, orig, gradient(64, 64))
	copyBytes(t, orig, dup)

	r, st := testRunner(t, cfg)
	audit, err := action.OpenAudit(cfg.AuditPath)
	require.NoError(t, err)
	defer audit.Close()

	result, err := r.Apply(context.Background(), action.NewManager(cfg, st, audit))
	require.NoError(t, err)

	require.Len(t, result.Batch.Records, 1)
	assert.Equal(t, types.StateCommitted, result.Batch.Records[0].State)
	assert.FileExists(t, orig)
	assert.NoFileExists(t, dup)
	assert.FileExists(t, filepath.Join(cfg.DuplicatesDir, "b.png"))
}

func TestApplyDryRunIsRepeatable(t *testing.T) {
	cfg, root := testConfig(t)
	orig := filepath.Join(root, "a.png")
	writeImage(t, orig, gradient(64, 64))
	copyBytes(t, orig, filepath.Join(root, "b.png"))

	r, st := testRunner(t, cfg)
	audit, err := action.OpenAudit(cfg.AuditPath)
	require.NoError(t, err)
	defer audit.Close()
	mgr := action.NewManager(cfg, st, audit)

	first, err := r.Apply(context.Background(), mgr)
	require.NoError(t, err)
	second, err := r.Apply(context.Background(), mgr)
	require.NoError(t, err)

	assert.Equal(t, first.Plan.Duplicates(), second.Plan.Duplicates())
	assert.Equal(t, first.Batch.Records[0].Target, second.Batch.Records[0].Target)
}
