package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imgdedup/imgdedup/internal/types"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func testRecord(path string) *types.FingerprintRecord {
	return &types.FingerprintRecord{
		Identity: types.FileIdentity{
			Path:    path,
			Size:    1234,
			ModTime: time.Unix(0, 1700000000123456789),
			Inode:   42,
			Device:  7,
		},
		Format:   types.FormatJPEG,
		SHA256:   "0beec7b5ea3f0fdbc95d0dd47f3c5bc275da8a33",
		PHash:    0xdeadbeefcafef00d,
		HasPHash: true,
		Width:    2624,
		Height:   3636,
	}
}

func TestLookupMissing(t *testing.T) {
	idx := openTestIndex(t)

	_, err := idx.Lookup(context.Background(), "/nope.jpg")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestUpsertLookupRoundTrip(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	rec := testRecord("/photos/a.jpg")
	taken := time.Date(2020, 5, 17, 10, 0, 0, 0, time.UTC)
	rec.TakenAt = &taken

	require.NoError(t, idx.Upsert(ctx, rec))

	got, err := idx.Lookup(ctx, "/photos/a.jpg")
	require.NoError(t, err)

	assert.True(t, got.Identity.Matches(rec.Identity))
	assert.Equal(t, rec.SHA256, got.SHA256)
	assert.Equal(t, rec.PHash, got.PHash)
	assert.True(t, got.HasPHash)
	assert.Equal(t, rec.Width, got.Width)
	assert.Equal(t, rec.Height, got.Height)
	require.NotNil(t, got.TakenAt)
	assert.True(t, got.TakenAt.Equal(taken))
}

func TestUpsertReplacesRecord(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	rec := testRecord("/photos/a.jpg")
	require.NoError(t, idx.Upsert(ctx, rec))

	updated := testRecord("/photos/a.jpg")
	updated.SHA256 = "different"
	updated.PHash = 0
	updated.HasPHash = false
	require.NoError(t, idx.Upsert(ctx, updated))

	got, err := idx.Lookup(ctx, "/photos/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "different", got.SHA256)
	assert.False(t, got.HasPHash, "phash must be fully replaced, not merged")

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertRejectsInvalidRecord(t *testing.T) {
	idx := openTestIndex(t)

	rec := testRecord("/photos/a.jpg")
	rec.SHA256 = ""
	assert.Error(t, idx.Upsert(context.Background(), rec))
}

func TestDelete(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, testRecord("/photos/a.jpg")))
	require.NoError(t, idx.Delete(ctx, "/photos/a.jpg"))

	_, err := idx.Lookup(ctx, "/photos/a.jpg")
	assert.True(t, errors.Is(err, types.ErrNotFound))

	// Deleting a missing record is fine.
	require.NoError(t, idx.Delete(ctx, "/photos/a.jpg"))
}

func TestIterateAll(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := testRecord(fmt.Sprintf("/photos/%03d.jpg", i))
		require.NoError(t, idx.Upsert(ctx, rec))
	}

	var paths []string
	err := idx.IterateAll(ctx, func(rec *types.FingerprintRecord) error {
		paths = append(paths, rec.Identity.Path)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/photos/000.jpg", "/photos/001.jpg", "/photos/002.jpg",
		"/photos/003.jpg", "/photos/004.jpg",
	}, paths)

	// The scan is restartable.
	count := 0
	err = idx.IterateAll(ctx, func(*types.FingerprintRecord) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestIterateAllStopsOnCallbackError(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, idx.Upsert(ctx, testRecord(fmt.Sprintf("/photos/%d.jpg", i))))
	}

	boom := errors.New("boom")
	count := 0
	err := idx.IterateAll(ctx, func(*types.FingerprintRecord) error {
		count++
		return boom
	})
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 1, count)
}

func TestSchemaVersion(t *testing.T) {
	idx := openTestIndex(t)

	v, err := idx.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, manager().Latest(), v)
}

func TestOpenNewerSchemaReportsMigrationRequired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	idx, err := New(ctx, path)
	require.NoError(t, err)

	// Simulate a database written by a future build.
	_, err = idx.db.Exec(
		"INSERT INTO schema_version (version, description) VALUES (?, ?)",
		9999, "from the future",
	)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = New(ctx, path)
	require.Error(t, err)

	var migErr *types.MigrationError
	require.True(t, errors.As(err, &migErr))
	assert.Equal(t, 9999, migErr.Stored)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	idx, err := New(ctx, path)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, testRecord("/photos/a.jpg")))
	require.NoError(t, idx.Close())

	idx, err = New(ctx, path)
	require.NoError(t, err)
	defer idx.Close()

	got, err := idx.Lookup(ctx, "/photos/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "/photos/a.jpg", got.Identity.Path)
}

func TestPHashHighBitRoundTrip(t *testing.T) {
	// A fingerprint with the top bit set must survive the int64 column.
	idx := openTestIndex(t)
	ctx := context.Background()

	rec := testRecord("/photos/a.jpg")
	rec.PHash = 0xffffffffffffffff
	require.NoError(t, idx.Upsert(ctx, rec))

	got, err := idx.Lookup(ctx, "/photos/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, uint64(0xffffffffffffffff), got.PHash)
}
