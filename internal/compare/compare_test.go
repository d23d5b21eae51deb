package compare

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imgdedup/imgdedup/internal/hashgen"
	"github.com/imgdedup/imgdedup/internal/types"
)

func rec(path, sha string, phash uint64) *types.FingerprintRecord {
	return &types.FingerprintRecord{
		Identity: types.FileIdentity{Path: path, Size: 1},
		Format:   types.FormatJPEG,
		SHA256:   sha,
		PHash:    phash,
		HasPHash: true,
	}
}

func rawRec(path, sha string) *types.FingerprintRecord {
	r := rec(path, sha, 0)
	r.Format = types.FormatRAW
	r.HasPHash = false
	return r
}

func TestEdgesExactDuplicates(t *testing.T) {
	e := NewEngine(10)
	edges := e.Edges([]*types.FingerprintRecord{
		rec("/a.jpg", "samesum", 0xff),
		rec("/b.jpg", "samesum", 0xff),
	})

	require.Len(t, edges, 1)
	assert.Equal(t, "/a.jpg", edges[0].A.Path)
	assert.Equal(t, "/b.jpg", edges[0].B.Path)
	assert.Equal(t, 0, edges[0].Distance)
	assert.Equal(t, types.PixelConfirmed, edges[0].Verification)
}

func TestEdgesPerceptualMatchNeedsVerification(t *testing.T) {
	e := NewEngine(10)
	// Fingerprints four bits apart.
	edges := e.Edges([]*types.FingerprintRecord{
		rec("/a.jpg", "sum-a", 0b0111),
		rec("/b.jpg", "sum-b", 0b1000),
	})

	require.Len(t, edges, 1)
	assert.Equal(t, 4, edges[0].Distance)
	assert.Equal(t, types.Unverified, edges[0].Verification)
}

func TestEdgesBeyondThreshold(t *testing.T) {
	e := NewEngine(3)
	edges := e.Edges([]*types.FingerprintRecord{
		rec("/a.jpg", "sum-a", 0),
		rec("/b.jpg", "sum-b", 0b11111),
	})
	assert.Empty(t, edges)
}

func TestEdgesExactPairNotDoubledByPerceptual(t *testing.T) {
	e := NewEngine(10)
	edges := e.Edges([]*types.FingerprintRecord{
		rec("/a.jpg", "samesum", 42),
		rec("/b.jpg", "samesum", 42),
	})

	require.Len(t, edges, 1)
	assert.Equal(t, types.PixelConfirmed, edges[0].Verification)
}

func TestEdgesRawFilesMatchExactOnly(t *testing.T) {
	e := NewEngine(10)
	edges := e.Edges([]*types.FingerprintRecord{
		rawRec("/a.cr2", "samesum"),
		rawRec("/b.cr2", "samesum"),
		rawRec("/c.cr2", "othersum"),
	})

	require.Len(t, edges, 1)
	assert.Equal(t, 0, edges[0].Distance)
}

func TestEdgesOrderIndependent(t *testing.T) {
	records := []*types.FingerprintRecord{
		rec("/a.jpg", "sum-a", 0x00ff),
		rec("/b.jpg", "sum-b", 0x00fe),
		rec("/c.jpg", "sum-c", 0xff00),
		rec("/d.jpg", "samesum", 0x1234),
		rec("/e.jpg", "samesum", 0x1234),
	}
	e := NewEngine(5)
	want := e.Edges(records)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := make([]*types.FingerprintRecord, len(records))
		copy(shuffled, records)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		assert.Equal(t, want, e.Edges(shuffled))
	}
}

// The band prefilter must find every pair the exhaustive scan finds when
// the threshold is below the band width.
func TestBandPrefilterMatchesExhaustiveScan(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	records := make([]*types.FingerprintRecord, 0, 60)
	for i := 0; i < 30; i++ {
		base := rng.Uint64()
		records = append(records,
			rec(pathN("base", i), shaN("base", i), base),
			// A near neighbor within a few flipped bits.
			rec(pathN("near", i), shaN("near", i), base^(1<<(rng.Intn(64)))))
	}

	const threshold = 5
	banded := NewEngine(threshold).Edges(records)

	// A threshold at or above the band width forces the exhaustive scan.
	var exhaustive []types.SimilarityEdge
	for _, edge := range NewEngine(bandBits).Edges(records) {
		if edge.Distance <= threshold {
			exhaustive = append(exhaustive, edge)
		}
	}
	assert.Equal(t, exhaustive, banded)
}

func pathN(prefix string, i int) string {
	return "/" + prefix + "-" + string(rune('a'+i/10)) + string(rune('a'+i%10)) + ".jpg"
}

func shaN(prefix string, i int) string {
	return prefix + "-" + pathN(prefix, i)
}

func TestDistanceSymmetry(t *testing.T) {
	assert.Equal(t, hashgen.Distance(5, 9), hashgen.Distance(9, 5))
}
