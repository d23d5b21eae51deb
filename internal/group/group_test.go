package group

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imgdedup/imgdedup/internal/types"
)

func rec(path string) *types.FingerprintRecord {
	return &types.FingerprintRecord{
		Identity: types.FileIdentity{Path: path, Size: 1},
		Format:   types.FormatJPEG,
		SHA256:   "sum-" + path,
	}
}

func edge(a, b string, v types.VerificationState) types.SimilarityEdge {
	return types.NewSimilarityEdge(
		types.FileIdentity{Path: a, Size: 1},
		types.FileIdentity{Path: b, Size: 1},
		1, v)
}

func TestConfirmedTransitiveReachability(t *testing.T) {
	records := []*types.FingerprintRecord{rec("/a"), rec("/b"), rec("/c"), rec("/d")}
	edges := []types.SimilarityEdge{
		edge("/a", "/b", types.PixelConfirmed),
		edge("/b", "/c", types.PixelConfirmed),
	}

	groups := Confirmed(records, edges)
	require.Len(t, groups, 1)
	// /c joins through /b even though /a and /c never compared directly.
	assert.Equal(t, []string{"/a", "/b", "/c"}, groups[0].Paths())
	assert.Len(t, groups[0].Edges, 2)
}

func TestConfirmedSingletonsDropped(t *testing.T) {
	records := []*types.FingerprintRecord{rec("/a"), rec("/b")}
	assert.Empty(t, Confirmed(records, nil))
}

func TestRejectedEdgeSplitsComponent(t *testing.T) {
	records := []*types.FingerprintRecord{rec("/a"), rec("/b"), rec("/c"), rec("/d")}
	edges := []types.SimilarityEdge{
		edge("/a", "/b", types.PixelConfirmed),
		edge("/b", "/c", types.PixelRejected),
		edge("/c", "/d", types.PixelConfirmed),
	}

	groups := Confirmed(records, edges)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"/a", "/b"}, groups[0].Paths())
	assert.Equal(t, []string{"/c", "/d"}, groups[1].Paths())
}

func TestRejectedOnlyComponentDissolves(t *testing.T) {
	records := []*types.FingerprintRecord{rec("/a"), rec("/b")}
	edges := []types.SimilarityEdge{edge("/a", "/b", types.PixelRejected)}

	assert.Len(t, Provisional(records, edges), 0)
	assert.Empty(t, Confirmed(records, edges))
}

func TestProvisionalIncludesUnverified(t *testing.T) {
	records := []*types.FingerprintRecord{rec("/a"), rec("/b"), rec("/c")}
	edges := []types.SimilarityEdge{
		edge("/a", "/b", types.Unverified),
		edge("/b", "/c", types.PixelConfirmed),
	}

	groups := Provisional(records, edges)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"/a", "/b", "/c"}, groups[0].Paths())

	// Until the unverified edge is settled it must not count as final.
	confirmed := Confirmed(records, edges)
	require.Len(t, confirmed, 1)
	assert.Equal(t, []string{"/b", "/c"}, confirmed[0].Paths())
}

func TestEdgeToUnknownRecordIgnored(t *testing.T) {
	records := []*types.FingerprintRecord{rec("/a"), rec("/b")}
	edges := []types.SimilarityEdge{
		edge("/a", "/gone", types.PixelConfirmed),
		edge("/a", "/b", types.PixelConfirmed),
	}

	groups := Confirmed(records, edges)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"/a", "/b"}, groups[0].Paths())
}

func TestPartitionOrderIndependent(t *testing.T) {
	records := []*types.FingerprintRecord{
		rec("/a"), rec("/b"), rec("/c"), rec("/d"), rec("/e"), rec("/f"),
	}
	edges := []types.SimilarityEdge{
		edge("/a", "/b", types.PixelConfirmed),
		edge("/c", "/d", types.PixelConfirmed),
		edge("/d", "/e", types.PixelConfirmed),
	}

	want := Confirmed(records, edges)
	require.Len(t, want, 2)

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 10; i++ {
		rs := make([]*types.FingerprintRecord, len(records))
		copy(rs, records)
		es := make([]types.SimilarityEdge, len(edges))
		copy(es, edges)
		rng.Shuffle(len(rs), func(a, b int) { rs[a], rs[b] = rs[b], rs[a] })
		rng.Shuffle(len(es), func(a, b int) { es[a], es[b] = es[b], es[a] })
		assert.Equal(t, want, Confirmed(rs, es))
	}
}
