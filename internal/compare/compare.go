// Package compare finds pairs of likely-duplicate files. Byte-identical
// files match on their content hash; visually similar files match when
// their perceptual fingerprints fall within a Hamming-distance threshold.
package compare

import (
	"sort"

	"github.com/imgdedup/imgdedup/internal/hashgen"
	"github.com/imgdedup/imgdedup/internal/types"
)

// bandCount splits the 64-bit fingerprint into 8-bit bands. Two
// fingerprints within Hamming distance 7 must agree on at least one band,
// so band buckets are a complete prefilter for thresholds up to 7.
const (
	bandCount = 8
	bandBits  = 64 / bandCount
)

// Engine compares fingerprint records pairwise.
type Engine struct {
	threshold int
}

// NewEngine returns an engine that accepts perceptual matches at or below
// the given Hamming distance.
func NewEngine(threshold int) *Engine {
	return &Engine{threshold: threshold}
}

// Edges returns the similarity edges among records. Byte-identical files
// produce confirmed edges at distance zero without any pixel work. Files
// whose fingerprints fall within the threshold produce unverified edges
// that a pixel check must confirm before they count toward a group.
//
// The result is deterministic for a given record set regardless of input
// order.
func (e *Engine) Edges(records []*types.FingerprintRecord) []types.SimilarityEdge {
	sorted := make([]*types.FingerprintRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Identity.Path < sorted[j].Identity.Path
	})

	var edges []types.SimilarityEdge
	edges = append(edges, e.exactEdges(sorted)...)
	edges = append(edges, e.perceptualEdges(sorted)...)

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].A.Path != edges[j].A.Path {
			return edges[i].A.Path < edges[j].A.Path
		}
		return edges[i].B.Path < edges[j].B.Path
	})
	return edges
}

// exactEdges links files with identical content hashes. Identical bytes are
// identical pixels, so these edges are born confirmed. Members of a hash
// bucket are chained rather than fully meshed; connectivity is all the
// grouping stage needs.
func (e *Engine) exactEdges(sorted []*types.FingerprintRecord) []types.SimilarityEdge {
	buckets := make(map[string][]*types.FingerprintRecord)
	for _, r := range sorted {
		buckets[r.SHA256] = append(buckets[r.SHA256], r)
	}

	var edges []types.SimilarityEdge
	for _, bucket := range buckets {
		for i := 1; i < len(bucket); i++ {
			edges = append(edges, types.NewSimilarityEdge(
				bucket[i-1].Identity, bucket[i].Identity, 0, types.PixelConfirmed))
		}
	}
	return edges
}

func (e *Engine) perceptualEdges(sorted []*types.FingerprintRecord) []types.SimilarityEdge {
	withHash := sorted[:0:0]
	for _, r := range sorted {
		if r.HasPHash {
			withHash = append(withHash, r)
		}
	}

	var pairs [][2]*types.FingerprintRecord
	if e.threshold < bandBits {
		pairs = bandCandidates(withHash)
	} else {
		pairs = allPairs(withHash)
	}

	var edges []types.SimilarityEdge
	for _, p := range pairs {
		a, b := p[0], p[1]
		if a.SHA256 == b.SHA256 {
			continue // already linked exactly
		}
		d := hashgen.Distance(a.PHash, b.PHash)
		if d > e.threshold {
			continue
		}
		edges = append(edges, types.NewSimilarityEdge(a.Identity, b.Identity, d, types.Unverified))
	}
	return edges
}

// bandCandidates buckets records by each 8-bit band of their fingerprint
// and pairs records that collide in any band. This avoids the full pairwise
// scan on large sets while missing no pair within distance bandBits-1.
func bandCandidates(records []*types.FingerprintRecord) [][2]*types.FingerprintRecord {
	seen := make(map[[2]string]bool)
	var pairs [][2]*types.FingerprintRecord

	for band := 0; band < bandCount; band++ {
		shift := uint(band * bandBits)
		buckets := make(map[uint8][]*types.FingerprintRecord)
		for _, r := range records {
			key := uint8(r.PHash >> shift)
			buckets[key] = append(buckets[key], r)
		}
		for _, bucket := range buckets {
			for i := 0; i < len(bucket); i++ {
				for j := i + 1; j < len(bucket); j++ {
					k := [2]string{bucket[i].Identity.Path, bucket[j].Identity.Path}
					if seen[k] {
						continue
					}
					seen[k] = true
					pairs = append(pairs, [2]*types.FingerprintRecord{bucket[i], bucket[j]})
				}
			}
		}
	}
	return pairs
}

func allPairs(records []*types.FingerprintRecord) [][2]*types.FingerprintRecord {
	var pairs [][2]*types.FingerprintRecord
	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			pairs = append(pairs, [2]*types.FingerprintRecord{records[i], records[j]})
		}
	}
	return pairs
}
