// Package group partitions fingerprint records into duplicate groups.
// Groups are the connected components of the similarity edge set: a member
// belongs to a group if it is reachable from any other member through
// accepted edges, not only if it is pairwise-near every other member.
package group

import (
	"sort"

	"github.com/imgdedup/imgdedup/internal/types"
)

// Provisional partitions records over every edge that has not been pixel
// rejected. The result tells the verifier which edges actually matter:
// unverified edges outside any multi-member component never need a pixel
// check.
func Provisional(records []*types.FingerprintRecord, edges []types.SimilarityEdge) []*types.DuplicateGroup {
	return partition(records, edges, func(e types.SimilarityEdge) bool {
		return e.Verification != types.PixelRejected
	})
}

// Confirmed partitions records over pixel-confirmed edges only. Rejected
// edges are dropped entirely, which can split a provisional component into
// several final groups or dissolve it.
func Confirmed(records []*types.FingerprintRecord, edges []types.SimilarityEdge) []*types.DuplicateGroup {
	return partition(records, edges, func(e types.SimilarityEdge) bool {
		return e.Verification == types.PixelConfirmed
	})
}

func partition(records []*types.FingerprintRecord, edges []types.SimilarityEdge, accept func(types.SimilarityEdge) bool) []*types.DuplicateGroup {
	byPath := make(map[string]*types.FingerprintRecord, len(records))
	uf := newUnionFind()
	for _, r := range records {
		byPath[r.Identity.Path] = r
		uf.add(r.Identity.Path)
	}

	var kept []types.SimilarityEdge
	for _, e := range edges {
		if !accept(e) {
			continue
		}
		// Edges may reference files dropped earlier in the run.
		if byPath[e.A.Path] == nil || byPath[e.B.Path] == nil {
			continue
		}
		kept = append(kept, e)
		uf.union(e.A.Path, e.B.Path)
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].A.Path != kept[j].A.Path {
			return kept[i].A.Path < kept[j].A.Path
		}
		return kept[i].B.Path < kept[j].B.Path
	})

	components := make(map[string][]*types.FingerprintRecord)
	for _, r := range records {
		root := uf.find(r.Identity.Path)
		components[root] = append(components[root], r)
	}

	var groups []*types.DuplicateGroup
	for root, members := range components {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			return members[i].Identity.Path < members[j].Identity.Path
		})
		g := &types.DuplicateGroup{Members: members}
		for _, e := range kept {
			if uf.find(e.A.Path) == root {
				g.Edges = append(g.Edges, e)
			}
		}
		groups = append(groups, g)
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Members[0].Identity.Path < groups[j].Members[0].Identity.Path
	})
	return groups
}

// unionFind is a path-keyed disjoint set with union by size and path
// compression.
type unionFind struct {
	parent map[string]string
	size   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string), size: make(map[string]int)}
}

func (u *unionFind) add(p string) {
	if _, ok := u.parent[p]; !ok {
		u.parent[p] = p
		u.size[p] = 1
	}
}

func (u *unionFind) find(p string) string {
	for u.parent[p] != p {
		u.parent[p] = u.parent[u.parent[p]]
		p = u.parent[p]
	}
	return p
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}
