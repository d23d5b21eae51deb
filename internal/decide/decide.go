// Package decide selects the keeper for each duplicate group and plans the
// disposition of everything else. Selection runs an ordered chain of rules;
// each rule either picks a preference between two candidates or passes to
// the next. The final tiebreak is the lexicographically smallest path, so a
// given group always yields the same keeper no matter how it was assembled.
package decide

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/imgdedup/imgdedup/internal/config"
	"github.com/imgdedup/imgdedup/internal/types"
)

// Rule compares two candidate keepers. A negative result prefers a, a
// positive result prefers b, and zero defers to the next rule in the chain.
type Rule interface {
	Name() string
	Compare(a, b *types.FingerprintRecord) int
}

// Chain is an ordered rule list with a deterministic path tiebreak.
type Chain struct {
	rules []Rule
}

// NewChain builds the rule chain named by cfg.Prioritization.
func NewChain(cfg *config.Config) (*Chain, error) {
	var rules []Rule
	for _, name := range cfg.Prioritization {
		rule, err := ruleByName(name, cfg)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return &Chain{rules: rules}, nil
}

func ruleByName(name string, cfg *config.Config) (Rule, error) {
	switch name {
	case "highest-resolution":
		return highestResolution{}, nil
	case "largest-file-size":
		return largestFileSize{}, nil
	case "smallest-file-size":
		return smallestFileSize{}, nil
	case "oldest-creation-date":
		return oldestCreationDate{}, nil
	case "preferred-format":
		return newPreferredFormat(cfg.PreferredFormats), nil
	case "preferred-directory":
		return preferredDirectory{dirs: cfg.PreferredDirs}, nil
	}
	return nil, fmt.Errorf("unknown prioritization rule: %s", name)
}

// Keeper returns the group member the chain prefers. The rules induce a
// total order because the path tiebreak never returns zero for distinct
// members, so the result is independent of member order.
func (c *Chain) Keeper(members []*types.FingerprintRecord) *types.FingerprintRecord {
	best := members[0]
	for _, m := range members[1:] {
		if c.compare(m, best) < 0 {
			best = m
		}
	}
	return best
}

func (c *Chain) compare(a, b *types.FingerprintRecord) int {
	for _, rule := range c.rules {
		if d := rule.Compare(a, b); d != 0 {
			return d
		}
	}
	return strings.Compare(a.Identity.Path, b.Identity.Path)
}

// Decide plans one action per non-keeper member of the group.
func (c *Chain) Decide(g *types.DuplicateGroup, kind types.ActionKind) *types.Decision {
	keeper := c.Keeper(g.Members)
	d := &types.Decision{Group: g, Keeper: keeper}
	for _, m := range g.Members {
		if m == keeper {
			continue
		}
		d.Actions = append(d.Actions, types.PlannedAction{Target: m, Kind: kind})
	}
	return d
}

type highestResolution struct{}

func (highestResolution) Name() string { return "highest-resolution" }

func (highestResolution) Compare(a, b *types.FingerprintRecord) int {
	return cmpInt64(b.Resolution(), a.Resolution())
}

type largestFileSize struct{}

func (largestFileSize) Name() string { return "largest-file-size" }

func (largestFileSize) Compare(a, b *types.FingerprintRecord) int {
	return cmpInt64(b.Identity.Size, a.Identity.Size)
}

type smallestFileSize struct{}

func (smallestFileSize) Name() string { return "smallest-file-size" }

func (smallestFileSize) Compare(a, b *types.FingerprintRecord) int {
	return cmpInt64(a.Identity.Size, b.Identity.Size)
}

type oldestCreationDate struct{}

func (oldestCreationDate) Name() string { return "oldest-creation-date" }

func (oldestCreationDate) Compare(a, b *types.FingerprintRecord) int {
	at, bt := a.CreationTime(), b.CreationTime()
	switch {
	case at.Before(bt):
		return -1
	case bt.Before(at):
		return 1
	}
	return 0
}

// preferredFormat ranks members by position in the configured format list.
// Unlisted formats rank below every listed one and tie with each other.
type preferredFormat struct {
	rank map[types.ImageFormat]int
}

func newPreferredFormat(formats []string) preferredFormat {
	rank := make(map[types.ImageFormat]int, len(formats))
	for i, f := range formats {
		rank[types.ImageFormat(strings.ToLower(f))] = i
	}
	return preferredFormat{rank: rank}
}

func (preferredFormat) Name() string { return "preferred-format" }

func (r preferredFormat) Compare(a, b *types.FingerprintRecord) int {
	return cmpInt64(int64(r.rankOf(a.Format)), int64(r.rankOf(b.Format)))
}

func (r preferredFormat) rankOf(f types.ImageFormat) int {
	if i, ok := r.rank[f]; ok {
		return i
	}
	return len(r.rank)
}

// preferredDirectory favors members under an earlier-listed directory.
type preferredDirectory struct {
	dirs []string
}

func (preferredDirectory) Name() string { return "preferred-directory" }

func (r preferredDirectory) Compare(a, b *types.FingerprintRecord) int {
	return cmpInt64(int64(r.rankOf(a.Identity.Path)), int64(r.rankOf(b.Identity.Path)))
}

func (r preferredDirectory) rankOf(path string) int {
	for i, dir := range r.dirs {
		if underDir(path, dir) {
			return i
		}
	}
	return len(r.dirs)
}

func underDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
