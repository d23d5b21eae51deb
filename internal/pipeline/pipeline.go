// Package pipeline wires the full deduplication flow: discover files, hash
// them against the index, find similar pairs, verify borderline pairs at
// the pixel level, group, pick keepers, and execute dispositions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/imgdedup/imgdedup/internal/action"
	"github.com/imgdedup/imgdedup/internal/compare"
	"github.com/imgdedup/imgdedup/internal/config"
	"github.com/imgdedup/imgdedup/internal/decide"
	"github.com/imgdedup/imgdedup/internal/decoder"
	"github.com/imgdedup/imgdedup/internal/discovery"
	"github.com/imgdedup/imgdedup/internal/group"
	"github.com/imgdedup/imgdedup/internal/hashgen"
	"github.com/imgdedup/imgdedup/internal/store"
	"github.com/imgdedup/imgdedup/internal/types"
)

// Runner executes pipeline stages against one index.
type Runner struct {
	cfg      *config.Config
	st       store.Store
	gen      *hashgen.Generator
	engine   *compare.Engine
	verifier *compare.PixelVerifier
	chain    *decide.Chain

	out      io.Writer
	progress *rate.Limiter
}

// New builds a runner. The store stays owned by the caller.
func New(cfg *config.Config, st store.Store, out io.Writer) (*Runner, error) {
	chain, err := decide.NewChain(cfg)
	if err != nil {
		return nil, err
	}
	dec := decoder.New()
	return &Runner{
		cfg:      cfg,
		st:       st,
		gen:      hashgen.New(st, dec, cfg),
		engine:   compare.NewEngine(cfg.PHashThreshold),
		verifier: compare.NewVerifier(dec, cfg),
		chain:    chain,
		out:      out,
		progress: rate.NewLimiter(rate.Limit(2), 1),
	}, nil
}

// ScanResult summarizes one fingerprinting pass.
type ScanResult struct {
	Records  []*types.FingerprintRecord
	Found    int
	Hashed   int
	Cached   int
	Failures []Failure
}

// Failure is a file the scan had to leave out.
type Failure struct {
	Path string
	Err  error
}

// Scan fingerprints every candidate under the configured roots. Files that
// fail to read or decode are reported in the result and excluded; they never
// abort the scan. Index errors do abort: a broken index would silently corrupt
// every later stage.
func (r *Runner) Scan(ctx context.Context) (*ScanResult, error) {
	result := &ScanResult{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	files := make(chan discovery.File)

	g.Go(func() error {
		defer close(files)
		return discovery.NewWalker(r.cfg).Walk(gctx, func(f discovery.File) error {
			select {
			case files <- f:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	for i := 0; i < r.cfg.Threads; i++ {
		g.Go(func() error {
			for f := range files {
				rec, cached, err := r.gen.Record(gctx, f.Identity, f.Format)

				mu.Lock()
				result.Found++
				switch {
				case err == nil && cached:
					result.Cached++
					result.Records = append(result.Records, rec)
				case err == nil:
					result.Hashed++
					result.Records = append(result.Records, rec)
				default:
					var derr *types.DecodeError
					if !errors.As(err, &derr) {
						mu.Unlock()
						return err
					}
					result.Failures = append(result.Failures, Failure{Path: f.Identity.Path, Err: err})
				}
				done := result.Found
				mu.Unlock()

				r.progressf("scanned %d files", done)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(result.Records, func(i, j int) bool {
		return result.Records[i].Identity.Path < result.Records[j].Identity.Path
	})
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].Path < result.Failures[j].Path
	})
	return result, nil
}

// PlanResult is a full duplicate plan: who stays, what happens to the rest.
type PlanResult struct {
	Scan      *ScanResult
	Groups    []*types.DuplicateGroup
	Decisions []*types.Decision
}

// Duplicates counts planned non-keeper files.
func (p *PlanResult) Duplicates() int {
	n := 0
	for _, d := range p.Decisions {
		n += len(d.Actions)
	}
	return n
}

// Plan scans, compares, verifies, groups, and selects keepers without
// touching any file.
func (r *Runner) Plan(ctx context.Context) (*PlanResult, error) {
	scan, err := r.Scan(ctx)
	if err != nil {
		return nil, err
	}

	edges := r.engine.Edges(scan.Records)

	// Only edges inside a provisional group can change the outcome, so
	// pixel verification is deferred until grouping says it matters.
	provisional := group.Provisional(scan.Records, edges)
	if err := r.verifyGroups(ctx, provisional, edges); err != nil {
		return nil, err
	}

	groups := group.Confirmed(scan.Records, edges)
	kind := types.ActionKind(r.cfg.ActionKindName())

	plan := &PlanResult{Scan: scan, Groups: groups}
	for _, g := range groups {
		plan.Decisions = append(plan.Decisions, r.chain.Decide(g, kind))
	}
	return plan, nil
}

func (r *Runner) verifyGroups(ctx context.Context, provisional []*types.DuplicateGroup, edges []types.SimilarityEdge) error {
	needed := make(map[[2]string]bool)
	for _, g := range provisional {
		for _, e := range g.Edges {
			needed[[2]string{e.A.Path, e.B.Path}] = true
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range edges {
		e := &edges[i]
		if e.Verification != types.Unverified || !needed[[2]string{e.A.Path, e.B.Path}] {
			continue
		}
		g.Go(func() error {
			return r.verifier.Verify(gctx, e)
		})
	}
	return g.Wait()
}

// ApplyResult pairs the plan with its execution outcome.
type ApplyResult struct {
	Plan  *PlanResult
	Batch *action.BatchResult
}

// Apply plans and then executes the plan as one batch through mgr. In
// dry-run mode every action stops at the staged state.
func (r *Runner) Apply(ctx context.Context, mgr *action.Manager) (*ApplyResult, error) {
	plan, err := r.Plan(ctx)
	if err != nil {
		return nil, err
	}

	batch, err := mgr.ExecuteBatch(ctx, plan.Decisions)
	if err != nil {
		return &ApplyResult{Plan: plan, Batch: batch}, err
	}
	return &ApplyResult{Plan: plan, Batch: batch}, nil
}

func (r *Runner) progressf(format string, args ...any) {
	if r.out == nil || !r.progress.Allow() {
		return
	}
	fmt.Fprintf(r.out, format+"\n", args...)
}
