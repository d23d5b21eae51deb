// Package action executes duplicate dispositions safely. Every mutation
// follows the same discipline: journal the intent, verify the keeper, touch
// the filesystem, journal the outcome. Nothing is removed until the keeper's
// presence and content hash have been confirmed.
package action

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/imgdedup/imgdedup/internal/config"
	"github.com/imgdedup/imgdedup/internal/hashgen"
	"github.com/imgdedup/imgdedup/internal/store"
	"github.com/imgdedup/imgdedup/internal/types"
)

// Manager stages, commits, and rolls back duplicate dispositions.
type Manager struct {
	cfg   *config.Config
	st    store.Store
	audit *AuditLog
	runID string
}

// NewManager returns a manager journaling to audit for one run.
func NewManager(cfg *config.Config, st store.Store, audit *AuditLog) *Manager {
	return &Manager{cfg: cfg, st: st, audit: audit, runID: uuid.NewString()}
}

// RunID identifies this manager's run in the audit trail.
func (m *Manager) RunID() string { return m.runID }

// BatchResult reports the outcome of one batch.
type BatchResult struct {
	RunID   string
	BatchID string
	Records []*types.ActionRecord
}

// CountByState tallies the batch's records per final state
func (r *BatchResult) CountByState() map[types.ActionState]int {
	counts := make(map[types.ActionState]int)
	for _, rec := range r.Records {
		counts[rec.State]++
	}
	return counts
}

// ExecuteBatch runs every planned action of every decision as one batch.
// In dry-run mode each action stops at the staged state with its destination
// resolved, and the filesystem is never touched. A failed action does not
// stop the batch unless abort-on-failure is set, in which case the batch's
// committed actions are rolled back newest first.
//
// Cancellation is honored between actions, never in the middle of a
// mutation, so a canceled batch contains only settled records.
func (m *Manager) ExecuteBatch(ctx context.Context, decisions []*types.Decision) (*BatchResult, error) {
	result := &BatchResult{RunID: m.runID, BatchID: uuid.NewString()}
	reserved := make(map[string]bool)

	var committed []*types.ActionRecord
	for _, d := range decisions {
		for _, planned := range d.Actions {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			rec := &types.ActionRecord{
				ID:         uuid.NewString(),
				RunID:      m.runID,
				BatchID:    result.BatchID,
				Target:     planned.Target.Identity,
				KeeperPath: d.Keeper.Identity.Path,
				Kind:       planned.Kind,
				State:      types.StatePending,
				DryRun:     m.cfg.DryRun,
			}
			result.Records = append(result.Records, rec)

			if err := m.execute(ctx, rec, d.Keeper, reserved); err != nil {
				if !m.cfg.AbortOnFailure {
					continue
				}
				if rbErr := m.rollback(committed); rbErr != nil {
					return result, fmt.Errorf("rollback after failure: %w", rbErr)
				}
				return result, err
			}
			if rec.State == types.StateCommitted {
				committed = append(committed, rec)
			}
		}
	}
	return result, nil
}

// execute drives one record from pending to its final state. Any returned
// error has already been journaled on the record.
func (m *Manager) execute(ctx context.Context, rec *types.ActionRecord, keeper *types.FingerprintRecord, reserved map[string]bool) error {
	rec.DestPath = m.destFor(rec, reserved)
	if err := rec.Transition(types.StateStaged); err != nil {
		return err
	}
	if err := m.audit.Append(rec, types.StatePending); err != nil {
		return err
	}

	if m.cfg.DryRun {
		return nil
	}

	// Deletes are irreversible without a backup, so the keeper is checked
	// before the mutation. Moves and symlinks are checked after; they can
	// still be undone if the keeper turns out to be gone.
	if rec.Kind == types.ActionDelete {
		if err := m.verifyKeeper(keeper); err != nil {
			return m.fail(rec, err)
		}
		rec.KeeperVerified = true
	}

	if err := m.commit(rec); err != nil {
		return m.fail(rec, err)
	}

	if rec.Kind != types.ActionDelete {
		if err := m.verifyKeeper(keeper); err != nil {
			m.undo(rec)
			return m.fail(rec, fmt.Errorf("keeper check after %s: %w", rec.Kind, err))
		}
		rec.KeeperVerified = true
	}

	if err := rec.Transition(types.StateCommitted); err != nil {
		return err
	}
	if err := m.audit.Append(rec, types.StateStaged); err != nil {
		return err
	}

	// The target path no longer holds the indexed content.
	if err := m.st.Delete(ctx, rec.Target.Path); err != nil {
		return fmt.Errorf("failed to drop index entry for %s: %w", rec.Target.Path, err)
	}
	return nil
}

func (m *Manager) fail(rec *types.ActionRecord, cause error) error {
	prior := rec.State
	rec.Error = cause.Error()
	if err := rec.Transition(types.StateFailed); err != nil {
		return err
	}
	if err := m.audit.Append(rec, prior); err != nil {
		return err
	}
	return &types.ActionError{Path: rec.Target.Path, Kind: rec.Kind, Err: cause}
}

// destFor resolves where the target will land: the duplicates directory for
// moves and symlinks, the backup directory for backed-up deletes, empty for
// bare deletes. Names already taken on disk or reserved by an earlier
// action in the batch get a numeric suffix.
func (m *Manager) destFor(rec *types.ActionRecord, reserved map[string]bool) string {
	var dir string
	switch rec.Kind {
	case types.ActionMove, types.ActionSymlink:
		dir = m.cfg.DuplicatesDir
	case types.ActionDelete:
		if m.cfg.BackupDir == "" {
			return ""
		}
		dir = m.cfg.BackupDir
	}

	base := filepath.Base(rec.Target.Path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	dest := filepath.Join(dir, base)
	for n := 1; reserved[dest] || exists(dest); n++ {
		dest = filepath.Join(dir, stem+"_"+strconv.Itoa(n)+ext)
	}
	reserved[dest] = true
	return dest
}

func (m *Manager) commit(rec *types.ActionRecord) error {
	switch rec.Kind {
	case types.ActionMove:
		return moveFile(rec.Target.Path, rec.DestPath)

	case types.ActionSymlink:
		if err := moveFile(rec.Target.Path, rec.DestPath); err != nil {
			return err
		}
		if err := os.Symlink(rec.KeeperPath, rec.Target.Path); err != nil {
			// Put the file back rather than leave a hole.
			if mvErr := moveFile(rec.DestPath, rec.Target.Path); mvErr != nil {
				return fmt.Errorf("failed to link %s (and restore failed: %v): %w", rec.Target.Path, mvErr, err)
			}
			return fmt.Errorf("failed to link %s: %w", rec.Target.Path, err)
		}
		return nil

	case types.ActionDelete:
		if rec.DestPath != "" {
			if err := copyFile(rec.Target.Path, rec.DestPath); err != nil {
				return fmt.Errorf("failed to back up %s: %w", rec.Target.Path, err)
			}
		}
		if err := os.Remove(rec.Target.Path); err != nil {
			return fmt.Errorf("failed to delete %s: %w", rec.Target.Path, err)
		}
		return nil
	}
	return types.Invariantf("unknown action kind %s", rec.Kind)
}

// undo reverses a just-committed mutation during failure handling, best
// effort.
func (m *Manager) undo(rec *types.ActionRecord) {
	switch rec.Kind {
	case types.ActionMove:
		_ = moveFile(rec.DestPath, rec.Target.Path)
	case types.ActionSymlink:
		_ = os.Remove(rec.Target.Path)
		_ = moveFile(rec.DestPath, rec.Target.Path)
	}
}

// rollback undoes committed actions newest first. Moves and symlinks are
// restored from their recorded destinations; backed-up deletes are restored
// from the backup copy; bare deletes cannot be undone and keep their
// committed state.
func (m *Manager) rollback(committed []*types.ActionRecord) error {
	for i := len(committed) - 1; i >= 0; i-- {
		rec := committed[i]

		switch rec.Kind {
		case types.ActionMove:
			if err := moveFile(rec.DestPath, rec.Target.Path); err != nil {
				return err
			}
		case types.ActionSymlink:
			if err := os.Remove(rec.Target.Path); err != nil && !os.IsNotExist(err) {
				return err
			}
			if err := moveFile(rec.DestPath, rec.Target.Path); err != nil {
				return err
			}
		case types.ActionDelete:
			if rec.DestPath == "" {
				continue
			}
			if err := copyFile(rec.DestPath, rec.Target.Path); err != nil {
				return err
			}
		}

		if err := rec.Transition(types.StateRolledBack); err != nil {
			return err
		}
		if err := m.audit.Append(rec, types.StateCommitted); err != nil {
			return err
		}
	}
	return nil
}

// verifyKeeper confirms the keeper still exists with the content recorded
// at scan time.
func (m *Manager) verifyKeeper(keeper *types.FingerprintRecord) error {
	sum, err := hashgen.HashFile(keeper.Identity.Path)
	if err != nil {
		return fmt.Errorf("keeper unreadable: %w", err)
	}
	if sum != keeper.SHA256 {
		return fmt.Errorf("keeper %s changed since scan", keeper.Identity.Path)
	}
	return nil
}

// moveFile renames src to dest, creating dest's directory and falling back
// to copy-and-remove when the rename crosses filesystems.
func moveFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	if err := copyFile(src, dest); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("failed to remove %s after copy: %w", src, err)
	}
	return nil
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("failed to sync %s: %w", dest, err)
	}
	return out.Close()
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
