package action

import (
	"fmt"
	"os"

	"github.com/imgdedup/imgdedup/internal/types"
)

// Resolution records how recovery settled one interrupted action.
type Resolution struct {
	Record  types.ActionRecord
	Outcome string
}

// Recover settles actions the audit trail left in the staged state after a
// crash. Recovery only inspects the filesystem and appends the verdict to
// the journal; it never moves, deletes, or restores files itself.
//
// An action whose mutation evidently completed (the target is gone and the
// recorded destination holds the file) is settled as committed. An action
// whose target is still in place is settled as failed, so a later run plans
// it again. Anything ambiguous is settled as failed with the ambiguity
// recorded.
func (m *Manager) Recover() ([]Resolution, error) {
	entries, err := ReadAudit(m.cfg.AuditPath)
	if err != nil {
		return nil, err
	}

	var resolutions []Resolution
	for _, rec := range Interrupted(entries) {
		res := m.settle(rec)
		if err := m.audit.Append(&res.Record, types.StateStaged); err != nil {
			return resolutions, err
		}
		resolutions = append(resolutions, res)
	}
	return resolutions, nil
}

func (m *Manager) settle(rec types.ActionRecord) Resolution {
	targetGone := !exists(rec.Target.Path)
	destPresent := rec.DestPath != "" && exists(rec.DestPath)

	var outcome string
	var state types.ActionState
	switch {
	case completed(rec, targetGone, destPresent):
		state = types.StateCommitted
		outcome = "mutation had completed; journaled as committed"
	case !targetGone:
		state = types.StateFailed
		rec.Error = "interrupted before the filesystem was touched"
		outcome = "target untouched; journaled as failed"
	default:
		state = types.StateFailed
		rec.Error = fmt.Sprintf("interrupted: target missing and destination %q absent", rec.DestPath)
		outcome = "ambiguous outcome; journaled as failed"
	}

	// Transition cannot fail from staged to these states.
	_ = rec.Transition(state)
	return Resolution{Record: rec, Outcome: outcome}
}

// completed reports whether the interrupted mutation evidently ran to the
// end before the crash.
func completed(rec types.ActionRecord, targetGone, destPresent bool) bool {
	switch rec.Kind {
	case types.ActionMove:
		return targetGone && destPresent
	case types.ActionSymlink:
		if !destPresent {
			return false
		}
		info, err := os.Lstat(rec.Target.Path)
		return err == nil && info.Mode()&os.ModeSymlink != 0
	case types.ActionDelete:
		if rec.DestPath != "" {
			return targetGone && destPresent
		}
		return targetGone
	}
	return false
}
