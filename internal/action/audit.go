package action

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/imgdedup/imgdedup/internal/types"
)

// AuditEntry is one line of the append-only audit trail: a snapshot of an
// action record at a state transition, with the state it came from.
type AuditEntry struct {
	Time   time.Time          `json:"time"`
	Prior  types.ActionState  `json:"prior"`
	Record types.ActionRecord `json:"record"`
}

// AuditLog is a durable JSON-lines journal. Every entry is flushed to disk
// before the caller proceeds, so the trail always leads the filesystem: a
// crash can leave a journaled mutation undone, never an unjournaled one
// done.
type AuditLog struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// OpenAudit opens the audit trail for appending, creating it and its parent
// directory as needed.
func OpenAudit(path string) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit trail: %w", err)
	}
	return &AuditLog{f: f, path: path}, nil
}

// Append journals the record's current state, along with the state it
// transitioned from, and syncs before returning.
func (l *AuditLog) Append(rec *types.ActionRecord, prior types.ActionState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line, err := json.Marshal(AuditEntry{Time: time.Now().UTC(), Prior: prior, Record: *rec})
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	if _, err := l.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit trail: %w", err)
	}
	return nil
}

func (l *AuditLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// ReadAudit loads the full audit trail. A missing file yields an empty
// trail. A truncated final line, the signature of a crash mid-append, is
// skipped rather than treated as corruption.
func ReadAudit(path string) ([]AuditEntry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open audit trail: %w", err)
	}
	defer f.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit trail: %w", err)
	}
	return entries, nil
}

// Interrupted returns the latest snapshot of every action whose journal
// ends in the staged state: mutations that were announced but whose outcome
// was never recorded. Dry-run records also end staged, but nothing was ever
// going to be mutated, so they are not reported.
func Interrupted(entries []AuditEntry) []types.ActionRecord {
	latest := make(map[string]types.ActionRecord)
	var order []string
	for _, e := range entries {
		if _, seen := latest[e.Record.ID]; !seen {
			order = append(order, e.Record.ID)
		}
		latest[e.Record.ID] = e.Record
	}

	var stuck []types.ActionRecord
	for _, id := range order {
		if rec := latest[id]; rec.State == types.StateStaged && !rec.DryRun {
			stuck = append(stuck, rec)
		}
	}
	return stuck
}
