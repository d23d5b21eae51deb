package types

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by store lookups when no record exists for the
// requested identity. It is distinct from I/O and corruption errors.
var ErrNotFound = errors.New("record not found")

// DecodeError reports an unreadable or corrupt image. Per-file decode
// failures are isolated: the file is skipped and the run continues.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// MigrationError reports that the store schema is newer than this build
// understands. It is surfaced before any further work; the store never
// silently drops records.
type MigrationError struct {
	Stored  int
	Current int
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("store schema version %d is newer than supported version %d; migration required", e.Stored, e.Current)
}

// ActionError reports a failed filesystem mutation for one action record.
// The record is marked failed and, unless abort-on-failure is configured,
// remaining candidates continue.
type ActionError struct {
	Path string
	Kind ActionKind
	Err  error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Path, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// InvariantError marks a condition that should be unreachable. Callers abort
// the run rather than continuing with undefined state.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "invariant violation: " + e.Msg
}

// Invariantf builds an InvariantError with a formatted message
func Invariantf(format string, args ...any) error {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}
