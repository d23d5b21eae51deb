package types

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// FileIdentity identifies a file on disk at a point in time. It is the index
// key for the fingerprint store: a record whose identity still matches the
// file on disk does not need to be rehashed.
type FileIdentity struct {
	Path    string    `json:"path"` // absolute path
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	Inode   uint64    `json:"inode,omitempty"`
	Device  uint64    `json:"device,omitempty"`
}

// Matches reports whether two identities refer to the same, unchanged file.
// A mismatch on any field forces a rehash.
func (id FileIdentity) Matches(other FileIdentity) bool {
	return id.Path == other.Path &&
		id.Size == other.Size &&
		id.ModTime.Equal(other.ModTime) &&
		id.Inode == other.Inode &&
		id.Device == other.Device
}

// Validate checks that the identity is usable as a store key
func (id FileIdentity) Validate() error {
	if id.Path == "" {
		return fmt.Errorf("path is required")
	}
	if !filepath.IsAbs(id.Path) {
		return fmt.Errorf("path must be absolute (got %q)", id.Path)
	}
	if id.Size < 0 {
		return fmt.Errorf("size cannot be negative")
	}
	return nil
}

// ImageFormat categorizes a file by its image format
type ImageFormat string

const (
	FormatJPEG  ImageFormat = "jpeg"
	FormatPNG   ImageFormat = "png"
	FormatGIF   ImageFormat = "gif"
	FormatTIFF  ImageFormat = "tiff"
	FormatWebP  ImageFormat = "webp"
	FormatBMP   ImageFormat = "bmp"
	FormatHEIC  ImageFormat = "heic"
	FormatRAW   ImageFormat = "raw"
	FormatOther ImageFormat = "other"
)

// rawExtensions covers the camera RAW formats we recognize but never decode.
var rawExtensions = map[string]bool{
	".raw": true, ".dng": true, ".cr2": true, ".nef": true, ".arw": true,
	".orf": true, ".rw2": true, ".nrw": true, ".raf": true, ".crw": true,
	".pef": true, ".srw": true, ".x3f": true, ".rwl": true, ".3fr": true,
}

// FormatFromPath determines the image format from a file extension
func FormatFromPath(path string) ImageFormat {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg":
		return FormatJPEG
	case ".png":
		return FormatPNG
	case ".gif":
		return FormatGIF
	case ".tif", ".tiff":
		return FormatTIFF
	case ".webp":
		return FormatWebP
	case ".bmp":
		return FormatBMP
	case ".heic", ".heif":
		return FormatHEIC
	}
	if rawExtensions[ext] {
		return FormatRAW
	}
	return FormatOther
}

// Decodable reports whether files of this format can be decoded to pixels.
// RAW and unknown formats are exact-hashed only and never perceptually
// compared.
func (f ImageFormat) Decodable() bool {
	switch f {
	case FormatJPEG, FormatPNG, FormatGIF, FormatTIFF, FormatWebP, FormatBMP, FormatHEIC:
		return true
	}
	return false
}

// IsValid checks if the format value is valid
func (f ImageFormat) IsValid() bool {
	switch f {
	case FormatJPEG, FormatPNG, FormatGIF, FormatTIFF, FormatWebP, FormatBMP,
		FormatHEIC, FormatRAW, FormatOther:
		return true
	}
	return false
}

// FingerprintRecord holds the stored hashes and metadata for one file.
// Records are owned by the store; updates are full replacements keyed by
// identity path.
type FingerprintRecord struct {
	Identity FileIdentity `json:"identity"`
	Format   ImageFormat  `json:"format"`

	// SHA256 is the hex-encoded digest of the original file bytes.
	SHA256 string `json:"sha256"`

	// PHash is the 64-bit perceptual fingerprint. Only meaningful when
	// HasPHash is set; RAW files and undecodable formats carry none.
	PHash    uint64 `json:"phash"`
	HasPHash bool   `json:"has_phash"`

	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// TakenAt is the capture timestamp from image metadata, when present.
	TakenAt *time.Time `json:"taken_at,omitempty"`
}

// Resolution returns the pixel count, or 0 when dimensions are unknown
func (r *FingerprintRecord) Resolution() int64 {
	return int64(r.Width) * int64(r.Height)
}

// CreationTime returns the best available creation timestamp: the capture
// time from metadata when present, otherwise the filesystem mtime.
func (r *FingerprintRecord) CreationTime() time.Time {
	if r.TakenAt != nil {
		return *r.TakenAt
	}
	return r.Identity.ModTime
}

// Validate checks that the record is storable
func (r *FingerprintRecord) Validate() error {
	if err := r.Identity.Validate(); err != nil {
		return err
	}
	if r.SHA256 == "" {
		return fmt.Errorf("sha256 is required")
	}
	if !r.Format.IsValid() {
		return fmt.Errorf("invalid format: %s", r.Format)
	}
	return nil
}

// VerificationState is the pixel-verification outcome for a similarity edge
type VerificationState string

const (
	Unverified     VerificationState = "unverified"
	PixelConfirmed VerificationState = "pixel_confirmed"
	PixelRejected  VerificationState = "pixel_rejected"
)

// SimilarityEdge is a pairwise duplicate judgment between two files. Edges
// are ordered so that A.Path < B.Path, which keeps edge sets canonical
// regardless of comparison order. Edges live for a single run and are never
// persisted.
type SimilarityEdge struct {
	A            FileIdentity
	B            FileIdentity
	Distance     int
	Verification VerificationState
}

// NewSimilarityEdge builds a canonically ordered edge between two identities
func NewSimilarityEdge(a, b FileIdentity, distance int, v VerificationState) SimilarityEdge {
	if b.Path < a.Path {
		a, b = b, a
	}
	return SimilarityEdge{A: a, B: b, Distance: distance, Verification: v}
}

// DuplicateGroup is a set of mutually reachable duplicates for one run.
// Members are connected transitively through accepted edges; a member need
// not be pairwise-near the keeper, only reachable.
type DuplicateGroup struct {
	Members []*FingerprintRecord
	Edges   []SimilarityEdge
}

// Paths returns the member paths in slice order
func (g *DuplicateGroup) Paths() []string {
	paths := make([]string, len(g.Members))
	for i, m := range g.Members {
		paths[i] = m.Identity.Path
	}
	return paths
}

// ActionKind is the planned disposition for a non-keeper group member
type ActionKind string

const (
	ActionMove    ActionKind = "move"
	ActionDelete  ActionKind = "delete"
	ActionSymlink ActionKind = "symlink"
)

// IsValid checks if the action kind is valid
func (k ActionKind) IsValid() bool {
	switch k {
	case ActionMove, ActionDelete, ActionSymlink:
		return true
	}
	return false
}

// PlannedAction pairs a non-keeper member with its planned action
type PlannedAction struct {
	Target *FingerprintRecord
	Kind   ActionKind
}

// Decision is the per-group outcome of keeper selection. It is immutable
// once handed to the action manager.
type Decision struct {
	Group   *DuplicateGroup
	Keeper  *FingerprintRecord
	Actions []PlannedAction
}

// ActionState is the execution state of one action record
type ActionState string

const (
	StatePending    ActionState = "pending"
	StateStaged     ActionState = "staged"
	StateCommitted  ActionState = "committed"
	StateFailed     ActionState = "failed"
	StateRolledBack ActionState = "rolled_back"
)

// IsValid checks if the state value is valid
func (s ActionState) IsValid() bool {
	switch s {
	case StatePending, StateStaged, StateCommitted, StateFailed, StateRolledBack:
		return true
	}
	return false
}

// CanTransition reports whether a state transition is legal. Transitions are
// monotonic: pending -> staged -> {committed | failed}; rolled_back is only
// reachable from staged or committed.
func (s ActionState) CanTransition(to ActionState) bool {
	switch s {
	case StatePending:
		return to == StateStaged || to == StateFailed
	case StateStaged:
		return to == StateCommitted || to == StateFailed || to == StateRolledBack
	case StateCommitted:
		return to == StateRolledBack
	}
	return false
}

// ActionRecord tracks one planned filesystem mutation through its lifecycle.
// Every state transition is appended to the audit trail before the
// corresponding filesystem call.
type ActionRecord struct {
	ID         string       `json:"id"`
	RunID      string       `json:"run_id"`
	BatchID    string       `json:"batch_id"`
	Target     FileIdentity `json:"target"`
	KeeperPath string       `json:"keeper_path"`
	Kind       ActionKind   `json:"kind"`
	State      ActionState  `json:"state"`

	// DryRun marks records journaled by a dry run. No mutation was ever
	// attempted for them, so recovery has nothing to settle.
	DryRun bool `json:"dry_run,omitempty"`

	// DestPath is the staged destination for moves and backups, or the
	// symlink location. Recorded before the mutation so rollback never
	// depends on filesystem introspection.
	DestPath string `json:"dest_path,omitempty"`

	// KeeperVerified is set once the keeper's presence and content hash
	// have been confirmed after (or, for deletes, before) the mutation.
	KeeperVerified bool   `json:"keeper_verified"`
	Error          string `json:"error,omitempty"`
}

// Transition moves the record to a new state, enforcing monotonicity
func (a *ActionRecord) Transition(to ActionState) error {
	if !a.State.CanTransition(to) {
		return Invariantf("illegal action state transition %s -> %s for %s", a.State, to, a.Target.Path)
	}
	a.State = to
	return nil
}
