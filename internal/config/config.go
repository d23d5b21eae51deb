package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Fingerprints are 64-bit, so Hamming distances range 0-64.
const FingerprintBits = 64

// Config is the immutable per-run configuration. It is built once from the
// config file and CLI flags, validated, and passed by value through every
// component entry point; the core never reads environment or files directly.
type Config struct {
	// Roots are the directories to scan.
	Roots []string `yaml:"roots"`

	// DryRun stops every action at the staged state and reports the plan
	// without touching the filesystem.
	DryRun bool `yaml:"dry_run"`

	// DuplicatesDir receives non-keeper files for move and symlink actions.
	DuplicatesDir string `yaml:"duplicates_dir"`

	// DeleteDuplicates enables the delete action instead of move.
	DeleteDuplicates bool `yaml:"delete_duplicates"`

	// CreateSymlinks replaces each moved duplicate with a symlink to the
	// keeper.
	CreateSymlinks bool `yaml:"create_symlinks"`

	// BackupDir, when set, receives a copy of every file before deletion.
	BackupDir string `yaml:"backup_dir"`

	// PHashThreshold is the maximum Hamming distance (0-64) at which two
	// fingerprints are considered near-duplicates. Distances of 0-3 are
	// nearly identical images; 10 is a reasonable default for same-subject
	// matches.
	PHashThreshold int `yaml:"phash_threshold"`

	// PixelThreshold is the stricter confirmation bound for pixel
	// verification: the mean absolute grayscale difference, normalized to
	// [0,1], below which a borderline pair is confirmed.
	PixelThreshold float64 `yaml:"pixel_threshold"`

	// MaxDepth bounds directory traversal; 0 means unlimited.
	MaxDepth int `yaml:"max_depth"`

	// ExcludedDirs are directory paths skipped during traversal.
	ExcludedDirs []string `yaml:"excluded_directories"`

	// Prioritization is the ordered rule chain for keeper selection.
	Prioritization []string `yaml:"prioritization"`

	// PreferredFormats orders formats for the preferred-format rule.
	PreferredFormats []string `yaml:"preferred_formats"`

	// PreferredDirs lists directories whose members the preferred-directory
	// rule favors as keepers.
	PreferredDirs []string `yaml:"preferred_directories"`

	// DatabasePath locates the fingerprint index.
	DatabasePath string `yaml:"database_path"`

	// AuditPath locates the append-only audit trail.
	AuditPath string `yaml:"audit_path"`

	// Threads bounds the hashing worker pool; 0 means NumCPU.
	Threads int `yaml:"threads"`

	// VerifyThreads bounds concurrent full-resolution decodes during pixel
	// verification, separately from the cheap comparison work.
	VerifyThreads int `yaml:"verify_threads"`

	// ForceRescan ignores stored identities and rehashes every file.
	ForceRescan bool `yaml:"force_rescan"`

	// AbortOnFailure stops the batch at the first failed action and rolls
	// back the batch's completed actions in LIFO order.
	AbortOnFailure bool `yaml:"abort_on_failure"`

	// ProcessUnsupported includes files of unknown format in exact-hash
	// deduplication.
	ProcessUnsupported bool `yaml:"process_unsupported_formats"`
}

// Default returns the baseline configuration
func Default() Config {
	return Config{
		DryRun:         true,
		DuplicatesDir:  "duplicates",
		PHashThreshold: 10,
		PixelThreshold: 0.10,
		Prioritization: []string{"highest-resolution", "largest-file-size", "oldest-creation-date"},
		DatabasePath:   ".imgdedup/index.db",
		AuditPath:      ".imgdedup/audit.jsonl",
		Threads:        runtime.NumCPU(),
		VerifyThreads:  2,
	}
}

// Load reads the config file at path, layered over defaults. A missing file
// is not an error: defaults are returned so the tool works out of the box.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = ".imgdedup.yaml"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Normalize fills derived defaults and converts paths to absolute form
func (c *Config) Normalize() error {
	if c.Threads <= 0 {
		c.Threads = runtime.NumCPU()
	}
	if c.VerifyThreads <= 0 {
		c.VerifyThreads = 2
	}
	for i, root := range c.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolving root %s: %w", root, err)
		}
		c.Roots[i] = abs
	}
	for i, dir := range c.ExcludedDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolving excluded directory %s: %w", dir, err)
		}
		c.ExcludedDirs[i] = abs
	}
	return nil
}

// Validate checks option ranges and combinations before a run starts
func (c Config) Validate() error {
	if c.PHashThreshold < 0 || c.PHashThreshold > FingerprintBits {
		return fmt.Errorf("phash_threshold must be between 0 and %d (got %d)", FingerprintBits, c.PHashThreshold)
	}
	if c.PixelThreshold <= 0 || c.PixelThreshold >= 1 {
		return fmt.Errorf("pixel_threshold must be in (0,1) (got %g)", c.PixelThreshold)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth cannot be negative")
	}
	if c.DeleteDuplicates && c.CreateSymlinks {
		return fmt.Errorf("delete_duplicates and create_symlinks are mutually exclusive")
	}
	if !c.DeleteDuplicates && c.DuplicatesDir == "" {
		return fmt.Errorf("duplicates_dir is required unless delete_duplicates is set")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	for _, name := range c.Prioritization {
		if !knownRules[name] {
			return fmt.Errorf("unknown prioritization rule: %s", name)
		}
	}
	return nil
}

// knownRules mirrors the rule names registered by the decision engine.
var knownRules = map[string]bool{
	"highest-resolution":   true,
	"largest-file-size":    true,
	"smallest-file-size":   true,
	"oldest-creation-date": true,
	"preferred-format":     true,
	"preferred-directory":  true,
}

// ActionKindName returns the configured disposition for non-keepers
func (c Config) ActionKindName() string {
	switch {
	case c.DeleteDuplicates:
		return "delete"
	case c.CreateSymlinks:
		return "symlink"
	default:
		return "move"
	}
}
