package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/imgdedup/imgdedup/internal/action"
	"github.com/imgdedup/imgdedup/internal/config"
	"github.com/imgdedup/imgdedup/internal/pipeline"
	"github.com/imgdedup/imgdedup/internal/types"
)

var (
	applyExecute bool
	applyDelete  bool
	applySymlink bool
	applyDupDir  string
	applyBackup  string
	applyAbort   bool
	applyYes     bool
)

var applyCmd = &cobra.Command{
	Use:   "apply [directories...]",
	Short: "Execute the duplicate plan",
	Long: `Scan, plan, and carry out the planned dispositions. Without --execute this
is a dry run: every action is journaled as staged and reported, but no file
is touched.

Deleting requires confirmation unless --yes is given. With --backup-dir each
file is copied there before deletion.

Example:
  imgdedup apply ~/Pictures                       # dry run
  imgdedup apply --execute ~/Pictures             # move duplicates
  imgdedup apply --execute --delete --backup-dir ~/dedup-backup ~/Pictures`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(args)
		if err != nil {
			fatal(err)
		}
		applyOverrides(cmd, &cfg)
		if err := cfg.Validate(); err != nil {
			fatal(err)
		}

		if applyExecute && cfg.DeleteDuplicates && !applyYes {
			if !confirmDelete(cfg.BackupDir) {
				fmt.Println("aborted")
				return
			}
		}

		ctx, cancel := signalContext()
		defer cancel()

		st, err := openStore(ctx, &cfg)
		if err != nil {
			fatal(err)
		}
		defer st.Close()

		audit, err := openAudit(&cfg)
		if err != nil {
			fatal(err)
		}
		defer audit.Close()

		runner, err := pipeline.New(&cfg, st, os.Stdout)
		if err != nil {
			fatal(err)
		}

		result, err := runner.Apply(ctx, action.NewManager(&cfg, st, audit))
		if result != nil {
			printApply(result, cfg.DryRun)
		}
		if err != nil {
			fatal(err)
		}
	},
}

// applyOverrides layers the apply flags over the loaded config. Boolean
// flags only override when actually given, so delete_duplicates and friends
// set in the config file survive a plain invocation.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	cfg.DryRun = !applyExecute
	if cmd.Flags().Changed("delete") {
		cfg.DeleteDuplicates = applyDelete
	}
	if cmd.Flags().Changed("symlink") {
		cfg.CreateSymlinks = applySymlink
	}
	if cmd.Flags().Changed("abort-on-failure") {
		cfg.AbortOnFailure = applyAbort
	}
	if applyDupDir != "" {
		cfg.DuplicatesDir = applyDupDir
	}
	if applyBackup != "" {
		cfg.BackupDir = applyBackup
	}
}

// confirmDelete asks before an irreversible run.
func confirmDelete(backupDir string) bool {
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	if backupDir == "" {
		fmt.Printf("%s duplicates will be deleted with no backup\n", red("WARNING:"))
	} else {
		fmt.Printf("duplicates will be deleted after backup to %s\n", backupDir)
	}

	rl, err := readline.New("Type 'delete' to continue: ")
	if err != nil {
		return false
	}
	defer rl.Close()

	line, err := rl.Readline()
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == "delete"
}

func printApply(result *pipeline.ApplyResult, dryRun bool) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	counts := result.Batch.CountByState()
	if dryRun {
		fmt.Printf("\n%s dry run: %d actions staged, nothing executed\n",
			green("✓"), counts[types.StateStaged])
		for _, rec := range result.Batch.Records {
			fmt.Printf("  %-7s %s %s\n", rec.Kind, rec.Target.Path, gray("-> "+rec.DestPath))
		}
		fmt.Println("\nRe-run with --execute to carry this out.")
		return
	}

	fmt.Printf("\n%s %d committed", green("✓"), counts[types.StateCommitted])
	if n := counts[types.StateFailed]; n > 0 {
		fmt.Printf(", %s", red(fmt.Sprintf("%d failed", n)))
	}
	if n := counts[types.StateRolledBack]; n > 0 {
		fmt.Printf(", %d rolled back", n)
	}
	fmt.Println()

	for _, rec := range result.Batch.Records {
		if rec.State == types.StateFailed {
			fmt.Printf("  %s %s: %s\n", red("✗"), rec.Target.Path, rec.Error)
		}
	}
}

func init() {
	applyCmd.Flags().BoolVar(&applyExecute, "execute", false, "actually modify the filesystem")
	applyCmd.Flags().BoolVar(&applyDelete, "delete", false, "delete duplicates instead of moving them")
	applyCmd.Flags().BoolVar(&applySymlink, "symlink", false, "replace moved duplicates with symlinks to the keeper")
	applyCmd.Flags().StringVar(&applyDupDir, "duplicates-dir", "", "where moved duplicates land (overrides config)")
	applyCmd.Flags().StringVar(&applyBackup, "backup-dir", "", "copy files here before deleting")
	applyCmd.Flags().BoolVar(&applyAbort, "abort-on-failure", false, "stop at the first failure and roll back the batch")
	applyCmd.Flags().BoolVar(&applyYes, "yes", false, "skip the delete confirmation prompt")
	rootCmd.AddCommand(applyCmd)
}
