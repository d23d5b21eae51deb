package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/imgdedup/imgdedup/internal/pipeline"
	"github.com/imgdedup/imgdedup/internal/types"
)

var planThreshold int

var planCmd = &cobra.Command{
	Use:   "plan [directories...]",
	Short: "Show duplicate groups and what would happen to them",
	Long: `Scan, group duplicates, and report the keeper and planned action for each
group without touching any file.

Example:
  imgdedup plan ~/Pictures
  imgdedup plan --threshold 3 ~/Pictures`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(args)
		if err != nil {
			fatal(err)
		}
		if cmd.Flags().Changed("threshold") {
			cfg.PHashThreshold = planThreshold
			if err := cfg.Validate(); err != nil {
				fatal(err)
			}
		}

		ctx, cancel := signalContext()
		defer cancel()

		st, err := openStore(ctx, &cfg)
		if err != nil {
			fatal(err)
		}
		defer st.Close()

		runner, err := pipeline.New(&cfg, st, os.Stdout)
		if err != nil {
			fatal(err)
		}
		plan, err := runner.Plan(ctx)
		if err != nil {
			fatal(err)
		}

		printPlan(plan)
	},
}

func printPlan(plan *pipeline.PlanResult) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	if len(plan.Decisions) == 0 {
		fmt.Printf("%s no duplicates found among %d files\n", green("✓"), plan.Scan.Found)
		return
	}

	fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("=== %d duplicate groups ===", len(plan.Decisions))))
	for i, d := range plan.Decisions {
		fmt.Printf("Group %d:\n", i+1)
		fmt.Printf("  keep  %s %s\n", d.Keeper.Identity.Path, gray(describeRecord(d.Keeper)))
		for _, a := range d.Actions {
			fmt.Printf("  %-5s %s %s\n", a.Kind, a.Target.Identity.Path, gray(describeRecord(a.Target)))
		}
		fmt.Println()
	}
	fmt.Printf("%d duplicates across %d groups (%d files scanned)\n",
		plan.Duplicates(), len(plan.Decisions), plan.Scan.Found)
}

func describeRecord(r *types.FingerprintRecord) string {
	if r.Width > 0 {
		return fmt.Sprintf("(%dx%d, %d bytes)", r.Width, r.Height, r.Identity.Size)
	}
	return fmt.Sprintf("(%d bytes)", r.Identity.Size)
}

func init() {
	planCmd.Flags().IntVar(&planThreshold, "threshold", 0, "max fingerprint distance for a match (0-64)")
	rootCmd.AddCommand(planCmd)
}
