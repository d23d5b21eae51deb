package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/imgdedup/imgdedup/internal/action"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Settle actions interrupted by a crash",
	Long: `Inspect the audit trail for actions that were journaled as staged but never
recorded an outcome, check the filesystem to see whether each mutation
actually completed, and journal the verdict.

Recovery never moves, deletes, or restores files; it only settles the
journal so the next run starts from a clean state.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadBaseConfig()
		if err != nil {
			fatal(err)
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

		resolutions, err := action.NewManager(&cfg, st, audit).Recover()
		if err != nil {
			fatal(err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		if len(resolutions) == 0 {
			fmt.Printf("%s nothing to recover\n", green("✓"))
			return
		}
		for _, res := range resolutions {
			fmt.Printf("  %s %s: %s\n", res.Record.Kind, res.Record.Target.Path, res.Outcome)
		}
		fmt.Printf("%s settled %d interrupted actions\n", green("✓"), len(resolutions))
	},
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}
