package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/imgdedup/imgdedup/internal/action"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and audit trail status",
	Long: `Display the fingerprint index location, record count, schema version, and
any interrupted actions left in the audit trail.`,
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

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== imgdedup status ==="))

		count, err := st.Count(ctx)
		if err != nil {
			fatal(err)
		}
		version, err := st.SchemaVersion(ctx)
		if err != nil {
			fatal(err)
		}

		fmt.Printf("%s\n", yellow("Index:"))
		fmt.Printf("  Path:    %s\n", cfg.DatabasePath)
		fmt.Printf("  Records: %d\n", count)
		fmt.Printf("  Schema:  v%d\n", version)
		fmt.Println()

		entries, err := action.ReadAudit(cfg.AuditPath)
		if err != nil {
			fatal(err)
		}
		stuck := action.Interrupted(entries)

		fmt.Printf("%s\n", yellow("Audit trail:"))
		fmt.Printf("  Path:    %s\n", cfg.AuditPath)
		fmt.Printf("  Entries: %d\n", len(entries))
		if len(stuck) > 0 {
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("  %s %d interrupted actions; run 'imgdedup recover'\n", red("⚠"), len(stuck))
			for _, rec := range stuck {
				fmt.Printf("    %s %s %s\n", rec.Kind, rec.Target.Path, gray(rec.ID))
			}
		} else {
			fmt.Printf("  %s\n", gray("No interrupted actions"))
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
