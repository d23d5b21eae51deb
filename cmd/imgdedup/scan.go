package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/imgdedup/imgdedup/internal/pipeline"
)

var (
	scanForce   bool
	scanThreads int
)

var scanCmd = &cobra.Command{
	Use:   "scan [directories...]",
	Short: "Fingerprint images and refresh the index",
	Long: `Walk the given directories, fingerprint every image, and store the results
in the index. Files whose size, modification time, and filesystem identity
are unchanged since the last scan are skipped.

Example:
  imgdedup scan ~/Pictures
  imgdedup scan --force ~/Pictures ~/Downloads`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(args)
		if err != nil {
			fatal(err)
		}
		cfg.ForceRescan = scanForce
		if scanThreads > 0 {
			cfg.Threads = scanThreads
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
		result, err := runner.Scan(ctx)
		if err != nil {
			fatal(err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("\n%s %d files found\n", green("✓"), result.Found)
		fmt.Printf("  %d fingerprinted, %d unchanged\n", result.Hashed, result.Cached)

		if len(result.Failures) > 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("%s %d files could not be read:\n", yellow("⚠"), len(result.Failures))
			for _, f := range result.Failures {
				fmt.Printf("  %s %v\n", gray(f.Path), f.Err)
			}
		}
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanForce, "force", false, "rehash every file, ignoring the index")
	scanCmd.Flags().IntVar(&scanThreads, "threads", 0, "hashing workers (default: CPU count)")
	rootCmd.AddCommand(scanCmd)
}
