package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/imgdedup/imgdedup/internal/compare"
	"github.com/imgdedup/imgdedup/internal/config"
	"github.com/imgdedup/imgdedup/internal/decoder"
	"github.com/imgdedup/imgdedup/internal/hashgen"
	"github.com/imgdedup/imgdedup/internal/types"
)

var compareCmd = &cobra.Command{
	Use:   "compare <file> <file>",
	Short: "Compare two images directly",
	Long: `Hash and fingerprint two files and report whether they would be treated as
duplicates, without consulting or updating the index.

Example:
  imgdedup compare a.jpg b.jpg`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadBaseConfig()
		if err != nil {
			fatal(err)
		}

		ctx, cancel := signalContext()
		defer cancel()

		a, err := filepath.Abs(args[0])
		if err != nil {
			fatal(err)
		}
		b, err := filepath.Abs(args[1])
		if err != nil {
			fatal(err)
		}

		if err := compareFiles(ctx, &cfg, a, b); err != nil {
			fatal(err)
		}
	},
}

func compareFiles(ctx context.Context, cfg *config.Config, a, b string) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	sumA, err := hashgen.HashFile(a)
	if err != nil {
		return err
	}
	sumB, err := hashgen.HashFile(b)
	if err != nil {
		return err
	}
	if sumA == sumB {
		fmt.Printf("%s byte-identical (sha256 %s)\n", green("✓"), sumA[:12])
		return nil
	}
	fmt.Println("contents differ; comparing fingerprints")

	dec := decoder.New()
	imgA, err := dec.Decode(ctx, a, types.FormatFromPath(a))
	if err != nil {
		return err
	}
	imgB, err := dec.Decode(ctx, b, types.FormatFromPath(b))
	if err != nil {
		return err
	}

	d := hashgen.Distance(hashgen.Fingerprint(imgA), hashgen.Fingerprint(imgB))
	fmt.Printf("fingerprint distance: %d of %d (threshold %d)\n",
		d, config.FingerprintBits, cfg.PHashThreshold)
	if d > cfg.PHashThreshold {
		fmt.Printf("%s not similar\n", red("✗"))
		return nil
	}

	// Borderline by fingerprint, settle with pixels.
	edge := types.NewSimilarityEdge(
		types.FileIdentity{Path: a, Size: 1},
		types.FileIdentity{Path: b, Size: 1},
		d, types.Unverified)
	if err := compare.NewVerifier(dec, cfg).Verify(ctx, &edge); err != nil {
		return err
	}

	if edge.Verification == types.PixelConfirmed {
		fmt.Printf("%s duplicates (pixel content matches)\n", green("✓"))
	} else {
		fmt.Printf("%s similar fingerprints but pixel content differs\n", red("✗"))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(compareCmd)
}
