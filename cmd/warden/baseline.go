package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/warden/internal/config"
	"github.com/ShayCichocki/warden/internal/verify"
)

var baselineCmd = &cobra.Command{
	Use:   "baseline [show|capture|reset]",
	Short: "Show or reset the no-regression baseline",
	Long: `Manage the baseline of known failures.

Before the first run, Warden records which checks currently fail. During
verification, pre-existing failures are tolerated (safe to merge) while new
failures block a changeset as a regression.

Commands:
  warden baseline          # Show current baseline
  warden baseline show     # Show current baseline
  warden baseline capture  # Capture a fresh baseline
  warden baseline reset    # Delete the baseline`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subcommand := "show"
		if len(args) > 0 {
			subcommand = args[0]
		}

		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}

		switch subcommand {
		case "show":
			return showBaseline(cwd)
		case "capture":
			return captureBaseline(cmd.Context(), cwd)
		case "reset":
			return resetBaseline(cwd)
		default:
			return fmt.Errorf("unknown subcommand %q: use show, capture, or reset", subcommand)
		}
	},
}

func showBaseline(root string) error {
	baseline, err := verify.LoadBaseline(baselineFile(root))
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No baseline captured yet.")
			fmt.Println("Run 'warden baseline capture' to capture one.")
			return nil
		}
		return fmt.Errorf("load baseline: %w", err)
	}

	fmt.Printf("Baseline captured at: %s\n", baseline.CapturedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Known failures: %d\n", len(baseline.Failures))
	for _, f := range baseline.Failures {
		fmt.Printf("  - %s\n", f)
	}
	return nil
}

func captureBaseline(ctx context.Context, root string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("Capturing baseline...")
	baseline, err := verify.CaptureBaseline(ctx, gateChecks(cfg), root)
	if err != nil {
		return fmt.Errorf("capture baseline: %w", err)
	}

	if err := baseline.Save(baselineFile(root)); err != nil {
		return fmt.Errorf("save baseline: %w", err)
	}
	fmt.Printf("Baseline saved: %d known failures\n", len(baseline.Failures))
	return nil
}

func resetBaseline(root string) error {
	if err := os.Remove(baselineFile(root)); err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No baseline to delete.")
			return nil
		}
		return fmt.Errorf("delete baseline: %w", err)
	}
	fmt.Println("Baseline deleted.")
	return nil
}
