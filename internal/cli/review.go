package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/auditlens/internal/output"
	"github.com/dshills/auditlens/internal/review"
)

// Review flags
var (
	flagFormat   string
	flagOut      string
	flagPending  bool
	flagLimit    int
	flagNoRedact bool
)

var reviewCmd = &cobra.Command{
	Use:   "review <finding-id>",
	Short: "Review a single finding",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := setupApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		res := a.orch.ReviewOne(ctx, args[0])
		if flagFormat == "json" || flagFormat == "jsonl" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				exitCode = ExitRuntimeError
				return err
			}
		} else {
			printResult(res)
		}
		if !res.OK() {
			exitCode = ExitFailures
		}
		return nil
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch [finding-id...]",
	Short: "Review many findings and print a batch report",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !flagPending {
			exitCode = ExitUsageError
			return fmt.Errorf("give finding ids or --pending")
		}
		if _, err := output.GetWriter(flagFormat); err != nil {
			exitCode = ExitUsageError
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := setupApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		ids := append([]string(nil), args...)
		if flagPending {
			pending, err := a.store.ListIDs(ctx, review.StatusPending, flagLimit)
			if err != nil {
				exitCode = ExitRuntimeError
				return fmt.Errorf("listing pending findings: %w", err)
			}
			ids = append(ids, pending...)
		}
		if len(ids) == 0 {
			fmt.Fprintln(os.Stderr, "No findings to review.")
			return nil
		}

		report := a.orch.ReviewBatch(ctx, ids)
		if err := output.WriteReport(&report, flagFormat, flagOut); err != nil {
			exitCode = ExitRuntimeError
			return fmt.Errorf("writing report: %w", err)
		}
		if report.HasFailures() {
			exitCode = ExitFailures
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{reviewCmd, batchCmd} {
		c.Flags().StringVar(&flagFormat, "format", "text", "Output format (text, json, jsonl)")
		c.Flags().BoolVar(&flagNoRedact, "no-redact", false, "Send finding text without secret redaction (use with caution)")
	}
	batchCmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
	batchCmd.Flags().BoolVar(&flagPending, "pending", false, "Also review every finding still pending review")
	batchCmd.Flags().IntVar(&flagLimit, "limit", 0, "Maximum number of pending findings (0 for no limit)")
}

// setupApp loads the config and wires the pipeline. Failures set the exit code.
func setupApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if flagNoRedact {
		cfg.Privacy.RedactSecrets = false
		fmt.Fprintln(os.Stderr, "WARNING: secret redaction is disabled")
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		exitCode = ExitRuntimeError
		return nil, err
	}
	return a, nil
}

func printResult(res review.Result) {
	if !res.OK() {
		fmt.Fprintf(os.Stdout, "%s: review failed (%s): %s\n", res.FindingID, res.Reason, res.Error)
		return
	}
	source := "provider"
	if res.Cached {
		source = "cache"
	}
	fmt.Fprintf(os.Stdout, "%s: reviewed by %s (%s tier, from %s)\n", res.FindingID, res.Model, res.Tier, source)
	if res.SeveritySuggestion != "" {
		line := "  Suggested severity: " + res.SeveritySuggestion
		if res.SeverityMismatch {
			line += " (differs from declared severity)"
		}
		fmt.Fprintln(os.Stdout, line)
	}
	if res.Degraded {
		fmt.Fprintln(os.Stdout, "  Note: the reply was not structured; raw text was kept")
	}
}
