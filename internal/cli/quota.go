package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/auditlens/internal/logging"
	"github.com/dshills/auditlens/internal/quota"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Inspect or reset the daily call budget",
}

var quotaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show today's quota usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := quotaApp()
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		state, err := a.quota.Snapshot(context.Background())
		if err != nil {
			exitCode = ExitRuntimeError
			return err
		}
		if a.cfg.Quota.Backend == "memory" {
			fmt.Fprintln(os.Stderr, "Note: the memory quota backend only counts calls made by this process.")
		}
		return printJSON(struct {
			quota.State
			Remaining int `json:"remaining"`
		}{state, state.Remaining()})
	},
}

var quotaResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset today's call counter",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := quotaApp()
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		if err := a.quota.Reset(context.Background()); err != nil {
			exitCode = ExitRuntimeError
			return err
		}
		fmt.Fprintln(os.Stdout, "Quota reset.")
		return nil
	},
}

func init() {
	quotaCmd.AddCommand(quotaShowCmd)
	quotaCmd.AddCommand(quotaResetCmd)
}

// quotaApp wires only the quota manager.
func quotaApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logging.New(cfg.Log.Level, cfg.Log.Format)}
	if a.quota, err = a.openQuota(); err != nil {
		exitCode = ExitRuntimeError
		return nil, err
	}
	return a, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}
