package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/auditlens/internal/providers"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Provider and model management",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured providers and their tier models",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		names := make([]string, 0, len(cfg.Providers))
		for name := range cfg.Providers {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			p := cfg.Providers[name]
			marker := ""
			if name == cfg.Provider {
				marker = " (active)"
			}
			fmt.Fprintf(os.Stdout, "%s%s:\n", name, marker)
			fmt.Fprintf(os.Stdout, "  endpoint: %s\n", p.Endpoint)
			fmt.Fprintf(os.Stdout, "  cheap:    %s\n", p.Models.Cheap)
			fmt.Fprintf(os.Stdout, "  premium:  %s\n", p.Models.Premium)
			fmt.Fprintln(os.Stdout)
		}
		return nil
	},
}

var modelsDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Send one small request to the active provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, _ := cfg.ActiveProvider()
		fmt.Fprintf(os.Stdout, "Checking %s (%s)...\n", cfg.Provider, p.Models.Cheap)

		client, err := providers.New(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
			exitCode = ExitConfigError
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Doctor calls bypass the daily quota.
		_, err = client.Send(ctx, providers.Request{
			Model:     p.Models.Cheap,
			Prompt:    "Respond with exactly: ok",
			MaxTokens: 10,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}

		fmt.Fprintf(os.Stdout, "OK: %s is configured and responding\n", cfg.Provider)
		return nil
	},
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsDoctorCmd)
}
