package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/auditlens/internal/cache"
	"github.com/dshills/auditlens/internal/logging"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the enrichment cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all cached enrichments",
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, closeFn, err := openCacheAdmin()
		if err != nil {
			return err
		}
		defer closeFn()
		if admin == nil {
			fmt.Fprintln(os.Stdout, "Cache is disabled.")
			return nil
		}
		if err := admin.Clear(context.Background()); err != nil {
			exitCode = ExitRuntimeError
			return fmt.Errorf("clearing cache: %w", err)
		}
		fmt.Fprintln(os.Stdout, "Cache cleared.")
		return nil
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, closeFn, err := openCacheAdmin()
		if err != nil {
			return err
		}
		defer closeFn()
		if admin == nil {
			fmt.Fprintln(os.Stdout, "Cache is disabled.")
			return nil
		}
		stats, err := admin.Stats(context.Background())
		if err != nil {
			exitCode = ExitRuntimeError
			return fmt.Errorf("reading cache stats: %w", err)
		}
		return printJSON(stats)
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheShowCmd)
}

// openCacheAdmin returns nil when the cache is disabled.
func openCacheAdmin() (cache.Admin, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	a := &app{cfg: cfg, logger: logging.New(cfg.Log.Level, cfg.Log.Format)}
	closeFn := func() { a.Close(context.Background()) }

	c, err := a.openCache()
	if err != nil {
		exitCode = ExitRuntimeError
		return nil, nil, err
	}
	admin, ok := c.(cache.Admin)
	if !ok {
		return nil, closeFn, nil
	}
	return admin, closeFn, nil
}
