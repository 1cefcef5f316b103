package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/auditlens/internal/config"
	"github.com/dshills/auditlens/internal/server"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve review triggers over HTTP",
	Long: "Serve exposes single and batch review triggers and the quota over HTTP. " +
		"Escalation keywords, notification recipients and the daily call limit " +
		"are reloaded when the config file changes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := setupApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		path, err := configPath()
		if err != nil {
			return err
		}
		if _, statErr := os.Stat(path); statErr == nil {
			if err := config.Watch(ctx, path, a.logger, a.applyReload); err != nil {
				a.logger.Warn("config watch disabled", "error", err)
			}
		}

		addr := a.cfg.Server.Addr
		if flagAddr != "" {
			addr = flagAddr
		}
		srv := server.New(a.orch, a.quota, a.store, a.logger)
		if err := srv.Run(ctx, addr); err != nil {
			exitCode = ExitRuntimeError
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address (default: server.addr from config)")
}
