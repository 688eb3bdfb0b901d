package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/storechat/admission/internal/app"
	"github.com/storechat/admission/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admission API",
	Long: `Start the admission API. Migrations are applied on startup.

Examples:
  admission serve
  admission serve --config /etc/admission/config.yaml`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return app.RunServer(ctx, config.AppConfig{ConfigPath: cfgFile})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return app.Migrate(cmd.Context(), config.AppConfig{ConfigPath: cfgFile})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}
