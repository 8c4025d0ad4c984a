package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/dashboard"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the operations dashboard",
		Long: `Starts the HTTP dashboard: state counts, unassigned and expired
records, raised alarms, and claim-heavy chains. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if port == 0 {
				port = cfg.Dashboard.Port
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return dashboard.Start(ctx, dashboard.StartOpts{
				DB:   gormDB,
				Port: port,
				Out:  cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "iris.yaml", "path to IRIS config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (defaults to config)")
	return cmd
}
