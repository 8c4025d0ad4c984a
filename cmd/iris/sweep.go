package main

import (
	"fmt"

	"github.com/AjuntamentdeBarcelona/iris-sub001/internal/deadlines"
	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	var (
		configPath string
		daemon     bool
		cronExpr   string
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the deadline sweep",
		Long: `Stamps answer deadlines on records that are missing them, raises
alarms on records approaching their limit, and reports expired ones.
With --daemon, keeps running on the configured cron schedule until
interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, configPath, daemon, cronExpr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "iris.yaml", "path to IRIS config file")
	cmd.Flags().BoolVarP(&daemon, "daemon", "d", false, "keep running on the cron schedule")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "override the configured cron schedule")
	return cmd
}

func runSweep(cmd *cobra.Command, configPath string, daemon bool, cronExpr string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	opts := deadlineOpts(cfg)

	if daemon {
		if cronExpr == "" {
			cronExpr = cfg.Sweep.Cron
		}
		fmt.Fprintf(out, "Deadline sweep daemon starting (schedule %q)\n", cronExpr)
		return deadlines.RunDaemon(cmd.Context(), gormDB, cronExpr, opts, out)
	}

	result, err := deadlines.Sweep(gormDB, opts, out)
	if err != nil {
		return err
	}

	announcer, err := buildAnnouncer(cfg, gormDB)
	if err != nil {
		return err
	}
	if announcer != nil {
		if err := announcer.NotifyDeadlineAlert(result.NearExpire, result.Expired); err != nil {
			fmt.Fprintf(out, "Deadline alert notification failed: %v\n", err)
		}
	}

	fmt.Fprintf(out, "Sweep complete: %d stamped, %d near expiry, %d expired\n",
		result.Stamped, result.NearExpire, result.Expired)
	return nil
}
