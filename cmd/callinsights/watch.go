package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"call-insights-go/internal/watch"
)

var (
	watchDir      string
	watchBackfill bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Batch recordings as they land in a spool directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dir := watchDir
		if dir == "" {
			dir = cfg.Watch.Dir
		}
		if dir == "" {
			return eris.New("watch directory not set (--dir or WATCH_DIR)")
		}

		svc, err := initServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		w := watch.New(dir, secs(cfg.Watch.SettleSecs), svc.Orchestrator, appLog)
		if watchBackfill {
			if err := w.Backfill(); err != nil {
				return err
			}
		}
		return w.Run(ctx)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "spool directory (default from config)")
	watchCmd.Flags().BoolVar(&watchBackfill, "backfill", true, "process files already in the directory on start")
	rootCmd.AddCommand(watchCmd)
}
