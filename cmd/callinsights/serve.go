package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"call-insights-go/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP upload, batch and metrics server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc, err := initServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := server.New(server.Deps{
			Processor: svc.Processor,
			Batches:   svc.Orchestrator,
			Warehouse: svc.Warehouse,
			Metrics:   svc.Metrics,
		}, server.Options{
			AudioDir:  cfg.Server.AudioDir,
			UploadDir: cfg.Server.UploadDir,
		}, appLog)
		return srv.ListenAndServe(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
