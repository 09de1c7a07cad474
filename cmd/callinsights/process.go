package main

import (
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var processConfirm bool

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Extract one recording; insert it only with --confirm",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc, err := initServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		out := svc.Processor.ProcessOne(ctx, args[0])
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return eris.Wrap(err, "encode outcome")
		}
		if !out.Succeeded() {
			return eris.Errorf("processing %s failed: %s", args[0], out.Error)
		}
		if !processConfirm {
			return nil
		}
		if err := svc.Warehouse.InsertOne(ctx, out.Record.Row()); err != nil {
			return err
		}
		appLog.WithField("customer_id", out.Record.CustomerID).Info("record inserted")
		return nil
	},
}

func init() {
	processCmd.Flags().BoolVar(&processConfirm, "confirm", false, "insert the extracted record into the warehouse")
	rootCmd.AddCommand(processCmd)
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}
