package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"call-insights-go/internal/config"
	"call-insights-go/internal/logger"
)

var (
	cfg    *config.Config
	appLog *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:           "callinsights",
	Short:         "Extract structured complaint data from telecom call recordings",
	Long:          "Uploads call audio to object storage, asks a multimodal model for a transcript and complaint fields, and writes the results to the warehouse.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load() // loads .env

		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		appLog = logger.NewWithOptions(logger.Options{
			Environment: cfg.Log.Environment,
			Level:       cfg.Log.Level,
		})
		appLog.WithField("command", cmd.Name()).Debug("configuration loaded")
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		l := appLog
		if l == nil {
			l = logger.New()
		}
		l.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
