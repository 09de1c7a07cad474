package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"call-insights-go/internal/dataset"
	"call-insights-go/internal/pipeline"
	"call-insights-go/internal/types"
)

var (
	batchManifest string
	batchReport   string
	batchFormat   string
)

var batchCmd = &cobra.Command{
	Use:   "batch [file|dir]...",
	Short: "Process a batch of recordings and insert the results in one write",
	Long:  "Processes every .wav/.mp3 named on the command line, found in the given directories, or listed in an .xlsx manifest. With no input the configured audio directory is used.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if batchFormat != "json" && batchFormat != "yaml" {
			return eris.Errorf("unknown --format %q", batchFormat)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		paths, err := collectInputs(args, batchManifest, cfg.Server.AudioDir)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return eris.New("no audio files found")
		}

		svc, err := initServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		res, runErr := svc.Orchestrator.RunBatch(ctx, paths)

		if batchReport != "" {
			if err := dataset.WriteReport(batchReport, res); err != nil {
				return err
			}
			appLog.WithField("report", batchReport).Info("report written")
		}
		if err := printResult(cmd.OutOrStdout(), res, batchFormat); err != nil {
			return err
		}
		return runErr
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchManifest, "manifest", "", "xlsx manifest listing recording paths")
	batchCmd.Flags().StringVar(&batchReport, "report", "", "write an xlsx report to this path")
	batchCmd.Flags().StringVar(&batchFormat, "format", "json", "output format: json or yaml")
	rootCmd.AddCommand(batchCmd)
}

// collectInputs expands args and the manifest into audio file paths. With
// neither, fallbackDir is listed.
func collectInputs(args []string, manifest, fallbackDir string) ([]string, error) {
	var paths []string
	if manifest != "" {
		listed, err := dataset.LoadManifest(manifest)
		if err != nil {
			return nil, err
		}
		paths = append(paths, listed...)
	}
	if len(args) == 0 && manifest == "" {
		args = []string{fallbackDir}
	}
	for _, a := range args {
		fi, err := os.Stat(a)
		if err != nil {
			return nil, eris.Wrapf(err, "input %s", a)
		}
		if !fi.IsDir() {
			paths = append(paths, a)
			continue
		}
		files, err := pipeline.ListAudioFiles(a)
		if err != nil {
			return nil, err
		}
		paths = append(paths, files...)
	}
	return paths, nil
}

// printResult writes res using its JSON field names in either format.
func printResult(w io.Writer, res types.BatchResult, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(res), "encode result")
	}
	b, err := json.Marshal(res)
	if err != nil {
		return eris.Wrap(err, "encode result")
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return eris.Wrap(err, "decode result")
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return eris.Wrap(err, "encode yaml")
	}
	_, err = fmt.Fprint(w, string(out))
	return err
}
