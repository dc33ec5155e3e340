package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/medical-lab/internal/ingest"
)

var ingestDirCmd = &cobra.Command{
	Use:   "ingest-dir <root>",
	Short: "Ingest every supported file under a directory for one patient",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		patientID, _ := cmd.Flags().GetString("patient")
		if patientID == "" {
			return fmt.Errorf("--patient is required")
		}
		skipHidden, _ := cmd.Flags().GetBool("skip-hidden")
		watch, _ := cmd.Flags().GetBool("watch")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		w := ingest.NewWalker(a.pipeline, logger, ingest.WithConcurrency(concurrency))
		if watch {
			err := w.Watch(ctx, patientID, ingest.WatchConfig{
				Roots:       []string{args[0]},
				InitialScan: true,
				SkipHidden:  skipHidden,
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		results, stats, err := w.IngestDirectory(ctx, patientID, args[0], skipHidden)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Stats   ingest.DirStats `json:"stats"`
			Results []ingest.Result `json:"results"`
		}{stats, results})
	},
}

func init() {
	ingestDirCmd.Flags().String("patient", "", "patient id to file documents under")
	ingestDirCmd.Flags().Bool("skip-hidden", true, "skip dot files and dot directories")
	ingestDirCmd.Flags().Bool("watch", false, "keep running and ingest files as they appear")
	ingestDirCmd.Flags().Int("concurrency", 2, "files processed in parallel")
}
