package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/medical-lab/internal/pipeline"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract text from one file and print the result as JSON",
	Long: `Extract text from one file and print the result as JSON.
With --patient the document is also stored, as an upload would be.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		var out any
		patientID, _ := cmd.Flags().GetString("patient")
		if patientID != "" {
			resp, err := a.pipeline.Ingest(ctx, pipeline.IngestRequest{
				Data:      data,
				Filename:  filepath.Base(args[0]),
				PatientID: patientID,
			})
			if err != nil {
				return err
			}
			out = resp
		} else {
			res := a.extractor.Extract(ctx, data, "", filepath.Base(args[0]))
			out = res
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	extractCmd.Flags().String("patient", "", "store the result for this patient id")
}
