package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a patient's documents to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		patientID, _ := cmd.Flags().GetString("patient")
		outPath, _ := cmd.Flags().GetString("out")
		if patientID == "" {
			return fmt.Errorf("--patient is required")
		}
		from, err := dateFlag(cmd, "from")
		if err != nil {
			return err
		}
		to, err := dateFlag(cmd, "to")
		if err != nil {
			return err
		}

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		data, err := a.exporter.ExportPatientXLSX(ctx, patientID, from, to)
		if err != nil {
			return err
		}
		if outPath == "" {
			outPath = fmt.Sprintf("patient-%s-documents.xlsx", patientID)
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", outPath, err)
		}
		logger.Info("export.done", "patient_id", patientID, "path", outPath, "bytes", len(data))
		return nil
	},
}

func dateFlag(cmd *cobra.Command, name string) (*time.Time, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("--%s must be YYYY-MM-DD: %w", name, err)
	}
	return &t, nil
}

func init() {
	exportCmd.Flags().String("patient", "", "patient id")
	exportCmd.Flags().StringP("out", "o", "", "output file (default patient-<id>-documents.xlsx)")
	exportCmd.Flags().String("from", "", "first day to include, YYYY-MM-DD")
	exportCmd.Flags().String("to", "", "last day to include, YYYY-MM-DD")
}
