package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/affiliate-scout/internal/importer"
)

var (
	importFile       string
	importOwnerID    string
	importOwnerEmail string
	importCharset    string
	importDrain      bool
	importJobID      string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Queue a CSV or XLSX file of campaigns for import",
	Long:  "Parses the file, queues its rows under a new job and prints the job ID. With --drain the job is processed to completion in this process; otherwise the import workflow is started when Temporal is configured.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		f, err := os.Open(importFile)
		if err != nil {
			return eris.Wrap(err, "open import file")
		}
		defer f.Close() //nolint:errcheck

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		jobID, err := env.Importer.Enqueue(ctx, importOwnerID, importOwnerEmail, f, importer.FormatFromName(importFile), importCharset)
		if err != nil {
			return eris.Wrap(err, "enqueue import")
		}
		zap.L().Info("import queued", zap.String("job_id", jobID), zap.String("file", importFile))

		switch {
		case importDrain:
			res, err := env.Importer.Drain(ctx, jobID)
			if err != nil {
				return eris.Wrap(err, "drain import")
			}
			return printJSON(res)
		case env.Starter != nil:
			wfID, err := env.Starter.StartImport(ctx, jobID)
			if err != nil {
				return err
			}
			return printJSON(map[string]string{"job_id": jobID, "workflow_id": wfID})
		default:
			return printJSON(map[string]string{"job_id": jobID})
		}
	},
}

var importProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Process one batch of a queued import job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Importer.ProcessBatch(ctx, importJobID)
		if err != nil {
			return eris.Wrap(err, "process import batch")
		}
		return printJSON(res)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to the CSV or XLSX file (required)")
	importCmd.Flags().StringVar(&importOwnerID, "owner-id", "", "owner of the created campaigns (required)")
	importCmd.Flags().StringVar(&importOwnerEmail, "owner-email", "", "address for the import summary")
	importCmd.Flags().StringVar(&importCharset, "charset", "", "CSV character set (default from config)")
	importCmd.Flags().BoolVar(&importDrain, "drain", false, "process every batch before exiting")
	_ = importCmd.MarkFlagRequired("file")
	_ = importCmd.MarkFlagRequired("owner-id")

	importProcessCmd.Flags().StringVar(&importJobID, "job", "", "import job ID (required)")
	_ = importProcessCmd.MarkFlagRequired("job")

	importCmd.AddCommand(importProcessCmd)
	rootCmd.AddCommand(importCmd)
}
