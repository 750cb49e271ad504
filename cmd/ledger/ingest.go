package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitledger/internal/intake"
)

func ingestCmd(a *app) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Admit every receipt file waiting in the intake directory",
		Long: `Reads *.json e-receipts from the intake directory in name order and admits
them into the ledger. Admitted and ignored files are moved to the processed
directory; duplicate, conflicting and malformed files to the rejected directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := intake.NewProcessor(a.engine, intake.Dirs{
				Intake:    a.cfg.IntakeDir,
				Processed: a.cfg.ProcessedDir,
				Rejected:  a.cfg.RejectedDir,
			})
			summary, err := p.Run(cmd.Context())
			if summary != nil && verbose {
				for _, r := range summary.Results {
					fmt.Fprintf(cmd.OutOrStdout(), "%-30s %-10s %s\n", r.File, r.Status, r.Reason)
				}
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "admitted %d, duplicates %d, ignored %d, rejected %d\n",
				summary.Admitted, summary.Duplicates, summary.Ignored, summary.Rejected())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the outcome of every file")
	return cmd
}
