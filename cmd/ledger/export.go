package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitledger/internal/auth"
	"github.com/mmynk/splitledger/internal/export"
)

func exportCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the settlement history to an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}

			n, err := export.New(a.engine, nil).Write(cmd.Context(), f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(out)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d settlement(s) to %s.\n", n, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "settlements.xlsx", "output file")
	return cmd
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "hash-password <password>",
		Short:       "Print the bcrypt hash to use as auth.password_hash",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"standalone": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
