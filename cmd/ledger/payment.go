package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func paymentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Map payment names printed on receipts to participants",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "assign <payment-name> <participant>",
		Short: "Record who owns a payment method",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.engine.AssignPaymentName(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%q now belongs to %s.\n", args[0], args[1])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "ignore <payment-name>",
		Short: "Skip future receipts paid with this payment method",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.engine.IgnorePaymentName(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Receipts paid with %q will be ignored.\n", args[0])
			return nil
		},
	})

	return cmd
}
