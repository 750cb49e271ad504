package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitledger/internal/calculator"
)

func uncountedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "uncounted",
		Short: "List receipts whose shares still need review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			receipts, err := a.engine.UncountedReceipts(cmd.Context())
			if err != nil {
				return err
			}
			if len(receipts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to count.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, r := range receipts {
				fmt.Fprintf(w, "%s\t%s %s\t%s\t%s %s\n", r.ID, r.Date, r.Time, r.Store.Name, r.FinalPrice.StringFixed(2), r.Currency)
				for _, item := range r.Items {
					fmt.Fprintf(w, "  %s\t%s\t%s x\t%s\n", item.ID, item.Name, item.Quantity.String(), item.TotalAfterDiscount.StringFixed(2))
				}
			}
			return w.Flush()
		},
	}
}

func countCmd(a *app) *cobra.Command {
	var (
		itemShares []string
		rest       string
	)

	cmd := &cobra.Command{
		Use:   "count <receipt-id>",
		Short: "Record the shares of a receipt and mark it counted",
		Long: `Records who shares each line item of a receipt. Items without --item shares
use --rest, and items with neither fall back to their static share.

Example:
  ledger count 3f2a... --item 91c0...=Anna:100 --rest Anna:50,Ben:50`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			receiptID := args[0]
			shares := make(map[string][]calculator.ShareInput)
			for _, arg := range itemShares {
				itemID, s, err := parseItemShares(arg)
				if err != nil {
					return err
				}
				shares[itemID] = s
			}

			if rest != "" {
				restShares, err := parseShares(rest)
				if err != nil {
					return err
				}
				receipt, err := a.engine.Receipt(cmd.Context(), receiptID)
				if err != nil {
					return err
				}
				for _, item := range receipt.Items {
					if _, ok := shares[item.ID]; !ok {
						shares[item.ID] = restShares
					}
				}
			}

			if err := a.engine.CountReceipt(cmd.Context(), receiptID, shares); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Receipt %s counted.\n", receiptID)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&itemShares, "item", nil, "item shares as item_id=participant:percentage,... (repeatable)")
	cmd.Flags().StringVar(&rest, "rest", "", "shares for every item not given with --item")
	return cmd
}
