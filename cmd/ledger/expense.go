package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mmynk/splitledger/internal/ledger"
)

func expenseCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expense",
		Short: "Manage expenses without a receipt",
	}
	cmd.AddCommand(expenseAddCmd(a))
	return cmd
}

func expenseAddCmd(a *app) *cobra.Command {
	var date, description, amount, payer, category, shares string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a manual expense",
		Long: `Adds an expense entered by hand. It counts towards the balances right away.

Example:
  ledger expense add --description "Electricity" --amount 120.00 --payer Ben --shares Anna:50,Ben:50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			total, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", amount, err)
			}
			parsed, err := parseShares(shares)
			if err != nil {
				return err
			}

			expense, err := a.engine.AddManualExpense(cmd.Context(), ledger.ManualExpenseInput{
				Date:        date,
				Description: description,
				TotalCost:   total,
				PayerID:     payer,
				Category:    category,
				Shares:      parsed,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Expense %s added: %s %s.\n", expense.ID, expense.Description, expense.TotalCost.StringFixed(2))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", time.Now().Format("2006-01-02"), "date as YYYY-MM-DD")
	cmd.Flags().StringVar(&description, "description", "", "what was paid for")
	cmd.Flags().StringVar(&amount, "amount", "", "total cost, e.g. 120.00")
	cmd.Flags().StringVar(&payer, "payer", "", "participant who paid (name or ID)")
	cmd.Flags().StringVar(&category, "category", "", "category (default Other)")
	cmd.Flags().StringVar(&shares, "shares", "", "shares as participant:percentage,...")
	for _, name := range []string{"description", "amount", "payer", "shares"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
