package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mmynk/splitledger/internal/ledger"
)

func settleCmd(a *app) *cobra.Command {
	var (
		payer, debtor, amount, note, by string
	)

	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Finalize the recommended settlement",
		Long: `Records the settlement and closes every settleable receipt and expense.
--payer is the participant who is owed, --debtor the one who pays. All three
values must match the current recommendation from "ledger balances".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			amt, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", amount, err)
			}
			p, err := a.engine.ResolveParticipant(ctx, payer)
			if err != nil {
				return err
			}
			d, err := a.engine.ResolveParticipant(ctx, debtor)
			if err != nil {
				return err
			}

			settlement, err := a.engine.Finalize(ctx, ledger.FinalizeRequest{
				PayerID:     p.ID,
				DebtorID:    d.ID,
				Amount:      amt,
				Note:        note,
				FinalizedBy: by,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Settlement %s recorded: %s pays %s %s.\n",
				settlement.ID, d.Name, p.Name, settlement.Amount.StringFixed(2))
			return nil
		},
	}

	cmd.Flags().StringVar(&payer, "payer", "", "participant who is owed (name or ID)")
	cmd.Flags().StringVar(&debtor, "debtor", "", "participant who pays (name or ID)")
	cmd.Flags().StringVar(&amount, "amount", "", "amount, e.g. 30.00")
	cmd.Flags().StringVar(&note, "note", "", "free-text note")
	cmd.Flags().StringVar(&by, "by", os.Getenv("USER"), "operator recorded as finalizer")
	_ = cmd.MarkFlagRequired("payer")
	_ = cmd.MarkFlagRequired("debtor")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func settlementsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "settlements [settlement-id]",
		Short: "List settlements or show one in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ps, err := a.engine.Participants(ctx)
			if err != nil {
				return err
			}
			names := make(map[string]string, len(ps))
			for _, p := range ps {
				names[p.ID] = p.Name
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			if len(args) == 0 {
				settlements, err := a.engine.ListSettlements(ctx)
				if err != nil {
					return err
				}
				for _, s := range settlements {
					fmt.Fprintf(w, "%s\t%s\t%s -> %s\t%s\t%s\n", s.ID,
						time.Unix(s.FinalizedAt, 0).Format("2006-01-02 15:04"),
						names[s.DebtorID], names[s.PayerID], s.Amount.StringFixed(2), s.Note)
				}
				return w.Flush()
			}

			detail, err := a.engine.SettlementDetail(ctx, args[0])
			if err != nil {
				return err
			}
			s := detail.Settlement
			fmt.Fprintf(w, "Settlement\t%s\n", s.ID)
			fmt.Fprintf(w, "Finalized\t%s by %s\n", time.Unix(s.FinalizedAt, 0).Format("2006-01-02 15:04"), s.FinalizedBy)
			fmt.Fprintf(w, "Transfer\t%s -> %s %s\n", names[s.DebtorID], names[s.PayerID], s.Amount.StringFixed(2))
			if s.Note != "" {
				fmt.Fprintf(w, "Note\t%s\n", s.Note)
			}
			for _, r := range detail.Receipts {
				fmt.Fprintf(w, "  receipt\t%s\t%s #%s\t%s\t%s\n", r.Date, r.Store.Name, r.Number, r.FinalPrice.StringFixed(2), names[r.PayerID])
			}
			for _, m := range detail.ManualExpenses {
				fmt.Fprintf(w, "  expense\t%s\t%s\t%s\t%s\n", m.Date, m.Description, m.TotalCost.StringFixed(2), names[m.PayerID])
			}
			return w.Flush()
		},
	}
}
