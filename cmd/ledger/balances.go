package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/models"
)

func balancesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balances",
		Short: "Show balances, open issues and the recommended settlement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.engine.AggregateBalances(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(w, "Participant\tPaid\tShould pay\tNet\t")
			for _, row := range b.Rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", row.Participant.Name,
					row.ActuallyPaid.StringFixed(2), row.ShouldPay.StringFixed(2), row.Net.StringFixed(2))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if len(b.Issues) > 0 {
				fmt.Fprintf(out, "\n%d issue(s) left out of the totals:\n", len(b.Issues))
				for _, issue := range b.Issues {
					fmt.Fprintf(out, "  %-17s %s %s\n", issue.Kind, issue.Owner, issue.Detail)
				}
			}

			fmt.Fprintln(out)
			printRecommendation(cmd, b)
			return nil
		},
	}
}

func printRecommendation(cmd *cobra.Command, b *ledger.Balances) {
	out := cmd.OutOrStdout()
	if b.Recommendation == nil {
		if len(b.Settleable) > 0 {
			fmt.Fprintf(out, "Balances are even; %d entries can be closed with a 0.00 settlement.\n", len(b.Settleable))
		} else {
			fmt.Fprintln(out, "Nothing to settle.")
		}
		return
	}

	payer, _ := b.Row(b.Recommendation.PayerID)
	debtor, _ := b.Row(b.Recommendation.DebtorID)
	fmt.Fprintf(out, "%s pays %s %s (closes %d entries).\n",
		participantName(debtor.Participant), participantName(payer.Participant),
		b.Recommendation.Amount.StringFixed(2), len(b.Settleable))
	fmt.Fprintf(out, "Confirm with: ledger settle --payer %q --debtor %q --amount %s\n",
		payer.Participant.Name, debtor.Participant.Name, b.Recommendation.Amount.StringFixed(2))
}

func participantName(p models.Participant) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}
