package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func staticShareCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "static-share",
		Short: "Manage default splits for product names",
	}
	cmd.AddCommand(staticShareSetCmd(a), staticShareHistoryCmd(a))
	return cmd
}

func staticShareSetCmd(a *app) *cobra.Command {
	var shares, reason, by string

	cmd := &cobra.Command{
		Use:   "set <item-name>",
		Short: "Set the default split of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseShares(shares)
			if err != nil {
				return err
			}
			share, err := a.engine.SetStaticShare(cmd.Context(), args[0], parsed, by, reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Static share for %q updated.\n", share.ItemName)
			return nil
		},
	}

	cmd.Flags().StringVar(&shares, "shares", "", "shares as participant:percentage,...")
	cmd.Flags().StringVar(&reason, "reason", "", "why the split changed")
	cmd.Flags().StringVar(&by, "by", os.Getenv("USER"), "operator recorded in the history")
	_ = cmd.MarkFlagRequired("shares")
	return cmd
}

func staticShareHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history <item-name>",
		Short: "Show how the default split of a product changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			changes, err := a.engine.StaticShareHistory(ctx, args[0])
			if err != nil {
				return err
			}
			ps, err := a.engine.Participants(ctx)
			if err != nil {
				return err
			}
			names := make(map[string]string, len(ps))
			for _, p := range ps {
				names[p.ID] = p.Name
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, c := range changes {
				old := "-"
				if c.Old != nil {
					old = c.Old.String() + "%"
				}
				fmt.Fprintf(w, "%s\t%s\t%s -> %s%%\t%s\t%s\n",
					time.Unix(c.ChangedAt, 0).Format("2006-01-02 15:04"), names[c.ParticipantID], old, c.New.String(), c.ChangedBy, c.Reason)
			}
			return w.Flush()
		},
	}
}
