package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/models"
)

// IssueKind classifies an entry that was left out of the balance totals.
type IssueKind string

const (
	IssueUnallocatedItem IssueKind = "unallocated_item"
	IssueInvalidShares   IssueKind = "invalid_shares"
	IssueUnassignedPayer IssueKind = "unassigned_payer"
)

// Issue flags a receipt or manual expense that needs operator attention.
// Entries with issues are excluded from the totals and are not closed by Finalize.
type Issue struct {
	Kind     IssueKind
	Owner    models.OwnerRef
	ItemID   string
	ItemName string
	Detail   string
}

// BalanceRow is the balance of one primary participant.
type BalanceRow struct {
	Participant  models.Participant
	ActuallyPaid decimal.Decimal
	ShouldPay    decimal.Decimal
	Net          decimal.Decimal
}

// Balances is the aggregated view of every unsettled receipt and manual expense.
type Balances struct {
	Rows           []BalanceRow
	Recommendation *calculator.Transfer
	Issues         []Issue

	// Settleable lists the entries a finalize would close.
	Settleable []models.OwnerRef
}

// Row returns the balance row of a participant.
func (b *Balances) Row(participantID string) (BalanceRow, bool) {
	for _, r := range b.Rows {
		if r.Participant.ID == participantID {
			return r, true
		}
	}
	return BalanceRow{}, false
}

// Allocate splits one line item between participants: explicit shares first,
// then the static share for the item's name.
func (e *Engine) Allocate(ctx context.Context, itemID string) (map[string]decimal.Decimal, error) {
	item, err := e.store.GetLineItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	ps, err := e.store.ListParticipants(ctx)
	if err != nil {
		return nil, err
	}
	return e.allocateItem(ctx, *item, ps)
}

func (e *Engine) allocateItem(ctx context.Context, item models.LineItem, ps []models.Participant) (map[string]decimal.Decimal, error) {
	inputs, err := e.sharesFor(ctx, item, ps)
	if err != nil {
		return nil, err
	}
	allocation, err := calculator.Allocate(item.TotalAfterDiscount, inputs)
	if err != nil {
		return nil, fmt.Errorf("item %q (%s): %w", item.Name, item.ID, err)
	}
	return allocation, nil
}

// sharesFor returns the shares to apply to item, ordered by participant position.
func (e *Engine) sharesFor(ctx context.Context, item models.LineItem, ps []models.Participant) ([]calculator.ShareInput, error) {
	shares, err := e.store.GetSharesForItem(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if len(shares) > 0 {
		inputs := make([]calculator.ShareInput, 0, len(shares))
		for _, s := range shares {
			inputs = append(inputs, calculator.ShareInput{ParticipantID: s.ParticipantID, Percentage: s.Percentage})
		}
		return inputs, nil
	}

	static, err := e.store.GetStaticShare(ctx, item.Name)
	if err != nil {
		return nil, err
	}
	if static == nil || len(static.Percentages) == 0 {
		return nil, fmt.Errorf("%w: %q (%s)", ErrUnallocatedItem, item.Name, item.ID)
	}
	return orderedShares(static.Percentages, ps), nil
}

// orderedShares turns a participant->percentage map into shares sorted by
// participant position; unknown participants sort last by ID.
func orderedShares(percentages map[string]decimal.Decimal, ps []models.Participant) []calculator.ShareInput {
	position := make(map[string]int, len(ps))
	for _, p := range ps {
		position[p.ID] = p.Position
	}

	inputs := make([]calculator.ShareInput, 0, len(percentages))
	for id, pct := range percentages {
		inputs = append(inputs, calculator.ShareInput{ParticipantID: id, Percentage: pct})
	}
	sort.Slice(inputs, func(i, j int) bool {
		pi, iok := position[inputs[i].ParticipantID]
		pj, jok := position[inputs[j].ParticipantID]
		if iok != jok {
			return iok
		}
		if pi != pj {
			return pi < pj
		}
		return inputs[i].ParticipantID < inputs[j].ParticipantID
	})
	return inputs
}

// AggregateBalances computes every primary participant's balance from the
// unsettled receipts and manual expenses, together with the transfer that
// settles them. It re-derives everything from storage on each call.
func (e *Engine) AggregateBalances(ctx context.Context) (*Balances, error) {
	ps, err := e.store.ListParticipants(ctx)
	if err != nil {
		return nil, err
	}
	open, err := e.store.ListUnsettledItems(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Participant, len(ps))
	for _, p := range ps {
		byID[p.ID] = p
	}

	result := &Balances{}
	var entries []calculator.EntryForBalance

	add := func(owner models.OwnerRef, payerID string, items []models.LineItem) error {
		if payerID == "" {
			result.Issues = append(result.Issues, Issue{
				Kind:   IssueUnassignedPayer,
				Owner:  owner,
				Detail: "payment name is not assigned to a participant",
			})
			return nil
		}
		payer, ok := byID[payerID]
		if !ok {
			return fmt.Errorf("%w: payer %s of %s", ErrUnknownParticipant, payerID, owner)
		}
		if payer.Excluded {
			result.Settleable = append(result.Settleable, owner)
			return nil
		}

		entry := calculator.EntryForBalance{PayerID: payerID}
		var issues []Issue
		for _, item := range items {
			allocation, err := e.allocateItem(ctx, item, ps)
			switch {
			case errors.Is(err, ErrUnallocatedItem):
				issues = append(issues, Issue{Kind: IssueUnallocatedItem, Owner: owner, ItemID: item.ID, ItemName: item.Name, Detail: err.Error()})
				continue
			case errors.Is(err, ErrShareSumInvalid):
				issues = append(issues, Issue{Kind: IssueInvalidShares, Owner: owner, ItemID: item.ID, ItemName: item.Name, Detail: err.Error()})
				continue
			case err != nil:
				return err
			}
			entry.Items = append(entry.Items, calculator.ItemForBalance{Total: item.TotalAfterDiscount, Allocation: allocation})
		}

		if len(issues) > 0 {
			result.Issues = append(result.Issues, issues...)
			return nil
		}
		entries = append(entries, entry)
		result.Settleable = append(result.Settleable, owner)
		return nil
	}

	for _, r := range open.Receipts {
		if err := add(models.ReceiptRef(r.ID), r.PayerID, r.Items); err != nil {
			return nil, err
		}
	}
	for _, m := range open.ManualExpenses {
		if err := add(models.ManualExpenseRef(m.ID), m.PayerID, []models.LineItem{m.Item}); err != nil {
			return nil, err
		}
	}

	rows, err := calculator.CalculateBalances(ps, entries)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result.Rows = append(result.Rows, BalanceRow{
			Participant:  byID[row.ParticipantID],
			ActuallyPaid: row.ActuallyPaid,
			ShouldPay:    row.ShouldPay,
			Net:          row.Net,
		})
	}
	result.Recommendation = calculator.RecommendTransfer(rows)

	counts := map[IssueKind]int{IssueUnallocatedItem: 0, IssueInvalidShares: 0, IssueUnassignedPayer: 0}
	for _, issue := range result.Issues {
		counts[issue.Kind]++
	}
	for kind, n := range counts {
		metrics.OpenIssues.WithLabelValues(string(kind)).Set(float64(n))
	}

	return result, nil
}

// RecommendSettlement returns the transfer that settles the current balances,
// or nil when nobody owes anything.
func (e *Engine) RecommendSettlement(ctx context.Context) (*calculator.Transfer, error) {
	balances, err := e.AggregateBalances(ctx)
	if err != nil {
		return nil, err
	}
	return balances.Recommendation, nil
}
