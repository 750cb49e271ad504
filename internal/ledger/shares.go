package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/models"
)

// ManualExpenseTaxType marks the synthetic line item of a manual expense.
const ManualExpenseTaxType = "M"

// resolveShares replaces participant names with IDs and validates the result.
func resolveShares(shares []calculator.ShareInput, ps []models.Participant) ([]calculator.ShareInput, error) {
	out := make([]calculator.ShareInput, len(shares))
	for i, s := range shares {
		p, ok := findParticipant(ps, s.ParticipantID)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownParticipant, s.ParticipantID)
		}
		out[i] = calculator.ShareInput{ParticipantID: p.ID, Percentage: s.Percentage}
	}
	if err := calculator.ValidateShares(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Receipt returns a stored receipt with its line items.
func (e *Engine) Receipt(ctx context.Context, receiptID string) (*models.Receipt, error) {
	return e.store.GetReceipt(ctx, receiptID)
}

// UncountedReceipts lists receipts whose shares still need review.
func (e *Engine) UncountedReceipts(ctx context.Context) ([]models.Receipt, error) {
	return e.store.ListUncountedReceipts(ctx)
}

// CountReceipt stores the reviewed shares of a receipt and marks it counted.
// shares maps item ID to that item's shares. Items left out must have a static
// share for their name; otherwise the call fails with ErrUnallocatedItem.
func (e *Engine) CountReceipt(ctx context.Context, receiptID string, shares map[string][]calculator.ShareInput) error {
	receipt, err := e.store.GetReceipt(ctx, receiptID)
	if err != nil {
		return err
	}
	if receipt.Settled {
		return fmt.Errorf("receipt %s: %w", receiptID, ErrAlreadySettled)
	}

	ps, err := e.store.ListParticipants(ctx)
	if err != nil {
		return err
	}

	owned := make(map[string]bool, len(receipt.Items))
	for _, item := range receipt.Items {
		owned[item.ID] = true
	}
	for itemID := range shares {
		if !owned[itemID] {
			return fmt.Errorf("%w: item %s is not on receipt %s", ErrInvalidInput, itemID, receiptID)
		}
	}

	var rows []models.Share
	for _, item := range receipt.Items {
		itemShares, ok := shares[item.ID]
		if !ok || len(itemShares) == 0 {
			static, err := e.store.GetStaticShare(ctx, item.Name)
			if err != nil {
				return err
			}
			if static == nil {
				return fmt.Errorf("%w: %q (%s)", ErrUnallocatedItem, item.Name, item.ID)
			}
			continue
		}

		resolved, err := resolveShares(itemShares, ps)
		if err != nil {
			return fmt.Errorf("item %q: %w", item.Name, err)
		}
		for _, s := range resolved {
			rows = append(rows, models.Share{ItemID: item.ID, ParticipantID: s.ParticipantID, Percentage: s.Percentage})
		}
	}

	if err := e.store.CountReceipt(ctx, receiptID, rows); err != nil {
		return err
	}
	slog.Info("Receipt counted", "receipt_id", receiptID, "items", len(receipt.Items), "explicit_shares", len(rows))
	return nil
}

// ManualExpenseInput describes an expense entered by hand.
type ManualExpenseInput struct {
	// Date is YYYY-MM-DD.
	Date        string
	Description string
	TotalCost   decimal.Decimal

	// PayerID is a participant ID or name.
	PayerID  string
	Category string
	Shares   []calculator.ShareInput
}

// AddManualExpense stores an expense together with a synthetic line item
// carrying its shares. The expense is counted on creation.
func (e *Engine) AddManualExpense(ctx context.Context, in ManualExpenseInput) (*models.ManualExpense, error) {
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	if _, err := time.Parse("2006-01-02", in.Date); err != nil {
		return nil, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidInput, in.Date)
	}
	if !in.TotalCost.IsPositive() || !in.TotalCost.Equal(in.TotalCost.Round(2)) {
		return nil, fmt.Errorf("%w: total cost %s must be a positive amount in cents", ErrInvalidInput, in.TotalCost)
	}

	ps, err := e.store.ListParticipants(ctx)
	if err != nil {
		return nil, err
	}
	payer, ok := findParticipant(ps, in.PayerID)
	if !ok {
		return nil, fmt.Errorf("%w: payer %q", ErrUnknownParticipant, in.PayerID)
	}
	if payer.Excluded {
		return nil, fmt.Errorf("%w: %s cannot pay a manual expense", ErrInvalidInput, payer.Name)
	}
	resolved, err := resolveShares(in.Shares, ps)
	if err != nil {
		return nil, err
	}

	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = "Other"
	}

	total := in.TotalCost
	expense := &models.ManualExpense{
		Date:        in.Date,
		Description: description,
		TotalCost:   total,
		PayerID:     payer.ID,
		Category:    category,
		Counted:     true,
		Item: models.LineItem{
			Name:               "Manual Expense: " + description,
			Quantity:           decimal.NewFromInt(1),
			TaxType:            ManualExpenseTaxType,
			UnitPriceBefore:    total,
			TotalPriceBefore:   total,
			UnitDiscount:       decimal.Zero,
			TotalDiscount:      decimal.Zero,
			UnitAfterDiscount:  total,
			TotalAfterDiscount: total,
		},
	}

	shares := make([]models.Share, 0, len(in.Shares))
	for _, s := range resolved {
		shares = append(shares, models.Share{ParticipantID: s.ParticipantID, Percentage: s.Percentage})
	}

	if err := e.store.InsertManualExpense(ctx, expense, shares); err != nil {
		return nil, err
	}
	slog.Info("Manual expense added",
		"expense_id", expense.ID,
		"description", description,
		"total", total.StringFixed(2),
		"payer", payer.Name,
	)
	return expense, nil
}

// SetStaticShare sets the default split for a product name and records who
// changed it and why.
func (e *Engine) SetStaticShare(ctx context.Context, itemName string, shares []calculator.ShareInput, changedBy, reason string) (*models.StaticShare, error) {
	itemName = strings.TrimSpace(itemName)
	if itemName == "" {
		return nil, fmt.Errorf("%w: item name is required", ErrInvalidInput)
	}

	ps, err := e.store.ListParticipants(ctx)
	if err != nil {
		return nil, err
	}
	resolved, err := resolveShares(shares, ps)
	if err != nil {
		return nil, err
	}

	share := &models.StaticShare{ItemName: itemName, Percentages: make(map[string]decimal.Decimal, len(resolved))}
	for _, s := range resolved {
		share.Percentages[s.ParticipantID] = s.Percentage
	}

	if err := e.store.UpsertStaticShare(ctx, share, changedBy, reason); err != nil {
		return nil, err
	}
	slog.Info("Static share updated", "item", itemName, "changed_by", changedBy)
	return share, nil
}

// StaticShareHistory returns the audit trail of a product's static share.
func (e *Engine) StaticShareHistory(ctx context.Context, itemName string) ([]models.StaticShareChange, error) {
	return e.store.ListStaticShareChanges(ctx, strings.TrimSpace(itemName))
}
