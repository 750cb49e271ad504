package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// FinalizeRequest is the caller's explicit confirmation of a settlement.
type FinalizeRequest struct {
	// PayerID is the participant who is owed and receives the transfer.
	PayerID string

	// DebtorID is the participant who owes and sends the transfer.
	DebtorID string

	Amount      decimal.Decimal
	Note        string
	FinalizedBy string
}

// Finalize records the settlement described by req and closes every settleable
// entry. The request must match the current recommendation to the cent; any
// difference fails with ErrSettlementMismatch and nothing is written.
//
// A zero-amount request closes a balanced period and is accepted only when
// every net is zero. The commit is refused with ErrSettlementMismatch when
// shares or payers changed after the balances were read.
func (e *Engine) Finalize(ctx context.Context, req FinalizeRequest) (*models.Settlement, error) {
	revision, err := e.store.LedgerRevision(ctx)
	if err != nil {
		return nil, err
	}
	balances, err := e.AggregateBalances(ctx)
	if err != nil {
		return nil, err
	}

	if err := validateFinalize(balances, req); err != nil {
		metrics.FinalizeFailures.WithLabelValues("mismatch").Inc()
		slog.Warn("Finalize rejected",
			"payer_id", req.PayerID,
			"debtor_id", req.DebtorID,
			"amount", req.Amount.String(),
			"error", err,
		)
		return nil, err
	}

	settlement := &models.Settlement{
		PayerID:     req.PayerID,
		DebtorID:    req.DebtorID,
		Amount:      req.Amount.Round(2),
		Note:        strings.TrimSpace(req.Note),
		FinalizedBy: req.FinalizedBy,
	}
	refs := balances.Settleable

	if err := e.store.CreateSettlementAtomic(ctx, settlement, refs, revision); err != nil {
		return e.recoverFailedCommit(ctx, settlement, refs, err)
	}

	if err := e.confirmSettlement(ctx, settlement, refs); err != nil {
		metrics.FinalizeFailures.WithLabelValues("incomplete").Inc()
		slog.Error("Settlement not confirmed after commit", "settlement_id", settlement.ID, "error", err)
		return nil, err
	}

	metrics.SettlementsFinalized.Inc()
	slog.Info("Settlement finalized",
		"settlement_id", settlement.ID,
		"payer_id", settlement.PayerID,
		"debtor_id", settlement.DebtorID,
		"amount", settlement.Amount.StringFixed(2),
		"items", len(refs),
		"finalized_by", settlement.FinalizedBy,
	)
	return settlement, nil
}

func validateFinalize(b *Balances, req FinalizeRequest) error {
	if req.PayerID == "" || req.DebtorID == "" {
		return fmt.Errorf("%w: payer and debtor are required", ErrSettlementMismatch)
	}
	if req.PayerID == req.DebtorID {
		return fmt.Errorf("%w: payer and debtor are the same participant", ErrSettlementMismatch)
	}

	payer, ok := b.Row(req.PayerID)
	if !ok {
		return fmt.Errorf("%w: payer %s is not a primary participant", ErrSettlementMismatch, req.PayerID)
	}
	debtor, ok := b.Row(req.DebtorID)
	if !ok {
		return fmt.Errorf("%w: debtor %s is not a primary participant", ErrSettlementMismatch, req.DebtorID)
	}
	if req.Amount.IsNegative() || !req.Amount.Equal(req.Amount.Round(2)) {
		return fmt.Errorf("%w: amount %s is not a non-negative amount in cents", ErrSettlementMismatch, req.Amount)
	}
	if len(b.Settleable) == 0 {
		return fmt.Errorf("%w: nothing to settle", ErrSettlementMismatch)
	}

	rec := b.Recommendation
	if rec == nil {
		for _, row := range b.Rows {
			if !row.Net.IsZero() {
				return fmt.Errorf("%w: balances are not settleable", ErrSettlementMismatch)
			}
		}
		if !req.Amount.IsZero() {
			return fmt.Errorf("%w: balances are even, amount must be 0.00", ErrSettlementMismatch)
		}
		return nil
	}

	if !payer.Net.IsPositive() {
		return fmt.Errorf("%w: payer %s has net %s and is not owed money",
			ErrSettlementMismatch, payer.Participant.Name, payer.Net.StringFixed(2))
	}
	if !debtor.Net.IsNegative() {
		return fmt.Errorf("%w: debtor %s has net %s and owes nothing",
			ErrSettlementMismatch, debtor.Participant.Name, debtor.Net.StringFixed(2))
	}
	if rec.PayerID != req.PayerID || rec.DebtorID != req.DebtorID {
		return fmt.Errorf("%w: recommendation is %s <- %s", ErrSettlementMismatch, rec.PayerID, rec.DebtorID)
	}
	if !rec.Amount.Equal(req.Amount) {
		return fmt.Errorf("%w: amount %s, recommended %s",
			ErrSettlementMismatch, req.Amount.StringFixed(2), rec.Amount.StringFixed(2))
	}
	return nil
}

// recoverFailedCommit decides what a failed CreateSettlementAtomic left behind.
// A clean rollback returns the original error; anything else is either a
// confirmed commit or ErrSettlementIncomplete.
func (e *Engine) recoverFailedCommit(ctx context.Context, settlement *models.Settlement, refs []models.OwnerRef, cause error) (*models.Settlement, error) {
	_, err := e.store.GetSettlementDetail(ctx, settlement.ID)
	if errors.Is(err, storage.ErrNotFound) {
		if errors.Is(cause, storage.ErrSettlementConflict) {
			metrics.FinalizeFailures.WithLabelValues("conflict").Inc()
			return nil, fmt.Errorf("%w: ledger changed during finalize: %w", ErrSettlementMismatch, cause)
		}
		metrics.FinalizeFailures.WithLabelValues("storage").Inc()
		slog.Error("Finalize rolled back", "settlement_id", settlement.ID, "error", cause)
		return nil, fmt.Errorf("failed to create settlement: %w", cause)
	}

	if err := e.confirmSettlement(ctx, settlement, refs); err != nil {
		metrics.FinalizeFailures.WithLabelValues("incomplete").Inc()
		slog.Error("Settlement state unknown after failed commit",
			"settlement_id", settlement.ID, "cause", cause, "error", err)
		return nil, fmt.Errorf("%w: %w", err, cause)
	}

	slog.Warn("Settlement committed despite storage error", "settlement_id", settlement.ID, "cause", cause)
	metrics.SettlementsFinalized.Inc()
	return settlement, nil
}

// confirmSettlement re-reads the settlement and checks that it closed exactly refs.
func (e *Engine) confirmSettlement(ctx context.Context, settlement *models.Settlement, refs []models.OwnerRef) error {
	detail, err := e.store.GetSettlementDetail(ctx, settlement.ID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSettlementIncomplete, err)
	}

	stored := detail.Settlement
	if stored.PayerID != settlement.PayerID || stored.DebtorID != settlement.DebtorID ||
		!stored.Amount.Equal(settlement.Amount) {
		return fmt.Errorf("%w: stored settlement differs from request", ErrSettlementIncomplete)
	}

	want := make(map[models.OwnerRef]bool, len(refs))
	for _, ref := range refs {
		want[ref] = true
	}

	closed := 0
	for _, r := range detail.Receipts {
		if !want[models.ReceiptRef(r.ID)] || !r.Settled {
			return fmt.Errorf("%w: receipt %s", ErrSettlementIncomplete, r.ID)
		}
		closed++
	}
	for _, m := range detail.ManualExpenses {
		if !want[models.ManualExpenseRef(m.ID)] || !m.Settled {
			return fmt.Errorf("%w: manual expense %s", ErrSettlementIncomplete, m.ID)
		}
		closed++
	}
	if closed != len(want) {
		return fmt.Errorf("%w: %d of %d items closed", ErrSettlementIncomplete, closed, len(want))
	}
	return nil
}

// ListSettlements returns settlement history, newest first.
func (e *Engine) ListSettlements(ctx context.Context) ([]models.Settlement, error) {
	return e.store.ListSettlements(ctx)
}

// SettlementDetail returns a settlement with the receipts and expenses it closed.
func (e *Engine) SettlementDetail(ctx context.Context, settlementID string) (*models.SettlementDetail, error) {
	return e.store.GetSettlementDetail(ctx, settlementID)
}
