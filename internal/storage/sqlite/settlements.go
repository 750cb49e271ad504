package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

const settlementColumns = `id, payer_id, debtor_id, amount, note, created_at, finalized_by, finalized_at
	FROM settlements`

// CreateSettlementAtomic persists a settlement, links every referenced receipt or
// manual expense to it and marks them settled. Either all of it commits or nothing does.
// A ref that is missing or already settled, or a ledger revision other than
// revision, aborts with storage.ErrSettlementConflict.
func (s *SQLiteStore) CreateSettlementAtomic(ctx context.Context, settlement *models.Settlement, refs []models.OwnerRef, revision int64) error {
	// Generate ID if not set
	if settlement.ID == "" {
		settlement.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	if settlement.CreatedAt == 0 {
		settlement.CreatedAt = now
	}
	if settlement.FinalizedAt == 0 {
		settlement.FinalizedAt = now
	}

	var note interface{} = nil
	if settlement.Note != "" {
		note = settlement.Note
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := ledgerRevision(ctx, tx)
		if err != nil {
			return err
		}
		if current != revision {
			return fmt.Errorf("ledger revision %d, expected %d: %w", current, revision, storage.ErrSettlementConflict)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO settlements (id, payer_id, debtor_id, amount, note, created_at, finalized_by, finalized_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			settlement.ID, settlement.PayerID, settlement.DebtorID, settlement.Amount.StringFixed(2),
			note, settlement.CreatedAt, settlement.FinalizedBy, settlement.FinalizedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert settlement: %w", err)
		}

		for _, ref := range refs {
			var receiptID, expenseID any
			if id, ok := ref.ReceiptID(); ok {
				receiptID = id
			} else if id, ok := ref.ManualExpenseID(); ok {
				expenseID = id
			} else {
				return fmt.Errorf("invalid settlement item %s", ref)
			}

			_, err := tx.ExecContext(ctx,
				"INSERT INTO settlement_items (settlement_id, receipt_id, manual_expense_id) VALUES (?, ?, ?)",
				settlement.ID, receiptID, expenseID,
			)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%s: %w", ref, storage.ErrSettlementConflict)
				}
				return fmt.Errorf("failed to insert settlement item: %w", err)
			}
		}

		for _, ref := range refs {
			table := "receipts"
			if ref.Kind() == models.OwnerManualExpense {
				table = "manual_expenses"
			}

			res, err := tx.ExecContext(ctx,
				"UPDATE "+table+" SET settled = 1 WHERE id = ? AND settled = 0", ref.ID())
			if err != nil {
				return fmt.Errorf("failed to mark %s settled: %w", ref, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to check settled update: %w", err)
			}
			if n != 1 {
				return fmt.Errorf("%s: %w", ref, storage.ErrSettlementConflict)
			}
		}
		return nil
	})
}

func scanSettlement(row interface{ Scan(...any) error }) (*models.Settlement, error) {
	settlement := &models.Settlement{}
	var note sql.NullString

	err := row.Scan(&settlement.ID, &settlement.PayerID, &settlement.DebtorID, &settlement.Amount,
		&note, &settlement.CreatedAt, &settlement.FinalizedBy, &settlement.FinalizedAt)
	if err != nil {
		return nil, err
	}

	if note.Valid {
		settlement.Note = note.String
	}
	return settlement, nil
}

// ListSettlements retrieves all settlements, newest first.
func (s *SQLiteStore) ListSettlements(ctx context.Context) ([]models.Settlement, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+settlementColumns+" ORDER BY finalized_at DESC, created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	var settlements []models.Settlement
	for rows.Next() {
		settlement, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		settlements = append(settlements, *settlement)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}

	return settlements, nil
}

// GetSettlementDetail retrieves a settlement with every receipt and manual expense it closed.
func (s *SQLiteStore) GetSettlementDetail(ctx context.Context, settlementID string) (*models.SettlementDetail, error) {
	settlement, err := scanSettlement(s.db.QueryRowContext(ctx,
		"SELECT "+settlementColumns+" WHERE id = ?", settlementID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("settlement %s: %w", settlementID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}

	receipts, err := queryReceipts(ctx, s.db,
		`WHERE r.id IN (SELECT receipt_id FROM settlement_items WHERE settlement_id = ?)
		 ORDER BY r.date, r.time, r.id`, settlementID)
	if err != nil {
		return nil, fmt.Errorf("failed to get settled receipts: %w", err)
	}

	expenses, err := queryManualExpenses(ctx, s.db,
		`WHERE e.id IN (SELECT manual_expense_id FROM settlement_items WHERE settlement_id = ?)
		 ORDER BY e.date, e.created_at, e.id`, settlementID)
	if err != nil {
		return nil, fmt.Errorf("failed to get settled manual expenses: %w", err)
	}

	return &models.SettlementDetail{
		Settlement:     *settlement,
		Receipts:       receipts,
		ManualExpenses: expenses,
	}, nil
}
