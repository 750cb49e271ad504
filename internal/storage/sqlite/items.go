package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

const itemColumns = `id, COALESCE(receipt_id, ''), COALESCE(manual_expense_id, ''), name, quantity, tax_type,
	unit_price_before, total_price_before, unit_discount, total_discount,
	unit_after_discount, total_after_discount`

func scanItem(row interface{ Scan(...any) error }) (*models.LineItem, error) {
	item := &models.LineItem{}
	var receiptID, expenseID string
	err := row.Scan(
		&item.ID, &receiptID, &expenseID, &item.Name, &item.Quantity, &item.TaxType,
		&item.UnitPriceBefore, &item.TotalPriceBefore, &item.UnitDiscount, &item.TotalDiscount,
		&item.UnitAfterDiscount, &item.TotalAfterDiscount,
	)
	if err != nil {
		return nil, err
	}

	if receiptID != "" {
		item.Owner = models.ReceiptRef(receiptID)
	} else {
		item.Owner = models.ManualExpenseRef(expenseID)
	}
	return item, nil
}

// ownerColumn maps a tagged owner onto the column holding its foreign key.
func ownerColumn(owner models.OwnerRef) (string, error) {
	switch owner.Kind() {
	case models.OwnerReceipt:
		return "receipt_id", nil
	case models.OwnerManualExpense:
		return "manual_expense_id", nil
	default:
		return "", fmt.Errorf("invalid item owner %s", owner)
	}
}

// loadItems returns the items of one receipt or manual expense in document order.
func loadItems(ctx context.Context, q querier, owner models.OwnerRef) ([]models.LineItem, error) {
	column, err := ownerColumn(owner)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx,
		"SELECT "+itemColumns+" FROM line_items WHERE "+column+" = ? ORDER BY position",
		owner.ID(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

func insertItem(ctx context.Context, tx *sql.Tx, owner models.OwnerRef, position int, item *models.LineItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.Owner = owner

	var receiptID, expenseID any
	if id, ok := owner.ReceiptID(); ok {
		receiptID = id
	} else if id, ok := owner.ManualExpenseID(); ok {
		expenseID = id
	} else {
		return fmt.Errorf("invalid item owner %s", owner)
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO line_items (id, receipt_id, manual_expense_id, position, name, quantity, tax_type,
		  unit_price_before, total_price_before, unit_discount, total_discount,
		  unit_after_discount, total_after_discount)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, receiptID, expenseID, position, item.Name, item.Quantity.StringFixed(3), item.TaxType,
		item.UnitPriceBefore, item.TotalPriceBefore, item.UnitDiscount, item.TotalDiscount,
		item.UnitAfterDiscount, item.TotalAfterDiscount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

// GetLineItem retrieves a single line item by ID.
func (s *SQLiteStore) GetLineItem(ctx context.Context, itemID string) (*models.LineItem, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx,
		"SELECT "+itemColumns+" FROM line_items WHERE id = ?", itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", itemID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// GetSharesForItem returns the explicit shares of an item ordered by participant position.
func (s *SQLiteStore) GetSharesForItem(ctx context.Context, itemID string) ([]models.Share, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sh.item_id, sh.participant_id, sh.percentage
		 FROM shares sh JOIN participants p ON p.id = sh.participant_id
		 WHERE sh.item_id = ? ORDER BY p.position, p.id`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get shares: %w", err)
	}
	defer rows.Close()

	var shares []models.Share
	for rows.Next() {
		var share models.Share
		if err := rows.Scan(&share.ItemID, &share.ParticipantID, &share.Percentage); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		shares = append(shares, share)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate shares: %w", err)
	}
	return shares, nil
}

func insertShares(ctx context.Context, tx *sql.Tx, shares []models.Share) error {
	for _, share := range shares {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO shares (item_id, participant_id, percentage) VALUES (?, ?, ?)
			 ON CONFLICT (item_id, participant_id) DO UPDATE SET percentage = excluded.percentage`,
			share.ItemID, share.ParticipantID, share.Percentage,
		)
		if err != nil {
			return fmt.Errorf("failed to insert share: %w", err)
		}
	}
	return nil
}
