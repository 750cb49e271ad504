package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
)

const expenseColumns = `e.id, e.date, e.description, e.total_cost, e.payer_id, e.category,
	e.counted, e.settled, e.created_at FROM manual_expenses e`

// InsertManualExpense stores an expense, its synthetic line item and the item's shares.
func (s *SQLiteStore) InsertManualExpense(ctx context.Context, expense *models.ManualExpense, shares []models.Share) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO manual_expenses (id, date, description, total_cost, payer_id, category, counted, settled, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			expense.ID, expense.Date, expense.Description, expense.TotalCost, expense.PayerID,
			expense.Category, expense.Counted, expense.Settled, expense.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert manual expense: %w", err)
		}

		if err := insertItem(ctx, tx, models.ManualExpenseRef(expense.ID), 0, &expense.Item); err != nil {
			return err
		}

		for i := range shares {
			shares[i].ItemID = expense.Item.ID
		}
		return insertShares(ctx, tx, shares)
	})
}

// queryManualExpenses runs an expense query and loads each synthetic item.
func queryManualExpenses(ctx context.Context, q querier, where string, args ...any) ([]models.ManualExpense, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+expenseColumns+" "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query manual expenses: %w", err)
	}

	var expenses []models.ManualExpense
	for rows.Next() {
		var e models.ManualExpense
		if err := rows.Scan(&e.ID, &e.Date, &e.Description, &e.TotalCost, &e.PayerID, &e.Category,
			&e.Counted, &e.Settled, &e.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan manual expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate manual expenses: %w", err)
	}

	for i := range expenses {
		items, err := loadItems(ctx, q, models.ManualExpenseRef(expenses[i].ID))
		if err != nil {
			return nil, err
		}
		if len(items) != 1 {
			return nil, fmt.Errorf("manual expense %s has %d items, want 1", expenses[i].ID, len(items))
		}
		expenses[i].Item = items[0]
	}
	return expenses, nil
}
