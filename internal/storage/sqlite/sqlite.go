// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	moderncsqlite "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
//
// The server and the CLI may open the same file concurrently; write
// transactions take the database lock up front and wait on busy_timeout.
type SQLiteStore struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: pragmas apply everywhere and transactions never
	// interleave inside this process.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction and commits when fn returns nil.
// Only tx may be used inside fn; the pool has a single connection.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE"))
	}
	return false
}

const receiptColumns = `
	r.id, r.receipt_number, r.date, r.time, r.final_price, r.total_discounts, r.currency,
	r.payment_name, COALESCE(pm.participant_id, ''), r.counted, r.settled, COALESCE(p.excluded, 0),
	r.created_at, st.id, st.name, st.address, st.city, st.postal_code
	FROM receipts r
	JOIN stores st ON st.id = r.store_id
	LEFT JOIN payment_methods pm ON pm.name = r.payment_name
	LEFT JOIN participants p ON p.id = pm.participant_id`

func scanReceipt(row interface{ Scan(...any) error }) (*models.Receipt, error) {
	r := &models.Receipt{}
	err := row.Scan(
		&r.ID, &r.Number, &r.Date, &r.Time, &r.FinalPrice, &r.TotalDiscounts, &r.Currency,
		&r.PaymentName, &r.PayerID, &r.Counted, &r.Settled, &r.NotOurReceipt,
		&r.CreatedAt, &r.Store.ID, &r.Store.Name, &r.Store.Address, &r.Store.City, &r.Store.PostalCode,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// queryReceipts runs a receipt query and loads the items of every result.
func queryReceipts(ctx context.Context, q querier, where string, args ...any) ([]models.Receipt, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+receiptColumns+" "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}

	var receipts []models.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, *r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipts: %w", err)
	}

	// Items are loaded after the cursor is closed; the pool has one connection.
	for i := range receipts {
		items, err := loadItems(ctx, q, models.ReceiptRef(receipts[i].ID))
		if err != nil {
			return nil, err
		}
		receipts[i].Items = items
	}
	return receipts, nil
}

// FindReceiptByKey returns the receipt with the given duplicate key, or nil.
func (s *SQLiteStore) FindReceiptByKey(ctx context.Context, key models.ReceiptKey) (*models.Receipt, error) {
	return findReceiptByKey(ctx, s.db, key)
}

func findReceiptByKey(ctx context.Context, q querier, key models.ReceiptKey) (*models.Receipt, error) {
	receipts, err := queryReceipts(ctx, q,
		`WHERE st.name = ? AND st.address = ? AND st.postal_code = ?
		   AND r.receipt_number = ? AND r.date = ? AND r.time = ?`,
		key.StoreName, key.StoreAddress, key.PostalCode, key.Number, key.Date, key.Time,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find receipt by key: %w", err)
	}
	if len(receipts) == 0 {
		return nil, nil
	}
	return &receipts[0], nil
}

// InsertReceiptWithItems persists a receipt, its store and its items atomically.
func (s *SQLiteStore) InsertReceiptWithItems(ctx context.Context, receipt *models.Receipt) error {
	if receipt.ID == "" {
		receipt.ID = uuid.New().String()
	}
	if receipt.CreatedAt == 0 {
		receipt.CreatedAt = time.Now().Unix()
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		storeID, err := ensureStore(ctx, tx, &receipt.Store)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO receipts (id, store_id, receipt_number, date, time, final_price, total_discounts,
			  currency, payment_name, counted, settled, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			receipt.ID, storeID, receipt.Number, receipt.Date, receipt.Time,
			receipt.FinalPrice, receipt.TotalDiscounts, receipt.Currency, receipt.PaymentName,
			receipt.Counted, receipt.Settled, receipt.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("failed to insert receipt: %w", err)
		}

		owner := models.ReceiptRef(receipt.ID)
		for i := range receipt.Items {
			if err := insertItem(ctx, tx, owner, i, &receipt.Items[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

// ensureStore returns the ID of the store row matching name, address and postal code,
// creating it when missing.
func ensureStore(ctx context.Context, tx *sql.Tx, store *models.Store) (string, error) {
	id := uuid.New().String()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO stores (id, name, address, city, postal_code) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (name, address, postal_code) DO NOTHING`,
		id, store.Name, store.Address, store.City, store.PostalCode,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert store: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		"SELECT id FROM stores WHERE name = ? AND address = ? AND postal_code = ?",
		store.Name, store.Address, store.PostalCode,
	).Scan(&store.ID)
	if err != nil {
		return "", fmt.Errorf("failed to get store: %w", err)
	}
	return store.ID, nil
}

// GetReceipt retrieves a receipt by ID, including all line items.
func (s *SQLiteStore) GetReceipt(ctx context.Context, receiptID string) (*models.Receipt, error) {
	receipts, err := queryReceipts(ctx, s.db, "WHERE r.id = ?", receiptID)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	if len(receipts) == 0 {
		return nil, fmt.Errorf("receipt %s: %w", receiptID, storage.ErrNotFound)
	}
	return &receipts[0], nil
}

// ListUncountedReceipts returns unsettled receipts whose shares were not reviewed yet.
func (s *SQLiteStore) ListUncountedReceipts(ctx context.Context) ([]models.Receipt, error) {
	return queryReceipts(ctx, s.db,
		"WHERE r.counted = 0 AND r.settled = 0 AND COALESCE(p.excluded, 0) = 0 ORDER BY r.date, r.time, r.id")
}

// CountReceipt replaces the shares of the receipt's items and marks the receipt counted.
func (s *SQLiteStore) CountReceipt(ctx context.Context, receiptID string, shares []models.Share) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		items, err := loadItems(ctx, tx, models.ReceiptRef(receiptID))
		if err != nil {
			return err
		}

		var exists int
		err = tx.QueryRowContext(ctx, "SELECT 1 FROM receipts WHERE id = ?", receiptID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("receipt %s: %w", receiptID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check receipt existence: %w", err)
		}

		owned := make(map[string]bool, len(items))
		for _, item := range items {
			owned[item.ID] = true
		}
		for _, share := range shares {
			if !owned[share.ItemID] {
				return fmt.Errorf("item %s on receipt %s: %w", share.ItemID, receiptID, storage.ErrNotFound)
			}
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM shares WHERE item_id IN (SELECT id FROM line_items WHERE receipt_id = ?)",
			receiptID,
		); err != nil {
			return fmt.Errorf("failed to clear shares: %w", err)
		}

		if err := insertShares(ctx, tx, shares); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "UPDATE receipts SET counted = 1 WHERE id = ?", receiptID); err != nil {
			return fmt.Errorf("failed to mark receipt counted: %w", err)
		}
		return bumpRevision(ctx, tx)
	})
}

// ListUnsettledItems returns every receipt and manual expense not yet settled.
func (s *SQLiteStore) ListUnsettledItems(ctx context.Context) (*storage.UnsettledItems, error) {
	receipts, err := queryReceipts(ctx, s.db, "WHERE r.settled = 0 ORDER BY r.date, r.time, r.id")
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled receipts: %w", err)
	}

	expenses, err := queryManualExpenses(ctx, s.db, "WHERE e.settled = 0 ORDER BY e.date, e.created_at, e.id")
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled manual expenses: %w", err)
	}

	return &storage.UnsettledItems{Receipts: receipts, ManualExpenses: expenses}, nil
}
