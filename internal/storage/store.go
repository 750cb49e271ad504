// Package storage provides abstractions for persistent ledger storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/splitledger/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a receipt with the same
	// (store, number, date, time) key is already stored.
	ErrDuplicateKey = errors.New("duplicate receipt key")

	// ErrSettlementConflict is returned when an item handed to CreateSettlementAtomic
	// is missing or already settled, or when the ledger changed since the caller
	// read it. Nothing is written in that case.
	ErrSettlementConflict = errors.New("item missing or already settled")
)

// UnsettledItems is every receipt and manual expense not yet closed by a settlement.
// Receipts carry their line items; PayerID is resolved from the payment name mapping
// and is empty when the payment name is not assigned.
type UnsettledItems struct {
	Receipts       []models.Receipt
	ManualExpenses []models.ManualExpense
}

// Store defines the storage operations the ledger engine depends on.
// This abstraction keeps the engine independent of the SQL backend.
type Store interface {
	// EnsureParticipants creates or updates participants by name and returns all of them.
	EnsureParticipants(ctx context.Context, participants []models.Participant) ([]models.Participant, error)

	// ListParticipants returns all participants ordered by position.
	ListParticipants(ctx context.Context) ([]models.Participant, error)

	// AssignPaymentMethod maps a payment name to a participant, replacing any previous owner.
	AssignPaymentMethod(ctx context.Context, name, participantID string) error

	// GetPaymentMethod returns the owner of a payment name, or nil if unassigned.
	GetPaymentMethod(ctx context.Context, name string) (*models.PaymentMethod, error)

	// IgnorePaymentName adds a payment name whose receipts are never ingested.
	IgnorePaymentName(ctx context.Context, name string) error

	// IsPaymentIgnored reports whether receipts paid with name are skipped.
	IsPaymentIgnored(ctx context.Context, name string) (bool, error)

	// FindReceiptByKey returns the stored receipt with the given key, including items,
	// or nil if there is none.
	FindReceiptByKey(ctx context.Context, key models.ReceiptKey) (*models.Receipt, error)

	// InsertReceiptWithItems stores a receipt and its items in one transaction.
	// IDs are assigned by the store. Returns ErrDuplicateKey if the key is taken.
	InsertReceiptWithItems(ctx context.Context, receipt *models.Receipt) error

	// GetReceipt retrieves a receipt with its items.
	GetReceipt(ctx context.Context, receiptID string) (*models.Receipt, error)

	// ListUncountedReceipts returns receipts whose shares were not reviewed yet.
	ListUncountedReceipts(ctx context.Context) ([]models.Receipt, error)

	// CountReceipt replaces the shares of the receipt's items and marks it counted.
	CountReceipt(ctx context.Context, receiptID string, shares []models.Share) error

	// InsertManualExpense stores an expense, its synthetic item and the item's shares.
	// Share.ItemID is filled in by the store.
	InsertManualExpense(ctx context.Context, expense *models.ManualExpense, shares []models.Share) error

	// GetLineItem retrieves a single line item.
	GetLineItem(ctx context.Context, itemID string) (*models.LineItem, error)

	// ListUnsettledItems returns the open ledger state.
	ListUnsettledItems(ctx context.Context) (*UnsettledItems, error)

	// GetSharesForItem returns the explicit shares of an item ordered by participant position.
	GetSharesForItem(ctx context.Context, itemID string) ([]models.Share, error)

	// GetStaticShare returns the default split for a product name, or nil if none exists.
	GetStaticShare(ctx context.Context, itemName string) (*models.StaticShare, error)

	// UpsertStaticShare creates or replaces a static share and records one history
	// entry per changed participant percentage.
	UpsertStaticShare(ctx context.Context, share *models.StaticShare, changedBy, reason string) error

	// ListStaticShareChanges returns the audit history of a static share, oldest first.
	ListStaticShareChanges(ctx context.Context, itemName string) ([]models.StaticShareChange, error)

	// LedgerRevision returns a counter that changes whenever shares, static shares,
	// payment name owners or participants change.
	LedgerRevision(ctx context.Context) (int64, error)

	// CreateSettlementAtomic inserts the settlement, one settlement item per ref and
	// flips settled on every referenced receipt or expense, all in one transaction.
	// It fails with ErrSettlementConflict unless the ledger is still at revision.
	CreateSettlementAtomic(ctx context.Context, settlement *models.Settlement, refs []models.OwnerRef, revision int64) error

	// ListSettlements returns all settlements, newest first.
	ListSettlements(ctx context.Context) ([]models.Settlement, error)

	// GetSettlementDetail returns a settlement with the receipts and expenses it closed.
	GetSettlementDetail(ctx context.Context, settlementID string) (*models.SettlementDetail, error)

	// Close releases any resources held by the store.
	Close() error
}
