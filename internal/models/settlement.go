package models

import "github.com/shopspring/decimal"

// Settlement is a finalized transfer that closed out every then-unsettled item.
// Settlements are immutable once created.
type Settlement struct {
	// ID is the unique identifier for the settlement (UUID format).
	ID string

	// PayerID is the participant who is owed money and receives the transfer.
	PayerID string

	// DebtorID is the participant who owes money and sends the transfer.
	DebtorID string

	// Amount is the transfer amount.
	Amount decimal.Decimal

	// Note is an optional description for the settlement.
	Note string

	// CreatedAt is the Unix timestamp when the settlement was recorded.
	CreatedAt int64

	// FinalizedBy names the operator who confirmed the settlement.
	FinalizedBy string

	// FinalizedAt is the Unix timestamp of the confirmation.
	FinalizedAt int64
}

// SettlementItem links a settlement to a receipt or manual expense it closed.
type SettlementItem struct {
	SettlementID string
	Ref          OwnerRef
}

// SettlementDetail is a settlement together with everything it closed.
type SettlementDetail struct {
	Settlement     Settlement
	Receipts       []Receipt
	ManualExpenses []ManualExpense
}
