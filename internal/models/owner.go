package models

import "fmt"

// OwnerKind tells which entity an OwnerRef points at.
type OwnerKind int

const (
	OwnerReceipt OwnerKind = iota + 1
	OwnerManualExpense
)

func (k OwnerKind) String() string {
	switch k {
	case OwnerReceipt:
		return "receipt"
	case OwnerManualExpense:
		return "manual_expense"
	default:
		return "unknown"
	}
}

// OwnerRef references either a Receipt or a ManualExpense, never both.
// The zero value is invalid; build one with ReceiptRef or ManualExpenseRef.
type OwnerRef struct {
	kind OwnerKind
	id   string
}

// ReceiptRef references the receipt with the given ID.
func ReceiptRef(id string) OwnerRef {
	return OwnerRef{kind: OwnerReceipt, id: id}
}

// ManualExpenseRef references the manual expense with the given ID.
func ManualExpenseRef(id string) OwnerRef {
	return OwnerRef{kind: OwnerManualExpense, id: id}
}

func (r OwnerRef) Kind() OwnerKind { return r.kind }

func (r OwnerRef) ID() string { return r.id }

// IsZero reports whether r was never assigned.
func (r OwnerRef) IsZero() bool { return r.kind == 0 }

// ReceiptID returns the receipt ID and true when r references a receipt.
func (r OwnerRef) ReceiptID() (string, bool) {
	if r.kind != OwnerReceipt {
		return "", false
	}
	return r.id, true
}

// ManualExpenseID returns the expense ID and true when r references a manual expense.
func (r OwnerRef) ManualExpenseID() (string, bool) {
	if r.kind != OwnerManualExpense {
		return "", false
	}
	return r.id, true
}

func (r OwnerRef) String() string {
	return fmt.Sprintf("%s:%s", r.kind, r.id)
}
