package models

import "github.com/shopspring/decimal"

// Store is the shop a receipt was issued by.
type Store struct {
	// ID is the unique identifier for the store (UUID format).
	ID string

	// Name is the store chain name with the branch number stripped (e.g., "BIEDRONKA").
	Name string

	// Address is the street address without the postal code.
	Address string

	// City is the city line of the address.
	City string

	// PostalCode is the postal code in NN-NNN form, empty when the source has none.
	PostalCode string
}

// ReceiptKey identifies a purchase event. Two receipts with the same key are the same purchase.
type ReceiptKey struct {
	StoreName    string
	StoreAddress string
	PostalCode   string
	Number       string
	Date         string // YYYY-MM-DD
	Time         string // HH:MM:SS
}

// Receipt represents one ingested purchase event.
type Receipt struct {
	// ID is the unique identifier for the receipt (UUID format).
	ID string

	// Store is the issuing store.
	Store Store

	// Number is the receipt (bill) number printed by the register.
	Number string

	// Date is the purchase date in YYYY-MM-DD form.
	Date string

	// Time is the purchase time in HH:MM:SS form.
	Time string

	// FinalPrice is the amount actually charged.
	FinalPrice decimal.Decimal

	// TotalDiscounts is the sum of all discounts on the receipt.
	TotalDiscounts decimal.Decimal

	// Currency is the ISO 4217 code (e.g., "PLN").
	Currency string

	// PaymentName is the payment method label; it resolves to the payer.
	PaymentName string

	// PayerID is the participant owning PaymentName.
	// Empty when the payment name is not assigned to anyone yet.
	PayerID string

	// Counted is true once shares were reviewed for every line item.
	Counted bool

	// Settled is true once a settlement closed this receipt.
	Settled bool

	// NotOurReceipt marks receipts whose payment name currently belongs to the
	// excluded participant. It follows the mapping, like PayerID.
	NotOurReceipt bool

	// CreatedAt is the Unix timestamp when the receipt was stored.
	CreatedAt int64

	// Items are the normalized line items in document order.
	Items []LineItem
}

// Key returns the duplicate key of the receipt.
func (r *Receipt) Key() ReceiptKey {
	return ReceiptKey{
		StoreName:    r.Store.Name,
		StoreAddress: r.Store.Address,
		PostalCode:   r.Store.PostalCode,
		Number:       r.Number,
		Date:         r.Date,
		Time:         r.Time,
	}
}

// ItemsTotal sums TotalAfterDiscount over all line items.
func (r *Receipt) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range r.Items {
		total = total.Add(item.TotalAfterDiscount)
	}
	return total
}

// LineItem is one priced product line.
type LineItem struct {
	// ID is the unique identifier for the line item (UUID format).
	ID string

	// Owner is the receipt or manual expense the item belongs to.
	Owner OwnerRef

	// Name is the product name without the trailing tax letter.
	Name string

	// Quantity supports weighed goods; kept at 3 decimal places.
	Quantity decimal.Decimal

	// TaxType is the single-letter tax category ("A".."F", "M" for manual expenses).
	TaxType string

	UnitPriceBefore  decimal.Decimal
	TotalPriceBefore decimal.Decimal

	UnitDiscount  decimal.Decimal
	TotalDiscount decimal.Decimal

	UnitAfterDiscount decimal.Decimal

	// TotalAfterDiscount is TotalPriceBefore minus TotalDiscount.
	// This is the amount that gets allocated between participants.
	TotalAfterDiscount decimal.Decimal
}

// ManualExpense is an obligation entered by hand instead of ingested from a receipt.
type ManualExpense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// Date is the expense date in YYYY-MM-DD form.
	Date string

	Description string

	// TotalCost is the full amount paid.
	TotalCost decimal.Decimal

	// PayerID is the participant who paid.
	PayerID string

	// Category groups expenses for statistics (defaults to "Other").
	Category string

	Counted bool
	Settled bool

	// CreatedAt is the Unix timestamp when the expense was stored.
	CreatedAt int64

	// Item is the synthetic line item carrying the shares of this expense.
	Item LineItem
}
