package models

// Participant is a person the ledger attributes costs to.
//
// Exactly two primary participants exist (Position 1 and 2). A third,
// excluded participant ("Other") owns payment methods that are not ours;
// it is never shown in balances or settlements.
type Participant struct {
	// ID is the unique identifier for the participant (UUID format).
	ID string

	// Name is the display name (e.g., "Anna", "Other").
	Name string

	// Position orders participants for display and rounding tie-breaks.
	// Primary participants use 1 and 2; the excluded participant sorts last.
	Position int

	// Excluded marks the sentinel participant that never appears in aggregation output.
	Excluded bool
}

// PaymentMethod maps a payment name printed on receipts to the participant who owns it.
type PaymentMethod struct {
	// Name is the payment label as it appears on the receipt (e.g., "Karta ****1234").
	Name string

	// ParticipantID is the owner of the payment method.
	ParticipantID string
}
