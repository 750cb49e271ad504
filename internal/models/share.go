package models

import "github.com/shopspring/decimal"

// Share is one participant's percentage obligation for a line item.
type Share struct {
	ItemID        string
	ParticipantID string

	// Percentage is in [0, 100]; the shares of one item sum to 100.
	Percentage decimal.Decimal
}

// StaticShare is the default split for a product name, applied when an item
// has no explicit shares.
type StaticShare struct {
	// ID is the unique identifier for the static share (UUID format).
	ID string

	// ItemName is the product name the default applies to.
	ItemName string

	// Percentages maps participant ID to percentage.
	Percentages map[string]decimal.Decimal

	// UpdatedAt is the Unix timestamp of the last change.
	UpdatedAt int64
}

// StaticShareChange is one audit entry for a static share update.
type StaticShareChange struct {
	StaticShareID string
	ParticipantID string

	// Old is nil when the participant had no previous percentage.
	Old *decimal.Decimal
	New decimal.Decimal

	ChangedBy string
	Reason    string
	ChangedAt int64
}
