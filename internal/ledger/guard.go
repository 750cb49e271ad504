package ledger

import (
	"context"
	"fmt"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// Decision is the Duplicate Guard's verdict on a candidate receipt.
type Decision int

const (
	Accept Decision = iota
	RejectDuplicate
	RejectConflict
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case RejectDuplicate:
		return "reject-duplicate"
	case RejectConflict:
		return "reject-conflict"
	default:
		return "unknown"
	}
}

// Guard decides whether a normalized receipt may enter the ledger.
// It never writes; the unique key in storage is the backstop for racing inserts.
type Guard struct {
	store storage.Store
}

// NewGuard creates a Guard reading from store.
func NewGuard(store storage.Store) *Guard {
	return &Guard{store: store}
}

// Check compares the candidate against the stored receipt with the same key.
// It returns the existing receipt for rejections.
func (g *Guard) Check(ctx context.Context, candidate *models.Receipt) (Decision, *models.Receipt, error) {
	existing, err := g.store.FindReceiptByKey(ctx, candidate.Key())
	if err != nil {
		return Accept, nil, fmt.Errorf("failed to look up receipt key: %w", err)
	}
	if existing == nil {
		return Accept, nil, nil
	}
	return compare(candidate, existing), existing, nil
}

// compare tells a true duplicate (same totals) from a conflicting record.
func compare(candidate, existing *models.Receipt) Decision {
	if candidate.FinalPrice.Equal(existing.FinalPrice) &&
		candidate.ItemsTotal().Equal(existing.ItemsTotal()) {
		return RejectDuplicate
	}
	return RejectConflict
}
