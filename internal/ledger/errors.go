package ledger

import (
	"errors"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/normalizer"
	"github.com/mmynk/splitledger/internal/storage"
)

// Error taxonomy of the engine. None of these are transient; callers never retry.
var (
	ErrMalformedReceipt   = normalizer.ErrMalformedReceipt
	ErrProductMismatch    = normalizer.ErrProductMismatch
	ErrDuplicateReceipt   = errors.New("duplicate receipt")
	ErrConflictingReceipt = errors.New("receipt conflicts with a stored receipt of the same key")
	ErrShareSumInvalid    = calculator.ErrShareSumInvalid
	ErrUnallocatedItem    = errors.New("item has no shares and no static default")
	ErrSettlementMismatch = errors.New("settlement does not match current balances")

	// ErrSettlementIncomplete means storage could not confirm a finalize was fully
	// applied. The ledger needs manual inspection.
	ErrSettlementIncomplete = errors.New("settlement not confirmed as fully committed")

	ErrUnknownParticipant = errors.New("unknown participant")
	ErrAlreadySettled     = errors.New("already settled")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = storage.ErrNotFound
)

// Classify returns a short machine-readable name for an engine error.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedReceipt):
		return "malformed_receipt"
	case errors.Is(err, ErrProductMismatch):
		return "product_mismatch"
	case errors.Is(err, ErrDuplicateReceipt):
		return "duplicate_receipt"
	case errors.Is(err, ErrConflictingReceipt):
		return "conflicting_receipt"
	case errors.Is(err, ErrShareSumInvalid):
		return "share_sum_invalid"
	case errors.Is(err, ErrUnallocatedItem):
		return "unallocated_item"
	case errors.Is(err, ErrSettlementIncomplete):
		return "settlement_incomplete"
	case errors.Is(err, ErrSettlementMismatch):
		return "settlement_mismatch"
	case errors.Is(err, ErrUnknownParticipant):
		return "unknown_participant"
	case errors.Is(err, ErrAlreadySettled):
		return "already_settled"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
