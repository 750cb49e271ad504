package service

import (
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/ledger"
)

// toConnectError maps the engine's error taxonomy onto Connect codes.
// Unclassified errors become Internal with a generic message.
func toConnectError(op string, err error) *connect.Error {
	var code connect.Code
	switch {
	case errors.Is(err, ledger.ErrMalformedReceipt),
		errors.Is(err, ledger.ErrProductMismatch),
		errors.Is(err, ledger.ErrShareSumInvalid),
		errors.Is(err, ledger.ErrInvalidInput),
		errors.Is(err, ledger.ErrUnknownParticipant):
		code = connect.CodeInvalidArgument
	case errors.Is(err, ledger.ErrDuplicateReceipt),
		errors.Is(err, ledger.ErrConflictingReceipt):
		code = connect.CodeAlreadyExists
	case errors.Is(err, ledger.ErrSettlementIncomplete):
		code = connect.CodeDataLoss
	case errors.Is(err, ledger.ErrUnallocatedItem),
		errors.Is(err, ledger.ErrSettlementMismatch),
		errors.Is(err, ledger.ErrAlreadySettled):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, ledger.ErrNotFound):
		code = connect.CodeNotFound
	default:
		slog.Error(op+" failed", "error", err)
		return connect.NewError(connect.CodeInternal, errors.New("internal error"))
	}

	if code == connect.CodeDataLoss {
		slog.Error(op+" failed", "class", ledger.Classify(err), "error", err)
	}
	return connect.NewError(code, err)
}
