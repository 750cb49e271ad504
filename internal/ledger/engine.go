// Package ledger is the share-and-settlement engine. It admits normalized
// receipts through the Duplicate Guard, allocates items by share, aggregates
// balances from the current ledger state and finalizes settlements.
//
// The engine holds no state between calls; every operation re-reads storage.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/normalizer"
	"github.com/mmynk/splitledger/internal/storage"
)

// Options configures an Engine.
type Options struct {
	// DefaultCurrency is used for receipts that do not state one.
	DefaultCurrency string
}

// Engine implements the ledger operations on top of a storage.Store.
type Engine struct {
	store      storage.Store
	normalizer *normalizer.Normalizer
	guard      *Guard
}

// New creates an Engine backed by store.
func New(store storage.Store, opts Options) *Engine {
	return &Engine{
		store:      store,
		normalizer: normalizer.New(normalizer.Options{DefaultCurrency: opts.DefaultCurrency}),
		guard:      NewGuard(store),
	}
}

// EnsureParticipants seeds the two primary participants and the excluded one.
func (e *Engine) EnsureParticipants(ctx context.Context, primary []string, excluded string) ([]models.Participant, error) {
	if len(primary) != 2 {
		return nil, fmt.Errorf("%w: exactly two primary participants required, got %d", ErrInvalidInput, len(primary))
	}

	names := []string{strings.TrimSpace(primary[0]), strings.TrimSpace(primary[1]), strings.TrimSpace(excluded)}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("%w: participant name is empty", ErrInvalidInput)
		}
		if seen[strings.ToLower(name)] {
			return nil, fmt.Errorf("%w: participant %q listed twice", ErrInvalidInput, name)
		}
		seen[strings.ToLower(name)] = true
	}

	return e.store.EnsureParticipants(ctx, []models.Participant{
		{Name: names[0], Position: 1},
		{Name: names[1], Position: 2},
		{Name: names[2], Position: 3, Excluded: true},
	})
}

// Participants returns all participants ordered by position.
func (e *Engine) Participants(ctx context.Context) ([]models.Participant, error) {
	return e.store.ListParticipants(ctx)
}

// ResolveParticipant finds a participant by ID or case-insensitive name.
func (e *Engine) ResolveParticipant(ctx context.Context, ref string) (*models.Participant, error) {
	ps, err := e.store.ListParticipants(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := findParticipant(ps, ref)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownParticipant, ref)
	}
	return &p, nil
}

func findParticipant(ps []models.Participant, ref string) (models.Participant, bool) {
	ref = strings.TrimSpace(ref)
	for _, p := range ps {
		if p.ID == ref {
			return p, true
		}
	}
	for _, p := range ps {
		if strings.EqualFold(p.Name, ref) {
			return p, true
		}
	}
	return models.Participant{}, false
}

// VerdictStatus is the outcome of admitting one raw receipt.
type VerdictStatus string

const (
	StatusAdmitted  VerdictStatus = "admitted"
	StatusDuplicate VerdictStatus = "duplicate"
	StatusConflict  VerdictStatus = "conflict"
	StatusMalformed VerdictStatus = "malformed"
	StatusIgnored   VerdictStatus = "ignored"
)

// Rejected reports whether the source record belongs in the rejected area.
func (s VerdictStatus) Rejected() bool {
	return s == StatusDuplicate || s == StatusConflict || s == StatusMalformed
}

// Verdict is the result of NormalizeAndAdmit.
type Verdict struct {
	Status VerdictStatus

	// ReceiptID is the admitted receipt, or the stored one a duplicate or conflict collided with.
	ReceiptID string

	// Class is the error classification for non-admitted verdicts (see Classify).
	Class string

	// Reason is a human-readable explanation for non-admitted verdicts.
	Reason string

	// Receipt is the normalized receipt; nil when normalization failed.
	Receipt *models.Receipt

	err error
}

// Err returns the taxonomy error behind a non-admitted verdict.
func (v *Verdict) Err() error {
	return v.err
}

func rejectVerdict(status VerdictStatus, receipt *models.Receipt, err error) *Verdict {
	return &Verdict{
		Status:  status,
		Class:   Classify(err),
		Reason:  err.Error(),
		Receipt: receipt,
		err:     err,
	}
}

// NormalizeAndAdmit normalizes a raw receipt document and stores it unless it is
// malformed, ignored, a duplicate or a conflict. Rejections are reported in the
// verdict; the returned error is reserved for storage failures.
func (e *Engine) NormalizeAndAdmit(ctx context.Context, raw []byte) (*Verdict, error) {
	verdict, err := e.admit(ctx, raw)
	if err != nil {
		return nil, err
	}
	metrics.ReceiptsProcessed.WithLabelValues(string(verdict.Status)).Inc()
	return verdict, nil
}

func (e *Engine) admit(ctx context.Context, raw []byte) (*Verdict, error) {
	receipt, err := e.normalizer.NormalizeBytes(raw)
	if err != nil {
		if errors.Is(err, ErrMalformedReceipt) || errors.Is(err, ErrProductMismatch) {
			slog.Warn("Rejected malformed receipt", "error", err)
			return rejectVerdict(StatusMalformed, nil, err), nil
		}
		return nil, err
	}

	ignored, err := e.store.IsPaymentIgnored(ctx, receipt.PaymentName)
	if err != nil {
		return nil, err
	}
	if ignored {
		slog.Info("Skipped receipt with ignored payment", "payment", receipt.PaymentName, "number", receipt.Number)
		return &Verdict{Status: StatusIgnored, Class: "ignored_payment", Reason: "payment name is ignored", Receipt: receipt}, nil
	}

	if err := e.resolvePayer(ctx, receipt); err != nil {
		return nil, err
	}

	if v, err := e.checkDuplicate(ctx, receipt); err != nil || v != nil {
		return v, err
	}

	err = e.store.InsertReceiptWithItems(ctx, receipt)
	if errors.Is(err, storage.ErrDuplicateKey) {
		// Lost a race with a concurrent insert of the same key; classify against the winner.
		v, cerr := e.checkDuplicate(ctx, receipt)
		if cerr != nil {
			return nil, cerr
		}
		if v != nil {
			return v, nil
		}
		return rejectVerdict(StatusDuplicate, receipt, ErrDuplicateReceipt), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store receipt: %w", err)
	}

	slog.Info("Receipt admitted",
		"receipt_id", receipt.ID,
		"store", receipt.Store.Name,
		"number", receipt.Number,
		"date", receipt.Date,
		"total", receipt.FinalPrice.StringFixed(2),
		"payer_id", receipt.PayerID,
		"not_our_receipt", receipt.NotOurReceipt,
	)
	return &Verdict{Status: StatusAdmitted, ReceiptID: receipt.ID, Receipt: receipt}, nil
}

// checkDuplicate returns a rejection verdict, or nil when the guard accepts.
func (e *Engine) checkDuplicate(ctx context.Context, receipt *models.Receipt) (*Verdict, error) {
	decision, existing, err := e.guard.Check(ctx, receipt)
	if err != nil {
		return nil, err
	}

	switch decision {
	case RejectDuplicate:
		slog.Info("Rejected duplicate receipt", "existing_id", existing.ID, "number", receipt.Number)
		v := rejectVerdict(StatusDuplicate, receipt, fmt.Errorf("%w: same as %s", ErrDuplicateReceipt, existing.ID))
		v.ReceiptID = existing.ID
		return v, nil
	case RejectConflict:
		slog.Warn("Rejected conflicting receipt",
			"existing_id", existing.ID,
			"number", receipt.Number,
			"stored_total", existing.FinalPrice.StringFixed(2),
			"candidate_total", receipt.FinalPrice.StringFixed(2),
		)
		v := rejectVerdict(StatusConflict, receipt, fmt.Errorf("%w: %s has total %s, candidate %s",
			ErrConflictingReceipt, existing.ID, existing.FinalPrice.StringFixed(2), receipt.FinalPrice.StringFixed(2)))
		v.ReceiptID = existing.ID
		return v, nil
	default:
		return nil, nil
	}
}

// resolvePayer sets PayerID and NotOurReceipt from the payment name mapping.
func (e *Engine) resolvePayer(ctx context.Context, receipt *models.Receipt) error {
	if receipt.PaymentName == "" {
		return nil
	}
	pm, err := e.store.GetPaymentMethod(ctx, receipt.PaymentName)
	if err != nil || pm == nil {
		return err
	}

	ps, err := e.store.ListParticipants(ctx)
	if err != nil {
		return err
	}
	payer, ok := findParticipant(ps, pm.ParticipantID)
	if !ok {
		return fmt.Errorf("%w: payment %q maps to %s", ErrUnknownParticipant, pm.Name, pm.ParticipantID)
	}
	receipt.PayerID = payer.ID
	receipt.NotOurReceipt = payer.Excluded
	return nil
}

// AssignPaymentName maps a payment label to the participant who owns it.
func (e *Engine) AssignPaymentName(ctx context.Context, name, participantRef string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: payment name is empty", ErrInvalidInput)
	}
	p, err := e.ResolveParticipant(ctx, participantRef)
	if err != nil {
		return err
	}
	if err := e.store.AssignPaymentMethod(ctx, name, p.ID); err != nil {
		return err
	}
	slog.Info("Payment name assigned", "payment", name, "participant", p.Name)
	return nil
}

// IgnorePaymentName makes future receipts paid with name come back as ignored.
func (e *Engine) IgnorePaymentName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: payment name is empty", ErrInvalidInput)
	}
	return e.store.IgnorePaymentName(ctx, name)
}
