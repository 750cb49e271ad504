package calculator

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
)

// ItemForBalance is one allocated item: its total and who owes what of it.
type ItemForBalance struct {
	Total      decimal.Decimal
	Allocation map[string]decimal.Decimal
}

// EntryForBalance is a receipt or manual expense with a resolved payer.
type EntryForBalance struct {
	PayerID string
	Items   []ItemForBalance
}

// ParticipantBalance is the balance row of one primary participant.
type ParticipantBalance struct {
	ParticipantID string
	ActuallyPaid  decimal.Decimal
	ShouldPay     decimal.Decimal
	Net           decimal.Decimal // Positive = is owed money, negative = owes money
}

// Transfer is the single payment that settles the group.
type Transfer struct {
	PayerID  string // Participant who is owed and receives the money
	DebtorID string // Participant who owes and sends the money
	Amount   decimal.Decimal
}

// CalculateBalances aggregates entries into per-participant totals.
//
// Algorithm:
//   - For each item: the payer paid +total, each participant owes its allocation
//   - Allocations to an excluded participant are owed by the payer instead
//   - Entries paid by an excluded participant are skipped
//   - net = actually_paid - should_pay
//
// Only primary participants are returned, ordered by position. The nets sum to zero.
func CalculateBalances(participants []models.Participant, entries []EntryForBalance) ([]ParticipantBalance, error) {
	byID := make(map[string]models.Participant, len(participants))
	for _, p := range participants {
		byID[p.ID] = p
	}

	paid := make(map[string]decimal.Decimal)
	owed := make(map[string]decimal.Decimal)

	for _, entry := range entries {
		payer, ok := byID[entry.PayerID]
		if !ok {
			return nil, fmt.Errorf("unknown payer %q", entry.PayerID)
		}
		if payer.Excluded {
			continue
		}

		for _, item := range entry.Items {
			paid[payer.ID] = paid[payer.ID].Add(item.Total)

			for participantID, amount := range item.Allocation {
				p, ok := byID[participantID]
				if !ok {
					return nil, fmt.Errorf("unknown participant %q in allocation", participantID)
				}
				if p.Excluded {
					owed[payer.ID] = owed[payer.ID].Add(amount)
					continue
				}
				owed[p.ID] = owed[p.ID].Add(amount)
			}
		}
	}

	primaries := make([]models.Participant, 0, len(participants))
	for _, p := range participants {
		if !p.Excluded {
			primaries = append(primaries, p)
		}
	}
	sort.SliceStable(primaries, func(i, j int) bool { return primaries[i].Position < primaries[j].Position })

	balances := make([]ParticipantBalance, 0, len(primaries))
	for _, p := range primaries {
		balances = append(balances, ParticipantBalance{
			ParticipantID: p.ID,
			ActuallyPaid:  paid[p.ID],
			ShouldPay:     owed[p.ID],
			Net:           paid[p.ID].Sub(owed[p.ID]),
		})
	}
	return balances, nil
}

// RecommendTransfer returns the transfer from the participant with the most
// negative net to the one with the most positive net, or nil when nobody owes anything.
func RecommendTransfer(balances []ParticipantBalance) *Transfer {
	var creditor, debtor *ParticipantBalance
	for i := range balances {
		b := &balances[i]
		if b.Net.IsPositive() && (creditor == nil || b.Net.GreaterThan(creditor.Net)) {
			creditor = b
		}
		if b.Net.IsNegative() && (debtor == nil || b.Net.LessThan(debtor.Net)) {
			debtor = b
		}
	}
	if creditor == nil || debtor == nil {
		return nil
	}

	amount := decimal.Min(creditor.Net.Abs(), debtor.Net.Abs())
	return &Transfer{
		PayerID:  creditor.ParticipantID,
		DebtorID: debtor.ParticipantID,
		Amount:   amount.Round(2),
	}
}
