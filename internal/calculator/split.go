// Package calculator holds the pure share and balance arithmetic of the ledger.
// Nothing in here touches storage; callers pass in everything the computation needs.
package calculator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// ErrShareSumInvalid is returned when an item's shares are out of range or do not total 100%.
var ErrShareSumInvalid = errors.New("shares must sum to 100%")

var (
	hundred = decimal.NewFromInt(100)

	// ShareTolerance is the absolute error allowed when shares are summed.
	ShareTolerance = decimal.New(1, -2)
)

// ShareInput is one participant's percentage of an item.
type ShareInput struct {
	ParticipantID string
	Percentage    decimal.Decimal
}

// ValidateShares checks that every percentage is within [0, 100], that no
// participant appears twice and that the total is 100 within ShareTolerance.
func ValidateShares(shares []ShareInput) error {
	if len(shares) == 0 {
		return fmt.Errorf("%w: no shares given", ErrShareSumInvalid)
	}

	seen := make(map[string]bool, len(shares))
	sum := decimal.Zero
	for _, s := range shares {
		if s.ParticipantID == "" {
			return fmt.Errorf("%w: share without participant", ErrShareSumInvalid)
		}
		if seen[s.ParticipantID] {
			return fmt.Errorf("%w: participant %s listed twice", ErrShareSumInvalid, s.ParticipantID)
		}
		seen[s.ParticipantID] = true

		if s.Percentage.IsNegative() || s.Percentage.GreaterThan(hundred) {
			return fmt.Errorf("%w: share %s%% for %s is outside 0-100", ErrShareSumInvalid, s.Percentage.String(), s.ParticipantID)
		}
		sum = sum.Add(s.Percentage)
	}

	if sum.Sub(hundred).Abs().GreaterThan(ShareTolerance) {
		return fmt.Errorf("%w: shares sum to %s%%", ErrShareSumInvalid, sum.StringFixed(2))
	}
	return nil
}

// Allocate splits total between participants according to their percentages.
//
// Each amount is truncated to whole cents first; the cents left over go to the
// participants with the largest truncated remainder. Equal remainders are broken
// by slice order, so callers pass shares sorted by participant position.
// The returned amounts always add up to total exactly.
func Allocate(total decimal.Decimal, shares []ShareInput) (map[string]decimal.Decimal, error) {
	if err := ValidateShares(shares); err != nil {
		return nil, err
	}

	totalCents := total.Shift(2).Round(0)
	negative := totalCents.IsNegative()
	totalCents = totalCents.Abs()

	cents := make([]decimal.Decimal, len(shares))
	remainders := make([]decimal.Decimal, len(shares))
	assigned := decimal.Zero
	for i, s := range shares {
		exact := totalCents.Mul(s.Percentage).Div(hundred)
		cents[i] = exact.Floor()
		remainders[i] = exact.Sub(cents[i])
		assigned = assigned.Add(cents[i])
	}

	if leftover := totalCents.Sub(assigned); !leftover.IsZero() {
		distributeLeftover(cents, remainders, leftover)
	}

	result := make(map[string]decimal.Decimal, len(shares))
	for i, s := range shares {
		amount := cents[i].Shift(-2)
		if negative {
			amount = amount.Neg()
		}
		result[s.ParticipantID] = amount
	}
	return result, nil
}

// distributeLeftover spreads leftover cents over cents. A positive leftover goes
// to the largest remainders first; a negative one is taken from the smallest,
// never below zero. Shares summing to 100 leave less than one cent per
// participant, but the tolerance can leave more, so whole rounds are handed
// out in bulk.
func distributeLeftover(cents, remainders []decimal.Decimal, leftover decimal.Decimal) {
	positive := leftover.IsPositive()
	order := make([]int, len(cents))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if positive {
			return remainders[order[a]].GreaterThan(remainders[order[b]])
		}
		return remainders[order[a]].LessThan(remainders[order[b]])
	})

	one := decimal.NewFromInt(1)
	n := decimal.NewFromInt(int64(len(order)))
	remaining := leftover.Abs()
	for remaining.IsPositive() {
		step := decimal.Max(remaining.Div(n).Floor(), one)
		for _, idx := range order {
			if !remaining.IsPositive() {
				break
			}
			give := decimal.Min(step, remaining)
			if positive {
				cents[idx] = cents[idx].Add(give)
			} else {
				give = decimal.Min(give, cents[idx])
				cents[idx] = cents[idx].Sub(give)
			}
			remaining = remaining.Sub(give)
		}
	}
}
