package calculator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/models"
)

var testParticipants = []models.Participant{
	{ID: "A", Name: "Anna", Position: 1},
	{ID: "B", Name: "Bartek", Position: 2},
	{ID: "O", Name: "Other", Position: 3, Excluded: true},
}

func entry(t *testing.T, payer string, total string, s []ShareInput) EntryForBalance {
	t.Helper()
	allocation, err := Allocate(d(total), s)
	require.NoError(t, err)
	return EntryForBalance{
		PayerID: payer,
		Items:   []ItemForBalance{{Total: d(total), Allocation: allocation}},
	}
}

func netSum(balances []ParticipantBalance) decimal.Decimal {
	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(b.Net)
	}
	return total
}

func TestCalculateBalances(t *testing.T) {
	t.Run("two payers half and half", func(t *testing.T) {
		entries := []EntryForBalance{
			entry(t, "A", "100.00", shares("A", "50", "B", "50")),
			entry(t, "B", "40.00", shares("A", "50", "B", "50")),
		}

		balances, err := CalculateBalances(testParticipants, entries)
		require.NoError(t, err)
		require.Len(t, balances, 2)

		a, b := balances[0], balances[1]
		assert.Equal(t, "A", a.ParticipantID)
		assert.Equal(t, "100.00", a.ActuallyPaid.StringFixed(2))
		assert.Equal(t, "70.00", a.ShouldPay.StringFixed(2))
		assert.Equal(t, "30.00", a.Net.StringFixed(2))

		assert.Equal(t, "B", b.ParticipantID)
		assert.Equal(t, "40.00", b.ActuallyPaid.StringFixed(2))
		assert.Equal(t, "70.00", b.ShouldPay.StringFixed(2))
		assert.Equal(t, "-30.00", b.Net.StringFixed(2))

		transfer := RecommendTransfer(balances)
		require.NotNil(t, transfer)
		assert.Equal(t, "A", transfer.PayerID)
		assert.Equal(t, "B", transfer.DebtorID)
		assert.Equal(t, "30.00", transfer.Amount.StringFixed(2))
	})

	t.Run("other share is absorbed by payer", func(t *testing.T) {
		entries := []EntryForBalance{
			entry(t, "A", "90.00", shares("A", "40", "B", "30", "O", "30")),
		}

		balances, err := CalculateBalances(testParticipants, entries)
		require.NoError(t, err)
		require.Len(t, balances, 2)

		assert.Equal(t, "63.00", balances[0].ShouldPay.StringFixed(2))
		assert.Equal(t, "27.00", balances[0].Net.StringFixed(2))
		assert.Equal(t, "-27.00", balances[1].Net.StringFixed(2))
		for _, b := range balances {
			assert.NotEqual(t, "O", b.ParticipantID)
		}
	})

	t.Run("receipt paid by other is skipped", func(t *testing.T) {
		entries := []EntryForBalance{
			entry(t, "O", "50.00", shares("A", "50", "B", "50")),
		}

		balances, err := CalculateBalances(testParticipants, entries)
		require.NoError(t, err)
		for _, b := range balances {
			assert.True(t, b.ActuallyPaid.IsZero())
			assert.True(t, b.ShouldPay.IsZero())
		}
		assert.Nil(t, RecommendTransfer(balances))
	})

	t.Run("unknown payer", func(t *testing.T) {
		_, err := CalculateBalances(testParticipants, []EntryForBalance{{PayerID: "X"}})
		assert.Error(t, err)
	})

	t.Run("unknown participant in allocation", func(t *testing.T) {
		_, err := CalculateBalances(testParticipants, []EntryForBalance{
			entry(t, "A", "10.00", shares("A", "50", "Z", "50")),
		})
		assert.Error(t, err)
	})

	t.Run("no entries", func(t *testing.T) {
		balances, err := CalculateBalances(testParticipants, nil)
		require.NoError(t, err)
		assert.Len(t, balances, 2)
		assert.Nil(t, RecommendTransfer(balances))
	})
}

func TestCalculateBalancesConservation(t *testing.T) {
	splits := [][]string{
		{"A", "50", "B", "50"},
		{"A", "33.33", "B", "66.67"},
		{"A", "100", "B", "0"},
		{"A", "10", "B", "60", "O", "30"},
	}
	payers := []string{"A", "B", "A", "B", "O"}

	var entries []EntryForBalance
	for i := 0; i < 40; i++ {
		total := decimal.New(int64(137*i+19), -2).String()
		entries = append(entries, entry(t, payers[i%len(payers)], total, shares(splits[i%len(splits)]...)))

		balances, err := CalculateBalances(testParticipants, entries)
		require.NoError(t, err)
		assert.True(t, netSum(balances).IsZero(), "nets sum to %s after %d entries", netSum(balances), i+1)
	}
}
