package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type product struct {
	name  string
	cents int
}

// rawReceipt renders an e-receipt document with one sell line per product.
func rawReceipt(number, payment string, products ...product) []byte {
	var lines []string
	total := 0
	for _, p := range products {
		lines = append(lines, fmt.Sprintf(`{"sellLine": {"name": %q, "vatId": "A", "quantity": 1, "price": %d, "total": %d}}`,
			p.name, p.cents, p.cents))
		total += p.cents
	}
	lines = append(lines,
		fmt.Sprintf(`{"sumInCurrency": {"fiscalTotal": %d, "currency": "PLN"}}`, total),
		fmt.Sprintf(`{"fiscalFooter": {"billNumber": %q, "date": "2024-05-11T10:00:00"}}`, number),
		fmt.Sprintf(`{"payment": {"name": %q, "type": 2, "amount": %d}}`, payment, total),
	)
	return []byte(fmt.Sprintf(`{
		"header": [{"headerText": {"headerTextLines": "<div>LIDL 12</div><div>00-950 WARSZAWA UL. PROSTA 1</div>"}}],
		"body": [%s]
	}`, strings.Join(lines, ",\n")))
}

type fixture struct {
	engine *Engine
	store  *sqlite.SQLiteStore
	anna   models.Participant
	ben    models.Participant
	other  models.Participant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	e := New(store, Options{DefaultCurrency: "PLN"})
	ps, err := e.EnsureParticipants(ctx, []string{"Anna", "Ben"}, "Other")
	require.NoError(t, err)
	require.Len(t, ps, 3)

	require.NoError(t, e.AssignPaymentName(ctx, "Karta Anna", "Anna"))
	require.NoError(t, e.AssignPaymentName(ctx, "Karta Ben", "ben"))
	require.NoError(t, e.AssignPaymentName(ctx, "Karta Other", "Other"))

	return &fixture{engine: e, store: store, anna: ps[0], ben: ps[1], other: ps[2]}
}

func shareInputs(pairs ...string) []calculator.ShareInput {
	out := make([]calculator.ShareInput, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, calculator.ShareInput{ParticipantID: pairs[i], Percentage: d(pairs[i+1])})
	}
	return out
}

// admitCounted admits a receipt and gives every item the same shares.
func (f *fixture) admitCounted(t *testing.T, raw []byte, pairs ...string) *models.Receipt {
	t.Helper()
	ctx := context.Background()

	v, err := f.engine.NormalizeAndAdmit(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, StatusAdmitted, v.Status, v.Reason)

	shares := make(map[string][]calculator.ShareInput)
	for _, item := range v.Receipt.Items {
		shares[item.ID] = shareInputs(pairs...)
	}
	require.NoError(t, f.engine.CountReceipt(ctx, v.ReceiptID, shares))

	receipt, err := f.engine.Receipt(ctx, v.ReceiptID)
	require.NoError(t, err)
	return receipt
}

func TestEnsureParticipantsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.EnsureParticipants(ctx, []string{"Anna"}, "Other")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = f.engine.EnsureParticipants(ctx, []string{"Anna", "anna"}, "Other")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	p, err := f.engine.ResolveParticipant(ctx, "ANNA")
	require.NoError(t, err)
	assert.Equal(t, f.anna.ID, p.ID)

	_, err = f.engine.ResolveParticipant(ctx, "Carol")
	assert.True(t, errors.Is(err, ErrUnknownParticipant))
}

func TestNormalizeAndAdmit(t *testing.T) {
	ctx := context.Background()

	t.Run("admitted then duplicate", func(t *testing.T) {
		f := newFixture(t)
		raw := rawReceipt("100", "Karta Anna", product{"Mleko", 500})

		first, err := f.engine.NormalizeAndAdmit(ctx, raw)
		require.NoError(t, err)
		assert.Equal(t, StatusAdmitted, first.Status)
		assert.NotEmpty(t, first.ReceiptID)
		assert.Equal(t, f.anna.ID, first.Receipt.PayerID)
		assert.NoError(t, first.Err())

		second, err := f.engine.NormalizeAndAdmit(ctx, raw)
		require.NoError(t, err)
		assert.Equal(t, StatusDuplicate, second.Status)
		assert.Equal(t, first.ReceiptID, second.ReceiptID)
		assert.Equal(t, "duplicate_receipt", second.Class)
		assert.True(t, errors.Is(second.Err(), ErrDuplicateReceipt))
		assert.True(t, second.Status.Rejected())

		uncounted, err := f.engine.UncountedReceipts(ctx)
		require.NoError(t, err)
		assert.Len(t, uncounted, 1)
	})

	t.Run("same key with different total is a conflict", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.NormalizeAndAdmit(ctx, rawReceipt("100", "Karta Anna", product{"Mleko", 500}))
		require.NoError(t, err)

		v, err := f.engine.NormalizeAndAdmit(ctx, rawReceipt("100", "Karta Anna", product{"Mleko", 550}))
		require.NoError(t, err)
		assert.Equal(t, StatusConflict, v.Status)
		assert.True(t, errors.Is(v.Err(), ErrConflictingReceipt))
		assert.True(t, v.Status.Rejected())
	})

	t.Run("malformed input", func(t *testing.T) {
		f := newFixture(t)
		v, err := f.engine.NormalizeAndAdmit(ctx, []byte(`{"header": [], "body": []}`))
		require.NoError(t, err)
		assert.Equal(t, StatusMalformed, v.Status)
		assert.Equal(t, "malformed_receipt", v.Class)
		assert.Nil(t, v.Receipt)
		assert.True(t, v.Status.Rejected())
	})

	t.Run("ignored payment name", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.engine.IgnorePaymentName(ctx, "Bon podarunkowy"))

		v, err := f.engine.NormalizeAndAdmit(ctx, rawReceipt("7", "Bon podarunkowy", product{"Kawa", 1299}))
		require.NoError(t, err)
		assert.Equal(t, StatusIgnored, v.Status)
		assert.Empty(t, v.ReceiptID)

		uncounted, err := f.engine.UncountedReceipts(ctx)
		require.NoError(t, err)
		assert.Empty(t, uncounted)
	})

	t.Run("payment of the excluded participant", func(t *testing.T) {
		f := newFixture(t)
		v, err := f.engine.NormalizeAndAdmit(ctx, rawReceipt("8", "Karta Other", product{"Kawa", 1299}))
		require.NoError(t, err)
		require.Equal(t, StatusAdmitted, v.Status)
		assert.True(t, v.Receipt.NotOurReceipt)
		assert.Equal(t, f.other.ID, v.Receipt.PayerID)
	})

	t.Run("concurrent admission of the same receipt inserts once", func(t *testing.T) {
		f := newFixture(t)
		raw := rawReceipt("555", "Karta Ben", product{"Chleb", 450})

		const workers = 4
		verdicts := make([]*Verdict, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v, err := f.engine.NormalizeAndAdmit(ctx, raw)
				assert.NoError(t, err)
				verdicts[i] = v
			}(i)
		}
		wg.Wait()

		admitted := 0
		for _, v := range verdicts {
			require.NotNil(t, v)
			switch v.Status {
			case StatusAdmitted:
				admitted++
			default:
				assert.Equal(t, StatusDuplicate, v.Status)
			}
		}
		assert.Equal(t, 1, admitted)
	})
}

func TestAllocate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	receipt := f.admitCounted(t, rawReceipt("1", "Karta Anna", product{"Milk", 500}), "Anna", "60", "Ben", "40")

	amounts, err := f.engine.Allocate(ctx, receipt.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "3.00", amounts[f.anna.ID].StringFixed(2))
	assert.Equal(t, "2.00", amounts[f.ben.ID].StringFixed(2))

	t.Run("static share fallback", func(t *testing.T) {
		_, err := f.engine.SetStaticShare(ctx, "Piwo", shareInputs("Ben", "100"), "ben", "only Ben drinks it")
		require.NoError(t, err)

		v, err := f.engine.NormalizeAndAdmit(ctx, rawReceipt("2", "Karta Anna", product{"Piwo", 399}))
		require.NoError(t, err)

		amounts, err := f.engine.Allocate(ctx, v.Receipt.Items[0].ID)
		require.NoError(t, err)
		assert.Equal(t, "3.99", amounts[f.ben.ID].StringFixed(2))
		assert.True(t, amounts[f.anna.ID].IsZero())
	})

	t.Run("no shares and no static default", func(t *testing.T) {
		v, err := f.engine.NormalizeAndAdmit(ctx, rawReceipt("3", "Karta Anna", product{"Ser", 899}))
		require.NoError(t, err)

		_, err = f.engine.Allocate(ctx, v.Receipt.Items[0].ID)
		assert.True(t, errors.Is(err, ErrUnallocatedItem), "got %v", err)
	})

	t.Run("unknown item", func(t *testing.T) {
		_, err := f.engine.Allocate(ctx, "missing")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})
}

func TestCountReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.engine.NormalizeAndAdmit(ctx, rawReceipt("1", "Karta Anna", product{"Mleko", 500}, product{"Piwo", 399}))
	require.NoError(t, err)
	milk, beer := v.Receipt.Items[0].ID, v.Receipt.Items[1].ID

	err = f.engine.CountReceipt(ctx, v.ReceiptID, map[string][]calculator.ShareInput{
		milk: shareInputs("Anna", "60", "Ben", "41"),
		beer: shareInputs("Ben", "100"),
	})
	assert.True(t, errors.Is(err, ErrShareSumInvalid), "got %v", err)

	err = f.engine.CountReceipt(ctx, v.ReceiptID, map[string][]calculator.ShareInput{
		milk: shareInputs("Anna", "60", "Ben", "40"),
	})
	assert.True(t, errors.Is(err, ErrUnallocatedItem), "got %v", err)

	err = f.engine.CountReceipt(ctx, v.ReceiptID, map[string][]calculator.ShareInput{
		milk: shareInputs("Anna", "50", "Carol", "50"),
		beer: shareInputs("Ben", "100"),
	})
	assert.True(t, errors.Is(err, ErrUnknownParticipant), "got %v", err)

	uncounted, err := f.engine.UncountedReceipts(ctx)
	require.NoError(t, err)
	assert.Len(t, uncounted, 1)

	_, err = f.engine.SetStaticShare(ctx, "Piwo", shareInputs("Ben", "100"), "ben", "")
	require.NoError(t, err)
	err = f.engine.CountReceipt(ctx, v.ReceiptID, map[string][]calculator.ShareInput{
		milk: shareInputs("Anna", "60", "Ben", "40"),
	})
	require.NoError(t, err)

	uncounted, err = f.engine.UncountedReceipts(ctx)
	require.NoError(t, err)
	assert.Empty(t, uncounted)
}

func TestAggregateBalances(t *testing.T) {
	ctx := context.Background()

	t.Run("two receipts split evenly", func(t *testing.T) {
		f := newFixture(t)
		f.admitCounted(t, rawReceipt("1", "Karta Anna", product{"Zakupy", 10000}), "Anna", "50", "Ben", "50")
		f.admitCounted(t, rawReceipt("2", "Karta Ben", product{"Obiad", 4000}), "Anna", "50", "Ben", "50")

		b, err := f.engine.AggregateBalances(ctx)
		require.NoError(t, err)
		require.Len(t, b.Rows, 2)
		assert.Empty(t, b.Issues)
		assert.Len(t, b.Settleable, 2)

		anna, ben := b.Rows[0], b.Rows[1]
		assert.Equal(t, f.anna.ID, anna.Participant.ID)
		assert.Equal(t, "100.00", anna.ActuallyPaid.StringFixed(2))
		assert.Equal(t, "70.00", anna.ShouldPay.StringFixed(2))
		assert.Equal(t, "30.00", anna.Net.StringFixed(2))
		assert.Equal(t, "40.00", ben.ActuallyPaid.StringFixed(2))
		assert.Equal(t, "70.00", ben.ShouldPay.StringFixed(2))
		assert.Equal(t, "-30.00", ben.Net.StringFixed(2))
		assert.True(t, anna.Net.Add(ben.Net).IsZero())

		rec, err := f.engine.RecommendSettlement(ctx)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, f.anna.ID, rec.PayerID)
		assert.Equal(t, f.ben.ID, rec.DebtorID)
		assert.Equal(t, "30.00", rec.Amount.StringFixed(2))
	})

	t.Run("issues are flagged and left out", func(t *testing.T) {
		f := newFixture(t)
		f.admitCounted(t, rawReceipt("1", "Karta Anna", product{"Zakupy", 1000}), "Anna", "50", "Ben", "50")

		// No shares for this one.
		_, err := f.engine.NormalizeAndAdmit(ctx, rawReceipt("2", "Karta Ben", product{"Ser", 899}))
		require.NoError(t, err)

		// Payment name nobody owns yet.
		_, err = f.engine.NormalizeAndAdmit(ctx, rawReceipt("3", "Blik", product{"Bilet", 340}))
		require.NoError(t, err)

		// Paid by Other: closed at settlement, never counted.
		_, err = f.engine.NormalizeAndAdmit(ctx, rawReceipt("4", "Karta Other", product{"Kawa", 1299}))
		require.NoError(t, err)

		b, err := f.engine.AggregateBalances(ctx)
		require.NoError(t, err)
		require.Len(t, b.Issues, 2)
		kinds := []IssueKind{b.Issues[0].Kind, b.Issues[1].Kind}
		assert.ElementsMatch(t, []IssueKind{IssueUnallocatedItem, IssueUnassignedPayer}, kinds)
		assert.Len(t, b.Settleable, 2)

		assert.Equal(t, "5.00", b.Rows[0].Net.StringFixed(2))
		assert.Equal(t, "-5.00", b.Rows[1].Net.StringFixed(2))

		settlement, err := f.engine.Finalize(ctx, FinalizeRequest{
			PayerID: f.anna.ID, DebtorID: f.ben.ID, Amount: d("5.00"), FinalizedBy: "anna",
		})
		require.NoError(t, err)

		detail, err := f.engine.SettlementDetail(ctx, settlement.ID)
		require.NoError(t, err)
		assert.Len(t, detail.Receipts, 2)

		b, err = f.engine.AggregateBalances(ctx)
		require.NoError(t, err)
		assert.Len(t, b.Issues, 2)
		assert.Empty(t, b.Settleable)
	})

	t.Run("shares for the excluded participant are carried by the payer", func(t *testing.T) {
		f := newFixture(t)
		f.admitCounted(t, rawReceipt("1", "Karta Ben", product{"Prezent", 9000}), "Anna", "40", "Ben", "30", "Other", "30")

		b, err := f.engine.AggregateBalances(ctx)
		require.NoError(t, err)
		require.Len(t, b.Rows, 2)
		assert.Equal(t, "36.00", b.Rows[0].ShouldPay.StringFixed(2))
		assert.Equal(t, "-36.00", b.Rows[0].Net.StringFixed(2))
		assert.Equal(t, "54.00", b.Rows[1].ShouldPay.StringFixed(2))
		assert.Equal(t, "36.00", b.Rows[1].Net.StringFixed(2))
	})

	t.Run("reassigned payment name moves the receipt to the new payer", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.engine.AssignPaymentName(ctx, "Karta X", "Other"))
		v, err := f.engine.NormalizeAndAdmit(ctx, rawReceipt("1", "Karta X", product{"Zakupy", 10000}))
		require.NoError(t, err)
		require.Equal(t, StatusAdmitted, v.Status)
		require.True(t, v.Receipt.NotOurReceipt)

		b, err := f.engine.AggregateBalances(ctx)
		require.NoError(t, err)
		assert.Empty(t, b.Issues)
		assert.Len(t, b.Settleable, 1)
		assert.Nil(t, b.Recommendation)

		require.NoError(t, f.engine.AssignPaymentName(ctx, "Karta X", "Anna"))

		receipt, err := f.engine.Receipt(ctx, v.ReceiptID)
		require.NoError(t, err)
		assert.Equal(t, f.anna.ID, receipt.PayerID)
		assert.False(t, receipt.NotOurReceipt)

		// No shares yet: flagged, not silently closed.
		b, err = f.engine.AggregateBalances(ctx)
		require.NoError(t, err)
		require.Len(t, b.Issues, 1)
		assert.Equal(t, IssueUnallocatedItem, b.Issues[0].Kind)
		assert.Empty(t, b.Settleable)

		uncounted, err := f.engine.UncountedReceipts(ctx)
		require.NoError(t, err)
		require.Len(t, uncounted, 1)
		assert.Equal(t, v.ReceiptID, uncounted[0].ID)

		require.NoError(t, f.engine.CountReceipt(ctx, v.ReceiptID, map[string][]calculator.ShareInput{
			receipt.Items[0].ID: shareInputs("Anna", "50", "Ben", "50"),
		}))

		b, err = f.engine.AggregateBalances(ctx)
		require.NoError(t, err)
		assert.Empty(t, b.Issues)
		assert.Equal(t, "100.00", b.Rows[0].ActuallyPaid.StringFixed(2))
		assert.Equal(t, "50.00", b.Rows[0].Net.StringFixed(2))
		assert.Equal(t, "-50.00", b.Rows[1].Net.StringFixed(2))
	})

	t.Run("manual expenses count like receipts", func(t *testing.T) {
		f := newFixture(t)
		expense, err := f.engine.AddManualExpense(ctx, ManualExpenseInput{
			Date:        "2024-05-20",
			Description: "Prąd",
			TotalCost:   d("120.00"),
			PayerID:     "Ben",
			Category:    "Bills",
			Shares:      shareInputs("Anna", "50", "Ben", "50"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Manual Expense: Prąd", expense.Item.Name)
		assert.Equal(t, ManualExpenseTaxType, expense.Item.TaxType)

		b, err := f.engine.AggregateBalances(ctx)
		require.NoError(t, err)
		assert.Equal(t, "-60.00", b.Rows[0].Net.StringFixed(2))
		assert.Equal(t, "60.00", b.Rows[1].Net.StringFixed(2))
		assert.Equal(t, []models.OwnerRef{models.ManualExpenseRef(expense.ID)}, b.Settleable)
	})
}

func TestAddManualExpenseValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	valid := ManualExpenseInput{
		Date: "2024-05-20", Description: "Gaz", TotalCost: d("80"), PayerID: "Anna",
		Shares: shareInputs("Anna", "50", "Ben", "50"),
	}

	tests := []struct {
		name   string
		mutate func(in *ManualExpenseInput)
		want   error
	}{
		{"empty description", func(in *ManualExpenseInput) { in.Description = " " }, ErrInvalidInput},
		{"bad date", func(in *ManualExpenseInput) { in.Date = "20.05.2024" }, ErrInvalidInput},
		{"zero cost", func(in *ManualExpenseInput) { in.TotalCost = decimal.Zero }, ErrInvalidInput},
		{"sub-cent cost", func(in *ManualExpenseInput) { in.TotalCost = d("1.005") }, ErrInvalidInput},
		{"unknown payer", func(in *ManualExpenseInput) { in.PayerID = "Carol" }, ErrUnknownParticipant},
		{"excluded payer", func(in *ManualExpenseInput) { in.PayerID = "Other" }, ErrInvalidInput},
		{"shares off", func(in *ManualExpenseInput) { in.Shares = shareInputs("Anna", "60", "Ben", "41") }, ErrShareSumInvalid},
		{"no shares", func(in *ManualExpenseInput) { in.Shares = nil }, ErrShareSumInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := f.engine.AddManualExpense(ctx, in)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestStaticShareHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.SetStaticShare(ctx, "Mleko", shareInputs("Anna", "50", "Ben", "50"), "anna", "start")
	require.NoError(t, err)
	_, err = f.engine.SetStaticShare(ctx, "Mleko", shareInputs("Anna", "50", "Ben", "50"), "anna", "no-op")
	require.NoError(t, err)
	_, err = f.engine.SetStaticShare(ctx, "Mleko", shareInputs("Anna", "80", "Ben", "20"), "ben", "Anna drinks more")
	require.NoError(t, err)

	changes, err := f.engine.StaticShareHistory(ctx, "Mleko")
	require.NoError(t, err)
	require.Len(t, changes, 4)
	assert.Equal(t, "Anna drinks more", changes[3].Reason)
	assert.Equal(t, "ben", changes[3].ChangedBy)

	_, err = f.engine.SetStaticShare(ctx, "Mleko", shareInputs("Anna", "60", "Ben", "41"), "ben", "")
	assert.True(t, errors.Is(err, ErrShareSumInvalid))
}

func TestFinalize(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) *fixture {
		f := newFixture(t)
		f.admitCounted(t, rawReceipt("1", "Karta Anna", product{"Zakupy", 10000}), "Anna", "50", "Ben", "50")
		f.admitCounted(t, rawReceipt("2", "Karta Ben", product{"Obiad", 4000}), "Anna", "50", "Ben", "50")
		return f
	}

	t.Run("mismatch leaves the ledger untouched", func(t *testing.T) {
		f := seed(t)
		before, err := f.engine.AggregateBalances(ctx)
		require.NoError(t, err)

		bad := []FinalizeRequest{
			{PayerID: f.ben.ID, DebtorID: f.anna.ID, Amount: d("30.00")},
			{PayerID: f.anna.ID, DebtorID: f.ben.ID, Amount: d("29.99")},
			{PayerID: f.anna.ID, DebtorID: f.anna.ID, Amount: d("30.00")},
			{PayerID: f.anna.ID, DebtorID: f.other.ID, Amount: d("30.00")},
			{PayerID: f.anna.ID, DebtorID: f.ben.ID, Amount: d("30.001")},
			{PayerID: f.anna.ID, DebtorID: f.ben.ID, Amount: d("0")},
		}
		for _, req := range bad {
			_, err := f.engine.Finalize(ctx, req)
			assert.True(t, errors.Is(err, ErrSettlementMismatch), "request %+v: got %v", req, err)
		}

		settlements, err := f.engine.ListSettlements(ctx)
		require.NoError(t, err)
		assert.Empty(t, settlements)

		after, err := f.engine.AggregateBalances(ctx)
		require.NoError(t, err)
		assert.Equal(t, before.Settleable, after.Settleable)
		assert.True(t, before.Rows[0].Net.Equal(after.Rows[0].Net))
	})

	t.Run("matching request settles everything", func(t *testing.T) {
		f := seed(t)
		settlement, err := f.engine.Finalize(ctx, FinalizeRequest{
			PayerID: f.anna.ID, DebtorID: f.ben.ID, Amount: d("30"), Note: " May ", FinalizedBy: "anna",
		})
		require.NoError(t, err)
		assert.Equal(t, "May", settlement.Note)
		assert.NotZero(t, settlement.FinalizedAt)

		b, err := f.engine.AggregateBalances(ctx)
		require.NoError(t, err)
		assert.Empty(t, b.Settleable)
		assert.Nil(t, b.Recommendation)
		for _, row := range b.Rows {
			assert.True(t, row.Net.IsZero())
		}

		list, err := f.engine.ListSettlements(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)

		detail, err := f.engine.SettlementDetail(ctx, settlement.ID)
		require.NoError(t, err)
		assert.Len(t, detail.Receipts, 2)

		// Nothing left to settle.
		_, err = f.engine.Finalize(ctx, FinalizeRequest{PayerID: f.anna.ID, DebtorID: f.ben.ID, Amount: decimal.Zero})
		assert.True(t, errors.Is(err, ErrSettlementMismatch))
	})

	t.Run("balanced period closes with zero amount", func(t *testing.T) {
		f := newFixture(t)
		f.admitCounted(t, rawReceipt("1", "Karta Anna", product{"Zakupy", 1000}), "Anna", "100")

		_, err := f.engine.Finalize(ctx, FinalizeRequest{PayerID: f.anna.ID, DebtorID: f.ben.ID, Amount: decimal.Zero})
		require.NoError(t, err)
	})

	t.Run("partial commit is reported as incomplete", func(t *testing.T) {
		f := seed(t)
		e := New(partialStore{f.store}, Options{})

		_, err := e.Finalize(ctx, FinalizeRequest{PayerID: f.anna.ID, DebtorID: f.ben.ID, Amount: d("30")})
		assert.True(t, errors.Is(err, ErrSettlementIncomplete), "got %v", err)
	})

	t.Run("commit confirmed despite storage error", func(t *testing.T) {
		f := seed(t)
		e := New(lostAckStore{f.store}, Options{})

		settlement, err := e.Finalize(ctx, FinalizeRequest{PayerID: f.anna.ID, DebtorID: f.ben.ID, Amount: d("30")})
		require.NoError(t, err)
		assert.NotEmpty(t, settlement.ID)
	})

	t.Run("shares changed after validation abort the commit", func(t *testing.T) {
		f := seed(t)
		before, err := f.engine.AggregateBalances(ctx)
		require.NoError(t, err)

		// The 100.00 receipt paid by Anna.
		var receipt *models.Receipt
		for _, ref := range before.Settleable {
			id, ok := ref.ReceiptID()
			require.True(t, ok)
			r, err := f.engine.Receipt(ctx, id)
			require.NoError(t, err)
			if r.PayerID == f.anna.ID {
				receipt = r
			}
		}
		require.NotNil(t, receipt)
		receiptID := receipt.ID

		e := New(racingStore{Store: f.store, before: func() {
			require.NoError(t, f.engine.CountReceipt(ctx, receiptID, map[string][]calculator.ShareInput{
				receipt.Items[0].ID: shareInputs("Anna", "100"),
			}))
		}}, Options{})

		_, err = e.Finalize(ctx, FinalizeRequest{PayerID: f.anna.ID, DebtorID: f.ben.ID, Amount: d("30")})
		assert.True(t, errors.Is(err, ErrSettlementMismatch), "got %v", err)

		list, err := f.engine.ListSettlements(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)

		after, err := f.engine.AggregateBalances(ctx)
		require.NoError(t, err)
		assert.Len(t, after.Settleable, 2)
		assert.Equal(t, "-20.00", after.Rows[0].Net.StringFixed(2))
	})

	t.Run("storage failure before commit", func(t *testing.T) {
		f := seed(t)
		e := New(failingStore{f.store}, Options{})

		_, err := e.Finalize(ctx, FinalizeRequest{PayerID: f.anna.ID, DebtorID: f.ben.ID, Amount: d("30")})
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrSettlementIncomplete))

		b, err := f.engine.AggregateBalances(ctx)
		require.NoError(t, err)
		assert.Len(t, b.Settleable, 2)
	})
}

// partialStore commits a settlement that closes only the first item.
type partialStore struct{ storage.Store }

func (s partialStore) CreateSettlementAtomic(ctx context.Context, settlement *models.Settlement, refs []models.OwnerRef, revision int64) error {
	return s.Store.CreateSettlementAtomic(ctx, settlement, refs[:1], revision)
}

// lostAckStore commits and then reports an error.
type lostAckStore struct{ storage.Store }

func (s lostAckStore) CreateSettlementAtomic(ctx context.Context, settlement *models.Settlement, refs []models.OwnerRef, revision int64) error {
	if err := s.Store.CreateSettlementAtomic(ctx, settlement, refs, revision); err != nil {
		return err
	}
	return errors.New("connection reset after commit")
}

// racingStore runs before just ahead of the commit, standing in for a
// concurrent writer.
type racingStore struct {
	storage.Store
	before func()
}

func (s racingStore) CreateSettlementAtomic(ctx context.Context, settlement *models.Settlement, refs []models.OwnerRef, revision int64) error {
	s.before()
	return s.Store.CreateSettlementAtomic(ctx, settlement, refs, revision)
}

// failingStore fails without writing.
type failingStore struct{ storage.Store }

func (s failingStore) CreateSettlementAtomic(ctx context.Context, settlement *models.Settlement, refs []models.OwnerRef, revision int64) error {
	if settlement.ID == "" {
		settlement.ID = "never-written"
	}
	return errors.New("disk I/O error")
}
