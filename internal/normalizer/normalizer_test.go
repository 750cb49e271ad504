package normalizer

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReceipt = `{
  "header": [
    {"headerData": {"docNumber": "2024/05/11/77"}},
    {"headerText": {"headerTextLines": "<div class=\"l\">BIEDRONKA 1234 \"Jeronimo Martins Polska\"</div><div>60-649 POZNAŃ UL. PIĄTKOWSKA 78C</div>"}}
  ],
  "body": [
    {"sellLine": {"name": "Mleko 2% B", "quantity": 2, "price": 349, "total": 698}},
    {"discountLine": {"vatId": "B", "base": 698, "value": -100}},
    {"sellLine": {"name": "Banany", "vatId": "C", "quantity": 0.754, "price": 599, "total": 452}},
    {"sumInCurrency": {"fiscalTotal": 1050, "currency": "PLN"}},
    {"discountSummary": {"discounts": 100}},
    {"fiscalFooter": {"billNumber": 1234, "date": "2024-05-11T14:32:05.000Z"}},
    {"payment": {"name": " Karta VISA ", "type": 2, "amount": 1050}}
  ]
}`

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nd(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d(s), Valid: true}
}

// baseRaw is a minimal well-formed document with one product.
func baseRaw() *RawReceipt {
	return &RawReceipt{
		Header: []HeaderEntry{
			{HeaderText: &HeaderText{HeaderTextLines: "<div>LIDL 12</div><div>00-950 WARSZAWA UL. PROSTA 1</div>"}},
		},
		Body: []BodyEntry{
			{SellLine: &SellLine{Name: "Chleb A", Quantity: nd("1"), Price: nd("500"), Total: nd("500")}},
			{SumInCurrency: &SumInCurrency{FiscalTotal: nd("500")}},
			{FiscalFooter: &FiscalFooter{BillNumber: "42", Date: "2024-01-02T08:09:10"}},
		},
	}
}

func assertConsistent(t *testing.T, items []itemView) {
	t.Helper()
	for _, it := range items {
		assert.True(t, it.after.Equal(it.before.Sub(it.discount)), "%s: after != before - discount", it.name)
		assert.True(t, it.discount.LessThanOrEqual(it.before), "%s: discount above price", it.name)
	}
}

type itemView struct {
	name     string
	before   decimal.Decimal
	discount decimal.Decimal
	after    decimal.Decimal
}

func TestNormalizeSampleReceipt(t *testing.T) {
	receipt, err := New(Options{}).NormalizeBytes([]byte(sampleReceipt))
	require.NoError(t, err)

	assert.Equal(t, "BIEDRONKA", receipt.Store.Name)
	assert.Equal(t, "60-649", receipt.Store.PostalCode)
	assert.Equal(t, "POZNAŃ", receipt.Store.City)
	assert.Equal(t, "UL. PIĄTKOWSKA 78C", receipt.Store.Address)
	assert.Equal(t, "1234", receipt.Number)
	assert.Equal(t, "2024-05-11", receipt.Date)
	assert.Equal(t, "14:32:05", receipt.Time)
	assert.Equal(t, "10.50", receipt.FinalPrice.StringFixed(2))
	assert.Equal(t, "1.00", receipt.TotalDiscounts.StringFixed(2))
	assert.Equal(t, "PLN", receipt.Currency)
	assert.Equal(t, "Karta VISA", receipt.PaymentName)

	require.Len(t, receipt.Items, 2)

	milk := receipt.Items[0]
	assert.Equal(t, "Mleko 2%", milk.Name)
	assert.Equal(t, "B", milk.TaxType)
	assert.True(t, milk.Quantity.Equal(d("2")))
	assert.Equal(t, "3.49", milk.UnitPriceBefore.StringFixed(2))
	assert.Equal(t, "6.98", milk.TotalPriceBefore.StringFixed(2))
	assert.Equal(t, "1.00", milk.TotalDiscount.StringFixed(2))
	assert.Equal(t, "0.50", milk.UnitDiscount.StringFixed(2))
	assert.Equal(t, "2.99", milk.UnitAfterDiscount.StringFixed(2))
	assert.Equal(t, "5.98", milk.TotalAfterDiscount.StringFixed(2))

	bananas := receipt.Items[1]
	assert.Equal(t, "Banany", bananas.Name)
	assert.Equal(t, "C", bananas.TaxType)
	assert.Equal(t, "0.754", bananas.Quantity.StringFixed(3))
	assert.Equal(t, "4.52", bananas.TotalAfterDiscount.StringFixed(2))
	assert.True(t, bananas.TotalDiscount.IsZero())

	views := make([]itemView, 0, len(receipt.Items))
	for _, it := range receipt.Items {
		views = append(views, itemView{it.Name, it.TotalPriceBefore, it.TotalDiscount, it.TotalAfterDiscount})
	}
	assertConsistent(t, views)
	assert.True(t, receipt.ItemsTotal().Equal(receipt.FinalPrice))
}

func TestNormalizeOneProductTrailingDiscount(t *testing.T) {
	raw := baseRaw()
	raw.Body = append(raw.Body[:1], append([]BodyEntry{
		{DiscountLine: &DiscountLine{VatID: "A", Value: nd("-120")}},
	}, raw.Body[1:]...)...)

	receipt, err := New(Options{}).Normalize(raw)
	require.NoError(t, err)
	require.Len(t, receipt.Items, 1)

	item := receipt.Items[0]
	assert.Equal(t, "5.00", item.TotalPriceBefore.StringFixed(2))
	assert.Equal(t, "1.20", item.TotalDiscount.StringFixed(2))
	assert.True(t, item.TotalAfterDiscount.Equal(item.TotalPriceBefore.Sub(item.TotalDiscount)))
	assert.Equal(t, "1.20", receipt.TotalDiscounts.StringFixed(2))
}

func TestNormalizeDiscountMatching(t *testing.T) {
	t.Run("nearest preceding product with matching base", func(t *testing.T) {
		raw := baseRaw()
		raw.Body = []BodyEntry{
			{SellLine: &SellLine{Name: "Bułka A", Quantity: nd("1"), Price: nd("100"), Total: nd("100")}},
			{SellLine: &SellLine{Name: "Bułka A", Quantity: nd("3"), Price: nd("100"), Total: nd("300")}},
			{SellLine: &SellLine{Name: "Woda B", Quantity: nd("1"), Price: nd("200"), Total: nd("200")}},
			{DiscountLine: &DiscountLine{VatID: "A", Base: nd("100"), Value: nd("-50")}},
			{SumInCurrency: &SumInCurrency{FiscalTotal: nd("550")}},
			{FiscalFooter: &FiscalFooter{BillNumber: "1", Date: "2024-01-02T08:09:10"}},
		}

		receipt, err := New(Options{}).Normalize(raw)
		require.NoError(t, err)
		require.Len(t, receipt.Items, 3)
		assert.Equal(t, "0.50", receipt.Items[0].TotalDiscount.StringFixed(2))
		assert.True(t, receipt.Items[1].TotalDiscount.IsZero())
		assert.True(t, receipt.Items[2].TotalDiscount.IsZero())
	})

	t.Run("multiple discounts accumulate", func(t *testing.T) {
		raw := baseRaw()
		raw.Body = append(raw.Body[:1], append([]BodyEntry{
			{DiscountLine: &DiscountLine{VatID: "A", Value: nd("-100")}},
			{DiscountLine: &DiscountLine{VatID: "A", Value: nd("-150")}},
		}, raw.Body[1:]...)...)

		receipt, err := New(Options{}).Normalize(raw)
		require.NoError(t, err)
		require.Len(t, receipt.Items, 1)
		assert.Equal(t, "2.50", receipt.Items[0].TotalDiscount.StringFixed(2))
		assert.Equal(t, "2.50", receipt.Items[0].TotalAfterDiscount.StringFixed(2))
	})

	t.Run("discount larger than remaining price skips to earlier product", func(t *testing.T) {
		raw := baseRaw()
		raw.Body = []BodyEntry{
			{SellLine: &SellLine{Name: "Ser A", Quantity: nd("1"), Price: nd("900"), Total: nd("900")}},
			{SellLine: &SellLine{Name: "Guma A", Quantity: nd("1"), Price: nd("200"), Total: nd("200")}},
			{DiscountLine: &DiscountLine{VatID: "A", Value: nd("-300")}},
			{SumInCurrency: &SumInCurrency{FiscalTotal: nd("800")}},
			{FiscalFooter: &FiscalFooter{BillNumber: "1", Date: "2024-01-02T08:09:10"}},
		}

		receipt, err := New(Options{}).Normalize(raw)
		require.NoError(t, err)
		assert.Equal(t, "3.00", receipt.Items[0].TotalDiscount.StringFixed(2))
		assert.True(t, receipt.Items[1].TotalDiscount.IsZero())
	})
}

func TestNormalizeProductMismatch(t *testing.T) {
	tests := []struct {
		name     string
		discount *DiscountLine
		first    bool
	}{
		{name: "no preceding product", discount: &DiscountLine{VatID: "A", Value: nd("-100")}, first: true},
		{name: "tax type differs", discount: &DiscountLine{VatID: "B", Value: nd("-100")}},
		{name: "base differs", discount: &DiscountLine{VatID: "A", Base: nd("999"), Value: nd("-100")}},
		{name: "name differs", discount: &DiscountLine{Name: "Masło", Value: nd("-100")}},
		{name: "exceeds product total", discount: &DiscountLine{VatID: "A", Value: nd("-600")}},
		{name: "missing value", discount: &DiscountLine{VatID: "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := baseRaw()
			entry := BodyEntry{DiscountLine: tt.discount}
			if tt.first {
				raw.Body = append([]BodyEntry{entry}, raw.Body...)
			} else {
				raw.Body = append(raw.Body[:1], append([]BodyEntry{entry}, raw.Body[1:]...)...)
			}

			_, err := New(Options{}).Normalize(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrProductMismatch), "got %v", err)
		})
	}
}

func TestNormalizeMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *RawReceipt)
	}{
		{name: "missing store name", mutate: func(r *RawReceipt) { r.Header = nil }},
		{name: "missing receipt number", mutate: func(r *RawReceipt) { r.Body[2].FiscalFooter.BillNumber = "" }},
		{name: "missing date", mutate: func(r *RawReceipt) { r.Body[2].FiscalFooter.Date = "" }},
		{name: "unparsable date", mutate: func(r *RawReceipt) { r.Body[2].FiscalFooter.Date = "yesterday" }},
		{name: "missing final price", mutate: func(r *RawReceipt) { r.Body[1].SumInCurrency = nil }},
		{name: "product without name", mutate: func(r *RawReceipt) { r.Body[0].SellLine.Name = "  " }},
		{name: "product without price", mutate: func(r *RawReceipt) {
			r.Body[0].SellLine.Price = decimal.NullDecimal{}
			r.Body[0].SellLine.Total = decimal.NullDecimal{}
		}},
		{name: "zero quantity", mutate: func(r *RawReceipt) { r.Body[0].SellLine.Quantity = nd("0") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := baseRaw()
			tt.mutate(raw)

			_, err := New(Options{}).Normalize(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedReceipt), "got %v", err)
		})
	}

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := New(Options{}).NormalizeBytes([]byte(`{"header": [`))
		assert.True(t, errors.Is(err, ErrMalformedReceipt))
	})
}

func TestNormalizeFallbacks(t *testing.T) {
	raw := &RawReceipt{
		Store: &RawStore{Name: "Żabka 5512", City: "Kraków", Address: "ul. Długa 5 31-147"},
		Body: []BodyEntry{
			{SellLine: &SellLine{Name: "Kawa", VatID: "a", Total: nd("1299")}},
			{SumInCurrency: &SumInCurrency{FiscalTotal: nd("1299")}},
			{AddLine: &AddLine{Data: `Nr transakcji: <span class="b">98765</span>`}},
		},
		Fiscal:  &FiscalFooter{Date: "2024-03-04T05:06:07.123"},
		Payment: &Payment{Name: "Gotówka"},
	}

	receipt, err := New(Options{DefaultCurrency: "EUR"}).Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "Żabka", receipt.Store.Name)
	assert.Equal(t, "KRAKÓW", receipt.Store.City)
	assert.Equal(t, "31-147", receipt.Store.PostalCode)
	assert.Equal(t, "ul. Długa 5", receipt.Store.Address)
	assert.Equal(t, "98765", receipt.Number)
	assert.Equal(t, "2024-03-04", receipt.Date)
	assert.Equal(t, "05:06:07", receipt.Time)
	assert.Equal(t, "EUR", receipt.Currency)
	assert.Equal(t, "Gotówka", receipt.PaymentName)

	require.Len(t, receipt.Items, 1)
	assert.Equal(t, "A", receipt.Items[0].TaxType)
	assert.True(t, receipt.Items[0].Quantity.Equal(d("1")))
	assert.Equal(t, "12.99", receipt.Items[0].UnitPriceBefore.StringFixed(2))
}

func TestNormalizeIsDeterministic(t *testing.T) {
	n := New(Options{})
	first, err := n.NormalizeBytes([]byte(sampleReceipt))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := n.NormalizeBytes([]byte(sampleReceipt))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSplitTaxLetter(t *testing.T) {
	tests := []struct {
		in, name, tax string
	}{
		{"Mleko 2% B", "Mleko 2%", "B"},
		{"Jabłka luz c", "Jabłka luz", "C"},
		{"Woda", "Woda", ""},
		{"Pomidory 1kg", "Pomidory 1kg", ""},
		{"Sok 2 L", "Sok 2", "L"},
	}
	for _, tt := range tests {
		name, tax := splitTaxLetter(tt.in)
		assert.Equal(t, tt.name, name, tt.in)
		assert.Equal(t, tt.tax, tax, tt.in)
	}
}
