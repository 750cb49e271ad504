package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// RawReceipt is the e-receipt document as exported by the register.
// Monetary values are in minor units (1/100 of the currency).
type RawReceipt struct {
	Header  []HeaderEntry `json:"header"`
	Body    []BodyEntry   `json:"body"`
	Store   *RawStore     `json:"store,omitempty"`
	Fiscal  *FiscalFooter `json:"fiscal,omitempty"`
	Payment *Payment      `json:"payment,omitempty"`
}

// HeaderEntry is one element of the header array; at most one field is set.
type HeaderEntry struct {
	HeaderData *HeaderData `json:"headerData,omitempty"`
	HeaderText *HeaderText `json:"headerText,omitempty"`
}

type HeaderData struct {
	DocNumber Text `json:"docNumber"`
}

type HeaderText struct {
	// HeaderTextLines is HTML, one <div> per printed line.
	HeaderTextLines string `json:"headerTextLines"`
}

// BodyEntry is one element of the body array; at most one field is set.
type BodyEntry struct {
	SellLine        *SellLine        `json:"sellLine,omitempty"`
	DiscountLine    *DiscountLine    `json:"discountLine,omitempty"`
	SumInCurrency   *SumInCurrency   `json:"sumInCurrency,omitempty"`
	DiscountSummary *DiscountSummary `json:"discountSummary,omitempty"`
	FiscalFooter    *FiscalFooter    `json:"fiscalFooter,omitempty"`
	Payment         *Payment         `json:"payment,omitempty"`
	Store           *RawStore        `json:"store,omitempty"`
	AddLine         *AddLine         `json:"addLine,omitempty"`
}

// SellLine is a sold product. Name may end with the tax letter ("Mleko 2% B").
type SellLine struct {
	Name     string              `json:"name"`
	VatID    string              `json:"vatId"`
	Quantity decimal.NullDecimal `json:"quantity"`
	Price    decimal.NullDecimal `json:"price"`
	Total    decimal.NullDecimal `json:"total"`
}

// DiscountLine reduces the price of a preceding product.
// Base is the total before discount of the product it applies to.
type DiscountLine struct {
	Name  string              `json:"name"`
	VatID string              `json:"vatId"`
	Base  decimal.NullDecimal `json:"base"`
	Value decimal.NullDecimal `json:"value"`
}

type SumInCurrency struct {
	FiscalTotal decimal.NullDecimal `json:"fiscalTotal"`
	Currency    string              `json:"currency"`
}

type DiscountSummary struct {
	Discounts decimal.NullDecimal `json:"discounts"`
}

type FiscalFooter struct {
	BillNumber Text   `json:"billNumber"`
	Date       string `json:"date"`
}

type Payment struct {
	Name     string              `json:"name"`
	Type     Text                `json:"type"`
	Amount   decimal.NullDecimal `json:"amount"`
	Currency string              `json:"currency"`
}

type RawStore struct {
	Name    string `json:"name"`
	City    string `json:"city"`
	Address string `json:"address"`
}

type AddLine struct {
	Data string `json:"data"`
}

// Text accepts both JSON strings and numbers; registers emit bill numbers as either.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*t = Text(n.String())
	return nil
}

// Parse decodes a raw receipt document.
func Parse(data []byte) (*RawReceipt, error) {
	var raw RawReceipt
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedReceipt, err)
	}
	return &raw, nil
}
