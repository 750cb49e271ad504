// Package normalizer turns raw e-receipt documents into receipts with priced,
// discount-resolved line items.
//
// Normalization is deterministic: the same document always yields the same
// receipt and the same item sequence. Inputs that cannot be normalized that way
// are rejected instead of being patched with generated values.
package normalizer

import (
	"errors"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
)

var (
	// ErrMalformedReceipt is returned when required header fields are missing or unparsable.
	ErrMalformedReceipt = errors.New("malformed receipt")

	// ErrProductMismatch is returned when a discount cannot be attached to any preceding product.
	ErrProductMismatch = errors.New("discount does not match any product")
)

var (
	headerLineRe    = regexp.MustCompile(`(?s)<div[^>]*>(.*?)</div>`)
	postalCodeRe    = regexp.MustCompile(`\b(\d{2}-\d{3})\b`)
	storeNumberRe   = regexp.MustCompile(`\s*\d+$`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
	transactionNoRe = regexp.MustCompile(`Nr transakcji:\s*<span[^>]*>(\d+)<`)

	minorUnit = decimal.NewFromInt(100)
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05",
}

// Options configures normalization.
type Options struct {
	// DefaultCurrency is used when the document does not state one.
	DefaultCurrency string
}

// Normalizer converts raw receipt documents.
type Normalizer struct {
	opts Options
}

// New creates a Normalizer. An empty default currency falls back to PLN.
func New(opts Options) *Normalizer {
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "PLN"
	}
	return &Normalizer{opts: opts}
}

// NormalizeBytes parses and normalizes a raw receipt document.
func (n *Normalizer) NormalizeBytes(data []byte) (*models.Receipt, error) {
	raw, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return n.Normalize(raw)
}

// Normalize builds a receipt with its line items from a parsed document.
// Items carry no IDs or owner yet; storage assigns those on insert.
func (n *Normalizer) Normalize(raw *RawReceipt) (*models.Receipt, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedReceipt)
	}

	receipt := &models.Receipt{
		Store:       extractStore(raw),
		Number:      extractNumber(raw),
		PaymentName: extractPaymentName(raw),
		Currency:    n.opts.DefaultCurrency,
	}

	date, clock, err := extractTimestamp(raw)
	if err != nil {
		return nil, err
	}
	receipt.Date, receipt.Time = date, clock

	finalPrice, currency, ok := extractTotal(raw)
	if !ok {
		return nil, fmt.Errorf("%w: missing final price", ErrMalformedReceipt)
	}
	receipt.FinalPrice = finalPrice
	if currency != "" {
		receipt.Currency = strings.ToUpper(currency)
	}

	if receipt.Store.Name == "" {
		return nil, fmt.Errorf("%w: missing store name", ErrMalformedReceipt)
	}
	if receipt.Number == "" {
		return nil, fmt.Errorf("%w: missing receipt number", ErrMalformedReceipt)
	}

	items, err := buildItems(raw.Body)
	if err != nil {
		return nil, err
	}
	receipt.Items = items

	if discounts, ok := extractDiscountSummary(raw); ok {
		receipt.TotalDiscounts = discounts
	} else {
		total := decimal.Zero
		for _, item := range items {
			total = total.Add(item.TotalDiscount)
		}
		receipt.TotalDiscounts = total
	}

	slog.Debug("Normalized receipt",
		"store", receipt.Store.Name,
		"number", receipt.Number,
		"date", receipt.Date,
		"items", len(receipt.Items),
		"final_price", receipt.FinalPrice.StringFixed(2),
	)
	return receipt, nil
}

// buildItems walks the body in document order. Discount lines are merged into
// the nearest preceding product of matching identity.
func buildItems(body []BodyEntry) ([]models.LineItem, error) {
	var items []models.LineItem

	for pos, entry := range body {
		switch {
		case entry.SellLine != nil:
			item, err := sellLineItem(pos, entry.SellLine)
			if err != nil {
				return nil, err
			}
			items = append(items, item)

		case entry.DiscountLine != nil:
			if err := applyDiscount(pos, items, entry.DiscountLine); err != nil {
				return nil, err
			}
		}
	}

	for i := range items {
		finishItem(&items[i])
	}
	return items, nil
}

func sellLineItem(pos int, sell *SellLine) (models.LineItem, error) {
	name, taxType := splitTaxLetter(strings.TrimRight(sell.Name, " \t "))
	if taxType == "" {
		taxType = strings.ToUpper(strings.TrimSpace(sell.VatID))
	}
	if name == "" {
		return models.LineItem{}, fmt.Errorf("%w: product at position %d has no name", ErrMalformedReceipt, pos)
	}

	quantity := decimal.NewFromInt(1)
	if sell.Quantity.Valid {
		quantity = sell.Quantity.Decimal.Round(3)
	}
	if !quantity.IsPositive() {
		return models.LineItem{}, fmt.Errorf("%w: product %q has quantity %s", ErrMalformedReceipt, name, quantity)
	}

	var unit, total decimal.Decimal
	switch {
	case sell.Price.Valid && sell.Total.Valid:
		unit = sell.Price.Decimal.Div(minorUnit)
		total = sell.Total.Decimal.Div(minorUnit)
	case sell.Total.Valid:
		total = sell.Total.Decimal.Div(minorUnit)
		unit = total.Div(quantity)
	case sell.Price.Valid:
		unit = sell.Price.Decimal.Div(minorUnit)
		total = unit.Mul(quantity)
	default:
		return models.LineItem{}, fmt.Errorf("%w: product %q has no price", ErrMalformedReceipt, name)
	}

	return models.LineItem{
		Name:             name,
		TaxType:          taxType,
		Quantity:         quantity,
		UnitPriceBefore:  unit,
		TotalPriceBefore: total.Round(2),
		UnitDiscount:     decimal.Zero,
		TotalDiscount:    decimal.Zero,
	}, nil
}

func applyDiscount(pos int, items []models.LineItem, discount *DiscountLine) error {
	if !discount.Value.Valid {
		return fmt.Errorf("%w: discount at position %d has no value", ErrProductMismatch, pos)
	}
	value := discount.Value.Decimal.Abs().Div(minorUnit).Round(2)
	vatID := strings.ToUpper(strings.TrimSpace(discount.VatID))
	name, _ := splitTaxLetter(strings.TrimSpace(discount.Name))

	var base decimal.Decimal
	hasBase := discount.Base.Valid
	if hasBase {
		base = discount.Base.Decimal.Div(minorUnit).Round(2)
	}

	for i := len(items) - 1; i >= 0; i-- {
		item := &items[i]
		if vatID != "" && item.TaxType != vatID {
			continue
		}
		if hasBase && !item.TotalPriceBefore.Equal(base) {
			continue
		}
		if name != "" && !strings.EqualFold(item.Name, name) {
			continue
		}
		if item.TotalDiscount.Add(value).GreaterThan(item.TotalPriceBefore) {
			continue
		}

		item.TotalDiscount = item.TotalDiscount.Add(value)
		return nil
	}

	return fmt.Errorf("%w: discount %s at position %d (vat %q, base %s)",
		ErrProductMismatch, value.StringFixed(2), pos, vatID, base.StringFixed(2))
}

// finishItem derives the after-discount fields and rounds money to cents.
func finishItem(item *models.LineItem) {
	item.UnitDiscount = item.TotalDiscount.Div(item.Quantity).Round(2)
	item.UnitPriceBefore = item.UnitPriceBefore.Round(2)
	item.TotalDiscount = item.TotalDiscount.Round(2)
	item.UnitAfterDiscount = item.UnitPriceBefore.Sub(item.UnitDiscount)
	item.TotalAfterDiscount = item.TotalPriceBefore.Sub(item.TotalDiscount)
}

// splitTaxLetter separates a trailing single-letter tax category from a product name.
func splitTaxLetter(name string) (string, string) {
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return name, ""
	}
	last := name[idx+1:]
	if len(last) == 1 && isLetter(last[0]) {
		return strings.TrimRight(name[:idx], " "), strings.ToUpper(last)
	}
	return name, ""
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func extractStore(raw *RawReceipt) models.Store {
	var store models.Store

	for _, entry := range raw.Header {
		if entry.HeaderText == nil || entry.HeaderText.HeaderTextLines == "" {
			continue
		}
		lines := headerLines(entry.HeaderText.HeaderTextLines)
		if len(lines) > 0 && store.Name == "" {
			store.Name = strings.TrimSpace(strings.SplitN(lines[0], `"`, 2)[0])
		}
		if len(lines) > 1 && store.Address == "" {
			store.PostalCode, store.City, store.Address = splitAddressLine(lines[1])
		}
	}

	candidates := []*RawStore{raw.Store}
	for _, entry := range raw.Body {
		candidates = append(candidates, entry.Store)
	}
	for _, s := range candidates {
		if s == nil {
			continue
		}
		if store.Name == "" {
			store.Name = strings.TrimSpace(s.Name)
		}
		if store.City == "" {
			store.City = strings.ToUpper(strings.TrimSpace(s.City))
		}
		if store.Address == "" {
			address := strings.TrimSpace(s.Address)
			if m := postalCodeRe.FindString(address); m != "" {
				if store.PostalCode == "" {
					store.PostalCode = m
				}
				address = strings.TrimSpace(strings.Replace(address, m, "", 1))
			}
			store.Address = collapseSpaces(address)
		}
	}

	store.Name = strings.TrimSpace(storeNumberRe.ReplaceAllString(store.Name, ""))
	return store
}

func headerLines(markup string) []string {
	var lines []string
	for _, m := range headerLineRe.FindAllStringSubmatch(markup, -1) {
		line := collapseSpaces(html.UnescapeString(m[1]))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// splitAddressLine splits "60-649 POZNAŃ UL. PIĄTKOWSKA 78C" into postal code, city and street.
func splitAddressLine(line string) (postal, city, address string) {
	if m := postalCodeRe.FindString(line); m != "" {
		postal = m
		line = strings.Replace(line, m, "", 1)
	}
	line = collapseSpaces(line)
	parts := strings.SplitN(line, " ", 2)
	if len(parts) == 2 {
		return postal, parts[0], strings.TrimSpace(parts[1])
	}
	return postal, line, ""
}

func collapseSpaces(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func extractNumber(raw *RawReceipt) string {
	for _, entry := range raw.Body {
		if entry.FiscalFooter != nil && entry.FiscalFooter.BillNumber != "" {
			return strings.TrimSpace(string(entry.FiscalFooter.BillNumber))
		}
	}
	if raw.Fiscal != nil && raw.Fiscal.BillNumber != "" {
		return strings.TrimSpace(string(raw.Fiscal.BillNumber))
	}
	for _, entry := range raw.Header {
		if entry.HeaderData != nil && entry.HeaderData.DocNumber != "" {
			return strings.TrimSpace(string(entry.HeaderData.DocNumber))
		}
	}
	for _, entry := range raw.Body {
		if entry.AddLine == nil {
			continue
		}
		if m := transactionNoRe.FindStringSubmatch(entry.AddLine.Data); m != nil {
			return m[1]
		}
	}
	return ""
}

func extractTimestamp(raw *RawReceipt) (string, string, error) {
	value := ""
	for _, entry := range raw.Body {
		if entry.FiscalFooter != nil && entry.FiscalFooter.Date != "" {
			value = entry.FiscalFooter.Date
			break
		}
	}
	if value == "" && raw.Fiscal != nil {
		value = raw.Fiscal.Date
	}
	if value == "" {
		return "", "", fmt.Errorf("%w: missing date and time", ErrMalformedReceipt)
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02"), t.Format("15:04:05"), nil
		}
	}
	return "", "", fmt.Errorf("%w: unparsable timestamp %q", ErrMalformedReceipt, value)
}

func extractTotal(raw *RawReceipt) (decimal.Decimal, string, bool) {
	for _, entry := range raw.Body {
		if entry.SumInCurrency != nil && entry.SumInCurrency.FiscalTotal.Valid {
			total := entry.SumInCurrency.FiscalTotal.Decimal.Div(minorUnit).Round(2)
			return total, entry.SumInCurrency.Currency, true
		}
	}
	return decimal.Zero, "", false
}

func extractDiscountSummary(raw *RawReceipt) (decimal.Decimal, bool) {
	for _, entry := range raw.Body {
		if entry.DiscountSummary != nil && entry.DiscountSummary.Discounts.Valid {
			return entry.DiscountSummary.Discounts.Decimal.Abs().Div(minorUnit).Round(2), true
		}
	}
	return decimal.Zero, false
}

func extractPaymentName(raw *RawReceipt) string {
	for _, entry := range raw.Body {
		if entry.Payment != nil && strings.TrimSpace(entry.Payment.Name) != "" {
			return strings.TrimSpace(entry.Payment.Name)
		}
	}
	if raw.Payment != nil {
		return strings.TrimSpace(raw.Payment.Name)
	}
	return ""
}
