package service

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/models"
)

// Request and response messages of LedgerService and AuthService.
// Amounts are decimal strings ("12.34").

type AdmitReceiptRequest struct {
	// Raw is the e-receipt document exactly as exported by the register.
	Raw json.RawMessage `json:"raw"`
}

type AdmitReceiptResponse struct {
	Status    string `json:"status"`
	ReceiptID string `json:"receipt_id,omitempty"`
	Class     string `json:"class,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type AllocateRequest struct {
	ItemID string `json:"item_id"`
}

type Allocation struct {
	ParticipantID string          `json:"participant_id"`
	Name          string          `json:"name"`
	Amount        decimal.Decimal `json:"amount"`
}

type AllocateResponse struct {
	Allocations []Allocation `json:"allocations"`
}

type AggregateBalancesRequest struct{}

type BalanceRow struct {
	ParticipantID string          `json:"participant_id"`
	Name          string          `json:"name"`
	ActuallyPaid  decimal.Decimal `json:"actually_paid"`
	ShouldPay     decimal.Decimal `json:"should_pay"`
	Net           decimal.Decimal `json:"net"`
}

type Transfer struct {
	PayerID  string          `json:"payer_id"`
	DebtorID string          `json:"debtor_id"`
	Amount   decimal.Decimal `json:"amount"`
}

type Issue struct {
	Kind      string `json:"kind"`
	OwnerKind string `json:"owner_kind"`
	OwnerID   string `json:"owner_id"`
	ItemID    string `json:"item_id,omitempty"`
	ItemName  string `json:"item_name,omitempty"`
	Detail    string `json:"detail"`
}

type AggregateBalancesResponse struct {
	Rows           []BalanceRow `json:"rows"`
	Recommendation *Transfer    `json:"recommendation,omitempty"`
	Issues         []Issue      `json:"issues"`
	Settleable     int          `json:"settleable"`
}

type RecommendSettlementRequest struct{}

type RecommendSettlementResponse struct {
	Recommendation *Transfer `json:"recommendation,omitempty"`
}

type FinalizeRequest struct {
	PayerID  string          `json:"payer_id"`
	DebtorID string          `json:"debtor_id"`
	Amount   decimal.Decimal `json:"amount"`
	Note     string          `json:"note,omitempty"`
}

type Settlement struct {
	ID          string          `json:"id"`
	PayerID     string          `json:"payer_id"`
	DebtorID    string          `json:"debtor_id"`
	Amount      decimal.Decimal `json:"amount"`
	Note        string          `json:"note,omitempty"`
	FinalizedBy string          `json:"finalized_by,omitempty"`
	FinalizedAt int64           `json:"finalized_at"`
}

type FinalizeResponse struct {
	Settlement Settlement `json:"settlement"`
}

type ListSettlementsRequest struct{}

type ListSettlementsResponse struct {
	Settlements []Settlement `json:"settlements"`
}

type GetSettlementRequest struct {
	SettlementID string `json:"settlement_id"`
}

type LineItem struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Quantity           decimal.Decimal `json:"quantity"`
	TaxType            string          `json:"tax_type"`
	TotalPriceBefore   decimal.Decimal `json:"total_price_before"`
	TotalDiscount      decimal.Decimal `json:"total_discount"`
	TotalAfterDiscount decimal.Decimal `json:"total_after_discount"`
}

type Receipt struct {
	ID            string          `json:"id"`
	Store         string          `json:"store"`
	Number        string          `json:"number"`
	Date          string          `json:"date"`
	Time          string          `json:"time"`
	FinalPrice    decimal.Decimal `json:"final_price"`
	Currency      string          `json:"currency"`
	PaymentName   string          `json:"payment_name,omitempty"`
	PayerID       string          `json:"payer_id,omitempty"`
	NotOurReceipt bool            `json:"not_our_receipt,omitempty"`
	Items         []LineItem      `json:"items"`
}

type ManualExpense struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	PayerID     string          `json:"payer_id"`
	Category    string          `json:"category"`
}

type GetSettlementResponse struct {
	Settlement     Settlement      `json:"settlement"`
	Receipts       []Receipt       `json:"receipts"`
	ManualExpenses []ManualExpense `json:"manual_expenses"`
}

// ShareEntry names a participant by ID or name.
type ShareEntry struct {
	Participant string          `json:"participant"`
	Percentage  decimal.Decimal `json:"percentage"`
}

type ItemShares struct {
	ItemID string       `json:"item_id"`
	Shares []ShareEntry `json:"shares"`
}

type CountReceiptRequest struct {
	ReceiptID string       `json:"receipt_id"`
	Items     []ItemShares `json:"items"`
}

type CountReceiptResponse struct{}

type AddManualExpenseRequest struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	Payer       string          `json:"payer"`
	Category    string          `json:"category,omitempty"`
	Shares      []ShareEntry    `json:"shares"`
}

type AddManualExpenseResponse struct {
	ExpenseID string `json:"expense_id"`
	ItemID    string `json:"item_id"`
}

type SetStaticShareRequest struct {
	ItemName string       `json:"item_name"`
	Shares   []ShareEntry `json:"shares"`
	Reason   string       `json:"reason,omitempty"`
}

type SetStaticShareResponse struct{}

type ListUncountedRequest struct{}

type ListUncountedResponse struct {
	Receipts []Receipt `json:"receipts"`
}

type LoginRequest struct {
	Operator string `json:"operator"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

func toShareInputs(entries []ShareEntry) []calculator.ShareInput {
	out := make([]calculator.ShareInput, len(entries))
	for i, e := range entries {
		out[i] = calculator.ShareInput{ParticipantID: e.Participant, Percentage: e.Percentage}
	}
	return out
}

func toTransfer(t *calculator.Transfer) *Transfer {
	if t == nil {
		return nil
	}
	return &Transfer{PayerID: t.PayerID, DebtorID: t.DebtorID, Amount: t.Amount}
}

func toSettlement(s models.Settlement) Settlement {
	return Settlement{
		ID:          s.ID,
		PayerID:     s.PayerID,
		DebtorID:    s.DebtorID,
		Amount:      s.Amount,
		Note:        s.Note,
		FinalizedBy: s.FinalizedBy,
		FinalizedAt: s.FinalizedAt,
	}
}

func toReceipt(r models.Receipt) Receipt {
	items := make([]LineItem, len(r.Items))
	for i, item := range r.Items {
		items[i] = LineItem{
			ID:                 item.ID,
			Name:               item.Name,
			Quantity:           item.Quantity,
			TaxType:            item.TaxType,
			TotalPriceBefore:   item.TotalPriceBefore,
			TotalDiscount:      item.TotalDiscount,
			TotalAfterDiscount: item.TotalAfterDiscount,
		}
	}
	return Receipt{
		ID:            r.ID,
		Store:         r.Store.Name,
		Number:        r.Number,
		Date:          r.Date,
		Time:          r.Time,
		FinalPrice:    r.FinalPrice,
		Currency:      r.Currency,
		PaymentName:   r.PaymentName,
		PayerID:       r.PayerID,
		NotOurReceipt: r.NotOurReceipt,
		Items:         items,
	}
}

func toManualExpense(m models.ManualExpense) ManualExpense {
	return ManualExpense{
		ID:          m.ID,
		Date:        m.Date,
		Description: m.Description,
		TotalCost:   m.TotalCost,
		PayerID:     m.PayerID,
		Category:    m.Category,
	}
}

func toIssue(i ledger.Issue) Issue {
	return Issue{
		Kind:      string(i.Kind),
		OwnerKind: i.Owner.Kind().String(),
		OwnerID:   i.Owner.ID(),
		ItemID:    i.ItemID,
		ItemName:  i.ItemName,
		Detail:    i.Detail,
	}
}
