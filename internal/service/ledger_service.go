package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/middleware"
)

const (
	// LedgerServiceName is the fully-qualified name of the ledger service.
	LedgerServiceName = "splitledger.v1.LedgerService"

	LedgerServiceAdmitReceiptProcedure        = "/" + LedgerServiceName + "/AdmitReceipt"
	LedgerServiceAllocateProcedure            = "/" + LedgerServiceName + "/Allocate"
	LedgerServiceAggregateBalancesProcedure   = "/" + LedgerServiceName + "/AggregateBalances"
	LedgerServiceRecommendSettlementProcedure = "/" + LedgerServiceName + "/RecommendSettlement"
	LedgerServiceFinalizeProcedure            = "/" + LedgerServiceName + "/Finalize"
	LedgerServiceListSettlementsProcedure     = "/" + LedgerServiceName + "/ListSettlements"
	LedgerServiceGetSettlementProcedure       = "/" + LedgerServiceName + "/GetSettlement"
	LedgerServiceCountReceiptProcedure        = "/" + LedgerServiceName + "/CountReceipt"
	LedgerServiceAddManualExpenseProcedure    = "/" + LedgerServiceName + "/AddManualExpense"
	LedgerServiceSetStaticShareProcedure      = "/" + LedgerServiceName + "/SetStaticShare"
	LedgerServiceListUncountedProcedure       = "/" + LedgerServiceName + "/ListUncounted"
)

// LedgerService exposes the ledger engine over Connect.
type LedgerService struct {
	engine *ledger.Engine
}

// NewLedgerService creates a new LedgerService backed by engine.
func NewLedgerService(engine *ledger.Engine) *LedgerService {
	return &LedgerService{engine: engine}
}

// NewLedgerServiceHandler builds an HTTP handler serving every LedgerService
// procedure. It returns the path to mount the handler on.
func NewLedgerServiceHandler(svc *LedgerService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSONCodec()}, opts...)

	mux := http.NewServeMux()
	mux.Handle(LedgerServiceAdmitReceiptProcedure, connect.NewUnaryHandler(LedgerServiceAdmitReceiptProcedure, svc.AdmitReceipt, opts...))
	mux.Handle(LedgerServiceAllocateProcedure, connect.NewUnaryHandler(LedgerServiceAllocateProcedure, svc.Allocate, opts...))
	mux.Handle(LedgerServiceAggregateBalancesProcedure, connect.NewUnaryHandler(LedgerServiceAggregateBalancesProcedure, svc.AggregateBalances, opts...))
	mux.Handle(LedgerServiceRecommendSettlementProcedure, connect.NewUnaryHandler(LedgerServiceRecommendSettlementProcedure, svc.RecommendSettlement, opts...))
	mux.Handle(LedgerServiceFinalizeProcedure, connect.NewUnaryHandler(LedgerServiceFinalizeProcedure, svc.Finalize, opts...))
	mux.Handle(LedgerServiceListSettlementsProcedure, connect.NewUnaryHandler(LedgerServiceListSettlementsProcedure, svc.ListSettlements, opts...))
	mux.Handle(LedgerServiceGetSettlementProcedure, connect.NewUnaryHandler(LedgerServiceGetSettlementProcedure, svc.GetSettlement, opts...))
	mux.Handle(LedgerServiceCountReceiptProcedure, connect.NewUnaryHandler(LedgerServiceCountReceiptProcedure, svc.CountReceipt, opts...))
	mux.Handle(LedgerServiceAddManualExpenseProcedure, connect.NewUnaryHandler(LedgerServiceAddManualExpenseProcedure, svc.AddManualExpense, opts...))
	mux.Handle(LedgerServiceSetStaticShareProcedure, connect.NewUnaryHandler(LedgerServiceSetStaticShareProcedure, svc.SetStaticShare, opts...))
	mux.Handle(LedgerServiceListUncountedProcedure, connect.NewUnaryHandler(LedgerServiceListUncountedProcedure, svc.ListUncounted, opts...))

	return "/" + LedgerServiceName + "/", mux
}

// AdmitReceipt normalizes and stores one raw e-receipt. Rejections come back as
// errors; an ignored payment is a successful response with status "ignored".
func (s *LedgerService) AdmitReceipt(ctx context.Context, req *connect.Request[AdmitReceiptRequest]) (*connect.Response[AdmitReceiptResponse], error) {
	if len(req.Msg.Raw) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("raw receipt is required"))
	}

	verdict, err := s.engine.NormalizeAndAdmit(ctx, req.Msg.Raw)
	if err != nil {
		return nil, toConnectError("AdmitReceipt", err)
	}
	if verdict.Err() != nil {
		cerr := toConnectError("AdmitReceipt", verdict.Err())
		if verdict.ReceiptID != "" {
			cerr.Meta().Set("Receipt-Id", verdict.ReceiptID)
		}
		return nil, cerr
	}

	return connect.NewResponse(&AdmitReceiptResponse{
		Status:    string(verdict.Status),
		ReceiptID: verdict.ReceiptID,
		Class:     verdict.Class,
		Reason:    verdict.Reason,
	}), nil
}

// Allocate returns the per-participant amounts of one line item.
func (s *LedgerService) Allocate(ctx context.Context, req *connect.Request[AllocateRequest]) (*connect.Response[AllocateResponse], error) {
	if req.Msg.ItemID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("item_id is required"))
	}

	amounts, err := s.engine.Allocate(ctx, req.Msg.ItemID)
	if err != nil {
		return nil, toConnectError("Allocate", err)
	}
	ps, err := s.engine.Participants(ctx)
	if err != nil {
		return nil, toConnectError("Allocate", err)
	}

	resp := &AllocateResponse{}
	for _, p := range ps {
		amount, ok := amounts[p.ID]
		if !ok {
			continue
		}
		resp.Allocations = append(resp.Allocations, Allocation{ParticipantID: p.ID, Name: p.Name, Amount: amount})
	}
	return connect.NewResponse(resp), nil
}

// AggregateBalances returns the current balances, issues and recommendation.
func (s *LedgerService) AggregateBalances(ctx context.Context, req *connect.Request[AggregateBalancesRequest]) (*connect.Response[AggregateBalancesResponse], error) {
	b, err := s.engine.AggregateBalances(ctx)
	if err != nil {
		return nil, toConnectError("AggregateBalances", err)
	}

	resp := &AggregateBalancesResponse{
		Recommendation: toTransfer(b.Recommendation),
		Issues:         make([]Issue, 0, len(b.Issues)),
		Settleable:     len(b.Settleable),
	}
	for _, row := range b.Rows {
		resp.Rows = append(resp.Rows, BalanceRow{
			ParticipantID: row.Participant.ID,
			Name:          row.Participant.Name,
			ActuallyPaid:  row.ActuallyPaid,
			ShouldPay:     row.ShouldPay,
			Net:           row.Net,
		})
	}
	for _, issue := range b.Issues {
		resp.Issues = append(resp.Issues, toIssue(issue))
	}
	return connect.NewResponse(resp), nil
}

// RecommendSettlement returns the transfer that settles the current balances.
func (s *LedgerService) RecommendSettlement(ctx context.Context, req *connect.Request[RecommendSettlementRequest]) (*connect.Response[RecommendSettlementResponse], error) {
	rec, err := s.engine.RecommendSettlement(ctx)
	if err != nil {
		return nil, toConnectError("RecommendSettlement", err)
	}
	return connect.NewResponse(&RecommendSettlementResponse{Recommendation: toTransfer(rec)}), nil
}

// Finalize records a settlement confirmed by the operator.
func (s *LedgerService) Finalize(ctx context.Context, req *connect.Request[FinalizeRequest]) (*connect.Response[FinalizeResponse], error) {
	settlement, err := s.engine.Finalize(ctx, ledger.FinalizeRequest{
		PayerID:     req.Msg.PayerID,
		DebtorID:    req.Msg.DebtorID,
		Amount:      req.Msg.Amount,
		Note:        req.Msg.Note,
		FinalizedBy: middleware.GetOperator(ctx),
	})
	if err != nil {
		return nil, toConnectError("Finalize", err)
	}
	return connect.NewResponse(&FinalizeResponse{Settlement: toSettlement(*settlement)}), nil
}

// ListSettlements returns settlement history, newest first.
func (s *LedgerService) ListSettlements(ctx context.Context, req *connect.Request[ListSettlementsRequest]) (*connect.Response[ListSettlementsResponse], error) {
	settlements, err := s.engine.ListSettlements(ctx)
	if err != nil {
		return nil, toConnectError("ListSettlements", err)
	}

	resp := &ListSettlementsResponse{Settlements: make([]Settlement, 0, len(settlements))}
	for _, st := range settlements {
		resp.Settlements = append(resp.Settlements, toSettlement(st))
	}
	return connect.NewResponse(resp), nil
}

// GetSettlement returns one settlement with the entries it closed.
func (s *LedgerService) GetSettlement(ctx context.Context, req *connect.Request[GetSettlementRequest]) (*connect.Response[GetSettlementResponse], error) {
	if req.Msg.SettlementID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("settlement_id is required"))
	}

	detail, err := s.engine.SettlementDetail(ctx, req.Msg.SettlementID)
	if err != nil {
		return nil, toConnectError("GetSettlement", err)
	}

	resp := &GetSettlementResponse{
		Settlement:     toSettlement(detail.Settlement),
		Receipts:       make([]Receipt, 0, len(detail.Receipts)),
		ManualExpenses: make([]ManualExpense, 0, len(detail.ManualExpenses)),
	}
	for _, r := range detail.Receipts {
		resp.Receipts = append(resp.Receipts, toReceipt(r))
	}
	for _, m := range detail.ManualExpenses {
		resp.ManualExpenses = append(resp.ManualExpenses, toManualExpense(m))
	}
	return connect.NewResponse(resp), nil
}

// CountReceipt stores reviewed shares for a receipt.
func (s *LedgerService) CountReceipt(ctx context.Context, req *connect.Request[CountReceiptRequest]) (*connect.Response[CountReceiptResponse], error) {
	if req.Msg.ReceiptID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("receipt_id is required"))
	}

	shares := make(map[string][]calculator.ShareInput, len(req.Msg.Items))
	for _, item := range req.Msg.Items {
		if _, dup := shares[item.ItemID]; dup {
			return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("item %s listed twice", item.ItemID))
		}
		shares[item.ItemID] = toShareInputs(item.Shares)
	}

	if err := s.engine.CountReceipt(ctx, req.Msg.ReceiptID, shares); err != nil {
		return nil, toConnectError("CountReceipt", err)
	}
	return connect.NewResponse(&CountReceiptResponse{}), nil
}

// AddManualExpense stores an expense entered by hand.
func (s *LedgerService) AddManualExpense(ctx context.Context, req *connect.Request[AddManualExpenseRequest]) (*connect.Response[AddManualExpenseResponse], error) {
	expense, err := s.engine.AddManualExpense(ctx, ledger.ManualExpenseInput{
		Date:        req.Msg.Date,
		Description: req.Msg.Description,
		TotalCost:   req.Msg.TotalCost,
		PayerID:     req.Msg.Payer,
		Category:    req.Msg.Category,
		Shares:      toShareInputs(req.Msg.Shares),
	})
	if err != nil {
		return nil, toConnectError("AddManualExpense", err)
	}
	return connect.NewResponse(&AddManualExpenseResponse{ExpenseID: expense.ID, ItemID: expense.Item.ID}), nil
}

// SetStaticShare sets the default split for a product name.
func (s *LedgerService) SetStaticShare(ctx context.Context, req *connect.Request[SetStaticShareRequest]) (*connect.Response[SetStaticShareResponse], error) {
	_, err := s.engine.SetStaticShare(ctx, req.Msg.ItemName, toShareInputs(req.Msg.Shares), middleware.GetOperator(ctx), req.Msg.Reason)
	if err != nil {
		return nil, toConnectError("SetStaticShare", err)
	}
	return connect.NewResponse(&SetStaticShareResponse{}), nil
}

// ListUncounted returns receipts still waiting for share review.
func (s *LedgerService) ListUncounted(ctx context.Context, req *connect.Request[ListUncountedRequest]) (*connect.Response[ListUncountedResponse], error) {
	receipts, err := s.engine.UncountedReceipts(ctx)
	if err != nil {
		return nil, toConnectError("ListUncounted", err)
	}

	resp := &ListUncountedResponse{Receipts: make([]Receipt, 0, len(receipts))}
	for _, r := range receipts {
		resp.Receipts = append(resp.Receipts, toReceipt(r))
	}
	return connect.NewResponse(resp), nil
}
