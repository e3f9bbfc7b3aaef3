// Package ledger builds the four-entry journal lines the trading engine
// writes on every open and close, and serves the paginated statement query
// and conservation diagnostic described in spec.md §4.5/§8.
//
// Grounded on ChoSanghyuk-blackholedex/internal/db/transaction_recorder.go's
// habit of building one well-typed record struct per domain event and
// leaving persistence to the caller's transaction — this package never
// opens its own transaction, it only builds types.LedgerEntry values for
// internal/engine to append inside the one transaction OpenTrade/CloseTrade
// already hold.
package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"goldbroker/internal/storage"
	"goldbroker/pkg/types"
)

// OpenEntries builds the four ledger lines for OpenTrade (spec.md §4.6 step 8).
func OpenEntries(order types.Order, lp types.LPPosition, acc types.Account, prevCash, prevMetal, goldWeightValueAtSpot decimal.Decimal, now time.Time) []types.LedgerEntry {
	orderDetails, _ := json.Marshal(types.OrderDetails{OrderNo: order.OrderNo, Type: order.Type, Volume: order.Volume, Symbol: order.Symbol})
	lpDetails, _ := json.Marshal(types.LPDetails{PositionID: lp.PositionID, Type: lp.Type, Volume: lp.Volume})

	cashTxDetails, _ := json.Marshal(types.TransactionDetails{Asset: types.AssetCash, PreviousBalance: prevCash})
	goldTxDetails, _ := json.Marshal(types.TransactionDetails{Asset: types.AssetGold, PreviousBalance: prevMetal})

	goldNature := types.Credit
	if order.Type == types.Sell {
		goldNature = types.Debit
	}

	return []types.LedgerEntry{
		{
			EntryID: uuid.NewString(), EntryType: types.EntryOrder, EntryNature: types.Debit,
			ReferenceNumber: order.OrderNo, Amount: order.RequiredMargin, RunningBalance: acc.CashBalance,
			Date: now, User: acc.ID, AdminID: acc.AdminOwner, Asset: types.AssetCash,
			OrderDetailsJSON: string(orderDetails), Description: "order opened, margin reserved",
		},
		{
			EntryID: uuid.NewString(), EntryType: types.EntryLPPosition, EntryNature: types.Credit,
			ReferenceNumber: lp.PositionID, Amount: goldWeightValueAtSpot, RunningBalance: acc.CashBalance,
			Date: now, User: acc.ID, AdminID: acc.AdminOwner, Asset: types.AssetCash,
			LPDetailsJSON: string(lpDetails), Description: "LP position opened",
		},
		{
			EntryID: uuid.NewString(), EntryType: types.EntryTransaction, EntryNature: types.Debit,
			ReferenceNumber: order.OrderNo, Amount: order.RequiredMargin, RunningBalance: acc.CashBalance,
			Date: now, User: acc.ID, AdminID: acc.AdminOwner, Asset: types.AssetCash,
			TransactionDetailsJSON: string(cashTxDetails), Description: "cash debited for margin",
		},
		{
			EntryID: uuid.NewString(), EntryType: types.EntryTransaction, EntryNature: goldNature,
			ReferenceNumber: order.OrderNo, Amount: order.Volume, RunningBalance: acc.MetalWeight,
			Date: now, User: acc.ID, AdminID: acc.AdminOwner, Asset: types.AssetGold,
			TransactionDetailsJSON: string(goldTxDetails), Description: "metal weight adjusted",
		},
	}
}

// CloseEntries builds the four ledger lines for CloseTrade's settlement step
// (spec.md §4.6 step 8).
func CloseEntries(order types.Order, lp types.LPPosition, acc types.Account, prevCash, prevMetal, settlementAmount decimal.Decimal, now time.Time) []types.LedgerEntry {
	orderDetails, _ := json.Marshal(types.OrderDetails{OrderNo: order.OrderNo, Type: order.Type, Volume: order.Volume, Symbol: order.Symbol})
	lpDetails, _ := json.Marshal(types.LPDetails{PositionID: lp.PositionID, Type: lp.Type, Volume: lp.Volume})

	cashTxDetails, _ := json.Marshal(types.TransactionDetails{Asset: types.AssetCash, PreviousBalance: prevCash})
	goldTxDetails, _ := json.Marshal(types.TransactionDetails{Asset: types.AssetGold, PreviousBalance: prevMetal})

	goldNature := types.Debit
	if order.Type == types.Sell {
		goldNature = types.Credit
	}

	return []types.LedgerEntry{
		{
			EntryID: uuid.NewString(), EntryType: types.EntryOrder, EntryNature: types.Credit,
			ReferenceNumber: order.OrderNo, Amount: settlementAmount, RunningBalance: acc.CashBalance,
			Date: now, User: acc.ID, AdminID: acc.AdminOwner, Asset: types.AssetCash,
			OrderDetailsJSON: string(orderDetails), Description: "order closed, margin released",
		},
		{
			EntryID: uuid.NewString(), EntryType: types.EntryLPPosition, EntryNature: types.Debit,
			ReferenceNumber: lp.PositionID, Amount: settlementAmount, RunningBalance: acc.CashBalance,
			Date: now, User: acc.ID, AdminID: acc.AdminOwner, Asset: types.AssetCash,
			LPDetailsJSON: string(lpDetails), Description: "LP position closed",
		},
		{
			EntryID: uuid.NewString(), EntryType: types.EntryTransaction, EntryNature: types.Credit,
			ReferenceNumber: order.OrderNo, Amount: settlementAmount, RunningBalance: acc.CashBalance,
			Date: now, User: acc.ID, AdminID: acc.AdminOwner, Asset: types.AssetCash,
			TransactionDetailsJSON: string(cashTxDetails), Description: "cash credited on settlement",
		},
		{
			EntryID: uuid.NewString(), EntryType: types.EntryTransaction, EntryNature: goldNature,
			ReferenceNumber: order.OrderNo, Amount: order.Volume, RunningBalance: acc.MetalWeight,
			Date: now, User: acc.ID, AdminID: acc.AdminOwner, Asset: types.AssetGold,
			TransactionDetailsJSON: string(goldTxDetails), Description: "metal weight adjusted on close",
		},
	}
}

// Page is a paginated statement result.
type Page struct {
	Entries []types.LedgerEntry
	Page    int
	PerPage int
}

// Statement fetches a paginated, most-recent-first ledger view for a user.
func Statement(ctx context.Context, db *storage.DB, userID uint, asset types.Asset, page, pageSize int) (Page, error) {
	entries, err := db.LedgerByUser(ctx, userID, asset, page, pageSize)
	if err != nil {
		return Page{}, err
	}
	return Page{Entries: entries, Page: page, PerPage: pageSize}, nil
}

// ConservationResult is the outcome of reconciling the ledger against the
// account's current balance for one asset.
type ConservationResult struct {
	Asset          types.Asset
	TotalDebit     decimal.Decimal
	TotalCredit    decimal.Decimal
	NetFromLedger  decimal.Decimal
	CurrentBalance decimal.Decimal
	Reconciles     bool
}

// ConservationCheck verifies that credit-minus-debit across the ledger
// equals the account's current balance for asset — a diagnostic, not a
// blocking check, used by the admin surface to catch drift.
func ConservationCheck(ctx context.Context, db *storage.DB, userID uint, asset types.Asset, currentBalance decimal.Decimal) (ConservationResult, error) {
	debit, credit, err := db.LedgerSum(ctx, userID, asset)
	if err != nil {
		return ConservationResult{}, err
	}
	net := credit.Sub(debit)
	return ConservationResult{
		Asset:          asset,
		TotalDebit:     debit,
		TotalCredit:    credit,
		NetFromLedger:  net,
		CurrentBalance: currentBalance,
		Reconciles:     net.Equal(currentBalance),
	}, nil
}
