// Package engine is the trading engine: it owns the one transactional
// boundary around every balance-mutating operation (opening a trade, closing
// it, cancelling it, and posting deposits/withdrawals) and is the only
// package that writes to Account, Order, LPPosition, or Transaction rows.
//
// The teacher's engine.Engine is a long-running orchestrator that owns
// goroutines, slots, and dispatch loops (market-making is continuous). This
// domain has no continuous strategy loop — OpenTrade/CloseTrade/CancelTrade
// are request/response operations invoked per admin or session action — so
// what's kept from the teacher is the *wiring* shape: New(cfg, deps, logger)
// constructs the engine from already-built collaborators (storage, bridge,
// balance policy) the same way teacher's New() wires exchange.Client,
// risk.Manager and store.Store, and logging follows the same
// logger.With("component", ...) convention throughout.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"goldbroker/internal/apperr"
	"goldbroker/internal/balance"
	"goldbroker/internal/bridge"
	"goldbroker/internal/ledger"
	"goldbroker/internal/pricing"
	"goldbroker/internal/storage"
	"goldbroker/pkg/types"
)

// Bridge is the subset of bridge.Bridge the engine needs, so tests can
// substitute a mock bridge per spec.md §9's design note.
type Bridge interface {
	PlaceTrade(ctx context.Context, req types.PlaceTradeRequest) (types.PlaceTradeResult, error)
	CloseTrade(ctx context.Context, req types.CloseTradeRequest) (types.CloseTradeResult, error)
}

// Engine is the trading engine.
type Engine struct {
	db     *storage.DB
	bridge Bridge
	policy balance.Policy
	logger *slog.Logger
}

// New wires an Engine from already-constructed collaborators.
func New(db *storage.DB, br Bridge, policy balance.Policy, logger *slog.Logger) *Engine {
	return &Engine{db: db, bridge: br, policy: policy, logger: logger.With("component", "engine")}
}

// OpenTradeRequest is the normalized input to OpenTrade.
type OpenTradeRequest struct {
	Symbol         string
	Type           types.Side
	Volume         decimal.Decimal
	Spot           decimal.Decimal
	RequiredMargin *decimal.Decimal // optional override, spec.md §4.6 step 3
	OpeningDate    time.Time
}

// OpenTradeResult is everything OpenTrade produces, per spec.md §4.6.
type OpenTradeResult struct {
	Order          types.Order
	LPPosition     types.LPPosition
	Cash           decimal.Decimal
	Gold           decimal.Decimal
	RequiredMargin decimal.Decimal
	GoldWeightValue decimal.Decimal
	LedgerEntries  []types.LedgerEntry
}

// OpenTrade places a trade against the upstream venue and, on success,
// performs the nine writes of spec.md §4.6 inside one transaction.
func (e *Engine) OpenTrade(ctx context.Context, adminID, userID uint, req OpenTradeRequest) (OpenTradeResult, error) {
	if req.Volume.LessThanOrEqual(decimal.Zero) {
		return OpenTradeResult{}, apperr.Validationf("volume must be positive")
	}

	placed, err := e.bridge.PlaceTrade(ctx, types.PlaceTradeRequest{
		Symbol: req.Symbol,
		Volume: req.Volume,
		Type:   req.Type,
		Comment: bridge.NextClientTag("open"),
	})
	if err != nil {
		return OpenTradeResult{}, err
	}

	var result OpenTradeResult
	err = e.db.Transaction(ctx, func(tx *storage.Tx) error {
		acc, err := tx.LockAccountScoped(userID, adminID)
		if err != nil {
			return apperr.NotFoundf("account %d not found for admin %d", userID, adminID)
		}

		clientPrice := pricing.QuoteForOpen(req.Spot, req.Type, acc.AskSpread, acc.BidSpread)

		requiredMargin := pricing.GoldWeightValue(clientPrice, req.Volume)
		if req.RequiredMargin != nil {
			requiredMargin = *req.RequiredMargin
		}

		prevCash, prevMetal := acc.CashBalance, acc.MetalWeight
		newCash := acc.CashBalance.Sub(requiredMargin)
		newMetal := acc.MetalWeight.Add(req.Volume)
		if req.Type == types.Sell {
			newMetal = acc.MetalWeight.Sub(req.Volume)
		}

		orderNo := fmt.Sprintf("ORD-%s", uuid.NewString())
		openingDate := req.OpeningDate
		if openingDate.IsZero() {
			openingDate = time.Now().UTC()
		}

		ticket := placed.Ticket
		order := types.Order{
			OrderNo: orderNo, Type: req.Type, Volume: req.Volume, Symbol: req.Symbol,
			Price: clientPrice, OpeningPrice: clientPrice, RequiredMargin: requiredMargin,
			OpeningDate: openingDate, OrderStatus: types.OrderProcessing,
			User: userID, AdminID: adminID, Ticket: &ticket,
		}
		if err := tx.CreateOrder(&order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		lp := types.LPPosition{
			PositionID: orderNo, Type: req.Type, Volume: req.Volume, Symbol: req.Symbol,
			EntryPrice: req.Spot, CurrentPrice: req.Spot, OpenDate: openingDate,
			Status: types.LPOpen, ClientOrder: order.ID, AdminID: adminID,
		}
		if err := tx.CreateLPPosition(&lp); err != nil {
			return fmt.Errorf("create lp position: %w", err)
		}

		order.LPPositionID = &lp.ID
		if err := tx.SaveOrder(&order); err != nil {
			return fmt.Errorf("link order to lp position: %w", err)
		}

		acc.CashBalance = newCash
		acc.MetalWeight = newMetal
		if err := tx.SaveAccount(acc); err != nil {
			return fmt.Errorf("save account: %w", err)
		}

		goldWeightAtSpot := pricing.GoldWeightValue(req.Spot, req.Volume)
		entries := ledger.OpenEntries(order, lp, *acc, prevCash, prevMetal, goldWeightAtSpot, openingDate)
		for i := range entries {
			if err := tx.AppendLedgerEntry(&entries[i]); err != nil {
				return fmt.Errorf("append ledger entry: %w", err)
			}
		}

		result = OpenTradeResult{
			Order: order, LPPosition: lp, Cash: acc.CashBalance, Gold: acc.MetalWeight,
			RequiredMargin: requiredMargin, GoldWeightValue: goldWeightAtSpot, LedgerEntries: entries,
		}
		return nil
	})
	if err != nil {
		return OpenTradeResult{}, err
	}

	return result, nil
}

// CloseTradeUpdate is the whitelisted update CloseTrade accepts (spec.md
// §4.6: "whitelist-filter update to {orderStatus, closingPrice, closingDate,
// profit, comment, price}").
type CloseTradeUpdate struct {
	OrderStatus types.OrderStatus
	ClosingPrice *decimal.Decimal
	ClosingDate *time.Time
	Comment     string
}

// CloseTradeResult mirrors the fields CloseTrade mutates.
type CloseTradeResult struct {
	Order      types.Order
	LPPosition types.LPPosition
	Cash       decimal.Decimal
	Gold       decimal.Decimal
}

// CloseTrade applies a whitelisted update to an order and, if that update
// transitions the order to CLOSED, settles the trade per spec.md §4.6. An
// update to CANCELLED is handed to CancelTrade, which reverses the open.
func (e *Engine) CloseTrade(ctx context.Context, adminID, orderID uint, update CloseTradeUpdate) (CloseTradeResult, error) {
	if update.OrderStatus == types.OrderCancelled {
		return e.CancelTrade(ctx, adminID, orderID, update.Comment)
	}

	var result CloseTradeResult

	err := e.db.Transaction(ctx, func(tx *storage.Tx) error {
		order, err := tx.OrderByIDScoped(orderID, adminID)
		if err != nil {
			return apperr.NotFoundf("order %d not found for admin %d", orderID, adminID)
		}
		if order.OrderStatus.Terminal() {
			return apperr.Conflictf("order %s is already in terminal state %s", order.OrderNo, order.OrderStatus)
		}

		acc, err := tx.LockAccountScoped(order.User, adminID)
		if err != nil {
			return apperr.NotFoundf("account %d not found", order.User)
		}

		spot := order.Price
		if update.ClosingPrice != nil {
			spot = *update.ClosingPrice
		}
		clientClosingPrice := pricing.QuoteForClose(spot, order.Type, acc.AskSpread, acc.BidSpread)

		entryWeight := pricing.GoldWeightValue(order.OpeningPrice, order.Volume)
		closeClientWeight := pricing.GoldWeightValue(clientClosingPrice, order.Volume)

		clientProfit := clientClosingPrice.Sub(order.OpeningPrice).Mul(order.Volume)
		if order.Type == types.Sell {
			clientProfit = clientProfit.Neg()
		}

		lp, err := tx.LPPositionByPositionID(order.OrderNo)
		if err != nil {
			return fmt.Errorf("load lp position for order %s: %w", order.OrderNo, err)
		}
		lpEntryWeight := pricing.GoldWeightValue(lp.EntryPrice, lp.Volume)
		lpClosingWeight := pricing.GoldWeightValue(spot, lp.Volume)
		lpProfit := lpEntryWeight.Sub(entryWeight).Abs().Add(lpClosingWeight.Sub(closeClientWeight).Abs())

		closingDate := update.ClosingDate
		if update.OrderStatus == types.OrderClosed && closingDate == nil {
			now := time.Now().UTC()
			closingDate = &now
		}

		order.OrderStatus = update.OrderStatus
		order.ClosingDate = closingDate
		if update.ClosingPrice != nil {
			order.ClosingPrice = update.ClosingPrice
			order.Price = *update.ClosingPrice
		}
		if update.Comment != "" {
			order.Comment = update.Comment
		}
		if update.OrderStatus == types.OrderClosed {
			order.Profit = clientProfit.Round(2)
		}
		if err := tx.SaveOrder(order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}

		lp.CurrentPrice = spot
		if update.OrderStatus == types.OrderClosed {
			lp.Status = types.LPClosed
			lp.ClosingPrice = &spot
			lp.CloseDate = closingDate
			lp.Profit = lpProfit
		}
		if err := tx.SaveLPPosition(lp); err != nil {
			return fmt.Errorf("save lp position: %w", err)
		}

		result = CloseTradeResult{Order: *order, LPPosition: *lp, Cash: acc.CashBalance, Gold: acc.MetalWeight}

		if update.OrderStatus != types.OrderClosed {
			return nil
		}

		venueResult, err := e.bridge.CloseTrade(ctx, types.CloseTradeRequest{
			Ticket: derefTicket(order.Ticket), Symbol: order.Symbol, Volume: order.Volume, Type: order.Type,
		})
		if err != nil {
			e.logger.Warn("upstream close_trade failed, proceeding with internal settlement", "order", order.OrderNo, "error", err)
		}
		if venueResult.LikelyClosed {
			// spec.md §8: venue reports the position already gone — treat as a
			// non-fatal reconciliation signal and leave balances untouched,
			// since whatever closed it already settled the account.
			e.logger.Warn("upstream reports position already closed, skipping settlement", "order", order.OrderNo)
			return nil
		}

		var settlementAmount decimal.Decimal
		if order.Type == types.Buy {
			settlementAmount = closeClientWeight
		} else {
			settlementAmount = entryWeight
		}
		if !order.RequiredMargin.IsZero() {
			settlementAmount = order.RequiredMargin
		}
		userProfit := decimal.Max(clientProfit, decimal.Zero)

		prevCash, prevMetal := acc.CashBalance, acc.MetalWeight
		acc.CashBalance = acc.CashBalance.Add(settlementAmount).Add(userProfit)
		if order.Type == types.Buy {
			acc.MetalWeight = acc.MetalWeight.Sub(order.Volume)
		} else {
			acc.MetalWeight = acc.MetalWeight.Add(order.Volume)
		}
		if err := tx.SaveAccount(acc); err != nil {
			return fmt.Errorf("save account: %w", err)
		}

		entries := ledger.CloseEntries(*order, *lp, *acc, prevCash, prevMetal, settlementAmount, time.Now().UTC())
		for i := range entries {
			if err := tx.AppendLedgerEntry(&entries[i]); err != nil {
				return fmt.Errorf("append ledger entry: %w", err)
			}
		}

		result = CloseTradeResult{Order: *order, LPPosition: *lp, Cash: acc.CashBalance, Gold: acc.MetalWeight}
		return nil
	})
	if err != nil {
		return CloseTradeResult{}, err
	}
	return result, nil
}

// CancelTrade transitions a PROCESSING order to CANCELLED, reversing the
// balance mutation OpenTrade made. This operation is not spelled out as its
// own named function in spec.md — only implied by the order state machine
// ("PROCESSING → CANCELLED | FAILED ... reverses the open") — so it is
// supplemented here rather than folded into CloseTrade, since cancellation
// never touches the upstream venue or writes a settlement-profit ledger
// line the way a close does.
func (e *Engine) CancelTrade(ctx context.Context, adminID, orderID uint, reason string) (CloseTradeResult, error) {
	var result CloseTradeResult

	err := e.db.Transaction(ctx, func(tx *storage.Tx) error {
		order, err := tx.OrderByIDScoped(orderID, adminID)
		if err != nil {
			return apperr.NotFoundf("order %d not found for admin %d", orderID, adminID)
		}
		if order.OrderStatus.Terminal() {
			return apperr.Conflictf("order %s is already in terminal state %s", order.OrderNo, order.OrderStatus)
		}

		acc, err := tx.LockAccountScoped(order.User, adminID)
		if err != nil {
			return apperr.NotFoundf("account %d not found", order.User)
		}

		lp, err := tx.LPPositionByPositionID(order.OrderNo)
		if err != nil {
			return fmt.Errorf("load lp position for order %s: %w", order.OrderNo, err)
		}

		prevCash, prevMetal := acc.CashBalance, acc.MetalWeight

		// Reverse the open: BUY deposit (cash debit) is subtracted back in
		// (cash credited), metal credit is reversed (debited); mirrored for
		// SELL, per the deposit/withdrawal reversal rule in spec.md §4.7.
		acc.CashBalance = acc.CashBalance.Add(order.RequiredMargin)
		if order.Type == types.Buy {
			acc.MetalWeight = acc.MetalWeight.Sub(order.Volume)
		} else {
			acc.MetalWeight = acc.MetalWeight.Add(order.Volume)
		}
		if err := tx.SaveAccount(acc); err != nil {
			return fmt.Errorf("save account: %w", err)
		}

		now := time.Now().UTC()
		order.OrderStatus = types.OrderCancelled
		order.ClosingDate = &now
		if reason != "" {
			order.Comment = reason
		}
		if err := tx.SaveOrder(order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}

		lp.Status = types.LPClosed
		lp.CloseDate = &now
		if err := tx.SaveLPPosition(lp); err != nil {
			return fmt.Errorf("save lp position: %w", err)
		}

		entries := ledger.CloseEntries(*order, *lp, *acc, prevCash, prevMetal, order.RequiredMargin, now)
		for i := range entries {
			entries[i].Description = "order cancelled, open reversed"
			if err := tx.AppendLedgerEntry(&entries[i]); err != nil {
				return fmt.Errorf("append ledger entry: %w", err)
			}
		}

		result = CloseTradeResult{Order: *order, LPPosition: *lp, Cash: acc.CashBalance, Gold: acc.MetalWeight}
		return nil
	})
	if err != nil {
		return CloseTradeResult{}, err
	}
	return result, nil
}

// CheckBalance runs the margin/balance policy for a would-be order.
func (e *Engine) CheckBalance(ctx context.Context, userID uint, volume decimal.Decimal) (balance.Result, error) {
	acc, err := e.db.AccountByID(ctx, userID)
	if err != nil {
		return balance.Result{}, apperr.NotFoundf("account %d not found", userID)
	}

	var processing []types.Order
	err = e.db.Transaction(ctx, func(tx *storage.Tx) error {
		processing, err = tx.ExistingProcessingVolume(userID)
		return err
	})
	if err != nil {
		return balance.Result{}, err
	}

	return balance.CheckSufficientBalance(e.policy, acc, volume, processing), nil
}

// CreateTransaction records a deposit or withdrawal (spec.md §4.7).
func (e *Engine) CreateTransaction(ctx context.Context, adminID, userID uint, txType types.TransactionType, asset types.Asset, amount decimal.Decimal) (types.Transaction, error) {
	var result types.Transaction

	err := e.db.Transaction(ctx, func(tx *storage.Tx) error {
		acc, err := tx.LockAccountScoped(userID, adminID)
		if err != nil {
			return apperr.NotFoundf("account %d not found for admin %d", userID, adminID)
		}

		var previous, updated decimal.Decimal
		switch asset {
		case types.AssetCash:
			previous = acc.CashBalance
		case types.AssetGold:
			previous = acc.MetalWeight
		default:
			return apperr.Validationf("unknown asset %q", asset)
		}

		switch txType {
		case types.TxDeposit:
			updated = previous.Add(amount)
		case types.TxWithdrawal:
			if previous.LessThan(amount) {
				return apperr.InsufficientBalancef("insufficient %s balance for withdrawal of %s", asset, amount)
			}
			updated = previous.Sub(amount)
		default:
			return apperr.Validationf("unknown transaction type %q", txType)
		}

		switch asset {
		case types.AssetCash:
			acc.CashBalance = updated
		case types.AssetGold:
			acc.MetalWeight = updated
		}
		if err := tx.SaveAccount(acc); err != nil {
			return fmt.Errorf("save account: %w", err)
		}

		txn := types.Transaction{
			TransactionID: fmt.Sprintf("TXN-%s", uuid.NewString()), Type: txType, Asset: asset,
			Amount: amount, PreviousBalance: previous, NewBalance: updated,
			User: userID, AdminID: adminID, Status: types.TxCompleted,
		}
		if err := tx.CreateTransaction(&txn); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}

		result = txn
		return nil
	})
	if err != nil {
		return types.Transaction{}, err
	}
	return result, nil
}

// UpdateTransactionStatus transitions a transaction's status, reversing its
// balance delta if moving out of COMPLETED into CANCELLED or FAILED.
func (e *Engine) UpdateTransactionStatus(ctx context.Context, adminID uint, transactionID string, status types.TransactionStatus) (types.Transaction, error) {
	var result types.Transaction

	err := e.db.Transaction(ctx, func(tx *storage.Tx) error {
		txn, err := tx.TransactionByTransactionID(transactionID)
		if err != nil {
			return apperr.NotFoundf("transaction %s not found", transactionID)
		}
		if txn.AdminID != adminID {
			return apperr.NotFoundf("transaction %s not found", transactionID)
		}

		reversing := txn.Status == types.TxCompleted && (status == types.TxCancelled || status == types.TxFailed)
		txn.Status = status
		if reversing {
			acc, err := tx.LockAccountScoped(txn.User, adminID)
			if err != nil {
				return apperr.NotFoundf("account %d not found", txn.User)
			}

			delta := txn.NewBalance.Sub(txn.PreviousBalance)
			switch txn.Asset {
			case types.AssetCash:
				acc.CashBalance = acc.CashBalance.Sub(delta)
			case types.AssetGold:
				acc.MetalWeight = acc.MetalWeight.Sub(delta)
			}
			if err := tx.SaveAccount(acc); err != nil {
				return fmt.Errorf("save account: %w", err)
			}
		}
		if err := tx.SaveTransaction(txn); err != nil {
			return fmt.Errorf("save transaction: %w", err)
		}
		result = *txn
		return nil
	})
	if err != nil {
		return types.Transaction{}, err
	}
	return result, nil
}

func derefTicket(t *uint64) uint64 {
	if t == nil {
		return 0
	}
	return *t
}
