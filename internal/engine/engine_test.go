package engine

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"goldbroker/internal/balance"
	"goldbroker/internal/storage"
	"goldbroker/pkg/types"
)

type fakeBridge struct{}

func (fakeBridge) PlaceTrade(ctx context.Context, req types.PlaceTradeRequest) (types.PlaceTradeResult, error) {
	return types.PlaceTradeResult{Ticket: 1001, Retcode: 10009, Price: req.Volume, Volume: req.Volume}, nil
}

func (fakeBridge) CloseTrade(ctx context.Context, req types.CloseTradeRequest) (types.CloseTradeResult, error) {
	return types.CloseTradeResult{Success: true}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEngine(t *testing.T) (*Engine, *storage.DB, uint) {
	t.Helper()
	db, err := storage.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	acc := &types.Account{
		RefMID: "MID1", Accode: "ACC1", CashBalance: decimal.NewFromFloat(10000),
		MetalWeight: decimal.Zero, AdminOwner: 1, Status: types.AccountActive,
		AskSpread: decimal.NewFromFloat(0.5), BidSpread: decimal.NewFromFloat(0.5),
	}
	err = db.Transaction(context.Background(), func(tx *storage.Tx) error {
		return tx.SaveAccount(acc)
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}

	policy := balance.Policy{BaseAmountPerVolume: decimal.NewFromInt(100), MinimumBalancePct: decimal.NewFromInt(5)}
	return New(db, fakeBridge{}, policy, testLogger()), db, acc.ID
}

func TestOpenTradeSeedScenario1(t *testing.T) {
	t.Parallel()

	e, _, userID := newTestEngine(t)

	res, err := e.OpenTrade(context.Background(), 1, userID, OpenTradeRequest{
		Symbol: "XAUUSD", Type: types.Buy, Volume: decimal.NewFromFloat(0.01),
		Spot: decimal.NewFromFloat(1902), OpeningDate: time.Now(),
	})
	if err != nil {
		t.Fatalf("open trade: %v", err)
	}

	if res.Order.OrderStatus != types.OrderProcessing {
		t.Errorf("status = %s, want PROCESSING", res.Order.OrderStatus)
	}
	if !res.Gold.Equal(decimal.NewFromFloat(0.01)) {
		t.Errorf("gold = %s, want 0.01", res.Gold)
	}
	if len(res.LedgerEntries) != 4 {
		t.Errorf("ledger entries = %d, want 4", len(res.LedgerEntries))
	}
	for _, entry := range res.LedgerEntries {
		if entry.ReferenceNumber != res.Order.OrderNo {
			t.Errorf("entry referenceNumber = %q, want %q", entry.ReferenceNumber, res.Order.OrderNo)
		}
	}
}

func TestOpenThenCloseRoundTrip(t *testing.T) {
	t.Parallel()

	e, _, userID := newTestEngine(t)

	opened, err := e.OpenTrade(context.Background(), 1, userID, OpenTradeRequest{
		Symbol: "XAUUSD", Type: types.Buy, Volume: decimal.NewFromFloat(0.01),
		Spot: decimal.NewFromFloat(1902), OpeningDate: time.Now(),
	})
	if err != nil {
		t.Fatalf("open trade: %v", err)
	}

	closingPrice := decimal.NewFromFloat(1904)
	closed, err := e.CloseTrade(context.Background(), 1, opened.Order.ID, CloseTradeUpdate{
		OrderStatus: types.OrderClosed, ClosingPrice: &closingPrice,
	})
	if err != nil {
		t.Fatalf("close trade: %v", err)
	}

	if closed.Order.OrderStatus != types.OrderClosed {
		t.Errorf("status = %s, want CLOSED", closed.Order.OrderStatus)
	}
	if !closed.Gold.Equal(decimal.Zero) {
		t.Errorf("gold after close = %s, want 0", closed.Gold)
	}
}

// TestOpenThenCloseSameSpotCapturesOnlySpread asserts spec.md §8's round-trip
// law: opening and closing at the same upstream spot returns a negative
// clientProfit equal to the account's full round-trip spread (askSpread +
// bidSpread) times volume — the broker's two-sided spread capture, with no
// market movement involved.
func TestOpenThenCloseSameSpotCapturesOnlySpread(t *testing.T) {
	t.Parallel()

	e, _, userID := newTestEngine(t)

	spot := decimal.NewFromFloat(1902)
	opened, err := e.OpenTrade(context.Background(), 1, userID, OpenTradeRequest{
		Symbol: "XAUUSD", Type: types.Buy, Volume: decimal.NewFromFloat(0.01),
		Spot: spot, OpeningDate: time.Now(),
	})
	if err != nil {
		t.Fatalf("open trade: %v", err)
	}

	closed, err := e.CloseTrade(context.Background(), 1, opened.Order.ID, CloseTradeUpdate{
		OrderStatus: types.OrderClosed, ClosingPrice: &spot,
	})
	if err != nil {
		t.Fatalf("close trade: %v", err)
	}

	// askSpread = bidSpread = 0.5 on the seeded account (newTestEngine);
	// round-trip spread capture is (askSpread + bidSpread) * volume.
	wantProfit := decimal.NewFromFloat(-0.01)
	if !closed.Order.Profit.Equal(wantProfit) {
		t.Errorf("clientProfit at same spot = %s, want %s", closed.Order.Profit, wantProfit)
	}
}

func TestCloseAlreadyClosedOrderConflict(t *testing.T) {
	t.Parallel()

	e, _, userID := newTestEngine(t)
	opened, err := e.OpenTrade(context.Background(), 1, userID, OpenTradeRequest{
		Symbol: "XAUUSD", Type: types.Buy, Volume: decimal.NewFromFloat(0.01),
		Spot: decimal.NewFromFloat(1902), OpeningDate: time.Now(),
	})
	if err != nil {
		t.Fatalf("open trade: %v", err)
	}

	closingPrice := decimal.NewFromFloat(1904)
	if _, err := e.CloseTrade(context.Background(), 1, opened.Order.ID, CloseTradeUpdate{OrderStatus: types.OrderClosed, ClosingPrice: &closingPrice}); err != nil {
		t.Fatalf("first close: %v", err)
	}

	_, err = e.CloseTrade(context.Background(), 1, opened.Order.ID, CloseTradeUpdate{OrderStatus: types.OrderClosed, ClosingPrice: &closingPrice})
	if err == nil {
		t.Fatal("expected conflict closing an already-closed order")
	}
}

func TestCancelTradeReversesOpen(t *testing.T) {
	t.Parallel()

	e, db, userID := newTestEngine(t)
	opened, err := e.OpenTrade(context.Background(), 1, userID, OpenTradeRequest{
		Symbol: "XAUUSD", Type: types.Buy, Volume: decimal.NewFromFloat(0.01),
		Spot: decimal.NewFromFloat(1902), OpeningDate: time.Now(),
	})
	if err != nil {
		t.Fatalf("open trade: %v", err)
	}

	_, err = e.CancelTrade(context.Background(), 1, opened.Order.ID, "client requested cancel")
	if err != nil {
		t.Fatalf("cancel trade: %v", err)
	}

	acc, err := db.AccountByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("account by id: %v", err)
	}
	if !acc.CashBalance.Equal(decimal.NewFromFloat(10000)) {
		t.Errorf("cash after cancel = %s, want 10000", acc.CashBalance)
	}
	if !acc.MetalWeight.Equal(decimal.Zero) {
		t.Errorf("metal after cancel = %s, want 0", acc.MetalWeight)
	}
}

func TestCreateAndWithdrawTransaction(t *testing.T) {
	t.Parallel()

	e, _, userID := newTestEngine(t)

	dep, err := e.CreateTransaction(context.Background(), 1, userID, types.TxDeposit, types.AssetCash, decimal.NewFromInt(500))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !dep.NewBalance.Equal(decimal.NewFromInt(10500)) {
		t.Errorf("new balance = %s, want 10500", dep.NewBalance)
	}

	_, err = e.CreateTransaction(context.Background(), 1, userID, types.TxWithdrawal, types.AssetCash, decimal.NewFromInt(20000))
	if err == nil {
		t.Fatal("expected insufficient balance error")
	}
}
