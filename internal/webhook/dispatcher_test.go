package webhook

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"goldbroker/internal/balance"
	"goldbroker/internal/engine"
	"goldbroker/internal/marketdata"
	"goldbroker/internal/session"
	"goldbroker/internal/storage"
	"goldbroker/pkg/types"
)

type fakeTradeBridge struct{}

func (fakeTradeBridge) PlaceTrade(ctx context.Context, req types.PlaceTradeRequest) (types.PlaceTradeResult, error) {
	return types.PlaceTradeResult{Ticket: 1, Retcode: 10009, Price: req.Volume, Volume: req.Volume}, nil
}

func (fakeTradeBridge) CloseTrade(ctx context.Context, req types.CloseTradeRequest) (types.CloseTradeResult, error) {
	return types.CloseTradeResult{Success: true}, nil
}

func (fakeTradeBridge) GetPrice(ctx context.Context, symbol string) (types.PriceQuote, error) {
	return types.PriceQuote{Symbol: symbol, Bid: decimal.NewFromFloat(1900), Ask: decimal.NewFromFloat(1902), LastUpdate: time.Now()}, nil
}

type captureSender struct {
	mu   sync.Mutex
	sent []string
}

func (c *captureSender) Send(ctx context.Context, to, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, body)
	return nil
}

func (c *captureSender) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *types.Account, *captureSender) {
	t.Helper()

	db, err := storage.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	acc := &types.Account{
		RefMID: "MID1", Accode: "ACC1", CashBalance: decimal.NewFromFloat(10000),
		MetalWeight: decimal.Zero, AdminOwner: 1, Status: types.AccountActive,
		AskSpread: decimal.NewFromFloat(0.5), BidSpread: decimal.NewFromFloat(0.5),
		PhoneNumber: "971501234567",
	}
	if err := db.Transaction(context.Background(), func(tx *storage.Tx) error { return tx.SaveAccount(acc) }); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	policy := balance.Policy{BaseAmountPerVolume: decimal.NewFromInt(1000), MinimumBalancePct: decimal.NewFromInt(5)}
	eng := engine.New(db, fakeTradeBridge{}, policy, testLogger())
	market := marketdata.New(fakeTradeBridge{}, marketdata.Config{
		DefaultInterval: time.Minute, MinInterval: time.Minute, MaxInterval: time.Minute,
		CacheTTL: time.Minute, InactiveTimeout: time.Minute,
	}, testLogger())

	sender := &captureSender{}
	d := New(Config{DefaultSymbol: "XAUUSD", CountryCode: "971", DedupWindow: 5 * time.Minute, SessionIdleTimeout: time.Hour},
		db, eng, market, sender, testLogger())

	return d, acc, sender
}

func TestDispatchOrderPlacementRoundTrip(t *testing.T) {
	d, acc, sender := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	now := time.Now()

	sess := d.sessions.GetOrCreate(acc.PhoneNumber, acc.ID, now)
	sess.State = session.StateMainMenu

	reply := d.dispatch(ctx, sess, acc, "BUY 2", now)
	if sess.State != session.StateConfirmOrder {
		t.Fatalf("state after short order = %s, want CONFIRM_ORDER; reply=%q", sess.State, reply)
	}

	reply = d.dispatch(ctx, sess, acc, "Y", now)
	if sess.State != session.StateMainMenu {
		t.Fatalf("state after confirm = %s, want MAIN_MENU; reply=%q", sess.State, reply)
	}
	_ = sender

	orders, err := d.db.OrdersByAccount(ctx, acc.ID, 10)
	if err != nil {
		t.Fatalf("orders by account: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders))
	}
	if orders[0].OrderStatus != types.OrderProcessing {
		t.Errorf("order status = %s, want PROCESSING", orders[0].OrderStatus)
	}
}

func TestDispatchInsufficientBalanceDoesNotOpenOrder(t *testing.T) {
	d, acc, _ := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	now := time.Now()

	sess := d.sessions.GetOrCreate(acc.PhoneNumber, acc.ID, now)
	sess.State = session.StateMainMenu

	reply := d.dispatch(ctx, sess, acc, "BUY 1000", now)
	if sess.State != session.StateMainMenu {
		t.Errorf("state = %s, want MAIN_MENU unchanged", sess.State)
	}
	if sess.Pending != nil {
		t.Errorf("pending should remain nil on rejected order")
	}
	if reply == "" {
		t.Error("expected a rejection message")
	}
}

func TestDispatchSellThenBareQuantityUsesRememberedSide(t *testing.T) {
	d, acc, _ := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	now := time.Now()

	sess := d.sessions.GetOrCreate(acc.PhoneNumber, acc.ID, now)
	sess.State = session.StateMainMenu

	d.dispatch(ctx, sess, acc, "sell", now)
	if sess.State != session.StateAwaitingVolume {
		t.Fatalf("state after bare side = %s, want AWAITING_VOLUME", sess.State)
	}

	d.dispatch(ctx, sess, acc, "1", now)
	if sess.Pending == nil || sess.Pending.Side != types.Sell {
		t.Fatalf("pending side = %+v, want SELL remembered from AWAITING_VOLUME", sess.Pending)
	}
}

func TestHandleInboundDropsDuplicateMessageSid(t *testing.T) {
	d, acc, sender := newTestDispatcher(t)
	ctx := context.Background()

	msg := InboundMessage{Body: "balance", From: acc.PhoneNumber, MessageSid: "SID1"}
	d.HandleInbound(ctx, msg)
	time.Sleep(20 * time.Millisecond)
	d.HandleInbound(ctx, msg)
	time.Sleep(20 * time.Millisecond)

	if len(sender.sent) != 1 {
		t.Errorf("sent messages = %d, want 1 (second delivery deduped)", len(sender.sent))
	}
}

func TestHandleInboundDeniesUnrecognizedPhone(t *testing.T) {
	d, _, sender := newTestDispatcher(t)
	ctx := context.Background()

	d.HandleInbound(ctx, InboundMessage{Body: "hi", From: "whatsapp:+10000000000", MessageSid: "SID-X"})
	time.Sleep(20 * time.Millisecond)

	if sender.last() != deniedReply {
		t.Errorf("reply = %q, want %q", sender.last(), deniedReply)
	}
}
