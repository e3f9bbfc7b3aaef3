package api

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"goldbroker/internal/config"
	"goldbroker/pkg/types"
)

type fakeAccounts struct {
	accounts []types.Account
	orders   map[uint][]types.Order
}

func (f fakeAccounts) AccountsByAdmin(ctx context.Context, adminID uint) ([]types.Account, error) {
	return f.accounts, nil
}

func (f fakeAccounts) OrdersByAccount(ctx context.Context, accountID uint, limit int) ([]types.Order, error) {
	return f.orders[accountID], nil
}

type fakeQuotes struct {
	quote types.PriceQuote
	err   error
}

func (f fakeQuotes) GetMarketData(ctx context.Context, symbol, clientID string) (types.PriceQuote, error) {
	return f.quote, f.err
}

func TestBuildSnapshotAggregatesAccountsAndOrders(t *testing.T) {
	t.Parallel()

	accounts := fakeAccounts{
		accounts: []types.Account{
			{ID: 1, Accode: "ACC-1", CashBalance: decimal.NewFromInt(10000), MetalWeight: decimal.NewFromInt(5), Status: types.AccountActive},
		},
		orders: map[uint][]types.Order{
			1: {
				{OrderNo: "O-1", Type: types.Buy, Volume: decimal.NewFromInt(2), Symbol: "XAUUSD", OrderStatus: types.OrderProcessing},
				{OrderNo: "O-2", Type: types.Sell, Volume: decimal.NewFromInt(1), Symbol: "XAUUSD", OrderStatus: types.OrderClosed},
			},
		},
	}
	quotes := fakeQuotes{quote: types.PriceQuote{Bid: decimal.NewFromInt(1900), Ask: decimal.NewFromInt(1901), LastUpdate: time.Now()}}

	cfg := config.Config{Trading: config.TradingConfig{DefaultSymbol: "XAUUSD"}}

	snapshot, err := BuildSnapshot(context.Background(), accounts, quotes, 7, cfg)
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}

	if len(snapshot.Accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(snapshot.Accounts))
	}
	acc := snapshot.Accounts[0]
	if len(acc.Orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(acc.Orders))
	}
	if acc.OpenOrders != 1 {
		t.Fatalf("expected 1 open order (non-terminal), got %d", acc.OpenOrders)
	}
	if snapshot.Quote == nil || !snapshot.Quote.Bid.Equal(decimal.NewFromInt(1900)) {
		t.Fatalf("expected quote bid 1900, got %+v", snapshot.Quote)
	}
}

func TestBuildSnapshotOmitsQuoteOnError(t *testing.T) {
	t.Parallel()

	accounts := fakeAccounts{}
	quotes := fakeQuotes{err: context.DeadlineExceeded}
	cfg := config.Config{}

	snapshot, err := BuildSnapshot(context.Background(), accounts, quotes, 1, cfg)
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}
	if snapshot.Quote != nil {
		t.Fatalf("expected nil quote on provider error, got %+v", snapshot.Quote)
	}
}
