package marketdata

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"goldbroker/pkg/types"
)

type fakeBridge struct {
	calls atomic.Int64
}

func (f *fakeBridge) GetPrice(ctx context.Context, symbol string) (types.PriceQuote, error) {
	f.calls.Add(1)
	return types.PriceQuote{
		Symbol:     symbol,
		Bid:        decimal.NewFromFloat(1900),
		Ask:        decimal.NewFromFloat(1900.5),
		LastUpdate: time.Now(),
	}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestGetMarketDataReturnsCachedQuote(t *testing.T) {
	t.Parallel()

	fb := &fakeBridge{}
	svc := New(fb, Config{
		DefaultInterval: 50 * time.Millisecond,
		MinInterval:     10 * time.Millisecond,
		MaxInterval:     200 * time.Millisecond,
		CacheTTL:        time.Minute,
		InactiveTimeout: time.Second,
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quote, err := svc.GetMarketData(ctx, "XAUUSD", "client-1")
	if err != nil {
		t.Fatalf("get market data: %v", err)
	}
	if quote.Symbol != "XAUUSD" {
		t.Errorf("symbol = %q, want XAUUSD", quote.Symbol)
	}

	time.Sleep(100 * time.Millisecond)
	quote2, err := svc.GetMarketData(ctx, "XAUUSD", "")
	if err != nil {
		t.Fatalf("get market data 2: %v", err)
	}
	if !quote2.Bid.Equal(quote.Bid) {
		t.Errorf("bid changed unexpectedly: %s vs %s", quote2.Bid, quote.Bid)
	}
	if fb.calls.Load() == 0 {
		t.Error("expected at least one bridge call")
	}
}

func TestIsFresh(t *testing.T) {
	t.Parallel()

	cfg := Config{CacheTTL: time.Minute}
	now := time.Now()

	fresh := types.PriceQuote{LastUpdate: now.Add(-30 * time.Second)}
	if !cfg.IsFresh(fresh, now) {
		t.Error("expected fresh quote to be fresh")
	}

	stale := types.PriceQuote{LastUpdate: now.Add(-2 * time.Minute)}
	if cfg.IsFresh(stale, now) {
		t.Error("expected stale quote to be stale")
	}
}
