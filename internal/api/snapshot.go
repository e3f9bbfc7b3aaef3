package api

import (
	"context"
	"time"

	"goldbroker/internal/config"
	"goldbroker/internal/session"
	"goldbroker/pkg/types"
)

// AccountProvider is the subset of internal/storage.DB the dashboard
// snapshot needs.
type AccountProvider interface {
	AccountsByAdmin(ctx context.Context, adminID uint) ([]types.Account, error)
	OrdersByAccount(ctx context.Context, accountID uint, limit int) ([]types.Order, error)
}

// QuoteProvider is the subset of internal/marketdata.Service the dashboard
// snapshot needs. clientID is empty so a snapshot read never registers a
// poller subscription on the caller's behalf.
type QuoteProvider interface {
	GetMarketData(ctx context.Context, symbol, clientID string) (types.PriceQuote, error)
}

// BuildSnapshot aggregates every account owned by adminID, their recent
// orders, and the current market quote into one dashboard-ready view.
func BuildSnapshot(ctx context.Context, accounts AccountProvider, quotes QuoteProvider, adminID uint, cfg config.Config) (DashboardSnapshot, error) {
	accs, err := accounts.AccountsByAdmin(ctx, adminID)
	if err != nil {
		return DashboardSnapshot{}, err
	}

	snapshot := DashboardSnapshot{
		Timestamp: time.Now(),
		Config:    NewConfigSummary(cfg),
	}

	for _, acc := range accs {
		orders, err := accounts.OrdersByAccount(ctx, acc.ID, 10)
		if err != nil {
			return DashboardSnapshot{}, err
		}

		accSnap := AccountSnapshot{
			ID: acc.ID, Accode: acc.Accode, CashBalance: acc.CashBalance,
			MetalWeight: acc.MetalWeight, Status: acc.Status,
		}
		for _, o := range orders {
			accSnap.Orders = append(accSnap.Orders, orderToSnapshot(o))
			if !o.OrderStatus.Terminal() {
				accSnap.OpenOrders++
			}
		}
		snapshot.Accounts = append(snapshot.Accounts, accSnap)
	}

	symbol := cfg.Trading.DefaultSymbol
	if symbol == "" {
		symbol = "XAUUSD"
	}
	if quote, err := quotes.GetMarketData(ctx, symbol, ""); err == nil {
		snapshot.Quote = &QuoteSnapshot{
			Symbol: symbol, Bid: quote.Bid, Ask: quote.Ask, LastUpdate: quote.LastUpdate,
			Freshness: string(session.LabelFreshness(time.Since(quote.LastUpdate))),
		}
	}

	return snapshot, nil
}

// NewConfigSummary projects the operational fields of a full Config onto
// the dashboard-facing summary.
func NewConfigSummary(cfg config.Config) ConfigSummary {
	return ConfigSummary{
		DefaultSymbol:       cfg.Trading.DefaultSymbol,
		BaseAmountPerVolume: cfg.Trading.BaseAmountPerVolume,
		MinimumBalancePct:   cfg.Trading.MinimumBalancePct,
		AllowNegativeMetal:  cfg.Trading.AllowNegativeMetal,
		DryRun:              cfg.DryRun,
	}
}
