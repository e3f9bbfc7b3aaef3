package api

import (
	"time"

	"github.com/shopspring/decimal"

	"goldbroker/pkg/types"
)

// DashboardSnapshot is the complete admin-dashboard view: every account an
// admin owns, its recent orders, and the current market quote. There is no
// per-market book or strategy config here — this broker has one instrument
// per conversation and no continuous quoting loop to summarize.
type DashboardSnapshot struct {
	Timestamp time.Time         `json:"timestamp"`
	Accounts  []AccountSnapshot `json:"accounts"`
	Quote     *QuoteSnapshot    `json:"quote,omitempty"`
	Config    ConfigSummary     `json:"config"`
}

// AccountSnapshot is one client's balances plus its most recent orders.
type AccountSnapshot struct {
	ID          uint            `json:"id"`
	Accode      string          `json:"accode"`
	CashBalance decimal.Decimal `json:"cashBalance"`
	MetalWeight decimal.Decimal `json:"metalWeight"`
	Status      types.AccountStatus `json:"status"`
	OpenOrders  int             `json:"openOrders"`
	Orders      []OrderSnapshot `json:"orders"`
}

// OrderSnapshot is the dashboard-facing projection of types.Order.
type OrderSnapshot struct {
	OrderNo     string            `json:"orderNo"`
	Type        types.Side        `json:"type"`
	Volume      decimal.Decimal   `json:"volume"`
	Symbol      string            `json:"symbol"`
	Price       decimal.Decimal   `json:"price"`
	Status      types.OrderStatus `json:"status"`
	Profit      decimal.Decimal   `json:"profit"`
	OpeningDate time.Time         `json:"openingDate"`
}

// QuoteSnapshot is the current cached market quote, if one is available.
type QuoteSnapshot struct {
	Symbol     string          `json:"symbol"`
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
	Freshness  string          `json:"freshness"`
	LastUpdate time.Time       `json:"lastUpdate"`
}

// ConfigSummary is the operational subset of internal/config.Config worth
// surfacing on the dashboard: what symbol is traded and under what margin
// policy, and whether the server is in dry-run mode.
type ConfigSummary struct {
	DefaultSymbol       string  `json:"defaultSymbol"`
	BaseAmountPerVolume float64 `json:"baseAmountPerVolume"`
	MinimumBalancePct   float64 `json:"minimumBalancePct"`
	AllowNegativeMetal  bool    `json:"allowNegativeMetal"`
	DryRun              bool    `json:"dryRun"`
}

func orderToSnapshot(o types.Order) OrderSnapshot {
	return OrderSnapshot{
		OrderNo: o.OrderNo, Type: o.Type, Volume: o.Volume, Symbol: o.Symbol,
		Price: o.Price, Status: o.OrderStatus, Profit: o.Profit, OpeningDate: o.OpeningDate,
	}
}
