package api

import (
	"time"

	"github.com/shopspring/decimal"

	"goldbroker/pkg/types"
)

// DashboardEvent is the wrapper for every event pushed over the admin
// dashboard's WebSocket feed, following the teacher's
// type/timestamp/payload envelope (internal/api/events.go in the teacher
// copy) generalized from CLOB fill/order/position events to this domain's
// order-lifecycle and ledger events.
type DashboardEvent struct {
	Type      string      `json:"type"` // "snapshot", "order", "ledger", "session"
	Timestamp time.Time   `json:"timestamp"`
	AdminID   uint        `json:"adminId,omitempty"` // zero means broadcast to every connected admin
	AccountID uint        `json:"accountId,omitempty"`
	Data      interface{} `json:"data"`
}

// OrderLifecycleEvent reports an order transitioning state, so the
// dashboard can update a client's order list without re-polling the
// snapshot endpoint.
type OrderLifecycleEvent struct {
	OrderNo string            `json:"orderNo"`
	Status  types.OrderStatus `json:"status"`
	Side    types.Side        `json:"side"`
	Volume  decimal.Decimal   `json:"volume"`
	Price   decimal.Decimal   `json:"price"`
	Profit  decimal.Decimal   `json:"profit"`
}

// LedgerEvent reports a new journal line being appended.
type LedgerEvent struct {
	EntryID         string          `json:"entryId"`
	EntryType       types.EntryType `json:"entryType"`
	EntryNature     types.EntryNature `json:"entryNature"`
	Amount          decimal.Decimal `json:"amount"`
	RunningBalance  decimal.Decimal `json:"runningBalance"`
	Asset           types.Asset     `json:"asset"`
}

// SessionEvent reports a conversational session's state transition.
type SessionEvent struct {
	Phone string `json:"phone"`
	State string `json:"state"`
}

func NewOrderLifecycleEvent(o types.Order) OrderLifecycleEvent {
	return OrderLifecycleEvent{OrderNo: o.OrderNo, Status: o.OrderStatus, Side: o.Type, Volume: o.Volume, Price: o.Price, Profit: o.Profit}
}

func NewLedgerEvent(e types.LedgerEntry) LedgerEvent {
	return LedgerEvent{EntryID: e.EntryID, EntryType: e.EntryType, EntryNature: e.EntryNature, Amount: e.Amount, RunningBalance: e.RunningBalance, Asset: e.Asset}
}
