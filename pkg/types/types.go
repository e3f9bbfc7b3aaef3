// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the broker — accounts, orders,
// LP positions, ledger entries, and the upstream bridge's wire types. It has
// no dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: BUY or SELL.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// AccountStatus enumerates the lifecycle states of an Account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountInactive  AccountStatus = "inactive"
	AccountSuspended AccountStatus = "suspended"
	AccountPending   AccountStatus = "pending"
)

// OrderStatus enumerates the lifecycle states of an Order.
type OrderStatus string

const (
	OrderProcessing OrderStatus = "PROCESSING"
	OrderExecuted   OrderStatus = "EXECUTED"
	OrderCancelled  OrderStatus = "CANCELLED"
	OrderClosed     OrderStatus = "CLOSED"
	OrderPending    OrderStatus = "PENDING"
	OrderFailed     OrderStatus = "FAILED"
)

// Terminal reports whether the status is a terminal state for the order
// lifecycle (no further transitions are valid).
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderClosed, OrderCancelled, OrderFailed:
		return true
	default:
		return false
	}
}

// LPPositionStatus enumerates the lifecycle states of an LPPosition.
type LPPositionStatus string

const (
	LPOpen   LPPositionStatus = "OPEN"
	LPClosed LPPositionStatus = "CLOSED"
)

// EntryType enumerates the three kinds of ledger lines.
type EntryType string

const (
	EntryOrder       EntryType = "ORDER"
	EntryLPPosition  EntryType = "LP_POSITION"
	EntryTransaction EntryType = "TRANSACTION"
)

// EntryNature is the debit/credit polarity of a ledger line.
type EntryNature string

const (
	Debit  EntryNature = "DEBIT"
	Credit EntryNature = "CREDIT"
)

// Asset identifies which balance a ledger/transaction line affects.
type Asset string

const (
	AssetCash Asset = "CASH"
	AssetGold Asset = "GOLD"
)

// TransactionType enumerates deposit/withdrawal kinds.
type TransactionType string

const (
	TxDeposit    TransactionType = "DEPOSIT"
	TxWithdrawal TransactionType = "WITHDRAWAL"
)

// TransactionStatus enumerates the lifecycle states of a Transaction.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxCompleted TransactionStatus = "COMPLETED"
	TxFailed    TransactionStatus = "FAILED"
	TxCancelled TransactionStatus = "CANCELLED"
)

// ————————————————————————————————————————————————————————————————————————
// Core entities
// ————————————————————————————————————————————————————————————————————————

// Account is the client's book: cash and metal balances, per-account spread,
// and the admin that owns it.
type Account struct {
	ID          uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	RefMID      string          `gorm:"uniqueIndex;size:16;not null" json:"refMid"`
	AccountHead string          `gorm:"size:128" json:"accountHead"`
	Accode      string          `gorm:"size:64;not null;index:idx_accode_owner,unique" json:"accode"`
	AccountType string          `gorm:"size:32" json:"accountType"`
	CashBalance decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"cashBalance"`
	MetalWeight decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"metalWeight"`
	Margin      decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"margin"` // percent
	AskSpread   decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"askSpread"`
	BidSpread   decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"bidSpread"`
	AdminOwner  uint            `gorm:"not null;index:idx_accode_owner,unique" json:"adminOwner"`
	PhoneNumber string          `gorm:"size:32;index" json:"phoneNumber"`
	Email       string          `gorm:"size:128" json:"email"`
	Status      AccountStatus   `gorm:"size:16;not null" json:"status"`
	KYCStatus   string          `gorm:"size:32" json:"kycStatus"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (Account) TableName() string { return "accounts" }

// Order is the client-facing trade.
type Order struct {
	ID              uint             `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo         string           `gorm:"uniqueIndex;size:40;not null" json:"orderNo"`
	Type            Side             `gorm:"size:8;not null" json:"type"`
	Volume          decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"volume"`
	Symbol          string           `gorm:"size:16;not null" json:"symbol"`
	Price           decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"price"`
	OpeningPrice    decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"openingPrice"`
	ClosingPrice    *decimal.Decimal `gorm:"type:decimal(20,8)" json:"closingPrice,omitempty"`
	RequiredMargin  decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"requiredMargin"`
	OpeningDate     time.Time        `gorm:"not null" json:"openingDate"`
	ClosingDate     *time.Time       `json:"closingDate,omitempty"`
	OrderStatus     OrderStatus      `gorm:"size:16;not null;index" json:"orderStatus"`
	Profit          decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"profit"`
	User            uint             `gorm:"column:user_id;not null;index" json:"user"`
	AdminID         uint             `gorm:"not null;index" json:"adminId"`
	LPPositionID    *uint            `json:"lpPositionId,omitempty"`
	Ticket          *uint64          `json:"ticket,omitempty"`
	Comment         string           `gorm:"size:32" json:"comment"`
	NotificationErr string           `gorm:"size:256" json:"notificationError,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

func (Order) TableName() string { return "orders" }

// LPPosition mirrors a client Order on the upstream venue.
type LPPosition struct {
	ID           uint             `gorm:"primaryKey;autoIncrement" json:"id"`
	PositionID   string           `gorm:"uniqueIndex;size:40;not null" json:"positionId"` // = Order.OrderNo
	Type         Side             `gorm:"size:8;not null" json:"type"`
	Volume       decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"volume"`
	Symbol       string           `gorm:"size:16;not null" json:"symbol"`
	EntryPrice   decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"entryPrice"`
	CurrentPrice decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"currentPrice"`
	ClosingPrice *decimal.Decimal `gorm:"type:decimal(20,8)" json:"closingPrice,omitempty"`
	OpenDate     time.Time        `gorm:"not null" json:"openDate"`
	CloseDate    *time.Time       `json:"closeDate,omitempty"`
	Status       LPPositionStatus `gorm:"size:8;not null;index" json:"status"`
	Profit       decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"profit"`
	ClientOrder  uint             `gorm:"not null;index" json:"clientOrder"`
	AdminID      uint             `gorm:"not null;index" json:"adminId"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

func (LPPosition) TableName() string { return "lp_positions" }

// OrderDetails, LPDetails and TransactionDetails are the typed subrecords a
// LedgerEntry carries depending on EntryType.
type OrderDetails struct {
	OrderNo string          `json:"orderNo"`
	Type    Side            `json:"type"`
	Volume  decimal.Decimal `json:"volume"`
	Symbol  string          `json:"symbol"`
}

type LPDetails struct {
	PositionID string          `json:"positionId"`
	Type       Side            `json:"type"`
	Volume     decimal.Decimal `json:"volume"`
}

type TransactionDetails struct {
	Asset           Asset           `json:"asset"`
	PreviousBalance decimal.Decimal `json:"previousBalance"`
}

// LedgerEntry is an immutable journal line.
type LedgerEntry struct {
	ID                     uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryID                string          `gorm:"uniqueIndex;size:40;not null" json:"entryId"`
	EntryType              EntryType       `gorm:"size:16;not null;index" json:"entryType"`
	EntryNature            EntryNature     `gorm:"size:8;not null" json:"entryNature"`
	ReferenceNumber        string          `gorm:"size:40;not null;index" json:"referenceNumber"`
	Amount                 decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	RunningBalance         decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"runningBalance"`
	Date                   time.Time       `gorm:"not null;index" json:"date"`
	User                   uint            `gorm:"column:user_id;not null;index" json:"user"`
	AdminID                uint            `gorm:"not null;index" json:"adminId"`
	Asset                  Asset           `gorm:"size:8" json:"asset"`
	OrderDetailsJSON       string          `gorm:"type:text" json:"-"`
	LPDetailsJSON          string          `gorm:"type:text" json:"-"`
	TransactionDetailsJSON string          `gorm:"type:text" json:"-"`
	Description            string          `gorm:"size:256" json:"description"`
	Notes                  string          `gorm:"size:256" json:"notes"`
	CreatedAt              time.Time       `json:"createdAt"`
}

func (LedgerEntry) TableName() string { return "ledger" }

// Transaction is a deposit/withdrawal record.
type Transaction struct {
	ID              uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionID   string            `gorm:"uniqueIndex;size:40;not null" json:"transactionId"`
	Type            TransactionType   `gorm:"size:16;not null" json:"type"`
	Asset           Asset             `gorm:"size:8;not null" json:"asset"`
	Amount          decimal.Decimal   `gorm:"type:decimal(20,8);not null" json:"amount"`
	PreviousBalance decimal.Decimal   `gorm:"type:decimal(20,8);not null" json:"previousBalance"`
	NewBalance      decimal.Decimal   `gorm:"type:decimal(20,8);not null" json:"newBalance"`
	User            uint              `gorm:"column:user_id;not null;index" json:"user"`
	AdminID         uint              `gorm:"not null;index" json:"adminId"`
	Status          TransactionStatus `gorm:"size:16;not null" json:"status"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

func (Transaction) TableName() string { return "transactions" }

// ————————————————————————————————————————————————————————————————————————
// Upstream bridge wire types
// ————————————————————————————————————————————————————————————————————————

// PriceQuote is a cached bid/ask tick for one symbol.
type PriceQuote struct {
	Symbol     string
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	Spread     decimal.Decimal
	LastUpdate time.Time
}

// PlaceTradeRequest is the normalized request the engine sends to the bridge.
type PlaceTradeRequest struct {
	Symbol     string
	Volume     decimal.Decimal
	Type       Side
	SLDistance decimal.Decimal
	TPDistance decimal.Decimal
	Comment    string
	Magic      int
	Deviation  int
}

// PlaceTradeResult is the bridge's response to a trade placement.
type PlaceTradeResult struct {
	Ticket  uint64
	Deal    uint64
	Price   decimal.Decimal
	Volume  decimal.Decimal
	SL      decimal.Decimal
	TP      decimal.Decimal
	Retcode int
}

// Position is an upstream venue position as reported by get_positions.
type Position struct {
	Ticket       uint64
	Type         Side
	Volume       decimal.Decimal
	PriceOpen    decimal.Decimal
	PriceCurrent decimal.Decimal
	Profit       decimal.Decimal
	Symbol       string
	Comment      string
}

// CloseTradeRequest is the normalized request to close an upstream position.
type CloseTradeRequest struct {
	Ticket uint64
	Symbol string
	Volume decimal.Decimal
	Type   Side
}

// CloseTradeResult is the bridge's response to a close request.
type CloseTradeResult struct {
	Success      bool
	LikelyClosed bool
	ClosePrice   decimal.Decimal
	Profit       decimal.Decimal
	Data         map[string]any
}

// SymbolInfo describes a tradable instrument's constraints, as reported by
// get_symbol_info.
type SymbolInfo struct {
	Symbol     string
	TradeMode  int
	VolumeMin  decimal.Decimal
	VolumeMax  decimal.Decimal
	VolumeStep decimal.Decimal
	StopsLevel int
	Point      decimal.Decimal
}
