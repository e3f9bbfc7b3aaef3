// Package session implements the WhatsApp-like conversational state machine
// clients drive their trades through, and the command parser that decides,
// on every inbound message, whether to short-circuit to a special command or
// fall through to the current state's handler.
//
// There is no teacher analogue for a chat state machine — this is new
// domain logic — but the Session struct and its State field follow the
// teacher's habit (seen in strategy.Inventory and market.Book) of a small
// struct with an explicit state field rather than scattering
// mutable fields across goroutines; State transitions here are synchronous
// and single-threaded per phone number, matching spec.md §5's "no
// cross-phone contention" guarantee.
package session

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"goldbroker/pkg/types"
)

// State enumerates the conversation states of spec.md §4.8.
type State string

const (
	StateStart         State = "START"
	StateMainMenu       State = "MAIN_MENU"
	StateAwaitingVolume State = "AWAITING_VOLUME"
	StateConfirmOrder   State = "CONFIRM_ORDER"
	StateStatement      State = "STATEMENT"
)

// Freshness labels a quote's age for display.
type Freshness string

const (
	Live    Freshness = "Live"
	Delayed Freshness = "Delayed"
	Stale   Freshness = "Stale"
)

// LabelFreshness classifies a quote's age per spec.md §4.8.
func LabelFreshness(age time.Duration) Freshness {
	switch {
	case age < 60*time.Second:
		return Live
	case age <= 300*time.Second:
		return Delayed
	default:
		return Stale
	}
}

// PendingOrder is the order being built while in AWAITING_VOLUME/CONFIRM_ORDER.
type PendingOrder struct {
	Side   types.Side
	Volume decimal.Decimal
	Quote  decimal.Decimal
}

// Session is the per-phone conversational state.
type Session struct {
	Phone       string
	AccountID   uint
	UserName    string
	State       State
	OpenOrders  []types.Order // indexed 1-based for "CLOSE <index>"
	Pending     *PendingOrder
	LastUpdated time.Time
}

// New creates a fresh session in the START state.
func New(phone string, accountID uint) *Session {
	return &Session{Phone: phone, AccountID: accountID, State: StateStart, LastUpdated: time.Now()}
}

// CommandKind enumerates what the parser decided an inbound message means.
type CommandKind string

const (
	CmdShortOrder CommandKind = "short_order" // e.g. "BUY 2", "2 TTB", "2"
	CmdClose      CommandKind = "close"       // "CLOSE <index|orderId>"
	CmdMenu       CommandKind = "menu"
	CmdReset      CommandKind = "reset"
	CmdGreeting   CommandKind = "greeting"
	CmdBalance    CommandKind = "balance"
	CmdCancel     CommandKind = "cancel"
	CmdPrices     CommandKind = "prices"
	CmdOrders     CommandKind = "orders"
	CmdRefresh    CommandKind = "refresh"
	CmdStateDispatch CommandKind = "state_dispatch"
)

// Command is the parsed outcome of an inbound message.
type Command struct {
	Kind       CommandKind
	Side       types.Side      // for CmdShortOrder
	Volume     decimal.Decimal // for CmdShortOrder
	CloseIndex int             // for CmdClose, 0 if CloseOrderID is set instead
	CloseOrderID string        // for CmdClose
	Raw        string
}

var (
	shortOrderRe = regexp.MustCompile(`(?i)^\s*(BUY|SELL)?\s*([0-9]+(?:\.[0-9]+)?)\s*(?:TTB)?\s*$`)
	closeRe      = regexp.MustCompile(`(?i)^\s*CLOSE\s+(.+?)\s*$`)
)

// ParseCommand implements the precedence order of spec.md §4.8: short-codes,
// then CLOSE, then special commands, then state dispatch.
func ParseCommand(text string) Command {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	if m := shortOrderRe.FindStringSubmatch(trimmed); m != nil {
		side := types.Buy
		if strings.EqualFold(m[1], "SELL") {
			side = types.Sell
		}
		vol, err := decimal.NewFromString(m[2])
		if err == nil {
			return Command{Kind: CmdShortOrder, Side: side, Volume: vol, Raw: trimmed}
		}
	}

	if m := closeRe.FindStringSubmatch(trimmed); m != nil {
		target := strings.TrimSpace(m[1])
		if idx, err := strconv.Atoi(target); err == nil {
			return Command{Kind: CmdClose, CloseIndex: idx, Raw: trimmed}
		}
		return Command{Kind: CmdClose, CloseOrderID: target, Raw: trimmed}
	}

	switch lower {
	case "menu", "help":
		return Command{Kind: CmdMenu, Raw: trimmed}
	case "reset":
		return Command{Kind: CmdReset, Raw: trimmed}
	case "hi", "hello", "start":
		return Command{Kind: CmdGreeting, Raw: trimmed}
	case "balance", "5":
		return Command{Kind: CmdBalance, Raw: trimmed}
	case "cancel":
		return Command{Kind: CmdCancel, Raw: trimmed}
	case "price", "prices":
		return Command{Kind: CmdPrices, Raw: trimmed}
	case "orders", "positions", "4":
		return Command{Kind: CmdOrders, Raw: trimmed}
	case "refresh":
		return Command{Kind: CmdRefresh, Raw: trimmed}
	}

	return Command{Kind: CmdStateDispatch, Raw: trimmed}
}

// ResolveCloseTarget turns a CmdClose command into an order ID, looking up
// the 1-based index into the session's open orders list when CloseIndex is
// set instead of an explicit order number.
func (s *Session) ResolveCloseTarget(cmd Command) (string, bool) {
	if cmd.CloseOrderID != "" {
		return cmd.CloseOrderID, true
	}
	if cmd.CloseIndex >= 1 && cmd.CloseIndex <= len(s.OpenOrders) {
		return s.OpenOrders[cmd.CloseIndex-1].OrderNo, true
	}
	return "", false
}

// Reset returns the session to MAIN_MENU with no pending order.
func (s *Session) Reset() {
	s.State = StateMainMenu
	s.Pending = nil
	s.LastUpdated = time.Now()
}
