package webhook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"goldbroker/internal/engine"
	"goldbroker/internal/pricing"
	"goldbroker/internal/session"
	"goldbroker/pkg/types"
)

const menuText = "Reply with:\n  BUY <qty> or SELL <qty> (in TTB) to open a position\n  CLOSE <n> to close one of your open orders\n  orders - list open orders\n  balance - view your balances\n  price - current quote\n  cancel - cancel a pending order\n  reset - start over"

// dispatch parses body into a Command and runs it against sess, returning
// the text to send back. Errors from collaborators become a user-facing
// message rather than propagating, since there's no caller left to receive
// them once the webhook has returned 200 (spec.md §4.9 step 3).
func (d *Dispatcher) dispatch(ctx context.Context, sess *session.Session, acc *types.Account, body string, now time.Time) string {
	cmd := session.ParseCommand(body)

	switch cmd.Kind {
	case session.CmdShortOrder:
		return d.handleShortOrder(ctx, sess, acc, cmd, body)
	case session.CmdClose:
		return d.handleClose(ctx, sess, acc, cmd)
	case session.CmdMenu:
		sess.State = session.StateMainMenu
		return menuText
	case session.CmdReset:
		sess.Reset()
		return "Session reset.\n\n" + menuText
	case session.CmdGreeting:
		sess.State = session.StateMainMenu
		sess.Pending = nil
		name := sess.UserName
		if name == "" {
			name = "there"
		}
		return fmt.Sprintf("Hi %s, welcome to gold trading.\n\n%s", name, menuText)
	case session.CmdBalance:
		return d.handleBalance(acc)
	case session.CmdCancel:
		return d.handleCancel(sess)
	case session.CmdPrices:
		return d.handlePrices(ctx, sess, acc)
	case session.CmdOrders:
		return d.handleOrders(ctx, sess, acc)
	case session.CmdRefresh:
		return d.handleOrders(ctx, sess, acc)
	default:
		return d.handleStateDispatch(ctx, sess, acc, body)
	}
}

// handleShortOrder quotes the requested side/volume and moves the session
// into CONFIRM_ORDER, per spec.md §4.8's order-placement flow. When the
// session is mid-AWAITING_VOLUME with a side already chosen (the user sent
// a bare "BUY" first, then a bare quantity), the previously chosen side
// wins over the parser's BUY default for an unqualified number.
func (d *Dispatcher) handleShortOrder(ctx context.Context, sess *session.Session, acc *types.Account, cmd session.Command, raw string) string {
	side := cmd.Side
	if !hasExplicitSide(raw) && sess.State == session.StateAwaitingVolume && sess.Pending != nil {
		side = sess.Pending.Side
	}

	if cmd.Volume.LessThanOrEqual(decimal.Zero) {
		return "Please enter a quantity greater than zero."
	}

	symbol := d.symbolFor(acc)
	quote, err := d.quoteFor(ctx, symbol, sess.Phone)
	if err != nil {
		return "Price feed is unavailable right now, please try again shortly."
	}

	spot := quote.Ask
	if side == types.Sell {
		spot = quote.Bid
	}
	clientPrice := pricing.QuoteForOpen(spot, side, acc.AskSpread, acc.BidSpread)

	balResult, err := d.engine.CheckBalance(ctx, acc.ID, cmd.Volume)
	if err != nil {
		return "Could not verify your balance right now, please try again shortly."
	}
	if !balResult.OK {
		return fmt.Sprintf("Insufficient balance: need %s AED, you have %s AED (max %s TTB available).",
			balResult.TotalNeeded.Round(2), balResult.UserBalance.Round(2), balResult.MaxAllowedVolume)
	}

	sess.Pending = &session.PendingOrder{Side: side, Volume: cmd.Volume, Quote: clientPrice}
	sess.State = session.StateConfirmOrder

	freshness := session.LabelFreshness(now().Sub(quote.LastUpdate))
	return fmt.Sprintf("Confirm: %s %s TTB at %s AED (%s). Reply Y to confirm or N to cancel.",
		side, cmd.Volume, clientPrice.Round(2), freshness)
}

// hasExplicitSide reports whether raw names BUY/SELL itself rather than
// being a bare quantity.
func hasExplicitSide(raw string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	return strings.HasPrefix(trimmed, "BUY") || strings.HasPrefix(trimmed, "SELL")
}

// handleConfirm answers Y/N while the session is in CONFIRM_ORDER: Y places
// the order against the engine at a freshly re-quoted price (spec.md §4.8:
// "re-quoted at confirmation time"), N discards the pending order.
func (d *Dispatcher) handleConfirm(ctx context.Context, sess *session.Session, acc *types.Account, body string) string {
	answer := strings.ToUpper(strings.TrimSpace(body))
	pending := sess.Pending

	if pending == nil {
		sess.State = session.StateMainMenu
		return "Nothing to confirm.\n\n" + menuText
	}

	switch answer {
	case "Y", "YES":
		symbol := d.symbolFor(acc)
		quote, err := d.quoteFor(ctx, symbol, sess.Phone)
		if err != nil {
			return "Price feed is unavailable right now, please try again."
		}
		spot := quote.Ask
		if pending.Side == types.Sell {
			spot = quote.Bid
		}

		res, err := d.engine.OpenTrade(ctx, acc.AdminOwner, acc.ID, engine.OpenTradeRequest{
			Symbol: symbol, Type: pending.Side, Volume: pending.Volume,
			Spot: spot, OpeningDate: time.Now().UTC(),
		})
		sess.Pending = nil
		sess.State = session.StateMainMenu
		if err != nil {
			return "Order failed: " + err.Error()
		}
		return fmt.Sprintf("Order %s placed: %s %s TTB at %s AED. Cash: %s AED, Gold: %s TTB.",
			res.Order.OrderNo, res.Order.Type, res.Order.Volume, res.Order.Price.Round(2),
			res.Cash.Round(2), res.Gold)
	case "N", "NO":
		sess.Pending = nil
		sess.State = session.StateMainMenu
		return "Order cancelled.\n\n" + menuText
	default:
		return "Please reply Y to confirm or N to cancel."
	}
}

func (d *Dispatcher) handleClose(ctx context.Context, sess *session.Session, acc *types.Account, cmd session.Command) string {
	target, ok := sess.ResolveCloseTarget(cmd)
	if !ok {
		return "No matching open order. Reply 'orders' to see your open orders."
	}

	order, err := d.db.OrderByOrderNo(ctx, target)
	if err != nil {
		return fmt.Sprintf("Order %s not found.", target)
	}
	if order.User != acc.ID {
		return fmt.Sprintf("Order %s not found.", target)
	}
	if order.OrderStatus.Terminal() {
		return fmt.Sprintf("Order %s is already %s.", order.OrderNo, order.OrderStatus)
	}

	symbol := d.symbolFor(acc)
	quote, err := d.quoteFor(ctx, symbol, sess.Phone)
	if err != nil {
		return "Price feed is unavailable right now, please try again shortly."
	}
	spot := quote.Bid
	if order.Type == types.Sell {
		spot = quote.Ask
	}

	closed, err := d.engine.CloseTrade(ctx, acc.AdminOwner, order.ID, engine.CloseTradeUpdate{
		OrderStatus: types.OrderClosed, ClosingPrice: &spot,
	})
	if err != nil {
		return fmt.Sprintf("Could not close order %s: %s", order.OrderNo, err.Error())
	}
	return fmt.Sprintf("Order %s closed at %s AED, profit %s AED. Cash: %s AED, Gold: %s TTB.",
		closed.Order.OrderNo, closed.Order.Price.Round(2), closed.Order.Profit,
		closed.Cash.Round(2), closed.Gold)
}

func (d *Dispatcher) handleBalance(acc *types.Account) string {
	return fmt.Sprintf("Cash: %s AED\nGold: %s TTB", acc.CashBalance.Round(2), acc.MetalWeight)
}

func (d *Dispatcher) handleCancel(sess *session.Session) string {
	if sess.Pending == nil {
		return "Nothing pending to cancel."
	}
	sess.Pending = nil
	sess.State = session.StateMainMenu
	return "Pending order cancelled.\n\n" + menuText
}

func (d *Dispatcher) handlePrices(ctx context.Context, sess *session.Session, acc *types.Account) string {
	symbol := d.symbolFor(acc)
	quote, err := d.quoteFor(ctx, symbol, sess.Phone)
	if err != nil {
		return "Price feed is unavailable right now, please try again shortly."
	}
	bidTTB := pricing.QuoteForOpen(quote.Bid, types.Sell, acc.AskSpread, acc.BidSpread)
	askTTB := pricing.QuoteForOpen(quote.Ask, types.Buy, acc.AskSpread, acc.BidSpread)
	freshness := session.LabelFreshness(now().Sub(quote.LastUpdate))
	return fmt.Sprintf("%s  bid %s / ask %s AED (%s)", symbol, bidTTB.Round(2), askTTB.Round(2), freshness)
}

func (d *Dispatcher) handleOrders(ctx context.Context, sess *session.Session, acc *types.Account) string {
	orders, err := d.db.OrdersByAccount(ctx, acc.ID, 20)
	if err != nil {
		return "Could not load your orders right now, please try again shortly."
	}

	var open []types.Order
	for _, o := range orders {
		if !o.OrderStatus.Terminal() {
			open = append(open, o)
		}
	}
	sess.OpenOrders = open
	sess.State = session.StateStatement

	if len(open) == 0 {
		return "You have no open orders."
	}
	var b strings.Builder
	b.WriteString("Open orders:\n")
	for i, o := range open {
		fmt.Fprintf(&b, "%d. %s %s %s TTB @ %s AED\n", i+1, o.OrderNo, o.Type, o.Volume, o.Price.Round(2))
	}
	b.WriteString("Reply 'CLOSE <n>' to close one.")
	return b.String()
}

// handleStateDispatch handles a message that matched none of the parser's
// special cases, per spec.md §4.8 precedence rule 4: interpretation depends
// on the session's current state.
func (d *Dispatcher) handleStateDispatch(ctx context.Context, sess *session.Session, acc *types.Account, body string) string {
	switch sess.State {
	case session.StateConfirmOrder:
		return d.handleConfirm(ctx, sess, acc, body)
	case session.StateAwaitingVolume:
		lower := strings.ToLower(strings.TrimSpace(body))
		switch lower {
		case "buy":
			sess.Pending = &session.PendingOrder{Side: types.Buy}
			return "How many TTB would you like to buy?"
		case "sell":
			sess.Pending = &session.PendingOrder{Side: types.Sell}
			return "How many TTB would you like to sell?"
		}
		return "Please enter a quantity, e.g. '2' or '2 TTB'."
	case session.StateStart:
		sess.State = session.StateMainMenu
		return menuText
	default:
		lower := strings.ToLower(strings.TrimSpace(body))
		if lower == "buy" {
			sess.Pending = &session.PendingOrder{Side: types.Buy}
			sess.State = session.StateAwaitingVolume
			return "How many TTB would you like to buy?"
		}
		if lower == "sell" {
			sess.Pending = &session.PendingOrder{Side: types.Sell}
			sess.State = session.StateAwaitingVolume
			return "How many TTB would you like to sell?"
		}
		return "Sorry, I didn't understand that.\n\n" + menuText
	}
}

// now is a seam for tests to control freshness labeling without sleeping.
var now = time.Now
