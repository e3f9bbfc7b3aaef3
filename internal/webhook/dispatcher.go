// Package webhook implements the conversational channel's inbound message
// handling: validation, deduplication, phone authorization, and dispatch
// into the session state machine (spec.md §4.8/§4.9).
//
// Grounded on the teacher's internal/exchange client's request lifecycle —
// validate, rate-limit, execute, log — generalized here from an outbound
// order-placement call to an inbound message: Validate mirrors the
// teacher's pre-flight parameter checks, the phoneLimiter/dedupCache mirror
// its rate-limit-before-call discipline, and process's goroutine-per-message
// dispatch mirrors the teacher's habit of never blocking a caller on a slow
// downstream (there, Book events off a channel; here, the HTTP handler
// returns 200 before the reply is sent).
package webhook

import (
	"context"
	"log/slog"
	"time"

	"goldbroker/internal/apperr"
	"goldbroker/internal/engine"
	"goldbroker/internal/marketdata"
	"goldbroker/internal/messaging"
	"goldbroker/internal/metrics"
	"goldbroker/internal/session"
	"goldbroker/internal/storage"
	"goldbroker/pkg/types"
)

// deniedReply is the fixed response for a phone number that doesn't match
// any account, per spec.md §4.9 step 4.
const deniedReply = "Access Denied."

// Config tunes the dispatcher (internal/config.TradingConfig).
type Config struct {
	DefaultSymbol      string
	CountryCode        string
	DedupWindow        time.Duration
	SessionIdleTimeout time.Duration
}

// Dispatcher wires the session store, dedup cache, and phone rate limiter
// around the engine/storage/marketdata/messaging collaborators.
type Dispatcher struct {
	cfg     Config
	db      *storage.DB
	engine  *engine.Engine
	market  *marketdata.Service
	sender  messaging.Sender
	logger  *slog.Logger

	sessions *sessionStore
	dedup    *dedupCache
	limiter  *phoneLimiter
}

// New builds a Dispatcher. The per-phone inbound rate limit is fixed at a
// burst of 5 messages refilled at 1 per second (spec.md §5 doesn't name a
// rate but calls out the same
// single-shared-resource discipline the bridge and market-data poller use).
func New(cfg Config, db *storage.DB, eng *engine.Engine, market *marketdata.Service, sender messaging.Sender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		db:       db,
		engine:   eng,
		market:   market,
		sender:   sender,
		logger:   logger.With("component", "webhook"),
		sessions: newSessionStore(cfg.SessionIdleTimeout),
		dedup:    newDedupCache(cfg.DedupWindow),
		limiter:  newPhoneLimiter(5, 1),
	}
}

// InboundMessage is the normalized form of the vendor's webhook payload.
type InboundMessage struct {
	Body        string
	From        string
	MessageSid  string
	ProfileName string
}

// Validate rejects a message missing any required field (spec.md §4.9 step 1).
func (m InboundMessage) Validate() error {
	if m.From == "" {
		return apperr.Validationf("missing From")
	}
	if m.MessageSid == "" {
		return apperr.Validationf("missing MessageSid")
	}
	return nil
}

// HandleInbound implements spec.md §4.9's contract end to end except for
// the HTTP envelope itself, which the caller owns: validate, dedupe, and
// hand off to an async goroutine so the caller can return 200 immediately.
// It returns nothing; whether the message was accepted for processing (as
// opposed to rejected for validation, dropped as a duplicate, or throttled)
// is recorded only in metrics — the caller must return 200 either way, per
// the at-least-once contract.
func (d *Dispatcher) HandleInbound(ctx context.Context, msg InboundMessage) {
	if err := msg.Validate(); err != nil {
		metrics.RecordWebhookMessage("invalid")
		d.logger.Warn("rejected malformed webhook payload", "error", err)
		return
	}

	now := time.Now()
	if d.dedup.SeenOrRecord(msg.MessageSid, now) {
		metrics.RecordWebhookMessage("duplicate")
		d.logger.Info("dropped duplicate webhook delivery", "messageSid", msg.MessageSid)
		return
	}

	if !d.limiter.Allow(msg.From, now) {
		metrics.RecordWebhookMessage("throttled")
		d.logger.Warn("inbound message throttled", "from", msg.From)
		return
	}

	// Detached from the request context: the HTTP handler returns before
	// this finishes, so it must not be cancelled when the request does.
	go d.process(context.Background(), msg, now)
}

func (d *Dispatcher) process(ctx context.Context, msg InboundMessage, now time.Time) {
	candidates := NormalizeCandidates(msg.From, d.cfg.CountryCode)
	acc, err := d.db.AccountByPhone(ctx, candidates)
	if err != nil {
		metrics.RecordWebhookMessage("unauthorized")
		d.logger.Info("unrecognized phone number", "from", msg.From)
		d.reply(ctx, msg.From, deniedReply)
		return
	}

	sess := d.sessions.GetOrCreate(msg.From, acc.ID, now)
	if msg.ProfileName != "" {
		sess.UserName = msg.ProfileName
	}
	d.sessions.Touch(msg.From, now)

	reply := d.dispatch(ctx, sess, acc, msg.Body, now)
	metrics.RecordWebhookMessage("processed")
	metrics.RecordSessionTransition(string(sess.State))
	d.reply(ctx, msg.From, reply)
}

func (d *Dispatcher) reply(ctx context.Context, to, body string) {
	if body == "" {
		return
	}
	if err := d.sender.Send(ctx, to, body); err != nil {
		d.logger.Error("failed to send reply", "to", to, "error", err)
	}
}

// symbolFor returns the trading symbol for this conversation. There is no
// per-account symbol selection in spec.md, so every session trades the
// configured default instrument.
func (d *Dispatcher) symbolFor(*types.Account) string {
	if d.cfg.DefaultSymbol != "" {
		return d.cfg.DefaultSymbol
	}
	return "XAUUSD"
}

func (d *Dispatcher) quoteFor(ctx context.Context, symbol, clientID string) (types.PriceQuote, error) {
	return d.market.GetMarketData(ctx, symbol, clientID)
}
