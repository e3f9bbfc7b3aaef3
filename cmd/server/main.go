// goldbroker — a WhatsApp-driven gold-trading brokerage that bridges
// conversational orders to an MT5 upstream venue.
//
// Architecture:
//
//	main.go                  — entry point: loads config, wires every collaborator, waits for SIGINT/SIGTERM
//	internal/bridge          — subprocess JSON-RPC client for the MT5 upstream venue
//	internal/marketdata      — adaptive per-symbol polling cache over the bridge's price feed
//	internal/storage         — GORM persistence for accounts, orders, LP positions, ledger, transactions
//	internal/balance         — margin/balance policy gating every trade request
//	internal/ledger          — four-entry journal lines for open/close and the conservation diagnostic
//	internal/engine          — orchestrator: validates, calls the bridge, locks the account, records the ledger
//	internal/session         — WhatsApp conversation state machine and command parser
//	internal/webhook         — inbound message validation, dedup, rate limiting, dispatch into session
//	internal/messaging       — outbound WhatsApp replies via the vendor's send API
//	internal/api             — admin REST surface, WhatsApp webhook HTTP endpoint, dashboard WebSocket feed
//	internal/metrics         — Prometheus counters/gauges for orders, bridge retcodes, sessions
//
// How a trade happens:
//
//	A client texts "buy 5" on WhatsApp. The webhook validates and
//	deduplicates the message, looks up the account by phone number, and
//	dispatches it into the session state machine, which quotes a price from
//	the market-data cache and checks the balance policy. On confirmation the
//	engine opens the trade: it calls the MT5 bridge, then locks the account
//	row and atomically writes the order, LP position, and four ledger lines.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"

	"goldbroker/internal/api"
	"goldbroker/internal/balance"
	"goldbroker/internal/bridge"
	"goldbroker/internal/config"
	"goldbroker/internal/engine"
	"goldbroker/internal/marketdata"
	"goldbroker/internal/messaging"
	"goldbroker/internal/storage"
	"goldbroker/internal/webhook"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("GOLDBROKER_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(*cfg)

	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var args []string
	if cfg.MT5.Server != "" {
		args = []string{"--server", cfg.MT5.Server, "--login", cfg.MT5.Login, "--password", cfg.MT5.Password}
	}
	br := bridge.New(cfg.MT5.BridgeCommand, args, logger)
	if err := br.Connect(ctx); err != nil {
		logger.Error("failed to connect mt5 bridge", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := br.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("mt5 bridge run loop exited", "error", err)
		}
	}()
	defer br.Disconnect()

	market := marketdata.New(br, marketdata.Config{
		DefaultInterval: cfg.MarketData.DefaultInterval,
		MinInterval:     cfg.MarketData.MinInterval,
		MaxInterval:     cfg.MarketData.MaxInterval,
		CacheTTL:        cfg.MarketData.CacheTTL,
		InactiveTimeout: cfg.MarketData.InactiveTimeout,
	}, logger)

	policy := balance.Policy{
		BaseAmountPerVolume: decimal.NewFromFloat(cfg.Trading.BaseAmountPerVolume),
		MinimumBalancePct:   decimal.NewFromFloat(cfg.Trading.MinimumBalancePct),
	}

	eng := engine.New(db, br, policy, logger)

	sender := messaging.NewSender(messaging.Config{
		SendURL: cfg.Messaging.SendURL, APIKey: cfg.Messaging.APIKey,
		APISecret: cfg.Messaging.APISecret, SenderID: cfg.Messaging.SenderID,
	}, logger)
	if cfg.DryRun {
		sender = messaging.NoopSender{}
	}

	dispatcher := webhook.New(webhook.Config{
		DefaultSymbol:      cfg.Trading.DefaultSymbol,
		CountryCode:        cfg.Trading.CountryCode,
		DedupWindow:        cfg.Trading.DedupWindow,
		SessionIdleTimeout: cfg.Trading.SessionIdleTimeout,
	}, db, eng, market, sender, logger)

	apiServer := api.NewServer(db, eng, market, dispatcher, *cfg, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("admin server failed", "error", err)
		}
	}()
	logger.Info("goldbroker started", "addr", fmt.Sprintf(":%d", cfg.Server.Port), "dry_run", cfg.DryRun)

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed, outbound messages suppressed")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if err := apiServer.Stop(); err != nil {
		logger.Error("failed to stop admin server", "error", err)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	var handler slog.Handler
	if strings.EqualFold(cfg.Logging.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
