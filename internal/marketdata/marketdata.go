// Package marketdata maintains a per-symbol price cache fed by an adaptive
// poller against the MT5 bridge. The poll cadence narrows when a symbol has
// active subscribers and widens back out when it goes quiet, so idle symbols
// don't burn bridge round-trips while active ones stay fresh.
//
// Grounded on the teacher's internal/market/scanner.go Scanner: a
// ticker-driven Run(ctx) loop that polls on a fixed cadence and publishes
// results through a non-blocking channel that replaces any stale pending
// value rather than blocking the poller on a slow consumer. Generalized
// here from a single global poll interval to a per-symbol adaptive interval,
// and from a push channel to a synchronous cached read (GetMarketData),
// since callers need request/response semantics, not a feed.
package marketdata

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"goldbroker/internal/apperr"
	"goldbroker/pkg/types"
)

// Bridge is the subset of internal/bridge.Bridge this package depends on.
type Bridge interface {
	GetPrice(ctx context.Context, symbol string) (types.PriceQuote, error)
}

// Config tunes the adaptive poller (internal/config.MarketDataConfig).
type Config struct {
	DefaultInterval time.Duration
	MinInterval     time.Duration
	MaxInterval     time.Duration
	CacheTTL        time.Duration
	InactiveTimeout time.Duration
}

type entry struct {
	quote       types.PriceQuote
	fetchedAt   time.Time
	interval    time.Duration
	subscribers map[string]time.Time // subscriber id -> last touch
	mu          sync.Mutex
	stop        chan struct{}
}

// Service owns the per-symbol cache and poll goroutines.
type Service struct {
	bridge Bridge
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	symbols map[string]*entry
}

// New creates a marketdata Service.
func New(bridge Bridge, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		bridge:  bridge,
		cfg:     cfg,
		logger:  logger.With("component", "marketdata"),
		symbols: make(map[string]*entry),
	}
}

// AddSubscriber registers clientID's interest in symbol, starting the poll
// loop for it if this is the first subscriber, and narrowing its interval
// toward MinInterval.
func (s *Service) AddSubscriber(ctx context.Context, symbol, clientID string) {
	s.mu.Lock()
	e, ok := s.symbols[symbol]
	if !ok {
		e = &entry{
			interval:    s.cfg.DefaultInterval,
			subscribers: make(map[string]time.Time),
			stop:        make(chan struct{}),
		}
		s.symbols[symbol] = e
		go s.pollLoop(ctx, symbol, e)
	}
	s.mu.Unlock()

	e.mu.Lock()
	e.subscribers[clientID] = time.Now()
	e.mu.Unlock()
}

// RemoveSubscriber drops clientID's interest in symbol. The poll loop keeps
// running — widened out — until InactiveTimeout elapses with zero
// subscribers, at which point it stops itself.
func (s *Service) RemoveSubscriber(symbol, clientID string) {
	s.mu.Lock()
	e, ok := s.symbols[symbol]
	s.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	delete(e.subscribers, clientID)
	e.mu.Unlock()
}

func (s *Service) pollLoop(ctx context.Context, symbol string, e *entry) {
	s.fetch(ctx, symbol, e)

	timer := time.NewTimer(e.currentInterval(s.cfg))
	defer timer.Stop()

	idleSince := time.Time{}

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-timer.C:
			e.mu.Lock()
			subCount := len(e.subscribers)
			e.mu.Unlock()

			if subCount == 0 {
				if idleSince.IsZero() {
					idleSince = time.Now()
				} else if time.Since(idleSince) > s.cfg.InactiveTimeout {
					s.logger.Info("market data poller stopping, inactive", "symbol", symbol)
					s.mu.Lock()
					delete(s.symbols, symbol)
					s.mu.Unlock()
					return
				}
			} else {
				idleSince = time.Time{}
			}

			s.fetch(ctx, symbol, e)
			timer.Reset(e.currentInterval(s.cfg))
		}
	}
}

func (s *Service) fetch(ctx context.Context, symbol string, e *entry) {
	quote, err := s.bridge.GetPrice(ctx, symbol)
	if err != nil {
		s.logger.Warn("market data fetch failed", "symbol", symbol, "error", err)
		return
	}
	e.mu.Lock()
	e.quote = quote
	e.fetchedAt = time.Now()
	e.mu.Unlock()
}

// currentInterval narrows toward MinInterval as subscriber count grows and
// widens back toward MaxInterval when quiet.
func (e *entry) currentInterval(cfg Config) time.Duration {
	e.mu.Lock()
	n := len(e.subscribers)
	e.mu.Unlock()

	switch {
	case n >= 3:
		return cfg.MinInterval
	case n > 0:
		return cfg.DefaultInterval
	default:
		return cfg.MaxInterval
	}
}

// GetMarketData returns the cached quote for symbol, force-refreshing
// synchronously if the cache is stale or empty, or the symbol isn't tracked
// yet. If
// clientID is non-empty it is registered as a subscriber as a side effect,
// so issuing a read is itself enough to keep a symbol warm.
func (s *Service) GetMarketData(ctx context.Context, symbol, clientID string) (types.PriceQuote, error) {
	if clientID != "" {
		s.AddSubscriber(ctx, symbol, clientID)
	}

	s.mu.Lock()
	e, ok := s.symbols[symbol]
	s.mu.Unlock()

	if !ok {
		// Not yet tracked (no subscriber registered) — do a one-off fetch.
		return s.bridge.GetPrice(ctx, symbol)
	}

	e.mu.Lock()
	quote, fetchedAt := e.quote, e.fetchedAt
	e.mu.Unlock()

	if fetchedAt.IsZero() || time.Since(fetchedAt) > s.cfg.CacheTTL {
		s.fetch(ctx, symbol, e)
		e.mu.Lock()
		quote, fetchedAt = e.quote, e.fetchedAt
		e.mu.Unlock()
	}

	if fetchedAt.IsZero() {
		return types.PriceQuote{}, apperr.Upstreamf(0, "no price data yet for %s", symbol)
	}

	return quote, nil
}

// IsFresh reports whether quote's LastUpdate is within CacheTTL of now.
func (cfg Config) IsFresh(quote types.PriceQuote, now time.Time) bool {
	return now.Sub(quote.LastUpdate) <= cfg.CacheTTL
}
