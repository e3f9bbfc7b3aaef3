// ratelimit.go throttles inbound webhook messages per phone number so a
// single misbehaving client (or a vendor retry storm) can't flood the
// session state machine or the trading engine.
//
// Ported from the teacher's internal/exchange/ratelimit.go TokenBucket,
// which smooths Polymarket's per-10-second category limits with continuous
// refill. The bucket math is unchanged; what changes is what it gates: there
// the buckets were keyed by CLOB endpoint category (order/cancel/book), here
// a bucket is created per phone number on first contact and capacity/rate
// are tuned for a chat cadence instead of an HFT order-placement cadence.
package webhook

import (
	"sync"
	"time"
)

// tokenBucket is a token-bucket rate limiter with continuous refill. Callers
// check it with the non-blocking allow().
type tokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64 // tokens refilled per second
	lastTime time.Time
}

func newTokenBucket(capacity, ratePerSecond float64) *tokenBucket {
	return &tokenBucket{tokens: capacity, capacity: capacity, rate: ratePerSecond, lastTime: time.Now()}
}

// allow reports whether a token is available right now, consuming it if so.
// Unlike the teacher's blocking Wait, inbound webhook messages must never
// block the HTTP handler (spec.md §4.9 step 3: always return 200
// immediately) — so this is a non-blocking check, and a message that finds
// no token available is simply throttled rather than queued.
func (tb *tokenBucket) allow(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	elapsed := now.Sub(tb.lastTime).Seconds()
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastTime = now

	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}

// phoneLimiter holds one tokenBucket per phone number, created lazily.
type phoneLimiter struct {
	mu       sync.Mutex
	capacity float64
	rate     float64
	buckets  map[string]*tokenBucket
}

func newPhoneLimiter(capacity, ratePerSecond float64) *phoneLimiter {
	return &phoneLimiter{capacity: capacity, rate: ratePerSecond, buckets: make(map[string]*tokenBucket)}
}

// Allow reports whether phone may send another message right now.
func (l *phoneLimiter) Allow(phone string, now time.Time) bool {
	l.mu.Lock()
	b, ok := l.buckets[phone]
	if !ok {
		b = newTokenBucket(l.capacity, l.rate)
		b.lastTime = now
		l.buckets[phone] = b
	}
	l.mu.Unlock()
	return b.allow(now)
}
