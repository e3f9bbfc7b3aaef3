package bridge

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

// TestCallRoundTrip spawns a tiny shell echo-responder in place of the real
// MT5 sidecar to exercise the request/response correlation path end to end.
func TestCallRoundTrip(t *testing.T) {
	t.Parallel()

	script := `while IFS= read -r line; do
		id=$(echo "$line" | sed -n 's/.*"requestId":"\([^"]*\)".*/\1/p')
		printf '{"requestId":"%s","result":{"bid":1900.1,"ask":1900.6,"time":1700000000}}\n' "$id"
	done`

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	b := New("sh", []string{"-c", script}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer b.Disconnect()

	quote, err := b.GetPrice(ctx, "XAUUSD")
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if !quote.Bid.Equal(quote.Bid) || quote.Ask.LessThanOrEqual(quote.Bid) {
		t.Errorf("unexpected quote: %+v", quote)
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		retcode int
		want    bool
	}{
		{RetcodeDone, false},
		{RetcodeRequoteRetryable, true},
		{RetcodeFrozenRetryable, true},
		{RetcodeInvalidVolume, false},
		{RetcodeNoMoney, false},
	}
	for _, tc := range cases {
		if got := retryable(tc.retcode); got != tc.want {
			t.Errorf("retryable(%d) = %v, want %v", tc.retcode, got, tc.want)
		}
	}
}

func TestNextClientTagMonotonic(t *testing.T) {
	t.Parallel()

	a := NextClientTag("ord")
	b := NextClientTag("ord")
	if a == b {
		t.Errorf("expected distinct tags, got %q twice", a)
	}
}
