package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordOrderOpened(t *testing.T) {
	RecordOrderOpened("BUY", "GOLD")
	if got := testutil.ToFloat64(OrdersOpened.WithLabelValues("BUY", "GOLD")); got < 1 {
		t.Fatalf("expected counter >= 1, got %v", got)
	}
}

func TestRecordBridgeRetcode(t *testing.T) {
	RecordBridgeRetcode("place_trade", 10020)
	if got := testutil.ToFloat64(BridgeRetcodes.WithLabelValues("place_trade", "10020")); got < 1 {
		t.Fatalf("expected counter >= 1, got %v", got)
	}
}

func TestSetMarketDataStaleness(t *testing.T) {
	SetMarketDataStaleness("GOLD", 12.5)
	if got := testutil.ToFloat64(MarketDataStaleness.WithLabelValues("GOLD")); got != 12.5 {
		t.Fatalf("expected gauge 12.5, got %v", got)
	}
}
