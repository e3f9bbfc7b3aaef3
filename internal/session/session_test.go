package session

import (
	"testing"
	"time"

	"goldbroker/pkg/types"
)

func TestParseCommandShortOrderPrecedence(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		wantKind CommandKind
		wantSide types.Side
	}{
		{"BUY 2", CmdShortOrder, types.Buy},
		{"sell 1.5 ttb", CmdShortOrder, types.Sell},
		{"2", CmdShortOrder, types.Buy},
		{"2 TTB", CmdShortOrder, types.Buy},
	}
	for _, tc := range cases {
		got := ParseCommand(tc.in)
		if got.Kind != tc.wantKind {
			t.Errorf("ParseCommand(%q).Kind = %s, want %s", tc.in, got.Kind, tc.wantKind)
		}
		if got.Kind == CmdShortOrder && got.Side != tc.wantSide {
			t.Errorf("ParseCommand(%q).Side = %s, want %s", tc.in, got.Side, tc.wantSide)
		}
	}
}

func TestParseCommandClose(t *testing.T) {
	t.Parallel()

	byIndex := ParseCommand("CLOSE 2")
	if byIndex.Kind != CmdClose || byIndex.CloseIndex != 2 {
		t.Errorf("CLOSE 2 = %+v, want CmdClose index 2", byIndex)
	}

	byID := ParseCommand("close ORD-abc123")
	if byID.Kind != CmdClose || byID.CloseOrderID != "ORD-abc123" {
		t.Errorf("close ORD-abc123 = %+v, want CmdClose orderId", byID)
	}
}

func TestParseCommandSpecialCommandsAndFallback(t *testing.T) {
	t.Parallel()

	if ParseCommand("menu").Kind != CmdMenu {
		t.Error("expected menu command")
	}
	if ParseCommand("balance").Kind != CmdBalance {
		t.Error("expected balance command")
	}
	if ParseCommand("hello").Kind != CmdGreeting {
		t.Error("expected greeting command")
	}
	if ParseCommand("what time is it").Kind != CmdStateDispatch {
		t.Error("expected fallback to state dispatch")
	}
}

func TestResolveCloseTargetByIndex(t *testing.T) {
	t.Parallel()

	s := New("+971500000000", 1)
	s.OpenOrders = []types.Order{{OrderNo: "ORD-1"}, {OrderNo: "ORD-2"}}

	target, ok := s.ResolveCloseTarget(Command{Kind: CmdClose, CloseIndex: 2})
	if !ok || target != "ORD-2" {
		t.Errorf("resolve close index 2 = (%q, %v), want (ORD-2, true)", target, ok)
	}

	_, ok = s.ResolveCloseTarget(Command{Kind: CmdClose, CloseIndex: 5})
	if ok {
		t.Error("expected out-of-range index to fail")
	}
}

func TestLabelFreshness(t *testing.T) {
	t.Parallel()

	if LabelFreshness(10*time.Second) != Live {
		t.Error("10s should be Live")
	}
	if LabelFreshness(120*time.Second) != Delayed {
		t.Error("120s should be Delayed")
	}
	if LabelFreshness(400*time.Second) != Stale {
		t.Error("400s should be Stale")
	}
}
