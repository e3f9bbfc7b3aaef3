package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"goldbroker/pkg/types"
)

func TestOpenEntriesShape(t *testing.T) {
	t.Parallel()

	order := types.Order{OrderNo: "O1", Type: types.Buy, Volume: decimal.NewFromInt(1), RequiredMargin: decimal.NewFromInt(100)}
	lp := types.LPPosition{PositionID: "O1", Type: types.Buy, Volume: decimal.NewFromInt(1)}
	acc := types.Account{ID: 1, AdminOwner: 9, CashBalance: decimal.NewFromInt(900), MetalWeight: decimal.NewFromInt(1)}

	entries := OpenEntries(order, lp, acc, decimal.NewFromInt(1000), decimal.Zero, decimal.NewFromInt(250), time.Now())
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}

	if entries[0].EntryType != types.EntryOrder || entries[0].EntryNature != types.Debit {
		t.Errorf("entry 0 = %+v, want ORDER/DEBIT", entries[0])
	}
	if entries[1].EntryType != types.EntryLPPosition || entries[1].EntryNature != types.Credit {
		t.Errorf("entry 1 = %+v, want LP_POSITION/CREDIT", entries[1])
	}
	if entries[3].EntryNature != types.Credit {
		t.Errorf("BUY gold entry should be CREDIT, got %s", entries[3].EntryNature)
	}
}

func TestCloseEntriesGoldNatureForSell(t *testing.T) {
	t.Parallel()

	order := types.Order{OrderNo: "O2", Type: types.Sell, Volume: decimal.NewFromInt(1)}
	lp := types.LPPosition{PositionID: "O2", Type: types.Sell, Volume: decimal.NewFromInt(1)}
	acc := types.Account{ID: 1, AdminOwner: 9, CashBalance: decimal.NewFromInt(1100), MetalWeight: decimal.Zero}

	entries := CloseEntries(order, lp, acc, decimal.NewFromInt(1000), decimal.NewFromInt(1), decimal.NewFromInt(250), time.Now())
	if entries[3].EntryNature != types.Credit {
		t.Errorf("SELL close gold entry should be CREDIT, got %s", entries[3].EntryNature)
	}
}
