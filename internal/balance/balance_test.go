package balance

import (
	"testing"

	"github.com/shopspring/decimal"

	"goldbroker/pkg/types"
)

func TestCheckSufficientBalanceOK(t *testing.T) {
	t.Parallel()

	p := Policy{
		BaseAmountPerVolume: decimal.NewFromInt(100),
		MinimumBalancePct:   decimal.NewFromInt(5),
	}
	acc := &types.Account{CashBalance: decimal.NewFromInt(1000)}

	res := CheckSufficientBalance(p, acc, decimal.NewFromInt(5), nil)
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}
	if !res.BaseAmount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("baseAmount = %s, want 500", res.BaseAmount)
	}
	if !res.MarginAmount.Equal(decimal.NewFromInt(25)) {
		t.Errorf("marginAmount = %s, want 25", res.MarginAmount)
	}
	if !res.TotalRequired.Equal(decimal.NewFromInt(525)) {
		t.Errorf("totalRequired = %s, want 525", res.TotalRequired)
	}
	if !res.RemainingBalance.Equal(decimal.NewFromInt(475)) {
		t.Errorf("remainingBalance = %s, want 475", res.RemainingBalance)
	}
}

func TestCheckSufficientBalanceInsufficientWithExisting(t *testing.T) {
	t.Parallel()

	p := Policy{
		BaseAmountPerVolume: decimal.NewFromInt(100),
		MinimumBalancePct:   decimal.NewFromInt(5),
	}
	acc := &types.Account{CashBalance: decimal.NewFromInt(600)}
	processing := []types.Order{{Volume: decimal.NewFromInt(4)}} // existing 4*100*1.05=420

	res := CheckSufficientBalance(p, acc, decimal.NewFromInt(2), processing)
	if res.OK {
		t.Fatalf("expected insufficient, got %+v", res)
	}
	if !res.ExistingAmount.Equal(decimal.NewFromInt(420)) {
		t.Errorf("existingAmount = %s, want 420", res.ExistingAmount)
	}
}

func TestCheckSufficientBalanceRejectsNonPositiveVolume(t *testing.T) {
	t.Parallel()

	p := Policy{BaseAmountPerVolume: decimal.NewFromInt(100), MinimumBalancePct: decimal.NewFromInt(5)}
	acc := &types.Account{CashBalance: decimal.NewFromInt(1000)}

	res := CheckSufficientBalance(p, acc, decimal.Zero, nil)
	if res.OK {
		t.Fatal("expected zero volume to be rejected")
	}
}
