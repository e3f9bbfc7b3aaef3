// Package balance implements the margin/balance policy that gates every
// trade request before it reaches the trading engine.
//
// CheckSufficientBalance is a pure, stateless derivation over values the
// caller already loaded (account + its processing orders) — the same shape
// as the teacher's risk.Manager.RemainingBudget, which computes headroom
// from an in-memory snapshot rather than querying storage itself. Unlike
// RemainingBudget this isn't margin/exposure across markets but per-account
// cash vs. required margin, so the struct and its fields are new, but the
// "compute a headroom number from a config + snapshot, no I/O" shape is the
// one generalized from the teacher.
package balance

import (
	"github.com/shopspring/decimal"

	"goldbroker/pkg/types"
)

// Policy holds the trading-config constants the derivation needs.
type Policy struct {
	BaseAmountPerVolume decimal.Decimal // AED reserved per gram of volume
	MinimumBalancePct   decimal.Decimal // percent, e.g. 5 means 5%
}

// Result is the full breakdown CheckSufficientBalance returns, mirroring
// every field named in spec.md §4.4 so callers (and the session layer, when
// explaining a rejection to a user) can report any of them.
type Result struct {
	OK                bool
	UserBalance       decimal.Decimal
	BaseAmount        decimal.Decimal
	MarginAmount      decimal.Decimal
	TotalRequired      decimal.Decimal
	ExistingVolume    decimal.Decimal
	ExistingAmount    decimal.Decimal
	TotalNeeded       decimal.Decimal
	RemainingBalance  decimal.Decimal
	MaxAllowedVolume  decimal.Decimal
	Message           string
}

// CheckSufficientBalance decides whether account has enough cash to open a
// new order of the given volume, given its already-PROCESSING orders.
func CheckSufficientBalance(p Policy, account *types.Account, volume decimal.Decimal, processing []types.Order) Result {
	if volume.LessThanOrEqual(decimal.Zero) {
		return Result{OK: false, Message: "volume must be positive"}
	}

	pctFactor := decimal.NewFromInt(1).Add(p.MinimumBalancePct.Div(decimal.NewFromInt(100)))

	baseAmount := volume.Mul(p.BaseAmountPerVolume)
	marginAmount := baseAmount.Mul(p.MinimumBalancePct).Div(decimal.NewFromInt(100))
	totalRequired := baseAmount.Add(marginAmount)

	existingVolume := decimal.Zero
	for _, o := range processing {
		existingVolume = existingVolume.Add(o.Volume)
	}
	existingBase := existingVolume.Mul(p.BaseAmountPerVolume)
	existingMargin := existingBase.Mul(p.MinimumBalancePct).Div(decimal.NewFromInt(100))
	existingAmount := existingBase.Add(existingMargin)

	totalNeeded := totalRequired.Add(existingAmount)
	remainingBalance := account.CashBalance.Sub(totalNeeded)

	perVolumeCost := p.BaseAmountPerVolume.Mul(pctFactor)
	maxAllowedVolume := decimal.Zero
	if perVolumeCost.GreaterThan(decimal.Zero) {
		headroom := account.CashBalance.Sub(existingAmount)
		if headroom.GreaterThan(decimal.Zero) {
			maxAllowedVolume = headroom.Div(perVolumeCost).Floor()
		}
	}

	ok := remainingBalance.GreaterThanOrEqual(decimal.Zero)
	message := "sufficient balance"
	if !ok {
		message = "insufficient balance for requested volume"
	}

	return Result{
		OK:               ok,
		UserBalance:      account.CashBalance,
		BaseAmount:       baseAmount,
		MarginAmount:     marginAmount,
		TotalRequired:    totalRequired,
		ExistingVolume:   existingVolume,
		ExistingAmount:   existingAmount,
		TotalNeeded:      totalNeeded,
		RemainingBalance: remainingBalance,
		MaxAllowedVolume: maxAllowedVolume,
		Message:          message,
	}
}
