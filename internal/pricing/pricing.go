// Package pricing converts upstream spot XAU/USD quotes into client-visible
// TTB (Ten-Tola Bar) prices. Every function here is a pure transform over
// decimal.Decimal — no I/O, no shared state — following the teacher's
// convention of keeping pure math (tick/amount conversion in
// internal/exchange/client.go's PriceToAmounts) separate from any component
// that owns a connection or a goroutine.
package pricing

import (
	"github.com/shopspring/decimal"

	"goldbroker/pkg/types"
)

// Constants derived from spec.md §4.3.
var (
	// TroyOzGrams is the mass of one troy ounce in grams.
	TroyOzGrams = decimal.NewFromFloat(31.103)
	// Conv is the USD-to-AED conversion factor applied in SpotToTTB.
	Conv = decimal.NewFromFloat(3.674)
	// TTBFactor is the mass of one Ten-Tola Bar in grams.
	TTBFactor = decimal.NewFromFloat(116.64)
)

// SpotToTTB converts a raw spot XAU/USD price into a per-bar AED price.
//
//	P_ttb = P_xau / TROY_OZ_G × CONV × TTB_FACTOR
func SpotToTTB(spot decimal.Decimal) decimal.Decimal {
	return spot.Div(TroyOzGrams).Mul(Conv).Mul(TTBFactor)
}

// QuoteForOpen applies the per-account spread appropriate for opening a
// position: BUY adds askSpread, SELL subtracts bidSpread.
func QuoteForOpen(spot decimal.Decimal, side types.Side, askSpread, bidSpread decimal.Decimal) decimal.Decimal {
	if side == types.Buy {
		return spot.Add(askSpread)
	}
	return spot.Sub(bidSpread)
}

// QuoteForClose applies the *opposite-side* spread rule for closing a
// position: closing a BUY uses spot − bidSpread; closing a SELL uses
// spot + askSpread.
func QuoteForClose(spot decimal.Decimal, side types.Side, askSpread, bidSpread decimal.Decimal) decimal.Decimal {
	if side == types.Buy {
		return spot.Sub(bidSpread)
	}
	return spot.Add(askSpread)
}

// GoldWeightValue returns the AED value of volume at the given spot price,
// converted to a per-bar price first: spotToTtb(price) × volume.
func GoldWeightValue(price, volume decimal.Decimal) decimal.Decimal {
	return SpotToTTB(price).Mul(volume)
}
