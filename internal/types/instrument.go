package types

import "github.com/shopspring/decimal"

// Instrument describes the traded futures product.
type Instrument struct {
	// Symbol is the root symbol, e.g. "ES".
	Symbol string
	// BaseContractID is the front contract id, e.g. "CON.F.US.EP.H26".
	BaseContractID string
	// TickSize is the minimum price increment.
	TickSize decimal.Decimal
	// TickValue is the monetary value of one tick for one contract.
	TickValue decimal.Decimal
	// Lookback is the number of contract months considered when stitching.
	Lookback int
}

// TickSizeFloat returns TickSize as float64 for indicator math.
func (i Instrument) TickSizeFloat() float64 {
	f, _ := i.TickSize.Float64()

	return f
}
