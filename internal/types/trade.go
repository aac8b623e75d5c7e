package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a trade. The strategy is long-only.
type Direction string

const (
	DirectionLong Direction = "long"
)

// TradeStatus tells whether the exit has happened.
type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "open"
	TradeStatusClosed TradeStatus = "closed"
)

// ExitReason records what closed a trade.
type ExitReason string

const (
	ExitReasonSignal     ExitReason = "signal"
	ExitReasonStop       ExitReason = "stop"
	ExitReasonSessionEnd ExitReason = "session_end"
)

// Trade is one simulated round trip.
type Trade struct {
	ID         int         `csv:"id"`
	Direction  Direction   `csv:"direction"`
	Size       int64       `csv:"size"`
	EntryTime  time.Time   `csv:"entry_time"`
	EntryPrice float64     `csv:"entry_price"`
	ExitTime   time.Time   `csv:"exit_time"`
	ExitPrice  float64     `csv:"exit_price"`
	ExitReason ExitReason  `csv:"exit_reason"`
	// Ticks is (exit - entry) / tick size, truncated toward zero.
	Ticks int64 `csv:"ticks"`
	// Gain is Ticks * tick value * size.
	Gain   decimal.Decimal `csv:"gain"`
	Status TradeStatus     `csv:"status"`
	// SourceContractID is the contract the entry bar came from.
	SourceContractID string `csv:"source_contract_id"`
}

// IsWin reports a closed trade with a positive tick result.
func (t Trade) IsWin() bool {
	return t.Status == TradeStatusClosed && t.Ticks > 0
}

// IsLoss reports a closed trade with a negative tick result.
func (t Trade) IsLoss() bool {
	return t.Status == TradeStatusClosed && t.Ticks < 0
}
