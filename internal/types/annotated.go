package types

import "github.com/moznion/go-optional"

// AnnotatedBar is a Bar enriched with the signal engine's derived columns.
type AnnotatedBar struct {
	Bar

	FastIndicator  optional.Option[float64]
	SlowIndicator  optional.Option[float64]
	TradingAllowed bool
	LongEntry      bool
	LongExit       bool
	// StopLevel is the trailing stop from the entry bar through the exit bar, None while flat.
	StopLevel optional.Option[float64]
	// StopTriggered marks an exit forced by low < StopLevel.
	StopTriggered bool
	// SessionExit marks an exit forced on the last allowed bar of the day.
	SessionExit bool
	// PositionState is entries minus exits up to and including this bar (0 or 1).
	PositionState int
	// TradeID is the running count of entries.
	TradeID int
}

// ExitReason returns why the exit on this bar fired. Only meaningful when LongExit is set.
func (a AnnotatedBar) ExitReason() ExitReason {
	switch {
	case a.StopTriggered:
		return ExitReasonStop
	case a.SessionExit:
		return ExitReasonSessionEnd
	default:
		return ExitReasonSignal
	}
}
