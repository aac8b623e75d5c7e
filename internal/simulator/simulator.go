package simulator

import (
	"fmt"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/pkg/errors"
	"github.com/shopspring/decimal"
)

// Options controls how trades are filled.
type Options struct {
	// Size is the number of contracts per trade. Zero means one.
	Size int64
}

// Result is the outcome of one simulation.
type Result struct {
	Closed []types.Trade
	// Open holds the trade still running at the end of the series, if any.
	// It never counts toward aggregate statistics.
	Open optional.Option[types.Trade]
}

// Simulate walks the annotated bars once and turns entry/exit pairs into trades.
// Fills happen at the bar close.
func Simulate(bars []types.AnnotatedBar, instrument types.Instrument, opts Options) (Result, error) {
	if !instrument.TickSize.IsPositive() {
		return Result{}, errors.Newf(errors.ErrCodeInvalidParameter, "tick size must be positive, got %s", instrument.TickSize)
	}

	size := opts.Size
	if size == 0 {
		size = 1
	}

	if size < 0 {
		return Result{}, errors.Newf(errors.ErrCodeInvalidParameter, "trade size must be positive, got %d", size)
	}

	closed := make([]types.Trade, 0)

	var (
		current types.Trade
		open    bool
	)

	for i, bar := range bars {
		if bar.LongEntry && bar.LongExit {
			return Result{}, inconsistent(i, bar, "entry and exit on the same bar")
		}

		switch {
		case bar.LongEntry:
			if open {
				return Result{}, inconsistent(i, bar, fmt.Sprintf("entry while trade %d is open", current.ID))
			}

			current = types.Trade{
				ID:               bar.TradeID,
				Direction:        types.DirectionLong,
				Size:             size,
				EntryTime:        bar.TimeLocal,
				EntryPrice:       bar.Close,
				ExitTime:         bar.TimeLocal,
				ExitPrice:        bar.Close,
				ExitReason:       "",
				Ticks:            0,
				Gain:             decimal.Zero,
				Status:           types.TradeStatusOpen,
				SourceContractID: bar.SourceContractID,
			}
			open = true
		case bar.LongExit:
			if !open {
				return Result{}, inconsistent(i, bar, "exit without an open trade")
			}

			closed = append(closed, closeTrade(current, bar, instrument))
			open = false
		}
	}

	result := Result{Closed: closed, Open: optional.None[types.Trade]()}
	if open {
		if len(bars) > 0 {
			// mark to the last close so callers can show the running result
			last := bars[len(bars)-1]
			current.ExitTime = last.TimeLocal
			current.ExitPrice = last.Close
			current.Ticks, current.Gain = measure(current.EntryPrice, last.Close, size, instrument)
		}

		result.Open = optional.Some(current)
	}

	return result, nil
}

func closeTrade(trade types.Trade, bar types.AnnotatedBar, instrument types.Instrument) types.Trade {
	trade.ExitTime = bar.TimeLocal
	trade.ExitPrice = bar.Close
	trade.ExitReason = bar.ExitReason()
	trade.Status = types.TradeStatusClosed
	trade.Ticks, trade.Gain = measure(trade.EntryPrice, bar.Close, trade.Size, instrument)

	return trade
}

// measure returns the tick result truncated toward zero and the money gain for size contracts.
func measure(entry, exit float64, size int64, instrument types.Instrument) (int64, decimal.Decimal) {
	diff := decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(entry))
	ticks := diff.Div(instrument.TickSize).Truncate(0)
	gain := ticks.Mul(instrument.TickValue).Mul(decimal.NewFromInt(size))

	return ticks.IntPart(), gain
}

func inconsistent(index int, bar types.AnnotatedBar, reason string) *errors.Error {
	return errors.Newf(errors.ErrCodeInconsistentSignal, "bar %d at %s: %s", index, bar.TimeLocal.Format("2006-01-02 15:04:05"), reason)
}
