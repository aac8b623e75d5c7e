package strategy

import (
	"math"

	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/pkg/errors"
)

// Validate checks the invariants of an annotated series: entries and exits alternate,
// every entry is closed on its own local day, position and trade ids are consistent,
// and the stop never loosens within a trade.
func Validate(bars []types.AnnotatedBar) error {
	return validate(bars, false)
}

// validate optionally accepts a position still open on the final bar's day.
func validate(bars []types.AnnotatedBar, allowOpenTail bool) error {
	var (
		open      bool
		openDay   string
		tradeID   int
		lastStop  float64
		entryTime string
	)

	for i, bar := range bars {
		if bar.LongEntry && bar.LongExit {
			return inconsistent(i, bar, "entry and exit on the same bar")
		}

		if bar.LongEntry {
			if open {
				return inconsistent(i, bar, "entry while a position is open since "+entryTime)
			}

			open = true
			openDay = bar.LocalDate()
			tradeID++
			entryTime = bar.TimeLocal.String()
			lastStop = math.Inf(-1)
		}

		if open && bar.LocalDate() != openDay {
			return inconsistent(i, bar, "position carried across day boundary")
		}

		if open {
			if bar.StopLevel.IsNone() {
				return inconsistent(i, bar, "missing stop level while long")
			}

			stop := bar.StopLevel.Unwrap()
			if stop < lastStop {
				return inconsistent(i, bar, "stop level decreased")
			}

			lastStop = stop
		}

		if bar.LongExit {
			if !open {
				return inconsistent(i, bar, "exit without a preceding entry")
			}

			open = false
		}

		expected := 0
		if open {
			expected = 1
		}

		if bar.PositionState != expected {
			return inconsistent(i, bar, "position state mismatch")
		}

		if bar.TradeID != tradeID {
			return inconsistent(i, bar, "trade id mismatch")
		}
	}

	if open && !allowOpenTail {
		return errors.Newf(errors.ErrCodeInconsistentSignal, "position opened at %s never closed", entryTime)
	}

	return nil
}

func inconsistent(i int, bar types.AnnotatedBar, reason string) error {
	return errors.Newf(errors.ErrCodeInconsistentSignal, "bar %d at %s: %s", i, bar.Time.Format("2006-01-02T15:04:05Z07:00"), reason)
}
