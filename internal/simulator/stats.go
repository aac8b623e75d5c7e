package simulator

import (
	"github.com/rxtech-lab/radx/internal/types"
	"github.com/shopspring/decimal"
)

// Summarize aggregates the closed trades of one run. Break-even trades count
// toward TradeCount only. An open trade only sets OpenTradeEnd.
func Summarize(params types.ParameterSet, result Result) types.BacktestResult {
	summary := types.BacktestResult{
		Params:       params.Clone(),
		ParamsKey:    params.Key(),
		TotalTicks:   0,
		TradeCount:   len(result.Closed),
		WinCount:     0,
		LossCount:    0,
		WinRate:      0,
		BiggestWin:   0,
		AverageWin:   0,
		BiggestLoss:  0,
		AverageLoss:  0,
		TotalGain:    "0",
		OpenTradeEnd: result.Open.IsSome(),
	}

	var winTicks, lossTicks int64

	gain := decimal.Zero

	for _, trade := range result.Closed {
		summary.TotalTicks += trade.Ticks
		gain = gain.Add(trade.Gain)

		switch {
		case trade.IsWin():
			summary.WinCount++
			winTicks += trade.Ticks
			summary.BiggestWin = max(summary.BiggestWin, trade.Ticks)
		case trade.IsLoss():
			summary.LossCount++
			lossTicks += trade.Ticks
			summary.BiggestLoss = min(summary.BiggestLoss, trade.Ticks)
		}
	}

	if summary.TradeCount > 0 {
		summary.WinRate = float64(summary.WinCount) / float64(summary.TradeCount)
	}

	if summary.WinCount > 0 {
		summary.AverageWin = float64(winTicks) / float64(summary.WinCount)
	}

	if summary.LossCount > 0 {
		summary.AverageLoss = float64(lossTicks) / float64(summary.LossCount)
	}

	summary.TotalGain = gain.StringFixed(2)

	return summary
}
