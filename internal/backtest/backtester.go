package backtest

import (
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/radx/internal/simulator"
	"github.com/rxtech-lab/radx/internal/strategy"
	"github.com/rxtech-lab/radx/internal/types"
)

// RunResult is the full outcome of one parameter combination.
type RunResult struct {
	Summary   types.BacktestResult
	Trades    []types.Trade
	OpenTrade optional.Option[types.Trade]
	Annotated []types.AnnotatedBar
}

// Backtester runs the signal engine and the simulator for one instrument.
type Backtester struct {
	strategy   strategy.Strategy
	instrument types.Instrument
	options    simulator.Options
}

// NewBacktester creates a Backtester.
func NewBacktester(s strategy.Strategy, instrument types.Instrument, options simulator.Options) *Backtester {
	return &Backtester{
		strategy:   s,
		instrument: instrument,
		options:    options,
	}
}

// RunSingle evaluates one parameter set over the bars.
func (b *Backtester) RunSingle(bars []types.Bar, params types.ParameterSet) (RunResult, error) {
	annotated, err := b.strategy.Run(bars, params)
	if err != nil {
		return RunResult{}, err
	}

	result, err := simulator.Simulate(annotated, b.instrument, b.options)
	if err != nil {
		return RunResult{}, err
	}

	return RunResult{
		Summary:   simulator.Summarize(params, result),
		Trades:    result.Closed,
		OpenTrade: result.Open,
		Annotated: annotated,
	}, nil
}
