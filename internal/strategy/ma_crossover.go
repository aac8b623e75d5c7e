package strategy

import (
	"math"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/radx/internal/indicator"
	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/pkg/errors"
)

const (
	DefaultStrategyName = "default"
	MACrossoverName     = "ma_crossover"
)

// MACrossover goes long when the fast SMA crosses above the slow SMA and exits on the
// inverse cross, on a trailing stop, or on the last allowed bar of the day.
type MACrossover struct {
	tickSize float64
}

// NewMACrossover creates the crossover strategy for instrument.
func NewMACrossover(instrument types.Instrument) (Strategy, error) {
	tick := instrument.TickSizeFloat()
	if tick <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "tick size must be positive, got %s", instrument.TickSize)
	}

	return &MACrossover{tickSize: tick}, nil
}

// Name implements Strategy.
func (s *MACrossover) Name() string {
	return MACrossoverName
}

type crossoverParams struct {
	fast  int
	slow  int
	stop  int
	hours types.TradingHours
}

func readParams(params types.ParameterSet) (crossoverParams, error) {
	out := crossoverParams{hours: params.TradingHours}

	for name, dst := range map[string]*int{
		types.ParamFastMA: &out.fast,
		types.ParamSlowMA: &out.slow,
		types.ParamStop:   &out.stop,
	} {
		v, ok := params.Int(name)
		if !ok {
			return crossoverParams{}, errors.Newf(errors.ErrCodeMissingParameter, "missing parameter %s", name)
		}

		if v <= 0 {
			return crossoverParams{}, errors.Newf(errors.ErrCodeInvalidParameter, "parameter %s must be positive, got %d", name, v)
		}

		*dst = v
	}

	return out, nil
}

// Run implements Strategy.
func (s *MACrossover) Run(bars []types.Bar, params types.ParameterSet) ([]types.AnnotatedBar, error) {
	return s.run(bars, params, 0)
}

// RunOpenEnded implements OpenEnded.
func (s *MACrossover) RunOpenEnded(bars []types.Bar, params types.ParameterSet, interval time.Duration) ([]types.AnnotatedBar, error) {
	if interval <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "bar interval must be positive, got %s", interval)
	}

	return s.run(bars, params, interval)
}

// run annotates bars. A positive interval marks the final session as possibly still in progress.
func (s *MACrossover) run(bars []types.Bar, params types.ParameterSet, interval time.Duration) ([]types.AnnotatedBar, error) {
	p, err := readParams(params)
	if err != nil {
		return nil, err
	}

	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}

	fast, err := indicator.SMA(closes, p.fast)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidParameter, "failed to compute fast average", err)
	}

	slow, err := indicator.SMA(closes, p.slow)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidParameter, "failed to compute slow average", err)
	}

	out := make([]types.AnnotatedBar, len(bars))
	for i, bar := range bars {
		out[i] = types.AnnotatedBar{
			Bar:            bar,
			FastIndicator:  fast[i],
			SlowIndicator:  slow[i],
			TradingAllowed: p.hours.Contains(bar.TimeLocal.Hour()),
			StopLevel:      optional.None[float64](),
		}
	}

	lastAllowed := lastAllowedByDay(out)
	stopDistance := float64(p.stop) * s.tickSize

	var (
		open      bool
		tradeID   int
		stopLevel float64
	)

	for i := range out {
		a := &out[i]

		prevFast, prevSlow := optional.None[float64](), optional.None[float64]()
		if i > 0 {
			prevFast, prevSlow = fast[i-1], slow[i-1]
		}

		var rawEntry, rawExit bool
		if a.TradingAllowed {
			rawEntry = indicator.CrossedAbove(prevFast, prevSlow, fast[i], slow[i])
			rawExit = indicator.CrossedBelow(prevFast, prevSlow, fast[i], slow[i])
		}

		last, ok := lastAllowed[a.LocalDate()]
		isLast := ok && last == i

		if isLast && interval > 0 && i == len(out)-1 {
			next := a.TimeLocal.Add(interval)
			isLast = next.Format(time.DateOnly) != a.LocalDate() || !p.hours.Contains(next.Hour())
		}

		if !open {
			// an entry on the last allowed bar would be flattened on the same bar
			if rawEntry && !isLast {
				open = true
				tradeID++
				stopLevel = a.High - stopDistance

				a.LongEntry = true
				a.StopLevel = optional.Some(stopLevel)
				a.PositionState = 1
			}

			a.TradeID = tradeID

			continue
		}

		stopLevel = math.Max(stopLevel, a.High-stopDistance)
		a.StopLevel = optional.Some(stopLevel)
		a.TradeID = tradeID

		switch {
		case a.Low < stopLevel:
			a.StopTriggered = true
		case rawExit:
		case isLast:
			a.SessionExit = true
		default:
			a.PositionState = 1

			continue
		}

		a.LongExit = true
		a.PositionState = 0
		open = false
	}

	if err := validate(out, interval > 0); err != nil {
		return nil, err
	}

	return out, nil
}

// lastAllowedByDay maps each local date to the index of its last trading_allowed bar.
func lastAllowedByDay(bars []types.AnnotatedBar) map[string]int {
	out := make(map[string]int)

	for i, bar := range bars {
		if bar.TradingAllowed {
			out[bar.LocalDate()] = i
		}
	}

	return out
}
