package live

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/radx/internal/contract"
	"github.com/rxtech-lab/radx/internal/logger"
	"github.com/rxtech-lab/radx/internal/strategy"
	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/pkg/errors"
	"github.com/rxtech-lab/radx/pkg/marketdata/stream"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxBars bounds the window the strategy is rerun over.
const DefaultMaxBars = 500

// SignalHandler receives the newest annotated bar after each completed interval.
type SignalHandler func(bar types.AnnotatedBar)

// TradeStream is a reconnecting trade feed.
type TradeStream interface {
	Subscribe(contractID string) error
	Run(ctx context.Context) error
}

// EngineConfig configures a live Engine.
type EngineConfig struct {
	ContractID string          `validate:"required"`
	Timeframe  types.Timeframe `validate:"-"`
	Params     types.ParameterSet
	// HistoryWindow is how far back the engine seeds bars from the store.
	HistoryWindow time.Duration `validate:"gte=0"`
	MaxBars       int           `validate:"gte=0"`
	// FillEmpty synthesizes a flat bar at the last price for intervals without prints.
	FillEmpty      bool
	BucketCapacity int `validate:"gte=0"`
	Location       *time.Location
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine turns a trade stream into completed bars and reruns the strategy on each one.
type Engine struct {
	config     EngineConfig
	strategy   strategy.OpenEnded
	history    contract.BarFetcher
	aggregator *Aggregator
	log        *logger.Logger
	now        func() time.Time

	// bars is owned by the ticker goroutine once Run starts
	bars []types.Bar
}

// NewEngine creates a live Engine.
func NewEngine(config EngineConfig, s strategy.OpenEnded, history contract.BarFetcher, log *logger.Logger, opts ...EngineOption) (*Engine, error) {
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid live engine configuration", err)
	}

	width := config.Timeframe.Duration()
	if width <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "timeframe %s has no fixed width", config.Timeframe)
	}

	if config.MaxBars == 0 {
		config.MaxBars = DefaultMaxBars
	}

	if config.Location == nil {
		config.Location = time.UTC
	}

	aggregator, err := NewAggregator(config.ContractID, width, config.BucketCapacity, config.Location)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:     config,
		strategy:   s,
		history:    history,
		aggregator: aggregator,
		log:        log,
		now:        time.Now,
		bars:       make([]types.Bar, 0, config.MaxBars),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Aggregator returns the engine's bucket aggregator.
func (e *Engine) Aggregator() *Aggregator {
	return e.aggregator
}

// HandleTrades feeds prints of the engine's contract into the aggregator.
// It has the stream.TradeHandler signature.
func (e *Engine) HandleTrades(contractID string, trades []stream.Trade) {
	if contractID != e.config.ContractID {
		return
	}

	for _, trade := range trades {
		e.aggregator.OnTrade(TradeEvent{Price: trade.Price, Timestamp: trade.Timestamp})
	}
}

// Bars returns a copy of the current bar window.
func (e *Engine) Bars() []types.Bar {
	return types.CloneBars(e.bars)
}

// Seed loads the history window ending at the current interval start.
func (e *Engine) Seed(ctx context.Context) error {
	if e.history == nil || e.config.HistoryWindow == 0 {
		return nil
	}

	end := e.aggregator.BucketStart(e.now())
	start := end.Add(-e.config.HistoryWindow)

	bars, err := e.history.FetchSingle(ctx, e.config.ContractID, e.config.Timeframe, start, end, false)
	if err != nil {
		return err
	}

	// the bar starting at end is still forming
	for len(bars) > 0 && !bars[len(bars)-1].Time.Before(end) {
		bars = bars[:len(bars)-1]
	}

	e.bars = e.trim(types.CloneBars(bars))

	e.log.Info("Seeded live bars",
		zap.String("contract_id", e.config.ContractID),
		zap.Int("bars", len(e.bars)),
	)

	return nil
}

// Step closes the interval before now. ok is false when there was nothing to append.
func (e *Engine) Step(now time.Time) (types.AnnotatedBar, bool, error) {
	completed := e.aggregator.BucketStart(now).Add(-e.aggregator.Width())
	if len(e.bars) > 0 && !e.bars[len(e.bars)-1].Time.Before(completed) {
		return types.AnnotatedBar{}, false, nil
	}

	bar, ok := e.aggregator.PopCompletedBar(now)
	if !ok {
		price, hasPrice := e.aggregator.LastPrice()
		if !e.config.FillEmpty || !hasPrice {
			return types.AnnotatedBar{}, false, nil
		}

		bar = types.Bar{
			Time:             completed,
			Open:             price,
			High:             price,
			Low:              price,
			Close:            price,
			Volume:           0,
			SourceContractID: e.config.ContractID,
		}.WithLocation(e.config.Location)
	}

	e.bars = e.trim(append(e.bars, bar))

	annotated, err := e.strategy.RunOpenEnded(e.bars, e.config.Params, e.aggregator.Width())
	if err != nil {
		return types.AnnotatedBar{}, false, err
	}

	latest := annotated[len(annotated)-1]

	switch {
	case latest.LongEntry:
		e.log.Info("Long entry signal",
			zap.Time("bar", latest.TimeLocal),
			zap.Float64("close", latest.Close),
			zap.Float64("stop", latest.StopLevel.TakeOr(0)),
		)
	case latest.LongExit:
		e.log.Info("Long exit signal",
			zap.Time("bar", latest.TimeLocal),
			zap.Float64("close", latest.Close),
			zap.String("reason", string(latest.ExitReason())),
		)
	default:
		e.log.Debug("Bar completed",
			zap.Time("bar", latest.TimeLocal),
			zap.Float64("close", latest.Close),
			zap.Int("position", latest.PositionState),
		)
	}

	return latest, true, nil
}

func (e *Engine) trim(bars []types.Bar) []types.Bar {
	if len(bars) <= e.config.MaxBars {
		return bars
	}

	return bars[len(bars)-e.config.MaxBars:]
}

// Run seeds history, subscribes and serves the stream and the interval ticker
// until ctx is done or either fails.
func (e *Engine) Run(ctx context.Context, feed TradeStream, handler SignalHandler) error {
	if err := e.Seed(ctx); err != nil {
		return err
	}

	if err := feed.Subscribe(e.config.ContractID); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return feed.Run(gctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(e.aggregator.Width())
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				latest, ok, err := e.Step(e.now())
				if err != nil {
					return err
				}

				if ok && handler != nil {
					handler(latest)
				}
			}
		}
	})

	return g.Wait()
}
