package backtest

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/rxtech-lab/radx/internal/logger"
	"github.com/rxtech-lab/radx/internal/simulator"
	"github.com/rxtech-lab/radx/internal/strategy"
	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/mocks"
	"github.com/rxtech-lab/radx/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

type SweeperTestSuite struct {
	suite.Suite
	logger     *logger.Logger
	instrument types.Instrument
	bars       []types.Bar
}

func TestSweeperSuite(t *testing.T) {
	suite.Run(t, new(SweeperTestSuite))
}

func (suite *SweeperTestSuite) SetupSuite() {
	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.OutputPaths = []string{}
	loggerConfig.ErrorOutputPaths = []string{}
	zapLogger, err := loggerConfig.Build()
	suite.Require().NoError(err)
	suite.logger = &logger.Logger{Logger: zapLogger}

	suite.instrument = types.Instrument{
		Symbol:    "ES",
		TickSize:  decimal.RequireFromString("0.25"),
		TickValue: decimal.RequireFromString("12.5"),
	}
	suite.bars = mocks.Generate2K("CON.F.US.EP.H25")
}

func (suite *SweeperTestSuite) newSweeper(s strategy.Strategy, workers int) *Sweeper {
	return NewSweeper(NewBacktester(s, suite.instrument, simulator.Options{}), SweepOptions{Workers: workers}, suite.logger)
}

func (suite *SweeperTestSuite) grid() Grid {
	grid, err := NewGrid(map[string]Range{
		types.ParamFastMA: {Min: 3, Max: 6},
		types.ParamSlowMA: {Min: 20, Max: 22},
		types.ParamStop:   {Min: 10, Max: 11},
	})
	suite.Require().NoError(err)

	return grid
}

func (suite *SweeperTestSuite) TestSweepMatchesSingleRuns() {
	s, err := strategy.NewMACrossover(suite.instrument)
	suite.Require().NoError(err)

	base := types.NewParameterSet(nil, types.TradingHours{Start: 0, End: 22})
	grid := suite.grid()

	var (
		mu        sync.Mutex
		started   int
		progress  []int
		collected int
	)

	onStart := OnSweepStartCallback(func(runID string, total int) error {
		suite.NotEmpty(runID)
		started = total

		return nil
	})
	onProgress := OnProgressCallback(func(completed int, total int) {
		mu.Lock()
		defer mu.Unlock()
		progress = append(progress, completed)
	})
	onResult := OnResultCallback(func(types.BacktestResult) {
		mu.Lock()
		defer mu.Unlock()
		collected++
	})

	report, err := suite.newSweeper(s, 4).Run(context.Background(), suite.bars, grid, base, Callbacks{
		OnStart:    &onStart,
		OnProgress: &onProgress,
		OnResult:   &onResult,
	})
	suite.Require().NoError(err)
	suite.NoError(report.Err)

	suite.Equal(24, started)
	suite.Equal(24, report.Total)
	suite.Equal(24, report.Completed)
	suite.Equal(24, collected)
	suite.Len(progress, 24)
	suite.Equal(24, progress[len(progress)-1])
	suite.Len(report.Results, 24)

	suite.IsNonDecreasing(func() []float64 {
		rates := make([]float64, 0, len(report.Results))
		for i := len(report.Results) - 1; i >= 0; i-- {
			rates = append(rates, report.Results[i].WinRate)
		}

		return rates
	}())

	single := NewBacktester(s, suite.instrument, simulator.Options{})
	byKey := make(map[string]types.BacktestResult)

	for _, r := range report.Results {
		byKey[r.ParamsKey] = r
	}

	for _, params := range grid.All(base) {
		run, err := single.RunSingle(suite.bars, params)
		suite.Require().NoError(err)
		suite.Equal(run.Summary, byKey[params.Key()])
	}
}

func (suite *SweeperTestSuite) TestSweepIsDeterministicAcrossWorkerCounts() {
	s, err := strategy.NewMACrossover(suite.instrument)
	suite.Require().NoError(err)

	base := types.NewParameterSet(nil, types.TradingHours{Start: 0, End: 22})

	one, err := suite.newSweeper(s, 1).Run(context.Background(), suite.bars, suite.grid(), base, Callbacks{})
	suite.Require().NoError(err)

	many, err := suite.newSweeper(s, 8).Run(context.Background(), suite.bars, suite.grid(), base, Callbacks{})
	suite.Require().NoError(err)

	suite.Equal(one.Results, many.Results)
	suite.NotEqual(one.RunID, many.RunID)
}

func (suite *SweeperTestSuite) TestPartialGridUsesBaseParameters() {
	s, err := strategy.NewMACrossover(suite.instrument)
	suite.Require().NoError(err)

	grid, err := NewGrid(map[string]Range{
		types.ParamStop:   {Min: 20, Max: 21},
		types.ParamFastMA: {Min: 5, Max: 6},
	})
	suite.Require().NoError(err)

	base := types.NewParameterSet(map[string]int{
		types.ParamFastMA: 20,
		types.ParamSlowMA: 55,
		types.ParamStop:   33,
	}, types.TradingHours{Start: 0, End: 24})

	report, err := suite.newSweeper(s, 2).Run(context.Background(), suite.bars, grid, base, Callbacks{})
	suite.Require().NoError(err)
	suite.Equal(4, report.Total)
	suite.Equal(4, report.Completed)
	suite.Require().Len(report.Results, 4)

	single := NewBacktester(s, suite.instrument, simulator.Options{})

	for _, result := range report.Results {
		suite.Equal(55, result.Params.Values[types.ParamSlowMA])
		suite.Contains(result.ParamsKey, "slow_ma=55")

		run, err := single.RunSingle(suite.bars, result.Params)
		suite.Require().NoError(err)
		suite.Equal(run.Summary, result)
	}
}

func (suite *SweeperTestSuite) TestMaxCombinationsIsCappedToInt() {
	sweeper := NewSweeper(nil, SweepOptions{Workers: 1, MaxCombinations: math.MaxUint64}, suite.logger)
	suite.Equal(uint64(math.MaxInt), sweeper.options.MaxCombinations)

	sweeper = NewSweeper(nil, SweepOptions{Workers: 1, MaxCombinations: 10}, suite.logger)
	suite.Equal(uint64(10), sweeper.options.MaxCombinations)
}

func (suite *SweeperTestSuite) TestGridTooLargeFailsBeforeRunning() {
	ctrl := gomock.NewController(suite.T())
	defer ctrl.Finish()

	mockStrategy := mocks.NewMockStrategy(ctrl)
	mockStrategy.EXPECT().Run(gomock.Any(), gomock.Any()).Times(0)

	sweeper := NewSweeper(NewBacktester(mockStrategy, suite.instrument, simulator.Options{}), SweepOptions{MaxCombinations: 10}, suite.logger)

	report, err := sweeper.Run(context.Background(), suite.bars, suite.grid(), types.NewParameterSet(nil, types.TradingHours{End: 24}), Callbacks{})
	suite.True(errors.IsGridTooLarge(err))
	suite.Equal(0, report.Completed)
	suite.Empty(report.Results)
}

func (suite *SweeperTestSuite) TestFailureKeepsPartialResults() {
	ctrl := gomock.NewController(suite.T())
	defer ctrl.Finish()

	mockStrategy := mocks.NewMockStrategy(ctrl)
	mockStrategy.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
		func(bars []types.Bar, params types.ParameterSet) ([]types.AnnotatedBar, error) {
			if params.Values[types.ParamStop] == 3 {
				return nil, errors.New(errors.ErrCodeInconsistentSignal, "exit while flat")
			}

			return []types.AnnotatedBar{}, nil
		},
	).AnyTimes()

	grid, err := NewGrid(map[string]Range{types.ParamStop: {Min: 1, Max: 5}})
	suite.Require().NoError(err)

	report, err := suite.newSweeper(mockStrategy, 1).Run(context.Background(), suite.bars, grid, types.NewParameterSet(nil, types.TradingHours{End: 24}), Callbacks{})
	suite.Require().Error(err)
	suite.True(errors.IsInconsistentSignal(err))
	suite.Equal(err, report.Err)
	suite.Equal(2, report.Completed)
	suite.Len(report.Results, 2)
	suite.Equal(5, report.Total)
}

func (suite *SweeperTestSuite) TestCancellationBetweenCombinations() {
	ctrl := gomock.NewController(suite.T())
	defer ctrl.Finish()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mockStrategy := mocks.NewMockStrategy(ctrl)
	calls := 0
	mockStrategy.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
		func([]types.Bar, types.ParameterSet) ([]types.AnnotatedBar, error) {
			calls++
			if calls == 3 {
				cancel()
			}

			return []types.AnnotatedBar{}, nil
		},
	).AnyTimes()

	grid, err := NewGrid(map[string]Range{types.ParamStop: {Min: 1, Max: 50}})
	suite.Require().NoError(err)

	report, err := suite.newSweeper(mockStrategy, 1).Run(ctx, suite.bars, grid, types.NewParameterSet(nil, types.TradingHours{End: 24}), Callbacks{})
	suite.Equal(errors.ErrCodeSweepCancelled, errors.GetCode(err))
	suite.Equal(3, report.Completed)
	suite.Len(report.Results, 3)
}

func (suite *SweeperTestSuite) TestStartCallbackAborts() {
	s, err := strategy.NewMACrossover(suite.instrument)
	suite.Require().NoError(err)

	onStart := OnSweepStartCallback(func(string, int) error {
		return errors.New(errors.ErrCodeInvalidConfiguration, "stop")
	})

	report, err := suite.newSweeper(s, 2).Run(context.Background(), suite.bars, suite.grid(), types.NewParameterSet(nil, types.TradingHours{End: 24}), Callbacks{OnStart: &onStart})
	suite.Equal(errors.ErrCodeInvalidConfiguration, errors.GetCode(err))
	suite.Equal(0, report.Completed)
}

func (suite *SweeperTestSuite) TestRunSingleReturnsTrades() {
	s, err := strategy.NewMACrossover(suite.instrument)
	suite.Require().NoError(err)

	params := types.NewParameterSet(map[string]int{
		types.ParamFastMA: 5,
		types.ParamSlowMA: 20,
		types.ParamStop:   12,
	}, types.TradingHours{Start: 0, End: 22})

	run, err := NewBacktester(s, suite.instrument, simulator.Options{}).RunSingle(suite.bars, params)
	suite.Require().NoError(err)
	suite.Len(run.Annotated, len(suite.bars))
	suite.Equal(len(run.Trades), run.Summary.TradeCount)
	suite.Equal(params.Key(), run.Summary.ParamsKey)

	var ticks int64
	for _, trade := range run.Trades {
		ticks += trade.Ticks
	}

	suite.Equal(ticks, run.Summary.TotalTicks)
}
