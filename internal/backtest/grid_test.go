package backtest

import (
	"math"
	"testing"

	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type GridTestSuite struct {
	suite.Suite
}

func TestGridSuite(t *testing.T) {
	suite.Run(t, new(GridTestSuite))
}

func (suite *GridTestSuite) TestEnumeratesCartesianProduct() {
	grid, err := NewGrid(map[string]Range{
		types.ParamStop:   {Min: 20, Max: 21},
		types.ParamFastMA: {Min: 5, Max: 6},
	})
	suite.Require().NoError(err)

	size, ok := grid.Size()
	suite.True(ok)
	suite.Equal(uint64(4), size)

	base := types.NewParameterSet(nil, types.TradingHours{Start: 0, End: 22})
	keys := make([]string, 0)
	indexes := make([]int, 0)

	for index, params := range grid.All(base) {
		keys = append(keys, params.Key())
		indexes = append(indexes, index)
	}

	suite.Equal([]string{
		"fast_ma=5,stop=20,hours=0-22",
		"fast_ma=5,stop=21,hours=0-22",
		"fast_ma=6,stop=20,hours=0-22",
		"fast_ma=6,stop=21,hours=0-22",
	}, keys)
	suite.Equal([]int{0, 1, 2, 3}, indexes)
}

func (suite *GridTestSuite) TestCombinationsLayerOverBase() {
	grid, err := NewGrid(map[string]Range{
		types.ParamStop:   {Min: 20, Max: 21},
		types.ParamFastMA: {Min: 5, Max: 6},
	})
	suite.Require().NoError(err)

	base := types.NewParameterSet(map[string]int{
		types.ParamFastMA: 33,
		types.ParamSlowMA: 55,
		types.ParamStop:   99,
	}, types.TradingHours{Start: 0, End: 22})

	keys := make([]string, 0)
	for _, params := range grid.All(base) {
		keys = append(keys, params.Key())
	}

	suite.Equal([]string{
		"fast_ma=5,slow_ma=55,stop=20,hours=0-22",
		"fast_ma=5,slow_ma=55,stop=21,hours=0-22",
		"fast_ma=6,slow_ma=55,stop=20,hours=0-22",
		"fast_ma=6,slow_ma=55,stop=21,hours=0-22",
	}, keys)
	// base itself is untouched
	suite.Equal(33, base.Values[types.ParamFastMA])
	suite.Equal(99, base.Values[types.ParamStop])
}

func (suite *GridTestSuite) TestYieldedSetsAreIndependent() {
	grid, err := NewGrid(map[string]Range{types.ParamStop: {Min: 1, Max: 3}})
	suite.Require().NoError(err)

	collected := make([]types.ParameterSet, 0)
	for _, params := range grid.All(types.NewParameterSet(nil, types.TradingHours{End: 24})) {
		collected = append(collected, params)
	}

	suite.Require().Len(collected, 3)
	suite.Equal(1, collected[0].Values[types.ParamStop])
	suite.Equal(3, collected[2].Values[types.ParamStop])
}

func (suite *GridTestSuite) TestEarlyBreak() {
	grid, err := NewGrid(map[string]Range{types.ParamStop: {Min: 1, Max: 100}})
	suite.Require().NoError(err)

	count := 0
	for range grid.All(types.NewParameterSet(nil, types.TradingHours{End: 24})) {
		count++
		if count == 5 {
			break
		}
	}

	suite.Equal(5, count)
}

func (suite *GridTestSuite) TestSinglePointRange() {
	grid, err := NewGrid(map[string]Range{types.ParamStop: {Min: 7, Max: 7}})
	suite.Require().NoError(err)

	size, _ := grid.Size()
	suite.Equal(uint64(1), size)
}

func (suite *GridTestSuite) TestInvalidRanges() {
	_, err := NewGrid(map[string]Range{types.ParamStop: {Min: 5, Max: 4}})
	suite.Equal(errors.ErrCodeInvalidParameter, errors.GetCode(err))

	_, err = NewGrid(nil)
	suite.Equal(errors.ErrCodeInvalidParameter, errors.GetCode(err))
}

func (suite *GridTestSuite) TestValidateCeiling() {
	grid, err := NewGrid(map[string]Range{
		"a": {Min: 1, Max: 100},
		"b": {Min: 1, Max: 100},
	})
	suite.Require().NoError(err)

	suite.NoError(grid.Validate(10_000))
	suite.True(errors.IsGridTooLarge(grid.Validate(9_999)))
}

func (suite *GridTestSuite) TestSizeOverflow() {
	ranges := make(map[string]Range)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		ranges[name] = Range{Min: math.MinInt32, Max: math.MaxInt32}
	}

	grid, err := NewGrid(ranges)
	suite.Require().NoError(err)

	_, ok := grid.Size()
	suite.False(ok)
	suite.True(errors.IsGridTooLarge(grid.Validate(math.MaxUint64)))
}
