package indicator

import (
	"testing"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"
)

type MATestSuite struct {
	suite.Suite
}

func TestMASuite(t *testing.T) {
	suite.Run(t, new(MATestSuite))
}

func (suite *MATestSuite) TestSMA() {
	values, err := SMA([]float64{1, 2, 3, 4, 5}, 3)
	suite.Require().NoError(err)
	suite.Require().Len(values, 5)

	suite.True(values[0].IsNone())
	suite.True(values[1].IsNone())
	suite.InDelta(2.0, values[2].Unwrap(), 1e-12)
	suite.InDelta(3.0, values[3].Unwrap(), 1e-12)
	suite.InDelta(4.0, values[4].Unwrap(), 1e-12)
}

func (suite *MATestSuite) TestSMAPeriodOne() {
	values, err := SMA([]float64{104, 107, 96}, 1)
	suite.Require().NoError(err)

	suite.Equal(104.0, values[0].Unwrap())
	suite.Equal(96.0, values[2].Unwrap())
}

func (suite *MATestSuite) TestSMAShortInput() {
	values, err := SMA([]float64{1, 2}, 5)
	suite.Require().NoError(err)

	for _, v := range values {
		suite.True(v.IsNone())
	}
}

func (suite *MATestSuite) TestSMAInvalidPeriod() {
	_, err := SMA([]float64{1}, 0)
	suite.Error(err)

	_, err = NewMovingAverage(-1)
	suite.Error(err)
}

func (suite *MATestSuite) TestMovingAverageMatchesSMA() {
	input := []float64{5600.25, 5601, 5599.75, 5602.5, 5603, 5598.25, 5604, 5605.5}

	expected, err := SMA(input, 3)
	suite.Require().NoError(err)

	ma, err := NewMovingAverage(3)
	suite.Require().NoError(err)
	suite.Equal(3, ma.Period())

	for i, v := range input {
		got := ma.Add(v)
		suite.Equal(expected[i].IsSome(), got.IsSome(), "index %d", i)

		if got.IsSome() {
			suite.InDelta(expected[i].Unwrap(), got.Unwrap(), 1e-9)
		}
	}
}

func (suite *MATestSuite) TestCrossover() {
	some := optional.Some[float64]
	none := optional.None[float64]()

	testCases := []struct {
		name                     string
		prevFast, prevSlow       optional.Option[float64]
		fast, slow               optional.Option[float64]
		expectAbove, expectBelow bool
	}{
		{name: "cross above", prevFast: some(1), prevSlow: some(2), fast: some(3), slow: some(2), expectAbove: true},
		{name: "touch then above", prevFast: some(2), prevSlow: some(2), fast: some(3), slow: some(2), expectAbove: true},
		{name: "stays above", prevFast: some(3), prevSlow: some(2), fast: some(4), slow: some(2)},
		{name: "cross below", prevFast: some(3), prevSlow: some(2), fast: some(1), slow: some(2), expectBelow: true},
		{name: "first defined bar above", prevFast: some(104), prevSlow: none, fast: some(107), slow: some(105.5), expectAbove: true},
		{name: "current undefined", prevFast: some(1), prevSlow: some(2), fast: some(3), slow: none},
		{name: "equal is no signal", prevFast: some(1), prevSlow: some(2), fast: some(2), slow: some(2)},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			suite.Equal(tc.expectAbove, CrossedAbove(tc.prevFast, tc.prevSlow, tc.fast, tc.slow))
			suite.Equal(tc.expectBelow, CrossedBelow(tc.prevFast, tc.prevSlow, tc.fast, tc.slow))
		})
	}
}
