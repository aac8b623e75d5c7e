package barstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rxtech-lab/radx/internal/logger"
	"github.com/rxtech-lab/radx/internal/types"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type DuckDBCacheTestSuite struct {
	suite.Suite
	logger *logger.Logger
	path   string
	cache  *DuckDBCache
}

func TestDuckDBCacheSuite(t *testing.T) {
	suite.Run(t, new(DuckDBCacheTestSuite))
}

func (suite *DuckDBCacheTestSuite) SetupTest() {
	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.OutputPaths = []string{}
	loggerConfig.ErrorOutputPaths = []string{}
	zapLogger, err := loggerConfig.Build()
	suite.Require().NoError(err)
	suite.logger = &logger.Logger{Logger: zapLogger}

	suite.path = filepath.Join(suite.T().TempDir(), "bars.duckdb")
	suite.cache, err = NewDuckDBCache(suite.path, suite.logger)
	suite.Require().NoError(err)
}

func (suite *DuckDBCacheTestSuite) TearDownTest() {
	if suite.cache != nil {
		suite.cache.Close()
	}
}

func sampleBars(n int) []types.Bar {
	start := time.Date(2025, 3, 10, 13, 30, 0, 0, time.UTC)
	bars := make([]types.Bar, 0, n)

	for i := range n {
		bars = append(bars, types.Bar{
			Time:             start.Add(time.Duration(i) * 3 * time.Minute),
			Open:             5600.25 + float64(i)*0.25,
			High:             5601.75 + float64(i)*0.25,
			Low:              5599.5 + float64(i)*0.25,
			Close:            5600.123456789 + float64(i),
			Volume:           int64(1000 + i),
			SourceContractID: "CON.F.US.EP.H25",
		})
	}

	return bars
}

func (suite *DuckDBCacheTestSuite) TestMiss() {
	_, ok, err := suite.cache.Load(context.Background(), testKey("missing"))
	suite.NoError(err)
	suite.False(ok)
}

func (suite *DuckDBCacheTestSuite) TestRoundTripAcrossReopen() {
	ctx := context.Background()
	bars := sampleBars(1234)
	key := testKey("CON.F.US.EP.H25")

	suite.Require().NoError(suite.cache.Save(ctx, key, Record{Bars: bars}))
	suite.Require().NoError(suite.cache.Close())

	reopened, err := NewDuckDBCache(suite.path, suite.logger)
	suite.Require().NoError(err)
	suite.cache = reopened

	record, ok, err := reopened.Load(ctx, key)
	suite.Require().NoError(err)
	suite.Require().True(ok)
	suite.Equal(bars, record.Bars)
	suite.Empty(record.Assignments)
}

func (suite *DuckDBCacheTestSuite) TestEmptyRecordIsAHit() {
	ctx := context.Background()
	key := testKey("CON.F.US.EP.M30")

	suite.Require().NoError(suite.cache.Save(ctx, key, Record{Bars: []types.Bar{}}))

	record, ok, err := suite.cache.Load(ctx, key)
	suite.Require().NoError(err)
	suite.True(ok)
	suite.Empty(record.Bars)
}

func (suite *DuckDBCacheTestSuite) TestSaveReplacesRecord() {
	ctx := context.Background()
	key := testKey("CON.F.US.EP.H25")

	suite.Require().NoError(suite.cache.Save(ctx, key, Record{Bars: sampleBars(10)}))
	suite.Require().NoError(suite.cache.Save(ctx, key, Record{Bars: sampleBars(3)}))

	record, ok, err := suite.cache.Load(ctx, key)
	suite.Require().NoError(err)
	suite.True(ok)
	suite.Len(record.Bars, 3)
}

func (suite *DuckDBCacheTestSuite) TestAssignmentsRoundTrip() {
	ctx := context.Background()
	key := SymbolKey("ES", "CON.F.US.EP.H25", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC), types.Timeframe{UnitSize: 3, Unit: types.TimeUnitMinute})
	assignments := []types.RollAssignment{
		{
			Date:             "2025-03-10",
			ChosenContractID: "CON.F.US.EP.H25",
			Label:            "CON.F.US.EP.H25",
			VolumeByContract: map[string]int64{"CON.F.US.EP.H25": 900, "CON.F.US.EP.M25": 100},
		},
		{
			Date:             "2025-03-11",
			ChosenContractID: "CON.F.US.EP.M25",
			Label:            "CON.F.US.EP.M25, CON.F.US.EP.H25",
			VolumeByContract: map[string]int64{"CON.F.US.EP.H25": 500, "CON.F.US.EP.M25": 500},
		},
	}

	suite.Require().NoError(suite.cache.Save(ctx, key, Record{Bars: sampleBars(2), Assignments: assignments}))

	record, ok, err := suite.cache.Load(ctx, key)
	suite.Require().NoError(err)
	suite.Require().True(ok)
	suite.Equal(assignments, record.Assignments)
}
