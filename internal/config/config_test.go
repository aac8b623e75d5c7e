package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rxtech-lab/radx/internal/backtest"
	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
	dir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()

	for _, env := range []string{EnvUserName, EnvAPIKey, EnvAPIURL, EnvMarketHubURL, EnvCachePath, EnvLocalTimezone, EnvLogLevel} {
		suite.T().Setenv(env, "")
		os.Unsetenv(env)
	}
}

func (suite *ConfigTestSuite) write(content string) string {
	path := filepath.Join(suite.dir, "radx.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte(content), 0644))

	return path
}

func (suite *ConfigTestSuite) TestDefaults() {
	cfg, err := Load("")
	suite.Require().NoError(err)

	suite.Equal("Radx", cfg.App.Name)
	suite.Equal("https://api.topstepx.com", cfg.API.BaseURL)
	suite.Equal("wss://rtc.topstepx.com/hubs/market", cfg.API.MarketHubURL)
	suite.Equal(map[string]int{"stop": 33, "fast_ma": 20, "slow_ma": 55}, cfg.Strategy.Params)
	suite.Equal(types.TradingHours{Start: 0, End: 22}, cfg.Strategy.TradingHours)
	suite.Equal(backtest.Range{Min: 30, Max: 60}, cfg.Sweep.Ranges[types.ParamSlowMA])
	suite.Equal(types.Timeframe{UnitSize: 3, Unit: types.TimeUnitMinute}, cfg.Timeframe)
	suite.Equal("Europe/Berlin", cfg.Location().String())

	instrument := cfg.InstrumentSpec()
	suite.Equal("0.25", instrument.TickSize.String())
	suite.Equal("12.5", instrument.TickValue.String())
	suite.Equal(6, instrument.Lookback)
}

func (suite *ConfigTestSuite) TestFileOverridesDefaults() {
	path := suite.write(`
app:
  log_level: debug
instrument:
  symbol: NQ
  base_contract_id: CON.F.US.ENQ.Z25
  tick_size: 0.25
  tick_value: 5
  lookback: 4
timeframe:
  unit_size: 5
  unit: minute
strategy:
  name: ma_crossover
  params:
    stop: 12
    fast_ma: 3
    slow_ma: 9
  trading_hours:
    start: 7
    end: 22
sweep:
  ranges:
    stop: {min: 10, max: 12}
  report_format: parquet
api:
  timeout: 5s
`)

	cfg, err := Load(path)
	suite.Require().NoError(err)

	suite.Equal("debug", cfg.App.LogLevel)
	suite.Equal("Radx", cfg.App.Name)
	suite.Equal("CON.F.US.ENQ.Z25", cfg.Instrument.BaseContractID)
	suite.Equal(types.Timeframe{UnitSize: 5, Unit: types.TimeUnitMinute}, cfg.Timeframe)
	suite.Equal(5*time.Second, cfg.API.Timeout)
	suite.Equal("ma_crossover", cfg.Strategy.Name)
	suite.Equal(map[string]backtest.Range{"stop": {Min: 10, Max: 12}}, cfg.Sweep.Ranges)
	suite.Equal("parquet", cfg.Sweep.ReportFormat)
	suite.Equal("fast_ma=3,slow_ma=9,stop=12,hours=7-22", cfg.Parameters().Key())
}

func (suite *ConfigTestSuite) TestEnvironmentOverrides() {
	suite.T().Setenv(EnvUserName, "trader")
	suite.T().Setenv(EnvAPIKey, "secret-key")
	suite.T().Setenv(EnvAPIURL, "http://127.0.0.1:9999")
	suite.T().Setenv(EnvCachePath, "")
	suite.T().Setenv(EnvLocalTimezone, "America/Chicago")

	cfg, err := Load(suite.write("app:\n  local_timezone: Asia/Tokyo\n"))
	suite.Require().NoError(err)

	suite.Equal("trader", cfg.API.UserName)
	suite.Equal("secret-key", cfg.API.APIKey)
	suite.Equal("http://127.0.0.1:9999", cfg.API.BaseURL)
	suite.Equal("", cfg.Cache.Path)
	suite.Equal("America/Chicago", cfg.App.LocalTimezone)

	suite.NotContains(cfg.String(), "secret-key")
}

func (suite *ConfigTestSuite) TestValidation() {
	tests := []struct {
		name    string
		content string
	}{
		{name: "inverted trading hours", content: "strategy:\n  trading_hours: {start: 22, end: 7}\n"},
		{name: "hours out of range", content: "strategy:\n  trading_hours: {start: 0, end: 25}\n"},
		{name: "unknown timezone", content: "app:\n  local_timezone: Mars/Olympus\n"},
		{name: "bad log level", content: "app:\n  log_level: loud\n"},
		{name: "inverted range", content: "sweep:\n  ranges:\n    stop: {min: 5, max: 4}\n"},
		{name: "zero tick size", content: "instrument:\n  tick_size: 0\n"},
		{name: "bad report format", content: "sweep:\n  report_format: xlsx\n"},
		{name: "bad date", content: "backtest:\n  start: 03/01/2025\n"},
		{name: "negative parameter", content: "strategy:\n  params: {stop: -1}\n"},
		{name: "bad url", content: "api:\n  base_url: not-a-url\n"},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			_, err := Load(suite.write(tt.content))
			suite.Equal(errors.ErrCodeInvalidConfiguration, errors.GetCode(err), "%v", err)
		})
	}
}

func (suite *ConfigTestSuite) TestMissingFile() {
	_, err := Load(filepath.Join(suite.dir, "missing.yaml"))
	suite.Error(err)
}

func (suite *ConfigTestSuite) TestBacktestRange() {
	cfg := Default()
	cfg.App.LocalTimezone = "UTC"
	cfg.Backtest.Days = 10

	now := time.Date(2025, 3, 20, 15, 0, 0, 0, time.UTC)

	start, end, err := cfg.BacktestRange(now)
	suite.Require().NoError(err)
	suite.Equal(time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC), end)
	suite.Equal(time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), start)

	cfg.Backtest.Start = "2025-01-02"
	cfg.Backtest.End = "2025-01-31"

	start, end, err = cfg.BacktestRange(now)
	suite.Require().NoError(err)
	suite.Equal(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), start)
	suite.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), end)
}

func (suite *ConfigTestSuite) TestSchema() {
	schema, err := Schema()
	suite.Require().NoError(err)

	suite.True(strings.HasPrefix(schema, "{"))
	suite.Contains(schema, `"trading_hours"`)
	suite.Contains(schema, `"report_format"`)
	suite.Contains(schema, `"parquet"`)
}
