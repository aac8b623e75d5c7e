// Package config loads the radx YAML configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/rxtech-lab/radx/internal/backtest"
	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvUserName      = "SECRET_USERNAME"
	EnvAPIKey        = "SECRET_API_KEY"
	EnvAPIURL        = "RADX_API_URL"
	EnvMarketHubURL  = "RADX_MARKET_HUB_URL"
	EnvCachePath     = "RADX_CACHE_PATH"
	EnvLocalTimezone = "RADX_LOCAL_TIMEZONE"
	EnvLogLevel      = "RADX_LOG_LEVEL"
)

const dateLayout = time.DateOnly

// Config is the full radx configuration.
type Config struct {
	App        AppConfig        `yaml:"app" json:"app"`
	API        APIConfig        `yaml:"api" json:"api"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Instrument InstrumentConfig `yaml:"instrument" json:"instrument"`
	Timeframe  types.Timeframe  `yaml:"timeframe" json:"timeframe"`
	Strategy   StrategyConfig   `yaml:"strategy" json:"strategy"`
	Backtest   BacktestConfig   `yaml:"backtest" json:"backtest"`
	Sweep      SweepConfig      `yaml:"sweep" json:"sweep"`
	Live       LiveConfig       `yaml:"live" json:"live"`
}

type AppConfig struct {
	Name          string `yaml:"name" json:"name" jsonschema:"title=Application name" validate:"required"`
	LogLevel      string `yaml:"log_level" json:"log_level" jsonschema:"title=Log level,enum=debug,enum=info,enum=warn,enum=error" validate:"oneof=debug info warn error"`
	LocalTimezone string `yaml:"local_timezone" json:"local_timezone" jsonschema:"title=Local timezone,description=IANA zone used for trading hours and day boundaries" validate:"required"`
}

type APIConfig struct {
	BaseURL      string        `yaml:"base_url" json:"base_url" jsonschema:"title=Gateway REST URL" validate:"required,url"`
	MarketHubURL string        `yaml:"market_hub_url" json:"market_hub_url" jsonschema:"title=Market hub WebSocket URL" validate:"required,url"`
	UserName     string        `yaml:"user_name" json:"user_name" jsonschema:"title=User name,description=Usually set through SECRET_USERNAME"`
	APIKey       string        `yaml:"api_key" json:"api_key" jsonschema:"title=API key,description=Usually set through SECRET_API_KEY"`
	TokenFile    string        `yaml:"token_file" json:"token_file" jsonschema:"title=Token file" validate:"required"`
	Live         bool          `yaml:"live" json:"live" jsonschema:"title=Live data,description=Ask the gateway for live instead of simulated data"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout" jsonschema:"title=Request timeout,type=string" validate:"gte=0"`
}

type CacheConfig struct {
	Path           string        `yaml:"path" json:"path" jsonschema:"title=DuckDB cache file,description=Empty disables the persistent cache"`
	RecentCapacity int           `yaml:"recent_capacity" json:"recent_capacity" jsonschema:"title=In-memory recent records" validate:"gte=1"`
	MaxRetries     uint64        `yaml:"max_retries" json:"max_retries" jsonschema:"title=Provider retries" validate:"gte=0"`
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff" jsonschema:"title=Initial retry backoff,type=string" validate:"gte=0"`
}

type InstrumentConfig struct {
	Symbol string `yaml:"symbol" json:"symbol" jsonschema:"title=Symbol" validate:"required"`
	// BaseContractID is looked up by symbol when empty.
	BaseContractID string  `yaml:"base_contract_id" json:"base_contract_id" jsonschema:"title=Base contract id,description=Newest contract of the roll window (e.g. CON.F.US.EP.Z25)"`
	TickSize       float64 `yaml:"tick_size" json:"tick_size" jsonschema:"title=Tick size" validate:"gt=0"`
	TickValue      float64 `yaml:"tick_value" json:"tick_value" jsonschema:"title=Tick value" validate:"gt=0"`
	Lookback       int     `yaml:"lookback" json:"lookback" jsonschema:"title=Contracts to look back" validate:"gt=0"`
}

type StrategyConfig struct {
	Name         string             `yaml:"name" json:"name" jsonschema:"title=Strategy" validate:"required"`
	Params       map[string]int     `yaml:"params" json:"params" jsonschema:"title=Parameters"`
	TradingHours types.TradingHours `yaml:"trading_hours" json:"trading_hours" jsonschema:"title=Trading hours"`
}

type BacktestConfig struct {
	// Start and End are local dates; End defaults to today and Start to End - Days.
	Start      string `yaml:"start" json:"start" jsonschema:"title=Start date,format=date" validate:"omitempty,datetime=2006-01-02"`
	End        string `yaml:"end" json:"end" jsonschema:"title=End date,format=date" validate:"omitempty,datetime=2006-01-02"`
	Days       int    `yaml:"days" json:"days" jsonschema:"title=Days when start is empty" validate:"gt=0"`
	Continuous bool   `yaml:"continuous" json:"continuous" jsonschema:"title=Stitch contract months"`
	Size       int64  `yaml:"size" json:"size" jsonschema:"title=Contracts per trade" validate:"gte=1"`
}

type SweepConfig struct {
	Ranges          map[string]backtest.Range `yaml:"ranges" json:"ranges" jsonschema:"title=Parameter ranges" validate:"required,min=1"`
	Workers         int                       `yaml:"workers" json:"workers" jsonschema:"title=Workers,description=0 uses every CPU" validate:"gte=0"`
	MaxCombinations uint64                    `yaml:"max_combinations" json:"max_combinations" jsonschema:"title=Combination ceiling" validate:"gte=1"`
	ReportDir       string                    `yaml:"report_dir" json:"report_dir" jsonschema:"title=Report directory" validate:"required"`
	ReportFormat    string                    `yaml:"report_format" json:"report_format" jsonschema:"title=Report format,enum=csv,enum=parquet,enum=yaml" validate:"oneof=csv parquet yaml"`
}

type LiveConfig struct {
	HistoryWindow        time.Duration `yaml:"history_window" json:"history_window" jsonschema:"title=History seed window,type=string" validate:"gte=0"`
	MaxBars              int           `yaml:"max_bars" json:"max_bars" jsonschema:"title=Bars kept in the strategy window" validate:"gte=1"`
	BucketCapacity       int           `yaml:"bucket_capacity" json:"bucket_capacity" jsonschema:"title=Aggregator buckets" validate:"gte=1"`
	FillEmpty            bool          `yaml:"fill_empty" json:"fill_empty" jsonschema:"title=Synthesize flat bars for empty intervals"`
	MaxReconnectAttempts uint64        `yaml:"max_reconnect_attempts" json:"max_reconnect_attempts" jsonschema:"title=Reconnect attempts" validate:"gte=1"`
}

// Default returns the configuration used when no file overrides a value.
func Default() Config {
	return Config{
		App: AppConfig{
			Name:          "Radx",
			LogLevel:      "info",
			LocalTimezone: "Europe/Berlin",
		},
		API: APIConfig{
			BaseURL:      "https://api.topstepx.com",
			MarketHubURL: "wss://rtc.topstepx.com/hubs/market",
			UserName:     "",
			APIKey:       "",
			TokenFile:    ".token.json",
			Live:         false,
			Timeout:      30 * time.Second,
		},
		Cache: CacheConfig{
			Path:           "_data/bars.duckdb",
			RecentCapacity: 8,
			MaxRetries:     3,
			InitialBackoff: 500 * time.Millisecond,
		},
		Instrument: InstrumentConfig{
			Symbol:         "ES",
			BaseContractID: "",
			TickSize:       0.25,
			TickValue:      12.5,
			Lookback:       6,
		},
		Timeframe: types.Timeframe{UnitSize: 3, Unit: types.TimeUnitMinute},
		Strategy: StrategyConfig{
			Name: "default",
			Params: map[string]int{
				types.ParamStop:   33,
				types.ParamFastMA: 20,
				types.ParamSlowMA: 55,
			},
			TradingHours: types.TradingHours{Start: 0, End: 22},
		},
		Backtest: BacktestConfig{
			Start:      "",
			End:        "",
			Days:       90,
			Continuous: true,
			Size:       1,
		},
		Sweep: SweepConfig{
			Ranges: map[string]backtest.Range{
				types.ParamStop:   {Min: 20, Max: 40},
				types.ParamFastMA: {Min: 5, Max: 20},
				types.ParamSlowMA: {Min: 30, Max: 60},
			},
			Workers:         0,
			MaxCombinations: backtest.DefaultMaxCombinations,
			ReportDir:       "reports",
			ReportFormat:    "csv",
		},
		Live: LiveConfig{
			HistoryWindow:        48 * time.Hour,
			MaxBars:              500,
			BucketCapacity:       20,
			FillEmpty:            false,
			MaxReconnectAttempts: 5,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and validates.
// An empty path loads the defaults only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}

		// maps in the file replace the defaults instead of merging into them
		defaults := cfg
		cfg.Strategy.Params = nil
		cfg.Sweep.Ranges = nil

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config file", err)
		}

		if cfg.Strategy.Params == nil {
			cfg.Strategy.Params = defaults.Strategy.Params
		}

		if cfg.Sweep.Ranges == nil {
			cfg.Sweep.Ranges = defaults.Sweep.Ranges
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvUserName); v != "" {
		cfg.API.UserName = v
	}

	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.API.APIKey = v
	}

	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.API.BaseURL = v
	}

	if v := os.Getenv(EnvMarketHubURL); v != "" {
		cfg.API.MarketHubURL = v
	}

	if v, ok := os.LookupEnv(EnvCachePath); ok {
		cfg.Cache.Path = v
	}

	if v := os.Getenv(EnvLocalTimezone); v != "" {
		cfg.App.LocalTimezone = v
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.App.LogLevel = v
	}
}

// Validate checks struct tags and the cross-field rules.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid configuration", err)
	}

	if _, err := time.LoadLocation(c.App.LocalTimezone); err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "unknown local timezone %q", c.App.LocalTimezone)
	}

	if c.Timeframe.UnitSize <= 0 || c.Timeframe.Unit < types.TimeUnitSecond || c.Timeframe.Unit > types.TimeUnitMonth {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "invalid timeframe %d/%d", c.Timeframe.UnitSize, c.Timeframe.Unit)
	}

	hours := c.Strategy.TradingHours
	if hours.Start >= hours.End {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "trading hours start %d must be before end %d", hours.Start, hours.End)
	}

	for name, value := range c.Strategy.Params {
		if value <= 0 {
			return errors.Newf(errors.ErrCodeInvalidConfiguration, "parameter %s must be positive, got %d", name, value)
		}
	}

	for name, r := range c.Sweep.Ranges {
		if r.Min <= 0 || r.Max < r.Min {
			return errors.Newf(errors.ErrCodeInvalidConfiguration, "sweep range %s [%d,%d] is invalid", name, r.Min, r.Max)
		}
	}

	if c.Backtest.Start != "" && c.Backtest.End != "" && c.Backtest.Start > c.Backtest.End {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "backtest start %s is after end %s", c.Backtest.Start, c.Backtest.End)
	}

	return nil
}

// Location returns the configured local timezone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.LocalTimezone)
	if err != nil {
		return time.UTC
	}

	return loc
}

// InstrumentSpec converts the instrument section for the engine.
func (c Config) InstrumentSpec() types.Instrument {
	return types.Instrument{
		Symbol:         c.Instrument.Symbol,
		BaseContractID: c.Instrument.BaseContractID,
		TickSize:       decimal.NewFromFloat(c.Instrument.TickSize),
		TickValue:      decimal.NewFromFloat(c.Instrument.TickValue),
		Lookback:       c.Instrument.Lookback,
	}
}

// Parameters returns the single-run parameter set.
func (c Config) Parameters() types.ParameterSet {
	return types.NewParameterSet(c.Strategy.Params, c.Strategy.TradingHours)
}

// BacktestRange resolves the backtest dates in the local timezone. End is exclusive
// (the day after the configured end date).
func (c Config) BacktestRange(now time.Time) (time.Time, time.Time, error) {
	loc := c.Location()
	today := now.In(loc)

	end := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	if c.Backtest.End != "" {
		parsed, err := time.ParseInLocation(dateLayout, c.Backtest.End, loc)
		if err != nil {
			return time.Time{}, time.Time{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid backtest end", err)
		}

		end = parsed.AddDate(0, 0, 1)
	}

	start := end.AddDate(0, 0, -c.Backtest.Days)
	if c.Backtest.Start != "" {
		parsed, err := time.ParseInLocation(dateLayout, c.Backtest.Start, loc)
		if err != nil {
			return time.Time{}, time.Time{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid backtest start", err)
		}

		start = parsed
	}

	return start, end, nil
}

// Schema renders the JSON schema of the configuration file.
func Schema() (string, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = true
	r.FieldNameTag = "yaml"

	schema := r.Reflect(Config{})

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// String renders the configuration as YAML with secrets masked.
func (c Config) String() string {
	masked := c
	if masked.API.APIKey != "" {
		masked.API.APIKey = "***" + strconv.Itoa(len(c.API.APIKey))
	}

	data, err := yaml.Marshal(masked)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}

	return string(data)
}
