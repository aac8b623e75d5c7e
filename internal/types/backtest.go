package types

import (
	"cmp"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// BacktestResult holds the aggregate statistics of one parameter combination.
// Tick-denominated fields are in ticks of the instrument.
type BacktestResult struct {
	Params       ParameterSet `yaml:"-"`
	ParamsKey    string       `yaml:"params"`
	TotalTicks   int64        `yaml:"total_ticks"`
	TradeCount   int          `yaml:"trade_count"`
	WinCount     int          `yaml:"win_count"`
	LossCount    int          `yaml:"loss_count"`
	WinRate      float64      `yaml:"win_rate"`
	BiggestWin   int64        `yaml:"biggest_win"`
	AverageWin   float64      `yaml:"average_win"`
	BiggestLoss  int64        `yaml:"biggest_loss"`
	AverageLoss  float64      `yaml:"average_loss"`
	TotalGain    string       `yaml:"total_gain"`
	OpenTradeEnd bool         `yaml:"open_trade_at_end"`
}

// CompareBacktestResults orders by win rate descending, then total ticks descending,
// then params key ascending so ties are reproducible.
func CompareBacktestResults(a, b BacktestResult) int {
	if c := cmp.Compare(b.WinRate, a.WinRate); c != 0 {
		return c
	}

	if c := cmp.Compare(b.TotalTicks, a.TotalTicks); c != 0 {
		return c
	}

	return cmp.Compare(a.ParamsKey, b.ParamsKey)
}

// SortBacktestResults sorts results in report order.
func SortBacktestResults(results []BacktestResult) {
	slices.SortStableFunc(results, CompareBacktestResults)
}

// WriteBacktestResults writes results as a YAML list.
func WriteBacktestResults(path string, results []BacktestResult) error {
	data, err := yaml.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal backtest results to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write backtest results to file: %w", err)
	}

	return nil
}

// ReadBacktestResults reads a YAML list written by WriteBacktestResults.
// Params is left empty; ParamsKey carries the combination.
func ReadBacktestResults(path string) ([]BacktestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backtest results file: %w", err)
	}

	var results []BacktestResult
	if err := yaml.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal backtest results: %w", err)
	}

	return results, nil
}
