package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/parquet-go/parquet-go"
	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/pkg/errors"
)

// ReportFormat is the on-disk format of a sweep report.
type ReportFormat string

const (
	ReportFormatCSV     ReportFormat = "csv"
	ReportFormatParquet ReportFormat = "parquet"
	ReportFormatYAML    ReportFormat = "yaml"
)

// ParseReportFormat checks a format name.
func ParseReportFormat(s string) (ReportFormat, error) {
	switch f := ReportFormat(s); f {
	case ReportFormatCSV, ReportFormatParquet, ReportFormatYAML:
		return f, nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown report format %q", s)
	}
}

var reportHeader = []string{
	"params", "total_ticks", "trade_count", "win_count", "loss_count", "win_rate",
	"biggest_win", "average_win", "biggest_loss", "average_loss", "total_gain", "open_trade_at_end",
}

// reportRow is the parquet schema of one result.
type reportRow struct {
	Params       string  `parquet:"params"`
	TotalTicks   int64   `parquet:"total_ticks"`
	TradeCount   int64   `parquet:"trade_count"`
	WinCount     int64   `parquet:"win_count"`
	LossCount    int64   `parquet:"loss_count"`
	WinRate      float64 `parquet:"win_rate"`
	BiggestWin   int64   `parquet:"biggest_win"`
	AverageWin   float64 `parquet:"average_win"`
	BiggestLoss  int64   `parquet:"biggest_loss"`
	AverageLoss  float64 `parquet:"average_loss"`
	TotalGain    string  `parquet:"total_gain"`
	OpenTradeEnd bool    `parquet:"open_trade_at_end"`
}

// ReportWriter writes one file per sweep.
type ReportWriter struct {
	dir    string
	format ReportFormat
}

// NewReportWriter creates a ReportWriter that writes into dir.
func NewReportWriter(dir string, format ReportFormat) *ReportWriter {
	return &ReportWriter{dir: dir, format: format}
}

// Path returns the file a report with runID is written to.
func (w *ReportWriter) Path(runID string) string {
	return filepath.Join(w.dir, fmt.Sprintf("sweep_%s.%s", runID, w.format))
}

// Write stores the report results in report order and returns the file path.
func (w *ReportWriter) Write(report SweepReport) (string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	results := slices.Clone(report.Results)
	types.SortBacktestResults(results)

	path := w.Path(report.RunID)

	var err error

	switch w.format {
	case ReportFormatCSV:
		err = writeCSV(path, results)
	case ReportFormatParquet:
		err = writeParquet(path, results)
	case ReportFormatYAML:
		err = types.WriteBacktestResults(path, results)
	default:
		err = errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown report format %q", w.format)
	}

	if err != nil {
		return "", err
	}

	return path, nil
}

func writeCSV(path string, results []types.BacktestResult) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(reportHeader); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}

	for _, r := range results {
		record := []string{
			r.ParamsKey,
			strconv.FormatInt(r.TotalTicks, 10),
			strconv.Itoa(r.TradeCount),
			strconv.Itoa(r.WinCount),
			strconv.Itoa(r.LossCount),
			strconv.FormatFloat(r.WinRate, 'f', -1, 64),
			strconv.FormatInt(r.BiggestWin, 10),
			strconv.FormatFloat(r.AverageWin, 'f', -1, 64),
			strconv.FormatInt(r.BiggestLoss, 10),
			strconv.FormatFloat(r.AverageLoss, 'f', -1, 64),
			r.TotalGain,
			strconv.FormatBool(r.OpenTradeEnd),
		}

		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write report row: %w", err)
		}
	}

	writer.Flush()

	return writer.Error()
}

func writeParquet(path string, results []types.BacktestResult) error {
	rows := make([]reportRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, reportRow{
			Params:       r.ParamsKey,
			TotalTicks:   r.TotalTicks,
			TradeCount:   int64(r.TradeCount),
			WinCount:     int64(r.WinCount),
			LossCount:    int64(r.LossCount),
			WinRate:      r.WinRate,
			BiggestWin:   r.BiggestWin,
			AverageWin:   r.AverageWin,
			BiggestLoss:  r.BiggestLoss,
			AverageLoss:  r.AverageLoss,
			TotalGain:    r.TotalGain,
			OpenTradeEnd: r.OpenTradeEnd,
		})
	}

	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("failed to write parquet report: %w", err)
	}

	return nil
}

// ReadParquetReport reads a report written in parquet format.
func ReadParquetReport(path string) ([]types.BacktestResult, error) {
	rows, err := parquet.ReadFile[reportRow](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet report: %w", err)
	}

	results := make([]types.BacktestResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, types.BacktestResult{
			ParamsKey:    row.Params,
			TotalTicks:   row.TotalTicks,
			TradeCount:   int(row.TradeCount),
			WinCount:     int(row.WinCount),
			LossCount:    int(row.LossCount),
			WinRate:      row.WinRate,
			BiggestWin:   row.BiggestWin,
			AverageWin:   row.AverageWin,
			BiggestLoss:  row.BiggestLoss,
			AverageLoss:  row.AverageLoss,
			TotalGain:    row.TotalGain,
			OpenTradeEnd: row.OpenTradeEnd,
		})
	}

	return results, nil
}

// ReadCSVReport reads a report written in csv format. Params is left empty.
func ReadCSVReport(path string) ([]types.BacktestResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}

	if len(records) == 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "report %s has no header", path)
	}

	results := make([]types.BacktestResult, 0, len(records)-1)

	for line, record := range records[1:] {
		result, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+2, err)
		}

		results = append(results, result)
	}

	return results, nil
}

func parseRecord(record []string) (types.BacktestResult, error) {
	if len(record) != len(reportHeader) {
		return types.BacktestResult{}, fmt.Errorf("expected %d columns, got %d", len(reportHeader), len(record))
	}

	var (
		r   types.BacktestResult
		err error
	)

	ints := func(s string) int64 {
		if err != nil {
			return 0
		}

		var v int64
		v, err = strconv.ParseInt(s, 10, 64)

		return v
	}

	floats := func(s string) float64 {
		if err != nil {
			return 0
		}

		var v float64
		v, err = strconv.ParseFloat(s, 64)

		return v
	}

	r.ParamsKey = record[0]
	r.TotalTicks = ints(record[1])
	r.TradeCount = int(ints(record[2]))
	r.WinCount = int(ints(record[3]))
	r.LossCount = int(ints(record[4]))
	r.WinRate = floats(record[5])
	r.BiggestWin = ints(record[6])
	r.AverageWin = floats(record[7])
	r.BiggestLoss = ints(record[8])
	r.AverageLoss = floats(record[9])
	r.TotalGain = record[10]

	if err != nil {
		return types.BacktestResult{}, err
	}

	r.OpenTradeEnd, err = strconv.ParseBool(record[11])
	if err != nil {
		return types.BacktestResult{}, err
	}

	return r, nil
}
