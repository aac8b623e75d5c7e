package backtest

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/radx/internal/logger"
	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OnSweepStartCallback is called once before the first combination runs.
// Returning an error aborts the sweep.
type OnSweepStartCallback func(runID string, total int) error

// OnProgressCallback is called after every finished combination.
type OnProgressCallback func(completed int, total int)

// OnResultCallback is called with the summary of every finished combination.
type OnResultCallback func(result types.BacktestResult)

// Callbacks holds the sweep lifecycle callbacks. Nil fields are skipped.
// Callbacks are never invoked concurrently.
type Callbacks struct {
	OnStart    *OnSweepStartCallback
	OnProgress *OnProgressCallback
	OnResult   *OnResultCallback
}

// SweepOptions configures a Sweeper.
type SweepOptions struct {
	// Workers is the number of concurrent combinations. Zero means GOMAXPROCS.
	Workers int
	// MaxCombinations is the grid size ceiling. Zero means DefaultMaxCombinations;
	// values above math.MaxInt are capped.
	MaxCombinations uint64
}

// SweepReport is what a sweep produced, including partial results when it failed.
type SweepReport struct {
	RunID     string
	Results   []types.BacktestResult
	Completed int
	Total     int
	Duration  time.Duration
	Err       error
}

// Sweeper evaluates every combination of a grid over the same bars.
type Sweeper struct {
	backtester *Backtester
	options    SweepOptions
	log        *logger.Logger
}

// NewSweeper creates a Sweeper around a Backtester.
func NewSweeper(backtester *Backtester, options SweepOptions, log *logger.Logger) *Sweeper {
	if options.Workers <= 0 {
		options.Workers = runtime.GOMAXPROCS(0)
	}

	if options.MaxCombinations == 0 {
		options.MaxCombinations = DefaultMaxCombinations
	}

	// the report counts combinations as int
	if options.MaxCombinations > math.MaxInt {
		options.MaxCombinations = math.MaxInt
	}

	return &Sweeper{
		backtester: backtester,
		options:    options,
		log:        log,
	}
}

// Run sweeps the grid over base. Cancellation is checked before each combination is dispatched;
// a running combination always finishes. The report is returned even on error and
// holds every result completed so far, sorted.
func (s *Sweeper) Run(
	ctx context.Context,
	bars []types.Bar,
	grid Grid,
	base types.ParameterSet,
	callbacks Callbacks,
) (SweepReport, error) {
	report := SweepReport{
		RunID:     uuid.New().String(),
		Results:   make([]types.BacktestResult, 0),
		Completed: 0,
		Total:     0,
		Duration:  0,
		Err:       nil,
	}

	if err := grid.Validate(s.options.MaxCombinations); err != nil {
		report.Err = err

		return report, err
	}

	size, _ := grid.Size()
	report.Total = int(size)

	if callbacks.OnStart != nil {
		if err := (*callbacks.OnStart)(report.RunID, report.Total); err != nil {
			report.Err = err

			return report, err
		}
	}

	s.log.Info("Sweep started",
		zap.String("run_id", report.RunID),
		zap.Int("combinations", report.Total),
		zap.Int("workers", s.options.Workers),
		zap.Int("bars", len(bars)),
	)

	started := time.Now()

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.options.Workers)

	for _, params := range grid.All(base) {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			// the slot may free up only after another combination failed
			if gctx.Err() != nil {
				return nil
			}

			run, err := s.backtester.RunSingle(bars, params)
			if err != nil {
				return fmt.Errorf("combination %s: %w", params.Key(), err)
			}

			mu.Lock()
			defer mu.Unlock()

			report.Results = append(report.Results, run.Summary)
			report.Completed++

			if callbacks.OnResult != nil {
				(*callbacks.OnResult)(run.Summary)
			}

			if callbacks.OnProgress != nil {
				(*callbacks.OnProgress)(report.Completed, report.Total)
			}

			return nil
		})
	}

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = errors.Wrap(errors.ErrCodeSweepCancelled, "sweep cancelled", ctx.Err())
	}

	types.SortBacktestResults(report.Results)
	report.Duration = time.Since(started)
	report.Err = err

	if err != nil {
		s.log.Warn("Sweep stopped early",
			zap.String("run_id", report.RunID),
			zap.Int("completed", report.Completed),
			zap.Int("total", report.Total),
			zap.Error(err),
		)

		return report, err
	}

	s.log.Info("Sweep finished",
		zap.String("run_id", report.RunID),
		zap.Int("completed", report.Completed),
		zap.Duration("duration", report.Duration),
	)

	return report, nil
}
