package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rxtech-lab/radx/internal/backtest"
	"github.com/rxtech-lab/radx/internal/barstore"
	"github.com/rxtech-lab/radx/internal/config"
	"github.com/rxtech-lab/radx/internal/live"
	"github.com/rxtech-lab/radx/internal/logger"
	"github.com/rxtech-lab/radx/internal/simulator"
	"github.com/rxtech-lab/radx/internal/strategy"
	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/pkg/errors"
	"github.com/rxtech-lab/radx/pkg/marketdata/provider"
	"github.com/rxtech-lab/radx/pkg/marketdata/stream"
	"github.com/rxtech-lab/radx/pkg/marketdata/writer"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// newRegistry supplies the strategies available to every command.
var newRegistry = strategy.DefaultRegistry

// app holds the wired components shared by the commands.
type app struct {
	cfg        config.Config
	log        *logger.Logger
	tokens     *provider.TokenSource
	client     *provider.TopstepClient
	cache      *barstore.DuckDBCache
	store      *barstore.Store
	registry   *strategy.Registry
	instrument types.Instrument
}

func newApp(ctx context.Context, cmd *cli.Command) (*app, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	log, err := logger.NewLoggerWithLevel(cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	tokens := provider.NewTokenSource(
		cfg.API.BaseURL,
		provider.Credentials{UserName: cfg.API.UserName, APIKey: cfg.API.APIKey},
		provider.FileTokenStore{Path: cfg.API.TokenFile},
		log,
	)

	client, err := provider.NewTopstepClient(provider.ClientConfig{
		BaseURL: cfg.API.BaseURL,
		Live:    cfg.API.Live,
		Timeout: cfg.API.Timeout,
	}, tokens, log)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		log:        log,
		tokens:     tokens,
		client:     client,
		registry:   newRegistry(),
		instrument: cfg.InstrumentSpec(),
	}

	var cache barstore.Cache

	if cfg.Cache.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Cache.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}

		a.cache, err = barstore.NewDuckDBCache(cfg.Cache.Path, log)
		if err != nil {
			return nil, err
		}

		cache = a.cache
	}

	a.store = barstore.NewStore(client, cache, barstore.Options{
		Location:       cfg.Location(),
		RecentCapacity: cfg.Cache.RecentCapacity,
		Lookback:       cfg.Instrument.Lookback,
		MaxRetries:     cfg.Cache.MaxRetries,
		RequestTimeout: cfg.API.Timeout,
		InitialBackoff: cfg.Cache.InitialBackoff,
	}, log)

	if a.instrument.BaseContractID == "" {
		found, err := client.FindContract(ctx, cfg.Instrument.Symbol)
		if err != nil {
			a.close()

			return nil, err
		}

		a.instrument.BaseContractID = found.ID
		log.Info("Resolved base contract", zap.String("symbol", cfg.Instrument.Symbol), zap.String("contract_id", found.ID))
	}

	return a, nil
}

func (a *app) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("Failed to close bar cache", zap.Error(err))
		}
	}

	_ = a.log.Sync()
}

// loadBars returns the backtest series, stitched across contract months when configured.
func (a *app) loadBars(ctx context.Context) ([]types.Bar, error) {
	start, end, err := a.cfg.BacktestRange(time.Now())
	if err != nil {
		return nil, err
	}

	a.log.Info("Loading bars",
		zap.String("symbol", a.instrument.Symbol),
		zap.String("base_contract_id", a.instrument.BaseContractID),
		zap.String("timeframe", a.cfg.Timeframe.String()),
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Bool("continuous", a.cfg.Backtest.Continuous),
	)

	if !a.cfg.Backtest.Continuous {
		bars, err := a.store.FetchSingle(ctx, a.instrument.BaseContractID, a.cfg.Timeframe, start, end, false)
		if err != nil {
			return nil, err
		}

		if len(bars) == 0 {
			return nil, errors.Newf(errors.ErrCodeEmptySeries, "no bars for %s", a.instrument.BaseContractID)
		}

		return bars, nil
	}

	series, err := a.store.FetchContinuous(ctx, a.instrument.Symbol, a.instrument.BaseContractID, a.cfg.Timeframe, start, end)
	if err != nil {
		return nil, err
	}

	for _, day := range series.Assignments {
		a.log.Debug("Roll assignment", zap.String("date", day.Date), zap.String("contract", day.Label))
	}

	return series.Bars, nil
}

func (a *app) newStrategy(name string) (strategy.Strategy, error) {
	if name == "" {
		name = a.cfg.Strategy.Name
	}

	return a.registry.Create(name, a.instrument)
}

func backtestAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	s, err := a.newStrategy(cmd.String("strategy"))
	if err != nil {
		return err
	}

	bars, err := a.loadBars(ctx)
	if err != nil {
		return err
	}

	run, err := backtest.NewBacktester(s, a.instrument, simulator.Options{Size: a.cfg.Backtest.Size}).
		RunSingle(bars, a.cfg.Parameters())
	if err != nil {
		return err
	}

	if cmd.Bool("trades") {
		for _, trade := range run.Trades {
			a.log.Info("Trade",
				zap.Int("id", trade.ID),
				zap.Time("entry_time", trade.EntryTime),
				zap.Float64("entry_price", trade.EntryPrice),
				zap.Time("exit_time", trade.ExitTime),
				zap.Float64("exit_price", trade.ExitPrice),
				zap.String("exit_reason", string(trade.ExitReason)),
				zap.Int64("ticks", trade.Ticks),
				zap.String("gain", trade.Gain.StringFixed(2)),
				zap.String("contract", trade.SourceContractID),
			)
		}
	}

	summary := run.Summary
	a.log.Info("Backtest finished",
		zap.String("strategy", s.Name()),
		zap.String("params", summary.ParamsKey),
		zap.Int("bars", len(bars)),
		zap.Int("trades", summary.TradeCount),
		zap.Float64("win_rate", summary.WinRate),
		zap.Int64("total_ticks", summary.TotalTicks),
		zap.Int64("biggest_win", summary.BiggestWin),
		zap.Int64("biggest_loss", summary.BiggestLoss),
		zap.String("total_gain", summary.TotalGain),
		zap.Bool("open_trade_at_end", summary.OpenTradeEnd),
	)

	return nil
}

func sweepAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	format := a.cfg.Sweep.ReportFormat
	if f := cmd.String("format"); f != "" {
		format = f
	}

	reportFormat, err := backtest.ParseReportFormat(format)
	if err != nil {
		return err
	}

	dir := a.cfg.Sweep.ReportDir
	if out := cmd.String("out"); out != "" {
		dir = out
	}

	grid, err := backtest.NewGrid(a.cfg.Sweep.Ranges)
	if err != nil {
		return err
	}

	s, err := a.newStrategy("")
	if err != nil {
		return err
	}

	bars, err := a.loadBars(ctx)
	if err != nil {
		return err
	}

	sweeper := backtest.NewSweeper(
		backtest.NewBacktester(s, a.instrument, simulator.Options{Size: a.cfg.Backtest.Size}),
		backtest.SweepOptions{Workers: a.cfg.Sweep.Workers, MaxCombinations: a.cfg.Sweep.MaxCombinations},
		a.log,
	)

	var bar *progressbar.ProgressBar

	onStart := backtest.OnSweepStartCallback(func(runID string, total int) error {
		if !cmd.Bool("no-progress") {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription(fmt.Sprintf("Sweep %s", runID[:8])),
				progressbar.OptionShowCount(),
			)
		}

		return nil
	})
	onProgress := backtest.OnProgressCallback(func(int, int) {
		if bar != nil {
			_ = bar.Add(1)
		}
	})

	report, runErr := sweeper.Run(ctx, bars, grid, a.cfg.Parameters(), backtest.Callbacks{
		OnStart:    &onStart,
		OnProgress: &onProgress,
		OnResult:   nil,
	})

	if bar != nil {
		_ = bar.Finish()
	}

	// partial results are still written when the sweep stopped early
	if len(report.Results) > 0 {
		path, err := backtest.NewReportWriter(dir, reportFormat).Write(report)
		if err != nil {
			return err
		}

		a.log.Info("Sweep report written",
			zap.String("path", path),
			zap.Int("completed", report.Completed),
			zap.Int("total", report.Total),
		)

		best := report.Results[0]
		a.log.Info("Best combination",
			zap.String("params", best.ParamsKey),
			zap.Float64("win_rate", best.WinRate),
			zap.Int64("total_ticks", best.TotalTicks),
			zap.Int("trades", best.TradeCount),
		)
	}

	return runErr
}

func liveAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	s, err := a.newStrategy("")
	if err != nil {
		return err
	}

	openEnded, ok := s.(strategy.OpenEnded)
	if !ok {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "strategy %s cannot run live", s.Name())
	}

	engine, err := live.NewEngine(live.EngineConfig{
		ContractID:     a.instrument.BaseContractID,
		Timeframe:      a.cfg.Timeframe,
		Params:         a.cfg.Parameters(),
		HistoryWindow:  a.cfg.Live.HistoryWindow,
		MaxBars:        a.cfg.Live.MaxBars,
		FillEmpty:      a.cfg.Live.FillEmpty,
		BucketCapacity: a.cfg.Live.BucketCapacity,
		Location:       a.cfg.Location(),
	}, openEnded, a.store, a.log)
	if err != nil {
		return err
	}

	hub, err := stream.NewMarketHub(stream.Config{
		URL:                  a.cfg.API.MarketHubURL,
		MaxReconnectAttempts: a.cfg.Live.MaxReconnectAttempts,
		PingInterval:         stream.DefaultPingInterval,
		InitialBackoff:       stream.DefaultInitialBackoff,
	}, a.tokens, engine.HandleTrades, a.log)
	if err != nil {
		return err
	}

	a.log.Info("Live signals started",
		zap.String("contract_id", a.instrument.BaseContractID),
		zap.String("timeframe", a.cfg.Timeframe.String()),
		zap.String("params", a.cfg.Parameters().Key()),
	)

	return engine.Run(ctx, hub, func(bar types.AnnotatedBar) {
		price, _ := engine.Aggregator().LastPrice()
		a.log.Info("Bar",
			zap.Time("time", bar.TimeLocal),
			zap.Float64("close", bar.Close),
			zap.Float64("last_price", price),
			zap.Int("position", bar.PositionState),
			zap.Bool("entry", bar.LongEntry),
			zap.Bool("exit", bar.LongExit),
		)
	})
}

func exportAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	bars, err := a.loadBars(ctx)
	if err != nil {
		return err
	}

	out := cmd.String("out")
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	_, err = writer.WriteAll(writer.NewDuckDBWriter(out, a.log), bars)

	return err
}

func schemaAction(_ context.Context, _ *cli.Command) error {
	schema, err := config.Schema()
	if err != nil {
		return err
	}

	fmt.Println(schema)

	return nil
}

func strategiesAction(_ context.Context, _ *cli.Command) error {
	for _, name := range newRegistry().List() {
		fmt.Println(name)
	}

	return nil
}
