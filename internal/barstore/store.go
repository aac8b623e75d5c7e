package barstore

import (
	"context"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rxtech-lab/radx/internal/contract"
	"github.com/rxtech-lab/radx/internal/logger"
	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/pkg/errors"
	"github.com/rxtech-lab/radx/pkg/marketdata/provider"
	"go.uber.org/zap"
)

// Options tune a Store.
type Options struct {
	// Location is the local timezone applied to every returned bar.
	Location *time.Location
	// RecentCapacity bounds the in-memory LRU.
	RecentCapacity int
	// Lookback is the number of contract months the resolver considers.
	Lookback int
	// MaxRetries is the number of retries after a failed provider call.
	MaxRetries uint64
	// RequestTimeout bounds each provider attempt. Zero means no per-attempt timeout.
	RequestTimeout time.Duration
	// InitialBackoff is the first retry delay.
	InitialBackoff time.Duration
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Location:       time.UTC,
		RecentCapacity: DefaultRecentCapacity,
		Lookback:       6,
		MaxRetries:     3,
		RequestTimeout: 30 * time.Second,
		InitialBackoff: 500 * time.Millisecond,
	}
}

// Store fetches and caches bars. It is the only writer of its caches.
type Store struct {
	provider provider.HistoryProvider
	cache    Cache
	recent   *RecentCache
	resolver *contract.Resolver
	opts     Options
	logger   *logger.Logger
}

// NewStore creates a store. cache may be nil to disable persistence.
func NewStore(history provider.HistoryProvider, cache Cache, opts Options, log *logger.Logger) *Store {
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	s := &Store{
		provider: history,
		cache:    cache,
		recent:   NewRecentCache(opts.RecentCapacity),
		opts:     opts,
		logger:   log,
	}
	s.resolver = contract.NewResolver(s, opts.Lookback, log)

	return s
}

// FetchSingle returns the bars of one contract. A partial trailing bar is never cached.
func (s *Store) FetchSingle(ctx context.Context, contractID string, timeframe types.Timeframe, start, end time.Time, includePartial bool) ([]types.Bar, error) {
	key := ContractKey(contractID, start, end, timeframe)

	if !includePartial {
		if record, ok := s.lookup(ctx, key); ok {
			return record.Bars, nil
		}
	}

	bars, err := s.retrieve(ctx, provider.BarsRequest{
		ContractID:        contractID,
		Start:             start,
		End:               end,
		Timeframe:         timeframe,
		IncludePartialBar: includePartial,
	})
	if err != nil {
		return nil, err
	}

	record := Record{Bars: s.localize(bars)}

	if !includePartial {
		s.store(ctx, key, record)
	}

	return record.Bars, nil
}

// FetchContinuous resolves a continuous series for symbol starting from baseContractID.
func (s *Store) FetchContinuous(ctx context.Context, symbol, baseContractID string, timeframe types.Timeframe, start, end time.Time) (types.ContinuousSeries, error) {
	key := SymbolKey(symbol, baseContractID, start, end, timeframe)

	if record, ok := s.lookup(ctx, key); ok {
		return types.ContinuousSeries{Symbol: symbol, Bars: record.Bars, Assignments: record.Assignments}, nil
	}

	series, err := s.resolver.Resolve(ctx, symbol, baseContractID, timeframe, start, end)
	if err != nil {
		return types.ContinuousSeries{}, err
	}

	s.store(ctx, key, Record{Bars: series.Bars, Assignments: series.Assignments})

	return series, nil
}

// lookup checks the LRU, then the persistent cache. Returned records are private copies.
func (s *Store) lookup(ctx context.Context, key CacheKey) (Record, bool) {
	if record, ok := s.recent.Get(key); ok {
		s.logger.Debug("Recent cache hit", zap.String("key", key.String()))

		return record, true
	}

	if s.cache == nil {
		return Record{}, false
	}

	record, ok, err := s.cache.Load(ctx, key)
	if err != nil {
		s.logger.Warn("Failed to load cached record", zap.String("key", key.String()), zap.Error(err))

		return Record{}, false
	}

	if !ok {
		return Record{}, false
	}

	s.logger.Debug("Cache hit", zap.String("key", key.String()), zap.Int("bars", len(record.Bars)))

	record.Bars = s.localize(record.Bars)
	s.recent.Put(key, record)

	return record, true
}

func (s *Store) store(ctx context.Context, key CacheKey, record Record) {
	s.recent.Put(key, record)

	if s.cache == nil {
		return
	}

	if err := s.cache.Save(ctx, key, record); err != nil {
		s.logger.Warn("Failed to persist record", zap.String("key", key.String()), zap.Error(err))
	}
}

// retrieve calls the provider, retrying only upstream failures.
func (s *Store) retrieve(ctx context.Context, req provider.BarsRequest) ([]types.Bar, error) {
	var bars []types.Bar

	attempt := 0
	operation := func() error {
		attempt++

		attemptCtx := ctx
		if s.opts.RequestTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
			defer cancel()
		}

		result, err := s.provider.RetrieveBars(attemptCtx, req)
		if err != nil {
			if errors.IsUpstream(err) {
				s.logger.Warn("History request failed",
					zap.String("contract", req.ContractID),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)

				return err
			}

			return backoff.Permanent(err)
		}

		bars = result

		return nil
	}

	policy := backoff.NewExponentialBackOff()
	if s.opts.InitialBackoff > 0 {
		policy.InitialInterval = s.opts.InitialBackoff
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, s.opts.MaxRetries), ctx))
	if err != nil {
		return nil, err
	}

	return bars, nil
}

// localize sorts bars by time and derives TimeLocal from the UTC instant.
func (s *Store) localize(bars []types.Bar) []types.Bar {
	out := make([]types.Bar, len(bars))
	for i, bar := range bars {
		out[i] = bar.WithLocation(s.opts.Location)
	}

	slices.SortStableFunc(out, func(a, b types.Bar) int {
		return a.Time.Compare(b.Time)
	})

	return out
}
