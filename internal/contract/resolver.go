package contract

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/rxtech-lab/radx/internal/logger"
	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/pkg/errors"
	"go.uber.org/zap"
)

// BarFetcher loads the bars of one contract month.
type BarFetcher interface {
	FetchSingle(ctx context.Context, contractID string, timeframe types.Timeframe, start, end time.Time, includePartial bool) ([]types.Bar, error)
}

// Resolver stitches overlapping contract months into one continuous series,
// picking the contract with the highest traded volume for each local date.
type Resolver struct {
	fetcher  BarFetcher
	lookback int
	logger   *logger.Logger
}

// NewResolver creates a resolver that considers lookback contract months.
func NewResolver(fetcher BarFetcher, lookback int, log *logger.Logger) *Resolver {
	return &Resolver{
		fetcher:  fetcher,
		lookback: lookback,
		logger:   log,
	}
}

type candidateBars struct {
	contractID string
	bars       []types.Bar
}

// Resolve fetches every candidate of base and merges them per local date.
func (r *Resolver) Resolve(ctx context.Context, symbol, base string, timeframe types.Timeframe, start, end time.Time) (types.ContinuousSeries, error) {
	ids, err := Candidates(base, r.lookback)
	if err != nil {
		return types.ContinuousSeries{}, err
	}

	fetched := make([]candidateBars, 0, len(ids))

	var lastErr error

	for _, id := range ids {
		bars, err := r.fetcher.FetchSingle(ctx, id, timeframe, start, end, false)
		if err != nil {
			if ctx.Err() != nil {
				return types.ContinuousSeries{}, ctx.Err()
			}

			lastErr = err
			r.logger.Warn("Skipping candidate contract", zap.String("contract", id), zap.Error(err))

			continue
		}

		if len(bars) == 0 {
			r.logger.Warn("No bars returned for candidate contract", zap.String("contract", id))

			continue
		}

		for i := range bars {
			bars[i].SourceContractID = id
		}

		r.logger.Debug("Fetched candidate contract", zap.String("contract", id), zap.Int("bars", len(bars)))
		fetched = append(fetched, candidateBars{contractID: id, bars: bars})
	}

	// a failed fetch must not be reported as missing data
	if len(fetched) == 0 && lastErr != nil {
		return types.ContinuousSeries{}, errors.Wrapf(errors.ErrCodeUpstream, lastErr, "every candidate of %s failed", base)
	}

	assignments := assignDays(fetched)

	chosen := make(map[string]string, len(assignments))
	for _, a := range assignments {
		chosen[a.Date] = a.ChosenContractID
	}

	var merged []types.Bar

	for _, c := range fetched {
		for _, bar := range c.bars {
			if chosen[bar.LocalDate()] == c.contractID {
				merged = append(merged, bar)
			}
		}
	}

	if len(merged) == 0 {
		return types.ContinuousSeries{}, errors.Newf(errors.ErrCodeEmptySeries, "no bars for %s between %s and %s", base, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	slices.SortStableFunc(merged, func(a, b types.Bar) int {
		return a.Time.Compare(b.Time)
	})

	return types.ContinuousSeries{
		Symbol:      symbol,
		Bars:        merged,
		Assignments: assignments,
	}, nil
}

// assignDays picks the highest-volume candidate per local date.
// Ties go to the candidate fetched first, i.e. the most recent contract.
func assignDays(fetched []candidateBars) []types.RollAssignment {
	volumes := make(map[string]map[string]int64)

	for _, c := range fetched {
		for _, bar := range c.bars {
			date := bar.LocalDate()
			if volumes[date] == nil {
				volumes[date] = make(map[string]int64)
			}

			volumes[date][c.contractID] += bar.Volume
		}
	}

	dates := make([]string, 0, len(volumes))
	for date := range volumes {
		dates = append(dates, date)
	}

	slices.Sort(dates)

	out := make([]types.RollAssignment, 0, len(dates))

	for _, date := range dates {
		byContract := volumes[date]

		var (
			best int64 = -1
			tied []string
		)

		for _, c := range fetched {
			v, ok := byContract[c.contractID]
			if !ok {
				continue
			}

			switch {
			case v > best:
				best = v
				tied = []string{c.contractID}
			case v == best:
				tied = append(tied, c.contractID)
			}
		}

		out = append(out, types.RollAssignment{
			Date:             date,
			ChosenContractID: tied[0],
			Label:            strings.Join(tied, ", "),
			VolumeByContract: byContract,
		})
	}

	return out
}
