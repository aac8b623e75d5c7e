package barstore

import (
	"fmt"
	"maps"
	"time"

	"github.com/rxtech-lab/radx/internal/types"
)

const symbolKeyPrefix = "symbol:"

// CacheKey addresses one cached request. A change to any field is a cache miss.
type CacheKey struct {
	Key       string
	Start     time.Time
	End       time.Time
	Timeframe types.Timeframe
}

// ContractKey returns the key of a single-contract request.
func ContractKey(contractID string, start, end time.Time, tf types.Timeframe) CacheKey {
	return CacheKey{Key: contractID, Start: start, End: end, Timeframe: tf}
}

// SymbolKey returns the key of a continuous-series request, kept apart from contract keys.
// The base contract is part of the key since it decides the candidate set.
func SymbolKey(symbol, baseContractID string, start, end time.Time, tf types.Timeframe) CacheKey {
	return CacheKey{Key: symbolKeyPrefix + symbol + "@" + baseContractID, Start: start, End: end, Timeframe: tf}
}

// String renders "{key}_{start}_{end}_{unitSize}_{unit}".
func (k CacheKey) String() string {
	return fmt.Sprintf("%s_%s_%s_%d_%d",
		k.Key,
		k.Start.UTC().Format(time.RFC3339),
		k.End.UTC().Format(time.RFC3339),
		k.Timeframe.UnitSize,
		int(k.Timeframe.Unit),
	)
}

// Record is the cached payload of one key.
type Record struct {
	Bars []types.Bar
	// Assignments is only set for continuous-series records.
	Assignments []types.RollAssignment
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := Record{Bars: types.CloneBars(r.Bars)}

	if r.Assignments != nil {
		out.Assignments = make([]types.RollAssignment, len(r.Assignments))
		for i, a := range r.Assignments {
			a.VolumeByContract = maps.Clone(a.VolumeByContract)
			out.Assignments[i] = a
		}
	}

	return out
}
