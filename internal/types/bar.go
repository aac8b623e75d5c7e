package types

import "time"

// Bar is one OHLCV record for a fixed interval.
type Bar struct {
	// Time is the provider-native bar open time, normalized to UTC.
	Time time.Time `csv:"time"`
	// TimeLocal is Time converted to the configured local timezone.
	TimeLocal time.Time `csv:"time_local"`
	Open      float64   `csv:"open"`
	High      float64   `csv:"high"`
	Low       float64   `csv:"low"`
	Close     float64   `csv:"close"`
	Volume    int64     `csv:"volume"`
	// SourceContractID is the contract month the bar was fetched from.
	SourceContractID string `csv:"source_contract_id"`
}

// Valid reports whether the OHLC values are ordered and volume is non-negative.
func (b Bar) Valid() bool {
	return b.Low <= b.Open && b.Low <= b.Close &&
		b.Open <= b.High && b.Close <= b.High &&
		b.Volume >= 0
}

// LocalDate returns the calendar day of the bar in the local timezone.
// Day boundaries for contract rolls and trading sessions both use this key.
func (b Bar) LocalDate() string {
	return b.TimeLocal.Format(time.DateOnly)
}

// WithLocation returns a copy of the bar with TimeLocal derived from Time.
// Deriving from Time keeps repeated conversion idempotent.
func (b Bar) WithLocation(loc *time.Location) Bar {
	b.Time = b.Time.UTC()
	if loc == nil {
		loc = time.UTC
	}

	b.TimeLocal = b.Time.In(loc)

	return b
}

// CloneBars returns an independent copy of bars.
func CloneBars(bars []Bar) []Bar {
	if bars == nil {
		return nil
	}

	out := make([]Bar, len(bars))
	copy(out, bars)

	return out
}

// ContinuousSeries is a price series stitched across contract months.
type ContinuousSeries struct {
	Symbol      string
	Bars        []Bar
	Assignments []RollAssignment
}

// RollAssignment records which contract was chosen for one local date.
type RollAssignment struct {
	Date             string
	ChosenContractID string
	// Label lists every contract tied at the maximum volume, joined with ", ".
	Label            string
	VolumeByContract map[string]int64
}
