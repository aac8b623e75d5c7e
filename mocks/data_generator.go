package mocks

import (
	"math"
	"math/rand"
	"time"

	"github.com/rxtech-lab/radx/internal/types"
)

// DataGenerator generates realistic futures bars for testing and benchmarking.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator creates a new DataGenerator with the given seed.
// Use a fixed seed for reproducible results in tests.
func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig configures how bars are generated.
type GeneratorConfig struct {
	// ContractID is stamped on every bar as SourceContractID
	ContractID string
	// StartTime is the open time of the first bar
	StartTime time.Time
	// Interval is the duration between each bar
	Interval time.Duration
	// Count is the number of bars to generate
	Count int
	// InitialPrice is the starting price
	InitialPrice float64
	// TickSize snaps every price to the instrument grid
	TickSize float64
	// Volatility controls price movement (0.001 = 0.1% per bar)
	Volatility float64
	// Trend is the drift factor over the whole series
	Trend float64
	// VolumeBase is the average volume per bar
	VolumeBase float64
	// VolumeVariance is the variance in volume (0.0 to 1.0)
	VolumeVariance float64
	// Location is used for TimeLocal, UTC when nil
	Location *time.Location
}

// DefaultConfig returns an ES-like 3 minute series.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		ContractID:     "CON.F.US.EP.H25",
		StartTime:      time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		Interval:       3 * time.Minute,
		Count:          2000,
		InitialPrice:   5800,
		TickSize:       0.25,
		Volatility:     0.0008,
		Trend:          0.0,
		VolumeBase:     800,
		VolumeVariance: 0.3,
	}
}

// Generate creates bars following a geometric Brownian motion, snapped to the tick grid.
func (g *DataGenerator) Generate(config GeneratorConfig) []types.Bar {
	bars := make([]types.Bar, config.Count)
	currentPrice := config.InitialPrice
	currentTime := config.StartTime

	for i := 0; i < config.Count; i++ {
		open := snap(currentPrice, config.TickSize)

		// Box-Muller transform for a normal step
		u1 := g.rng.Float64()
		u2 := g.rng.Float64()
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

		drift := config.Trend / float64(config.Count)

		close := snap(open*(1+config.Volatility*z+drift), config.TickSize)
		if close <= 0 {
			close = open
		}

		highExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)
		lowExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)

		high := snap(math.Max(open, close)+highExtension, config.TickSize)
		low := snap(math.Min(open, close)-lowExtension, config.TickSize)

		// snapping can pull the extremes inside the body
		high = math.Max(high, math.Max(open, close))
		low = math.Min(low, math.Min(open, close))

		volumeVariation := 1.0 + (g.rng.Float64()*2-1)*config.VolumeVariance
		volume := int64(math.Max(config.VolumeBase*volumeVariation, 1))

		bars[i] = types.Bar{
			Time:             currentTime,
			Open:             open,
			High:             high,
			Low:              low,
			Close:            close,
			Volume:           volume,
			SourceContractID: config.ContractID,
		}.WithLocation(config.Location)

		currentPrice = close
		currentTime = currentTime.Add(config.Interval)
	}

	return bars
}

// GenerateContracts generates one overlapping series per contract id, with
// volume shifting from the first id to the last across the series.
func (g *DataGenerator) GenerateContracts(contractIDs []string, baseConfig GeneratorConfig) map[string][]types.Bar {
	out := make(map[string][]types.Bar, len(contractIDs))

	for i, id := range contractIDs {
		config := baseConfig
		config.ContractID = id
		config.InitialPrice = baseConfig.InitialPrice * (1 + 0.002*float64(i))

		bars := g.Generate(config)
		for j := range bars {
			// liquidity migrates linearly from the first contract to the last
			share := float64(j) / float64(max(len(bars)-1, 1))
			if len(contractIDs) > 1 {
				weight := 1 - math.Abs(share-float64(i)/float64(len(contractIDs)-1))
				bars[j].Volume = int64(math.Max(float64(bars[j].Volume)*weight, 1))
			}
		}

		out[id] = bars
	}

	return out
}

// Generate2K is a convenience function to generate 2,000 bars with default settings.
func Generate2K(contractID string) []types.Bar {
	gen := NewDataGenerator(42) // Fixed seed for reproducibility
	config := DefaultConfig()
	config.ContractID = contractID

	return gen.Generate(config)
}

func snap(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}

	return math.Round(price/tick) * tick
}
