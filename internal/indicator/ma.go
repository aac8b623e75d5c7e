package indicator

import (
	"fmt"

	"github.com/moznion/go-optional"
)

// SMA returns the simple moving average of values over period.
// Positions before the window is full have no value.
func SMA(values []float64, period int) ([]optional.Option[float64], error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be a positive integer, got %d", period)
	}

	out := make([]optional.Option[float64], len(values))

	var sum float64

	for i, v := range values {
		sum += v

		if i >= period {
			sum -= values[i-period]
		}

		if i+1 < period {
			out[i] = optional.None[float64]()

			continue
		}

		out[i] = optional.Some(sum / float64(period))
	}

	return out, nil
}

// MovingAverage is an incremental SMA over the last period values.
type MovingAverage struct {
	period int
	window []float64
	next   int
	sum    float64
	filled bool
}

// NewMovingAverage creates an incremental SMA.
func NewMovingAverage(period int) (*MovingAverage, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be a positive integer, got %d", period)
	}

	return &MovingAverage{
		period: period,
		window: make([]float64, period),
	}, nil
}

// Add pushes v and returns the average once period values have been seen.
func (m *MovingAverage) Add(v float64) optional.Option[float64] {
	m.sum += v - m.window[m.next]
	m.window[m.next] = v
	m.next++

	if m.next == m.period {
		m.next = 0
		m.filled = true
	}

	if !m.filled {
		return optional.None[float64]()
	}

	return optional.Some(m.sum / float64(m.period))
}

// Period returns the window length.
func (m *MovingAverage) Period() int {
	return m.period
}
