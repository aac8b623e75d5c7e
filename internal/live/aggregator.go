package live

import (
	"slices"
	"sync"
	"time"

	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/pkg/errors"
)

// DefaultBucketCapacity is how many intervals the aggregator keeps before pruning.
const DefaultBucketCapacity = 20

// TradeEvent is one print for the aggregated contract.
type TradeEvent struct {
	Price     float64
	Timestamp time.Time
}

type bucket struct {
	prices []float64
}

// Aggregator groups trade prints into fixed-width buckets keyed by the absolute
// interval start (unix seconds). OnTrade and the pop methods may run concurrently.
type Aggregator struct {
	mu sync.Mutex

	width      time.Duration
	capacity   int
	location   *time.Location
	contractID string

	buckets   map[int64]*bucket
	newest    int64
	lastPrice float64
	lastTime  time.Time
	hasPrice  bool
}

// NewAggregator creates an Aggregator with the given bucket width.
func NewAggregator(contractID string, width time.Duration, capacity int, location *time.Location) (*Aggregator, error) {
	if width < time.Second || width%time.Second != 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "bucket width must be a whole number of seconds, got %s", width)
	}

	if capacity <= 0 {
		capacity = DefaultBucketCapacity
	}

	if location == nil {
		location = time.UTC
	}

	return &Aggregator{
		width:      width,
		capacity:   capacity,
		location:   location,
		contractID: contractID,
		buckets:    make(map[int64]*bucket),
	}, nil
}

// Width returns the bucket width.
func (a *Aggregator) Width() time.Duration {
	return a.width
}

// BucketStart returns the start of the bucket containing t.
func (a *Aggregator) BucketStart(t time.Time) time.Time {
	return time.Unix(a.key(t), 0).UTC()
}

func (a *Aggregator) key(t time.Time) int64 {
	unix := t.Unix()
	w := int64(a.width / time.Second)

	// floor for timestamps before the epoch too
	k := unix - unix%w
	if unix < 0 && unix%w != 0 {
		k -= w
	}

	return k
}

// OnTrade appends the print to its bucket.
func (a *Aggregator) OnTrade(event TradeEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := a.key(event.Timestamp)

	b, ok := a.buckets[k]
	if !ok {
		b = &bucket{prices: make([]float64, 0, 16)}
		a.buckets[k] = b
	}

	b.prices = append(b.prices, event.Price)

	if !a.hasPrice || !event.Timestamp.Before(a.lastTime) {
		a.lastPrice = event.Price
		a.lastTime = event.Timestamp
		a.hasPrice = true
	}

	if k > a.newest {
		a.newest = k
		a.prune()
	}
}

// prune drops buckets older than capacity intervals behind the newest one.
func (a *Aggregator) prune() {
	horizon := a.newest - int64(a.capacity)*int64(a.width/time.Second)

	for k := range a.buckets {
		if k <= horizon {
			delete(a.buckets, k)
		}
	}
}

// PopCompletedBucket returns and clears the prices of the interval right before
// now's interval. ok is false when no print arrived in it.
func (a *Aggregator) PopCompletedBucket(now time.Time) ([]float64, bool) {
	b, ok := a.pop(now)
	if !ok {
		return nil, false
	}

	return b.prices, true
}

// PopCompletedBar is PopCompletedBucket folded into a bar. Volume is the number of prints.
func (a *Aggregator) PopCompletedBar(now time.Time) (types.Bar, bool) {
	b, ok := a.pop(now)
	if !ok {
		return types.Bar{}, false
	}

	bar := types.Bar{
		Time:             a.BucketStart(now).Add(-a.width),
		Open:             b.prices[0],
		High:             slices.Max(b.prices),
		Low:              slices.Min(b.prices),
		Close:            b.prices[len(b.prices)-1],
		Volume:           int64(len(b.prices)),
		SourceContractID: a.contractID,
	}

	return bar.WithLocation(a.location), true
}

func (a *Aggregator) pop(now time.Time) (*bucket, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := a.key(now) - int64(a.width/time.Second)

	b, ok := a.buckets[k]
	if !ok || len(b.prices) == 0 {
		return nil, false
	}

	delete(a.buckets, k)

	return b, true
}

// LastPrice returns the price of the most recent print.
func (a *Aggregator) LastPrice() (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.lastPrice, a.hasPrice
}

// Pending returns how many buckets hold unread prints.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.buckets)
}
