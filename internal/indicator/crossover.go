package indicator

import "github.com/moznion/go-optional"

// CrossedAbove reports fast > slow on the current bar when fast was not above slow on the
// previous bar. A previous bar without both values counts as not above, so the first bar
// with both averages defined can cross. A current bar without both values never crosses.
func CrossedAbove(prevFast, prevSlow, fast, slow optional.Option[float64]) bool {
	if fast.IsNone() || slow.IsNone() || fast.Unwrap() <= slow.Unwrap() {
		return false
	}

	return prevFast.IsNone() || prevSlow.IsNone() || prevFast.Unwrap() <= prevSlow.Unwrap()
}

// CrossedBelow is the inverse of CrossedAbove.
func CrossedBelow(prevFast, prevSlow, fast, slow optional.Option[float64]) bool {
	if fast.IsNone() || slow.IsNone() || fast.Unwrap() >= slow.Unwrap() {
		return false
	}

	return prevFast.IsNone() || prevSlow.IsNone() || prevFast.Unwrap() >= prevSlow.Unwrap()
}
