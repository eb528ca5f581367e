package interval

import "github.com/shopspring/decimal"

// DefaultHeadroom is the minimum interval width, in smallest representable
// steps, below which a range is considered too tight. Eight steps keep at
// least three further halvings representable.
const DefaultHeadroom int64 = 8

// Monitor judges whether a range still has enough room to subdivide.
// It is consulted immediately after a range is computed, never after the
// fact, so exhaustion is caught before any invariant can break.
type Monitor struct {
	// Scale is the number of decimal places boundaries are quantized to.
	Scale int32

	// Headroom is the tightness threshold in smallest-step units.
	Headroom int64
}

// NewMonitor returns a Monitor at the given scale and headroom, applying
// defaults for non-positive values.
func NewMonitor(scale int32, headroom int64) Monitor {
	if scale <= 0 {
		scale = DefaultScale
	}
	if headroom <= 0 {
		headroom = DefaultHeadroom
	}
	return Monitor{Scale: scale, Headroom: headroom}
}

// IsTight reports whether the interval's width, measured in smallest
// representable steps at the monitor's scale, falls below the headroom
// threshold.
func (m Monitor) IsTight(iv Interval) bool {
	steps := iv.Width().Shift(m.Scale)
	return steps.Cmp(decimal.NewFromInt(m.Headroom)) < 0
}
