// Package interval provides exact fixed-point arithmetic for nested-interval
// boundaries: sub-range allocation, affine remapping, and precision checks.
package interval

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultScale is the number of decimal places boundaries are quantized to.
// DynamoDB numbers carry 38 significant digits, so 20 fractional places
// leaves room for the integer part while staying exactly representable.
const DefaultScale int32 = 20

// ErrInsufficientPrecision is returned when a gap is too small to subdivide
// at the configured scale. Callers are expected to rebalance and retry.
var ErrInsufficientPrecision = errors.New("espalier: interval too small to subdivide at this scale")

// Interval is a pair of fixed-point boundaries with Lo < Hi.
type Interval struct {
	Lo decimal.Decimal
	Hi decimal.Decimal
}

// Width returns Hi - Lo.
func (iv Interval) Width() decimal.Decimal {
	return iv.Hi.Sub(iv.Lo)
}

// Contains reports whether other nests strictly inside iv.
func (iv Interval) Contains(other Interval) bool {
	return iv.Lo.LessThan(other.Lo) && other.Hi.LessThan(iv.Hi)
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s]", iv.Lo, iv.Hi)
}

// Allocator computes fresh sub-ranges between existing boundaries, always
// leaving margins on both sides so future neighbors remain insertable.
type Allocator struct {
	// Scale is the number of decimal places boundaries are quantized to.
	Scale int32
}

// NewAllocator returns an Allocator at the given scale, or DefaultScale
// if scale is not positive.
func NewAllocator(scale int32) Allocator {
	if scale <= 0 {
		scale = DefaultScale
	}
	return Allocator{Scale: scale}
}

// Step returns the smallest representable boundary increment at the
// allocator's scale.
func (a Allocator) Step() decimal.Decimal {
	return decimal.New(1, -a.Scale)
}

// RootInterval returns the default range assigned to a new root node.
func (a Allocator) RootInterval() Interval {
	return Interval{Lo: decimal.Zero, Hi: decimal.New(1, 0)}
}

// Allocate splits the gap (lower, upper) into a margin, a body of the given
// weight, and another margin, and returns the body. A weight of 1 yields a
// three-way split of comparable parts; a relocated subtree passes
// 1 + descendant count so it lands in a proportionally wider slot.
//
// Returns ErrInsufficientPrecision when the gap cannot hold a body with
// nonzero margins at the configured scale.
func (a Allocator) Allocate(lower, upper decimal.Decimal, weight int) (Interval, error) {
	if weight < 1 {
		weight = 1
	}
	gap := upper.Sub(lower)
	if gap.Sign() <= 0 {
		return Interval{}, ErrInsufficientPrecision
	}

	parts := decimal.NewFromInt(2*int64(weight) + 1)
	inc := gap.DivRound(parts, a.Scale+4).RoundDown(a.Scale)
	if inc.Sign() <= 0 {
		return Interval{}, ErrInsufficientPrecision
	}

	iv := Interval{Lo: lower.Add(inc), Hi: upper.Sub(inc)}
	if !iv.Lo.LessThan(iv.Hi) {
		return Interval{}, ErrInsufficientPrecision
	}
	return iv, nil
}

// Remap is an affine transform relocating boundaries from a source range
// into a destination range while preserving their relative order and
// nesting. A single Remap covers an entire moved subtree.
type Remap struct {
	srcLo   decimal.Decimal
	destLo  decimal.Decimal
	oldSize decimal.Decimal
	newSize decimal.Decimal
	scale   int32
}

// NewRemap builds a Remap carrying values from src into dest, quantized at
// the given scale.
func NewRemap(src, dest Interval, scale int32) Remap {
	if scale <= 0 {
		scale = DefaultScale
	}
	return Remap{
		srcLo:   src.Lo,
		destLo:  dest.Lo,
		oldSize: src.Width(),
		newSize: dest.Width(),
		scale:   scale,
	}
}

// Apply maps one boundary into the destination range. The source width is
// never zero for a well-formed interval, and rounding at the configured
// scale is monotone, so order among mapped values is preserved. Distinct
// inputs can still land on the same output when the destination is very
// tight; callers detect that and rebalance.
func (r Remap) Apply(v decimal.Decimal) decimal.Decimal {
	return v.Sub(r.srcLo).Mul(r.newSize).DivRound(r.oldSize, r.scale).Add(r.destLo)
}
