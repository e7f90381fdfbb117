// Package ticks implements the runtime's Time model: an integer count of
// base-unit ticks (nanosecond resolution by convention), with saturating
// arithmetic around two sentinels, TimeZero and TimeMax.
//
// Grounded on cmn/mono's int64-nanosecond convention, generalized from "a
// monotonic clock reading" to "an opaque simulation tick count" - the two
// are the same representation, but ticks.Time is compared/added/rounded by
// the time coordinator, never read off a wall clock.
package ticks

import (
	"fmt"
	"math"
)

// Time is a signed count of base-unit ticks. math.MaxInt64 is reserved as
// TimeMax and must never be the result of ordinary arithmetic: all
// arithmetic below saturates at it instead of overflowing past it.
type Time int64

const (
	TimeZero Time = 0
	TimeMax  Time = math.MaxInt64
)

func (t Time) String() string {
	if t == TimeMax {
		return "timeMax"
	}
	return fmt.Sprintf("%d", int64(t))
}

func (t Time) Compare(o Time) int {
	switch {
	case t < o:
		return -1
	case t > o:
		return 1
	default:
		return 0
	}
}

func (t Time) Less(o Time) bool    { return t < o }
func (t Time) LessEq(o Time) bool  { return t <= o }
func (t Time) Greater(o Time) bool { return t > o }

func Max(a, b Time) Time {
	if a > b {
		return a
	}
	return b
}

func Min(a, b Time) Time {
	if a < b {
		return a
	}
	return b
}

// Add saturates at TimeMax: once either operand is TimeMax, or the sum
// would overflow past it, the result is TimeMax. This is what lets a
// federate's declared lookahead be added to TimeMax without wrapping
// negative.
func Add(t, delta Time) Time {
	if t == TimeMax || delta == TimeMax {
		return TimeMax
	}
	sum := int64(t) + int64(delta)
	if sum < int64(t) || Time(sum) >= TimeMax { // overflow or saturation
		return TimeMax
	}
	return Time(sum)
}

// Sub never goes below TimeZero when the minuend is TimeMax and the
// subtrahend is finite (TimeMax - finite == TimeMax, since "at most
// TimeMax" minus a bounded delta is still "effectively unbounded").
func Sub(t, delta Time) Time {
	if t == TimeMax {
		return TimeMax
	}
	if delta == TimeMax {
		return TimeZero
	}
	d := int64(t) - int64(delta)
	if d < 0 {
		return TimeZero
	}
	return Time(d)
}

// RoundUpPeriod returns the least `offset + k*period >= t`. period <= 0
// is treated as "no period constraint" and t is returned unchanged.
func RoundUpPeriod(t, period, offset Time) Time {
	if period <= 0 || t == TimeMax {
		return t
	}
	if t <= offset {
		return offset
	}
	delta := int64(t - offset)
	p := int64(period)
	k := (delta + p - 1) / p
	return offset + Time(k*p)
}

// FromNanos/Nanos convert between int64 nanoseconds and ticks at the
// edges (CLI flags, test fixtures) while the coordinator stays in raw
// ticks.
func FromNanos(ns int64) Time { return Time(ns) }
func (t Time) Nanos() int64   { return int64(t) }
