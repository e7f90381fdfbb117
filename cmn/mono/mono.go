// Package mono provides a low-level monotonic clock. The housekeeper (hk)
// schedules its callbacks off of this instead of time.Now(), which is both
// slower and, on some platforms, non-monotonic.
package mono

import (
	"time"
	_ "unsafe" // for go:linkname
)

// NanoTime returns nanoseconds elapsed since an arbitrary, process-local
// epoch. Only ever used for computing differences between two calls.
//
//go:linkname NanoTime runtime.nanotime
func NanoTime() int64

// Since is a convenience wrapper for the common "how long has it been since
// t0" pattern, t0 obtained from a prior NanoTime() call.
func Since(t0 int64) time.Duration { return time.Duration(NanoTime() - t0) }
