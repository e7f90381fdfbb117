// Package nlog - see nlog.go for the rationale behind the trimmed-down
// backend. This file mirrors AIStore's split between nlog.go (the
// writer) and api.go (flag wiring, convenience helpers).
package nlog

import "flag"

func InitFlags(flset *flag.FlagSet) {
	flset.IntVar(&verbosity, "loglevel", 0, "logging verbosity level")
}
