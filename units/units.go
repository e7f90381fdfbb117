// Package units implements the value federate manager's unit-conversion
// table: a small set of known units grouped by physical dimension, with
// a linear scale factor to a dimension-canonical base unit. Two units
// convert iff they share a dimension; otherwise registration fails with
// UNIT_MISMATCH.
//
// Grounded on AIStore's cos/size parsing (a name-to-scale-factor
// table driving one conversion function) generalized from "byte size
// suffixes" to "physical unit dimensions".
package units

import (
	"strings"

	"github.com/helioscore/cosim/cmn/cos"
)

type dimension int

const (
	dimNone dimension = iota
	dimVoltage
	dimCurrent
	dimPower
	dimTime
	dimAngle
)

type unitDef struct {
	dim   dimension
	scale float64 // multiply a value in this unit by scale to get the base unit
}

// table lists the units the runtime recognizes out of the box. Callers
// needing a unit outside this table register it via Register before any
// publication/input declares it.
var table = map[string]unitDef{
	"":   {dimNone, 1},
	"V":  {dimVoltage, 1},
	"kV": {dimVoltage, 1000},
	"mV": {dimVoltage, 0.001},
	"A":  {dimCurrent, 1},
	"kA": {dimCurrent, 1000},
	"mA": {dimCurrent, 0.001},
	"W":  {dimPower, 1},
	"kW": {dimPower, 1000},
	"MW": {dimPower, 1_000_000},
	"s":  {dimTime, 1},
	"ms": {dimTime, 0.001},
	"min": {dimTime, 60},
	"hr":  {dimTime, 3600},
	"deg": {dimAngle, 1},
	"rad": {dimAngle, 57.29577951308232},
}

// Register adds (or overrides) a unit in the conversion table.
func Register(name string, dim int, scaleToBase float64) {
	table[name] = unitDef{dim: dimension(dim), scale: scaleToBase}
}

// Compatible reports whether from and to belong to the same dimension,
// treating "" (unitless) as compatible only with "".
func Compatible(from, to string) bool {
	a, aok := table[from]
	b, bok := table[to]
	if !aok || !bok {
		return strings.EqualFold(from, to)
	}
	return a.dim == b.dim
}

// Factor returns the multiplicative factor to convert a value expressed
// in `from` into the equivalent value expressed in `to`. It returns an
// UNIT_MISMATCH error (and a zero factor) when the two units are not
// Compatible.
func Factor(from, to string) (float64, error) {
	if !Compatible(from, to) {
		return 0, cos.NewErrUnitMismatch(from, to)
	}
	a, aok := table[from]
	b, bok := table[to]
	if !aok || !bok {
		return 1, nil // both unregistered but string-equal: identity conversion
	}
	return a.scale / b.scale, nil
}

// Convert scales v from `from` units to `to` units.
func Convert(v float64, from, to string) (float64, error) {
	f, err := Factor(from, to)
	if err != nil {
		return 0, err
	}
	return v * f, nil
}
