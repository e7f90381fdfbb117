// Package valuefed implements the Value Federate Manager: a federate's
// publications and inputs, change detection, multi-input aggregation,
// unit conversion and type coercion. Owned by the federate's API thread
// for reads and the dispatcher for writes (see fedstate), with a single
// bounded per-input value buffer mediating the two.
//
// Grounded on xact/xreg's name-keyed, RWMutex-guarded registry idiom
// (monotonic handle allocation, lookup-or-register-by-key) for the
// publication/input tables, generalized to per-handle is-updated and
// sticky-error bits kept per input.
package valuefed

import (
	"sync"

	"github.com/helioscore/cosim/cmn/cos"
	"github.com/helioscore/cosim/ticks"
	"github.com/helioscore/cosim/units"
	"github.com/helioscore/cosim/wire"
)

// AggMethod is a multi-input reduction method, configurable per input
// and immutable once the federate is executing.
type AggMethod int

const (
	AggNoOp AggMethod = iota
	AggVectorize
	AggAnd
	AggOr
	AggSum
	AggDiff
	AggMax
	AggMin
	AggAverage
	AggPriority
)

// sourceValue is one arrived-at-a-time value from one source of an
// input, kept so aggregation can be recomputed whenever a new source
// value supersedes the old one at the same or a later time.
type sourceValue struct {
	handle wire.InterfaceHandle // the publication handle this value came from
	value  any
	time   ticks.Time
}

type Publication struct {
	Key          string
	Handle       wire.InterfaceHandle
	Type         string
	Units        string
	lastValue    any  // value passed to the immediately preceding Publish call
	lastHasValue bool
	Targets      []wire.InterfaceHandle
}

type Input struct {
	Key           string
	Handle        wire.InterfaceHandle
	Type          string
	Units         string
	Method        AggMethod
	PriorityIdx   int
	MinimumChange float64 // 0 by default: suppresses only a bitwise-unchanged republish, to this input alone
	Sources       []wire.InterfaceHandle // registration order; index is the priority index for AggPriority
	sourceUnits   map[wire.InterfaceHandle]string
	values        map[wire.InterfaceHandle]sourceValue
	updated       bool
	errorSticky   bool
}

// Manager owns one federate's publications and inputs.
type Manager struct {
	mu           sync.Mutex
	pubs         map[string]*Publication
	pubsByHandle map[wire.InterfaceHandle]*Publication
	inputs       map[string]*Input
	inputsByH    map[wire.InterfaceHandle]*Input
	nextHandle   wire.InterfaceHandle
	now          ticks.Time
}

func NewManager() *Manager {
	return &Manager{
		pubs:         make(map[string]*Publication),
		pubsByHandle: make(map[wire.InterfaceHandle]*Publication),
		inputs:       make(map[string]*Input),
		inputsByH:    make(map[wire.InterfaceHandle]*Input),
	}
}

// SetGrantedTime is called by the dispatcher after each time grant so
// Publish stamps values with the federate's current authoritative time.
func (m *Manager) SetGrantedTime(t ticks.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

func (m *Manager) allocHandle() wire.InterfaceHandle {
	m.nextHandle++
	return m.nextHandle
}

// RegisterPublication allocates a handle for key, failing with
// NAME_COLLISION on a duplicate key within this federate.
func (m *Manager) RegisterPublication(key, typ, unit string) (*Publication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pubs[key]; ok {
		return nil, cos.NewErrNameCollision(key)
	}
	p := &Publication{Key: key, Handle: m.allocHandle(), Type: typ, Units: unit}
	m.pubs[key] = p
	m.pubsByHandle[p.Handle] = p
	return p, nil
}

func (m *Manager) RegisterInput(key, typ, unit string, method AggMethod) (*Input, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inputs[key]; ok {
		return nil, cos.NewErrNameCollision(key)
	}
	in := &Input{
		Key: key, Handle: m.allocHandle(), Type: typ, Units: unit, Method: method,
		sourceUnits: make(map[wire.InterfaceHandle]string),
		values:      make(map[wire.InterfaceHandle]sourceValue),
	}
	m.inputs[key] = in
	m.inputsByH[in.Handle] = in
	return in, nil
}

// SetMinimumChange sets this input's own change-detection threshold: a
// value published by a source is delivered to this input only if it
// differs from that publication's immediately preceding Publish value by
// more than delta. Two inputs subscribed to the same publication judge
// suppression independently, each with its own threshold against that
// shared preceding value.
func (in *Input) SetMinimumChange(delta float64) {
	in.MinimumChange = delta
}

// AddTarget links an input to a publication handle, registering the
// publication's declared units against the input's own so Convert later
// has both sides. Fails with UNIT_MISMATCH if the units are incompatible.
func (m *Manager) AddTarget(in *Input, pubHandle wire.InterfaceHandle, pubUnits string) error {
	if !units.Compatible(pubUnits, in.Units) {
		return cos.NewErrUnitMismatch(pubUnits, in.Units)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	in.Sources = append(in.Sources, pubHandle)
	in.sourceUnits[pubHandle] = pubUnits
	return nil
}

// shouldSuppressDelta reports whether newValue differs from lastValue
// by no more than delta, the per-target change-detection test: each
// Input brings its own delta, compared against the same immediately
// preceding Publish call's value shared by every target of a
// publication. Suppression is evaluated numerically; non-numeric types
// (pure strings, vectors used structurally rather than as magnitudes)
// always go through, since a value this can't coerce to a comparable
// double can't be compared.
func shouldSuppressDelta(lastValue any, lastHasValue bool, newValue any, delta float64) bool {
	if !lastHasValue {
		return false
	}
	last, err := CoerceToDouble(lastValue)
	if err != nil {
		return false
	}
	cur, err := CoerceToDouble(newValue)
	if err != nil {
		return false
	}
	diff := cur - last
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}

// Publish stamps value with the manager's current granted time and fans
// it out to every Input target that has registered against this
// publication's handle, independently deciding per target whether that
// target's own change-detection threshold suppresses this particular
// delivery - each target's diff is measured against the same
// immediately preceding Publish call's value, but judged against that
// target's own MinimumChange, so two inputs subscribed to the same
// publication can see different update patterns from the same sequence
// of Publish calls. The return value reports whether every target
// suppressed the value (vacuously true if there are no targets).
func (m *Manager) Publish(p *Publication, value any) (suppressed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at := m.now
	delivered := false
	for _, target := range p.Targets {
		in, ok := m.inputsByH[target]
		if !ok {
			continue
		}
		if shouldSuppressDelta(p.lastValue, p.lastHasValue, value, in.MinimumChange) {
			continue
		}
		in.values[p.Handle] = sourceValue{handle: p.Handle, value: value, time: at}
		in.updated = true
		delivered = true
	}
	p.lastValue = value
	p.lastHasValue = true
	return !delivered
}

// LinkTarget records p -> target so future Publish calls fan out to it;
// linking the same target twice has no further effect.
func (p *Publication) LinkTarget(target wire.InterfaceHandle) {
	for _, t := range p.Targets {
		if t == target {
			return // idempotent: already linked
		}
	}
	p.Targets = append(p.Targets, target)
}

// IsUpdated reports whether at least one new source value has arrived
// for in since the last GetValue.
func (m *Manager) IsUpdated(in *Input) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return in.updated
}

// GetValue returns the input's current aggregated value converted to
// float64 and clears its updated flag. Unit conversion from each
// source's declared units to the input's own is applied before
// aggregation.
func (m *Manager) GetValue(in *Input) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in.updated = false
	return aggregate(in)
}

// convertedElements returns one source's contribution after unit conversion:
// either a single scalar, or - for vector-valued sources under a
// reduction method that expands them elementwise - several.
func convertedElements(in *Input, h wire.InterfaceHandle) []float64 {
	sv, ok := in.values[h]
	if !ok {
		return nil
	}
	srcUnit := in.sourceUnits[h]
	if vec, err := CoerceToVector(sv.value); err == nil && isVectorValue(sv.value) {
		out := make([]float64, 0, len(vec))
		for _, d := range vec {
			conv, err := units.Convert(d, srcUnit, in.Units)
			if err != nil {
				in.errorSticky = true
				continue
			}
			out = append(out, conv)
		}
		return out
	}
	d, err := CoerceToDouble(sv.value)
	if err != nil {
		in.errorSticky = true
		return nil
	}
	conv, err := units.Convert(d, srcUnit, in.Units)
	if err != nil {
		in.errorSticky = true
		return nil
	}
	return []float64{conv}
}

func isVectorValue(v any) bool {
	_, ok := v.([]float64)
	return ok
}

// aggregate applies in.Method across its sources, expanding
// vector-valued sources elementwise for the numeric reduction methods
// (SUM/DIFF/MAX/MIN/AVERAGE) as the promotion matrix requires, and
// collapsing to a single representative value for NO_OP/AND/OR/PRIORITY.
func aggregate(in *Input) (float64, error) {
	if len(in.Sources) == 0 {
		return 0, nil
	}
	switch in.Method {
	case AggNoOp:
		var last float64
		var sawAny bool
		for _, h := range in.Sources {
			if els := convertedElements(in, h); len(els) > 0 {
				last = els[len(els)-1]
				sawAny = true
			}
		}
		if !sawAny {
			return 0, nil
		}
		return last, nil
	case AggAnd, AggOr:
		var sawAny bool
		for _, h := range in.Sources {
			els := convertedElements(in, h)
			for _, v := range els {
				sawAny = true
				if in.Method == AggOr && v != 0 {
					return 1, nil
				}
				if in.Method == AggAnd && v == 0 {
					return 0, nil
				}
			}
		}
		if !sawAny {
			return 0, nil
		}
		if in.Method == AggAnd {
			return 1, nil
		}
		return 0, nil
	case AggPriority:
		if in.PriorityIdx < len(in.Sources) {
			if els := convertedElements(in, in.Sources[in.PriorityIdx]); len(els) > 0 {
				return els[len(els)-1], nil
			}
		}
		for _, h := range in.Sources {
			if els := convertedElements(in, h); len(els) > 0 {
				return els[0], nil
			}
		}
		return 0, nil
	case AggVectorize:
		var flat []float64
		for _, h := range in.Sources {
			flat = append(flat, convertedElements(in, h)...)
		}
		return norm2(flat), nil
	default: // AggSum, AggDiff, AggMax, AggMin, AggAverage
		var flat []float64
		for _, h := range in.Sources {
			flat = append(flat, convertedElements(in, h)...)
		}
		if len(flat) == 0 {
			return 0, nil
		}
		switch in.Method {
		case AggSum:
			var s float64
			for _, v := range flat {
				s += v
			}
			return s, nil
		case AggDiff:
			d := flat[0]
			for _, v := range flat[1:] {
				d -= v
			}
			return d, nil
		case AggMax:
			mx := flat[0]
			for _, v := range flat[1:] {
				if v > mx {
					mx = v
				}
			}
			return mx, nil
		case AggMin:
			mn := flat[0]
			for _, v := range flat[1:] {
				if v < mn {
					mn = v
				}
			}
			return mn, nil
		case AggAverage:
			var s float64
			for _, v := range flat {
				s += v
			}
			return s / float64(len(flat)), nil
		default:
			return flat[len(flat)-1], nil
		}
	}
}

// GetVector returns the AggVectorize result as an ordered vector keyed
// by source registration order, rather than collapsed to a norm.
func (m *Manager) GetVector(in *Input) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	in.updated = false
	out := make([]float64, 0, len(in.Sources))
	for _, h := range in.Sources {
		sv, ok := in.values[h]
		if !ok {
			continue
		}
		d, err := CoerceToDouble(sv.value)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out
}
