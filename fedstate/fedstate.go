// Package fedstate implements the federate state machine: the monotonic
// STARTUP -> INITIALIZING -> EXECUTING -> FINALIZE/ERROR_STATE lifecycle
// shared by both execution styles (synchronous requestTime callers and
// callback-driven driver-thread federates), plus the async-call-pair
// guard that rejects a second API call while one is outstanding.
//
// Grounded on AIStore's atomic.Int32-backed refcount/state idiom
// (xact's quiescence counter) generalized from "active operation count"
// to "federate lifecycle state", and on stats/runner's single-dispatcher
// background-loop pattern for the callback-driven driver thread.
package fedstate

import (
	"github.com/helioscore/cosim/cmn/atomic"
	"github.com/helioscore/cosim/cmn/cos"
	"github.com/helioscore/cosim/ticks"
)

type Mode int32

const (
	Startup Mode = iota
	Initializing
	Executing
	Finalize
	ErrorState
)

func (m Mode) String() string {
	switch m {
	case Startup:
		return "STARTUP"
	case Initializing:
		return "INITIALIZING"
	case Executing:
		return "EXECUTING"
	case Finalize:
		return "FINALIZE"
	case ErrorState:
		return "ERROR_STATE"
	default:
		return "UNKNOWN"
	}
}

// IterationRequest is the flavor of iteration a requestTime call or
// enterExecutingMode call carries.
type IterationRequest int

const (
	NoIterations IterationRequest = iota
	IterateIfNeeded
	ForceIteration
	HaltOperations
	ErrorCondition
)

// IterationResult is what the time coordinator returns alongside a
// granted time.
type IterationResult int

const (
	NextStep IterationResult = iota
	Iterating
	Halted
	ErrorResult
)

// Grant pairs a granted time with the iteration outcome the coordinator
// reached at that time.
type Grant struct {
	Time  ticks.Time
	State IterationResult
}

// Coordinator is the subset of timecoord.Coordinator fedstate depends
// on, kept as an interface so tests can supply a fake without importing
// the time-coordination package (which itself imports fedstate for the
// Grant and IterationRequest types, so the dependency runs one way only
// and no import cycle arises).
type Coordinator interface {
	EnterInitializing() error
	EnterExecuting(iteration IterationRequest) (Grant, error)
	RequestTime(t ticks.Time, iteration IterationRequest) (Grant, error)
	Disconnect()
}

// asyncToken is the task handle an Async call returns; Complete consumes
// it. Any other API call while a token is outstanding is rejected with
// CONCURRENT_OPERATION.
type asyncToken struct {
	done chan Grant
	err  error
}

// Callbacks is the explicit configuration struct a callback-driven
// federate installs at construction. The driver loop dispatches by
// state, invoking whichever of these is non-nil around each transition.
type Callbacks struct {
	OnInitialize       func() error
	OnExecutingEntry   func()
	OnTimeRequestReturn func(Grant)
	OnNextTime         func(current ticks.Time) (next ticks.Time, iteration IterationRequest)
	OnFinalize         func()
	OnError            func(error)
}

// Federate is the state machine plus the single outstanding-async-call
// guard. It is not thread-safe across API callers: the owner MUST
// externally serialize calls the way a single API thread naturally does.
type Federate struct {
	Name  string
	coord Coordinator
	cb    *Callbacks

	mode    atomic.Int64 // holds a Mode
	pending *asyncToken  // non-nil while an async call is outstanding
}

func New(name string, coord Coordinator, cb *Callbacks) *Federate {
	f := &Federate{Name: name, coord: coord, cb: cb}
	f.mode.Store(int64(Startup))
	return f
}

func (f *Federate) Mode() Mode { return Mode(f.mode.Load()) }

func (f *Federate) checkNotAsync() error {
	if f.pending != nil {
		return cos.NewErrConcurrentOp(f.Name)
	}
	return nil
}

// EnterInitializingMode transitions STARTUP -> INITIALIZING.
func (f *Federate) EnterInitializingMode() error {
	if err := f.checkNotAsync(); err != nil {
		return err
	}
	if f.Mode() != Startup {
		return cos.NewErrConcurrentOp("enterInitializingMode: not in STARTUP")
	}
	if err := f.coord.EnterInitializing(); err != nil {
		f.setError(err)
		return err
	}
	f.mode.Store(int64(Initializing))
	if f.cb != nil && f.cb.OnInitialize != nil {
		if err := f.cb.OnInitialize(); err != nil {
			f.setError(err)
			return cos.NewErrUserException(err)
		}
	}
	return nil
}

// EnterExecutingMode transitions INITIALIZING -> EXECUTING (next_step),
// or stays in INITIALIZING for an iteration at t=0.
func (f *Federate) EnterExecutingMode(iteration IterationRequest) (Grant, error) {
	if err := f.checkNotAsync(); err != nil {
		return Grant{}, err
	}
	if f.Mode() != Initializing {
		return Grant{}, cos.NewErrConcurrentOp("enterExecutingMode: not in INITIALIZING")
	}
	grant, err := f.coord.EnterExecuting(iteration)
	if err != nil {
		f.setError(err)
		return Grant{}, err
	}
	if grant.State != Iterating {
		f.mode.Store(int64(Executing))
		if f.cb != nil && f.cb.OnExecutingEntry != nil {
			f.cb.OnExecutingEntry()
		}
	}
	return grant, nil
}

// RequestTime is the synchronous form: it blocks (via coord.RequestTime)
// until the coordinator grants, and only moves `t > current`, or `t ==
// current` when iterating.
func (f *Federate) RequestTime(t ticks.Time, iteration IterationRequest) (Grant, error) {
	if err := f.checkNotAsync(); err != nil {
		return Grant{}, err
	}
	if f.Mode() != Executing {
		return Grant{}, cos.NewErrConcurrentOp("requestTime: not in EXECUTING")
	}
	grant, err := f.coord.RequestTime(t, iteration)
	if err != nil {
		f.setError(err)
		return Grant{}, err
	}
	if f.cb != nil && f.cb.OnTimeRequestReturn != nil {
		f.cb.OnTimeRequestReturn(grant)
	}
	if grant.State == Halted {
		f.mode.Store(int64(Finalize))
	}
	return grant, nil
}

// RequestTimeAsync releases the caller immediately with a task handle;
// RequestTimeComplete blocks on it. Any other API call while the handle
// is outstanding returns CONCURRENT_OPERATION.
func (f *Federate) RequestTimeAsync(t ticks.Time, iteration IterationRequest) error {
	if err := f.checkNotAsync(); err != nil {
		return err
	}
	if f.Mode() != Executing {
		return cos.NewErrConcurrentOp("requestTimeAsync: not in EXECUTING")
	}
	tok := &asyncToken{done: make(chan Grant, 1)}
	f.pending = tok
	go func() {
		grant, err := f.coord.RequestTime(t, iteration)
		tok.err = err
		tok.done <- grant
	}()
	return nil
}

func (f *Federate) RequestTimeComplete() (Grant, error) {
	tok := f.pending
	if tok == nil {
		return Grant{}, cos.NewErrConcurrentOp("requestTimeComplete: no async call outstanding")
	}
	grant := <-tok.done
	err := tok.err
	f.pending = nil
	if err != nil {
		f.setError(err)
		return Grant{}, err
	}
	if grant.State == Halted {
		f.mode.Store(int64(Finalize))
	}
	return grant, nil
}

// Finalize is permitted from any non-terminal state.
func (f *Federate) Finalize() {
	m := f.Mode()
	if m == Finalize || m == ErrorState {
		return
	}
	f.coord.Disconnect()
	f.mode.Store(int64(Finalize))
	if f.cb != nil && f.cb.OnFinalize != nil {
		f.cb.OnFinalize()
	}
}

// setError is the absorbing ERROR_STATE transition, permitted from any
// state and never reversed.
func (f *Federate) setError(cause error) {
	f.mode.Store(int64(ErrorState))
	if f.cb != nil && f.cb.OnError != nil {
		f.cb.OnError(cause)
	}
}

// RunDriver is the callback-driven execution style's internal loop: it
// calls enterInitializingMode, enterExecutingMode, then repeatedly asks
// OnNextTime for the next requested time and requests it, invoking
// OnTimeRequestReturn around each grant, until mode reaches FINALIZE or
// ERROR_STATE. The caller runs this in its own driver goroutine.
func (f *Federate) RunDriver() {
	if err := f.EnterInitializingMode(); err != nil {
		return
	}
	if _, err := f.EnterExecutingMode(NoIterations); err != nil {
		return
	}
	current := ticks.TimeZero
	for {
		m := f.Mode()
		if m == Finalize || m == ErrorState {
			return
		}
		if f.cb == nil || f.cb.OnNextTime == nil {
			return
		}
		next, iteration := f.cb.OnNextTime(current)
		grant, err := f.RequestTime(next, iteration)
		if err != nil {
			return
		}
		current = grant.Time
		if grant.State == Halted || grant.State == ErrorResult {
			return
		}
	}
}
