package fedstate

import (
	"errors"
	"testing"

	"github.com/helioscore/cosim/ticks"
)

// fakeCoord is a minimal Coordinator that answers RequestTime with its
// scripted grants in order, then halts at the requested time once they
// run out.
type fakeCoord struct {
	enterInitErr error
	enterExecErr error
	grants       []Grant
	idx          int
	disconnected bool
}

func (f *fakeCoord) EnterInitializing() error { return f.enterInitErr }

func (f *fakeCoord) EnterExecuting(IterationRequest) (Grant, error) {
	if f.enterExecErr != nil {
		return Grant{}, f.enterExecErr
	}
	return Grant{Time: ticks.TimeZero, State: NextStep}, nil
}

func (f *fakeCoord) RequestTime(t ticks.Time, _ IterationRequest) (Grant, error) {
	if f.idx < len(f.grants) {
		g := f.grants[f.idx]
		f.idx++
		return g, nil
	}
	return Grant{Time: t, State: Halted}, nil
}

func (f *fakeCoord) Disconnect() { f.disconnected = true }

func TestLifecycleHappyPath(t *testing.T) {
	coord := &fakeCoord{grants: []Grant{{Time: ticks.Time(1), State: NextStep}}}
	f := New("fed1", coord, nil)

	if f.Mode() != Startup {
		t.Fatalf("want STARTUP, got %v", f.Mode())
	}
	if err := f.EnterInitializingMode(); err != nil {
		t.Fatal(err)
	}
	if f.Mode() != Initializing {
		t.Fatalf("want INITIALIZING, got %v", f.Mode())
	}
	if _, err := f.EnterExecutingMode(NoIterations); err != nil {
		t.Fatal(err)
	}
	if f.Mode() != Executing {
		t.Fatalf("want EXECUTING, got %v", f.Mode())
	}
	grant, err := f.RequestTime(ticks.Time(1), NoIterations)
	if err != nil {
		t.Fatal(err)
	}
	if grant.Time != ticks.Time(1) {
		t.Fatalf("got %v", grant.Time)
	}
	f.Finalize()
	if f.Mode() != Finalize {
		t.Fatalf("want FINALIZE, got %v", f.Mode())
	}
	if !coord.disconnected {
		t.Fatal("expected Disconnect to be called")
	}
}

func TestRequestTimeRejectedOutsideExecuting(t *testing.T) {
	coord := &fakeCoord{}
	f := New("fed1", coord, nil)
	if _, err := f.RequestTime(ticks.Time(1), NoIterations); err == nil {
		t.Fatal("expected error requesting time from STARTUP")
	}
}

func TestAsyncPairRejectsConcurrentCall(t *testing.T) {
	coord := &fakeCoord{grants: []Grant{{Time: ticks.Time(1), State: NextStep}}}
	f := New("fed1", coord, nil)
	if err := f.EnterInitializingMode(); err != nil {
		t.Fatal(err)
	}
	if _, err := f.EnterExecutingMode(NoIterations); err != nil {
		t.Fatal(err)
	}
	if err := f.RequestTimeAsync(ticks.Time(1), NoIterations); err != nil {
		t.Fatal(err)
	}
	if err := f.RequestTimeAsync(ticks.Time(2), NoIterations); err == nil {
		t.Fatal("expected CONCURRENT_OPERATION on second async call")
	}
	if _, err := f.RequestTimeComplete(); err != nil {
		t.Fatal(err)
	}
}

func TestInitializeFailureEntersErrorState(t *testing.T) {
	coord := &fakeCoord{enterInitErr: errors.New("boom")}
	f := New("fed1", coord, nil)
	if err := f.EnterInitializingMode(); err == nil {
		t.Fatal("expected error")
	}
	if f.Mode() != ErrorState {
		t.Fatalf("want ERROR_STATE, got %v", f.Mode())
	}
}

func TestHaltedGrantEntersFinalize(t *testing.T) {
	coord := &fakeCoord{grants: []Grant{{Time: ticks.Time(5), State: Halted}}}
	f := New("fed1", coord, nil)
	if err := f.EnterInitializingMode(); err != nil {
		t.Fatal(err)
	}
	if _, err := f.EnterExecutingMode(NoIterations); err != nil {
		t.Fatal(err)
	}
	grant, err := f.RequestTime(ticks.Time(5), NoIterations)
	if err != nil {
		t.Fatal(err)
	}
	if grant.State != Halted {
		t.Fatalf("got %v", grant.State)
	}
	if f.Mode() != Finalize {
		t.Fatalf("want FINALIZE after halted grant, got %v", f.Mode())
	}
}

func TestCallbackDriverRuns(t *testing.T) {
	coord := &fakeCoord{grants: []Grant{
		{Time: ticks.Time(1), State: NextStep},
		{Time: ticks.Time(2), State: NextStep},
		{Time: ticks.Time(3), State: Halted},
	}}
	var seen []ticks.Time
	cb := &Callbacks{
		OnNextTime: func(current ticks.Time) (ticks.Time, IterationRequest) {
			return current + 1, NoIterations
		},
		OnTimeRequestReturn: func(g Grant) {
			seen = append(seen, g.Time)
		},
	}
	f := New("fed1", coord, cb)
	f.RunDriver()
	if f.Mode() != Finalize {
		t.Fatalf("want FINALIZE, got %v", f.Mode())
	}
	if len(seen) != 3 {
		t.Fatalf("want 3 grants observed, got %d: %v", len(seen), seen)
	}
}
