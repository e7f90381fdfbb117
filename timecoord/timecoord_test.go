package timecoord

import (
	"sync"
	"testing"
	"time"

	"github.com/helioscore/cosim/fedstate"
	"github.com/helioscore/cosim/ticks"
	"github.com/helioscore/cosim/wire"
)

type recordingBroadcaster struct {
	mu       sync.Mutex
	requests []ticks.Time
	grants   []ticks.Time
}

func (r *recordingBroadcaster) BroadcastTimeRequest(t ticks.Time, _ bool) {
	r.mu.Lock()
	r.requests = append(r.requests, t)
	r.mu.Unlock()
}
func (r *recordingBroadcaster) BroadcastTimeGrant(t ticks.Time) {
	r.mu.Lock()
	r.grants = append(r.grants, t)
	r.mu.Unlock()
}
func (r *recordingBroadcaster) BroadcastDisconnect() {}

func TestGrantsImmediatelyWithNoDependencies(t *testing.T) {
	c := New(&recordingBroadcaster{})
	grant, err := c.RequestTime(ticks.Time(10), fedstate.NoIterations)
	if err != nil {
		t.Fatal(err)
	}
	if grant.Time != ticks.Time(10) || grant.State != fedstate.NextStep {
		t.Fatalf("got %+v", grant)
	}
}

func TestBlocksUntilDependencyAdvances(t *testing.T) {
	b := &recordingBroadcaster{}
	c := New(b)
	dep := wire.FederateID(1)
	c.AddDependency(dep)

	done := make(chan fedstate.Grant, 1)
	go func() {
		g, err := c.RequestTime(ticks.Time(5), fedstate.NoIterations)
		if err != nil {
			t.Error(err)
		}
		done <- g
	}()

	select {
	case <-done:
		t.Fatal("should not have granted before dependency advanced")
	case <-time.After(50 * time.Millisecond):
	}

	c.UpdateDependency(dep, ticks.Time(5), false)

	select {
	case g := <-done:
		if g.Time != ticks.Time(5) {
			t.Fatalf("got %+v", g)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for grant after dependency advanced")
	}
}

func TestStopTimeCapsCandidate(t *testing.T) {
	c := New(&recordingBroadcaster{})
	c.SetStopTime(ticks.Time(3))
	grant, _ := c.RequestTime(ticks.Time(100), fedstate.NoIterations)
	if grant.Time != ticks.Time(3) {
		t.Fatalf("want capped at stop time 3, got %v", grant.Time)
	}
}

func TestPeriodRoundsUpCandidate(t *testing.T) {
	c := New(&recordingBroadcaster{})
	c.SetPeriod(ticks.Time(5), ticks.TimeZero)
	grant, _ := c.RequestTime(ticks.Time(7), fedstate.NoIterations)
	if grant.Time != ticks.Time(10) {
		t.Fatalf("want rounded up to 10, got %v", grant.Time)
	}
}

func TestDisconnectUnblocksWaitingPeer(t *testing.T) {
	b := &recordingBroadcaster{}
	c := New(b)
	dep := wire.FederateID(9)
	c.AddDependency(dep)

	done := make(chan fedstate.Grant, 1)
	go func() {
		g, _ := c.RequestTime(ticks.Time(100), fedstate.NoIterations)
		done <- g
	}()

	time.Sleep(50 * time.Millisecond)
	c.Disconnect(dep)

	select {
	case g := <-done:
		if g.Time != ticks.Time(100) {
			t.Fatalf("got %+v", g)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for grant after dependency disconnected")
	}
}

func TestIterateIfNeededConvergesWhenDependencyStopsIterating(t *testing.T) {
	b := &recordingBroadcaster{}
	c := New(b)
	dep := wire.FederateID(2)
	c.AddDependency(dep)
	c.UpdateDependency(dep, ticks.Time(5), true) // dependency reports iterating at t=5

	grant, _ := c.RequestTime(ticks.Time(5), fedstate.IterateIfNeeded)
	if grant.State != fedstate.Iterating {
		t.Fatalf("want ITERATING while dependency is iterating, got %+v", grant)
	}

	c.UpdateDependency(dep, ticks.Time(5), false) // dependency converges
	grant, _ = c.RequestTime(ticks.Time(5), fedstate.IterateIfNeeded)
	if grant.State != fedstate.NextStep {
		t.Fatalf("want NEXT_STEP once dependency stops iterating, got %+v", grant)
	}
}

func TestEventTriggeredDefaultsToTimeMax(t *testing.T) {
	c := New(&recordingBroadcaster{})
	c.SetEventTriggered(true)
	grant, _ := c.RequestTime(ticks.TimeZero, fedstate.NoIterations)
	if grant.Time != ticks.TimeMax {
		t.Fatalf("want timeMax candidate for event-triggered federate, got %v", grant.Time)
	}
}
