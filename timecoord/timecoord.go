// Package timecoord implements the distributed time-coordination
// algorithm: the per-federate table of dependency grant times, the
// requestTime candidate/broadcast/block/grant cycle, iteration
// resolution, period/stop-time rounding, and disconnect cancellation.
//
// Grounded on transport/shm's BlockingPriorityQueue condition-variable
// discipline (one mutex, one sync.Cond, all state transitions made
// under the lock before Broadcast) generalized from "queue became
// non-empty" to "a dependency's table entry advanced enough to
// re-evaluate the grant condition".
package timecoord

import (
	"sync"

	"github.com/helioscore/cosim/fedstate"
	"github.com/helioscore/cosim/ticks"
	"github.com/helioscore/cosim/wire"
)

// Broadcaster is the coordinator's only outward-facing collaborator: it
// fans TIME_REQUEST/TIME_GRANT/DISCONNECT frames to the federate's
// dependents (and, for a child coordinator, up toward the root). Owned
// by the broker layer; a unit test can supply a recording fake.
type Broadcaster interface {
	BroadcastTimeRequest(candidate ticks.Time, iterating bool)
	BroadcastTimeGrant(t ticks.Time)
	BroadcastDisconnect()
}

// dependency is one table row: a federate this coordinator's federate
// depends on (a source of one of its inputs or endpoints).
type dependency struct {
	fed         wire.FederateID
	grantedTime ticks.Time // last_known_min_time: dependency_granted_time
	minNextTime ticks.Time
	iterating   bool
}

// Coordinator holds exactly one federate's dependency table and grant
// state. All exported methods may be called concurrently; RequestTime
// blocks the calling goroutine until a grant is reached.
type Coordinator struct {
	mu   sync.Mutex
	cond *sync.Cond

	broadcaster Broadcaster
	deps        map[wire.FederateID]*dependency

	// dependentsIterating tracks, per dependent federate (a consumer of
	// this federate's outputs), whether it last reported ITERATING at
	// the current candidate time — a dependent's iteration also forces
	// this federate to iterate, per the fixed-point convergence rule.
	dependentsIterating map[wire.FederateID]bool

	currentGranted ticks.Time
	nextRequested  ticks.Time

	period         ticks.Time
	offset         ticks.Time
	stopTime       ticks.Time
	lookahead      ticks.Time
	eventTriggered bool

	// InputsChanged, if set, reports whether any of the federate's
	// inputs received a new value since the last grant — one of the
	// three triggers for ITERATING under ITERATE_IF_NEEDED.
	InputsChanged func() bool

	disconnected bool
}

func New(b Broadcaster) *Coordinator {
	c := &Coordinator{
		broadcaster:          b,
		deps:                 make(map[wire.FederateID]*dependency),
		dependentsIterating:  make(map[wire.FederateID]bool),
		currentGranted:       ticks.TimeZero,
		stopTime:             ticks.TimeMax,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *Coordinator) SetPeriod(period, offset ticks.Time) {
	c.mu.Lock()
	c.period, c.offset = period, offset
	c.mu.Unlock()
}

func (c *Coordinator) SetStopTime(t ticks.Time) {
	c.mu.Lock()
	c.stopTime = t
	c.mu.Unlock()
}

func (c *Coordinator) SetLookahead(t ticks.Time) {
	c.mu.Lock()
	c.lookahead = t
	c.mu.Unlock()
}

// SetEventTriggered flips the default candidate, when no explicit
// requestTime is outstanding, to timeMax: the federate sleeps until a
// dependency event or an explicit request moves it.
func (c *Coordinator) SetEventTriggered(v bool) {
	c.mu.Lock()
	c.eventTriggered = v
	c.mu.Unlock()
}

// AddDependency registers fed as a federate this coordinator's federate
// depends on, with its granted time starting at timeZero (the most
// conservative assumption: it has produced nothing yet).
func (c *Coordinator) AddDependency(fed wire.FederateID) {
	c.mu.Lock()
	if _, ok := c.deps[fed]; !ok {
		c.deps[fed] = &dependency{fed: fed, grantedTime: ticks.TimeZero, minNextTime: ticks.TimeZero}
	}
	c.mu.Unlock()
}

// UpdateDependency is the upcall the broker layer makes whenever a
// TIME_GRANT or TIME_REQUEST frame arrives from a dependency: it moves
// that row's table entry forward and wakes any blocked requestTime call
// so it can re-evaluate the grant condition.
func (c *Coordinator) UpdateDependency(fed wire.FederateID, grantedOrCandidate ticks.Time, iterating bool) {
	c.mu.Lock()
	d, ok := c.deps[fed]
	if !ok {
		d = &dependency{fed: fed}
		c.deps[fed] = d
	}
	if grantedOrCandidate.Greater(d.grantedTime) || grantedOrCandidate == d.grantedTime {
		d.grantedTime = grantedOrCandidate
	}
	d.minNextTime = grantedOrCandidate
	d.iterating = iterating
	c.cond.Broadcast()
	c.mu.Unlock()
}

// UpdateDependent records whether a dependent federate (a consumer of
// this federate's outputs) last reported that it is iterating at the
// current candidate; its iteration forces this federate to keep
// iterating too, per the fixed-point convergence rule.
func (c *Coordinator) UpdateDependent(fed wire.FederateID, iterating bool) {
	c.mu.Lock()
	c.dependentsIterating[fed] = iterating
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Disconnect removes fed from the dependency table, substituting
// timeMax for its contribution to the minimum so that any peer blocked
// on a grant involving it is unblocked rather than deadlocked.
func (c *Coordinator) Disconnect(fed wire.FederateID) {
	c.mu.Lock()
	delete(c.deps, fed)
	delete(c.dependentsIterating, fed)
	c.cond.Broadcast()
	c.mu.Unlock()
}

// DisconnectSelf is the self-initiated counterpart to Disconnect(fed):
// it is this federate announcing its own departure, rather than this
// federate learning that a dependency left. It broadcasts DISCONNECT
// and releases any goroutine blocked in requestTime with a final grant
// of timeMax and state Halted, per the cancellation contract.
func (c *Coordinator) DisconnectSelf() {
	c.mu.Lock()
	c.disconnected = true
	c.cond.Broadcast()
	c.mu.Unlock()
	c.broadcaster.BroadcastDisconnect()
}

// EnterInitializing is the fedstate.Coordinator hook: nothing to block
// on, since dependencies are still being discovered during
// INITIALIZING.
func (c *Coordinator) EnterInitializing() error { return nil }

// EnterExecuting grants at timeZero, iterating if requested (an
// iteration at t=0 is the "wait for every federate's initial publish"
// convergence round described for INITIALIZING -> EXECUTING).
func (c *Coordinator) EnterExecuting(iteration fedstate.IterationRequest) (fedstate.Grant, error) {
	return c.requestTime(ticks.TimeZero, iteration)
}

// RequestTime is the synchronous and callback-driven styles' common
// entry point: it computes the rounded candidate, broadcasts the
// request, blocks until every dependency's granted time has reached the
// candidate and any outstanding iteration has resolved, then grants.
func (c *Coordinator) RequestTime(t ticks.Time, iteration fedstate.IterationRequest) (fedstate.Grant, error) {
	return c.requestTime(t, iteration)
}

func (c *Coordinator) requestTime(t ticks.Time, iteration fedstate.IterationRequest) (fedstate.Grant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if iteration == fedstate.ErrorCondition {
		c.cond.Broadcast()
		return fedstate.Grant{Time: c.currentGranted, State: fedstate.ErrorResult}, nil
	}
	if iteration == fedstate.HaltOperations {
		c.broadcaster.BroadcastDisconnect()
		return fedstate.Grant{Time: c.currentGranted, State: fedstate.Halted}, nil
	}

	candidate := c.computeCandidateLocked(t)
	wantIterate := iteration == fedstate.ForceIteration || iteration == fedstate.IterateIfNeeded
	c.nextRequested = candidate
	c.broadcaster.BroadcastTimeRequest(candidate, wantIterate)

	for !c.disconnected && c.minDependencyTimeLocked().Less(candidate) {
		c.cond.Wait()
	}
	if c.disconnected {
		return fedstate.Grant{Time: ticks.TimeMax, State: fedstate.Halted}, nil
	}

	iterating := c.resolveIterationLocked(candidate, iteration)
	if !iterating {
		c.currentGranted = candidate
	}
	c.broadcaster.BroadcastTimeGrant(c.currentGranted)

	state := fedstate.NextStep
	if iterating {
		state = fedstate.Iterating
	}
	return fedstate.Grant{Time: c.currentGranted, State: state}, nil
}

// computeCandidateLocked applies the stop-time cap and, if a period is
// configured, rounds up to the next O+k*P at or after the capped value.
func (c *Coordinator) computeCandidateLocked(t ticks.Time) ticks.Time {
	if c.eventTriggered && t == ticks.TimeZero {
		t = ticks.TimeMax
	}
	candidate := ticks.Min(t, c.stopTime)
	if c.period > 0 {
		candidate = ticks.RoundUpPeriod(candidate, c.period, c.offset)
	}
	return ticks.Add(candidate, c.lookahead)
}

// minDependencyTimeLocked is the safety bound: this federate may never
// be granted past the minimum granted time across every dependency.
// With no dependencies the bound is unconstrained (timeMax).
func (c *Coordinator) minDependencyTimeLocked() ticks.Time {
	if len(c.deps) == 0 {
		return ticks.TimeMax
	}
	min := ticks.TimeMax
	for _, d := range c.deps {
		min = ticks.Min(min, d.grantedTime)
	}
	return min
}

// resolveIterationLocked decides NEXT_STEP vs ITERATING per the rule:
// granted at the same time with ITERATING iff a depended-on peer is
// also iterating at this candidate, a dependent is iterating, or the
// federate's own inputs changed since its last grant.
func (c *Coordinator) resolveIterationLocked(candidate ticks.Time, iteration fedstate.IterationRequest) bool {
	switch iteration {
	case fedstate.NoIterations:
		return false
	case fedstate.ForceIteration:
		return true
	}
	for _, d := range c.deps {
		if d.iterating && d.grantedTime == candidate {
			return true
		}
	}
	for _, iterating := range c.dependentsIterating {
		if iterating {
			return true
		}
	}
	if c.InputsChanged != nil && c.InputsChanged() {
		return true
	}
	return false
}

// CurrentGranted returns the federate's last granted time.
func (c *Coordinator) CurrentGranted() ticks.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentGranted
}
