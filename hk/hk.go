// Package hk provides a mechanism for registering cleanup/poll functions
// invoked at specified intervals, run off a single background goroutine.
// A package that needs "do X every so often" registers here instead of
// spinning up its own ticker goroutine; in this module the broker
// registers its stale-child pruning here.
package hk

import (
	"container/heap"
	"sync"
	"time"

	"github.com/helioscore/cosim/cmn/mono"
)

const NameSuffix = ".hk"

// UnregisterTimeout is the cleanup callback's return value convention:
// returning it removes the entry instead of rescheduling.
const UnregisterTimeout = time.Duration(-1)

type (
	// CleanupFunc runs periodically; its return value is the delay until
	// the next run (allowing callbacks to adapt their own cadence, the way
	// xreg's hkPruneActive backs off when there's nothing to do).
	CleanupFunc func() time.Duration

	request struct {
		name     string
		f        CleanupFunc
		initial  time.Duration
		unreg    bool
	}

	timeout struct {
		name  string
		f     CleanupFunc
		due   int64 // mono.NanoTime() deadline
		index int   // heap.Interface bookkeeping
	}

	timeouts []*timeout

	Housekeeper struct {
		mu       sync.Mutex
		byName   map[string]*timeout
		pq       timeouts
		reqCh    chan request
		started  chan struct{}
		startOnce sync.Once
	}
)

var DefaultHK = New()

func New() *Housekeeper {
	return &Housekeeper{
		byName:  make(map[string]*timeout, 16),
		reqCh:   make(chan request, 64),
		started: make(chan struct{}),
	}
}

// TestInit resets the default housekeeper; tests only.
func TestInit() { DefaultHK = New() }

func Reg(name string, f CleanupFunc, initial time.Duration) {
	DefaultHK.Reg(name, f, initial)
}

func Unreg(name string) { DefaultHK.Unreg(name) }

func WaitStarted() { <-DefaultHK.started }

func (hk *Housekeeper) Reg(name string, f CleanupFunc, initial time.Duration) {
	hk.reqCh <- request{name: name, f: f, initial: initial}
}

func (hk *Housekeeper) Unreg(name string) {
	hk.reqCh <- request{name: name, unreg: true}
}

// Run is the single dispatcher loop: it owns pq and byName exclusively,
// the same single-writer-thread discipline the broker's ActionMessage loop
// uses for its own tables.
func (hk *Housekeeper) Run() {
	hk.startOnce.Do(func() { close(hk.started) })
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		var waitFor time.Duration = time.Hour
		if len(hk.pq) > 0 {
			waitFor = time.Duration(hk.pq[0].due - mono.NanoTime())
			if waitFor < 0 {
				waitFor = 0
			}
		}
		timer.Reset(waitFor)
		select {
		case req := <-hk.reqCh:
			hk.handle(req)
		case <-timer.C:
			hk.fire()
		}
	}
}

func (hk *Housekeeper) handle(req request) {
	if req.unreg {
		if t, ok := hk.byName[req.name]; ok {
			heap.Remove(&hk.pq, t.idx())
			delete(hk.byName, req.name)
		}
		return
	}
	t := &timeout{name: req.name, f: req.f, due: mono.NanoTime() + int64(req.initial)}
	hk.byName[req.name] = t
	heap.Push(&hk.pq, t)
}

func (hk *Housekeeper) fire() {
	now := mono.NanoTime()
	for len(hk.pq) > 0 && hk.pq[0].due <= now {
		t := heap.Pop(&hk.pq).(*timeout)
		next := t.f()
		if next == UnregisterTimeout {
			delete(hk.byName, t.name)
			continue
		}
		t.due = mono.NanoTime() + int64(next)
		heap.Push(&hk.pq, t)
	}
}

// timeouts: container/heap.Interface, ordered by due time.

func (tq timeouts) Len() int            { return len(tq) }
func (tq timeouts) Less(i, j int) bool  { return tq[i].due < tq[j].due }
func (tq timeouts) Swap(i, j int)       { tq[i], tq[j] = tq[j], tq[i]; tq[i].index, tq[j].index = i, j }
func (tq *timeouts) Push(x any)         { t := x.(*timeout); t.index = len(*tq); *tq = append(*tq, t) }
func (tq *timeouts) Pop() any {
	old := *tq
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*tq = old[:n-1]
	return t
}

func (t *timeout) idx() int { return t.index }
