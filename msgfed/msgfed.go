// Package msgfed implements the Message Federate Manager: a federate's
// endpoints and their pending-message queues, delayed delivery, and
// cloning filters that observe messages in transit.
//
// Grounded on valuefed's handle-allocation and name-collision discipline
// (the two managers are siblings under fedstate, sharing the same
// registration contract) and on transport/bundle's delayed-delivery
// idea of stamping an item with a target time and releasing it only once
// the clock has passed that mark.
package msgfed

import (
	"sort"
	"sync"

	"github.com/helioscore/cosim/cmn/cos"
	"github.com/helioscore/cosim/ticks"
	"github.com/helioscore/cosim/wire"
)

// Message is one endpoint-addressed message in flight.
type Message struct {
	Source      string // sending endpoint's global name
	Dest        string // destination endpoint's global name
	OrigSource  string // preserved across filters
	OrigDest    string // preserved across filters
	SendTime    ticks.Time
	ActionTime  ticks.Time // delivery time
	Payload     []byte
}

// Endpoint is either untargeted (send to any destination by name) or
// targeted (restricted to pre-declared peers).
type Endpoint struct {
	Key        string
	Handle     wire.InterfaceHandle
	Targeted   bool
	targets    map[string]bool
	pending    []*Message // undelivered, sorted by ActionTime on insert
	held       []*Message // awaiting destination-name resolution
}

// CloningFilter observes every message whose source or destination
// matches Endpoint E, receiving a side-effect-free copy with original
// source/destination preserved.
type CloningFilter struct {
	Key      string
	Observer string // endpoint name receiving the clones
	sources  map[string]bool
	dests    map[string]bool
}

type Manager struct {
	mu        sync.Mutex
	endpoints map[string]*Endpoint
	byHandle  map[wire.InterfaceHandle]*Endpoint
	filters   []*CloningFilter
	nextHandle wire.InterfaceHandle
	now       ticks.Time
	executing bool // once true, unresolved destinations are delivery failures rather than held
}

func NewManager() *Manager {
	return &Manager{
		endpoints: make(map[string]*Endpoint),
		byHandle:  make(map[wire.InterfaceHandle]*Endpoint),
	}
}

func (m *Manager) SetGrantedTime(t ticks.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// EnterExecutingMode flips the manager into the mode where an unresolved
// destination on Send becomes a delivery failure instead of being held
// pending name resolution.
func (m *Manager) EnterExecutingMode() {
	m.mu.Lock()
	m.executing = true
	m.mu.Unlock()
}

func (m *Manager) RegisterEndpoint(key string, targeted bool) (*Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.endpoints[key]; ok {
		return nil, cos.NewErrNameCollision(key)
	}
	m.nextHandle++
	e := &Endpoint{Key: key, Handle: m.nextHandle, Targeted: targeted, targets: make(map[string]bool)}
	m.endpoints[key] = e
	m.byHandle[e.Handle] = e
	return e, nil
}

// AddDestination declares a permitted peer for a targeted endpoint; a
// no-op (but not an error) for an untargeted one.
func (e *Endpoint) AddDestination(name string) {
	if e.Targeted {
		e.targets[name] = true
	}
}

func (e *Endpoint) permits(dest string) bool {
	if !e.Targeted {
		return true
	}
	return e.targets[dest]
}

// RegisterCloningFilter installs a filter on the manager that clones
// messages touching any endpoint in sources or dests into observer.
func (m *Manager) RegisterCloningFilter(key, observer string, sources, dests []string) *CloningFilter {
	f := &CloningFilter{Key: key, Observer: observer, sources: toSet(sources), dests: toSet(dests)}
	m.mu.Lock()
	m.filters = append(m.filters, f)
	m.mu.Unlock()
	return f
}

func toSet(names []string) map[string]bool {
	s := make(map[string]bool, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}

// Send enqueues payload for delivery at currentTime+delay from
// endpoint's source to dest. If dest does not yet resolve to a
// registered endpoint and the federate has not yet entered executing
// mode, the message is held pending name resolution; past that point an
// unresolved destination is a delivery failure reported to the caller.
func (m *Manager) Send(e *Endpoint, dest string, payload []byte, delay ticks.Time) error {
	if !e.permits(dest) {
		return cos.NewErrUnknownDest(dest)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := &Message{
		Source: e.Key, Dest: dest, OrigSource: e.Key, OrigDest: dest,
		SendTime: m.now, ActionTime: ticks.Add(m.now, delay),
	}
	msg.Payload = append([]byte(nil), payload...)

	destEp, ok := m.endpoints[dest]
	if !ok {
		if m.executing {
			return cos.NewErrUnknownDest(dest)
		}
		e.held = append(e.held, msg)
		return nil
	}
	m.deliverLocked(destEp, msg)
	m.cloneLocked(msg)
	return nil
}

func (m *Manager) deliverLocked(dest *Endpoint, msg *Message) {
	dest.pending = append(dest.pending, msg)
	sort.SliceStable(dest.pending, func(i, j int) bool {
		return dest.pending[i].ActionTime.Less(dest.pending[j].ActionTime)
	})
}

func (m *Manager) cloneLocked(msg *Message) {
	for _, f := range m.filters {
		if f.sources[msg.Source] || f.dests[msg.Dest] {
			observer, ok := m.endpoints[f.Observer]
			if !ok {
				continue
			}
			clone := *msg
			m.deliverLocked(observer, &clone)
		}
	}
}

// ResolvePending is called once name resolution completes for a
// previously-unknown destination (typically at enterExecutingMode), and
// retries every message held against it.
func (m *Manager) ResolvePending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.endpoints {
		if len(e.held) == 0 {
			continue
		}
		var stillHeld []*Message
		for _, msg := range e.held {
			destEp, ok := m.endpoints[msg.Dest]
			if !ok {
				stillHeld = append(stillHeld, msg)
				continue
			}
			m.deliverLocked(destEp, msg)
			m.cloneLocked(msg)
		}
		e.held = stillHeld
	}
}

// HasMessage reports whether e has an undelivered message whose
// ActionTime is at or before the manager's current granted time.
func (m *Manager) HasMessage(e *Endpoint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(e.pending) > 0 && e.pending[0].ActionTime.LessEq(m.now)
}

// GetMessage returns and removes the oldest deliverable message for e,
// or nil if none is deliverable yet.
func (m *Manager) GetMessage(e *Endpoint) *Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(e.pending) == 0 || !e.pending[0].ActionTime.LessEq(m.now) {
		return nil
	}
	msg := e.pending[0]
	e.pending = e.pending[1:]
	return msg
}
