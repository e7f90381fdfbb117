// Core-hosting glue: translates between a Core's locally hosted
// federates' fedstate/timecoord objects and the wire frames that carry
// time coordination across the broker tree. A Core only ever emits
// TIME_REQUEST/TIME_GRANT/DISCONNECT frames for federates it hosts
// (SourceID == the hosting federate) and only ever needs to apply
// incoming frames whose DestID names one of those same federates — any
// other frame belongs to the routing node, not to a hosted federate.
//
// Grounded on broker.Node's own pendingUp/forwardUpPending correlation
// idiom (a MessageID-keyed map resolved by the next reply to arrive),
// reused here for a Core's own outbound registration calls rather than
// a child's forwarded one.
package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/helioscore/cosim/broker"
	"github.com/helioscore/cosim/cmn/nlog"
	"github.com/helioscore/cosim/fedstate"
	"github.com/helioscore/cosim/msgfed"
	"github.com/helioscore/cosim/ticks"
	"github.com/helioscore/cosim/timecoord"
	"github.com/helioscore/cosim/transport"
	"github.com/helioscore/cosim/valuefed"
	"github.com/helioscore/cosim/wire"
)

const registerTimeout = 5 * time.Second

// hostedFederate bundles everything a Core keeps per federate it hosts
// directly (as opposed to one reachable only through a child link).
type hostedFederate struct {
	id     wire.FederateID
	name   string
	coord  *timecoord.Coordinator
	fed    *fedstate.Federate
	values *valuefed.Manager
	msgs   *msgfed.Manager
}

// selfCoordinator adapts *timecoord.Coordinator's Disconnect(fed) (one
// federate learning of another's departure) to the no-arg Disconnect()
// fedstate.Coordinator expects (a federate announcing its own), since
// the two are genuinely different operations sharing a name only at the
// fedstate call site.
type selfCoordinator struct {
	*timecoord.Coordinator
}

func (s selfCoordinator) Disconnect() { s.Coordinator.DisconnectSelf() }

// wireBroadcaster is the timecoord.Broadcaster a hosted federate's
// Coordinator uses: every broadcast becomes one outbound ActionMessage
// sent toward the parent, stamped with the hosting federate's own ID so
// peers can tell which dependency advanced.
type wireBroadcaster struct {
	node *broker.Node
	fed  wire.FederateID
}

func (b *wireBroadcaster) BroadcastTimeRequest(candidate ticks.Time, iterating bool) {
	msg := &wire.ActionMessage{Action: wire.ActTimeRequest, SourceID: b.fed, ActionTime: candidate}
	if iterating {
		msg.Flags |= wire.FlagIterationRequested
	}
	if err := b.node.SendToParent(msg); err != nil {
		nlog.Errorf("cosimcore: federate %d: broadcast time request: %v", b.fed, err)
	}
}

func (b *wireBroadcaster) BroadcastTimeGrant(t ticks.Time) {
	msg := &wire.ActionMessage{Action: wire.ActTimeGrant, SourceID: b.fed, TimeGranted: t}
	if err := b.node.SendToParent(msg); err != nil {
		nlog.Errorf("cosimcore: federate %d: broadcast time grant: %v", b.fed, err)
	}
}

func (b *wireBroadcaster) BroadcastDisconnect() {
	if err := b.node.SendToParent(&wire.ActionMessage{Action: wire.ActDisconnect, SourceID: b.fed}); err != nil {
		nlog.Errorf("cosimcore: federate %d: broadcast disconnect: %v", b.fed, err)
	}
}

// core owns a Core's transport adapter and routing node, plus the
// federates it hosts directly.
type core struct {
	node    *broker.Node
	adapter transport.Adapter

	mu        sync.Mutex
	pending   map[wire.MessageID]chan *wire.ActionMessage
	federates map[wire.FederateID]*hostedFederate
	name2fed  map[string]*hostedFederate
}

func newCore(node *broker.Node, adapter transport.Adapter) *core {
	return &core{
		node:      node,
		adapter:   adapter,
		pending:   make(map[wire.MessageID]chan *wire.ActionMessage),
		federates: make(map[wire.FederateID]*hostedFederate),
		name2fed:  make(map[string]*hostedFederate),
	}
}

// recv is the transport.RecvFunc this core's adapter drives its Serve
// loop with: it first satisfies any outstanding request this core
// itself issued (registration, query), then dispatches frames destined
// for a locally hosted federate's time coordinator, falling back to the
// routing node for everything else (forwarding, query fan-out,
// disconnect cascades, frames bound for someone else's federate).
func (c *core) recv(route transport.Route, msg *wire.ActionMessage) {
	if msg.MessageID != 0 {
		c.mu.Lock()
		ch, ok := c.pending[msg.MessageID]
		if ok {
			delete(c.pending, msg.MessageID)
		}
		c.mu.Unlock()
		if ok {
			ch <- msg
			return
		}
	}

	c.mu.Lock()
	hf, hosted := c.federates[msg.DestID]
	c.mu.Unlock()
	if hosted {
		switch msg.Action {
		case wire.ActTimeGrant:
			hf.coord.UpdateDependency(msg.SourceID, msg.TimeGranted, msg.Flags.Has(wire.FlagIterationRequested))
			return
		case wire.ActTimeRequest:
			hf.coord.UpdateDependent(msg.SourceID, msg.Flags.Has(wire.FlagIterationRequested))
			return
		case wire.ActDisconnect:
			hf.coord.Disconnect(msg.SourceID)
			return
		}
	}
	c.node.RecvFunc()(route, msg)
}

// sendUpAndWait sends msg toward the parent under a freshly minted
// MessageID, and blocks for the correlated reply or registerTimeout.
func (c *core) sendUpAndWait(msg *wire.ActionMessage) (*wire.ActionMessage, error) {
	msg.MessageID = c.node.NextMessageID()
	ch := make(chan *wire.ActionMessage, 1)
	c.mu.Lock()
	c.pending[msg.MessageID] = ch
	c.mu.Unlock()

	if err := c.node.SendToParent(msg); err != nil {
		c.mu.Lock()
		delete(c.pending, msg.MessageID)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case reply := <-ch:
		if reply.Flags.Has(wire.FlagError) {
			return nil, fmt.Errorf("%s", string(reply.Payload))
		}
		return reply, nil
	case <-time.After(registerTimeout):
		c.mu.Lock()
		delete(c.pending, msg.MessageID)
		c.mu.Unlock()
		return nil, fmt.Errorf("cosimcore: timed out waiting for reply to %s", msg.Action)
	}
}

// registerFederate registers name with the root (forwarded up through
// however many brokers sit between this core and it), then wires a
// fresh Coordinator/Federate/valuefed/msgfed trio for it and binds the
// route in the core's own node so frames addressed to it are recognized
// as local in recv above.
func (c *core) registerFederate(name string) (*hostedFederate, error) {
	reply, err := c.sendUpAndWait(&wire.ActionMessage{Action: wire.ActRegisterFederate, Payload: []byte(name)})
	if err != nil {
		return nil, err
	}
	id := reply.SourceID
	hf := &hostedFederate{id: id, name: name, values: valuefed.NewManager(), msgs: msgfed.NewManager()}
	hf.coord = timecoord.New(&wireBroadcaster{node: c.node, fed: id})
	hf.fed = fedstate.New(name, selfCoordinator{hf.coord}, nil)

	c.mu.Lock()
	c.federates[id] = hf
	c.name2fed[name] = hf
	c.mu.Unlock()
	c.node.BindFederate(id, "")
	return hf, nil
}
