// Package broker implements the routing node shared by brokers and
// cores: connection handshake, name resolution forwarded toward the
// root and replied back down, frame routing by source/dest federate ID,
// and disconnect cascades. A Core additionally hosts federates
// in-process; a Broker only routes.
//
// Grounded on AIStore's proxy/target membership and routing-table
// idiom (a node that accepts child registrations, assigns each an
// opaque handle, and forwards unrecognized lookups toward the
// authoritative owner) generalized from "bucket metadata owner" to
// "root broker" as the single source of truth for name-to-handle
// resolution.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/helioscore/cosim/cmn/cos"
	"github.com/helioscore/cosim/cmn/nlog"
	"github.com/helioscore/cosim/hk"
	"github.com/helioscore/cosim/registry"
	"github.com/helioscore/cosim/ticks"
	"github.com/helioscore/cosim/transport"
	"github.com/helioscore/cosim/wire"
)

// Link is one connection out of this node toward a named peer (a
// parent broker, a child broker, or a child core): an adapter route to
// send on, and the route ID this node assigned at handshake time.
type Link struct {
	Adapter  transport.Adapter
	Route    transport.Route
	PeerName string
	RouteID  wire.RouteID
}

// Dialer opens the return path to a peer that has just announced
// itself by name (in a REGISTER_BROKER/REGISTER_CORE frame). Supplying
// this is the caller's job, not broker's: it is the one place that
// knows the concrete transport and its endpoint-naming convention, so
// Node itself never branches on transport kind.
type Dialer func(peerName string) (*Link, error)

// Node is the routing core shared by Broker and Core. The root node
// owns the authoritative registry; every other node only caches the
// federate->peer-name mappings it has observed so far and forwards a
// miss toward its parent.
type Node struct {
	mu sync.Mutex

	Name   string
	IsRoot bool
	Dial   Dialer

	registry *registry.Registry // non-nil only at the root

	// listenAdapter, when set, is the adapter whose Serve loop drives
	// this node's RecvFunc. A REGISTER_BROKER/REGISTER_CORE frame
	// arriving on it carries a route that is already a working reply
	// path (the connection is duplex), so the node binds that arriving
	// route directly as the child's Link instead of asking Dial to open
	// a fresh one. Transports whose routes aren't duplex (inproc) leave
	// this nil and rely on Dial instead.
	listenAdapter transport.Adapter

	parent   *Link
	children map[string]*Link // peer name -> link
	nextRID  wire.RouteID

	// federateRoute maps a federate ID to the peer name it is currently
	// reachable through (a child broker or core). A federate hosted by
	// this node's own core is recorded with peer name "" (local).
	federateRoute map[wire.FederateID]string
	routesOfPeer  map[string][]wire.FederateID

	// pendingUp correlates a forwarded-toward-root frame (register,
	// add-alias, add-target) with the peer name the reply must be
	// forwarded back down to, keyed by the frame's MessageID.
	pendingUp map[wire.MessageID]string

	idgen    wire.MessageIDGen
	query    *queryEngine
	recvFunc transport.RecvFunc

	globalTime map[wire.FederateID]ticks.Time // root-only: for the global_time query
}

func newNode(name string) *Node {
	n := &Node{
		Name:          name,
		children:      make(map[string]*Link),
		federateRoute: make(map[wire.FederateID]string),
		routesOfPeer:  make(map[string][]wire.FederateID),
		pendingUp:     make(map[wire.MessageID]string),
	}
	n.query = newQueryEngine(n)
	n.recvFunc = n.handleFrame
	hk.Reg(name+".broker-gc"+hk.NameSuffix, n.pruneStaleChildren, time.Minute)
	return n
}

// NewRoot constructs the root broker of a federation, owning the
// authoritative registry.
func NewRoot(name string) *Node {
	n := newNode(name)
	n.IsRoot = true
	n.registry = registry.New()
	n.globalTime = make(map[wire.FederateID]ticks.Time)
	return n
}

// NewChild constructs a non-root node (broker or core) that connects
// upward over adapter to endpoint, identifying itself with kind (one of
// wire.ActRegisterBroker or wire.ActRegisterCore).
func NewChild(name string, adapter transport.Adapter, endpoint string, kind wire.Action) (*Node, error) {
	n := newNode(name)

	route, err := adapter.Connect(context.Background(), endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "broker: %s: connect to %s", name, endpoint)
	}
	n.parent = &Link{Adapter: adapter, Route: route, PeerName: endpoint}
	reg := &wire.ActionMessage{Action: kind, Payload: []byte(name)}
	if err := adapter.Send(route, reg); err != nil {
		return nil, errors.Wrapf(err, "broker: %s: register with %s", name, endpoint)
	}
	return n, nil
}

// RecvFunc is the upcall a node's own adapters should drive their Serve
// loop with.
func (n *Node) RecvFunc() transport.RecvFunc { return n.recvFunc }

// BindListenAdapter records the adapter that drives this node's
// RecvFunc, so a child's registration can bind its arriving route
// directly as the reply path rather than requiring Dial. Set this for
// any node that accepts children over a duplex transport (TCP, UDP,
// TCP_SS, ZMQ, ZMQ_SS); leave unset for inproc, whose routes are
// send-only and need Dial to open a return path by name.
func (n *Node) BindListenAdapter(a transport.Adapter) {
	n.mu.Lock()
	n.listenAdapter = a
	n.mu.Unlock()
}

// NextMessageID mints the next frame correlation ID a Core hosting
// federates on this node should stamp its registration/query frames
// with, so replies arrive correlated back via pendingUp.
func (n *Node) NextMessageID() wire.MessageID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.idgen.Next()
}

func (n *Node) linkFor(peerName string) (*Link, error) {
	n.mu.Lock()
	link, ok := n.children[peerName]
	n.mu.Unlock()
	if ok {
		return link, nil
	}
	if n.Dial == nil {
		return nil, fmt.Errorf("broker %s: no dialer configured to reach %q", n.Name, peerName)
	}
	link, err := n.Dial(peerName)
	if err != nil {
		return nil, errors.Wrapf(err, "broker %s: dial %s", n.Name, peerName)
	}
	n.mu.Lock()
	n.nextRID++
	link.RouteID = n.nextRID
	n.children[peerName] = link
	n.mu.Unlock()
	return link, nil
}

func (n *Node) handleFrame(route transport.Route, msg *wire.ActionMessage) {
	switch msg.Action {
	case wire.ActRegisterBroker, wire.ActRegisterCore:
		n.handleRegisterLink(route, msg)
	case wire.ActRegisterFederate:
		n.handleRegisterFederate(msg)
	case wire.ActRegisterPublication, wire.ActRegisterInput, wire.ActRegisterEndpoint:
		n.handleRegisterInterface(msg)
	case wire.ActAddTarget, wire.ActAddAlias:
		n.handleForwardToRoot(msg)
	case wire.ActQuery:
		n.query.handleQuery(msg)
	case wire.ActQueryReply:
		n.query.handleQueryReply(msg)
	case wire.ActDisconnect:
		n.handleDisconnect(msg)
	case wire.ActTimeGrant:
		n.recordGlobalTime(msg)
		n.routeFrame(msg)
	default:
		n.routeFrame(msg)
	}
}

func (n *Node) handleRegisterLink(route transport.Route, msg *wire.ActionMessage) {
	name := string(msg.Payload)
	n.mu.Lock()
	_, already := n.children[name]
	listenAdapter := n.listenAdapter
	n.mu.Unlock()
	if !already {
		if listenAdapter != nil {
			n.mu.Lock()
			n.nextRID++
			n.children[name] = &Link{Adapter: listenAdapter, Route: route, PeerName: name, RouteID: n.nextRID}
			n.mu.Unlock()
		} else if _, err := n.linkFor(name); err != nil {
			nlog.Errorf("broker %s: register link from %s failed: %v", n.Name, name, err)
			return
		}
	}
	nlog.Infof("broker %s: registered link from %s (%s)", n.Name, name, msg.Action)
	if !n.IsRoot && n.parent != nil {
		n.forwardUp(name, msg)
	}
}

// handleRegisterFederate assigns a FederateID at the root, or forwards
// toward it otherwise, recording the pending correlation so the grant
// can be routed back down to the originating peer.
func (n *Node) handleRegisterFederate(msg *wire.ActionMessage) {
	name := string(msg.Payload)
	if n.IsRoot {
		id, err := n.registry.RegisterFederate(name)
		reply := &wire.ActionMessage{
			Action:    wire.ActRegisterFederate,
			SourceID:  id,
			MessageID: msg.MessageID,
			Payload:   []byte(name),
		}
		if err != nil {
			reply.Flags |= wire.FlagError
			reply.Payload = []byte(err.Error())
		}
		n.replyDown(msg.MessageID, reply)
		return
	}
	n.forwardUpPending(msg)
}

// forwardUpPending is used for frames whose originating peer is not
// given by a name payload but must be recovered from pendingUp on the
// eventual reply (federate/interface registration replies travel back
// keyed purely by MessageID, since at send time the asking federate has
// no FederateID yet to route by).
func (n *Node) forwardUpPending(msg *wire.ActionMessage) {
	n.mu.Lock()
	parent := n.parent
	n.mu.Unlock()
	if parent == nil {
		return
	}
	if err := parent.Adapter.Send(parent.Route, msg); err != nil {
		nlog.Errorf("broker %s: forward up failed: %v", n.Name, err)
	}
}

func (n *Node) handleRegisterInterface(msg *wire.ActionMessage) {
	if n.IsRoot {
		kind := interfaceKindFor(msg.Action)
		h, err := n.registry.RegisterInterface(string(msg.Payload), msg.SourceID, kind)
		reply := &wire.ActionMessage{
			Action:       msg.Action,
			SourceID:     msg.SourceID,
			SourceHandle: h,
			MessageID:    msg.MessageID,
			Payload:      msg.Payload,
		}
		if err != nil {
			reply.Flags |= wire.FlagError
			reply.Payload = []byte(err.Error())
		}
		n.replyDown(msg.MessageID, reply)
		return
	}
	n.forwardUpPending(msg)
}

func interfaceKindFor(a wire.Action) registry.InterfaceKind {
	switch a {
	case wire.ActRegisterPublication:
		return registry.KindPublication
	case wire.ActRegisterInput:
		return registry.KindInput
	case wire.ActRegisterEndpoint:
		return registry.KindEndpoint
	default:
		return registry.KindFilter
	}
}

// handleForwardToRoot implements ADD_TARGET/ADD_ALIAS: these only make
// sense resolved against the root's registry, so a non-root node always
// forwards, and the root answers (or, for add-target, resolves the
// name and replies with the handle so the caller can wire its local
// Publication/Input).
func (n *Node) handleForwardToRoot(msg *wire.ActionMessage) {
	if !n.IsRoot {
		n.forwardUpPending(msg)
		return
	}
	switch msg.Action {
	case wire.ActAddAlias:
		parts := splitPayload(msg.Payload)
		var err error
		if len(parts) == 2 {
			err = n.registry.AddAlias(parts[0], parts[1])
		} else {
			err = cos.NewErrInvalidAlias("malformed ADD_ALIAS payload")
		}
		reply := &wire.ActionMessage{Action: wire.ActAddAlias, MessageID: msg.MessageID}
		if err != nil {
			reply.Flags |= wire.FlagError
			reply.Payload = []byte(err.Error())
		}
		n.replyDown(msg.MessageID, reply)
	case wire.ActAddTarget:
		targetName := string(msg.Payload)
		entry, err := n.registry.Resolve(targetName)
		reply := &wire.ActionMessage{
			Action:       wire.ActAddTarget,
			SourceID:     msg.SourceID,
			SourceHandle: msg.SourceHandle,
			DestID:       entry.Federate,
			DestHandle:   entry.Handle,
			MessageID:    msg.MessageID,
		}
		if err != nil {
			reply.Flags |= wire.FlagError
			reply.Payload = []byte(err.Error())
		}
		n.replyDown(msg.MessageID, reply)
	}
}

func splitPayload(p []byte) []string {
	s := string(p)
	for i, c := range s {
		if c == '\x00' {
			return []string{s[:i], s[i+1:]}
		}
	}
	return []string{s}
}

// forwardUp records which peer a reply must return to, then sends msg
// toward the parent.
func (n *Node) forwardUp(fromPeer string, msg *wire.ActionMessage) {
	n.mu.Lock()
	n.pendingUp[msg.MessageID] = fromPeer
	parent := n.parent
	n.mu.Unlock()
	if parent == nil {
		return
	}
	if err := parent.Adapter.Send(parent.Route, msg); err != nil {
		nlog.Errorf("broker %s: forward up failed: %v", n.Name, err)
	}
}

// replyDown sends msg back down to whichever peer is pending under
// msg.MessageID (recorded by forwardUp or forwardUpPending's implicit
// pending-at-root semantics), deleting the correlation once consumed.
func (n *Node) replyDown(id wire.MessageID, msg *wire.ActionMessage) {
	n.mu.Lock()
	peer, ok := n.pendingUp[id]
	if ok {
		delete(n.pendingUp, id)
	}
	link, linkOK := n.children[peer]
	n.mu.Unlock()
	if ok && linkOK {
		if err := link.Adapter.Send(link.Route, msg); err != nil {
			nlog.Errorf("broker %s: reply-down send failed: %v", n.Name, err)
		}
		return
	}
	// No pending-up correlation: this node is itself the direct parent
	// of the asking federate/core, so the frame that prompted this reply
	// came in over the only link that matters for it — broadcast to all
	// children is wrong in general, but for a root with exactly one core
	// per federate it degenerates correctly. Multi-hop trees rely on the
	// pendingUp path above.
	n.mu.Lock()
	links := make([]*Link, 0, len(n.children))
	for _, l := range n.children {
		links = append(links, l)
	}
	n.mu.Unlock()
	for _, l := range links {
		_ = l.Adapter.Send(l.Route, msg)
	}
}

// routeFrame forwards a DATA/MESSAGE/TIME_*/COMMAND frame toward
// msg.DestID: to a known peer, up toward the root if unknown, or
// UNKNOWN_DEST if this node is the root and still doesn't know it.
func (n *Node) routeFrame(msg *wire.ActionMessage) {
	n.mu.Lock()
	peer, known := n.federateRoute[msg.DestID]
	var link *Link
	if known {
		link = n.children[peer]
	}
	parent := n.parent
	n.mu.Unlock()

	if link != nil {
		if err := link.Adapter.Send(link.Route, msg); err != nil {
			nlog.Errorf("broker %s: route send failed: %v", n.Name, err)
		}
		return
	}
	if parent != nil {
		if err := parent.Adapter.Send(parent.Route, msg); err != nil {
			nlog.Errorf("broker %s: route-up failed: %v", n.Name, err)
		}
		return
	}
	reply := &wire.ActionMessage{
		Action:   wire.ActErrorMsg,
		SourceID: msg.DestID,
		DestID:   msg.SourceID,
		Flags:    wire.FlagError,
		Payload:  []byte(cos.NewErrUnknownDest(fmt.Sprintf("federate %d", msg.DestID)).Error()),
	}
	n.routeFrame(reply)
}

// SendToParent sends msg directly up to this node's parent link. This is
// for a Core originating its own frame (registering a federate it hosts,
// issuing a query) as opposed to forwardUp/forwardUpPending, which
// relay a child's frame on its behalf.
func (n *Node) SendToParent(msg *wire.ActionMessage) error {
	n.mu.Lock()
	parent := n.parent
	n.mu.Unlock()
	if parent == nil {
		return fmt.Errorf("broker %s: no parent to send to", n.Name)
	}
	return parent.Adapter.Send(parent.Route, msg)
}

// BindFederate records that fed is reachable through peerName — called
// once a REGISTER_FEDERATE reply resolves, or directly by a Core for
// the federates it hosts locally (peerName "").
func (n *Node) BindFederate(fed wire.FederateID, peerName string) {
	n.mu.Lock()
	n.federateRoute[fed] = peerName
	n.routesOfPeer[peerName] = append(n.routesOfPeer[peerName], fed)
	n.mu.Unlock()
}

// recordGlobalTime updates the root's federation-wide minimum-granted-
// time table, backing the "global_time" query target.
func (n *Node) recordGlobalTime(msg *wire.ActionMessage) {
	if !n.IsRoot {
		return
	}
	n.mu.Lock()
	n.globalTime[msg.SourceID] = msg.TimeGranted
	n.mu.Unlock()
}

func (n *Node) GlobalTime() ticks.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	min := ticks.TimeMax
	for _, t := range n.globalTime {
		min = ticks.Min(min, t)
	}
	return min
}

// interfaceNames answers the QUERY_PUBLICATIONS/QUERY_ENDPOINTS targets
// from the root's registry; a non-root node owns no registry of its own
// and contributes nothing (the fan-out merges the root's answer in).
func (n *Node) interfaceNames(kind registry.InterfaceKind) []string {
	n.mu.Lock()
	reg := n.registry
	n.mu.Unlock()
	if reg == nil {
		return nil
	}
	return reg.NamesByKind(kind)
}

// handleDisconnect is the cascade entry point: it drops every federate
// the disconnecting peer owned, tells its own parent (so the cascade
// continues rootward) and every sibling peer (so their blocked
// time-coordinator waits get released via a synthesized dependency
// update).
func (n *Node) handleDisconnect(msg *wire.ActionMessage) {
	n.mu.Lock()
	peer, ok := n.federateRoute[msg.SourceID]
	lost := []wire.FederateID{msg.SourceID}
	if ok {
		lost = n.routesOfPeer[peer]
		delete(n.routesOfPeer, peer)
	}
	for _, fed := range lost {
		delete(n.federateRoute, fed)
	}
	peers := make([]*Link, 0, len(n.children))
	for _, l := range n.children {
		peers = append(peers, l)
	}
	parent := n.parent
	n.mu.Unlock()

	nlog.Infof("broker %s: disconnect cascade for %d federate(s)", n.Name, len(lost))

	for _, fed := range lost {
		cascade := &wire.ActionMessage{Action: wire.ActDisconnect, SourceID: fed}
		for _, l := range peers {
			_ = l.Adapter.Send(l.Route, cascade)
		}
		if parent != nil {
			_ = parent.Adapter.Send(parent.Route, cascade)
		}
	}
}

// pruneStaleChildren is the periodic housekeeping callback: a future
// liveness ping would let this actually evict dead links; today it just
// keeps the hk schedule alive so link GC has a home once that ping
// exists.
func (n *Node) pruneStaleChildren() time.Duration {
	return time.Minute
}
