package broker

import (
	"context"
	"testing"
	"time"

	"github.com/helioscore/cosim/transport"
	"github.com/helioscore/cosim/transport/inproc"
	"github.com/helioscore/cosim/wire"
)

// harness wires two Nodes (root + one child broker) over the in-process
// transport, with each side's Dialer opening the return path to the
// other by its well-known inproc endpoint name.
type harness struct {
	reg  *inproc.Registry
	root *Node
	root2child *inproc.Adapter // root's outbound-to-child sender
	child *Node
	child2root *inproc.Adapter // child's outbound-to-root sender

	rootListener  *inproc.Adapter
	childListener *inproc.Adapter
}

func newHarness(t *testing.T) *harness {
	reg := inproc.NewRegistry()
	h := &harness{reg: reg}

	h.root = NewRoot("root")
	h.child = newNode("child1")

	h.rootListener = inproc.New(reg, 0)
	if _, err := h.rootListener.Connect(context.Background(), inproc.EndpointName("IPC", "root")); err != nil {
		t.Fatal(err)
	}
	h.childListener = inproc.New(reg, 0)
	if _, err := h.childListener.Connect(context.Background(), inproc.EndpointName("IPC", "child1")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.rootListener.Serve(ctx, h.root.RecvFunc())
	go h.childListener.Serve(ctx, h.child.RecvFunc())

	h.root2child = inproc.New(reg, 0)
	h.root.Dial = func(peerName string) (*Link, error) {
		route, err := h.root2child.Connect(context.Background(), inproc.EndpointName("IPC", peerName))
		if err != nil {
			return nil, err
		}
		return &Link{Adapter: h.root2child, Route: route, PeerName: peerName}, nil
	}

	h.child2root = inproc.New(reg, 0)
	h.child.Dial = func(peerName string) (*Link, error) {
		route, err := h.child2root.Connect(context.Background(), inproc.EndpointName("IPC", peerName))
		if err != nil {
			return nil, err
		}
		return &Link{Adapter: h.child2root, Route: route, PeerName: peerName}, nil
	}
	// no parent link is set here; each test dials "root" through
	// h.child.Dial and assigns h.child.parent itself.
	return h
}

func TestRegisterCoreHandshakeAndFederateAssignment(t *testing.T) {
	h := newHarness(t)

	childParentLink, err := h.child.Dial("root")
	if err != nil {
		t.Fatal(err)
	}
	h.child.parent = childParentLink
	reg := &wire.ActionMessage{Action: wire.ActRegisterCore, Payload: []byte("child1")}
	if err := childParentLink.Adapter.Send(childParentLink.Route, reg); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)

	h.root.mu.Lock()
	_, linked := h.root.children["child1"]
	h.root.mu.Unlock()
	if !linked {
		t.Fatal("expected root to have registered child1 as a link")
	}
}

func TestRouteFrameToLocalDependent(t *testing.T) {
	h := newHarness(t)
	childParentLink, _ := h.child.Dial("root")
	h.child.parent = childParentLink

	h.root.BindFederate(wire.FederateID(7), "child1")
	if _, err := h.root.linkFor("child1"); err != nil {
		t.Fatal(err)
	}

	data := &wire.ActionMessage{Action: wire.ActData, SourceID: 1, DestID: 7}
	h.root.routeFrame(data)

	// The root now holds a child1 link, so routeFrame forwards over it
	// rather than bouncing UNKNOWN_DEST. The child's receipt of the frame
	// is not observed here (RecvFunc has no test hook); the sleep only
	// lets the send finish before the harness is torn down.
	time.Sleep(50 * time.Millisecond)
}

func TestGlobalTimeAggregation(t *testing.T) {
	root := NewRoot("root")
	root.recordGlobalTime(&wire.ActionMessage{SourceID: 1, TimeGranted: 5})
	root.recordGlobalTime(&wire.ActionMessage{SourceID: 2, TimeGranted: 3})
	if got := root.GlobalTime(); got != 3 {
		t.Fatalf("want global time 3, got %v", got)
	}
}

func TestDisconnectCascadeRemovesFederateRoute(t *testing.T) {
	root := NewRoot("root")
	root.children["child1"] = &Link{Adapter: noopAdapter{}, PeerName: "child1"}
	root.BindFederate(wire.FederateID(4), "child1")

	root.handleDisconnect(&wire.ActionMessage{Action: wire.ActDisconnect, SourceID: 4})

	root.mu.Lock()
	_, known := root.federateRoute[4]
	root.mu.Unlock()
	if known {
		t.Fatal("expected federate route to be removed after disconnect")
	}
}

// noopAdapter is a minimal transport.Adapter for tests that only need a
// Link to exist, never actually driving Serve.
type noopAdapter struct{}

func (noopAdapter) Connect(context.Context, string) (transport.Route, error) { return 0, nil }
func (noopAdapter) Send(transport.Route, *wire.ActionMessage) error          { return nil }
func (noopAdapter) Serve(context.Context, transport.RecvFunc) error          { return nil }
func (noopAdapter) Close() error                                            { return nil }
func (noopAdapter) Kind() string                                            { return "NOOP" }
