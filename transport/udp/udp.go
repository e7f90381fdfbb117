// Package udp implements the UDP network transport adapter: one bound
// socket per adapter, a route per distinct remote peer address, no
// length prefix since each encoded ActionMessage is exactly one
// datagram. An inbound packet from a never-seen remote address gets a
// route allocated for it on arrival, the way a core that only ever
// dials out still needs to receive unsolicited TIME_GRANT/DATA frames
// back from its broker.
//
// Grounded on the same transport/api.go header-plus-payload framing as
// transport/tcp, minus the length prefix TCP's byte stream needs and
// UDP's datagram boundary already gives for free. Pure stdlib (net) —
// justified the same way as transport/tcp: no pack repo offers a
// reusable UDP framing library, and datagram-is-the-frame is the
// natural idiom here, not a gap a library would fill.
package udp

import (
	"context"
	"net"
	"sync"

	"github.com/helioscore/cosim/transport"
	"github.com/helioscore/cosim/wire"
)

const maxDatagram = 65507

// Adapter is a transport.Adapter backed by a single UDP socket, with
// Route identifying a distinct remote address.
type Adapter struct {
	self wire.FederateID
	conn *net.UDPConn

	mu        sync.Mutex
	routes    map[transport.Route]*net.UDPAddr
	byAddr    map[string]transport.Route
	nextRoute transport.Route
	closed    bool
}

// New binds a UDP socket at listenAddr ("" picks an ephemeral local
// port, for a leaf node that only dials out but still needs to receive
// replies).
func New(self wire.FederateID, listenAddr string) (*Adapter, error) {
	addr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		self:   self,
		conn:   conn,
		routes: make(map[transport.Route]*net.UDPAddr),
		byAddr: make(map[string]transport.Route),
	}, nil
}

func (a *Adapter) Kind() string { return "UDP" }

func (a *Adapter) Addr() string { return a.conn.LocalAddr().String() }

func (a *Adapter) Connect(_ context.Context, endpoint string) (transport.Route, error) {
	raddr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return 0, err
	}
	return a.routeFor(raddr), nil
}

func (a *Adapter) routeFor(addr *net.UDPAddr) transport.Route {
	key := addr.String()
	a.mu.Lock()
	defer a.mu.Unlock()
	if r, ok := a.byAddr[key]; ok {
		return r
	}
	a.nextRoute++
	r := a.nextRoute
	a.routes[r] = addr
	a.byAddr[key] = r
	return r
}

func (a *Adapter) Send(route transport.Route, msg *wire.ActionMessage) error {
	a.mu.Lock()
	addr, ok := a.routes[route]
	a.mu.Unlock()
	if !ok {
		return &transport.ErrRouteClosed{Route: route}
	}
	_, err := a.conn.WriteToUDP(msg.Encode(), addr)
	return err
}

// Serve reads datagrams until ctx is canceled or Close is called,
// allocating a route for any remote address not already known.
func (a *Adapter) Serve(ctx context.Context, recv transport.RecvFunc) error {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		_ = a.Close()
		a.mu.Lock()
		routes := make([]transport.Route, 0, len(a.routes))
		for r := range a.routes {
			routes = append(routes, r)
		}
		a.mu.Unlock()
		for _, r := range routes {
			recv(r, transport.DisconnectFrame(a.self))
		}
		close(done)
	}()

	buf := make([]byte, maxDatagram)
	for {
		n, raddr, err := a.conn.ReadFromUDP(buf)
		if err != nil {
			<-done
			return ctx.Err()
		}
		msg, err := wire.Decode(buf[:n])
		if err != nil {
			continue
		}
		route := a.routeFor(raddr)
		recv(route, msg)
	}
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.conn.Close()
}
