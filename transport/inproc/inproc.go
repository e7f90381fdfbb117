// Package inproc implements the in-process transport adapter: a
// lock-guarded map of per-route FIFO queues, for federates and brokers
// sharing a single process (typically tests, or a core running with
// --coretype=TEST/IPC).
//
// Grounded on transport/bundle's lock-guarded bundle map (stream
// registered/looked-up by destination key) generalized from "named
// stream to a cluster node" to "named channel to a connected peer",
// since in-process delivery needs no socket at all - just the same
// registration/lookup discipline under a mutex.
package inproc

import (
	"context"
	"fmt"
	"sync"

	"github.com/helioscore/cosim/cmn/cos"
	"github.com/helioscore/cosim/cmn/prob"
	"github.com/helioscore/cosim/transport"
	"github.com/helioscore/cosim/wire"
)

const queueDepth = 1024

// dedupeCapacity sizes the receive-side cuckoo filter: generous enough
// that a single core's in-flight window of distinct (source,message)
// pairs never forces an eviction that would let a genuine duplicate
// back through.
const dedupeCapacity = 1 << 16

type peerQueue struct {
	ch     chan *wire.ActionMessage
	closed bool
}

// Registry is the process-wide address book in-process adapters Connect
// against: endpoint strings resolve to a shared peerQueue so two Adapter
// instances in the same process can find each other without a socket.
type Registry struct {
	mu    sync.Mutex
	peers map[string]*peerQueue
	next  uint64
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]*peerQueue)}
}

// Adapter is a transport.Adapter backed by channels registered in a
// shared Registry.
type Adapter struct {
	reg  *Registry
	self wire.FederateID

	mu     sync.Mutex
	routes map[transport.Route]string // route -> endpoint key
	rnext  transport.Route

	seen *prob.Filter // dedupes by (source_id, message_id) on the receive path
}

func New(reg *Registry, self wire.FederateID) *Adapter {
	return &Adapter{
		reg:    reg,
		self:   self,
		routes: make(map[transport.Route]string),
		seen:   prob.NewFilter(dedupeCapacity),
	}
}

func (a *Adapter) Kind() string { return "IPC" }

// Connect registers (or looks up) the named endpoint and returns a Route
// handle for subsequent Send calls. Endpoints are idempotent: connecting
// twice to the same name returns distinct routes over the same
// underlying queue, matching point-to-point fan-in semantics.
func (a *Adapter) Connect(_ context.Context, endpoint string) (transport.Route, error) {
	a.reg.mu.Lock()
	pq, ok := a.reg.peers[endpoint]
	if !ok {
		pq = &peerQueue{ch: make(chan *wire.ActionMessage, queueDepth)}
		a.reg.peers[endpoint] = pq
	}
	a.reg.mu.Unlock()

	a.mu.Lock()
	a.rnext++
	route := a.rnext
	a.routes[route] = endpoint
	a.mu.Unlock()
	return transport.Route(route), nil
}

func (a *Adapter) Send(route transport.Route, msg *wire.ActionMessage) error {
	a.mu.Lock()
	endpoint, ok := a.routes[route]
	a.mu.Unlock()
	if !ok {
		return &transport.ErrRouteClosed{Route: route}
	}
	a.reg.mu.Lock()
	pq, ok := a.reg.peers[endpoint]
	a.reg.mu.Unlock()
	if !ok || pq.closed {
		return &transport.ErrRouteClosed{Route: route}
	}
	select {
	case pq.ch <- msg:
		return nil
	default:
		return fmt.Errorf("inproc: queue full for endpoint %q", endpoint)
	}
}

// Serve fans every registered endpoint's queue into recv, preserving
// per-route FIFO order since each endpoint has exactly one channel and
// one reader goroutine per channel.
func (a *Adapter) Serve(ctx context.Context, recv transport.RecvFunc) error {
	a.mu.Lock()
	routes := make(map[transport.Route]string, len(a.routes))
	for r, ep := range a.routes {
		routes[r] = ep
	}
	a.mu.Unlock()

	var wg sync.WaitGroup
	for route, endpoint := range routes {
		a.reg.mu.Lock()
		pq := a.reg.peers[endpoint]
		a.reg.mu.Unlock()
		if pq == nil {
			continue
		}
		wg.Add(1)
		go func(route transport.Route, pq *peerQueue) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-pq.ch:
					if !ok {
						recv(route, transport.DisconnectFrame(a.self))
						return
					}
					if msg.MessageID != 0 && !a.seen.InsertUnique(prob.MsgKey(uint32(msg.SourceID), uint64(msg.MessageID))) {
						continue // already delivered this (source,message) pair
					}
					recv(route, msg)
				}
			}
		}(route, pq)
	}
	wg.Wait()
	return ctx.Err()
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for route, endpoint := range a.routes {
		a.reg.mu.Lock()
		if pq, ok := a.reg.peers[endpoint]; ok && !pq.closed {
			pq.closed = true
			close(pq.ch)
		}
		a.reg.mu.Unlock()
		delete(a.routes, route)
	}
	return nil
}

// EndpointName builds the registry key a core/broker advertises for
// inproc rendezvous: a namespaced, collision-checked identifier derived
// from the caller's own name.
func EndpointName(kind, name string) string {
	if !cos.IsAlphaNice(name) {
		name = cos.HashRouteStr(name)
	}
	return kind + ":" + name
}
