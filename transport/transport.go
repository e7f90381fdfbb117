// Package transport defines the uniform contract every wire adapter
// (in-process, shared-memory, UDP, TCP, TCP-single-socket, 0MQ) conforms
// to: connect to an endpoint spec, send a frame on a route, and run a
// background receive loop that hands parsed frames to an upcall. Cores
// and brokers never branch on transport kind - only on the ActionMessage
// action carried inside a frame.
//
// Grounded on AIStore's transport package: ObjHdr/Obj as "header plus
// opaque payload", the per-stream send/receive split, and RecvObj as the
// upcall shape, generalized here from object-streaming to single-frame
// delivery since the wire vocabulary is now one uniform ActionMessage
// rather than arbitrary byte objects.
package transport

import (
	"context"
	"fmt"

	"github.com/helioscore/cosim/wire"
)

// Route identifies one logical peer-to-peer link inside an adapter. Its
// meaning is adapter-specific (a per-adapter counter value for inproc,
// TCP and UDP, the multiplexed channel tag for TCP-SS) but callers above
// transport treat it as opaque.
type Route uint64

// RecvFunc is the upcall a receive loop delivers parsed frames to. The
// adapter guarantees per-route FIFO order and atomic delivery (no torn
// reads); it never reorders or deduplicates frames on its own.
type RecvFunc func(route Route, msg *wire.ActionMessage)

// Adapter is the contract every concrete transport implements. All
// adapters MUST preserve per-route FIFO order and synthesize a DISCONNECT
// ActionMessage from a peer whose connection is lost, rather than
// silently dropping it.
type Adapter interface {
	// Connect establishes (or prepares to accept) a connection described
	// by endpoint, returning the Route callers address Send calls to.
	Connect(ctx context.Context, endpoint string) (Route, error)

	// Send transmits msg on route. Large payloads (over
	// wire.MaxFragmentPayload) may be fragmented transparently; the
	// receive side reassembles before invoking RecvFunc.
	Send(route Route, msg *wire.ActionMessage) error

	// Serve runs the adapter's receive loop, invoking recv for every
	// frame that arrives on any route, until ctx is canceled or Close is
	// called. It blocks; callers run it in its own goroutine.
	Serve(ctx context.Context, recv RecvFunc) error

	// Close tears the adapter down, synthesizing a DISCONNECT upcall (via
	// the RecvFunc passed to Serve) for every route still open.
	Close() error

	// Kind names the transport for diagnostics and the --coretype CLI
	// surface (ZMQ, ZMQ_SS, TCP, TCP_SS, UDP, IPC, TEST).
	Kind() string
}

// ErrRouteClosed is returned by Send once Close has torn the route down.
type ErrRouteClosed struct{ Route Route }

func (e *ErrRouteClosed) Error() string {
	return fmt.Sprintf("transport: route %d is closed", e.Route)
}

// disconnectFrame builds the synthetic DISCONNECT ActionMessage an
// adapter hands to RecvFunc when it detects a lost peer, so upstream
// dependency bookkeeping sees the same frame shape whether a peer
// disconnected cleanly or the connection simply died.
func disconnectFrame(source wire.FederateID) *wire.ActionMessage {
	return &wire.ActionMessage{Action: wire.ActDisconnect, SourceID: source}
}

// DisconnectFrame exposes disconnectFrame to adapter implementations in
// other packages under transport/.
func DisconnectFrame(source wire.FederateID) *wire.ActionMessage { return disconnectFrame(source) }
