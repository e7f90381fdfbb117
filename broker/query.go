// Query engine: QUERY frames are answered from this node's local
// tables and fanned out to every child, aggregated back under a
// per-query correlation ID, and fanned back in to the asker.
//
// Grounded on AIStore's bucket-summary fan-out (ask every target,
// merge partial results keyed by a request ID) generalized from
// "per-bucket object counts" to "federation-wide query targets",
// using golang.org/x/sync/errgroup for the fan-out instead of a
// hand-rolled WaitGroup+error channel the way AIStore's older
// code does it.
package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/helioscore/cosim/registry"
	"github.com/helioscore/cosim/wire"
)

// Target names the broker-local tables a QUERY frame may ask for.
const (
	QueryFederates    = "federates"
	QueryPublications = "publications"
	QueryEndpoints    = "endpoints"
	QueryGlobalTime   = "global_time"
)

type queryState struct {
	mu      sync.Mutex
	want    int
	got     int
	results []json.RawMessage
	done    chan struct{}
}

type queryEngine struct {
	n  *Node
	mu sync.Mutex
	id wire.MessageIDGen

	pending map[wire.MessageID]*queryState
}

func newQueryEngine(n *Node) *queryEngine {
	return &queryEngine{n: n, pending: make(map[wire.MessageID]*queryState)}
}

// Ask issues target as a QUERY, fanning it out to every child this node
// has, merging this node's own local answer with every child's reply,
// and returning the aggregated JSON array once all replies are in or
// timeout elapses.
func (q *queryEngine) Ask(ctx context.Context, target string, timeout time.Duration) ([]json.RawMessage, error) {
	id := q.id.Next()
	q.n.mu.Lock()
	children := make([]*Link, 0, len(q.n.children))
	for _, l := range q.n.children {
		children = append(children, l)
	}
	q.n.mu.Unlock()

	st := &queryState{want: len(children) + 1, done: make(chan struct{})}
	q.mu.Lock()
	q.pending[id] = st
	q.mu.Unlock()

	local := q.answerLocal(target)
	q.contribute(st, local)

	var g errgroup.Group
	for _, link := range children {
		link := link
		g.Go(func() error {
			frame := &wire.ActionMessage{Action: wire.ActQuery, MessageID: id, Payload: []byte(target)}
			return link.Adapter.Send(link.Route, frame)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	select {
	case <-st.done:
	case <-time.After(timeout):
	case <-ctx.Done():
	}

	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.results, nil
}

func (q *queryEngine) contribute(st *queryState, answer json.RawMessage) {
	st.mu.Lock()
	st.results = append(st.results, answer)
	st.got++
	done := st.got >= st.want
	st.mu.Unlock()
	if done {
		close(st.done)
	}
}

// answerLocal builds this node's own contribution to target, without
// waiting on any child.
func (q *queryEngine) answerLocal(target string) json.RawMessage {
	switch target {
	case QueryFederates:
		q.n.mu.Lock()
		names := make([]wire.FederateID, 0, len(q.n.federateRoute))
		for fed := range q.n.federateRoute {
			names = append(names, fed)
		}
		q.n.mu.Unlock()
		b, _ := json.Marshal(names)
		return b
	case QueryGlobalTime:
		b, _ := json.Marshal(q.n.GlobalTime())
		return b
	case QueryPublications:
		b, _ := json.Marshal(q.n.interfaceNames(registry.KindPublication))
		return b
	case QueryEndpoints:
		b, _ := json.Marshal(q.n.interfaceNames(registry.KindEndpoint))
		return b
	default:
		b, _ := json.Marshal(map[string]string{"node": q.n.Name, "target": target})
		return b
	}
}

// handleQuery answers a QUERY frame fanned down from the parent: it
// merges this node's own local answer with the fan-out to its own
// children, then replies with a single QUERY_REPLY back up to the
// parent it necessarily arrived from (queries only ever flow downward
// from the root that originated them, so the reply path is always "my
// own parent", never an arbitrary child).
func (q *queryEngine) handleQuery(msg *wire.ActionMessage) {
	target := string(msg.Payload)
	results, _ := q.Ask(context.Background(), target, 2*time.Second)
	merged, _ := json.Marshal(results)
	reply := &wire.ActionMessage{
		Action:    wire.ActQueryReply,
		MessageID: msg.MessageID,
		Payload:   merged,
	}
	q.n.mu.Lock()
	parent := q.n.parent
	q.n.mu.Unlock()
	if parent != nil {
		_ = parent.Adapter.Send(parent.Route, reply)
	}
}

// handleQueryReply is a child's answer arriving back at the node that
// fanned the query out; it contributes to the matching pending state.
func (q *queryEngine) handleQueryReply(msg *wire.ActionMessage) {
	q.mu.Lock()
	st, ok := q.pending[msg.MessageID]
	q.mu.Unlock()
	if !ok {
		return
	}
	q.contribute(st, msg.Payload)
}
