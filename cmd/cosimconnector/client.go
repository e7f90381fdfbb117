// Broker-facing plumbing for the connector driver: a Directory backed by
// polling the broker's query REST API, and a Linker that issues
// ADD_ALIAS frames over a direct wire connection to the broker.
//
// Grounded on cmd/cosimcore's sendUpAndWait correlation idiom (mint a
// MessageID, register a channel keyed by it, unblock whichever reply
// arrives first bearing that ID) reused here for a client with no
// hosted federate of its own, just a raw request/reply link to the
// broker.
package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/helioscore/cosim/broker"
	"github.com/helioscore/cosim/connector"
	"github.com/helioscore/cosim/transport"
	"github.com/helioscore/cosim/wire"
)

const linkTimeout = 5 * time.Second

// httpDirectory answers connector.Directory by polling the broker's
// query REST API for the publication/input/endpoint names currently
// registered anywhere in the federation. Tag values come from the
// connector's own --tags flag rather than the broker, since the wire
// protocol has no tag registry of its own to query.
type httpDirectory struct {
	client  *fasthttp.Client
	baseURL string
	tags    map[string]string
}

func newHTTPDirectory(baseURL string, tags map[string]string) *httpDirectory {
	return &httpDirectory{client: &fasthttp.Client{}, baseURL: baseURL, tags: tags}
}

func (d *httpDirectory) Names() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, target := range []string{broker.QueryPublications, broker.QueryEndpoints} {
		for _, n := range d.queryNames(target) {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				names = append(names, n)
			}
		}
	}
	return names
}

func (d *httpDirectory) queryNames(target string) []string {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(d.baseURL + "/v1/query/" + target)
	if err := d.client.DoTimeout(req, resp, linkTimeout); err != nil {
		return nil
	}
	return flattenQueryNames(resp.Body())
}

// flattenQueryNames walks a query response's arbitrarily nested JSON
// array shape - one level per broker hop, since each broker merges its
// own local answer with every child's already-merged answer - and
// collects every string leaf it finds.
func flattenQueryNames(raw json.RawMessage) []string {
	var s *string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == nil {
			return nil // a null leaf contributes no names
		}
		return []string{*s}
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil
	}
	var names []string
	for _, v := range arr {
		names = append(names, flattenQueryNames(v)...)
	}
	return names
}

func (d *httpDirectory) TagValue(tag string) (string, bool) {
	v, ok := d.tags[tag]
	return v, ok
}

// wireLinker issues connector.Linker.Connect as ADD_ALIAS frames sent
// directly to the broker over adapter, correlating each reply by
// MessageID the way a Core correlates its own registration replies.
type wireLinker struct {
	adapter transport.Adapter
	route   transport.Route
	idgen   wire.MessageIDGen

	mu      sync.Mutex
	pending map[wire.MessageID]chan *wire.ActionMessage
}

func newWireLinker(adapter transport.Adapter, route transport.Route) *wireLinker {
	return &wireLinker{adapter: adapter, route: route, pending: make(map[wire.MessageID]chan *wire.ActionMessage)}
}

// recv is the transport.RecvFunc driving this linker's Serve loop.
func (l *wireLinker) recv(_ transport.Route, msg *wire.ActionMessage) {
	l.mu.Lock()
	ch, ok := l.pending[msg.MessageID]
	if ok {
		delete(l.pending, msg.MessageID)
	}
	l.mu.Unlock()
	if ok {
		ch <- msg
	}
}

// Connect aliases to to from (ToFrom and FromTo just swap which side is
// the alias source; Bidirectional issues both).
func (l *wireLinker) Connect(from, to string, dir connector.Direction) error {
	switch dir {
	case connector.FromTo:
		return l.addAlias(to, from)
	case connector.ToFrom:
		return l.addAlias(from, to)
	case connector.Bidirectional:
		if err := l.addAlias(to, from); err != nil {
			return err
		}
		return l.addAlias(from, to)
	default:
		return fmt.Errorf("cosimconnector: unknown direction %v", dir)
	}
}

func (l *wireLinker) addAlias(aliasName, target string) error {
	id := l.idgen.Next()
	payload := []byte(aliasName + "\x00" + target)
	msg := &wire.ActionMessage{Action: wire.ActAddAlias, MessageID: id, Payload: payload}

	ch := make(chan *wire.ActionMessage, 1)
	l.mu.Lock()
	l.pending[id] = ch
	l.mu.Unlock()

	if err := l.adapter.Send(l.route, msg); err != nil {
		l.mu.Lock()
		delete(l.pending, id)
		l.mu.Unlock()
		return err
	}

	select {
	case reply := <-ch:
		if reply.Flags.Has(wire.FlagError) {
			return fmt.Errorf("cosimconnector: alias %s -> %s: %s", aliasName, target, string(reply.Payload))
		}
		return nil
	case <-time.After(linkTimeout):
		l.mu.Lock()
		delete(l.pending, id)
		l.mu.Unlock()
		return fmt.Errorf("cosimconnector: alias %s -> %s: timed out", aliasName, target)
	}
}

// parseTags turns a "k1=v1,k2=v2" flag value into a tag map.
func parseTags(s string) map[string]string {
	tags := make(map[string]string)
	if s == "" {
		return tags
	}
	for _, kv := range strings.Split(s, ",") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		tags[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return tags
}
