// REST surface over the query engine: GET /v1/query/<target> answers
// from the broker-local tables, the same targets a ActQuery frame would
// reach, for operators and the CLI tools to poll without speaking the
// wire protocol.
//
// Grounded on AIStore's preference for fasthttp over net/http on
// hot control-plane paths (AIStore's own proxy/target HTTP surface
// is fasthttp-backed), reused here for the broker's query endpoint.
package broker

import (
	"context"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/helioscore/cosim/cmn/nlog"
)

const queryPrefix = "/v1/query/"

// HTTPServer exposes a Node's query engine over fasthttp.
type HTTPServer struct {
	n    *Node
	addr string
	srv  *fasthttp.Server
}

func NewHTTPServer(n *Node, addr string) *HTTPServer {
	h := &HTTPServer{n: n, addr: addr}
	h.srv = &fasthttp.Server{Handler: h.handle, Name: "cosim-broker"}
	return h
}

func (h *HTTPServer) ListenAndServe() error {
	nlog.Infof("broker %s: query API listening on %s", h.n.Name, h.addr)
	return h.srv.ListenAndServe(h.addr)
}

func (h *HTTPServer) Shutdown() error { return h.srv.Shutdown() }

func (h *HTTPServer) handle(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	if !strings.HasPrefix(path, queryPrefix) {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	target := strings.TrimPrefix(path, queryPrefix)
	qctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	results, err := h.n.query.Ask(qctx, target, 2*time.Second)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(err.Error())
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.WriteString("[")
	for i, r := range results {
		if i > 0 {
			ctx.WriteString(",")
		}
		ctx.Write(r)
	}
	ctx.WriteString("]")
}
