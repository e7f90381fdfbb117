// Command cosimbroker runs a standalone routing broker: either the root
// of a federation (no --parent) or a mid-tree broker joining an already
// running parent. It hosts no federates itself; see cmd/cosimcore for
// that.
//
// Grounded on cmd/xmeta's own main-package shape: a private flags
// struct populated via a freshly constructed flag.FlagSet (discarding
// any flags registered by imported packages), no CLI framework.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/helioscore/cosim/broker"
	"github.com/helioscore/cosim/cmn/nlog"
	"github.com/helioscore/cosim/transport"
	"github.com/helioscore/cosim/transport/inproc"
	"github.com/helioscore/cosim/transport/tcp"
	"github.com/helioscore/cosim/transport/tcpss"
	"github.com/helioscore/cosim/transport/udp"
	"github.com/helioscore/cosim/transport/zmq"
	"github.com/helioscore/cosim/wire"
)

var flags struct {
	name     string
	coretype string
	listen   string
	parent   string
	httpAddr string
	logLevel int
}

func main() {
	newFlag := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	newFlag.StringVar(&flags.name, "name", "broker", "this broker's name")
	newFlag.StringVar(&flags.coretype, "coretype", "TCP", "transport: ZMQ|ZMQ_SS|TCP|TCP_SS|UDP|IPC|TEST")
	newFlag.StringVar(&flags.listen, "listen", ":23404", "address this broker accepts child connections on")
	newFlag.StringVar(&flags.parent, "parent", "", "address of a parent broker to join under (empty: this is the root)")
	newFlag.StringVar(&flags.httpAddr, "httpaddr", ":23405", "address the query REST API listens on")
	newFlag.IntVar(&flags.logLevel, "loglevel", 2, "log verbosity")
	newFlag.Parse(os.Args[1:])

	nlog.SetTitle("cosimbroker")
	nlog.SetVerbosity(flags.logLevel)

	adapter, err := newAdapter(wire.InvalidFederateID, flags.coretype, flags.listen)
	if err != nil {
		nlog.Errorf("cosimbroker: build transport: %v", err)
		os.Exit(1)
	}

	var n *broker.Node
	if flags.parent == "" {
		n = broker.NewRoot(flags.name)
	} else {
		n, err = broker.NewChild(flags.name, adapter, flags.parent, wire.ActRegisterBroker)
		if err != nil {
			nlog.Errorf("cosimbroker: join parent %s: %v", flags.parent, err)
			os.Exit(1)
		}
	}
	// adapter's own connections are duplex (TCP/UDP/TCP_SS/ZMQ/ZMQ_SS), so
	// a child's registration can reply on the very route it arrived on.
	n.BindListenAdapter(adapter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpSrv := broker.NewHTTPServer(n, flags.httpAddr)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil {
			nlog.Errorf("cosimbroker: query API: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		nlog.Infof("cosimbroker %s: shutting down", flags.name)
		_ = httpSrv.Shutdown()
		cancel()
	}()

	nlog.Infof("cosimbroker %s: serving on %s (coretype=%s)", flags.name, flags.listen, flags.coretype)
	if err := adapter.Serve(ctx, n.RecvFunc()); err != nil && ctx.Err() == nil {
		nlog.Errorf("cosimbroker: serve: %v", err)
		os.Exit(1)
	}
}

// newAdapter constructs the transport.Adapter named by coretype,
// listening on listenAddr when the adapter kind supports accepting
// inbound connections (every kind except IPC/TEST, which rendezvous
// through a process-wide inproc.Registry instead of a socket).
func newAdapter(self wire.FederateID, coretype, listenAddr string) (transport.Adapter, error) {
	switch coretype {
	case "TCP":
		return tcp.New(self, listenAddr)
	case "TCP_SS":
		return tcpss.New(self, listenAddr)
	case "UDP":
		return udp.New(self, listenAddr)
	case "ZMQ":
		return zmq.New(self, listenAddr)
	case "ZMQ_SS":
		return zmq.NewSS(self, listenAddr)
	case "IPC", "TEST":
		return inproc.New(inproc.NewRegistry(), self), nil
	default:
		return nil, fmt.Errorf("cosimbroker: unknown --coretype %q", coretype)
	}
}
