// Command cosimcore runs a Core: a federate-hosting endpoint that
// registers --federates synthetic federates with the federation and
// drives each through STARTUP -> INITIALIZING -> EXECUTING ->
// FINALIZE using the CLI-supplied time parameters, exercising the full
// registration/time-coordination wire path against a real broker.
//
// Grounded on cmd/xmeta's own main-package shape (private flags struct,
// a freshly constructed flag.FlagSet). Config-file parsing (JSON/TOML)
// is out of scope, matching spec.md's external-interfaces section —
// this binary is the collaborator's CLI entry point, not the federate
// API client library itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/helioscore/cosim/broker"
	"github.com/helioscore/cosim/cmn/nlog"
	"github.com/helioscore/cosim/fedstate"
	"github.com/helioscore/cosim/ticks"
	"github.com/helioscore/cosim/transport"
	"github.com/helioscore/cosim/transport/inproc"
	"github.com/helioscore/cosim/transport/tcp"
	"github.com/helioscore/cosim/transport/tcpss"
	"github.com/helioscore/cosim/transport/udp"
	"github.com/helioscore/cosim/transport/zmq"
	"github.com/helioscore/cosim/wire"
)

var flags struct {
	name       string
	coretype   string
	brokerAddr string
	federates  int
	autobroker bool
	period     int64
	offset     int64
	stoptime   int64
	timedelta  int64
	logLevel   int
}

func main() {
	newFlag := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	newFlag.StringVar(&flags.name, "name", "core", "this core's name")
	newFlag.StringVar(&flags.coretype, "coretype", "TCP", "transport: ZMQ|ZMQ_SS|TCP|TCP_SS|UDP|IPC|TEST")
	newFlag.StringVar(&flags.brokerAddr, "broker", "127.0.0.1:23404", "address of the broker to join")
	newFlag.IntVar(&flags.federates, "federates", 1, "number of federates this core hosts")
	newFlag.BoolVar(&flags.autobroker, "autobroker", false, "spawn an in-process broker if --broker is unreachable")
	newFlag.Int64Var(&flags.period, "period", 0, "time-request rounding period, in base ticks")
	newFlag.Int64Var(&flags.offset, "offset", 0, "period rounding offset, in base ticks")
	newFlag.Int64Var(&flags.stoptime, "stoptime", 0, "final granted time; 0 means unbounded")
	newFlag.Int64Var(&flags.timedelta, "timedelta", 0, "lookahead added to every requested time")
	newFlag.IntVar(&flags.logLevel, "loglevel", 2, "log verbosity")
	newFlag.Parse(os.Args[1:])

	nlog.SetTitle("cosimcore")
	nlog.SetVerbosity(flags.logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		nlog.Infof("cosimcore %s: received signal, shutting down", flags.name)
		cancel()
	}()

	adapter, node, err := connectToBroker(ctx)
	if err != nil {
		nlog.Errorf("cosimcore: %v", err)
		os.Exit(1)
	}

	c := newCore(node, adapter)
	go func() {
		if err := adapter.Serve(ctx, c.recv); err != nil && ctx.Err() == nil {
			nlog.Errorf("cosimcore: serve: %v", err)
		}
	}()

	var wg sync.WaitGroup
	var anyError bool
	var mu sync.Mutex
	for i := 0; i < flags.federates; i++ {
		fedName := fmt.Sprintf("%s.fed%d", flags.name, i)
		hf, err := c.registerFederate(fedName)
		if err != nil {
			nlog.Errorf("cosimcore: register %s: %v", fedName, err)
			mu.Lock()
			anyError = true
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(hf *hostedFederate) {
			defer wg.Done()
			if err := runFederate(ctx, hf); err != nil {
				nlog.Errorf("cosimcore: %s: %v", hf.name, err)
				mu.Lock()
				anyError = true
				mu.Unlock()
			}
		}(hf)
	}
	wg.Wait()

	if anyError {
		os.Exit(1)
	}
}

// runFederate drives one hosted federate's lifecycle using the CLI's
// time parameters: enter initializing/executing, then request time in
// --timedelta increments (rounded per --period/--offset) until
// --stoptime is reached or the coordinator reports Halted.
func runFederate(ctx context.Context, hf *hostedFederate) error {
	hf.coord.SetPeriod(ticks.Time(flags.period), ticks.Time(flags.offset))
	hf.coord.SetLookahead(ticks.Time(flags.timedelta))
	stop := ticks.TimeMax
	if flags.stoptime > 0 {
		stop = ticks.Time(flags.stoptime)
	}
	hf.coord.SetStopTime(stop)

	if err := hf.fed.EnterInitializingMode(); err != nil {
		return err
	}
	grant, err := hf.fed.EnterExecutingMode(fedstate.NoIterations)
	if err != nil {
		return err
	}
	current := grant.Time
	for {
		if ctx.Err() != nil || grant.State == fedstate.Halted || current >= stop {
			break
		}
		next := ticks.Add(current, ticks.Max(ticks.Time(flags.timedelta), 1))
		grant, err = hf.fed.RequestTime(next, fedstate.NoIterations)
		if err != nil {
			return err
		}
		current = grant.Time
		time.Sleep(time.Millisecond) // yields between requests; no real workload to simulate here
	}
	hf.fed.Finalize()
	if hf.fed.Mode() == fedstate.ErrorState {
		return fmt.Errorf("%s: entered ERROR_STATE", hf.name)
	}
	return nil
}

// connectToBroker dials --broker over the chosen transport; if that
// fails and --autobroker is set, it instead spins up an in-process root
// broker.Node over the in-process transport and joins that instead.
func connectToBroker(ctx context.Context) (transport.Adapter, *broker.Node, error) {
	adapter, err := newAdapter(wire.InvalidFederateID, flags.coretype, "")
	if err != nil {
		return nil, nil, fmt.Errorf("build transport: %w", err)
	}
	node, err := broker.NewChild(flags.name, adapter, flags.brokerAddr, wire.ActRegisterCore)
	if err == nil {
		return adapter, node, nil
	}
	if !flags.autobroker {
		return nil, nil, fmt.Errorf("connect to broker %s: %w", flags.brokerAddr, err)
	}
	nlog.Warningf("cosimcore %s: broker %s unreachable (%v), spawning an in-process autobroker", flags.name, flags.brokerAddr, err)
	return spawnAutobroker(ctx)
}

// spawnAutobroker builds an in-process root broker.Node and a Core-side
// node joined to it, mirroring broker_test.go's harness pattern exactly:
// each side gets its own named inbox (Connect+Serve on a dedicated
// adapter) plus a separate outbound adapter for sending to the other
// side's inbox, since an inproc route is send-only rather than duplex.
func spawnAutobroker(ctx context.Context) (transport.Adapter, *broker.Node, error) {
	reg := inproc.NewRegistry()
	brokerName := flags.name + ".autobroker"
	rootEndpoint := inproc.EndpointName("IPC", brokerName)
	coreEndpoint := inproc.EndpointName("IPC", flags.name)

	root := broker.NewRoot(brokerName)
	rootListener := inproc.New(reg, wire.InvalidFederateID)
	if _, err := rootListener.Connect(ctx, rootEndpoint); err != nil {
		return nil, nil, err
	}
	go rootListener.Serve(ctx, root.RecvFunc())

	root2core := inproc.New(reg, wire.InvalidFederateID)
	root.Dial = func(peerName string) (*broker.Link, error) {
		route, err := root2core.Connect(ctx, inproc.EndpointName("IPC", peerName))
		if err != nil {
			return nil, err
		}
		return &broker.Link{Adapter: root2core, Route: route, PeerName: peerName}, nil
	}

	coreListener := inproc.New(reg, wire.InvalidFederateID)
	if _, err := coreListener.Connect(ctx, coreEndpoint); err != nil {
		return nil, nil, err
	}

	core2root := inproc.New(reg, wire.InvalidFederateID)
	node, err := broker.NewChild(flags.name, core2root, rootEndpoint, wire.ActRegisterCore)
	if err != nil {
		return nil, nil, err
	}
	return coreListener, node, nil
}

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
		return nil, fmt.Errorf("unknown --coretype %q", coretype)
	}
}
