// Command cosimconnector runs a standalone connector: it polls a
// broker's publication/endpoint tables for names matching a declared
// rule set and issues the ADD_ALIAS frames that bind matched pairs
// together, without either federate knowing the other's name.
//
// Grounded on cmd/xmeta's own main-package shape (private flags struct,
// a freshly constructed flag.FlagSet) and, for the polling loop itself,
// on AIStore's own bucket-resync idiom (repeat an idempotent full
// pass on a timer rather than trying to diff against the last pass).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/helioscore/cosim/cmn/nlog"
	"github.com/helioscore/cosim/connector"
	"github.com/helioscore/cosim/transport/tcp"
	"github.com/helioscore/cosim/wire"
)

var flags struct {
	queryAddr string
	wireAddr  string
	rulesPath string
	tags      string
	interval  time.Duration
	logLevel  int
}

func main() {
	newFlag := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	newFlag.StringVar(&flags.queryAddr, "queryaddr", "http://127.0.0.1:23405", "broker query REST API base URL")
	newFlag.StringVar(&flags.wireAddr, "wireaddr", "127.0.0.1:23404", "broker wire-protocol address for issuing ADD_ALIAS frames")
	newFlag.StringVar(&flags.rulesPath, "rules", "", "path to a JSON rule-set file")
	newFlag.StringVar(&flags.tags, "tags", "", "comma-separated key=value tag overrides gating RequiredTags")
	newFlag.DurationVar(&flags.interval, "interval", 5*time.Second, "re-evaluation period")
	newFlag.IntVar(&flags.logLevel, "loglevel", 2, "log verbosity")
	newFlag.Parse(os.Args[1:])

	nlog.SetTitle("cosimconnector")
	nlog.SetVerbosity(flags.logLevel)

	if flags.rulesPath == "" {
		nlog.Errorf("cosimconnector: --rules is required")
		os.Exit(1)
	}
	rules, err := loadRules(flags.rulesPath)
	if err != nil {
		nlog.Errorf("cosimconnector: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		nlog.Infof("cosimconnector: received signal, shutting down")
		cancel()
	}()

	adapter, err := tcp.New(wire.InvalidFederateID, "")
	if err != nil {
		nlog.Errorf("cosimconnector: build transport: %v", err)
		os.Exit(1)
	}
	route, err := adapter.Connect(ctx, flags.wireAddr)
	if err != nil {
		nlog.Errorf("cosimconnector: connect to %s: %v", flags.wireAddr, err)
		os.Exit(1)
	}
	linker := newWireLinker(adapter, route)
	go func() {
		if err := adapter.Serve(ctx, linker.recv); err != nil && ctx.Err() == nil {
			nlog.Errorf("cosimconnector: serve: %v", err)
		}
	}()

	dir := newHTTPDirectory(flags.queryAddr, parseTags(flags.tags))
	conn := connector.New(dir, linker)

	ticker := time.NewTicker(flags.interval)
	defer ticker.Stop()
	for {
		if err := conn.Apply(rules); err != nil {
			nlog.Warningf("cosimconnector: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ruleFile is the on-disk JSON shape a rule set is declared in: string
// directions, translated into connector.Direction on load.
type ruleFile struct {
	Rules []struct {
		InterfaceA   string   `json:"interface_a"`
		InterfaceB   string   `json:"interface_b"`
		Direction    string   `json:"direction"`
		RequiredTags []string `json:"required_tags"`
	} `json:"rules"`
}

func loadRules(path string) ([]connector.Rule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rf ruleFile
	if err := json.Unmarshal(b, &rf); err != nil {
		return nil, err
	}
	rules := make([]connector.Rule, 0, len(rf.Rules))
	for _, r := range rf.Rules {
		rules = append(rules, connector.Rule{
			InterfaceA:   r.InterfaceA,
			InterfaceB:   r.InterfaceB,
			Direction:    parseDirection(r.Direction),
			RequiredTags: r.RequiredTags,
		})
	}
	return rules, nil
}

func parseDirection(s string) connector.Direction {
	switch s {
	case "TO_FROM":
		return connector.ToFrom
	case "BIDIRECTIONAL":
		return connector.Bidirectional
	default:
		return connector.FromTo
	}
}
