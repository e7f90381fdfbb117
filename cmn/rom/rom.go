// Package rom ("read-only-mostly") caches hot configuration values that
// are read on every dispatcher tick so the rest of the runtime does not
// pay a map lookup or mutex for values that change, at most, a few times
// per process lifetime. Mirrors AIStore's cmn.Rom / cmn/rom.go.
package rom

import "time"

type hot struct {
	cplaneTimeout    time.Duration
	keepaliveTimeout time.Duration
	level            int
	testingEnv       bool
}

var Rom hot

func init() {
	Rom.cplaneTimeout = time.Second + time.Millisecond
	Rom.keepaliveTimeout = 2*time.Second + time.Millisecond
}

// Config is the minimal shape broker/core startup populates Rom from.
// Parsing Config from JSON/TOML/flags is left to an external collaborator;
// this struct is the contract such a collaborator fills in.
type Config struct {
	CplaneTimeout    time.Duration
	KeepaliveTimeout time.Duration
	LogLevel         int
	TestingEnv       bool
}

func (h *hot) Set(cfg *Config) {
	h.cplaneTimeout = cfg.CplaneTimeout
	h.keepaliveTimeout = cfg.KeepaliveTimeout
	h.level = cfg.LogLevel
	h.testingEnv = cfg.TestingEnv
}

func (h *hot) CplaneOperation() time.Duration { return h.cplaneTimeout }
func (h *hot) MaxKeepalive() time.Duration    { return h.keepaliveTimeout }
func (h *hot) TestingEnv() bool               { return h.testingEnv }
func (h *hot) FastV(verbosity int) bool       { return h.level >= verbosity }
