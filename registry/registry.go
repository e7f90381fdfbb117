// Package registry implements the root broker's three authoritative
// tables - name to (federate,handle), alias to canonical name, and
// federate name to federate ID - plus pattern-alias matching. Sub-broker
// mirrors and forward-on-miss live in the broker package; registry only
// owns the root's ground truth.
//
// Grounded on AIStore's xact/xreg registry (a name-keyed, RWMutex
// guarded table with a typed lookup-or-register contract), generalized
// from "registered xaction kind" to "registered interface name"; the
// in-memory index itself is kept in buntdb rather than a bare map so
// range and prefix queries over names come for free, the way xreg's
// bucket-scoped entries are enumerated today.
package registry

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/tidwall/buntdb"
	"golang.org/x/sync/singleflight"

	"github.com/helioscore/cosim/cmn/cos"
	"github.com/helioscore/cosim/cmn/prob"
	"github.com/helioscore/cosim/wire"
)

const maxAliasHops = 8

// cycleProbeCapacity sizes cycleProbe, the filter that holds every
// registered alias source and target: a name it does not contain cannot
// be part of an alias cycle, so resolution can skip the exact
// bounded-hop chain walk for it.
const cycleProbeCapacity = 4096

// InterfaceKind distinguishes the four InterfaceHandle-space occupants
// sharing one handle counter.
type InterfaceKind int

const (
	KindPublication InterfaceKind = iota
	KindInput
	KindEndpoint
	KindFilter
)

// Entry is what a concrete (non-alias, non-pattern) name resolves to.
type Entry struct {
	Federate wire.FederateID
	Handle   wire.InterfaceHandle
	Kind     InterfaceKind
}

// patternAlias is a registered `REGEX:pattern` matcher: it rewrites a
// looked-up name into a target name by capturing named groups from the
// input and substituting them into the template, rather than mapping to
// one fixed string the way a concrete alias does.
type patternAlias struct {
	re       *regexp.Regexp
	template string
}

// Registry holds the root broker's name tables. All three tables share
// one lock since alias resolution walks federate names, interface
// names, and alias chains together.
type Registry struct {
	mu sync.RWMutex

	db *buntdb.DB // "federate:<name>" / "iface:<name>" -> ID or handle as a decimal string

	federates map[string]wire.FederateID
	entries   map[string]Entry // concrete interface name -> Entry
	aliases   map[string]string
	patterns  []patternAlias

	// cycleProbe records every name that has ever appeared as an alias
	// source or target, letting resolveChainLocked skip the bounded-hop
	// walk outright when neither the name nor any pattern could possibly
	// apply to it. A miss is conclusive (the probe can't false-negative
	// on a name it was told about); a hit still falls through to the
	// real walk, so the cuckoo filter's false-positive rate never
	// affects correctness.
	cycleProbe *prob.Filter

	// resolveSF collapses concurrent Resolve calls for the same name
	// into a single chain walk.
	resolveSF singleflight.Group

	nextFederate wire.FederateID
	nextHandle   wire.InterfaceHandle
	nextRoute    wire.RouteID
}

func New() *Registry {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		// :memory: never legitimately fails to open; a non-nil error here
		// means buntdb itself is broken.
		panic(fmt.Sprintf("registry: failed to open in-memory index: %v", err))
	}
	return &Registry{
		db:         db,
		federates:  make(map[string]wire.FederateID),
		entries:    make(map[string]Entry),
		aliases:    make(map[string]string),
		cycleProbe: prob.NewFilter(cycleProbeCapacity),
	}
}

func (r *Registry) Close() error { return r.db.Close() }

// RegisterFederate allocates a FederateID for name, failing with
// NAME_COLLISION if name is already taken.
func (r *Registry) RegisterFederate(name string) (wire.FederateID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.federates[name]; ok {
		return wire.InvalidFederateID, cos.NewErrNameCollision(name)
	}
	r.nextFederate++
	id := r.nextFederate
	r.federates[name] = id
	r.indexPut("federate:"+name, id)
	return id, nil
}

func (r *Registry) FederateID(name string) (wire.FederateID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.federates[name]
	return id, ok
}

// RegisterInterface allocates an InterfaceHandle for a concrete global
// name, failing with NAME_COLLISION on a duplicate.
func (r *Registry) RegisterInterface(name string, fed wire.FederateID, kind InterfaceKind) (wire.InterfaceHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return wire.InvalidInterfaceHandle, cos.NewErrNameCollision(name)
	}
	r.nextHandle++
	h := r.nextHandle
	r.entries[name] = Entry{Federate: fed, Handle: h, Kind: kind}
	r.indexPut("iface:"+name, h)
	return h, nil
}

func (r *Registry) NextRoute() wire.RouteID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextRoute++
	return r.nextRoute
}

func (r *Registry) indexPut(key string, id any) {
	_ = r.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, fmt.Sprintf("%v", id), nil)
		return err
	})
}

// AddAlias registers name -> target. A concrete alias (not a
// `REGEX:...` source) participates in cycle-checked chain resolution;
// adding an alias for a name that is already resolved does not retroactively
// change callers who already hold that name's handle (resolution is a
// pure function of the current table, recomputed on every Resolve call).
func (r *Registry) AddAlias(name, target string) error {
	if strings.HasPrefix(name, "REGEX:") {
		return r.addPatternAlias(name, target)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// reject cycles eagerly so a bad alias never enters the table; an
	// unresolved target is fine here, only a cycle back to name is not.
	if _, err := r.resolveChainLocked(target, map[string]bool{name: true}); err != nil {
		return err
	}
	r.aliases[name] = target
	r.cycleProbe.InsertUnique([]byte(name))
	r.cycleProbe.InsertUnique([]byte(target))
	return nil
}

func (r *Registry) addPatternAlias(sourcePattern, targetTemplate string) error {
	raw := strings.TrimPrefix(sourcePattern, "REGEX:")
	re, err := regexp.Compile(raw)
	if err != nil {
		return cos.NewErrInvalidAlias(fmt.Sprintf("%q: bad pattern: %v", sourcePattern, err))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, patternAlias{re: re, template: targetTemplate})
	return nil
}

// Resolve follows a bounded alias chain (default 8 hops) and pattern
// matchers to the concrete Entry a name ultimately designates.
// Concurrent Resolve calls for the same name collapse into a single
// chain walk via singleflight, since two callers racing to resolve the
// same freshly-registered name is the common case at startup.
func (r *Registry) Resolve(name string) (Entry, error) {
	v, err, _ := r.resolveSF.Do(name, func() (any, error) {
		r.mu.RLock()
		defer r.mu.RUnlock()
		canonical, err := r.resolveChainLocked(name, map[string]bool{})
		if err != nil {
			return Entry{}, err
		}
		e, ok := r.entries[canonical]
		if !ok {
			return Entry{}, cos.NewErrUnknownDest(canonical)
		}
		return e, nil
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

func (r *Registry) resolveChainLocked(name string, seen map[string]bool) (string, error) {
	if len(r.patterns) == 0 && !r.cycleProbe.Lookup([]byte(name)) {
		return name, nil
	}
	cur := name
	for hop := 0; hop < maxAliasHops; hop++ {
		if seen[cur] && hop > 0 {
			return "", cos.NewErrInvalidAlias(fmt.Sprintf("%q: alias cycle detected", name))
		}
		seen[cur] = true
		if target, ok := r.aliases[cur]; ok {
			cur = target
			continue
		}
		if rewritten, ok := r.matchPatternLocked(cur); ok {
			cur = rewritten
			continue
		}
		return cur, nil
	}
	return "", cos.NewErrInvalidAlias(fmt.Sprintf("%q: alias chain exceeds maximum depth", name))
}

// matchPatternLocked rewrites name against the first matching pattern
// alias: named capture groups from name are substituted into the
// template by group name.
func (r *Registry) matchPatternLocked(name string) (string, bool) {
	for _, p := range r.patterns {
		m := p.re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		out := p.template
		for i, g := range p.re.SubexpNames() {
			if g == "" {
				continue
			}
			out = strings.ReplaceAll(out, "<"+g+">", m[i])
		}
		return out, true
	}
	return "", false
}

// Lookup is the non-resolving counterpart of Resolve: it reports whether
// a concrete name is directly registered, without walking aliases.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// NamesByKind lists every concrete interface name registered under
// kind, for the broker's QUERY_PUBLICATIONS/QUERY_ENDPOINTS targets and
// the connector's Directory.
func (r *Registry) NamesByKind(kind InterfaceKind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, e := range r.entries {
		if e.Kind == kind {
			names = append(names, name)
		}
	}
	return names
}
