// Package connector implements pattern-based interface linking: a
// connector consumes a list of (interface_a, interface_b, direction,
// tag_set) rules and issues the addTarget calls that bind two
// federates' interfaces together without either federate knowing the
// other's name.
//
// Grounded on registry's REGEX: pattern-alias matcher (regexp.Compile
// plus named-capture template substitution) generalized from "one
// pattern source resolving to one target template" to "two candidate
// name pools, paired wherever their named captures agree", and on
// registry's own name-collision guard for the connector's
// re-application dedup set — the same "never admit a duplicate for a
// key already seen" discipline, applied to a (from,to,direction) link
// key instead of a registered name.
package connector

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/helioscore/cosim/cmn/nlog"
)

// Direction names which side of a rule is the target-issuing side.
type Direction int

const (
	FromTo Direction = iota
	ToFrom
	Bidirectional
)

func (d Direction) String() string {
	switch d {
	case FromTo:
		return "FROM_TO"
	case ToFrom:
		return "TO_FROM"
	case Bidirectional:
		return "BIDIRECTIONAL"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Rule is one declared link: interface_a and interface_b are either
// concrete names or `REGEX:pattern` matchers with named capture groups;
// RequiredTags names every tag that must be set somewhere in the
// federation, to any value other than "" or "false", for this rule to
// apply.
type Rule struct {
	InterfaceA   string
	InterfaceB   string
	Direction    Direction
	RequiredTags []string
}

// Directory is the read-only view into the federation's known interface
// and alias-source names a rule's patterns are matched against, plus
// the federation-wide tag table. A connector never registers or
// resolves names itself — that stays the root registry's job — it only
// decides which pairs of already-known names a rule names.
type Directory interface {
	Names() []string
	TagValue(tag string) (string, bool)
}

// Linker issues the actual addTarget call binding two resolved names
// together in the given direction. Implementations are expected to be
// idempotent on their own (the underlying addTarget is); Connector
// additionally dedupes so a correctly-behaving Linker never even
// observes a repeat.
type Linker interface {
	Connect(from, to string, dir Direction) error
}

// Connector applies a rule set against a Directory, issuing Linker
// calls for every pattern-matched, tag-gated pair not already made.
type Connector struct {
	mu   sync.Mutex
	dir  Directory
	link Linker
	made map[string]struct{}
}

func New(dir Directory, link Linker) *Connector {
	return &Connector{dir: dir, link: link, made: make(map[string]struct{})}
}

// Apply evaluates every rule against the current directory snapshot and
// issues any link not already made. Calling Apply again with the same
// rules against an unchanged directory issues no new links.
func (c *Connector) Apply(rules []Rule) error {
	var errs []error
	for _, r := range rules {
		if !c.tagsSatisfied(r.RequiredTags) {
			continue
		}
		for _, p := range c.matchPairs(r) {
			if err := c.connect(p.a, p.b, r.Direction); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("connector: %d link(s) failed: %v", len(errs), errs[0])
}

func (c *Connector) tagsSatisfied(required []string) bool {
	for _, tag := range required {
		v, ok := c.dir.TagValue(tag)
		if !ok || v == "" || v == "false" {
			return false
		}
	}
	return true
}

type pair struct{ a, b string }

// matchPairs expands a rule into the concrete (a,b) name pairs it
// names. A plain rule (neither side a REGEX: pattern) is always exactly
// one pair. A pattern rule pairs every name in Names() matching side A
// with every name matching side B whose named capture groups agree on
// every group name the two patterns share; if the two patterns share no
// named group, every match on one side pairs with every match on the
// other.
func (c *Connector) matchPairs(r Rule) []pair {
	aIsPattern := strings.HasPrefix(r.InterfaceA, "REGEX:")
	bIsPattern := strings.HasPrefix(r.InterfaceB, "REGEX:")
	if !aIsPattern && !bIsPattern {
		return []pair{{r.InterfaceA, r.InterfaceB}}
	}

	names := c.dir.Names()
	if !aIsPattern {
		reB, errB := regexp.Compile(strings.TrimPrefix(r.InterfaceB, "REGEX:"))
		if errB != nil {
			nlog.Errorf("connector: bad pattern %q: %v", r.InterfaceB, errB)
			return nil
		}
		var out []pair
		for _, n := range names {
			if reB.MatchString(n) {
				out = append(out, pair{r.InterfaceA, n})
			}
		}
		return out
	}
	if !bIsPattern {
		reA, errA := regexp.Compile(strings.TrimPrefix(r.InterfaceA, "REGEX:"))
		if errA != nil {
			nlog.Errorf("connector: bad pattern %q: %v", r.InterfaceA, errA)
			return nil
		}
		var out []pair
		for _, n := range names {
			if reA.MatchString(n) {
				out = append(out, pair{n, r.InterfaceB})
			}
		}
		return out
	}

	reA, errA := regexp.Compile(strings.TrimPrefix(r.InterfaceA, "REGEX:"))
	reB, errB := regexp.Compile(strings.TrimPrefix(r.InterfaceB, "REGEX:"))
	if errA != nil || errB != nil {
		nlog.Errorf("connector: bad pattern in rule %q / %q", r.InterfaceA, r.InterfaceB)
		return nil
	}
	sharedGroups := commonGroupNames(reA, reB)

	type capturedMatch struct {
		name   string
		groups map[string]string
	}
	var matchesA, matchesB []capturedMatch
	for _, n := range names {
		if m := reA.FindStringSubmatch(n); m != nil {
			matchesA = append(matchesA, capturedMatch{n, namedGroups(reA, m)})
		}
		if m := reB.FindStringSubmatch(n); m != nil {
			matchesB = append(matchesB, capturedMatch{n, namedGroups(reB, m)})
		}
	}

	var out []pair
	for _, ma := range matchesA {
		for _, mb := range matchesB {
			if ma.name == mb.name {
				continue
			}
			if groupsAgree(ma.groups, mb.groups, sharedGroups) {
				out = append(out, pair{ma.name, mb.name})
			}
		}
	}
	return out
}

func namedGroups(re *regexp.Regexp, m []string) map[string]string {
	out := make(map[string]string)
	for i, g := range re.SubexpNames() {
		if g == "" || i >= len(m) {
			continue
		}
		out[g] = m[i]
	}
	return out
}

func commonGroupNames(a, b *regexp.Regexp) []string {
	bNames := make(map[string]bool)
	for _, g := range b.SubexpNames() {
		if g != "" {
			bNames[g] = true
		}
	}
	var out []string
	for _, g := range a.SubexpNames() {
		if g != "" && bNames[g] {
			out = append(out, g)
		}
	}
	return out
}

func groupsAgree(a, b map[string]string, shared []string) bool {
	for _, g := range shared {
		if a[g] != b[g] {
			return false
		}
	}
	return true
}

// connect resolves a rule's direction into one or two Linker.Connect
// calls, deduplicating against links already issued by this Connector.
func (c *Connector) connect(a, b string, dir Direction) error {
	switch dir {
	case FromTo:
		return c.connectOne(a, b, FromTo)
	case ToFrom:
		return c.connectOne(b, a, FromTo)
	case Bidirectional:
		if err := c.connectOne(a, b, FromTo); err != nil {
			return err
		}
		return c.connectOne(b, a, FromTo)
	default:
		return fmt.Errorf("connector: unknown direction %v", dir)
	}
}

func (c *Connector) connectOne(from, to string, dir Direction) error {
	key := from + "\x00" + to + "\x00" + dir.String()
	c.mu.Lock()
	if _, done := c.made[key]; done {
		c.mu.Unlock()
		return nil
	}
	c.made[key] = struct{}{}
	c.mu.Unlock()

	if err := c.link.Connect(from, to, dir); err != nil {
		c.mu.Lock()
		delete(c.made, key)
		c.mu.Unlock()
		return err
	}
	nlog.Infof("connector: linked %s -> %s", from, to)
	return nil
}
