package connector

import (
	"testing"
)

type fakeDirectory struct {
	names []string
	tags  map[string]string
}

func (d *fakeDirectory) Names() []string { return d.names }

func (d *fakeDirectory) TagValue(tag string) (string, bool) {
	v, ok := d.tags[tag]
	return v, ok
}

type call struct {
	from, to string
	dir      Direction
}

type fakeLinker struct {
	calls []call
}

func (l *fakeLinker) Connect(from, to string, dir Direction) error {
	l.calls = append(l.calls, call{from, to, dir})
	return nil
}

func TestDirectLinkFromTo(t *testing.T) {
	dir := &fakeDirectory{}
	link := &fakeLinker{}
	c := New(dir, link)

	err := c.Apply([]Rule{{InterfaceA: "fedA/pub", InterfaceB: "fedB/inp", Direction: FromTo}})
	if err != nil {
		t.Fatal(err)
	}
	if len(link.calls) != 1 || link.calls[0] != (call{"fedA/pub", "fedB/inp", FromTo}) {
		t.Fatalf("unexpected calls: %+v", link.calls)
	}
}

func TestToFromReversesDirectionOfIssue(t *testing.T) {
	dir := &fakeDirectory{}
	link := &fakeLinker{}
	c := New(dir, link)

	if err := c.Apply([]Rule{{InterfaceA: "fedA/inp", InterfaceB: "fedB/pub", Direction: ToFrom}}); err != nil {
		t.Fatal(err)
	}
	if len(link.calls) != 1 || link.calls[0] != (call{"fedB/pub", "fedA/inp", FromTo}) {
		t.Fatalf("expected reversed issue order, got %+v", link.calls)
	}
}

func TestBidirectionalIssuesBothDirections(t *testing.T) {
	dir := &fakeDirectory{}
	link := &fakeLinker{}
	c := New(dir, link)

	if err := c.Apply([]Rule{{InterfaceA: "a", InterfaceB: "b", Direction: Bidirectional}}); err != nil {
		t.Fatal(err)
	}
	if len(link.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d: %+v", len(link.calls), link.calls)
	}
}

func TestTagGatingSkipsDisabledRule(t *testing.T) {
	dir := &fakeDirectory{tags: map[string]string{"enableLink": "false"}}
	link := &fakeLinker{}
	c := New(dir, link)

	rule := Rule{InterfaceA: "a", InterfaceB: "b", Direction: FromTo, RequiredTags: []string{"enableLink"}}
	if err := c.Apply([]Rule{rule}); err != nil {
		t.Fatal(err)
	}
	if len(link.calls) != 0 {
		t.Fatalf("expected no calls for a gated-off rule, got %+v", link.calls)
	}

	dir.tags["enableLink"] = "true"
	if err := c.Apply([]Rule{rule}); err != nil {
		t.Fatal(err)
	}
	if len(link.calls) != 1 {
		t.Fatalf("expected 1 call once tag flips true, got %+v", link.calls)
	}
}

func TestRegexPairingMatchesByCapturedGroup(t *testing.T) {
	names := []string{
		"publicationA", "publicationB", "publicationC",
		"publicationD", "publicationE", "publicationF",
		"inputA", "inputB", "inputC", "inputD", "inputE", "inputF",
	}
	dir := &fakeDirectory{names: names}
	link := &fakeLinker{}
	c := New(dir, link)

	rule := Rule{
		InterfaceA: "REGEX:publication(?P<v>.)",
		InterfaceB: "REGEX:input(?P<v>.)",
		Direction:  FromTo,
	}
	if err := c.Apply([]Rule{rule}); err != nil {
		t.Fatal(err)
	}
	if len(link.calls) != 6 {
		t.Fatalf("expected 6 capture-matched connections, got %d: %+v", len(link.calls), link.calls)
	}
	for _, cl := range link.calls {
		wantSuffix := cl.from[len("publication"):]
		if cl.to != "input"+wantSuffix {
			t.Fatalf("mismatched capture pairing: %+v", cl)
		}
	}
}

func TestIdempotentReapplyMakesNoNewLinks(t *testing.T) {
	dir := &fakeDirectory{names: []string{"publicationA", "inputA"}}
	link := &fakeLinker{}
	c := New(dir, link)

	rule := Rule{
		InterfaceA: "REGEX:publication(?P<v>.)",
		InterfaceB: "REGEX:input(?P<v>.)",
		Direction:  FromTo,
	}
	if err := c.Apply([]Rule{rule}); err != nil {
		t.Fatal(err)
	}
	if err := c.Apply([]Rule{rule}); err != nil {
		t.Fatal(err)
	}
	if len(link.calls) != 1 {
		t.Fatalf("expected exactly 1 link across two applies, got %d: %+v", len(link.calls), link.calls)
	}
}
