package registry

import (
	"testing"

	"github.com/helioscore/cosim/cmn/cos"
)

func TestRegisterFederateCollision(t *testing.T) {
	r := New()
	defer r.Close()
	if _, err := r.RegisterFederate("f1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.RegisterFederate("f1"); !cos.IsErrNameCollision(err) {
		t.Fatalf("expected NAME_COLLISION, got %v", err)
	}
}

func TestAliasResolution(t *testing.T) {
	r := New()
	defer r.Close()
	fed, _ := r.RegisterFederate("f1")
	if _, err := r.RegisterInterface("f1/pub1", fed, KindPublication); err != nil {
		t.Fatal(err)
	}
	if err := r.AddAlias("aliasA", "f1/pub1"); err != nil {
		t.Fatal(err)
	}
	e, err := r.Resolve("aliasA")
	if err != nil {
		t.Fatal(err)
	}
	if e.Federate != fed {
		t.Fatalf("resolved to wrong federate: %+v", e)
	}

	// resolving twice yields the same handle
	e2, err := r.Resolve("aliasA")
	if err != nil {
		t.Fatal(err)
	}
	if e2.Handle != e.Handle {
		t.Fatalf("handle changed across resolutions: %v vs %v", e.Handle, e2.Handle)
	}
}

func TestAliasCycleRejected(t *testing.T) {
	r := New()
	defer r.Close()
	if err := r.AddAlias("a", "b"); err != nil {
		t.Fatal(err)
	}
	if err := r.AddAlias("b", "a"); !cos.IsErrInvalidAlias(err) {
		t.Fatalf("expected INVALID_ALIAS for cycle, got %v", err)
	}
}

func TestPatternAlias(t *testing.T) {
	r := New()
	defer r.Close()
	fed, _ := r.RegisterFederate("f2")
	if _, err := r.RegisterInterface("inpA", fed, KindInput); err != nil {
		t.Fatal(err)
	}
	if err := r.AddAlias("REGEX:publication(?P<v>.)", "inp<v>"); err != nil {
		t.Fatal(err)
	}
	e, err := r.Resolve("publicationA")
	if err != nil {
		t.Fatal(err)
	}
	if e.Federate != fed {
		t.Fatalf("pattern alias resolved to wrong federate: %+v", e)
	}
}

func TestUnknownDest(t *testing.T) {
	r := New()
	defer r.Close()
	if _, err := r.Resolve("nope"); !cos.IsErrUnknownDest(err) {
		t.Fatalf("expected UNKNOWN_DEST, got %v", err)
	}
}

func TestNamesByKind(t *testing.T) {
	r := New()
	defer r.Close()
	fed, _ := r.RegisterFederate("f1")
	if _, err := r.RegisterInterface("f1/pub1", fed, KindPublication); err != nil {
		t.Fatal(err)
	}
	if _, err := r.RegisterInterface("f1/pub2", fed, KindPublication); err != nil {
		t.Fatal(err)
	}
	if _, err := r.RegisterInterface("f1/ep1", fed, KindEndpoint); err != nil {
		t.Fatal(err)
	}

	pubs := r.NamesByKind(KindPublication)
	if len(pubs) != 2 {
		t.Fatalf("expected 2 publications, got %v", pubs)
	}
	eps := r.NamesByKind(KindEndpoint)
	if len(eps) != 1 || eps[0] != "f1/ep1" {
		t.Fatalf("expected [f1/ep1], got %v", eps)
	}
	if len(r.NamesByKind(KindInput)) != 0 {
		t.Fatalf("expected no inputs")
	}
}
