package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/helioscore/cosim/registry"
)

func TestQueryPublicationsAnswersFromRootRegistry(t *testing.T) {
	root := NewRoot("root")
	fed, err := root.registry.RegisterFederate("f1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := root.registry.RegisterInterface("f1/pub1", fed, registry.KindPublication); err != nil {
		t.Fatal(err)
	}

	results, err := root.query.Ask(context.Background(), QueryPublications, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one contributor (root has no children), got %d", len(results))
	}
	var names []string
	if err := json.Unmarshal(results[0], &names); err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "f1/pub1" {
		t.Fatalf("expected [f1/pub1], got %v", names)
	}
}

func TestQueryEndpointsEmptyOnNonRootContribution(t *testing.T) {
	child := newNode("child1")
	answer := child.interfaceNames(registry.KindEndpoint)
	if answer != nil {
		t.Fatalf("expected nil from a node with no registry, got %v", answer)
	}
}
