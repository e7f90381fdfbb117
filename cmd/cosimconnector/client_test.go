package main

import (
	"encoding/json"
	"reflect"
	"sort"
	"testing"
)

func TestFlattenQueryNamesSingleHop(t *testing.T) {
	raw := json.RawMessage(`["f1/pub1","f1/pub2"]`)
	names := flattenQueryNames(raw)
	sort.Strings(names)
	want := []string{"f1/pub1", "f1/pub2"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("got %v, want %v", names, want)
	}
}

func TestFlattenQueryNamesMultiHopWithNulls(t *testing.T) {
	// the queried node contributes nothing (null), one child contributes
	// two names, a grandchild contributes none.
	raw := json.RawMessage(`[null,[["c1/pub1","c1/pub2"],null]]`)
	names := flattenQueryNames(raw)
	sort.Strings(names)
	want := []string{"c1/pub1", "c1/pub2"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("got %v, want %v", names, want)
	}
}

func TestParseTags(t *testing.T) {
	tags := parseTags("a=1, b=2,bad")
	if tags["a"] != "1" || tags["b"] != "2" {
		t.Fatalf("got %v", tags)
	}
	if _, ok := tags["bad"]; ok {
		t.Fatalf("malformed entry should be skipped")
	}
}
