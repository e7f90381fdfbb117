package zmq

import "testing"

func TestKindReportsZMQ(t *testing.T) {
	a, err := New(1, "")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	if a.Kind() != "ZMQ" {
		t.Fatalf("got %q", a.Kind())
	}
}
