package msgfed

import (
	"testing"

	"github.com/helioscore/cosim/ticks"
)

// TestDelayedDelivery mirrors scenario S5: a message sent at t=0 with
// delay=1.2 is not yet pending at t=1.0 but is deliverable at t=2.0.
func TestDelayedDelivery(t *testing.T) {
	m := NewManager()
	sender, err := m.RegisterEndpoint("sender", false)
	if err != nil {
		t.Fatal(err)
	}
	echo, err := m.RegisterEndpoint("echo", false)
	if err != nil {
		t.Fatal(err)
	}

	const second = ticks.Time(1_000_000_000)
	delay := ticks.Time(1_200_000_000) // 1.2s

	m.SetGrantedTime(0)
	if err := m.Send(sender, "echo", []byte("ping"), delay); err != nil {
		t.Fatal(err)
	}

	m.SetGrantedTime(1 * second)
	if m.HasMessage(echo) {
		t.Fatal("message should not be deliverable yet at t=1.0")
	}

	m.SetGrantedTime(2 * second)
	if !m.HasMessage(echo) {
		t.Fatal("expected message deliverable at t=2.0")
	}
	got := m.GetMessage(echo)
	if got == nil || string(got.Payload) != "ping" || got.OrigSource != "sender" {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestUntargetedEndpointAcceptsAnyDest(t *testing.T) {
	m := NewManager()
	s, _ := m.RegisterEndpoint("s", false)
	r, _ := m.RegisterEndpoint("r", false)
	m.SetGrantedTime(0)
	if err := m.Send(s, "r", []byte("x"), 0); err != nil {
		t.Fatal(err)
	}
	if !m.HasMessage(r) {
		t.Fatal("expected immediate delivery at zero delay")
	}
}

func TestTargetedEndpointRejectsUnknownDest(t *testing.T) {
	m := NewManager()
	s, _ := m.RegisterEndpoint("s", true)
	if _, err := m.RegisterEndpoint("r", false); err != nil {
		t.Fatal(err)
	}
	m.SetGrantedTime(0)
	if err := m.Send(s, "r", []byte("x"), 0); err == nil {
		t.Fatal("expected error: r is not a declared target of targeted endpoint s")
	}
	s.AddDestination("r")
	if err := m.Send(s, "r", []byte("x"), 0); err != nil {
		t.Fatal(err)
	}
}

func TestCloningFilter(t *testing.T) {
	m := NewManager()
	s, _ := m.RegisterEndpoint("s", false)
	r, _ := m.RegisterEndpoint("r", false)
	obs, _ := m.RegisterEndpoint("observer", false)
	m.RegisterCloningFilter("clonefilter", "observer", []string{"s"}, nil)

	m.SetGrantedTime(0)
	if err := m.Send(s, "r", []byte("hi"), 0); err != nil {
		t.Fatal(err)
	}
	if !m.HasMessage(r) {
		t.Fatal("expected original delivery to r")
	}
	if !m.HasMessage(obs) {
		t.Fatal("expected clone delivered to observer")
	}
	clone := m.GetMessage(obs)
	if clone.OrigSource != "s" || clone.OrigDest != "r" {
		t.Fatalf("clone should preserve original source/dest, got %+v", clone)
	}
}
