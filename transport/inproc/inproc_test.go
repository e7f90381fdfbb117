package inproc

import (
	"context"
	"testing"
	"time"

	"github.com/helioscore/cosim/transport"
	"github.com/helioscore/cosim/wire"
)

func TestSendRecvFIFO(t *testing.T) {
	reg := NewRegistry()
	sender := New(reg, 1)
	receiver := New(reg, 2)

	sendRoute, err := sender.Connect(context.Background(), "core:b")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := receiver.Connect(context.Background(), "core:b"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan *wire.ActionMessage, 8)
	go func() {
		_ = receiver.Serve(ctx, func(_ transport.Route, msg *wire.ActionMessage) { got <- msg })
	}()

	for i := uint32(0); i < 5; i++ {
		if err := sender.Send(sendRoute, &wire.ActionMessage{Action: wire.ActData, Sequence: i}); err != nil {
			t.Fatal(err)
		}
	}

	for i := uint32(0); i < 5; i++ {
		select {
		case msg := <-got:
			if msg.Sequence != i {
				t.Fatalf("out of order: got seq %d, want %d", msg.Sequence, i)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for frame")
		}
	}
	cancel()
}

func TestCloseSynthesizesDisconnect(t *testing.T) {
	reg := NewRegistry()
	sender := New(reg, 1)
	receiver := New(reg, 2)
	if _, err := sender.Connect(context.Background(), "core:c"); err != nil {
		t.Fatal(err)
	}
	if _, err := receiver.Connect(context.Background(), "core:c"); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	got := make(chan *wire.ActionMessage, 1)
	go func() {
		_ = receiver.Serve(ctx, func(_ transport.Route, msg *wire.ActionMessage) { got <- msg })
	}()

	if err := sender.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-got:
		if msg.Action != wire.ActDisconnect {
			t.Fatalf("expected synthesized DISCONNECT, got %s", msg.Action)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect")
	}
}
