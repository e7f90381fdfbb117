package tcp

import (
	"context"
	"testing"
	"time"

	"github.com/helioscore/cosim/transport"
	"github.com/helioscore/cosim/wire"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	server, err := New(1, "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recvCh := make(chan *wire.ActionMessage, 4)
	go server.Serve(ctx, func(_ transport.Route, msg *wire.ActionMessage) {
		recvCh <- msg
	})

	client, err := New(2, "")
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	route, err := client.Connect(ctx, server.Addr())
	if err != nil {
		t.Fatal(err)
	}
	go client.Serve(ctx, func(transport.Route, *wire.ActionMessage) {})

	if err := client.Send(route, &wire.ActionMessage{Action: wire.ActRegisterCore, Payload: []byte("core1")}); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-recvCh:
		if msg.Action != wire.ActRegisterCore || string(msg.Payload) != "core1" {
			t.Fatalf("got %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestSendOnClosedRouteFails(t *testing.T) {
	a, err := New(1, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Send(transport.Route(99), &wire.ActionMessage{}); err == nil {
		t.Fatal("expected error sending on unknown route")
	}
}
