package tcpss

import (
	"context"
	"testing"
	"time"

	"github.com/helioscore/cosim/transport"
	"github.com/helioscore/cosim/wire"
)

func TestSendReceiveRoundTripMultiplexesTwoRoutes(t *testing.T) {
	server, err := New(1, "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recvCh := make(chan *wire.ActionMessage, 8)
	go server.Serve(ctx, func(_ transport.Route, msg *wire.ActionMessage) {
		recvCh <- msg
	})

	client, err := New(2, "")
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	routeA, err := client.Connect(ctx, server.Addr())
	if err != nil {
		t.Fatal(err)
	}
	routeB, err := client.Connect(ctx, server.Addr())
	if err != nil {
		t.Fatal(err)
	}
	if routeA == routeB {
		t.Fatal("expected distinct logical routes over the shared connection")
	}
	go client.Serve(ctx, func(transport.Route, *wire.ActionMessage) {})

	if err := client.Send(routeA, &wire.ActionMessage{Action: wire.ActRegisterCore, Payload: []byte("fedA")}); err != nil {
		t.Fatal(err)
	}
	if err := client.Send(routeB, &wire.ActionMessage{Action: wire.ActRegisterCore, Payload: []byte("fedB")}); err != nil {
		t.Fatal(err)
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-recvCh:
			seen[string(msg.Payload)] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for frame")
		}
	}
	if !seen["fedA"] || !seen["fedB"] {
		t.Fatalf("got %v", seen)
	}
}
