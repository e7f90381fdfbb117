package wire

import (
	"testing"

	"github.com/helioscore/cosim/ticks"
)

func TestRoundTrip(t *testing.T) {
	cases := []*ActionMessage{
		{
			Action: ActData, SourceID: 1, DestID: 2, SourceHandle: 3, DestHandle: 4,
			MessageID: 99, ActionTime: ticks.Time(12345), TimeGranted: ticks.Time(12000),
			Sequence: 7, Flags: FlagRequired | FlagGlobalInterface, Counter: 3,
			Payload: []byte("hello world"),
		},
		{Action: ActDisconnect, SourceID: 5, Payload: nil},
		{Action: ActTimeGrant, ActionTime: ticks.TimeMax},
	}
	for _, want := range cases {
		buf := want.Encode()
		got, err := Decode(buf)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Action != want.Action || got.SourceID != want.SourceID || got.DestID != want.DestID ||
			got.SourceHandle != want.SourceHandle || got.DestHandle != want.DestHandle ||
			got.MessageID != want.MessageID || got.ActionTime != want.ActionTime ||
			got.TimeGranted != want.TimeGranted || got.Sequence != want.Sequence ||
			got.Flags != want.Flags || got.Counter != want.Counter ||
			string(got.Payload) != string(want.Payload) {
			t.Fatalf("round-trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestDecodeBadMagic(t *testing.T) {
	buf := (&ActionMessage{Action: ActData}).Encode()
	buf[0] ^= 0xff
	if _, err := Decode(buf); err == nil {
		t.Fatal("expected error on corrupted magic")
	}
}

func TestDecodeTruncated(t *testing.T) {
	buf := (&ActionMessage{Action: ActData, Payload: []byte("x")}).Encode()
	if _, err := Decode(buf[:len(buf)-1]); err == nil {
		t.Fatal("expected error on truncated frame")
	}
}

func TestFlagsHas(t *testing.T) {
	f := FlagIterationRequested | FlagError
	if !f.Has(FlagError) {
		t.Fatal("expected FlagError set")
	}
	if f.Has(FlagOptional) {
		t.Fatal("did not expect FlagOptional set")
	}
}
