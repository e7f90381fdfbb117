package transport

import (
	"bytes"
	"testing"

	"github.com/helioscore/cosim/wire"
)

func TestCompressPayloadSkipsSmallPayloads(t *testing.T) {
	p := []byte("short")
	out, ok, err := CompressPayload(p)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no compression below MaxFragmentPayload")
	}
	if !bytes.Equal(out, p) {
		t.Fatal("expected payload unchanged")
	}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	p := bytes.Repeat([]byte("helics-cosim-payload-"), (wire.MaxFragmentPayload/21)+10)
	out, ok, err := CompressPayload(p)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a highly repetitive payload above the threshold to compress")
	}
	if len(out) >= len(p) {
		t.Fatalf("expected compressed output smaller than input: %d vs %d", len(out), len(p))
	}
	back, err := DecompressPayload(out, len(p))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back, p) {
		t.Fatal("round trip mismatch")
	}
}
