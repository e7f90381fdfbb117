// Optional lz4 block compression for large fragmented sends: an
// adapter that fragments a payload past wire.MaxFragmentPayload may
// compress it first, trading a little CPU for fewer bytes on the wire.
//
// Grounded on AIStore's own optional payload compression (several
// of its xactions compress large object bodies before shipping them
// over transport/bundle) generalized from "object body" to "ActionMessage
// payload", using the same github.com/pierrec/lz4/v3 block API rather
// than the streaming Writer/Reader, since a payload here is always
// already a complete in-memory []byte.
package transport

import (
	"fmt"

	"github.com/pierrec/lz4/v3"

	"github.com/helioscore/cosim/wire"
)

// CompressPayload lz4-block-compresses p when it exceeds
// wire.MaxFragmentPayload and doing so actually shrinks it; ok reports
// whether compression was applied; the caller sets wire.FlagCompressed
// and retains the original length when ok is true.
func CompressPayload(p []byte) (out []byte, ok bool, err error) {
	if len(p) <= wire.MaxFragmentPayload {
		return p, false, nil
	}
	buf := make([]byte, lz4.CompressBlockBound(len(p)))
	n, err := lz4.CompressBlock(p, buf, nil)
	if err != nil {
		return nil, false, fmt.Errorf("transport: lz4 compress: %w", err)
	}
	if n == 0 || n >= len(p) {
		return p, false, nil
	}
	return buf[:n], true, nil
}

// DecompressPayload reverses CompressPayload, given the original
// (uncompressed) length carried alongside the frame.
func DecompressPayload(p []byte, originalLen int) ([]byte, error) {
	out := make([]byte, originalLen)
	n, err := lz4.UncompressBlock(p, out)
	if err != nil {
		return nil, fmt.Errorf("transport: lz4 decompress: %w", err)
	}
	return out[:n], nil
}
