// Package shm implements the shared-memory transport primitives: a
// caller-owned circular byte buffer of variable-length records, a
// dual-ended stack layout for priority-reversed drain, and the blocking
// priority queue built from the two.
//
// Grounded on AIStore's own mechanical-sympathy style (memsys slab
// pooling, transport/pdu.go's raw byte-buffer chunking) even though no
// teacher file implements a ring buffer directly; the locking discipline
// (separate push/pull locks, a condition variable gating only the
// fully-empty case) mirrors transport/bundle/stream_bundle.go's SQ/SCQ
// split between producer and consumer sides.
package shm

import (
	"encoding/binary"
	"fmt"
)

// wrapSentinel, written as the 4-byte length prefix at the write head,
// tells a reader "wrap to origin and read the next length there".
const wrapSentinel = -1

// CircularBufferRaw is a FIFO of variable-length records over a
// caller-owned byte block of capacity C. Each record is prefixed by a
// 4-byte signed length (record bytes, not including the prefix).
type CircularBufferRaw struct {
	buf        []byte
	readHead   int
	writeHead  int
	isFullFlag bool // read == write can mean "empty" or "completely full"; disambiguated here
}

func NewCircularBufferRaw(capacity int) *CircularBufferRaw {
	return &CircularBufferRaw{buf: make([]byte, capacity)}
}

func (c *CircularBufferRaw) Cap() int { return len(c.buf) }

func (c *CircularBufferRaw) Empty() bool {
	return c.readHead == c.writeHead && !c.isFullFlag
}

func (c *CircularBufferRaw) Clear() {
	c.readHead, c.writeHead, c.isFullFlag = 0, 0, false
}

// spaceAvailable reports whether n+4 bytes can be written without
// clobbering the unread region, under a two-case contract: (a) the write
// head has room before capacity, or (b) after wrapping, the write head
// has room before the read head.
func (c *CircularBufferRaw) spaceAvailable(n int) bool {
	need := n + 4
	cap_ := len(c.buf)
	if c.isFullFlag {
		return false
	}
	if c.writeHead >= c.readHead {
		// contiguous room to the end...
		if cap_-c.writeHead >= need {
			return true
		}
		// ...or after wrapping, room before the read head (leave at
		// least the sentinel-readable gap, i.e. strictly less than to
		// avoid reproducing the full/empty ambiguity)
		return c.readHead > need
	}
	// write head has already wrapped ahead of read head
	return c.readHead-c.writeHead >= need
}

func (c *CircularBufferRaw) SpaceAvailable(n int) bool { return c.spaceAvailable(n) }

// Push writes a record; it succeeds iff SpaceAvailable(len(data)) is true.
func (c *CircularBufferRaw) Push(data []byte) error {
	n := len(data)
	if !c.spaceAvailable(n) {
		return fmt.Errorf("shm: circular buffer full: need %d bytes", n+4)
	}
	cap_ := len(c.buf)
	need := n + 4
	if c.writeHead >= c.readHead && cap_-c.writeHead < need {
		// not enough contiguous room to the end: write the wrap
		// sentinel and lay the record at origin.
		binary.LittleEndian.PutUint32(c.buf[c.writeHead:], ^uint32(0)) // wrapSentinel (-1) as a 4-byte prefix
		c.writeHead = 0
	}
	binary.LittleEndian.PutUint32(c.buf[c.writeHead:], uint32(n))
	copy(c.buf[c.writeHead+4:], data)
	c.writeHead += need
	if c.writeHead == cap_ {
		c.writeHead = 0
	}
	if c.writeHead == c.readHead {
		c.isFullFlag = true
	}
	return nil
}

// Pop reads the next record into a fresh slice, bitwise identical to what
// was pushed.
func (c *CircularBufferRaw) Pop() ([]byte, error) {
	if c.Empty() {
		return nil, fmt.Errorf("shm: circular buffer empty")
	}
	cap_ := len(c.buf)
	length := int32(binary.LittleEndian.Uint32(c.buf[c.readHead:]))
	if length == wrapSentinel {
		c.readHead = 0
		length = int32(binary.LittleEndian.Uint32(c.buf[c.readHead:]))
	}
	start := c.readHead + 4
	out := make([]byte, length)
	copy(out, c.buf[start:start+int(length)])
	c.readHead = start + int(length)
	c.isFullFlag = false
	if cap_-c.readHead < 8 {
		c.readHead = 0
	}
	if c.readHead == cap_ {
		c.readHead = 0
	}
	return out, nil
}
