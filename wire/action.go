// Package wire defines the ActionMessage frame: the only inter-component
// vocabulary exchanged between cores and brokers. Every transport adapter
// sends and receives exactly this frame; no component branches on
// transport kind, only on Action.
//
// Grounded on transport's ObjHdr/Obj split in AIStore (a small fixed
// header plus an opaque payload blob) generalized from "object being
// streamed" to "control-or-data frame," and on transport/pdu.go's
// chunking idea for payloads that exceed a single frame.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/helioscore/cosim/ticks"
)

// Action is the frame's opcode.
type Action uint32

const (
	ActRegisterCore Action = iota + 1
	ActRegisterBroker
	ActRegisterFederate
	ActRegisterPublication
	ActRegisterInput
	ActRegisterEndpoint
	ActAddTarget
	ActAddAlias
	ActData   // value
	ActMessage // endpoint message
	ActFilterClone
	ActTimeRequest
	ActTimeGrant
	ActExecRequest
	ActExecGrant
	ActQuery
	ActQueryReply
	ActCommand
	ActDisconnect
	ActErrorMsg
	ActTerminate
)

func (a Action) String() string {
	switch a {
	case ActRegisterCore:
		return "REGISTER_CORE"
	case ActRegisterBroker:
		return "REGISTER_BROKER"
	case ActRegisterFederate:
		return "REGISTER_FEDERATE"
	case ActRegisterPublication:
		return "REGISTER_PUBLICATION"
	case ActRegisterInput:
		return "REGISTER_INPUT"
	case ActRegisterEndpoint:
		return "REGISTER_ENDPOINT"
	case ActAddTarget:
		return "ADD_TARGET"
	case ActAddAlias:
		return "ADD_ALIAS"
	case ActData:
		return "DATA"
	case ActMessage:
		return "MESSAGE"
	case ActFilterClone:
		return "FILTER_CLONE"
	case ActTimeRequest:
		return "TIME_REQUEST"
	case ActTimeGrant:
		return "TIME_GRANT"
	case ActExecRequest:
		return "EXEC_REQUEST"
	case ActExecGrant:
		return "EXEC_GRANT"
	case ActQuery:
		return "QUERY"
	case ActQueryReply:
		return "QUERY_REPLY"
	case ActCommand:
		return "COMMAND"
	case ActDisconnect:
		return "DISCONNECT"
	case ActErrorMsg:
		return "ERROR_MSG"
	case ActTerminate:
		return "TERMINATE"
	default:
		return fmt.Sprintf("Action(%d)", uint32(a))
	}
}

// Flags is the bitfield carried in every frame.
type Flags uint32

const (
	FlagIterationRequested Flags = 1 << iota
	FlagRequired
	FlagOptional
	FlagGlobalInterface
	FlagInitializationMode
	FlagError
	FlagEventTriggered
	FlagCallbackFederate
	FlagConnectionsRequired
	FlagOnlyUpdateOnChange
	FlagCompressed
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// FederateID, InterfaceHandle, RouteID, MessageID are four disjoint
// 32-bit handle spaces. MessageID is declared 64-bit in the wire header
// (monotonic per source over the process lifetime) even though the
// in-memory handle spaces are 32-bit.
type (
	FederateID      uint32
	InterfaceHandle uint32
	RouteID         uint32
	MessageID       uint64
)

const (
	InvalidFederateID      FederateID      = 0
	InvalidInterfaceHandle InterfaceHandle = 0
	InvalidRouteID         RouteID         = 0
)

const magic = 0x48454C43 // "HELC"

const HeaderSize = 48

// extHeaderSize is the size of the time_granted+sequence+counter block
// that follows the documented 48-byte header, before the payload.
const extHeaderSize = 16

// ActionMessage is the wire frame. Field order matches the byte layout
// exactly so Encode/Decode are a straight field-by-field little-endian
// marshal, no reflection involved.
type ActionMessage struct {
	Action        Action
	SourceID      FederateID
	DestID        FederateID
	SourceHandle  InterfaceHandle
	DestHandle    InterfaceHandle
	MessageID     MessageID
	ActionTime    ticks.Time
	TimeGranted   ticks.Time
	Sequence      uint32
	Flags         Flags
	Counter       uint32
	Payload       []byte
}

// Encode serializes m into its fixed 48-byte header:
//
//	0  4  magic
//	4  4  action
//	8  4  source_id
//	12 4  dest_id
//	16 4  source_handle
//	20 4  dest_handle
//	24 8  message_id
//	32 8  action_time
//	40 4  flags
//	44 4  payload_length
//	48 .. payload
//
// time_granted, sequence, and counter are additional fixed-width fields
// placed immediately after the documented 48-byte header, so the first
// 48 bytes of every frame on the wire carry exactly the core identity and
// routing fields.
func (m *ActionMessage) Encode() []byte {
	buf := make([]byte, HeaderSize+extHeaderSize+len(m.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(m.Action))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(m.SourceID))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(m.DestID))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(m.SourceHandle))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(m.DestHandle))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(m.MessageID))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(m.ActionTime))
	binary.LittleEndian.PutUint32(buf[40:44], uint32(m.Flags))
	binary.LittleEndian.PutUint32(buf[44:48], uint32(len(m.Payload)))
	binary.LittleEndian.PutUint64(buf[48:56], uint64(m.TimeGranted))
	binary.LittleEndian.PutUint32(buf[56:60], m.Sequence)
	binary.LittleEndian.PutUint32(buf[60:64], m.Counter)
	copy(buf[64:], m.Payload)
	return buf
}

// Decode is Encode's exact inverse: deserialize(serialize(m)) == m for
// every defined frame kind.
func Decode(buf []byte) (*ActionMessage, error) {
	if len(buf) < HeaderSize+extHeaderSize {
		return nil, fmt.Errorf("wire: frame too short: %d bytes", len(buf))
	}
	if got := binary.LittleEndian.Uint32(buf[0:4]); got != magic {
		return nil, fmt.Errorf("wire: bad magic %#x", got)
	}
	m := &ActionMessage{
		Action:       Action(binary.LittleEndian.Uint32(buf[4:8])),
		SourceID:     FederateID(binary.LittleEndian.Uint32(buf[8:12])),
		DestID:       FederateID(binary.LittleEndian.Uint32(buf[12:16])),
		SourceHandle: InterfaceHandle(binary.LittleEndian.Uint32(buf[16:20])),
		DestHandle:   InterfaceHandle(binary.LittleEndian.Uint32(buf[20:24])),
		MessageID:    MessageID(binary.LittleEndian.Uint64(buf[24:32])),
		ActionTime:   ticks.Time(binary.LittleEndian.Uint64(buf[32:40])),
		Flags:        Flags(binary.LittleEndian.Uint32(buf[40:44])),
	}
	plen := binary.LittleEndian.Uint32(buf[44:48])
	m.TimeGranted = ticks.Time(binary.LittleEndian.Uint64(buf[48:56]))
	m.Sequence = binary.LittleEndian.Uint32(buf[56:60])
	m.Counter = binary.LittleEndian.Uint32(buf[60:64])
	if uint32(len(buf)-HeaderSize-extHeaderSize) < plen {
		return nil, fmt.Errorf("wire: payload length mismatch: header says %d, have %d", plen, len(buf)-HeaderSize-extHeaderSize)
	}
	m.Payload = append([]byte(nil), buf[HeaderSize+extHeaderSize:HeaderSize+extHeaderSize+int(plen)]...)
	return m, nil
}

func (m *ActionMessage) String() string {
	return fmt.Sprintf("%s[src=%d/%d dst=%d/%d t=%s plen=%d]",
		m.Action, m.SourceID, m.SourceHandle, m.DestID, m.DestHandle, m.ActionTime, len(m.Payload))
}

// MaxFragmentPayload is the 64 KiB payload size threshold for
// fragmentation. No adapter in this module fragments a payload; every
// frame is sent whole.
const MaxFragmentPayload = 64 * 1024

// MessageIDGen is a per-source monotonic counter, exposed as a
// constructor helper so cores don't each hand-roll their own.
type MessageIDGen struct{ n uint64 }

func (g *MessageIDGen) Next() MessageID {
	g.n++
	return MessageID(g.n)
}
