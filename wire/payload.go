// Value payload encoding: a DATA frame's Payload carries a
// msgp-encoded ValuePayload rather than a bare float string, so a
// vector or complex publication crosses the wire as a typed,
// self-describing binary blob instead of a printf'd scalar.
//
// Grounded on AIStore's hand-rolled msgp usage in xact/xs/lso.go
// and ext/dsort/dsort.go (MarshalMsg/UnmarshalMsg called directly
// against a []byte buffer, no generated code retrieved alongside it -
// AIStore itself writes these bodies by hand for types outside its
// codegen'd set), reusing the same append/read-bytes calling
// convention from github.com/tinylib/msgp/msgp.
package wire

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

// ValueKind discriminates which field of a ValuePayload is populated.
type ValueKind uint8

const (
	ValueScalar ValueKind = iota
	ValueVector
	ValueComplex
	ValueString
)

// ValuePayload is the wire shape of one published value: exactly one
// of Scalar, Vector, (Re, Im), or Str is meaningful, selected by Kind.
type ValuePayload struct {
	Kind   ValueKind
	Scalar float64
	Vector []float64
	Re, Im float64
	Str    string
}

var (
	_ msgp.Marshaler   = (*ValuePayload)(nil)
	_ msgp.Unmarshaler = (*ValuePayload)(nil)
)

// MarshalMsg appends the msgp encoding of v to b, satisfying
// msgp.Marshaler.
func (v *ValuePayload) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendArrayHeader(b, 2)
	b = msgp.AppendUint8(b, uint8(v.Kind))
	switch v.Kind {
	case ValueScalar:
		b = msgp.AppendFloat64(b, v.Scalar)
	case ValueVector:
		b = msgp.AppendArrayHeader(b, uint32(len(v.Vector)))
		for _, f := range v.Vector {
			b = msgp.AppendFloat64(b, f)
		}
	case ValueComplex:
		b = msgp.AppendArrayHeader(b, 2)
		b = msgp.AppendFloat64(b, v.Re)
		b = msgp.AppendFloat64(b, v.Im)
	case ValueString:
		b = msgp.AppendString(b, v.Str)
	default:
		return nil, fmt.Errorf("wire: unknown ValueKind %d", v.Kind)
	}
	return b, nil
}

// UnmarshalMsg decodes v from the head of b, returning the remaining
// bytes, satisfying msgp.Unmarshaler.
func (v *ValuePayload) UnmarshalMsg(b []byte) ([]byte, error) {
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	if sz != 2 {
		return nil, fmt.Errorf("wire: ValuePayload: expected array of 2, got %d", sz)
	}
	kind, b, err := msgp.ReadUint8Bytes(b)
	if err != nil {
		return nil, err
	}
	v.Kind = ValueKind(kind)
	switch v.Kind {
	case ValueScalar:
		v.Scalar, b, err = msgp.ReadFloat64Bytes(b)
	case ValueVector:
		var n uint32
		n, b, err = msgp.ReadArrayHeaderBytes(b)
		if err != nil {
			return nil, err
		}
		v.Vector = make([]float64, n)
		for i := range v.Vector {
			v.Vector[i], b, err = msgp.ReadFloat64Bytes(b)
			if err != nil {
				return nil, err
			}
		}
	case ValueComplex:
		var n uint32
		n, b, err = msgp.ReadArrayHeaderBytes(b)
		if err != nil {
			return nil, err
		}
		if n != 2 {
			return nil, fmt.Errorf("wire: ValuePayload: complex array of %d, want 2", n)
		}
		v.Re, b, err = msgp.ReadFloat64Bytes(b)
		if err != nil {
			return nil, err
		}
		v.Im, b, err = msgp.ReadFloat64Bytes(b)
	case ValueString:
		v.Str, b, err = msgp.ReadStringBytes(b)
	default:
		return nil, fmt.Errorf("wire: unknown ValueKind %d", v.Kind)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// EncodeValuePayload is the ActData frame payload convenience: marshal
// v into a fresh byte slice.
func EncodeValuePayload(v *ValuePayload) ([]byte, error) {
	return v.MarshalMsg(nil)
}

// DecodeValuePayload is EncodeValuePayload's inverse.
func DecodeValuePayload(b []byte) (*ValuePayload, error) {
	v := &ValuePayload{}
	rest, err := v.UnmarshalMsg(b)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("wire: ValuePayload: %d trailing bytes", len(rest))
	}
	return v, nil
}
