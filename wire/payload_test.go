package wire

import (
	"reflect"
	"testing"
)

func roundTrip(t *testing.T, v *ValuePayload) *ValuePayload {
	t.Helper()
	b, err := EncodeValuePayload(v)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeValuePayload(b)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestValuePayloadScalarRoundTrip(t *testing.T) {
	v := &ValuePayload{Kind: ValueScalar, Scalar: 3.25}
	got := roundTrip(t, v)
	if got.Scalar != 3.25 {
		t.Fatalf("got %+v", got)
	}
}

func TestValuePayloadVectorRoundTrip(t *testing.T) {
	v := &ValuePayload{Kind: ValueVector, Vector: []float64{1, 2, 3.5, -4}}
	got := roundTrip(t, v)
	if !reflect.DeepEqual(got.Vector, v.Vector) {
		t.Fatalf("got %+v, want %+v", got.Vector, v.Vector)
	}
}

func TestValuePayloadComplexRoundTrip(t *testing.T) {
	v := &ValuePayload{Kind: ValueComplex, Re: 1.5, Im: -2.5}
	got := roundTrip(t, v)
	if got.Re != 1.5 || got.Im != -2.5 {
		t.Fatalf("got %+v", got)
	}
}

func TestValuePayloadStringRoundTrip(t *testing.T) {
	v := &ValuePayload{Kind: ValueString, Str: "hello world"}
	got := roundTrip(t, v)
	if got.Str != "hello world" {
		t.Fatalf("got %+v", got)
	}
}

func TestValuePayloadEmptyVectorRoundTrip(t *testing.T) {
	v := &ValuePayload{Kind: ValueVector, Vector: []float64{}}
	got := roundTrip(t, v)
	if len(got.Vector) != 0 {
		t.Fatalf("got %+v", got.Vector)
	}
}

func TestDecodeValuePayloadRejectsTrailingBytes(t *testing.T) {
	b, _ := EncodeValuePayload(&ValuePayload{Kind: ValueScalar, Scalar: 1})
	b = append(b, 0xFF)
	if _, err := DecodeValuePayload(b); err == nil {
		t.Fatal("expected trailing-bytes error")
	}
}
