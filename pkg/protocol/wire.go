package protocol

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// encoder appends protobuf fields to a buffer. Pointer arguments that are nil
// and nil slices are omitted.
type encoder struct {
	b []byte
}

func (e *encoder) varint(num protowire.Number, v uint64) {
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, v)
}

func (e *encoder) uint32(num protowire.Number, v *uint32) {
	if v != nil {
		e.varint(num, uint64(*v))
	}
}

func (e *encoder) uint64(num protowire.Number, v *uint64) {
	if v != nil {
		e.varint(num, *v)
	}
}

func (e *encoder) int32(num protowire.Number, v *int32) {
	if v != nil {
		e.varint(num, uint64(int64(*v)))
	}
}

func (e *encoder) bool(num protowire.Number, v *bool) {
	if v != nil {
		e.varint(num, protowire.EncodeBool(*v))
	}
}

func (e *encoder) float(num protowire.Number, v *float32) {
	if v != nil {
		e.b = protowire.AppendTag(e.b, num, protowire.Fixed32Type)
		e.b = protowire.AppendFixed32(e.b, math.Float32bits(*v))
	}
}

func (e *encoder) string(num protowire.Number, v *string) {
	if v != nil {
		e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
		e.b = protowire.AppendString(e.b, *v)
	}
}

func (e *encoder) bytes(num protowire.Number, v []byte) {
	if v != nil {
		e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
		e.b = protowire.AppendBytes(e.b, v)
	}
}

func (e *encoder) uint32s(num protowire.Number, vs []uint32) {
	for _, v := range vs {
		e.varint(num, uint64(v))
	}
}

func (e *encoder) packedUint32s(num protowire.Number, vs []uint32) {
	if len(vs) == 0 {
		return
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	e.bytes(num, packed)
}

func (e *encoder) int32s(num protowire.Number, vs []int32) {
	for _, v := range vs {
		e.varint(num, uint64(int64(v)))
	}
}

func (e *encoder) packedFloats(num protowire.Number, vs []float32) {
	if len(vs) == 0 {
		return
	}
	packed := make([]byte, 0, 4*len(vs))
	for _, v := range vs {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	e.bytes(num, packed)
}

func (e *encoder) strings(num protowire.Number, vs []string) {
	for i := range vs {
		e.string(num, &vs[i])
	}
}

func (e *encoder) bytesList(num protowire.Number, vs [][]byte) {
	for _, v := range vs {
		if v == nil {
			v = []byte{}
		}
		e.bytes(num, v)
	}
}

// message appends a length-delimited nested message
func (e *encoder) message(num protowire.Number, fn func(*encoder)) {
	var nested encoder
	fn(&nested)
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, nested.b)
}

// field is one decoded tag plus the unconsumed remainder of the buffer.
// Each accessor consumes the value and returns the byte count.
type field struct {
	num protowire.Number
	typ protowire.Type
	b   []byte
}

func (f *field) wrongType(want protowire.Type) error {
	return fmt.Errorf("field %d: wire type %d, want %d", f.num, f.typ, want)
}

func (f *field) varint() (uint64, int, error) {
	if f.typ != protowire.VarintType {
		return 0, 0, f.wrongType(protowire.VarintType)
	}
	v, n := protowire.ConsumeVarint(f.b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func (f *field) uint32(dst **uint32) (int, error) {
	v, n, err := f.varint()
	if err != nil {
		return 0, err
	}
	x := uint32(v)
	*dst = &x
	return n, nil
}

func (f *field) uint64(dst **uint64) (int, error) {
	v, n, err := f.varint()
	if err != nil {
		return 0, err
	}
	*dst = &v
	return n, nil
}

func (f *field) int32(dst **int32) (int, error) {
	v, n, err := f.varint()
	if err != nil {
		return 0, err
	}
	x := int32(v)
	*dst = &x
	return n, nil
}

func (f *field) bool(dst **bool) (int, error) {
	v, n, err := f.varint()
	if err != nil {
		return 0, err
	}
	x := protowire.DecodeBool(v)
	*dst = &x
	return n, nil
}

func (f *field) float(dst **float32) (int, error) {
	if f.typ != protowire.Fixed32Type {
		return 0, f.wrongType(protowire.Fixed32Type)
	}
	v, n := protowire.ConsumeFixed32(f.b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	x := math.Float32frombits(v)
	*dst = &x
	return n, nil
}

func (f *field) rawBytes() ([]byte, int, error) {
	if f.typ != protowire.BytesType {
		return nil, 0, f.wrongType(protowire.BytesType)
	}
	v, n := protowire.ConsumeBytes(f.b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func (f *field) string(dst **string) (int, error) {
	v, n, err := f.rawBytes()
	if err != nil {
		return 0, err
	}
	s := string(v)
	*dst = &s
	return n, nil
}

func (f *field) bytes(dst *[]byte) (int, error) {
	v, n, err := f.rawBytes()
	if err != nil {
		return 0, err
	}
	*dst = append([]byte{}, v...)
	return n, nil
}

func (f *field) uint32s(dst *[]uint32) (int, error) {
	if f.typ == protowire.BytesType {
		packed, n, err := f.rawBytes()
		if err != nil {
			return 0, err
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeVarint(packed)
			if m < 0 {
				return 0, protowire.ParseError(m)
			}
			*dst = append(*dst, uint32(v))
			packed = packed[m:]
		}
		return n, nil
	}
	v, n, err := f.varint()
	if err != nil {
		return 0, err
	}
	*dst = append(*dst, uint32(v))
	return n, nil
}

func (f *field) int32s(dst *[]int32) (int, error) {
	if f.typ == protowire.BytesType {
		packed, n, err := f.rawBytes()
		if err != nil {
			return 0, err
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeVarint(packed)
			if m < 0 {
				return 0, protowire.ParseError(m)
			}
			*dst = append(*dst, int32(v))
			packed = packed[m:]
		}
		return n, nil
	}
	v, n, err := f.varint()
	if err != nil {
		return 0, err
	}
	*dst = append(*dst, int32(v))
	return n, nil
}

func (f *field) floats(dst *[]float32) (int, error) {
	if f.typ == protowire.BytesType {
		packed, n, err := f.rawBytes()
		if err != nil {
			return 0, err
		}
		if len(packed)%4 != 0 {
			return 0, fmt.Errorf("field %d: packed floats length %d", f.num, len(packed))
		}
		for len(packed) > 0 {
			v, _ := protowire.ConsumeFixed32(packed)
			*dst = append(*dst, math.Float32frombits(v))
			packed = packed[4:]
		}
		return n, nil
	}
	var x *float32
	n, err := f.float(&x)
	if err != nil {
		return 0, err
	}
	*dst = append(*dst, *x)
	return n, nil
}

func (f *field) strings(dst *[]string) (int, error) {
	v, n, err := f.rawBytes()
	if err != nil {
		return 0, err
	}
	*dst = append(*dst, string(v))
	return n, nil
}

func (f *field) bytesList(dst *[][]byte) (int, error) {
	v, n, err := f.rawBytes()
	if err != nil {
		return 0, err
	}
	*dst = append(*dst, append([]byte{}, v...))
	return n, nil
}

// message decodes a nested message through fn
func (f *field) message(fn func([]byte) error) (int, error) {
	v, n, err := f.rawBytes()
	if err != nil {
		return 0, err
	}
	if err := fn(v); err != nil {
		return 0, err
	}
	return n, nil
}

// parseFields walks every field in b. fn returns the bytes it consumed, or 0
// for a field it does not know, which is then skipped.
func parseFields(b []byte, fn func(f *field) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ, b: b}
		m, err := fn(&f)
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}
		}
		b = b[m:]
	}
	return nil
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}
