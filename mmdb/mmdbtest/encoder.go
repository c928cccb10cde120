// Package mmdbtest builds MaxMind DB files for tests and benchmarks. It writes
// only what the reader needs to be exercised, including deliberately broken
// encodings, and is not a general database writer.
package mmdbtest

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Type numbers of the data section.
const (
	TypePointer   = 1
	TypeString    = 2
	TypeDouble    = 3
	TypeBytes     = 4
	TypeUint16    = 5
	TypeUint32    = 6
	TypeMap       = 7
	TypeInt32     = 8
	TypeUint64    = 9
	TypeUint128   = 10
	TypeArray     = 11
	TypeContainer = 12
	TypeEndMarker = 13
	TypeBool      = 14
	TypeFloat     = 15
)

// KV is one map entry. Map keeps entries in the order given.
type KV struct {
	Key   string
	Value any
}

// Map is encoded as a map with entries in slice order.
type Map []KV

// Uint128 is a big-endian 128-bit unsigned integer.
type Uint128 [16]byte

// AutoClass makes a Pointer use the smallest size class that fits.
const AutoClass = -1

// Pointer refers to Offset in the section being encoded.
type Pointer struct {
	Offset uint32
	Class  int
}

// Ptr returns a pointer to off with the smallest size class.
func Ptr(off uint32) Pointer { return Pointer{Offset: off, Class: AutoClass} }

// Raw is written verbatim.
type Raw []byte

// Encoder appends encoded values to a buffer. Offsets it returns are relative
// to the start of the buffer, which is how pointers address the data section.
type Encoder struct {
	buf []byte
}

// Bytes returns the encoded section.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the number of bytes written.
func (e *Encoder) Len() int { return len(e.buf) }

// Encode appends v and returns the offset it starts at.
func (e *Encoder) Encode(v any) (uint32, error) {
	off := uint32(len(e.buf))
	if err := e.encode(v); err != nil {
		return 0, err
	}
	return off, nil
}

func (e *Encoder) encode(v any) error {
	switch v := v.(type) {
	case Raw:
		e.buf = append(e.buf, v...)
	case Pointer:
		return e.writePointer(v)
	case string:
		e.writeCtrl(TypeString, len(v))
		e.buf = append(e.buf, v...)
	case []byte:
		e.writeCtrl(TypeBytes, len(v))
		e.buf = append(e.buf, v...)
	case float64:
		e.writeCtrl(TypeDouble, 8)
		e.buf = binary.BigEndian.AppendUint64(e.buf, math.Float64bits(v))
	case float32:
		e.writeCtrl(TypeFloat, 4)
		e.buf = binary.BigEndian.AppendUint32(e.buf, math.Float32bits(v))
	case uint16:
		e.writeUint(TypeUint16, uint64(v))
	case uint32:
		e.writeUint(TypeUint32, uint64(v))
	case uint64:
		e.writeUint(TypeUint64, v)
	case int32:
		e.writeUint(TypeInt32, uint64(uint32(v)))
	case Uint128:
		b := v[:]
		for len(b) > 0 && b[0] == 0 {
			b = b[1:]
		}
		e.writeCtrl(TypeUint128, len(b))
		e.buf = append(e.buf, b...)
	case bool:
		size := 0
		if v {
			size = 1
		}
		e.writeCtrl(TypeBool, size)
	case Map:
		e.writeCtrl(TypeMap, len(v))
		for _, kv := range v {
			if err := e.encode(kv.Key); err != nil {
				return err
			}
			if err := e.encode(kv.Value); err != nil {
				return err
			}
		}
	case []any:
		e.writeCtrl(TypeArray, len(v))
		for _, x := range v {
			if err := e.encode(x); err != nil {
				return err
			}
		}
	case []string:
		e.writeCtrl(TypeArray, len(v))
		for _, x := range v {
			if err := e.encode(x); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("mmdbtest: cannot encode %T", v)
	}
	return nil
}

// WriteCtrl appends a control byte for typ with a payload of size bytes (or
// entries). The payload itself is not written.
func (e *Encoder) WriteCtrl(typ, size int) { e.writeCtrl(typ, size) }

func (e *Encoder) writeCtrl(typ, size int) {
	var sizeBits byte
	var ext []byte
	switch {
	case size < 29:
		sizeBits = byte(size)
	case size < 285:
		sizeBits = 29
		ext = []byte{byte(size - 29)}
	case size < 65821:
		sizeBits = 30
		ext = binary.BigEndian.AppendUint16(nil, uint16(size-285))
	default:
		sizeBits = 31
		s := size - 65821
		ext = []byte{byte(s >> 16), byte(s >> 8), byte(s)}
	}
	if typ <= 7 {
		e.buf = append(e.buf, byte(typ)<<5|sizeBits)
	} else {
		e.buf = append(e.buf, sizeBits, byte(typ-7))
	}
	e.buf = append(e.buf, ext...)
}

func (e *Encoder) writeUint(typ int, u uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], u)
	i := 0
	for i < 8 && b[i] == 0 {
		i++
	}
	e.writeCtrl(typ, 8-i)
	e.buf = append(e.buf, b[i:]...)
}

// Pointer class limits, before the class bias is removed.
const (
	pointerBias1 = 2048
	pointerBias2 = 526336
	pointerBias3 = pointerBias2 + 1<<27
)

func pointerClass(off uint32) int {
	switch {
	case off < pointerBias1:
		return 0
	case off < pointerBias2:
		return 1
	case off < pointerBias3:
		return 2
	}
	return 3
}

func (e *Encoder) writePointer(p Pointer) error {
	class := p.Class
	if class == AutoClass {
		class = pointerClass(p.Offset)
	}
	off := uint64(p.Offset)
	var v uint64
	switch class {
	case 0:
		v = off
	case 1:
		v = off - pointerBias1
	case 2:
		v = off - pointerBias2
	case 3:
		v = off
	default:
		return fmt.Errorf("mmdbtest: pointer class %d", class)
	}
	if class != 3 && (off < [...]uint64{0, pointerBias1, pointerBias2}[class] || v >= 1<<(11+8*class)) {
		return fmt.Errorf("mmdbtest: offset %d does not fit pointer class %d", off, class)
	}
	n := class + 1
	high := byte(0)
	if class != 3 {
		high = byte(v>>(8*n)) & 0x7
	}
	e.buf = append(e.buf, TypePointer<<5|byte(class)<<3|high)
	for i := n - 1; i >= 0; i-- {
		e.buf = append(e.buf, byte(v>>(8*i)))
	}
	return nil
}
