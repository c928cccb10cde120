package mmdb

import (
	"encoding/binary"
	"math"

	"github.com/ic-timon/ipgeo/mmdb/store"
)

// dataType is the type number stored in a control byte.
type dataType uint

const (
	typeExtended dataType = iota
	typePointer
	typeString
	typeDouble
	typeBytes
	typeUint16
	typeUint32
	typeMap
	typeInt32
	typeUint64
	typeUint128
	typeArray
	typeContainer
	typeEndMarker
	typeBool
	typeFloat
)

// Pointer size classes add these biases to the decoded payload.
const (
	pointerBias1 = 2048
	pointerBias2 = 526336
)

// decoder decodes values from one section of buf. Reads must stay within
// [base, end) and pointers resolve relative to base, so the same routine
// serves the data section (base = data start) and metadata (base = 0).
type decoder struct {
	buf      []byte
	base     store.FileOffset
	end      store.FileOffset
	maxDepth int
}

func newDecoder(buf []byte, base, end store.FileOffset, maxDepth int) decoder {
	if end > store.FileOffset(len(buf)) {
		end = store.FileOffset(len(buf))
	}
	return decoder{buf: buf, base: base, end: end, maxDepth: maxDepth}
}

func (d *decoder) fail(pos store.FileOffset, err error) error {
	return formatErr("decode", uint64(pos), err)
}

// read returns n bytes at pos, or ErrTruncated if they would leave the section.
func (d *decoder) read(pos store.FileOffset, n uint64) ([]byte, error) {
	if pos < d.base || pos > d.end || n > uint64(d.end-pos) {
		return nil, d.fail(pos, ErrTruncated)
	}
	return d.buf[pos : uint64(pos)+n], nil
}

// decode decodes the value at pos and returns it with the offset of the
// next value.
func (d *decoder) decode(pos store.FileOffset, depth int) (Value, store.FileOffset, error) {
	if depth > d.maxDepth {
		return Value{}, 0, d.fail(pos, ErrMalformedPointerChain)
	}
	typeNum, size, next, err := d.decodeCtrlData(pos)
	if err != nil {
		return Value{}, 0, err
	}
	return d.decodeFromType(typeNum, size, next, depth)
}

func (d *decoder) decodeCtrlData(pos store.FileOffset) (dataType, uint64, store.FileOffset, error) {
	b, err := d.read(pos, 1)
	if err != nil {
		return 0, 0, 0, err
	}
	ctrl := b[0]
	pos++

	typeNum := dataType(ctrl >> 5)
	if typeNum == typeExtended {
		b, err = d.read(pos, 1)
		if err != nil {
			return 0, 0, 0, err
		}
		typeNum = dataType(7 + uint(b[0]))
		pos++
	}

	size := uint64(ctrl & 0x1f)
	if typeNum == typePointer || size < 29 {
		return typeNum, size, pos, nil
	}

	n := size - 28
	b, err = d.read(pos, n)
	if err != nil {
		return 0, 0, 0, err
	}
	pos += store.FileOffset(n)
	switch size {
	case 29:
		size = 29 + uint64(b[0])
	case 30:
		size = 285 + uint64(binary.BigEndian.Uint16(b))
	default:
		size = 65821 + uintFromBytes(b)
	}
	return typeNum, size, pos, nil
}

func (d *decoder) decodeFromType(typeNum dataType, size uint64, pos store.FileOffset, depth int) (Value, store.FileOffset, error) {
	switch typeNum {
	case typePointer:
		target, next, err := d.decodePointer(size, pos)
		if err != nil {
			return Value{}, 0, err
		}
		v, _, err := d.decode(target, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		return v, next, nil
	case typeString:
		b, err := d.read(pos, size)
		if err != nil {
			return Value{}, 0, err
		}
		return NewString(string(b)), pos + store.FileOffset(size), nil
	case typeBytes:
		b, err := d.read(pos, size)
		if err != nil {
			return Value{}, 0, err
		}
		out := make([]byte, len(b))
		copy(out, b)
		return NewBytes(out), pos + store.FileOffset(size), nil
	case typeDouble:
		if size != 8 {
			return Value{}, 0, d.fail(pos, ErrInvalidSize)
		}
		b, err := d.read(pos, size)
		if err != nil {
			return Value{}, 0, err
		}
		return NewDouble(math.Float64frombits(binary.BigEndian.Uint64(b))), pos + 8, nil
	case typeFloat:
		if size != 4 {
			return Value{}, 0, d.fail(pos, ErrInvalidSize)
		}
		b, err := d.read(pos, size)
		if err != nil {
			return Value{}, 0, err
		}
		return NewFloat(math.Float32frombits(binary.BigEndian.Uint32(b))), pos + 4, nil
	case typeUint16, typeUint32, typeUint64:
		return d.decodeUint(typeNum, size, pos)
	case typeUint128:
		if size > 16 {
			return Value{}, 0, d.fail(pos, ErrInvalidSize)
		}
		b, err := d.read(pos, size)
		if err != nil {
			return Value{}, 0, err
		}
		var wide [16]byte
		copy(wide[16-len(b):], b)
		return NewUint128(wide), pos + store.FileOffset(size), nil
	case typeInt32:
		if size > 4 {
			return Value{}, 0, d.fail(pos, ErrInvalidSize)
		}
		b, err := d.read(pos, size)
		if err != nil {
			return Value{}, 0, err
		}
		return NewInt32(int32(uint32(uintFromBytes(b)))), pos + store.FileOffset(size), nil
	case typeBool:
		return NewBool(size != 0), pos, nil
	case typeMap:
		return d.decodeMap(size, pos, depth)
	case typeArray:
		return d.decodeArray(size, pos, depth)
	default:
		// end marker, container and reserved types carry no value
		return Value{}, pos, nil
	}
}

func (d *decoder) decodeUint(typeNum dataType, size uint64, pos store.FileOffset) (Value, store.FileOffset, error) {
	var width uint64
	switch typeNum {
	case typeUint16:
		width = 2
	case typeUint32:
		width = 4
	default:
		width = 8
	}
	if size > width {
		return Value{}, 0, d.fail(pos, ErrInvalidSize)
	}
	b, err := d.read(pos, size)
	if err != nil {
		return Value{}, 0, err
	}
	u := uintFromBytes(b)
	next := pos + store.FileOffset(size)
	switch typeNum {
	case typeUint16:
		return NewUint16(uint16(u)), next, nil
	case typeUint32:
		return NewUint32(uint32(u)), next, nil
	}
	return NewUint64(u), next, nil
}

// decodePointer returns the absolute target of a pointer and the offset just
// past the pointer's own bytes.
func (d *decoder) decodePointer(size uint64, pos store.FileOffset) (store.FileOffset, store.FileOffset, error) {
	class := (size >> 3) & 0x3
	n := class + 1
	b, err := d.read(pos, n)
	if err != nil {
		return 0, 0, err
	}
	payload := size & 0x7
	var ptr uint64
	switch class {
	case 0:
		ptr = payload<<8 | uint64(b[0])
	case 1:
		ptr = (payload<<16 | uintFromBytes(b)) + pointerBias1
	case 2:
		ptr = (payload<<24 | uintFromBytes(b)) + pointerBias2
	default:
		ptr = uintFromBytes(b)
	}
	return d.base + store.FileOffset(ptr), pos + store.FileOffset(n), nil
}

func (d *decoder) decodeMap(size uint64, pos store.FileOffset, depth int) (Value, store.FileOffset, error) {
	m := make(Map, 0, d.capacity(size, pos, 2))
	for i := uint64(0); i < size; i++ {
		keyPos := pos
		key, next, err := d.decode(pos, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		k, ok := key.AsString()
		if !ok {
			return Value{}, 0, d.fail(keyPos, ErrInvalidMapKey)
		}
		v, next, err := d.decode(next, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		m = append(m, MapEntry{Key: k, Value: v})
		pos = next
	}
	return NewMap(m), pos, nil
}

func (d *decoder) decodeArray(size uint64, pos store.FileOffset, depth int) (Value, store.FileOffset, error) {
	arr := make([]Value, 0, d.capacity(size, pos, 1))
	for i := uint64(0); i < size; i++ {
		v, next, err := d.decode(pos, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		arr = append(arr, v)
		pos = next
	}
	return NewArray(arr), pos, nil
}

// maxPrealloc caps the slice capacity reserved up front for a container.
// Larger containers grow through append as their elements decode.
const maxPrealloc = 16

// capacity bounds a container preallocation by the bytes left in the section,
// given that every element takes at least minBytes, and by maxPrealloc.
func (d *decoder) capacity(size uint64, pos store.FileOffset, minBytes uint64) uint64 {
	if pos >= d.end {
		return 0
	}
	if left := uint64(d.end-pos) / minBytes; size > left {
		size = left
	}
	return min(size, maxPrealloc)
}

func uintFromBytes(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
