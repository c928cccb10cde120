package mmdb

import (
	"encoding/base64"
	"math/big"

	jsoniter "github.com/json-iterator/go"
)

// Kind identifies the type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota // end marker, container and reserved types
	KindString
	KindBytes
	KindDouble
	KindFloat
	KindInt32
	KindUint16
	KindUint32
	KindUint64
	KindUint128
	KindBool
	KindMap
	KindArray
)

var kindNames = [...]string{
	KindNull:    "null",
	KindString:  "string",
	KindBytes:   "bytes",
	KindDouble:  "double",
	KindFloat:   "float",
	KindInt32:   "int32",
	KindUint16:  "uint16",
	KindUint32:  "uint32",
	KindUint64:  "uint64",
	KindUint128: "uint128",
	KindBool:    "bool",
	KindMap:     "map",
	KindArray:   "array",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is one decoded data-section value. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	raw  []byte // bytes, or the 16 big-endian bytes of a uint128
	num  uint64 // uint16/32/64, bool
	i32  int32
	f64  float64 // double, float
	m    Map
	arr  []Value
}

// MapEntry is one key/value pair of a Map.
type MapEntry struct {
	Key   string
	Value Value
}

// Map is a decoded map in encounter order. It is never re-sorted.
type Map []MapEntry

// Get returns the value stored under key.
func (m Map) Get(key string) (Value, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Keys returns the keys in encounter order.
func (m Map) Keys() []string {
	keys := make([]string, len(m))
	for i, e := range m {
		keys[i] = e.Key
	}
	return keys
}

func NewString(s string) Value { return Value{kind: KindString, str: s} }
func NewBytes(b []byte) Value { return Value{kind: KindBytes, raw: b} }
func NewDouble(f float64) Value { return Value{kind: KindDouble, f64: f} }
func NewFloat(f float32) Value { return Value{kind: KindFloat, f64: float64(f)} }
func NewInt32(i int32) Value { return Value{kind: KindInt32, i32: i} }
func NewUint16(u uint16) Value { return Value{kind: KindUint16, num: uint64(u)} }
func NewUint32(u uint32) Value { return Value{kind: KindUint32, num: uint64(u)} }
func NewUint64(u uint64) Value { return Value{kind: KindUint64, num: u} }
func NewMap(m Map) Value { return Value{kind: KindMap, m: m} }
func NewArray(a []Value) Value { return Value{kind: KindArray, arr: a} }
func NewUint128(b [16]byte) Value { return Value{kind: KindUint128, raw: append([]byte(nil), b[:]...)} }
func NewBool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// Kind returns the type of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v holds no data.
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }
func (v Value) AsBytes() ([]byte, bool) { return v.raw, v.kind == KindBytes }
func (v Value) AsDouble() (float64, bool) { return v.f64, v.kind == KindDouble }
func (v Value) AsFloat() (float32, bool) { return float32(v.f64), v.kind == KindFloat }
func (v Value) AsInt32() (int32, bool) { return v.i32, v.kind == KindInt32 }
func (v Value) AsBool() (bool, bool) { return v.num != 0, v.kind == KindBool }
func (v Value) AsMap() (Map, bool) { return v.m, v.kind == KindMap }
func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }

// AsUint returns uint16, uint32 and uint64 values widened to uint64.
func (v Value) AsUint() (uint64, bool) {
	switch v.kind {
	case KindUint16, KindUint32, KindUint64:
		return v.num, true
	}
	return 0, false
}

// AsUint128 returns the value of a uint128.
func (v Value) AsUint128() (*big.Int, bool) {
	if v.kind != KindUint128 {
		return nil, false
	}
	return new(big.Int).SetBytes(v.raw), true
}

// Path follows keys through nested maps (string keys) and arrays (int keys,
// negative counts from the end).
func (v Value) Path(keys ...any) (Value, bool) {
	cur := v
	for _, k := range keys {
		switch k := k.(type) {
		case string:
			if cur.kind != KindMap {
				return Value{}, false
			}
			next, ok := cur.m.Get(k)
			if !ok {
				return Value{}, false
			}
			cur = next
		case int:
			if cur.kind != KindArray {
				return Value{}, false
			}
			if k < 0 {
				k += len(cur.arr)
			}
			if k < 0 || k >= len(cur.arr) {
				return Value{}, false
			}
			cur = cur.arr[k]
		default:
			return Value{}, false
		}
	}
	return cur, true
}

// Interface converts v to plain Go values. Maps become map[string]any and so
// lose their encounter order; use MarshalJSON to keep it.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindBytes:
		return v.raw
	case KindDouble:
		return v.f64
	case KindFloat:
		return float32(v.f64)
	case KindInt32:
		return v.i32
	case KindUint16:
		return uint16(v.num)
	case KindUint32:
		return uint32(v.num)
	case KindUint64:
		return v.num
	case KindUint128:
		b, _ := v.AsUint128()
		return b
	case KindBool:
		return v.num != 0
	case KindMap:
		out := make(map[string]any, len(v.m))
		for _, e := range v.m {
			out[e.Key] = e.Value.Interface()
		}
		return out
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Interface()
		}
		return out
	}
	return nil
}

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// MarshalJSON encodes v with map keys in encounter order.
func (v Value) MarshalJSON() ([]byte, error) {
	stream := jsonAPI.BorrowStream(nil)
	defer jsonAPI.ReturnStream(stream)
	v.writeJSON(stream)
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

// MarshalJSON encodes m with keys in encounter order.
func (m Map) MarshalJSON() ([]byte, error) {
	return NewMap(m).MarshalJSON()
}

func (v Value) writeJSON(s *jsoniter.Stream) {
	switch v.kind {
	case KindString:
		s.WriteString(v.str)
	case KindBytes:
		s.WriteString(base64.StdEncoding.EncodeToString(v.raw))
	case KindDouble:
		s.WriteFloat64(v.f64)
	case KindFloat:
		s.WriteFloat32(float32(v.f64))
	case KindInt32:
		s.WriteInt32(v.i32)
	case KindUint16, KindUint32, KindUint64:
		s.WriteUint64(v.num)
	case KindUint128:
		b, _ := v.AsUint128()
		s.WriteRaw(b.String())
	case KindBool:
		s.WriteBool(v.num != 0)
	case KindMap:
		s.WriteObjectStart()
		for i, e := range v.m {
			if i > 0 {
				s.WriteMore()
			}
			s.WriteObjectField(e.Key)
			e.Value.writeJSON(s)
		}
		s.WriteObjectEnd()
	case KindArray:
		s.WriteArrayStart()
		for i, e := range v.arr {
			if i > 0 {
				s.WriteMore()
			}
			e.writeJSON(s)
		}
		s.WriteArrayEnd()
	default:
		s.WriteNil()
	}
}

// String returns the JSON form of v.
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return "<" + v.kind.String() + ">"
	}
	return string(b)
}
