package mmdb

import (
	"errors"
	"math"
	"math/big"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ic-timon/ipgeo/mmdb/mmdbtest"
	"github.com/ic-timon/ipgeo/mmdb/store"
)

func sectionDecoder(buf []byte, maxDepth int) *decoder {
	d := newDecoder(buf, 0, store.FileOffset(len(buf)), maxDepth)
	return &d
}

// roundTrip encodes v and decodes it back, checking that decoding consumed
// exactly the encoded bytes.
func roundTrip(t *testing.T, v any) Value {
	t.Helper()
	var e mmdbtest.Encoder
	_, err := e.Encode(v)
	require.NoError(t, err)
	d := sectionDecoder(e.Bytes(), 512)
	got, next, err := d.decode(0, 0)
	require.NoError(t, err)
	require.Equal(t, store.FileOffset(e.Len()), next)
	return got
}

func TestDecode_Strings(t *testing.T) {
	// Sizes on both sides of every size-extension boundary.
	for _, n := range []int{0, 1, 28, 29, 284, 285, 65820, 65821, 70000} {
		s := strings.Repeat("x", n)
		got, ok := roundTrip(t, s).AsString()
		require.True(t, ok)
		assert.Equal(t, s, got, "length %d", n)
	}
}

func TestDecode_Scalars(t *testing.T) {
	for _, f := range []float64{0, -1.5, math.MaxFloat64, math.SmallestNonzeroFloat64, math.Inf(-1)} {
		got, ok := roundTrip(t, f).AsDouble()
		require.True(t, ok)
		assert.Equal(t, f, got)
	}
	for _, f := range []float32{0, 3.25, -math.MaxFloat32} {
		got, ok := roundTrip(t, f).AsFloat()
		require.True(t, ok)
		assert.Equal(t, f, got)
	}
	for _, u := range []uint16{0, 1, 255, 256, math.MaxUint16} {
		v := roundTrip(t, u)
		assert.Equal(t, KindUint16, v.Kind())
		got, _ := v.AsUint()
		assert.Equal(t, uint64(u), got)
	}
	for _, u := range []uint32{0, 1, 1 << 24, math.MaxUint32} {
		v := roundTrip(t, u)
		assert.Equal(t, KindUint32, v.Kind())
		got, _ := v.AsUint()
		assert.Equal(t, uint64(u), got)
	}
	for _, u := range []uint64{0, math.MaxUint32 + 1, math.MaxUint64} {
		v := roundTrip(t, u)
		assert.Equal(t, KindUint64, v.Kind())
		got, _ := v.AsUint()
		assert.Equal(t, u, got)
	}
	for _, i := range []int32{math.MinInt32, -1, 0, 1, 300, math.MaxInt32} {
		got, ok := roundTrip(t, i).AsInt32()
		require.True(t, ok)
		assert.Equal(t, i, got)
	}
	for _, b := range []bool{true, false} {
		got, ok := roundTrip(t, b).AsBool()
		require.True(t, ok)
		assert.Equal(t, b, got)
	}

	raw := []byte{0, 1, 2, 0xff}
	got, ok := roundTrip(t, raw).AsBytes()
	require.True(t, ok)
	assert.Equal(t, raw, got)

	var max128 mmdbtest.Uint128
	for i := range max128 {
		max128[i] = 0xff
	}
	wide, ok := roundTrip(t, max128).AsUint128()
	require.True(t, ok)
	want := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	assert.Zero(t, want.Cmp(wide))

	zero, ok := roundTrip(t, mmdbtest.Uint128{}).AsUint128()
	require.True(t, ok)
	assert.Zero(t, zero.Sign())
}

func TestDecode_ShortInt32IsZeroPadded(t *testing.T) {
	var e mmdbtest.Encoder
	e.WriteCtrl(mmdbtest.TypeInt32, 1)
	_, _ = e.Encode(mmdbtest.Raw{0xff})

	v, _, err := sectionDecoder(e.Bytes(), 512).decode(0, 0)
	require.NoError(t, err)
	got, _ := v.AsInt32()
	assert.Equal(t, int32(255), got)
}

func TestDecode_PreservesOrder(t *testing.T) {
	v := roundTrip(t, mmdbtest.Map{
		{Key: "zeta", Value: uint32(1)},
		{Key: "alpha", Value: []any{"c", "a", "b"}},
		{Key: "mid", Value: mmdbtest.Map{{Key: "y", Value: true}, {Key: "x", Value: false}}},
	})
	m, ok := v.AsMap()
	require.True(t, ok)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, m.Keys())

	arr, ok := m[1].Value.AsArray()
	require.True(t, ok)
	require.Len(t, arr, 3)
	for i, want := range []string{"c", "a", "b"} {
		s, _ := arr[i].AsString()
		assert.Equal(t, want, s)
	}

	b, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":1,"alpha":["c","a","b"],"mid":{"y":true,"x":false}}`, string(b))
}

func TestDecode_PointerClasses(t *testing.T) {
	target := mmdbtest.Map{{Key: "iso_code", Value: "NZ"}}

	for _, tc := range []struct {
		name  string
		at    int
		class int
	}{
		{"class0", 10, 0},
		{"class1", 3000, 1},
		{"class2", 600000, 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var e mmdbtest.Encoder
			_, _ = e.Encode(mmdbtest.Raw(make([]byte, tc.at)))
			off, err := e.Encode(target)
			require.NoError(t, err)
			require.Equal(t, uint32(tc.at), off)

			// The same value through the natural class and through class 3.
			viaClass, err := e.Encode(mmdbtest.Map{
				{Key: "a", Value: mmdbtest.Pointer{Offset: off, Class: tc.class}},
				{Key: "after", Value: "ok"},
			})
			require.NoError(t, err)
			viaWide, err := e.Encode(mmdbtest.Pointer{Offset: off, Class: 3})
			require.NoError(t, err)

			d := sectionDecoder(e.Bytes(), 512)
			outer, _, err := d.decode(store.FileOffset(viaClass), 0)
			require.NoError(t, err)
			wide, next, err := d.decode(store.FileOffset(viaWide), 0)
			require.NoError(t, err)
			assert.Equal(t, store.FileOffset(viaWide+5), next, "next offset follows the pointer bytes")

			a, ok := outer.Path("a")
			require.True(t, ok)
			assert.Equal(t, wide.String(), a.String())
			iso, _ := a.Path("iso_code")
			s, _ := iso.AsString()
			assert.Equal(t, "NZ", s)

			after, ok := outer.Path("after")
			require.True(t, ok)
			s, _ = after.AsString()
			assert.Equal(t, "ok", s)
		})
	}
}

func TestDecode_PointerRelativeToBase(t *testing.T) {
	var e mmdbtest.Encoder
	_, _ = e.Encode(mmdbtest.Raw("prefix"))
	base := e.Len()
	_, _ = e.Encode("target")
	ptr, err := e.Encode(mmdbtest.Ptr(0))
	require.NoError(t, err)

	d := newDecoder(e.Bytes(), store.FileOffset(base), store.FileOffset(e.Len()), 512)
	v, _, err := d.decode(store.FileOffset(ptr), 0)
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "target", s)

	// Reads below base leave the section.
	_, _, err = d.decode(0, 0)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestDecode_Truncated(t *testing.T) {
	var e mmdbtest.Encoder
	e.WriteCtrl(mmdbtest.TypeString, 10)
	_, _ = e.Encode(mmdbtest.Raw("abc"))

	_, _, err := sectionDecoder(e.Bytes(), 512).decode(0, 0)
	require.ErrorIs(t, err, ErrTruncated)
	var fe *FormatError
	require.True(t, errors.As(err, &fe))

	// Size extension bytes missing.
	_, _, err = sectionDecoder([]byte{0x5e}, 512).decode(0, 0)
	require.ErrorIs(t, err, ErrTruncated)

	// Pointer bytes missing.
	_, _, err = sectionDecoder([]byte{0x38, 0x00}, 512).decode(0, 0)
	require.ErrorIs(t, err, ErrTruncated)

	// Pointer out of the section.
	var p mmdbtest.Encoder
	_, _ = p.Encode(mmdbtest.Ptr(1000))
	_, _, err = sectionDecoder(p.Bytes(), 512).decode(0, 0)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestDecode_SelfPointer(t *testing.T) {
	var e mmdbtest.Encoder
	_, _ = e.Encode(mmdbtest.Ptr(0))
	_, _, err := sectionDecoder(e.Bytes(), 512).decode(0, 0)
	require.ErrorIs(t, err, ErrMalformedPointerChain)
}

func TestDecode_DepthLimit(t *testing.T) {
	var v any = "leaf"
	for i := 0; i < 5; i++ {
		v = []any{v}
	}
	var e mmdbtest.Encoder
	_, _ = e.Encode(v)

	_, _, err := sectionDecoder(e.Bytes(), 4).decode(0, 0)
	require.ErrorIs(t, err, ErrMalformedPointerChain)
	_, _, err = sectionDecoder(e.Bytes(), 5).decode(0, 0)
	require.NoError(t, err)
}

func TestDecode_InvalidMapKey(t *testing.T) {
	var e mmdbtest.Encoder
	e.WriteCtrl(mmdbtest.TypeMap, 1)
	_, _ = e.Encode(uint16(5))
	_, _ = e.Encode("v")

	_, _, err := sectionDecoder(e.Bytes(), 512).decode(0, 0)
	require.ErrorIs(t, err, ErrInvalidMapKey)
}

func TestDecode_OversizedContainerHeader(t *testing.T) {
	// A map claiming the largest encodable size, followed by zeros.
	buf := make([]byte, 4<<20)
	copy(buf, []byte{0xff, 0xff, 0xff, 0xff})

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	_, _, err := sectionDecoder(buf, 512).decode(0, 0)
	runtime.ReadMemStats(&after)

	require.ErrorIs(t, err, ErrInvalidMapKey)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(1<<20))
}

func TestDecode_InvalidSize(t *testing.T) {
	for _, tc := range []struct {
		typ, size int
	}{
		{mmdbtest.TypeDouble, 4},
		{mmdbtest.TypeFloat, 8},
		{mmdbtest.TypeUint16, 3},
		{mmdbtest.TypeUint32, 5},
		{mmdbtest.TypeUint64, 9},
		{mmdbtest.TypeUint128, 17},
		{mmdbtest.TypeInt32, 5},
	} {
		var e mmdbtest.Encoder
		e.WriteCtrl(tc.typ, tc.size)
		_, _ = e.Encode(mmdbtest.Raw(make([]byte, tc.size)))
		_, _, err := sectionDecoder(e.Bytes(), 512).decode(0, 0)
		assert.ErrorIs(t, err, ErrInvalidSize, "type %d size %d", tc.typ, tc.size)
	}
}

func TestDecode_NullTypes(t *testing.T) {
	for _, typ := range []int{mmdbtest.TypeContainer, mmdbtest.TypeEndMarker, 20} {
		var e mmdbtest.Encoder
		e.WriteCtrl(typ, 3)
		v, next, err := sectionDecoder(e.Bytes(), 512).decode(0, 0)
		require.NoError(t, err)
		assert.True(t, v.IsNull())
		assert.Equal(t, store.FileOffset(2), next, "only the control bytes are consumed")
	}
}
