package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRawAssignZeroLengthUsesNulTerminator(t *testing.T) {
	r := NewRaw(4)
	r.Assign([]byte("hi\x00junk"), 0)
	require.Equal(t, "hi", string(r.Bytes()))
	require.Equal(t, 2, r.Len())
}

func TestRawAssignExplicitLengthKeepsBinaryPayload(t *testing.T) {
	r := NewRaw(4)
	r.Assign([]byte{0, 1, 0, 2}, 4)
	require.Equal(t, []byte{0, 1, 0, 2}, r.Bytes())
}

func TestRawSetCapacityReusesWithinDoubleBound(t *testing.T) {
	r := NewRaw(100)
	before := cap(r.Bytes())
	r.SetCapacity(60)
	require.Equal(t, before, cap(r.Bytes()))
}

func TestRawSetCapacityGrowsWhenExceeded(t *testing.T) {
	r := NewRaw(4)
	r.SetCapacity(1000)
	require.GreaterOrEqual(t, cap(r.Bytes()), 1000)
}

func TestRawReset(t *testing.T) {
	r := NewRaw(4)
	r.Assign([]byte("data"), 4)
	r.Reset()
	require.Equal(t, 0, r.Len())
}

func TestStringViewSliceIsZeroCopy(t *testing.T) {
	v := NewStringView("hello world")
	sub := v.Slice(6)
	require.Equal(t, "world", string(sub.Bytes()))
	require.Equal(t, 5, sub.Len())
}
