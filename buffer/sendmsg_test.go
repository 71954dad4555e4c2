package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSendAggregatorAppendEmptyFiresImmediately(t *testing.T) {
	agg := NewSendAggregator()
	var ok bool
	var n int
	agg.Append(nil, nil, func(o bool, sz int) { ok, n = o, sz })
	require.True(t, ok)
	require.Equal(t, 0, n)
	require.True(t, agg.Empty())
}

func TestSendAggregatorReOffsetPartialThenFull(t *testing.T) {
	agg := NewSendAggregator()
	var fired []bool
	agg.Append([]byte("hello"), nil, func(ok bool, n int) { fired = append(fired, ok) })
	agg.Append([]byte("world!"), nil, func(ok bool, n int) { fired = append(fired, ok) })
	require.Equal(t, 11, agg.Remaining())

	agg.ReOffset(3)
	require.False(t, agg.Empty())
	require.Equal(t, 8, agg.Remaining())
	require.Empty(t, fired)

	agg.ReOffset(2)
	require.Equal(t, 1, len(fired))
	require.True(t, fired[0])
	require.Equal(t, 6, agg.Remaining())

	agg.ReOffset(6)
	require.True(t, agg.Empty())
	require.Equal(t, 0, agg.Remaining())
	require.Equal(t, 2, len(fired))
	require.True(t, fired[1])
}

func TestSendAggregatorReOffsetExactlyRemaining(t *testing.T) {
	agg := NewSendAggregator()
	agg.Append([]byte("abc"), nil, nil)
	agg.Append([]byte("de"), nil, nil)
	agg.ReOffset(agg.Remaining())
	require.True(t, agg.Empty())
	require.Equal(t, 0, agg.Remaining())
}

func TestSendAggregatorBuffersReflectOffset(t *testing.T) {
	agg := NewSendAggregator()
	agg.Append([]byte("abcdef"), nil, nil)
	agg.ReOffset(2)
	bufs := agg.Buffers()
	require.Len(t, bufs, 1)
	require.Equal(t, "cdef", string(bufs[0]))
}

func TestSendAggregatorDropHeadFiresFalse(t *testing.T) {
	agg := NewSendAggregator()
	var ok1 bool
	agg.Append([]byte("x"), nil, func(o bool, n int) { ok1 = o })
	agg.Append([]byte("y"), nil, nil)
	agg.DropHead()
	require.False(t, ok1)
	require.Equal(t, 1, agg.Remaining())
}

func TestSendAggregatorDiscardFiresFalseForAllPending(t *testing.T) {
	agg := NewSendAggregator()
	var firstOK, secondOK bool
	agg.Append([]byte("x"), nil, func(o bool, n int) { firstOK = o })
	agg.Append([]byte("y"), nil, func(o bool, n int) { secondOK = o })
	agg.ReOffset(1)
	require.True(t, firstOK)
	agg.Discard()
	require.False(t, secondOK)
	require.True(t, agg.Empty())
	require.Equal(t, 0, agg.Remaining())
}

func TestSendAggregatorCompletionFiresExactlyOnce(t *testing.T) {
	agg := NewSendAggregator()
	count := 0
	agg.Append([]byte("z"), nil, func(ok bool, n int) { count++ })
	agg.ReOffset(1)
	agg.Discard()
	require.Equal(t, 1, count)
}
