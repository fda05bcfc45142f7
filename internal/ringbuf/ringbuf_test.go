package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnqueueDequeueFIFO(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 3; i++ {
		*b.Enqueue() = i
	}
	require.Equal(t, 3, b.Size())
	for i := 1; i <= 3; i++ {
		require.Equal(t, i, *b.Dequeue())
	}
	require.Equal(t, 0, b.Size())
}

func TestWraparound(t *testing.T) {
	b := New[int](2)
	*b.Enqueue() = 1
	*b.Enqueue() = 2
	b.Dequeue()
	*b.Enqueue() = 3 // wraps around the backing array
	require.Equal(t, 2, *b.Peek(0))
	require.Equal(t, 3, *b.Peek(1))
}

func TestEnqueueFullPanics(t *testing.T) {
	b := New[int](1)
	b.Enqueue()
	require.Panics(t, func() { b.Enqueue() })
}

func TestDequeueEmptyPanics(t *testing.T) {
	b := New[int](1)
	require.Panics(t, func() { b.Dequeue() })
}

func TestPeekOutOfRange(t *testing.T) {
	b := New[int](2)
	*b.Enqueue() = 1
	require.Nil(t, b.Peek(-1))
	require.Nil(t, b.Peek(1))
}

func TestMoveOne(t *testing.T) {
	src := New[string](2)
	dst := New[string](2)
	*src.Enqueue() = "a"
	*src.Enqueue() = "b"

	MoveOne(dst, src)
	require.Equal(t, 1, src.Size())
	require.Equal(t, 1, dst.Size())
	require.Equal(t, "a", *dst.Peek(0))
}

func TestMoveAll(t *testing.T) {
	src := New[int](4)
	dst := New[int](4)
	for i := 0; i < 3; i++ {
		*src.Enqueue() = i
	}
	MoveAll(dst, src)
	require.Equal(t, 0, src.Size())
	require.Equal(t, 3, dst.Size())
	for i := 0; i < 3; i++ {
		require.Equal(t, i, *dst.Peek(i))
	}
}

func TestClonePreservesLayout(t *testing.T) {
	src := New[int](3)
	*src.Enqueue() = 1
	*src.Enqueue() = 2
	src.Dequeue()
	*src.Enqueue() = 3
	*src.Enqueue() = 4

	dst := Clone(src)
	require.Equal(t, src.Size(), dst.Size())
	for i := 0; i < src.Size(); i++ {
		require.Equal(t, *src.Peek(i), *dst.Peek(i))
	}

	// Mutating the clone must not affect the original.
	*dst.Peek(0) = 999
	require.NotEqual(t, 999, *src.Peek(0))
}

func TestNewInvalidCapacityPanics(t *testing.T) {
	require.Panics(t, func() { New[int](0) })
}
