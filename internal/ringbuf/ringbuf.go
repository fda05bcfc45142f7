/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * QAnotherRTSP
 * Copyright (C) 2025 e1z0 <e1z0@icloud.com>
 *
 * This file is part of QAnotherRTSP.
 *
 * QAnotherRTSP is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * QAnotherRTSP is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with QAnotherRTSP.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package ringbuf implements the fixed-capacity circular slot queue used
// throughout the decode pipeline: frame pools, frame queues and the packet
// queue are all instances of the same Buffer type, parameterised by the
// slot's element type instead of the original's void*+slotsize pair.
package ringbuf

import "fmt"

// Buffer is a fixed-capacity FIFO of uniform slots. It is not itself
// thread-safe; callers serialise access with their own mutex, exactly as
// the movie's worker mutex guards every moviebuffer_t mutation.
type Buffer[T any] struct {
	data     []T
	start    int
	size     int
	capacity int
}

// New allocates a buffer with room for capacity slots.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		panic(fmt.Sprintf("ringbuf: invalid capacity %d", capacity))
	}
	return &Buffer[T]{
		data:     make([]T, capacity),
		capacity: capacity,
	}
}

// Clone duplicates the layout (capacity, start, size) and contents of src
// into an independently allocated buffer, mirroring CloneBuffer.
func Clone[T any](src *Buffer[T]) *Buffer[T] {
	dst := &Buffer[T]{
		data:     make([]T, src.capacity),
		start:    src.start,
		size:     src.size,
		capacity: src.capacity,
	}
	copy(dst.data, src.data)
	return dst
}

// Capacity returns the fixed number of slots the buffer was allocated with.
func (b *Buffer[T]) Capacity() int { return b.capacity }

// Size returns the number of occupied slots.
func (b *Buffer[T]) Size() int { return b.size }

func (b *Buffer[T]) offset(i int) int {
	return (b.start + i) % b.capacity
}

// Peek returns a pointer to the i'th occupied slot (0 is the head), or nil
// if i is out of range.
func (b *Buffer[T]) Peek(i int) *T {
	if i < 0 || i >= b.size {
		return nil
	}
	return &b.data[b.offset(i)]
}

// Enqueue reserves the tail slot and returns a pointer to it for the
// caller to populate. Enqueuing into a full buffer is a programmer error.
func (b *Buffer[T]) Enqueue() *T {
	if b.size == b.capacity {
		panic("ringbuf: enqueue on full buffer")
	}
	b.size++
	return &b.data[b.offset(b.size-1)]
}

// Dequeue releases the head slot and returns a pointer to its (now
// logically freed, still readable) contents. Dequeuing an empty buffer is
// a programmer error.
func (b *Buffer[T]) Dequeue() *T {
	if b.size == 0 {
		panic("ringbuf: dequeue on empty buffer")
	}
	slot := &b.data[b.start]
	b.start = (b.start + 1) % b.capacity
	b.size--
	return slot
}

// MoveOne transfers ownership of one slot from src to dst: it dequeues
// from src, enqueues into dst, and copies the slot value across. Slot-size
// mismatches between src and dst can't happen in Go (the shared type
// parameter enforces it); an empty src or full dst still abort via
// Dequeue/Enqueue above.
func MoveOne[T any](dst, src *Buffer[T]) *T {
	srcSlot := src.Dequeue()
	dstSlot := dst.Enqueue()
	*dstSlot = *srcSlot
	return dstSlot
}

// MoveAll drains every slot of src into dst, in order.
func MoveAll[T any](dst, src *Buffer[T]) {
	for src.size > 0 {
		MoveOne(dst, src)
	}
}
