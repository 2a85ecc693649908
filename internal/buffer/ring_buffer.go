// Package buffer provides a bounded history of recent frames.
package buffer

import (
	"sync"
)

// RingBuffer is a thread-safe circular buffer of frames. When it is full the
// oldest frame is discarded to make room for the new one.
//
// It keeps the most recent caretaker frames of a child so that an observer
// can catch up on what it missed.
type RingBuffer struct {
	frames   [][]byte
	start    int
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewRingBuffer creates a new RingBuffer holding up to capacity frames.
// A capacity of 0 or less defaults to 1.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{
		frames:   make([][]byte, capacity),
		capacity: capacity,
	}
}

// Push stores a copy of frame, evicting the oldest frame when full. Empty
// frames are ignored.
func (rb *RingBuffer) Push(frame []byte) {
	if len(frame) == 0 {
		return
	}
	stored := make([]byte, len(frame))
	copy(stored, frame)

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size < rb.capacity {
		rb.frames[(rb.start+rb.size)%rb.capacity] = stored
		rb.size++
		return
	}
	rb.frames[rb.start] = stored
	rb.start = (rb.start + 1) % rb.capacity
}

// Snapshot returns the buffered frames, oldest first.
func (rb *RingBuffer) Snapshot() [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	out := make([][]byte, rb.size)
	for i := 0; i < rb.size; i++ {
		out[i] = rb.frames[(rb.start+i)%rb.capacity]
	}
	return out
}

// Clear removes all frames.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for i := range rb.frames {
		rb.frames[i] = nil
	}
	rb.start, rb.size = 0, 0
}

// Len returns the number of buffered frames.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// Cap returns the capacity of the buffer.
func (rb *RingBuffer) Cap() int {
	return rb.capacity
}
