// buffer.go: Fixed-capacity owned buffers and the consumer's backup pool
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nijika

// Buffer is a fixed-capacity, append-only byte container.
//
// A Buffer owns its storage exclusively. Ownership is handed over with Take,
// which is O(1) and leaves the source as the zero Buffer (capacity 0, length
// 0, no storage). Plain assignment would alias the storage between two
// holders; engine code never does that and always moves with Take.
//
// The zero value is an invalid buffer: IsValid reports false and every
// Append of a non-empty slice fails with ErrCapacityExceeded.
type Buffer struct {
	data []byte // len(data) is the length, cap(data) the capacity
}

// NewBuffer allocates a buffer of the given capacity with length 0.
func NewBuffer(capacity int) Buffer {
	if capacity <= 0 {
		return Buffer{}
	}
	return Buffer{data: make([]byte, 0, capacity)}
}

// Append copies p at the end of the buffer.
// It returns ErrCapacityExceeded, and leaves the buffer untouched, if p does
// not fit in Avail.
func (b *Buffer) Append(p []byte) error {
	if len(p) > b.Avail() {
		return ErrCapacityExceeded
	}
	b.data = append(b.data, p...)
	return nil
}

// AppendString is Append for strings, without an intermediate conversion.
func (b *Buffer) AppendString(s string) error {
	if len(s) > b.Avail() {
		return ErrCapacityExceeded
	}
	b.data = append(b.data, s...)
	return nil
}

// Clear resets the length to 0. Capacity and storage are retained.
func (b *Buffer) Clear() { b.data = b.data[:0] }

// IsValid reports whether the buffer owns non-empty storage.
func (b Buffer) IsValid() bool { return cap(b.data) > 0 }

// Avail returns the free space left in the buffer.
func (b Buffer) Avail() int { return cap(b.data) - len(b.data) }

// Len returns the number of bytes held.
func (b Buffer) Len() int { return len(b.data) }

// Cap returns the fixed capacity.
func (b Buffer) Cap() int { return cap(b.data) }

// IsEmpty reports whether no bytes are held.
func (b Buffer) IsEmpty() bool { return len(b.data) == 0 }

// Bytes returns the held bytes. The slice aliases the buffer storage and is
// only valid until the next Append, Clear or Take.
func (b Buffer) Bytes() []byte { return b.data }

// Take moves the storage out of b into the returned Buffer.
// b is left invalid and must only be reassigned afterwards.
func (b *Buffer) Take() Buffer {
	moved := Buffer{data: b.data}
	b.data = nil
	return moved
}

// bufferPool keeps a bounded number of pre-allocated, cleared buffers.
// The writer goroutine draws backups from it when it swaps the current
// buffer out and returns written buffers to it; buffers beyond the pool size
// are left to the GC so memory stays bounded.
type bufferPool struct {
	buffers    chan Buffer
	bufferSize int
	allocs     func() // called when Get had to allocate
}

// newBufferPool creates a pool pre-populated with poolSize buffers
func newBufferPool(poolSize, bufferSize int) *bufferPool {
	pool := &bufferPool{
		buffers:    make(chan Buffer, poolSize),
		bufferSize: bufferSize,
	}

	for i := 0; i < poolSize; i++ {
		pool.buffers <- NewBuffer(bufferSize)
	}

	return pool
}

// Get returns a pooled buffer, or a freshly allocated one if the pool is empty
func (p *bufferPool) Get() Buffer {
	select {
	case buf := <-p.buffers:
		return buf
	default:
		if p.allocs != nil {
			p.allocs()
		}
		return NewBuffer(p.bufferSize)
	}
}

// Put clears buf and returns it to the pool (non-blocking).
// Invalid or foreign-sized buffers are discarded.
func (p *bufferPool) Put(buf Buffer) {
	if buf.Cap() != p.bufferSize {
		return
	}

	buf.Clear()
	select {
	case p.buffers <- buf:
	default:
		// Pool full, let GC handle this buffer
	}
}

// Len returns the number of idle buffers in the pool
func (p *bufferPool) Len() int { return len(p.buffers) }
