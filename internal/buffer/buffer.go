// Package buffer implements the growable byte buffer used for connection
// input/output and log line assembly.
//
// A Buffer is a contiguous byte region with two cursors. The readable span
// is [readPos, writePos), the writable tail is [writePos, len(buf)), and the
// prependable prefix is [0, readPos). Producing never moves readPos and
// consuming never moves writePos. When the tail runs out the buffer either
// compacts the readable span down to offset zero or grows.
//
// Buffer is not safe for concurrent use. Each connection owns two buffers
// and the one-shot event arming guarantees a single worker touches them at
// any instant.
package buffer

import (
	"golang.org/x/sys/unix"
)

const defaultSize = 1024

// stageSize bounds a single scatter read: the kernel fills the writable
// tail first and spills at most this many bytes into a staging area.
const stageSize = 65535

type Buffer struct {
	buf      []byte
	readPos  int
	writePos int
}

func New() *Buffer {
	return NewSize(defaultSize)
}

func NewSize(size int) *Buffer {
	return &Buffer{buf: make([]byte, size)}
}

// ReadableBytes returns the number of bytes available for consumption.
func (b *Buffer) ReadableBytes() int {
	return b.writePos - b.readPos
}

// WritableBytes returns the size of the writable tail.
func (b *Buffer) WritableBytes() int {
	return len(b.buf) - b.writePos
}

// PrependableBytes returns the size of the already-consumed prefix.
func (b *Buffer) PrependableBytes() int {
	return b.readPos
}

// Peek returns the readable span. The slice aliases the buffer's backing
// store and is invalidated by any mutating call.
func (b *Buffer) Peek() []byte {
	return b.buf[b.readPos:b.writePos]
}

// Retrieve consumes n readable bytes. n must not exceed ReadableBytes.
func (b *Buffer) Retrieve(n int) {
	if n > b.ReadableBytes() {
		panic("buffer: retrieve past write position")
	}
	b.readPos += n
}

// RetrieveAll zeroes the backing store and resets both cursors.
func (b *Buffer) RetrieveAll() {
	for i := range b.buf {
		b.buf[i] = 0
	}
	b.readPos = 0
	b.writePos = 0
}

// RetrieveAllToString returns the readable span as a string and resets the
// buffer.
func (b *Buffer) RetrieveAllToString() string {
	s := string(b.Peek())
	b.RetrieveAll()
	return s
}

// WritableSlice returns the writable tail for direct filling. Follow with
// HasWritten to commit the bytes.
func (b *Buffer) WritableSlice() []byte {
	return b.buf[b.writePos:]
}

// HasWritten advances the write cursor after a direct fill.
func (b *Buffer) HasWritten(n int) {
	b.writePos += n
}

// Append reserves space, copies p into the tail, and advances the write
// cursor.
func (b *Buffer) Append(p []byte) {
	b.EnsureWritable(len(p))
	copy(b.buf[b.writePos:], p)
	b.writePos += len(p)
}

func (b *Buffer) AppendString(s string) {
	b.EnsureWritable(len(s))
	copy(b.buf[b.writePos:], s)
	b.writePos += len(s)
}

// EnsureWritable guarantees at least n writable bytes. If the tail plus the
// prependable prefix cannot hold n bytes the buffer grows to
// writePos + n + 1; otherwise the readable span is compacted to offset zero.
func (b *Buffer) EnsureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}
	if b.WritableBytes()+b.PrependableBytes() < n {
		grown := make([]byte, b.writePos+n+1)
		copy(grown, b.buf[:b.writePos])
		b.buf = grown
		return
	}
	readable := b.ReadableBytes()
	copy(b.buf, b.buf[b.readPos:b.writePos])
	b.readPos = 0
	b.writePos = readable
}

// ReadFD drains fd into the buffer with a two-segment scatter read. The
// first segment is the writable tail, the second a 64 KiB staging area. If
// the kernel fills past the tail the overflow is appended from the stage,
// growing the buffer. Returns the byte count from readv; the error is the
// raw errno (unix.EAGAIN on a drained non-blocking socket).
func (b *Buffer) ReadFD(fd int) (int, error) {
	var stage [stageSize]byte
	writable := b.WritableBytes()
	iov := [2][]byte{b.buf[b.writePos:], stage[:]}
	n, err := unix.Readv(fd, iov[:])
	if err != nil {
		return n, err
	}
	if n <= writable {
		b.writePos += n
	} else {
		b.writePos = len(b.buf)
		b.Append(stage[:n-writable])
	}
	return n, nil
}

// WriteFD writes the readable span to fd and consumes what the kernel
// accepted.
func (b *Buffer) WriteFD(fd int) (int, error) {
	n, err := unix.Write(fd, b.Peek())
	if err != nil {
		return n, err
	}
	b.readPos += n
	return n, nil
}
