package reactor

import (
	"golang.org/x/sys/unix"
)

// prependSize is the reserved header room kept ahead of read, so callers
// can prepend a length/frame header without copying the payload, per
// original_source/include/net/Buffer.h's kCheapPrepend.
const prependSize = 8

// initialBufferSize is the default allocation beyond the prepend region.
const initialBufferSize = 1024

// extraBufSize is the stack-allocated scratch space readv reads into when
// the buffer's own writable window might not be enough, per
// original_source/src/net/Buffer.cc's readFd (a 64 KiB "extrabuf").
const extraBufSize = 65536

// Buffer is the growable input/output byte region spec.md §3 describes:
// three indices — prepend boundary, read cursor, write cursor — with
// prepend ≤ read ≤ write ≤ capacity. Grounded directly on
// original_source/include/net/Buffer.h and src/net/Buffer.cc.
type Buffer struct {
	buf   []byte
	rIdx  int
	wIdx  int
}

// NewBuffer constructs a buffer with room for initialBufferSize bytes of
// payload beyond the reserved prepend region.
func NewBuffer() *Buffer {
	return &Buffer{
		buf:  make([]byte, prependSize+initialBufferSize),
		rIdx: prependSize,
		wIdx: prependSize,
	}
}

// Readable returns the number of unread bytes.
func (b *Buffer) Readable() int { return b.wIdx - b.rIdx }

// Writable returns the space available before the buffer must grow.
func (b *Buffer) Writable() int { return len(b.buf) - b.wIdx }

// Prependable returns the space available to prepend a header without
// copying the readable window.
func (b *Buffer) Prependable() int { return b.rIdx }

// Peek returns the readable window without consuming it.
func (b *Buffer) Peek() []byte { return b.buf[b.rIdx:b.wIdx] }

// Retrieve advances the read cursor by n, discarding that many bytes from
// the front of the readable window. If n consumes everything readable,
// both cursors reset back to the prepend boundary.
func (b *Buffer) Retrieve(n int) {
	if n < b.Readable() {
		b.rIdx += n
	} else {
		b.RetrieveAll()
	}
}

// RetrieveAll empties the buffer, resetting both cursors to the prepend
// boundary so the full capacity (minus the reserved prepend) is writable
// again.
func (b *Buffer) RetrieveAll() {
	b.rIdx = prependSize
	b.wIdx = prependSize
}

// RetrieveAllAsString drains and returns the entire readable window as a
// string.
func (b *Buffer) RetrieveAllAsString() string {
	return b.RetrieveAsString(b.Readable())
}

// RetrieveAsString drains and returns the first n readable bytes as a
// string.
func (b *Buffer) RetrieveAsString(n int) string {
	s := string(b.buf[b.rIdx : b.rIdx+n])
	b.Retrieve(n)
	return s
}

// EnsureWritable grows the buffer (or left-shifts the readable window into
// the prepend/already-consumed space) so at least n bytes are writable.
func (b *Buffer) EnsureWritable(n int) {
	if b.Writable() < n {
		b.makeSpace(n)
	}
}

// Append copies data into the writable window, growing as needed.
func (b *Buffer) Append(data []byte) {
	b.EnsureWritable(len(data))
	copy(b.buf[b.wIdx:], data)
	b.wIdx += len(data)
}

// Prepend writes data immediately before the current readable window; the
// caller must not exceed Prependable().
func (b *Buffer) Prepend(data []byte) {
	b.rIdx -= len(data)
	copy(b.buf[b.rIdx:], data)
}

func (b *Buffer) makeSpace(n int) {
	if b.Writable()+b.Prependable() < n+prependSize {
		grown := make([]byte, b.wIdx+n)
		copy(grown, b.buf)
		b.buf = grown
		return
	}
	readable := b.Readable()
	copy(b.buf[prependSize:], b.buf[b.rIdx:b.wIdx])
	b.rIdx = prependSize
	b.wIdx = b.rIdx + readable
}

// ReadFromFD fills the buffer from a readable fd using scatter-gather I/O:
// the buffer's own writable window plus a stack-sized extension buffer, so
// a single readiness event can drain more than the buffer currently has
// room for without an extra syscall, per
// original_source/src/net/Buffer.cc's readFd. On error it returns unix.Readv's
// raw (negative) count alongside err, so callers can tell a real EOF
// (n == 0, err == nil) apart from a read failure.
func (b *Buffer) ReadFromFD(fd int) (int, error) {
	var extra [extraBufSize]byte
	writable := b.Writable()

	iovs := make([][]byte, 0, 2)
	iovs = append(iovs, b.buf[b.wIdx:])
	if writable < extraBufSize {
		iovs = append(iovs, extra[:])
	}

	n, err := unix.Readv(fd, iovs)
	if err != nil {
		return n, err
	}
	if n <= writable {
		b.wIdx += n
	} else {
		b.wIdx = len(b.buf)
		b.Append(extra[:n-writable])
	}
	return n, nil
}

// WriteToFD writes the readable window to fd with a single write(2),
// per original_source/src/net/Buffer.cc's writeFd. It does not retrieve the
// written bytes; callers (Connection.handleWrite) do that based on the
// returned count.
func (b *Buffer) WriteToFD(fd int) (int, error) {
	n, err := unix.Write(fd, b.Peek())
	if n < 0 {
		n = 0
	}
	return n, err
}
