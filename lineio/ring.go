// Package lineio implements the single-producer/single-consumer byte ring
// buffer and incremental line scanner that sit between a transport channel
// and the dispatcher, plus the channel state machine that decides which
// connected channel currently owns the control and data roles.
//
// Grounded on spec §4.1 and the teacher's xio_gets/xio_gets_device pattern
// in original_source/TinyG2/xio/xio.c: a non-blocking, restartable line
// reader over a small fixed buffer, here reimagined with an explicit
// scan-cursor/line-start-cursor split so that a line spanning more than one
// Write can be recognized once its terminator finally arrives.
package lineio

import (
	"errors"
	"sync"
)

// DefaultBufferSize is the byte capacity of a channel's ring buffer, sized
// comfortably above the wire protocol's 512-byte JSON object cap (spec §6).
const DefaultBufferSize = 1024

// ErrFull is returned by Write when there is not enough free space for the
// entire write; the caller (the transport's read loop) is expected to back
// off and retry once the dispatcher has drained more of the buffer.
var ErrFull = errors.New("lineio: ring buffer full")

// Ring is a byte ring buffer written by a transport's reader goroutine and
// drained by a Scanner on the dispatcher side. The transport and the
// dispatcher run as independent goroutines (not true ISR priorities), so,
// unlike the DDA prep-buffer's lock-free ownership flip, this buffer is
// guarded by a plain mutex; the cost is negligible next to a serial byte
// rate and keeps the scan logic in Scanner simple and race-free.
type Ring struct {
	mu  sync.Mutex
	buf []byte
	r   int // next unread byte
	w   int // next free byte
}

// NewRing allocates a Ring with the given capacity.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Ring{buf: make([]byte, size)}
}

// Len returns the number of unread bytes currently buffered.
func (rb *Ring) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.w - rb.r
}

// Write appends p to the buffer. If there isn't room even after compacting
// away already-consumed bytes, it writes as much as fits and returns
// ErrFull for the remainder, mirroring xio's behavior of dropping bytes
// past the device buffer's capacity rather than blocking the producer.
func (rb *Ring) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.compact()
	n := copy(rb.buf[rb.w:], p)
	rb.w += n
	if n < len(p) {
		return n, ErrFull
	}
	return n, nil
}

// Snapshot returns a copy of the currently unread bytes. The consumer scans
// this copy at its own pace; it never observes a Write that happens after
// the snapshot was taken, which is fine since the next call picks it up.
func (rb *Ring) Snapshot() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	out := make([]byte, rb.w-rb.r)
	copy(out, rb.buf[rb.r:rb.w])
	return out
}

// Consume advances the read cursor past the first n bytes of the most
// recent Snapshot.
func (rb *Ring) Consume(n int) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.r += n
	if rb.r > rb.w {
		rb.r = rb.w
	}
}

// compact slides unread bytes down to offset 0 at the start of every Write
// that follows a Consume, so a channel that is mostly idle doesn't
// eventually wedge on a buffer whose tail is permanently consumed. Callers
// must hold mu.
func (rb *Ring) compact() {
	if rb.r == 0 {
		return
	}
	if rb.r == rb.w {
		rb.r, rb.w = 0, 0
		return
	}
	n := copy(rb.buf, rb.buf[rb.r:rb.w])
	rb.r, rb.w = 0, n
}
