// Package ringlog provides a fixed-capacity ring buffer for UTF-8 text,
// similar to the *nix dmesg facility. The caller supplies the backing
// storage once; the buffer never grows or reallocates. When storage fills
// up, the oldest bytes are silently overwritten.
//
// Append and extract are allocation-free. Extraction rotates the storage
// in place so the content becomes contiguous, then skips any rune that was
// cut in half by a previous wraparound, so the returned view is always
// valid UTF-8.
//
//	buf := ringlog.New(make([]byte, 16))
//	fmt.Fprintf(buf, "\nfirst\n")
//	fmt.Fprintf(buf, "second\n")
//	fmt.Fprintf(buf, "third\n")
//	// buf.Extract() == "st\nsecond\nthird\n"
//	// buf.ExtractLines() yields "second", "third"
//
// A Buffer is not safe for concurrent use; callers that share one across
// goroutines must synchronize externally.
package ringlog

import (
	"bytes"
	"iter"
	"unicode/utf8"
)

// sentinel fills unwritten storage. It can never appear in UTF-8 text, so
// the boundary scan in Extract skips filler the same way it skips a rune
// torn apart by wraparound. It cannot be 0x00, which is a valid codepoint.
const sentinel = 0xff

// Buffer keeps the last len(storage) bytes of appended text.
type Buffer struct {
	storage []byte
	pos     int // index of the next byte to write; also the oldest byte
}

// New returns a Buffer backed by storage. The storage is cleared first,
// so only text appended afterwards is visible to extraction. A zero-length
// storage is legal; every operation on it is a no-op.
func New(storage []byte) *Buffer {
	b := &Buffer{storage: storage}
	b.Clear()
	return b
}

// NewUninitialized returns a Buffer backed by storage without clearing it.
// Whatever bytes the caller left in storage are treated as already-written
// history; call Clear before use if that is not wanted.
func NewUninitialized(storage []byte) *Buffer {
	return &Buffer{storage: storage}
}

// Clear resets the buffer. Only text appended after clearing will be seen
// by a future extraction. Takes O(capacity) time.
func (b *Buffer) Clear() {
	b.pos = 0
	for i := range b.storage {
		b.storage[i] = sentinel
	}
}

// Capacity returns the fixed size of the backing storage.
func (b *Buffer) Capacity() int {
	return len(b.storage)
}

// IsEmpty reports whether nothing has been appended since the last Clear.
// Takes O(1) time.
func (b *Buffer) IsEmpty() bool {
	return b.pos == 0 &&
		(len(b.storage) == 0 || b.storage[len(b.storage)-1] == sentinel)
}

// WriteString appends s to the buffer, overwriting the oldest bytes once
// the storage is full. It cannot fail and does not allocate. If s is longer
// than the capacity, only its final capacity bytes survive.
//
// s must be valid UTF-8; the buffer does not check. Appending invalid text
// voids the validity guarantee of later extractions.
func (b *Buffer) WriteString(s string) {
	size := len(b.storage)
	if size == 0 || len(s) == 0 {
		return
	}
	if len(s) >= size {
		// Everything before the final capacity bytes is overwritten
		// within this same call; skip straight past it.
		b.pos = (b.pos + len(s) - size) % size
		s = s[len(s)-size:]
	}
	n := copy(b.storage[b.pos:], s)
	if n < len(s) {
		copy(b.storage, s[n:])
	}
	b.pos = (b.pos + len(s)) % size
}

// Write appends p to the buffer. It implements io.Writer for formatting
// collaborators like fmt.Fprintf and log.New, and always returns len(p)
// with a nil error. The same UTF-8 precondition as WriteString applies.
func (b *Buffer) Write(p []byte) (int, error) {
	written := len(p)
	size := len(b.storage)
	if size == 0 || len(p) == 0 {
		return written, nil
	}
	if len(p) >= size {
		b.pos = (b.pos + len(p) - size) % size
		p = p[len(p)-size:]
	}
	n := copy(b.storage[b.pos:], p)
	if n < len(p) {
		copy(b.storage, p[n:])
	}
	b.pos = (b.pos + len(p)) % size
	return written, nil
}

// rotate makes the buffer content contiguous: the oldest byte moves to
// index 0 via an in-place three-reversal rotation, and the cursor resets
// so the next append overwrites the oldest byte again.
func (b *Buffer) rotate() {
	if b.pos == 0 {
		return
	}
	reverse(b.storage[:b.pos])
	reverse(b.storage[b.pos:])
	reverse(b.storage)
	b.pos = 0
}

func reverse(s []byte) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// runeLeader reports whether c can begin a UTF-8 encoded rune. Unlike
// utf8.RuneStart it rejects bytes that are invalid anywhere in UTF-8
// (0xf8-0xff), which is what makes the sentinel fill skippable.
func runeLeader(c byte) bool {
	return c < utf8.RuneSelf ||
		c&0xe0 == 0xc0 ||
		c&0xf0 == 0xe0 ||
		c&0xf8 == 0xf0
}

// Extract returns the buffer content as a contiguous, valid UTF-8 byte
// view, oldest text first. Any rune partially overwritten by wraparound
// (and any unwritten filler) at the start is excluded.
//
// The returned slice aliases the backing storage without copying; it is
// invalidated by the next call to any method on the buffer. Takes
// O(capacity) time and does not allocate.
func (b *Buffer) Extract() []byte {
	b.rotate()
	for i := range b.storage {
		if runeLeader(b.storage[i]) {
			return b.storage[i:]
		}
	}
	return nil
}

// ExtractString returns Extract's view copied into a string. Unlike
// Extract it allocates, but the result stays valid across later appends.
func (b *Buffer) ExtractString() string {
	return string(b.Extract())
}

// ExtractLines returns the buffer content as a lazy sequence of lines,
// oldest first, with the trailing '\n' excluded from each. The first line
// is always dropped: its true beginning was overwritten (or never written)
// and it cannot be known to be complete. A line still being written, with
// no terminator yet, is dropped the same way.
//
// The yielded slices alias the backing storage; both they and the sequence
// itself are invalidated by the next call to any method on the buffer.
func (b *Buffer) ExtractLines() iter.Seq[[]byte] {
	b.rotate()
	start := -1
	for i := 1; i < len(b.storage); i++ {
		if b.storage[i-1] == '\n' {
			start = i
			break
		}
	}
	return func(yield func([]byte) bool) {
		if start < 0 {
			return
		}
		rest := b.storage[start:]
		for len(rest) > 0 {
			line := rest
			if j := bytes.IndexByte(rest, '\n'); j >= 0 {
				line = rest[:j]
				rest = rest[j+1:]
			} else {
				rest = nil
			}
			if !yield(line) {
				return
			}
		}
	}
}
